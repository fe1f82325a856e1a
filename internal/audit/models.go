package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - actor and ip capture are best-effort; do not block critical flows on audit failures.
type Event struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`

	Type EventType `json:"type" db:"type"`

	// ActorRole is the role at the time of the action; empty for system jobs.
	ActorRole string `json:"actor_role,omitempty" db:"actor_role"`
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	CampaignID string `json:"campaign_id,omitempty" db:"campaign_id"`

	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeCreditTopUp       EventType = "credit_top_up"
	EventTypeCampaignReset     EventType = "campaign_reset"
	EventTypeCampaignRecovered EventType = "campaign_recovered"
	EventTypeKnowledgeMigrated EventType = "knowledge_base_migrated"
)

// SystemActor marks events written by background jobs.
const SystemActor = "system"
