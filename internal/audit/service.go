package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"leadgen-platform/pkg/logger"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
// It MUST be append-only.
type Repository interface {
	AppendAudit(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// Callers treat audit logging as best-effort: the Log* helpers log and
// swallow repository errors.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.UserID == "" || e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.AppendAudit(ctx, e)
}

// LogTopUp records a credit purchase.
func (s *Service) LogTopUp(ctx context.Context, userID, actorRole, ip string, amount, balance int64) {
	s.bestEffort(ctx, Event{
		UserID:    userID,
		Type:      EventTypeCreditTopUp,
		ActorRole: actorRole,
		IPAddress: ip,
		Message:   fmt.Sprintf("added %d credits", amount),
		Metadata:  meta(map[string]any{"amount": amount, "balance": balance}),
	})
}

// LogCampaignReset records a manual reset to draft.
func (s *Service) LogCampaignReset(ctx context.Context, userID, actorRole, ip, campaignID string, from string) {
	s.bestEffort(ctx, Event{
		UserID:     userID,
		Type:       EventTypeCampaignReset,
		ActorRole:  actorRole,
		IPAddress:  ip,
		CampaignID: campaignID,
		Message:    "campaign reset to draft",
		Metadata:   meta(map[string]any{"from": from}),
	})
}

// LogRecovery records a stuck campaign settled by the recovery job.
func (s *Service) LogRecovery(ctx context.Context, userID, campaignID string, charged int) {
	s.bestEffort(ctx, Event{
		UserID:     userID,
		Type:       EventTypeCampaignRecovered,
		ActorRole:  SystemActor,
		CampaignID: campaignID,
		Message:    "stuck campaign settled",
		Metadata:   meta(map[string]any{"leads_charged": charged}),
	})
}

// LogMigration records a draft knowledge base turned into a business.
func (s *Service) LogMigration(ctx context.Context, userID, businessID, token string) {
	s.bestEffort(ctx, Event{
		UserID:   userID,
		Type:     EventTypeKnowledgeMigrated,
		Message:  "knowledge base migrated",
		Metadata: meta(map[string]any{"business_id": businessID, "token": token}),
	})
}

func (s *Service) bestEffort(ctx context.Context, e Event) {
	if s == nil {
		return
	}
	if err := s.Append(ctx, e); err != nil {
		logger.From(ctx).Warn("audit append failed", "type", e.Type, "err", err)
	}
}

func meta(m map[string]any) string {
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}
