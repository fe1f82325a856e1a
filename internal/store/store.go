// Package store persists the lead pipeline: users and their ledger,
// businesses, campaigns, leads, call logs and audit events.
//
// Two implementations share one contract: Postgres for production and
// Memory for tests and local runs without a database.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"leadgen-platform/internal/audit"
	"leadgen-platform/internal/billing"
	"leadgen-platform/internal/businesses"
	"leadgen-platform/internal/calls"
	"leadgen-platform/internal/campaigns"
	"leadgen-platform/internal/leads"
)

var (
	// ErrNotFound is returned for missing rows and rows not owned by the caller.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a compare-and-set lost to a concurrent writer.
	ErrConflict = errors.New("store: conflict")
)

type Users interface {
	// EnsureUser creates the user row with zero credits if it does not exist.
	EnsureUser(ctx context.Context, userID, email string, now time.Time) error
}

type Ledger interface {
	billing.LedgerTx
	GetAccount(ctx context.Context, userID string) (billing.Account, error)
	// ListTransactions returns newest first; limit 0 returns all rows.
	ListTransactions(ctx context.Context, userID string, limit int) ([]billing.Transaction, error)
}

type Businesses interface {
	InsertBusiness(ctx context.Context, b businesses.Business) error
	GetBusiness(ctx context.Context, userID, id string) (businesses.Business, error)
	// ActiveBusiness is the user's most recent active business.
	ActiveBusiness(ctx context.Context, userID string) (businesses.Business, error)
	UpdateBusinessKnowledge(ctx context.Context, b businesses.Business) error
	FindMigration(ctx context.Context, token string) (businesses.Migration, bool, error)
	InsertMigration(ctx context.Context, m businesses.Migration) error
}

type Campaigns interface {
	InsertCampaign(ctx context.Context, c campaigns.Campaign) error
	GetCampaign(ctx context.Context, id string) (campaigns.Campaign, businesses.Business, error)
	// GetOwnedCampaign returns ErrNotFound unless the campaign's business belongs to userID.
	GetOwnedCampaign(ctx context.Context, userID, id string) (campaigns.Campaign, businesses.Business, error)
	ListCampaigns(ctx context.Context, f campaigns.ListFilter) ([]campaigns.Campaign, error)
	// TransitionCampaign moves status from -> to only if the row is still in
	// from; otherwise ErrConflict. started_at is stamped on activation,
	// completed_at on completion. A reset to draft clears started_at and
	// the scrape cursor.
	TransitionCampaign(ctx context.Context, id string, from, to campaigns.Status, now time.Time) error
	AdvanceScrape(ctx context.Context, id string, added, cursor int, now time.Time) error
	SetAssistantID(ctx context.Context, id, assistantID string, now time.Time) error
	BumpCampaign(ctx context.Context, id string, d campaigns.Counters, now time.Time) error
	ListStuckCampaigns(ctx context.Context, startedBefore time.Time) ([]campaigns.Campaign, error)
}

type Leads interface {
	// InsertLead returns false when the campaign already has the place id.
	InsertLead(ctx context.Context, l leads.Lead) (bool, error)
	GetLead(ctx context.Context, id string) (leads.Lead, error)
	LeadsByIDs(ctx context.Context, campaignID string, ids []string) ([]leads.Lead, error)
	ListLeads(ctx context.Context, f leads.ListFilter) ([]leads.Lead, error)
	UnchargedLeads(ctx context.Context, campaignID string) ([]string, error)
	MarkLeadsCharged(ctx context.Context, ids []string, now time.Time) error
	// EnrichLead writes the contact and flips validated -> enriched.
	EnrichLead(ctx context.Context, id string, e leads.Enrichment) error
	RecordEnrichmentFailure(ctx context.Context, id string, data json.RawMessage, now time.Time) error
	TransitionLead(ctx context.Context, id string, from, to leads.Status, now time.Time) error
	LeadStatusCounts(ctx context.Context, campaignID string) (map[leads.Status]int, error)
}

type Calls interface {
	InsertCallLog(ctx context.Context, c calls.CallLog) error
	GetCallLogByVAPIID(ctx context.Context, vapiCallID string) (calls.CallLog, error)
	MarkCallStarted(ctx context.Context, vapiCallID string, at time.Time) error
	// EndCall never replaces an appointment_booked outcome.
	EndCall(ctx context.Context, vapiCallID string, e calls.CallEnd) error
	AppendTranscript(ctx context.Context, vapiCallID, line string, at time.Time) error
	SetCallOutcome(ctx context.Context, vapiCallID string, o calls.Outcome, at time.Time) error
	// MergeCallData shallow-merges patch into vapi_data.
	MergeCallData(ctx context.Context, vapiCallID string, patch json.RawMessage, at time.Time) error
	ListCallLogs(ctx context.Context, f calls.ListFilter) ([]calls.CallLog, error)
	InsertAppointment(ctx context.Context, a calls.Appointment) error
}

// Tx is everything readable and writable inside one unit of work.
type Tx interface {
	Users
	Ledger
	Businesses
	Campaigns
	Leads
	Calls
	AppendAudit(ctx context.Context, e audit.Event) error
}

// Store runs single statements directly and multi-statement work in InTx.
type Store interface {
	Tx
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	WithLedger(ctx context.Context, fn func(ctx context.Context, tx billing.LedgerTx) error) error
	Ping(ctx context.Context) error
}

func accountNotFound() error {
	return errors.Join(billing.ErrNotFound, ErrNotFound)
}

func businessNotFound() error {
	return errors.Join(businesses.ErrNotFound, ErrNotFound)
}
