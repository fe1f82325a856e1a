// Package pipeline runs a campaign's lead flow: scrape and validate, enrich
// contacts, then place AI calls. Every billable step is charged in the same
// transaction as the state change it pays for.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"leadgen-platform/internal/audit"
	"leadgen-platform/internal/billing"
	"leadgen-platform/internal/integrations/apify"
	"leadgen-platform/internal/integrations/vapi"
	"leadgen-platform/internal/leads"
	"leadgen-platform/internal/store"
	"leadgen-platform/internal/validator"
	"leadgen-platform/pkg/workpool"

	"github.com/google/uuid"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrAlreadyRunning  = errors.New("campaign is already running")
	ErrAlreadyComplete = errors.New("campaign is already completed")
	ErrCallingDisabled = errors.New("campaign does not have calling enabled")
	ErrNoEligibleLeads = errors.New("no enriched leads with phone numbers found")
)

// InsufficientCreditsError carries the numbers for a 402 response.
type InsufficientCreditsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: need %d, have %d", e.Required, e.Available)
}

func (e *InsufficientCreditsError) Unwrap() error { return billing.ErrInsufficientCredits }

// Scraper finds businesses on Google Maps.
type Scraper interface {
	SearchPlaces(ctx context.Context, query, location string, max int) ([]leads.Lead, error)
}

// AdHocScraper runs the synchronous crawler for the one-off lead search.
type AdHocScraper interface {
	RunSync(ctx context.Context, targets []string, location string, quantity int) ([]apify.AdHocLead, error)
}

type LeadValidator interface {
	ValidateBatch(ctx context.Context, items []leads.Lead, criteria json.RawMessage, ourBusiness string) ([]validator.Result, error)
}

type ContactFinder interface {
	FindContacts(ctx context.Context, company, location string, roles []string) []leads.Contact
}

type Dialer interface {
	CreateAssistant(ctx context.Context, a vapi.Assistant) (vapi.Assistant, error)
	CreateCall(ctx context.Context, req vapi.CallRequest) (vapi.Call, error)
}

type Deps struct {
	Store     store.Store
	Billing   *billing.Service
	Audit     *audit.Service
	Scraper   Scraper
	AdHoc     AdHocScraper
	Validator LeadValidator
	Contacts  ContactFinder
	Dialer    Dialer
	RunLock   RunLock
	Pool      *workpool.Pool
	// LockTTL bounds how long a crashed run can block its campaign.
	LockTTL time.Duration
}

type Service struct {
	store     store.Store
	billing   *billing.Service
	audit     *audit.Service
	scraper   Scraper
	adhoc     AdHocScraper
	validator LeadValidator
	contacts  ContactFinder
	dialer    Dialer
	lock      RunLock
	pool      *workpool.Pool
	lockTTL   time.Duration

	clock func() time.Time
	newID func() string
}

func New(d Deps) *Service {
	s := &Service{
		store:     d.Store,
		billing:   d.Billing,
		audit:     d.Audit,
		scraper:   d.Scraper,
		adhoc:     d.AdHoc,
		validator: d.Validator,
		contacts:  d.Contacts,
		dialer:    d.Dialer,
		lock:      d.RunLock,
		pool:      d.Pool,
		lockTTL:   d.LockTTL,
		clock:     time.Now,
		newID:     uuid.NewString,
	}
	if s.pool == nil {
		s.pool = workpool.New(workpool.DefaultWidth, 0, 0)
	}
	if s.lock == nil {
		s.lock = NewLocalRunLock()
	}
	if s.lockTTL <= 0 {
		s.lockTTL = 30 * time.Minute
	}
	return s
}

// WithClock overrides the clock; used by tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

func (s *Service) now() time.Time { return s.clock().UTC() }

func marshal(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}
