// Package knowledgebase builds and stores the business profile that drives
// lead validation and call scripts: website analysis, the anonymous
// onboarding draft, its one-time migration into a Business, and the
// AI-assisted suggestions used by the wizard.
package knowledgebase

import (
	"errors"
	"time"

	"leadgen-platform/internal/audit"
	"leadgen-platform/internal/integrations/gemini"
	"leadgen-platform/internal/store"

	"github.com/google/uuid"
)

const DefaultModel = "gemini-1.5-pro"

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrDraftNotFound   = errors.New("draft not found")
	// ErrTokenConflict means the migration token was already used by another user.
	ErrTokenConflict = errors.New("migration token already used")
)

type Deps struct {
	Store   store.Store
	Drafts  DraftStore
	Gemini  gemini.Generator
	Model   string
	Fetcher Fetcher
	Audit   *audit.Service
}

type Service struct {
	store   store.Store
	drafts  DraftStore
	gen     gemini.Generator
	model   string
	fetcher Fetcher
	audit   *audit.Service

	clock func() time.Time
	newID func() string
}

func New(d Deps) *Service {
	s := &Service{
		store:   d.Store,
		drafts:  d.Drafts,
		gen:     d.Gemini,
		model:   d.Model,
		fetcher: d.Fetcher,
		audit:   d.Audit,
		clock:   time.Now,
		newID:   uuid.NewString,
	}
	if s.model == "" {
		s.model = DefaultModel
	}
	if s.drafts == nil {
		s.drafts = NewMemoryDraftStore()
	}
	if s.fetcher == nil {
		s.fetcher = NewHTTPFetcher(nil)
	}
	return s
}

// WithClock overrides the clock; used by tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

func (s *Service) now() time.Time { return s.clock().UTC() }
