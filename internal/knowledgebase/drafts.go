package knowledgebase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"leadgen-platform/internal/businesses"

	"github.com/redis/go-redis/v9"
)

const DraftTTL = 7 * 24 * time.Hour

// Draft is an onboarding knowledge base that does not belong to a user yet.
type Draft struct {
	TemporaryID      string                      `json:"temporaryId"`
	WebsiteURL       string                      `json:"websiteUrl"`
	KnowledgeBase    businesses.KnowledgeBase    `json:"knowledgeBase"`
	DiscoveryAnswers businesses.DiscoveryAnswers `json:"discoveryAnswers"`
	CreatedAt        time.Time                   `json:"createdAt"`
}

type DraftStore interface {
	Save(ctx context.Context, d Draft, ttl time.Duration) error
	// Get returns ErrDraftNotFound for unknown or expired ids.
	Get(ctx context.Context, id string) (Draft, error)
	Delete(ctx context.Context, id string) error
}

func draftKey(id string) string { return "kb:draft:" + id }

type RedisDraftStore struct {
	rdb redis.Cmdable
}

func NewRedisDraftStore(rdb redis.Cmdable) *RedisDraftStore {
	return &RedisDraftStore{rdb: rdb}
}

func (r *RedisDraftStore) Save(ctx context.Context, d Draft, ttl time.Duration) error {
	b, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, draftKey(d.TemporaryID), b, ttl).Err()
}

func (r *RedisDraftStore) Get(ctx context.Context, id string) (Draft, error) {
	b, err := r.rdb.Get(ctx, draftKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Draft{}, ErrDraftNotFound
		}
		return Draft{}, err
	}
	var d Draft
	if err := json.Unmarshal(b, &d); err != nil {
		return Draft{}, fmt.Errorf("decode draft %s: %w", id, err)
	}
	return d, nil
}

func (r *RedisDraftStore) Delete(ctx context.Context, id string) error {
	return r.rdb.Del(ctx, draftKey(id)).Err()
}

type memDraft struct {
	d   Draft
	exp time.Time
}

type MemoryDraftStore struct {
	mu     sync.Mutex
	drafts map[string]memDraft
	clock  func() time.Time
}

func NewMemoryDraftStore() *MemoryDraftStore {
	return &MemoryDraftStore{drafts: map[string]memDraft{}, clock: time.Now}
}

func (m *MemoryDraftStore) Save(_ context.Context, d Draft, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[d.TemporaryID] = memDraft{d: d, exp: m.clock().Add(ttl)}
	return nil
}

func (m *MemoryDraftStore) Get(_ context.Context, id string) (Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.drafts[id]
	if !ok || !m.clock().Before(e.exp) {
		delete(m.drafts, id)
		return Draft{}, ErrDraftNotFound
	}
	return e.d, nil
}

func (m *MemoryDraftStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, id)
	return nil
}

// DraftInput is the client-editable part of a draft.
type DraftInput struct {
	WebsiteURL       string                      `json:"websiteUrl"`
	KnowledgeBase    businesses.KnowledgeBase    `json:"knowledgeBase"`
	DiscoveryAnswers businesses.DiscoveryAnswers `json:"discoveryAnswers"`
}

func (s *Service) CreateDraft(ctx context.Context, in DraftInput) (Draft, error) {
	if strings.TrimSpace(in.KnowledgeBase.BusinessName) == "" {
		return Draft{}, fmt.Errorf("%w: knowledgeBase.businessName is required", ErrInvalidArgument)
	}
	d := Draft{
		TemporaryID:      s.newID(),
		WebsiteURL:       in.WebsiteURL,
		KnowledgeBase:    in.KnowledgeBase,
		DiscoveryAnswers: in.DiscoveryAnswers,
		CreatedAt:        s.now(),
	}
	if err := s.drafts.Save(ctx, d, DraftTTL); err != nil {
		return Draft{}, fmt.Errorf("save draft: %w", err)
	}
	return d, nil
}

func (s *Service) GetDraft(ctx context.Context, id string) (Draft, error) {
	return s.drafts.Get(ctx, id)
}

// UpdateDraft replaces the draft contents and restarts its TTL. The id and
// creation time are preserved.
func (s *Service) UpdateDraft(ctx context.Context, id string, in DraftInput) (Draft, error) {
	d, err := s.drafts.Get(ctx, id)
	if err != nil {
		return Draft{}, err
	}
	if in.WebsiteURL != "" {
		d.WebsiteURL = in.WebsiteURL
	}
	d.KnowledgeBase = in.KnowledgeBase
	d.DiscoveryAnswers = in.DiscoveryAnswers
	if err := s.drafts.Save(ctx, d, DraftTTL); err != nil {
		return Draft{}, fmt.Errorf("save draft: %w", err)
	}
	return d, nil
}
