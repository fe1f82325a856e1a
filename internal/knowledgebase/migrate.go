package knowledgebase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"leadgen-platform/internal/businesses"
	"leadgen-platform/internal/store"
	"leadgen-platform/pkg/logger"
)

// MigrateRequest carries the draft either by id or inline. Token is
// generated by the client once per draft and makes the call exactly-once.
type MigrateRequest struct {
	Token   string `json:"token"`
	DraftID string `json:"draftId,omitempty"`
	Draft   *Draft `json:"draft,omitempty"`
}

type MigrateResult struct {
	Business businesses.Business `json:"business"`
	// Migrated is false when the token was already used and the original
	// business is returned.
	Migrated bool `json:"migrated"`
}

func (s *Service) Migrate(ctx context.Context, userID string, req MigrateRequest) (MigrateResult, error) {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return MigrateResult{}, fmt.Errorf("%w: token is required", ErrInvalidArgument)
	}

	var draft Draft
	switch {
	case req.Draft != nil:
		draft = *req.Draft
	case req.DraftID != "":
		d, err := s.drafts.Get(ctx, req.DraftID)
		if err != nil && !errors.Is(err, ErrDraftNotFound) {
			return MigrateResult{}, fmt.Errorf("load draft: %w", err)
		}
		if err == nil {
			draft = d
		} else if res, ok, rerr := s.replay(ctx, userID, token); rerr != nil || ok {
			// The draft is deleted after a successful migration, so a
			// retried request by id can only be answered from the token.
			return res, rerr
		} else {
			return MigrateResult{}, err
		}
	default:
		return MigrateResult{}, fmt.Errorf("%w: draft or draftId is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(draft.KnowledgeBase.BusinessName) == "" {
		return MigrateResult{}, fmt.Errorf("%w: draft has no business name", ErrInvalidArgument)
	}

	res, err := s.migrate(ctx, userID, token, draft)
	if errors.Is(err, store.ErrConflict) {
		// Lost a race with a concurrent request carrying the same token.
		res, ok, rerr := s.replay(ctx, userID, token)
		if rerr != nil {
			return MigrateResult{}, rerr
		}
		if ok {
			return res, nil
		}
	}
	if err != nil {
		return MigrateResult{}, err
	}

	if res.Migrated {
		s.audit.LogMigration(ctx, userID, res.Business.ID, token)
		if draft.TemporaryID != "" {
			if err := s.drafts.Delete(ctx, draft.TemporaryID); err != nil {
				logger.From(ctx).Warn("draft delete failed", "draft_id", draft.TemporaryID, "err", err)
			}
		}
		logger.From(ctx).Info("knowledge base migrated", "business_id", res.Business.ID)
	}
	return res, nil
}

func (s *Service) migrate(ctx context.Context, userID, token string, draft Draft) (MigrateResult, error) {
	var res MigrateResult
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		m, ok, err := tx.FindMigration(ctx, token)
		if err != nil {
			return err
		}
		if ok {
			if m.UserID != userID {
				return ErrTokenConflict
			}
			b, err := tx.GetBusiness(ctx, userID, m.BusinessID)
			if err != nil {
				return err
			}
			res = MigrateResult{Business: b}
			return nil
		}

		now := s.now()
		if err := tx.EnsureUser(ctx, userID, "", now); err != nil {
			return err
		}
		b := businesses.FromKnowledgeBase(s.newID(), userID, draft.WebsiteURL, draft.KnowledgeBase, draft.DiscoveryAnswers, now)
		if err := tx.InsertBusiness(ctx, b); err != nil {
			return err
		}
		if err := tx.InsertMigration(ctx, businesses.Migration{
			Token:      token,
			UserID:     userID,
			BusinessID: b.ID,
			CreatedAt:  now,
		}); err != nil {
			return err
		}
		res = MigrateResult{Business: b, Migrated: true}
		return nil
	})
	return res, err
}

// replay answers a request whose token was already consumed.
func (s *Service) replay(ctx context.Context, userID, token string) (MigrateResult, bool, error) {
	m, ok, err := s.store.FindMigration(ctx, token)
	if err != nil || !ok {
		return MigrateResult{}, false, err
	}
	if m.UserID != userID {
		return MigrateResult{}, false, ErrTokenConflict
	}
	b, err := s.store.GetBusiness(ctx, userID, m.BusinessID)
	if err != nil {
		return MigrateResult{}, false, err
	}
	return MigrateResult{Business: b}, true, nil
}
