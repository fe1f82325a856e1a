package knowledgebase

import (
	"context"
	"fmt"
	"strings"

	"leadgen-platform/internal/businesses"
	"leadgen-platform/internal/store"
)

type View struct {
	Business      businesses.Business `json:"business"`
	KnowledgeBase businesses.Merged   `json:"knowledgeBase"`
}

// Get returns the user's active business with its merged knowledge base.
func (s *Service) Get(ctx context.Context, userID string) (View, error) {
	b, err := s.store.ActiveBusiness(ctx, userID)
	if err != nil {
		return View{}, err
	}
	return View{Business: b, KnowledgeBase: b.Merged()}, nil
}

type UpdateRequest struct {
	BusinessID       string                       `json:"businessId"`
	KnowledgeBase    *businesses.KnowledgeBase    `json:"knowledgeBase,omitempty"`
	DiscoveryAnswers *businesses.DiscoveryAnswers `json:"discoveryAnswers,omitempty"`
}

// Update replaces the analysis and/or discovery answers of an owned
// business. The denormalized columns follow the new analysis.
func (s *Service) Update(ctx context.Context, userID string, req UpdateRequest) (businesses.Business, error) {
	if strings.TrimSpace(req.BusinessID) == "" {
		return businesses.Business{}, fmt.Errorf("%w: businessId is required", ErrInvalidArgument)
	}
	var out businesses.Business
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		b, err := tx.GetBusiness(ctx, userID, req.BusinessID)
		if err != nil {
			return err
		}
		if kb := req.KnowledgeBase; kb != nil {
			b.AnalysisData = *kb
			if kb.BusinessName != "" {
				b.BusinessName = kb.BusinessName
			}
			b.Description = kb.Description
			b.ValueProposition = kb.ValueProposition
			b.Industry = kb.Industry
			b.TargetMarkets = kb.TargetMarkets
			b.DecisionMakerRoles = kb.TargetDecisionMakers
		}
		if req.DiscoveryAnswers != nil {
			b.DiscoveryAnswers = *req.DiscoveryAnswers
		}
		b.UpdatedAt = s.now()
		if err := tx.UpdateBusinessKnowledge(ctx, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}
