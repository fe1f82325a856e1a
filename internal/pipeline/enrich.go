package pipeline

import (
	"context"
	"errors"
	"fmt"

	"leadgen-platform/internal/billing"
	"leadgen-platform/internal/businesses"
	"leadgen-platform/internal/campaigns"
	"leadgen-platform/internal/leads"
	"leadgen-platform/internal/metrics"
	"leadgen-platform/internal/pricing"
	"leadgen-platform/internal/store"
	"leadgen-platform/pkg/logger"
	"leadgen-platform/pkg/workpool"
)

var DefaultTargetRoles = []string{"CEO", "Founder", "Owner", "President"}

type EnrichResult struct {
	Success       bool `json:"success"`
	EnrichedCount int  `json:"enriched_count"`
	FailedCount   int  `json:"failed_count"`
	SkippedCount  int  `json:"skipped_count"`
	TotalLeads    int  `json:"total_leads"`
}

type enrichOutcome int

const (
	enrichSkipped enrichOutcome = iota
	enrichDone
	enrichFailed
)

// TargetRoles resolves the decision-maker titles to search for.
func TargetRoles(c campaigns.Campaign, biz businesses.Business) []string {
	if len(c.SearchParameters.DecisionMakers) > 0 {
		return c.SearchParameters.DecisionMakers
	}
	if t := biz.DecisionMakerTitles(); len(t) > 0 {
		return t
	}
	return DefaultTargetRoles
}

// Enrich finds contacts for the given leads. Leads already past validation
// are skipped, so a re-run never bills twice.
func (s *Service) Enrich(ctx context.Context, userID, campaignID string, leadIDs []string) (EnrichResult, error) {
	if len(leadIDs) == 0 {
		return EnrichResult{}, fmt.Errorf("%w: lead ids are required", ErrInvalidArgument)
	}
	c, biz, err := s.store.GetOwnedCampaign(ctx, userID, campaignID)
	if err != nil {
		return EnrichResult{}, err
	}
	ls, err := s.store.LeadsByIDs(ctx, c.ID, leadIDs)
	if err != nil {
		return EnrichResult{}, err
	}
	if len(ls) == 0 {
		return EnrichResult{}, fmt.Errorf("no leads found: %w", store.ErrNotFound)
	}

	roles := TargetRoles(c, biz)
	outcomes, err := workpool.Map(ctx, s.pool, ls, func(ctx context.Context, l leads.Lead) enrichOutcome {
		return s.enrichOne(ctx, userID, c.ID, l, roles)
	})
	if err != nil {
		return EnrichResult{}, err
	}

	res := EnrichResult{Success: true, TotalLeads: len(ls)}
	for _, o := range outcomes {
		switch o {
		case enrichDone:
			res.EnrichedCount++
		case enrichFailed:
			res.FailedCount++
		default:
			res.SkippedCount++
		}
	}
	return res, nil
}

func (s *Service) enrichOne(ctx context.Context, userID, campaignID string, l leads.Lead, roles []string) enrichOutcome {
	if l.Status != leads.StatusValidated {
		return enrichSkipped
	}
	log := logger.From(ctx).With("lead_id", l.ID)

	// No location filter: a street address matches almost no profiles.
	contacts := s.contacts.FindContacts(ctx, l.BusinessName, "", roles)
	now := s.now()

	var primary leads.Contact
	if len(contacts) > 0 {
		primary = contacts[0]
		if primary.Phone == "" {
			primary.Phone = l.Phone
		}
	}
	if len(contacts) == 0 || (primary.Email == "" && primary.Phone == "") {
		reason := "No contacts found"
		if len(contacts) > 0 {
			reason = "No reachable contact"
		}
		s.recordEnrichmentFailure(ctx, l.ID, reason)
		metrics.RecordEnrichment(false)
		return enrichFailed
	}

	data, err := marshal(leads.EnrichmentData{Contacts: contacts, EnrichedAt: now, PrimaryContactID: primary.ID})
	if err != nil {
		log.Error("encode enrichment data", "err", err)
		return enrichFailed
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.EnrichLead(ctx, l.ID, leads.Enrichment{Primary: primary, Data: data, At: now}); err != nil {
			return err
		}
		t, applied, err := s.billing.Charge(ctx, tx, billing.Charge{
			UserID:         userID,
			CampaignID:     campaignID,
			Event:          pricing.EventLeadEnriched,
			Quantity:       1,
			RelatedID:      l.ID,
			IdempotencyKey: "lead_enriched:" + l.ID,
			Description:    "Enriched lead " + l.BusinessName,
		})
		if err != nil || !applied {
			return err
		}
		return tx.BumpCampaign(ctx, campaignID, campaigns.Counters{Spent: t.CreditsUsed}, now)
	})
	switch {
	case errors.Is(err, store.ErrConflict):
		return enrichSkipped
	case err != nil:
		log.Warn("enrichment write failed", "err", err)
		s.recordEnrichmentFailure(ctx, l.ID, err.Error())
		metrics.RecordEnrichment(false)
		return enrichFailed
	}
	metrics.RecordEnrichment(true)
	return enrichDone
}

func (s *Service) recordEnrichmentFailure(ctx context.Context, leadID, reason string) {
	now := s.now()
	data, err := marshal(leads.EnrichmentFailure{Error: reason, FailedAt: now})
	if err == nil {
		err = s.store.RecordEnrichmentFailure(ctx, leadID, data, now)
	}
	if err != nil {
		logger.From(ctx).Warn("record enrichment failure", "lead_id", leadID, "err", err)
	}
}
