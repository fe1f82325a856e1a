package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"leadgen-platform/internal/billing"
	"leadgen-platform/internal/integrations/apify"
	"leadgen-platform/internal/pricing"
	"leadgen-platform/internal/store"
	"leadgen-platform/pkg/logger"
)

const MaxAdHocQuantity = 500

type AdHocRequest struct {
	SalesTargets []string `json:"salesTargets"`
	Location     string   `json:"location"`
	Quantity     int      `json:"quantity"`
}

func (r AdHocRequest) Validate() error {
	if len(r.SalesTargets) == 0 || strings.TrimSpace(r.Location) == "" || r.Quantity <= 0 {
		return fmt.Errorf("%w: Missing required fields: salesTargets, location, quantity", ErrInvalidArgument)
	}
	if r.Quantity > MaxAdHocQuantity {
		return fmt.Errorf("%w: quantity must be at most %d", ErrInvalidArgument, MaxAdHocQuantity)
	}
	return nil
}

type AdHocResult struct {
	Success     bool              `json:"success"`
	Leads       []apify.AdHocLead `json:"leads"`
	TotalFound  int               `json:"totalFound"`
	CreditsUsed int64             `json:"creditsUsed"`
	SearchTerms []string          `json:"searchTerms"`
	Location    string            `json:"location"`
}

// AdHocScrape is a one-off Google Maps search outside any campaign. The
// results are returned, not stored, and billed as scraped leads.
func (s *Service) AdHocScrape(ctx context.Context, userID string, req AdHocRequest) (AdHocResult, error) {
	if err := req.Validate(); err != nil {
		return AdHocResult{}, err
	}
	need, err := s.billing.Estimate(pricing.EventLeadScraped, req.Quantity)
	if err != nil {
		return AdHocResult{}, err
	}
	acct, err := s.billing.Balance(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return AdHocResult{}, err
	}
	if acct.Credits < need {
		return AdHocResult{}, &InsufficientCreditsError{Required: need, Available: acct.Credits}
	}

	found, err := s.adhoc.RunSync(ctx, req.SalesTargets, req.Location, req.Quantity)
	if err != nil {
		return AdHocResult{}, fmt.Errorf("scrape leads from google maps: %w", err)
	}
	final := found
	if len(final) > req.Quantity {
		final = final[:req.Quantity]
	}

	res := AdHocResult{
		Success:     true,
		Leads:       final,
		TotalFound:  len(found),
		SearchTerms: req.SalesTargets,
		Location:    req.Location,
	}
	if res.Leads == nil {
		res.Leads = []apify.AdHocLead{}
	}
	if len(final) == 0 {
		return res, nil
	}

	t, err := s.billing.ChargeNow(ctx, billing.Charge{
		UserID:         userID,
		Event:          pricing.EventLeadScraped,
		Quantity:       len(final),
		IdempotencyKey: "lead_scraped:adhoc:" + s.newID(),
		Description:    fmt.Sprintf("Scraped %d business leads from Google Maps", len(final)),
	})
	if err != nil {
		// The vendor run already happened; the balance check above makes this rare.
		logger.From(ctx).Error("ad-hoc scrape billing failed", "leads", len(final), "err", err)
		if errors.Is(err, billing.ErrInsufficientCredits) {
			return AdHocResult{}, &InsufficientCreditsError{Required: need, Available: acct.Credits}
		}
		return AdHocResult{}, err
	}
	res.CreditsUsed = t.CreditsUsed
	return res, nil
}
