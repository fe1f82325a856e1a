package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadgen-platform/internal/billing"
	"leadgen-platform/internal/businesses"
	"leadgen-platform/internal/campaigns"
	"leadgen-platform/internal/leads"
	"leadgen-platform/internal/metrics"
	"leadgen-platform/internal/pricing"
	"leadgen-platform/internal/store"
	"leadgen-platform/internal/validator"
	"leadgen-platform/pkg/logger"
)

const maxPlacesPerPair = 100

type ScrapeResult struct {
	Success      bool             `json:"success"`
	LeadsScraped int              `json:"leads_scraped"`
	CampaignID   string           `json:"campaign_id"`
	Status       campaigns.Status `json:"status"`
}

// Scrape runs the campaign's location x keyword pairs from the persisted
// cursor until the lead quota is met, wrapping to the first pair when a
// previous run already went through all of them, then settles. Settlement also runs
// when the loop fails or panics, so a run never leaves the campaign active.
func (s *Service) Scrape(ctx context.Context, userID, campaignID string) (ScrapeResult, error) {
	c, biz, err := s.store.GetOwnedCampaign(ctx, userID, campaignID)
	if err != nil {
		return ScrapeResult{}, err
	}
	switch c.Status {
	case campaigns.StatusActive:
		return ScrapeResult{}, ErrAlreadyRunning
	case campaigns.StatusCompleted:
		return ScrapeResult{}, ErrAlreadyComplete
	}
	if err := campaigns.Transition(c.Status, campaigns.StatusActive); err != nil {
		return ScrapeResult{}, err
	}

	key := runLockKey(c.ID)
	ok, err := s.lock.Acquire(ctx, key, s.lockTTL)
	if err != nil {
		return ScrapeResult{}, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return ScrapeResult{}, ErrAlreadyRunning
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx), key); err != nil {
			logger.From(ctx).Warn("release run lock failed", "campaign_id", c.ID, "err", err)
		}
	}()

	if err := s.store.TransitionCampaign(ctx, c.ID, c.Status, campaigns.StatusActive, s.now()); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return ScrapeResult{}, ErrAlreadyRunning
		}
		return ScrapeResult{}, err
	}

	log := logger.From(ctx).With("campaign_id", c.ID)
	settled := false
	defer func() {
		if settled {
			return
		}
		if _, err := s.settle(context.WithoutCancel(ctx), userID, c.ID); err != nil {
			log.Error("settlement after aborted run failed", "err", err)
		}
	}()

	runErr := s.scrapePairs(ctx, c, biz)
	if runErr != nil {
		log.Error("scrape run aborted", "err", runErr)
	}

	final, err := s.settle(context.WithoutCancel(ctx), userID, c.ID)
	settled = true
	if err != nil {
		return ScrapeResult{}, err
	}
	metrics.RecordCampaignRun(string(final.Status))
	if runErr != nil {
		return ScrapeResult{}, runErr
	}
	return ScrapeResult{
		Success:      true,
		LeadsScraped: final.LeadsScraped,
		CampaignID:   final.ID,
		Status:       final.Status,
	}, nil
}

func (s *Service) scrapePairs(ctx context.Context, c campaigns.Campaign, biz businesses.Business) error {
	pairs := c.SearchParameters.Pairs()
	quota := c.SearchParameters.Quota()
	scraped := c.LeadsScraped
	criteria := biz.TargetCriteria()
	log := logger.From(ctx).With("campaign_id", c.ID)

	start := c.ScrapeCursor
	if start >= len(pairs) {
		// Every pair was tried and the quota is still open. Place ids are
		// unique per campaign, so a full rescan only adds new places.
		start = 0
	}
	// The saved cursor never moves past a pair whose search failed, so the
	// next run retries it. Pairs after it are searched again too.
	failedAt := -1
	next := func(i int) int {
		if failedAt >= 0 {
			return failedAt
		}
		return i + 1
	}

	for i := start; i < len(pairs) && scraped < quota; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := pairs[i]
		remaining := quota - scraped

		found, err := s.scraper.SearchPlaces(ctx, p.Keyword, p.Location, min(maxPlacesPerPair, remaining))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("scrape pair failed", "keyword", p.Keyword, "location", p.Location, "err", err)
			if failedAt < 0 {
				failedAt = i
				if err := s.store.AdvanceScrape(ctx, c.ID, 0, i, s.now()); err != nil {
					return err
				}
			}
			continue
		}

		results, err := s.validator.ValidateBatch(ctx, found, criteria, biz.BusinessName)
		if err != nil {
			return err
		}

		now := s.now()
		var candidates []leads.Lead
		for j, l := range found {
			if !validator.Qualifies(results[j]) {
				continue
			}
			data, err := marshal(results[j])
			if err != nil {
				return err
			}
			l.ID = s.newID()
			l.CampaignID = c.ID
			l.ValidationScore = results[j].RelevanceScore
			l.ValidationData = data
			l.Status = leads.StatusValidated
			l.ValidatedAt = &now
			l.CreatedAt = now
			l.UpdatedAt = now
			candidates = append(candidates, l)
		}

		added := 0
		err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
			added = 0
			for _, l := range candidates {
				if added == remaining {
					break
				}
				ok, err := tx.InsertLead(ctx, l)
				if err != nil {
					return err
				}
				if ok {
					added++
				}
			}
			return tx.AdvanceScrape(ctx, c.ID, added, next(i), now)
		})
		if err != nil {
			return err
		}
		scraped += added
		metrics.RecordLeadsScraped(added)
		log.Info("scrape pair done", "keyword", p.Keyword, "location", p.Location,
			"found", len(found), "qualified", len(candidates), "added", added)
	}
	return nil
}

// settle ends a run in one transaction: final status plus one lead_scraped
// charge for every lead not yet billed. A campaign that is no longer active
// was settled elsewhere and is returned unchanged.
func (s *Service) settle(ctx context.Context, userID, campaignID string) (campaigns.Campaign, error) {
	var out campaigns.Campaign
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		c, _, err := tx.GetCampaign(ctx, campaignID)
		if err != nil {
			return err
		}
		out = c
		if c.Status != campaigns.StatusActive {
			return nil
		}

		now := s.now()
		to := campaigns.StatusPaused
		if c.LeadsScraped >= c.SearchParameters.Quota() {
			to = campaigns.StatusCompleted
		}

		ids, err := tx.UnchargedLeads(ctx, c.ID)
		if err != nil {
			return err
		}
		if len(ids) > 0 {
			t, _, err := s.billing.Charge(ctx, tx, billing.Charge{
				UserID:         userID,
				CampaignID:     c.ID,
				Event:          pricing.EventLeadScraped,
				Quantity:       len(ids),
				RelatedID:      c.ID,
				IdempotencyKey: fmt.Sprintf("lead_scraped:%s:%s", c.ID, ids[0]),
				Description:    fmt.Sprintf("Scraped %d leads for campaign %s", len(ids), c.Name),
			})
			switch {
			case errors.Is(err, billing.ErrInsufficientCredits):
				logger.From(ctx).Warn("scrape settlement deferred", "campaign_id", c.ID, "leads", len(ids), "err", err)
				to = campaigns.StatusPaused
			case err != nil:
				return err
			default:
				if err := tx.MarkLeadsCharged(ctx, ids, now); err != nil {
					return err
				}
				if err := tx.BumpCampaign(ctx, c.ID, campaigns.Counters{Spent: t.CreditsUsed}, now); err != nil {
					return err
				}
				out.TotalSpent += t.CreditsUsed
			}
		}

		if err := tx.TransitionCampaign(ctx, c.ID, campaigns.StatusActive, to, now); err != nil {
			return err
		}
		out.Status = to
		return nil
	})
	return out, err
}

// RecoverStuck settles active campaigns whose run started before
// now - olderThan and whose run lock is no longer held.
func (s *Service) RecoverStuck(ctx context.Context, olderThan time.Duration) (int, error) {
	stuck, err := s.store.ListStuckCampaigns(ctx, s.now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	recovered := 0
	for _, c := range stuck {
		if ctx.Err() != nil {
			return recovered, ctx.Err()
		}
		if s.recoverOne(ctx, c) {
			recovered++
		}
	}
	return recovered, nil
}

func (s *Service) recoverOne(ctx context.Context, c campaigns.Campaign) bool {
	log := logger.From(ctx).With("campaign_id", c.ID)
	key := runLockKey(c.ID)
	ok, err := s.lock.Acquire(ctx, key, s.lockTTL)
	if err != nil {
		log.Warn("recovery lock failed", "err", err)
		return false
	}
	if !ok {
		return false
	}
	defer func() { _ = s.lock.Release(context.WithoutCancel(ctx), key) }()

	_, biz, err := s.store.GetCampaign(ctx, c.ID)
	if err != nil {
		log.Warn("recovery lookup failed", "err", err)
		return false
	}
	uncharged, _ := s.store.UnchargedLeads(ctx, c.ID)
	final, err := s.settle(ctx, biz.UserID, c.ID)
	if err != nil {
		log.Error("recovery settlement failed", "err", err)
		return false
	}
	log.Info("stuck campaign settled", "status", final.Status, "uncharged", len(uncharged))
	s.audit.LogRecovery(ctx, biz.UserID, c.ID, len(uncharged))
	return true
}

// Actor identifies who asked for a manual operation, for the audit log.
type Actor struct {
	UserID string
	Role   string
	IP     string
}

// ResetCampaign moves an active or paused campaign back to draft. Leads and
// counters are kept; the next scrape starts again from the first pair.
func (s *Service) ResetCampaign(ctx context.Context, actor Actor, campaignID string) (campaigns.Campaign, error) {
	c, _, err := s.store.GetOwnedCampaign(ctx, actor.UserID, campaignID)
	if err != nil {
		return campaigns.Campaign{}, err
	}
	if !campaigns.Resettable(c.Status) {
		return campaigns.Campaign{}, fmt.Errorf("%w: %s -> %s", campaigns.ErrIllegalTransition, c.Status, campaigns.StatusDraft)
	}
	from := c.Status
	if err := s.store.TransitionCampaign(ctx, c.ID, from, campaigns.StatusDraft, s.now()); err != nil {
		return campaigns.Campaign{}, err
	}
	s.audit.LogCampaignReset(ctx, actor.UserID, actor.Role, actor.IP, c.ID, string(from))
	c, _, err = s.store.GetCampaign(ctx, c.ID)
	return c, err
}
