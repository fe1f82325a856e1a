package pipeline

import (
	"context"
	"fmt"

	"leadgen-platform/internal/billing"
	"leadgen-platform/internal/businesses"
	"leadgen-platform/internal/calls"
	"leadgen-platform/internal/campaigns"
	"leadgen-platform/internal/integrations/vapi"
	"leadgen-platform/internal/leads"
	"leadgen-platform/internal/metrics"
	"leadgen-platform/internal/pricing"
	"leadgen-platform/internal/scripts"
	"leadgen-platform/internal/store"
	"leadgen-platform/pkg/logger"
	"leadgen-platform/pkg/workpool"
)

const (
	CallInitiated = "initiated"
	CallFailed    = "failed"
)

type CallResult struct {
	LeadID string `json:"leadId"`
	CallID string `json:"callId,omitempty"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type CallsResult struct {
	Success        bool         `json:"success"`
	Results        []CallResult `json:"results"`
	CallsInitiated int          `json:"calls_initiated"`
	CallsFailed    int          `json:"calls_failed"`
}

// InitiateCalls dials every eligible lead. Each lead runs a reserve -> place
// saga: the reservation flips the lead to calling and charges the call in one
// transaction, and is compensated with a refund if the call is not placed.
// There is exactly one result per requested id.
func (s *Service) InitiateCalls(ctx context.Context, userID, campaignID string, leadIDs []string) (CallsResult, error) {
	if len(leadIDs) == 0 {
		return CallsResult{}, fmt.Errorf("%w: lead ids are required", ErrInvalidArgument)
	}
	c, biz, err := s.store.GetOwnedCampaign(ctx, userID, campaignID)
	if err != nil {
		return CallsResult{}, err
	}
	if !c.SearchParameters.CallingEnabled() {
		return CallsResult{}, ErrCallingDisabled
	}

	ls, err := s.store.LeadsByIDs(ctx, c.ID, leadIDs)
	if err != nil {
		return CallsResult{}, err
	}
	byID := make(map[string]leads.Lead, len(ls))
	var eligible []leads.Lead
	for _, l := range ls {
		byID[l.ID] = l
		if l.Callable() {
			eligible = append(eligible, l)
		}
	}
	if len(eligible) == 0 {
		return CallsResult{}, ErrNoEligibleLeads
	}

	assistantID, err := s.ensureAssistant(ctx, c, biz)
	if err != nil {
		return CallsResult{}, err
	}

	placed, err := workpool.Map(ctx, s.pool, eligible, func(ctx context.Context, l leads.Lead) CallResult {
		return s.callOne(ctx, userID, c, biz, assistantID, l)
	})
	if err != nil {
		return CallsResult{}, err
	}
	done := make(map[string]CallResult, len(placed))
	for _, r := range placed {
		done[r.LeadID] = r
	}

	res := CallsResult{Success: true, Results: make([]CallResult, 0, len(leadIDs))}
	seen := map[string]struct{}{}
	for _, id := range leadIDs {
		var r CallResult
		_, dup := seen[id]
		seen[id] = struct{}{}
		switch l, ok := byID[id]; {
		case dup:
			r = CallResult{LeadID: id, Status: CallFailed, Error: "Duplicate lead id"}
		case !ok:
			r = CallResult{LeadID: id, Status: CallFailed, Error: "Lead not found"}
		case !l.Callable():
			r = CallResult{LeadID: id, Status: CallFailed, Error: "Lead is not enriched with a phone number"}
		default:
			r = done[id]
		}
		if r.Status == CallInitiated {
			res.CallsInitiated++
		} else {
			res.CallsFailed++
		}
		res.Results = append(res.Results, r)
	}
	return res, nil
}

func (s *Service) ensureAssistant(ctx context.Context, c campaigns.Campaign, biz businesses.Business) (string, error) {
	if c.VAPIAssistantID != "" {
		return c.VAPIAssistantID, nil
	}
	a, err := s.dialer.CreateAssistant(ctx, vapi.Assistant{
		Name:         c.Name + " - " + biz.BusinessName,
		FirstMessage: "Hi, this is " + biz.BusinessName + ".",
	})
	if err != nil {
		return "", fmt.Errorf("create assistant: %w", err)
	}
	if err := s.store.SetAssistantID(ctx, c.ID, a.ID, s.now()); err != nil {
		return "", err
	}
	return a.ID, nil
}

func (s *Service) callOne(ctx context.Context, userID string, c campaigns.Campaign, biz businesses.Business, assistantID string, l leads.Lead) CallResult {
	log := logger.From(ctx).With("lead_id", l.ID, "campaign_id", c.ID)

	var charge billing.Transaction
	var call vapi.Call
	sg := &saga{}
	sg.add("reserve", func(ctx context.Context) error {
		return s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
			if err := tx.TransitionLead(ctx, l.ID, l.Status, leads.StatusCalling, s.now()); err != nil {
				return err
			}
			key, err := nextCallKey(ctx, tx, userID, l.ID)
			if err != nil {
				return err
			}
			t, _, err := s.billing.Charge(ctx, tx, billing.Charge{
				UserID:         userID,
				CampaignID:     c.ID,
				Event:          pricing.EventLeadCalled,
				Quantity:       1,
				RelatedID:      l.ID,
				IdempotencyKey: key,
				Description:    "Call to " + l.BusinessName,
			})
			charge = t
			return err
		})
	}, func(ctx context.Context) error {
		return s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
			if _, _, err := s.billing.Refund(ctx, tx, charge, "call was not placed"); err != nil {
				return err
			}
			return tx.TransitionLead(ctx, l.ID, leads.StatusCalling, l.Status, s.now())
		})
	})
	sg.add("place", func(ctx context.Context) error {
		script, err := scripts.Build(scripts.Input{
			Business:  biz,
			Lead:      l,
			Role:      l.ContactTitle,
			Overrides: c.SearchParameters.Scripts,
		})
		if err != nil {
			return err
		}
		name := l.ContactName
		if name == "" {
			name = l.BusinessName
		}
		overrides := vapi.ScriptPatch(script.FirstMessage, script.SystemPrompt)
		call, err = s.dialer.CreateCall(ctx, vapi.CallRequest{
			AssistantID:        assistantID,
			Customer:           vapi.Customer{Name: name, Email: l.ContactEmail, Number: l.ContactPhone},
			AssistantOverrides: &overrides,
			Metadata: map[string]string{
				"leadId":       l.ID,
				"campaignId":   c.ID,
				"businessName": l.BusinessName,
			},
		})
		return err
	}, nil)

	if err := sg.run(ctx); err != nil {
		log.Warn("call not placed", "err", err)
		metrics.RecordCall(false)
		return CallResult{LeadID: l.ID, Status: CallFailed, Error: err.Error()}
	}
	metrics.RecordCall(true)

	// The call is live from here on; a failed write is logged, not undone.
	now := s.now()
	err := s.store.InTx(context.WithoutCancel(ctx), func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertCallLog(ctx, calls.CallLog{
			ID:         s.newID(),
			LeadID:     l.ID,
			CampaignID: c.ID,
			VAPICallID: call.ID,
			From:       "VAPI",
			To:         l.ContactPhone,
			Outcome:    calls.OutcomeInitiated,
			VAPIData:   call.Raw,
			CreatedAt:  now,
			UpdatedAt:  now,
		}); err != nil {
			return err
		}
		return tx.BumpCampaign(ctx, c.ID, campaigns.Counters{LeadsCalled: 1, Spent: charge.CreditsUsed}, now)
	})
	if err != nil {
		log.Error("record placed call failed", "vapi_call_id", call.ID, "err", err)
	}
	return CallResult{LeadID: l.ID, CallID: call.ID, Status: CallInitiated}
}

// nextCallKey returns lead_called:{lead}:{attempt} for the first attempt
// number with no ledger row yet. Earlier attempts keep their keys even when
// refunded, so a retry after a failed placement is charged again.
func nextCallKey(ctx context.Context, tx billing.LedgerTx, userID, leadID string) (string, error) {
	for attempt := 1; ; attempt++ {
		key := fmt.Sprintf("lead_called:%s:%d", leadID, attempt)
		_, exists, err := tx.FindTransactionByKey(ctx, userID, key)
		if err != nil {
			return "", err
		}
		if !exists {
			return key, nil
		}
	}
}
