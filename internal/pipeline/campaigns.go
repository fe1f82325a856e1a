package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"leadgen-platform/internal/businesses"
	"leadgen-platform/internal/campaigns"
	"leadgen-platform/internal/pricing"
)

// CreateCampaignRequest is the campaign wizard payload. Top-level wizard
// fields are folded into the search parameters; explicit searchParameters
// keys win.
type CreateCampaignRequest struct {
	BusinessID       string                           `json:"businessId"`
	Name             string                           `json:"name"`
	Location         string                           `json:"location"`
	NumberOfLeads    int                              `json:"numberOfLeads"`
	Service          campaigns.ServiceOption          `json:"service"`
	SalesTargets     []string                         `json:"salesTargets"`
	DecisionMakers   []string                         `json:"decisionMakers"`
	SalesScripts     map[string]campaigns.ScriptDraft `json:"salesScripts"`
	SearchParameters json.RawMessage                  `json:"searchParameters"`
	BudgetLimit      int64                            `json:"budgetLimit"`
}

// scrapingBudgetPerLead is the default budget for scrape-only campaigns.
const scrapingBudgetPerLead = 4

// CreateCampaign stores a new draft campaign for the given business, or for
// the user's most recent active business when none is named.
func (s *Service) CreateCampaign(ctx context.Context, userID string, req CreateCampaignRequest) (campaigns.Campaign, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return campaigns.Campaign{}, fmt.Errorf("%w: name is required", ErrInvalidArgument)
	}

	var (
		biz businesses.Business
		err error
	)
	if req.BusinessID != "" {
		biz, err = s.store.GetBusiness(ctx, userID, req.BusinessID)
	} else {
		biz, err = s.store.ActiveBusiness(ctx, userID)
	}
	if err != nil {
		return campaigns.Campaign{}, err
	}

	params := campaigns.SearchParameters{
		Location:       req.Location,
		NumberOfLeads:  req.NumberOfLeads,
		SalesTargets:   req.SalesTargets,
		DecisionMakers: req.DecisionMakers,
		Service:        req.Service,
		Scripts:        req.SalesScripts,
	}
	if len(req.SearchParameters) > 0 && string(req.SearchParameters) != "null" {
		var explicit campaigns.SearchParameters
		if err := json.Unmarshal(req.SearchParameters, &explicit); err != nil {
			return campaigns.Campaign{}, fmt.Errorf("%w: searchParameters: %v", ErrInvalidArgument, err)
		}
		params = overlay(params, explicit, req.SearchParameters)
	}
	if params.NumberOfLeads <= 0 {
		params.NumberOfLeads = campaigns.DefaultNumberOfLeads
	}
	if len(params.Pairs()) == 0 {
		return campaigns.Campaign{}, fmt.Errorf("%w: at least one location and one sales target are required", ErrInvalidArgument)
	}

	budget := req.BudgetLimit
	if budget <= 0 && params.EffectiveService() == campaigns.ServiceScraping {
		budget = int64(params.Quota()) * scrapingBudgetPerLead
	}

	now := s.now()
	c := campaigns.Campaign{
		ID:               s.newID(),
		BusinessID:       biz.ID,
		Name:             name,
		Status:           campaigns.StatusDraft,
		SearchParameters: params,
		BudgetLimit:      budget,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.InsertCampaign(ctx, c); err != nil {
		return campaigns.Campaign{}, err
	}
	return c, nil
}

// overlay copies every key present in raw from explicit onto base.
func overlay(base, explicit campaigns.SearchParameters, raw json.RawMessage) campaigns.SearchParameters {
	var keys map[string]json.RawMessage
	_ = json.Unmarshal(raw, &keys)
	has := func(k string) bool { _, ok := keys[k]; return ok }

	if has("location") {
		base.Location = explicit.Location
	}
	if has("locations") {
		base.Locations = explicit.Locations
	}
	if has("keywords") {
		base.Keywords = explicit.Keywords
	}
	if has("salesTargets") {
		base.SalesTargets = explicit.SalesTargets
	}
	if has("numberOfLeads") {
		base.NumberOfLeads = explicit.NumberOfLeads
	}
	if has("decisionMakers") {
		base.DecisionMakers = explicit.DecisionMakers
	}
	if has("serviceOption") {
		base.ServiceOption = explicit.ServiceOption
	}
	if has("service") {
		base.Service = explicit.Service
	}
	if has("scripts") {
		base.Scripts = explicit.Scripts
	}
	base.Extra = explicit.Extra
	return base
}

func (s *Service) ListCampaigns(ctx context.Context, f campaigns.ListFilter) ([]campaigns.Campaign, error) {
	return s.store.ListCampaigns(ctx, f)
}

func (s *Service) GetCampaign(ctx context.Context, userID, id string) (campaigns.Campaign, error) {
	c, _, err := s.store.GetOwnedCampaign(ctx, userID, id)
	return c, err
}

// ScrapeEstimate is the credit cost of filling the rest of the campaign's
// lead quota.
func (s *Service) ScrapeEstimate(ctx context.Context, userID, campaignID string) (int64, error) {
	c, _, err := s.store.GetOwnedCampaign(ctx, userID, campaignID)
	if err != nil {
		return 0, err
	}
	remaining := c.SearchParameters.Quota() - c.LeadsScraped
	if remaining <= 0 {
		return 0, nil
	}
	return s.billing.Estimate(pricing.EventLeadScraped, remaining)
}
