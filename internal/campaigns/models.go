package campaigns

import (
	"encoding/json"
	"strings"
	"time"
)

// Campaign belongs to a Business. Counters are maintained by the pipeline;
// Status only moves through Transition.
type Campaign struct {
	ID         string `json:"id" db:"id"`
	BusinessID string `json:"business_id" db:"business_id"`
	Name       string `json:"name" db:"name"`

	Status           Status           `json:"status" db:"status"`
	SearchParameters SearchParameters `json:"search_parameters" db:"search_parameters"`

	BudgetLimit      int64 `json:"budget_limit,omitempty" db:"budget_limit"`
	CreditsAllocated int64 `json:"credits_allocated" db:"credits_allocated"`

	LeadsScraped       int   `json:"leads_scraped" db:"leads_scraped"`
	LeadsCalled        int   `json:"leads_called" db:"leads_called"`
	AppointmentsBooked int   `json:"appointments_booked" db:"appointments_booked"`
	TotalSpent         int64 `json:"total_spent" db:"total_spent"`

	// ScrapeCursor is the index of the next location x keyword pair to scrape.
	ScrapeCursor int `json:"scrape_cursor" db:"scrape_cursor"`

	VAPIAssistantID string `json:"vapi_assistant_id,omitempty" db:"vapi_assistant_id"`

	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

type ServiceOption string

const (
	ServiceScraping        ServiceOption = "scraping"
	ServiceScrapingCalling ServiceOption = "scraping_calling"
)

// ScriptDraft is a per-role call script saved by the campaign wizard.
type ScriptDraft struct {
	FirstMessage string `json:"firstMessage,omitempty"`
	SystemPrompt string `json:"systemPrompt,omitempty"`
}

// SearchParameters is the typed form of campaigns.search_parameters.
// Older rows use location/salesTargets/service; the accessors below
// normalise both shapes.
type SearchParameters struct {
	Location      string   `json:"location,omitempty"`
	Locations     []string `json:"locations,omitempty"`
	Keywords      []string `json:"keywords,omitempty"`
	SalesTargets  []string `json:"salesTargets,omitempty"`
	NumberOfLeads int      `json:"numberOfLeads"`

	DecisionMakers []string      `json:"decisionMakers,omitempty"`
	ServiceOption  ServiceOption `json:"serviceOption,omitempty"`
	Service        ServiceOption `json:"service,omitempty"`

	Scripts map[string]ScriptDraft `json:"scripts,omitempty"`

	// Extra keeps wizard fields this service does not interpret.
	Extra map[string]json.RawMessage `json:"-"`
}

const DefaultNumberOfLeads = 100

var knownParamKeys = map[string]struct{}{
	"location": {}, "locations": {}, "keywords": {}, "salesTargets": {}, "numberOfLeads": {},
	"decisionMakers": {}, "serviceOption": {}, "service": {}, "scripts": {},
}

type searchParametersAlias SearchParameters

func (p *SearchParameters) UnmarshalJSON(b []byte) error {
	var a searchParametersAlias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		if _, ok := knownParamKeys[k]; ok {
			continue
		}
		if a.Extra == nil {
			a.Extra = map[string]json.RawMessage{}
		}
		a.Extra[k] = v
	}
	*p = SearchParameters(a)
	return nil
}

func (p SearchParameters) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	for k, v := range p.Extra {
		out[k] = v
	}
	b, err := json.Marshal(searchParametersAlias(p))
	if err != nil {
		return nil, err
	}
	var known map[string]json.RawMessage
	if err := json.Unmarshal(b, &known); err != nil {
		return nil, err
	}
	for k, v := range known {
		out[k] = v
	}
	return json.Marshal(out)
}

// AllLocations merges locations and the single location field, de-duplicated.
func (p SearchParameters) AllLocations() []string {
	return mergeUnique(p.Locations, []string{p.Location})
}

// AllKeywords merges keywords and salesTargets, de-duplicated.
func (p SearchParameters) AllKeywords() []string {
	return mergeUnique(p.Keywords, p.SalesTargets)
}

// Quota is numberOfLeads with the wizard default applied.
func (p SearchParameters) Quota() int {
	if p.NumberOfLeads <= 0 {
		return DefaultNumberOfLeads
	}
	return p.NumberOfLeads
}

// EffectiveService resolves serviceOption, falling back to the legacy service key.
func (p SearchParameters) EffectiveService() ServiceOption {
	if p.ServiceOption != "" {
		return p.ServiceOption
	}
	if p.Service != "" {
		return p.Service
	}
	return ServiceScraping
}

func (p SearchParameters) CallingEnabled() bool {
	return p.EffectiveService() == ServiceScrapingCalling
}

// Pair is one location x keyword scrape unit.
type Pair struct {
	Location string
	Keyword  string
}

// Pairs returns the scrape units in cursor order: locations outer, keywords inner.
func (p SearchParameters) Pairs() []Pair {
	locs, kws := p.AllLocations(), p.AllKeywords()
	out := make([]Pair, 0, len(locs)*len(kws))
	for _, l := range locs {
		for _, k := range kws {
			out = append(out, Pair{Location: l, Keyword: k})
		}
	}
	return out
}

func mergeUnique(a, b []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			k := strings.ToLower(v)
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

// ListFilter narrows campaign listings. Empty fields are ignored.
type ListFilter struct {
	UserID     string
	BusinessID string
	Status     Status
}

// Counters are increments applied to a campaign's running totals.
type Counters struct {
	LeadsCalled        int
	AppointmentsBooked int
	Spent              int64
}
