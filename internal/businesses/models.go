// Package businesses holds the Business row and the knowledge-base shapes
// derived from website analysis and discovery answers.
package businesses

import (
	"encoding/json"
	"errors"
	"time"
)

var ErrNotFound = errors.New("business not found")

type Business struct {
	ID               string `json:"id" db:"id"`
	UserID           string `json:"user_id" db:"user_id"`
	WebsiteURL       string `json:"website_url" db:"website_url"`
	BusinessName     string `json:"business_name" db:"business_name"`
	Description      string `json:"description,omitempty" db:"description"`
	ValueProposition string `json:"value_proposition,omitempty" db:"value_proposition"`
	Industry         string `json:"industry,omitempty" db:"industry"`

	TargetMarkets      json.RawMessage  `json:"target_markets,omitempty" db:"target_markets"`
	DecisionMakerRoles []DecisionMaker  `json:"decision_maker_roles,omitempty" db:"decision_maker_roles"`
	AnalysisData       KnowledgeBase    `json:"analysis_data" db:"analysis_data"`
	DiscoveryAnswers   DiscoveryAnswers `json:"discovery_answers" db:"discovery_answers"`
	Metadata           json.RawMessage  `json:"business_metadata,omitempty" db:"business_metadata"`

	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// KnowledgeBase is the structured profile extracted from a website.
type KnowledgeBase struct {
	BusinessName         string           `json:"businessName"`
	Description          string           `json:"description,omitempty"`
	ValueProposition     string           `json:"valueProposition,omitempty"`
	Industry             string           `json:"industry,omitempty"`
	BusinessModel        string           `json:"businessModel,omitempty"`
	CompanySize          string           `json:"companySize,omitempty"`
	Services             []string         `json:"services,omitempty"`
	TargetMarkets        json.RawMessage  `json:"targetMarkets,omitempty"`
	TargetCustomers      []TargetCustomer `json:"targetCustomers,omitempty"`
	CompetitiveAdvantage string           `json:"competitiveAdvantage,omitempty"`
	KeyFeatures          []string         `json:"keyFeatures,omitempty"`
	PricingModel         string           `json:"pricingModel,omitempty"`
	GeographicFocus      string           `json:"geographicFocus,omitempty"`
	KeyDifferentiators   []string         `json:"keyDifferentiators,omitempty"`
	TargetDecisionMakers []DecisionMaker  `json:"targetDecisionMakers,omitempty"`
	IdealCustomerProfile json.RawMessage  `json:"idealCustomerProfile,omitempty"`
}

type TargetCustomer struct {
	Type              string   `json:"type,omitempty"`
	Description       string   `json:"description,omitempty"`
	PainPoints        []string `json:"painPoints,omitempty"`
	BuyingMotivations []string `json:"buyingMotivations,omitempty"`
}

type DecisionMaker struct {
	Title              string   `json:"title"`
	Department         string   `json:"department,omitempty"`
	PainPoints         []string `json:"painPoints,omitempty"`
	Priorities         []string `json:"priorities,omitempty"`
	CommunicationStyle string   `json:"communicationStyle,omitempty"`
}

// DiscoveryAnswers are the seven guided answers that seed call scripts.
type DiscoveryAnswers struct {
	MeasurableOutcome     string `json:"measurable_outcome,omitempty"`
	TargetAudience        string `json:"target_audience,omitempty"`
	KeyDifferentiator     string `json:"key_differentiator,omitempty"`
	TopObjections         string `json:"top_objections,omitempty"`
	UrgencyFactors        string `json:"urgency_factors,omitempty"`
	SuccessStory          string `json:"success_story,omitempty"`
	QualificationCriteria string `json:"qualification_criteria,omitempty"`
}

// DiscoveryQuestionIDs lists the answer keys in onboarding order.
var DiscoveryQuestionIDs = []string{
	"measurable_outcome",
	"target_audience",
	"key_differentiator",
	"top_objections",
	"urgency_factors",
	"success_story",
	"qualification_criteria",
}

func (d DiscoveryAnswers) Empty() bool {
	return d == DiscoveryAnswers{}
}

// DecisionMakerTitles returns the non-empty titles in order.
func (kb KnowledgeBase) DecisionMakerTitles() []string {
	var out []string
	for _, dm := range kb.TargetDecisionMakers {
		if dm.Title != "" {
			out = append(out, dm.Title)
		}
	}
	return out
}

// TargetCriteria is what the lead validator scores against: the ideal
// customer profile when the analysis produced one, otherwise a summary of
// industry and target customers.
func (b Business) TargetCriteria() json.RawMessage {
	if icp := b.AnalysisData.IdealCustomerProfile; len(icp) > 0 && string(icp) != "null" && string(icp) != "{}" {
		return icp
	}
	industry := b.AnalysisData.Industry
	if industry == "" {
		industry = b.Industry
	}
	markets := b.AnalysisData.TargetMarkets
	if len(markets) == 0 {
		markets = b.TargetMarkets
	}
	out, _ := json.Marshal(struct {
		Industry        string           `json:"industry,omitempty"`
		TargetCustomers []TargetCustomer `json:"targetCustomers,omitempty"`
		TargetMarkets   json.RawMessage  `json:"targetMarkets,omitempty"`
	}{industry, b.AnalysisData.TargetCustomers, markets})
	return out
}

// DecisionMakerTitles prefers the analysed roles, then the stored column.
func (b Business) DecisionMakerTitles() []string {
	if t := b.AnalysisData.DecisionMakerTitles(); len(t) > 0 {
		return t
	}
	var out []string
	for _, dm := range b.DecisionMakerRoles {
		if dm.Title != "" {
			out = append(out, dm.Title)
		}
	}
	return out
}

// Merged is the knowledge base as returned to clients: analysis fields,
// discovery answers and business metadata in one object.
type Merged struct {
	KnowledgeBase
	DiscoveryAnswers DiscoveryAnswers `json:"discoveryAnswers"`
	BusinessMetadata Metadata         `json:"businessMetadata"`
}

type Metadata struct {
	BusinessID string    `json:"businessId"`
	UserID     string    `json:"userId"`
	WebsiteURL string    `json:"websiteUrl"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	IsActive   bool      `json:"isActive"`
}

func (b Business) Merged() Merged {
	return Merged{
		KnowledgeBase:    b.AnalysisData,
		DiscoveryAnswers: b.DiscoveryAnswers,
		BusinessMetadata: Metadata{
			BusinessID: b.ID,
			UserID:     b.UserID,
			WebsiteURL: b.WebsiteURL,
			CreatedAt:  b.CreatedAt,
			UpdatedAt:  b.UpdatedAt,
			IsActive:   b.IsActive,
		},
	}
}

// FromKnowledgeBase builds a new active business row for a user.
func FromKnowledgeBase(id, userID, websiteURL string, kb KnowledgeBase, answers DiscoveryAnswers, now time.Time) Business {
	return Business{
		ID:                 id,
		UserID:             userID,
		WebsiteURL:         websiteURL,
		BusinessName:       kb.BusinessName,
		Description:        kb.Description,
		ValueProposition:   kb.ValueProposition,
		Industry:           kb.Industry,
		TargetMarkets:      kb.TargetMarkets,
		DecisionMakerRoles: kb.TargetDecisionMakers,
		AnalysisData:       kb,
		DiscoveryAnswers:   answers,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Migration records a draft turned into a business. Token is generated by
// the client and makes the migration exactly-once.
type Migration struct {
	Token      string    `json:"token" db:"token"`
	UserID     string    `json:"user_id" db:"user_id"`
	BusinessID string    `json:"business_id" db:"business_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
