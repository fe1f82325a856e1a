// Package validator scores scraped businesses against a campaign's target
// criteria with an LLM.
package validator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"leadgen-platform/internal/integrations/gemini"
	"leadgen-platform/internal/leads"
	"leadgen-platform/pkg/logger"
	"leadgen-platform/pkg/workpool"
)

// QualifyThreshold is the minimum relevance score a lead needs to be kept.
const QualifyThreshold = 60

type Recommendation string

const (
	Qualify    Recommendation = "QUALIFY"
	Nurture    Recommendation = "NURTURE"
	Disqualify Recommendation = "DISQUALIFY"
)

// Result is stored verbatim in leads.validation_data.
type Result struct {
	RelevanceScore       int            `json:"relevance_score"`
	Reasoning            string         `json:"reasoning"`
	PotentialNeeds       []string       `json:"potential_needs"`
	EstimatedCompanySize string         `json:"estimated_company_size"`
	Recommendation       Recommendation `json:"recommendation"`
}

func Qualifies(r Result) bool {
	return r.RelevanceScore >= QualifyThreshold
}

func failed() Result {
	return Result{Reasoning: "Analysis failed", PotentialNeeds: []string{}, EstimatedCompanySize: "unknown", Recommendation: Disqualify}
}

func unparseable() Result {
	return Result{Reasoning: "Unable to parse model response", PotentialNeeds: []string{}, EstimatedCompanySize: "unknown", Recommendation: Disqualify}
}

func neutral() Result {
	return Result{RelevanceScore: 50, Reasoning: "Unable to fully analyze", PotentialNeeds: []string{}, EstimatedCompanySize: "unknown", Recommendation: Nurture}
}

type Validator struct {
	gen   gemini.Generator
	model string
	pool  *workpool.Pool
}

// New returns a validator using model on gen. pool bounds batch concurrency;
// nil uses a 5-wide pool without rate limiting.
func New(gen gemini.Generator, model string, pool *workpool.Pool) *Validator {
	if pool == nil {
		pool = workpool.New(workpool.DefaultWidth, 0, 0)
	}
	return &Validator{gen: gen, model: model, pool: pool}
}

// Validate never fails: model and parse errors map to fixed fallbacks.
func (v *Validator) Validate(ctx context.Context, l leads.Lead, criteria json.RawMessage, ourBusiness string) Result {
	text, err := v.gen.Generate(ctx, v.model, buildPrompt(l, criteria, ourBusiness))
	if err != nil {
		logger.From(ctx).Warn("lead validation failed", "business", l.BusinessName, "err", err)
		return failed()
	}
	return Parse(text)
}

// ValidateBatch validates items on the pool; results keep input order.
func (v *Validator) ValidateBatch(ctx context.Context, items []leads.Lead, criteria json.RawMessage, ourBusiness string) ([]Result, error) {
	return workpool.Map(ctx, v.pool, items, func(ctx context.Context, l leads.Lead) Result {
		return v.Validate(ctx, l, criteria, ourBusiness)
	})
}

var jsonObject = regexp.MustCompile(`\{[\s\S]*\}`)

// Parse extracts the first-to-last brace span from text and decodes it.
// Text without any object gets the neutral result; an object that does not
// decode or has no usable score is rejected outright.
func Parse(text string) Result {
	m := jsonObject.FindString(text)
	if m == "" {
		return neutral()
	}

	var raw struct {
		RelevanceScore       any      `json:"relevance_score"`
		Reasoning            string   `json:"reasoning"`
		PotentialNeeds       []string `json:"potential_needs"`
		EstimatedCompanySize string   `json:"estimated_company_size"`
		Recommendation       string   `json:"recommendation"`
	}
	if err := json.Unmarshal([]byte(m), &raw); err != nil {
		return unparseable()
	}
	score, ok := toScore(raw.RelevanceScore)
	if !ok {
		return unparseable()
	}

	r := Result{
		RelevanceScore:       score,
		Reasoning:            raw.Reasoning,
		PotentialNeeds:       raw.PotentialNeeds,
		EstimatedCompanySize: strings.ToLower(strings.TrimSpace(raw.EstimatedCompanySize)),
		Recommendation:       normalizeRecommendation(raw.Recommendation, score),
	}
	if r.PotentialNeeds == nil {
		r.PotentialNeeds = []string{}
	}
	if r.EstimatedCompanySize == "" {
		r.EstimatedCompanySize = "unknown"
	}
	return r
}

func toScore(v any) (int, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return int(math.Round(math.Max(0, math.Min(100, f)))), true
}

func normalizeRecommendation(s string, score int) Recommendation {
	switch r := Recommendation(strings.ToUpper(strings.TrimSpace(s))); r {
	case Qualify, Nurture, Disqualify:
		return r
	}
	switch {
	case score >= QualifyThreshold:
		return Qualify
	case score >= 40:
		return Nurture
	default:
		return Disqualify
	}
}

func buildPrompt(l leads.Lead, criteria json.RawMessage, ourBusiness string) string {
	var crit bytes.Buffer
	if len(criteria) == 0 || json.Indent(&crit, criteria, "    ", "  ") != nil {
		crit.Reset()
		crit.WriteString("{}")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Analyze if this business is a good fit for %s's services.\n\n", ourBusiness)
	b.WriteString("Business to Analyze:\n")
	fmt.Fprintf(&b, "- Name: %s\n", l.BusinessName)
	fmt.Fprintf(&b, "- Category: %s\n", l.Category)
	fmt.Fprintf(&b, "- Address: %s\n", l.Address)
	fmt.Fprintf(&b, "- Rating: %g\n", l.Rating)
	fmt.Fprintf(&b, "- Reviews: %d\n\n", l.ReviewsCount)
	b.WriteString("Target Criteria:\n    ")
	b.Write(crit.Bytes())
	b.WriteString("\n\nPlease provide a JSON response with:\n")
	b.WriteString(`{
  "relevance_score": 0-100,
  "reasoning": "Brief explanation",
  "potential_needs": ["need1", "need2"],
  "estimated_company_size": "small/medium/large",
  "recommendation": "QUALIFY/NURTURE/DISQUALIFY"
}`)
	return b.String()
}
