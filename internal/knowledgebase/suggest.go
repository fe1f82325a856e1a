package knowledgebase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"leadgen-platform/internal/businesses"
	"leadgen-platform/pkg/logger"
)

type SuggestionType string

const (
	SuggestSalesTargets   SuggestionType = "sales_targets"
	SuggestDecisionMakers SuggestionType = "decision_makers"
)

type ListSuggestRequest struct {
	Type            SuggestionType           `json:"type"`
	Location        string                   `json:"location"`
	BusinessContext businesses.KnowledgeBase `json:"businessContext"`
}

const listPrompt = `You are helping a B2B company plan an outbound campaign.

Business: %s
Industry: %s
Description: %s
Value proposition: %s
Location: %s

List %s. Return ONLY a JSON array of 5 to 8 short strings.`

// SuggestList proposes sales targets or decision-maker titles. When the
// model fails or does not return a JSON array, the knowledge base's own
// customers and decision makers are used, then an industry keyword list.
func (s *Service) SuggestList(ctx context.Context, req ListSuggestRequest) ([]string, error) {
	var ask string
	switch req.Type {
	case SuggestSalesTargets:
		ask = "the types of businesses most likely to buy, phrased as Google Maps search terms"
	case SuggestDecisionMakers:
		ask = "the job titles of the people who decide to buy"
	default:
		return nil, fmt.Errorf("%w: unknown suggestion type %q", ErrInvalidArgument, req.Type)
	}

	kb := req.BusinessContext
	location := req.Location
	if location == "" {
		location = "not specified"
	}
	prompt := fmt.Sprintf(listPrompt, kb.BusinessName, kb.Industry, kb.Description, kb.ValueProposition, location, ask)

	out, err := s.gen.Generate(ctx, s.model, prompt)
	if err == nil {
		var list []string
		if derr := decodeArray(out, &list); derr == nil {
			if list = compact(list); len(list) > 0 {
				return list, nil
			}
		}
		logger.From(ctx).Warn("suggestion output not a JSON list, using fallback", "type", req.Type)
	} else {
		logger.From(ctx).Warn("suggestion call failed, using fallback", "type", req.Type, "err", err)
	}
	return fallbackSuggestions(req.Type, kb), nil
}

func compact(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func fallbackSuggestions(t SuggestionType, kb businesses.KnowledgeBase) []string {
	if t == SuggestDecisionMakers {
		if titles := kb.DecisionMakerTitles(); len(titles) > 0 {
			return titles
		}
	} else {
		var out []string
		for _, c := range kb.TargetCustomers {
			switch {
			case c.Type != "":
				out = append(out, c.Type)
			case c.Description != "":
				out = append(out, c.Description)
			}
		}
		if len(out) > 0 {
			return out
		}
	}

	industry := strings.ToLower(kb.Industry)
	desc := strings.ToLower(kb.Description)
	has := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(industry, w) || strings.Contains(desc, w) {
				return true
			}
		}
		return false
	}

	switch {
	case has("health", "medical"):
		if t == SuggestDecisionMakers {
			return []string{"Founder", "Chief Executive Officer (CEO)", "Managing Partner", "Chief Operating Officer (COO)",
				"Chief Medical Officer (CMO)", "Chief Financial Officer (CFO)", "Medical Director", "Clinical Director",
				"Practice Manager", "Clinic Administrator", "Clinic Coordinator", "Managing Director"}
		}
		return []string{"Weight Loss Clinics", "Hormone Therapy Clinics (HRT/TRT)", "MedSpas", "Longevity & Anti-Aging Clinics", "Dermatology Practices"}
	case has("tech", "software"):
		if t == SuggestDecisionMakers {
			return []string{"Chief Technology Officer (CTO)", "Chief Executive Officer (CEO)", "Founder", "Head of Engineering",
				"VP of Product", "Chief Product Officer (CPO)", "Head of Operations", "Chief Operating Officer (COO)"}
		}
		return []string{"SaaS Companies", "Software Development Agencies", "Tech Startups", "E-commerce Platforms", "Digital Marketing Agencies"}
	case has("finance", "financial") && t == SuggestSalesTargets:
		return []string{"Accounting Firms", "Financial Advisory Services", "Insurance Agencies", "Investment Management Companies", "Credit Unions"}
	}
	if t == SuggestDecisionMakers {
		return []string{"Chief Executive Officer (CEO)", "Founder", "Chief Operating Officer (COO)", "Chief Financial Officer (CFO)",
			"Managing Director", "General Manager", "Operations Manager", "Business Development Manager"}
	}
	return []string{"Small Businesses", "Mid-Market Companies", "Professional Services", "Retail Businesses", "Manufacturing Companies"}
}

// AnswerSuggestRequest asks for a draft answer to one discovery question.
type AnswerSuggestRequest struct {
	QuestionID       string          `json:"questionId"`
	Question         string          `json:"question"`
	BusinessAnalysis json.RawMessage `json:"businessAnalysis"`
}

type analysisSummary struct {
	BusinessName         string          `json:"businessName"`
	Description          string          `json:"description"`
	ValueProposition     string          `json:"valueProposition"`
	Industry             string          `json:"industry"`
	TargetMarkets        json.RawMessage `json:"targetMarkets"`
	DecisionMakerRoles   json.RawMessage `json:"decisionMakerRoles"`
	CompetitiveAdvantage string          `json:"competitiveAdvantage"`
}

const answerPrompt = `Based on the business analysis provided, generate a specific and actionable answer for the discovery question.

Business Analysis:
- Business Name: %s
- Description: %s
- Value Proposition: %s
- Industry: %s
- Target Markets: %s
- Decision Maker Roles: %s
- Competitive Advantage: %s

Discovery Question: %s
Question ID: %s

Instructions:
- Provide a specific, actionable answer based on the business analysis
- Include numbers, percentages, or concrete examples where possible
- Keep the answer realistic, concise and grounded in the business context
- For objections, list 3-5 common objections with responses
- For success stories, write a realistic example from the industry
- For target audience, be specific about company size, revenue and roles

Return only the suggested answer, no additional formatting or explanation.`

func (s *Service) SuggestAnswer(ctx context.Context, req AnswerSuggestRequest) (string, error) {
	if req.QuestionID == "" || req.Question == "" || len(req.BusinessAnalysis) == 0 || string(req.BusinessAnalysis) == "null" {
		return "", fmt.Errorf("%w: Missing required fields", ErrInvalidArgument)
	}
	var a analysisSummary
	if err := json.Unmarshal(req.BusinessAnalysis, &a); err != nil {
		return "", fmt.Errorf("%w: businessAnalysis must be an object", ErrInvalidArgument)
	}
	prompt := fmt.Sprintf(answerPrompt,
		a.BusinessName, a.Description, a.ValueProposition, a.Industry,
		rawOrEmpty(a.TargetMarkets), rawOrEmpty(a.DecisionMakerRoles), a.CompetitiveAdvantage,
		req.Question, req.QuestionID,
	)
	out, err := s.gen.Generate(ctx, s.model, prompt)
	if err != nil {
		return "", fmt.Errorf("suggest answer: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func rawOrEmpty(b json.RawMessage) string {
	if len(b) == 0 {
		return "[]"
	}
	return string(b)
}
