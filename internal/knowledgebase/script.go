package knowledgebase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"leadgen-platform/internal/businesses"
	"leadgen-platform/pkg/logger"
)

const defaultGuidelines = "Use professional sales script best practices focusing on value proposition, discovery questions, objection handling, and clear next steps."

type ScriptRequest struct {
	BusinessData  *businesses.KnowledgeBase `json:"businessData"`
	DecisionMaker string                    `json:"decisionMaker"`
	SalesTargets  []string                  `json:"salesTargets"`
	Location      string                    `json:"location"`
	BusinessID    string                    `json:"businessId"`
}

type Script struct {
	FirstMessage string `json:"firstMessage"`
	SystemPrompt string `json:"systemPrompt"`
}

const scriptPrompt = `You are an expert sales script writer. Create a professional cold calling script using the sales guidelines and business knowledge base below.

SALES SCRIPT GUIDELINES:
%s

BUSINESS KNOWLEDGE BASE:
%s

CAMPAIGN CONTEXT:
- Target Decision Maker: %s
- Target Industries: %s
- Target Location: %s

Tailor the script to the %s role using their pain points and priorities. Reference the company's competitive advantages and key differentiators, use industry-specific language and create urgency from the cost of inaction.

Generate TWO parts:
1. firstMessage: the opening that earns permission to continue
2. systemPrompt: the full conversation guide with discovery, objection handling and closing

Format as JSON:
{"firstMessage": "...", "systemPrompt": "..."}

RESPOND ONLY WITH VALID JSON. No explanations or markdown.`

// GenerateScript writes an opening line and a conversation guide for one
// decision maker. The stored analysis of businessId, when owned by the
// user, replaces the posted business data. Unparseable model output falls
// back to a fixed template.
func (s *Service) GenerateScript(ctx context.Context, userID string, req ScriptRequest) (Script, error) {
	if req.BusinessData == nil || strings.TrimSpace(req.DecisionMaker) == "" {
		return Script{}, fmt.Errorf("%w: Missing required data", ErrInvalidArgument)
	}
	kb := *req.BusinessData
	if req.BusinessID != "" {
		b, err := s.store.GetBusiness(ctx, userID, req.BusinessID)
		switch {
		case err == nil && b.AnalysisData.BusinessName != "":
			kb = b.AnalysisData
		case err != nil:
			logger.From(ctx).Debug("script business lookup failed", "business_id", req.BusinessID, "err", err)
		}
	}

	kbJSON, err := json.MarshalIndent(kb, "", "  ")
	if err != nil {
		return Script{}, err
	}
	targets := "Not specified"
	if len(req.SalesTargets) > 0 {
		targets = strings.Join(req.SalesTargets, ", ")
	}
	location := req.Location
	if location == "" {
		location = "Not specified"
	}
	prompt := fmt.Sprintf(scriptPrompt, defaultGuidelines, kbJSON, req.DecisionMaker, targets, location, req.DecisionMaker)

	out, err := s.gen.Generate(ctx, s.model, prompt)
	if err != nil {
		return Script{}, fmt.Errorf("generate script: %w", err)
	}
	var sc Script
	if err := decodeObject(out, &sc); err != nil || sc.FirstMessage == "" || sc.SystemPrompt == "" {
		logger.From(ctx).Warn("script output not parseable, using template", "err", err)
		return fallbackScript(kb, *req.BusinessData, req)
	}
	return sc, nil
}

var fallbackPrompt = template.Must(template.New("script").Parse(
	`You are calling a {{.DecisionMaker}} at a {{.Industry}} company in {{.Location}}. Your goal is to book a 15-minute discovery call to discuss how {{.Company}} can help them with {{.ValueProposition}}.

Key talking points:
- Competitive advantage: {{.Advantage}}
- Target pain points: {{.PainPoints}}
- Key features: {{.Features}}

Discovery questions to ask:
1. How are you currently handling [relevant process]?
2. What's the biggest challenge with your current approach?
3. How does that impact your [department/goals]?
4. What would an ideal solution look like for you?

Handle objections professionally:
- "Not interested": "I understand, but what if I could show you how we helped [similar company] achieve [specific result]?"
- "Send me info": "I could send information, but what if I took just 30 seconds to explain the key point that's relevant to your situation?"
- "No budget": "That's exactly why this might be valuable. What's the cost of continuing with your current approach?"

Close with: "Based on what you've shared, I think a brief 15-minute call would be valuable. I have [day] at [time] or [day] at [time], which works better for you?"`))

func fallbackScript(kb, posted businesses.KnowledgeBase, req ScriptRequest) (Script, error) {
	pick := func(vals ...string) string {
		for _, v := range vals {
			if strings.TrimSpace(v) != "" {
				return v
			}
		}
		return ""
	}
	company := pick(kb.BusinessName, posted.BusinessName, "our company")
	vp := pick(kb.ValueProposition, posted.ValueProposition, "improve business operations")
	industry := "businesses"
	if len(req.SalesTargets) > 0 && req.SalesTargets[0] != "" {
		industry = req.SalesTargets[0]
	}
	painPoints := "operational efficiency and cost reduction"
	for _, dm := range kb.TargetDecisionMakers {
		if dm.Title == req.DecisionMaker && len(dm.PainPoints) > 0 {
			painPoints = strings.Join(dm.PainPoints, ", ")
			break
		}
	}
	features := "proven solutions"
	if len(kb.KeyFeatures) > 0 {
		features = strings.Join(kb.KeyFeatures, ", ")
	}

	var b strings.Builder
	err := fallbackPrompt.Execute(&b, map[string]string{
		"DecisionMaker":    req.DecisionMaker,
		"Industry":         industry,
		"Location":         pick(req.Location, "their area"),
		"Company":          company,
		"ValueProposition": vp,
		"Advantage":        pick(kb.CompetitiveAdvantage, posted.CompetitiveAdvantage, "quality service and expertise"),
		"PainPoints":       painPoints,
		"Features":         features,
	})
	if err != nil {
		return Script{}, err
	}
	return Script{
		FirstMessage: fmt.Sprintf("Hi [Name], this is [Your Name] from %s. I know I'm calling out of the blue, but we help %ss at %s companies %s. Do you have 30 seconds for me to explain why I called?",
			company, req.DecisionMaker, industry, strings.ToLower(vp)),
		SystemPrompt: b.String(),
	}, nil
}
