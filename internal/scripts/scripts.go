// Package scripts builds the per-lead call script: an opening line chosen
// from the lead's profile and a system prompt rendered from the business's
// discovery answers.
package scripts

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"leadgen-platform/internal/businesses"
	"leadgen-platform/internal/campaigns"
	"leadgen-platform/internal/leads"
)

type Opening string

const (
	ResearchBased         Opening = "research_based"
	CompetitorSocialProof Opening = "competitor_social_proof"
	PatternInterrupt      Opening = "pattern_interrupt"
	HonestDirect          Opening = "honest_direct"
)

// SelectOpening picks the opening style for a lead.
func SelectOpening(l leads.Lead) Opening {
	switch {
	case l.Rating >= 4.5 || l.ReviewsCount > 50:
		return ResearchBased
	case l.ValidationScore >= 80:
		return CompetitorSocialProof
	case l.ValidationScore >= 60:
		return PatternInterrupt
	default:
		return HonestDirect
	}
}

type Script struct {
	Opening      Opening `json:"opening"`
	FirstMessage string  `json:"firstMessage"`
	SystemPrompt string  `json:"systemPrompt"`
}

// Input is everything a script is built from. Role is the decision-maker
// title being called; Overrides are the campaign's saved per-role drafts.
type Input struct {
	Business  businesses.Business
	Lead      leads.Lead
	Role      string
	AgentName string
	Overrides map[string]campaigns.ScriptDraft
}

// Build renders the script. A saved draft for the role replaces the
// generated first message or system prompt field by field.
func Build(in Input) (Script, error) {
	s := Script{Opening: SelectOpening(in.Lead)}
	s.FirstMessage = firstMessage(s.Opening, in)

	prompt, err := systemPrompt(in)
	if err != nil {
		return Script{}, err
	}
	s.SystemPrompt = prompt

	if d, ok := lookupDraft(in.Overrides, in.Role, in.Lead.ContactTitle); ok {
		if d.FirstMessage != "" {
			s.FirstMessage = d.FirstMessage
		}
		if d.SystemPrompt != "" {
			s.SystemPrompt = d.SystemPrompt
		}
	}
	return s, nil
}

func lookupDraft(drafts map[string]campaigns.ScriptDraft, keys ...string) (campaigns.ScriptDraft, bool) {
	for _, k := range keys {
		if k == "" {
			continue
		}
		for role, d := range drafts {
			if strings.EqualFold(role, k) {
				return d, true
			}
		}
	}
	return campaigns.ScriptDraft{}, false
}

func firstName(full string) string {
	if f := strings.Fields(full); len(f) > 0 {
		return f[0]
	}
	return "there"
}

func firstMessage(o Opening, in Input) string {
	l, d := in.Lead, in.Business.DiscoveryAnswers
	name := firstName(l.ContactName)
	biz := in.Business.BusinessName

	switch o {
	case ResearchBased:
		standing := "been growing in the area"
		if l.Rating > 0 {
			standing = fmt.Sprintf("an impressive %g star rating", l.Rating)
		}
		agent := in.AgentName
		if agent == "" {
			agent = "calling"
		}
		return fmt.Sprintf("Hi %s, I saw your business %s has %s. Your focus on %s caught my attention. I'm %s from %s, and that's exactly why I'm reaching out.",
			name, l.BusinessName, standing, l.Category, agent, biz)
	case CompetitorSocialProof:
		agent := in.AgentName
		if agent == "" {
			agent = "this is"
		}
		outcome := or(d.MeasurableOutcome, "achieve significant results")
		return fmt.Sprintf("Hi %s, %s from %s. We recently helped a %s business similar to %s %s. Given you're in the same space, I thought this might be relevant to you. Got a minute?",
			name, agent, biz, l.Category, l.BusinessName, outcome)
	case PatternInterrupt:
		return fmt.Sprintf("Hi %s, I know I'm calling out of the blue. I'll be brief. %s. Do you have 30 seconds for me to explain why I called?",
			name, compellingStatement(d, l))
	default:
		return fmt.Sprintf("Hi %s, this is a cold call. Do you want to hang up, or can I have 30 seconds to tell you why I called?", name)
	}
}

func compellingStatement(d businesses.DiscoveryAnswers, l leads.Lead) string {
	if d.MeasurableOutcome != "" {
		return d.MeasurableOutcome
	}
	if l.Category != "" {
		return fmt.Sprintf("Most %s businesses are losing money on %s", l.Category, or(d.UrgencyFactors, "inefficiencies"))
	}
	return "There's a new way to " + or(d.KeyDifferentiator, "solve your biggest challenge")
}

func or(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

const defaultObjections = `- "We already have a solution" -> "I completely understand. Most of our clients said the same initially. On a scale of 1-10, how would you rate your current solution?"
- "No budget" -> "I understand budget is critical. Is addressing this problem a priority this year, just not funded yet? Often our solution pays for itself through specific savings."
- "Not a priority right now" -> "I get it, you have competing priorities. Where does solving this problem rank on your list?"`

var promptTmpl = template.Must(template.New("system").Parse(`You are a professional sales representative for {{.BusinessName}}.

CRITICAL INFORMATION FROM DISCOVERY:

1. MEASURABLE OUTCOME: {{.MeasurableOutcome}}

2. TARGET AUDIENCE: {{.TargetAudience}}

3. KEY DIFFERENTIATOR: {{.KeyDifferentiator}}

4. TOP OBJECTIONS AND RESPONSES:
{{.TopObjections}}

5. URGENCY FACTORS: {{.UrgencyFactors}}

6. SUCCESS STORY: {{.SuccessStory}}

7. QUALIFICATION CRITERIA: {{.QualificationCriteria}}

CALL STRUCTURE (Follow exactly):
1. OPENING (10 seconds): Pattern interrupt + personalization + permission
2. VALUE PROPOSITION (20 seconds): Problem + solution + quantified benefit
3. DISCOVERY (2-3 minutes): Use SPIN questions (Situation, Problem, Implication, Need-payoff)
4. CLOSE (30 seconds): Summary + specific meeting request

CURRENT CALL CONTEXT:
- Prospect: {{.Prospect}} at {{.LeadBusiness}}
- Title: {{.Title}}
- Category: {{.Category}}
- Validation Score: {{.Score}}/100

VOICE TONALITY:
- Pitch: Medium-low for authority
- Articulation: Crystal clear
- Volume: Slightly above conversational
- Pace: 140-160 words per minute

PHRASES TO AVOID:
- Never say "How are you today?"
- Never say "Did I catch you at a bad time?"
- Never say "Do you have a few minutes?"
- Never say "Is this something you'd be interested in?"

Your goal is not to close a sale. Determine if there is a fit, create interest in a deeper conversation and book a specific next step.
When the prospect agrees to a time, call the bookAppointment function.`))

type promptData struct {
	BusinessName          string
	MeasurableOutcome     string
	TargetAudience        string
	KeyDifferentiator     string
	TopObjections         string
	UrgencyFactors        string
	SuccessStory          string
	QualificationCriteria string
	Prospect              string
	LeadBusiness          string
	Title                 string
	Category              string
	Score                 int
}

func systemPrompt(in Input) (string, error) {
	b, l, d := in.Business, in.Lead, in.Business.DiscoveryAnswers
	data := promptData{
		BusinessName:          b.BusinessName,
		MeasurableOutcome:     or(d.MeasurableOutcome, or(b.ValueProposition, b.AnalysisData.ValueProposition)),
		TargetAudience:        or(d.TargetAudience, "Business decision makers"),
		KeyDifferentiator:     or(d.KeyDifferentiator, "Unique solution approach"),
		TopObjections:         or(d.TopObjections, defaultObjections),
		UrgencyFactors:        or(d.UrgencyFactors, "Cost of inaction and competitive pressure"),
		SuccessStory:          or(d.SuccessStory, "Similar companies achieving significant results"),
		QualificationCriteria: or(d.QualificationCriteria, "Problem severity, budget authority, implementation timeline"),
		Prospect:              or(l.ContactName, "the business owner"),
		LeadBusiness:          l.BusinessName,
		Title:                 or(in.Role, or(l.ContactTitle, "decision maker")),
		Category:              l.Category,
		Score:                 l.ValidationScore,
	}
	var buf bytes.Buffer
	if err := promptTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render system prompt: %w", err)
	}
	return buf.String(), nil
}
