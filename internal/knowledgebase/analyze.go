package knowledgebase

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"leadgen-platform/internal/businesses"
	"leadgen-platform/pkg/logger"
)

const analysisPrompt = `You are a B2B sales strategist. Analyze the website content below and return a single JSON object describing the business.

Website: %s
Content:
%s

Return ONLY valid JSON with these keys:
{
  "businessName": "string",
  "description": "string",
  "valueProposition": "string",
  "industry": "string",
  "businessModel": "B2B | B2C | B2B2C",
  "companySize": "string",
  "services": ["string"],
  "targetMarkets": ["string"],
  "targetCustomers": [{"type": "string", "description": "string", "painPoints": ["string"], "buyingMotivations": ["string"]}],
  "competitiveAdvantage": "string",
  "keyFeatures": ["string"],
  "pricingModel": "string",
  "geographicFocus": "string",
  "keyDifferentiators": ["string"],
  "targetDecisionMakers": [{"title": "string", "department": "string", "painPoints": ["string"], "priorities": ["string"], "communicationStyle": "string"}],
  "idealCustomerProfile": {"companySize": "string", "industries": ["string"], "revenue": "string", "characteristics": ["string"]}
}

Use double quotes for every key and string. No comments, no trailing commas, no markdown.`

// NormalizeURL adds a scheme when missing and rejects anything that is not
// an http(s) URL with a host.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: url is required", ErrInvalidArgument)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("%w: invalid url %q", ErrInvalidArgument, raw)
	}
	return u.String(), nil
}

// Analyze reads the website and asks the model for a knowledge base. Missing
// fields are filled with defaults; unparseable output yields a profile
// derived from the URL host. Only a failed model call is an error.
func (s *Service) Analyze(ctx context.Context, websiteURL string) (businesses.KnowledgeBase, error) {
	target, err := NormalizeURL(websiteURL)
	if err != nil {
		return businesses.KnowledgeBase{}, err
	}
	log := logger.From(ctx).With("url", target)

	content, err := s.fetcher.FetchText(ctx, target)
	if err != nil || content == "" {
		log.Warn("website fetch failed", "err", err)
		content = unfetchable
	}

	out, err := s.gen.Generate(ctx, s.model, fmt.Sprintf(analysisPrompt, target, content))
	if err != nil {
		return businesses.KnowledgeBase{}, fmt.Errorf("analyze website: %w", err)
	}

	var kb businesses.KnowledgeBase
	if err := decodeObject(out, &kb); err != nil {
		log.Warn("analysis output not parseable, using fallback", "err", err)
		return fallbackKnowledgeBase(target), nil
	}
	fillDefaults(&kb, target)
	return kb, nil
}

func fillDefaults(kb *businesses.KnowledgeBase, websiteURL string) {
	if kb.BusinessName == "" {
		kb.BusinessName = BusinessNameFromURL(websiteURL)
	}
	if kb.Description == "" {
		kb.Description = "Business analysis completed"
	}
	if kb.ValueProposition == "" {
		kb.ValueProposition = "Providing valuable services to clients"
	}
	if kb.Industry == "" {
		kb.Industry = "Business Services"
	}
	if kb.CompetitiveAdvantage == "" {
		kb.CompetitiveAdvantage = "Quality service and customer focus"
	}
}

func fallbackKnowledgeBase(websiteURL string) businesses.KnowledgeBase {
	return businesses.KnowledgeBase{
		BusinessName:         BusinessNameFromURL(websiteURL),
		Description:          "Business services and solutions provider",
		ValueProposition:     "Delivering quality services to meet client needs",
		Industry:             "Business Services",
		CompetitiveAdvantage: "Experienced team and customer-focused approach",
	}
}

// BusinessNameFromURL turns "https://www.acme-labs.io" into "Acme-labs".
func BusinessNameFromURL(websiteURL string) string {
	u, err := url.Parse(websiteURL)
	if err != nil || u.Hostname() == "" {
		return "Unknown Business"
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	label, _, _ := strings.Cut(host, ".")
	if label == "" {
		return "Unknown Business"
	}
	return strings.ToUpper(label[:1]) + label[1:]
}
