// Package gemini is a minimal client for the Gemini generateContent API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"leadgen-platform/internal/config"
	"leadgen-platform/pkg/httpclient"
)

var (
	ErrNotConfigured = errors.New("gemini: api key not configured")
	ErrEmptyResponse = errors.New("gemini: empty response")
)

// Generator produces text for a prompt. Callers depend on this rather than
// on *Client so tests can script model output.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// Client talks to the Generative Language REST API.
type Client struct {
	http   *httpclient.Client
	apiKey string
}

func New(cfg config.GeminiConfig, opts ...httpclient.Option) *Client {
	key := cfg.APIKey
	opts = append([]httpclient.Option{
		httpclient.WithDecorator(func(r *http.Request) {
			r.Header.Set("x-goog-api-key", key)
		}),
	}, opts...)
	return &Client{
		http:   httpclient.New("gemini", cfg.BaseURL, opts...),
		apiKey: key,
	}
}

// Generate sends a single-turn prompt and returns the concatenated text of
// the first candidate.
func (c *Client) Generate(ctx context.Context, model, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", ErrNotConfigured
	}
	if model == "" {
		return "", errors.New("gemini: model is required")
	}

	req := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
	}
	var resp generateResponse
	path := "/v1beta/models/" + url.PathEscape(model) + ":generateContent"
	if err := c.http.Do(ctx, http.MethodPost, path, nil, req, &resp); err != nil {
		return "", err
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("gemini: prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", ErrEmptyResponse
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	if b.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}
