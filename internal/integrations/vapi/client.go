// Package vapi places outbound AI voice calls through VAPI.
package vapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"leadgen-platform/internal/config"
	"leadgen-platform/pkg/httpclient"
)

const (
	DefaultVoiceProvider = "11labs"
	DefaultModelProvider = "openai"
	DefaultModel         = "gpt-4o"
	DefaultTemperature   = 0.7

	BookAppointmentFunction = "bookAppointment"
)

var ErrNotConfigured = errors.New("vapi: api key not configured")

var bookAppointmentParams = json.RawMessage(`{
  "type": "object",
  "properties": {
    "scheduledTime": {"type": "string", "description": "Meeting start time in ISO 8601"},
    "duration": {"type": "number", "description": "Meeting length in minutes"},
    "meetingType": {"type": "string", "enum": ["phone", "video", "in_person"]},
    "notes": {"type": "string"}
  },
  "required": ["scheduledTime"]
}`)

// BookAppointment is the function definition every assistant carries.
func BookAppointment() Function {
	return Function{
		Name:        BookAppointmentFunction,
		Description: "Book a follow-up meeting with the prospect once they agree to a specific time.",
		Parameters:  bookAppointmentParams,
	}
}

type Client struct {
	http          *httpclient.Client
	apiKey        string
	voiceID       string
	phoneNumberID string
	serverURL     string
}

// New returns a client. serverURL is where VAPI sends webhook events.
func New(cfg config.VAPIConfig, serverURL string, opts ...httpclient.Option) *Client {
	opts = append([]httpclient.Option{httpclient.WithBearer(cfg.APIKey)}, opts...)
	return &Client{
		http:          httpclient.New("vapi", cfg.BaseURL, opts...),
		apiKey:        cfg.APIKey,
		voiceID:       cfg.VoiceID,
		phoneNumberID: cfg.PhoneNumberID,
		serverURL:     serverURL,
	}
}

// CreateAssistant creates an assistant; unset fields get the house defaults.
func (c *Client) CreateAssistant(ctx context.Context, a Assistant) (Assistant, error) {
	if c.apiKey == "" {
		return Assistant{}, ErrNotConfigured
	}
	a = c.withDefaults(a)
	var out Assistant
	if err := c.http.Do(ctx, http.MethodPost, "/assistant", nil, a, &out); err != nil {
		return Assistant{}, err
	}
	return out, nil
}

func (c *Client) UpdateAssistant(ctx context.Context, id string, patch Assistant) (Assistant, error) {
	if c.apiKey == "" {
		return Assistant{}, ErrNotConfigured
	}
	var out Assistant
	if err := c.http.Do(ctx, http.MethodPatch, "/assistant/"+url.PathEscape(id), nil, patch, &out); err != nil {
		return Assistant{}, err
	}
	return out, nil
}

// CreateCall dials customer with the given assistant.
func (c *Client) CreateCall(ctx context.Context, req CallRequest) (Call, error) {
	if c.apiKey == "" {
		return Call{}, ErrNotConfigured
	}
	if req.PhoneNumberID == "" {
		req.PhoneNumberID = c.phoneNumberID
	}
	var out Call
	if err := c.http.Do(ctx, http.MethodPost, "/call/phone", nil, req, &out); err != nil {
		return Call{}, err
	}
	return out, nil
}

func (c *Client) GetCall(ctx context.Context, id string) (Call, error) {
	if c.apiKey == "" {
		return Call{}, ErrNotConfigured
	}
	var out Call
	if err := c.http.Do(ctx, http.MethodGet, "/call/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return Call{}, err
	}
	return out, nil
}

// ListCalls lists calls, optionally for one assistant.
func (c *Client) ListCalls(ctx context.Context, assistantID string) ([]Call, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}
	var q url.Values
	if assistantID != "" {
		q = url.Values{"assistantId": {assistantID}}
	}
	var out []Call
	if err := c.http.Do(ctx, http.MethodGet, "/call", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) withDefaults(a Assistant) Assistant {
	if a.Name == "" {
		a.Name = "Sales Assistant"
	}
	if a.Voice == nil {
		a.Voice = &Voice{Provider: DefaultVoiceProvider, VoiceID: c.voiceID}
	}
	if a.Model == nil {
		a.Model = &Model{Provider: DefaultModelProvider, Model: DefaultModel, Temperature: DefaultTemperature}
	}
	if !hasFunction(a.Model.Functions, BookAppointmentFunction) {
		a.Model.Functions = append(a.Model.Functions, BookAppointment())
	}
	if a.ServerURL == "" {
		a.ServerURL = c.serverURL
	}
	yes, no := true, false
	if a.EndCallFunctionEnabled == nil {
		a.EndCallFunctionEnabled = &yes
	}
	if a.RecordingEnabled == nil {
		a.RecordingEnabled = &yes
	}
	if a.HIPAAEnabled == nil {
		a.HIPAAEnabled = &no
	}
	return a
}

func hasFunction(fns []Function, name string) bool {
	for _, f := range fns {
		if f.Name == name {
			return true
		}
	}
	return false
}

// ScriptPatch is the per-lead assistant update: a first message plus the
// system prompt as the model's system message.
func ScriptPatch(firstMessage, systemPrompt string) Assistant {
	return Assistant{
		FirstMessage: firstMessage,
		Model: &Model{
			Provider:    DefaultModelProvider,
			Model:       DefaultModel,
			Temperature: DefaultTemperature,
			Messages:    []Message{{Role: "system", Content: systemPrompt}},
			Functions:   []Function{BookAppointment()},
		},
	}
}
