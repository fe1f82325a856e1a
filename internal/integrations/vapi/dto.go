package vapi

import (
	"encoding/json"
	"time"
)

type Voice struct {
	Provider string `json:"provider"`
	VoiceID  string `json:"voiceId"`
}

type Model struct {
	Provider    string     `json:"provider"`
	Model       string     `json:"model"`
	Temperature float64    `json:"temperature"`
	Messages    []Message  `json:"messages,omitempty"`
	Functions   []Function `json:"functions,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Function is a tool the assistant may call mid-conversation.
type Function struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Assistant is both the create/update body and the API's response.
type Assistant struct {
	ID                     string `json:"id,omitempty"`
	Name                   string `json:"name,omitempty"`
	Voice                  *Voice `json:"voice,omitempty"`
	Model                  *Model `json:"model,omitempty"`
	FirstMessage           string `json:"firstMessage,omitempty"`
	ServerURL              string `json:"serverUrl,omitempty"`
	EndCallFunctionEnabled *bool  `json:"endCallFunctionEnabled,omitempty"`
	RecordingEnabled       *bool  `json:"recordingEnabled,omitempty"`
	HIPAAEnabled           *bool  `json:"hipaaEnabled,omitempty"`
}

type Customer struct {
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Number string `json:"number"`
}

type CallRequest struct {
	AssistantID        string            `json:"assistantId"`
	PhoneNumberID      string            `json:"phoneNumberId,omitempty"`
	Customer           Customer          `json:"customer"`
	AssistantOverrides *Assistant        `json:"assistantOverrides,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

// Call is the subset of VAPI's call object this service reads. Raw keeps
// the full response for call_logs.vapi_data.
type Call struct {
	ID           string          `json:"id"`
	AssistantID  string          `json:"assistantId"`
	Status       string          `json:"status"`
	EndedReason  string          `json:"endedReason,omitempty"`
	Cost         float64         `json:"cost,omitempty"`
	RecordingURL string          `json:"recordingUrl,omitempty"`
	Transcript   string          `json:"transcript,omitempty"`
	StartedAt    *time.Time      `json:"startedAt,omitempty"`
	EndedAt      *time.Time      `json:"endedAt,omitempty"`
	Raw          json.RawMessage `json:"-"`
}

func (c *Call) UnmarshalJSON(b []byte) error {
	type alias Call
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*c = Call(a)
	c.Raw = append(json.RawMessage(nil), b...)
	return nil
}
