package webhook

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
)

const (
	TypeCallStarted      = "call-started"
	TypeCallEnded        = "call-ended"
	TypeTranscript       = "transcript"
	TypeFunctionCall     = "function-call"
	TypeEndOfCallReport  = "end-of-call-report"
	TypeStatusUpdate     = "status-update"
	FunctionBookMeeting  = "bookAppointment"
	transcriptTypeFinal  = "final"
	statusInProgress     = "in-progress"
	statusEnded          = "ended"
)

var ErrMalformed = errors.New("malformed webhook payload")

// Call is the part of VAPI's call object the receiver reads. Raw keeps the
// full object for call_logs.vapi_data.
type Call struct {
	ID           string
	EndedReason  string
	Duration     float64
	Cost         float64
	RecordingURL string
	Raw          json.RawMessage
}

// Event is a webhook delivery normalised from either envelope shape.
type Event struct {
	Type         string
	Call         Call
	Role         string
	Content      string
	Partial      bool
	Status       string
	FunctionName string
	Arguments    json.RawMessage
	Report       json.RawMessage
	// Timestamp is the vendor's send time for this message, verbatim. Empty
	// when the payload carries none.
	Timestamp string
}

type rawCall struct {
	ID           string   `json:"id"`
	EndedReason  string   `json:"endedReason"`
	Duration     *float64 `json:"duration"`
	Cost         float64  `json:"cost"`
	RecordingURL string   `json:"recordingUrl"`
	StartedAt    string   `json:"startedAt"`
	EndedAt      string   `json:"endedAt"`
}

type flatEnvelope struct {
	Type        string          `json:"type"`
	Call        json.RawMessage `json:"call"`
	Message     json.RawMessage `json:"message"`
	Function    *functionCall   `json:"function"`
	Report      json.RawMessage `json:"report"`
	Transcript  string          `json:"transcript"`
	EndedReason string          `json:"endedReason"`
	Timestamp   json.RawMessage `json:"timestamp"`
}

type functionCall struct {
	Name       string          `json:"name"`
	Arguments  json.RawMessage `json:"arguments"`
	Parameters json.RawMessage `json:"parameters"`
}

func (f *functionCall) args() json.RawMessage {
	if f == nil {
		return nil
	}
	if len(f.Arguments) > 0 {
		return f.Arguments
	}
	return f.Parameters
}

type flatMessage struct {
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// nestedMessage is VAPI's server message: {"message": {"type": ...}}.
type nestedMessage struct {
	Type            string          `json:"type"`
	Call            json.RawMessage `json:"call"`
	Role            string          `json:"role"`
	Transcript      string          `json:"transcript"`
	TranscriptType  string          `json:"transcriptType"`
	Status          string          `json:"status"`
	EndedReason     string          `json:"endedReason"`
	DurationSeconds *float64        `json:"durationSeconds"`
	Cost            *float64        `json:"cost"`
	RecordingURL    string          `json:"recordingUrl"`
	FunctionCall    *functionCall   `json:"functionCall"`
	Timestamp       json.RawMessage `json:"timestamp"`
}

// Parse accepts the flat envelope {type, call, ...} and the nested
// {message: {type, call, ...}} envelope.
func Parse(body []byte) (Event, error) {
	var flat flatEnvelope
	if err := json.Unmarshal(body, &flat); err != nil {
		return Event{}, errors.Join(ErrMalformed, err)
	}
	if flat.Type != "" {
		return parseFlat(flat)
	}
	if len(flat.Message) == 0 {
		return Event{}, ErrMalformed
	}
	var m nestedMessage
	if err := json.Unmarshal(flat.Message, &m); err != nil || m.Type == "" {
		return Event{}, ErrMalformed
	}
	return parseNested(m, flat.Message)
}

func parseFlat(f flatEnvelope) (Event, error) {
	call, err := parseCall(f.Call)
	if err != nil {
		return Event{}, err
	}
	if call.EndedReason == "" {
		call.EndedReason = f.EndedReason
	}
	e := Event{Type: f.Type, Call: call, Report: f.Report, Timestamp: scalar(f.Timestamp)}
	if f.Function != nil {
		e.FunctionName = f.Function.Name
		e.Arguments = f.Function.args()
	}
	if len(f.Message) > 0 {
		var m flatMessage
		if err := json.Unmarshal(f.Message, &m); err == nil {
			e.Role, e.Content = m.Role, m.Content
			if e.Timestamp == "" {
				e.Timestamp = scalar(m.Timestamp)
			}
		}
	}
	if e.Content == "" {
		e.Content = f.Transcript
	}
	return e, nil
}

func parseNested(m nestedMessage, raw json.RawMessage) (Event, error) {
	call, err := parseCall(m.Call)
	if err != nil {
		return Event{}, err
	}
	if m.EndedReason != "" {
		call.EndedReason = m.EndedReason
	}
	if m.DurationSeconds != nil {
		call.Duration = *m.DurationSeconds
	}
	if m.Cost != nil {
		call.Cost = *m.Cost
	}
	if m.RecordingURL != "" {
		call.RecordingURL = m.RecordingURL
	}
	e := Event{
		Type:      m.Type,
		Call:      call,
		Role:      m.Role,
		Content:   m.Transcript,
		Partial:   m.TranscriptType != "" && m.TranscriptType != transcriptTypeFinal,
		Status:    m.Status,
		Timestamp: scalar(m.Timestamp),
	}
	if m.FunctionCall != nil {
		e.FunctionName = m.FunctionCall.Name
		e.Arguments = m.FunctionCall.args()
	}
	switch m.Type {
	case TypeEndOfCallReport:
		e.Report = raw
	case TypeStatusUpdate:
		switch strings.ToLower(m.Status) {
		case statusInProgress:
			e.Type = TypeCallStarted
		case statusEnded:
			e.Type = TypeCallEnded
		}
	}
	return e, nil
}

func parseCall(raw json.RawMessage) (Call, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return Call{}, nil
	}
	var rc rawCall
	if err := json.Unmarshal(raw, &rc); err != nil {
		return Call{}, errors.Join(ErrMalformed, err)
	}
	c := Call{
		ID:           rc.ID,
		EndedReason:  rc.EndedReason,
		Cost:         rc.Cost,
		RecordingURL: rc.RecordingURL,
		Raw:          raw,
	}
	if rc.Duration != nil {
		c.Duration = *rc.Duration
	}
	return c, nil
}

// DurationSeconds rounds the reported duration to whole seconds.
func (c Call) DurationSeconds() int {
	if c.Duration <= 0 {
		return 0
	}
	return int(math.Round(c.Duration))
}

// scalar renders a JSON number or string as plain text; anything else is "".
func scalar(raw json.RawMessage) string {
	v := strings.TrimSpace(string(raw))
	if v == "" || v == "null" {
		return ""
	}
	if strings.HasPrefix(v, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
	if v[0] == '-' || (v[0] >= '0' && v[0] <= '9') {
		return v
	}
	return ""
}
