package calls

import (
	"encoding/json"
	"strings"
	"time"
)

// CallLog is one outbound call attempt placed through VAPI. It is created
// when the call is placed and then mutated by webhook events.
type CallLog struct {
	ID         string `json:"id" db:"id"`
	LeadID     string `json:"lead_id" db:"lead_id"`
	CampaignID string `json:"campaign_id" db:"campaign_id"`
	VAPICallID string `json:"vapi_call_id" db:"vapi_call_id"`

	From string `json:"phone_number_from" db:"phone_number_from"`
	To   string `json:"phone_number_to" db:"phone_number_to"`

	Outcome Outcome `json:"outcome" db:"outcome"`

	DurationSeconds int     `json:"duration_seconds" db:"duration_seconds"`
	Cost            float64 `json:"cost" db:"cost"`
	RecordingURL    string  `json:"recording_url,omitempty" db:"recording_url"`
	Transcript      string  `json:"transcript,omitempty" db:"transcript"`

	VAPIData json.RawMessage `json:"vapi_data,omitempty" db:"vapi_data"`

	StartedAt *time.Time `json:"started_at,omitempty" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

type Outcome string

const (
	OutcomeInitiated         Outcome = "initiated"
	OutcomeInProgress        Outcome = "in_progress"
	OutcomeCompleted         Outcome = "completed"
	OutcomeNoAnswer          Outcome = "no_answer"
	OutcomeVoicemail         Outcome = "voicemail"
	OutcomeBusy              Outcome = "busy"
	OutcomeFailed            Outcome = "failed"
	OutcomeAppointmentBooked Outcome = "appointment_booked"
)

// Outcomes lists every outcome in reporting order.
var Outcomes = []Outcome{
	OutcomeInitiated,
	OutcomeInProgress,
	OutcomeCompleted,
	OutcomeNoAnswer,
	OutcomeVoicemail,
	OutcomeBusy,
	OutcomeFailed,
	OutcomeAppointmentBooked,
}

// Terminal reports whether the call has ended.
func (o Outcome) Terminal() bool {
	switch o {
	case OutcomeInitiated, OutcomeInProgress:
		return false
	default:
		return true
	}
}

// Connected reports whether someone picked up.
func (o Outcome) Connected() bool {
	return o == OutcomeCompleted || o == OutcomeAppointmentBooked
}

// OutcomeFromEndedReason maps VAPI's endedReason to an outcome.
func OutcomeFromEndedReason(reason string) Outcome {
	r := strings.ToLower(strings.TrimSpace(reason))
	switch {
	case r == "no-answer" || r == "customer-did-not-answer":
		return OutcomeNoAnswer
	case r == "voicemail" || strings.Contains(r, "voicemail"):
		return OutcomeVoicemail
	case r == "busy" || r == "customer-busy":
		return OutcomeBusy
	case r == "failed" || strings.HasPrefix(r, "error") || strings.Contains(r, "failed"):
		return OutcomeFailed
	default:
		return OutcomeCompleted
	}
}

// CallEnd is the data recorded from a call-ended event.
type CallEnd struct {
	Outcome         Outcome
	DurationSeconds int
	Cost            float64
	RecordingURL    string
	VAPIData        json.RawMessage
	EndedAt         time.Time
}

// Appointment is booked by the assistant's bookAppointment function.
type Appointment struct {
	ID              string    `json:"id" db:"id"`
	LeadID          string    `json:"lead_id" db:"lead_id"`
	CallLogID       string    `json:"call_log_id" db:"call_log_id"`
	CampaignID      string    `json:"campaign_id" db:"campaign_id"`
	ScheduledTime   time.Time `json:"scheduled_time" db:"scheduled_time"`
	DurationMinutes int       `json:"duration_minutes" db:"duration_minutes"`
	MeetingType     string    `json:"meeting_type" db:"meeting_type"`
	Notes           string    `json:"notes,omitempty" db:"notes"`
	AttendeeName    string    `json:"attendee_name" db:"attendee_name"`
	AttendeeEmail   string    `json:"attendee_email,omitempty" db:"attendee_email"`
	AttendeePhone   string    `json:"attendee_phone,omitempty" db:"attendee_phone"`
	Status          string    `json:"status" db:"status"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

const (
	AppointmentScheduled    = "scheduled"
	DefaultMeetingMinutes   = 30
	DefaultMeetingType      = "phone"
	DefaultAppointmentNotes = "Appointment booked via automated call"
)

// ListFilter narrows call log listings to one user's campaigns.
type ListFilter struct {
	UserID     string
	CampaignID string
	LeadID     string
	Outcome    Outcome
	Limit      int
	Offset     int
}
