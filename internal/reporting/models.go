package reporting

import (
	"time"

	"leadgen-platform/internal/calls"
)

// TimeRange bounds a report by call creation time. A zero bound is open.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r TimeRange) contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}

func (r TimeRange) valid() bool {
	return r.From.IsZero() || r.To.IsZero() || r.To.After(r.From)
}

// CallsSummaryRequest requests aggregated call metrics for one user.
type CallsSummaryRequest struct {
	UserID     string    `json:"user_id"`
	CampaignID string    `json:"campaign_id,omitempty"`
	Range      TimeRange `json:"range"`
}

type CallsSummary struct {
	CampaignID string `json:"campaign_id,omitempty"`

	TotalCalls      int                   `json:"total_calls"`
	ByOutcome       map[calls.Outcome]int `json:"by_outcome"`
	ConnectedCalls  int                   `json:"connected_calls"`
	InProgressCalls int                   `json:"in_progress_calls"`

	TotalDurationSeconds   int     `json:"total_duration_seconds"`
	AverageDurationSeconds int     `json:"average_duration_seconds"`
	TotalCost              float64 `json:"total_cost"`

	RecordedCalls      int `json:"recorded_calls"`
	AppointmentsBooked int `json:"appointments_booked"`
}

// ConversionMetrics is the funnel of one campaign.
type ConversionMetrics struct {
	CampaignID string `json:"campaign_id"`

	LeadsScraped   int `json:"leads_scraped"`
	LeadsValidated int `json:"leads_validated"`
	LeadsEnriched  int `json:"leads_enriched"`
	LeadsCalled    int `json:"leads_called"`
	LeadsConverted int `json:"leads_converted"`

	CallsAttempted     int   `json:"calls_attempted"`
	CallsConnected     int   `json:"calls_connected"`
	AppointmentsBooked int   `json:"appointments_booked"`
	CreditsSpent       int64 `json:"credits_spent"`

	ConnectionRate float64 `json:"connection_rate"`
	ConversionRate float64 `json:"conversion_rate"`
}
