// Package notify fans out pipeline events over RabbitMQ and turns them into
// emails on the consumer side.
package notify

import (
	"context"
	"time"

	"leadgen-platform/pkg/logger"
)

const (
	ExchangeName = "ex.leadgen"
	QueueName    = "q.appointments"
	DLXName      = "ex.leadgen.dlx"
	DLQName      = "q.appointments.dlq"

	RoutingAppointmentBooked = "appointment.booked"
)

// AppointmentBooked is published after the booking transaction commits.
type AppointmentBooked struct {
	AppointmentID   string    `json:"appointment_id"`
	LeadID          string    `json:"lead_id"`
	CampaignID      string    `json:"campaign_id"`
	UserID          string    `json:"user_id"`
	BusinessName    string    `json:"business_name"`
	AttendeeName    string    `json:"attendee_name"`
	AttendeeEmail   string    `json:"attendee_email,omitempty"`
	AttendeePhone   string    `json:"attendee_phone,omitempty"`
	ScheduledTime   time.Time `json:"scheduled_time"`
	DurationMinutes int       `json:"duration_minutes"`
	MeetingType     string    `json:"meeting_type"`
	Notes           string    `json:"notes,omitempty"`
}

type Publisher interface {
	PublishAppointmentBooked(ctx context.Context, e AppointmentBooked) error
}

// NopPublisher drops events; used when AMQP is not configured.
type NopPublisher struct{}

func (NopPublisher) PublishAppointmentBooked(ctx context.Context, e AppointmentBooked) error {
	logger.From(ctx).Debug("notify disabled, dropping event", "event", RoutingAppointmentBooked, "appointment_id", e.AppointmentID)
	return nil
}
