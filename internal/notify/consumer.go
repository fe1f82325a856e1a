package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"leadgen-platform/pkg/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Mailer sends the attendee confirmation for a booked appointment.
type Mailer interface {
	SendAppointmentConfirmation(ctx context.Context, e AppointmentBooked) error
}

// Consumer drains q.appointments. Malformed or failed deliveries are
// rejected without requeue and land in the DLQ.
type Consumer struct {
	ch     *amqp.Channel
	mailer Mailer
}

func NewConsumer(ch *amqp.Channel, mailer Mailer) *Consumer {
	return &Consumer{ch: ch, mailer: mailer}
}

// Start blocks until ctx is done or the delivery channel closes.
func (c *Consumer) Start(ctx context.Context) error {
	msgs, err := c.ch.ConsumeWithContext(ctx, QueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}
	log := logger.From(ctx).With("queue", QueueName)
	log.Info("notify consumer started")
	for {
		select {
		case <-ctx.Done():
			log.Info("notify consumer stopped")
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	log := logger.From(ctx).With("routing_key", d.RoutingKey)

	var e AppointmentBooked
	if err := json.Unmarshal(d.Body, &e); err != nil {
		log.Warn("malformed notification", "err", err)
		_ = d.Nack(false, false)
		return
	}
	if err := c.process(ctx, d.RoutingKey, e); err != nil {
		log.Error("notification failed", "appointment_id", e.AppointmentID, "err", err)
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

func (c *Consumer) process(ctx context.Context, key string, e AppointmentBooked) error {
	switch key {
	case RoutingAppointmentBooked, "":
		if e.AttendeeEmail == "" || c.mailer == nil {
			logger.From(ctx).Info("appointment has no email recipient", "appointment_id", e.AppointmentID)
			return nil
		}
		return c.mailer.SendAppointmentConfirmation(ctx, e)
	default:
		logger.From(ctx).Warn("unknown routing key, dropping", "routing_key", key)
		return nil
	}
}
