package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Conn owns one AMQP connection and the channel used for publishing.
type Conn struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Dial connects and declares the topology.
func Dial(url string) (*Conn, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := setupTopology(ch); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare topology: %w", err)
	}
	return &Conn{conn: conn, ch: ch}, nil
}

// Channel opens a dedicated channel, e.g. for a consumer.
func (c *Conn) Channel() (*amqp.Channel, error) {
	return c.conn.Channel()
}

func (c *Conn) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	_ = c.ch.Close()
	return c.conn.Close()
}

// topology: a durable direct exchange with one queue whose rejected
// messages dead-letter to q.appointments.dlq.
func setupTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(DLXName, "direct", true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(DLQName, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(DLQName, RoutingAppointmentBooked, DLXName, false, nil); err != nil {
		return err
	}

	if err := ch.ExchangeDeclare(ExchangeName, "direct", true, false, false, false, nil); err != nil {
		return err
	}
	args := amqp.Table{
		"x-dead-letter-exchange":    DLXName,
		"x-dead-letter-routing-key": RoutingAppointmentBooked,
	}
	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, args); err != nil {
		return err
	}
	return ch.QueueBind(QueueName, RoutingAppointmentBooked, ExchangeName, false, nil)
}

// AMQPPublisher publishes persistent JSON messages. amqp channels are not
// safe for concurrent publishing, hence the mutex.
type AMQPPublisher struct {
	mu sync.Mutex
	ch *amqp.Channel
}

func NewAMQPPublisher(c *Conn) *AMQPPublisher {
	return &AMQPPublisher{ch: c.ch}
}

func (p *AMQPPublisher) PublishAppointmentBooked(ctx context.Context, e AppointmentBooked) error {
	return p.publish(ctx, RoutingAppointmentBooked, e)
}

func (p *AMQPPublisher) publish(ctx context.Context, key string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx, ExchangeName, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}
