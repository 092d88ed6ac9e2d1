// Package events publishes portal domain events to a RabbitMQ topic exchange.
// Publishing is best-effort: it happens after the ledger commit and a
// failure never changes the outcome of the operation that produced the event.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"github.com/skopiLandToken/skopi-sub000/internal/logging"
)

// Routing keys
const (
	IntentConfirmed     = "intent.confirmed"
	CommissionCommitted = "commission.committed"
	AirdropAllocated    = "airdrop.allocated"
	ReconciliationDrift = "airdrop.reconciliation_drift"
)

// DefaultExchange is used when no exchange is configured
const DefaultExchange = "portal_events"

// Envelope wraps every published payload
type Envelope struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurredAt"`
	Data       interface{} `json:"data"`
}

// NewEnvelope stamps a payload with an id and time
func NewEnvelope(routingKey string, data interface{}) Envelope {
	return Envelope{
		ID:         uuid.NewString(),
		Type:       routingKey,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

// Publisher is the interface implemented by types that can publish events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, data interface{}) error
	Close()
}

// NoopPublisher drops events. It is used when AMQP is not configured or
// unreachable at startup.
type NoopPublisher struct{}

// Publish logs and discards the event
func (NoopPublisher) Publish(ctx context.Context, routingKey string, data interface{}) error {
	logging.FromContext(ctx).WithField("routing_key", routingKey).Debug("event publish skipped, no broker")
	return nil
}

// Close does nothing
func (NoopPublisher) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	if idx := strings.Index(strings.ToLower(clean), "amqp"); idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// AMQPPublisher publishes JSON envelopes to a durable topic exchange
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
}

// NewAMQPPublisher dials the broker and declares the exchange
func NewAMQPPublisher(amqpURL, exchange string) (*AMQPPublisher, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("failed to dial AMQP: %w", err)
	}

	p := &AMQPPublisher{conn: conn, exchange: exchange}
	if err := p.openChannel(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return p, nil
}

// NewPublisher returns an AMQP publisher, or a NoopPublisher when url is
// empty or the broker cannot be reached.
func NewPublisher(amqpURL, exchange string) Publisher {
	if strings.TrimSpace(amqpURL) == "" {
		return NoopPublisher{}
	}
	p, err := NewAMQPPublisher(amqpURL, exchange)
	if err != nil {
		logging.WithError(err).Warn("AMQP unavailable, domain events disabled")
		return NoopPublisher{}
	}
	return p
}

func (p *AMQPPublisher) openChannel() error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open AMQP channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("failed to declare exchange %s: %w", p.exchange, err)
	}
	p.channel = ch
	return nil
}

// Publish sends one event. A closed channel is reopened once.
func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, data interface{}) error {
	body, err := json.Marshal(NewEnvelope(routingKey, data))
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", routingKey, err)
	}
	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
	if err == nil {
		return nil
	}

	logging.FromContext(ctx).WithError(err).WithField("routing_key", routingKey).Warn("publish failed, reopening channel")
	if reopenErr := p.openChannel(); reopenErr != nil {
		return errors.Join(err, reopenErr)
	}
	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
}

// Close gracefully closes the channel and connection
func (p *AMQPPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// PublishBestEffort publishes and logs failures instead of returning them
func PublishBestEffort(ctx context.Context, p Publisher, routingKey string, data interface{}) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, routingKey, data); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("routing_key", routingKey).Warn("domain event not published")
	}
}
