// Package delivery hands finalized reports to the report/email transport over AMQP.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/victornm/simlive/internal/domain"
	"github.com/victornm/simlive/internal/event"
)

const (
	defaultExchange   = "simlive"
	defaultRoutingKey = "report.finalized"
	dialAttempts      = 5
)

// Channel is the subset of *amqp.Channel the publisher needs.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Dial connects to the broker, retrying with exponential backoff.
func Dial(ctx context.Context, url string) (*amqp.Connection, error) {
	operation := func() (*amqp.Connection, error) {
		conn, err := amqp.Dial(url)
		if err != nil {
			slog.WarnContext(ctx, "delivery: connect to broker failed, retrying", "error", err)
			return nil, err
		}
		return conn, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = 10 * time.Second
	conn, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(dialAttempts))
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	return conn, nil
}

type Config struct {
	EventBus   *event.Bus
	Channel    Channel
	Exchange   string
	RoutingKey string
}

// Message is the payload the transport receives.
type Message struct {
	SessionID   string         `json:"sessionId"`
	FinalizedAt time.Time      `json:"finalizedAt"`
	Report      *domain.Report `json:"report"`
}

type Publisher struct {
	exchange string
	key      string

	mu sync.Mutex
	ch Channel
}

// NewPublisher declares the exchange and publishes a message for every finalized session.
func NewPublisher(c Config) (*Publisher, error) {
	p := &Publisher{
		exchange: c.Exchange,
		key:      c.RoutingKey,
		ch:       c.Channel,
	}
	if p.exchange == "" {
		p.exchange = defaultExchange
	}
	if p.key == "" {
		p.key = defaultRoutingKey
	}

	if err := p.ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}

	c.EventBus.Subscribe(func(ctx context.Context, e event.Event) error {
		ended, ok := e.(domain.EventSessionEnded)
		if !ok || ended.Report == nil {
			return nil
		}
		return p.Publish(ctx, ended.Report)
	}, domain.EventNameSessionEnded)

	return p, nil
}

// Publish sends one report. The session id doubles as the message id so consumers can dedupe.
func (p *Publisher) Publish(ctx context.Context, r *domain.Report) error {
	body, err := json.Marshal(Message{
		SessionID:   r.SessionID,
		FinalizedAt: r.EndedAt,
		Report:      r,
	})
	if err != nil {
		return fmt.Errorf("delivery: marshal report: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ch.PublishWithContext(ctx, p.exchange, p.key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    r.SessionID,
		Timestamp:    r.EndedAt,
		Body:         body,
	}); err != nil {
		return fmt.Errorf("delivery: publish %s: %w", r.SessionID, err)
	}

	slog.InfoContext(ctx, "delivery: report published", "session", r.SessionID, "routing_key", p.key)
	return nil
}
