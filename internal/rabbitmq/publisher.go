// Package rabbitmq publishes audit and websocket lifecycle envelopes to a
// topic exchange.
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"staffchat/internal/observability"
	"staffchat/internal/telemetry"
)

// ErrConnectionClosed is returned once the broker has closed the channel.
var ErrConnectionClosed = errors.New("rabbitmq: connection closed")

// Publisher is satisfied by both telemetry.Publisher and
// observability.Publisher.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// NewPublisher connects to amqpURL and declares exchange. When the URL is
// empty or the broker is unreachable it returns a noop publisher.
func NewPublisher(amqpURL, exchange string) Publisher {
	if amqpURL == "" {
		return disabled("empty amqp url")
	}
	p, err := dial(amqpURL, exchange)
	if err != nil {
		return disabled(err.Error())
	}
	slog.Info("rabbitmq connected", "exchange", exchange)
	return p
}

func disabled(reason string) noopPublisher {
	slog.Warn("rabbitmq disabled, using noop", "reason", reason)
	return noopPublisher{reason: reason}
}

func dial(amqpURL, exchange string) (*amqpPublisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	p := &amqpPublisher{conn: conn, ch: ch, exchange: exchange}
	go p.watch(ch.NotifyClose(make(chan *amqp.Error, 1)))
	return p, nil
}

type amqpPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string

	mu     sync.Mutex
	closed bool
}

// watch marks the publisher closed when the broker drops the channel. There
// is no redial.
func (p *amqpPublisher) watch(notify <-chan *amqp.Error) {
	if amqpErr, ok := <-notify; ok && amqpErr != nil {
		slog.Error("rabbitmq channel closed", "code", amqpErr.Code, "reason", amqpErr.Reason)
	}
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		observability.IncAMQPPublishError()
		return fmt.Errorf("encode %s: %w", routingKey, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		observability.IncAMQPPublishError()
		return ErrConnectionClosed
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      headersFor(event),
		Body:         body,
	})
	if err != nil {
		observability.IncAMQPPublishError()
		slog.WarnContext(ctx, "rabbitmq publish failed", "routing_key", routingKey, "error", err)
	}
	return err
}

func (p *amqpPublisher) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.conn.Close()
}

type noopPublisher struct {
	reason string
}

func (noopPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	attrs := []any{"routing_key", routingKey}
	for k, v := range headersFor(event) {
		attrs = append(attrs, k, v)
	}
	slog.DebugContext(ctx, "rabbitmq noop publish", attrs...)
	return nil
}

func (noopPublisher) Close() error { return nil }

// headersFor copies the correlation ids of known envelopes into message
// headers so consumers can route without decoding the body.
func headersFor(event any) amqp.Table {
	switch envelope := event.(type) {
	case telemetry.AuditEnvelope:
		return amqp.Table{"event_type": envelope.EventType, "request_id": envelope.RequestID}
	case observability.EventEnvelope:
		h := amqp.Table{"event_type": envelope.EventType, "event_name": envelope.EventName}
		if envelope.RequestID != "" {
			h["request_id"] = envelope.RequestID
		}
		if envelope.TraceID != "" {
			h["trace_id"] = envelope.TraceID
		}
		return h
	default:
		return nil
	}
}

// Describe reports the publisher mode and, for noop, why.
func Describe(p Publisher) (mode, reason string) {
	switch pub := p.(type) {
	case *amqpPublisher:
		return "amqp", ""
	case noopPublisher:
		return "noop", pub.reason
	default:
		return "unknown", ""
	}
}
