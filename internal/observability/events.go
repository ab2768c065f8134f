package observability

import (
	"context"
	"time"
)

// Publisher is the sink for operational events, normally the RabbitMQ
// publisher.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

type EventEnvelope struct {
	EventType  string      `json:"event_type"`
	EventName  string      `json:"event_name"`
	RequestID  string      `json:"request_id,omitempty"`
	TraceID    string      `json:"trace_id,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

// WSEvent is the payload of websocket lifecycle events.
type WSEvent struct {
	Event      string `json:"event"`
	ConnID     string `json:"conn_id"`
	UserID     int64  `json:"user_id"`
	Role       string `json:"role"`
	DeviceID   string `json:"device_id,omitempty"`
	IP         string `json:"ip,omitempty"`
	PairKey    string `json:"pair_key,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Reason     string `json:"reason,omitempty"`
}

var defaultPublisher Publisher

func SetPublisher(publisher Publisher) {
	defaultPublisher = publisher
}

// PublishEvent sends an envelope through the configured publisher. Without a
// publisher it is a no-op.
func PublishEvent(ctx context.Context, routingKey string, envelope EventEnvelope) error {
	if defaultPublisher == nil {
		return nil
	}
	if envelope.OccurredAt.IsZero() {
		envelope.OccurredAt = time.Now().UTC()
	}

	return defaultPublisher.Publish(ctx, routingKey, envelope)
}
