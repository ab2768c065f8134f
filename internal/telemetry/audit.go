package telemetry

import (
	"context"
	"log/slog"
	"time"

	"staffchat/internal/models"
)

// Audit actions.
const (
	ActionMessagePosted = "message_posted"
	ActionThreadRead    = "thread_read"
	ActionDebug         = "debug"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	ActorID       *int64       `json:"actor_id,omitempty"`
	ActorRole     models.Role  `json:"actor_role,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Action    string `json:"action"`
	PairKey   string `json:"pair_key,omitempty"`
	MessageID int64  `json:"message_id,omitempty"`
	Via       string `json:"via,omitempty"`
	Count     int64  `json:"count,omitempty"`
}

// AuditRecord is one auditable staff action.
type AuditRecord struct {
	Action    string
	RequestID string
	Actor     *models.Identity
	PairKey   string
	MessageID int64
	Via       string
	Count     int64
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
	}
}

// Emit publishes rec. Publish failures are logged and otherwise ignored.
func (e *AuditEmitter) Emit(ctx context.Context, rec AuditRecord) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     rec.RequestID,
		Payload: AuditPayload{
			Action:    rec.Action,
			PairKey:   rec.PairKey,
			MessageID: rec.MessageID,
			Via:       rec.Via,
			Count:     rec.Count,
		},
	}
	if rec.Actor != nil {
		id := rec.Actor.ID
		envelope.ActorID = &id
		envelope.ActorRole = rec.Actor.Role
	}
	slog.DebugContext(ctx, "audit emit", "action", rec.Action, "request_id", rec.RequestID, "pair_key", rec.PairKey)

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		slog.WarnContext(ctx, "audit publish failed", "action", rec.Action, "error", err)
	}
}
