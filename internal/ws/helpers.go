package ws

import (
	"context"
	"encoding/json"
	"time"

	"staffchat/internal/models"
	"staffchat/internal/observability"
)

const wsRoutingKey = "ws_events.staffchat"

func encodeFrame(frame models.ServerFrame) []byte {
	payload, _ := json.Marshal(frame)
	return payload
}

// publishWSEvent counts a lifecycle event and forwards it to the event bus.
func publishWSEvent(ctx context.Context, event string, info ConnInfo, pairKey, reason string) {
	observability.IncWSEvent(event)
	var duration int64
	if !info.ConnectedAt.IsZero() {
		duration = time.Since(info.ConnectedAt).Milliseconds()
	}
	_ = observability.PublishEvent(ctx, wsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		RequestID: info.RequestID,
		TraceID:   info.TraceID,
		Payload: observability.WSEvent{
			Event:      event,
			ConnID:     info.ConnID,
			UserID:     info.Identity.ID,
			Role:       string(info.Identity.Role),
			DeviceID:   info.DeviceID,
			IP:         info.IP,
			PairKey:    pairKey,
			DurationMS: duration,
			Reason:     reason,
		},
	})
}
