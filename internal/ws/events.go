package ws

import (
	"context"
	"time"

	"github.com/jishnu70/Chat-app-backend/internal/observability"
)

const (
	eventConnect        = "ws_connect"
	eventDisconnect     = "ws_disconnect"
	eventError          = "ws_error"
	eventDeliveryFailed = "ws_delivery_failed"
)

func routingKey(kind string) string {
	if kind == KindGroup {
		return "ws_events.groups"
	}
	return "ws_events.chats"
}

// publishLifecycle emits one ws_events envelope for info. Publish errors are
// counted by Events and otherwise ignored.
func publishLifecycle(ctx context.Context, events *observability.Events, metrics *observability.Metrics, info ConnInfo, event, reason string) {
	metrics.IncWSEvent(info.Kind, event)

	var duration int64
	if event != eventConnect {
		duration = time.Since(info.ConnectedAt).Milliseconds()
	}
	_ = events.Publish(ctx, routingKey(info.Kind), observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"kind":        info.Kind,
				"resource_id": info.ResourceID,
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": duration,
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
