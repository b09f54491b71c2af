package observability

import (
	"context"
	"time"
)

const (
	RoutingKeyWSEvents      = "ws_events.chats"
	RoutingKeyMessageEvents = "message_events.direct"
)

type EventEnvelope struct {
	EventType  string      `json:"event_type"`
	EventName  string      `json:"event_name"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

// BuildHeaders returns the bus headers for a request and trace id, omitting empty ones.
func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

// WSEvent describes a websocket lifecycle change.
type WSEvent struct {
	Name        string
	ConnID      string
	UserID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
	Reason      string
}

// PublishWSEvent publishes a ws_events envelope and counts it.
func PublishWSEvent(ctx context.Context, ev WSEvent) {
	IncWSEvent(ev.Name)
	duration := int64(0)
	if !ev.ConnectedAt.IsZero() {
		duration = time.Since(ev.ConnectedAt).Milliseconds()
	}
	_ = PublishEvent(ctx, RoutingKeyWSEvents, EventEnvelope{
		EventType:  "ws_events",
		EventName:  ev.Name,
		OccurredAt: time.Now().UTC(),
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"kind":        "chat",
				"event":       ev.Name,
				"conn_id":     ev.ConnID,
				"duration_ms": duration,
				"reason":      ev.Reason,
			},
			"identity": map[string]interface{}{
				"user_id":   ev.UserID,
				"device_id": ev.DeviceID,
				"ip":        ev.IP,
			},
		},
	}, BuildHeaders(ev.RequestID, ev.TraceID))
}

// PublishMessageEvent publishes a message lifecycle envelope.
func PublishMessageEvent(ctx context.Context, name string, payload interface{}) {
	_ = PublishEvent(ctx, RoutingKeyMessageEvents, EventEnvelope{
		EventType:  "message_events",
		EventName:  name,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}, nil)
}
