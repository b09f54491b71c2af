package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/trace"
)

// Publisher sends JSON events to the message bus.
type Publisher interface {
	PublishJSON(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error
}

var (
	busMu sync.RWMutex
	bus   Publisher
)

// SetPublisher installs the process-wide bus. nil disables publishing.
func SetPublisher(publisher Publisher) {
	busMu.Lock()
	bus = publisher
	busMu.Unlock()
}

// PublishEvent sends message under routingKey. Headers missing a request or
// trace id are completed from ctx. Failures are counted and returned; callers
// on the delivery path ignore them.
func PublishEvent(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	busMu.RLock()
	publisher := bus
	busMu.RUnlock()
	if publisher == nil {
		return nil
	}

	if err := publisher.PublishJSON(ctx, routingKey, message, withContextHeaders(ctx, headers)); err != nil {
		IncAMQPPublishError()
		return err
	}
	return nil
}

func withContextHeaders(ctx context.Context, headers map[string]string) map[string]string {
	requestID := RequestIDFromContext(ctx)
	var traceID string
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	if requestID == "" && traceID == "" {
		return headers
	}

	out := BuildHeaders(requestID, traceID)
	for k, v := range headers {
		out[k] = v
	}
	return out
}
