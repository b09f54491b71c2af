package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"cipher-chat/internal/mocks"
)

func captureEnvelope(publisher *mocks.PublisherMock, got *AuditEnvelope) {
	publisher.On("Publish", mock.Anything, "audit.chat", mock.AnythingOfType("telemetry.AuditEnvelope")).
		Run(func(args mock.Arguments) { *got = args.Get(2).(AuditEnvelope) }).
		Return(nil).Once()
}

func TestAuditEmitterDenied(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := NewAuditEmitter(publisher, "audit.chat", "cipher-chat", "test", nil)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	emitter.now = func() time.Time { return fixed }

	var got AuditEnvelope
	captureEnvelope(publisher, &got)

	emitter.Denied(context.Background(), ActionEditDenied, "req-1", "mallory", "m1")

	publisher.AssertExpectations(t)
	require.Equal(t, "chat_audit", got.EventType)
	assert.Equal(t, AuditWarn, got.Level)
	assert.Equal(t, ActionEditDenied, got.Action)
	assert.Equal(t, "cipher-chat", got.Service)
	assert.Equal(t, "test", got.Environment)
	assert.Equal(t, "req-1", got.RequestID)
	assert.Equal(t, "mallory", got.UserID)
	assert.Equal(t, "m1", got.MessageID)
	assert.Equal(t, fixed.UTC(), got.OccurredAt)
	assert.Empty(t, got.TraceID)
}

func TestAuditEmitterDefaultsLevelAndCarriesTrace(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := NewAuditEmitter(publisher, "audit.chat", "cipher-chat", "test", nil)

	var got AuditEnvelope
	captureEnvelope(publisher, &got)

	traceID := trace.TraceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  trace.SpanID{1, 2, 3, 4, 5, 6, 7, 8},
	}))
	emitter.Emit(ctx, AuditRecord{Action: ActionMessageDeleted, UserID: "alice", Fields: map[string]string{"k": "v"}})

	publisher.AssertExpectations(t)
	assert.Equal(t, AuditInfo, got.Level)
	assert.Equal(t, traceID.String(), got.TraceID)
	assert.Equal(t, "v", got.Fields["k"])
}

func TestAuditEmitterNilSafe(t *testing.T) {
	var emitter *AuditEmitter
	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), AuditRecord{Action: ActionAuditProbe})
		emitter.Denied(context.Background(), ActionAckDenied, "", "bob", "m1")
	})

	publisher := new(mocks.PublisherMock)
	failing := NewAuditEmitter(publisher, "audit.chat", "cipher-chat", "test", nil)
	publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError).Once()
	assert.NotPanics(t, func() {
		failing.Emit(context.Background(), AuditRecord{Action: ActionAuditProbe})
	})
	publisher.AssertExpectations(t)
}
