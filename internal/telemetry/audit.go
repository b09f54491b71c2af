package telemetry

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

type AuditLevel string

const (
	AuditInfo AuditLevel = "INFO"
	AuditWarn AuditLevel = "WARN"
)

// Audit actions.
const (
	ActionMessageEdited   = "message.edited"
	ActionMessageDeleted  = "message.deleted"
	ActionEditDenied      = "message.edit_denied"
	ActionDeleteDenied    = "message.delete_denied"
	ActionAckDenied       = "message.ack_denied"
	ActionIdentityClaimed = "socket.identity_claimed"
	ActionAuditProbe      = "debug.audit_probe"
)

// AuditRecord is one security-relevant decision: a rejected claim or an
// accepted change to an existing message.
type AuditRecord struct {
	Level     AuditLevel
	Action    string
	RequestID string
	UserID    string
	MessageID string
	Fields    map[string]string
}

// AuditEmitter publishes AuditRecords to the bus under one routing key.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	now         func() time.Time
	log         *slog.Logger
}

type AuditEnvelope struct {
	SchemaVersion int               `json:"schema_version"`
	EventType     string            `json:"event_type"`
	OccurredAt    time.Time         `json:"occurred_at"`
	Service       string            `json:"service"`
	Environment   string            `json:"environment"`
	Level         AuditLevel        `json:"level"`
	Action        string            `json:"action"`
	RequestID     string            `json:"request_id,omitempty"`
	TraceID       string            `json:"trace_id,omitempty"`
	UserID        string            `json:"user_id,omitempty"`
	MessageID     string            `json:"message_id,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string, log *slog.Logger) *AuditEmitter {
	if log == nil {
		log = slog.Default()
	}
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		now:         time.Now,
		log:         log,
	}
}

// Emit is safe on a nil emitter. Publish failures are logged, never returned.
func (e *AuditEmitter) Emit(ctx context.Context, rec AuditRecord) {
	if e == nil || e.publisher == nil {
		return
	}
	if rec.Level == "" {
		rec.Level = AuditInfo
	}

	envelope := AuditEnvelope{
		SchemaVersion: 2,
		EventType:     "chat_audit",
		OccurredAt:    e.now().UTC(),
		Service:       e.service,
		Environment:   e.environment,
		Level:         rec.Level,
		Action:        rec.Action,
		RequestID:     rec.RequestID,
		UserID:        rec.UserID,
		MessageID:     rec.MessageID,
		Fields:        rec.Fields,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		envelope.TraceID = sc.TraceID().String()
	}

	e.log.Debug("audit.emit", "action", rec.Action, "level", rec.Level, "user_id", rec.UserID, "message_id", rec.MessageID)
	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		e.log.Warn("audit.publish.fail", "action", rec.Action, "err", err)
	}
}

// Denied records a rejected attempt by userID.
func (e *AuditEmitter) Denied(ctx context.Context, action, requestID, userID, messageID string) {
	e.Emit(ctx, AuditRecord{Level: AuditWarn, Action: action, RequestID: requestID, UserID: userID, MessageID: messageID})
}
