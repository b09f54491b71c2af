package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"cipher-chat/internal/delivery"
	"cipher-chat/internal/models"
	"cipher-chat/internal/observability"
	"cipher-chat/internal/telemetry"
)

var (
	errUnknownEvent  = errors.New("unknown event")
	errBadPayload    = errors.New("malformed payload")
	errClaimMismatch = errors.New("claimed identity does not match session")
)

// DeliveryService is the part of the delivery state machine driven by socket events.
type DeliveryService interface {
	Deliver(ctx context.Context, messageID, receiverID string) (models.Message, bool, error)
	MarkRead(ctx context.Context, readerID, otherID string) ([]models.Message, error)
}

type eventHandler func(ctx context.Context, s *Session, event string, data json.RawMessage) error

// Router binds inbound socket events to registry, delivery and relay
// operations. Dispatch is called by one read loop per session, so events of a
// session are handled in arrival order.
type Router struct {
	hub      *Hub
	delivery DeliveryService
	calls    *CallRelay
	audit    *telemetry.AuditEmitter
	log      *slog.Logger
	handlers map[string]eventHandler
}

// NewRouter builds the event table. audit may be nil.
func NewRouter(hub *Hub, deliverySvc DeliveryService, audit *telemetry.AuditEmitter, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	r := &Router{
		hub:      hub,
		delivery: deliverySvc,
		calls:    NewCallRelay(hub, log),
		audit:    audit,
		log:      log,
	}
	r.handlers = map[string]eventHandler{
		models.EventMessageDelivered: r.onMessageDelivered,
		models.EventMarkAsRead:       r.onMarkAsRead,
		models.EventTyping:           r.onTyping,
		models.EventStopTyping:       r.onTyping,
		models.EventCallUser:         r.onCall,
		models.EventCallAccepted:     r.onCall,
		models.EventCallRejected:     r.onCall,
		models.EventCallEnded:        r.onCall,
		models.EventICECandidate:     r.onCall,
		models.EventPing:             r.onPing,
	}
	return r
}

// Dispatch decodes one inbound frame and runs its handler. Failures are
// logged and swallowed: a bad event never takes the connection down.
func (r *Router) Dispatch(ctx context.Context, s *Session, frame []byte) {
	var ev models.SocketEvent
	if err := json.Unmarshal(frame, &ev); err != nil {
		observability.IncWSEvent("bad_frame")
		r.log.Debug("ws.frame.invalid", "session_id", s.ID, "err", err)
		return
	}

	handler, ok := r.handlers[ev.Event]
	if !ok {
		observability.IncWSEvent("unknown")
		r.log.Debug("ws.event.unknown", "session_id", s.ID, "event", ev.Event)
		return
	}

	err := handler(ctx, s, ev.Event, ev.Data)
	switch {
	case err == nil:
		observability.IncWSEvent(ev.Event)
	case errors.Is(err, errClaimMismatch), errors.Is(err, delivery.ErrForbidden):
		observability.IncWSEvent("rejected")
		r.log.Info("ws.event.rejected", "session_id", s.ID, "user_id", s.UserID, "event", ev.Event, "err", err)
		if errors.Is(err, errClaimMismatch) {
			r.audit.Emit(ctx, telemetry.AuditRecord{
				Level:     telemetry.AuditWarn,
				Action:    telemetry.ActionIdentityClaimed,
				RequestID: s.Info.RequestID,
				UserID:    s.UserID,
				Fields:    map[string]string{"event": ev.Event, "session_id": s.ID},
			})
		}
	case errors.Is(err, delivery.ErrNotFound), errors.Is(err, errBadPayload), errors.Is(err, errBadSignal), errors.Is(err, delivery.ErrInvalidMessage):
		observability.IncWSEvent("dropped")
		r.log.Debug("ws.event.dropped", "session_id", s.ID, "event", ev.Event, "err", err)
	default:
		observability.IncWSEvent("failed")
		r.log.Warn("ws.event.fail", "session_id", s.ID, "event", ev.Event, "err", err)
	}
}

func (r *Router) onMessageDelivered(ctx context.Context, s *Session, _ string, data json.RawMessage) error {
	var ack models.DeliveredAck
	if err := json.Unmarshal(data, &ack); err != nil || ack.MessageID == "" {
		return errBadPayload
	}
	if ack.ReceiverID != "" && ack.ReceiverID != s.UserID {
		return errClaimMismatch
	}
	_, _, err := r.delivery.Deliver(ctx, ack.MessageID, s.UserID)
	return err
}

func (r *Router) onMarkAsRead(ctx context.Context, s *Session, _ string, data json.RawMessage) error {
	var req models.MarkAsRead
	if err := json.Unmarshal(data, &req); err != nil || req.UserToChatID == "" {
		return errBadPayload
	}
	if req.MyID != "" && req.MyID != s.UserID {
		return errClaimMismatch
	}
	_, err := r.delivery.MarkRead(ctx, s.UserID, req.UserToChatID)
	return err
}

// onTyping relays typing and stopTyping to the addressed user only.
func (r *Router) onTyping(ctx context.Context, s *Session, event string, data json.RawMessage) error {
	var typing models.Typing
	if err := json.Unmarshal(data, &typing); err != nil || typing.ReceiverID == "" {
		return errBadPayload
	}
	if typing.ReceiverID == s.UserID {
		return errBadPayload
	}
	typing.SenderID = s.UserID
	r.hub.NotifyUsers(event, typing, typing.ReceiverID)
	return nil
}

func (r *Router) onCall(ctx context.Context, s *Session, event string, data json.RawMessage) error {
	return r.calls.Relay(s, event, data)
}

func (r *Router) onPing(ctx context.Context, s *Session, _ string, data json.RawMessage) error {
	r.hub.SendToSession(s, models.EventPong, struct{}{})
	return nil
}
