// Package delivery drives the message lifecycle: sent -> delivered -> read,
// plus sender-only edit and soft delete.
//
// Every transition is written to the store first and fanned out to the
// participants' sessions only after the write succeeded. Status transitions
// are guarded at the store level, so duplicate or late acknowledgements are
// absorbed without error and status never moves backwards.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"cipher-chat/internal/models"
	"cipher-chat/internal/observability"
	"cipher-chat/internal/repositories"
	"cipher-chat/internal/telemetry"
)

const defaultMaxTextLength = 4000

// Notifier fans an event out to every live session of the given users.
type Notifier interface {
	NotifyUsers(event string, data any, userIDs ...string)
}

// Config tunes the service.
type Config struct {
	MaxTextLength int
	StoreTimeout  time.Duration
}

// Service implements the delivery state machine.
type Service struct {
	repo     repositories.MessageRepository
	notifier Notifier
	audit    *telemetry.AuditEmitter
	log      *slog.Logger
	tracer   trace.Tracer

	maxTextLength int
	storeTimeout  time.Duration
	now           func() time.Time
}

// NewService constructs a Service. audit may be nil.
func NewService(repo repositories.MessageRepository, notifier Notifier, audit *telemetry.AuditEmitter, log *slog.Logger, cfg Config) *Service {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxTextLength <= 0 {
		cfg.MaxTextLength = defaultMaxTextLength
	}
	return &Service{
		repo:          repo,
		notifier:      notifier,
		audit:         audit,
		log:           log,
		tracer:        otel.Tracer("cipher-chat/delivery"),
		maxTextLength: cfg.MaxTextLength,
		storeTimeout:  cfg.StoreTimeout,
		now:           time.Now,
	}
}

// Send stores a new message in the sent state and pushes it to the receiver's
// sessions and the sender's own sessions, so other tabs stay in sync. An
// offline receiver picks it up on the next history fetch.
func (s *Service) Send(ctx context.Context, senderID, receiverID, text, image string) (models.Message, error) {
	ctx, span := s.tracer.Start(ctx, "delivery.send", trace.WithAttributes(
		attribute.String("sender_id", senderID),
		attribute.String("receiver_id", receiverID),
	))
	defer span.End()

	text = strings.TrimSpace(text)
	image = strings.TrimSpace(image)
	if senderID == "" || receiverID == "" || senderID == receiverID {
		return models.Message{}, fmt.Errorf("%w: bad participants", ErrInvalidMessage)
	}
	if text == "" && image == "" {
		return models.Message{}, fmt.Errorf("%w: text or image required", ErrInvalidMessage)
	}
	if utf8.RuneCountInString(text) > s.maxTextLength {
		return models.Message{}, fmt.Errorf("%w: text too long", ErrInvalidMessage)
	}

	now := s.now().UTC()
	storeCtx, cancel := s.storeContext(ctx, "send")
	defer cancel()
	msg, err := s.repo.Create(storeCtx, models.Message{
		ID:         models.NewMessageID(now),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		Image:      image,
		Status:     models.StatusSent,
		CreatedAt:  now,
	})
	if err != nil {
		recordErr(span, err)
		return models.Message{}, fmt.Errorf("store message: %w", err)
	}

	s.notifier.NotifyUsers(models.EventNewMessage, msg, receiverID, senderID)
	observability.AddMessageTransitions(string(models.StatusSent), 1)
	observability.PublishMessageEvent(ctx, "message_sent", msg)
	return msg, nil
}

// Deliver applies a receipt acknowledgement from one of the receiver's sessions.
// It reports whether the status changed; acknowledgements for messages that are
// already delivered or read are ignored.
func (s *Service) Deliver(ctx context.Context, messageID, receiverID string) (models.Message, bool, error) {
	ctx, span := s.tracer.Start(ctx, "delivery.deliver", trace.WithAttributes(attribute.String("message_id", messageID)))
	defer span.End()

	storeCtx, cancel := s.storeContext(ctx, "deliver")
	defer cancel()

	msg, err := s.repo.FindByID(storeCtx, messageID)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			return models.Message{}, false, ErrNotFound
		}
		recordErr(span, err)
		return models.Message{}, false, fmt.Errorf("load message: %w", err)
	}
	if msg.ReceiverID != receiverID {
		s.audit.Denied(ctx, telemetry.ActionAckDenied, observability.RequestIDFromContext(ctx), receiverID, messageID)
		return models.Message{}, false, ErrForbidden
	}

	updated, err := s.repo.UpdateStatusBulk(storeCtx, repositories.MessageFilter{
		ID:         messageID,
		ReceiverID: receiverID,
		Statuses:   []models.Status{models.StatusSent},
	}, models.StatusDelivered)
	if err != nil {
		recordErr(span, err)
		return models.Message{}, false, fmt.Errorf("mark delivered: %w", err)
	}
	if len(updated) == 0 {
		s.log.Debug("delivery.ack.ignored", "message_id", messageID, "status", msg.Status)
		return msg, false, nil
	}

	s.publishStatus(ctx, updated)
	return updated[0], true, nil
}

// FetchHistory returns the conversation between userID and otherID. Every
// message from otherID still in sent is moved to delivered first, so a
// reconnecting receiver acknowledges what it missed while offline.
func (s *Service) FetchHistory(ctx context.Context, userID, otherID string) ([]models.Message, error) {
	ctx, span := s.tracer.Start(ctx, "delivery.fetch_history")
	defer span.End()

	if userID == "" || otherID == "" {
		return nil, fmt.Errorf("%w: bad participants", ErrInvalidMessage)
	}

	storeCtx, cancel := s.storeContext(ctx, "fetch_history")
	defer cancel()

	updated, err := s.repo.UpdateStatusBulk(storeCtx, repositories.MessageFilter{
		SenderID:   otherID,
		ReceiverID: userID,
		Statuses:   []models.Status{models.StatusSent},
	}, models.StatusDelivered)
	if err != nil {
		// History is still served; the next fetch retries the transition.
		s.log.Warn("delivery.history.deliver.fail", "user_id", userID, "other_id", otherID, "err", err)
	} else if len(updated) > 0 {
		s.publishStatus(ctx, updated)
	}

	msgs, err := s.repo.Find(storeCtx, repositories.MessageFilter{Between: [2]string{userID, otherID}})
	if err != nil {
		recordErr(span, err)
		return nil, fmt.Errorf("load history: %w", err)
	}
	return msgs, nil
}

// MarkRead moves every unread message from otherID to readerID into read in a
// single store update, then sends one collapsed receipt to both users.
func (s *Service) MarkRead(ctx context.Context, readerID, otherID string) ([]models.Message, error) {
	ctx, span := s.tracer.Start(ctx, "delivery.mark_read", trace.WithAttributes(
		attribute.String("reader_id", readerID),
		attribute.String("other_id", otherID),
	))
	defer span.End()

	if readerID == "" || otherID == "" || readerID == otherID {
		return nil, fmt.Errorf("%w: bad participants", ErrInvalidMessage)
	}

	storeCtx, cancel := s.storeContext(ctx, "mark_read")
	defer cancel()
	updated, err := s.repo.UpdateStatusBulk(storeCtx, repositories.MessageFilter{
		SenderID:   otherID,
		ReceiverID: readerID,
	}, models.StatusRead)
	if err != nil {
		recordErr(span, err)
		return nil, fmt.Errorf("mark read: %w", err)
	}
	if len(updated) == 0 {
		return updated, nil
	}

	ids := make([]string, 0, len(updated))
	for _, m := range updated {
		ids = append(ids, m.ID)
	}
	receipt := models.MessagesRead{ReaderID: readerID, SenderID: otherID, MessageIDs: ids}
	s.notifier.NotifyUsers(models.EventMessagesRead, receipt, otherID, readerID)
	observability.AddMessageTransitions(string(models.StatusRead), len(updated))
	observability.PublishMessageEvent(ctx, "messages_read", receipt)
	return updated, nil
}

// Edit replaces the text of a message. Only the sender may edit, and only
// while the message is not deleted. Status is left untouched.
func (s *Service) Edit(ctx context.Context, userID, messageID, text string) (models.Message, error) {
	ctx, span := s.tracer.Start(ctx, "delivery.edit", trace.WithAttributes(attribute.String("message_id", messageID)))
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return models.Message{}, fmt.Errorf("%w: text required", ErrInvalidMessage)
	}
	if utf8.RuneCountInString(text) > s.maxTextLength {
		return models.Message{}, fmt.Errorf("%w: text too long", ErrInvalidMessage)
	}

	storeCtx, cancel := s.storeContext(ctx, "edit")
	defer cancel()

	msg, err := s.loadOwned(storeCtx, ctx, userID, messageID, telemetry.ActionEditDenied)
	if err != nil {
		return models.Message{}, err
	}
	if msg.Deleted {
		return models.Message{}, ErrMessageDeleted
	}

	updated, err := s.repo.UpdateText(storeCtx, messageID, userID, text, s.now().UTC())
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			// deleted between load and update
			return models.Message{}, ErrMessageDeleted
		}
		recordErr(span, err)
		return models.Message{}, fmt.Errorf("edit message: %w", err)
	}

	s.notifier.NotifyUsers(models.EventMessageUpdated, updated, updated.Participants()...)
	observability.AddMessageTransitions("edited", 1)
	observability.PublishMessageEvent(ctx, "message_edited", updated)
	s.audit.Emit(ctx, telemetry.AuditRecord{Action: telemetry.ActionMessageEdited, RequestID: observability.RequestIDFromContext(ctx), UserID: userID, MessageID: messageID})
	return updated, nil
}

// Delete soft-deletes a message: content is cleared, the id stays in the
// timeline. Only the sender may delete. Deleting twice is a no-op.
func (s *Service) Delete(ctx context.Context, userID, messageID string) (models.Message, error) {
	ctx, span := s.tracer.Start(ctx, "delivery.delete", trace.WithAttributes(attribute.String("message_id", messageID)))
	defer span.End()

	storeCtx, cancel := s.storeContext(ctx, "delete")
	defer cancel()

	msg, err := s.loadOwned(storeCtx, ctx, userID, messageID, telemetry.ActionDeleteDenied)
	if err != nil {
		return models.Message{}, err
	}
	if msg.Deleted {
		return msg, nil
	}

	deleted, err := s.repo.SoftDelete(storeCtx, messageID, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			// lost a race with a concurrent delete; the winner broadcast it
			return s.alreadyDeleted(storeCtx, messageID)
		}
		recordErr(span, err)
		return models.Message{}, fmt.Errorf("delete message: %w", err)
	}

	s.notifier.NotifyUsers(models.EventMessageDeleted, models.MessageDeleted{ID: deleted.ID}, deleted.Participants()...)
	observability.AddMessageTransitions("deleted", 1)
	observability.PublishMessageEvent(ctx, "message_deleted", models.MessageDeleted{ID: deleted.ID})
	s.audit.Emit(ctx, telemetry.AuditRecord{Action: telemetry.ActionMessageDeleted, RequestID: observability.RequestIDFromContext(ctx), UserID: userID, MessageID: messageID})
	return deleted, nil
}

func (s *Service) alreadyDeleted(ctx context.Context, messageID string) (models.Message, error) {
	msg, err := s.repo.FindByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			return models.Message{}, ErrNotFound
		}
		return models.Message{}, fmt.Errorf("reload message: %w", err)
	}
	if !msg.Deleted {
		return models.Message{}, ErrNotFound
	}
	return msg, nil
}

func (s *Service) loadOwned(storeCtx, ctx context.Context, userID, messageID, deniedAction string) (models.Message, error) {
	msg, err := s.repo.FindByID(storeCtx, messageID)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			return models.Message{}, ErrNotFound
		}
		return models.Message{}, fmt.Errorf("load message: %w", err)
	}
	if msg.SenderID != userID {
		s.audit.Denied(ctx, deniedAction, observability.RequestIDFromContext(ctx), userID, messageID)
		return models.Message{}, ErrForbidden
	}
	return msg, nil
}

func (s *Service) publishStatus(ctx context.Context, updated []models.Message) {
	for _, m := range updated {
		s.notifier.NotifyUsers(models.EventMessageStatusUpdated, m, m.Participants()...)
		observability.PublishMessageEvent(ctx, "message_delivered", m)
	}
	observability.AddMessageTransitions(string(models.StatusDelivered), len(updated))
}

// storeContext bounds the store calls of op; the returned cancel also records
// their latency.
func (s *Service) storeContext(ctx context.Context, op string) (context.Context, context.CancelFunc) {
	start := time.Now()
	if s.storeTimeout <= 0 {
		return ctx, func() { observability.ObserveStoreOp(op, start) }
	}
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	return storeCtx, func() {
		cancel()
		observability.ObserveStoreOp(op, start)
	}
}

func recordErr(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
