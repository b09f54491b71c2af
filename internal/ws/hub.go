package ws

import (
	"log/slog"

	"cipher-chat/internal/models"
	"cipher-chat/internal/observability"
)

// Hub owns the session registry and fans events out to users' sessions.
// It is constructed at server start and closed at shutdown.
type Hub struct {
	registry *Registry
	presence *PresenceBroadcaster
	log      *slog.Logger
}

// NewHub creates an empty hub wired to its presence broadcaster.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	h := &Hub{log: log}
	h.registry = NewRegistry(func() { h.presence.Broadcast() })
	h.presence = NewPresenceBroadcaster(h.registry, log)
	return h
}

// Registry exposes the session registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Connect registers a session; presence is broadcast as a side effect.
func (h *Hub) Connect(s *Session) {
	if h.registry.Register(s) {
		h.log.Debug("hub.session.registered", "session_id", s.ID, "user_id", s.UserID)
	}
}

// Disconnect unregisters and closes a session. Unknown ids are ignored.
func (h *Hub) Disconnect(sessionID string) {
	if s, ok := h.registry.Unregister(sessionID); ok {
		s.Close()
		h.log.Debug("hub.session.unregistered", "session_id", sessionID, "user_id", s.UserID)
	}
}

// NotifyUsers sends event to every session of each distinct user. Users
// without live sessions are skipped; durable state lives in the store.
func (h *Hub) NotifyUsers(event string, data any, userIDs ...string) {
	frame, err := models.NewSocketEvent(event, data)
	if err != nil {
		h.log.Error("hub.encode.fail", "event", event, "err", err)
		return
	}
	seen := make(map[string]struct{}, len(userIDs))
	for _, userID := range userIDs {
		if _, dup := seen[userID]; dup || userID == "" {
			continue
		}
		seen[userID] = struct{}{}
		for _, s := range h.registry.SessionsFor(userID) {
			if !s.Enqueue(frame) {
				observability.IncWSQueueDrop()
				h.log.Info("hub.enqueue.drop", "event", event, "session_id", s.ID, "user_id", userID)
			}
		}
	}
}

// SendToSession sends event to a single session.
func (h *Hub) SendToSession(s *Session, event string, data any) {
	frame, err := models.NewSocketEvent(event, data)
	if err != nil {
		h.log.Error("hub.encode.fail", "event", event, "err", err)
		return
	}
	if !s.Enqueue(frame) {
		observability.IncWSQueueDrop()
	}
}

// Close shuts every session down. Writers flush a close frame and readers
// unregister their sessions as the connections drop.
func (h *Hub) Close() {
	for _, s := range h.registry.Sessions() {
		s.Close()
	}
}
