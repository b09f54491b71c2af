package ws

import (
	"log/slog"
	"sync"

	"cipher-chat/internal/models"
	"cipher-chat/internal/observability"
)

// PresenceBroadcaster pushes the full online-user set to every session
// whenever the set changes. Clients replace their set wholesale, so no deltas
// are tracked. Broadcasts are serialized: each session's queue receives
// snapshots in the order they were taken.
type PresenceBroadcaster struct {
	registry *Registry
	log      *slog.Logger
	mu       sync.Mutex
}

func NewPresenceBroadcaster(registry *Registry, log *slog.Logger) *PresenceBroadcaster {
	return &PresenceBroadcaster{registry: registry, log: log}
}

// Broadcast sends getOnlineUsers to all sessions, including the one whose
// connect or disconnect caused the change.
func (p *PresenceBroadcaster) Broadcast() {
	p.mu.Lock()
	defer p.mu.Unlock()

	users := p.registry.OnlineUsers()
	frame, err := models.NewSocketEvent(models.EventOnlineUsers, users)
	if err != nil {
		p.log.Error("presence.encode.fail", "err", err)
		return
	}
	for _, s := range p.registry.Sessions() {
		s.Enqueue(frame)
	}
	observability.SetOnlineUsers(len(users))
}
