package ws

import (
	"sort"
	"sync"
)

// Registry maps user ids to their live sessions. A user with no sessions has
// no entry, so the key set is exactly the presence set.
type Registry struct {
	mu       sync.RWMutex
	byUser   map[string]map[string]*Session
	byID     map[string]*Session
	onChange func()
}

// NewRegistry creates an empty registry. onChange, if set, is called after
// every presence-relevant change, outside the registry lock.
func NewRegistry(onChange func()) *Registry {
	return &Registry{
		byUser:   make(map[string]map[string]*Session),
		byID:     make(map[string]*Session),
		onChange: onChange,
	}
}

// Register adds a session. Registering the same session twice is a no-op.
func (r *Registry) Register(s *Session) bool {
	r.mu.Lock()
	if _, exists := r.byID[s.ID]; exists {
		r.mu.Unlock()
		return false
	}
	sessions, ok := r.byUser[s.UserID]
	if !ok {
		sessions = make(map[string]*Session)
		r.byUser[s.UserID] = sessions
	}
	sessions[s.ID] = s
	r.byID[s.ID] = s
	r.mu.Unlock()

	r.notify()
	return true
}

// Unregister removes a session by id. Unknown ids are ignored, so duplicate
// disconnects are harmless. The change listener fires only when the user's
// last session goes away.
func (r *Registry) Unregister(sessionID string) (*Session, bool) {
	r.mu.Lock()
	s, ok := r.byID[sessionID]
	if !ok {
		r.mu.Unlock()
		return nil, false
	}
	delete(r.byID, sessionID)
	last := false
	if sessions, ok := r.byUser[s.UserID]; ok {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(r.byUser, s.UserID)
			last = true
		}
	}
	r.mu.Unlock()

	if last {
		r.notify()
	}
	return s, true
}

// SessionsFor returns the user's live sessions; empty when offline.
func (r *Registry) SessionsFor(userID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessions := r.byUser[userID]
	out := make([]*Session, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s)
	}
	return out
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// OnlineUsers returns the presence set in ascending order.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	users := make([]string, 0, len(r.byUser))
	for userID := range r.byUser {
		users = append(users, userID)
	}
	r.mu.RUnlock()
	sort.Strings(users)
	return users
}

// Sessions returns every live session.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *Registry) notify() {
	if r.onChange != nil {
		r.onChange()
	}
}
