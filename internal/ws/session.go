package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultSendQueueSize = 64

// Session is one live transport connection of a user (one tab or device).
//
// The outbound queue is never closed; done signals shutdown instead, so
// concurrent fan-out can never write to a closed channel.
type Session struct {
	ID          string
	UserID      string
	ConnectedAt time.Time
	Info        ConnInfo

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewSession constructs a Session with a bounded outbound queue.
func NewSession(userID string, info ConnInfo, sendQueueSize int) *Session {
	if sendQueueSize <= 0 {
		sendQueueSize = defaultSendQueueSize
	}
	return &Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		ConnectedAt: time.Now(),
		Info:        info,
		send:        make(chan []byte, sendQueueSize),
		done:        make(chan struct{}),
	}
}

// Enqueue queues a frame without blocking. A session whose queue is full is
// too slow to keep up and gets closed; it will resync from history on reconnect.
func (s *Session) Enqueue(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- frame:
		return true
	default:
		s.Close()
		return false
	}
}

// Outbound exposes queued frames to the writer.
func (s *Session) Outbound() <-chan []byte {
	return s.send
}

// Done is closed once the session shuts down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close is idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}
