package ws

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryTracksSessionsPerUser(t *testing.T) {
	var changes atomic.Int32
	reg := NewRegistry(func() { changes.Add(1) })

	tab1 := NewSession("alice", ConnInfo{}, 0)
	tab2 := NewSession("alice", ConnInfo{}, 0)
	bob := NewSession("bob", ConnInfo{}, 0)

	require.True(t, reg.Register(tab1))
	require.True(t, reg.Register(tab2))
	require.True(t, reg.Register(bob))

	assert.Equal(t, 3, reg.Len())
	assert.ElementsMatch(t, []*Session{tab1, tab2}, reg.SessionsFor("alice"))
	assert.Equal(t, []string{"alice", "bob"}, reg.OnlineUsers())
	assert.Equal(t, int32(3), changes.Load())

	_, ok := reg.Unregister(tab1.ID)
	require.True(t, ok)
	assert.True(t, reg.IsOnline("alice"))
	assert.Equal(t, int32(3), changes.Load(), "alice still has a tab open")

	_, ok = reg.Unregister(tab2.ID)
	require.True(t, ok)
	assert.False(t, reg.IsOnline("alice"))
	assert.Empty(t, reg.SessionsFor("alice"))
	assert.Equal(t, []string{"bob"}, reg.OnlineUsers())
	assert.Equal(t, int32(4), changes.Load())
}

func TestRegistryRegisterAndUnregisterAreIdempotent(t *testing.T) {
	var changes atomic.Int32
	reg := NewRegistry(func() { changes.Add(1) })
	s := NewSession("alice", ConnInfo{}, 0)

	assert.True(t, reg.Register(s))
	assert.False(t, reg.Register(s))
	assert.Equal(t, 1, reg.Len())

	_, ok := reg.Unregister(s.ID)
	assert.True(t, ok)
	_, ok = reg.Unregister(s.ID)
	assert.False(t, ok)
	_, ok = reg.Unregister("never-registered")
	assert.False(t, ok)

	assert.Equal(t, 0, reg.Len())
	assert.Empty(t, reg.OnlineUsers())
	assert.Equal(t, int32(2), changes.Load())
}

func TestRegistryConcurrentConnects(t *testing.T) {
	reg := NewRegistry(nil)

	var wg sync.WaitGroup
	sessions := make([]*Session, 100)
	for i := range sessions {
		sessions[i] = NewSession([]string{"alice", "bob", "carol"}[i%3], ConnInfo{}, 0)
	}
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			reg.Register(s)
		}(s)
	}
	wg.Wait()
	assert.Equal(t, 100, reg.Len())
	assert.Equal(t, []string{"alice", "bob", "carol"}, reg.OnlineUsers())

	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			reg.Unregister(s.ID)
		}(s)
	}
	wg.Wait()
	assert.Equal(t, 0, reg.Len())
	assert.Empty(t, reg.OnlineUsers())
}

func TestSessionEnqueueClosesWhenFull(t *testing.T) {
	s := NewSession("alice", ConnInfo{}, 2)

	assert.True(t, s.Enqueue([]byte("1")))
	assert.True(t, s.Enqueue([]byte("2")))
	assert.False(t, s.Enqueue([]byte("3")))

	select {
	case <-s.Done():
	default:
		t.Fatal("slow session should be closed")
	}
	assert.False(t, s.Enqueue([]byte("4")))
	s.Close()
}
