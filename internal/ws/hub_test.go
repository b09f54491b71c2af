package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipher-chat/internal/models"
)

// drain returns every frame queued on s without blocking.
func drain(t *testing.T, s *Session) []models.SocketEvent {
	t.Helper()
	var events []models.SocketEvent
	for {
		select {
		case frame := <-s.Outbound():
			var ev models.SocketEvent
			require.NoError(t, json.Unmarshal(frame, &ev))
			events = append(events, ev)
		default:
			return events
		}
	}
}

func eventsNamed(events []models.SocketEvent, name string) []models.SocketEvent {
	var out []models.SocketEvent
	for _, ev := range events {
		if ev.Event == name {
			out = append(out, ev)
		}
	}
	return out
}

func onlineUsers(t *testing.T, ev models.SocketEvent) []string {
	t.Helper()
	var users []string
	require.NoError(t, json.Unmarshal(ev.Data, &users))
	return users
}

func TestHubBroadcastsPresenceOnConnectAndLastDisconnect(t *testing.T) {
	hub := NewHub(nil)
	alice := NewSession("alice", ConnInfo{}, 0)
	bob1 := NewSession("bob", ConnInfo{}, 0)
	bob2 := NewSession("bob", ConnInfo{}, 0)

	hub.Connect(alice)
	events := drain(t, alice)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventOnlineUsers, events[0].Event)
	assert.Equal(t, []string{"alice"}, onlineUsers(t, events[0]))

	hub.Connect(bob1)
	hub.Connect(bob2)
	aliceEvents := eventsNamed(drain(t, alice), models.EventOnlineUsers)
	require.Len(t, aliceEvents, 2)
	assert.Equal(t, []string{"alice", "bob"}, onlineUsers(t, aliceEvents[1]))
	bobEvents := drain(t, bob1)
	require.NotEmpty(t, bobEvents)
	assert.Equal(t, []string{"alice", "bob"}, onlineUsers(t, bobEvents[len(bobEvents)-1]))

	hub.Disconnect(bob1.ID)
	assert.Empty(t, drain(t, alice), "bob is still online on another tab")

	hub.Disconnect(bob2.ID)
	aliceEvents = drain(t, alice)
	require.Len(t, aliceEvents, 1)
	assert.Equal(t, []string{"alice"}, onlineUsers(t, aliceEvents[0]))

	select {
	case <-bob2.Done():
	default:
		t.Fatal("disconnect should close the session")
	}
}

func TestHubNotifyUsersReachesEverySessionOnce(t *testing.T) {
	hub := NewHub(nil)
	alice1 := NewSession("alice", ConnInfo{}, 0)
	alice2 := NewSession("alice", ConnInfo{}, 0)
	bob := NewSession("bob", ConnInfo{}, 0)
	carol := NewSession("carol", ConnInfo{}, 0)
	for _, s := range []*Session{alice1, alice2, bob, carol} {
		hub.Connect(s)
		drain(t, s)
	}
	for _, s := range []*Session{alice1, alice2, bob, carol} {
		drain(t, s)
	}

	hub.NotifyUsers(models.EventMessageDeleted, models.MessageDeleted{ID: "m1"}, "alice", "bob", "alice", "dave")

	for _, s := range []*Session{alice1, alice2, bob} {
		events := drain(t, s)
		require.Len(t, events, 1, s.UserID)
		assert.Equal(t, models.EventMessageDeleted, events[0].Event)
		assert.JSONEq(t, `{"id":"m1"}`, string(events[0].Data))
	}
	assert.Empty(t, drain(t, carol))
}

func TestHubCloseShutsSessionsDown(t *testing.T) {
	hub := NewHub(nil)
	s := NewSession("alice", ConnInfo{}, 0)
	hub.Connect(s)

	hub.Close()

	select {
	case <-s.Done():
	default:
		t.Fatal("session should be closed")
	}
}
