package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusCanAdvanceTo(t *testing.T) {
	assert.True(t, StatusSent.CanAdvanceTo(StatusDelivered))
	assert.True(t, StatusSent.CanAdvanceTo(StatusRead))
	assert.True(t, StatusDelivered.CanAdvanceTo(StatusRead))

	assert.False(t, StatusRead.CanAdvanceTo(StatusDelivered))
	assert.False(t, StatusDelivered.CanAdvanceTo(StatusDelivered))
	assert.False(t, StatusDelivered.CanAdvanceTo(StatusSent))
	assert.False(t, StatusSent.CanAdvanceTo(Status("archived")))
}

func TestStatusesBefore(t *testing.T) {
	assert.Equal(t, []Status{StatusSent}, StatusesBefore(StatusDelivered))
	assert.Equal(t, []Status{StatusSent, StatusDelivered}, StatusesBefore(StatusRead))
	assert.Empty(t, StatusesBefore(StatusSent))
}

func TestNewMessageIDSortsByTime(t *testing.T) {
	now := time.Now()
	first := NewMessageID(now)
	second := NewMessageID(now.Add(time.Millisecond))
	assert.Less(t, first, second)
	assert.Len(t, first, 26)
}

func TestNewSocketEvent(t *testing.T) {
	frame, err := NewSocketEvent(EventMessageDeleted, MessageDeleted{ID: "m1"})
	assert.NoError(t, err)
	assert.JSONEq(t, `{"event":"messageDeleted","data":{"id":"m1"}}`, string(frame))
}
