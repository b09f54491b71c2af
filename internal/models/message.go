package models

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Message represents a direct message between two users.
type Message struct {
	ID         string     `db:"id" json:"id"`
	SenderID   string     `db:"sender_id" json:"senderId"`
	ReceiverID string     `db:"receiver_id" json:"receiverId"`
	Text       string     `db:"text" json:"text,omitempty"`
	Image      string     `db:"image" json:"image,omitempty"`
	Status     Status     `db:"status" json:"status"`
	Deleted    bool       `db:"deleted" json:"deleted"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
	EditedAt   *time.Time `db:"edited_at" json:"editedAt,omitempty"`
}

// HasContent reports whether the message carries text or an image.
func (m Message) HasContent() bool {
	return m.Text != "" || m.Image != ""
}

// Involves reports whether userID is the sender or the receiver.
func (m Message) Involves(userID string) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}

// Participants returns sender and receiver ids.
func (m Message) Participants() []string {
	return []string{m.SenderID, m.ReceiverID}
}

// NewMessageID returns a lexically sortable message id.
func NewMessageID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
}
