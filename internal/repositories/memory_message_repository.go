package repositories

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"cipher-chat/internal/models"
)

// MemoryMessageRepo keeps messages in process memory. It mirrors MessageRepo
// semantics and is used for development runs and tests.
type MemoryMessageRepo struct {
	mu       sync.Mutex
	messages map[string]models.Message
}

// NewMemoryMessageRepo constructs an empty MemoryMessageRepo.
func NewMemoryMessageRepo() *MemoryMessageRepo {
	return &MemoryMessageRepo{messages: make(map[string]models.Message)}
}

func (r *MemoryMessageRepo) Create(ctx context.Context, msg models.Message) (models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.messages[msg.ID]; exists {
		return models.Message{}, errors.New("duplicate message id")
	}
	r.messages[msg.ID] = msg
	return msg, nil
}

func (r *MemoryMessageRepo) FindByID(ctx context.Context, messageID string) (models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[messageID]
	if !ok {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, nil
}

func (r *MemoryMessageRepo) Find(ctx context.Context, filter MessageFilter) ([]models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Message{}
	for _, msg := range r.messages {
		if matches(msg, filter) {
			out = append(out, msg)
		}
	}
	sortMessages(out)
	return out, nil
}

func (r *MemoryMessageRepo) UpdateStatusBulk(ctx context.Context, filter MessageFilter, status models.Status) ([]models.Message, error) {
	filter.Statuses = guardStatuses(filter.Statuses, status)
	out := []models.Message{}
	if len(filter.Statuses) == 0 {
		return out, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, msg := range r.messages {
		if !matches(msg, filter) {
			continue
		}
		msg.Status = status
		r.messages[id] = msg
		out = append(out, msg)
	}
	sortMessages(out)
	return out, nil
}

func (r *MemoryMessageRepo) UpdateText(ctx context.Context, messageID string, senderID string, text string, editedAt time.Time) (models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[messageID]
	if !ok || msg.SenderID != senderID || msg.Deleted {
		return models.Message{}, ErrMessageNotFound
	}
	msg.Text = text
	msg.EditedAt = &editedAt
	r.messages[messageID] = msg
	return msg, nil
}

func (r *MemoryMessageRepo) SoftDelete(ctx context.Context, messageID string, senderID string) (models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[messageID]
	if !ok || msg.SenderID != senderID || msg.Deleted {
		return models.Message{}, ErrMessageNotFound
	}
	msg.Deleted = true
	msg.Text = ""
	msg.Image = ""
	r.messages[messageID] = msg
	return msg, nil
}

func matches(msg models.Message, f MessageFilter) bool {
	if f.ID != "" && msg.ID != f.ID {
		return false
	}
	if f.SenderID != "" && msg.SenderID != f.SenderID {
		return false
	}
	if f.ReceiverID != "" && msg.ReceiverID != f.ReceiverID {
		return false
	}
	if a, b := f.Between[0], f.Between[1]; a != "" && b != "" {
		if !(msg.SenderID == a && msg.ReceiverID == b) && !(msg.SenderID == b && msg.ReceiverID == a) {
			return false
		}
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if msg.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func sortMessages(msgs []models.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}

var _ MessageRepository = (*MessageRepo)(nil)
var _ MessageRepository = (*MemoryMessageRepo)(nil)
