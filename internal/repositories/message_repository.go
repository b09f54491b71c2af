package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"cipher-chat/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageFilter selects messages. Zero-valued fields do not constrain the query.
type MessageFilter struct {
	ID         string
	SenderID   string
	ReceiverID string
	// Between matches either direction of the conversation between the two users.
	Between  [2]string
	Statuses []models.Status
}

// MessageRepository defines interactions for direct messages.
type MessageRepository interface {
	Create(ctx context.Context, msg models.Message) (models.Message, error)
	FindByID(ctx context.Context, messageID string) (models.Message, error)
	Find(ctx context.Context, filter MessageFilter) ([]models.Message, error)
	// UpdateStatusBulk moves every message matching filter to status in one
	// atomic statement and returns the rows it changed.
	UpdateStatusBulk(ctx context.Context, filter MessageFilter, status models.Status) ([]models.Message, error)
	UpdateText(ctx context.Context, messageID string, senderID string, text string, editedAt time.Time) (models.Message, error)
	SoftDelete(ctx context.Context, messageID string, senderID string) (models.Message, error)
}

const messageColumns = `id, sender_id, receiver_id, text, image, status, deleted, created_at, edited_at`

// MessageRepo is a sqlx-backed repository. It works against postgres and sqlite3.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Create stores a new message.
func (r *MessageRepo) Create(ctx context.Context, msg models.Message) (models.Message, error) {
	query := r.db.Rebind(`INSERT INTO messages (` + messageColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, query,
		msg.ID, msg.SenderID, msg.ReceiverID, msg.Text, msg.Image, msg.Status, msg.Deleted, msg.CreatedAt, msg.EditedAt,
	)
	if err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// FindByID retrieves a single message.
func (r *MessageRepo) FindByID(ctx context.Context, messageID string) (models.Message, error) {
	return findByID(ctx, r.db, messageID)
}

// Find returns messages matching filter ordered by creation time.
func (r *MessageRepo) Find(ctx context.Context, filter MessageFilter) ([]models.Message, error) {
	where, args, err := buildWhere(filter)
	if err != nil {
		return nil, err
	}
	query, args, err := sqlx.In(`SELECT `+messageColumns+` FROM messages`+where+` ORDER BY created_at ASC, id ASC`, args...)
	if err != nil {
		return nil, err
	}
	msgs := []models.Message{}
	err = r.db.SelectContext(ctx, &msgs, r.db.Rebind(query), args...)
	return msgs, err
}

// UpdateStatusBulk advances matching messages to status. Rows whose current
// status is not before status are never touched, whatever the filter says.
func (r *MessageRepo) UpdateStatusBulk(ctx context.Context, filter MessageFilter, status models.Status) ([]models.Message, error) {
	filter.Statuses = guardStatuses(filter.Statuses, status)
	if len(filter.Statuses) == 0 {
		return []models.Message{}, nil
	}
	where, args, err := buildWhere(filter)
	if err != nil {
		return nil, err
	}
	args = append([]any{status}, args...)
	update, args, err := sqlx.In(`UPDATE messages SET status = ?`+where+` RETURNING id`, args...)
	if err != nil {
		return nil, err
	}

	msgs := []models.Message{}
	err = r.withTx(ctx, func(tx *sqlx.Tx) error {
		var ids []string
		if err := tx.SelectContext(ctx, &ids, tx.Rebind(update), args...); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		query, inArgs, err := sqlx.In(`SELECT `+messageColumns+` FROM messages WHERE id IN (?) ORDER BY created_at ASC, id ASC`, ids)
		if err != nil {
			return err
		}
		return tx.SelectContext(ctx, &msgs, tx.Rebind(query), inArgs...)
	})
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// UpdateText edits a message owned by senderID that has not been deleted.
func (r *MessageRepo) UpdateText(ctx context.Context, messageID string, senderID string, text string, editedAt time.Time) (models.Message, error) {
	query := `UPDATE messages SET text = ?, edited_at = ? WHERE id = ? AND sender_id = ? AND deleted = FALSE`
	return r.updateOne(ctx, messageID, query, text, editedAt, messageID, senderID)
}

// SoftDelete marks a live message owned by senderID as deleted and clears its
// content. An already deleted message reports ErrMessageNotFound.
func (r *MessageRepo) SoftDelete(ctx context.Context, messageID string, senderID string) (models.Message, error) {
	query := `UPDATE messages SET deleted = TRUE, text = '', image = '' WHERE id = ? AND sender_id = ? AND deleted = FALSE`
	return r.updateOne(ctx, messageID, query, messageID, senderID)
}

// updateOne runs a single-row update and reads the row back in the same transaction.
func (r *MessageRepo) updateOne(ctx context.Context, messageID, query string, args ...any) (models.Message, error) {
	var msg models.Message
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrMessageNotFound
		}
		msg, err = findByID(ctx, tx, messageID)
		return err
	})
	if err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

func (r *MessageRepo) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func findByID(ctx context.Context, q sqlx.QueryerContext, messageID string) (models.Message, error) {
	var msg models.Message
	err := sqlx.GetContext(ctx, q, &msg, rebind(q, `SELECT `+messageColumns+` FROM messages WHERE id=?`), messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

func rebind(q sqlx.QueryerContext, query string) string {
	if b, ok := q.(interface{ Rebind(string) string }); ok {
		return b.Rebind(query)
	}
	return query
}

func buildWhere(filter MessageFilter) (string, []any, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.ID != "" {
		clauses = append(clauses, "id = ?")
		args = append(args, filter.ID)
	}
	if filter.SenderID != "" {
		clauses = append(clauses, "sender_id = ?")
		args = append(args, filter.SenderID)
	}
	if filter.ReceiverID != "" {
		clauses = append(clauses, "receiver_id = ?")
		args = append(args, filter.ReceiverID)
	}
	if a, b := filter.Between[0], filter.Between[1]; a != "" && b != "" {
		clauses = append(clauses, "((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))")
		args = append(args, a, b, b, a)
	}
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN (?)")
		args = append(args, filter.Statuses)
	}
	if len(clauses) == 0 {
		return "", nil, errors.New("empty message filter")
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

// guardStatuses narrows requested to the statuses that can advance to next.
// An empty request means "every status that can advance".
func guardStatuses(requested []models.Status, next models.Status) []models.Status {
	allowed := models.StatusesBefore(next)
	if len(requested) == 0 {
		return allowed
	}
	var out []models.Status
	for _, s := range requested {
		if s.CanAdvanceTo(next) {
			out = append(out, s)
		}
	}
	return out
}
