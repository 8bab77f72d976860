package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	"github.com/jishnu70/Chat-app-backend/internal/models"
)

// DefaultPageSize bounds history queries when the caller gives no limit.
const DefaultPageSize = 50

// MessageRepository defines interactions for direct and group messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg models.NewMessage) (models.Message, error)
	ListDirectForUser(ctx context.Context, userID int) ([]models.Message, error)
	LatestGroupMessage(ctx context.Context, groupID int) (models.Message, error)
	ListConversation(ctx context.Context, userID int, otherID int, before *time.Time, limit int) ([]models.Message, error)
	ListGroupMessages(ctx context.Context, groupID int, before *time.Time, limit int) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, sender_id, receiver_id, group_id, content, media_url, media_type, created_at`

// CreateMessage stores a message addressed to exactly one receiver or group.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg models.NewMessage) (models.Message, error) {
	if err := msg.Validate(); err != nil {
		return models.Message{}, err
	}
	var stored models.Message
	err := r.db.GetContext(ctx, &stored, `INSERT INTO messages (sender_id, receiver_id, group_id, content, media_url, media_type)
        VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+messageColumns,
		msg.SenderID, msg.ReceiverID, msg.GroupID, msg.Content, msg.MediaURL, msg.MediaType)
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return stored, nil
}

// ListDirectForUser returns every direct message the user sent or received,
// newest first.
func (r *MessageRepo) ListDirectForUser(ctx context.Context, userID int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
        WHERE group_id IS NULL AND (sender_id=$1 OR receiver_id=$1)
        ORDER BY created_at DESC, id DESC`, userID)
	return msgs, err
}

// LatestGroupMessage returns the most recent message of a group.
func (r *MessageRepo) LatestGroupMessage(ctx context.Context, groupID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE group_id=$1 ORDER BY created_at DESC, id DESC LIMIT 1`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListConversation returns up to limit direct messages between two users sent
// before the given instant, oldest first.
func (r *MessageRepo) ListConversation(ctx context.Context, userID int, otherID int, before *time.Time, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
        WHERE group_id IS NULL
        AND ((sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1))
        AND ($3::timestamptz IS NULL OR created_at < $3)
        ORDER BY created_at DESC, id DESC
        LIMIT $4`, userID, otherID, before, pageSize(limit))
	if err != nil {
		return nil, err
	}
	return lo.Reverse(msgs), nil
}

// ListGroupMessages returns up to limit group messages sent before the given
// instant, oldest first.
func (r *MessageRepo) ListGroupMessages(ctx context.Context, groupID int, before *time.Time, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
        WHERE group_id=$1
        AND ($2::timestamptz IS NULL OR created_at < $2)
        ORDER BY created_at DESC, id DESC
        LIMIT $3`, groupID, before, pageSize(limit))
	if err != nil {
		return nil, err
	}
	return lo.Reverse(msgs), nil
}

func pageSize(limit int) int {
	if limit <= 0 || limit > DefaultPageSize*4 {
		return DefaultPageSize
	}
	return limit
}
