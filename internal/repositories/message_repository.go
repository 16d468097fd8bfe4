package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"chat-relay/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, chatID, senderID int, receiverID *int, content string, replyTo *int) (models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	ListChatMessages(ctx context.Context, chatID int) ([]models.Message, error)
	UpdateStatus(ctx context.Context, messageID int, from, to models.MessageStatus) error
	UpdateReactions(ctx context.Context, messageID int, reactions models.ReactionList) error
	MarkRangeRead(ctx context.Context, chatID, readerID int) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, chat_id, sender_id, receiver_id, content, status, reply_to, reactions, created_at`

// CreateMessage stores a message with status sent.
func (r *MessageRepo) CreateMessage(ctx context.Context, chatID, senderID int, receiverID *int, content string, replyTo *int) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (chat_id, sender_id, receiver_id, content, reply_to) VALUES ($1, $2, $3, $4, $5)
        RETURNING `+messageColumns,
		chatID, senderID, receiverID, content, replyTo).StructScan(&msg)
	return msg, err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListChatMessages returns the chat's messages oldest first.
func (r *MessageRepo) ListChatMessages(ctx context.Context, chatID int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT `+messageColumns+` FROM messages WHERE chat_id=$1 ORDER BY created_at ASC`, chatID)
	return msgs, err
}

// UpdateStatus advances a message's delivery status. The WHERE guard keeps
// the state machine forward-only: a message that already moved past `from`
// is left alone.
func (r *MessageRepo) UpdateStatus(ctx context.Context, messageID int, from, to models.MessageStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE messages SET status=$3 WHERE id=$1 AND status=$2`, messageID, from, to)
	return err
}

// UpdateReactions replaces the message's reaction buckets.
func (r *MessageRepo) UpdateReactions(ctx context.Context, messageID int, reactions models.ReactionList) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET reactions=$2 WHERE id=$1`, messageID, reactions)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// MarkRangeRead marks every message in the chat authored by someone else as
// read. Already-read messages are untouched.
func (r *MessageRepo) MarkRangeRead(ctx context.Context, chatID, readerID int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE messages SET status='read' WHERE chat_id=$1 AND sender_id<>$2 AND status<>'read'`,
		chatID, readerID)
	return err
}
