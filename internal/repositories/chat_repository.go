package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chat-relay/internal/models"
)

var ErrChatNotFound = errors.New("chat not found")

// ChatRepository abstracts chat persistence.
type ChatRepository interface {
	FindByParticipants(ctx context.Context, userA, userB int) (models.Chat, error)
	CreateDirect(ctx context.Context, userA, userB int) (models.Chat, error)
	CreateGroup(ctx context.Context, name string, adminID int, memberIDs []int) (models.Chat, error)
	GetChat(ctx context.Context, chatID int) (models.Chat, error)
	IsParticipant(ctx context.Context, chatID, userID int) (bool, error)
	ListChatsForUser(ctx context.Context, userID int) ([]models.ChatSummary, error)
	IncrementUnread(ctx context.Context, chatID int, userIDs []int) error
	ResetUnread(ctx context.Context, chatID, userID int) error
	SetLastMessage(ctx context.Context, chatID, messageID int) error
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

const chatColumns = `id, is_group, chat_name, group_admin_id, last_message_id, created_at`

// FindByParticipants looks up the direct chat keyed by the unordered pair.
func (r *ChatRepo) FindByParticipants(ctx context.Context, userA, userB int) (models.Chat, error) {
	query := `SELECT c.id, c.is_group, c.chat_name, c.group_admin_id, c.last_message_id, c.created_at
        FROM chats c
        JOIN chat_participants pa ON pa.chat_id = c.id AND pa.user_id = $1
        JOIN chat_participants pb ON pb.chat_id = c.id AND pb.user_id = $2
        WHERE c.is_group = FALSE`
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, query, userA, userB)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	if err != nil {
		return models.Chat{}, err
	}
	chat.Participants = []int{userA, userB}
	sort.Ints(chat.Participants)
	return chat, nil
}

// CreateDirect creates a direct chat between two users.
func (r *ChatRepo) CreateDirect(ctx context.Context, userA, userB int) (models.Chat, error) {
	if userA == userB {
		return models.Chat{}, errors.New("cannot create chat with self")
	}
	return r.create(ctx, false, nil, nil, []int{userA, userB})
}

// CreateGroup creates a group chat. The admin is always a participant.
func (r *ChatRepo) CreateGroup(ctx context.Context, name string, adminID int, memberIDs []int) (models.Chat, error) {
	members := append([]int{adminID}, memberIDs...)
	return r.create(ctx, true, &name, &adminID, members)
}

func (r *ChatRepo) create(ctx context.Context, isGroup bool, name *string, adminID *int, memberIDs []int) (models.Chat, error) {
	participants := dedup(memberIDs)
	if len(participants) < 2 {
		return models.Chat{}, errors.New("chat requires at least two participants")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Chat{}, err
	}
	defer tx.Rollback()

	var chat models.Chat
	if err := tx.QueryRowxContext(ctx,
		`INSERT INTO chats (is_group, chat_name, group_admin_id) VALUES ($1, $2, $3) RETURNING `+chatColumns,
		isGroup, name, adminID).StructScan(&chat); err != nil {
		return models.Chat{}, err
	}
	for _, userID := range participants {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chat_participants (chat_id, user_id) VALUES ($1, $2)`, chat.ID, userID); err != nil {
			return models.Chat{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return models.Chat{}, err
	}
	chat.Participants = participants
	return chat, nil
}

// GetChat fetches a chat with its participant set.
func (r *ChatRepo) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	if err != nil {
		return models.Chat{}, err
	}
	if err := r.db.SelectContext(ctx, &chat.Participants,
		`SELECT user_id FROM chat_participants WHERE chat_id=$1 ORDER BY user_id`, chatID); err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

// IsParticipant checks whether a user belongs to the chat.
func (r *ChatRepo) IsParticipant(ctx context.Context, chatID, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM chat_participants WHERE chat_id=$1 AND user_id=$2)`, chatID, userID)
	return exists, err
}

// ListChatsForUser returns the user's chats with their unread counters,
// most recently created first.
func (r *ChatRepo) ListChatsForUser(ctx context.Context, userID int) ([]models.ChatSummary, error) {
	query := `SELECT c.id, c.is_group, c.chat_name, c.last_message_id, p.unread_count, c.created_at
        FROM chats c
        JOIN chat_participants p ON p.chat_id = c.id
        WHERE p.user_id = $1
        ORDER BY c.created_at DESC`
	var out []models.ChatSummary
	err := r.db.SelectContext(ctx, &out, query, userID)
	return out, err
}

// IncrementUnread bumps the per-chat unread counter for each listed user.
// The increment happens in the database so concurrent sends never lose one.
func (r *ChatRepo) IncrementUnread(ctx context.Context, chatID int, userIDs []int) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE chat_participants SET unread_count = unread_count + 1 WHERE chat_id=$1 AND user_id = ANY($2)`,
		chatID, pq.Array(userIDs))
	if err != nil {
		return fmt.Errorf("increment unread: %w", err)
	}
	return nil
}

// ResetUnread zeroes the reader's counter for the chat.
func (r *ChatRepo) ResetUnread(ctx context.Context, chatID, userID int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE chat_participants SET unread_count = 0 WHERE chat_id=$1 AND user_id=$2`, chatID, userID)
	return err
}

// SetLastMessage points the chat at its newest message.
func (r *ChatRepo) SetLastMessage(ctx context.Context, chatID, messageID int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE chats SET last_message_id = $2 WHERE id=$1`, chatID, messageID)
	return err
}

func dedup(ids []int) []int {
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}
