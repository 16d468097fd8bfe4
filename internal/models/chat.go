package models

import "time"

// Chat represents a conversation between two or more users. Direct chats are
// keyed by their unordered participant pair; group chats carry a name and an
// admin.
type Chat struct {
	ID           int       `db:"id" json:"id"`
	IsGroup      bool      `db:"is_group" json:"is_group"`
	ChatName     *string   `db:"chat_name" json:"chat_name,omitempty"`
	GroupAdminID *int      `db:"group_admin_id" json:"group_admin_id,omitempty"`
	LastMessage  *int      `db:"last_message_id" json:"last_message_id,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`

	// Participants is loaded from chat_participants, not a column.
	Participants []int `db:"-" json:"participants"`
}

// ChatSummary is the per-user view of a chat returned by the list endpoint.
type ChatSummary struct {
	ChatID      int       `db:"id" json:"chat_id"`
	IsGroup     bool      `db:"is_group" json:"is_group"`
	ChatName    *string   `db:"chat_name" json:"chat_name,omitempty"`
	LastMessage *int      `db:"last_message_id" json:"last_message_id,omitempty"`
	Unread      int       `db:"unread_count" json:"unread_count"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
