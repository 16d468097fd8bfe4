package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// MessageStatus is the delivery state of a message. Transitions are strictly
// forward: sent -> delivered -> read.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// Reaction aggregates all users who toggled the same emoji on a message.
// A bucket is never empty; the last user toggling off removes it.
type Reaction struct {
	Emoji string `json:"emoji"`
	Users []int  `json:"users"`
}

// ReactionList is stored as a JSONB column.
type ReactionList []Reaction

// Value implements driver.Valuer.
func (r ReactionList) Value() (driver.Value, error) {
	if r == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r)
}

// Scan implements sql.Scanner.
func (r *ReactionList) Scan(src interface{}) error {
	if src == nil {
		*r = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return errors.New("reactions: expected []byte")
	}
	return json.Unmarshal(b, r)
}

// Message represents a chat message.
type Message struct {
	ID         int           `db:"id" json:"id"`
	ChatID     int           `db:"chat_id" json:"chat_id"`
	SenderID   int           `db:"sender_id" json:"sender_id"`
	ReceiverID *int          `db:"receiver_id" json:"receiver_id,omitempty"`
	Content    string        `db:"content" json:"content"`
	Status     MessageStatus `db:"status" json:"status"`
	ReplyTo    *int          `db:"reply_to" json:"reply_to,omitempty"`
	Reactions  ReactionList  `db:"reactions" json:"reactions"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
}
