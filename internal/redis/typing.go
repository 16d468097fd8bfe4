package redis

import (
	"context"
	"fmt"
	"time"
)

// Typing marks live under chat:typing:{chat}:{sender}:{observer}. The TTL is
// the safety net against a crashed sender that never emits typing:stop; the
// key self-expires with no server-side timer.
func typingKey(chatID, senderID, observerID int) string {
	return fmt.Sprintf("chat:typing:%d:%d:%d", chatID, senderID, observerID)
}

// SetTypingMark creates or refreshes a typing mark for one observer.
func (s *Store) SetTypingMark(ctx context.Context, chatID, senderID, observerID int, ttl time.Duration) error {
	if err := s.cli.Set(ctx, typingKey(chatID, senderID, observerID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("set typing mark: %w", err)
	}
	return nil
}

// ClearTypingMark deletes the mark for one observer.
func (s *Store) ClearTypingMark(ctx context.Context, chatID, senderID, observerID int) error {
	if err := s.cli.Del(ctx, typingKey(chatID, senderID, observerID)).Err(); err != nil {
		return fmt.Errorf("del typing mark: %w", err)
	}
	return nil
}
