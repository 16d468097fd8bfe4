package relay

import (
	"context"
	"log/slog"
	"time"

	"chat-relay/internal/observability"
	"chat-relay/internal/repositories"
	"chat-relay/internal/ws"
)

// TypingTTL bounds how long a mark survives without a refresh. A crashed
// sender that never emits typing:stop stops "typing" when the mark expires.
const TypingTTL = 2 * time.Second

// TypingStore holds the ephemeral marks. Backed by Redis key TTLs; nothing
// is ever persisted.
type TypingStore interface {
	SetTypingMark(ctx context.Context, chatID, senderID, observerID int, ttl time.Duration) error
	ClearTypingMark(ctx context.Context, chatID, senderID, observerID int) error
}

// Typing coordinates typing indicators per chat.
type Typing struct {
	registry *ws.Registry
	store    TypingStore
	chats    repositories.ChatRepository
	logger   *slog.Logger
}

// NewTyping constructs the typing coordinator.
func NewTyping(registry *ws.Registry, store TypingStore, chats repositories.ChatRepository, logger *slog.Logger) *Typing {
	return &Typing{registry: registry, store: store, chats: chats, logger: logger}
}

// Start marks the sender as typing for every other participant and notifies
// their connections.
func (t *Typing) Start(ctx context.Context, p ws.TypingPayload) {
	observers, ok := t.observers(ctx, p)
	if !ok {
		return
	}
	for _, observer := range observers {
		if err := t.store.SetTypingMark(ctx, p.ChatID, p.SenderID, observer, TypingTTL); err != nil {
			t.logger.Error("set typing mark", "chat_id", p.ChatID, "error", err)
			continue
		}
		t.registry.SendToUser(observer, ws.Event{Event: ws.EvTypingStart, Data: p})
	}
	observability.IncRelayEvent("typing", "start")
}

// Stop clears the marks and notifies observers. Expiry without a stop event
// is covered by the TTL; observers treat a stale mark as an implicit stop.
func (t *Typing) Stop(ctx context.Context, p ws.TypingPayload) {
	observers, ok := t.observers(ctx, p)
	if !ok {
		return
	}
	for _, observer := range observers {
		if err := t.store.ClearTypingMark(ctx, p.ChatID, p.SenderID, observer); err != nil {
			t.logger.Error("clear typing mark", "chat_id", p.ChatID, "error", err)
		}
		t.registry.SendToUser(observer, ws.Event{Event: ws.EvTypingStop, Data: p})
	}
	observability.IncRelayEvent("typing", "stop")
}

func (t *Typing) observers(ctx context.Context, p ws.TypingPayload) ([]int, bool) {
	chat, err := t.chats.GetChat(ctx, p.ChatID)
	if err != nil {
		t.logger.Error("get chat", "chat_id", p.ChatID, "error", err)
		return nil, false
	}
	if !contains(chat.Participants, p.SenderID) {
		return nil, false
	}
	return withoutUser(chat.Participants, p.SenderID), true
}
