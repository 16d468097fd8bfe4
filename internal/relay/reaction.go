package relay

import (
	"context"
	"log/slog"
	"sync"

	"chat-relay/internal/models"
	"chat-relay/internal/observability"
	"chat-relay/internal/repositories"
	"chat-relay/internal/ws"
)

const reactionStripes = 64

// Reactions toggles a user's membership in an emoji bucket and rebroadcasts
// the whole updated message. Mutations on the same message are serialized
// through striped locks so concurrent toggles never lose an update.
type Reactions struct {
	registry *ws.Registry
	chats    repositories.ChatRepository
	messages repositories.MessageRepository
	logger   *slog.Logger

	locks [reactionStripes]sync.Mutex
}

// NewReactions constructs the reaction aggregator.
func NewReactions(registry *ws.Registry, chats repositories.ChatRepository, messages repositories.MessageRepository, logger *slog.Logger) *Reactions {
	return &Reactions{registry: registry, chats: chats, messages: messages, logger: logger}
}

// Toggle applies one message:react event. Toggle semantics: applying the
// same (message, emoji, user) twice is a net no-op.
func (r *Reactions) Toggle(ctx context.Context, p ws.ReactPayload) {
	lock := &r.locks[uint(p.MessageID)%reactionStripes]
	lock.Lock()
	defer lock.Unlock()

	msg, err := r.messages.GetMessage(ctx, p.MessageID)
	if err != nil {
		r.logger.Error("get message", "message_id", p.MessageID, "error", err)
		return
	}

	msg.Reactions = toggleReaction(msg.Reactions, p.Emoji, p.UserID)
	if err := r.messages.UpdateReactions(ctx, msg.ID, msg.Reactions); err != nil {
		r.logger.Error("update reactions", "message_id", msg.ID, "error", err)
		return
	}

	chat, err := r.chats.GetChat(ctx, msg.ChatID)
	if err != nil {
		r.logger.Error("get chat", "chat_id", msg.ChatID, "error", err)
		return
	}

	// The whole message goes out, not a delta; clients replace their copy.
	event := ws.Event{Event: ws.EvReactionUpdate, Data: msg}
	for _, participant := range chat.Participants {
		r.registry.SendToUser(participant, event)
	}
	observability.IncRelayEvent("reaction", "toggle")
}

// toggleReaction flips userID's membership in the emoji bucket. Buckets keep
// at most one entry per emoji and are pruned when their user set drains.
func toggleReaction(reactions models.ReactionList, emoji string, userID int) models.ReactionList {
	for i, bucket := range reactions {
		if bucket.Emoji != emoji {
			continue
		}
		users := bucket.Users[:0]
		removed := false
		for _, u := range bucket.Users {
			if u == userID {
				removed = true
				continue
			}
			users = append(users, u)
		}
		if !removed {
			users = append(users, userID)
		}
		if len(users) == 0 {
			return append(reactions[:i], reactions[i+1:]...)
		}
		reactions[i].Users = users
		return reactions
	}
	return append(reactions, models.Reaction{Emoji: emoji, Users: []int{userID}})
}
