package relay

import (
	"context"
	"errors"
	"log/slog"

	"chat-relay/internal/models"
	"chat-relay/internal/observability"
	"chat-relay/internal/repositories"
	"chat-relay/internal/ws"
)

// Messages drives the delivery state machine: persist with status sent,
// upgrade to delivered iff at least one receiver connection exists at send
// time, fan out to receivers and to the sender's other devices. Delivery is
// computed at send time only; a recipient connecting later catches up through
// message:read, never through a retroactive delivered push.
type Messages struct {
	registry *ws.Registry
	chats    repositories.ChatRepository
	messages repositories.MessageRepository
	logger   *slog.Logger
}

// NewMessages constructs the message relay.
func NewMessages(registry *ws.Registry, chats repositories.ChatRepository, messages repositories.MessageRepository, logger *slog.Logger) *Messages {
	return &Messages{registry: registry, chats: chats, messages: messages, logger: logger}
}

// Send handles one send-message event. Errors abort this event only; the
// origin learns about failure by the absence of its echo.
func (m *Messages) Send(ctx context.Context, origin *ws.Conn, p ws.SendMessagePayload) {
	chat, err := m.resolveChat(ctx, p)
	if err != nil {
		m.logger.Error("resolve chat", "sender_id", p.SenderID, "error", err)
		observability.IncRelayEvent("message", "send_failed")
		return
	}

	if !contains(chat.Participants, p.SenderID) {
		m.logger.Warn("sender is not a participant", "chat_id", chat.ID, "sender_id", p.SenderID)
		return
	}
	receivers := withoutUser(chat.Participants, p.SenderID)
	if len(receivers) == 0 {
		return
	}

	var receiverID *int
	if !chat.IsGroup {
		receiverID = &receivers[0]
	}

	msg, err := m.messages.CreateMessage(ctx, chat.ID, p.SenderID, receiverID, p.Content, p.ReplyTo)
	if err != nil {
		m.logger.Error("create message", "chat_id", chat.ID, "error", err)
		observability.IncRelayEvent("message", "send_failed")
		return
	}

	if err := m.chats.IncrementUnread(ctx, chat.ID, receivers); err != nil {
		m.logger.Error("increment unread", "chat_id", chat.ID, "error", err)
	}
	if err := m.chats.SetLastMessage(ctx, chat.ID, msg.ID); err != nil {
		m.logger.Error("set last message", "chat_id", chat.ID, "error", err)
	}

	// Delivered means at least one receiver connection existed when we
	// looked, not that every recipient saw the message.
	reachable := false
	for _, r := range receivers {
		if m.registry.Online(r) {
			reachable = true
			break
		}
	}
	if reachable {
		if err := m.messages.UpdateStatus(ctx, msg.ID, models.StatusSent, models.StatusDelivered); err != nil {
			m.logger.Error("mark delivered", "message_id", msg.ID, "error", err)
		} else {
			msg.Status = models.StatusDelivered
		}
	}

	event := ws.Event{Event: ws.EvReceiveMessage, Data: msg}
	for _, r := range receivers {
		m.registry.SendToUser(r, event)
	}
	// Echo to the sender's other devices; the origin connection gets the
	// same frame directly as its ack.
	m.registry.SendToOthers(p.SenderID, origin.ID(), event)
	if err := origin.Send(event); err != nil {
		m.logger.Debug("origin ack failed", "conn_id", origin.ID(), "error", err)
	}
	if msg.Status == models.StatusDelivered {
		m.registry.SendToUser(p.SenderID, ws.Event{Event: ws.EvDelivered, Data: map[string]int{"message_id": msg.ID}})
	}
	observability.IncRelayEvent("message", "sent")
}

// Read handles one message:read event: mark the other participants' messages
// read, zero the reader's counter, and tell the authors their messages were
// seen. A chat-level notice is enough for the UI tick; no per-message ids.
func (m *Messages) Read(ctx context.Context, p ws.ReadPayload) {
	chat, err := m.chats.GetChat(ctx, p.ChatID)
	if err != nil {
		m.logger.Error("get chat", "chat_id", p.ChatID, "error", err)
		return
	}
	if !contains(chat.Participants, p.ReaderID) {
		return
	}

	if err := m.messages.MarkRangeRead(ctx, p.ChatID, p.ReaderID); err != nil {
		m.logger.Error("mark range read", "chat_id", p.ChatID, "error", err)
		return
	}
	if err := m.chats.ResetUnread(ctx, p.ChatID, p.ReaderID); err != nil {
		m.logger.Error("reset unread", "chat_id", p.ChatID, "error", err)
	}

	event := ws.Event{Event: ws.EvMessageRead, Data: p}
	for _, other := range withoutUser(chat.Participants, p.ReaderID) {
		m.registry.SendToUser(other, event)
	}
	observability.IncRelayEvent("message", "read")
}

// resolveChat finds the target chat: group sends address an explicit chat id,
// direct sends are keyed by the unordered participant pair and create the
// chat on first contact.
func (m *Messages) resolveChat(ctx context.Context, p ws.SendMessagePayload) (models.Chat, error) {
	if p.ChatID != 0 {
		return m.chats.GetChat(ctx, p.ChatID)
	}
	chat, err := m.chats.FindByParticipants(ctx, p.SenderID, p.ReceiverID)
	if errors.Is(err, repositories.ErrChatNotFound) {
		return m.chats.CreateDirect(ctx, p.SenderID, p.ReceiverID)
	}
	return chat, err
}

func withoutUser(participants []int, userID int) []int {
	out := make([]int, 0, len(participants))
	for _, id := range participants {
		if id != userID {
			out = append(out, id)
		}
	}
	return out
}

func contains(ids []int, userID int) bool {
	for _, id := range ids {
		if id == userID {
			return true
		}
	}
	return false
}
