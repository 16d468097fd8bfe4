package relay

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-relay/internal/mocks"
	"chat-relay/internal/models"
	"chat-relay/internal/ws"
)

func TestToggleReaction(t *testing.T) {
	t.Run("first reaction opens a bucket", func(t *testing.T) {
		got := toggleReaction(nil, "🔥", 1)
		assert.Equal(t, models.ReactionList{{Emoji: "🔥", Users: []int{1}}}, got)
	})

	t.Run("second user joins the bucket", func(t *testing.T) {
		got := toggleReaction(models.ReactionList{{Emoji: "🔥", Users: []int{1}}}, "🔥", 2)
		assert.Equal(t, models.ReactionList{{Emoji: "🔥", Users: []int{1, 2}}}, got)
	})

	t.Run("same user again is removed", func(t *testing.T) {
		got := toggleReaction(models.ReactionList{{Emoji: "🔥", Users: []int{1, 2}}}, "🔥", 1)
		assert.Equal(t, models.ReactionList{{Emoji: "🔥", Users: []int{2}}}, got)
	})

	t.Run("drained bucket is pruned", func(t *testing.T) {
		got := toggleReaction(models.ReactionList{{Emoji: "🔥", Users: []int{1}}}, "🔥", 1)
		assert.Empty(t, got)
	})

	t.Run("different emoji opens its own bucket", func(t *testing.T) {
		got := toggleReaction(models.ReactionList{{Emoji: "🔥", Users: []int{1}}}, "👍", 1)
		assert.Equal(t, models.ReactionList{
			{Emoji: "🔥", Users: []int{1}},
			{Emoji: "👍", Users: []int{1}},
		}, got)
	})

	t.Run("double toggle is a net no-op", func(t *testing.T) {
		initial := models.ReactionList{{Emoji: "👍", Users: []int{3}}}
		once := toggleReaction(initial, "🔥", 1)
		twice := toggleReaction(once, "🔥", 1)
		assert.Equal(t, models.ReactionList{{Emoji: "👍", Users: []int{3}}}, twice)
	})
}

func TestToggleBroadcastsUpdatedMessageToParticipants(t *testing.T) {
	reg := ws.NewRegistry(slogt.New(t))
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	reactions := NewReactions(reg, chats, messages, slogt.New(t))

	reactorSock := connect(t, reg, 2)
	authorSock := connect(t, reg, 1)

	msg := models.Message{ID: 9, ChatID: 5, SenderID: 1, Content: "hi", Status: models.StatusRead}
	want := models.ReactionList{{Emoji: "🔥", Users: []int{2}}}

	messages.On("GetMessage", mock.Anything, 9).Return(msg, nil)
	messages.On("UpdateReactions", mock.Anything, 9, want).Return(nil)
	chats.On("GetChat", mock.Anything, 5).Return(models.Chat{ID: 5, Participants: []int{1, 2}}, nil)

	reactions.Toggle(context.Background(), ws.ReactPayload{MessageID: 9, ChatID: 5, Emoji: "🔥", UserID: 2})

	for _, sock := range []*fakeSock{reactorSock, authorSock} {
		frames := sock.received(t)
		require.Len(t, frames, 1)
		assert.Equal(t, ws.EvReactionUpdate, frames[0].Event)
		var got models.Message
		require.NoError(t, json.Unmarshal(frames[0].Data, &got))
		assert.Equal(t, want, got.Reactions)
	}
	messages.AssertExpectations(t)
}

func TestToggleOnMissingMessageDoesNothing(t *testing.T) {
	reg := ws.NewRegistry(slogt.New(t))
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	reactions := NewReactions(reg, chats, messages, slogt.New(t))

	sock := connect(t, reg, 2)

	messages.On("GetMessage", mock.Anything, 9).Return(models.Message{}, assert.AnError)

	reactions.Toggle(context.Background(), ws.ReactPayload{MessageID: 9, Emoji: "🔥", UserID: 2})

	assert.Empty(t, sock.received(t))
	messages.AssertNotCalled(t, "UpdateReactions", mock.Anything, mock.Anything, mock.Anything)
}
