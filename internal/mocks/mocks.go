package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"chat-relay/internal/models"
	"chat-relay/internal/repositories"
)

var (
	_ repositories.ChatRepository    = (*ChatRepositoryMock)(nil)
	_ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
	_ repositories.UserRepository    = (*UserRepositoryMock)(nil)
)

type ChatRepositoryMock struct {
	mock.Mock
}

func (m *ChatRepositoryMock) FindByParticipants(ctx context.Context, userA, userB int) (models.Chat, error) {
	args := m.Called(ctx, userA, userB)
	return args.Get(0).(models.Chat), args.Error(1)
}

func (m *ChatRepositoryMock) CreateDirect(ctx context.Context, userA, userB int) (models.Chat, error) {
	args := m.Called(ctx, userA, userB)
	return args.Get(0).(models.Chat), args.Error(1)
}

func (m *ChatRepositoryMock) CreateGroup(ctx context.Context, name string, adminID int, memberIDs []int) (models.Chat, error) {
	args := m.Called(ctx, name, adminID, memberIDs)
	return args.Get(0).(models.Chat), args.Error(1)
}

func (m *ChatRepositoryMock) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	args := m.Called(ctx, chatID)
	return args.Get(0).(models.Chat), args.Error(1)
}

func (m *ChatRepositoryMock) IsParticipant(ctx context.Context, chatID, userID int) (bool, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ChatRepositoryMock) ListChatsForUser(ctx context.Context, userID int) ([]models.ChatSummary, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ChatSummary), args.Error(1)
}

func (m *ChatRepositoryMock) IncrementUnread(ctx context.Context, chatID int, userIDs []int) error {
	args := m.Called(ctx, chatID, userIDs)
	return args.Error(0)
}

func (m *ChatRepositoryMock) ResetUnread(ctx context.Context, chatID, userID int) error {
	args := m.Called(ctx, chatID, userID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) SetLastMessage(ctx context.Context, chatID, messageID int) error {
	args := m.Called(ctx, chatID, messageID)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, chatID, senderID int, receiverID *int, content string, replyTo *int) (models.Message, error) {
	args := m.Called(ctx, chatID, senderID, receiverID, content, replyTo)
	return args.Get(0).(models.Message), args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	return args.Get(0).(models.Message), args.Error(1)
}

func (m *MessageRepositoryMock) ListChatMessages(ctx context.Context, chatID int) ([]models.Message, error) {
	args := m.Called(ctx, chatID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MessageRepositoryMock) UpdateStatus(ctx context.Context, messageID int, from, to models.MessageStatus) error {
	args := m.Called(ctx, messageID, from, to)
	return args.Error(0)
}

func (m *MessageRepositoryMock) UpdateReactions(ctx context.Context, messageID int, reactions models.ReactionList) error {
	args := m.Called(ctx, messageID, reactions)
	return args.Error(0)
}

func (m *MessageRepositoryMock) MarkRangeRead(ctx context.Context, chatID, readerID int) error {
	args := m.Called(ctx, chatID, readerID)
	return args.Error(0)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID int) (models.User, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *UserRepositoryMock) SetLastSeen(ctx context.Context, userID int, at time.Time) error {
	args := m.Called(ctx, userID, at)
	return args.Error(0)
}

type PresenceStoreMock struct {
	mock.Mock
}

func (m *PresenceStoreMock) AddOnline(ctx context.Context, userID int) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *PresenceStoreMock) RemoveOnline(ctx context.Context, userID int) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *PresenceStoreMock) OnlineUsers(ctx context.Context) ([]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int), args.Error(1)
}

type TypingStoreMock struct {
	mock.Mock
}

func (m *TypingStoreMock) SetTypingMark(ctx context.Context, chatID, senderID, observerID int, ttl time.Duration) error {
	args := m.Called(ctx, chatID, senderID, observerID, ttl)
	return args.Error(0)
}

func (m *TypingStoreMock) ClearTypingMark(ctx context.Context, chatID, senderID, observerID int) error {
	args := m.Called(ctx, chatID, senderID, observerID)
	return args.Error(0)
}

type AuthenticatorMock struct {
	mock.Mock
}

func (m *AuthenticatorMock) ResolveUser(ctx context.Context, token string) (int, error) {
	args := m.Called(ctx, token)
	return args.Int(0), args.Error(1)
}
