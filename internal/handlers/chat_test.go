package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-relay/internal/mocks"
	"chat-relay/internal/models"
	"chat-relay/internal/ws"
)

type fakeSock struct {
	mu     sync.Mutex
	frames [][]byte
}

func (f *fakeSock) ReadMessage() (int, []byte, error) {
	return 0, nil, errors.New("read not supported")
}

func (f *fakeSock) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	f.frames = append(f.frames, buf)
	return nil
}

func (f *fakeSock) Close() error { return nil }

func setupChatRouter(t *testing.T, chats *mocks.ChatRepositoryMock, messages *mocks.MessageRepositoryMock, registry *ws.Registry, userID int) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	handler := NewChatHandler(chats, messages, registry, nil)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("userID", userID)
		c.Next()
	})
	router.GET("/chats", handler.ListChats)
	router.GET("/chats/:chat_id", handler.GetChat)
	router.GET("/chats/:chat_id/messages", handler.GetChatMessages)
	router.POST("/groups", handler.CreateGroup)
	return router
}

func TestListChats(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	router := setupChatRouter(t, chats, messages, ws.NewRegistry(slogt.New(t)), 7)

	name := "team"
	chats.On("ListChatsForUser", mock.Anything, 7).Return([]models.ChatSummary{
		{ChatID: 5, IsGroup: true, ChatName: &name, Unread: 3},
	}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Chats []models.ChatSummary `json:"chats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Chats, 1)
	assert.Equal(t, 5, body.Chats[0].ChatID)
	assert.Equal(t, 3, body.Chats[0].Unread)
}

func TestListChatsEmpty(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	router := setupChatRouter(t, chats, messages, ws.NewRegistry(slogt.New(t)), 7)

	chats.On("ListChatsForUser", mock.Anything, 7).Return(nil, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"chats":[]}`, rec.Body.String())
}

func TestGetChatMessagesRequiresMembership(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	router := setupChatRouter(t, chats, messages, ws.NewRegistry(slogt.New(t)), 7)

	chats.On("IsParticipant", mock.Anything, 5, 7).Return(false, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/chats/5/messages", nil)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	messages.AssertNotCalled(t, "ListChatMessages", mock.Anything, mock.Anything)
}

func TestGetChatMessages(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	router := setupChatRouter(t, chats, messages, ws.NewRegistry(slogt.New(t)), 7)

	chats.On("IsParticipant", mock.Anything, 5, 7).Return(true, nil)
	messages.On("ListChatMessages", mock.Anything, 5).Return([]models.Message{
		{ID: 1, ChatID: 5, SenderID: 7, Content: "hi", Status: models.StatusRead},
	}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/chats/5/messages", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Messages []models.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Messages, 1)
	assert.Equal(t, "hi", body.Messages[0].Content)
}

func TestGetChatMessagesInvalidID(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	router := setupChatRouter(t, chats, messages, ws.NewRegistry(slogt.New(t)), 7)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/chats/abc/messages", nil)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateGroupNotifiesConnectedMembers(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	registry := ws.NewRegistry(slogt.New(t))
	router := setupChatRouter(t, chats, messages, registry, 7)

	memberSock := &fakeSock{}
	registry.Register(ws.NewConn(2, memberSock, ws.ConnInfo{}))

	name := "team"
	created := models.Chat{ID: 10, IsGroup: true, ChatName: &name, Participants: []int{2, 3, 7}}
	chats.On("CreateGroup", mock.Anything, "team", 7, []int{2, 3}).Return(created, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/groups",
		strings.NewReader(`{"name":"team","member_ids":[2,3]}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	memberSock.mu.Lock()
	defer memberSock.mu.Unlock()
	require.Len(t, memberSock.frames, 1)
	var ev struct {
		Event string      `json:"event"`
		Data  models.Chat `json:"data"`
	}
	require.NoError(t, json.Unmarshal(memberSock.frames[0], &ev))
	assert.Equal(t, ws.EvChatNew, ev.Event)
	assert.Equal(t, 10, ev.Data.ID)
}

func TestCreateGroupRejectsBadPayload(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	router := setupChatRouter(t, chats, messages, ws.NewRegistry(slogt.New(t)), 7)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/groups", strings.NewReader(`{"name":"team"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	chats.AssertNotCalled(t, "CreateGroup", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
