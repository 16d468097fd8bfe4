package relay

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-relay/internal/mocks"
	"chat-relay/internal/ws"
)

func TestHandleConnectFirstConnectionBroadcasts(t *testing.T) {
	reg := ws.NewRegistry(slogt.New(t))
	store := new(mocks.PresenceStoreMock)
	users := new(mocks.UserRepositoryMock)
	presence := NewPresence(reg, store, users, slogt.New(t))

	s1 := connect(t, reg, 1)
	s2 := connect(t, reg, 2)

	store.On("AddOnline", mock.Anything, 1).Return(nil)
	store.On("OnlineUsers", mock.Anything).Return([]int{1, 2}, nil)

	presence.HandleConnect(context.Background(), 1, true)

	for _, sock := range []*fakeSock{s1, s2} {
		frames := sock.received(t)
		require.Len(t, frames, 1)
		assert.Equal(t, ws.EvOnlineUsers, frames[0].Event)
		var online []int
		require.NoError(t, json.Unmarshal(frames[0].Data, &online))
		assert.Equal(t, []int{1, 2}, online)
	}
	store.AssertExpectations(t)
}

func TestHandleConnectAdditionalConnectionIsSilent(t *testing.T) {
	reg := ws.NewRegistry(slogt.New(t))
	store := new(mocks.PresenceStoreMock)
	users := new(mocks.UserRepositoryMock)
	presence := NewPresence(reg, store, users, slogt.New(t))

	sock := connect(t, reg, 1)

	presence.HandleConnect(context.Background(), 1, false)

	assert.Empty(t, sock.received(t))
	store.AssertNotCalled(t, "AddOnline", mock.Anything, mock.Anything)
}

func TestHandleDisconnectLastConnectionGoesOffline(t *testing.T) {
	reg := ws.NewRegistry(slogt.New(t))
	store := new(mocks.PresenceStoreMock)
	users := new(mocks.UserRepositoryMock)
	presence := NewPresence(reg, store, users, slogt.New(t))

	observer := connect(t, reg, 2)

	store.On("RemoveOnline", mock.Anything, 1).Return(nil)
	store.On("OnlineUsers", mock.Anything).Return([]int{2}, nil)
	users.On("SetLastSeen", mock.Anything, 1, mock.AnythingOfType("time.Time")).Return(nil)

	presence.HandleDisconnect(context.Background(), 1, true)

	assert.Equal(t, []string{ws.EvOnlineUsers}, observer.eventNames(t))
	store.AssertExpectations(t)
	users.AssertExpectations(t)
}

func TestPrunedLastConnectionTransitionsOffline(t *testing.T) {
	reg := ws.NewRegistry(slogt.New(t))
	store := new(mocks.PresenceStoreMock)
	users := new(mocks.UserRepositoryMock)
	presence := NewPresence(reg, store, users, slogt.New(t))
	reg.OnPrune(func(userID int, last bool) {
		presence.HandleDisconnect(context.Background(), userID, last)
	})

	sock := &fakeSock{writeErr: errors.New("broken pipe")}
	reg.Register(ws.NewConn(7, sock, ws.ConnInfo{}))

	store.On("RemoveOnline", mock.Anything, 7).Return(nil)
	store.On("OnlineUsers", mock.Anything).Return([]int{}, nil)
	users.On("SetLastSeen", mock.Anything, 7, mock.AnythingOfType("time.Time")).Return(nil)

	reg.SendToUser(7, ws.Event{Event: ws.EvOnlineUsers, Data: []int{7}})

	store.AssertNumberOfCalls(t, "RemoveOnline", 1)
	users.AssertExpectations(t)
	assert.False(t, reg.Online(7))
}

func TestHandleDisconnectWithRemainingConnectionsIsSilent(t *testing.T) {
	reg := ws.NewRegistry(slogt.New(t))
	store := new(mocks.PresenceStoreMock)
	users := new(mocks.UserRepositoryMock)
	presence := NewPresence(reg, store, users, slogt.New(t))

	sock := connect(t, reg, 1)

	presence.HandleDisconnect(context.Background(), 1, false)

	assert.Empty(t, sock.received(t))
	store.AssertNotCalled(t, "RemoveOnline", mock.Anything, mock.Anything)
	users.AssertNotCalled(t, "SetLastSeen", mock.Anything, mock.Anything, mock.Anything)
}
