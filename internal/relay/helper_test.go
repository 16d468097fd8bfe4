package relay

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"chat-relay/internal/mocks"
	"chat-relay/internal/ws"
)

var (
	_ PresenceStore = (*mocks.PresenceStoreMock)(nil)
	_ TypingStore   = (*mocks.TypingStoreMock)(nil)
)

type fakeSock struct {
	mu       sync.Mutex
	frames   [][]byte
	writeErr error
	closed   bool
}

func (f *fakeSock) ReadMessage() (int, []byte, error) {
	return 0, nil, errors.New("read not supported")
}

func (f *fakeSock) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	f.frames = append(f.frames, buf)
	return nil
}

func (f *fakeSock) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (f *fakeSock) received(t *testing.T) []frame {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]frame, 0, len(f.frames))
	for _, raw := range f.frames {
		var fr frame
		require.NoError(t, json.Unmarshal(raw, &fr))
		out = append(out, fr)
	}
	return out
}

func (f *fakeSock) eventNames(t *testing.T) []string {
	t.Helper()
	frames := f.received(t)
	out := make([]string, 0, len(frames))
	for _, fr := range frames {
		out = append(out, fr.Event)
	}
	return out
}

// connect registers one connection for the user and returns its socket.
func connect(t *testing.T, reg *ws.Registry, userID int) *fakeSock {
	t.Helper()
	sock := &fakeSock{}
	reg.Register(ws.NewConn(userID, sock, ws.ConnInfo{}))
	return sock
}

// connectConn is connect with the connection handle, for tests that need an
// origin connection.
func connectConn(t *testing.T, reg *ws.Registry, userID int) (*ws.Conn, *fakeSock) {
	t.Helper()
	sock := &fakeSock{}
	conn := ws.NewConn(userID, sock, ws.ConnInfo{})
	reg.Register(conn)
	return conn, sock
}
