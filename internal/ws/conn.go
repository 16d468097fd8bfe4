package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ConnLike is the slice of *websocket.Conn the registry needs. Tests swap in
// a recording fake.
type ConnLike interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// ConnInfo carries telemetry identity for one connection.
type ConnInfo struct {
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// Conn is one live duplex channel owned by exactly one logical user for its
// lifetime. Never reused after close.
type Conn struct {
	id     string
	userID int
	sock   ConnLike
	info   ConnInfo

	writeMu sync.Mutex
	closed  bool
}

// NewConn wraps an accepted websocket for a resolved user.
func NewConn(userID int, sock ConnLike, info ConnInfo) *Conn {
	return &Conn{id: uuid.NewString(), userID: userID, sock: sock, info: info}
}

// ID returns the opaque connection id.
func (c *Conn) ID() string { return c.id }

// UserID returns the logical owner of the connection.
func (c *Conn) UserID() int { return c.userID }

// Info returns the connection's telemetry identity.
func (c *Conn) Info() ConnInfo { return c.info }

// Send marshals and writes one event frame. Writes are serialized per
// connection.
func (c *Conn) Send(ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.write(payload)
}

func (c *Conn) write(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	return c.sock.WriteMessage(websocket.TextMessage, payload)
}

// Close shuts the underlying socket. Safe to call more than once.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.sock.Close()
}
