package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"chat-relay/internal/observability"
)

// Registry is the bidirectional map between logical users and their live
// connections. A user may own many connections at once (multi-device); a user
// is online iff its set is non-empty. The registry is the single fan-out
// surface: every broadcast resolves targets here, and a failed write prunes
// the dead connection so registry truth converges on transport truth.
type Registry struct {
	mu     sync.RWMutex
	byUser map[int]map[string]*Conn
	byConn map[string]*Conn
	logger *slog.Logger

	onPrune func(userID int, last bool)
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		byUser: make(map[int]map[string]*Conn),
		byConn: make(map[string]*Conn),
		logger: logger,
	}
}

// OnPrune installs the hook invoked when a failed write removes a connection.
// The owning read loop's own Unregister comes back !ok for a pruned
// connection, so offline transitions for this path must happen in the hook.
// Install once at startup, before the registry serves traffic.
func (r *Registry) OnPrune(fn func(userID int, last bool)) {
	r.onPrune = fn
}

// Register adds a connection under its owner. Idempotent per connection id.
// Reports whether this is the user's first active connection.
func (r *Registry) Register(c *Conn) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byConn[c.ID()]; ok {
		return false
	}
	set := r.byUser[c.UserID()]
	if set == nil {
		set = make(map[string]*Conn)
		r.byUser[c.UserID()] = set
	}
	first = len(set) == 0
	set[c.ID()] = c
	r.byConn[c.ID()] = c
	return first
}

// Unregister removes a connection. No-op for ids already removed. Reports the
// owning user and whether this was the user's last connection.
func (r *Registry) Unregister(connID string) (userID int, last bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byConn[connID]
	if !ok {
		return 0, false, false
	}
	delete(r.byConn, connID)
	userID = c.UserID()
	if set := r.byUser[userID]; set != nil {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.byUser, userID)
			last = true
		}
	}
	return userID, last, true
}

// ConnectionsOf returns a snapshot of the user's active connections.
func (r *Registry) ConnectionsOf(userID int) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byUser[userID]
	if len(set) == 0 {
		return nil
	}
	conns := make([]*Conn, 0, len(set))
	for _, c := range set {
		conns = append(conns, c)
	}
	return conns
}

// UserOf resolves a connection id to its owner.
func (r *Registry) UserOf(connID string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byConn[connID]
	if !ok {
		return 0, false
	}
	return c.UserID(), true
}

// Online reports whether the user has at least one active connection.
func (r *Registry) Online(userID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// SendToUser fans an event out to every connection of one user and returns
// how many connections took the write. Zero connections is not an error:
// the broadcast is simply dropped for that target.
func (r *Registry) SendToUser(userID int, ev Event) int {
	return r.sendAll(r.ConnectionsOf(userID), ev)
}

// SendToOthers fans out to the user's connections except the named one
// (multi-device echo that skips the originating connection).
func (r *Registry) SendToOthers(userID int, exceptConnID string, ev Event) int {
	conns := r.ConnectionsOf(userID)
	filtered := conns[:0]
	for _, c := range conns {
		if c.ID() != exceptConnID {
			filtered = append(filtered, c)
		}
	}
	return r.sendAll(filtered, ev)
}

// Broadcast fans an event out to every connection in the registry.
func (r *Registry) Broadcast(ev Event) {
	r.mu.RLock()
	conns := make([]*Conn, 0, len(r.byConn))
	for _, c := range r.byConn {
		conns = append(conns, c)
	}
	r.mu.RUnlock()
	r.sendAll(conns, ev)
}

func (r *Registry) sendAll(conns []*Conn, ev Event) int {
	if len(conns) == 0 {
		return 0
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		r.logger.Error("marshal event", "event", ev.Event, "error", err)
		return 0
	}
	sent := 0
	for _, c := range conns {
		if err := c.write(payload); err != nil {
			// The transport disagrees with the registry; trust the
			// transport and drop the connection.
			r.logger.Warn("websocket write failed, pruning connection",
				"conn_id", c.ID(), "user_id", c.UserID(), "error", err)
			r.prune(c)
			continue
		}
		sent++
	}
	return sent
}

func (r *Registry) prune(c *Conn) {
	_ = c.Close()
	userID, last, ok := r.Unregister(c.ID())
	if !ok {
		return
	}
	observability.DecWSActive()
	observability.IncWSEvent("ws_prune")
	if r.onPrune != nil {
		r.onPrune(userID, last)
	}
}

// gorilla close codes considered a clean shutdown by the read loop.
var cleanCloseCodes = []int{websocket.CloseNormalClosure, websocket.CloseGoingAway}
