package relay

import (
	"context"
	"log/slog"
	"time"

	"chat-relay/internal/observability"
	"chat-relay/internal/repositories"
	"chat-relay/internal/ws"
)

// PresenceStore is the shared online-user set. Backed by Redis so every
// relay instance sees the same set.
type PresenceStore interface {
	AddOnline(ctx context.Context, userID int) error
	RemoveOnline(ctx context.Context, userID int) error
	OnlineUsers(ctx context.Context) ([]int, error)
}

// Presence maintains the online set and broadcasts transitions. A user goes
// online with their first connection and offline only when the last one
// drops; intermediate connects and disconnects are silent.
type Presence struct {
	registry *ws.Registry
	store    PresenceStore
	users    repositories.UserRepository
	logger   *slog.Logger
}

// NewPresence constructs the presence tracker.
func NewPresence(registry *ws.Registry, store PresenceStore, users repositories.UserRepository, logger *slog.Logger) *Presence {
	return &Presence{registry: registry, store: store, users: users, logger: logger}
}

// HandleConnect runs after a connection is registered.
func (p *Presence) HandleConnect(ctx context.Context, userID int, first bool) {
	if !first {
		return
	}
	if err := p.store.AddOnline(ctx, userID); err != nil {
		p.logger.Error("add online", "user_id", userID, "error", err)
		return
	}
	observability.IncRelayEvent("presence", "online")
	p.broadcastOnline(ctx)
}

// HandleDisconnect runs after a connection is unregistered.
func (p *Presence) HandleDisconnect(ctx context.Context, userID int, last bool) {
	if !last {
		return
	}
	if err := p.store.RemoveOnline(ctx, userID); err != nil {
		p.logger.Error("remove online", "user_id", userID, "error", err)
		return
	}
	if err := p.users.SetLastSeen(ctx, userID, time.Now().UTC()); err != nil {
		p.logger.Error("set last seen", "user_id", userID, "error", err)
	}
	observability.IncRelayEvent("presence", "offline")
	p.broadcastOnline(ctx)
}

// The online-user list goes to every connection, not just chat partners:
// any client may be rendering a contact list.
func (p *Presence) broadcastOnline(ctx context.Context) {
	users, err := p.store.OnlineUsers(ctx)
	if err != nil {
		p.logger.Error("list online users", "error", err)
		return
	}
	p.registry.Broadcast(ws.Event{Event: ws.EvOnlineUsers, Data: users})
}
