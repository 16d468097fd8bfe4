package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chat-relay/internal/observability"
)

// Authenticator resolves a connection's logical user from its credentials.
// Connection establishment requires a resolved user id; anything else is
// rejected before the upgrade.
type Authenticator interface {
	ResolveUser(ctx context.Context, token string) (int, error)
}

// PresenceTracker reacts to connection lifecycle transitions.
type PresenceTracker interface {
	HandleConnect(ctx context.Context, userID int, first bool)
	HandleDisconnect(ctx context.Context, userID int, last bool)
}

// MessageRelay drives the message delivery state machine.
type MessageRelay interface {
	Send(ctx context.Context, origin *Conn, p SendMessagePayload)
	Read(ctx context.Context, p ReadPayload)
}

// TypingCoordinator broadcasts ephemeral typing state.
type TypingCoordinator interface {
	Start(ctx context.Context, p TypingPayload)
	Stop(ctx context.Context, p TypingPayload)
}

// ReactionAggregator toggles emoji reactions on messages.
type ReactionAggregator interface {
	Toggle(ctx context.Context, p ReactPayload)
}

// CallRelay routes call lifecycle and WebRTC signaling between users.
type CallRelay interface {
	Start(ctx context.Context, p CallPayload)
	Accept(ctx context.Context, p CallPayload)
	Reject(ctx context.Context, p CallPayload)
	End(ctx context.Context, p CallPayload)
	Offer(ctx context.Context, p SignalPayload)
	Answer(ctx context.Context, p SignalPayload)
	ICECandidate(ctx context.Context, p SignalPayload)
}

// Handler owns the websocket endpoint: handshake, registration, and the
// per-connection read loop. Events from one connection are processed in
// arrival order; connections interleave freely.
type Handler struct {
	registry  *Registry
	auth      Authenticator
	presence  PresenceTracker
	messages  MessageRelay
	typing    TypingCoordinator
	reactions ReactionAggregator
	calls     CallRelay
	logger    *slog.Logger
}

// NewHandler constructs the websocket handler.
func NewHandler(registry *Registry, auth Authenticator, presence PresenceTracker, messages MessageRelay, typing TypingCoordinator, reactions ReactionAggregator, calls CallRelay, logger *slog.Logger) *Handler {
	return &Handler{
		registry:  registry,
		auth:      auth,
		presence:  presence,
		messages:  messages,
		typing:    typing,
		reactions: reactions,
		calls:     calls,
		logger:    logger,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection, registers it, and runs the read loop.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chat-relay/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
	}
	token = strings.TrimPrefix(token, "Bearer ")

	userID, err := h.auth.ResolveUser(ctx, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	sock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	conn := NewConn(userID, sock, info)
	first := h.registry.Register(conn)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(ctx, observability.WSRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Payload:   observability.WSLifecyclePayload("ws_connect", conn.ID(), userID, info.DeviceID, info.IP, "", 0),
	}, headers)

	loopCtx := context.WithoutCancel(ctx)
	h.presence.HandleConnect(loopCtx, userID, first)

	go h.readLoop(loopCtx, conn, headers)
}

func (h *Handler) readLoop(ctx context.Context, conn *Conn, headers map[string]string) {
	var closeReason string
	defer func() {
		_ = conn.Close()
		if userID, last, ok := h.registry.Unregister(conn.ID()); ok {
			observability.DecWSActive()
			h.presence.HandleDisconnect(ctx, userID, last)
		}
		observability.IncWSEvent("ws_disconnect")
		_ = observability.PublishEvent(ctx, observability.WSRoutingKey, observability.EventEnvelope{
			EventType: "ws_events",
			EventName: "ws_disconnect",
			Payload: observability.WSLifecyclePayload("ws_disconnect", conn.ID(), conn.UserID(),
				conn.Info().DeviceID, conn.Info().IP, closeReason, time.Since(conn.Info().ConnectedAt)),
		}, headers)
	}()

	for {
		_, raw, err := conn.sock.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, cleanCloseCodes...) {
				observability.IncWSEvent("ws_error")
				_ = observability.PublishEvent(ctx, observability.WSRoutingKey, observability.EventEnvelope{
					EventType: "ws_events",
					EventName: "ws_error",
					Payload: observability.WSLifecyclePayload("ws_error", conn.ID(), conn.UserID(),
						conn.Info().DeviceID, conn.Info().IP, closeReason, time.Since(conn.Info().ConnectedAt)),
				}, headers)
			}
			return
		}
		h.dispatch(ctx, conn, raw)
	}
}

// dispatch decodes one inbound frame and routes it through the closed event
// set. Malformed or incomplete frames are dropped without a reply.
func (h *Handler) dispatch(ctx context.Context, conn *Conn, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.drop(conn, "invalid frame")
		return
	}

	switch env.Event {
	case EvSendMessage:
		var p SendMessagePayload
		if !decode(env.Data, &p) || p.SenderID == 0 || p.Content == "" || (p.ChatID == 0 && p.ReceiverID == 0) {
			h.drop(conn, env.Event)
			return
		}
		h.messages.Send(ctx, conn, p)
	case EvMessageRead:
		var p ReadPayload
		if !decode(env.Data, &p) || p.ChatID == 0 || p.ReaderID == 0 {
			h.drop(conn, env.Event)
			return
		}
		h.messages.Read(ctx, p)
	case EvTypingStart:
		var p TypingPayload
		if !decode(env.Data, &p) || p.ChatID == 0 || p.SenderID == 0 {
			h.drop(conn, env.Event)
			return
		}
		h.typing.Start(ctx, p)
	case EvTypingStop:
		var p TypingPayload
		if !decode(env.Data, &p) || p.ChatID == 0 || p.SenderID == 0 {
			h.drop(conn, env.Event)
			return
		}
		h.typing.Stop(ctx, p)
	case EvMessageReact:
		var p ReactPayload
		if !decode(env.Data, &p) || p.MessageID == 0 || p.Emoji == "" || p.UserID == 0 {
			h.drop(conn, env.Event)
			return
		}
		h.reactions.Toggle(ctx, p)
	case EvCallStart:
		var p CallPayload
		if !decode(env.Data, &p) || p.CallerID == 0 || p.ReceiverID == 0 || p.Type == "" {
			h.drop(conn, env.Event)
			return
		}
		h.calls.Start(ctx, p)
	case EvCallAccept:
		var p CallPayload
		if !decode(env.Data, &p) || p.CallerID == 0 || p.ReceiverID == 0 {
			h.drop(conn, env.Event)
			return
		}
		h.calls.Accept(ctx, p)
	case EvCallReject:
		var p CallPayload
		if !decode(env.Data, &p) || p.CallerID == 0 || p.ReceiverID == 0 {
			h.drop(conn, env.Event)
			return
		}
		h.calls.Reject(ctx, p)
	case EvCallEnd:
		var p CallPayload
		if !decode(env.Data, &p) || p.CallerID == 0 || p.ReceiverID == 0 {
			h.drop(conn, env.Event)
			return
		}
		h.calls.End(ctx, p)
	case EvOffer:
		var p SignalPayload
		if !decode(env.Data, &p) || p.From == 0 || p.To == 0 {
			h.drop(conn, env.Event)
			return
		}
		h.calls.Offer(ctx, p)
	case EvAnswer:
		var p SignalPayload
		if !decode(env.Data, &p) || p.From == 0 || p.To == 0 {
			h.drop(conn, env.Event)
			return
		}
		h.calls.Answer(ctx, p)
	case EvICECandidate:
		var p SignalPayload
		if !decode(env.Data, &p) || p.From == 0 || p.To == 0 {
			h.drop(conn, env.Event)
			return
		}
		h.calls.ICECandidate(ctx, p)
	default:
		h.drop(conn, "unknown:"+env.Event)
	}
}

func (h *Handler) drop(conn *Conn, reason string) {
	observability.IncWSEvent("ws_drop")
	h.logger.Debug("dropped inbound frame", "conn_id", conn.ID(), "reason", reason)
}

func decode(raw json.RawMessage, dst any) bool {
	if len(raw) == 0 {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}
