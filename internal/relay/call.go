package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"chat-relay/internal/observability"
	"chat-relay/internal/ws"
)

// CallState is the lifecycle of one call attempt between a user pair.
type CallState string

const (
	CallRinging     CallState = "ringing"
	CallAccepted    CallState = "accepted"
	CallNegotiating CallState = "negotiating"
	CallActive      CallState = "active"
	CallEnded       CallState = "ended"
)

type callSession struct {
	callerID   int
	receiverID int
	callType   string
	state      CallState
}

// Calls routes call lifecycle events and WebRTC signaling payloads between
// logical users. The relay only tracks enough state to validate transitions;
// SDP contents and ICE buffering are endpoint concerns. Routing by user id
// means the exchange survives a party reconnecting on a different
// connection mid-call. A target with zero connections silently loses the
// frame; there is no timeout and no missed-call record.
type Calls struct {
	registry *ws.Registry
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[[2]int]*callSession
}

// NewCalls constructs the call signaling relay.
func NewCalls(registry *ws.Registry, logger *slog.Logger) *Calls {
	return &Calls{
		registry: registry,
		logger:   logger,
		sessions: make(map[[2]int]*callSession),
	}
}

func pairKey(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}

// Start opens a call attempt and rings the receiver.
func (c *Calls) Start(ctx context.Context, p ws.CallPayload) {
	c.mu.Lock()
	key := pairKey(p.CallerID, p.ReceiverID)
	if s, ok := c.sessions[key]; ok && s.state != CallEnded {
		c.mu.Unlock()
		c.logger.Debug("call already in progress", "caller_id", p.CallerID, "receiver_id", p.ReceiverID)
		return
	}
	c.sessions[key] = &callSession{
		callerID:   p.CallerID,
		receiverID: p.ReceiverID,
		callType:   p.Type,
		state:      CallRinging,
	}
	c.mu.Unlock()

	c.registry.SendToUser(p.ReceiverID, ws.Event{
		Event: ws.EvCallIncoming,
		Data:  map[string]any{"from": p.CallerID, "type": p.Type},
	})
	observability.IncRelayEvent("call", "start")
}

// Accept moves the call to accepted and tells the caller, who is expected to
// follow up with an SDP offer.
func (c *Calls) Accept(ctx context.Context, p ws.CallPayload) {
	if !c.transition(p.CallerID, p.ReceiverID, CallRinging, CallAccepted) {
		return
	}
	c.registry.SendToUser(p.CallerID, ws.Event{
		Event: ws.EvCallAccepted,
		Data:  map[string]any{"by": p.ReceiverID},
	})
	observability.IncRelayEvent("call", "accept")
}

// Reject terminates the attempt from the receiver's side.
func (c *Calls) Reject(ctx context.Context, p ws.CallPayload) {
	if !c.terminate(p.CallerID, p.ReceiverID) {
		return
	}
	c.registry.SendToUser(p.CallerID, ws.Event{
		Event: ws.EvCallRejected,
		Data:  map[string]any{"by": p.ReceiverID},
	})
	observability.IncRelayEvent("call", "reject")
}

// End terminates the call. Both parties get the notice: either side may have
// initiated, and both local states must converge to ended. The notice goes
// out even when no session is tracked, so peers recover after a relay
// restart mid-call.
func (c *Calls) End(ctx context.Context, p ws.CallPayload) {
	c.terminate(p.CallerID, p.ReceiverID)
	c.registry.SendToUser(p.CallerID, ws.Event{
		Event: ws.EvCallEnd,
		Data:  map[string]any{"by": p.ReceiverID},
	})
	c.registry.SendToUser(p.ReceiverID, ws.Event{
		Event: ws.EvCallEnd,
		Data:  map[string]any{"by": p.CallerID},
	})
	observability.IncRelayEvent("call", "end")
}

// Offer relays an SDP offer. The payload is opaque to the relay.
func (c *Calls) Offer(ctx context.Context, p ws.SignalPayload) {
	c.advance(p.From, p.To, CallAccepted, CallNegotiating)
	c.forward(ws.EvOffer, p)
}

// Answer relays an SDP answer.
func (c *Calls) Answer(ctx context.Context, p ws.SignalPayload) {
	c.advance(p.From, p.To, CallNegotiating, CallActive)
	c.forward(ws.EvAnswer, p)
}

// ICECandidate relays a candidate. No buffering here: waiting for the remote
// description is the endpoint's job.
func (c *Calls) ICECandidate(ctx context.Context, p ws.SignalPayload) {
	c.forward(ws.EvICECandidate, p)
}

// State reports the current state for the pair, or ended when no session
// exists.
func (c *Calls) State(a, b int) CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[pairKey(a, b)]; ok {
		return s.state
	}
	return CallEnded
}

func (c *Calls) forward(event string, p ws.SignalPayload) {
	sent := c.registry.SendToUser(p.To, ws.Event{
		Event: event,
		Data:  signalOut{From: p.From, Payload: p.Payload},
	})
	if sent == 0 {
		// Fire and forget: the target is offline and the frame is gone.
		c.logger.Debug("signaling target offline", "event", event, "to", p.To)
	}
	observability.IncRelayEvent("call", "signal")
}

// transition requires the session to be exactly in `from`.
func (c *Calls) transition(callerID, receiverID int, from, to CallState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[pairKey(callerID, receiverID)]
	if !ok || s.state != from {
		return false
	}
	s.state = to
	return true
}

// advance moves the session forward if it is in `from`; signaling frames for
// a pair with no session still flow (pure pass-through).
func (c *Calls) advance(a, b int, from, to CallState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[pairKey(a, b)]; ok && s.state == from {
		s.state = to
	}
}

// terminate ends any non-ended session for the pair.
func (c *Calls) terminate(callerID, receiverID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := pairKey(callerID, receiverID)
	s, ok := c.sessions[key]
	if !ok || s.state == CallEnded {
		return false
	}
	delete(c.sessions, key)
	return true
}

type signalOut struct {
	From    int             `json:"from"`
	Payload json.RawMessage `json:"payload"`
}
