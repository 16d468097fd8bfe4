package ws

import (
	"context"
	"testing"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
)

// recorder implements every relay interface and records which operation each
// frame was routed to.
type recorder struct {
	calls []string
	last  any
}

func (r *recorder) record(op string, payload any) {
	r.calls = append(r.calls, op)
	r.last = payload
}

func (r *recorder) Send(ctx context.Context, origin *Conn, p SendMessagePayload) {
	r.record("send", p)
}
func (r *recorder) Read(ctx context.Context, p ReadPayload)    { r.record("read", p) }
func (r *recorder) Start(ctx context.Context, p TypingPayload) { r.record("typing_start", p) }
func (r *recorder) Stop(ctx context.Context, p TypingPayload)  { r.record("typing_stop", p) }
func (r *recorder) Toggle(ctx context.Context, p ReactPayload) { r.record("react", p) }

func (r *recorder) HandleConnect(ctx context.Context, userID int, first bool)   {}
func (r *recorder) HandleDisconnect(ctx context.Context, userID int, last bool) {}

type callRecorder struct {
	recorder
}

func (r *callRecorder) Start(ctx context.Context, p CallPayload)  { r.record("call_start", p) }
func (r *callRecorder) Accept(ctx context.Context, p CallPayload) { r.record("call_accept", p) }
func (r *callRecorder) Reject(ctx context.Context, p CallPayload) { r.record("call_reject", p) }
func (r *callRecorder) End(ctx context.Context, p CallPayload)    { r.record("call_end", p) }

func (r *callRecorder) Offer(ctx context.Context, p SignalPayload)  { r.record("offer", p) }
func (r *callRecorder) Answer(ctx context.Context, p SignalPayload) { r.record("answer", p) }
func (r *callRecorder) ICECandidate(ctx context.Context, p SignalPayload) {
	r.record("ice", p)
}

func newDispatchFixture(t *testing.T) (*Handler, *recorder, *callRecorder, *Conn) {
	t.Helper()
	logger := slogt.New(t)
	rec := &recorder{}
	calls := &callRecorder{}
	h := NewHandler(NewRegistry(logger), nil, rec, rec, rec, rec, calls, logger)
	conn, _ := newTestConn(7)
	return h, rec, calls, conn
}

func TestDispatchRoutesKnownEvents(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"send message", `{"event":"send-message","data":{"chat_id":5,"sender_id":7,"content":"hi"}}`, "send"},
		{"direct send without chat", `{"event":"send-message","data":{"receiver_id":2,"sender_id":7,"content":"hi"}}`, "send"},
		{"read", `{"event":"message:read","data":{"chat_id":5,"reader_id":7}}`, "read"},
		{"typing start", `{"event":"typing:start","data":{"chat_id":5,"sender_id":7}}`, "typing_start"},
		{"typing stop", `{"event":"typing:stop","data":{"chat_id":5,"sender_id":7}}`, "typing_stop"},
		{"react", `{"event":"message:react","data":{"message_id":9,"chat_id":5,"emoji":"🔥","user_id":7}}`, "react"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, rec, _, conn := newDispatchFixture(t)
			h.dispatch(context.Background(), conn, []byte(tt.raw))
			assert.Equal(t, []string{tt.want}, rec.calls)
		})
	}
}

func TestDispatchRoutesCallEvents(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"start", `{"event":"call:start","data":{"caller_id":1,"receiver_id":2,"type":"video"}}`, "call_start"},
		{"accept", `{"event":"call:accept","data":{"caller_id":1,"receiver_id":2}}`, "call_accept"},
		{"reject", `{"event":"call:reject","data":{"caller_id":1,"receiver_id":2}}`, "call_reject"},
		{"end", `{"event":"call:end","data":{"caller_id":1,"receiver_id":2}}`, "call_end"},
		{"offer", `{"event":"webrtc:offer","data":{"from":1,"to":2,"payload":{"sdp":"x"}}}`, "offer"},
		{"answer", `{"event":"webrtc:answer","data":{"from":2,"to":1,"payload":{"sdp":"y"}}}`, "answer"},
		{"ice", `{"event":"webrtc:ice-candidate","data":{"from":1,"to":2,"payload":{}}}`, "ice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, calls, conn := newDispatchFixture(t)
			h.dispatch(context.Background(), conn, []byte(tt.raw))
			assert.Equal(t, []string{tt.want}, calls.calls)
		})
	}
}

func TestDispatchDropsMalformedFrames(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{{{`},
		{"unknown event", `{"event":"shutdown","data":{}}`},
		{"missing data", `{"event":"send-message"}`},
		{"missing sender", `{"event":"send-message","data":{"chat_id":5,"content":"hi"}}`},
		{"empty content", `{"event":"send-message","data":{"chat_id":5,"sender_id":7,"content":""}}`},
		{"no target", `{"event":"send-message","data":{"sender_id":7,"content":"hi"}}`},
		{"read without reader", `{"event":"message:read","data":{"chat_id":5}}`},
		{"react without emoji", `{"event":"message:react","data":{"message_id":9,"user_id":7}}`},
		{"call without receiver", `{"event":"call:start","data":{"caller_id":1,"type":"audio"}}`},
		{"signal without target", `{"event":"webrtc:offer","data":{"from":1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, rec, calls, conn := newDispatchFixture(t)
			h.dispatch(context.Background(), conn, []byte(tt.raw))
			assert.Empty(t, rec.calls)
			assert.Empty(t, calls.calls)
		})
	}
}
