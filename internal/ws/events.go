package ws

import "encoding/json"

// Envelope is the wire frame for inbound events: a type tag plus a raw
// payload decoded by the dispatch switch in Handler.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Event is an outbound frame.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Inbound event names. The dispatch switch over these is the closed set of
// operations the relay accepts; unknown names are dropped.
const (
	EvSendMessage  = "send-message"
	EvMessageRead  = "message:read"
	EvTypingStart  = "typing:start"
	EvTypingStop   = "typing:stop"
	EvMessageReact = "message:react"
	EvCallStart    = "call:start"
	EvCallAccept   = "call:accept"
	EvCallReject   = "call:reject"
	EvCallEnd      = "call:end"
	EvOffer        = "webrtc:offer"
	EvAnswer       = "webrtc:answer"
	EvICECandidate = "webrtc:ice-candidate"
)

// Outbound event names.
const (
	EvOnlineUsers    = "online-users"
	EvReceiveMessage = "receive-message"
	EvDelivered      = "message:delivered"
	EvReactionUpdate = "message:reaction:update"
	EvCallIncoming   = "call:incoming"
	EvCallAccepted   = "call:accepted"
	EvCallRejected   = "call:rejected"
	EvChatNew        = "chat:new"
)

// SendMessagePayload targets either an existing chat (required for groups) or
// a direct receiver (the chat is resolved by the unordered pair).
type SendMessagePayload struct {
	ChatID     int    `json:"chat_id,omitempty"`
	ReceiverID int    `json:"receiver_id,omitempty"`
	SenderID   int    `json:"sender_id"`
	Content    string `json:"content"`
	ReplyTo    *int   `json:"reply_to,omitempty"`
}

// ReadPayload acknowledges everything the reader has seen in one chat.
type ReadPayload struct {
	ChatID   int `json:"chat_id"`
	ReaderID int `json:"reader_id"`
}

// TypingPayload marks composition in a chat.
type TypingPayload struct {
	ChatID   int `json:"chat_id"`
	SenderID int `json:"sender_id"`
}

// ReactPayload toggles one user's membership in an emoji bucket.
type ReactPayload struct {
	MessageID int    `json:"message_id"`
	ChatID    int    `json:"chat_id"`
	Emoji     string `json:"emoji"`
	UserID    int    `json:"user_id"`
}

// CallPayload addresses a call attempt between two logical users.
type CallPayload struct {
	CallerID   int    `json:"caller_id"`
	ReceiverID int    `json:"receiver_id"`
	Type       string `json:"type,omitempty"`
}

// SignalPayload is an opaque WebRTC signaling frame relayed verbatim.
type SignalPayload struct {
	From    int             `json:"from"`
	To      int             `json:"to"`
	Payload json.RawMessage `json:"payload"`
}
