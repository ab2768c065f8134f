package models

// Frame types exchanged over the websocket channel.
const (
	FrameJoin    = "join"
	FrameSend    = "send"
	FrameJoined  = "joined"
	FrameMessage = "message"
	FrameAck     = "ack"
	FrameError   = "error"
)

// ClientFrame is sent by clients over the channel.
type ClientFrame struct {
	Type    string       `json:"type"`
	PairKey string       `json:"pair_key,omitempty"`
	Ref     string       `json:"ref,omitempty"`
	Payload *SendPayload `json:"payload,omitempty"`
}

// ServerFrame is pushed by the server to connected clients.
type ServerFrame struct {
	Type    string   `json:"type"`
	PairKey string   `json:"pair_key,omitempty"`
	Ref     string   `json:"ref,omitempty"`
	Message *Message `json:"message,omitempty"`
	Error   string   `json:"error,omitempty"`
}
