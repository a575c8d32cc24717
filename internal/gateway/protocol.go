package gateway

import "encoding/json"

// Frame is the envelope for operator event stream messages. The server
// only pushes events; the stream is one-directional.
type Frame struct {
	Type    string          `json:"type"`
	Event   string          `json:"event,omitempty"`
	Seq     int64           `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Frame types.
const (
	FrameTypeEvent = "event"
)

// Event names pushed to operator clients.
const (
	EventHello        = "hello"
	EventTyping       = "conversation.typing"
	EventMessage      = "conversation.message"
	EventEscalated    = "conversation.escalated"
	EventOrderCreated = "order.created"
)

// NewEvent creates an event frame.
func NewEvent(event string, payload any, seq int64) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Type:    FrameTypeEvent,
		Event:   event,
		Payload: raw,
		Seq:     seq,
	}, nil
}

// TypingEvent is the payload of conversation.typing events.
type TypingEvent struct {
	ConversationID string `json:"conversationId"`
	Active         bool   `json:"active"`
}

// MessageEvent is the payload of conversation.message events.
type MessageEvent struct {
	ConversationID string `json:"conversationId"`
	Sender         string `json:"sender"`
	Body           string `json:"body"`
}

// EscalatedEvent is the payload of conversation.escalated events.
type EscalatedEvent struct {
	ConversationID string `json:"conversationId"`
	Reason         string `json:"reason"`
}

// HelloPayload greets a newly connected operator client.
type HelloPayload struct {
	Version string   `json:"version"`
	Events  []string `json:"events"`
}
