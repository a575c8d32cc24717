package domain

import "time"

// Sender tags who produced a message.
type Sender string

const (
	SenderCustomer Sender = "customer"
	SenderAgent    Sender = "business"
	SenderHuman    Sender = "human"
)

// DeliveryStatus records the outcome of an outbound send. Inbound messages
// carry no status.
type DeliveryStatus string

const (
	StatusSent   DeliveryStatus = "sent"
	StatusFailed DeliveryStatus = "failed"
)

// Message is a single turn in a conversation. Messages are append-only,
// ordered by creation time, and never mutated after insert.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	Sender         Sender `json:"sender"`
	Body           string `json:"body"`
	// ExternalID is the provider message id, used for inbound dedup and
	// outbound audit.
	ExternalID string         `json:"externalId,omitempty"`
	Status     DeliveryStatus `json:"status,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}
