// Package domain defines the core data model shared across the agent,
// checkout, and channel layers.
package domain

import "time"

// ChannelType identifies the messaging platform a conversation lives on.
type ChannelType string

const (
	ChannelWhatsApp  ChannelType = "whatsapp"
	ChannelMessenger ChannelType = "messenger"
	ChannelInstagram ChannelType = "instagram"
)

// ConversationState is the lifecycle state of a conversation. Exactly one
// value at a time; advanced only through convo.Transition.
type ConversationState string

const (
	StateIdle       ConversationState = "idle"
	StateBrowsing   ConversationState = "browsing"
	StateOrdering   ConversationState = "ordering"
	StateConfirming ConversationState = "confirming"
	StatePayment    ConversationState = "payment"
	StateCompleted  ConversationState = "completed"
	StateEscalated  ConversationState = "escalated"
)

// DeliveryMethod is how the customer receives the order.
type DeliveryMethod string

const (
	DeliveryPickup  DeliveryMethod = "pickup"
	DeliveryCourier DeliveryMethod = "delivery"
)

// LineItem is one entry in a pending or completed order.
type LineItem struct {
	// Query is the customer's original free-text phrasing ("2 mediums").
	Query string `json:"query"`
	// ProductID is empty until the line is resolved against the catalog.
	ProductID    string  `json:"productId,omitempty"`
	ProductName  string  `json:"productName,omitempty"`
	VariantLabel string  `json:"variantLabel,omitempty"`
	UnitPrice    float64 `json:"unitPrice"`
	Quantity     int     `json:"quantity"`
}

// Resolved reports whether this line maps to a real catalog entry.
func (li LineItem) Resolved() bool { return li.ProductID != "" }

// PendingOrder is the in-progress, unconfirmed cart attached to a conversation.
type PendingOrder struct {
	Items []LineItem `json:"items"`
	Total float64    `json:"total"`
}

// PendingDelivery is the delivery choice collected during checkout.
type PendingDelivery struct {
	Method  DeliveryMethod `json:"method"`
	Address string         `json:"address,omitempty"`
}

// Complete reports whether the delivery preference is fully specified:
// pickup needs nothing more, courier delivery needs an address.
func (d PendingDelivery) Complete() bool {
	switch d.Method {
	case DeliveryPickup:
		return true
	case DeliveryCourier:
		return d.Address != ""
	}
	return false
}

// PartialVariantSelection accumulates option values resolved across turns
// while the customer narrows down a multi-option product ("medium" ... "red").
type PartialVariantSelection struct {
	ProductID string            `json:"productId"`
	Options   map[string]string `json:"options"` // option name → resolved value
}

// Conversation is one customer↔business thread on one channel.
type Conversation struct {
	ID         string      `json:"id"`
	BusinessID string      `json:"businessId"`
	Channel    ChannelType `json:"channel"`
	// ExternalID is the channel-scoped customer identifier (PSID, wa_id, ...).
	ExternalID string `json:"externalId"`
	// CustomerID links to a durable customer profile when known.
	CustomerID string `json:"customerId,omitempty"`

	State    ConversationState `json:"state"`
	Language string            `json:"language,omitempty"` // detected, "es"/"en"

	// Order-building fields. Present only while State is ordering,
	// confirming or payment; cleared together on checkout or cancel.
	PendingOrder     *PendingOrder            `json:"pendingOrder,omitempty"`
	PendingDelivery  *PendingDelivery         `json:"pendingDelivery,omitempty"`
	PartialSelection *PartialVariantSelection `json:"partialSelection,omitempty"`

	// Processing flags are liveness hints for UI feedback and stale-state
	// recovery, not a correctness lock.
	AIProcessing        bool       `json:"aiProcessing"`
	ProcessingStartedAt *time.Time `json:"processingStartedAt,omitempty"`

	EscalationReason string `json:"escalationReason,omitempty"`
	// FailureCount counts consecutive agent-loop failures; three in a row
	// force an escalation.
	FailureCount int `json:"failureCount"`

	LastCustomerMessageAt *time.Time `json:"lastCustomerMessageAt,omitempty"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

// Ordering reports whether the conversation is in an order-building state.
func (c *Conversation) Ordering() bool {
	switch c.State {
	case StateOrdering, StateConfirming, StatePayment:
		return true
	}
	return false
}
