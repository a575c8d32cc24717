package domain

import "time"

// PaymentMethod is how the customer pays for an order.
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
)

// ValidPaymentMethod reports whether s names a known payment method.
func ValidPaymentMethod(s string) (PaymentMethod, bool) {
	switch PaymentMethod(s) {
	case PaymentCash, PaymentCard, PaymentTransfer:
		return PaymentMethod(s), true
	}
	return "", false
}

// OrderDelivery is the delivery sub-record attached after order creation.
type OrderDelivery struct {
	Method  DeliveryMethod `json:"method"`
	Address string         `json:"address,omitempty"`
}

// OrderPayment is the payment sub-record attached after order creation.
type OrderPayment struct {
	Method  PaymentMethod `json:"method"`
	LinkURL string        `json:"linkUrl,omitempty"`
}

// Order is a durable record created exactly once per successful checkout.
// Delivery and payment are attached as separate steps by the checkout
// orchestrator, not written atomically with the order itself.
type Order struct {
	ID             string         `json:"id"`
	Number         int            `json:"number"`
	BusinessID     string         `json:"businessId"`
	ConversationID string         `json:"conversationId"`
	Items          []LineItem     `json:"items"`
	Total          float64        `json:"total"`
	Delivery       *OrderDelivery `json:"delivery,omitempty"`
	Payment        *OrderPayment  `json:"payment,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}
