// Package checkout validates order completeness and drives order creation
// through the order-management and payments collaborators.
package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/tiendi/tiendi/internal/convo"
	"github.com/tiendi/tiendi/internal/domain"
	"github.com/tiendi/tiendi/internal/hooks"
	"github.com/tiendi/tiendi/internal/logging"
)

// Orders is the order-management collaborator.
type Orders interface {
	// Create persists a new order and assigns its id and number.
	Create(ctx context.Context, order *domain.Order) error

	// AttachDelivery adds the delivery sub-record to an existing order.
	AttachDelivery(ctx context.Context, orderID string, delivery domain.OrderDelivery) error

	// AttachPayment adds the payment sub-record to an existing order.
	AttachPayment(ctx context.Context, orderID string, payment domain.OrderPayment) error

	// Get returns an order by id, or nil when absent.
	Get(ctx context.Context, id string) (*domain.Order, error)
}

// Payments generates payment links. Card payments only.
type Payments interface {
	PaymentLink(ctx context.Context, orderID string, amount float64) (string, error)
}

// Failure reasons returned in Result.Reason.
const (
	ReasonNoItems          = "no resolved items in the order"
	ReasonNoDelivery       = "delivery preference not set"
	ReasonNoPaymentMethod  = "payment method not set"
	ReasonNotConfirmed     = "customer has not confirmed the order"
	ReasonExecutionFailure = "order creation failed"
)

// Result is the structured outcome of a checkout attempt. Replies built
// from it must gate success language on OK; a failed checkout must never
// read as "order placed".
type Result struct {
	OK          bool    `json:"ok"`
	Reason      string  `json:"reason,omitempty"`
	OrderID     string  `json:"orderId,omitempty"`
	OrderNumber int     `json:"orderNumber,omitempty"`
	Total       float64 `json:"total,omitempty"`
	PaymentLink string  `json:"paymentLink,omitempty"`
}

// Orchestrator runs the checkout: validate, create, attach delivery,
// attach payment, request a payment link for card orders.
type Orchestrator struct {
	orders   Orders
	payments Payments
	log      *logging.Logger
	hooks    *hooks.Manager
}

// SetHooks attaches a lifecycle event bus. nil disables emission.
func (o *Orchestrator) SetHooks(m *hooks.Manager) { o.hooks = m }

// New creates a checkout orchestrator. payments may be nil when no payment
// provider is configured; card checkouts then complete without a link.
func New(orders Orders, payments Payments, log *logging.Logger) *Orchestrator {
	return &Orchestrator{
		orders:   orders,
		payments: payments,
		log:      log.Sub("checkout"),
	}
}

// Validate checks order completeness without touching any collaborator.
// confirmed is the model's explicit customer_confirmed flag.
func (o *Orchestrator) Validate(conv *domain.Conversation, method domain.PaymentMethod, confirmed bool) (Result, bool) {
	items := convo.ResolvedItems(conv.PendingOrder)
	if len(items) == 0 {
		return Result{Reason: ReasonNoItems}, false
	}
	if conv.PendingDelivery == nil || !conv.PendingDelivery.Complete() {
		return Result{Reason: ReasonNoDelivery}, false
	}
	if method == "" {
		return Result{Reason: ReasonNoPaymentMethod}, false
	}
	if !confirmed {
		return Result{Reason: ReasonNotConfirmed}, false
	}
	return Result{}, true
}

// Submit validates and, when complete, creates the durable order. The three
// sub-steps (create, attach delivery, attach payment) are separate writes;
// a failure after creation reports the order id so the partial order can be
// reconciled. The conversation stays in payment on any failure.
func (o *Orchestrator) Submit(ctx context.Context, conv *domain.Conversation, method domain.PaymentMethod, confirmed bool) (Result, error) {
	if res, ok := o.Validate(conv, method, confirmed); !ok {
		o.log.Info().
			Str("conversationId", conv.ID).
			Str("reason", res.Reason).
			Msg("checkout rejected")
		return res, nil
	}

	items := convo.ResolvedItems(conv.PendingOrder)
	order := &domain.Order{
		BusinessID:     conv.BusinessID,
		ConversationID: conv.ID,
		Items:          items,
		Total:          orderTotal(items),
		CreatedAt:      time.Now(),
	}

	if err := o.orders.Create(ctx, order); err != nil {
		return Result{Reason: ReasonExecutionFailure}, fmt.Errorf("creating order: %w", err)
	}

	delivery := domain.OrderDelivery{
		Method:  conv.PendingDelivery.Method,
		Address: conv.PendingDelivery.Address,
	}
	if err := o.orders.AttachDelivery(ctx, order.ID, delivery); err != nil {
		return Result{Reason: ReasonExecutionFailure, OrderID: order.ID},
			fmt.Errorf("attaching delivery to order %s: %w", order.ID, err)
	}

	payment := domain.OrderPayment{Method: method}
	if method == domain.PaymentCard && o.payments != nil {
		link, err := o.payments.PaymentLink(ctx, order.ID, order.Total)
		if err != nil {
			return Result{Reason: ReasonExecutionFailure, OrderID: order.ID},
				fmt.Errorf("requesting payment link for order %s: %w", order.ID, err)
		}
		payment.LinkURL = link
	}
	if err := o.orders.AttachPayment(ctx, order.ID, payment); err != nil {
		return Result{Reason: ReasonExecutionFailure, OrderID: order.ID},
			fmt.Errorf("attaching payment to order %s: %w", order.ID, err)
	}

	o.log.Info().
		Str("conversationId", conv.ID).
		Str("orderId", order.ID).
		Int("orderNumber", order.Number).
		Float64("total", order.Total).
		Str("payment", string(method)).
		Msg("order created")
	if o.hooks != nil {
		o.hooks.EmitAsync(ctx, hooks.EventOrderCreated, map[string]any{
			"orderId":        order.ID,
			"orderNumber":    order.Number,
			"conversationId": conv.ID,
			"total":          order.Total,
		})
	}

	return Result{
		OK:          true,
		OrderID:     order.ID,
		OrderNumber: order.Number,
		Total:       order.Total,
		PaymentLink: payment.LinkURL,
	}, nil
}

func orderTotal(items []domain.LineItem) float64 {
	var total float64
	for _, item := range items {
		total += item.UnitPrice * float64(item.Quantity)
	}
	return total
}
