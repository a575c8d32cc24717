// Package convo owns the conversation lifecycle: the state machine that
// tracks order-building progress and the mutation contract over persisted
// conversation fields.
package convo

import (
	"fmt"

	"github.com/tiendi/tiendi/internal/domain"
)

// EventKind enumerates every event that can advance a conversation.
// The set is closed; Transition switches over it exhaustively.
type EventKind int

const (
	// EventBrowse: the customer is asking about the catalog.
	EventBrowse EventKind = iota
	// EventStartOrder: a buy signal, usually the first cart addition.
	EventStartOrder
	// EventCartModified: an item added/removed/changed after checkout
	// already started.
	EventCartModified
	// EventOrderReady: "that's all", the cart is final.
	EventOrderReady
	// EventDeliverySet: delivery preference fully specified.
	EventDeliverySet
	// EventPaymentChosen: payment method picked; triggers order creation.
	EventPaymentChosen
	// EventCheckoutFailed: a checkout sub-step failed downstream.
	EventCheckoutFailed
	// EventCancel: the customer abandoned the pending order.
	EventCancel
	// EventEscalate: hand off to a human, from any state.
	EventEscalate
	// EventHandback: a human returned the conversation to the engine.
	// Only an explicit external operation emits this.
	EventHandback
)

// Event is a state-machine input with its payload.
type Event struct {
	Kind   EventKind
	Reason string // EventEscalate only
}

// Effect is a side effect the caller must apply alongside a transition.
type Effect int

const (
	// EffectClearDelivery drops a partially-collected delivery selection.
	// Emitted when the cart changes after checkout started, so stale
	// delivery data never attaches to a modified cart.
	EffectClearDelivery Effect = iota
	// EffectClearPending drops the pending order, delivery and partial
	// variant selection together.
	EffectClearPending
	// EffectCreateOrder runs the checkout orchestrator.
	EffectCreateOrder
	// EffectRecordEscalation persists the escalation reason.
	EffectRecordEscalation
)

// Transition computes (new state, effects) for an event against the current
// state. Invalid event/state pairs return an error and leave the state
// unchanged; callers treat that as "stay put", not a crash.
func Transition(state domain.ConversationState, ev Event) (domain.ConversationState, []Effect, error) {
	// Escalated is terminal for this engine; only a human hand-back exits.
	if state == domain.StateEscalated && ev.Kind != EventHandback {
		return state, nil, fmt.Errorf("conversation is escalated")
	}

	switch ev.Kind {
	case EventBrowse:
		if state == domain.StateIdle {
			return domain.StateBrowsing, nil, nil
		}
		return state, nil, nil

	case EventStartOrder:
		switch state {
		case domain.StateIdle, domain.StateBrowsing, domain.StateCompleted:
			return domain.StateOrdering, nil, nil
		case domain.StateOrdering:
			return state, nil, nil
		case domain.StateConfirming, domain.StatePayment:
			// Adding another item reopens the cart.
			return domain.StateOrdering, []Effect{EffectClearDelivery}, nil
		}
		return state, nil, fmt.Errorf("cannot start order from %s", state)

	case EventCartModified:
		switch state {
		case domain.StateOrdering:
			return state, nil, nil
		case domain.StateConfirming, domain.StatePayment:
			return domain.StateOrdering, []Effect{EffectClearDelivery}, nil
		}
		return state, nil, fmt.Errorf("no order in progress")

	case EventOrderReady:
		if state == domain.StateOrdering {
			return domain.StateConfirming, nil, nil
		}
		return state, nil, fmt.Errorf("cannot confirm from %s", state)

	case EventDeliverySet:
		switch state {
		case domain.StateConfirming, domain.StatePayment:
			return domain.StatePayment, nil, nil
		case domain.StateOrdering:
			// Delivery stated before "that's all"; accept and move on.
			return domain.StatePayment, nil, nil
		}
		return state, nil, fmt.Errorf("cannot set delivery from %s", state)

	case EventPaymentChosen:
		if state == domain.StatePayment {
			return domain.StateCompleted, []Effect{EffectCreateOrder, EffectClearPending}, nil
		}
		return state, nil, fmt.Errorf("cannot pay from %s", state)

	case EventCheckoutFailed:
		// Stay in payment so the customer can retry.
		if state == domain.StatePayment {
			return state, nil, nil
		}
		return state, nil, nil

	case EventCancel:
		switch state {
		case domain.StateOrdering, domain.StateConfirming, domain.StatePayment:
			return domain.StateBrowsing, []Effect{EffectClearPending}, nil
		}
		return state, nil, fmt.Errorf("nothing to cancel")

	case EventEscalate:
		return domain.StateEscalated, []Effect{EffectRecordEscalation}, nil

	case EventHandback:
		if state == domain.StateEscalated {
			return domain.StateIdle, []Effect{EffectClearPending}, nil
		}
		return state, nil, fmt.Errorf("conversation is not escalated")
	}

	return state, nil, fmt.Errorf("unknown event kind %d", ev.Kind)
}
