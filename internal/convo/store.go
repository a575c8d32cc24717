package convo

import (
	"context"
	"time"

	"github.com/tiendi/tiendi/internal/domain"
)

// Store is the mutation contract over persisted conversations and their
// message history. SQLite and in-memory implementations live in
// internal/store.
type Store interface {
	// Get returns a conversation by id, or nil when absent.
	Get(ctx context.Context, id string) (*domain.Conversation, error)

	// Create persists a new conversation.
	Create(ctx context.Context, conv *domain.Conversation) error

	// SetState updates the lifecycle state.
	SetState(ctx context.Context, id string, state domain.ConversationState) error

	// SetLanguage records the detected customer language.
	SetLanguage(ctx context.Context, id, lang string) error

	// SavePending writes the pending order and delivery together. Nil
	// values clear the respective field.
	SavePending(ctx context.Context, id string, order *domain.PendingOrder, delivery *domain.PendingDelivery) error

	// SavePartialSelection writes (or clears, with nil) the accumulated
	// variant disambiguation.
	SavePartialSelection(ctx context.Context, id string, sel *domain.PartialVariantSelection) error

	// SetEscalated marks the conversation escalated with a reason.
	SetEscalated(ctx context.Context, id, reason string) error

	// Resume persists the handback transition in one write: escalation
	// and the failure counter are cleared, pending order/delivery and the
	// partial selection are dropped, and the conversation returns to
	// idle. No agent-loop path calls this.
	Resume(ctx context.Context, id string) error

	// SetFailureCount records the consecutive-failure counter.
	SetFailureCount(ctx context.Context, id string, count int) error

	// BeginProcessing sets the AI-processing flag with its start time.
	BeginProcessing(ctx context.Context, id string, at time.Time) error

	// ClearProcessing clears the flag, but only when the stored start time
	// still equals startedAt; a later run owns the flag otherwise.
	ClearProcessing(ctx context.Context, id string, startedAt time.Time) error

	// StaleProcessing returns ids of conversations whose processing flag
	// was set before the cutoff, with their start times.
	StaleProcessing(ctx context.Context, cutoff time.Time) (map[string]time.Time, error)

	// TouchCustomerActivity records the timestamp of the latest inbound
	// customer message, which anchors the channel messaging window.
	TouchCustomerActivity(ctx context.Context, id string, at time.Time) error

	// AppendMessage appends to the conversation's message history.
	AppendMessage(ctx context.Context, msg *domain.Message) error

	// Messages returns the last n messages, oldest first.
	Messages(ctx context.Context, conversationID string, n int) ([]domain.Message, error)

	// HasExternalMessage reports whether an inbound message with this
	// provider id was already recorded (duplicate webhook delivery).
	HasExternalMessage(ctx context.Context, conversationID, externalID string) (bool, error)
}
