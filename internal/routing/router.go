// Package routing is the entry point for inbound customer messages: it owns
// the full pipeline from webhook-delivered text to dispatched reply.
package routing

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/tiendi/tiendi/internal/agent"
	"github.com/tiendi/tiendi/internal/channel"
	"github.com/tiendi/tiendi/internal/convo"
	"github.com/tiendi/tiendi/internal/domain"
	"github.com/tiendi/tiendi/internal/escalation"
	"github.com/tiendi/tiendi/internal/hooks"
	"github.com/tiendi/tiendi/internal/llm"
	"github.com/tiendi/tiendi/internal/logging"
	"github.com/tiendi/tiendi/internal/processing"
)

// ConversationDirectory extends the conversation store with lookup by
// channel identity, which webhooks need to map senders onto threads.
type ConversationDirectory interface {
	convo.Store
	GetByChannel(ctx context.Context, channel domain.ChannelType, externalID string) (*domain.Conversation, error)
}

// RetryPolicy bounds the rate-limit retry at this boundary. The processing
// flag is cleared before each wait so the customer never sees a stuck
// typing indicator during the backoff.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// Delay is the base wait between attempts.
	Delay time.Duration
	// Jitter is added uniformly at random on top of Delay.
	Jitter time.Duration
}

// DefaultRetryPolicy retries once after roughly thirty seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 2, Delay: 30 * time.Second, Jitter: 5 * time.Second}
}

// Outcome reports what one inbound message caused.
type Outcome struct {
	Success   bool     `json:"success"`
	ToolsUsed []string `json:"toolsUsed,omitempty"`
	// Duplicate marks a webhook redelivery that was ignored.
	Duplicate bool   `json:"duplicate,omitempty"`
	Escalated bool   `json:"escalated,omitempty"`
	Reply     string `json:"reply,omitempty"`
}

// escalationHistoryDepth is how many prior customer messages feed the
// frustration score.
const escalationHistoryDepth = 3

// Router runs the inbound pipeline: dedup, persistence, escalation
// pre-check, the agent loop under the processing guard, and dispatch.
type Router struct {
	store    ConversationDirectory
	runner   *agent.Runner
	guard    *processing.Guard
	dispatch *channel.Dispatcher
	retry    RetryPolicy
	log      *logging.Logger
	hooks    *hooks.Manager

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// SetHooks attaches a lifecycle event bus. nil disables emission.
func (r *Router) SetHooks(m *hooks.Manager) { r.hooks = m }

func (r *Router) emit(ctx context.Context, event string, data map[string]any) {
	if r.hooks != nil {
		r.hooks.EmitAsync(ctx, event, data)
	}
}

// NewRouter creates a message router.
func NewRouter(
	store ConversationDirectory,
	runner *agent.Runner,
	guard *processing.Guard,
	dispatch *channel.Dispatcher,
	retry RetryPolicy,
	log *logging.Logger,
) *Router {
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryPolicy()
	}
	return &Router{
		store:    store,
		runner:   runner,
		guard:    guard,
		dispatch: dispatch,
		retry:    retry,
		log:      log.Sub("routing"),
		sleep:    sleepContext,
	}
}

// Ingest maps a webhook delivery onto its conversation, creating the thread
// on first contact, then processes the message.
func (r *Router) Ingest(ctx context.Context, businessID string, ch domain.ChannelType, senderID, text, externalMessageID string) (*Outcome, error) {
	conv, err := r.store.GetByChannel(ctx, ch, senderID)
	if err != nil {
		return nil, fmt.Errorf("looking up conversation: %w", err)
	}
	if conv == nil {
		conv = &domain.Conversation{
			BusinessID: businessID,
			Channel:    ch,
			ExternalID: senderID,
		}
		if err := r.store.Create(ctx, conv); err != nil {
			return nil, fmt.Errorf("creating conversation: %w", err)
		}
		r.log.Info().
			Str("conversationId", conv.ID).
			Str("channel", string(ch)).
			Msg("new conversation")
	}
	return r.ProcessIncomingMessage(ctx, conv.ID, text, externalMessageID)
}

// ProcessIncomingMessage runs the full pipeline for one inbound message.
// Rate-limited completion calls are retried per the policy; all other
// errors surface after the fallback reply is dispatched.
func (r *Router) ProcessIncomingMessage(ctx context.Context, conversationID, text, externalMessageID string) (*Outcome, error) {
	conv, err := r.store.Get(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	if conv == nil {
		return nil, fmt.Errorf("conversation %s not found", conversationID)
	}

	// Duplicate webhook deliveries are acknowledged without reprocessing,
	// so the same message can never create two orders.
	if externalMessageID != "" {
		seen, err := r.store.HasExternalMessage(ctx, conv.ID, externalMessageID)
		if err != nil {
			return nil, fmt.Errorf("checking message dedup: %w", err)
		}
		if seen {
			r.log.Info().
				Str("conversationId", conv.ID).
				Str("externalMessageId", externalMessageID).
				Msg("duplicate delivery ignored")
			return &Outcome{Success: true, Duplicate: true}, nil
		}
	}

	now := time.Now()
	if err := r.store.AppendMessage(ctx, &domain.Message{
		ConversationID: conv.ID,
		Sender:         domain.SenderCustomer,
		Body:           text,
		ExternalID:     externalMessageID,
		CreatedAt:      now,
	}); err != nil {
		return nil, fmt.Errorf("recording inbound message: %w", err)
	}
	r.emit(ctx, hooks.EventMessageReceived, map[string]any{
		"conversationId": conv.ID,
		"channel":        string(conv.Channel),
	})
	if err := r.store.TouchCustomerActivity(ctx, conv.ID, now); err != nil {
		r.log.Error().Err(err).Str("conversationId", conv.ID).Msg("failed to record customer activity")
	}
	conv.LastCustomerMessageAt = &now

	if conv.Language == "" {
		lang := escalation.DetectLanguage(text)
		if err := r.store.SetLanguage(ctx, conv.ID, lang); err != nil {
			r.log.Error().Err(err).Str("conversationId", conv.ID).Msg("failed to record language")
		}
		conv.Language = lang
	}

	// Escalation pre-check, before any model call. Already-escalated
	// conversations skip it; the runner short-circuits those itself.
	if conv.State != domain.StateEscalated {
		history, err := r.customerHistory(ctx, conv.ID, text)
		if err != nil {
			return nil, err
		}
		if det := escalation.Detect(text, history, conv.FailureCount); det.ShouldEscalate {
			return r.escalateAndReply(ctx, conv, det.Reason)
		}
	}

	result, err := r.runWithRetry(ctx, conv, text)
	if err != nil {
		r.recordFailure(ctx, conv)
		r.sendReply(ctx, conv, escalation.FallbackReply(conv.Language))
		return &Outcome{Success: false}, err
	}

	if conv.FailureCount > 0 {
		if err := r.store.SetFailureCount(ctx, conv.ID, 0); err != nil {
			r.log.Error().Err(err).Str("conversationId", conv.ID).Msg("failed to reset failure count")
		}
		conv.FailureCount = 0
	}

	r.sendReply(ctx, conv, result.Reply)

	return &Outcome{
		Success:   true,
		ToolsUsed: result.ToolsUsed,
		Escalated: result.Escalated,
		Reply:     result.Reply,
	}, nil
}

// runWithRetry runs the agent under the processing guard, retrying
// rate-limited completions per the policy.
func (r *Router) runWithRetry(ctx context.Context, conv *domain.Conversation, text string) (*agent.RunResult, error) {
	for attempt := 1; ; attempt++ {
		startedAt, err := r.guard.Begin(ctx, conv.ID)
		if err != nil {
			return nil, fmt.Errorf("marking processing: %w", err)
		}

		result, err := r.runner.Run(ctx, conv, text)
		r.guard.Finish(ctx, conv.ID, startedAt)
		if err == nil {
			return result, nil
		}
		if !llm.IsRateLimited(err) || attempt >= r.retry.MaxAttempts {
			return nil, err
		}

		wait := r.retry.Delay
		if r.retry.Jitter > 0 {
			wait += time.Duration(rand.Int64N(int64(r.retry.Jitter)))
		}
		r.log.Warn().
			Str("conversationId", conv.ID).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("rate limited, retrying after backoff")
		if err := r.sleep(ctx, wait); err != nil {
			return nil, err
		}

		// Re-read the conversation: another message may have advanced it
		// during the wait.
		fresh, err := r.store.Get(ctx, conv.ID)
		if err != nil {
			return nil, fmt.Errorf("reloading conversation: %w", err)
		}
		if fresh != nil {
			*conv = *fresh
		}
	}
}

// escalateAndReply hands the conversation to a human and sends the canned
// transfer notice.
func (r *Router) escalateAndReply(ctx context.Context, conv *domain.Conversation, reason string) (*Outcome, error) {
	newState, _, err := convo.Transition(conv.State, convo.Event{Kind: convo.EventEscalate})
	if err != nil {
		return nil, fmt.Errorf("escalating: %w", err)
	}
	if err := r.store.SetEscalated(ctx, conv.ID, reason); err != nil {
		return nil, fmt.Errorf("recording escalation: %w", err)
	}
	conv.State = newState
	conv.EscalationReason = reason

	r.log.Info().
		Str("conversationId", conv.ID).
		Str("reason", reason).
		Msg("conversation escalated")
	r.emit(ctx, hooks.EventEscalated, map[string]any{
		"conversationId": conv.ID,
		"reason":         reason,
	})

	reply := escalation.TransferredReply(conv.Language)
	r.sendReply(ctx, conv, reply)
	return &Outcome{Success: true, Escalated: true, Reply: reply}, nil
}

// customerHistory returns the customer's prior messages, most recent last,
// excluding the just-recorded inbound text.
func (r *Router) customerHistory(ctx context.Context, conversationID, current string) ([]string, error) {
	msgs, err := r.store.Messages(ctx, conversationID, escalationHistoryDepth*4)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	var bodies []string
	for _, m := range msgs {
		if m.Sender == domain.SenderCustomer {
			bodies = append(bodies, m.Body)
		}
	}
	// Drop the trailing entry when it is the message being processed.
	if n := len(bodies); n > 0 && bodies[n-1] == current {
		bodies = bodies[:n-1]
	}
	if len(bodies) > escalationHistoryDepth {
		bodies = bodies[len(bodies)-escalationHistoryDepth:]
	}
	return bodies, nil
}

func (r *Router) recordFailure(ctx context.Context, conv *domain.Conversation) {
	conv.FailureCount++
	if err := r.store.SetFailureCount(ctx, conv.ID, conv.FailureCount); err != nil {
		r.log.Error().Err(err).Str("conversationId", conv.ID).Msg("failed to record failure count")
	}
}

// sendReply dispatches the reply text. Send failures are recorded by the
// dispatcher and logged; the pipeline outcome is about processing, not
// delivery.
func (r *Router) sendReply(ctx context.Context, conv *domain.Conversation, text string) {
	if text == "" {
		return
	}
	if _, err := r.dispatch.Dispatch(ctx, conv, channel.Content{Text: text}); err != nil {
		r.log.Error().Err(err).
			Str("conversationId", conv.ID).
			Str("channel", string(conv.Channel)).
			Msg("reply delivery failed")
		return
	}
	r.emit(ctx, hooks.EventReplySent, map[string]any{
		"conversationId": conv.ID,
		"channel":        string(conv.Channel),
	})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
