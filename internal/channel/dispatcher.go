package channel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tiendi/tiendi/internal/convo"
	"github.com/tiendi/tiendi/internal/domain"
	"github.com/tiendi/tiendi/internal/logging"
)

// humanAgentTag is the message tag applied when a tagging-capable platform
// is messaged outside its window.
const humanAgentTag = "HUMAN_AGENT"

// Dispatcher sends agent replies through the right gateway, degrading
// content to fit the platform and recording every outbound message.
type Dispatcher struct {
	gateways *Registry
	store    convo.Store
	log      *logging.Logger
	now      func() time.Time
}

// NewDispatcher creates a dispatcher over the registered gateways.
func NewDispatcher(gateways *Registry, store convo.Store, log *logging.Logger) *Dispatcher {
	return &Dispatcher{
		gateways: gateways,
		store:    store,
		log:      log.Sub("dispatch"),
		now:      time.Now,
	}
}

// Dispatch delivers content to the conversation's customer. The outbound
// message is persisted with its delivery status before returning, whatever
// the gateway outcome, so conversation history stays consistent.
func (d *Dispatcher) Dispatch(ctx context.Context, conv *domain.Conversation, content Content) (*SendResult, error) {
	gw, ok := d.gateways.Get(conv.Channel)
	if !ok {
		return nil, fmt.Errorf("no gateway for channel %s", conv.Channel)
	}
	caps := gw.Capabilities()

	req := SendRequest{
		Recipient: conv.ExternalID,
		Content:   content,
	}

	outside := d.outsideWindow(conv, caps)
	if outside && caps.Tagging {
		// Tagged sends are still allowed outside the window.
		req.Tag = humanAgentTag
	}
	// Platforms without tagging get the send attempted unmodified; the
	// provider rejects it and the failure is recorded below.

	degraded := false
	if len(req.Content.QuickReplies) > 0 && !caps.QuickReplies {
		req.Content = degradeQuickReplies(req.Content)
		degraded = true
	}

	result, sendErr := gw.Send(ctx, req)
	if result == nil {
		result = &SendResult{SentText: req.Content.Text}
	}
	result.Degraded = degraded
	result.OutsideWindow = outside
	result.Tag = req.Tag

	status := domain.StatusSent
	if sendErr != nil {
		status = domain.StatusFailed
	}
	msg := &domain.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Sender:         domain.SenderAgent,
		Body:           result.SentText,
		ExternalID:     result.ProviderMessageID,
		Status:         status,
		CreatedAt:      d.now(),
	}
	if err := d.store.AppendMessage(ctx, msg); err != nil {
		d.log.Error().Err(err).Str("conversationId", conv.ID).Msg("failed to record outbound message")
	}

	if sendErr != nil {
		d.log.Warn().Err(sendErr).
			Str("channel", string(conv.Channel)).
			Str("conversationId", conv.ID).
			Bool("outsideWindow", outside).
			Msg("outbound send failed")
		return result, sendErr
	}

	d.log.Info().
		Str("channel", string(conv.Channel)).
		Str("conversationId", conv.ID).
		Bool("degraded", degraded).
		Bool("outsideWindow", outside).
		Msg("reply sent")
	return result, nil
}

// outsideWindow computes whether the platform's rolling inbound-activity
// window has elapsed since the customer's last message.
func (d *Dispatcher) outsideWindow(conv *domain.Conversation, caps Capabilities) bool {
	if caps.WindowHours <= 0 || conv.LastCustomerMessageAt == nil {
		return false
	}
	window := time.Duration(caps.WindowHours) * time.Hour
	return d.now().Sub(*conv.LastCustomerMessageAt) > window
}

// degradeQuickReplies rewrites quick-reply buttons into a numbered
// plain-text equivalent.
func degradeQuickReplies(c Content) Content {
	var b strings.Builder
	b.WriteString(c.Text)
	for i, opt := range c.QuickReplies {
		fmt.Fprintf(&b, "\n%d. %s", i+1, opt)
	}
	return Content{Text: b.String()}
}
