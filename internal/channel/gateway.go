// Package channel delivers agent replies through per-platform messaging
// gateways, honoring each platform's capability limits and time-boxed
// messaging windows.
package channel

import (
	"context"
	"fmt"

	"github.com/tiendi/tiendi/internal/domain"
)

// Capabilities describes what a messaging platform supports.
type Capabilities struct {
	// QuickReplies is native quick-reply button support.
	QuickReplies bool
	// Templates is pre-approved template message support.
	Templates bool
	// Tagging allows tagged sends (e.g. HUMAN_AGENT) outside the window.
	Tagging bool
	// WindowHours is the rolling messaging window after the customer's
	// last message. 0 means unrestricted.
	WindowHours int
}

// Content is what the agent wants delivered. QuickReplies render as native
// buttons where supported and degrade to numbered text elsewhere.
type Content struct {
	Text         string
	QuickReplies []string
}

// SendRequest is a prepared outbound send.
type SendRequest struct {
	Recipient string
	Content   Content
	// Tag is a platform message tag applied outside the window.
	Tag string
}

// SendResult reports what was actually sent, so the outcome is auditable:
// SentText is the delivered text after any degradation, not the requested
// form.
type SendResult struct {
	ProviderMessageID string
	SentText          string
	Degraded          bool
	OutsideWindow     bool
	Tag               string
}

// Gateway is one platform's send surface.
type Gateway interface {
	ID() domain.ChannelType
	Capabilities() Capabilities
	Send(ctx context.Context, req SendRequest) (*SendResult, error)
}

// GatewayError is a structured provider rejection with the platform's
// error code and subcode.
type GatewayError struct {
	Channel domain.ChannelType
	Code    int
	Subcode int
	Message string
}

func (e *GatewayError) Error() string {
	if e.Subcode != 0 {
		return fmt.Sprintf("%s: (#%d/%d) %s", e.Channel, e.Code, e.Subcode, e.Message)
	}
	return fmt.Sprintf("%s: (#%d) %s", e.Channel, e.Code, e.Message)
}
