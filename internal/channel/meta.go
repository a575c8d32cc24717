package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/tiendi/tiendi/internal/domain"
)

const graphAPIBase = "https://graph.facebook.com/v19.0"

// MetaGateway sends through the Meta Send API. Messenger and Instagram
// share the wire format but differ in capabilities: Messenger supports
// HUMAN_AGENT-tagged sends outside the 24h window, Instagram does not.
type MetaGateway struct {
	channel     domain.ChannelType
	accessToken string
	baseURL     string
	client      *retryablehttp.Client
}

// NewMessengerGateway creates a Facebook Messenger gateway.
func NewMessengerGateway(pageAccessToken string) *MetaGateway {
	return newMetaGateway(domain.ChannelMessenger, pageAccessToken)
}

// NewInstagramGateway creates an Instagram messaging gateway.
func NewInstagramGateway(pageAccessToken string) *MetaGateway {
	return newMetaGateway(domain.ChannelInstagram, pageAccessToken)
}

func newMetaGateway(channel domain.ChannelType, token string) *MetaGateway {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 500 * time.Millisecond
	client.HTTPClient.Timeout = 30 * time.Second
	client.Logger = nil
	return &MetaGateway{
		channel:     channel,
		accessToken: token,
		baseURL:     graphAPIBase,
		client:      client,
	}
}

// SetBaseURL overrides the Graph API endpoint (tests).
func (g *MetaGateway) SetBaseURL(url string) { g.baseURL = strings.TrimSuffix(url, "/") }

func (g *MetaGateway) ID() domain.ChannelType { return g.channel }

// Capabilities reports the platform limits the dispatcher plans around.
func (g *MetaGateway) Capabilities() Capabilities {
	caps := Capabilities{
		QuickReplies: true,
		WindowHours:  24,
	}
	if g.channel == domain.ChannelMessenger {
		caps.Tagging = true
	}
	return caps
}

// Send posts one message through the Send API.
func (g *MetaGateway) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	message := map[string]any{"text": req.Content.Text}
	if len(req.Content.QuickReplies) > 0 {
		replies := make([]map[string]string, len(req.Content.QuickReplies))
		for i, qr := range req.Content.QuickReplies {
			replies[i] = map[string]string{
				"content_type": "text",
				"title":        qr,
				"payload":      qr,
			}
		}
		message["quick_replies"] = replies
	}

	body := map[string]any{
		"recipient": map[string]string{"id": req.Recipient},
		"message":   message,
	}
	if req.Tag != "" {
		body["messaging_type"] = "MESSAGE_TAG"
		body["tag"] = req.Tag
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling send payload: %w", err)
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, "POST",
		fmt.Sprintf("%s/me/messages?access_token=%s", g.baseURL, g.accessToken),
		payload)
	if err != nil {
		return nil, fmt.Errorf("creating send request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading send response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseGraphError(g.channel, respBody)
	}

	var result struct {
		MessageID string `json:"message_id"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parsing send response: %w", err)
	}

	return &SendResult{
		ProviderMessageID: result.MessageID,
		SentText:          req.Content.Text,
	}, nil
}

// parseGraphError converts a Graph API error body into a GatewayError.
func parseGraphError(channel domain.ChannelType, body []byte) error {
	var parsed struct {
		Error struct {
			Message      string `json:"message"`
			Code         int    `json:"code"`
			ErrorSubcode int    `json:"error_subcode"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Error.Code == 0 {
		return &GatewayError{Channel: channel, Message: string(body)}
	}
	return &GatewayError{
		Channel: channel,
		Code:    parsed.Error.Code,
		Subcode: parsed.Error.ErrorSubcode,
		Message: parsed.Error.Message,
	}
}
