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

// WhatsAppGateway sends through the WhatsApp Cloud API. The platform has a
// 24h service window, no message tags, and no Messenger-style quick-reply
// buttons on plain sends, so quick replies always degrade to numbered text.
type WhatsAppGateway struct {
	accessToken   string
	phoneNumberID string
	baseURL       string
	client        *retryablehttp.Client
}

// NewWhatsAppGateway creates a WhatsApp Cloud API gateway.
func NewWhatsAppGateway(accessToken, phoneNumberID string) *WhatsAppGateway {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 500 * time.Millisecond
	client.HTTPClient.Timeout = 30 * time.Second
	client.Logger = nil
	return &WhatsAppGateway{
		accessToken:   accessToken,
		phoneNumberID: phoneNumberID,
		baseURL:       graphAPIBase,
		client:        client,
	}
}

// SetBaseURL overrides the API endpoint (tests).
func (g *WhatsAppGateway) SetBaseURL(url string) { g.baseURL = strings.TrimSuffix(url, "/") }

func (g *WhatsAppGateway) ID() domain.ChannelType { return domain.ChannelWhatsApp }

// Capabilities reports the platform limits the dispatcher plans around.
func (g *WhatsAppGateway) Capabilities() Capabilities {
	return Capabilities{
		QuickReplies: false,
		Templates:    true,
		Tagging:      false,
		WindowHours:  24,
	}
}

// Send posts one text message through the Cloud API.
func (g *WhatsAppGateway) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	body := map[string]any{
		"messaging_product": "whatsapp",
		"to":                req.Recipient,
		"type":              "text",
		"text":              map[string]string{"body": req.Content.Text},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling send payload: %w", err)
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, "POST",
		fmt.Sprintf("%s/%s/messages", g.baseURL, g.phoneNumberID), payload)
	if err != nil {
		return nil, fmt.Errorf("creating send request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.accessToken)

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
		return nil, parseGraphError(domain.ChannelWhatsApp, respBody)
	}

	var result struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parsing send response: %w", err)
	}

	out := &SendResult{SentText: req.Content.Text}
	if len(result.Messages) > 0 {
		out.ProviderMessageID = result.Messages[0].ID
	}
	return out, nil
}
