package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/tiendi/tiendi/internal/config"
	"github.com/tiendi/tiendi/internal/domain"
)

// maxWebhookBody caps webhook payload size.
const maxWebhookBody = 1 << 20 // 1MB

// processTimeout bounds background handling of one webhook delivery. It
// must cover the agent loop including one rate-limit backoff.
const processTimeout = 5 * time.Minute

// inboundMessage is one customer message extracted from a webhook payload.
type inboundMessage struct {
	SenderID          string
	Text              string
	ExternalMessageID string
}

// channelCredentials returns the verify token and app secret for a
// configured channel, or ok=false when the channel is disabled.
func channelCredentials(cfg config.ChannelsConfig, ch domain.ChannelType) (verifyToken, appSecret string, ok bool) {
	switch ch {
	case domain.ChannelWhatsApp:
		if cfg.WhatsApp != nil {
			return cfg.WhatsApp.VerifyToken, cfg.WhatsApp.AppSecret, true
		}
	case domain.ChannelMessenger:
		if cfg.Messenger != nil {
			return cfg.Messenger.VerifyToken, cfg.Messenger.AppSecret, true
		}
	case domain.ChannelInstagram:
		if cfg.Instagram != nil {
			return cfg.Instagram.VerifyToken, cfg.Instagram.AppSecret, true
		}
	}
	return "", "", false
}

func parseChannel(name string) (domain.ChannelType, bool) {
	switch name {
	case "whatsapp":
		return domain.ChannelWhatsApp, true
	case "messenger":
		return domain.ChannelMessenger, true
	case "instagram":
		return domain.ChannelInstagram, true
	}
	return "", false
}

// handleWebhookVerify answers the webhook subscription handshake: Meta
// sends hub.mode=subscribe with the configured verify token and expects
// the challenge echoed back.
func (s *Server) handleWebhookVerify(w http.ResponseWriter, r *http.Request) {
	ch, ok := parseChannel(r.PathValue("channel"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	verifyToken, _, ok := channelCredentials(s.cfg.Channels, ch)
	if !ok {
		http.NotFound(w, r)
		return
	}

	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" || !safeEqual(q.Get("hub.verify_token"), verifyToken) {
		s.log.Warn().Str("channel", string(ch)).Msg("webhook verification rejected")
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}

	s.log.Info().Str("channel", string(ch)).Msg("webhook verified")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, q.Get("hub.challenge"))
}

// handleWebhook receives signed webhook deliveries, acknowledges them
// immediately, and processes the contained messages in the background.
// Meta redelivers on slow responses, so the ack must not wait on the
// agent loop; redeliveries are absorbed by message-ID dedup downstream.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ch, ok := parseChannel(r.PathValue("channel"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	_, appSecret, ok := channelCredentials(s.cfg.Channels, ch)
	if !ok {
		http.NotFound(w, r)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "read failed", http.StatusBadRequest)
		return
	}

	if !ValidSignature(appSecret, body, r.Header.Get(signatureHeader)) {
		s.log.Warn().Str("channel", string(ch)).Msg("webhook signature invalid")
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	var messages []inboundMessage
	if ch == domain.ChannelWhatsApp {
		messages, err = parseWhatsAppPayload(body)
	} else {
		messages, err = parseMetaPayload(body)
	}
	if err != nil {
		s.log.Warn().Err(err).Str("channel", string(ch)).Msg("webhook payload unparseable")
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	for _, msg := range messages {
		go s.processInbound(ch, msg)
	}

	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "EVENT_RECEIVED")
}

// processInbound runs one webhook message through the pipeline.
func (s *Server) processInbound(ch domain.ChannelType, msg inboundMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()

	if _, err := s.router.Ingest(ctx, s.cfg.Business.ID, ch, msg.SenderID, msg.Text, msg.ExternalMessageID); err != nil {
		s.log.Error().Err(err).
			Str("channel", string(ch)).
			Str("externalMessageId", msg.ExternalMessageID).
			Msg("message processing failed")
	}
}

// parseWhatsAppPayload extracts text messages from a WhatsApp Cloud API
// webhook body. Status updates and non-text messages are skipped.
func parseWhatsAppPayload(body []byte) ([]inboundMessage, error) {
	var payload struct {
		Object string `json:"object"`
		Entry  []struct {
			Changes []struct {
				Value struct {
					Messages []struct {
						From string `json:"from"`
						ID   string `json:"id"`
						Type string `json:"type"`
						Text struct {
							Body string `json:"body"`
						} `json:"text"`
					} `json:"messages"`
				} `json:"value"`
			} `json:"changes"`
		} `json:"entry"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}

	var out []inboundMessage
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, m := range change.Value.Messages {
				if m.Type != "text" || m.Text.Body == "" {
					continue
				}
				out = append(out, inboundMessage{
					SenderID:          m.From,
					Text:              m.Text.Body,
					ExternalMessageID: m.ID,
				})
			}
		}
	}
	return out, nil
}

// parseMetaPayload extracts text messages from a Messenger or Instagram
// webhook body. Echoes of the page's own sends are skipped.
func parseMetaPayload(body []byte) ([]inboundMessage, error) {
	var payload struct {
		Object string `json:"object"`
		Entry  []struct {
			Messaging []struct {
				Sender struct {
					ID string `json:"id"`
				} `json:"sender"`
				Message struct {
					MID    string `json:"mid"`
					Text   string `json:"text"`
					IsEcho bool   `json:"is_echo"`
				} `json:"message"`
			} `json:"messaging"`
		} `json:"entry"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}

	var out []inboundMessage
	for _, entry := range payload.Entry {
		for _, m := range entry.Messaging {
			if m.Message.IsEcho || m.Message.Text == "" {
				continue
			}
			out = append(out, inboundMessage{
				SenderID:          m.Sender.ID,
				Text:              m.Message.Text,
				ExternalMessageID: m.Message.MID,
			})
		}
	}
	return out, nil
}
