package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiendi/tiendi/internal/config"
	"github.com/tiendi/tiendi/internal/domain"
	"github.com/tiendi/tiendi/internal/logging"
	"github.com/tiendi/tiendi/internal/routing"
	"github.com/tiendi/tiendi/internal/store"
)

type ingestCall struct {
	BusinessID        string
	Channel           domain.ChannelType
	SenderID          string
	Text              string
	ExternalMessageID string
}

type fakeRouter struct {
	calls chan ingestCall
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{calls: make(chan ingestCall, 16)}
}

func (f *fakeRouter) Ingest(ctx context.Context, businessID string, ch domain.ChannelType, senderID, text, externalMessageID string) (*routing.Outcome, error) {
	f.calls <- ingestCall{
		BusinessID:        businessID,
		Channel:           ch,
		SenderID:          senderID,
		Text:              text,
		ExternalMessageID: externalMessageID,
	}
	return &routing.Outcome{Success: true}, nil
}

func (f *fakeRouter) waitForCall(t *testing.T) ingestCall {
	t.Helper()
	select {
	case call := <-f.calls:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ingest")
		return ingestCall{}
	}
}

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.Business = config.BusinessConfig{ID: "b1", Name: "La Esquina"}
	cfg.Server.AdminToken = "admin-token"
	cfg.Channels.WhatsApp = &config.WhatsAppChannel{
		AccessToken:   "tok",
		PhoneNumberID: "123",
		VerifyToken:   "verify-wa",
		AppSecret:     "wa-secret",
	}
	cfg.Channels.Messenger = &config.MetaChannel{
		PageAccessToken: "tok",
		VerifyToken:     "verify-fb",
		AppSecret:       "fb-secret",
	}
	return cfg
}

func testServer(t *testing.T, router MessageRouter) (*Server, *httptest.Server) {
	t.Helper()
	s := New(testConfig(), router, logging.New(nil, "silent"))
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return s, ts
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := testServer(t, newFakeRouter())

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusRequiresAdminToken(t *testing.T) {
	_, ts := testServer(t, newFakeRouter())

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/status", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebhookVerifyHandshake(t *testing.T) {
	_, ts := testServer(t, newFakeRouter())

	resp, err := http.Get(ts.URL + "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=verify-wa&hub.challenge=12345")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	buf := make([]byte, 16)
	n, _ := resp.Body.Read(buf)
	assert.Equal(t, "12345", string(buf[:n]))
}

func TestWebhookVerifyRejectsBadToken(t *testing.T) {
	_, ts := testServer(t, newFakeRouter())

	resp, err := http.Get(ts.URL + "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWebhookVerifyUnknownChannel(t *testing.T) {
	_, ts := testServer(t, newFakeRouter())

	// Instagram is not configured; telegram does not exist.
	for _, path := range []string{"/webhooks/instagram", "/webhooks/telegram"} {
		resp, err := http.Get(ts.URL + path + "?hub.mode=subscribe&hub.verify_token=x&hub.challenge=1")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

const whatsappPayload = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "changes": [{
      "value": {
        "messages": [{
          "from": "549111222333",
          "id": "wamid.abc",
          "type": "text",
          "text": {"body": "hola, tienen empanadas?"}
        }]
      }
    }]
  }]
}`

func TestWebhookDeliveryReachesRouter(t *testing.T) {
	router := newFakeRouter()
	_, ts := testServer(t, router)

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/webhooks/whatsapp", strings.NewReader(whatsappPayload))
	req.Header.Set(signatureHeader, sign("wa-secret", []byte(whatsappPayload)))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	call := router.waitForCall(t)
	assert.Equal(t, "b1", call.BusinessID)
	assert.Equal(t, domain.ChannelWhatsApp, call.Channel)
	assert.Equal(t, "549111222333", call.SenderID)
	assert.Equal(t, "hola, tienen empanadas?", call.Text)
	assert.Equal(t, "wamid.abc", call.ExternalMessageID)
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	router := newFakeRouter()
	_, ts := testServer(t, router)

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/webhooks/whatsapp", strings.NewReader(whatsappPayload))
	req.Header.Set(signatureHeader, sign("wrong-secret", []byte(whatsappPayload)))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	select {
	case <-router.calls:
		t.Fatal("unsigned delivery must not be processed")
	case <-time.After(100 * time.Millisecond):
	}
}

const messengerPayload = `{
  "object": "page",
  "entry": [{
    "messaging": [
      {"sender": {"id": "999"}, "message": {"mid": "m_1", "text": "hi there"}},
      {"sender": {"id": "999"}, "message": {"mid": "m_2", "text": "echo", "is_echo": true}}
    ]
  }]
}`

func TestWebhookMessengerSkipsEchoes(t *testing.T) {
	router := newFakeRouter()
	_, ts := testServer(t, router)

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/webhooks/messenger", strings.NewReader(messengerPayload))
	req.Header.Set(signatureHeader, sign("fb-secret", []byte(messengerPayload)))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	call := router.waitForCall(t)
	assert.Equal(t, domain.ChannelMessenger, call.Channel)
	assert.Equal(t, "m_1", call.ExternalMessageID)

	select {
	case extra := <-router.calls:
		t.Fatalf("echo forwarded to router: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestParseWhatsAppPayloadSkipsNonText(t *testing.T) {
	body := []byte(`{
	  "object": "whatsapp_business_account",
	  "entry": [{"changes": [{"value": {"messages": [
	    {"from": "1", "id": "wamid.1", "type": "image"},
	    {"from": "2", "id": "wamid.2", "type": "text", "text": {"body": "hello"}}
	  ]}}]}]
	}`)
	msgs, err := parseWhatsAppPayload(body)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "2", msgs[0].SenderID)
}

func TestParseWhatsAppPayloadStatusOnly(t *testing.T) {
	// Delivery receipts carry no messages array.
	body := []byte(`{"object": "whatsapp_business_account", "entry": [{"changes": [{"value": {"statuses": [{"id": "wamid.1", "status": "delivered"}]}}]}]}`)
	msgs, err := parseWhatsAppPayload(body)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestResumeHandsBackEscalatedConversation(t *testing.T) {
	convs := store.NewMemoryConversationStore()
	ctx := context.Background()
	conv := &domain.Conversation{
		ID:         "c1",
		BusinessID: "b1",
		Channel:    domain.ChannelWhatsApp,
		ExternalID: "549111",
		State:      domain.StateBrowsing,
	}
	require.NoError(t, convs.Create(ctx, conv))
	pending := &domain.PendingOrder{
		Items: []domain.LineItem{{Query: "hoodie", ProductID: "p1", UnitPrice: 10, Quantity: 2}},
		Total: 20,
	}
	require.NoError(t, convs.SavePending(ctx, "c1", pending, &domain.PendingDelivery{Method: domain.DeliveryPickup}))
	require.NoError(t, convs.SetEscalated(ctx, "c1", "human_requested"))

	s := New(testConfig(), newFakeRouter(), logging.New(nil, "silent"), WithConversations(convs))
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	resume := func(token string) *http.Response {
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/conversations/c1/resume", nil)
		require.NoError(t, err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	assert.Equal(t, http.StatusUnauthorized, resume("").StatusCode)

	require.Equal(t, http.StatusOK, resume("admin-token").StatusCode)
	got, err := convs.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateIdle, got.State)
	assert.Empty(t, got.EscalationReason)
	assert.Zero(t, got.FailureCount)
	assert.Nil(t, got.PendingOrder)
	assert.Nil(t, got.PendingDelivery)
	assert.Nil(t, got.PartialSelection)

	// Already handed back.
	assert.Equal(t, http.StatusConflict, resume("admin-token").StatusCode)
}

func TestResumeUnknownConversation(t *testing.T) {
	s := New(testConfig(), newFakeRouter(), logging.New(nil, "silent"),
		WithConversations(store.NewMemoryConversationStore()))
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/conversations/nope/resume", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer admin-token")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
