package routing

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiendi/tiendi/internal/agent"
	"github.com/tiendi/tiendi/internal/channel"
	"github.com/tiendi/tiendi/internal/checkout"
	"github.com/tiendi/tiendi/internal/domain"
	"github.com/tiendi/tiendi/internal/escalation"
	"github.com/tiendi/tiendi/internal/llm"
	"github.com/tiendi/tiendi/internal/logging"
	"github.com/tiendi/tiendi/internal/processing"
	"github.com/tiendi/tiendi/internal/store"
)

type stubGateway struct {
	id   domain.ChannelType
	sent []channel.SendRequest
}

func (g *stubGateway) ID() domain.ChannelType { return g.id }
func (g *stubGateway) Capabilities() channel.Capabilities {
	return channel.Capabilities{Templates: true, WindowHours: 24}
}

func (g *stubGateway) Send(ctx context.Context, req channel.SendRequest) (*channel.SendResult, error) {
	g.sent = append(g.sent, req)
	return &channel.SendResult{ProviderMessageID: "mid", SentText: req.Content.Text}, nil
}

type stubOrders struct{}

func (stubOrders) Create(ctx context.Context, o *domain.Order) error {
	o.ID = "o1"
	o.Number = 1
	return nil
}
func (stubOrders) AttachDelivery(ctx context.Context, id string, d domain.OrderDelivery) error {
	return nil
}
func (stubOrders) AttachPayment(ctx context.Context, id string, p domain.OrderPayment) error {
	return nil
}
func (stubOrders) Get(ctx context.Context, id string) (*domain.Order, error) { return nil, nil }

type stubCustomers struct{}

func (stubCustomers) Get(ctx context.Context, id string) (*domain.Customer, error) { return nil, nil }
func (stubCustomers) SaveFact(ctx context.Context, id string, k domain.MemoryFactKind, c string) error {
	return nil
}
func (stubCustomers) SaveAddress(ctx context.Context, id string, a domain.CustomerAddress) error {
	return nil
}
func (stubCustomers) AddNote(ctx context.Context, id, author, content string) error { return nil }
func (stubCustomers) Delete(ctx context.Context, id string) error                   { return nil }

type routerEnv struct {
	router  *Router
	convs   *store.MemoryConversationStore
	gateway *stubGateway
	mock    *llm.MockClient
	conv    *domain.Conversation
	waits   []time.Duration
}

func newRouterEnv(t *testing.T, mock *llm.MockClient) *routerEnv {
	t.Helper()
	log := logging.New(nil, "silent")

	convs := store.NewMemoryConversationStore()
	cat := store.NewMemoryCatalogStore()
	cat.Add(domain.Product{ID: "p1", BusinessID: "b1", Name: "Empanada", Price: 3, Available: true})

	reg := llm.NewRegistry(log)
	reg.Register("mock", mock)
	reg.SetFallback("mock")

	runner := agent.NewRunner(
		agent.RunnerConfig{Model: "mock"},
		domain.Business{ID: "b1", Name: "La Esquina"},
		reg, convs, cat, stubCustomers{},
		checkout.New(stubOrders{}, nil, log),
		log,
	)

	gw := &stubGateway{id: domain.ChannelWhatsApp}
	chReg := channel.NewRegistry(log)
	chReg.Register(gw)
	dispatcher := channel.NewDispatcher(chReg, convs, log)

	guard := processing.NewGuard(convs, nil, log)

	env := &routerEnv{convs: convs, gateway: gw, mock: mock}
	env.router = NewRouter(convs, runner, guard, dispatcher,
		RetryPolicy{MaxAttempts: 2, Delay: 10 * time.Millisecond}, log)
	env.router.sleep = func(ctx context.Context, d time.Duration) error {
		env.waits = append(env.waits, d)
		return nil
	}

	conv := &domain.Conversation{BusinessID: "b1", Channel: domain.ChannelWhatsApp, ExternalID: "549111"}
	require.NoError(t, convs.Create(context.Background(), conv))
	env.conv = conv
	return env
}

func TestProcessHappyPath(t *testing.T) {
	mock := &llm.MockClient{Responses: []*llm.CompletionResponse{
		{Content: "We have empanadas for $3!"},
	}}
	env := newRouterEnv(t, mock)
	ctx := context.Background()

	out, err := env.router.ProcessIncomingMessage(ctx, env.conv.ID, "what do you sell?", "wamid-1")
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Empty(t, out.ToolsUsed)

	// Inbound and outbound both recorded, reply delivered.
	msgs, _ := env.convs.Messages(ctx, env.conv.ID, 10)
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.SenderCustomer, msgs[0].Sender)
	assert.Equal(t, domain.SenderAgent, msgs[1].Sender)
	require.Len(t, env.gateway.sent, 1)
	assert.Equal(t, "We have empanadas for $3!", env.gateway.sent[0].Content.Text)

	// Language detected and activity touched.
	got, _ := env.convs.Get(ctx, env.conv.ID)
	assert.Equal(t, "en", got.Language)
	assert.NotNil(t, got.LastCustomerMessageAt)
	assert.False(t, got.AIProcessing, "processing flag cleared")
}

func TestProcessDuplicateDelivery(t *testing.T) {
	mock := &llm.MockClient{Responses: []*llm.CompletionResponse{
		{Content: "hi!"},
	}}
	env := newRouterEnv(t, mock)
	ctx := context.Background()

	_, err := env.router.ProcessIncomingMessage(ctx, env.conv.ID, "hello", "wamid-1")
	require.NoError(t, err)

	out, err := env.router.ProcessIncomingMessage(ctx, env.conv.ID, "hello", "wamid-1")
	require.NoError(t, err)
	assert.True(t, out.Duplicate)
	assert.Len(t, mock.Requests, 1, "duplicate never reaches the model")

	msgs, _ := env.convs.Messages(ctx, env.conv.ID, 10)
	customerMsgs := 0
	for _, m := range msgs {
		if m.Sender == domain.SenderCustomer {
			customerMsgs++
		}
	}
	assert.Equal(t, 1, customerMsgs, "duplicate inbound not re-recorded")
}

func TestProcessEscalationPreCheck(t *testing.T) {
	mock := &llm.MockClient{}
	env := newRouterEnv(t, mock)
	ctx := context.Background()

	out, err := env.router.ProcessIncomingMessage(ctx, env.conv.ID, "I want to talk to a manager", "wamid-1")
	require.NoError(t, err)
	assert.True(t, out.Escalated)
	assert.Empty(t, mock.Requests, "escalation short-circuits before the model")

	got, _ := env.convs.Get(ctx, env.conv.ID)
	assert.Equal(t, domain.StateEscalated, got.State)
	assert.Equal(t, escalation.ReasonHumanRequested, got.EscalationReason)

	require.Len(t, env.gateway.sent, 1)
	assert.Equal(t, escalation.TransferredReply("en"), env.gateway.sent[0].Content.Text)
}

func TestProcessEscalatedConversationGetsTransferNotice(t *testing.T) {
	mock := &llm.MockClient{}
	env := newRouterEnv(t, mock)
	ctx := context.Background()

	require.NoError(t, env.convs.SetEscalated(ctx, env.conv.ID, "human requested"))
	require.NoError(t, env.convs.SetLanguage(ctx, env.conv.ID, "es"))

	out, err := env.router.ProcessIncomingMessage(ctx, env.conv.ID, "hola?", "wamid-2")
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Empty(t, mock.Requests)

	require.Len(t, env.gateway.sent, 1)
	assert.Equal(t, escalation.TransferredReply("es"), env.gateway.sent[0].Content.Text)
}

func TestProcessRateLimitRetry(t *testing.T) {
	calls := 0
	mock := &llm.MockClient{CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		calls++
		if calls == 1 {
			return nil, &llm.ProviderError{Provider: "mock", Code: http.StatusTooManyRequests, Message: "slow down"}
		}
		return &llm.CompletionResponse{Content: "here you go"}, nil
	}}
	env := newRouterEnv(t, mock)
	ctx := context.Background()

	out, err := env.router.ProcessIncomingMessage(ctx, env.conv.ID, "menu please", "wamid-1")
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, 2, calls)
	require.Len(t, env.waits, 1, "one backoff wait between attempts")

	got, _ := env.convs.Get(ctx, env.conv.ID)
	assert.False(t, got.AIProcessing, "flag cleared before and after the wait")
}

func TestProcessRateLimitExhausted(t *testing.T) {
	mock := &llm.MockClient{Err: &llm.ProviderError{Provider: "mock", Code: http.StatusTooManyRequests, Message: "slow down"}}
	env := newRouterEnv(t, mock)
	ctx := context.Background()

	out, err := env.router.ProcessIncomingMessage(ctx, env.conv.ID, "menu please", "wamid-1")
	require.Error(t, err)
	assert.False(t, out.Success)
	assert.Len(t, mock.Requests, 2, "policy allows exactly one retry")

	// Customer still got a reply.
	require.Len(t, env.gateway.sent, 1)
	assert.Equal(t, escalation.FallbackReply("en"), env.gateway.sent[0].Content.Text)

	got, _ := env.convs.Get(ctx, env.conv.ID)
	assert.Equal(t, 1, got.FailureCount)
	assert.False(t, got.AIProcessing)
}

func TestProcessFailureCountForcesEscalation(t *testing.T) {
	mock := &llm.MockClient{Err: errors.New("backend down")}
	env := newRouterEnv(t, mock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		out, err := env.router.ProcessIncomingMessage(ctx, env.conv.ID, "hello?", "")
		require.Error(t, err)
		assert.False(t, out.Success)
	}

	// Three consecutive failures trip the pre-check on the next message.
	out, err := env.router.ProcessIncomingMessage(ctx, env.conv.ID, "hello??", "")
	require.NoError(t, err)
	assert.True(t, out.Escalated)

	got, _ := env.convs.Get(ctx, env.conv.ID)
	assert.Equal(t, domain.StateEscalated, got.State)
	assert.Equal(t, escalation.ReasonRepeatedFailures, got.EscalationReason)
}

func TestProcessFailureCountResetsOnSuccess(t *testing.T) {
	calls := 0
	mock := &llm.MockClient{CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("backend down")
		}
		return &llm.CompletionResponse{Content: "all good now"}, nil
	}}
	env := newRouterEnv(t, mock)
	ctx := context.Background()

	_, err := env.router.ProcessIncomingMessage(ctx, env.conv.ID, "hello?", "")
	require.Error(t, err)
	got, _ := env.convs.Get(ctx, env.conv.ID)
	require.Equal(t, 1, got.FailureCount)

	out, err := env.router.ProcessIncomingMessage(ctx, env.conv.ID, "hello again", "")
	require.NoError(t, err)
	assert.True(t, out.Success)
	got, _ = env.convs.Get(ctx, env.conv.ID)
	assert.Equal(t, 0, got.FailureCount)
}

func TestIngestCreatesConversationOnFirstContact(t *testing.T) {
	mock := &llm.MockClient{Responses: []*llm.CompletionResponse{
		{Content: "hola!"},
		{Content: "hola otra vez"},
	}}
	env := newRouterEnv(t, mock)
	ctx := context.Background()

	out, err := env.router.Ingest(ctx, "b1", domain.ChannelWhatsApp, "549222", "hola, que venden?", "wamid-9")
	require.NoError(t, err)
	assert.True(t, out.Success)

	conv, err := env.convs.GetByChannel(ctx, domain.ChannelWhatsApp, "549222")
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Equal(t, "es", conv.Language)

	// Second message reuses the same thread.
	_, err = env.router.Ingest(ctx, "b1", domain.ChannelWhatsApp, "549222", "hola?", "wamid-10")
	require.NoError(t, err)
	msgs, _ := env.convs.Messages(ctx, conv.ID, 10)
	assert.Len(t, msgs, 4)
}
