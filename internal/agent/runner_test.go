package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiendi/tiendi/internal/checkout"
	"github.com/tiendi/tiendi/internal/domain"
	"github.com/tiendi/tiendi/internal/escalation"
	"github.com/tiendi/tiendi/internal/llm"
	"github.com/tiendi/tiendi/internal/logging"
	"github.com/tiendi/tiendi/internal/store"
)

type fakeOrders struct {
	created []*domain.Order
}

func (f *fakeOrders) Create(ctx context.Context, order *domain.Order) error {
	order.ID = "ord-1"
	order.Number = len(f.created) + 1
	f.created = append(f.created, order)
	return nil
}

func (f *fakeOrders) AttachDelivery(ctx context.Context, orderID string, d domain.OrderDelivery) error {
	return nil
}

func (f *fakeOrders) AttachPayment(ctx context.Context, orderID string, p domain.OrderPayment) error {
	return nil
}

func (f *fakeOrders) Get(ctx context.Context, id string) (*domain.Order, error) {
	for _, o := range f.created {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, nil
}

type fakeCustomers struct {
	customers map[string]*domain.Customer
	deleted   []string
}

func newFakeCustomers() *fakeCustomers {
	return &fakeCustomers{customers: make(map[string]*domain.Customer)}
}

func (f *fakeCustomers) Get(ctx context.Context, id string) (*domain.Customer, error) {
	return f.customers[id], nil
}

func (f *fakeCustomers) SaveFact(ctx context.Context, customerID string, kind domain.MemoryFactKind, content string) error {
	c := f.customers[customerID]
	c.Facts = append(c.Facts, domain.MemoryFact{Kind: kind, Content: content})
	return nil
}

func (f *fakeCustomers) SaveAddress(ctx context.Context, customerID string, addr domain.CustomerAddress) error {
	c := f.customers[customerID]
	c.Addresses = append(c.Addresses, addr)
	return nil
}

func (f *fakeCustomers) AddNote(ctx context.Context, customerID, author, content string) error {
	c := f.customers[customerID]
	c.Notes = append(c.Notes, domain.StaffNote{Author: author, Content: content})
	return nil
}

func (f *fakeCustomers) Delete(ctx context.Context, customerID string) error {
	delete(f.customers, customerID)
	f.deleted = append(f.deleted, customerID)
	return nil
}

type testEnv struct {
	runner    *Runner
	convs     *store.MemoryConversationStore
	orders    *fakeOrders
	customers *fakeCustomers
	mock      *llm.MockClient
	conv      *domain.Conversation
}

func hoodie() domain.Product {
	return domain.Product{
		ID: "p-hoodie", BusinessID: "b1", Name: "Hoodie", Price: 20, Available: true,
		Variants: []domain.Variant{
			{ID: "v-s", ProductID: "p-hoodie", Options: []domain.Option{{Name: "Size", Value: "Small"}}, Price: 20, Stock: 3, Available: true},
			{ID: "v-m", ProductID: "p-hoodie", Options: []domain.Option{{Name: "Size", Value: "Medium"}}, Price: 22, Stock: 5, Available: true},
			{ID: "v-l", ProductID: "p-hoodie", Options: []domain.Option{{Name: "Size", Value: "Large"}}, Price: 24, Stock: 2, Available: true},
		},
	}
}

func shirt() domain.Product {
	variants := make([]domain.Variant, 0, 4)
	for _, size := range []string{"Small", "Medium"} {
		for _, color := range []string{"Red", "Blue"} {
			variants = append(variants, domain.Variant{
				ID: "v-" + color + "-" + size, ProductID: "p-shirt",
				Options: []domain.Option{{Name: "Size", Value: size}, {Name: "Color", Value: color}},
				Price:   15, Stock: 4, Available: true,
			})
		}
	}
	return domain.Product{ID: "p-shirt", BusinessID: "b1", Name: "Shirt", Price: 15, Available: true, Variants: variants}
}

func newTestEnv(t *testing.T, mock *llm.MockClient, products ...domain.Product) *testEnv {
	t.Helper()
	log := logging.New(nil, "silent")

	convs := store.NewMemoryConversationStore()
	cat := store.NewMemoryCatalogStore()
	for _, p := range products {
		cat.Add(p)
	}
	orders := &fakeOrders{}
	customers := newFakeCustomers()

	reg := llm.NewRegistry(log)
	reg.Register("mock", mock)
	reg.SetFallback("mock")

	runner := NewRunner(
		RunnerConfig{Model: "mock", MaxTokens: 512},
		domain.Business{ID: "b1", Name: "Tienda Tiendi", Hours: "9-18", Currency: "USD"},
		reg, convs, cat, customers,
		checkout.New(orders, nil, log),
		log,
	)

	conv := &domain.Conversation{BusinessID: "b1", Channel: domain.ChannelWhatsApp, ExternalID: "549111"}
	require.NoError(t, convs.Create(context.Background(), conv))

	return &testEnv{runner: runner, convs: convs, orders: orders, customers: customers, mock: mock, conv: conv}
}

func toolResp(name, input string) *llm.CompletionResponse {
	return &llm.CompletionResponse{
		ToolCalls: []llm.ToolCall{{ID: "tc-1", Name: name, Input: input}},
	}
}

func TestRunEscalatedShortCircuit(t *testing.T) {
	mock := &llm.MockClient{}
	env := newTestEnv(t, mock, hoodie())
	env.conv.State = domain.StateEscalated
	env.conv.Language = "es"

	res, err := env.runner.Run(context.Background(), env.conv, "hola?")
	require.NoError(t, err)
	assert.True(t, res.Escalated)
	assert.Equal(t, escalation.TransferredReply("es"), res.Reply)
	assert.Empty(t, mock.Requests, "no model call for escalated conversations")
}

func TestRunAddResolvedVariant(t *testing.T) {
	mock := &llm.MockClient{Responses: []*llm.CompletionResponse{
		toolResp("update_order", `{"action":"add","item":"hoodie","variant":"2 mediums","quantity":2}`),
		{Content: "Added 2 Hoodie Medium, total $44. Anything else?"},
	}}
	env := newTestEnv(t, mock, hoodie())

	res, err := env.runner.Run(context.Background(), env.conv, "2 mediums of the hoodie please")
	require.NoError(t, err)
	assert.Equal(t, []string{"update_order"}, res.ToolsUsed)
	assert.Contains(t, res.Reply, "Added")

	got, _ := env.convs.Get(context.Background(), env.conv.ID)
	assert.Equal(t, domain.StateOrdering, got.State)
	require.NotNil(t, got.PendingOrder)
	require.Len(t, got.PendingOrder.Items, 1)
	item := got.PendingOrder.Items[0]
	assert.Equal(t, "Medium", item.VariantLabel)
	assert.Equal(t, 2, item.Quantity)
	assert.Equal(t, 22.0, item.UnitPrice)
	assert.Equal(t, 44.0, got.PendingOrder.Total)

	// Narration pass ran because the tool turn had no text.
	require.Len(t, mock.Requests, 2)
	assert.Contains(t, mock.Requests[1].Messages[len(mock.Requests[1].Messages)-1].Content, "Tool execution results")
}

func TestRunRepeatedAddAccumulatesQuantity(t *testing.T) {
	mock := &llm.MockClient{Responses: []*llm.CompletionResponse{
		toolResp("update_order", `{"action":"add","item":"hoodie","variant":"medium","quantity":1}`),
		{Content: "done"},
		toolResp("update_order", `{"action":"add","item":"hoodie","variant":"medium","quantity":2}`),
		{Content: "done"},
	}}
	env := newTestEnv(t, mock, hoodie())
	ctx := context.Background()

	_, err := env.runner.Run(ctx, env.conv, "one medium hoodie")
	require.NoError(t, err)
	conv, _ := env.convs.Get(ctx, env.conv.ID)
	_, err = env.runner.Run(ctx, conv, "two more")
	require.NoError(t, err)

	got, _ := env.convs.Get(ctx, env.conv.ID)
	require.Len(t, got.PendingOrder.Items, 1, "same variant accumulates, not duplicates")
	assert.Equal(t, 3, got.PendingOrder.Items[0].Quantity)
	assert.Equal(t, 66.0, got.PendingOrder.Total)
}

func TestRunAmbiguousVariantAsksForClarification(t *testing.T) {
	mock := &llm.MockClient{Responses: []*llm.CompletionResponse{
		toolResp("update_order", `{"action":"add","item":"shirt","variant":"red","quantity":1}`),
		{Content: "Which size? Red comes in Small or Medium."},
	}}
	env := newTestEnv(t, mock, shirt())

	res, err := env.runner.Run(context.Background(), env.conv, "a red shirt")
	require.NoError(t, err)
	assert.Contains(t, res.Reply, "Which size")

	got, _ := env.convs.Get(context.Background(), env.conv.ID)
	if got.PendingOrder != nil {
		assert.Empty(t, got.PendingOrder.Items, "no line added on ambiguity")
	}
	require.NotNil(t, got.PartialSelection, "narrowed option is remembered for the next turn")
	assert.Equal(t, "p-shirt", got.PartialSelection.ProductID)
	assert.Equal(t, "Red", got.PartialSelection.Options["Color"])
}

func TestRunPartialSelectionNarrowsNextTurn(t *testing.T) {
	mock := &llm.MockClient{Responses: []*llm.CompletionResponse{
		toolResp("update_order", `{"action":"add","item":"shirt","variant":"red","quantity":1}`),
		{Content: "Small or Medium?"},
		toolResp("update_order", `{"action":"add","item":"shirt","variant":"medium","quantity":1}`),
		{Content: "done"},
	}}
	env := newTestEnv(t, mock, shirt())
	ctx := context.Background()

	_, err := env.runner.Run(ctx, env.conv, "a red shirt")
	require.NoError(t, err)
	conv, _ := env.convs.Get(ctx, env.conv.ID)
	_, err = env.runner.Run(ctx, conv, "medium")
	require.NoError(t, err)

	got, _ := env.convs.Get(ctx, env.conv.ID)
	require.NotNil(t, got.PendingOrder)
	require.Len(t, got.PendingOrder.Items, 1)
	assert.Equal(t, "Medium / Red", got.PendingOrder.Items[0].VariantLabel)
	assert.Nil(t, got.PartialSelection, "selection cleared once resolved")
}

func TestRunSubmitOrderFromPayment(t *testing.T) {
	mock := &llm.MockClient{Responses: []*llm.CompletionResponse{
		toolResp("submit_order", `{"payment_method":"cash","customer_confirmed":true}`),
		{Content: "Order #1 confirmed! Total $44, pay cash on pickup."},
	}}
	env := newTestEnv(t, mock, hoodie())
	ctx := context.Background()

	env.conv.State = domain.StatePayment
	env.conv.PendingOrder = &domain.PendingOrder{
		Items: []domain.LineItem{{Query: "2 mediums", ProductID: "p-hoodie", ProductName: "Hoodie", VariantLabel: "Medium", UnitPrice: 22, Quantity: 2}},
		Total: 44,
	}
	env.conv.PendingDelivery = &domain.PendingDelivery{Method: domain.DeliveryPickup}
	require.NoError(t, env.convs.SetState(ctx, env.conv.ID, domain.StatePayment))
	require.NoError(t, env.convs.SavePending(ctx, env.conv.ID, env.conv.PendingOrder, env.conv.PendingDelivery))

	res, err := env.runner.Run(ctx, env.conv, "cash")
	require.NoError(t, err)
	assert.Equal(t, []string{"submit_order"}, res.ToolsUsed)
	assert.Contains(t, res.Reply, "confirmed")

	require.Len(t, env.orders.created, 1)
	assert.Equal(t, 44.0, env.orders.created[0].Total)

	got, _ := env.convs.Get(ctx, env.conv.ID)
	assert.Equal(t, domain.StateCompleted, got.State)
	assert.Nil(t, got.PendingOrder, "pending fields cleared on checkout")
	assert.Nil(t, got.PendingDelivery)
}

func TestRunSubmitOrderRejectedWithoutDelivery(t *testing.T) {
	mock := &llm.MockClient{Responses: []*llm.CompletionResponse{
		toolResp("submit_order", `{"payment_method":"cash","customer_confirmed":true}`),
		{Content: "How would you like to receive it, pickup or delivery?"},
	}}
	env := newTestEnv(t, mock, hoodie())
	ctx := context.Background()

	env.conv.State = domain.StateConfirming
	env.conv.PendingOrder = &domain.PendingOrder{
		Items: []domain.LineItem{{ProductID: "p-hoodie", ProductName: "Hoodie", VariantLabel: "Medium", UnitPrice: 22, Quantity: 2}},
		Total: 44,
	}
	require.NoError(t, env.convs.SetState(ctx, env.conv.ID, domain.StateConfirming))
	require.NoError(t, env.convs.SavePending(ctx, env.conv.ID, env.conv.PendingOrder, nil))

	res, err := env.runner.Run(ctx, env.conv, "cash")
	require.NoError(t, err)
	assert.Empty(t, env.orders.created, "no order without a delivery preference")
	assert.Contains(t, res.Reply, "pickup or delivery")

	got, _ := env.convs.Get(ctx, env.conv.ID)
	assert.Equal(t, domain.StateConfirming, got.State, "state does not advance on rejection")
}

func TestRunCartChangeAfterConfirmingClearsDelivery(t *testing.T) {
	mock := &llm.MockClient{Responses: []*llm.CompletionResponse{
		toolResp("update_order", `{"action":"add","item":"hoodie","variant":"large","quantity":1}`),
		{Content: "done"},
	}}
	env := newTestEnv(t, mock, hoodie())
	ctx := context.Background()

	env.conv.State = domain.StatePayment
	env.conv.PendingOrder = &domain.PendingOrder{
		Items: []domain.LineItem{{ProductID: "p-hoodie", ProductName: "Hoodie", VariantLabel: "Medium", UnitPrice: 22, Quantity: 2}},
		Total: 44,
	}
	env.conv.PendingDelivery = &domain.PendingDelivery{Method: domain.DeliveryCourier, Address: "123 Main St"}
	require.NoError(t, env.convs.SetState(ctx, env.conv.ID, domain.StatePayment))
	require.NoError(t, env.convs.SavePending(ctx, env.conv.ID, env.conv.PendingOrder, env.conv.PendingDelivery))

	_, err := env.runner.Run(ctx, env.conv, "actually add a large too")
	require.NoError(t, err)

	got, _ := env.convs.Get(ctx, env.conv.ID)
	assert.Equal(t, domain.StateOrdering, got.State, "cart change reopens the order")
	assert.Nil(t, got.PendingDelivery, "stale delivery never attaches to a modified cart")
	require.Len(t, got.PendingOrder.Items, 2)
}

func TestRunEscalateTool(t *testing.T) {
	mock := &llm.MockClient{Responses: []*llm.CompletionResponse{
		toolResp("escalate_to_human", `{"reason":"complex complaint"}`),
	}}
	env := newTestEnv(t, mock, hoodie())

	res, err := env.runner.Run(context.Background(), env.conv, "I need help with a refund from last month")
	require.NoError(t, err)
	assert.True(t, res.Escalated)
	assert.Equal(t, escalation.TransferredReply("en"), res.Reply)

	got, _ := env.convs.Get(context.Background(), env.conv.ID)
	assert.Equal(t, domain.StateEscalated, got.State)
	assert.Equal(t, "complex complaint", got.EscalationReason)
}

func TestRunMemoryTools(t *testing.T) {
	mock := &llm.MockClient{Responses: []*llm.CompletionResponse{
		toolResp("save_customer_preference", `{"kind":"allergy","content":"peanuts"}`),
		{Content: "Noted — no peanuts, ever."},
	}}
	env := newTestEnv(t, mock, hoodie())
	env.customers.customers["cust-1"] = &domain.Customer{ID: "cust-1", BusinessID: "b1", Name: "Ana"}
	env.conv.CustomerID = "cust-1"

	_, err := env.runner.Run(context.Background(), env.conv, "btw I'm allergic to peanuts")
	require.NoError(t, err)

	c := env.customers.customers["cust-1"]
	require.Len(t, c.Facts, 1)
	assert.Equal(t, domain.FactAllergy, c.Facts[0].Kind)
	assert.Equal(t, "peanuts", c.Facts[0].Content)
}

func TestRunPlainTextReplyNoTools(t *testing.T) {
	mock := &llm.MockClient{Responses: []*llm.CompletionResponse{
		{Content: "We're open 9-18 every day!"},
	}}
	env := newTestEnv(t, mock, hoodie())

	res, err := env.runner.Run(context.Background(), env.conv, "what are your hours?")
	require.NoError(t, err)
	assert.Empty(t, res.ToolsUsed)
	assert.Equal(t, "We're open 9-18 every day!", res.Reply)
	require.Len(t, mock.Requests, 1, "no narration pass when the model answered directly")

	// The catalog and business context reached the prompt.
	assert.Contains(t, mock.Requests[0].System, "Tienda Tiendi")
	assert.Contains(t, mock.Requests[0].System, "Hoodie")
	assert.Contains(t, mock.Requests[0].System, "Medium")
}

func TestSystemPromptEmphasizesAllergies(t *testing.T) {
	prompt := BuildSystemPrompt(PromptContext{
		Business: domain.Business{Name: "Tienda Tiendi"},
		Conversation: &domain.Conversation{
			Channel: domain.ChannelWhatsApp,
			State:   domain.StateBrowsing,
		},
		Customer: &domain.Customer{
			Name:  "Ana",
			Facts: []domain.MemoryFact{{Kind: domain.FactAllergy, Content: "peanuts"}},
		},
	})
	assert.Contains(t, prompt, "ALLERGIES")
	assert.Contains(t, prompt, "peanuts")
	assert.Contains(t, prompt, "never ask for it", "whatsapp framing: phone number is already known")
}
