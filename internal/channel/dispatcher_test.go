package channel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiendi/tiendi/internal/domain"
	"github.com/tiendi/tiendi/internal/logging"
	"github.com/tiendi/tiendi/internal/store"
)

type fakeGateway struct {
	id      domain.ChannelType
	caps    Capabilities
	sendErr error
	last    *SendRequest
}

func (g *fakeGateway) ID() domain.ChannelType     { return g.id }
func (g *fakeGateway) Capabilities() Capabilities { return g.caps }

func (g *fakeGateway) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	g.last = &req
	if g.sendErr != nil {
		return nil, g.sendErr
	}
	return &SendResult{ProviderMessageID: "mid-1", SentText: req.Content.Text}, nil
}

func testDispatcher(t *testing.T, gws ...*fakeGateway) (*Dispatcher, *store.MemoryConversationStore) {
	t.Helper()
	log := logging.New(nil, "silent")
	reg := NewRegistry(log)
	for _, gw := range gws {
		reg.Register(gw)
	}
	cs := store.NewMemoryConversationStore()
	return NewDispatcher(reg, cs, log), cs
}

func testConversation(t *testing.T, cs *store.MemoryConversationStore, ch domain.ChannelType, lastCustomer time.Time) *domain.Conversation {
	t.Helper()
	conv := &domain.Conversation{BusinessID: "b1", Channel: ch, ExternalID: "ext-1"}
	require.NoError(t, cs.Create(context.Background(), conv))
	if !lastCustomer.IsZero() {
		require.NoError(t, cs.TouchCustomerActivity(context.Background(), conv.ID, lastCustomer))
		conv.LastCustomerMessageAt = &lastCustomer
	}
	return conv
}

func TestDispatchQuickRepliesNative(t *testing.T) {
	gw := &fakeGateway{id: domain.ChannelMessenger, caps: Capabilities{QuickReplies: true, Tagging: true, WindowHours: 24}}
	d, cs := testDispatcher(t, gw)
	conv := testConversation(t, cs, domain.ChannelMessenger, time.Now())

	result, err := d.Dispatch(context.Background(), conv, Content{
		Text:         "Pickup or delivery?",
		QuickReplies: []string{"Pickup", "Delivery"},
	})
	require.NoError(t, err)
	assert.False(t, result.Degraded)
	require.Len(t, gw.last.Content.QuickReplies, 2)
}

func TestDispatchQuickRepliesDegradeToNumberedText(t *testing.T) {
	gw := &fakeGateway{id: domain.ChannelWhatsApp, caps: Capabilities{Templates: true, WindowHours: 24}}
	d, cs := testDispatcher(t, gw)
	conv := testConversation(t, cs, domain.ChannelWhatsApp, time.Now())

	result, err := d.Dispatch(context.Background(), conv, Content{
		Text:         "Pickup or delivery?",
		QuickReplies: []string{"Pickup", "Delivery"},
	})
	require.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.Empty(t, gw.last.Content.QuickReplies, "no native payload on a channel without quick-reply support")
	assert.Equal(t, "Pickup or delivery?\n1. Pickup\n2. Delivery", gw.last.Content.Text)
	assert.Equal(t, gw.last.Content.Text, result.SentText)
}

func TestDispatchOutsideWindowTagging(t *testing.T) {
	// Customer last wrote 30 hours ago, past the 24-hour window.
	last := time.Now().Add(-30 * time.Hour)

	t.Run("tagging platform applies human agent tag", func(t *testing.T) {
		gw := &fakeGateway{id: domain.ChannelMessenger, caps: Capabilities{QuickReplies: true, Tagging: true, WindowHours: 24}}
		d, cs := testDispatcher(t, gw)
		conv := testConversation(t, cs, domain.ChannelMessenger, last)

		result, err := d.Dispatch(context.Background(), conv, Content{Text: "update on your order"})
		require.NoError(t, err)
		assert.True(t, result.OutsideWindow)
		assert.Equal(t, "HUMAN_AGENT", gw.last.Tag)
		assert.Equal(t, "HUMAN_AGENT", result.Tag)
	})

	t.Run("non-tagging platform attempts unmodified", func(t *testing.T) {
		gw := &fakeGateway{
			id:   domain.ChannelInstagram,
			caps: Capabilities{QuickReplies: true, WindowHours: 24},
			sendErr: &GatewayError{
				Channel: domain.ChannelInstagram,
				Code:    10,
				Message: "outside of allowed window",
			},
		}
		d, cs := testDispatcher(t, gw)
		conv := testConversation(t, cs, domain.ChannelInstagram, last)

		result, err := d.Dispatch(context.Background(), conv, Content{Text: "update on your order"})
		require.Error(t, err)
		require.NotNil(t, gw.last, "send is still attempted")
		assert.Empty(t, gw.last.Tag)
		assert.True(t, result.OutsideWindow)

		// Failure is still recorded in history.
		msgs, merr := cs.Messages(context.Background(), conv.ID, 10)
		require.NoError(t, merr)
		require.Len(t, msgs, 1)
		assert.Equal(t, domain.StatusFailed, msgs[0].Status)
	})
}

func TestDispatchInsideWindowNoTag(t *testing.T) {
	gw := &fakeGateway{id: domain.ChannelMessenger, caps: Capabilities{QuickReplies: true, Tagging: true, WindowHours: 24}}
	d, cs := testDispatcher(t, gw)
	conv := testConversation(t, cs, domain.ChannelMessenger, time.Now().Add(-2*time.Hour))

	result, err := d.Dispatch(context.Background(), conv, Content{Text: "here you go"})
	require.NoError(t, err)
	assert.False(t, result.OutsideWindow)
	assert.Empty(t, gw.last.Tag)
}

func TestDispatchPersistsOutboundMessage(t *testing.T) {
	gw := &fakeGateway{id: domain.ChannelWhatsApp, caps: Capabilities{Templates: true, WindowHours: 24}}
	d, cs := testDispatcher(t, gw)
	conv := testConversation(t, cs, domain.ChannelWhatsApp, time.Now())

	_, err := d.Dispatch(context.Background(), conv, Content{Text: "your total is $44"})
	require.NoError(t, err)

	msgs, err := cs.Messages(context.Background(), conv.ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.SenderAgent, msgs[0].Sender)
	assert.Equal(t, "your total is $44", msgs[0].Body)
	assert.Equal(t, domain.StatusSent, msgs[0].Status)
	assert.Equal(t, "mid-1", msgs[0].ExternalID)
}

func TestDispatchUnknownChannel(t *testing.T) {
	d, cs := testDispatcher(t)
	conv := testConversation(t, cs, domain.ChannelWhatsApp, time.Time{})

	_, err := d.Dispatch(context.Background(), conv, Content{Text: "hi"})
	require.Error(t, err)
}
