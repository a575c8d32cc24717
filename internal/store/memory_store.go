package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tiendi/tiendi/internal/domain"
)

// MemoryConversationStore is an in-memory convo.Store implementation, used
// by tests and the simulate command.
type MemoryConversationStore struct {
	mu            sync.RWMutex
	conversations map[string]*domain.Conversation
	messages      map[string][]domain.Message
}

// NewMemoryConversationStore creates an empty in-memory conversation store.
func NewMemoryConversationStore() *MemoryConversationStore {
	return &MemoryConversationStore{
		conversations: make(map[string]*domain.Conversation),
		messages:      make(map[string][]domain.Message),
	}
}

func (s *MemoryConversationStore) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, nil
	}
	cp := *conv
	return &cp, nil
}

func (s *MemoryConversationStore) GetByChannel(ctx context.Context, channel domain.ChannelType, externalID string) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, conv := range s.conversations {
		if conv.Channel == channel && conv.ExternalID == externalID {
			cp := *conv
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryConversationStore) Create(ctx context.Context, conv *domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	if conv.State == "" {
		conv.State = domain.StateIdle
	}
	now := time.Now()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	cp := *conv
	s.conversations[conv.ID] = &cp
	return nil
}

func (s *MemoryConversationStore) SetState(ctx context.Context, id string, state domain.ConversationState) error {
	return s.mutate(id, func(c *domain.Conversation) { c.State = state })
}

func (s *MemoryConversationStore) SetLanguage(ctx context.Context, id, lang string) error {
	return s.mutate(id, func(c *domain.Conversation) { c.Language = lang })
}

func (s *MemoryConversationStore) SavePending(ctx context.Context, id string, order *domain.PendingOrder, delivery *domain.PendingDelivery) error {
	return s.mutate(id, func(c *domain.Conversation) {
		c.PendingOrder = order
		c.PendingDelivery = delivery
	})
}

func (s *MemoryConversationStore) SavePartialSelection(ctx context.Context, id string, sel *domain.PartialVariantSelection) error {
	return s.mutate(id, func(c *domain.Conversation) { c.PartialSelection = sel })
}

func (s *MemoryConversationStore) SetEscalated(ctx context.Context, id, reason string) error {
	return s.mutate(id, func(c *domain.Conversation) {
		c.State = domain.StateEscalated
		c.EscalationReason = reason
	})
}

func (s *MemoryConversationStore) Resume(ctx context.Context, id string) error {
	return s.mutate(id, func(c *domain.Conversation) {
		c.State = domain.StateIdle
		c.EscalationReason = ""
		c.FailureCount = 0
		c.PendingOrder = nil
		c.PendingDelivery = nil
		c.PartialSelection = nil
	})
}

func (s *MemoryConversationStore) SetFailureCount(ctx context.Context, id string, count int) error {
	return s.mutate(id, func(c *domain.Conversation) { c.FailureCount = count })
}

func (s *MemoryConversationStore) BeginProcessing(ctx context.Context, id string, at time.Time) error {
	return s.mutate(id, func(c *domain.Conversation) {
		c.AIProcessing = true
		t := at
		c.ProcessingStartedAt = &t
	})
}

func (s *MemoryConversationStore) ClearProcessing(ctx context.Context, id string, startedAt time.Time) error {
	return s.mutate(id, func(c *domain.Conversation) {
		if c.ProcessingStartedAt == nil || !c.ProcessingStartedAt.Equal(startedAt) {
			return
		}
		c.AIProcessing = false
		c.ProcessingStartedAt = nil
	})
}

func (s *MemoryConversationStore) StaleProcessing(ctx context.Context, cutoff time.Time) (map[string]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]time.Time)
	for id, c := range s.conversations {
		if c.AIProcessing && c.ProcessingStartedAt != nil && c.ProcessingStartedAt.Before(cutoff) {
			out[id] = *c.ProcessingStartedAt
		}
	}
	return out, nil
}

func (s *MemoryConversationStore) TouchCustomerActivity(ctx context.Context, id string, at time.Time) error {
	return s.mutate(id, func(c *domain.Conversation) {
		t := at
		c.LastCustomerMessageAt = &t
	})
}

func (s *MemoryConversationStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], *msg)
	return nil
}

func (s *MemoryConversationStore) Messages(ctx context.Context, conversationID string, n int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[conversationID]
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryConversationStore) HasExternalMessage(ctx context.Context, conversationID, externalID string) (bool, error) {
	if externalID == "" {
		return false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.messages[conversationID] {
		if m.Sender == domain.SenderCustomer && m.ExternalID == externalID {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryConversationStore) mutate(id string, fn func(*domain.Conversation)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conversations[id]; ok {
		fn(c)
		c.UpdatedAt = time.Now()
	}
	return nil
}

// MemoryCatalogStore is an in-memory catalog.Store implementation.
type MemoryCatalogStore struct {
	mu       sync.RWMutex
	products map[string]domain.Product
}

// NewMemoryCatalogStore creates an empty in-memory catalog.
func NewMemoryCatalogStore() *MemoryCatalogStore {
	return &MemoryCatalogStore{products: make(map[string]domain.Product)}
}

// Add stores a product.
func (s *MemoryCatalogStore) Add(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

func (s *MemoryCatalogStore) Products(ctx context.Context, businessID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Product
	for _, p := range s.products {
		if p.BusinessID == businessID && p.Available {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *MemoryCatalogStore) Product(ctx context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.products[id]; ok {
		return &p, nil
	}
	return nil, nil
}
