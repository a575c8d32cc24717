package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tiendi/tiendi/internal/domain"
)

// timeFormat is used for all persisted timestamps. Nanosecond precision so
// ClearProcessing can match on string equality.
const timeFormat = time.RFC3339Nano

// ConversationStore implements convo.Store backed by SQLite.
type ConversationStore struct {
	db *DB
}

// NewConversationStore creates a conversation store using the given database.
func NewConversationStore(db *DB) *ConversationStore {
	return &ConversationStore{db: db}
}

// Get returns a conversation by id, or nil when absent.
func (s *ConversationStore) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	row := s.db.sql.QueryRowContext(ctx, `
		SELECT id, business_id, channel, external_id, customer_id, state, language,
		       pending_order, pending_delivery, partial_selection,
		       ai_processing, processing_started_at, escalation_reason, failure_count,
		       last_customer_message_at, created_at, updated_at
		FROM conversations WHERE id = ?`, id)
	return scanConversation(row)
}

// GetByChannel returns a conversation by (channel, external id), or nil.
func (s *ConversationStore) GetByChannel(ctx context.Context, channel domain.ChannelType, externalID string) (*domain.Conversation, error) {
	row := s.db.sql.QueryRowContext(ctx, `
		SELECT id, business_id, channel, external_id, customer_id, state, language,
		       pending_order, pending_delivery, partial_selection,
		       ai_processing, processing_started_at, escalation_reason, failure_count,
		       last_customer_message_at, created_at, updated_at
		FROM conversations WHERE channel = ? AND external_id = ?`, channel, externalID)
	return scanConversation(row)
}

// Create persists a new conversation.
func (s *ConversationStore) Create(ctx context.Context, conv *domain.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	if conv.State == "" {
		conv.State = domain.StateIdle
	}
	now := time.Now()
	conv.CreatedAt = now
	conv.UpdatedAt = now

	_, err := s.db.sql.ExecContext(ctx, `
		INSERT INTO conversations (id, business_id, channel, external_id, customer_id, state, language, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.BusinessID, conv.Channel, conv.ExternalID, conv.CustomerID,
		conv.State, conv.Language, now.Format(timeFormat), now.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("creating conversation: %w", err)
	}
	return nil
}

// SetState updates the lifecycle state.
func (s *ConversationStore) SetState(ctx context.Context, id string, state domain.ConversationState) error {
	return s.update(ctx, id, "state = ?", state)
}

// SetLanguage records the detected customer language.
func (s *ConversationStore) SetLanguage(ctx context.Context, id, lang string) error {
	return s.update(ctx, id, "language = ?", lang)
}

// SavePending writes the pending order and delivery together.
func (s *ConversationStore) SavePending(ctx context.Context, id string, order *domain.PendingOrder, delivery *domain.PendingDelivery) error {
	orderJSON, err := marshalNullable(order)
	if err != nil {
		return err
	}
	deliveryJSON, err := marshalNullable(delivery)
	if err != nil {
		return err
	}
	_, err = s.db.sql.ExecContext(ctx, `
		UPDATE conversations
		SET pending_order = ?, pending_delivery = ?, updated_at = ?
		WHERE id = ?`,
		orderJSON, deliveryJSON, time.Now().Format(timeFormat), id)
	if err != nil {
		return fmt.Errorf("saving pending order: %w", err)
	}
	return nil
}

// SavePartialSelection writes (or clears) the accumulated variant selection.
func (s *ConversationStore) SavePartialSelection(ctx context.Context, id string, sel *domain.PartialVariantSelection) error {
	selJSON, err := marshalNullable(sel)
	if err != nil {
		return err
	}
	return s.update(ctx, id, "partial_selection = ?", selJSON)
}

// SetEscalated marks the conversation escalated with a reason.
func (s *ConversationStore) SetEscalated(ctx context.Context, id, reason string) error {
	_, err := s.db.sql.ExecContext(ctx, `
		UPDATE conversations
		SET state = ?, escalation_reason = ?, updated_at = ?
		WHERE id = ?`,
		domain.StateEscalated, reason, time.Now().Format(timeFormat), id)
	if err != nil {
		return fmt.Errorf("marking escalated: %w", err)
	}
	return nil
}

// Resume hands an escalated conversation back to the agent. It persists
// the handback transition whole: pending order, delivery and partial
// selection are dropped alongside the state change so no stale cart
// survives the human detour.
func (s *ConversationStore) Resume(ctx context.Context, id string) error {
	_, err := s.db.sql.ExecContext(ctx, `
		UPDATE conversations
		SET state = ?, escalation_reason = '', failure_count = 0,
		    pending_order = NULL, pending_delivery = NULL, partial_selection = NULL,
		    updated_at = ?
		WHERE id = ?`,
		domain.StateIdle, time.Now().Format(timeFormat), id)
	if err != nil {
		return fmt.Errorf("resuming conversation: %w", err)
	}
	return nil
}

// SetFailureCount records the consecutive-failure counter.
func (s *ConversationStore) SetFailureCount(ctx context.Context, id string, count int) error {
	return s.update(ctx, id, "failure_count = ?", count)
}

// BeginProcessing sets the AI-processing flag with its start time.
func (s *ConversationStore) BeginProcessing(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.sql.ExecContext(ctx, `
		UPDATE conversations
		SET ai_processing = 1, processing_started_at = ?, updated_at = ?
		WHERE id = ?`,
		at.Format(timeFormat), time.Now().Format(timeFormat), id)
	if err != nil {
		return fmt.Errorf("setting processing flag: %w", err)
	}
	return nil
}

// ClearProcessing clears the flag only when the stored start time still
// matches startedAt; a newer run owns the flag otherwise.
func (s *ConversationStore) ClearProcessing(ctx context.Context, id string, startedAt time.Time) error {
	_, err := s.db.sql.ExecContext(ctx, `
		UPDATE conversations
		SET ai_processing = 0, processing_started_at = NULL, updated_at = ?
		WHERE id = ? AND processing_started_at = ?`,
		time.Now().Format(timeFormat), id, startedAt.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("clearing processing flag: %w", err)
	}
	return nil
}

// StaleProcessing returns conversations whose processing flag predates the
// cutoff, with their start times.
func (s *ConversationStore) StaleProcessing(ctx context.Context, cutoff time.Time) (map[string]time.Time, error) {
	rows, err := s.db.sql.QueryContext(ctx, `
		SELECT id, processing_started_at FROM conversations
		WHERE ai_processing = 1 AND processing_started_at < ?`,
		cutoff.Format(timeFormat))
	if err != nil {
		return nil, fmt.Errorf("querying stale processing flags: %w", err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var id, startedAt string
		if err := rows.Scan(&id, &startedAt); err != nil {
			return nil, err
		}
		if t, err := time.Parse(timeFormat, startedAt); err == nil {
			out[id] = t
		}
	}
	return out, rows.Err()
}

// TouchCustomerActivity records the latest inbound customer message time.
func (s *ConversationStore) TouchCustomerActivity(ctx context.Context, id string, at time.Time) error {
	return s.update(ctx, id, "last_customer_message_at = ?", at.Format(timeFormat))
}

// AppendMessage appends to the conversation's message history.
func (s *ConversationStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	_, err := s.db.sql.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender, body, external_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.Sender, msg.Body, msg.ExternalID, msg.Status,
		msg.CreatedAt.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("appending message: %w", err)
	}
	return nil
}

// Messages returns the last n messages, oldest first.
func (s *ConversationStore) Messages(ctx context.Context, conversationID string, n int) ([]domain.Message, error) {
	rows, err := s.db.sql.QueryContext(ctx, `
		SELECT id, conversation_id, sender, body, external_id, status, created_at
		FROM (
			SELECT seq, id, conversation_id, sender, body, external_id, status, created_at
			FROM messages WHERE conversation_id = ?
			ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`, conversationID, n)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var m domain.Message
		var createdAt string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Sender, &m.Body, &m.ExternalID, &m.Status, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// HasExternalMessage reports whether an inbound message with this provider
// id was already recorded.
func (s *ConversationStore) HasExternalMessage(ctx context.Context, conversationID, externalID string) (bool, error) {
	if externalID == "" {
		return false, nil
	}
	var count int
	err := s.db.sql.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE conversation_id = ? AND external_id = ?`,
		conversationID, externalID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking message dedup: %w", err)
	}
	return count > 0, nil
}

func (s *ConversationStore) update(ctx context.Context, id, setClause string, value any) error {
	_, err := s.db.sql.ExecContext(ctx,
		"UPDATE conversations SET "+setClause+", updated_at = ? WHERE id = ?",
		value, time.Now().Format(timeFormat), id)
	if err != nil {
		return fmt.Errorf("updating conversation: %w", err)
	}
	return nil
}

func scanConversation(row *sql.Row) (*domain.Conversation, error) {
	var c domain.Conversation
	var pendingOrder, pendingDelivery, partialSelection, processingStartedAt, lastCustomerAt sql.NullString
	var aiProcessing int
	var createdAt, updatedAt string

	err := row.Scan(
		&c.ID, &c.BusinessID, &c.Channel, &c.ExternalID, &c.CustomerID, &c.State, &c.Language,
		&pendingOrder, &pendingDelivery, &partialSelection,
		&aiProcessing, &processingStartedAt, &c.EscalationReason, &c.FailureCount,
		&lastCustomerAt, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}

	c.AIProcessing = aiProcessing == 1
	if pendingOrder.Valid {
		var po domain.PendingOrder
		if json.Unmarshal([]byte(pendingOrder.String), &po) == nil {
			c.PendingOrder = &po
		}
	}
	if pendingDelivery.Valid {
		var pd domain.PendingDelivery
		if json.Unmarshal([]byte(pendingDelivery.String), &pd) == nil {
			c.PendingDelivery = &pd
		}
	}
	if partialSelection.Valid {
		var ps domain.PartialVariantSelection
		if json.Unmarshal([]byte(partialSelection.String), &ps) == nil {
			c.PartialSelection = &ps
		}
	}
	if processingStartedAt.Valid {
		if t, err := time.Parse(timeFormat, processingStartedAt.String); err == nil {
			c.ProcessingStartedAt = &t
		}
	}
	if lastCustomerAt.Valid {
		if t, err := time.Parse(timeFormat, lastCustomerAt.String); err == nil {
			c.LastCustomerMessageAt = &t
		}
	}
	c.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	c.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)
	return &c, nil
}

// marshalNullable renders v as JSON, or SQL NULL for a nil pointer.
func marshalNullable(v any) (any, error) {
	switch val := v.(type) {
	case *domain.PendingOrder:
		if val == nil {
			return nil, nil
		}
	case *domain.PendingDelivery:
		if val == nil {
			return nil, nil
		}
	case *domain.PartialVariantSelection:
		if val == nil {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling field: %w", err)
	}
	return string(data), nil
}
