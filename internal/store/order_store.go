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

// OrderStore implements checkout.Orders backed by SQLite.
type OrderStore struct {
	db *DB
}

// NewOrderStore creates an order store using the given database.
func NewOrderStore(db *DB) *OrderStore {
	return &OrderStore{db: db}
}

// Create persists a new order and assigns its id and per-business number.
func (s *OrderStore) Create(ctx context.Context, order *domain.Order) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}

	items, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin order create: %w", err)
	}
	defer tx.Rollback()

	// Sequential per-business order numbers, assigned inside the
	// transaction so concurrent checkouts cannot collide.
	var max sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(number) FROM orders WHERE business_id = ?`, order.BusinessID,
	).Scan(&max); err != nil {
		return fmt.Errorf("assigning order number: %w", err)
	}
	order.Number = int(max.Int64) + 1

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, number, business_id, conversation_id, items, total, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.Number, order.BusinessID, order.ConversationID,
		string(items), order.Total, order.CreatedAt.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("creating order: %w", err)
	}

	return tx.Commit()
}

// AttachDelivery adds the delivery sub-record to an existing order.
func (s *OrderStore) AttachDelivery(ctx context.Context, orderID string, delivery domain.OrderDelivery) error {
	_, err := s.db.sql.ExecContext(ctx, `
		INSERT INTO order_delivery (order_id, method, address)
		VALUES (?, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET method = excluded.method, address = excluded.address`,
		orderID, delivery.Method, delivery.Address)
	if err != nil {
		return fmt.Errorf("attaching delivery: %w", err)
	}
	return nil
}

// AttachPayment adds the payment sub-record to an existing order.
func (s *OrderStore) AttachPayment(ctx context.Context, orderID string, payment domain.OrderPayment) error {
	_, err := s.db.sql.ExecContext(ctx, `
		INSERT INTO order_payment (order_id, method, link_url)
		VALUES (?, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET method = excluded.method, link_url = excluded.link_url`,
		orderID, payment.Method, payment.LinkURL)
	if err != nil {
		return fmt.Errorf("attaching payment: %w", err)
	}
	return nil
}

// Get returns an order with its sub-records, or nil when absent.
func (s *OrderStore) Get(ctx context.Context, id string) (*domain.Order, error) {
	var o domain.Order
	var items, createdAt string
	err := s.db.sql.QueryRowContext(ctx, `
		SELECT id, number, business_id, conversation_id, items, total, created_at
		FROM orders WHERE id = ?`, id).Scan(
		&o.ID, &o.Number, &o.BusinessID, &o.ConversationID, &items, &o.Total, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading order: %w", err)
	}

	if err := json.Unmarshal([]byte(items), &o.Items); err != nil {
		return nil, fmt.Errorf("unmarshaling order items: %w", err)
	}
	o.CreatedAt, _ = time.Parse(timeFormat, createdAt)

	var delivery domain.OrderDelivery
	err = s.db.sql.QueryRowContext(ctx,
		`SELECT method, address FROM order_delivery WHERE order_id = ?`, id,
	).Scan(&delivery.Method, &delivery.Address)
	if err == nil {
		o.Delivery = &delivery
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("loading order delivery: %w", err)
	}

	var payment domain.OrderPayment
	err = s.db.sql.QueryRowContext(ctx,
		`SELECT method, link_url FROM order_payment WHERE order_id = ?`, id,
	).Scan(&payment.Method, &payment.LinkURL)
	if err == nil {
		o.Payment = &payment
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("loading order payment: %w", err)
	}

	return &o, nil
}
