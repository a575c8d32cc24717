package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tiendi/tiendi/internal/domain"
)

// CustomerStore implements agent.CustomerStore backed by SQLite.
type CustomerStore struct {
	db *DB
}

// NewCustomerStore creates a customer store using the given database.
func NewCustomerStore(db *DB) *CustomerStore {
	return &CustomerStore{db: db}
}

// Get returns a customer profile with addresses, facts and notes, or nil.
func (s *CustomerStore) Get(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	var createdAt string
	err := s.db.sql.QueryRowContext(ctx, `
		SELECT id, business_id, name, phone, created_at
		FROM customers WHERE id = ?`, id).Scan(
		&c.ID, &c.BusinessID, &c.Name, &c.Phone, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading customer: %w", err)
	}
	c.CreatedAt, _ = time.Parse(timeFormat, createdAt)

	if c.Addresses, err = s.addresses(ctx, id); err != nil {
		return nil, err
	}
	if c.Facts, err = s.facts(ctx, id); err != nil {
		return nil, err
	}
	if c.Notes, err = s.notes(ctx, id); err != nil {
		return nil, err
	}
	return &c, nil
}

// Create persists a new customer profile.
func (s *CustomerStore) Create(ctx context.Context, c *domain.Customer) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := s.db.sql.ExecContext(ctx, `
		INSERT INTO customers (id, business_id, name, phone, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.BusinessID, c.Name, c.Phone, c.CreatedAt.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("creating customer: %w", err)
	}
	return nil
}

// SaveFact records a memory fact about the customer.
func (s *CustomerStore) SaveFact(ctx context.Context, customerID string, kind domain.MemoryFactKind, content string) error {
	_, err := s.db.sql.ExecContext(ctx, `
		INSERT INTO customer_facts (id, customer_id, kind, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), customerID, kind, content, time.Now().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("saving customer fact: %w", err)
	}
	return nil
}

// SaveAddress records a delivery address. A default address demotes any
// previous default.
func (s *CustomerStore) SaveAddress(ctx context.Context, customerID string, addr domain.CustomerAddress) error {
	if addr.ID == "" {
		addr.ID = uuid.New().String()
	}
	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save address: %w", err)
	}
	defer tx.Rollback()

	if addr.Default {
		if _, err := tx.ExecContext(ctx,
			`UPDATE customer_addresses SET is_default = 0 WHERE customer_id = ?`, customerID); err != nil {
			return fmt.Errorf("demoting default address: %w", err)
		}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO customer_addresses (id, customer_id, label, address, is_default)
		VALUES (?, ?, ?, ?, ?)`,
		addr.ID, customerID, addr.Label, addr.Address, boolInt(addr.Default))
	if err != nil {
		return fmt.Errorf("saving address: %w", err)
	}
	return tx.Commit()
}

// AddNote records a staff note on the customer.
func (s *CustomerStore) AddNote(ctx context.Context, customerID, author, content string) error {
	_, err := s.db.sql.ExecContext(ctx, `
		INSERT INTO staff_notes (id, customer_id, author, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), customerID, author, content, time.Now().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("adding staff note: %w", err)
	}
	return nil
}

// Delete removes the customer and all dependent records. Used for
// data-deletion requests.
func (s *CustomerStore) Delete(ctx context.Context, customerID string) error {
	_, err := s.db.sql.ExecContext(ctx, `DELETE FROM customers WHERE id = ?`, customerID)
	if err != nil {
		return fmt.Errorf("deleting customer: %w", err)
	}
	return nil
}

func (s *CustomerStore) addresses(ctx context.Context, customerID string) ([]domain.CustomerAddress, error) {
	rows, err := s.db.sql.QueryContext(ctx, `
		SELECT id, label, address, is_default FROM customer_addresses
		WHERE customer_id = ? ORDER BY is_default DESC, id`, customerID)
	if err != nil {
		return nil, fmt.Errorf("loading addresses: %w", err)
	}
	defer rows.Close()

	var out []domain.CustomerAddress
	for rows.Next() {
		var a domain.CustomerAddress
		var isDefault int
		if err := rows.Scan(&a.ID, &a.Label, &a.Address, &isDefault); err != nil {
			return nil, err
		}
		a.Default = isDefault == 1
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *CustomerStore) facts(ctx context.Context, customerID string) ([]domain.MemoryFact, error) {
	rows, err := s.db.sql.QueryContext(ctx, `
		SELECT id, kind, content, created_at FROM customer_facts
		WHERE customer_id = ? ORDER BY created_at`, customerID)
	if err != nil {
		return nil, fmt.Errorf("loading facts: %w", err)
	}
	defer rows.Close()

	var out []domain.MemoryFact
	for rows.Next() {
		var f domain.MemoryFact
		var createdAt string
		if err := rows.Scan(&f.ID, &f.Kind, &f.Content, &createdAt); err != nil {
			return nil, err
		}
		f.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *CustomerStore) notes(ctx context.Context, customerID string) ([]domain.StaffNote, error) {
	rows, err := s.db.sql.QueryContext(ctx, `
		SELECT id, author, content, created_at FROM staff_notes
		WHERE customer_id = ? ORDER BY created_at`, customerID)
	if err != nil {
		return nil, fmt.Errorf("loading staff notes: %w", err)
	}
	defer rows.Close()

	var out []domain.StaffNote
	for rows.Next() {
		var n domain.StaffNote
		var createdAt string
		if err := rows.Scan(&n.ID, &n.Author, &n.Content, &createdAt); err != nil {
			return nil, err
		}
		n.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		out = append(out, n)
	}
	return out, rows.Err()
}
