package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tiendi/tiendi/internal/domain"
)

// CatalogStore implements catalog.Store backed by SQLite.
type CatalogStore struct {
	db *DB
}

// NewCatalogStore creates a catalog store using the given database.
func NewCatalogStore(db *DB) *CatalogStore {
	return &CatalogStore{db: db}
}

// Products returns the business's available products with their available
// variants, ordered by name.
func (s *CatalogStore) Products(ctx context.Context, businessID string) ([]domain.Product, error) {
	rows, err := s.db.sql.QueryContext(ctx, `
		SELECT id, business_id, name, description, price, available
		FROM products WHERE business_id = ? AND available = 1
		ORDER BY name`, businessID)
	if err != nil {
		return nil, fmt.Errorf("loading products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range products {
		variants, err := s.variants(ctx, products[i].ID)
		if err != nil {
			return nil, err
		}
		products[i].Variants = variants
	}
	return products, nil
}

// Product returns one product by id, or nil when absent.
func (s *CatalogStore) Product(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.sql.QueryRowContext(ctx, `
		SELECT id, business_id, name, description, price, available
		FROM products WHERE id = ?`, id)

	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	variants, err := s.variants(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Variants = variants
	return p, nil
}

// Upsert writes a product and its variants. Used by catalog import, not by
// the agent.
func (s *CatalogStore) Upsert(ctx context.Context, p domain.Product) error {
	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (id, business_id, name, description, price, available)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			price = excluded.price,
			available = excluded.available`,
		p.ID, p.BusinessID, p.Name, p.Description, p.Price, boolInt(p.Available))
	if err != nil {
		return fmt.Errorf("upserting product %s: %w", p.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM variants WHERE product_id = ?`, p.ID); err != nil {
		return fmt.Errorf("clearing variants for %s: %w", p.ID, err)
	}
	for _, v := range p.Variants {
		opts := make([]domain.Option, 3)
		copy(opts, v.Options)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO variants (id, product_id,
				option1_name, option1_value, option2_name, option2_value,
				option3_name, option3_value, price, stock, available)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			v.ID, p.ID,
			opts[0].Name, opts[0].Value, opts[1].Name, opts[1].Value,
			opts[2].Name, opts[2].Value, v.Price, v.Stock, boolInt(v.Available))
		if err != nil {
			return fmt.Errorf("upserting variant %s: %w", v.ID, err)
		}
	}

	return tx.Commit()
}

func (s *CatalogStore) variants(ctx context.Context, productID string) ([]domain.Variant, error) {
	rows, err := s.db.sql.QueryContext(ctx, `
		SELECT id, product_id,
		       option1_name, option1_value, option2_name, option2_value,
		       option3_name, option3_value, price, stock, available
		FROM variants WHERE product_id = ? AND available = 1
		ORDER BY id`, productID)
	if err != nil {
		return nil, fmt.Errorf("loading variants: %w", err)
	}
	defer rows.Close()

	var variants []domain.Variant
	for rows.Next() {
		var v domain.Variant
		var names, values [3]string
		var available int
		err := rows.Scan(&v.ID, &v.ProductID,
			&names[0], &values[0], &names[1], &values[1],
			&names[2], &values[2], &v.Price, &v.Stock, &available)
		if err != nil {
			return nil, err
		}
		v.Available = available == 1
		for i := 0; i < 3; i++ {
			if names[i] != "" {
				v.Options = append(v.Options, domain.Option{Name: names[i], Value: values[i]})
			}
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var p domain.Product
	var available int
	if err := row.Scan(&p.ID, &p.BusinessID, &p.Name, &p.Description, &p.Price, &available); err != nil {
		return nil, err
	}
	p.Available = available == 1
	return &p, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
