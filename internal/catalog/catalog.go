// Package catalog exposes read access to the product catalog and the
// variant resolution algorithm that maps free-text customer phrasing onto
// concrete variants.
package catalog

import (
	"context"

	"github.com/tiendi/tiendi/internal/domain"
)

// Store is the read interface over the product catalog. Catalog writes
// happen in sync jobs outside this engine.
type Store interface {
	// Products returns the business's available products with their
	// available variants, ordered by name.
	Products(ctx context.Context, businessID string) ([]domain.Product, error)

	// Product returns one product by id, or nil when absent.
	Product(ctx context.Context, id string) (*domain.Product, error)
}
