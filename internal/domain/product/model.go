// Package product provides the Product catalog entry and its aggregate stock.
package product

import (
	"context"

	"stocksync/internal/core/entity"
	"stocksync/internal/core/id"
)

// Product is a catalog entry with a cached aggregate stock counter.
//
// Stock is derived state: the set of non-deleted units is the source of
// truth, the integer exists for read performance. It must equal the net
// effect of all committed add/subtract deltas, clamped at zero.
type Product struct {
	entity.BaseEntity

	Name  string `db:"name" json:"name"`
	Brand string `db:"brand" json:"brand"`
	Model string `db:"model" json:"model"`

	Stock int64 `db:"stock" json:"stock"`
}

// StockDelta is the result of one aggregate stock mutation.
type StockDelta struct {
	ProductID id.ID
	Before    int64
	After     int64
}

// Clamped reports whether the delta was floored at zero.
func (d StockDelta) Clamped(requested int64) bool {
	return d.After-d.Before != requested
}

// Repository defines store operations for products.
type Repository interface {
	// GetByID loads a product. Returns apperror.CodeNotFound if missing.
	GetByID(ctx context.Context, productID id.ID) (*Product, error)

	// AdjustStock applies delta to the aggregate stock counter as a single
	// server-side atomic update, flooring the result at zero. Returns the
	// before/after values.
	AdjustStock(ctx context.Context, productID id.ID, delta int64) (StockDelta, error)
}
