// Package supplier provides the Supplier catalog entry consumed by the
// reconciliation engine. CRUD for suppliers lives outside this module.
package supplier

import (
	"context"

	"stocksync/internal/core/entity"
	"stocksync/internal/core/id"
)

// Supplier is a purchase source referenced by transactions and units.
type Supplier struct {
	entity.BaseEntity

	Name   string `db:"name" json:"name"`
	Active bool   `db:"active" json:"active"`
}

// Repository defines the read operations the engine needs.
type Repository interface {
	// GetByID loads a supplier. Returns apperror.CodeNotFound if missing.
	GetByID(ctx context.Context, supplierID id.ID) (*Supplier, error)
}
