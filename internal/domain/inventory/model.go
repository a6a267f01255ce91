// Package inventory provides the ProductUnit record: one physical,
// serial-numbered piece of stock.
package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"stocksync/internal/core/entity"
	"stocksync/internal/core/id"
)

// Status is the lifecycle state of a unit.
type Status string

const (
	// StatusPending means the unit exists but its purchase backing is not
	// confirmed (initial state, and the state units revert to when the
	// transaction item covering them is deleted).
	StatusPending Status = "pending"

	// StatusAvailable means the unit is in stock and sellable.
	StatusAvailable Status = "available"

	// StatusSold means the unit has left inventory.
	StatusSold Status = "sold"

	// StatusReturned means the unit came back from a customer.
	StatusReturned Status = "returned"
)

// ProductUnit is one physical inventory unit.
//
// A unit with a nil SupplierID, or with a supplier but no transaction item
// referencing its id, is an orphan (see the orphan package).
type ProductUnit struct {
	entity.BaseEntity

	ProductID    id.ID  `db:"product_id" json:"productId"`
	SerialNumber string `db:"serial_number" json:"serialNumber"`

	SupplierID *id.ID `db:"supplier_id" json:"supplierId,omitempty"`

	Status Status `db:"status" json:"status"`

	Price    decimal.NullDecimal `db:"price" json:"price"`
	MinPrice decimal.NullDecimal `db:"min_price" json:"minPrice"`
	MaxPrice decimal.NullDecimal `db:"max_price" json:"maxPrice"`

	PurchasePrice decimal.NullDecimal `db:"purchase_price" json:"purchasePrice"`
	PurchaseDate  *time.Time          `db:"purchase_date" json:"purchaseDate,omitempty"`

	Color        string `db:"color" json:"color,omitempty"`
	Storage      string `db:"storage" json:"storage,omitempty"`
	RAM          string `db:"ram" json:"ram,omitempty"`
	BatteryLevel *int   `db:"battery_level" json:"batteryLevel,omitempty"`
	Condition    string `db:"condition" json:"condition,omitempty"`
}

// NewProductUnit creates a unit in pending status.
func NewProductUnit(productID id.ID, serialNumber string) ProductUnit {
	return ProductUnit{
		BaseEntity:   entity.NewBaseEntity(),
		ProductID:    productID,
		SerialNumber: serialNumber,
		Status:       StatusPending,
	}
}

// Patch carries the per-unit fields the sync path may update.
// Nil fields are left untouched.
type Patch struct {
	Status        *Status
	Price         *decimal.Decimal
	MinPrice      *decimal.Decimal
	MaxPrice      *decimal.Decimal
	PurchasePrice *decimal.Decimal
	PurchaseDate  *time.Time
	SupplierID    *id.ID
	Color         *string
	Storage       *string
	RAM           *string
	BatteryLevel  *int
	Condition     *string
}

// IsEmpty reports whether the patch carries no changes.
func (p Patch) IsEmpty() bool {
	return p == Patch{}
}

// Repository defines store operations for product units.
type Repository interface {
	// GetByIDs loads the units that exist among ids; missing ids are simply
	// absent from the result, the caller decides how to treat them.
	GetByIDs(ctx context.Context, ids []id.ID) ([]ProductUnit, error)

	// GetByProductAndSerials loads existing units of a product matching any
	// of the given serial numbers.
	GetByProductAndSerials(ctx context.Context, productID id.ID, serials []string) ([]ProductUnit, error)

	// Insert batch-creates units.
	Insert(ctx context.Context, units []ProductUnit) error

	// Update applies a patch to one unit.
	Update(ctx context.Context, unitID id.ID, patch Patch) error

	// UpdateStatus sets the status on every listed unit.
	UpdateStatus(ctx context.Context, ids []id.ID, status Status) error
}
