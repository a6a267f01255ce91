// Package transaction provides the SupplierTransaction document and its items.
package transaction

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"stocksync/internal/core/apperror"
	"stocksync/internal/core/entity"
	"stocksync/internal/core/id"
)

// Type classifies a supplier transaction.
type Type string

const (
	// TypePurchase is a regular purchase from a supplier.
	TypePurchase Type = "purchase"

	// TypeRecovery is a compensating transaction re-linking orphaned units.
	// Recovery transactions are create-once, never edited.
	TypeRecovery Type = "recovery"
)

// Status is the lifecycle state of a transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// SupplierTransaction is a purchase document. The transition to
// StatusCompleted is what triggers inventory synchronization.
type SupplierTransaction struct {
	entity.BaseEntity

	SupplierID id.ID  `db:"supplier_id" json:"supplierId"`
	Type       Type   `db:"type" json:"type"`
	Status     Status `db:"status" json:"status"`

	// Number is unique and human-readable (e.g. REC-2026-00042)
	Number string `db:"transaction_number" json:"transactionNumber"`

	TotalAmount decimal.Decimal `db:"total_amount" json:"totalAmount"`
	Date        time.Time       `db:"transaction_date" json:"transactionDate"`
	Notes       string          `db:"notes" json:"notes,omitempty"`

	// Table part
	Items []TransactionItem `db:"-" json:"items"`
}

// NewSupplierTransaction creates a transaction document.
func NewSupplierTransaction(supplierID id.ID, txType Type) *SupplierTransaction {
	return &SupplierTransaction{
		BaseEntity: entity.NewBaseEntity(),
		SupplierID: supplierID,
		Type:       txType,
		Status:     StatusPending,
		Date:       time.Now().UTC(),
		Items:      make([]TransactionItem, 0),
	}
}

// ShouldSync reports whether the transaction is eligible for inventory
// synchronization.
func (t *SupplierTransaction) ShouldSync() bool {
	return t.Type == TypePurchase && t.Status == StatusCompleted
}

// Validate checks document invariants.
func (t *SupplierTransaction) Validate(ctx context.Context) error {
	if id.IsNil(t.SupplierID) {
		return apperror.NewValidation("supplier is required").
			WithDetail("field", "supplierId")
	}
	if t.Date.IsZero() {
		return apperror.NewValidation("transaction date is required").
			WithDetail("field", "transactionDate")
	}
	if t.TotalAmount.IsNegative() {
		return apperror.NewValidation("total amount must not be negative").
			WithDetail("field", "totalAmount")
	}
	return nil
}

// TransactionItem is one line of a supplier transaction. It is exclusively
// owned by its transaction; ProductUnitIDs is a weak back-reference to units,
// not ownership (deleting the item must not delete the units).
type TransactionItem struct {
	ID            id.ID `db:"id" json:"id"`
	TransactionID id.ID `db:"transaction_id" json:"transactionId"`

	// Version is incremented by the store on every write; the change feed
	// carries it so re-delivered events can be recognized.
	Version int64 `db:"version" json:"version"`

	ProductID id.ID `db:"product_id" json:"productId"`

	Quantity  int64           `db:"quantity" json:"quantity"`
	UnitCost  decimal.Decimal `db:"unit_cost" json:"unitCost"`
	TotalCost decimal.Decimal `db:"total_cost" json:"totalCost"`

	// ProductUnitIDs is the ordered list of unit ids this item is believed
	// to cover. The order is NOT guaranteed to align with UnitDetails
	// entries; matching is by serial number.
	ProductUnitIDs []id.ID `db:"product_unit_ids" json:"productUnitIds"`

	// UnitDetails optionally describes the covered units one by one.
	// Entry count should match Quantity but mismatches are tolerated.
	UnitDetails UnitDetails `db:"unit_details" json:"unitDetails"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// HasEntries reports whether per-unit descriptors are present.
func (i *TransactionItem) HasEntries() bool {
	return len(i.UnitDetails.Entries) > 0
}

// HasUnitRefs reports whether the item references existing unit ids.
func (i *TransactionItem) HasUnitRefs() bool {
	return len(i.ProductUnitIDs) > 0
}

// UnitDetails is the optional per-unit descriptor payload of an item,
// stored as JSONB.
type UnitDetails struct {
	Entries []UnitEntry `json:"entries,omitempty"`
}

// UnitEntry describes one covered unit.
type UnitEntry struct {
	SerialNumber string `json:"serial"`

	Color        string `json:"color,omitempty"`
	Storage      string `json:"storage,omitempty"`
	RAM          string `json:"ram,omitempty"`
	BatteryLevel *int   `json:"battery_level,omitempty"`
	Condition    string `json:"condition,omitempty"`

	Price    *decimal.Decimal `json:"price,omitempty"`
	MinPrice *decimal.Decimal `json:"min_price,omitempty"`
	MaxPrice *decimal.Decimal `json:"max_price,omitempty"`
}

// Repository defines store operations for supplier transactions.
type Repository interface {
	// GetByID loads a transaction with its items.
	// Returns apperror.CodeNotFound if missing.
	GetByID(ctx context.Context, transactionID id.ID) (*SupplierTransaction, error)

	// Insert creates a transaction document (without items).
	Insert(ctx context.Context, tx *SupplierTransaction) error

	// InsertItems batch-creates items.
	InsertItems(ctx context.Context, items []TransactionItem) error

	// AnyItemReferencesUnit reports whether some transaction item's
	// product_unit_ids contains the unit id. One containment lookup per
	// call; used by the orphan repair path, not the hot path.
	AnyItemReferencesUnit(ctx context.Context, unitID id.ID) (bool, error)
}
