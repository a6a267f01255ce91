// Package sync provides the reconciliation core: it makes aggregate stock
// and per-unit records consistent with one supplier transaction or one
// transaction item.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"stocksync/internal/bus"
	"stocksync/internal/core/apperror"
	"stocksync/internal/core/id"
	"stocksync/internal/core/tx"
	"stocksync/internal/domain/inventory"
	"stocksync/internal/domain/product"
	"stocksync/internal/domain/transaction"
	"stocksync/pkg/logger"
)

var tracer = otel.Tracer("stocksync/sync")

// Ledger tracks which item change events have already been applied.
// The change feed is at-least-once; the additive stock delta is not
// naturally idempotent, so every (item, version, op) is recorded before
// its delta is applied.
type Ledger interface {
	// MarkApplied records the (itemID, version, op) triple. Returns false
	// when the triple was recorded earlier, meaning the event is a
	// re-delivery and its delta must be skipped.
	MarkApplied(ctx context.Context, itemID id.ID, version int64, op string) (bool, error)
}

// Ledger operation kinds.
const (
	OpApply  = "apply"
	OpRevert = "revert"
)

// Coordinator is the reconciliation engine core.
type Coordinator struct {
	products     product.Repository
	units        inventory.Repository
	transactions transaction.Repository
	ledger       Ledger
	txManager    tx.Manager
	bus          *bus.Bus
	log          *logger.Logger
}

// NewCoordinator creates a sync coordinator.
func NewCoordinator(
	products product.Repository,
	units inventory.Repository,
	transactions transaction.Repository,
	ledger Ledger,
	txManager tx.Manager,
	eventBus *bus.Bus,
	log *logger.Logger,
) *Coordinator {
	return &Coordinator{
		products:     products,
		units:        units,
		transactions: transactions,
		ledger:       ledger,
		txManager:    txManager,
		bus:          eventBus,
		log:          log.WithComponent("sync"),
	}
}

// SyncTransaction loads the transaction with its items and syncs every item.
// Transactions that are not completed purchases are a no-op. Item failures
// are isolated: one failing item never aborts its siblings.
func (c *Coordinator) SyncTransaction(ctx context.Context, transactionID id.ID) error {
	ctx, span := tracer.Start(ctx, "sync.transaction",
		trace.WithAttributes(attribute.String("transaction.id", transactionID.String())))
	defer span.End()

	tx, err := c.transactions.GetByID(ctx, transactionID)
	if err != nil {
		return fmt.Errorf("load transaction: %w", err)
	}

	if !tx.ShouldSync() {
		c.log.Debugw("transaction not eligible for sync, skipping",
			"transaction_id", transactionID,
			"type", tx.Type,
			"status", tx.Status,
		)
		return nil
	}

	failed := 0
	for i := range tx.Items {
		if err := c.SyncItem(ctx, &tx.Items[i]); err != nil {
			failed++
			c.log.Errorw("item sync failed, continuing with siblings",
				"transaction_id", transactionID,
				"item_id", tx.Items[i].ID,
				"error", err,
			)
		}
	}

	c.bus.Emit(ctx, bus.Event{
		Type:      bus.EventTransactionUpdated,
		Module:    "transactions",
		Operation: "sync",
		EntityID:  transactionID.String(),
		Data: map[string]any{
			"item_count":   len(tx.Items),
			"failed_items": failed,
		},
	})

	c.log.Infow("transaction synced",
		"transaction_id", transactionID,
		"items", len(tx.Items),
		"failed", failed,
	)
	return nil
}

// SyncItem reconciles inventory with one transaction item: applies the
// aggregate stock delta, then prices or creates the covered units.
func (c *Coordinator) SyncItem(ctx context.Context, item *transaction.TransactionItem) error {
	ctx, span := tracer.Start(ctx, "sync.item",
		trace.WithAttributes(attribute.String("item.id", item.ID.String())))
	defer span.End()

	prod, err := c.products.GetByID(ctx, item.ProductID)
	if err != nil {
		return fmt.Errorf("resolve product %s: %w", item.ProductID, err)
	}

	// Ledger mark and stock delta commit together: a recorded event whose
	// delta did not land would be skipped forever on re-delivery.
	var (
		delta   product.StockDelta
		skipped bool
	)
	err = c.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		applied, err := c.ledger.MarkApplied(ctx, item.ID, item.Version, OpApply)
		if err != nil {
			return fmt.Errorf("mark applied: %w", err)
		}
		if !applied {
			skipped = true
			return nil
		}
		delta, err = c.products.AdjustStock(ctx, item.ProductID, item.Quantity)
		if err != nil {
			return fmt.Errorf("adjust stock: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if skipped {
		c.log.Debugw("item version already applied, skipping re-delivery",
			"item_id", item.ID,
			"version", item.Version,
		)
		return nil
	}

	// Per-unit effects. Failures here are logged per unit and do not undo
	// the stock delta; a later orphan-recovery pass repairs the gap.
	switch {
	case item.HasEntries() && item.HasUnitRefs():
		c.syncExistingUnits(ctx, item)
	case item.HasEntries():
		c.createUnitsFromEntries(ctx, item, item.UnitDetails.Entries)
	case item.HasUnitRefs():
		c.applyUniformCost(ctx, item)
	}

	c.emitStockChanged(ctx, prod.ID, delta)
	return nil
}

// HandleDeletion reverses the inventory effects of a deleted item: the
// stock delta is subtracted (floored at zero) and referenced units revert
// to pending, reflecting that the purchase backing them no longer exists.
func (c *Coordinator) HandleDeletion(ctx context.Context, item *transaction.TransactionItem) error {
	ctx, span := tracer.Start(ctx, "sync.item_deletion",
		trace.WithAttributes(attribute.String("item.id", item.ID.String())))
	defer span.End()

	var (
		delta   product.StockDelta
		skipped bool
	)
	err := c.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		applied, err := c.ledger.MarkApplied(ctx, item.ID, item.Version, OpRevert)
		if err != nil {
			return fmt.Errorf("mark applied: %w", err)
		}
		if !applied {
			skipped = true
			return nil
		}
		delta, err = c.products.AdjustStock(ctx, item.ProductID, -item.Quantity)
		if err != nil {
			return fmt.Errorf("adjust stock: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if skipped {
		c.log.Debugw("item deletion already applied, skipping re-delivery",
			"item_id", item.ID,
			"version", item.Version,
		)
		return nil
	}

	if delta.Clamped(-item.Quantity) {
		inv := apperror.NewInvariantViolation("stock reversal clamped at zero").
			WithDetail("product_id", item.ProductID.String()).
			WithDetail("requested", -item.Quantity).
			WithDetail("before", delta.Before)
		c.log.Warnw("stock clamped during deletion reversal", "error", inv)
	}

	if item.HasUnitRefs() {
		if err := c.units.UpdateStatus(ctx, item.ProductUnitIDs, inventory.StatusPending); err != nil {
			c.log.Errorw("failed to revert units to pending",
				"item_id", item.ID,
				"error", err,
			)
		} else {
			for _, unitID := range item.ProductUnitIDs {
				c.emitUnitStatusChanged(ctx, unitID, inventory.StatusPending, "deletion")
			}
		}
	}

	c.emitStockChanged(ctx, item.ProductID, delta)

	c.log.Infow("item deletion handled",
		"item_id", item.ID,
		"product_id", item.ProductID,
		"quantity", item.Quantity,
	)
	return nil
}

// syncExistingUnits matches referenced units to detail entries by serial
// number (the id list and the entry list are not guaranteed aligned) and
// applies entry-specific pricing. Referenced ids with no existing row are
// logged as missing; when a serial-matched entry exists for such a gap the
// unit is created instead.
func (c *Coordinator) syncExistingUnits(ctx context.Context, item *transaction.TransactionItem) {
	existing, err := c.units.GetByIDs(ctx, item.ProductUnitIDs)
	if err != nil {
		c.log.Errorw("failed to fetch referenced units", "item_id", item.ID, "error", err)
		return
	}

	bySerial := make(map[string]*inventory.ProductUnit, len(existing))
	found := make(map[id.ID]bool, len(existing))
	for i := range existing {
		bySerial[existing[i].SerialNumber] = &existing[i]
		found[existing[i].ID] = true
	}

	missing := 0
	for _, unitID := range item.ProductUnitIDs {
		if !found[unitID] {
			missing++
			c.log.Warnw("referenced unit missing from store",
				"item_id", item.ID,
				"unit_id", unitID,
			)
		}
	}

	matchedSerials := make(map[string]bool, len(item.UnitDetails.Entries))
	var unmatched []transaction.UnitEntry

	for _, entry := range item.UnitDetails.Entries {
		unit, ok := bySerial[entry.SerialNumber]
		if !ok {
			unmatched = append(unmatched, entry)
			continue
		}
		matchedSerials[entry.SerialNumber] = true

		patch := patchFromEntry(entry, item.UnitCost)
		if err := c.units.Update(ctx, unit.ID, patch); err != nil {
			c.log.Errorw("failed to update unit pricing",
				"item_id", item.ID,
				"unit_id", unit.ID,
				"serial", entry.SerialNumber,
				"error", err,
			)
			continue
		}
		c.emitUnitStatusChanged(ctx, unit.ID, inventory.StatusAvailable, entry.SerialNumber)
	}

	// Entries whose serial matched nothing cover the missing ids (or brand
	// new stock); create them. The creation path dedups by serial, so a
	// re-delivered sync cannot double-create.
	if missing > 0 && len(unmatched) > 0 {
		c.createUnitsFromEntries(ctx, item, unmatched)
	}
}

// createUnitsFromEntries creates units for entries whose serial does not
// exist yet for the product. Existing serials are skipped, not overwritten,
// so re-delivered syncs do not double-count.
func (c *Coordinator) createUnitsFromEntries(ctx context.Context, item *transaction.TransactionItem, entries []transaction.UnitEntry) {
	serials := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.SerialNumber == "" {
			c.log.Warnw("entry without serial number, skipping creation", "item_id", item.ID)
			continue
		}
		serials = append(serials, e.SerialNumber)
	}
	if len(serials) == 0 {
		return
	}

	existing, err := c.units.GetByProductAndSerials(ctx, item.ProductID, serials)
	if err != nil {
		c.log.Errorw("failed to check existing serials", "item_id", item.ID, "error", err)
		return
	}
	taken := make(map[string]bool, len(existing))
	for _, u := range existing {
		taken[u.SerialNumber] = true
	}

	var supplierID *id.ID
	purchaseDate := item.CreatedAt
	if tx, err := c.transactions.GetByID(ctx, item.TransactionID); err == nil {
		sid := tx.SupplierID
		supplierID = &sid
		purchaseDate = tx.Date
	} else {
		c.log.Warnw("could not resolve parent transaction for unit creation",
			"item_id", item.ID,
			"transaction_id", item.TransactionID,
			"error", err,
		)
	}

	created := make([]inventory.ProductUnit, 0, len(entries))
	for _, entry := range entries {
		if entry.SerialNumber == "" || taken[entry.SerialNumber] {
			continue
		}

		unit := inventory.NewProductUnit(item.ProductID, entry.SerialNumber)
		unit.Status = inventory.StatusAvailable
		unit.SupplierID = supplierID
		unit.PurchasePrice = decimal.NewNullDecimal(entryPurchasePrice(entry, item.UnitCost))
		unit.PurchaseDate = &purchaseDate
		unit.Color = entry.Color
		unit.Storage = entry.Storage
		unit.RAM = entry.RAM
		unit.BatteryLevel = entry.BatteryLevel
		unit.Condition = entry.Condition
		if entry.Price != nil {
			unit.Price = decimal.NewNullDecimal(*entry.Price)
		}
		if entry.MinPrice != nil {
			unit.MinPrice = decimal.NewNullDecimal(*entry.MinPrice)
		}
		if entry.MaxPrice != nil {
			unit.MaxPrice = decimal.NewNullDecimal(*entry.MaxPrice)
		}

		created = append(created, unit)
	}

	if len(created) == 0 {
		return
	}

	if err := c.units.Insert(ctx, created); err != nil {
		c.log.Errorw("failed to insert units", "item_id", item.ID, "error", err)
		return
	}

	for _, u := range created {
		c.emitUnitStatusChanged(ctx, u.ID, u.Status, u.SerialNumber)
	}

	c.log.Infow("units created from entries",
		"item_id", item.ID,
		"product_id", item.ProductID,
		"count", len(created),
	)
}

// applyUniformCost handles the legacy shape: unit ids without detail
// entries. The shared unit cost becomes every unit's purchase price.
func (c *Coordinator) applyUniformCost(ctx context.Context, item *transaction.TransactionItem) {
	existing, err := c.units.GetByIDs(ctx, item.ProductUnitIDs)
	if err != nil {
		c.log.Errorw("failed to fetch referenced units", "item_id", item.ID, "error", err)
		return
	}

	status := inventory.StatusAvailable
	cost := item.UnitCost

	for _, unit := range existing {
		patch := inventory.Patch{
			Status:        &status,
			PurchasePrice: &cost,
		}
		if err := c.units.Update(ctx, unit.ID, patch); err != nil {
			c.log.Errorw("failed to apply uniform cost",
				"item_id", item.ID,
				"unit_id", unit.ID,
				"error", err,
			)
			continue
		}
		c.emitUnitStatusChanged(ctx, unit.ID, status, unit.SerialNumber)
	}
}

// patchFromEntry builds the unit patch for a serial-matched entry.
// Purchase price falls back to the item's shared unit cost when the entry
// carries no price of its own.
func patchFromEntry(entry transaction.UnitEntry, sharedCost decimal.Decimal) inventory.Patch {
	status := inventory.StatusAvailable
	purchase := entryPurchasePrice(entry, sharedCost)

	patch := inventory.Patch{
		Status:        &status,
		PurchasePrice: &purchase,
		Price:         entry.Price,
		MinPrice:      entry.MinPrice,
		MaxPrice:      entry.MaxPrice,
	}
	if entry.Color != "" {
		patch.Color = &entry.Color
	}
	if entry.Storage != "" {
		patch.Storage = &entry.Storage
	}
	if entry.RAM != "" {
		patch.RAM = &entry.RAM
	}
	if entry.BatteryLevel != nil {
		patch.BatteryLevel = entry.BatteryLevel
	}
	if entry.Condition != "" {
		patch.Condition = &entry.Condition
	}
	return patch
}

func entryPurchasePrice(entry transaction.UnitEntry, sharedCost decimal.Decimal) decimal.Decimal {
	if entry.Price != nil {
		return *entry.Price
	}
	return sharedCost
}

func (c *Coordinator) emitStockChanged(ctx context.Context, productID id.ID, delta product.StockDelta) {
	c.bus.Emit(ctx, bus.Event{
		Type:      bus.EventStockChanged,
		Module:    "inventory",
		Operation: "sync",
		EntityID:  productID.String(),
		Data: map[string]any{
			"before": delta.Before,
			"after":  delta.After,
		},
		OccurredAt: time.Now().UTC(),
	})
}

func (c *Coordinator) emitUnitStatusChanged(ctx context.Context, unitID id.ID, status inventory.Status, detail string) {
	c.bus.Emit(ctx, bus.Event{
		Type:      bus.EventUnitStatusChanged,
		Module:    "inventory",
		Operation: "sync",
		EntityID:  unitID.String(),
		Data: map[string]any{
			"status": string(status),
			"detail": detail,
		},
		OccurredAt: time.Now().UTC(),
	})
}
