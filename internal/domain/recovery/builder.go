// Package recovery builds compensating transactions that re-link orphaned
// units to a supplier.
package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"stocksync/internal/core/apperror"
	"stocksync/internal/core/id"
	"stocksync/internal/core/tx"
	"stocksync/internal/domain/inventory"
	"stocksync/internal/domain/saga"
	"stocksync/internal/domain/supplier"
	"stocksync/internal/domain/transaction"
	"stocksync/pkg/logger"
	"stocksync/pkg/numerator"
)

// SagaType is the saga type tag recorded for recovery operations.
const SagaType = "recovery"

// NumberGenerator produces the unique transaction number.
type NumberGenerator interface {
	GetNextNumber(ctx context.Context, cfg numerator.Config, period time.Time) (string, error)
}

// Request is an operator's recovery order.
type Request struct {
	SupplierID     id.ID           `json:"supplierId" validate:"required"`
	UnitIDs        []id.ID         `json:"unitIds" validate:"required,min=1"`
	EstimatedPrice decimal.Decimal `json:"estimatedPrice"`
	Notes          string          `json:"notes"`
}

// Result is the structured outcome returned to the caller. Failures are
// carried here, not raised, so an operator surface can display them.
type Result struct {
	Success       bool     `json:"success"`
	TransactionID id.ID    `json:"transactionId,omitempty"`
	Number        string   `json:"transactionNumber,omitempty"`
	Errors        []string `json:"errors,omitempty"`
}

// Builder constructs recovery transactions as a saga.
type Builder struct {
	suppliers    supplier.Repository
	units        inventory.Repository
	transactions transaction.Repository
	coordinator  *saga.Coordinator
	numbers      NumberGenerator
	txManager    tx.Manager
	validate     *validator.Validate
	log          *logger.Logger
}

// NewBuilder creates a recovery transaction builder.
func NewBuilder(
	suppliers supplier.Repository,
	units inventory.Repository,
	transactions transaction.Repository,
	coordinator *saga.Coordinator,
	numbers NumberGenerator,
	txManager tx.Manager,
	log *logger.Logger,
) *Builder {
	return &Builder{
		suppliers:    suppliers,
		units:        units,
		transactions: transactions,
		coordinator:  coordinator,
		numbers:      numbers,
		txManager:    txManager,
		validate:     validator.New(),
		log:          log.WithComponent("recovery"),
	}
}

// CreateRecoveryTransaction re-links the requested units to the supplier.
//
// Validation runs before any write: an unknown unit id or an inactive
// supplier aborts the saga with no partial supplier assignment. The writes
// themselves (transaction row, unit updates, audit items) run in a single
// store transaction, so a failure rolls everything back; the saga record
// stays as the audit trail either way.
func (b *Builder) CreateRecoveryTransaction(ctx context.Context, req Request) Result {
	if err := b.validate.Struct(req); err != nil {
		return failure(fmt.Sprintf("invalid request: %v", err))
	}
	if req.EstimatedPrice.IsNegative() {
		return failure("estimated price must not be negative")
	}

	sagaID, err := b.coordinator.Begin(ctx, SagaType, map[string]any{
		"type":       SagaType,
		"supplierId": req.SupplierID.String(),
		"unitCount":  len(req.UnitIDs),
	})
	if err != nil {
		return failure(fmt.Sprintf("begin saga: %v", err))
	}

	units, verr := b.validateRequest(ctx, req)
	if verr != nil {
		b.abort(ctx, sagaID, verr.Error())
		return failure(verr.Error())
	}

	totalAmount := req.EstimatedPrice.Mul(decimal.NewFromInt(int64(len(req.UnitIDs))))

	number, err := b.numbers.GetNextNumber(ctx, numerator.DefaultConfig("REC"), time.Now())
	if err != nil {
		b.abort(ctx, sagaID, fmt.Sprintf("generate transaction number: %v", err))
		return failure(fmt.Sprintf("generate transaction number: %v", err))
	}

	recoveryTx := transaction.NewSupplierTransaction(req.SupplierID, transaction.TypeRecovery)
	recoveryTx.Status = transaction.StatusCompleted
	recoveryTx.Number = number
	recoveryTx.TotalAmount = totalAmount
	recoveryTx.Notes = req.Notes

	err = b.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := b.transactions.Insert(ctx, recoveryTx); err != nil {
			return fmt.Errorf("insert recovery transaction: %w", err)
		}

		patch := inventory.Patch{SupplierID: &req.SupplierID}
		if req.EstimatedPrice.IsPositive() {
			price := req.EstimatedPrice
			patch.PurchasePrice = &price
		}
		for _, unitID := range req.UnitIDs {
			if err := b.units.Update(ctx, unitID, patch); err != nil {
				return fmt.Errorf("relink unit %s: %w", unitID, err)
			}
		}

		items := b.buildAuditItems(recoveryTx, req, units)
		if err := b.transactions.InsertItems(ctx, items); err != nil {
			return fmt.Errorf("insert audit items: %w", err)
		}

		return nil
	})
	if err != nil {
		b.abort(ctx, sagaID, err.Error())
		return failure(err.Error())
	}

	if err := b.coordinator.Commit(ctx, sagaID); err != nil {
		// Writes are already durable; a failed commit record is an audit
		// gap, not a data problem.
		b.log.Errorw("failed to record saga commit", "saga_id", sagaID, "error", err)
	}

	b.log.Infow("recovery transaction created",
		"transaction_id", recoveryTx.ID,
		"number", number,
		"supplier_id", req.SupplierID,
		"units", len(req.UnitIDs),
	)

	return Result{
		Success:       true,
		TransactionID: recoveryTx.ID,
		Number:        number,
	}
}

// validateRequest checks the supplier and resolves every unit id.
func (b *Builder) validateRequest(ctx context.Context, req Request) ([]inventory.ProductUnit, error) {
	sup, err := b.suppliers.GetByID(ctx, req.SupplierID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("supplier", req.SupplierID.String())
		}
		return nil, fmt.Errorf("load supplier: %w", err)
	}
	if !sup.Active {
		return nil, apperror.NewInactiveSupplier(req.SupplierID.String())
	}

	units, err := b.units.GetByIDs(ctx, req.UnitIDs)
	if err != nil {
		return nil, fmt.Errorf("load units: %w", err)
	}
	if len(units) != len(req.UnitIDs) {
		found := make(map[id.ID]bool, len(units))
		for _, u := range units {
			found[u.ID] = true
		}
		for _, unitID := range req.UnitIDs {
			if !found[unitID] {
				return nil, apperror.NewNotFound("product unit", unitID.String())
			}
		}
	}

	return units, nil
}

// buildAuditItems groups the recovered units per product into one
// transaction item each, for audit traceability.
func (b *Builder) buildAuditItems(recoveryTx *transaction.SupplierTransaction, req Request, units []inventory.ProductUnit) []transaction.TransactionItem {
	byProduct := make(map[id.ID][]id.ID)
	order := make([]id.ID, 0)
	for _, u := range units {
		if _, seen := byProduct[u.ProductID]; !seen {
			order = append(order, u.ProductID)
		}
		byProduct[u.ProductID] = append(byProduct[u.ProductID], u.ID)
	}

	items := make([]transaction.TransactionItem, 0, len(order))
	for _, productID := range order {
		unitIDs := byProduct[productID]
		qty := int64(len(unitIDs))
		items = append(items, transaction.TransactionItem{
			ID:             id.New(),
			TransactionID:  recoveryTx.ID,
			Version:        1,
			ProductID:      productID,
			Quantity:       qty,
			UnitCost:       req.EstimatedPrice,
			TotalCost:      req.EstimatedPrice.Mul(decimal.NewFromInt(qty)),
			ProductUnitIDs: unitIDs,
			CreatedAt:      time.Now().UTC(),
		})
	}
	return items
}

func (b *Builder) abort(ctx context.Context, sagaID id.ID, reason string) {
	if err := b.coordinator.Abort(ctx, sagaID, reason); err != nil {
		b.log.Errorw("failed to record saga abort", "saga_id", sagaID, "error", err)
	}
}

func failure(errs ...string) Result {
	return Result{Success: false, Errors: errs}
}
