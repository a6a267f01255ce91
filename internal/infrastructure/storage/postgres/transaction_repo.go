package postgres

import (
	"context"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"stocksync/internal/core/apperror"
	"stocksync/internal/core/id"
	"stocksync/internal/domain/transaction"
)

var _ transaction.Repository = (*TransactionRepo)(nil)

// TransactionRepo implements transaction.Repository on PostgreSQL.
type TransactionRepo struct {
	txm *TxManager
	qb  sq.StatementBuilderType
}

// NewTransactionRepo creates the repository.
func NewTransactionRepo(txm *TxManager) *TransactionRepo {
	return &TransactionRepo{
		txm: txm,
		qb:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// GetByID loads a transaction with its items.
func (r *TransactionRepo) GetByID(ctx context.Context, transactionID id.ID) (*transaction.SupplierTransaction, error) {
	query, args, err := r.qb.
		Select("id", "version", "created_at", "updated_at",
			"supplier_id", "type", "status", "transaction_number",
			"total_amount", "transaction_date", "notes").
		From("supplier_transactions").
		Where(sq.Eq{"id": transactionID}).
		ToSql()
	if err != nil {
		return nil, apperror.NewStore("build transaction query", err)
	}

	var tx transaction.SupplierTransaction
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &tx, query, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NewNotFound("supplier transaction", transactionID.String())
		}
		return nil, apperror.NewStore("get transaction", err)
	}

	items, err := r.getItems(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	tx.Items = items

	return &tx, nil
}

func (r *TransactionRepo) getItems(ctx context.Context, transactionID id.ID) ([]transaction.TransactionItem, error) {
	query, args, err := r.qb.
		Select("id", "transaction_id", "version", "product_id",
			"quantity", "unit_cost", "total_cost",
			"product_unit_ids", "unit_details", "created_at").
		From("transaction_items").
		Where(sq.Eq{"transaction_id": transactionID}).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, apperror.NewStore("build items query", err)
	}

	var items []transaction.TransactionItem
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &items, query, args...); err != nil {
		return nil, apperror.NewStore("get transaction items", err)
	}
	return items, nil
}

// Insert creates a transaction document (without items).
func (r *TransactionRepo) Insert(ctx context.Context, tx *transaction.SupplierTransaction) error {
	query, args, err := r.qb.
		Insert("supplier_transactions").
		Columns("id", "version", "created_at", "updated_at",
			"supplier_id", "type", "status", "transaction_number",
			"total_amount", "transaction_date", "notes").
		Values(tx.ID, tx.Version, tx.CreatedAt, tx.UpdatedAt,
			tx.SupplierID, tx.Type, tx.Status, tx.Number,
			tx.TotalAmount, tx.Date, tx.Notes).
		ToSql()
	if err != nil {
		return apperror.NewStore("build transaction insert", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return apperror.NewDuplicate("supplier transaction", "transaction_number", tx.Number)
		}
		return apperror.NewStore("insert transaction", err)
	}
	return nil
}

// InsertItems batch-creates items.
func (r *TransactionRepo) InsertItems(ctx context.Context, items []transaction.TransactionItem) error {
	if len(items) == 0 {
		return nil
	}

	builder := r.qb.
		Insert("transaction_items").
		Columns("id", "transaction_id", "version", "product_id",
			"quantity", "unit_cost", "total_cost",
			"product_unit_ids", "unit_details", "created_at")

	for _, item := range items {
		builder = builder.Values(
			item.ID, item.TransactionID, item.Version, item.ProductID,
			item.Quantity, item.UnitCost, item.TotalCost,
			item.ProductUnitIDs, item.UnitDetails, item.CreatedAt,
		)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return apperror.NewStore("build items insert", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, query, args...); err != nil {
		return apperror.NewStore("insert transaction items", err)
	}
	return nil
}

// AnyItemReferencesUnit reports whether some item's product_unit_ids array
// contains the unit id.
func (r *TransactionRepo) AnyItemReferencesUnit(ctx context.Context, unitID id.ID) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM transaction_items
			WHERE product_unit_ids @> ARRAY[$1]::uuid[]
		)`

	var exists bool
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, query, unitID).Scan(&exists); err != nil {
		return false, apperror.NewStore("unit containment check", err)
	}
	return exists, nil
}
