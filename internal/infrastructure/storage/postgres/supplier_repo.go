package postgres

import (
	"context"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"stocksync/internal/core/apperror"
	"stocksync/internal/core/id"
	"stocksync/internal/domain/supplier"
)

var _ supplier.Repository = (*SupplierRepo)(nil)

// SupplierRepo implements supplier.Repository on PostgreSQL.
type SupplierRepo struct {
	txm *TxManager
	qb  sq.StatementBuilderType
}

// NewSupplierRepo creates the repository.
func NewSupplierRepo(txm *TxManager) *SupplierRepo {
	return &SupplierRepo{
		txm: txm,
		qb:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// GetByID loads a supplier by id.
func (r *SupplierRepo) GetByID(ctx context.Context, supplierID id.ID) (*supplier.Supplier, error) {
	query, args, err := r.qb.
		Select("id", "version", "created_at", "updated_at", "name", "active").
		From("suppliers").
		Where(sq.Eq{"id": supplierID}).
		ToSql()
	if err != nil {
		return nil, apperror.NewStore("build supplier query", err)
	}

	var s supplier.Supplier
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &s, query, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NewNotFound("supplier", supplierID.String())
		}
		return nil, apperror.NewStore("get supplier", err)
	}
	return &s, nil
}
