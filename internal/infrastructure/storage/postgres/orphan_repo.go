package postgres

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stocksync/internal/core/apperror"
	"stocksync/internal/domain/orphan"
)

var _ orphan.Repository = (*OrphanRepo)(nil)

// OrphanRepo implements the orphan scan queries.
type OrphanRepo struct {
	txm *TxManager
	qb  sq.StatementBuilderType
}

// NewOrphanRepo creates the repository.
func NewOrphanRepo(txm *TxManager) *OrphanRepo {
	return &OrphanRepo{
		txm: txm,
		qb:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// scanBuilder is the shared join of units with product and supplier context.
func (r *OrphanRepo) scanBuilder(since time.Time) sq.SelectBuilder {
	return r.qb.
		Select(
			"u.id AS unit_id",
			"u.product_id",
			"p.brand",
			"p.model",
			"u.serial_number",
			"u.price",
			"u.purchase_price",
			"u.supplier_id",
			"COALESCE(s.name, '') AS supplier_name",
		).
		From("product_units u").
		Join("products p ON p.id = u.product_id").
		LeftJoin("suppliers s ON s.id = u.supplier_id").
		Where(sq.GtOrEq{"u.created_at": since}).
		OrderBy("u.created_at")
}

// UnitsWithoutSupplier returns units with no supplier created since the cutoff.
func (r *OrphanRepo) UnitsWithoutSupplier(ctx context.Context, since time.Time) ([]orphan.Unit, error) {
	query, args, err := r.scanBuilder(since).
		Where("u.supplier_id IS NULL").
		ToSql()
	if err != nil {
		return nil, apperror.NewStore("build orphan scan", err)
	}

	var units []orphan.Unit
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &units, query, args...); err != nil {
		return nil, apperror.NewStore("scan units without supplier", err)
	}
	return units, nil
}

// UnitsWithSupplier returns supplier-linked units created since the cutoff.
func (r *OrphanRepo) UnitsWithSupplier(ctx context.Context, since time.Time) ([]orphan.Unit, error) {
	query, args, err := r.scanBuilder(since).
		Where("u.supplier_id IS NOT NULL").
		ToSql()
	if err != nil {
		return nil, apperror.NewStore("build orphan scan", err)
	}

	var units []orphan.Unit
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &units, query, args...); err != nil {
		return nil, apperror.NewStore("scan supplier-linked units", err)
	}
	return units, nil
}
