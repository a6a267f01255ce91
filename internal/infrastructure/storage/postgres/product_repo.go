package postgres

import (
	"context"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"stocksync/internal/core/apperror"
	"stocksync/internal/core/id"
	"stocksync/internal/domain/product"
)

var _ product.Repository = (*ProductRepo)(nil)

// ProductRepo implements product.Repository on PostgreSQL.
type ProductRepo struct {
	txm *TxManager
	qb  sq.StatementBuilderType
}

// NewProductRepo creates the repository.
func NewProductRepo(txm *TxManager) *ProductRepo {
	return &ProductRepo{
		txm: txm,
		qb:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// GetByID loads a product by id.
func (r *ProductRepo) GetByID(ctx context.Context, productID id.ID) (*product.Product, error) {
	query, args, err := r.qb.
		Select("id", "version", "created_at", "updated_at", "name", "brand", "model", "stock").
		From("products").
		Where(sq.Eq{"id": productID}).
		ToSql()
	if err != nil {
		return nil, apperror.NewStore("build product query", err)
	}

	var p product.Product
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &p, query, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NewNotFound("product", productID.String())
		}
		return nil, apperror.NewStore("get product", err)
	}
	return &p, nil
}

// AdjustStock applies delta to the aggregate counter in one server-side
// statement. The FOR UPDATE subquery pins the row and captures the prior
// value, GREATEST floors the result at zero.
func (r *ProductRepo) AdjustStock(ctx context.Context, productID id.ID, delta int64) (product.StockDelta, error) {
	const query = `
		UPDATE products p
		SET stock = GREATEST(p.stock + $2, 0),
		    version = p.version + 1,
		    updated_at = now()
		FROM (SELECT stock FROM products WHERE id = $1 FOR UPDATE) prior
		WHERE p.id = $1
		RETURNING prior.stock, p.stock`

	d := product.StockDelta{ProductID: productID}
	err := r.txm.GetQuerier(ctx).QueryRow(ctx, query, productID, delta).Scan(&d.Before, &d.After)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return d, apperror.NewNotFound("product", productID.String())
		}
		return d, apperror.NewStore("adjust stock", err)
	}
	return d, nil
}
