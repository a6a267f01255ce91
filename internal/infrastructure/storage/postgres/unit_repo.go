package postgres

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stocksync/internal/core/apperror"
	"stocksync/internal/core/id"
	"stocksync/internal/domain/inventory"
)

var _ inventory.Repository = (*UnitRepo)(nil)

// unitColumns is the full column list of product_units.
var unitColumns = []string{
	"id", "version", "created_at", "updated_at",
	"product_id", "serial_number", "supplier_id", "status",
	"price", "min_price", "max_price",
	"purchase_price", "purchase_date",
	"color", "storage", "ram", "battery_level", "condition",
}

// UnitRepo implements inventory.Repository on PostgreSQL.
type UnitRepo struct {
	txm *TxManager
	qb  sq.StatementBuilderType
}

// NewUnitRepo creates the repository.
func NewUnitRepo(txm *TxManager) *UnitRepo {
	return &UnitRepo{
		txm: txm,
		qb:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// GetByIDs loads the units that exist among ids.
func (r *UnitRepo) GetByIDs(ctx context.Context, ids []id.ID) ([]inventory.ProductUnit, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := r.qb.
		Select(unitColumns...).
		From("product_units").
		Where(sq.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return nil, apperror.NewStore("build units query", err)
	}

	var units []inventory.ProductUnit
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &units, query, args...); err != nil {
		return nil, apperror.NewStore("get units by ids", err)
	}
	return units, nil
}

// GetByProductAndSerials loads existing units of a product matching any of
// the given serial numbers.
func (r *UnitRepo) GetByProductAndSerials(ctx context.Context, productID id.ID, serials []string) ([]inventory.ProductUnit, error) {
	if len(serials) == 0 {
		return nil, nil
	}

	query, args, err := r.qb.
		Select(unitColumns...).
		From("product_units").
		Where(sq.Eq{"product_id": productID}).
		Where(sq.Eq{"serial_number": serials}).
		ToSql()
	if err != nil {
		return nil, apperror.NewStore("build units-by-serial query", err)
	}

	var units []inventory.ProductUnit
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &units, query, args...); err != nil {
		return nil, apperror.NewStore("get units by serials", err)
	}
	return units, nil
}

// Insert batch-creates units.
func (r *UnitRepo) Insert(ctx context.Context, units []inventory.ProductUnit) error {
	if len(units) == 0 {
		return nil
	}

	builder := r.qb.
		Insert("product_units").
		Columns(unitColumns...)

	for _, u := range units {
		builder = builder.Values(
			u.ID, u.Version, u.CreatedAt, u.UpdatedAt,
			u.ProductID, u.SerialNumber, u.SupplierID, u.Status,
			u.Price, u.MinPrice, u.MaxPrice,
			u.PurchasePrice, u.PurchaseDate,
			u.Color, u.Storage, u.RAM, u.BatteryLevel, u.Condition,
		)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return apperror.NewStore("build units insert", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return apperror.NewDuplicate("product unit", "serial_number", "")
		}
		if isForeignKeyViolation(err) {
			return apperror.NewValidation("unit references a missing product or supplier").
				WithCause(err)
		}
		return apperror.NewStore("insert units", err)
	}
	return nil
}

// Update applies a patch to one unit. An empty patch is a no-op.
func (r *UnitRepo) Update(ctx context.Context, unitID id.ID, patch inventory.Patch) error {
	if patch.IsEmpty() {
		return nil
	}

	builder := r.qb.
		Update("product_units").
		Set("version", sq.Expr("version + 1")).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": unitID})

	if patch.Status != nil {
		builder = builder.Set("status", *patch.Status)
	}
	if patch.Price != nil {
		builder = builder.Set("price", *patch.Price)
	}
	if patch.MinPrice != nil {
		builder = builder.Set("min_price", *patch.MinPrice)
	}
	if patch.MaxPrice != nil {
		builder = builder.Set("max_price", *patch.MaxPrice)
	}
	if patch.PurchasePrice != nil {
		builder = builder.Set("purchase_price", *patch.PurchasePrice)
	}
	if patch.PurchaseDate != nil {
		builder = builder.Set("purchase_date", *patch.PurchaseDate)
	}
	if patch.SupplierID != nil {
		builder = builder.Set("supplier_id", *patch.SupplierID)
	}
	if patch.Color != nil {
		builder = builder.Set("color", *patch.Color)
	}
	if patch.Storage != nil {
		builder = builder.Set("storage", *patch.Storage)
	}
	if patch.RAM != nil {
		builder = builder.Set("ram", *patch.RAM)
	}
	if patch.BatteryLevel != nil {
		builder = builder.Set("battery_level", *patch.BatteryLevel)
	}
	if patch.Condition != nil {
		builder = builder.Set("condition", *patch.Condition)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return apperror.NewStore("build unit update", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, query, args...)
	if err != nil {
		return apperror.NewStore("update unit", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("product unit", unitID.String())
	}
	return nil
}

// UpdateStatus sets the status on every listed unit.
func (r *UnitRepo) UpdateStatus(ctx context.Context, ids []id.ID, status inventory.Status) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := r.qb.
		Update("product_units").
		Set("status", status).
		Set("version", sq.Expr("version + 1")).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return apperror.NewStore("build status update", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, query, args...); err != nil {
		return apperror.NewStore("update unit status", err)
	}
	return nil
}
