package postgres

import (
	"context"

	"stocksync/internal/core/apperror"
	"stocksync/internal/core/id"
	"stocksync/internal/domain/sync"
)

var _ sync.Ledger = (*AppliedEventRepo)(nil)

// AppliedEventRepo implements the idempotency ledger on sys_applied_events.
// A primary key on (item_id, version, op) plus ON CONFLICT DO NOTHING makes
// first-write-wins visible through the affected-row count.
type AppliedEventRepo struct {
	txm *TxManager
}

// NewAppliedEventRepo creates the ledger repository.
func NewAppliedEventRepo(txm *TxManager) *AppliedEventRepo {
	return &AppliedEventRepo{txm: txm}
}

// MarkApplied records the (itemID, version, op) triple. Returns false when
// the triple already exists, i.e. the event is a re-delivery.
func (r *AppliedEventRepo) MarkApplied(ctx context.Context, itemID id.ID, version int64, op string) (bool, error) {
	const query = `
		INSERT INTO sys_applied_events (item_id, version, op, applied_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (item_id, version, op) DO NOTHING`

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, query, itemID, version, op)
	if err != nil {
		return false, apperror.NewStore("mark event applied", err)
	}
	return tag.RowsAffected() == 1, nil
}
