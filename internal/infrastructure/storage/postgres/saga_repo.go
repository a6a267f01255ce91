package postgres

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"

	"stocksync/internal/core/apperror"
	"stocksync/internal/core/id"
	"stocksync/internal/domain/saga"
)

var _ saga.Store = (*SagaRepo)(nil)

// SagaRepo persists saga lifecycle records in sys_sagas.
type SagaRepo struct {
	txm *TxManager
	qb  sq.StatementBuilderType
}

// NewSagaRepo creates the repository.
func NewSagaRepo(txm *TxManager) *SagaRepo {
	return &SagaRepo{
		txm: txm,
		qb:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Create records a started saga.
func (r *SagaRepo) Create(ctx context.Context, s *saga.Saga) error {
	query, args, err := r.qb.
		Insert("sys_sagas").
		Columns("id", "type", "metadata", "state", "reason", "started_at").
		Values(s.ID, s.Type, s.Metadata, s.State, s.Reason, s.StartedAt).
		ToSql()
	if err != nil {
		return apperror.NewStore("build saga insert", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, query, args...); err != nil {
		return apperror.NewStore("insert saga", err)
	}
	return nil
}

// Finish records the terminal state.
func (r *SagaRepo) Finish(ctx context.Context, sagaID id.ID, state saga.State, reason string) error {
	query, args, err := r.qb.
		Update("sys_sagas").
		Set("state", state).
		Set("reason", reason).
		Set("finished_at", time.Now().UTC()).
		Where(sq.Eq{"id": sagaID}).
		ToSql()
	if err != nil {
		return apperror.NewStore("build saga update", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, query, args...)
	if err != nil {
		return apperror.NewStore("finish saga", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("saga", sagaID.String())
	}
	return nil
}
