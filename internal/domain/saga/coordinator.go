// Package saga provides begin/commit/abort bookkeeping for multi-step
// operations. A saga records lifecycle for observability; it does not roll
// back already-applied writes by itself.
package saga

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stocksync/internal/core/id"
	"stocksync/pkg/logger"
)

// State is the lifecycle state of a saga.
type State string

const (
	StateStarted   State = "started"
	StateCommitted State = "committed"
	StateAborted   State = "aborted"
)

// Saga is the coordination record of one multi-step operation. It exists
// for the duration of the operation and as an audit row afterward.
type Saga struct {
	ID       id.ID          `db:"id" json:"id"`
	Type     string         `db:"type" json:"type"`
	Metadata map[string]any `db:"metadata" json:"metadata,omitempty"`
	State    State          `db:"state" json:"state"`
	Reason   string         `db:"reason" json:"reason,omitempty"`

	StartedAt  time.Time  `db:"started_at" json:"startedAt"`
	FinishedAt *time.Time `db:"finished_at" json:"finishedAt,omitempty"`
}

// Store persists saga lifecycle records for audit.
type Store interface {
	// Create records a started saga.
	Create(ctx context.Context, s *Saga) error

	// Finish records the terminal state.
	Finish(ctx context.Context, sagaID id.ID, state State, reason string) error
}

// Coordinator hands out saga ids and tracks their terminal state.
// State per saga is private to the running operation, so the in-memory map
// needs only a mutex; the Store rows are the audit trail.
type Coordinator struct {
	store Store
	log   *logger.Logger

	mu     sync.Mutex
	active map[id.ID]string // saga id -> type
}

// NewCoordinator creates a coordinator backed by the given store.
func NewCoordinator(store Store, log *logger.Logger) *Coordinator {
	return &Coordinator{
		store:  store,
		log:    log.WithComponent("saga"),
		active: make(map[id.ID]string),
	}
}

// Begin starts a saga and returns its id.
func (c *Coordinator) Begin(ctx context.Context, sagaType string, metadata map[string]any) (id.ID, error) {
	s := &Saga{
		ID:        id.New(),
		Type:      sagaType,
		Metadata:  metadata,
		State:     StateStarted,
		StartedAt: time.Now().UTC(),
	}

	if err := c.store.Create(ctx, s); err != nil {
		return id.Nil(), fmt.Errorf("record saga start: %w", err)
	}

	c.mu.Lock()
	c.active[s.ID] = sagaType
	c.mu.Unlock()

	c.log.Infow("saga started", "saga_id", s.ID, "type", sagaType)
	return s.ID, nil
}

// Commit marks the saga committed. Calling it (or Abort) on an already
// finished saga is a no-op with a warning: callers may defensively
// double-call and that must not become an error.
func (c *Coordinator) Commit(ctx context.Context, sagaID id.ID) error {
	sagaType, ok := c.takeActive(sagaID)
	if !ok {
		c.log.Warnw("commit on finished or unknown saga, ignoring", "saga_id", sagaID)
		return nil
	}

	if err := c.store.Finish(ctx, sagaID, StateCommitted, ""); err != nil {
		return fmt.Errorf("record saga commit: %w", err)
	}

	c.log.Infow("saga committed", "saga_id", sagaID, "type", sagaType)
	return nil
}

// Abort marks the saga aborted with a reason. Abort records the outcome for
// audit; it does not undo writes that already happened.
func (c *Coordinator) Abort(ctx context.Context, sagaID id.ID, reason string) error {
	sagaType, ok := c.takeActive(sagaID)
	if !ok {
		c.log.Warnw("abort on finished or unknown saga, ignoring", "saga_id", sagaID)
		return nil
	}

	if err := c.store.Finish(ctx, sagaID, StateAborted, reason); err != nil {
		return fmt.Errorf("record saga abort: %w", err)
	}

	c.log.Warnw("saga aborted", "saga_id", sagaID, "type", sagaType, "reason", reason)
	return nil
}

// takeActive removes and returns the saga's type if it is still running.
func (c *Coordinator) takeActive(sagaID id.ID) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sagaType, ok := c.active[sagaID]
	if ok {
		delete(c.active, sagaID)
	}
	return sagaType, ok
}
