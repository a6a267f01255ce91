package saga

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stocksync/internal/core/id"
	"stocksync/pkg/logger"
)

func testLogger() *logger.Logger {
	return &logger.Logger{SugaredLogger: zap.NewNop().Sugar()}
}

type fakeStore struct {
	created  []*Saga
	finished []finishCall
}

type finishCall struct {
	sagaID id.ID
	state  State
	reason string
}

func (f *fakeStore) Create(ctx context.Context, s *Saga) error {
	f.created = append(f.created, s)
	return nil
}

func (f *fakeStore) Finish(ctx context.Context, sagaID id.ID, state State, reason string) error {
	f.finished = append(f.finished, finishCall{sagaID: sagaID, state: state, reason: reason})
	return nil
}

func TestBeginCommit(t *testing.T) {
	store := &fakeStore{}
	c := NewCoordinator(store, testLogger())

	sagaID, err := c.Begin(context.Background(), "recovery", map[string]any{"units": 3})
	require.NoError(t, err)
	require.False(t, id.IsNil(sagaID))

	require.Len(t, store.created, 1)
	assert.Equal(t, StateStarted, store.created[0].State)

	require.NoError(t, c.Commit(context.Background(), sagaID))
	require.Len(t, store.finished, 1)
	assert.Equal(t, StateCommitted, store.finished[0].state)
}

func TestAbortRecordsReason(t *testing.T) {
	store := &fakeStore{}
	c := NewCoordinator(store, testLogger())

	sagaID, err := c.Begin(context.Background(), "recovery", nil)
	require.NoError(t, err)

	require.NoError(t, c.Abort(context.Background(), sagaID, "supplier inactive"))
	require.Len(t, store.finished, 1)
	assert.Equal(t, StateAborted, store.finished[0].state)
	assert.Equal(t, "supplier inactive", store.finished[0].reason)
}

func TestDoubleTerminalIsNoOp(t *testing.T) {
	store := &fakeStore{}
	c := NewCoordinator(store, testLogger())

	sagaID, err := c.Begin(context.Background(), "recovery", nil)
	require.NoError(t, err)

	require.NoError(t, c.Commit(context.Background(), sagaID))
	require.NoError(t, c.Commit(context.Background(), sagaID))
	require.NoError(t, c.Abort(context.Background(), sagaID, "late abort"))

	assert.Len(t, store.finished, 1, "only the first terminal call may reach the store")
}

func TestTerminalOnUnknownSagaIsNoOp(t *testing.T) {
	store := &fakeStore{}
	c := NewCoordinator(store, testLogger())

	require.NoError(t, c.Commit(context.Background(), id.New()))
	require.NoError(t, c.Abort(context.Background(), id.New(), "whatever"))
	assert.Empty(t, store.finished)
}
