package orphan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stocksync/internal/core/id"
	"stocksync/internal/domain/transaction"
	"stocksync/pkg/logger"
)

func testLogger() *logger.Logger {
	return &logger.Logger{SugaredLogger: zap.NewNop().Sugar()}
}

type fakeScanRepo struct {
	withoutSupplier []Unit
	withSupplier    []Unit
	gotSince        time.Time
}

func (f *fakeScanRepo) UnitsWithoutSupplier(ctx context.Context, since time.Time) ([]Unit, error) {
	f.gotSince = since
	return f.withoutSupplier, nil
}

func (f *fakeScanRepo) UnitsWithSupplier(ctx context.Context, since time.Time) ([]Unit, error) {
	return f.withSupplier, nil
}

type fakeTxRepo struct {
	covered map[id.ID]bool
}

func (f *fakeTxRepo) GetByID(ctx context.Context, transactionID id.ID) (*transaction.SupplierTransaction, error) {
	return nil, nil
}

func (f *fakeTxRepo) Insert(ctx context.Context, tx *transaction.SupplierTransaction) error {
	return nil
}

func (f *fakeTxRepo) InsertItems(ctx context.Context, items []transaction.TransactionItem) error {
	return nil
}

func (f *fakeTxRepo) AnyItemReferencesUnit(ctx context.Context, unitID id.ID) (bool, error) {
	return f.covered[unitID], nil
}

func TestFindOrphans_ClassifiesDisjointly(t *testing.T) {
	bare := Unit{UnitID: id.New(), SerialNumber: "SN-1"}

	supplierID := id.New()
	covered := Unit{UnitID: id.New(), SerialNumber: "SN-2", SupplierID: &supplierID}
	uncovered := Unit{UnitID: id.New(), SerialNumber: "SN-3", SupplierID: &supplierID}

	repo := &fakeScanRepo{
		withoutSupplier: []Unit{bare},
		withSupplier:    []Unit{covered, uncovered},
	}
	txs := &fakeTxRepo{covered: map[id.ID]bool{covered.UnitID: true}}

	detector := NewDetector(repo, txs, testLogger())
	report, err := detector.FindOrphans(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, report.NoSupplier, 1)
	assert.Equal(t, bare.UnitID, report.NoSupplier[0].UnitID)
	assert.Equal(t, ClassNoSupplier, report.NoSupplier[0].Class)

	require.Len(t, report.NoTransaction, 1)
	assert.Equal(t, uncovered.UnitID, report.NoTransaction[0].UnitID)
	assert.Equal(t, ClassNoTransaction, report.NoTransaction[0].Class)

	assert.Equal(t, 2, report.Total())
}

func TestFindOrphans_DefaultCutoffIsThirtyDays(t *testing.T) {
	repo := &fakeScanRepo{}
	detector := NewDetector(repo, &fakeTxRepo{}, testLogger())

	_, err := detector.FindOrphans(context.Background(), nil)
	require.NoError(t, err)

	expected := time.Now().UTC().Add(-DefaultCutoff)
	assert.WithinDuration(t, expected, repo.gotSince, 5*time.Second)
}

func TestFindOrphans_ExplicitCutoffWins(t *testing.T) {
	repo := &fakeScanRepo{}
	detector := NewDetector(repo, &fakeTxRepo{}, testLogger())

	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	report, err := detector.FindOrphans(context.Background(), &since)
	require.NoError(t, err)

	assert.Equal(t, since, repo.gotSince)
	assert.Equal(t, since, report.Cutoff)
}
