package recovery

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stocksync/internal/core/apperror"
	"stocksync/internal/core/entity"
	"stocksync/internal/core/id"
	"stocksync/internal/domain/inventory"
	"stocksync/internal/domain/saga"
	"stocksync/internal/domain/supplier"
	"stocksync/internal/domain/transaction"
	"stocksync/pkg/logger"
	"stocksync/pkg/numerator"
)

func testLogger() *logger.Logger {
	return &logger.Logger{SugaredLogger: zap.NewNop().Sugar()}
}

type fakeSuppliers struct {
	suppliers map[id.ID]*supplier.Supplier
}

func (f *fakeSuppliers) GetByID(ctx context.Context, supplierID id.ID) (*supplier.Supplier, error) {
	if s, ok := f.suppliers[supplierID]; ok {
		return s, nil
	}
	return nil, apperror.NewNotFound("supplier", supplierID.String())
}

type fakeUnits struct {
	units   map[id.ID]inventory.ProductUnit
	updates map[id.ID]inventory.Patch
}

func (f *fakeUnits) GetByIDs(ctx context.Context, ids []id.ID) ([]inventory.ProductUnit, error) {
	var out []inventory.ProductUnit
	for _, unitID := range ids {
		if u, ok := f.units[unitID]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeUnits) GetByProductAndSerials(ctx context.Context, productID id.ID, serials []string) ([]inventory.ProductUnit, error) {
	return nil, nil
}

func (f *fakeUnits) Insert(ctx context.Context, units []inventory.ProductUnit) error {
	return nil
}

func (f *fakeUnits) Update(ctx context.Context, unitID id.ID, patch inventory.Patch) error {
	f.updates[unitID] = patch
	return nil
}

func (f *fakeUnits) UpdateStatus(ctx context.Context, ids []id.ID, status inventory.Status) error {
	return nil
}

type fakeTxRepo struct {
	inserted *transaction.SupplierTransaction
	items    []transaction.TransactionItem
}

func (f *fakeTxRepo) GetByID(ctx context.Context, transactionID id.ID) (*transaction.SupplierTransaction, error) {
	return nil, apperror.NewNotFound("supplier transaction", transactionID.String())
}

func (f *fakeTxRepo) Insert(ctx context.Context, tx *transaction.SupplierTransaction) error {
	f.inserted = tx
	return nil
}

func (f *fakeTxRepo) InsertItems(ctx context.Context, items []transaction.TransactionItem) error {
	f.items = append(f.items, items...)
	return nil
}

func (f *fakeTxRepo) AnyItemReferencesUnit(ctx context.Context, unitID id.ID) (bool, error) {
	return false, nil
}

type fakeSagaStore struct {
	finished []saga.State
	reasons  []string
}

func (f *fakeSagaStore) Create(ctx context.Context, s *saga.Saga) error {
	return nil
}

func (f *fakeSagaStore) Finish(ctx context.Context, sagaID id.ID, state saga.State, reason string) error {
	f.finished = append(f.finished, state)
	f.reasons = append(f.reasons, reason)
	return nil
}

type fakeNumbers struct{ next string }

func (f *fakeNumbers) GetNextNumber(ctx context.Context, cfg numerator.Config, period time.Time) (string, error) {
	return f.next, nil
}

// passthroughTx runs fn directly; write isolation is the store's concern,
// the builder only has to keep every write inside one callback.
type passthroughTx struct{}

func (passthroughTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (passthroughTx) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type builderFixture struct {
	builder   *Builder
	suppliers *fakeSuppliers
	units     *fakeUnits
	txRepo    *fakeTxRepo
	sagas     *fakeSagaStore
}

func newBuilderFixture(t *testing.T) *builderFixture {
	t.Helper()
	log := testLogger()

	suppliers := &fakeSuppliers{suppliers: make(map[id.ID]*supplier.Supplier)}
	units := &fakeUnits{
		units:   make(map[id.ID]inventory.ProductUnit),
		updates: make(map[id.ID]inventory.Patch),
	}
	txRepo := &fakeTxRepo{}
	sagas := &fakeSagaStore{}

	builder := NewBuilder(
		suppliers,
		units,
		txRepo,
		saga.NewCoordinator(sagas, log),
		&fakeNumbers{next: "REC-2026-00001"},
		passthroughTx{},
		log,
	)

	return &builderFixture{
		builder:   builder,
		suppliers: suppliers,
		units:     units,
		txRepo:    txRepo,
		sagas:     sagas,
	}
}

func (f *builderFixture) addSupplier(active bool) id.ID {
	s := &supplier.Supplier{BaseEntity: entity.NewBaseEntity(), Name: "ACME", Active: active}
	f.suppliers.suppliers[s.ID] = s
	return s.ID
}

func (f *builderFixture) addUnit(productID id.ID) id.ID {
	u := inventory.NewProductUnit(productID, "SN-"+id.New().String()[:8])
	f.units.units[u.ID] = u
	return u.ID
}

func TestCreateRecoveryTransaction_Success(t *testing.T) {
	f := newBuilderFixture(t)
	supplierID := f.addSupplier(true)
	productID := id.New()
	unit1 := f.addUnit(productID)
	unit2 := f.addUnit(productID)

	result := f.builder.CreateRecoveryTransaction(context.Background(), Request{
		SupplierID:     supplierID,
		UnitIDs:        []id.ID{unit1, unit2},
		EstimatedPrice: decimal.RequireFromString("100"),
		Notes:          "manual repair",
	})

	require.True(t, result.Success, "errors: %v", result.Errors)
	assert.Equal(t, "REC-2026-00001", result.Number)

	require.NotNil(t, f.txRepo.inserted)
	assert.Equal(t, transaction.TypeRecovery, f.txRepo.inserted.Type)
	assert.Equal(t, transaction.StatusCompleted, f.txRepo.inserted.Status)
	assert.True(t, f.txRepo.inserted.TotalAmount.Equal(decimal.RequireFromString("200")))

	// Both units re-linked with the estimated price.
	require.Len(t, f.units.updates, 2)
	for _, patch := range f.units.updates {
		require.NotNil(t, patch.SupplierID)
		assert.Equal(t, supplierID, *patch.SupplierID)
		require.NotNil(t, patch.PurchasePrice)
		assert.True(t, patch.PurchasePrice.Equal(decimal.RequireFromString("100")))
	}

	// One audit item covering both units of the product.
	require.Len(t, f.txRepo.items, 1)
	assert.Equal(t, int64(2), f.txRepo.items[0].Quantity)
	assert.ElementsMatch(t, []id.ID{unit1, unit2}, f.txRepo.items[0].ProductUnitIDs)

	require.Equal(t, []saga.State{saga.StateCommitted}, f.sagas.finished)
}

func TestCreateRecoveryTransaction_UnknownUnitAborts(t *testing.T) {
	f := newBuilderFixture(t)
	supplierID := f.addSupplier(true)
	known := f.addUnit(id.New())

	result := f.builder.CreateRecoveryTransaction(context.Background(), Request{
		SupplierID:     supplierID,
		UnitIDs:        []id.ID{known, id.New()},
		EstimatedPrice: decimal.RequireFromString("10"),
	})

	assert.False(t, result.Success)
	assert.Nil(t, f.txRepo.inserted, "no transaction row may exist after a failed validation")
	assert.Empty(t, f.units.updates, "no unit may be re-linked after a failed validation")
	require.Equal(t, []saga.State{saga.StateAborted}, f.sagas.finished)
}

func TestCreateRecoveryTransaction_InactiveSupplierAborts(t *testing.T) {
	f := newBuilderFixture(t)
	supplierID := f.addSupplier(false)
	unit := f.addUnit(id.New())

	result := f.builder.CreateRecoveryTransaction(context.Background(), Request{
		SupplierID:     supplierID,
		UnitIDs:        []id.ID{unit},
		EstimatedPrice: decimal.RequireFromString("10"),
	})

	assert.False(t, result.Success)
	assert.Empty(t, f.units.updates)
	require.Equal(t, []saga.State{saga.StateAborted}, f.sagas.finished)
}

func TestCreateRecoveryTransaction_RejectsBadRequests(t *testing.T) {
	f := newBuilderFixture(t)
	supplierID := f.addSupplier(true)

	// No units.
	result := f.builder.CreateRecoveryTransaction(context.Background(), Request{
		SupplierID: supplierID,
	})
	assert.False(t, result.Success)

	// Negative price.
	result = f.builder.CreateRecoveryTransaction(context.Background(), Request{
		SupplierID:     supplierID,
		UnitIDs:        []id.ID{id.New()},
		EstimatedPrice: decimal.RequireFromString("-5"),
	})
	assert.False(t, result.Success)

	// Nothing reached the saga store at all.
	assert.Empty(t, f.sagas.finished)
	assert.Nil(t, f.txRepo.inserted)
}
