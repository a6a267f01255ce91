package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stocksync/internal/core/apperror"
	"stocksync/internal/core/id"
	"stocksync/internal/domain/inventory"
	"stocksync/internal/domain/orphan"
	"stocksync/internal/domain/recovery"
	"stocksync/internal/domain/saga"
	"stocksync/internal/domain/supplier"
	"stocksync/internal/domain/transaction"
	"stocksync/pkg/logger"
	"stocksync/pkg/numerator"
)

func testLogger() *logger.Logger {
	return &logger.Logger{SugaredLogger: zap.NewNop().Sugar()}
}

type fakeScans struct{ units []orphan.Unit }

func (f fakeScans) UnitsWithoutSupplier(ctx context.Context, since time.Time) ([]orphan.Unit, error) {
	return f.units, nil
}

func (f fakeScans) UnitsWithSupplier(ctx context.Context, since time.Time) ([]orphan.Unit, error) {
	return nil, nil
}

type fakeTxRepo struct{}

func (fakeTxRepo) GetByID(ctx context.Context, transactionID id.ID) (*transaction.SupplierTransaction, error) {
	return nil, apperror.NewNotFound("supplier transaction", transactionID.String())
}
func (fakeTxRepo) Insert(ctx context.Context, tx *transaction.SupplierTransaction) error { return nil }
func (fakeTxRepo) InsertItems(ctx context.Context, items []transaction.TransactionItem) error {
	return nil
}
func (fakeTxRepo) AnyItemReferencesUnit(ctx context.Context, unitID id.ID) (bool, error) {
	return false, nil
}

type fakeSuppliers struct{}

func (fakeSuppliers) GetByID(ctx context.Context, supplierID id.ID) (*supplier.Supplier, error) {
	return nil, apperror.NewNotFound("supplier", supplierID.String())
}

type fakeUnits struct{}

func (fakeUnits) GetByIDs(ctx context.Context, ids []id.ID) ([]inventory.ProductUnit, error) {
	return nil, nil
}
func (fakeUnits) GetByProductAndSerials(ctx context.Context, productID id.ID, serials []string) ([]inventory.ProductUnit, error) {
	return nil, nil
}
func (fakeUnits) Insert(ctx context.Context, units []inventory.ProductUnit) error { return nil }
func (fakeUnits) Update(ctx context.Context, unitID id.ID, patch inventory.Patch) error {
	return nil
}
func (fakeUnits) UpdateStatus(ctx context.Context, ids []id.ID, status inventory.Status) error {
	return nil
}

type fakeSagaStore struct{}

func (fakeSagaStore) Create(ctx context.Context, s *saga.Saga) error { return nil }
func (fakeSagaStore) Finish(ctx context.Context, sagaID id.ID, state saga.State, reason string) error {
	return nil
}

type fakeNumbers struct{}

func (fakeNumbers) GetNextNumber(ctx context.Context, cfg numerator.Config, period time.Time) (string, error) {
	return "REC-2026-00001", nil
}

type passthroughTx struct{}

func (passthroughTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
func (passthroughTx) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

func newTestServer(t *testing.T, units []orphan.Unit, db Pinger) *Server {
	t.Helper()
	log := testLogger()

	detector := orphan.NewDetector(fakeScans{units: units}, fakeTxRepo{}, log)
	builder := recovery.NewBuilder(
		fakeSuppliers{},
		fakeUnits{},
		fakeTxRepo{},
		saga.NewCoordinator(fakeSagaStore{}, log),
		fakeNumbers{},
		passthroughTx{},
		log,
	)

	return New("0", detector, builder, db, false, log)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, nil, fakePinger{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthzDown(t *testing.T) {
	s := newTestServer(t, nil, fakePinger{err: context.DeadlineExceeded})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetOrphans(t *testing.T) {
	units := []orphan.Unit{{UnitID: id.New(), SerialNumber: "SN-1"}}
	s := newTestServer(t, units, fakePinger{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orphans", nil)
	s.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var report orphan.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Len(t, report.NoSupplier, 1)
	assert.Equal(t, orphan.ClassNoSupplier, report.NoSupplier[0].Class)
}

func TestGetOrphansRejectsBadSince(t *testing.T) {
	s := newTestServer(t, nil, fakePinger{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orphans?since=yesterday", nil)
	s.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRecoveryFailureIsStructured(t *testing.T) {
	s := newTestServer(t, nil, fakePinger{})

	body := `{"supplierId":"` + id.New().String() + `","unitIds":["` + id.New().String() + `"],"estimatedPrice":"10"}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recoveries", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.engine.ServeHTTP(rec, req)

	// The fake supplier store knows no suppliers, so the builder reports a
	// structured failure.
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var result recovery.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Errors)
}
