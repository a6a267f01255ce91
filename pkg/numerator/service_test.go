package numerator

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRow returns a preset counter value.
type fakeRow struct {
	val int64
}

func (r fakeRow) Scan(dest ...any) error {
	*(dest[0].(*int64)) = r.val
	return nil
}

// fakeQuerier counts up per key, mimicking the UPSERT..RETURNING behavior.
type fakeQuerier struct {
	counters map[string]int64
	lastKey  string
}

func (q *fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	key := args[0].(string)
	q.lastKey = key
	if q.counters == nil {
		q.counters = make(map[string]int64)
	}
	q.counters[key]++
	return fakeRow{val: q.counters[key]}
}

func TestGetNextNumberFormatsAndIncrements(t *testing.T) {
	q := &fakeQuerier{}
	s := New(q)

	period := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	first, err := s.GetNextNumber(context.Background(), DefaultConfig("REC"), period)
	require.NoError(t, err)
	assert.Equal(t, "REC-2026-00001", first)

	second, err := s.GetNextNumber(context.Background(), DefaultConfig("REC"), period)
	require.NoError(t, err)
	assert.Equal(t, "REC-2026-00002", second)

	assert.Equal(t, "REC_2026", q.lastKey)
}

func TestGetNextNumberResetPeriods(t *testing.T) {
	q := &fakeQuerier{}
	s := New(q)

	period := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	cfg := Config{Prefix: "DOC", ResetPeriod: "month", PadWidth: 3}
	_, err := s.GetNextNumber(context.Background(), cfg, period)
	require.NoError(t, err)
	assert.Equal(t, "DOC_2026_09", q.lastKey)

	cfg.ResetPeriod = "never"
	_, err = s.GetNextNumber(context.Background(), cfg, period)
	require.NoError(t, err)
	assert.Equal(t, "DOC", q.lastKey)
}

func TestGetNextNumberWithoutYear(t *testing.T) {
	q := &fakeQuerier{}
	s := New(q)

	cfg := Config{Prefix: "X", PadWidth: 3}
	num, err := s.GetNextNumber(context.Background(), cfg, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "X-001", num)
}

func TestGetNextNumberUninitialized(t *testing.T) {
	var s *Service
	_, err := s.GetNextNumber(context.Background(), DefaultConfig("REC"), time.Now())
	assert.Error(t, err)
}
