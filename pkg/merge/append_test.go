package merge

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/perfpipe/pkg/cast"
	"github.com/ethpandaops/perfpipe/pkg/columnar"
	"github.com/ethpandaops/perfpipe/pkg/config"
	"github.com/ethpandaops/perfpipe/pkg/ledger"
	"github.com/ethpandaops/perfpipe/pkg/schema"
	"github.com/ethpandaops/perfpipe/pkg/table"
)

func setupAppender(t *testing.T, attempts uint) (*Appender, ledger.Store, string) {
	t.Helper()

	dir := t.TempDir()
	log := testLogger()

	l := ledger.NewStore(log, &config.LedgerConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{Path: filepath.Join(dir, "ledger.sqlite")},
	})
	require.NoError(t, l.Start(context.Background()))
	t.Cleanup(func() { _ = l.Stop() })

	a := NewAppender(log, columnar.NewStore(log, nil), l, testSchema, AppendOptions{
		Attempts: attempts,
		Delay:    time.Millisecond,
	})

	return a, l, filepath.Join(dir, "db", "db.parquet")
}

func batchRows(batch string, n int, start time.Time) []testRow {
	rows := make([]testRow, n)
	for i := range rows {
		rows[i] = testRow{
			ts:     start.Add(time.Duration(i) * time.Second),
			batch:  batch,
			method: fmt.Sprintf("M%d", i),
			cycles: int64(i),
		}
	}

	return rows
}

func TestAppend_CreatesStore(t *testing.T) {
	a, _, dbPath := setupAppender(t, 1)

	res, err := a.Append(context.Background(), dbPath, rowsTable(t, batchRows("a", 3, t0)...))
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, 3, res.Appended)
	assert.Equal(t, 3, res.TotalRows)
	assert.Equal(t, int64(1), res.Version)

	stored, err := columnar.Read(dbPath)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.NumRows())
}

func TestAppend_SupersetOfStoreAndBatch(t *testing.T) {
	a, _, dbPath := setupAppender(t, 1)
	ctx := context.Background()

	old := rowsTable(t, batchRows("a", 3, t0.Add(time.Hour))...)
	_, err := a.Append(ctx, dbPath, old)
	require.NoError(t, err)

	// The new batch interleaves in time with the old one.
	batch := rowsTable(t, batchRows("b", 4, t0)...)

	res, err := a.Append(ctx, dbPath, batch)
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, 4, res.Appended)
	assert.Zero(t, res.Duplicates)
	assert.Equal(t, 7, res.TotalRows)
	assert.Equal(t, int64(2), res.Version)

	stored, err := columnar.Read(dbPath)
	require.NoError(t, err)
	require.Equal(t, old.NumRows()+batch.NumRows(), stored.NumRows())

	for _, part := range []*table.Table{old, batch} {
		for i := 0; i < part.NumRows(); i++ {
			k := keyOf(part, i)
			found := stored.Filter(func(j int) bool { return keyOf(stored, j) == k })
			assert.Equal(t, 1, found.NumRows(), "row %+v", k)
		}
	}

	ts := timestamps(t, stored)
	for i := 1; i < len(ts); i++ {
		assert.False(t, ts[i].Before(ts[i-1]), "store not sorted at %d", i)
	}
}

func TestAppend_ReappendIsNoop(t *testing.T) {
	a, l, dbPath := setupAppender(t, 1)
	ctx := context.Background()

	batch := rowsTable(t, batchRows("a", 3, t0)...)

	_, err := a.Append(ctx, dbPath, batch)
	require.NoError(t, err)

	res, err := a.Append(ctx, dbPath, batch)
	require.NoError(t, err)
	assert.Zero(t, res.Appended)
	assert.Equal(t, 3, res.Duplicates)
	assert.Equal(t, 3, res.TotalRows)
	assert.Equal(t, int64(1), res.Version, "no-op append must not bump the version")

	stored, err := columnar.Read(dbPath)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.NumRows())

	batches, err := l.ListBatches(ctx, dbPath)
	require.NoError(t, err)
	assert.Len(t, batches, 1)
}

func TestAppend_PartialOverlap(t *testing.T) {
	a, _, dbPath := setupAppender(t, 1)
	ctx := context.Background()

	rows := batchRows("a", 4, t0)

	_, err := a.Append(ctx, dbPath, rowsTable(t, rows[:2]...))
	require.NoError(t, err)

	res, err := a.Append(ctx, dbPath, rowsTable(t, rows...))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Appended)
	assert.Equal(t, 2, res.Duplicates)
	assert.Equal(t, 4, res.TotalRows)
}

func TestAppend_RejectsSchemaMismatch(t *testing.T) {
	a, _, dbPath := setupAppender(t, 1)

	batch := table.New()
	require.NoError(t, batch.AddColumn(schema.FieldTimestamp, schema.Timestamp, []any{t0}))

	_, err := a.Append(context.Background(), dbPath, batch)

	var mismatch *cast.SchemaMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Contains(t, mismatch.Missing, schema.FieldMethod)
	assert.NoFileExists(t, dbPath)
}

func TestAppend_ConcurrentAppendersLoseNothing(t *testing.T) {
	a, l, dbPath := setupAppender(t, 20)
	ctx := context.Background()

	const writers = 4

	var wg sync.WaitGroup

	errs := make([]error, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			batch := rowsTable(t, batchRows(fmt.Sprintf("b%d", i), 5, t0.Add(time.Duration(i)*time.Minute))...)
			_, errs[i] = a.Append(ctx, dbPath, batch)
		}(i)
	}

	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	stored, err := columnar.Read(dbPath)
	require.NoError(t, err)
	assert.Equal(t, writers*5, stored.NumRows())

	v, err := l.Version(ctx, dbPath)
	require.NoError(t, err)
	assert.Equal(t, int64(writers), v)
}

func TestAppend_ConflictExhaustsAttempts(t *testing.T) {
	dir := t.TempDir()
	log := testLogger()
	l := &conflictLedger{}

	a := NewAppender(log, columnar.NewStore(log, nil), l, testSchema, AppendOptions{Attempts: 3, Delay: time.Millisecond})

	_, err := a.Append(context.Background(), filepath.Join(dir, "db.parquet"), rowsTable(t, batchRows("a", 1, t0)...))
	require.ErrorIs(t, err, ledger.ErrVersionConflict)
	assert.Equal(t, 3, l.commits)
	assert.NoFileExists(t, filepath.Join(dir, "db.parquet"))
}

// conflictLedger always loses the race.
type conflictLedger struct {
	ledger.Store
	commits int
}

func (c *conflictLedger) Version(context.Context, string) (int64, error) {
	return 0, nil
}

func (c *conflictLedger) Commit(context.Context, *ledger.Commit, func() error) (int64, error) {
	c.commits++

	return 0, ledger.ErrVersionConflict
}
