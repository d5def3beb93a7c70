package columnar

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/perfpipe/pkg/schema"
	"github.com/ethpandaops/perfpipe/pkg/table"
)

func newTestStore() *Store {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.WarnLevel)

	return NewStore(log, nil)
}

func sampleTable(t *testing.T) *table.Table {
	t.Helper()

	ts := time.Date(2025, 5, 13, 17, 0, 20, 123_000_000, time.UTC)

	tbl := table.New()
	require.NoError(t, tbl.AddColumn("Timestamp", schema.Timestamp, []any{ts, ts.Add(time.Second), nil}))
	require.NoError(t, tbl.AddColumn("Method", schema.Text, []any{"EmptyFn", nil, "Noop"}))
	require.NoError(t, tbl.AddColumn("Cycles", schema.Int64, []any{int64(100), int64(200), nil}))
	require.NoError(t, tbl.AddColumn("IPC", schema.Float64, []any{1.5, nil, 0.25}))

	return tbl
}

func TestWriteRead_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.parquet")
	in := sampleTable(t)

	require.NoError(t, newTestStore().Write(path, in))

	out, err := Read(path)
	require.NoError(t, err)

	// Logical order survives even though parquet sorts group fields.
	assert.Equal(t, []string{"Timestamp", "Method", "Cycles", "IPC"}, out.Names())
	require.Equal(t, in.NumRows(), out.NumRows())

	for _, c := range in.Columns() {
		got, ok := out.Column(c.Name)
		require.True(t, ok, c.Name)
		assert.Equal(t, c.Type, got.Type, c.Name)

		for i := range c.Values {
			assert.True(t, table.Equal(c.Values[i], got.Values[i]), "%s row %d: %v != %v", c.Name, i, c.Values[i], got.Values[i])
		}
	}
}

func TestWriteRead_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.parquet")

	in := table.New()
	require.NoError(t, in.AddColumn("Method", schema.Text, []any{}))
	require.NoError(t, in.AddColumn("Cycles", schema.Int64, []any{}))

	require.NoError(t, newTestStore().Write(path, in))

	out, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Method", "Cycles"}, out.Names())
	assert.Zero(t, out.NumRows())
}

func TestWrite_ManyRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "many.parquet")

	n := rowBatch*3 + 7
	values := make([]any, n)

	for i := range values {
		values[i] = int64(i)
	}

	in := table.New()
	require.NoError(t, in.AddColumn("Trial", schema.Int64, values))
	require.NoError(t, newTestStore().Write(path, in))

	out, err := Read(path)
	require.NoError(t, err)
	require.Equal(t, n, out.NumRows())
	assert.Equal(t, int64(n-1), out.Value("Trial", n-1))
}

func TestWriteTemp_LeavesTargetUntouched(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.parquet")

	tmp, err := newTestStore().WriteTemp(path, sampleTable(t))
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(tmp))
	assert.NoFileExists(t, path)
	assert.FileExists(t, tmp)
}

func TestRead_WithoutMetadata(t *testing.T) {
	type row struct {
		Method string  `parquet:"Method"`
		Cycles int64   `parquet:"Cycles"`
		IPC    float64 `parquet:"IPC"`
	}

	path := filepath.Join(t.TempDir(), "foreign.parquet")
	require.NoError(t, parquet.WriteFile(path, []row{
		{Method: "EmptyFn", Cycles: 10, IPC: 1.25},
		{Method: "Noop", Cycles: 20, IPC: 0.5},
	}))

	out, err := Read(path)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Method", "Cycles", "IPC"}, out.Names())
	require.Equal(t, 2, out.NumRows())

	c, ok := out.Column("Cycles")
	require.True(t, ok)
	assert.Equal(t, schema.Int64, c.Type)
	assert.Equal(t, []any{int64(10), int64(20)}, c.Values)

	c, ok = out.Column("Method")
	require.True(t, ok)
	assert.Equal(t, schema.Text, c.Type)
	assert.Equal(t, "Noop", c.Values[1])
}

func TestRead_Missing(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "nope.parquet"))
	require.Error(t, err)
}
