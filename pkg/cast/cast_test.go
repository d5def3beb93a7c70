package cast

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/perfpipe/pkg/metric"
	"github.com/ethpandaops/perfpipe/pkg/schema"
	"github.com/ethpandaops/perfpipe/pkg/table"
)

var testSchema = schema.MustNew(
	schema.Field{Name: "Timestamp", Type: schema.Timestamp},
	schema.Field{Name: "Method", Type: schema.Text},
	schema.Field{Name: "Cycles", Type: schema.Int64},
	schema.Field{Name: "IPC", Type: schema.Float64},
	schema.Field{Name: "L2 Loads", Type: schema.Int64, Nullable: true},
	schema.Field{Name: "L2 Miss %", Type: schema.Float64, Nullable: true},
)

func rawTable(t *testing.T, rows ...map[string]string) *table.Table {
	t.Helper()

	tbl, err := table.FromRows(testSchema.Names(), schema.Text, rows)
	require.NoError(t, err)

	return tbl
}

func validRow() map[string]string {
	return map[string]string{
		"Timestamp": "2025-05-13_17-00-20",
		"Method":    "SIMD",
		"Cycles":    "6010711137",
		"IPC":       "1.35",
		"L2 Loads":  metric.Sentinel,
		"L2 Miss %": metric.Sentinel,
	}
}

func TestTable_CastsEveryField(t *testing.T) {
	out, err := Table(rawTable(t, validRow()), testSchema)
	require.NoError(t, err)

	assert.Equal(t, testSchema.Names(), out.Names())
	assert.Equal(t, time.Date(2025, 5, 13, 17, 0, 20, 0, time.UTC), out.Value("Timestamp", 0))
	assert.Equal(t, "SIMD", out.Value("Method", 0))
	assert.Equal(t, int64(6010711137), out.Value("Cycles", 0))
	assert.Equal(t, 1.35, out.Value("IPC", 0))
	assert.Nil(t, out.Value("L2 Loads", 0))
	assert.Nil(t, out.Value("L2 Miss %", 0))

	for _, f := range testSchema.Fields() {
		c, ok := out.Column(f.Name)
		require.True(t, ok)
		assert.Equal(t, f.Type, c.Type, f.Name)
	}
}

func TestTable_MissingColumn(t *testing.T) {
	raw := table.New()
	for _, name := range testSchema.Names() {
		if name == "IPC" {
			continue
		}

		require.NoError(t, raw.AddColumn(name, schema.Text, []any{"1"}))
	}

	_, err := Table(raw, testSchema)
	require.Error(t, err)

	var mismatch *SchemaMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, []string{"IPC"}, mismatch.Missing)
	assert.Equal(t, testSchema.Names(), mismatch.Expected)
	assert.NotContains(t, mismatch.Found, "IPC")
	assert.Contains(t, err.Error(), `"IPC"`)
}

func TestTable_SentinelInNonNullableFails(t *testing.T) {
	tests := []struct {
		name  string
		field string
	}{
		{name: "integer counter", field: "Cycles"},
		{name: "float metric", field: "IPC"},
		{name: "timestamp", field: "Timestamp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := validRow()
			row[tt.field] = metric.Sentinel

			_, err := Table(rawTable(t, row), testSchema)
			require.Error(t, err)

			var castErr *CastError
			require.True(t, errors.As(err, &castErr))
			assert.Equal(t, tt.field, castErr.Field)
			assert.Equal(t, 0, castErr.Row)
		})
	}
}

func TestTable_NullInNonNullableFails(t *testing.T) {
	row := validRow()
	delete(row, "Cycles")

	_, err := Table(rawTable(t, row), testSchema)

	var castErr *CastError
	require.True(t, errors.As(err, &castErr))
	assert.Equal(t, "Cycles", castErr.Field)
	assert.ErrorIs(t, err, errNull)
}

func TestTable_NullableValues(t *testing.T) {
	row := validRow()
	row["L2 Loads"] = "200000"
	row["L2 Miss %"] = "5"

	out, err := Table(rawTable(t, row), testSchema)
	require.NoError(t, err)

	assert.Equal(t, int64(200000), out.Value("L2 Loads", 0))
	assert.Equal(t, 5.0, out.Value("L2 Miss %", 0))
}

func TestTable_Idempotent(t *testing.T) {
	second := validRow()
	second["Timestamp"] = "2025-05-13 17:00:21.123"
	second["L2 Loads"] = "12"

	first, err := Table(rawTable(t, validRow(), second), testSchema)
	require.NoError(t, err)

	again, err := Table(first, testSchema)
	require.NoError(t, err)

	assert.Equal(t, first.Names(), again.Names())

	for _, c := range first.Columns() {
		other, ok := again.Column(c.Name)
		require.True(t, ok)
		assert.Equal(t, c.Type, other.Type)
		assert.Equal(t, c.Values, other.Values, c.Name)
	}
}

func TestTable_KeepsExtraColumnsAndOrder(t *testing.T) {
	raw := table.New()
	require.NoError(t, raw.AddColumn("note", schema.Text, []any{"kept"}))

	for _, name := range []string{"IPC", "Method", "Timestamp", "Cycles", "L2 Miss %", "L2 Loads"} {
		require.NoError(t, raw.AddColumn(name, schema.Text, []any{validRow()[name]}))
	}

	out, err := Table(raw, testSchema)
	require.NoError(t, err)

	assert.Equal(t, []string{"note", "IPC", "Method", "Timestamp", "Cycles", "L2 Miss %", "L2 Loads"}, out.Names())
	assert.Equal(t, "kept", out.Value("note", 0))
}

func TestTable_TypedInputs(t *testing.T) {
	raw := table.New()
	require.NoError(t, raw.AddColumn("Timestamp", schema.Int64, []any{int64(1747155620000)}))
	require.NoError(t, raw.AddColumn("Method", schema.Text, []any{"Heap"}))
	require.NoError(t, raw.AddColumn("Cycles", schema.Float64, []any{12.0}))
	require.NoError(t, raw.AddColumn("IPC", schema.Int64, []any{int64(2)}))
	// Sentinel substitution only applies to textual storage.
	require.NoError(t, raw.AddColumn("L2 Loads", schema.Int64, []any{nil}))
	require.NoError(t, raw.AddColumn("L2 Miss %", schema.Float64, []any{nil}))

	out, err := Table(raw, testSchema)
	require.NoError(t, err)

	assert.Equal(t, time.UnixMilli(1747155620000).UTC(), out.Value("Timestamp", 0))
	assert.Equal(t, int64(12), out.Value("Cycles", 0))
	assert.Equal(t, 2.0, out.Value("IPC", 0))
}

func TestTable_NonIntegralFloatToInt(t *testing.T) {
	row := validRow()
	row["Cycles"] = "12.5"

	_, err := Table(rawTable(t, row), testSchema)
	require.ErrorIs(t, err, errNotIntegral)
}

func TestRow(t *testing.T) {
	out, err := Row(validRow(), testSchema)
	require.NoError(t, err)
	assert.Equal(t, 1, out.NumRows())
	assert.Equal(t, testSchema.Names(), out.Names())

	extra := validRow()
	extra["Bogus"] = "1"

	_, err = Row(extra, testSchema)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Bogus")

	missing := validRow()
	delete(missing, "IPC")

	_, err = Row(missing, testSchema)

	var mismatch *SchemaMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, []string{"IPC"}, mismatch.Missing)
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2025, 5, 13, 17, 47, 40, 0, time.UTC)

	for _, in := range []string{
		"2025-05-13_17-47-40",
		"2025-05-13 17:47:40",
		"2025-05-13T17:47:40Z",
		"2025-05-13T17:47:40",
		"1747158460000",
	} {
		got, err := parseTimestamp(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), in)
	}

	got, err := parseTimestamp("2025-05-13 17:47:40.123456")
	require.NoError(t, err)
	assert.Equal(t, 123*time.Millisecond, time.Duration(got.Nanosecond()))

	_, err = parseTimestamp("yesterday")
	require.Error(t, err)
}
