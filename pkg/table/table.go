// Package table is a small columnar in-memory table used to move benchmark
// rows between the caster, the Parquet files and ClickHouse.
//
// Cells are nil (null) or a Go value matching the column's storage type:
// int64, float64, string or time.Time.
package table

import (
	"fmt"
	"time"

	"github.com/ethpandaops/perfpipe/pkg/schema"
)

// Column is a named, typed sequence of cells.
type Column struct {
	Name   string
	Type   schema.Type
	Values []any
}

// Table is an ordered set of equally long columns.
type Table struct {
	columns []*Column
	index   map[string]int
	rows    int
}

// New returns an empty table with no columns.
func New() *Table {
	return &Table{index: make(map[string]int)}
}

// FromRows builds a single-typed table from string rows. Every column gets the
// given storage type and missing keys become null. Column order follows names.
func FromRows(names []string, typ schema.Type, rows []map[string]string) (*Table, error) {
	t := New()

	for _, name := range names {
		values := make([]any, len(rows))

		for i, row := range rows {
			if v, ok := row[name]; ok {
				values[i] = v
			}
		}

		if err := t.AddColumn(name, typ, values); err != nil {
			return nil, err
		}
	}

	return t, nil
}

// AddColumn appends a column. The first column fixes the row count; later
// columns must match it.
func (t *Table) AddColumn(name string, typ schema.Type, values []any) error {
	if _, exists := t.index[name]; exists {
		return fmt.Errorf("duplicate column %q", name)
	}

	if len(t.columns) > 0 && len(values) != t.rows {
		return fmt.Errorf(
			"column %q has %d rows, table has %d", name, len(values), t.rows,
		)
	}

	for i, v := range values {
		if err := checkCell(typ, v); err != nil {
			return fmt.Errorf("column %q row %d: %w", name, i, err)
		}
	}

	t.index[name] = len(t.columns)
	t.columns = append(t.columns, &Column{Name: name, Type: typ, Values: values})
	t.rows = len(values)

	return nil
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int {
	return t.rows
}

// NumColumns returns the number of columns.
func (t *Table) NumColumns() int {
	return len(t.columns)
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}

	return names
}

// Columns returns the columns in order. Callers must not modify them.
func (t *Table) Columns() []*Column {
	return t.columns
}

// Column returns the named column.
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}

	return t.columns[i], true
}

// Value returns the cell at row i of the named column. Absent columns read as
// null.
func (t *Table) Value(name string, i int) any {
	c, ok := t.Column(name)
	if !ok {
		return nil
	}

	return c.Values[i]
}

// Take returns a new table holding the given rows, in the given order.
func (t *Table) Take(rows []int) *Table {
	out := New()

	for _, c := range t.columns {
		values := make([]any, len(rows))
		for j, i := range rows {
			values[j] = c.Values[i]
		}

		out.index[c.Name] = len(out.columns)
		out.columns = append(out.columns, &Column{Name: c.Name, Type: c.Type, Values: values})
	}

	out.rows = len(rows)

	return out
}

// Filter returns the rows for which keep returns true.
func (t *Table) Filter(keep func(row int) bool) *Table {
	rows := make([]int, 0, t.rows)

	for i := 0; i < t.rows; i++ {
		if keep(i) {
			rows = append(rows, i)
		}
	}

	return t.Take(rows)
}

// FilterEqual keeps the rows whose named column equals v.
func (t *Table) FilterEqual(name string, v any) *Table {
	c, ok := t.Column(name)
	if !ok {
		return t.Take(nil)
	}

	return t.Filter(func(i int) bool {
		return Equal(c.Values[i], v)
	})
}

// Equal compares two cells. Timestamps compare by instant.
func Equal(a, b any) bool {
	ta, aok := a.(time.Time)
	tb, bok := b.(time.Time)

	if aok || bok {
		return aok && bok && ta.Equal(tb)
	}

	return a == b
}

func checkCell(typ schema.Type, v any) error {
	if v == nil {
		return nil
	}

	var ok bool

	switch typ {
	case schema.Int64:
		_, ok = v.(int64)
	case schema.Float64:
		_, ok = v.(float64)
	case schema.Text:
		_, ok = v.(string)
	case schema.Timestamp:
		_, ok = v.(time.Time)
	default:
		return fmt.Errorf("%w: %s", schema.ErrUnsupportedType, typ)
	}

	if !ok {
		return fmt.Errorf("value %v (%T) is not %s", v, v, typ)
	}

	return nil
}
