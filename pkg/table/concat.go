package table

import (
	"fmt"
	"sort"
	"time"

	"github.com/ethpandaops/perfpipe/pkg/schema"
)

// Concat stacks tables vertically with a relaxed column set. The result has
// the union of all columns, in first-seen order; rows from a table that lacks
// a column get null there. When the same column has different storage types,
// Int64 and Float64 widen to Float64; any other mismatch is an error.
func Concat(tables ...*Table) (*Table, error) {
	var (
		order []string
		types = make(map[string]schema.Type)
		total int
	)

	for ti, t := range tables {
		if t == nil {
			continue
		}

		total += t.rows

		for _, c := range t.columns {
			prev, seen := types[c.Name]
			if !seen {
				order = append(order, c.Name)
				types[c.Name] = c.Type

				continue
			}

			widened, err := widen(prev, c.Type)
			if err != nil {
				return nil, fmt.Errorf("table %d column %q: %w", ti, c.Name, err)
			}

			types[c.Name] = widened
		}
	}

	out := New()

	for _, name := range order {
		typ := types[name]
		values := make([]any, 0, total)

		for _, t := range tables {
			if t == nil {
				continue
			}

			c, ok := t.Column(name)
			if !ok {
				values = append(values, make([]any, t.rows)...)

				continue
			}

			for _, v := range c.Values {
				values = append(values, promote(v, typ))
			}
		}

		out.index[name] = len(out.columns)
		out.columns = append(out.columns, &Column{Name: name, Type: typ, Values: values})
	}

	out.rows = total

	return out, nil
}

func widen(a, b schema.Type) (schema.Type, error) {
	if a == b {
		return a, nil
	}

	if (a == schema.Int64 && b == schema.Float64) || (a == schema.Float64 && b == schema.Int64) {
		return schema.Float64, nil
	}

	return 0, fmt.Errorf("incompatible types %s and %s", a, b)
}

func promote(v any, typ schema.Type) any {
	if i, ok := v.(int64); ok && typ == schema.Float64 {
		return float64(i)
	}

	return v
}

// SortByTime stably sorts rows by the named timestamp column, ascending.
// Nulls sort last. Rows with equal timestamps keep their relative order.
func (t *Table) SortByTime(name string) (*Table, error) {
	c, ok := t.Column(name)
	if !ok {
		return nil, fmt.Errorf("sort column %q not found", name)
	}

	if c.Type != schema.Timestamp {
		return nil, fmt.Errorf("sort column %q is %s, not %s", name, c.Type, schema.Timestamp)
	}

	rows := make([]int, t.rows)
	for i := range rows {
		rows[i] = i
	}

	sort.SliceStable(rows, func(a, b int) bool {
		va, aok := c.Values[rows[a]].(time.Time)
		vb, bok := c.Values[rows[b]].(time.Time)

		switch {
		case !aok:
			return false
		case !bok:
			return true
		default:
			return va.Before(vb)
		}
	})

	return t.Take(rows), nil
}
