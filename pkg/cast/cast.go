// Package cast reconciles tables against a schema: it checks that every field
// is present, turns the unavailable sentinel into null where the field allows
// it and converts each column to the field's declared type.
package cast

import (
	"fmt"
	"sort"

	"github.com/ethpandaops/perfpipe/pkg/metric"
	"github.com/ethpandaops/perfpipe/pkg/schema"
	"github.com/ethpandaops/perfpipe/pkg/table"
)

// Table casts every schema column of t to its declared type and returns a new
// table. Column order, row order and columns outside the schema are kept.
//
// A schema field missing from t yields a *SchemaMismatchError. A cell that
// cannot be converted, including the sentinel or a null in a non-nullable
// field, yields a *CastError.
func Table(t *table.Table, s *schema.Schema) (*table.Table, error) {
	if err := checkColumns(t, s); err != nil {
		return nil, err
	}

	out := table.New()

	for _, c := range t.Columns() {
		f, ok := s.Lookup(c.Name)
		if !ok {
			if err := out.AddColumn(c.Name, c.Type, c.Values); err != nil {
				return nil, err
			}

			continue
		}

		values, err := column(c, f)
		if err != nil {
			return nil, err
		}

		if err := out.AddColumn(f.Name, f.Type, values); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// Row casts a single raw row. The row's keys must equal the schema's field
// set exactly; columns come out in schema order.
func Row(row map[string]string, s *schema.Schema) (*table.Table, error) {
	var extra []string

	for k := range row {
		if !s.Has(k) {
			extra = append(extra, k)
		}
	}

	if len(extra) > 0 {
		sort.Strings(extra)

		return nil, fmt.Errorf("row has fields outside the schema: %q", extra)
	}

	present := make([]string, 0, s.Len())

	for _, name := range s.Names() {
		if _, ok := row[name]; ok {
			present = append(present, name)
		}
	}

	raw, err := table.FromRows(present, schema.Text, []map[string]string{row})
	if err != nil {
		return nil, err
	}

	return Table(raw, s)
}

func checkColumns(t *table.Table, s *schema.Schema) error {
	var missing []string

	for _, name := range s.Names() {
		if _, ok := t.Column(name); !ok {
			missing = append(missing, name)
		}
	}

	if len(missing) == 0 {
		return nil
	}

	return &SchemaMismatchError{
		Expected: s.Names(),
		Found:    t.Names(),
		Missing:  missing,
	}
}

func column(c *table.Column, f schema.Field) ([]any, error) {
	substitute := f.Nullable && c.Type == schema.Text
	values := make([]any, len(c.Values))

	for i, v := range c.Values {
		if substitute && v == metric.Sentinel {
			v = nil
		}

		if v == nil {
			if !f.Nullable {
				return nil, &CastError{Field: f.Name, Row: i, Err: errNull}
			}

			continue
		}

		converted, err := convert(v, f.Type)
		if err != nil {
			return nil, &CastError{Field: f.Name, Row: i, Value: v, Err: err}
		}

		values[i] = converted
	}

	return values, nil
}
