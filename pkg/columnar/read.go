package columnar

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/ethpandaops/perfpipe/pkg/schema"
	"github.com/ethpandaops/perfpipe/pkg/table"
)

// Read loads a Parquet file written by Encode. Files without the column
// metadata are read in their physical column order with types inferred from
// the Parquet leaf types.
func Read(path string) (*table.Table, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from discovery or config
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return nil, fmt.Errorf("opening parquet %s: %w", path, err)
	}

	t, err := decode(pf)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	return t, nil
}

type readColumn struct {
	name   string
	typ    schema.Type
	values []any
}

func decode(pf *parquet.File) (*table.Table, error) {
	sch := pf.Schema()
	leaves := sch.Columns()

	byIndex := make([]*readColumn, len(leaves))

	order, err := columnOrder(pf, sch)
	if err != nil {
		return nil, err
	}

	for _, rc := range order {
		leaf, ok := sch.Lookup(rc.name)
		if !ok {
			return nil, fmt.Errorf("column %q listed in metadata but not in file", rc.name)
		}

		byIndex[leaf.ColumnIndex] = rc
	}

	buf := make([]parquet.Row, rowBatch)

	for _, rg := range pf.RowGroups() {
		if err := readGroup(rg, byIndex, buf); err != nil {
			return nil, err
		}
	}

	t := table.New()

	for _, rc := range order {
		if err := t.AddColumn(rc.name, rc.typ, rc.values); err != nil {
			return nil, err
		}
	}

	return t, nil
}

func readGroup(rg parquet.RowGroup, byIndex []*readColumn, buf []parquet.Row) error {
	rows := rg.Rows()
	defer func() { _ = rows.Close() }()

	for {
		n, err := rows.ReadRows(buf)

		for _, row := range buf[:n] {
			seen := make([]bool, len(byIndex))

			for _, v := range row {
				idx := v.Column()
				if idx < 0 || idx >= len(byIndex) || byIndex[idx] == nil {
					continue
				}

				rc := byIndex[idx]
				rc.values = append(rc.values, cellFor(rc.typ, v))
				seen[idx] = true
			}

			for idx, rc := range byIndex {
				if rc != nil && !seen[idx] {
					rc.values = append(rc.values, nil)
				}
			}
		}

		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("reading rows: %w", err)
		}
	}
}

func cellFor(t schema.Type, v parquet.Value) any {
	if v.IsNull() {
		return nil
	}

	switch t {
	case schema.Int64:
		return v.Int64()
	case schema.Float64:
		return v.Double()
	case schema.Text:
		return string(v.ByteArray())
	case schema.Timestamp:
		return time.UnixMilli(v.Int64()).UTC()
	default:
		return nil
	}
}

// columnOrder returns the logical columns, from metadata when present.
func columnOrder(pf *parquet.File, sch *parquet.Schema) ([]*readColumn, error) {
	if raw, ok := pf.Lookup(MetadataColumns); ok {
		var meta []columnMeta
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			return nil, fmt.Errorf("decoding column metadata: %w", err)
		}

		out := make([]*readColumn, 0, len(meta))

		for _, m := range meta {
			typ, err := schema.ParseType(m.Type)
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", m.Name, err)
			}

			out = append(out, &readColumn{name: m.Name, typ: typ})
		}

		return out, nil
	}

	leaves := sch.Columns()
	out := make([]*readColumn, 0, len(leaves))

	for _, path := range leaves {
		if len(path) != 1 {
			return nil, fmt.Errorf("nested column %v not supported", path)
		}

		leaf, _ := sch.Lookup(path...)

		typ, err := inferType(leaf.Node.Type())
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", path[0], err)
		}

		out = append(out, &readColumn{name: path[0], typ: typ})
	}

	return out, nil
}

func inferType(t parquet.Type) (schema.Type, error) {
	switch t.Kind() {
	case parquet.Int64:
		if lt := t.LogicalType(); lt != nil && lt.Timestamp != nil {
			return schema.Timestamp, nil
		}

		return schema.Int64, nil
	case parquet.Double:
		return schema.Float64, nil
	case parquet.ByteArray:
		return schema.Text, nil
	default:
		return 0, fmt.Errorf("%w: parquet %s", schema.ErrUnsupportedType, t.Kind())
	}
}
