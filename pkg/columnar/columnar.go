// Package columnar persists tables as zstd-compressed Parquet files.
//
// Parquet groups order their fields by name, so the logical column order and
// types are kept in the file's key/value metadata and restored on read.
package columnar

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/docker/go-units"
	"github.com/parquet-go/parquet-go"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/perfpipe/pkg/fsutil"
	"github.com/ethpandaops/perfpipe/pkg/schema"
	"github.com/ethpandaops/perfpipe/pkg/table"
)

// MetadataColumns is the key/value metadata entry listing the logical
// column order.
const MetadataColumns = "perfpipe.columns"

const rowBatch = 256

type columnMeta struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Store reads and writes Parquet artifacts.
type Store struct {
	log   logrus.FieldLogger
	owner *fsutil.OwnerConfig
}

// NewStore creates a Store. Files it creates are chowned to owner when set.
func NewStore(log logrus.FieldLogger, owner *fsutil.OwnerConfig) *Store {
	return &Store{
		log:   log.WithField("component", "columnar"),
		owner: owner,
	}
}

// Write replaces path with t atomically.
func (s *Store) Write(path string, t *table.Table) error {
	tmp, err := s.WriteTemp(path, t)
	if err != nil {
		return err
	}

	return fsutil.Replace(tmp, path)
}

// WriteTemp writes t to a temporary file next to path and returns its name.
// The caller publishes it with fsutil.Replace.
func (s *Store) WriteTemp(path string, t *table.Table) (string, error) {
	tmp, err := fsutil.WriteTemp(path, s.owner, func(w io.Writer) error {
		return Encode(w, t)
	})
	if err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}

	if st, err := os.Stat(tmp); err == nil {
		s.log.WithFields(logrus.Fields{
			"path":    path,
			"rows":    t.NumRows(),
			"columns": t.NumColumns(),
			"size":    units.HumanSize(float64(st.Size())),
		}).Debug("Wrote parquet file")
	}

	return tmp, nil
}

// Encode writes t to w as a single Parquet file.
func Encode(w io.Writer, t *table.Table) error {
	cols := t.Columns()
	group := make(parquet.Group, len(cols))
	meta := make([]columnMeta, 0, len(cols))

	for _, c := range cols {
		node, err := nodeFor(c.Type)
		if err != nil {
			return fmt.Errorf("column %q: %w", c.Name, err)
		}

		group[c.Name] = parquet.Optional(node)
		meta = append(meta, columnMeta{Name: c.Name, Type: c.Type.String()})
	}

	encodedMeta, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding column metadata: %w", err)
	}

	sch := parquet.NewSchema("perfpipe", group)

	indexes := make([]int, len(cols))
	for i, c := range cols {
		leaf, ok := sch.Lookup(c.Name)
		if !ok {
			return fmt.Errorf("column %q missing from parquet schema", c.Name)
		}

		indexes[i] = leaf.ColumnIndex
	}

	pw := parquet.NewWriter(w, sch,
		parquet.Compression(&parquet.Zstd),
		parquet.KeyValueMetadata(MetadataColumns, string(encodedMeta)),
	)

	for start := 0; start < t.NumRows(); start += rowBatch {
		end := min(start+rowBatch, t.NumRows())
		rows := make([]parquet.Row, 0, end-start)

		for i := start; i < end; i++ {
			row := make(parquet.Row, len(cols))

			for j, c := range cols {
				v, err := valueFor(c.Type, c.Values[i])
				if err != nil {
					return fmt.Errorf("column %q row %d: %w", c.Name, i, err)
				}

				def := 1
				if v.IsNull() {
					def = 0
				}

				row[indexes[j]] = v.Level(0, def, indexes[j])
			}

			rows = append(rows, row)
		}

		if _, err := pw.WriteRows(rows); err != nil {
			return fmt.Errorf("writing rows: %w", err)
		}
	}

	if err := pw.Close(); err != nil {
		return fmt.Errorf("closing parquet writer: %w", err)
	}

	return nil
}

func nodeFor(t schema.Type) (parquet.Node, error) {
	switch t {
	case schema.Int64:
		return parquet.Int(64), nil
	case schema.Float64:
		return parquet.Leaf(parquet.DoubleType), nil
	case schema.Text:
		return parquet.String(), nil
	case schema.Timestamp:
		return parquet.Timestamp(parquet.Millisecond), nil
	default:
		return nil, fmt.Errorf("%w: %s", schema.ErrUnsupportedType, t)
	}
}

func valueFor(t schema.Type, v any) (parquet.Value, error) {
	if v == nil {
		return parquet.NullValue(), nil
	}

	switch t {
	case schema.Int64:
		if x, ok := v.(int64); ok {
			return parquet.Int64Value(x), nil
		}
	case schema.Float64:
		if x, ok := v.(float64); ok {
			return parquet.DoubleValue(x), nil
		}
	case schema.Text:
		if x, ok := v.(string); ok {
			return parquet.ByteArrayValue([]byte(x)), nil
		}
	case schema.Timestamp:
		if x, ok := v.(time.Time); ok {
			return parquet.Int64Value(x.UnixMilli()), nil
		}
	}

	return parquet.Value{}, fmt.Errorf("unexpected %T for %s column", v, t)
}
