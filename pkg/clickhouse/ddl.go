// Package clickhouse projects the benchmark schema into ClickHouse and loads
// stored rows into it.
package clickhouse

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethpandaops/perfpipe/pkg/schema"
)

var (
	// ErrUnsupportedType is returned for a schema type with no column type
	// mapping. There is no fallback type.
	ErrUnsupportedType = errors.New("unsupported column type")

	// ErrMissingOrderKey is returned when the schema lacks a field of the
	// table's ordering key.
	ErrMissingOrderKey = errors.New("schema lacks ordering key field")
)

// OrderKey is the MergeTree sorting key of benchmark tables.
var OrderKey = []string{schema.FieldMethod, schema.FieldTimestamp}

// ColumnType maps a schema type to its ClickHouse column type.
func ColumnType(t schema.Type, nullable bool) (string, error) {
	var base string

	switch t {
	case schema.Int64:
		base = "Int64"
	case schema.Float64:
		base = "Float64"
	case schema.Text:
		base = "String"
	case schema.Timestamp:
		base = "DateTime64(3)"
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}

	if nullable {
		return "Nullable(" + base + ")", nil
	}

	return base, nil
}

// CreateTable renders the CREATE TABLE statement for s. Columns follow the
// schema declaration order, so the output is byte-identical for equal
// schemas.
func CreateTable(s *schema.Schema, database, table string) (string, error) {
	for _, key := range OrderKey {
		if !s.Has(key) {
			return "", fmt.Errorf("%w: %q", ErrMissingOrderKey, key)
		}
	}

	lines := make([]string, 0, s.Len())

	for _, f := range s.Fields() {
		typ, err := ColumnType(f.Type, f.Nullable)
		if err != nil {
			return "", fmt.Errorf("field %q: %w", f.Name, err)
		}

		lines = append(lines, fmt.Sprintf("    `%s` %s", f.Name, typ))
	}

	var b strings.Builder

	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", qualified(database, table))
	b.WriteString(strings.Join(lines, ",\n"))
	b.WriteString("\n) ENGINE = MergeTree()\n")
	fmt.Fprintf(&b, "ORDER BY (%s);", strings.Join(OrderKey, ", "))

	return b.String(), nil
}

// CreateDatabase renders the CREATE DATABASE statement.
func CreateDatabase(database string) string {
	return "CREATE DATABASE IF NOT EXISTS " + database
}

func qualified(database, table string) string {
	if database == "" {
		return table
	}

	return database + "." + table
}
