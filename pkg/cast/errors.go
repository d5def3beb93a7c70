package cast

import (
	"fmt"
	"strings"
)

// SchemaMismatchError reports schema fields that are absent from a table.
// It carries the full expected and found column lists for diagnosis.
type SchemaMismatchError struct {
	Expected []string
	Found    []string
	Missing  []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf(
		"schema mismatch: %d missing column(s): %s",
		len(e.Missing), strings.Join(quote(e.Missing), ", "),
	)
}

// CastError reports a cell that could not be converted to its field's type.
type CastError struct {
	Field string
	Row   int
	Value any
	Err   error
}

func (e *CastError) Error() string {
	return fmt.Sprintf(
		"casting field %q row %d (value %v): %v", e.Field, e.Row, e.Value, e.Err,
	)
}

func (e *CastError) Unwrap() error {
	return e.Err
}

func quote(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = fmt.Sprintf("%q", n)
	}

	return out
}
