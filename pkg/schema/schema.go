package schema

import (
	"errors"
	"fmt"
)

// Type is the semantic type of a field. The set is closed: any value outside
// the declared constants is rejected when a Schema is constructed.
type Type uint8

const (
	// Int64 is a 64-bit signed integer.
	Int64 Type = iota + 1
	// Float64 is a 64-bit IEEE 754 floating-point number.
	Float64
	// Text is a UTF-8 string.
	Text
	// Timestamp is a point in time with millisecond resolution.
	Timestamp
)

// ErrUnsupportedType is returned when a field declares a type outside the
// closed set above.
var ErrUnsupportedType = errors.New("unsupported semantic type")

// String returns the type name.
func (t Type) String() string {
	switch t {
	case Int64:
		return "int64"
	case Float64:
		return "float64"
	case Text:
		return "text"
	case Timestamp:
		return "timestamp[ms]"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Valid reports whether t is one of the declared types.
func (t Type) Valid() bool {
	return t >= Int64 && t <= Timestamp
}

// ParseType is the inverse of Type.String.
func ParseType(s string) (Type, error) {
	switch s {
	case "int64":
		return Int64, nil
	case "float64":
		return Float64, nil
	case "text":
		return Text, nil
	case "timestamp[ms]":
		return Timestamp, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedType, s)
	}
}

// Field is a single named, typed column of the schema.
type Field struct {
	Name     string
	Type     Type
	Nullable bool
}

// Schema is an ordered, immutable set of fields. Construct it with New; the
// zero value is an empty schema.
type Schema struct {
	fields []Field
	index  map[string]int
}

// New validates fields and builds a Schema. Field names must be non-empty and
// unique and every type must be one of the declared constants.
func New(fields ...Field) (*Schema, error) {
	s := &Schema{
		fields: make([]Field, 0, len(fields)),
		index:  make(map[string]int, len(fields)),
	}

	for i, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("field %d: name is required", i)
		}

		if _, exists := s.index[f.Name]; exists {
			return nil, fmt.Errorf("field %d: duplicate name %q", i, f.Name)
		}

		if !f.Type.Valid() {
			return nil, fmt.Errorf("field %q: %w: %s", f.Name, ErrUnsupportedType, f.Type)
		}

		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}

	return s, nil
}

// MustNew is like New but panics on error. It is meant for package-level
// schemas that are known to be valid.
func MustNew(fields ...Field) *Schema {
	s, err := New(fields...)
	if err != nil {
		panic(err)
	}

	return s
}

// Len returns the number of fields.
func (s *Schema) Len() int {
	return len(s.fields)
}

// Fields returns a copy of the fields in declaration order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)

	return out
}

// Names returns the field names in declaration order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}

	return names
}

// Lookup returns the field with the given name.
func (s *Schema) Lookup(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}

	return s.fields[i], true
}

// Has reports whether the schema declares a field with the given name.
func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]

	return ok
}
