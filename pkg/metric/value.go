// Package metric models hardware counter measurements that may be missing.
//
// A counter is either available with a numeric value or Unavailable. The two
// states are distinct from zero and from an error: counters are absent on
// many CPUs and a missing counter must not stop a trial from being recorded.
package metric

import (
	"math"
	"strconv"
	"strings"
)

// Sentinel is the textual form of an unavailable value. It is what the
// pipeline writes in shell output and raw rows; the schema cast turns it into
// a null for nullable fields.
const Sentinel = "NA"

// Value is a measurement that is either available or Unavailable.
type Value struct {
	num   float64
	text  string
	valid bool
}

// Unavailable is the value of a counter that could not be measured.
var Unavailable = Value{}

// Of returns an available value. Non-finite numbers are Unavailable.
func Of(x float64) Value {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return Unavailable
	}

	return Value{num: x, valid: true}
}

// Parse interprets raw counter text. The sentinel, empty text and anything
// that does not parse as a finite float are Unavailable. The original text is
// kept so integer counters can be cast without passing through a float.
func Parse(s string) Value {
	s = strings.TrimSpace(s)
	if s == "" || s == Sentinel {
		return Unavailable
	}

	x, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Unavailable
	}

	v := Of(x)
	if v.valid {
		v.text = s
	}

	return v
}

// Available reports whether the value was measured.
func (v Value) Available() bool {
	return v.valid
}

// Float returns the numeric value and whether it is available.
func (v Value) Float() (float64, bool) {
	return v.num, v.valid
}

// String returns the original text for parsed values, the shortest decimal
// representation for computed values and Sentinel when unavailable.
func (v Value) String() string {
	if !v.valid {
		return Sentinel
	}

	if v.text != "" {
		return v.text
	}

	return strconv.FormatFloat(v.num, 'f', -1, 64)
}
