package simplimath

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// ValueKind tags the dynamic type held by a Value.
type ValueKind int

const (
	KindInt ValueKind = iota
	KindFloat
	KindString
)

func (k ValueKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "str"
	}
	return "unknown"
}

// Value is a SimpliMath scalar: an integer, a float or a string.
type Value struct {
	Kind  ValueKind
	Int   int64
	Float float64
	Str   string
}

// IntValue wraps an integer.
func IntValue(i int64) Value { return Value{Kind: KindInt, Int: i} }

// FloatValue wraps a float.
func FloatValue(f float64) Value { return Value{Kind: KindFloat, Float: f} }

// StringValue wraps a string.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// IsNumeric reports whether the value is an Int or a Float.
func (v Value) IsNumeric() bool {
	return v.Kind == KindInt || v.Kind == KindFloat
}

// AsFloat returns the numeric value as float64. Strings yield 0.
func (v Value) AsFloat() float64 {
	switch v.Kind {
	case KindInt:
		return float64(v.Int)
	case KindFloat:
		return v.Float
	}
	return 0
}

// String renders the value the way output templates print it.
func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return formatFloat(v.Float)
	}
	return v.Str
}

// Equal compares kind and payload.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindInt:
		return v.Int == o.Int
	case KindFloat:
		return v.Float == o.Float || (math.IsNaN(v.Float) && math.IsNaN(o.Float))
	}
	return v.Str == o.Str
}

// formatFloat produces the shortest round-trip form, keeping a ".0" on
// integral values and switching to exponent form outside [1e-4, 1e16).
func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	abs := math.Abs(f)
	if f != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}

// Variables maps identifiers to values. It is owned by one interpreter.
type Variables map[string]Value

// Get looks up a variable.
func (vs Variables) Get(name string) (Value, bool) {
	v, ok := vs[name]
	return v, ok
}

// Set binds a variable.
func (vs Variables) Set(name string, v Value) {
	vs[name] = v
}

// parseInputValue converts a console answer: integers become Int,
// anything else is kept verbatim as a String. An integer answer outside
// the int64 range fails with ErrIntegerOverflow.
func parseInputValue(text string) (Value, error) {
	trimmed := strings.TrimSpace(text)
	i, err := strconv.ParseInt(trimmed, 10, 64)
	if err == nil {
		return IntValue(i), nil
	}
	if errors.Is(err, strconv.ErrRange) {
		return Value{}, NewSyntaxError("Integer input out of range: %s", trimmed).WithCause(ErrIntegerOverflow)
	}
	return StringValue(text), nil
}
