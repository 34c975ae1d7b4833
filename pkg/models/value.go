package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValueKind identifies the literal type carried by a Value
type ValueKind int

const (
	KindInvalid ValueKind = iota
	KindInt
	KindFloat
	KindString
	KindBool
)

func (k ValueKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	default:
		return "invalid"
	}
}

// ParseValueKind is the inverse of ValueKind.String
func ParseValueKind(s string) (ValueKind, error) {
	switch s {
	case "int":
		return KindInt, nil
	case "float":
		return KindFloat, nil
	case "string":
		return KindString, nil
	case "bool":
		return KindBool, nil
	default:
		return KindInvalid, fmt.Errorf("unknown value kind %q", s)
	}
}

// Value is one concrete hyper-parameter value.
// The zero Value is invalid.
type Value struct {
	kind ValueKind
	i    int64
	f    float64
	s    string
	b    bool
}

// IntValue creates an integer value
func IntValue(v int64) Value { return Value{kind: KindInt, i: v} }

// FloatValue creates a floating point value
func FloatValue(v float64) Value { return Value{kind: KindFloat, f: v} }

// StringValue creates a string value
func StringValue(v string) Value { return Value{kind: KindString, s: v} }

// BoolValue creates a boolean value
func BoolValue(v bool) Value { return Value{kind: KindBool, b: v} }

// ParseValue converts text into the most specific value kind: int, then
// float, then bool, falling back to string.
func ParseValue(text string) Value {
	text = strings.TrimSpace(text)
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return IntValue(i)
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return FloatValue(f)
	}
	switch text {
	case "true":
		return BoolValue(true)
	case "false":
		return BoolValue(false)
	}
	return StringValue(text)
}

// ParseTypedValue parses text as the given kind
func ParseTypedValue(kind ValueKind, text string) (Value, error) {
	switch kind {
	case KindInt:
		i, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("invalid int %q: %w", text, err)
		}
		return IntValue(i), nil
	case KindFloat:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Value{}, fmt.Errorf("invalid float %q: %w", text, err)
		}
		return FloatValue(f), nil
	case KindBool:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return Value{}, fmt.Errorf("invalid bool %q: %w", text, err)
		}
		return BoolValue(b), nil
	case KindString:
		return StringValue(text), nil
	default:
		return Value{}, fmt.Errorf("invalid value kind %v", kind)
	}
}

func (v Value) Kind() ValueKind { return v.kind }

// IsValid reports whether the value was constructed
func (v Value) IsValid() bool { return v.kind != KindInvalid }

// IsNumeric reports whether the value is an int or a float
func (v Value) IsNumeric() bool { return v.kind == KindInt || v.kind == KindFloat }

// AsInt returns the value as an integer. Floats are accepted only when integral.
func (v Value) AsInt() (int64, error) {
	switch v.kind {
	case KindInt:
		return v.i, nil
	case KindFloat:
		if v.f == math.Trunc(v.f) && !math.IsInf(v.f, 0) {
			return int64(v.f), nil
		}
		return 0, fmt.Errorf("value %s is not integral", v)
	case KindString:
		i, err := strconv.ParseInt(v.s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value %q is not an integer", v.s)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("value of kind %s is not an integer", v.kind)
	}
}

// AsFloat returns the value as a float
func (v Value) AsFloat() (float64, error) {
	switch v.kind {
	case KindInt:
		return float64(v.i), nil
	case KindFloat:
		return v.f, nil
	case KindString:
		f, err := strconv.ParseFloat(v.s, 64)
		if err != nil {
			return 0, fmt.Errorf("value %q is not a number", v.s)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("value of kind %s is not a number", v.kind)
	}
}

// Interface returns the underlying Go value
func (v Value) Interface() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindBool:
		return v.b
	default:
		return nil
	}
}

// Equal compares kind and payload
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case KindString:
		return v.s == o.s
	case KindBool:
		return v.b == o.b
	default:
		return true
	}
}

// String returns the canonical text form. Floats always carry a decimal
// point or exponent so that ParseValue restores the float kind.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		s := strconv.FormatFloat(v.f, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEIN") {
			s += ".0"
		}
		return s
	case KindString:
		return v.s
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return "<invalid>"
	}
}
