// Package eval walks formula ASTs and performs dimensionally-consistent
// arithmetic: finer-unit alignment for addition and subtraction,
// symbol-level cancellation with cross-scale conversion for
// multiplication and division, and a registry of built-in functions.
package eval

import (
	"strconv"

	"github.com/jacksodj/unicel-sub000/pkg/unicel/units"
)

// Kind discriminates evaluation results.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindNumber
	KindString
	KindBool
)

// Value is the result of evaluating an expression: a quantity (number
// plus unit), a string, a boolean, or empty.
type Value struct {
	Kind   Kind
	Number float64
	Unit   units.Unit
	Str    string
	Bool   bool
}

// Empty returns the empty value.
func Empty() Value {
	return Value{Kind: KindEmpty}
}

// Num returns a numeric value carrying the given unit.
func Num(v float64, u units.Unit) Value {
	return Value{Kind: KindNumber, Number: v, Unit: u}
}

// Plain returns a dimensionless numeric value.
func Plain(v float64) Value {
	return Num(v, units.Dimensionless())
}

// Str returns a string value.
func Str(s string) Value {
	return Value{Kind: KindString, Str: s}
}

// Bool returns a boolean value.
func Bool(b bool) Value {
	return Value{Kind: KindBool, Bool: b}
}

// IsNumber reports whether the value is a quantity.
func (v Value) IsNumber() bool {
	return v.Kind == KindNumber
}

// Truthy interprets the value as a condition: booleans are themselves,
// numbers are true when nonzero, empty is false. Strings are not
// conditions.
func (v Value) Truthy() (bool, error) {
	switch v.Kind {
	case KindBool:
		return v.Bool, nil
	case KindNumber:
		return v.Number != 0, nil
	case KindEmpty:
		return false, nil
	default:
		return false, NewEvalError("condition", v.Format(), "", ErrInvalidOperation)
	}
}

// Format renders the value for display and string concatenation.
// Percent quantities show their face value ("10%" for a stored 0.1).
func (v Value) Format() string {
	switch v.Kind {
	case KindNumber:
		if v.Unit.IsPercent() {
			return strconv.FormatFloat(v.Number*100, 'f', -1, 64) + "%"
		}
		s := strconv.FormatFloat(v.Number, 'f', -1, 64)
		if u := v.Unit.String(); u != "" {
			return s + " " + u
		}
		return s
	case KindString:
		return v.Str
	case KindBool:
		if v.Bool {
			return "TRUE"
		}
		return "FALSE"
	default:
		return ""
	}
}
