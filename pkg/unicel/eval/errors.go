package eval

import (
	"errors"
	"fmt"
)

// ErrIncompatibleUnits indicates an operation combined two values whose
// dimensions do not match.
var ErrIncompatibleUnits = errors.New("incompatible units")

// ErrDivisionByZero indicates a division or modulo by zero.
var ErrDivisionByZero = errors.New("division by zero")

// ErrCellNotFound indicates a formula referenced a missing or
// non-numeric cell.
var ErrCellNotFound = errors.New("cell not found")

// ErrNamedRefNotFound indicates a formula referenced an undefined name.
var ErrNamedRefNotFound = errors.New("named reference not found")

// ErrUnknownUnit indicates a unit literal that could not be parsed.
var ErrUnknownUnit = errors.New("unknown unit")

// ErrFunctionNotImplemented indicates a call to an unregistered function.
var ErrFunctionNotImplemented = errors.New("function not implemented")

// ErrInvalidOperation indicates a type or argument mismatch, such as
// arithmetic on text or a range used outside a function.
var ErrInvalidOperation = errors.New("invalid operation")

// EvalError represents a failure while evaluating a formula, carrying
// the operation and the operand descriptions involved.
type EvalError struct {
	Op    string
	Left  string
	Right string
	Err   error
}

func (e *EvalError) Error() string {
	switch {
	case e.Left != "" && e.Right != "":
		return fmt.Sprintf("%s: %v: %q vs %q", e.Op, e.Err, e.Left, e.Right)
	case e.Left != "":
		return fmt.Sprintf("%s: %v: %q", e.Op, e.Err, e.Left)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *EvalError) Unwrap() error {
	return e.Err
}

// NewEvalError creates a new EvalError.
func NewEvalError(op, left, right string, err error) *EvalError {
	return &EvalError{
		Op:    op,
		Left:  left,
		Right: right,
		Err:   err,
	}
}

func incompatible(op string, left, right fmt.Stringer) *EvalError {
	return NewEvalError(op, left.String(), right.String(), ErrIncompatibleUnits)
}
