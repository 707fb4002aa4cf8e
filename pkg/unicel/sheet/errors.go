package sheet

import "errors"

// ErrCircularReference is returned by Set when storing the formula
// would create a dependency cycle. The sheet is left unchanged.
var ErrCircularReference = errors.New("circular reference")

// ErrInvalidAddress is returned when a string is not an A1-style cell
// address.
var ErrInvalidAddress = errors.New("invalid cell address")

// ErrInvalidRange is returned when a formula uses a range spanning more
// than one column.
var ErrInvalidRange = errors.New("invalid range")

// ErrInvalidName is returned by DefineName when the name cannot be
// referenced from a formula.
var ErrInvalidName = errors.New("invalid name")
