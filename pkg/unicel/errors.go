package unicel

import "errors"

// ErrSheetExists is returned when adding or renaming a sheet would
// collide with an existing sheet name.
var ErrSheetExists = errors.New("sheet already exists")

// ErrSheetNotFound is returned when a workbook operation names an
// unknown sheet.
var ErrSheetNotFound = errors.New("sheet not found")
