package sheet

import (
	"strconv"

	"github.com/jacksodj/unicel-sub000/pkg/unicel/formula"
	"github.com/jacksodj/unicel-sub000/pkg/unicel/units"
)

// ValueKind discriminates the states a cell value can be in.
type ValueKind uint8

const (
	// ValueEmpty marks a cell with no computed value yet: either a
	// blank cell or a formula cell that has not been recalculated.
	ValueEmpty ValueKind = iota
	// ValueNumber marks a cell holding a number in its storage unit.
	ValueNumber
	// ValueError marks a cell whose formula failed; Message holds the
	// evaluator's error text.
	ValueError
)

// CellValue is the computed content of a cell.
type CellValue struct {
	Kind    ValueKind
	Number  float64
	Message string
}

// NumberValue returns a numeric cell value.
func NumberValue(v float64) CellValue {
	return CellValue{Kind: ValueNumber, Number: v}
}

// ErrorValue returns an errored cell value carrying msg.
func ErrorValue(msg string) CellValue {
	return CellValue{Kind: ValueError, Message: msg}
}

// EmptyValue returns the empty cell value.
func EmptyValue() CellValue {
	return CellValue{Kind: ValueEmpty}
}

func (v CellValue) String() string {
	switch v.Kind {
	case ValueNumber:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case ValueError:
		return "#ERROR: " + v.Message
	default:
		return ""
	}
}

// Cell is one spreadsheet cell. Values always live in StorageUnit; a
// non-nil DisplayUnit only affects rendering, never the stored number.
// Formula, when set, is the source text without a leading equals sign.
type Cell struct {
	Value       CellValue
	StorageUnit units.Unit
	DisplayUnit *units.Unit
	Formula     string
	Warning     string

	// expr caches the parsed formula so recalculation does not reparse.
	// Populated by Sheet.Set.
	expr formula.Expr
}

// ValueCell builds a literal numeric cell.
func ValueCell(value float64, unit units.Unit) Cell {
	return Cell{Value: NumberValue(value), StorageUnit: unit}
}

// FormulaCell builds a formula cell. It starts empty and receives a
// value on the next recalculation.
func FormulaCell(text string) Cell {
	return Cell{Value: EmptyValue(), Formula: text}
}

// IsFormula reports whether the cell is driven by a formula.
func (c *Cell) IsFormula() bool {
	return c.Formula != ""
}

// DisplayIn returns the unit the cell should be rendered in.
func (c *Cell) DisplayIn() units.Unit {
	if c.DisplayUnit != nil {
		return *c.DisplayUnit
	}
	return c.StorageUnit
}
