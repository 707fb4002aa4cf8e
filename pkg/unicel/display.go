package unicel

import (
	"fmt"
	"strconv"

	"github.com/jacksodj/unicel-sub000/pkg/unicel/sheet"
	"github.com/jacksodj/unicel-sub000/pkg/unicel/units"
)

// DisplayMode selects the family of units values are presented in.
type DisplayMode string

const (
	// ModeAsStored renders every cell in its storage unit.
	ModeAsStored DisplayMode = "as-stored"
	// ModeMetric prefers metric symbols per dimension.
	ModeMetric DisplayMode = "metric"
	// ModeImperial prefers imperial symbols per dimension.
	ModeImperial DisplayMode = "imperial"
)

// DisplayOptions configures cell rendering. Rendering is
// non-destructive: conversion happens on a copy and the stored cell
// keeps its value and storage unit.
type DisplayOptions struct {
	// Mode selects the default symbol per dimension.
	Mode DisplayMode
	// Preferred maps a dimension name ("Length", "Mass", ...) to the
	// symbol to display it in, overriding the mode's default.
	Preferred map[string]string
	// Precision rounds displayed numbers to this many decimal places.
	// If nil, numbers render at full precision.
	Precision *int
}

// DefaultDisplayOptions renders cells in their storage units at full
// precision.
func DefaultDisplayOptions() DisplayOptions {
	return DisplayOptions{Mode: ModeAsStored}
}

var metricDefaults = map[string]string{
	"Length":      "m",
	"Mass":        "kg",
	"Temperature": "C",
}

var imperialDefaults = map[string]string{
	"Length":      "ft",
	"Mass":        "lb",
	"Temperature": "F",
}

// PreferredSymbol returns the display symbol for a dimension name, if
// any: an explicit Preferred entry wins, then the mode's default table.
func (o DisplayOptions) PreferredSymbol(dim string) (string, bool) {
	if sym, ok := o.Preferred[dim]; ok {
		return sym, true
	}
	switch o.Mode {
	case ModeMetric:
		sym, ok := metricDefaults[dim]
		return sym, ok
	case ModeImperial:
		sym, ok := imperialDefaults[dim]
		return sym, ok
	}
	return "", false
}

// DisplayedCell is a cell prepared for presentation.
type DisplayedCell struct {
	Empty     bool
	IsError   bool
	Message   string
	Value     float64
	Unit      units.Unit
	Formatted string
	Warning   string
}

// DisplayCell renders the cell at addr on the named sheet.
func (w *Workbook) DisplayCell(sheetName string, addr sheet.Addr, opts DisplayOptions) (DisplayedCell, error) {
	sh, ok := w.Sheet(sheetName)
	if !ok {
		return DisplayedCell{}, fmt.Errorf("%w: %q", ErrSheetNotFound, sheetName)
	}
	cell, ok := sh.Get(addr)
	if !ok {
		return DisplayedCell{Empty: true}, nil
	}
	return RenderCell(w.lib, cell, opts), nil
}

// RenderCell converts a cell snapshot into its display unit and formats
// the number. The cell's own display unit wins over the options; a
// preferred unit is only applied when it is compatible with the storage
// unit, otherwise the storage unit is kept.
func RenderCell(lib *units.Library, cell sheet.Cell, opts DisplayOptions) DisplayedCell {
	out := DisplayedCell{Warning: cell.Warning}
	switch cell.Value.Kind {
	case sheet.ValueEmpty:
		out.Empty = true
		return out
	case sheet.ValueError:
		out.IsError = true
		out.Message = cell.Value.Message
		out.Formatted = cell.Value.String()
		return out
	}

	value, unit := cell.Value.Number, cell.StorageUnit
	if target, ok := displayTarget(lib, cell, opts); ok && target.Canonical != unit.Canonical {
		if converted, convOK := lib.Convert(value, unit.Canonical, target.Canonical); convOK {
			value, unit = converted, target
		}
	}
	out.Value = value
	out.Unit = unit
	out.Formatted = FormatNumber(value, unit, opts.Precision)
	return out
}

func displayTarget(lib *units.Library, cell sheet.Cell, opts DisplayOptions) (units.Unit, bool) {
	if cell.DisplayUnit != nil {
		return *cell.DisplayUnit, true
	}
	u := cell.StorageUnit
	// Mode preferences address single-dimension units; compound units
	// like USD/hr stay as stored.
	if u.Dimension.Kind != units.KindSimple {
		return units.Unit{}, false
	}
	sym, ok := opts.PreferredSymbol(u.Dimension.Base.String())
	if !ok {
		return units.Unit{}, false
	}
	target, err := lib.ParseSymbol(sym)
	if err != nil || !target.Compatible(u) {
		return units.Unit{}, false
	}
	return target, true
}

// FormatNumber renders a value in a unit. Percent values display their
// face value, so 0.1 tagged "%" renders as "10%".
func FormatNumber(v float64, u units.Unit, precision *int) string {
	digits := -1
	if precision != nil {
		digits = *precision
	}
	if u.IsPercent() {
		return strconv.FormatFloat(v*100, 'f', digits, 64) + "%"
	}
	s := strconv.FormatFloat(v, 'f', digits, 64)
	if suffix := u.String(); suffix != "" {
		s += " " + suffix
	}
	return s
}
