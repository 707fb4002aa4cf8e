// Package xlsx exchanges workbooks with Excel files. Export writes one
// xlsx sheet per workbook sheet, applying display conversion to the
// written numbers and rendering units as custom number formats. Import
// recovers values, units from those formats, and every formula Excel
// and the engine can both express; anything else falls back to the
// cell's value plus a warning.
package xlsx

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/jacksodj/unicel-sub000/pkg/unicel"
	"github.com/jacksodj/unicel-sub000/pkg/unicel/eval"
	"github.com/jacksodj/unicel-sub000/pkg/unicel/formula"
	"github.com/jacksodj/unicel-sub000/pkg/unicel/sheet"
	"github.com/jacksodj/unicel-sub000/pkg/unicel/units"
)

// Export writes the workbook to path as an xlsx file. Written numbers
// go through display conversion; the stored workbook is untouched.
func Export(wb *unicel.Workbook, path string, opts unicel.DisplayOptions) error {
	f := excelize.NewFile()
	defer f.Close()

	lib := wb.Library()
	for i, sh := range wb.Sheets() {
		name := sh.Name()
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return fmt.Errorf("rename sheet %q: %w", name, err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("add sheet %q: %w", name, err)
		}
		if err := exportSheet(f, lib, sh, opts); err != nil {
			return fmt.Errorf("sheet %q: %w", name, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func exportSheet(f *excelize.File, lib *units.Library, sh *sheet.Sheet, opts unicel.DisplayOptions) error {
	name := sh.Name()
	names := excelNames(sh)
	for _, addr := range sh.Addrs() {
		cell, _ := sh.Get(addr)
		axis := addr.String()

		switch cell.Value.Kind {
		case sheet.ValueError:
			if err := f.SetCellValue(name, axis, cell.Value.String()); err != nil {
				return err
			}
		case sheet.ValueNumber:
			rendered := unicel.RenderCell(lib, cell, opts)
			if err := f.SetCellValue(name, axis, rendered.Value); err != nil {
				return err
			}
			if code := numberFormat(rendered.Unit, opts.Precision); code != "" {
				styleID, err := f.NewStyle(&excelize.Style{CustomNumFmt: &code})
				if err != nil {
					return err
				}
				if err := f.SetCellStyle(name, axis, axis, styleID); err != nil {
					return err
				}
			}
		}

		if cell.IsFormula() {
			if excelText, ok := toExcelFormula(cell.Formula, names); ok {
				if err := f.SetCellFormula(name, axis, excelText); err != nil {
					return err
				}
			}
		}
	}
	return exportNames(f, name, names)
}

// exportNames writes the sheet's defined names as sheet-scoped Excel
// names so exported formulas can keep referencing them.
func exportNames(f *excelize.File, sheetName string, names map[string]sheet.Addr) error {
	keys := make([]string, 0, len(names))
	for name := range names {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	for _, name := range keys {
		target := names[name]
		dn := excelize.DefinedName{
			Name:     name,
			RefersTo: refersTo(sheetName, target),
			Scope:    sheetName,
		}
		if err := f.SetDefinedName(&dn); err != nil {
			return fmt.Errorf("define name %q: %w", name, err)
		}
	}
	return nil
}

// excelNames returns the defined names that survive export. A name like
// abc1 is valid here but reads as a cell reference in Excel, so it
// stays engine-only together with the formulas that use it.
func excelNames(sh *sheet.Sheet) map[string]sheet.Addr {
	names := sh.Names()
	for name := range names {
		if looksLikeCellRef(name) {
			delete(names, name)
		}
	}
	return names
}

// looksLikeCellRef matches up to three lowercase letters followed by
// digits, the case-folded shape of an A1-style reference. Columns stop
// at XFD, so four letters and more are safe.
func looksLikeCellRef(name string) bool {
	i := 0
	for i < len(name) && name[i] >= 'a' && name[i] <= 'z' {
		i++
	}
	if i == 0 || i > 3 || i == len(name) {
		return false
	}
	for j := i; j < len(name); j++ {
		if name[j] < '0' || name[j] > '9' {
			return false
		}
	}
	return true
}

func refersTo(sheetName string, addr sheet.Addr) string {
	quoted := sheetName
	if strings.ContainsAny(sheetName, " '") {
		quoted = "'" + strings.ReplaceAll(sheetName, "'", "''") + "'"
	}
	return quoted + "!$" + addr.Col + "$" + strconv.Itoa(addr.Row)
}

// numberFormat builds a custom number format rendering the unit as a
// literal suffix, e.g. `0.00" m"`. Percent units use Excel's native
// percent format, which matches the engine's convention of storing the
// scaled value.
func numberFormat(u units.Unit, precision *int) string {
	digits := "0.############"
	if precision != nil {
		if *precision <= 0 {
			digits = "0"
		} else {
			digits = "0." + strings.Repeat("0", *precision)
		}
	}
	if u.IsPercent() {
		return digits + "%"
	}
	suffix := u.String()
	if suffix == "" {
		return ""
	}
	return digits + `" ` + suffix + `"`
}

// toExcelFormula reports whether a formula survives translation to
// Excel and returns the translated text. Unit-tagged literals, named
// references outside the exported name set and functions Excel lacks
// have no Excel equivalent, so those formulas are exported as plain
// values.
func toExcelFormula(text string, names map[string]sheet.Addr) (string, bool) {
	expr, err := formula.Parse(text)
	if err != nil {
		return "", false
	}
	ok := true
	formula.Walk(expr, func(e formula.Expr) bool {
		switch n := e.(type) {
		case formula.Number:
			if n.Unit != "" && n.Unit != units.PercentSymbol {
				ok = false
				return false
			}
		case formula.NamedRef:
			if _, exported := names[n.Name]; !exported {
				ok = false
				return false
			}
		case formula.Call:
			if !excelFunction(n.Name) {
				ok = false
				return false
			}
		}
		return true
	})
	if !ok {
		return "", false
	}
	return expr.String(), true
}

// excelFunction reports whether Excel understands a call name the same
// way the engine does. CONVERT and PERCENT are engine-specific: Excel's
// CONVERT speaks a different unit vocabulary.
func excelFunction(name string) bool {
	switch name {
	case "CONVERT", "PERCENT":
		return false
	}
	if !eval.SupportedFunction(name) {
		return false
	}
	switch name {
	case "EQ", "NE", "GT", "GTE", "LT", "LTE":
		return false
	}
	return true
}
