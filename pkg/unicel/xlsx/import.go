package xlsx

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/efp"
	"github.com/xuri/excelize/v2"

	"github.com/jacksodj/unicel-sub000/pkg/unicel"
	"github.com/jacksodj/unicel-sub000/pkg/unicel/eval"
	"github.com/jacksodj/unicel-sub000/pkg/unicel/formula"
	"github.com/jacksodj/unicel-sub000/pkg/unicel/sheet"
	"github.com/jacksodj/unicel-sub000/pkg/unicel/units"
)

// Import reads an xlsx file into a new workbook. Numeric cells keep
// their raw stored values; units are recovered from custom number
// formats written by Export. Formulas are tokenized and rewritten into
// the engine's dialect where possible, otherwise the cell keeps its
// computed value and gains a warning.
func Import(path string, opts ...unicel.Option) (*unicel.Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	base := filepath.Base(path)
	wb := unicel.New(strings.TrimSuffix(base, filepath.Ext(base)), opts...)

	for _, sheetName := range f.GetSheetList() {
		if _, err := wb.AddSheet(sheetName); err != nil {
			return nil, err
		}
	}
	// Names first: a formula's name edges are extracted when the cell
	// is set, and unknown names produce no edge.
	importNames(f, wb)
	for _, sheetName := range f.GetSheetList() {
		sh, _ := wb.Sheet(sheetName)
		if err := importSheet(f, sh, sheetName); err != nil {
			return nil, fmt.Errorf("sheet %q: %w", sheetName, err)
		}
	}
	return wb, nil
}

// importNames rebinds defined names to their sheets. Names that target
// another sheet than their scope, span ranges, or fail the engine's
// name grammar stay Excel-only.
func importNames(f *excelize.File, wb *unicel.Workbook) {
	for _, dn := range f.GetDefinedName() {
		sheetName, addr, ok := parseRefersTo(dn.RefersTo)
		if !ok {
			continue
		}
		target := dn.Scope
		if target == "" || target == "Workbook" {
			target = sheetName
		} else if target != sheetName {
			continue
		}
		sh, found := wb.Sheet(target)
		if !found {
			continue
		}
		_ = sh.DefineName(dn.Name, addr)
	}
}

// parseRefersTo splits a reference like Sheet1!$A$1 or 'My Sheet'!$B$2
// into its sheet name and address.
func parseRefersTo(ref string) (string, sheet.Addr, bool) {
	i := strings.LastIndex(ref, "!")
	if i < 0 {
		return "", sheet.Addr{}, false
	}
	name := ref[:i]
	if strings.HasPrefix(name, "'") && strings.HasSuffix(name, "'") && len(name) >= 2 {
		name = strings.ReplaceAll(name[1:len(name)-1], "''", "'")
	}
	addr, err := sheet.ParseAddr(strings.ReplaceAll(ref[i+1:], "$", ""))
	if err != nil {
		return "", sheet.Addr{}, false
	}
	return name, addr, true
}

func importSheet(f *excelize.File, sh *sheet.Sheet, sheetName string) error {
	rows, err := f.GetRows(sheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return err
	}
	for rowIdx, row := range rows {
		for colIdx, raw := range row {
			if raw == "" {
				continue
			}
			axis, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+1)
			if err != nil {
				return err
			}
			addr, err := sheet.ParseAddr(axis)
			if err != nil {
				return err
			}
			cell := importCell(f, sh.Library(), sheetName, axis, raw)
			if err := sh.Set(addr, cell); err != nil {
				// Cycles Excel tolerates under iterative calculation
				// have no engine equivalent; keep the value.
				fallback := cell
				fallback.Formula = ""
				fallback.Warning = fmt.Sprintf("formula %q dropped: %v", cell.Formula, err)
				if err := sh.Set(addr, fallback); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// importCell builds the engine cell for one xlsx cell: its value, the
// unit recovered from the number format, and the rewritten formula when
// one survives translation.
func importCell(f *excelize.File, lib *units.Library, sheetName, axis, raw string) sheet.Cell {
	cell := valueCell(f, lib, sheetName, axis, raw)

	fml, err := f.GetCellFormula(sheetName, axis)
	if err != nil || fml == "" {
		return cell
	}
	text, ok := rewriteFormula(fml)
	if !ok {
		cell.Warning = fmt.Sprintf("unsupported Excel formula %q imported as value", fml)
		return cell
	}
	cell.Formula = "=" + text
	return cell
}

func valueCell(f *excelize.File, lib *units.Library, sheetName, axis, raw string) sheet.Cell {
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return sheet.ValueCell(v, unitFromStyle(f, lib, sheetName, axis))
	}
	// Cells store numbers; text survives only as a note.
	return sheet.Cell{
		Value:   sheet.EmptyValue(),
		Warning: fmt.Sprintf("text cell %q not imported", truncate(raw, 60)),
	}
}

// unitFromStyle recovers a unit symbol from a custom number format of
// the shape Export writes: a trailing quoted literal such as
// `0.00" m"`, or a percent format.
func unitFromStyle(f *excelize.File, lib *units.Library, sheetName, axis string) units.Unit {
	styleID, err := f.GetCellStyle(sheetName, axis)
	if err != nil {
		return units.Dimensionless()
	}
	style, err := f.GetStyle(styleID)
	if err != nil || style == nil || style.CustomNumFmt == nil {
		return units.Dimensionless()
	}
	code := *style.CustomNumFmt
	if strings.HasSuffix(code, "%") {
		if u, err := lib.ParseSymbol(units.PercentSymbol); err == nil {
			return u
		}
		return units.Dimensionless()
	}
	parts := strings.Split(code, `"`)
	if len(parts) < 3 {
		return units.Dimensionless()
	}
	symbol := strings.TrimSpace(parts[len(parts)-2])
	u, err := lib.ParseSymbol(symbol)
	if err != nil {
		return units.Dimensionless()
	}
	return u
}

// rewriteFormula translates an Excel formula into the engine's dialect:
// absolute markers are stripped and names upper-cased. Cross-sheet
// references, the power and concatenation operators, array constructs
// and functions the engine lacks make the formula untranslatable.
func rewriteFormula(fml string) (string, bool) {
	ps := efp.ExcelParser()
	tokens := ps.Parse(fml)
	if len(tokens) == 0 {
		return "", false
	}

	var b strings.Builder
	for _, tok := range tokens {
		switch tok.TType {
		case efp.TokenTypeOperand:
			switch tok.TSubType {
			case efp.TokenSubTypeRange:
				ref := tok.TValue
				if strings.Contains(ref, "!") {
					return "", false
				}
				b.WriteString(strings.ReplaceAll(ref, "$", ""))
			case efp.TokenSubTypeNumber:
				b.WriteString(tok.TValue)
			case efp.TokenSubTypeText:
				b.WriteString(strconv.Quote(tok.TValue))
			case efp.TokenSubTypeLogical:
				b.WriteString(strings.ToUpper(tok.TValue))
			default:
				return "", false
			}
		case efp.TokenTypeFunction:
			if tok.TSubType == efp.TokenSubTypeStart {
				name := strings.ToUpper(tok.TValue)
				if !eval.SupportedFunction(name) {
					return "", false
				}
				b.WriteString(name)
				b.WriteString("(")
			} else {
				b.WriteString(")")
			}
		case efp.TokenTypeSubexpression:
			if tok.TSubType == efp.TokenSubTypeStart {
				b.WriteString("(")
			} else {
				b.WriteString(")")
			}
		case efp.TokenTypeArgument:
			b.WriteString(", ")
		case efp.TokenTypeOperatorPrefix:
			b.WriteString(tok.TValue)
		case efp.TokenTypeOperatorInfix:
			if tok.TValue == "^" || tok.TValue == "&" {
				return "", false
			}
			b.WriteString(" " + tok.TValue + " ")
		case efp.TokenTypeOperatorPostfix:
			b.WriteString(tok.TValue)
		case efp.TokenTypeWhitespace:
			b.WriteString(" ")
		default:
			return "", false
		}
	}

	out := strings.TrimSpace(b.String())
	if _, err := formula.Parse(out); err != nil {
		return "", false
	}
	return out, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
