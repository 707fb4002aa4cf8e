// Package usheet reads and writes the .usheet JSON document format.
// Saving walks the workbook into a plain document shape; loading
// replays every cell through Sheet.Set, which rebuilds formulas and
// dependency edges while keeping the stored values verbatim. Loading
// never recalculates.
package usheet

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jacksodj/unicel-sub000/pkg/unicel"
	"github.com/jacksodj/unicel-sub000/pkg/unicel/sheet"
)

// FormatVersion is the newest document version this package writes.
const FormatVersion = 1

// Document is the on-disk shape of a workbook.
type Document struct {
	// Version is the document format version.
	Version int `json:"version"`
	// Workbook carries workbook identity.
	Workbook Header `json:"workbook"`
	// Sheets appear in workbook order.
	Sheets []SheetDoc `json:"sheets"`
}

// Header identifies the workbook a document was saved from.
type Header struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SheetDoc is one sheet's cells and name bindings.
type SheetDoc struct {
	Name string `json:"name"`
	// Names maps defined names to cell addresses.
	Names map[string]string `json:"names,omitempty"`
	// Cells maps A1-style addresses to cell documents. JSON encoding
	// sorts the keys, so saved bytes are deterministic.
	Cells map[string]CellDoc `json:"cells"`
}

// CellDoc is one cell. Exactly one of Value and Error is set for
// computed cells; both are absent for a formula cell that has never
// been recalculated.
type CellDoc struct {
	// Value is the stored number, in the storage unit.
	Value *float64 `json:"value,omitempty"`
	// Error is the stored error message of a failed formula.
	Error string `json:"error,omitempty"`
	// Unit is the storage unit exactly as the user wrote it.
	Unit string `json:"unit,omitempty"`
	// DisplayUnit overrides the unit used for rendering.
	DisplayUnit string `json:"display_unit,omitempty"`
	// Formula is the formula source text, if any.
	Formula string `json:"formula,omitempty"`
	// Warning carries a non-fatal note, e.g. from an Excel import.
	Warning string `json:"warning,omitempty"`
}

// FromWorkbook snapshots a workbook into its document shape.
func FromWorkbook(wb *unicel.Workbook) *Document {
	doc := &Document{
		Version:  FormatVersion,
		Workbook: Header{ID: wb.ID(), Name: wb.Name()},
	}
	for _, sh := range wb.Sheets() {
		sd := SheetDoc{
			Name:  sh.Name(),
			Cells: make(map[string]CellDoc, sh.Len()),
		}
		if names := sh.Names(); len(names) > 0 {
			sd.Names = make(map[string]string, len(names))
			for name, addr := range names {
				sd.Names[name] = addr.String()
			}
		}
		for _, addr := range sh.Addrs() {
			cell, _ := sh.Get(addr)
			sd.Cells[addr.String()] = cellDoc(cell)
		}
		doc.Sheets = append(doc.Sheets, sd)
	}
	return doc
}

func cellDoc(cell sheet.Cell) CellDoc {
	cd := CellDoc{
		Unit:    cell.StorageUnit.String(),
		Formula: cell.Formula,
		Warning: cell.Warning,
	}
	if cell.DisplayUnit != nil {
		cd.DisplayUnit = cell.DisplayUnit.String()
	}
	switch cell.Value.Kind {
	case sheet.ValueNumber:
		v := cell.Value.Number
		cd.Value = &v
	case sheet.ValueError:
		cd.Error = cell.Value.Message
	}
	return cd
}

// Encode serializes a workbook. With pretty set the JSON is indented
// for human-readable files.
func Encode(wb *unicel.Workbook, pretty bool) ([]byte, error) {
	doc := FromWorkbook(wb)
	if pretty {
		return json.MarshalIndent(doc, "", "  ")
	}
	return json.Marshal(doc)
}

// Decode rebuilds a workbook from document bytes. Options are applied
// before the saved id, so WithLibrary works and the saved id always
// wins.
func Decode(data []byte, opts ...unicel.Option) (*unicel.Workbook, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc.Build(opts...)
}

// Build constructs the workbook a document describes.
func (d *Document) Build(opts ...unicel.Option) (*unicel.Workbook, error) {
	if d.Version > FormatVersion {
		return nil, fmt.Errorf("unsupported document version %d", d.Version)
	}
	opts = append(opts, unicel.WithID(d.Workbook.ID))
	wb := unicel.New(d.Workbook.Name, opts...)

	for _, sd := range d.Sheets {
		sh, err := wb.AddSheet(sd.Name)
		if err != nil {
			return nil, err
		}
		for _, name := range sortedKeys(sd.Names) {
			addr, err := sheet.ParseAddr(sd.Names[name])
			if err != nil {
				return nil, fmt.Errorf("sheet %q name %q: %w", sd.Name, name, err)
			}
			if err := sh.DefineName(name, addr); err != nil {
				return nil, fmt.Errorf("sheet %q: %w", sd.Name, err)
			}
		}
		for _, ref := range sortedKeys(sd.Cells) {
			addr, err := sheet.ParseAddr(ref)
			if err != nil {
				return nil, fmt.Errorf("sheet %q: %w", sd.Name, err)
			}
			cell, err := buildCell(sh, sd.Cells[ref])
			if err != nil {
				return nil, fmt.Errorf("sheet %q cell %s: %w", sd.Name, ref, err)
			}
			if err := sh.Set(addr, cell); err != nil {
				return nil, fmt.Errorf("sheet %q cell %s: %w", sd.Name, ref, err)
			}
		}
	}
	return wb, nil
}

func buildCell(sh *sheet.Sheet, cd CellDoc) (sheet.Cell, error) {
	lib := sh.Library()
	unit, err := lib.ParseSymbol(cd.Unit)
	if err != nil {
		return sheet.Cell{}, err
	}
	cell := sheet.Cell{
		StorageUnit: unit,
		Formula:     cd.Formula,
		Warning:     cd.Warning,
	}
	if cd.DisplayUnit != "" {
		du, err := lib.ParseSymbol(cd.DisplayUnit)
		if err != nil {
			return sheet.Cell{}, err
		}
		cell.DisplayUnit = &du
	}
	switch {
	case cd.Error != "":
		cell.Value = sheet.ErrorValue(cd.Error)
	case cd.Value != nil:
		cell.Value = sheet.NumberValue(*cd.Value)
	default:
		cell.Value = sheet.EmptyValue()
	}
	return cell, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
