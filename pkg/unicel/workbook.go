// Package unicel implements a unit-aware spreadsheet engine. Cells hold
// numbers tagged with physical or financial units; formulas combine
// cells with automatic unit inference, conversion and cancellation. A
// Workbook groups sheets around one shared unit library.
package unicel

import (
	"fmt"

	"github.com/google/uuid"
	deepcopy "github.com/tiendc/go-deepcopy"

	"github.com/jacksodj/unicel-sub000/pkg/unicel/sheet"
	"github.com/jacksodj/unicel-sub000/pkg/unicel/units"
)

// Workbook is an ordered collection of sheets sharing one unit library.
// It is not safe for concurrent mutation; callers serialize access, the
// usual arrangement being one mutex around the whole workbook.
type Workbook struct {
	id     string
	name   string
	lib    *units.Library
	sheets []*sheet.Sheet
	index  map[string]*sheet.Sheet
}

// Option configures a new workbook.
type Option func(*Workbook)

// WithLibrary evaluates the workbook against a custom unit library,
// e.g. one built with units.WithCurrencyRates.
func WithLibrary(lib *units.Library) Option {
	return func(w *Workbook) {
		if lib != nil {
			w.lib = lib
		}
	}
}

// WithID restores a previously assigned workbook id, used when loading
// a saved document.
func WithID(id string) Option {
	return func(w *Workbook) {
		if id != "" {
			w.id = id
		}
	}
}

// New returns an empty workbook with a fresh id and the builtin unit
// library.
func New(name string, opts ...Option) *Workbook {
	w := &Workbook{
		id:    uuid.New().String(),
		name:  name,
		lib:   units.NewLibrary(),
		index: make(map[string]*sheet.Sheet),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// ID returns the workbook's stable identifier.
func (w *Workbook) ID() string {
	return w.id
}

// Name returns the workbook name.
func (w *Workbook) Name() string {
	return w.name
}

// SetName renames the workbook.
func (w *Workbook) SetName(name string) {
	w.name = name
}

// Library returns the shared unit library. It is immutable after
// construction and safe for concurrent reads.
func (w *Workbook) Library() *units.Library {
	return w.lib
}

// AddSheet appends a new empty sheet.
func (w *Workbook) AddSheet(name string) (*sheet.Sheet, error) {
	if _, ok := w.index[name]; ok {
		return nil, fmt.Errorf("%w: %q", ErrSheetExists, name)
	}
	sh := sheet.New(name, w.lib)
	w.sheets = append(w.sheets, sh)
	w.index[name] = sh
	return sh, nil
}

// Sheet looks a sheet up by name.
func (w *Workbook) Sheet(name string) (*sheet.Sheet, bool) {
	sh, ok := w.index[name]
	return sh, ok
}

// Sheets returns the sheets in insertion order.
func (w *Workbook) Sheets() []*sheet.Sheet {
	out := make([]*sheet.Sheet, len(w.sheets))
	copy(out, w.sheets)
	return out
}

// SheetNames returns the sheet names in insertion order.
func (w *Workbook) SheetNames() []string {
	out := make([]string, len(w.sheets))
	for i, sh := range w.sheets {
		out[i] = sh.Name()
	}
	return out
}

// RemoveSheet deletes a sheet and everything on it.
func (w *Workbook) RemoveSheet(name string) error {
	sh, ok := w.index[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrSheetNotFound, name)
	}
	delete(w.index, name)
	for i, candidate := range w.sheets {
		if candidate == sh {
			w.sheets = append(w.sheets[:i], w.sheets[i+1:]...)
			break
		}
	}
	return nil
}

// RenameSheet renames a sheet, preserving its position.
func (w *Workbook) RenameSheet(oldName, newName string) error {
	sh, ok := w.index[oldName]
	if !ok {
		return fmt.Errorf("%w: %q", ErrSheetNotFound, oldName)
	}
	if oldName == newName {
		return nil
	}
	if _, taken := w.index[newName]; taken {
		return fmt.Errorf("%w: %q", ErrSheetExists, newName)
	}
	delete(w.index, oldName)
	sh.Rename(newName)
	w.index[newName] = sh
	return nil
}

// SheetInfo summarizes one sheet for Describe.
type SheetInfo struct {
	Name  string `json:"name"`
	Cells int    `json:"cells"`
}

// Metadata describes a workbook without exposing cell contents.
type Metadata struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Sheets []SheetInfo `json:"sheets"`
}

// Describe returns workbook metadata.
func (w *Workbook) Describe() Metadata {
	meta := Metadata{ID: w.id, Name: w.name, Sheets: make([]SheetInfo, 0, len(w.sheets))}
	for _, sh := range w.sheets {
		meta.Sheets = append(meta.Sheets, SheetInfo{Name: sh.Name(), Cells: sh.Len()})
	}
	return meta
}

// Clone returns an independent copy of the workbook under a fresh id.
// Cell snapshots are deep-copied so display unit pointers and dimension
// terms never alias the original, then formulas are re-bound by
// replaying them through Set. The unit library is shared, being
// immutable.
func (w *Workbook) Clone() (*Workbook, error) {
	out := New(w.name, WithLibrary(w.lib))
	for _, sh := range w.sheets {
		dst, err := out.AddSheet(sh.Name())
		if err != nil {
			return nil, err
		}
		for name, addr := range sh.Names() {
			if err := dst.DefineName(name, addr); err != nil {
				return nil, err
			}
		}
		for _, addr := range sh.Addrs() {
			src, _ := sh.Get(addr)
			var cell sheet.Cell
			if err := deepcopy.Copy(&cell, &src); err != nil {
				return nil, fmt.Errorf("clone %s!%s: %w", sh.Name(), addr, err)
			}
			if err := dst.Set(addr, cell); err != nil {
				return nil, fmt.Errorf("clone %s!%s: %w", sh.Name(), addr, err)
			}
		}
	}
	return out, nil
}
