package sheet

import (
	"fmt"

	"github.com/jacksodj/unicel-sub000/pkg/unicel/eval"
	"github.com/jacksodj/unicel-sub000/pkg/unicel/formula"
	"github.com/jacksodj/unicel-sub000/pkg/unicel/units"
)

// Sheet is one spreadsheet tab: a sparse cell map plus the dependency
// graph that drives incremental recalculation. A sheet is not safe for
// concurrent mutation; callers serialize access.
type Sheet struct {
	name  string
	cells map[Addr]*Cell
	names map[string]Addr
	graph *DependencyGraph
	lib   *units.Library
	eval  *eval.Evaluator
}

// resolver adapts a Sheet to the evaluator's cell lookup interface.
type resolver struct {
	s *Sheet
}

// New returns an empty sheet evaluating against lib.
func New(name string, lib *units.Library) *Sheet {
	s := &Sheet{
		name:  name,
		cells: make(map[Addr]*Cell),
		names: make(map[string]Addr),
		graph: NewDependencyGraph(),
		lib:   lib,
	}
	s.eval = eval.New(lib, &resolver{s: s})
	return s
}

// Name returns the sheet name.
func (s *Sheet) Name() string {
	return s.name
}

// Rename changes the sheet name. The owning workbook keeps its index in
// sync.
func (s *Sheet) Rename(name string) {
	s.name = name
}

// Library returns the unit library the sheet evaluates against.
func (s *Sheet) Library() *units.Library {
	return s.lib
}

// Set stores a cell at addr. Formula cells are parsed, their references
// become dependency edges, and the edges are checked for cycles before
// anything is committed: on a parse error or a circular reference the
// sheet keeps its previous state and the error is returned.
func (s *Sheet) Set(addr Addr, cell Cell) error {
	if !cell.IsFormula() {
		s.graph.RemoveDependencies(addr)
		stored := cell
		stored.expr = nil
		s.cells[addr] = &stored
		return nil
	}

	expr, err := formula.Parse(cell.Formula)
	if err != nil {
		return err
	}
	deps, err := s.extractDeps(expr)
	if err != nil {
		return err
	}

	prev := s.graph.Dependencies(addr)
	s.graph.SetDependencies(addr, deps)
	if s.graph.HasCycleFrom(addr) {
		s.graph.SetDependencies(addr, prev)
		return fmt.Errorf("cannot set %s: %w", addr, ErrCircularReference)
	}

	stored := cell
	stored.expr = expr
	s.cells[addr] = &stored
	return nil
}

// SetValue stores a literal number tagged with the given unit symbol.
func (s *Sheet) SetValue(addr Addr, value float64, symbol string) error {
	u, err := s.lib.ParseSymbol(symbol)
	if err != nil {
		return err
	}
	return s.Set(addr, ValueCell(value, u))
}

// SetFormula stores a formula cell. The cell stays empty until the next
// recalculation.
func (s *Sheet) SetFormula(addr Addr, text string) error {
	return s.Set(addr, FormulaCell(text))
}

// Get returns a copy of the cell at addr.
func (s *Sheet) Get(addr Addr) (Cell, bool) {
	c, ok := s.cells[addr]
	if !ok {
		return Cell{}, false
	}
	return *c, true
}

// Remove deletes the cell at addr. Formulas that referenced it keep
// their edges and will error on the next recalculation.
func (s *Sheet) Remove(addr Addr) {
	delete(s.cells, addr)
	s.graph.RemoveDependencies(addr)
}

// Clear drops every cell, name and dependency edge.
func (s *Sheet) Clear() {
	s.cells = make(map[Addr]*Cell)
	s.names = make(map[string]Addr)
	s.graph = NewDependencyGraph()
}

// Len returns the number of stored cells.
func (s *Sheet) Len() int {
	return len(s.cells)
}

// Addrs returns every stored cell address in column-major order.
func (s *Sheet) Addrs() []Addr {
	set := make(map[Addr]struct{}, len(s.cells))
	for a := range s.cells {
		set[a] = struct{}{}
	}
	return sortedAddrs(set)
}

// Dependencies returns the cells addr's formula reads.
func (s *Sheet) Dependencies(addr Addr) []Addr {
	return s.graph.Dependencies(addr)
}

// Dependents returns the cells whose formulas read addr.
func (s *Sheet) Dependents(addr Addr) []Addr {
	return s.graph.Dependents(addr)
}

// DefineName binds a formula-referencable name to a cell address. Names
// start with a lowercase letter or underscore so the parser can tell
// them apart from cell references. Define names before the formulas
// that use them; dependency edges are extracted when a formula is set.
func (s *Sheet) DefineName(name string, addr Addr) error {
	if !validName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	s.names[name] = addr
	return nil
}

// NameAddr resolves a defined name to its address.
func (s *Sheet) NameAddr(name string) (Addr, bool) {
	a, ok := s.names[name]
	return a, ok
}

// Names returns a copy of the name bindings.
func (s *Sheet) Names() map[string]Addr {
	out := make(map[string]Addr, len(s.names))
	for k, v := range s.names {
		out[k] = v
	}
	return out
}

// Recalculate re-evaluates every formula cell affected by a change to
// the given cells, in dependency order. Evaluation failures are stored
// in the failing cell as an error value and the pass continues, so one
// bad formula cannot stall the rest of the batch. The re-evaluated
// addresses are returned in evaluation order.
func (s *Sheet) Recalculate(changed ...Addr) []Addr {
	order := s.graph.CalculationOrder(changed)
	var evaluated []Addr
	for _, addr := range order {
		cell, ok := s.cells[addr]
		if !ok || !cell.IsFormula() {
			continue
		}
		s.recalcCell(cell)
		evaluated = append(evaluated, addr)
	}
	return evaluated
}

// RecalculateAll re-evaluates every formula cell on the sheet, used
// after loading a document.
func (s *Sheet) RecalculateAll() []Addr {
	return s.Recalculate(s.Addrs()...)
}

func (s *Sheet) recalcCell(cell *Cell) {
	expr := cell.expr
	if expr == nil {
		parsed, err := formula.Parse(cell.Formula)
		if err != nil {
			cell.Value = ErrorValue(err.Error())
			return
		}
		cell.expr = parsed
		expr = parsed
	}
	v, err := s.eval.Eval(expr)
	if err != nil {
		cell.Value = ErrorValue(err.Error())
		return
	}
	switch v.Kind {
	case eval.KindNumber:
		cell.Value = NumberValue(v.Number)
		cell.StorageUnit = v.Unit
	case eval.KindBool:
		// Booleans are stored as 1 or 0, the spreadsheet convention.
		n := 0.0
		if v.Bool {
			n = 1
		}
		cell.Value = NumberValue(n)
		cell.StorageUnit = units.Dimensionless()
	case eval.KindString:
		cell.Value = ErrorValue("formula produced text, cells store numbers")
	default:
		cell.Value = EmptyValue()
	}
}

// EvaluateFormula evaluates text against the sheet's current cells
// without storing anything.
func (s *Sheet) EvaluateFormula(text string) (eval.Value, error) {
	expr, err := formula.Parse(text)
	if err != nil {
		return eval.Value{}, err
	}
	return s.eval.Eval(expr)
}

// extractDeps collects the cell addresses a formula reads: direct
// references, every cell of a range, and the targets of defined names.
func (s *Sheet) extractDeps(expr formula.Expr) ([]Addr, error) {
	var deps []Addr
	var walkErr error
	formula.Walk(expr, func(e formula.Expr) bool {
		switch n := e.(type) {
		case formula.CellRef:
			a, err := ParseAddr(n.Ref)
			if err != nil {
				walkErr = err
				return false
			}
			deps = append(deps, a)
		case formula.RangeRef:
			addrs, err := expandRange(n.Start, n.End)
			if err != nil {
				walkErr = err
				return false
			}
			deps = append(deps, addrs...)
		case formula.NamedRef:
			if a, ok := s.names[n.Name]; ok {
				deps = append(deps, a)
			}
		}
		return true
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return deps, nil
}

// expandRange lists the addresses of a single-column range, normalizing
// a reversed row order.
func expandRange(start, end string) ([]Addr, error) {
	a, err := ParseAddr(start)
	if err != nil {
		return nil, err
	}
	b, err := ParseAddr(end)
	if err != nil {
		return nil, err
	}
	if a.Col != b.Col {
		return nil, fmt.Errorf("%w: %s:%s spans multiple columns", ErrInvalidRange, start, end)
	}
	if b.Row < a.Row {
		a, b = b, a
	}
	out := make([]Addr, 0, b.Row-a.Row+1)
	for r := a.Row; r <= b.Row; r++ {
		out = append(out, Addr{Col: a.Col, Row: r})
	}
	return out, nil
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	c := name[0]
	if c != '_' && (c < 'a' || c > 'z') {
		return false
	}
	for i := 1; i < len(name); i++ {
		c := name[i]
		ok := c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
		if !ok {
			return false
		}
	}
	return true
}

// ResolveCell implements eval.CellResolver. Empty, missing and errored
// cells all fail the lookup so dependents surface their own error.
func (r *resolver) ResolveCell(ref string) (float64, units.Unit, error) {
	addr, err := ParseAddr(ref)
	if err != nil {
		return 0, units.Unit{}, eval.NewEvalError("reference", ref, "", eval.ErrCellNotFound)
	}
	cell, ok := r.s.cells[addr]
	if !ok || cell.Value.Kind != ValueNumber {
		return 0, units.Unit{}, eval.NewEvalError("reference", ref, "", eval.ErrCellNotFound)
	}
	return cell.Value.Number, cell.StorageUnit, nil
}

// ResolveRange implements eval.CellResolver. Empty cells are skipped;
// an errored cell anywhere in the range fails the whole resolution.
func (r *resolver) ResolveRange(start, end string) ([]eval.Value, error) {
	addrs, err := expandRange(start, end)
	if err != nil {
		return nil, eval.NewEvalError("range", start+":"+end, "", eval.ErrInvalidOperation)
	}
	var out []eval.Value
	for _, a := range addrs {
		cell, ok := r.s.cells[a]
		if !ok || cell.Value.Kind == ValueEmpty {
			continue
		}
		if cell.Value.Kind == ValueError {
			return nil, eval.NewEvalError("range", a.String(), "", eval.ErrCellNotFound)
		}
		out = append(out, eval.Num(cell.Value.Number, cell.StorageUnit))
	}
	return out, nil
}

// ResolveName implements eval.CellResolver.
func (r *resolver) ResolveName(name string) (float64, units.Unit, error) {
	addr, ok := r.s.names[name]
	if !ok {
		return 0, units.Unit{}, eval.NewEvalError("reference", name, "", eval.ErrNamedRefNotFound)
	}
	return r.ResolveCell(addr.String())
}
