package eval

import (
	"fmt"
	"math"
	"sort"

	"github.com/jacksodj/unicel-sub000/pkg/unicel/formula"
	"github.com/jacksodj/unicel-sub000/pkg/unicel/units"
)

// CellResolver supplies cell state during cell-aware evaluation.
// ResolveCell and ResolveName fail with ErrCellNotFound or
// ErrNamedRefNotFound when the target is missing or non-numeric.
// ResolveRange returns the values of the non-empty cells of a
// single-column range in row order; an errored cell in the range fails
// the whole resolution.
type CellResolver interface {
	ResolveCell(ref string) (float64, units.Unit, error)
	ResolveRange(start, end string) ([]Value, error)
	ResolveName(name string) (float64, units.Unit, error)
}

// Evaluator walks formula ASTs against a unit library and an optional
// cell resolver. It carries no per-evaluation state and may be reused
// across calls.
type Evaluator struct {
	lib   *units.Library
	cells CellResolver
	funcs map[string]Function
}

// New returns an evaluator. A nil resolver supports standalone
// evaluation: cell, range and named references then fail with the
// corresponding not-found error.
func New(lib *units.Library, cells CellResolver) *Evaluator {
	return &Evaluator{lib: lib, cells: cells, funcs: builtinFunctions()}
}

// Library returns the evaluator's unit library.
func (e *Evaluator) Library() *units.Library {
	return e.lib
}

// Eval evaluates an expression to a value.
func (e *Evaluator) Eval(expr formula.Expr) (Value, error) {
	switch n := expr.(type) {
	case formula.Number:
		return e.evalNumber(n)
	case formula.StringLit:
		return Str(n.Value), nil
	case formula.BoolLit:
		return Bool(n.Value), nil
	case formula.CellRef:
		return e.evalCellRef(n.Ref)
	case formula.NamedRef:
		return e.evalNamedRef(n.Name)
	case formula.RangeRef:
		return Value{}, NewEvalError("range", n.String(), "", ErrInvalidOperation)
	case formula.Unary:
		return e.evalUnary(n)
	case formula.Binary:
		return e.evalBinary(n)
	case formula.And:
		return e.evalLogical("AND", n.Args, true)
	case formula.Or:
		return e.evalLogical("OR", n.Args, false)
	case formula.Not:
		v, err := e.Eval(n.X)
		if err != nil {
			return Value{}, err
		}
		truth, err := v.Truthy()
		if err != nil {
			return Value{}, err
		}
		return Bool(!truth), nil
	case formula.Call:
		return e.evalCall(n)
	}
	return Value{}, NewEvalError("eval", fmt.Sprintf("%T", expr), "", ErrInvalidOperation)
}

func (e *Evaluator) evalNumber(n formula.Number) (Value, error) {
	if n.Unit == "" {
		return Plain(n.Value), nil
	}
	u, err := e.lib.ParseSymbol(n.Unit)
	if err != nil {
		return Value{}, NewEvalError("literal", n.Unit, "", ErrUnknownUnit)
	}
	if u.IsPercent() {
		// 10% is stored as 0.1 tagged with "%".
		return Num(n.Value/100, u), nil
	}
	return Num(n.Value, u), nil
}

func (e *Evaluator) evalCellRef(ref string) (Value, error) {
	if e.cells == nil {
		return Value{}, NewEvalError("reference", ref, "", ErrCellNotFound)
	}
	v, u, err := e.cells.ResolveCell(ref)
	if err != nil {
		return Value{}, err
	}
	return Num(v, u), nil
}

func (e *Evaluator) evalNamedRef(name string) (Value, error) {
	if e.cells == nil {
		return Value{}, NewEvalError("reference", name, "", ErrNamedRefNotFound)
	}
	v, u, err := e.cells.ResolveName(name)
	if err != nil {
		return Value{}, err
	}
	return Num(v, u), nil
}

func (e *Evaluator) evalUnary(u formula.Unary) (Value, error) {
	v, err := e.Eval(u.X)
	if err != nil {
		return Value{}, err
	}
	if !v.IsNumber() {
		return Value{}, NewEvalError("negate", v.Format(), "", ErrInvalidOperation)
	}
	v.Number = -v.Number
	return v, nil
}

func (e *Evaluator) evalLogical(name string, args []formula.Expr, all bool) (Value, error) {
	if len(args) == 0 {
		return Value{}, NewEvalError(name, "no arguments", "", ErrInvalidOperation)
	}
	result := all
	for _, a := range args {
		v, err := e.Eval(a)
		if err != nil {
			return Value{}, err
		}
		truth, err := v.Truthy()
		if err != nil {
			return Value{}, err
		}
		if all {
			result = result && truth
		} else {
			result = result || truth
		}
	}
	return Bool(result), nil
}

func (e *Evaluator) evalBinary(b formula.Binary) (Value, error) {
	l, err := e.Eval(b.L)
	if err != nil {
		return Value{}, err
	}
	r, err := e.Eval(b.R)
	if err != nil {
		return Value{}, err
	}
	if b.Op.IsComparison() {
		return e.compare(b.Op, l, r)
	}
	switch b.Op {
	case formula.OpAdd:
		if l.Kind == KindString || r.Kind == KindString {
			return Str(l.Format() + r.Format()), nil
		}
		return e.addSub("+", l, r)
	case formula.OpSub:
		return e.addSub("-", l, r)
	case formula.OpMul:
		return e.mulDiv("*", l, r)
	case formula.OpDiv:
		return e.mulDiv("/", l, r)
	}
	return Value{}, NewEvalError(string(b.Op), l.Format(), r.Format(), ErrInvalidOperation)
}

// addSub aligns compatible operands to the finer of their two units so
// that no precision is lost: 1 min - 15 s yields 45 s, not 0.75 min.
func (e *Evaluator) addSub(op string, l, r Value) (Value, error) {
	if err := requireNumbers(op, l, r); err != nil {
		return Value{}, err
	}
	apply := func(a, b float64) float64 {
		if op == "+" {
			return a + b
		}
		return a - b
	}
	lu, ru := l.Unit, r.Unit
	switch {
	case lu.Equal(ru):
		return Num(apply(l.Number, r.Number), lu), nil
	case lu.Dimension.IsDimensionless() && ru.Dimension.IsDimensionless():
		// Percent mixed with plain numbers: both are scalars.
		return Plain(apply(l.Number, r.Number)), nil
	case !lu.Compatible(ru):
		return Value{}, incompatible(op, lu, ru)
	default:
		finer, ok := e.lib.FinerUnit(lu.Canonical, ru.Canonical)
		if !ok {
			return Value{}, incompatible(op, lu, ru)
		}
		lv, _ := e.lib.Convert(l.Number, lu.Canonical, finer)
		rv, _ := e.lib.Convert(r.Number, ru.Canonical, finer)
		unit, err := e.lib.ParseSymbol(finer)
		if err != nil {
			return Value{}, NewEvalError(op, finer, "", ErrUnknownUnit)
		}
		return Num(apply(lv, rv), unit), nil
	}
}

// mulDiv implements unit multiplication and division. Percent operands
// drop out as scalars and dimensionless operands pass the other side's
// unit through (inverted for the divisor position). Everything else goes
// through symbol-level cancellation: operand units are decomposed into
// numerator/denominator power maps, merged, canceled textually and then
// across scales, and the surviving symbols are rebuilt into the result
// unit.
func (e *Evaluator) mulDiv(op string, l, r Value) (Value, error) {
	if err := requireNumbers(op, l, r); err != nil {
		return Value{}, err
	}
	if op == "/" && r.Number == 0 {
		return Value{}, NewEvalError(op, l.Format(), r.Format(), ErrDivisionByZero)
	}
	raw := l.Number * r.Number
	if op == "/" {
		raw = l.Number / r.Number
	}
	lu, ru := l.Unit, r.Unit

	switch {
	case lu.IsPercent() && ru.IsPercent():
		return Plain(raw), nil
	case lu.IsPercent():
		return Num(raw, ru), nil
	case ru.IsPercent():
		return Num(raw, lu), nil
	}

	switch {
	case lu.IsDimensionless() && ru.IsDimensionless():
		return Plain(raw), nil
	case ru.IsDimensionless():
		return Num(raw, lu), nil
	case lu.IsDimensionless():
		if op == "*" {
			return Num(raw, ru), nil
		}
		return Num(raw, e.invertUnit(ru)), nil
	}

	lNum, lDen := units.Decompose(lu.Canonical)
	rNum, rDen := units.Decompose(ru.Canonical)
	var num, den map[string]float64
	if op == "*" {
		num, den = mergeMaps(lNum, rNum), mergeMaps(lDen, rDen)
	} else {
		num, den = mergeMaps(lNum, rDen), mergeMaps(lDen, rNum)
	}
	factor := e.cancelAndConvert(num, den)
	return Num(raw*factor, e.lib.UnitFromMaps(num, den)), nil
}

// cancelAndConvert cancels matching symbols between numerator and
// denominator in place. Textually identical symbols cancel
// power-for-power; convertible-but-distinct pairs cancel the minimum of
// their remaining powers and accumulate the conversion ratio raised to
// the cancelled power (so ft^2 against m cancels one power at the
// ft-to-m scale). Returns the factor to apply to the numeric result.
func (e *Evaluator) cancelAndConvert(num, den map[string]float64) float64 {
	for sym, np := range num {
		dp, ok := den[sym]
		if !ok {
			continue
		}
		c := math.Min(np, dp)
		num[sym] = np - c
		den[sym] = dp - c
	}

	factor := 1.0
	for _, nSym := range sortedKeys(num) {
		if num[nSym] <= 0 {
			continue
		}
		for _, dSym := range sortedKeys(den) {
			if den[dSym] <= 0 || dSym == nSym {
				continue
			}
			rn, rd, ok := e.lib.ConversionRatio(nSym, dSym)
			if !ok {
				continue
			}
			c := math.Min(num[nSym], den[dSym])
			num[nSym] -= c
			den[dSym] -= c
			factor *= math.Pow(rn, c) / math.Pow(rd, c)
			if num[nSym] <= 0 {
				break
			}
		}
	}

	for sym, p := range num {
		if p == 0 {
			delete(num, sym)
		}
	}
	for sym, p := range den {
		if p == 0 {
			delete(den, sym)
		}
	}
	return factor
}

func (e *Evaluator) invertUnit(u units.Unit) units.Unit {
	num, den := units.Decompose(u.Canonical)
	return e.lib.UnitFromMaps(den, num)
}

func (e *Evaluator) compare(op formula.BinOp, l, r Value) (Value, error) {
	switch {
	case l.IsNumber() && r.IsNumber():
		rv := r.Number
		if !l.Unit.Equal(r.Unit) {
			if !l.Unit.Compatible(r.Unit) {
				return Value{}, incompatible(string(op), l.Unit, r.Unit)
			}
			converted, ok := e.lib.Convert(r.Number, r.Unit.Canonical, l.Unit.Canonical)
			if !ok {
				return Value{}, incompatible(string(op), l.Unit, r.Unit)
			}
			rv = converted
		}
		return Bool(compareFloats(op, l.Number, rv)), nil
	case l.Kind == KindString && r.Kind == KindString:
		return Bool(compareStrings(op, l.Str, r.Str)), nil
	case l.Kind == KindBool && r.Kind == KindBool:
		switch op {
		case formula.OpEq:
			return Bool(l.Bool == r.Bool), nil
		case formula.OpNe:
			return Bool(l.Bool != r.Bool), nil
		}
	}
	return Value{}, NewEvalError(string(op), l.Format(), r.Format(), ErrInvalidOperation)
}

func compareFloats(op formula.BinOp, a, b float64) bool {
	switch op {
	case formula.OpEq:
		return a == b
	case formula.OpNe:
		return a != b
	case formula.OpLt:
		return a < b
	case formula.OpLe:
		return a <= b
	case formula.OpGt:
		return a > b
	default:
		return a >= b
	}
}

func compareStrings(op formula.BinOp, a, b string) bool {
	switch op {
	case formula.OpEq:
		return a == b
	case formula.OpNe:
		return a != b
	case formula.OpLt:
		return a < b
	case formula.OpLe:
		return a <= b
	case formula.OpGt:
		return a > b
	default:
		return a >= b
	}
}

func (e *Evaluator) evalCall(c formula.Call) (Value, error) {
	switch c.Name {
	case "IF":
		return e.evalIf(c.Args)
	case "CONVERT":
		return e.evalConvert(c.Args)
	}
	fn, ok := e.funcs[c.Name]
	if !ok {
		return Value{}, NewEvalError(c.Name, "", "", ErrFunctionNotImplemented)
	}
	args, err := e.evalArgs(c.Args)
	if err != nil {
		return Value{}, err
	}
	return fn(e, args)
}

// evalArgs evaluates call arguments, expanding range references into the
// values of their non-empty cells.
func (e *Evaluator) evalArgs(exprs []formula.Expr) ([]Value, error) {
	var out []Value
	for _, ex := range exprs {
		if rng, ok := ex.(formula.RangeRef); ok {
			if e.cells == nil {
				return nil, NewEvalError("range", rng.String(), "", ErrCellNotFound)
			}
			vals, err := e.cells.ResolveRange(rng.Start, rng.End)
			if err != nil {
				return nil, err
			}
			out = append(out, vals...)
			continue
		}
		v, err := e.Eval(ex)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// evalIf evaluates only the branch selected by the condition, so an
// error in the untaken branch does not poison the result.
func (e *Evaluator) evalIf(args []formula.Expr) (Value, error) {
	if len(args) != 2 && len(args) != 3 {
		return Value{}, NewEvalError("IF", fmt.Sprintf("%d arguments", len(args)), "", ErrInvalidOperation)
	}
	cond, err := e.Eval(args[0])
	if err != nil {
		return Value{}, err
	}
	truth, err := cond.Truthy()
	if err != nil {
		return Value{}, err
	}
	if truth {
		return e.Eval(args[1])
	}
	if len(args) == 3 {
		return e.Eval(args[2])
	}
	return Bool(false), nil
}

// evalConvert reads its target argument syntactically rather than
// evaluating it, so CONVERT(A1, "km"), CONVERT(A1, km) and
// CONVERT(A1, 1km) all name the km symbol.
func (e *Evaluator) evalConvert(args []formula.Expr) (Value, error) {
	if len(args) != 2 {
		return Value{}, NewEvalError("CONVERT", fmt.Sprintf("%d arguments", len(args)), "", ErrInvalidOperation)
	}
	v, err := e.Eval(args[0])
	if err != nil {
		return Value{}, err
	}
	if !v.IsNumber() {
		return Value{}, NewEvalError("CONVERT", v.Format(), "", ErrInvalidOperation)
	}
	symbol, err := convertTarget(args[1])
	if err != nil {
		return Value{}, err
	}
	target, err := e.lib.ParseSymbol(symbol)
	if err != nil {
		return Value{}, NewEvalError("CONVERT", symbol, "", ErrUnknownUnit)
	}
	converted, ok := e.lib.Convert(v.Number, v.Unit.Canonical, target.Canonical)
	if !ok {
		return Value{}, incompatible("CONVERT", v.Unit, target)
	}
	return Num(converted, target), nil
}

func convertTarget(ex formula.Expr) (string, error) {
	switch t := ex.(type) {
	case formula.StringLit:
		return t.Value, nil
	case formula.NamedRef:
		return t.Name, nil
	case formula.Number:
		if t.Unit != "" && t.Value == 1 {
			return t.Unit, nil
		}
	}
	return "", NewEvalError("CONVERT", ex.String(), "", ErrInvalidOperation)
}

func requireNumbers(op string, l, r Value) error {
	if !l.IsNumber() || !r.IsNumber() {
		return NewEvalError(op, l.Format(), r.Format(), ErrInvalidOperation)
	}
	return nil
}

func mergeMaps(a, b map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(a)+len(b))
	for k, v := range a {
		out[k] += v
	}
	for k, v := range b {
		out[k] += v
	}
	return out
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
