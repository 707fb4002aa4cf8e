package eval

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/jacksodj/unicel-sub000/pkg/unicel/formula"
	"github.com/jacksodj/unicel-sub000/pkg/unicel/units"
)

// Function is a registered built-in, pure over its evaluated arguments.
// IF and CONVERT are not in the registry because they read their
// arguments lazily or syntactically.
type Function func(e *Evaluator, args []Value) (Value, error)

// SupportedFunction reports whether an upper-cased call name dispatches
// to a builtin, including the specially handled IF, CONVERT and the
// logical forms.
func SupportedFunction(name string) bool {
	switch strings.ToUpper(name) {
	case "IF", "CONVERT", "AND", "OR", "NOT":
		return true
	}
	_, ok := builtinFunctions()[strings.ToUpper(name)]
	return ok
}

func builtinFunctions() map[string]Function {
	return map[string]Function{
		"SUM":     fnSum,
		"AVERAGE": fnAverage,
		"COUNT":   fnCount,
		"MIN":     fnMin,
		"MAX":     fnMax,
		"MEDIAN":  fnMedian,
		"STDEV":   fnStdev,
		"VAR":     fnVar,
		"CEILING": fnCeiling,
		"FLOOR":   fnFloor,
		"ROUND":   fnRound,
		"TRUNC":   fnTrunc,
		"SIGN":    fnSign,
		"MOD":     fnMod,
		"SQRT":    fnSqrt,
		"POWER":   fnPower,
		"PERCENT": fnPercent,
		"EQ":      comparisonFn(formula.OpEq),
		"NE":      comparisonFn(formula.OpNe),
		"GT":      comparisonFn(formula.OpGt),
		"GTE":     comparisonFn(formula.OpGe),
		"LT":      comparisonFn(formula.OpLt),
		"LTE":     comparisonFn(formula.OpLe),
	}
}

// alignToFirst converts every argument to the first argument's unit,
// the aggregation rule for SUM and friends. All arguments must be
// numeric and pairwise compatible.
func (e *Evaluator) alignToFirst(op string, args []Value) ([]float64, units.Unit, error) {
	if len(args) == 0 {
		return nil, units.Dimensionless(), nil
	}
	out := make([]float64, 0, len(args))
	var unit units.Unit
	for i, a := range args {
		if !a.IsNumber() {
			return nil, units.Unit{}, NewEvalError(op, a.Format(), "", ErrInvalidOperation)
		}
		if i == 0 {
			unit = a.Unit
			out = append(out, a.Number)
			continue
		}
		if a.Unit.Equal(unit) {
			out = append(out, a.Number)
			continue
		}
		if !a.Unit.Compatible(unit) {
			return nil, units.Unit{}, incompatible(op, unit, a.Unit)
		}
		converted, ok := e.lib.Convert(a.Number, a.Unit.Canonical, unit.Canonical)
		if !ok {
			return nil, units.Unit{}, incompatible(op, unit, a.Unit)
		}
		out = append(out, converted)
	}
	return out, unit, nil
}

func fnSum(e *Evaluator, args []Value) (Value, error) {
	vals, unit, err := e.alignToFirst("SUM", args)
	if err != nil {
		return Value{}, err
	}
	total := 0.0
	for _, v := range vals {
		total += v
	}
	return Num(total, unit), nil
}

func fnAverage(e *Evaluator, args []Value) (Value, error) {
	vals, unit, err := e.alignToFirst("AVERAGE", args)
	if err != nil {
		return Value{}, err
	}
	if len(vals) == 0 {
		return Value{}, NewEvalError("AVERAGE", "no values", "", ErrInvalidOperation)
	}
	total := 0.0
	for _, v := range vals {
		total += v
	}
	return Num(total/float64(len(vals)), unit), nil
}

func fnCount(_ *Evaluator, args []Value) (Value, error) {
	count := 0
	for _, a := range args {
		if a.IsNumber() {
			count++
		}
	}
	return Plain(float64(count)), nil
}

func fnMin(e *Evaluator, args []Value) (Value, error) {
	return extremum("MIN", e, args, func(a, b float64) bool { return a < b })
}

func fnMax(e *Evaluator, args []Value) (Value, error) {
	return extremum("MAX", e, args, func(a, b float64) bool { return a > b })
}

func extremum(name string, e *Evaluator, args []Value, better func(a, b float64) bool) (Value, error) {
	vals, unit, err := e.alignToFirst(name, args)
	if err != nil {
		return Value{}, err
	}
	if len(vals) == 0 {
		return Value{}, NewEvalError(name, "no values", "", ErrInvalidOperation)
	}
	best := vals[0]
	for _, v := range vals[1:] {
		if better(v, best) {
			best = v
		}
	}
	return Num(best, unit), nil
}

func fnMedian(e *Evaluator, args []Value) (Value, error) {
	vals, unit, err := e.alignToFirst("MEDIAN", args)
	if err != nil {
		return Value{}, err
	}
	if len(vals) == 0 {
		return Value{}, NewEvalError("MEDIAN", "no values", "", ErrInvalidOperation)
	}
	sort.Float64s(vals)
	mid := len(vals) / 2
	if len(vals)%2 == 1 {
		return Num(vals[mid], unit), nil
	}
	return Num((vals[mid-1]+vals[mid])/2, unit), nil
}

func fnStdev(e *Evaluator, args []Value) (Value, error) {
	vals, unit, err := e.alignToFirst("STDEV", args)
	if err != nil {
		return Value{}, err
	}
	if len(vals) < 2 {
		return Value{}, NewEvalError("STDEV", "needs at least two values", "", ErrDivisionByZero)
	}
	return Num(math.Sqrt(sampleVariance(vals)), unit), nil
}

// fnVar reports the sample variance; the unit is squared, as
// dimensional analysis requires (VAR over meters is m^2).
func fnVar(e *Evaluator, args []Value) (Value, error) {
	vals, unit, err := e.alignToFirst("VAR", args)
	if err != nil {
		return Value{}, err
	}
	if len(vals) < 2 {
		return Value{}, NewEvalError("VAR", "needs at least two values", "", ErrDivisionByZero)
	}
	return Num(sampleVariance(vals), e.scaleUnitPowers(unit, 2)), nil
}

func sampleVariance(vals []float64) float64 {
	mean := 0.0
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))
	sq := 0.0
	for _, v := range vals {
		d := v - mean
		sq += d * d
	}
	return sq / float64(len(vals)-1)
}

func fnCeiling(e *Evaluator, args []Value) (Value, error) {
	return significanceRound("CEILING", math.Ceil, e, args)
}

func fnFloor(e *Evaluator, args []Value) (Value, error) {
	return significanceRound("FLOOR", math.Floor, e, args)
}

// significanceRound rounds to a multiple of the significance, which
// defaults to one. A dimensioned significance is converted into the
// number's unit when both carry dimensions; zero significance is an
// error. The result keeps the number's unit.
func significanceRound(name string, round func(float64) float64, e *Evaluator, args []Value) (Value, error) {
	if len(args) == 0 || len(args) > 2 {
		return Value{}, NewEvalError(name, fmt.Sprintf("%d arguments", len(args)), "", ErrInvalidOperation)
	}
	n := args[0]
	if !n.IsNumber() {
		return Value{}, NewEvalError(name, n.Format(), "", ErrInvalidOperation)
	}
	sig := 1.0
	if len(args) == 2 {
		s := args[1]
		if !s.IsNumber() {
			return Value{}, NewEvalError(name, s.Format(), "", ErrInvalidOperation)
		}
		sig = s.Number
		if !s.Unit.IsDimensionless() && !n.Unit.IsDimensionless() && !s.Unit.Equal(n.Unit) {
			if !s.Unit.Compatible(n.Unit) {
				return Value{}, incompatible(name, n.Unit, s.Unit)
			}
			converted, ok := e.lib.Convert(s.Number, s.Unit.Canonical, n.Unit.Canonical)
			if !ok {
				return Value{}, incompatible(name, n.Unit, s.Unit)
			}
			sig = converted
		}
	}
	if sig == 0 {
		return Value{}, NewEvalError(name, "zero significance", "", ErrInvalidOperation)
	}
	return Num(round(n.Number/sig)*sig, n.Unit), nil
}

func fnRound(e *Evaluator, args []Value) (Value, error) {
	return digitRound("ROUND", math.Round, args)
}

func fnTrunc(e *Evaluator, args []Value) (Value, error) {
	return digitRound("TRUNC", math.Trunc, args)
}

func digitRound(name string, round func(float64) float64, args []Value) (Value, error) {
	if len(args) == 0 || len(args) > 2 {
		return Value{}, NewEvalError(name, fmt.Sprintf("%d arguments", len(args)), "", ErrInvalidOperation)
	}
	n := args[0]
	if !n.IsNumber() {
		return Value{}, NewEvalError(name, n.Format(), "", ErrInvalidOperation)
	}
	digits := 0.0
	if len(args) == 2 {
		d := args[1]
		if !d.IsNumber() || !d.Unit.IsDimensionless() {
			return Value{}, NewEvalError(name, d.Format(), "", ErrInvalidOperation)
		}
		digits = d.Number
	}
	shift := math.Pow(10, digits)
	return Num(round(n.Number*shift)/shift, n.Unit), nil
}

func fnSign(_ *Evaluator, args []Value) (Value, error) {
	if len(args) != 1 || !args[0].IsNumber() {
		return Value{}, NewEvalError("SIGN", fmt.Sprintf("%d arguments", len(args)), "", ErrInvalidOperation)
	}
	switch v := args[0].Number; {
	case v > 0:
		return Plain(1), nil
	case v < 0:
		return Plain(-1), nil
	default:
		return Plain(0), nil
	}
}

// fnMod follows the spreadsheet convention: the result takes the sign of
// the divisor. The divisor may be plain or compatible with the dividend;
// the result keeps the dividend's unit.
func fnMod(e *Evaluator, args []Value) (Value, error) {
	if len(args) != 2 {
		return Value{}, NewEvalError("MOD", fmt.Sprintf("%d arguments", len(args)), "", ErrInvalidOperation)
	}
	a, b := args[0], args[1]
	if err := requireNumbers("MOD", a, b); err != nil {
		return Value{}, err
	}
	bv := b.Number
	switch {
	case a.Unit.Equal(b.Unit), b.Unit.IsDimensionless():
	case a.Unit.Compatible(b.Unit):
		converted, ok := e.lib.Convert(b.Number, b.Unit.Canonical, a.Unit.Canonical)
		if !ok {
			return Value{}, incompatible("MOD", a.Unit, b.Unit)
		}
		bv = converted
	default:
		return Value{}, incompatible("MOD", a.Unit, b.Unit)
	}
	if bv == 0 {
		return Value{}, NewEvalError("MOD", a.Format(), b.Format(), ErrDivisionByZero)
	}
	return Num(a.Number-bv*math.Floor(a.Number/bv), a.Unit), nil
}

func fnSqrt(e *Evaluator, args []Value) (Value, error) {
	if len(args) != 1 || !args[0].IsNumber() {
		return Value{}, NewEvalError("SQRT", fmt.Sprintf("%d arguments", len(args)), "", ErrInvalidOperation)
	}
	v := args[0]
	if v.Number < 0 {
		return Value{}, NewEvalError("SQRT", v.Format(), "", ErrInvalidOperation)
	}
	return Num(math.Sqrt(v.Number), e.scaleUnitPowers(v.Unit, 0.5)), nil
}

func fnPower(e *Evaluator, args []Value) (Value, error) {
	if len(args) != 2 {
		return Value{}, NewEvalError("POWER", fmt.Sprintf("%d arguments", len(args)), "", ErrInvalidOperation)
	}
	base, exp := args[0], args[1]
	if err := requireNumbers("POWER", base, exp); err != nil {
		return Value{}, err
	}
	if !exp.Unit.IsDimensionless() {
		return Value{}, NewEvalError("POWER", exp.Format(), "", ErrInvalidOperation)
	}
	result := math.Pow(base.Number, exp.Number)
	if math.IsNaN(result) {
		return Value{}, NewEvalError("POWER", base.Format(), exp.Format(), ErrInvalidOperation)
	}
	return Num(result, e.scaleUnitPowers(base.Unit, exp.Number)), nil
}

func fnPercent(e *Evaluator, args []Value) (Value, error) {
	if len(args) != 1 || !args[0].IsNumber() {
		return Value{}, NewEvalError("PERCENT", fmt.Sprintf("%d arguments", len(args)), "", ErrInvalidOperation)
	}
	v := args[0]
	if v.Unit.IsPercent() {
		return v, nil
	}
	if !v.Unit.IsDimensionless() {
		return Value{}, NewEvalError("PERCENT", v.Format(), "", ErrInvalidOperation)
	}
	percent, _ := e.lib.Get(units.PercentSymbol)
	return Num(v.Number/100, percent), nil
}

func comparisonFn(op formula.BinOp) Function {
	return func(e *Evaluator, args []Value) (Value, error) {
		if len(args) != 2 {
			return Value{}, NewEvalError(string(op), fmt.Sprintf("%d arguments", len(args)), "", ErrInvalidOperation)
		}
		return e.compare(op, args[0], args[1])
	}
}

// scaleUnitPowers multiplies every dimension power of a unit by factor,
// the unit rule for SQRT and POWER (m^2 square-rooted is m).
func (e *Evaluator) scaleUnitPowers(u units.Unit, factor float64) units.Unit {
	if u.IsDimensionless() || u.IsPercent() {
		return units.Dimensionless()
	}
	num, den := units.Decompose(u.Canonical)
	for k := range num {
		num[k] *= factor
	}
	for k := range den {
		den[k] *= factor
	}
	return e.lib.UnitFromMaps(num, den)
}
