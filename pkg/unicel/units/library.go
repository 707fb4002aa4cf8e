package units

import (
	"math"
	"slices"
	"sort"
	"strings"
)

// Factor is a directed affine conversion between two registered symbols:
// converted = value*Multiplier + Offset. Offsets are nonzero only for
// temperature edges.
type Factor struct {
	Multiplier float64
	Offset     float64
}

type convKey struct {
	from string
	to   string
}

// Library is the registry of known unit symbols and the directed
// conversion-edge graph between them. It is populated once at
// construction and treated as immutable afterwards, so it may be shared
// read-only across sheets without synchronization.
type Library struct {
	units       map[string]Unit
	conversions map[convKey]Factor
	adjacency   map[string][]string
	bases       map[BaseDimension]string
}

func newLibrary() *Library {
	return &Library{
		units:       make(map[string]Unit),
		conversions: make(map[convKey]Factor),
		adjacency:   make(map[string][]string),
		bases:       make(map[BaseDimension]string),
	}
}

func (l *Library) registerUnit(u Unit, aliases ...string) {
	l.units[u.Canonical] = u
	for _, alias := range aliases {
		l.units[alias] = u
	}
}

func (l *Library) registerBase(dim BaseDimension, symbol string) {
	l.bases[dim] = symbol
}

func (l *Library) registerConversion(from, to string, f Factor) {
	key := convKey{from: from, to: to}
	if _, exists := l.conversions[key]; !exists {
		l.adjacency[from] = append(l.adjacency[from], to)
	}
	l.conversions[key] = f
}

// registerScaled links symbol to base with a pure scale factor in both
// directions: 1 symbol = perBase base units.
func (l *Library) registerScaled(symbol, base string, perBase float64) {
	if symbol == base {
		return
	}
	l.registerConversion(symbol, base, Factor{Multiplier: perBase})
	l.registerConversion(base, symbol, Factor{Multiplier: 1 / perBase})
}

// Get resolves a symbol (or alias) to its registered unit.
func (l *Library) Get(symbol string) (Unit, bool) {
	u, ok := l.units[symbol]
	return u, ok
}

// Contains reports whether the symbol (or alias) is registered.
func (l *Library) Contains(symbol string) bool {
	_, ok := l.units[symbol]
	return ok
}

// canonicalSymbol maps aliases like "$" onto their canonical registered
// symbol; unregistered symbols pass through unchanged.
func (l *Library) canonicalSymbol(symbol string) string {
	if u, ok := l.units[symbol]; ok {
		return u.Canonical
	}
	return symbol
}

// dimensionOf resolves the base dimension contributed by one symbol
// inside a compound form.
func (l *Library) dimensionOf(symbol string) BaseDimension {
	if u, ok := l.units[symbol]; ok && u.Dimension.Kind == KindSimple {
		return u.Dimension.Base
	}
	return Custom(symbol)
}

// Convert expresses value, given in unit from, in unit to. Identity when
// the symbols agree; otherwise both must be dimensionally compatible.
// Registered symbol pairs use a direct conversion factor when present,
// else a breadth-first search over the conversion-edge graph with each
// hop's affine factor applied in sequence. Compound symbols (e.g. "USD/hr"
// to "USD/min") are decomposed and converted scale-wise per symbol.
// Returns false when no conversion exists.
func (l *Library) Convert(value float64, from, to string) (float64, bool) {
	fromSym := l.canonicalSymbol(strings.TrimSpace(from))
	toSym := l.canonicalSymbol(strings.TrimSpace(to))
	if fromSym == toSym {
		return value, true
	}
	if v, ok := l.convertRegistered(value, fromSym, toSym); ok {
		return v, true
	}
	if _, fromReg := l.units[fromSym]; fromReg {
		if _, toReg := l.units[toSym]; toReg {
			// Both registered but no path: compound decomposition
			// cannot do better.
			return 0, false
		}
	}
	return l.convertCompound(value, fromSym, toSym)
}

func (l *Library) convertRegistered(value float64, fromSym, toSym string) (float64, bool) {
	fromUnit, fromOK := l.units[fromSym]
	toUnit, toOK := l.units[toSym]
	if !fromOK || !toOK {
		return 0, false
	}
	if !fromUnit.Compatible(toUnit) {
		return 0, false
	}
	if f, ok := l.conversions[convKey{from: fromSym, to: toSym}]; ok {
		return value*f.Multiplier + f.Offset, true
	}
	path := l.findPath(fromSym, toSym)
	if path == nil {
		return 0, false
	}
	v := value
	for i := 0; i+1 < len(path); i++ {
		f := l.conversions[convKey{from: path[i], to: path[i+1]}]
		v = v*f.Multiplier + f.Offset
	}
	return v, true
}

// findPath is a breadth-first search over conversion edges, returning
// the hop sequence from one symbol to another, or nil.
func (l *Library) findPath(from, to string) []string {
	prev := map[string]string{from: from}
	queue := []string{from}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range l.adjacency[current] {
			if _, seen := prev[next]; seen {
				continue
			}
			prev[next] = current
			if next == to {
				path := []string{to}
				for at := to; at != from; {
					at = prev[at]
					path = append(path, at)
				}
				slices.Reverse(path)
				return path
			}
			queue = append(queue, next)
		}
	}
	return nil
}

func (l *Library) convertCompound(value float64, fromSym, toSym string) (float64, bool) {
	fromUnit, err := l.ParseSymbol(fromSym)
	if err != nil {
		return 0, false
	}
	toUnit, err := l.ParseSymbol(toSym)
	if err != nil {
		return 0, false
	}
	if !fromUnit.Compatible(toUnit) {
		return 0, false
	}
	fromScale, ok := l.scaleToBase(fromUnit.Canonical)
	if !ok {
		return 0, false
	}
	toScale, ok := l.scaleToBase(toUnit.Canonical)
	if !ok || toScale == 0 {
		return 0, false
	}
	return value * fromScale / toScale, true
}

// scaleToBase computes the pure multiplicative scale of a compound
// canonical form relative to the base units of its dimensions. Offsets
// are excluded: inside compound forms temperature behaves as a gradient.
func (l *Library) scaleToBase(canonical string) (float64, bool) {
	num, den := Decompose(canonical)
	scale := 1.0
	for sym, power := range num {
		s, ok := l.symbolScale(sym)
		if !ok {
			return 0, false
		}
		scale *= math.Pow(s, power)
	}
	for sym, power := range den {
		s, ok := l.symbolScale(sym)
		if !ok {
			return 0, false
		}
		scale /= math.Pow(s, power)
	}
	return scale, true
}

// symbolScale is the scale of one registered symbol relative to its
// dimension's base symbol. Unregistered symbols are their own reference.
func (l *Library) symbolScale(sym string) (float64, bool) {
	reg, ok := l.units[sym]
	if !ok || reg.Dimension.Kind != KindSimple {
		return 1, true
	}
	base, ok := l.bases[reg.Dimension.Base]
	if !ok {
		return 1, true
	}
	return l.scale(sym, base)
}

// scale is the pure multiplicative part of a registered-symbol
// conversion, with affine offsets subtracted out.
func (l *Library) scale(from, to string) (float64, bool) {
	if from == to {
		return 1, true
	}
	one, ok := l.convertRegistered(1, from, to)
	if !ok {
		return 0, false
	}
	zero, _ := l.convertRegistered(0, from, to)
	return one - zero, true
}

// CanConvert reports whether Convert would succeed for the pair.
func (l *Library) CanConvert(from, to string) bool {
	_, ok := l.Convert(1, from, to)
	return ok
}

// ConversionRatio returns the scale between two convertible symbols as a
// numerator/denominator pair, as consumed by the evaluator's
// cancellation step. A direct offset-free edge is reported exactly; a
// reverse edge inverts exactly; otherwise the composed scale is used
// with denominator one. Offset-bearing pairs report their scale only.
func (l *Library) ConversionRatio(from, to string) (num, den float64, ok bool) {
	fromSym := l.canonicalSymbol(from)
	toSym := l.canonicalSymbol(to)
	if f, exists := l.conversions[convKey{from: fromSym, to: toSym}]; exists && f.Offset == 0 {
		return f.Multiplier, 1, true
	}
	if f, exists := l.conversions[convKey{from: toSym, to: fromSym}]; exists && f.Offset == 0 {
		return 1, f.Multiplier, true
	}
	s, ok := l.scale(fromSym, toSym)
	if !ok {
		return 0, 0, false
	}
	return s, 1, true
}

// FinerUnit returns whichever of two compatible units represents the
// smaller physical magnitude per unit, so that aligning addition to it
// loses no precision (given "m" and "cm", returns "cm"). The result is
// total and deterministic for every convertible pair: the conversion
// scale decides, and equal scales fall back to the lexicographically
// smaller canonical symbol.
func (l *Library) FinerUnit(a, b string) (string, bool) {
	aSym := l.canonicalSymbol(strings.TrimSpace(a))
	bSym := l.canonicalSymbol(strings.TrimSpace(b))
	if aSym == bSym {
		return aSym, true
	}
	one, ok := l.Convert(1, aSym, bSym)
	if !ok {
		return "", false
	}
	zero, _ := l.Convert(0, aSym, bSym)
	switch s := one - zero; {
	case s > 1:
		return bSym, true
	case s < 1:
		return aSym, true
	case aSym < bSym:
		return aSym, true
	default:
		return bSym, true
	}
}

// CompatibleUnits lists every registered unit sharing the symbol's
// dimension, sorted by canonical form. The symbol itself may be compound
// or unregistered; an unparseable symbol yields nil.
func (l *Library) CompatibleUnits(symbol string) []Unit {
	target, err := l.ParseSymbol(symbol)
	if err != nil {
		return nil
	}
	seen := map[string]bool{}
	var out []Unit
	for _, u := range l.units {
		if seen[u.Canonical] || !u.Compatible(target) {
			continue
		}
		seen[u.Canonical] = true
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Canonical < out[j].Canonical })
	return out
}

// Units lists every distinct registered unit, sorted by canonical form.
func (l *Library) Units() []Unit {
	seen := map[string]bool{}
	var out []Unit
	for _, u := range l.units {
		if seen[u.Canonical] {
			continue
		}
		seen[u.Canonical] = true
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Canonical < out[j].Canonical })
	return out
}
