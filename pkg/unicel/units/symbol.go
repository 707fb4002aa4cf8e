package units

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// unitGrammar is the participle grammar for unit symbols.
// Examples: "m", "$", "USD/hr", "ft^2", "kg*m/s^2", "1/s".
// Everything after the first "/" belongs to the denominator.
type unitGrammar struct {
	One string     `( @"1"`
	Num []unitTerm `| @@ ( "*" @@ )* )`
	Den []unitTerm `( "/" @@ ( "*" @@ )* )?`
}

type unitTerm struct {
	Symbol string   `@Sym`
	Power  *float64 `( "^" @Number )?`
}

var symbolLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Sym", Pattern: `[A-Za-z_][A-Za-z0-9_]*|[$%€£¥]`},
	{Name: "Number", Pattern: `[0-9]+(?:\.[0-9]+)?`},
	{Name: "Punct", Pattern: `[*/^]`},
	{Name: "Whitespace", Pattern: `[ \t]+`},
})

var symbolParser = participle.MustBuild[unitGrammar](
	participle.Lexer(symbolLexer),
	participle.Elide("Whitespace"),
)

// ParseSymbol validates a unit string and builds the corresponding Unit.
// Registered symbols (including aliases like "$") resolve to their
// canonical form; well-formed unknown symbols become Custom dimensions.
// Malformed text (e.g. "m/", "^2") is an error. The empty string is the
// dimensionless unit.
func (l *Library) ParseSymbol(s string) (Unit, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Dimensionless(), nil
	}

	parsed, err := symbolParser.ParseString("", trimmed)
	if err != nil {
		return Unit{}, fmt.Errorf("invalid unit %q: %w", s, err)
	}

	// Bare registered symbol (or alias): reuse the registry entry but
	// keep the user's spelling for display.
	if parsed.One == "" && len(parsed.Num) == 1 && len(parsed.Den) == 0 && termPower(parsed.Num[0]) == 1 {
		sym := parsed.Num[0].Symbol
		if reg, ok := l.Get(sym); ok {
			return Unit{Canonical: reg.Canonical, Original: trimmed, Dimension: reg.Dimension}, nil
		}
		return Unit{Canonical: sym, Original: trimmed, Dimension: SimpleDim(Custom(sym))}, nil
	}

	num := map[string]float64{}
	den := map[string]float64{}
	for _, t := range parsed.Num {
		num[l.canonicalSymbol(t.Symbol)] += termPower(t)
	}
	for _, t := range parsed.Den {
		den[l.canonicalSymbol(t.Symbol)] += termPower(t)
	}

	unit := l.UnitFromMaps(num, den)
	unit.Original = trimmed
	return unit, nil
}

func termPower(t unitTerm) float64 {
	if t.Power == nil {
		return 1
	}
	return *t.Power
}

// UnitFromMaps rebuilds a Unit from numerator/denominator symbol-power
// maps, the final step of the evaluator's cancellation algorithm. An
// empty pair is dimensionless; a lone power-one registered numerator
// symbol reuses the registry entry; anything else synthesizes a sorted
// compound symbol with per-symbol dimensions, falling back to a Custom
// dimension for unrecognized symbols.
func (l *Library) UnitFromMaps(num, den map[string]float64) Unit {
	num = dropZeroPowers(num)
	den = dropZeroPowers(den)

	if len(num) == 0 && len(den) == 0 {
		return Dimensionless()
	}
	if len(num) == 1 && len(den) == 0 {
		for sym, power := range num {
			if power == 1 {
				if reg, ok := l.Get(sym); ok {
					return reg
				}
				return Simple(sym, Custom(sym))
			}
		}
	}

	var numTerms, denTerms []Term
	for sym, power := range num {
		numTerms = append(numTerms, Term{Base: l.dimensionOf(sym), Power: power})
	}
	for sym, power := range den {
		denTerms = append(denTerms, Term{Base: l.dimensionOf(sym), Power: power})
	}

	canonical := Compose(num, den)
	return Unit{
		Canonical: canonical,
		Original:  canonical,
		Dimension: CompoundDim(numTerms, denTerms),
	}
}

func dropZeroPowers(m map[string]float64) map[string]float64 {
	out := map[string]float64{}
	for sym, power := range m {
		if power != 0 {
			out[sym] = power
		}
	}
	return out
}

// Decompose splits a canonical compound symbol into numerator and
// denominator symbol-power maps, splitting on "/", then "*", then "^".
// It is the inverse of Compose for the canonical forms this package
// generates.
func Decompose(canonical string) (num, den map[string]float64) {
	num = map[string]float64{}
	den = map[string]float64{}
	if canonical == "" {
		return num, den
	}

	numPart := canonical
	denPart := ""
	if idx := strings.Index(canonical, "/"); idx >= 0 {
		numPart = canonical[:idx]
		denPart = canonical[idx+1:]
	}
	decomposeSide(numPart, num)
	decomposeSide(denPart, den)
	return num, den
}

func decomposeSide(part string, into map[string]float64) {
	if part == "" || part == "1" {
		return
	}
	for _, token := range strings.Split(part, "*") {
		sym := token
		power := 1.0
		if idx := strings.Index(token, "^"); idx >= 0 {
			sym = token[:idx]
			if p, err := strconv.ParseFloat(token[idx+1:], 64); err == nil {
				power = p
			}
		}
		if sym != "" {
			into[sym] += power
		}
	}
}

// Compose renders numerator/denominator symbol-power maps as a canonical
// compound symbol: each side alphabetically sorted and joined with "*",
// powers other than one rendered as "sym^power", an empty numerator
// rendered as "1" when a denominator exists.
func Compose(num, den map[string]float64) string {
	numStr := composeSide(num)
	denStr := composeSide(den)
	switch {
	case numStr == "" && denStr == "":
		return ""
	case denStr == "":
		return numStr
	case numStr == "":
		return "1/" + denStr
	default:
		return numStr + "/" + denStr
	}
}

func composeSide(m map[string]float64) string {
	syms := make([]string, 0, len(m))
	for sym, power := range m {
		if power != 0 {
			syms = append(syms, sym)
		}
	}
	sort.Strings(syms)

	parts := make([]string, 0, len(syms))
	for _, sym := range syms {
		if power := m[sym]; power == 1 {
			parts = append(parts, sym)
		} else {
			parts = append(parts, sym+"^"+formatPower(power))
		}
	}
	return strings.Join(parts, "*")
}
