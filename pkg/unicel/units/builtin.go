package units

// PercentSymbol is the canonical form of the percent pseudo-unit.
// Percent is dimensionless with a display scale of 1/100 and drops out
// of multiplication and division like a plain number.
const PercentSymbol = "%"

// Option customizes a Library during construction. Options apply in
// order after the built-in registry, so a conversion option may refer
// to units introduced by an earlier option.
type Option func(*Library)

// WithCurrencyRates overrides or extends the currency table. Each entry
// gives the value of one unit of the keyed currency in USD. Unknown
// symbols are registered as new currencies.
func WithCurrencyRates(perUSD map[string]float64) Option {
	return func(l *Library) {
		for symbol, rate := range perUSD {
			if rate <= 0 {
				continue
			}
			if !l.Contains(symbol) {
				l.registerUnit(Simple(symbol, Currency))
			}
			l.registerScaled(l.canonicalSymbol(symbol), "USD", rate)
		}
	}
}

// WithUnit registers an additional unit under the given dimension, e.g.
// WithUnit("widget", Custom("widget")).
func WithUnit(symbol string, dim BaseDimension) Option {
	return func(l *Library) {
		l.registerUnit(Simple(symbol, dim))
	}
}

// WithConversion adds a pure scale conversion between two registered
// symbols, in both directions: 1 from = multiplier to.
func WithConversion(from, to string, multiplier float64) Option {
	return func(l *Library) {
		if multiplier <= 0 {
			return
		}
		l.registerConversion(l.canonicalSymbol(from), l.canonicalSymbol(to), Factor{Multiplier: multiplier})
		l.registerConversion(l.canonicalSymbol(to), l.canonicalSymbol(from), Factor{Multiplier: 1 / multiplier})
	}
}

// scaledDef declares one built-in unit as a pure multiple of its
// dimension's base symbol.
type scaledDef struct {
	symbol  string
	perBase float64
}

var (
	lengthDefs = []scaledDef{
		{"mm", 0.001}, {"cm", 0.01}, {"m", 1}, {"km", 1000},
		{"in", 0.0254}, {"ft", 0.3048}, {"yd", 0.9144}, {"mi", 1609.344},
	}
	massDefs = []scaledDef{
		{"mg", 1e-6}, {"g", 0.001}, {"kg", 1}, {"t", 1000},
		{"oz", 0.028349523125}, {"lb", 0.45359237},
	}
	timeDefs = []scaledDef{
		{"ms", 0.001}, {"s", 1}, {"min", 60}, {"hr", 3600},
		{"day", 86400}, {"wk", 604800},
	}
	// Static reference rates, value of one unit in USD. Override with
	// WithCurrencyRates for live data.
	currencyDefs = []scaledDef{
		{"USD", 1}, {"EUR", 1.08}, {"GBP", 1.27}, {"JPY", 0.0067},
		{"CAD", 0.73}, {"AUD", 0.66},
	}
	storageDefs = []scaledDef{
		{"B", 1}, {"KB", 1 << 10}, {"MB", 1 << 20}, {"GB", 1 << 30},
		{"TB", 1 << 40}, {"PB", 1 << 50},
	}
)

// NewLibrary builds the standard unit registry: metric and imperial
// length and mass, time, Celsius/Fahrenheit/Kelvin, a static currency
// table, binary-scaled digital storage, and percent. Currency aliases
// "$", "€", "£" and "¥" map to USD, EUR, GBP and JPY.
func NewLibrary(opts ...Option) *Library {
	l := newLibrary()

	l.registerDimension(Length, "m", lengthDefs)
	l.registerDimension(Mass, "kg", massDefs)
	l.registerDimension(Time, "s", timeDefs)
	l.registerDimension(Currency, "USD", currencyDefs)
	l.registerDimension(DigitalStorage, "B", storageDefs)

	l.registerUnit(Simple("C", Temperature))
	l.registerUnit(Simple("F", Temperature))
	l.registerUnit(Simple("K", Temperature))
	l.registerBase(Temperature, "C")
	l.registerConversion("C", "F", Factor{Multiplier: 1.8, Offset: 32})
	l.registerConversion("F", "C", Factor{Multiplier: 1 / 1.8, Offset: -32 / 1.8})
	l.registerConversion("C", "K", Factor{Multiplier: 1, Offset: 273.15})
	l.registerConversion("K", "C", Factor{Multiplier: 1, Offset: -273.15})

	l.registerUnit(Unit{Canonical: PercentSymbol, Original: PercentSymbol, Dimension: DimensionlessDim()})

	l.registerAlias("$", "USD")
	l.registerAlias("€", "EUR")
	l.registerAlias("£", "GBP")
	l.registerAlias("¥", "JPY")
	l.registerAlias("sec", "s")

	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Library) registerDimension(dim BaseDimension, base string, defs []scaledDef) {
	l.registerBase(dim, base)
	for _, def := range defs {
		l.registerUnit(Simple(def.symbol, dim))
		l.registerScaled(def.symbol, base, def.perBase)
	}
}

func (l *Library) registerAlias(alias, canonical string) {
	if u, ok := l.units[canonical]; ok {
		l.units[alias] = u
	}
}
