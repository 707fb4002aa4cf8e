package units

import "strings"

// Unit pairs a symbolic form with its dimensional signature. Canonical is
// the normalized symbol used for equality and registry lookup (e.g. "m/s",
// "USD", "ft^2"); Original preserves the exact user text for round-trip
// display. Construction never fails: unknown symbols resolve to Custom
// dimensions.
type Unit struct {
	Canonical string
	Original  string
	Dimension Dimension
}

// Dimensionless returns the unit of plain numbers.
func Dimensionless() Unit {
	return Unit{Dimension: DimensionlessDim()}
}

// Simple builds a unit for a single symbol in the given base dimension.
func Simple(symbol string, base BaseDimension) Unit {
	return Unit{
		Canonical: symbol,
		Original:  symbol,
		Dimension: SimpleDim(base),
	}
}

// Compound builds a unit with an explicit canonical symbol and compound
// numerator/denominator terms.
func Compound(symbol string, num, den []Term) Unit {
	return Unit{
		Canonical: symbol,
		Original:  symbol,
		Dimension: CompoundDim(num, den),
	}
}

// IsDimensionless reports whether the unit carries no dimension. The
// percent unit is dimensionless by signature but keeps its own canonical
// symbol; IsPercent distinguishes it.
func (u Unit) IsDimensionless() bool {
	return u.Dimension.IsDimensionless() && u.Canonical == ""
}

// IsPercent reports whether the unit is the percent pseudo-unit, which
// multiplication and division treat as a dimensionless scalar.
func (u Unit) IsPercent() bool {
	return u.Canonical == PercentSymbol
}

// Equal reports symbol-level equality (same canonical form).
func (u Unit) Equal(other Unit) bool {
	return u.Canonical == other.Canonical
}

// Compatible reports dimensional compatibility: values in compatible
// units can be converted and combined by addition and subtraction.
func (u Unit) Compatible(other Unit) bool {
	return u.Dimension.Equal(other.Dimension)
}

// BaseUnits returns the deduplicated, exponent-stripped symbols that make
// up the canonical form, splitting on '^', '*' and '/'. For "kg*m/s^2" it
// returns ["kg", "m", "s"].
func (u Unit) BaseUnits() []string {
	if u.Canonical == "" {
		return nil
	}
	seen := map[string]bool{}
	var symbols []string
	for _, part := range strings.FieldsFunc(u.Canonical, func(r rune) bool {
		return r == '^' || r == '*' || r == '/'
	}) {
		if part == "" || part == "1" || isNumeric(part) {
			continue
		}
		if !seen[part] {
			seen[part] = true
			symbols = append(symbols, part)
		}
	}
	return symbols
}

func isNumeric(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return len(s) > 0
}

// String renders the unit for display, preferring the user's original
// spelling.
func (u Unit) String() string {
	if u.Original != "" {
		return u.Original
	}
	return u.Canonical
}
