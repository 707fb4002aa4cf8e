// Package units implements the unit and dimension algebra for unicel:
// dimensional signatures, unit values with canonical symbolic forms, and
// the conversion registry used by the formula evaluator.
package units

import (
	"sort"
	"strconv"
	"strings"
)

// BaseKind enumerates the built-in dimension categories.
type BaseKind uint8

const (
	BaseLength BaseKind = iota
	BaseMass
	BaseTime
	BaseCurrency
	BaseTemperature
	BaseDigitalStorage
	BaseCustom
)

// BaseDimension identifies the physical or financial category of a unit.
// Custom dimensions are distinguished by name; all others by kind alone.
type BaseDimension struct {
	Kind BaseKind
	// Name is set only for BaseCustom and carries the user-defined
	// dimension name.
	Name string
}

var (
	Length         = BaseDimension{Kind: BaseLength}
	Mass           = BaseDimension{Kind: BaseMass}
	Time           = BaseDimension{Kind: BaseTime}
	Currency       = BaseDimension{Kind: BaseCurrency}
	Temperature    = BaseDimension{Kind: BaseTemperature}
	DigitalStorage = BaseDimension{Kind: BaseDigitalStorage}
)

// Custom returns a user-defined dimension distinguished by name.
func Custom(name string) BaseDimension {
	return BaseDimension{Kind: BaseCustom, Name: name}
}

func (b BaseDimension) String() string {
	switch b.Kind {
	case BaseLength:
		return "Length"
	case BaseMass:
		return "Mass"
	case BaseTime:
		return "Time"
	case BaseCurrency:
		return "Currency"
	case BaseTemperature:
		return "Temperature"
	case BaseDigitalStorage:
		return "DigitalStorage"
	default:
		return b.Name
	}
}

// DimKind discriminates the three dimension shapes.
type DimKind uint8

const (
	KindDimensionless DimKind = iota
	KindSimple
	KindCompound
)

// Term is one base dimension raised to a power inside a compound
// dimension. Powers are float64 so that SQRT and POWER can scale them.
type Term struct {
	Base  BaseDimension
	Power float64
}

// Dimension is the dimensional signature of a unit: dimensionless, a
// single base dimension, or a compound numerator/denominator form.
// Two units are compatible iff their dimensions are structurally equal;
// term order inside a compound does not matter.
type Dimension struct {
	Kind DimKind
	// Base is set for KindSimple.
	Base BaseDimension
	// Num and Den hold the compound terms for KindCompound.
	Num []Term
	Den []Term
}

// DimensionlessDim returns the empty dimensional signature.
func DimensionlessDim() Dimension {
	return Dimension{Kind: KindDimensionless}
}

// SimpleDim returns a signature for a single base dimension.
func SimpleDim(base BaseDimension) Dimension {
	return Dimension{Kind: KindSimple, Base: base}
}

// CompoundDim builds a signature from numerator and denominator terms.
// Terms are merged per base dimension, zero powers dropped, and the
// result normalized: an empty signature collapses to dimensionless and a
// lone power-one numerator collapses to simple.
func CompoundDim(num, den []Term) Dimension {
	merged := map[BaseDimension]float64{}
	for _, t := range num {
		merged[t.Base] += t.Power
	}
	for _, t := range den {
		merged[t.Base] -= t.Power
	}

	var n, d []Term
	for base, power := range merged {
		switch {
		case power > 0:
			n = append(n, Term{Base: base, Power: power})
		case power < 0:
			d = append(d, Term{Base: base, Power: -power})
		}
	}
	sortTerms(n)
	sortTerms(d)

	if len(n) == 0 && len(d) == 0 {
		return DimensionlessDim()
	}
	if len(n) == 1 && len(d) == 0 && n[0].Power == 1 {
		return SimpleDim(n[0].Base)
	}
	return Dimension{Kind: KindCompound, Num: n, Den: d}
}

func sortTerms(terms []Term) {
	sort.Slice(terms, func(i, j int) bool {
		return terms[i].Base.String() < terms[j].Base.String()
	})
}

// IsDimensionless reports whether the signature is empty.
func (d Dimension) IsDimensionless() bool {
	return d.Kind == KindDimensionless
}

// Equal reports structural equality. Compound term order is irrelevant
// because constructors keep terms sorted.
func (d Dimension) Equal(other Dimension) bool {
	if d.Kind != other.Kind {
		return false
	}
	switch d.Kind {
	case KindDimensionless:
		return true
	case KindSimple:
		return d.Base == other.Base
	default:
		return termsEqual(d.Num, other.Num) && termsEqual(d.Den, other.Den)
	}
}

func termsEqual(a, b []Term) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// String renders a deterministic signature, e.g. "Currency/Time" or
// "Length^2". Used in error messages and logs.
func (d Dimension) String() string {
	switch d.Kind {
	case KindDimensionless:
		return "Dimensionless"
	case KindSimple:
		return d.Base.String()
	}
	var sb strings.Builder
	if len(d.Num) == 0 {
		sb.WriteString("1")
	} else {
		sb.WriteString(renderTerms(d.Num))
	}
	if len(d.Den) > 0 {
		sb.WriteString("/")
		sb.WriteString(renderTerms(d.Den))
	}
	return sb.String()
}

func renderTerms(terms []Term) string {
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		if t.Power == 1 {
			parts = append(parts, t.Base.String())
		} else {
			parts = append(parts, t.Base.String()+"^"+formatPower(t.Power))
		}
	}
	return strings.Join(parts, "*")
}

func formatPower(p float64) string {
	return strconv.FormatFloat(p, 'g', -1, 64)
}
