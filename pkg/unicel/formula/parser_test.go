package formula

import (
	"errors"
	"reflect"
	"testing"
)

func mustParse(t *testing.T, src string) Expr {
	t.Helper()
	e, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q) error: %v", src, err)
	}
	return e
}

func TestParseLiterals(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want Expr
	}{
		{"integer", "42", Number{Value: 42}},
		{"decimal", "3.14", Number{Value: 3.14}},
		{"percent", "10%", Number{Value: 10, Unit: "%"}},
		{"unit tight", "100m", Number{Value: 100, Unit: "m"}},
		{"unit spaced", "100 m", Number{Value: 100, Unit: "m"}},
		{"rate unit", "15 $/ft", Number{Value: 15, Unit: "$/ft"}},
		{"currency prefix", "$15", Number{Value: 15, Unit: "$"}},
		{"power unit", "2 ft^2", Number{Value: 2, Unit: "ft^2"}},
		{"compound unit", "9.8 m/s^2", Number{Value: 9.8, Unit: "m/s^2"}},
		{"string", `"km"`, StringLit{Value: "km"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mustParse(t, tt.src)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse(%q) = %#v, want %#v", tt.src, got, tt.want)
			}
		})
	}
}

func TestParsePrecedence(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want Expr
	}{
		{
			"multiplication binds tighter",
			"1+2*3",
			Binary{Op: OpAdd, L: Number{Value: 1}, R: Binary{Op: OpMul, L: Number{Value: 2}, R: Number{Value: 3}}},
		},
		{
			"parens override",
			"(1+2)*3",
			Binary{Op: OpMul, L: Binary{Op: OpAdd, L: Number{Value: 1}, R: Number{Value: 2}}, R: Number{Value: 3}},
		},
		{
			"subtraction left associative",
			"10-2-3",
			Binary{Op: OpSub, L: Binary{Op: OpSub, L: Number{Value: 10}, R: Number{Value: 2}}, R: Number{Value: 3}},
		},
		{
			"comparison binds loosest",
			"A1+1>B2",
			Binary{Op: OpGt, L: Binary{Op: OpAdd, L: CellRef{Ref: "A1"}, R: Number{Value: 1}}, R: CellRef{Ref: "B2"}},
		},
		{
			"unary negation",
			"-A1",
			Unary{Op: "-", X: CellRef{Ref: "A1"}},
		},
		{
			"not equal spelled both ways",
			"A1<>5",
			Binary{Op: OpNe, L: CellRef{Ref: "A1"}, R: Number{Value: 5}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mustParse(t, tt.src)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse(%q) = %#v, want %#v", tt.src, got, tt.want)
			}
		})
	}

	if got := mustParse(t, "A1!=5"); !reflect.DeepEqual(got, mustParse(t, "A1<>5")) {
		t.Errorf("!= and <> should parse identically, got %#v", got)
	}
}

func TestUnitSuffixDoesNotSwallowOperators(t *testing.T) {
	got := mustParse(t, "100 m / 2")
	want := Binary{Op: OpDiv, L: Number{Value: 100, Unit: "m"}, R: Number{Value: 2}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Parse(%q) = %#v, want %#v", "100 m / 2", got, want)
	}

	got = mustParse(t, "2 ft * 15 $/ft")
	want = Binary{Op: OpMul, L: Number{Value: 2, Unit: "ft"}, R: Number{Value: 15, Unit: "$/ft"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Parse(%q) = %#v, want %#v", "2 ft * 15 $/ft", got, want)
	}
}

func TestParseReferences(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want Expr
	}{
		{"cell", "A1", CellRef{Ref: "A1"}},
		{"cell arithmetic", "A1+B2", Binary{Op: OpAdd, L: CellRef{Ref: "A1"}, R: CellRef{Ref: "B2"}}},
		{"named", "tax_rate", NamedRef{Name: "tax_rate"}},
		{"range in call", "SUM(A1:A10)", Call{Name: "SUM", Args: []Expr{RangeRef{Start: "A1", End: "A10"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mustParse(t, tt.src)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse(%q) = %#v, want %#v", tt.src, got, tt.want)
			}
		})
	}
}

func TestParseCalls(t *testing.T) {
	got := mustParse(t, "IF(A1>5, A1, 0)")
	want := Call{Name: "IF", Args: []Expr{
		Binary{Op: OpGt, L: CellRef{Ref: "A1"}, R: Number{Value: 5}},
		CellRef{Ref: "A1"},
		Number{Value: 0},
	}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("IF parse = %#v, want %#v", got, want)
	}

	if got := mustParse(t, "sum(1)"); !reflect.DeepEqual(got, Call{Name: "SUM", Args: []Expr{Number{Value: 1}}}) {
		t.Errorf("function names should upper-case, got %#v", got)
	}

	nested := mustParse(t, "ROUND(CONVERT(A1, \"km\"), 2)")
	wantNested := Call{Name: "ROUND", Args: []Expr{
		Call{Name: "CONVERT", Args: []Expr{CellRef{Ref: "A1"}, StringLit{Value: "km"}}},
		Number{Value: 2},
	}}
	if !reflect.DeepEqual(nested, wantNested) {
		t.Errorf("nested call = %#v, want %#v", nested, wantNested)
	}
}

func TestParseLogicalLowering(t *testing.T) {
	got := mustParse(t, "AND(A1>0, B1>0)")
	if _, ok := got.(And); !ok {
		t.Fatalf("AND should lower to And node, got %T", got)
	}
	got = mustParse(t, "OR(1, 0)")
	if _, ok := got.(Or); !ok {
		t.Fatalf("OR should lower to Or node, got %T", got)
	}
	got = mustParse(t, "NOT(A1>5)")
	if _, ok := got.(Not); !ok {
		t.Fatalf("NOT should lower to Not node, got %T", got)
	}

	if _, err := Parse("NOT(1, 2)"); err == nil {
		t.Error("NOT with two arguments should fail to parse")
	}
}

func TestParseBoolAndUnaryPlus(t *testing.T) {
	if got := mustParse(t, "TRUE"); !reflect.DeepEqual(got, BoolLit{Value: true}) {
		t.Errorf("TRUE = %#v", got)
	}
	if got := mustParse(t, "false"); !reflect.DeepEqual(got, BoolLit{Value: false}) {
		t.Errorf("false = %#v", got)
	}
	if got := mustParse(t, "+5"); !reflect.DeepEqual(got, Number{Value: 5}) {
		t.Errorf("unary plus should be identity, got %#v", got)
	}
	if _, err := Parse("Revenue"); err == nil {
		t.Error("uppercase bare identifier should be rejected")
	}
}

func TestParseEqualsPrefix(t *testing.T) {
	with := mustParse(t, "=A1+B2")
	without := mustParse(t, "A1+B2")
	if !reflect.DeepEqual(with, without) {
		t.Errorf("leading '=' should be ignored: %#v vs %#v", with, without)
	}
}

func TestParseErrors(t *testing.T) {
	for _, src := range []string{"", "=", "1+", "SUM(", ")", "A1:", "1 2 3 +", "CONVERT(A1,)"} {
		if _, err := Parse(src); err == nil {
			t.Errorf("Parse(%q) should fail", src)
		}
	}

	_, err := Parse("1+")
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if perr.Formula != "1+" {
		t.Errorf("ParseError.Formula = %q, want original source", perr.Formula)
	}
}

func TestWalkCollectsReferences(t *testing.T) {
	e := mustParse(t, "SUM(A1:A3) + B2 * tax_rate - NOT(C1)")
	var cells, ranges, names []string
	Walk(e, func(n Expr) bool {
		switch r := n.(type) {
		case CellRef:
			cells = append(cells, r.Ref)
		case RangeRef:
			ranges = append(ranges, r.Start+":"+r.End)
		case NamedRef:
			names = append(names, r.Name)
		}
		return true
	})
	if !reflect.DeepEqual(cells, []string{"B2", "C1"}) {
		t.Errorf("cells = %v", cells)
	}
	if !reflect.DeepEqual(ranges, []string{"A1:A3"}) {
		t.Errorf("ranges = %v", ranges)
	}
	if !reflect.DeepEqual(names, []string{"tax_rate"}) {
		t.Errorf("names = %v", names)
	}
}
