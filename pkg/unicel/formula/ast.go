// Package formula parses the cell formula language into an AST:
// arithmetic and comparison operators, unit-tagged numeric literals,
// cell and range references, named references and function calls.
package formula

import (
	"strconv"
	"strings"
)

// Expr is the closed union of formula AST nodes. Implementations are
// Number, StringLit, BoolLit, CellRef, RangeRef, NamedRef, Unary,
// Binary, And, Or, Not and Call.
type Expr interface {
	isExpr()
	String() string
}

// BinOp identifies a binary operator.
type BinOp string

const (
	OpAdd BinOp = "+"
	OpSub BinOp = "-"
	OpMul BinOp = "*"
	OpDiv BinOp = "/"
	OpEq  BinOp = "="
	OpNe  BinOp = "<>"
	OpLt  BinOp = "<"
	OpLe  BinOp = "<="
	OpGt  BinOp = ">"
	OpGe  BinOp = ">="
)

// IsComparison reports whether the operator yields a boolean.
func (op BinOp) IsComparison() bool {
	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return true
	}
	return false
}

// Number is a numeric literal, optionally tagged with the unit text
// exactly as written ("m", "$/ft", "%"). Percent literals keep their
// face value here; the evaluator applies the 1/100 scale.
type Number struct {
	Value float64
	Unit  string
}

// StringLit is a quoted string literal, used as a conversion target.
type StringLit struct {
	Value string
}

// BoolLit is a TRUE or FALSE literal.
type BoolLit struct {
	Value bool
}

// CellRef references a single cell by normalized A1-style address.
type CellRef struct {
	Ref string
}

// RangeRef references a contiguous run of cells, e.g. "A1:A10".
type RangeRef struct {
	Start string
	End   string
}

// NamedRef references a sheet-scoped named binding.
type NamedRef struct {
	Name string
}

// Unary is arithmetic negation.
type Unary struct {
	Op string
	X  Expr
}

// Binary is an infix arithmetic or comparison operation.
type Binary struct {
	Op BinOp
	L  Expr
	R  Expr
}

// And is the n-ary logical conjunction AND(...).
type And struct {
	Args []Expr
}

// Or is the n-ary logical disjunction OR(...).
type Or struct {
	Args []Expr
}

// Not is the logical negation NOT(x).
type Not struct {
	X Expr
}

// Call is a function invocation by upper-cased name.
type Call struct {
	Name string
	Args []Expr
}

func (Number) isExpr()    {}
func (StringLit) isExpr() {}
func (BoolLit) isExpr()   {}
func (CellRef) isExpr()   {}
func (RangeRef) isExpr()  {}
func (NamedRef) isExpr()  {}
func (Unary) isExpr()     {}
func (Binary) isExpr()    {}
func (And) isExpr()       {}
func (Or) isExpr()        {}
func (Not) isExpr()       {}
func (Call) isExpr()      {}

func (n Number) String() string {
	s := strconv.FormatFloat(n.Value, 'g', -1, 64)
	switch {
	case n.Unit == "":
		return s
	case n.Unit == "%":
		return s + "%"
	default:
		return s + " " + n.Unit
	}
}

func (s StringLit) String() string { return strconv.Quote(s.Value) }

func (b BoolLit) String() string {
	if b.Value {
		return "TRUE"
	}
	return "FALSE"
}
func (c CellRef) String() string   { return c.Ref }
func (r RangeRef) String() string  { return r.Start + ":" + r.End }
func (n NamedRef) String() string  { return n.Name }

func (u Unary) String() string { return u.Op + wrap(u.X) }

func (b Binary) String() string {
	return wrap(b.L) + " " + string(b.Op) + " " + wrap(b.R)
}

func (a And) String() string { return renderCall("AND", a.Args) }
func (o Or) String() string  { return renderCall("OR", o.Args) }
func (n Not) String() string { return renderCall("NOT", []Expr{n.X}) }
func (c Call) String() string {
	return renderCall(c.Name, c.Args)
}

func renderCall(name string, args []Expr) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return name + "(" + strings.Join(parts, ", ") + ")"
}

// wrap parenthesizes compound subexpressions so that the rendered form
// re-parses with the same structure.
func wrap(e Expr) string {
	switch e.(type) {
	case Binary, Unary:
		return "(" + e.String() + ")"
	}
	return e.String()
}

// Walk visits e and its children depth-first, stopping a subtree when fn
// returns false. Used for reference extraction.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch n := e.(type) {
	case Unary:
		Walk(n.X, fn)
	case Binary:
		Walk(n.L, fn)
		Walk(n.R, fn)
	case And:
		for _, a := range n.Args {
			Walk(a, fn)
		}
	case Or:
		for _, a := range n.Args {
			Walk(a, fn)
		}
	case Not:
		Walk(n.X, fn)
	case Call:
		for _, a := range n.Args {
			Walk(a, fn)
		}
	}
}
