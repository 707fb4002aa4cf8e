package formula

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// ParseError describes a formula that failed to parse, with the column
// of the offending token when known.
type ParseError struct {
	Formula string
	Column  int
	Msg     string
}

func (e *ParseError) Error() string {
	if e.Column > 0 {
		return fmt.Sprintf("parse %q: column %d: %s", e.Formula, e.Column, e.Msg)
	}
	return fmt.Sprintf("parse %q: %s", e.Formula, e.Msg)
}

// Grammar shape, lowered to the ast types after parsing. Comparisons
// bind loosest and do not chain; addition and multiplication are
// left-associative.
type grammarRoot struct {
	Expr *grammarCmp `@@`
}

type grammarCmp struct {
	Left  *grammarAdd `@@`
	Op    string      `( @CmpOp`
	Right *grammarAdd `  @@ )?`
}

type grammarAdd struct {
	Left *grammarMul       `@@`
	Rest []*grammarAddTail `@@*`
}

type grammarAddTail struct {
	Op   string      `@("+" | "-")`
	Term *grammarMul `@@`
}

type grammarMul struct {
	Left *grammarUnary     `@@`
	Rest []*grammarMulTail `@@*`
}

type grammarMulTail struct {
	Op   string        `@("*" | "/")`
	Term *grammarUnary `@@`
}

type grammarUnary struct {
	Neg  *grammarUnary `  "-" @@`
	Pos  *grammarUnary `| "+" @@`
	Atom *grammarAtom  `| @@`
}

type grammarAtom struct {
	Money  *grammarMoney  `  @@`
	Number *grammarNumber `| @@`
	Str    *string        `| @String`
	Call   *grammarCall   `| @@`
	Range  *grammarRange  `| @@`
	Cell   *string        `| @Cell`
	Named  *string        `| @Ident`
	Paren  *grammarCmp    `| "(" @@ ")"`
}

// grammarMoney is a currency-prefixed literal like "$15".
type grammarMoney struct {
	Symbol string  `@Currency`
	Value  float64 `@Number`
}

// grammarNumber is a numeric literal with an optional percent or unit
// suffix: "3.5", "10%", "100m", "15 $/ft".
type grammarNumber struct {
	Value  float64        `@Number`
	Suffix *grammarSuffix `@@?`
}

type grammarSuffix struct {
	Percent bool         `  @Percent`
	Unit    *grammarUnit `| @@`
}

type grammarUnit struct {
	Num []*grammarUnitFactor `@@ ( "*" @@ )*`
	Den []*grammarUnitFactor `( "/" @@ ( "*" @@ )* )?`
}

type grammarUnitFactor struct {
	Symbol string  `( @Ident | @Currency )`
	Power  *string `( "^" @Number )?`
}

type grammarCall struct {
	Name string        `@Ident "("`
	Args []*grammarCmp `( @@ ( "," @@ )* )? ")"`
}

type grammarRange struct {
	Start string `@Cell ":"`
	End   string `@Cell`
}

var formulaLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `"(?:[^"\\]|\\.)*"`},
	{Name: "Cell", Pattern: `[A-Z]{1,3}[0-9]+\b`},
	{Name: "Number", Pattern: `[0-9]+(?:\.[0-9]+)?(?:[eE][+-]?[0-9]+)?`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Currency", Pattern: `[$€£¥]`},
	{Name: "Percent", Pattern: `%`},
	{Name: "CmpOp", Pattern: `<=|>=|<>|!=|=|<|>`},
	{Name: "Punct", Pattern: `[-+*/(),:^]`},
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
})

var formulaParser = participle.MustBuild[grammarRoot](
	participle.Lexer(formulaLexer),
	participle.Elide("Whitespace"),
	participle.UseLookahead(2),
)

// Parse parses formula source into an AST. A leading "=" is accepted and
// ignored, so both "=A1+B2" and "A1+B2" parse identically.
func Parse(src string) (Expr, error) {
	trimmed := strings.TrimSpace(src)
	trimmed = strings.TrimPrefix(trimmed, "=")
	trimmed = strings.TrimSpace(trimmed)
	if trimmed == "" {
		return nil, &ParseError{Formula: src, Msg: "empty formula"}
	}

	root, err := formulaParser.ParseString("", trimmed)
	if err != nil {
		return nil, parseErrorFrom(src, err)
	}
	return lowerCmp(root.Expr)
}

func parseErrorFrom(src string, err error) error {
	var perr participle.Error
	if errors.As(err, &perr) {
		return &ParseError{Formula: src, Column: perr.Position().Column, Msg: perr.Message()}
	}
	return &ParseError{Formula: src, Msg: err.Error()}
}

func lowerCmp(g *grammarCmp) (Expr, error) {
	left, err := lowerAdd(g.Left)
	if err != nil {
		return nil, err
	}
	if g.Op == "" {
		return left, nil
	}
	right, err := lowerAdd(g.Right)
	if err != nil {
		return nil, err
	}
	op := BinOp(g.Op)
	if g.Op == "!=" {
		op = OpNe
	}
	return Binary{Op: op, L: left, R: right}, nil
}

func lowerAdd(g *grammarAdd) (Expr, error) {
	expr, err := lowerMul(g.Left)
	if err != nil {
		return nil, err
	}
	for _, tail := range g.Rest {
		term, err := lowerMul(tail.Term)
		if err != nil {
			return nil, err
		}
		expr = Binary{Op: BinOp(tail.Op), L: expr, R: term}
	}
	return expr, nil
}

func lowerMul(g *grammarMul) (Expr, error) {
	expr, err := lowerUnary(g.Left)
	if err != nil {
		return nil, err
	}
	for _, tail := range g.Rest {
		term, err := lowerUnary(tail.Term)
		if err != nil {
			return nil, err
		}
		expr = Binary{Op: BinOp(tail.Op), L: expr, R: term}
	}
	return expr, nil
}

func lowerUnary(g *grammarUnary) (Expr, error) {
	if g.Neg != nil {
		inner, err := lowerUnary(g.Neg)
		if err != nil {
			return nil, err
		}
		return Unary{Op: "-", X: inner}, nil
	}
	if g.Pos != nil {
		// Unary plus is the identity.
		return lowerUnary(g.Pos)
	}
	return lowerAtom(g.Atom)
}

func lowerAtom(g *grammarAtom) (Expr, error) {
	switch {
	case g.Money != nil:
		return Number{Value: g.Money.Value, Unit: g.Money.Symbol}, nil
	case g.Number != nil:
		n := Number{Value: g.Number.Value}
		if s := g.Number.Suffix; s != nil {
			if s.Percent {
				n.Unit = "%"
			} else {
				n.Unit = renderUnit(s.Unit)
			}
		}
		return n, nil
	case g.Str != nil:
		text, err := strconv.Unquote(*g.Str)
		if err != nil {
			text = strings.Trim(*g.Str, `"`)
		}
		return StringLit{Value: text}, nil
	case g.Call != nil:
		return lowerCall(g.Call)
	case g.Range != nil:
		return RangeRef{Start: g.Range.Start, End: g.Range.End}, nil
	case g.Cell != nil:
		return CellRef{Ref: *g.Cell}, nil
	case g.Named != nil:
		return lowerIdent(*g.Named)
	case g.Paren != nil:
		return lowerCmp(g.Paren)
	}
	return nil, errors.New("empty atom")
}

// lowerIdent resolves a bare identifier: TRUE/FALSE are boolean
// literals, lowercase-leading names are named references, anything else
// is rejected so that "SUM" without parentheses fails loudly instead of
// resolving as a dangling name.
func lowerIdent(name string) (Expr, error) {
	switch strings.ToUpper(name) {
	case "TRUE":
		return BoolLit{Value: true}, nil
	case "FALSE":
		return BoolLit{Value: false}, nil
	}
	if name[0] == '_' || (name[0] >= 'a' && name[0] <= 'z') {
		return NamedRef{Name: name}, nil
	}
	return nil, &ParseError{Formula: name, Msg: fmt.Sprintf("unknown reference %q: named references start with a lowercase letter", name)}
}

func lowerCall(g *grammarCall) (Expr, error) {
	args := make([]Expr, 0, len(g.Args))
	for _, a := range g.Args {
		lowered, err := lowerCmp(a)
		if err != nil {
			return nil, err
		}
		args = append(args, lowered)
	}
	name := strings.ToUpper(g.Name)
	switch name {
	case "AND":
		return And{Args: args}, nil
	case "OR":
		return Or{Args: args}, nil
	case "NOT":
		if len(args) != 1 {
			return nil, &ParseError{Formula: g.Name, Msg: fmt.Sprintf("NOT takes exactly one argument, got %d", len(args))}
		}
		return Not{X: args[0]}, nil
	}
	return Call{Name: name, Args: args}, nil
}

// renderUnit rebuilds the unit text from the suffix grammar, normalizing
// whitespace: "$ / ft" becomes "$/ft".
func renderUnit(u *grammarUnit) string {
	if u == nil {
		return ""
	}
	var sb strings.Builder
	for i, f := range u.Num {
		if i > 0 {
			sb.WriteString("*")
		}
		writeFactor(&sb, f)
	}
	if len(u.Den) > 0 {
		sb.WriteString("/")
		for i, f := range u.Den {
			if i > 0 {
				sb.WriteString("*")
			}
			writeFactor(&sb, f)
		}
	}
	return sb.String()
}

func writeFactor(sb *strings.Builder, f *grammarUnitFactor) {
	sb.WriteString(f.Symbol)
	if f.Power != nil {
		sb.WriteString("^")
		sb.WriteString(*f.Power)
	}
}
