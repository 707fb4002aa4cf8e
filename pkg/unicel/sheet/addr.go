// Package sheet implements cell storage for one spreadsheet tab: the
// sparse cell map, the bidirectional dependency graph with cycle
// detection, and incremental recalculation in topological order.
package sheet

import (
	"fmt"
	"strconv"
	"strings"
)

// Addr identifies a cell by column letters and 1-based row. It is an
// immutable value key.
type Addr struct {
	Col string
	Row int
}

// ParseAddr parses an A1-style address. Column letters are normalized
// to upper case; the row must be at least one.
func ParseAddr(s string) (Addr, error) {
	trimmed := strings.TrimSpace(s)
	i := 0
	for i < len(trimmed) && isLetter(trimmed[i]) {
		i++
	}
	if i == 0 || i == len(trimmed) {
		return Addr{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	row, err := strconv.Atoi(trimmed[i:])
	if err != nil || row < 1 {
		return Addr{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return Addr{Col: strings.ToUpper(trimmed[:i]), Row: row}, nil
}

// MustAddr is ParseAddr for trusted literals; it panics on bad input.
func MustAddr(s string) Addr {
	a, err := ParseAddr(s)
	if err != nil {
		panic(err)
	}
	return a
}

func isLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func (a Addr) String() string {
	return a.Col + strconv.Itoa(a.Row)
}

// Less orders addresses column-major: column A before B before AA, then
// by row. Used wherever a deterministic cell order is needed.
func (a Addr) Less(b Addr) bool {
	if a.Col != b.Col {
		if len(a.Col) != len(b.Col) {
			return len(a.Col) < len(b.Col)
		}
		return a.Col < b.Col
	}
	return a.Row < b.Row
}
