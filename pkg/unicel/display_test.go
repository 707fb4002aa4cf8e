package unicel

import (
	"math"
	"strings"
	"testing"

	"github.com/jacksodj/unicel-sub000/pkg/unicel/sheet"
	"github.com/jacksodj/unicel-sub000/pkg/unicel/units"
)

func intPtr(v int) *int { return &v }

func TestRenderCellModes(t *testing.T) {
	lib := units.NewLibrary()
	mustUnit := func(sym string) units.Unit {
		t.Helper()
		u, err := lib.ParseSymbol(sym)
		if err != nil {
			t.Fatalf("ParseSymbol(%q): %v", sym, err)
		}
		return u
	}

	cases := []struct {
		name      string
		cell      sheet.Cell
		opts      DisplayOptions
		wantValue float64
		wantUnit  string
		wantText  string
	}{
		{
			name:      "as stored",
			cell:      sheet.ValueCell(10, mustUnit("m")),
			opts:      DefaultDisplayOptions(),
			wantValue: 10,
			wantUnit:  "m",
			wantText:  "10 m",
		},
		{
			name:      "metric mode converts imperial storage",
			cell:      sheet.ValueCell(10, mustUnit("ft")),
			opts:      DisplayOptions{Mode: ModeMetric},
			wantValue: 3.048,
			wantUnit:  "m",
			wantText:  "3.048 m",
		},
		{
			name:      "imperial mode with precision",
			cell:      sheet.ValueCell(10, mustUnit("m")),
			opts:      DisplayOptions{Mode: ModeImperial, Precision: intPtr(2)},
			wantValue: 10 / 0.3048,
			wantUnit:  "ft",
			wantText:  "32.81 ft",
		},
		{
			name: "explicit preference beats mode default",
			cell: sheet.ValueCell(2, mustUnit("km")),
			opts: DisplayOptions{
				Mode:      ModeMetric,
				Preferred: map[string]string{"Length": "mi"},
				Precision: intPtr(4),
			},
			wantValue: 2000 / 1609.344,
			wantUnit:  "mi",
			wantText:  "1.2427 mi",
		},
		{
			name:      "compound units stay as stored",
			cell:      sheet.ValueCell(15, mustUnit("USD/hr")),
			opts:      DisplayOptions{Mode: ModeMetric},
			wantValue: 15,
			wantUnit:  "USD/hr",
			wantText:  "15 USD/hr",
		},
		{
			name:      "unknown preferred symbol keeps storage",
			cell:      sheet.ValueCell(5, mustUnit("kg")),
			opts:      DisplayOptions{Preferred: map[string]string{"Mass": "stone7x"}},
			wantValue: 5,
			wantUnit:  "kg",
			wantText:  "5 kg",
		},
		{
			name:      "currency preference",
			cell:      sheet.ValueCell(10.8, mustUnit("USD")),
			opts:      DisplayOptions{Preferred: map[string]string{"Currency": "EUR"}, Precision: intPtr(2)},
			wantValue: 10,
			wantUnit:  "EUR",
			wantText:  "10.00 EUR",
		},
		{
			name:      "percent renders face value",
			cell:      sheet.ValueCell(0.15, mustUnit("%")),
			opts:      DefaultDisplayOptions(),
			wantValue: 0.15,
			wantUnit:  "%",
			wantText:  "15%",
		},
		{
			name:      "dimensionless has no suffix",
			cell:      sheet.ValueCell(42, units.Dimensionless()),
			opts:      DisplayOptions{Mode: ModeMetric},
			wantValue: 42,
			wantUnit:  "",
			wantText:  "42",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := RenderCell(lib, tc.cell, tc.opts)
			if got.Empty || got.IsError {
				t.Fatalf("unexpected state: %+v", got)
			}
			if math.Abs(got.Value-tc.wantValue) > 1e-9 {
				t.Errorf("value = %v, want %v", got.Value, tc.wantValue)
			}
			if got.Unit.Canonical != tc.wantUnit {
				t.Errorf("unit = %q, want %q", got.Unit.Canonical, tc.wantUnit)
			}
			if got.Formatted != tc.wantText {
				t.Errorf("formatted = %q, want %q", got.Formatted, tc.wantText)
			}
		})
	}
}

func TestRenderCellDisplayUnitWins(t *testing.T) {
	lib := units.NewLibrary()
	m, _ := lib.ParseSymbol("m")
	in, err := lib.ParseSymbol("in")
	if err != nil {
		t.Fatal(err)
	}
	cell := sheet.ValueCell(1, m)
	cell.DisplayUnit = &in

	got := RenderCell(lib, cell, DisplayOptions{Mode: ModeMetric})
	if got.Unit.Canonical != "in" {
		t.Fatalf("unit = %q, want in (cell display unit over mode)", got.Unit.Canonical)
	}
	if math.Abs(got.Value-1/0.0254) > 1e-9 {
		t.Errorf("value = %v, want %v", got.Value, 1/0.0254)
	}
}

func TestRenderCellErrorAndEmpty(t *testing.T) {
	lib := units.NewLibrary()

	errCell := sheet.Cell{Value: sheet.ErrorValue("cell not found")}
	got := RenderCell(lib, errCell, DefaultDisplayOptions())
	if !got.IsError || got.Message != "cell not found" {
		t.Fatalf("error cell rendered as %+v", got)
	}
	if !strings.HasPrefix(got.Formatted, "#ERROR") {
		t.Errorf("formatted = %q", got.Formatted)
	}

	empty := RenderCell(lib, sheet.Cell{}, DefaultDisplayOptions())
	if !empty.Empty {
		t.Fatalf("empty cell rendered as %+v", empty)
	}
}

func TestDisplayCell(t *testing.T) {
	wb := New("book")
	sh, _ := wb.AddSheet("Sheet1")
	if err := sh.SetValue(sheet.MustAddr("A1"), 1000, "m"); err != nil {
		t.Fatal(err)
	}

	got, err := wb.DisplayCell("Sheet1", sheet.MustAddr("A1"), DisplayOptions{
		Preferred: map[string]string{"Length": "km"},
	})
	if err != nil {
		t.Fatalf("DisplayCell: %v", err)
	}
	if got.Formatted != "1 km" {
		t.Errorf("formatted = %q, want %q", got.Formatted, "1 km")
	}

	// Rendering never touches the stored cell.
	cell, _ := sh.Get(sheet.MustAddr("A1"))
	if cell.Value.Number != 1000 || cell.StorageUnit.Canonical != "m" {
		t.Fatalf("stored cell mutated: %v %s", cell.Value.Number, cell.StorageUnit)
	}

	if blank, err := wb.DisplayCell("Sheet1", sheet.MustAddr("Z99"), DefaultDisplayOptions()); err != nil || !blank.Empty {
		t.Fatalf("missing cell: %+v, %v", blank, err)
	}
	if _, err := wb.DisplayCell("Nope", sheet.MustAddr("A1"), DefaultDisplayOptions()); err == nil {
		t.Fatal("missing sheet did not error")
	}
}
