package xlsx

import (
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/jacksodj/unicel-sub000/pkg/unicel"
	"github.com/jacksodj/unicel-sub000/pkg/unicel/sheet"
	"github.com/jacksodj/unicel-sub000/pkg/unicel/units"
)

func TestExportImportRoundTrip(t *testing.T) {
	wb := unicel.New("invoice")
	sh, err := wb.AddSheet("Sheet1")
	if err != nil {
		t.Fatal(err)
	}
	mustSet := func(addr string, v float64, symbol string) {
		t.Helper()
		if err := sh.SetValue(sheet.MustAddr(addr), v, symbol); err != nil {
			t.Fatal(err)
		}
	}
	mustSet("A1", 2, "ft")
	mustSet("B1", 15, "$/ft")
	mustSet("D1", 0.15, "%")
	if err := sh.SetFormula(sheet.MustAddr("C1"), "=A1*B1"); err != nil {
		t.Fatal(err)
	}
	sh.Recalculate(sheet.MustAddr("A1"), sheet.MustAddr("B1"))

	path := filepath.Join(t.TempDir(), "invoice.xlsx")
	if err := Export(wb, path, unicel.DefaultDisplayOptions()); err != nil {
		t.Fatalf("Export: %v", err)
	}

	imported, err := Import(path)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	got, ok := imported.Sheet("Sheet1")
	if !ok {
		t.Fatal("Sheet1 missing after import")
	}

	a1, _ := got.Get(sheet.MustAddr("A1"))
	if a1.Value.Number != 2 || a1.StorageUnit.Canonical != "ft" {
		t.Errorf("A1 = %v %s, want 2 ft", a1.Value.Number, a1.StorageUnit)
	}
	b1, _ := got.Get(sheet.MustAddr("B1"))
	if b1.Value.Number != 15 || b1.StorageUnit.Canonical != "USD/ft" {
		t.Errorf("B1 = %v %s, want 15 USD/ft", b1.Value.Number, b1.StorageUnit)
	}
	c1, _ := got.Get(sheet.MustAddr("C1"))
	if c1.Value.Number != 30 || c1.StorageUnit.Canonical != "USD" {
		t.Errorf("C1 = %v %s, want 30 USD", c1.Value.Number, c1.StorageUnit)
	}
	if c1.Formula == "" {
		t.Error("C1 formula lost in round trip")
	}
	d1, _ := got.Get(sheet.MustAddr("D1"))
	if !d1.StorageUnit.IsPercent() || d1.Value.Number != 0.15 {
		t.Errorf("D1 = %v %s, want 0.15 %%", d1.Value.Number, d1.StorageUnit)
	}

	// The imported graph recalculates like the original.
	if err := got.SetValue(sheet.MustAddr("A1"), 4, "ft"); err != nil {
		t.Fatal(err)
	}
	got.Recalculate(sheet.MustAddr("A1"))
	c1, _ = got.Get(sheet.MustAddr("C1"))
	if c1.Value.Number != 60 {
		t.Errorf("C1 after recalculation = %v, want 60", c1.Value.Number)
	}
}

func TestExportAppliesDisplayConversion(t *testing.T) {
	wb := unicel.New("site")
	sh, _ := wb.AddSheet("Sheet1")
	if err := sh.SetValue(sheet.MustAddr("A1"), 10, "m"); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "site.xlsx")
	prec := 2
	opts := unicel.DisplayOptions{Mode: unicel.ModeImperial, Precision: &prec}
	if err := Export(wb, path, opts); err != nil {
		t.Fatalf("Export: %v", err)
	}

	// The stored workbook keeps metric storage.
	a1, _ := sh.Get(sheet.MustAddr("A1"))
	if a1.Value.Number != 10 || a1.StorageUnit.Canonical != "m" {
		t.Fatalf("stored cell mutated by export: %v %s", a1.Value.Number, a1.StorageUnit)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	raw, err := f.GetCellValue("Sheet1", "A1", excelize.Options{RawCellValue: true})
	if err != nil {
		t.Fatal(err)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		t.Fatalf("exported value %q is not numeric", raw)
	}
	if math.Abs(v-10/0.3048) > 1e-9 {
		t.Errorf("exported value = %v, want %v", v, 10/0.3048)
	}

	styleID, err := f.GetCellStyle("Sheet1", "A1")
	if err != nil {
		t.Fatal(err)
	}
	style, err := f.GetStyle(styleID)
	if err != nil {
		t.Fatal(err)
	}
	if style.CustomNumFmt == nil || !strings.Contains(*style.CustomNumFmt, "ft") {
		t.Errorf("number format = %v, want ft suffix", style.CustomNumFmt)
	}
}

func TestToExcelFormula(t *testing.T) {
	names := map[string]sheet.Addr{"tax_rate": sheet.MustAddr("B1")}
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"=A1*B1", "A1 * B1", true},
		{"=SUM(C1:C2)", "SUM(C1:C2)", true},
		{"=IF(A1>2, 1, 0)", "IF(A1 > 2, 1, 0)", true},
		{"=10% * A1", "10% * A1", true},
		{"=ROUND(A1, 2)", "ROUND(A1, 2)", true},
		{"=A1*tax_rate", "A1 * tax_rate", true},
		{"=100 m + A1", "", false},
		{"=A1*unknown_rate", "", false},
		{`=CONVERT(A1, "km")`, "", false},
		{"=PERCENT(10)", "", false},
		{"=GT(A1, B1)", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, ok := toExcelFormula(tc.in, names)
			if ok != tc.ok {
				t.Fatalf("toExcelFormula(%q) ok = %v, want %v", tc.in, ok, tc.ok)
			}
			if ok && got != tc.want {
				t.Errorf("toExcelFormula(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestDefinedNameRoundTrip(t *testing.T) {
	wb := unicel.New("taxes")
	sh, _ := wb.AddSheet("Sheet1")
	if err := sh.SetValue(sheet.MustAddr("A1"), 100, "$"); err != nil {
		t.Fatal(err)
	}
	if err := sh.SetValue(sheet.MustAddr("B1"), 0.2, "%"); err != nil {
		t.Fatal(err)
	}
	if err := sh.DefineName("tax_rate", sheet.MustAddr("B1")); err != nil {
		t.Fatal(err)
	}
	if err := sh.SetFormula(sheet.MustAddr("C1"), "=A1*tax_rate"); err != nil {
		t.Fatal(err)
	}
	sh.Recalculate(sheet.MustAddr("A1"), sheet.MustAddr("B1"))

	path := filepath.Join(t.TempDir(), "taxes.xlsx")
	if err := Export(wb, path, unicel.DefaultDisplayOptions()); err != nil {
		t.Fatalf("Export: %v", err)
	}
	imported, err := Import(path)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	got, _ := imported.Sheet("Sheet1")

	addr, ok := got.NameAddr("tax_rate")
	if !ok || addr != sheet.MustAddr("B1") {
		t.Fatalf("NameAddr(tax_rate) = %v, %v, want B1", addr, ok)
	}
	c1, _ := got.Get(sheet.MustAddr("C1"))
	if c1.Formula == "" {
		t.Fatal("named-reference formula lost in round trip")
	}
	if c1.Value.Number != 20 {
		t.Errorf("C1 = %v, want 20", c1.Value.Number)
	}

	// The recovered name participates in recalculation.
	if err := got.SetValue(sheet.MustAddr("B1"), 0.5, "%"); err != nil {
		t.Fatal(err)
	}
	got.Recalculate(sheet.MustAddr("B1"))
	c1, _ = got.Get(sheet.MustAddr("C1"))
	if c1.Value.Number != 50 {
		t.Errorf("C1 after rate change = %v, want 50", c1.Value.Number)
	}
}

func TestLooksLikeCellRef(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"abc1", true},
		{"a1", true},
		{"xfd1048576", true},
		{"tax_rate", false},
		{"rate", false},
		{"abcd1", false},
		{"a1b", false},
		{"_a1", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := looksLikeCellRef(tc.name); got != tc.want {
				t.Errorf("looksLikeCellRef(%q) = %v, want %v", tc.name, got, tc.want)
			}
		})
	}
}

func TestParseRefersTo(t *testing.T) {
	cases := []struct {
		in    string
		sheet string
		addr  string
		ok    bool
	}{
		{"Sheet1!$A$1", "Sheet1", "A1", true},
		{"'My Sheet'!$B$2", "My Sheet", "B2", true},
		{"'O''Brien'!$C$3", "O'Brien", "C3", true},
		{"Sheet1!$A$1:$B$2", "", "", false},
		{"$A$1", "", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			name, addr, ok := parseRefersTo(tc.in)
			if ok != tc.ok {
				t.Fatalf("parseRefersTo(%q) ok = %v, want %v", tc.in, ok, tc.ok)
			}
			if !ok {
				return
			}
			if name != tc.sheet || addr != sheet.MustAddr(tc.addr) {
				t.Errorf("parseRefersTo(%q) = %q, %v", tc.in, name, addr)
			}
		})
	}
}

func TestRewriteFormula(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"A1+B2", "A1 + B2", true},
		{"SUM($A$1:$A$3)", "SUM(A1:A3)", true},
		{"IF(A1>2,1,0)", "IF(A1 > 2, 1, 0)", true},
		{`CONVERT(A1, "km")`, `CONVERT(A1, "km")`, true},
		{"TRUE", "TRUE", true},
		{"Sheet2!A1", "", false},
		{"2^3", "", false},
		{`A1&"x"`, "", false},
		{"VLOOKUP(A1,B1:B9,1)", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, ok := rewriteFormula(tc.in)
			if ok != tc.ok {
				t.Fatalf("rewriteFormula(%q) ok = %v, got %q", tc.in, ok, got)
			}
			if ok && got != tc.want {
				t.Errorf("rewriteFormula(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNumberFormat(t *testing.T) {
	lib := units.NewLibrary()
	m, _ := lib.ParseSymbol("m")
	rate, err := lib.ParseSymbol("$/ft")
	if err != nil {
		t.Fatal(err)
	}
	pct, _ := lib.ParseSymbol("%")
	two := 2
	zero := 0

	cases := []struct {
		name string
		unit units.Unit
		prec *int
		want string
	}{
		{"full precision", m, nil, `0.############" m"`},
		{"two digits", m, &two, `0.00" m"`},
		{"integer", m, &zero, `0" m"`},
		{"compound keeps user text", rate, nil, `0.############" $/ft"`},
		{"percent", pct, &two, "0.00%"},
		{"dimensionless", units.Dimensionless(), nil, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := numberFormat(tc.unit, tc.prec); got != tc.want {
				t.Errorf("numberFormat = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestImportTextAndUnsupportedFormula(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetCellValue("Sheet1", "A1", "hello world"); err != nil {
		t.Fatal(err)
	}
	if err := f.SetCellValue("Sheet1", "B1", 42); err != nil {
		t.Fatal(err)
	}
	if err := f.SetCellValue("Sheet1", "C1", 9); err != nil {
		t.Fatal(err)
	}
	if err := f.SetCellFormula("Sheet1", "C1", "3^2"); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "mixed.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}

	wb, err := Import(path)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	sh, _ := wb.Sheet("Sheet1")

	a1, ok := sh.Get(sheet.MustAddr("A1"))
	if !ok || a1.Value.Kind != sheet.ValueEmpty || !strings.Contains(a1.Warning, "text cell") {
		t.Errorf("A1 = %#v", a1)
	}

	b1, _ := sh.Get(sheet.MustAddr("B1"))
	if b1.Value.Number != 42 || !b1.StorageUnit.IsDimensionless() {
		t.Errorf("B1 = %v %s", b1.Value.Number, b1.StorageUnit)
	}

	c1, _ := sh.Get(sheet.MustAddr("C1"))
	if c1.Formula != "" {
		t.Errorf("C1 kept untranslatable formula %q", c1.Formula)
	}
	if c1.Value.Number != 9 || !strings.Contains(c1.Warning, "unsupported Excel formula") {
		t.Errorf("C1 = %v warning %q", c1.Value.Number, c1.Warning)
	}

	if wb.Name() != "mixed" {
		t.Errorf("workbook name = %q, want mixed", wb.Name())
	}
}
