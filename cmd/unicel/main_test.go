package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/jacksodj/unicel-sub000/internal/logging"
	"github.com/jacksodj/unicel-sub000/pkg/unicel"
	"github.com/jacksodj/unicel-sub000/pkg/unicel/sheet"
	"github.com/jacksodj/unicel-sub000/pkg/unicel/usheet"
)

// runCLI executes one command line against a fresh command tree.
// Reconstructing the tree re-registers every flag, which resets the
// shared flag variables to their defaults between invocations.
func runCLI(t *testing.T, args ...string) error {
	t.Helper()
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	return root.Execute()
}

func mustRun(t *testing.T, args ...string) {
	t.Helper()
	if err := runCLI(t, args...); err != nil {
		t.Fatalf("unicel %v: %v", args, err)
	}
}

func mustLoad(t *testing.T, path string) *unicel.Workbook {
	t.Helper()
	wb, err := usheet.Load(path)
	if err != nil {
		t.Fatalf("Load(%s): %v", path, err)
	}
	return wb
}

func TestNewCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.usheet")
	mustRun(t, "new", path, "--name", "q3-plan", "--sheet", "Budget", "--sheet", "Forecast")

	wb := mustLoad(t, path)
	if wb.Name() != "q3-plan" {
		t.Errorf("Name() = %q, want q3-plan", wb.Name())
	}
	names := wb.SheetNames()
	if len(names) != 2 || names[0] != "Budget" || names[1] != "Forecast" {
		t.Errorf("SheetNames() = %v, want [Budget Forecast]", names)
	}

	if err := runCLI(t, "new", path); err == nil {
		t.Error("expected error when the file already exists")
	}
}

func TestNewDefaultsNameFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "expenses.usheet")
	mustRun(t, "new", path)

	wb := mustLoad(t, path)
	if wb.Name() != "expenses" {
		t.Errorf("Name() = %q, want expenses", wb.Name())
	}
}

func TestSetAndRecalculate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.usheet")
	mustRun(t, "new", path, "--sheet", "Budget")
	mustRun(t, "set", "A1", "-w", path, "--value", "2", "--unit", "ft")
	mustRun(t, "set", "B1", "-w", path, "--value", "15", "--unit", "$/ft")
	mustRun(t, "set", "C1", "-w", path, "--formula", "=A1*B1")

	wb := mustLoad(t, path)
	sh, ok := wb.Sheet("Budget")
	if !ok {
		t.Fatal("Budget sheet missing after set")
	}
	cell, ok := sh.Get(sheet.MustAddr("C1"))
	if !ok {
		t.Fatal("C1 missing after set")
	}
	if cell.Value.Kind != sheet.ValueNumber || cell.Value.Number != 30 {
		t.Errorf("C1 = %+v, want number 30", cell.Value)
	}
	if cell.StorageUnit.Canonical != "USD" {
		t.Errorf("C1 unit = %q, want USD", cell.StorageUnit.Canonical)
	}
}

func TestSetValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.usheet")
	mustRun(t, "new", path)
	mustRun(t, "set", "A1", "-w", path, "--value", "2", "--unit", "ft")

	tests := []struct {
		name string
		args []string
	}{
		{"value and formula together", []string{"set", "B1", "-w", path, "--value", "1", "--formula", "=A1"}},
		{"neither value nor formula", []string{"set", "B1", "-w", path}},
		{"unit on a formula", []string{"set", "B1", "-w", path, "--formula", "=A1", "--unit", "m"}},
		{"malformed unit", []string{"set", "B1", "-w", path, "--value", "1", "--unit", "m//s"}},
		{"self reference", []string{"set", "A1", "-w", path, "--formula", "=A1+1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := runCLI(t, tt.args...); err == nil {
				t.Errorf("unicel %v: expected error", tt.args)
			}
		})
	}

	// Rejected writes must leave the stored cell untouched.
	wb := mustLoad(t, path)
	sh, _ := wb.Sheet("Sheet1")
	cell, ok := sh.Get(sheet.MustAddr("A1"))
	if !ok || cell.Value.Number != 2 || cell.StorageUnit.String() != "ft" {
		t.Errorf("A1 changed by rejected writes: %+v", cell)
	}
}

func TestRemoveCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.usheet")
	mustRun(t, "new", path)
	mustRun(t, "set", "A1", "-w", path, "--value", "2", "--unit", "ft")
	mustRun(t, "set", "B1", "-w", path, "--formula", "=A1*2")
	mustRun(t, "remove", "A1", "-w", path)

	wb := mustLoad(t, path)
	sh, _ := wb.Sheet("Sheet1")
	if _, ok := sh.Get(sheet.MustAddr("A1")); ok {
		t.Error("A1 still present after remove")
	}
	cell, ok := sh.Get(sheet.MustAddr("B1"))
	if !ok {
		t.Fatal("B1 missing after remove")
	}
	if cell.Value.Kind != sheet.ValueError {
		t.Errorf("B1 = %+v, want an error value for the broken reference", cell.Value)
	}
}

func TestNameCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.usheet")
	mustRun(t, "new", path)
	mustRun(t, "set", "A1", "-w", path, "--value", "0.2", "--unit", "%")
	mustRun(t, "name", "tax_rate", "A1", "-w", path)
	mustRun(t, "name", "--list", "-w", path)

	wb := mustLoad(t, path)
	sh, _ := wb.Sheet("Sheet1")
	addr, ok := sh.NameAddr("tax_rate")
	if !ok || addr != sheet.MustAddr("A1") {
		t.Errorf("NameAddr(tax_rate) = %v, %v, want A1", addr, ok)
	}

	if err := runCLI(t, "name", "TaxRate", "A1", "-w", path); err == nil {
		t.Error("expected error for an invalid name")
	}
}

func TestEvalCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.usheet")
	mustRun(t, "new", path)
	mustRun(t, "set", "A1", "-w", path, "--value", "10", "--unit", "m")

	mustRun(t, "eval", "=A1 + 5 m", "-w", path)

	if err := runCLI(t, "eval", "=A1 + 5 s", "-w", path); err == nil {
		t.Error("expected error for incompatible units")
	}
	if err := runCLI(t, "eval", "=1 +", "-w", path); err == nil {
		t.Error("expected error for a malformed formula")
	}

	// eval must not write anything back.
	wb := mustLoad(t, path)
	sh, _ := wb.Sheet("Sheet1")
	if sh.Len() != 1 {
		t.Errorf("Len() = %d after eval, want 1", sh.Len())
	}
}

func TestRecalcCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.usheet")
	mustRun(t, "new", path)
	mustRun(t, "set", "A1", "-w", path, "--value", "3", "--unit", "kg")
	mustRun(t, "set", "B1", "-w", path, "--formula", "=A1*2")
	mustRun(t, "recalc", "-w", path)

	wb := mustLoad(t, path)
	sh, _ := wb.Sheet("Sheet1")
	cell, _ := sh.Get(sheet.MustAddr("B1"))
	if cell.Value.Number != 6 {
		t.Errorf("B1 = %v after recalc, want 6", cell.Value.Number)
	}
}

func TestGetCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.usheet")
	mustRun(t, "new", path)
	mustRun(t, "set", "A1", "-w", path, "--value", "1000", "--unit", "m")

	mustRun(t, "get", "A1", "-w", path)
	mustRun(t, "get", "A1", "-w", path, "--json")
	mustRun(t, "get", "Z9", "-w", path)
	mustRun(t, "get", "A1", "-w", path, "--mode", "imperial")

	if err := runCLI(t, "get", "A1", "-w", path, "--mode", "nautical"); err == nil {
		t.Error("expected error for an unknown display mode")
	}
	if err := runCLI(t, "get", "bogus!", "-w", path); err == nil {
		t.Error("expected error for a malformed address")
	}
	if err := runCLI(t, "get", "A1", "-w", path, "--sheet", "Missing"); err == nil {
		t.Error("expected error for an unknown sheet")
	}
}

func TestSheetsCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.usheet")
	mustRun(t, "new", path, "--sheet", "Budget", "--sheet", "Forecast")
	mustRun(t, "sheets", "-w", path)
	mustRun(t, "sheets", "-w", path, "--json")
}

func TestUnitsCommand(t *testing.T) {
	mustRun(t, "units")
	mustRun(t, "units", "USD/hr")
	mustRun(t, "units", "widgets")

	if err := runCLI(t, "units", "m//s"); err == nil {
		t.Error("expected error for a malformed symbol")
	}
}

func TestConvertCommand(t *testing.T) {
	mustRun(t, "convert", "1000", "m", "km")
	mustRun(t, "convert", "2.5", "hr", "min")

	if err := runCLI(t, "convert", "1", "m", "s"); err == nil {
		t.Error("expected error for incompatible dimensions")
	}
	if err := runCLI(t, "convert", "abc", "m", "km"); err == nil {
		t.Error("expected error for a non-numeric value")
	}
}

func TestConvertWithCurrencyRates(t *testing.T) {
	dir := t.TempDir()
	settingsFile := filepath.Join(dir, "settings.yaml")
	yaml := "display_mode: as-stored\ncurrency_rates:\n  CHF: 1.12\n"
	if err := os.WriteFile(settingsFile, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	mustRun(t, "convert", "100", "CHF", "USD", "--settings", settingsFile)

	// Without a rate CHF is just a custom symbol, not a currency.
	if err := runCLI(t, "convert", "100", "CHF", "USD"); err == nil {
		t.Error("expected error without a configured CHF rate")
	}
}

func TestExportImportCommands(t *testing.T) {
	dir := t.TempDir()
	book := filepath.Join(dir, "book.usheet")
	excel := filepath.Join(dir, "book.xlsx")
	imported := filepath.Join(dir, "imported.usheet")

	mustRun(t, "new", book, "--sheet", "Budget")
	mustRun(t, "set", "A1", "-w", book, "--value", "2", "--unit", "ft")
	mustRun(t, "set", "B1", "-w", book, "--formula", "=A1*3")
	mustRun(t, "export", excel, "-w", book)
	mustRun(t, "import", excel, "-w", imported)

	wb := mustLoad(t, imported)
	sh, ok := wb.Sheet("Budget")
	if !ok {
		t.Fatal("Budget sheet missing after import")
	}
	cell, ok := sh.Get(sheet.MustAddr("A1"))
	if !ok || cell.Value.Number != 2 {
		t.Errorf("imported A1 = %+v, want 2", cell.Value)
	}

	if err := runCLI(t, "import", excel, "-w", imported); err == nil {
		t.Error("expected error overwriting without --force")
	}
	mustRun(t, "import", excel, "-w", imported, "--force")
}

func TestWorkbookPathFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.usheet")
	mustRun(t, "new", path)

	t.Setenv("UNICEL_WORKBOOK", path)
	mustRun(t, "sheets")

	t.Setenv("UNICEL_WORKBOOK", "")
	if err := runCLI(t, "sheets"); err == nil {
		t.Error("expected error with no workbook path anywhere")
	}
}

func TestSettingsFromEnv(t *testing.T) {
	dir := t.TempDir()
	settingsFile := filepath.Join(dir, "settings.yaml")
	yaml := "display_mode: metric\nprecision: 1\n"
	if err := os.WriteFile(settingsFile, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	book := filepath.Join(dir, "book.usheet")
	mustRun(t, "new", book)
	mustRun(t, "set", "A1", "-w", book, "--value", "3", "--unit", "ft")

	t.Setenv("UNICEL_SETTINGS", settingsFile)
	mustRun(t, "get", "A1", "-w", book)

	t.Setenv("UNICEL_SETTINGS", filepath.Join(dir, "missing.yaml"))
	if err := runCLI(t, "get", "A1", "-w", book); err == nil {
		t.Error("expected error for a missing settings file")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    logging.Level
		wantErr bool
	}{
		{"debug", logging.LevelDebug, false},
		{"INFO", logging.LevelInfo, false},
		{"warn", logging.LevelWarn, false},
		{"error", logging.LevelError, false},
		{"verbose", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			level, err := parseLogLevel(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseLogLevel(%q): expected error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseLogLevel(%q): %v", tt.in, err)
			}
			if level != tt.want {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, level, tt.want)
			}
		})
	}
}
