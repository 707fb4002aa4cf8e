// Package main provides the CLI entry point for unicel.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jacksodj/unicel-sub000/internal/logging"
	"github.com/jacksodj/unicel-sub000/internal/rpc"
	"github.com/jacksodj/unicel-sub000/pkg/unicel"
	"github.com/jacksodj/unicel-sub000/pkg/unicel/settings"
	"github.com/jacksodj/unicel-sub000/pkg/unicel/sheet"
	"github.com/jacksodj/unicel-sub000/pkg/unicel/units"
	"github.com/jacksodj/unicel-sub000/pkg/unicel/usheet"
	"github.com/jacksodj/unicel-sub000/pkg/unicel/xlsx"
)

var (
	workbookPath string
	settingsPath string
	sheetName    string
	asJSON       bool
	modeOverride string

	newName   string
	newSheets []string

	setValue   float64
	setUnit    string
	setFormula string
	setDisplay string

	nameList bool

	importForce bool

	listenAddr string
	useStdio   bool
	logLevel   string
	logFormat  string
)

func main() {
	// Optional .env for UNICEL_WORKBOOK, UNICEL_SETTINGS, UNICEL_LISTEN.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "unicel",
		Short: "Unit-aware spreadsheet engine",
		Long: `unicel is a spreadsheet engine whose cells carry physical and
financial units. Formulas convert and cancel units automatically:
2 ft * 15 $/ft is 30 USD.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&workbookPath, "workbook", "w", "", "Workbook file (.usheet); defaults to $UNICEL_WORKBOOK")
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "Settings file (YAML); defaults to $UNICEL_SETTINGS")

	rootCmd.AddCommand(
		newNewCmd(),
		newGetCmd(),
		newSetCmd(),
		newRemoveCmd(),
		newNameCmd(),
		newEvalCmd(),
		newRecalcCmd(),
		newSheetsCmd(),
		newUnitsCmd(),
		newConvertCmd(),
		newExportCmd(),
		newImportCmd(),
		newServeCmd(),
	)
	return rootCmd
}

func newNewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new [book.usheet]",
		Short: "Create an empty workbook file",
		Args:  cobra.ExactArgs(1),
		RunE:  runNew,
	}
	cmd.Flags().StringVar(&newName, "name", "", "Workbook name (default: file name)")
	cmd.Flags().StringSliceVar(&newSheets, "sheet", []string{"Sheet1"}, "Sheet names to create")
	return cmd
}

func runNew(cmd *cobra.Command, args []string) error {
	path := args[0]
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("file already exists: %s", path)
	}

	name := newName
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	wb := unicel.New(name)
	for _, s := range newSheets {
		if _, err := wb.AddSheet(s); err != nil {
			return fmt.Errorf("add sheet: %w", err)
		}
	}
	if err := usheet.Save(wb, path); err != nil {
		return err
	}
	fmt.Printf("created %s with %d sheet(s)\n", path, len(newSheets))
	return nil
}

// cellJSON is the get command's --json output shape.
type cellJSON struct {
	Sheet     string   `json:"sheet"`
	Address   string   `json:"address"`
	Empty     bool     `json:"empty,omitempty"`
	Value     *float64 `json:"value,omitempty"`
	Unit      string   `json:"unit,omitempty"`
	Formula   string   `json:"formula,omitempty"`
	Error     string   `json:"error,omitempty"`
	Warning   string   `json:"warning,omitempty"`
	Formatted string   `json:"formatted,omitempty"`
}

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get [address]",
		Short: "Read one cell",
		Args:  cobra.ExactArgs(1),
		RunE:  runGet,
	}
	cmd.Flags().StringVarP(&sheetName, "sheet", "s", "", "Sheet name (default: first sheet)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the cell as JSON")
	cmd.Flags().StringVar(&modeOverride, "mode", "", "Display mode override: as-stored, metric, imperial")
	return cmd
}

func runGet(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}
	wb, _, err := loadWorkbook(cfg)
	if err != nil {
		return err
	}
	sh, err := pickSheet(wb)
	if err != nil {
		return err
	}
	addr, err := sheet.ParseAddr(args[0])
	if err != nil {
		return err
	}
	opts, err := displayOptions(cfg)
	if err != nil {
		return err
	}

	rendered, err := wb.DisplayCell(sh.Name(), addr, opts)
	if err != nil {
		return err
	}
	cell, _ := sh.Get(addr)

	if asJSON {
		out := cellJSON{
			Sheet:     sh.Name(),
			Address:   addr.String(),
			Formula:   cell.Formula,
			Warning:   cell.Warning,
			Formatted: rendered.Formatted,
		}
		switch {
		case rendered.Empty:
			out.Empty = true
		case rendered.IsError:
			out.Error = rendered.Message
		default:
			v := rendered.Value
			out.Value = &v
			out.Unit = rendered.Unit.String()
		}
		return printJSON(out)
	}

	if rendered.Empty {
		fmt.Printf("%s!%s is empty\n", sh.Name(), addr)
		return nil
	}
	line := fmt.Sprintf("%s!%s = %s", sh.Name(), addr, rendered.Formatted)
	if cell.IsFormula() {
		line += "  [" + cell.Formula + "]"
	}
	fmt.Println(line)
	if rendered.Warning != "" {
		fmt.Fprintf(os.Stderr, "warning: %s\n", rendered.Warning)
	}
	return nil
}

func newSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set [address]",
		Short: "Write a value or formula to a cell",
		Long: `Writes a literal value with an optional unit, or a formula,
then recalculates the affected cells and saves the workbook.
Cycles and parse failures are rejected without changing anything.`,
		Args: cobra.ExactArgs(1),
		RunE: runSet,
	}
	cmd.Flags().StringVarP(&sheetName, "sheet", "s", "", "Sheet name (default: first sheet)")
	cmd.Flags().Float64Var(&setValue, "value", 0, "Literal value to store")
	cmd.Flags().StringVar(&setUnit, "unit", "", "Unit symbol for the value, e.g. m, $, USD/hr")
	cmd.Flags().StringVar(&setFormula, "formula", "", "Formula to store, e.g. =A1*B1")
	cmd.Flags().StringVar(&setDisplay, "display-unit", "", "Render the cell in this unit")
	return cmd
}

func runSet(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}
	wb, path, err := loadWorkbook(cfg)
	if err != nil {
		return err
	}
	sh, err := pickSheet(wb)
	if err != nil {
		return err
	}
	addr, err := sheet.ParseAddr(args[0])
	if err != nil {
		return err
	}

	hasValue := cmd.Flags().Changed("value")
	if setFormula != "" && hasValue {
		return fmt.Errorf("choose one of --formula or --value")
	}
	if setFormula == "" && !hasValue {
		return fmt.Errorf("one of --formula or --value is required")
	}

	lib := wb.Library()
	var cell sheet.Cell
	if setFormula != "" {
		if setUnit != "" {
			return fmt.Errorf("--unit applies to literal values, not formulas")
		}
		cell = sheet.FormulaCell(setFormula)
	} else {
		unit, err := lib.ParseSymbol(setUnit)
		if err != nil {
			return err
		}
		cell = sheet.ValueCell(setValue, unit)
	}
	if setDisplay != "" {
		du, err := lib.ParseSymbol(setDisplay)
		if err != nil {
			return err
		}
		cell.DisplayUnit = &du
	}

	if err := sh.Set(addr, cell); err != nil {
		return err
	}
	evaluated := sh.Recalculate(addr)
	if err := usheet.Save(wb, path); err != nil {
		return err
	}

	opts, err := displayOptions(cfg)
	if err != nil {
		return err
	}
	stored, _ := sh.Get(addr)
	fmt.Printf("%s!%s = %s\n", sh.Name(), addr, unicel.RenderCell(lib, stored, opts).Formatted)
	if len(evaluated) > 0 {
		fmt.Printf("recalculated: %s\n", joinAddrs(evaluated))
	}
	return nil
}

func newRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove [address]",
		Short: "Clear a cell",
		Args:  cobra.ExactArgs(1),
		RunE:  runRemove,
	}
	cmd.Flags().StringVarP(&sheetName, "sheet", "s", "", "Sheet name (default: first sheet)")
	return cmd
}

func runRemove(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}
	wb, path, err := loadWorkbook(cfg)
	if err != nil {
		return err
	}
	sh, err := pickSheet(wb)
	if err != nil {
		return err
	}
	addr, err := sheet.ParseAddr(args[0])
	if err != nil {
		return err
	}

	sh.Remove(addr)
	evaluated := sh.Recalculate(addr)
	if err := usheet.Save(wb, path); err != nil {
		return err
	}

	fmt.Printf("removed %s!%s\n", sh.Name(), addr)
	if len(evaluated) > 0 {
		fmt.Printf("recalculated: %s\n", joinAddrs(evaluated))
	}
	return nil
}

func newNameCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "name [name] [address]",
		Short: "Define a named reference, or list them",
		Long: `Binds a name like tax_rate to a cell so formulas can read it
as =A1 * tax_rate. Names start with a lowercase letter or underscore.`,
		Args: cobra.RangeArgs(0, 2),
		RunE: runName,
	}
	cmd.Flags().StringVarP(&sheetName, "sheet", "s", "", "Sheet name (default: first sheet)")
	cmd.Flags().BoolVar(&nameList, "list", false, "List defined names")
	return cmd
}

func runName(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}
	wb, path, err := loadWorkbook(cfg)
	if err != nil {
		return err
	}
	sh, err := pickSheet(wb)
	if err != nil {
		return err
	}

	if nameList || len(args) == 0 {
		names := sh.Names()
		if len(names) == 0 {
			fmt.Printf("%s has no defined names\n", sh.Name())
			return nil
		}
		keys := make([]string, 0, len(names))
		for name := range names {
			keys = append(keys, name)
		}
		sort.Strings(keys)
		for _, name := range keys {
			fmt.Printf("%s\t%s\n", name, names[name])
		}
		return nil
	}

	if len(args) != 2 {
		return fmt.Errorf("usage: unicel name <name> <address>")
	}
	addr, err := sheet.ParseAddr(args[1])
	if err != nil {
		return err
	}
	if err := sh.DefineName(args[0], addr); err != nil {
		return err
	}
	if err := usheet.Save(wb, path); err != nil {
		return err
	}
	fmt.Printf("defined %s = %s!%s\n", args[0], sh.Name(), addr)
	return nil
}

func newEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval [formula]",
		Short: "Evaluate a formula without changing the workbook",
		Args:  cobra.ExactArgs(1),
		RunE:  runEval,
	}
	cmd.Flags().StringVarP(&sheetName, "sheet", "s", "", "Sheet name (default: first sheet)")
	return cmd
}

func runEval(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}
	wb, _, err := loadWorkbook(cfg)
	if err != nil {
		return err
	}
	sh, err := pickSheet(wb)
	if err != nil {
		return err
	}

	val, err := sh.EvaluateFormula(args[0])
	if err != nil {
		return err
	}
	fmt.Println(val.Format())
	return nil
}

func newRecalcCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recalc",
		Short: "Re-evaluate every formula and save",
		Args:  cobra.NoArgs,
		RunE:  runRecalc,
	}
}

func runRecalc(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}
	wb, path, err := loadWorkbook(cfg)
	if err != nil {
		return err
	}

	for _, sh := range wb.Sheets() {
		evaluated := sh.RecalculateAll()
		fmt.Printf("%s: %d formula(s) evaluated\n", sh.Name(), len(evaluated))
	}
	return usheet.Save(wb, path)
}

func newSheetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sheets",
		Short: "List the workbook's sheets",
		Args:  cobra.NoArgs,
		RunE:  runSheets,
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print workbook metadata as JSON")
	return cmd
}

func runSheets(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}
	wb, _, err := loadWorkbook(cfg)
	if err != nil {
		return err
	}

	meta := wb.Describe()
	if asJSON {
		return printJSON(meta)
	}
	fmt.Printf("%s (%s)\n", meta.Name, meta.ID)
	for _, info := range meta.Sheets {
		fmt.Printf("  %s\t%d cell(s)\n", info.Name, info.Cells)
	}
	return nil
}

func newUnitsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "units [symbol]",
		Short: "List known units, or inspect one symbol",
		Long: `Without arguments, lists every registered unit. With a symbol,
validates it and lists the units it can convert to.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runUnits,
	}
}

func runUnits(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}
	lib := units.NewLibrary(cfg.LibraryOptions()...)

	if len(args) == 0 {
		for _, u := range lib.Units() {
			fmt.Printf("%s\t%s\n", u.Canonical, u.Dimension)
		}
		return nil
	}

	u, err := lib.ParseSymbol(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("%s: canonical %s, dimension %s\n", args[0], u.Canonical, u.Dimension)
	if compatible := lib.CompatibleUnits(u.Canonical); len(compatible) > 0 {
		symbols := make([]string, 0, len(compatible))
		for _, c := range compatible {
			symbols = append(symbols, c.Canonical)
		}
		fmt.Printf("converts to: %s\n", strings.Join(symbols, ", "))
	}
	return nil
}

func newConvertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "convert [value] [from] [to]",
		Short: "Convert a value between units",
		Args:  cobra.ExactArgs(3),
		RunE:  runConvert,
	}
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}
	lib := units.NewLibrary(cfg.LibraryOptions()...)

	value, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("invalid value %q: %w", args[0], err)
	}
	from, err := lib.ParseSymbol(args[1])
	if err != nil {
		return err
	}
	to, err := lib.ParseSymbol(args[2])
	if err != nil {
		return err
	}

	converted, ok := lib.Convert(value, from.Canonical, to.Canonical)
	if !ok {
		return fmt.Errorf("cannot convert %s (%s) to %s (%s)", from, from.Dimension, to, to.Dimension)
	}
	fmt.Printf("%s = %s\n",
		unicel.FormatNumber(value, from, cfg.Precision),
		unicel.FormatNumber(converted, to, cfg.Precision))
	return nil
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [out.xlsx]",
		Short: "Export the workbook to an Excel file",
		Long: `Writes an .xlsx rendering of the workbook. Units become custom
number formats, display preferences are applied to the exported copy,
and formulas are carried over where Excel can express them.`,
		Args: cobra.ExactArgs(1),
		RunE: runExport,
	}
	cmd.Flags().StringVar(&modeOverride, "mode", "", "Display mode override: as-stored, metric, imperial")
	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}
	wb, _, err := loadWorkbook(cfg)
	if err != nil {
		return err
	}
	opts, err := displayOptions(cfg)
	if err != nil {
		return err
	}
	if err := xlsx.Export(wb, args[0], opts); err != nil {
		return err
	}
	fmt.Printf("exported %s\n", args[0])
	return nil
}

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [in.xlsx]",
		Short: "Build a workbook from an Excel file",
		Long: `Reads an .xlsx file into a new workbook. Units are recovered
from number formats, formulas are translated where possible and kept
as plain values otherwise. The result is saved to --workbook.`,
		Args: cobra.ExactArgs(1),
		RunE: runImport,
	}
	cmd.Flags().BoolVar(&importForce, "force", false, "Overwrite an existing workbook file")
	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}
	path, err := resolveWorkbookPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !importForce {
		return fmt.Errorf("%s already exists, pass --force to overwrite", path)
	}

	wb, err := xlsx.Import(args[0], workbookOptions(cfg)...)
	if err != nil {
		return err
	}
	if err := usheet.Save(wb, path); err != nil {
		return err
	}

	warnings := 0
	for _, sh := range wb.Sheets() {
		for _, addr := range sh.Addrs() {
			if cell, ok := sh.Get(addr); ok && cell.Warning != "" {
				fmt.Fprintf(os.Stderr, "warning: %s!%s: %s\n", sh.Name(), addr, cell.Warning)
				warnings++
			}
		}
	}

	meta := wb.Describe()
	cells := 0
	for _, info := range meta.Sheets {
		cells += info.Cells
	}
	fmt.Printf("imported %d sheet(s), %d cell(s) into %s", len(meta.Sheets), cells, path)
	if warnings > 0 {
		fmt.Printf(" (%d warning(s))", warnings)
	}
	fmt.Println()
	return nil
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the workbook over JSON-RPC",
		Long: `Serves JSON-RPC 2.0 on a WebSocket endpoint at /rpc (plus a
/health probe), or on stdin/stdout with --stdio. The session operates
on an in-memory copy; the workbook file is not written back.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (default: $UNICEL_LISTEN or :8790)")
	cmd.Flags().BoolVar(&useStdio, "stdio", false, "Serve on stdin/stdout instead of HTTP")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	cmd.Flags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	level, err := parseLogLevel(logLevel)
	if err != nil {
		return err
	}
	format := logging.FormatText
	if strings.EqualFold(logFormat, "json") {
		format = logging.FormatJSON
	}
	logging.Init(level, format, os.Stderr)

	cfg, err := loadSettings()
	if err != nil {
		return err
	}
	wb, path, err := loadWorkbook(cfg)
	if err != nil {
		return err
	}
	opts, err := displayOptions(cfg)
	if err != nil {
		return err
	}

	server := rpc.NewServer(wb, opts)
	logging.Info("serving workbook", "file", path, "sheets", len(wb.SheetNames()))

	if useStdio {
		return server.ServeStdio(context.Background(), os.Stdin, os.Stdout)
	}
	addr := listenAddr
	if addr == "" {
		addr = os.Getenv("UNICEL_LISTEN")
	}
	if addr == "" {
		addr = ":8790"
	}
	return server.ListenAndServe(addr)
}

// loadSettings reads preferences from --settings or $UNICEL_SETTINGS,
// falling back to defaults when neither names a file.
func loadSettings() (settings.Settings, error) {
	path := settingsPath
	if path == "" {
		path = os.Getenv("UNICEL_SETTINGS")
	}
	if path == "" {
		return settings.Default(), nil
	}
	return settings.Load(path)
}

func resolveWorkbookPath() (string, error) {
	if workbookPath != "" {
		return workbookPath, nil
	}
	if env := os.Getenv("UNICEL_WORKBOOK"); env != "" {
		return env, nil
	}
	return "", fmt.Errorf("no workbook file: pass --workbook or set UNICEL_WORKBOOK")
}

func workbookOptions(cfg settings.Settings) []unicel.Option {
	libOpts := cfg.LibraryOptions()
	if libOpts == nil {
		return nil
	}
	return []unicel.Option{unicel.WithLibrary(units.NewLibrary(libOpts...))}
}

func loadWorkbook(cfg settings.Settings) (*unicel.Workbook, string, error) {
	path, err := resolveWorkbookPath()
	if err != nil {
		return nil, "", err
	}
	wb, err := usheet.Load(path, workbookOptions(cfg)...)
	if err != nil {
		return nil, "", err
	}
	return wb, path, nil
}

func displayOptions(cfg settings.Settings) (unicel.DisplayOptions, error) {
	opts := cfg.DisplayOptions()
	if modeOverride != "" {
		switch mode := unicel.DisplayMode(modeOverride); mode {
		case unicel.ModeAsStored, unicel.ModeMetric, unicel.ModeImperial:
			opts.Mode = mode
		default:
			return opts, fmt.Errorf("unknown display mode %q", modeOverride)
		}
	}
	return opts, nil
}

func pickSheet(wb *unicel.Workbook) (*sheet.Sheet, error) {
	if sheetName != "" {
		sh, ok := wb.Sheet(sheetName)
		if !ok {
			return nil, fmt.Errorf("sheet not found: %q", sheetName)
		}
		return sh, nil
	}
	sheets := wb.Sheets()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	return sheets[0], nil
}

func parseLogLevel(s string) (logging.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return logging.LevelDebug, nil
	case "info":
		return logging.LevelInfo, nil
	case "warn":
		return logging.LevelWarn, nil
	case "error":
		return logging.LevelError, nil
	default:
		return logging.LevelInfo, fmt.Errorf("invalid log level: %s", s)
	}
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func joinAddrs(addrs []sheet.Addr) string {
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}
