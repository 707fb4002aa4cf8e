package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jacksodj/unicel-sub000/pkg/unicel"
	"github.com/jacksodj/unicel-sub000/pkg/unicel/eval"
	"github.com/jacksodj/unicel-sub000/pkg/unicel/sheet"
)

// CellSelector addresses one cell on one sheet.
type CellSelector struct {
	Sheet   string `json:"sheet"`
	Address string `json:"address"`
}

// CellWriteParams carries a cell write: either a formula or a literal
// value with an optional unit, never both.
type CellWriteParams struct {
	Sheet       string   `json:"sheet"`
	Address     string   `json:"address"`
	Formula     string   `json:"formula,omitempty"`
	Value       *float64 `json:"value,omitempty"`
	Unit        string   `json:"unit,omitempty"`
	DisplayUnit string   `json:"display_unit,omitempty"`
}

// RecalculateParams names the cells whose dependents should be
// re-evaluated. With no addresses the whole sheet recalculates.
type RecalculateParams struct {
	Sheet     string   `json:"sheet"`
	Addresses []string `json:"addresses,omitempty"`
}

// EvaluateParams carries a formula for a read-only probe.
type EvaluateParams struct {
	Sheet   string `json:"sheet"`
	Formula string `json:"formula"`
}

// ConvertParams converts a value between two unit symbols.
type ConvertParams struct {
	Value float64 `json:"value"`
	From  string  `json:"from"`
	To    string  `json:"to"`
}

// UnitParams carries a single unit symbol.
type UnitParams struct {
	Unit string `json:"unit"`
}

// CellState is the wire form of one cell.
type CellState struct {
	Address     string   `json:"address"`
	Empty       bool     `json:"empty,omitempty"`
	Value       *float64 `json:"value,omitempty"`
	Unit        string   `json:"unit,omitempty"`
	DisplayUnit string   `json:"display_unit,omitempty"`
	Formula     string   `json:"formula,omitempty"`
	Error       string   `json:"error,omitempty"`
	Warning     string   `json:"warning,omitempty"`
	Formatted   string   `json:"formatted,omitempty"`
}

// WriteResult reports the written cell after recalculation, plus every
// address the write caused to re-evaluate.
type WriteResult struct {
	Cell         CellState `json:"cell"`
	Recalculated []string  `json:"recalculated"`
}

// RemoveResult reports whether a cell existed and which dependents
// re-evaluated after its removal.
type RemoveResult struct {
	Removed      bool     `json:"removed"`
	Recalculated []string `json:"recalculated"`
}

// RecalculateResult lists the addresses evaluated, in calculation
// order.
type RecalculateResult struct {
	Recalculated []string `json:"recalculated"`
}

// EvaluateResult is the wire form of an evaluation value.
type EvaluateResult struct {
	Kind      string   `json:"kind"`
	Value     *float64 `json:"value,omitempty"`
	Unit      string   `json:"unit,omitempty"`
	Text      string   `json:"text,omitempty"`
	Bool      *bool    `json:"bool,omitempty"`
	Formatted string   `json:"formatted,omitempty"`
}

// ConvertResult echoes a conversion with resolved unit spellings.
type ConvertResult struct {
	Value float64 `json:"value"`
	From  string  `json:"from"`
	To    string  `json:"to"`
}

// CompatibleResult lists the registered units sharing a dimension.
type CompatibleResult struct {
	Unit       string   `json:"unit"`
	Compatible []string `json:"compatible"`
}

// ValidateResult reports whether a unit string parses. Well-formed
// unknown symbols are valid custom units; Registered distinguishes
// them from library entries.
type ValidateResult struct {
	Unit       string `json:"unit"`
	Valid      bool   `json:"valid"`
	Reason     string `json:"reason,omitempty"`
	Canonical  string `json:"canonical,omitempty"`
	Dimension  string `json:"dimension,omitempty"`
	Registered bool   `json:"registered,omitempty"`
}

// SheetsResult lists the workbook's sheets in order.
type SheetsResult struct {
	Sheets []unicel.SheetInfo `json:"sheets"`
}

func (s *Server) cellRead(_ context.Context, raw json.RawMessage) (any, *Error) {
	var p CellSelector
	if errObj := decodeParams(raw, &p); errObj != nil {
		return nil, errObj
	}
	addr, errObj := parseAddress(p.Address)
	if errObj != nil {
		return nil, errObj
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	sh, ok := s.wb.Sheet(p.Sheet)
	if !ok {
		return nil, sheetNotFound(p.Sheet)
	}
	cell, ok := sh.Get(addr)
	if !ok {
		return CellState{Address: addr.String(), Empty: true}, nil
	}
	return s.cellState(addr, cell), nil
}

func (s *Server) cellWrite(_ context.Context, raw json.RawMessage) (any, *Error) {
	var p CellWriteParams
	if errObj := decodeParams(raw, &p); errObj != nil {
		return nil, errObj
	}
	addr, errObj := parseAddress(p.Address)
	if errObj != nil {
		return nil, errObj
	}
	if p.Formula != "" && p.Value != nil {
		return nil, NewError(CodeInvalidParams, "formula and value are mutually exclusive")
	}
	if p.Formula == "" && p.Value == nil {
		return nil, NewError(CodeInvalidParams, "one of formula or value is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.wb.Sheet(p.Sheet)
	if !ok {
		return nil, sheetNotFound(p.Sheet)
	}

	lib := s.wb.Library()
	var cell sheet.Cell
	if p.Formula != "" {
		if p.Unit != "" {
			return nil, NewError(CodeInvalidParams, "unit applies to literal values, not formulas")
		}
		cell = sheet.FormulaCell(p.Formula)
	} else {
		unit, err := lib.ParseSymbol(p.Unit)
		if err != nil {
			return nil, NewError(CodeUnknownUnit, err.Error())
		}
		cell = sheet.ValueCell(*p.Value, unit)
	}
	if p.DisplayUnit != "" {
		du, err := lib.ParseSymbol(p.DisplayUnit)
		if err != nil {
			return nil, NewError(CodeUnknownUnit, err.Error())
		}
		cell.DisplayUnit = &du
	}

	// Set is all-or-nothing: parse failures and cycles leave the sheet
	// untouched, so an error here means nothing was mutated.
	if err := sh.Set(addr, cell); err != nil {
		return nil, errorFromCore(err)
	}
	recalced := sh.Recalculate(addr)
	stored, _ := sh.Get(addr)
	return WriteResult{Cell: s.cellState(addr, stored), Recalculated: addrStrings(recalced)}, nil
}

func (s *Server) cellRemove(_ context.Context, raw json.RawMessage) (any, *Error) {
	var p CellSelector
	if errObj := decodeParams(raw, &p); errObj != nil {
		return nil, errObj
	}
	addr, errObj := parseAddress(p.Address)
	if errObj != nil {
		return nil, errObj
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.wb.Sheet(p.Sheet)
	if !ok {
		return nil, sheetNotFound(p.Sheet)
	}
	_, existed := sh.Get(addr)
	sh.Remove(addr)
	// Dependents re-evaluate and surface their broken reference now
	// rather than on the next unrelated write.
	recalced := sh.Recalculate(addr)
	return RemoveResult{Removed: existed, Recalculated: addrStrings(recalced)}, nil
}

func (s *Server) sheetRecalculate(_ context.Context, raw json.RawMessage) (any, *Error) {
	var p RecalculateParams
	if errObj := decodeParams(raw, &p); errObj != nil {
		return nil, errObj
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.wb.Sheet(p.Sheet)
	if !ok {
		return nil, sheetNotFound(p.Sheet)
	}

	if len(p.Addresses) == 0 {
		return RecalculateResult{Recalculated: addrStrings(sh.RecalculateAll())}, nil
	}
	addrs := make([]sheet.Addr, 0, len(p.Addresses))
	for _, raw := range p.Addresses {
		addr, errObj := parseAddress(raw)
		if errObj != nil {
			return nil, errObj
		}
		addrs = append(addrs, addr)
	}
	return RecalculateResult{Recalculated: addrStrings(sh.Recalculate(addrs...))}, nil
}

func (s *Server) formulaEvaluate(_ context.Context, raw json.RawMessage) (any, *Error) {
	var p EvaluateParams
	if errObj := decodeParams(raw, &p); errObj != nil {
		return nil, errObj
	}
	if strings.TrimSpace(p.Formula) == "" {
		return nil, NewError(CodeInvalidParams, "formula is required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	sh, ok := s.wb.Sheet(p.Sheet)
	if !ok {
		return nil, sheetNotFound(p.Sheet)
	}
	val, err := sh.EvaluateFormula(p.Formula)
	if err != nil {
		return nil, errorFromCore(err)
	}
	return valueState(val), nil
}

func (s *Server) unitsConvert(_ context.Context, raw json.RawMessage) (any, *Error) {
	var p ConvertParams
	if errObj := decodeParams(raw, &p); errObj != nil {
		return nil, errObj
	}

	lib := s.wb.Library()
	from, err := lib.ParseSymbol(p.From)
	if err != nil {
		return nil, NewError(CodeUnknownUnit, err.Error())
	}
	to, err := lib.ParseSymbol(p.To)
	if err != nil {
		return nil, NewError(CodeUnknownUnit, err.Error())
	}

	converted, ok := lib.Convert(p.Value, from.Canonical, to.Canonical)
	if !ok {
		return nil, &Error{
			Code:    CodeIncompatibleUnits,
			Message: fmt.Sprintf("cannot convert %s to %s", from, to),
			Data: map[string]string{
				"from": from.Dimension.String(),
				"to":   to.Dimension.String(),
			},
		}
	}
	return ConvertResult{Value: converted, From: from.String(), To: to.String()}, nil
}

func (s *Server) unitsCompatible(_ context.Context, raw json.RawMessage) (any, *Error) {
	var p UnitParams
	if errObj := decodeParams(raw, &p); errObj != nil {
		return nil, errObj
	}

	lib := s.wb.Library()
	u, err := lib.ParseSymbol(p.Unit)
	if err != nil {
		return nil, NewError(CodeUnknownUnit, err.Error())
	}

	compatible := lib.CompatibleUnits(u.Canonical)
	symbols := make([]string, 0, len(compatible))
	for _, candidate := range compatible {
		symbols = append(symbols, candidate.Canonical)
	}
	return CompatibleResult{Unit: u.String(), Compatible: symbols}, nil
}

func (s *Server) unitsValidate(_ context.Context, raw json.RawMessage) (any, *Error) {
	var p UnitParams
	if errObj := decodeParams(raw, &p); errObj != nil {
		return nil, errObj
	}

	lib := s.wb.Library()
	u, err := lib.ParseSymbol(p.Unit)
	if err != nil {
		// Malformed text is a validation verdict, not a call failure.
		return ValidateResult{Unit: p.Unit, Valid: false, Reason: err.Error()}, nil
	}
	return ValidateResult{
		Unit:       p.Unit,
		Valid:      true,
		Canonical:  u.Canonical,
		Dimension:  u.Dimension.String(),
		Registered: lib.Contains(u.Canonical),
	}, nil
}

func (s *Server) workbookSheets(_ context.Context, _ json.RawMessage) (any, *Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SheetsResult{Sheets: s.wb.Describe().Sheets}, nil
}

func (s *Server) workbookDescribe(_ context.Context, _ json.RawMessage) (any, *Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wb.Describe(), nil
}

// cellState converts a stored cell to its wire form. Callers hold the
// server mutex.
func (s *Server) cellState(addr sheet.Addr, cell sheet.Cell) CellState {
	out := CellState{
		Address: addr.String(),
		Formula: cell.Formula,
		Warning: cell.Warning,
	}
	if cell.DisplayUnit != nil {
		out.DisplayUnit = cell.DisplayUnit.String()
	}
	switch cell.Value.Kind {
	case sheet.ValueError:
		out.Error = cell.Value.Message
	case sheet.ValueNumber:
		v := cell.Value.Number
		out.Value = &v
		out.Unit = cell.StorageUnit.String()
	default:
		out.Empty = true
	}
	rendered := unicel.RenderCell(s.wb.Library(), cell, s.display)
	out.Formatted = rendered.Formatted
	return out
}

func valueState(v eval.Value) EvaluateResult {
	out := EvaluateResult{Formatted: v.Format()}
	switch v.Kind {
	case eval.KindNumber:
		out.Kind = "number"
		n := v.Number
		out.Value = &n
		out.Unit = v.Unit.String()
	case eval.KindString:
		out.Kind = "string"
		out.Text = v.Str
	case eval.KindBool:
		out.Kind = "bool"
		b := v.Bool
		out.Bool = &b
	default:
		out.Kind = "empty"
	}
	return out
}

func decodeParams(raw json.RawMessage, into any) *Error {
	if len(raw) == 0 {
		return NewError(CodeInvalidParams, "params are required")
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return NewError(CodeInvalidParams, "invalid params: "+err.Error())
	}
	return nil
}

func parseAddress(s string) (sheet.Addr, *Error) {
	addr, err := sheet.ParseAddr(s)
	if err != nil {
		return sheet.Addr{}, NewError(CodeInvalidParams, err.Error())
	}
	return addr, nil
}

func sheetNotFound(name string) *Error {
	return NewError(CodeSheetNotFound, fmt.Sprintf("sheet not found: %q", name))
}

func addrStrings(addrs []sheet.Addr) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	return out
}
