// Package rpc exposes a workbook to external tooling over JSON-RPC 2.0.
// Each method maps one to one onto an engine primitive: read a cell,
// write a cell, recalculate, evaluate a formula, convert between units.
// The server owns the mutex that serializes workbook access, so no
// method can observe or leave partial state. Two transports are
// provided, a stdio line loop and a WebSocket endpoint.
package rpc

import (
	"encoding/json"
	"errors"

	"github.com/jacksodj/unicel-sub000/pkg/unicel"
	"github.com/jacksodj/unicel-sub000/pkg/unicel/eval"
	"github.com/jacksodj/unicel-sub000/pkg/unicel/formula"
	"github.com/jacksodj/unicel-sub000/pkg/unicel/sheet"
)

// Version is the JSON-RPC protocol version implemented here.
const Version = "2.0"

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Implementation-defined codes for engine errors, in the reserved
// -32000 to -32099 range.
const (
	CodeIncompatibleUnits      = -32000
	CodeDivisionByZero         = -32001
	CodeCellNotFound           = -32002
	CodeNamedRefNotFound       = -32003
	CodeUnknownUnit            = -32004
	CodeFunctionNotImplemented = -32005
	CodeInvalidOperation       = -32006
	CodeCircularReference      = -32007
	CodeFormulaParse           = -32008
	CodeSheetNotFound          = -32009
)

// Request is a JSON-RPC 2.0 request. A request without an id is a
// notification and receives no response.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response. Exactly one of Result and Error
// is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// NewError builds an error object with no attached data.
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// errorFromCore translates an engine error into a JSON-RPC error,
// attaching the operation and operands when the engine recorded them.
func errorFromCore(err error) *Error {
	out := &Error{Code: codeFor(err), Message: err.Error()}

	var evalErr *eval.EvalError
	if errors.As(err, &evalErr) {
		data := map[string]string{"op": evalErr.Op}
		if evalErr.Left != "" {
			data["left"] = evalErr.Left
		}
		if evalErr.Right != "" {
			data["right"] = evalErr.Right
		}
		out.Data = data
		return out
	}

	var parseErr *formula.ParseError
	if errors.As(err, &parseErr) {
		out.Data = map[string]any{
			"formula": parseErr.Formula,
			"column":  parseErr.Column,
		}
	}
	return out
}

func codeFor(err error) int {
	switch {
	case errors.Is(err, eval.ErrIncompatibleUnits):
		return CodeIncompatibleUnits
	case errors.Is(err, eval.ErrDivisionByZero):
		return CodeDivisionByZero
	case errors.Is(err, eval.ErrCellNotFound):
		return CodeCellNotFound
	case errors.Is(err, eval.ErrNamedRefNotFound):
		return CodeNamedRefNotFound
	case errors.Is(err, eval.ErrUnknownUnit):
		return CodeUnknownUnit
	case errors.Is(err, eval.ErrFunctionNotImplemented):
		return CodeFunctionNotImplemented
	case errors.Is(err, eval.ErrInvalidOperation):
		return CodeInvalidOperation
	case errors.Is(err, sheet.ErrCircularReference):
		return CodeCircularReference
	case errors.Is(err, sheet.ErrInvalidAddress),
		errors.Is(err, sheet.ErrInvalidRange),
		errors.Is(err, sheet.ErrInvalidName):
		return CodeInvalidParams
	case errors.Is(err, unicel.ErrSheetNotFound):
		return CodeSheetNotFound
	default:
		var parseErr *formula.ParseError
		if errors.As(err, &parseErr) {
			return CodeFormulaParse
		}
		return CodeInternalError
	}
}
