package rpc

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/jacksodj/unicel-sub000/internal/logging"
	"github.com/jacksodj/unicel-sub000/pkg/unicel"
)

// Server dispatches JSON-RPC requests onto a workbook. All workbook
// access goes through one mutex, giving the engine the exclusive
// access it assumes; unit library calls take no lock because the
// library is immutable.
type Server struct {
	mu      sync.RWMutex
	wb      *unicel.Workbook
	display unicel.DisplayOptions
	methods map[string]handler
}

type handler func(ctx context.Context, params json.RawMessage) (any, *Error)

// NewServer wraps a workbook. Display options shape the formatted
// field of cell payloads and nothing else; stored values stay in their
// storage units.
func NewServer(wb *unicel.Workbook, display unicel.DisplayOptions) *Server {
	s := &Server{wb: wb, display: display}
	s.methods = map[string]handler{
		"cell.read":         s.cellRead,
		"cell.write":        s.cellWrite,
		"cell.remove":       s.cellRemove,
		"sheet.recalculate": s.sheetRecalculate,
		"formula.evaluate":  s.formulaEvaluate,
		"units.convert":     s.unitsConvert,
		"units.compatible":  s.unitsCompatible,
		"units.validate":    s.unitsValidate,
		"workbook.sheets":   s.workbookSheets,
		"workbook.describe": s.workbookDescribe,
	}
	return s
}

// Methods returns the method names the server dispatches, sorted.
func (s *Server) Methods() []string {
	names := make([]string, 0, len(s.methods))
	for name := range s.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handle processes one raw JSON-RPC message and returns the encoded
// response, or nil for notifications.
func (s *Server) Handle(ctx context.Context, raw []byte) []byte {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return encodeResponse(errorResponse(nil, NewError(CodeParseError, "invalid JSON: "+err.Error())))
	}

	resp := s.dispatch(ctx, &req)
	if resp == nil {
		return nil
	}
	return encodeResponse(resp)
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	started := time.Now()

	var result any
	var rpcErr *Error
	switch {
	case req.JSONRPC != Version:
		rpcErr = NewError(CodeInvalidRequest, `jsonrpc must be "2.0"`)
	case req.Method == "":
		rpcErr = NewError(CodeInvalidRequest, "method is required")
	default:
		h, ok := s.methods[req.Method]
		if !ok {
			rpcErr = NewError(CodeMethodNotFound, "unknown method "+strconv.Quote(req.Method))
		} else {
			result, rpcErr = h(ctx, req.Params)
		}
	}

	var logErr error
	if rpcErr != nil {
		logErr = rpcErr
	}
	logging.RPCRequest(ctx, req.Method, time.Since(started), logErr)

	// Notifications get no response, success or failure.
	if req.ID == nil {
		return nil
	}
	if rpcErr != nil {
		return errorResponse(req.ID, rpcErr)
	}
	return &Response{JSONRPC: Version, ID: req.ID, Result: result}
}

func errorResponse(id json.RawMessage, e *Error) *Response {
	if id == nil {
		id = json.RawMessage("null")
	}
	return &Response{JSONRPC: Version, ID: id, Error: e}
}

func encodeResponse(resp *Response) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		logging.Error("response marshal failed", "error", err)
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"response marshal failed"}}`)
	}
	return data
}
