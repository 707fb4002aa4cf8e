package rpc

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/jacksodj/unicel-sub000/internal/logging"
)

// ServeStdio runs a newline-delimited JSON-RPC session: one request
// per line in, one response per line out. It returns when the reader
// is exhausted or the context is cancelled. Logging goes to stderr so
// stdout stays a clean response stream.
func (s *Server) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	ctx = logging.WithConnID(ctx, uuid.New().String())
	logging.LoggerFromContext(ctx).Info("stdio session started")

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageBytes)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		resp := s.Handle(ctx, line)
		if resp == nil {
			continue
		}
		if _, err := w.Write(append(resp, '\n')); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read request: %w", err)
	}

	logging.LoggerFromContext(ctx).Info("stdio session ended")
	return nil
}
