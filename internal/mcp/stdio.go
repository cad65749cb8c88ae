// ABOUTME: Line-delimited stdio transport: one JSON-RPC message per line in, one response per line out.
// ABOUTME: Messages are handled sequentially in arrival order.

package mcp

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/uaxd/mcp-gateway/internal/rpc"
)

// maxLineSize bounds a single stdio message. Longer lines get a parse error.
const maxLineSize = 4 << 20

// StdioServer serves a dispatcher over a pair of streams.
type StdioServer struct {
	dispatcher *rpc.Dispatcher
	logger     *slog.Logger
}

// NewStdioServer creates a stdio transport for d.
func NewStdioServer(d *rpc.Dispatcher, logger *slog.Logger) *StdioServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &StdioServer{dispatcher: d, logger: logger}
}

type scannedLine struct {
	text    string
	tooLong bool
	err     error
}

// readLine returns the next line without its terminator. A line longer than
// limit is consumed to its end and reported as tooLong with no text.
func readLine(r *bufio.Reader, limit int) ([]byte, bool, error) {
	var line []byte
	tooLong := false
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > limit+1 {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return bytes.TrimRight(line, "\r\n"), tooLong, err
	}
}

// Serve reads until EOF or ctx is cancelled. It returns nil on EOF.
func (s *StdioServer) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	lines := make(chan scannedLine)
	go func() {
		defer close(lines)
		r := bufio.NewReaderSize(in, 64*1024)
		for {
			line, tooLong, err := readLine(r, maxLineSize)
			if len(line) > 0 || tooLong {
				select {
				case lines <- scannedLine{text: string(line), tooLong: tooLong}:
				case <-ctx.Done():
					return
				}
			}
			if err == nil {
				continue
			}
			if !errors.Is(err, io.EOF) {
				select {
				case lines <- scannedLine{err: err}:
				case <-ctx.Done():
				}
			}
			return
		}
	}()

	w := bufio.NewWriter(out)
	s.logger.Info("stdio transport ready")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stdio transport stopping", "reason", ctx.Err())
			return nil
		case line, ok := <-lines:
			if !ok {
				s.logger.Info("stdin closed")
				return nil
			}
			if line.err != nil {
				return fmt.Errorf("read stdin: %w", line.err)
			}
			if line.tooLong {
				s.logger.Warn("stdio message too large", "limit", maxLineSize)
				if err := s.write(w, rpc.ParseError()); err != nil {
					return err
				}
				continue
			}
			if err := s.handleLine(ctx, w, line.text); err != nil {
				return err
			}
		}
	}
}

func (s *StdioServer) handleLine(ctx context.Context, w *bufio.Writer, line string) error {
	if strings.TrimSpace(line) == "" {
		return nil
	}

	resp := s.dispatcher.Dispatch(ctx, []byte(line))
	if resp == nil {
		return nil
	}
	return s.write(w, resp)
}

func (s *StdioServer) write(w *bufio.Writer, resp *rpc.Response) error {
	encoded, err := resp.Encode()
	if err != nil {
		s.logger.Error("failed to encode response", "error", err)
		encoded, _ = rpc.InternalError(resp.ID, err.Error()).Encode()
	}
	s.logger.Debug("rpc response", "raw", string(encoded))

	if _, err := w.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("write stdout: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush stdout: %w", err)
	}
	return nil
}
