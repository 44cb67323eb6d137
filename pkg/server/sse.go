package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// ErrStreamWrite is returned once the client side of a stream is gone.
var ErrStreamWrite = errors.New("stream write failed")

// sseWriter writes frames as "data: <json>\n\n" events. After the first
// failed write every further frame is dropped.
type sseWriter struct {
	w      io.Writer
	flush  func()
	logger *slog.Logger
	failed bool
}

func newSSEWriter(w io.Writer, flush func(), logger *slog.Logger) *sseWriter {
	if flush == nil {
		flush = func() {}
	}
	return &sseWriter{w: w, flush: flush, logger: logger}
}

func (s *sseWriter) Write(f Frame) error {
	if s.failed {
		return ErrStreamWrite
	}

	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", f.FrameType(), err)
	}

	buf := make([]byte, 0, len(data)+8)
	buf = append(buf, "data: "...)
	buf = append(buf, data...)
	buf = append(buf, "\n\n"...)
	if _, err := s.w.Write(buf); err != nil {
		s.failed = true
		s.logger.Warn("Client stream closed, dropping remaining frames", "error", err)
		return fmt.Errorf("%w: %w", ErrStreamWrite, err)
	}
	s.flush()
	return nil
}
