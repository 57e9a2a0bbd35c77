package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrStreamingUnsupported indicates the ResponseWriter cannot flush,
// so server-sent events cannot be delivered incrementally.
var ErrStreamingUnsupported = errors.New("stream: response writer does not support flushing")

// Writer emits Chunk frames as server-sent events. Frames are
// data-only, `data: <json>` followed by a blank line, flushed
// immediately so the client sees each chunk as it is produced.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter prepares w for event streaming and writes the SSE headers.
// It fails when w cannot flush, which must be detected before any body
// bytes are written so the handler can still return a normal error.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	// Disable proxy buffering so chunks are not held back.
	h.Set("X-Accel-Buffering", "no")

	return &Writer{w: w, flusher: flusher}, nil
}

// Send writes one chunk frame and flushes it. A canceled context or a
// failed write means the client is gone; the caller should stop.
func (w *Writer) Send(ctx context.Context, chunk Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("marshal chunk: %w", err)
	}
	if _, err := fmt.Fprintf(w.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	w.flusher.Flush()
	return nil
}
