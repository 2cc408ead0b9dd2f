package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/JakeFAU/yacrawler/internal/crawler"
)

// JSONLWriter appends one JSON object per record to a writer. Writes are
// serialized so concurrent tasks never interleave lines.
type JSONLWriter struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
}

// NewJSONLWriter wraps w.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	return &JSONLWriter{w: w}
}

// OpenJSONL opens path for appending, creating it when missing.
func OpenJSONL(path string) (*JSONLWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open jsonl output: %w", err)
	}
	return &JSONLWriter{w: f, closer: f}, nil
}

// Write appends rec as a single line.
func (j *JSONLWriter) Write(_ context.Context, rec crawler.Record) (crawler.Record, error) {
	line, err := json.Marshal(rec)
	if err != nil {
		return rec, fmt.Errorf("marshal record: %w", err)
	}
	line = append(line, '\n')
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.w.Write(line); err != nil {
		return rec, fmt.Errorf("append jsonl: %w", err)
	}
	return rec, nil
}

// Close closes the file opened by OpenJSONL.
func (j *JSONLWriter) Close() error {
	if j.closer == nil {
		return nil
	}
	return j.closer.Close()
}
