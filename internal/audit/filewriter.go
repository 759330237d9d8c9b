package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// FileWriter appends one JSON line per event to a single file, mirroring
// the approval store's append-only log format (spec 6's approval-log
// on-disk format note: "both the schema and field names are part of the
// public contract so that external consumers can tail them" applies
// here too).
type FileWriter struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileWriter opens (creating if needed) path for append.
func NewFileWriter(path string) (*FileWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening audit log %s: %w", path, err)
	}
	return &FileWriter{file: f}, nil
}

// Write appends ev as a single JSON line.
func (w *FileWriter) Write(ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling audit event: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = w.file.Write(append(b, '\n'))
	return err
}

// Close closes the underlying file.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
