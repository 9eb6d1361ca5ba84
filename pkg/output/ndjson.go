// Package output provides the append-only NDJSON sink for finished records.
package output

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Writer appends one JSON record per line to a file. Opening the writer
// truncates any pre-existing file of the same name: runs are not idempotent
// without this reset. Record order reflects completion order, not input
// order.
type Writer struct {
	path string

	mu      sync.Mutex
	file    *os.File
	written int
}

// NewWriter opens (and truncates) the output file, creating parent
// directories as needed.
func NewWriter(path string) (*Writer, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}
	return &Writer{path: path, file: file}, nil
}

// Write appends one record as a single line
func (w *Writer) Write(record []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return fmt.Errorf("output writer is closed")
	}

	line := append(bytes.TrimRight(record, "\n"), '\n')
	if _, err := w.file.Write(line); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	w.written++
	return nil
}

// Written reports how many records have been appended
func (w *Writer) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Path returns the output file path
func (w *Writer) Path() string {
	return w.path
}

// Close flushes and closes the underlying file
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
