package harvest

import (
	"fmt"
	"sync"
)

// ErrorLog accumulates human-readable failure descriptions in order of
// occurrence. It is unbounded for the run and only summarized at the end.
type ErrorLog struct {
	mu      sync.Mutex
	entries []string
}

// NewErrorLog creates an empty error log
func NewErrorLog() *ErrorLog {
	return &ErrorLog{}
}

// Addf appends a formatted failure description
func (e *ErrorLog) Addf(format string, args ...interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries = append(e.entries, fmt.Sprintf(format, args...))
}

// Len reports the number of recorded failures
func (e *ErrorLog) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.entries)
}

// First returns up to n entries from the front of the log
func (e *ErrorLog) First(n int) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n > len(e.entries) {
		n = len(e.entries)
	}
	out := make([]string, n)
	copy(out, e.entries[:n])
	return out
}

// Entries returns a copy of all recorded failures
func (e *ErrorLog) Entries() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.entries))
	copy(out, e.entries)
	return out
}
