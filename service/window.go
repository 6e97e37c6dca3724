package service

import (
	"sync"
	"time"
)

// SubmissionWindow time-boxes mutating submissions. The protocol's rounds
// advance on roster thresholds, not time; the window only lets an operator
// put an outer deadline on the whole election.
type SubmissionWindow struct {
	mu       sync.RWMutex
	deadline time.Time // zero means no deadline
	closed   bool
}

// NewSubmissionWindow opens a window for the given duration. A duration of
// zero or less opens a window with no deadline.
func NewSubmissionWindow(duration time.Duration) *SubmissionWindow {
	w := &SubmissionWindow{}
	if duration > 0 {
		w.deadline = time.Now().Add(duration)
	}
	return w
}

// IsOpen reports whether submissions are still accepted.
func (w *SubmissionWindow) IsOpen() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	return w.deadline.IsZero() || time.Now().Before(w.deadline)
}

// Deadline returns the configured deadline, if any.
func (w *SubmissionWindow) Deadline() (time.Time, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.deadline, !w.deadline.IsZero()
}

// Close shuts the window immediately.
func (w *SubmissionWindow) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}
