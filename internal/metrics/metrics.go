// Package metrics is the small facade the extractor and loaders report to.
//
// Core packages call the package-level helpers (IncCounter, ObserveHistogram)
// and never depend on a concrete backend. The command wires a backend with
// SetBackend at startup; until then every call is a no-op.
package metrics

import (
	"sync"
	"time"
)

// Labels are the dimensions attached to one observation.
type Labels map[string]string

// Backend receives observations. Implementations must be safe for concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b as the process-wide backend. A nil b restores the no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		backend = nopBackend{}
		return
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter adds delta to the named counter.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records one sample for the named histogram.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush asks the current backend to submit buffered data.
func Flush() error {
	return current().Flush()
}

// ObserveDuration records time.Since(start) in seconds under
// extract_duration_seconds with the given stage and status.
func ObserveDuration(stage, status string, start time.Time) {
	ObserveHistogram("extract_duration_seconds", time.Since(start).Seconds(), Labels{
		"stage":  stage,
		"status": status,
	})
}
