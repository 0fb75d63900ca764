package metrics

import (
	"sync"
	"testing"
	"time"
)

type recordingBackend struct {
	mu       sync.Mutex
	counters map[string]float64
	samples  map[string][]float64
	labels   []Labels
	flushes  int
}

func newRecordingBackend() *recordingBackend {
	return &recordingBackend{
		counters: map[string]float64{},
		samples:  map[string][]float64{},
	}
}

func (r *recordingBackend) IncCounter(name string, delta float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name] += delta
	r.labels = append(r.labels, labels)
}

func (r *recordingBackend) ObserveHistogram(name string, value float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples[name] = append(r.samples[name], value)
	r.labels = append(r.labels, labels)
}

func (r *recordingBackend) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
	return nil
}

// TestSetBackend_RoutesCalls verifies package helpers reach the installed
// backend and that SetBackend(nil) restores the no-op backend.
//
// Not parallel: the backend is process-wide state.
func TestSetBackend_RoutesCalls(t *testing.T) {
	rb := newRecordingBackend()
	SetBackend(rb)
	t.Cleanup(func() { SetBackend(nil) })

	IncCounter("extract_listings_total", 2, Labels{"outcome": "accepted"})
	ObserveDuration("extract", "ok", time.Now().Add(-time.Second))
	if err := Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if rb.counters["extract_listings_total"] != 2 {
		t.Fatalf("counter=%v, want 2", rb.counters["extract_listings_total"])
	}
	if got := rb.samples["extract_duration_seconds"]; len(got) != 1 || got[0] < 1 {
		t.Fatalf("duration samples=%v, want one sample >= 1s", got)
	}
	if rb.flushes != 1 {
		t.Fatalf("flushes=%d, want 1", rb.flushes)
	}

	SetBackend(nil)
	IncCounter("extract_listings_total", 5, nil)
	if rb.counters["extract_listings_total"] != 2 {
		t.Fatalf("nop backend leaked a call into the old backend")
	}
}
