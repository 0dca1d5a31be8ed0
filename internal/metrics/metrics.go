// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from migration runs.
//
// It exposes a narrow interface (Backend) focused on counters and timings and
// a global, pluggable backend that defaults to a no-op implementation, so
// metrics are always safe to call even when no real backend is configured.
// Concrete systems live in subpackages (prompush, datadog).
package metrics

import (
	"sync"
	"time"
)

// Metric names emitted by the helpers below.
const (
	PhaseTotal    = "migrate_phase_total"
	PhaseDuration = "migrate_phase_duration_seconds"
	RowsTotal     = "migrate_rows_total"
	BatchesTotal  = "migrate_batches_total"
	FindingsTotal = "migrate_findings_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordPhase measures one phase of one entity. ok=false with a nil err is a
// failed check; a non-nil err is a fatal error.
func RecordPhase(entity, phase string, ok bool, err error, d time.Duration) {
	status := "success"
	switch {
	case err != nil:
		status = "error"
	case !ok:
		status = "failure"
	}

	lbls := Labels{
		"entity": entity,
		"phase":  phase,
		"status": status,
	}

	b := current()
	b.IncCounter(PhaseTotal, 1, lbls)
	b.ObserveHistogram(PhaseDuration, d.Seconds(), lbls)
}

// RecordRows increments the written-row counter for table.
func RecordRows(entity, table string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RowsTotal, float64(delta), Labels{
		"entity": entity,
		"table":  table,
	})
}

// RecordBatches increments the batch counter for entity.
func RecordBatches(entity string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(BatchesTotal, float64(delta), Labels{
		"entity": entity,
	})
}

// RecordFindings increments the collected-diagnostics counter.
func RecordFindings(entity, phase string, delta int) {
	if delta <= 0 {
		return
	}
	current().IncCounter(FindingsTotal, float64(delta), Labels{
		"entity": entity,
		"phase":  phase,
	})
}
