// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// A migration run is a batch job with no long-lived HTTP endpoint to scrape,
// so collectors live in a private registry that is pushed to a Pushgateway
// on Flush.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"dbmigrate/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	phaseCounter   *prometheus.CounterVec // migrate_phase_total
	phaseDuration  *prometheus.SummaryVec // migrate_phase_duration_seconds
	rowCounter     *prometheus.CounterVec // migrate_rows_total
	batchCounter   *prometheus.CounterVec // migrate_batches_total
	findingCounter *prometheus.CounterVec // migrate_findings_total
}

// NewBackend constructs a Prometheus Pushgateway backend.
// jobName: the Pushgateway "job" name.
// gatewayURL: base URL of the Pushgateway server.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "dbmigrate"
	}

	reg := prometheus.NewRegistry()

	phaseCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.PhaseTotal,
			Help: "Phase executions, partitioned by entity, phase and status.",
		},
		[]string{"entity", "phase", "status"},
	)
	phaseDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       metrics.PhaseDuration,
			Help:       "Phase duration in seconds, partitioned by entity, phase and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"entity", "phase", "status"},
	)
	rowCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.RowsTotal,
			Help: "Rows written to the destination, partitioned by entity and table.",
		},
		[]string{"entity", "table"},
	)
	batchCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.BatchesTotal,
			Help: "Batches flushed to the destination, partitioned by entity.",
		},
		[]string{"entity"},
	)
	findingCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.FindingsTotal,
			Help: "Diagnostics collected by integrity and volume checks.",
		},
		[]string{"entity", "phase"},
	)

	for name, c := range map[string]prometheus.Collector{
		"phase counter":   phaseCounter,
		"phase summary":   phaseDuration,
		"row counter":     rowCounter,
		"batch counter":   batchCounter,
		"finding counter": findingCounter,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
	}

	return &Backend{
		gatewayURL:     gatewayURL,
		jobName:        jobName,
		reg:            reg,
		phaseCounter:   phaseCounter,
		phaseDuration:  phaseDuration,
		rowCounter:     rowCounter,
		batchCounter:   batchCounter,
		findingCounter: findingCounter,
	}, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.PhaseTotal:
		if b.phaseCounter == nil {
			return
		}
		b.phaseCounter.WithLabelValues(labels["entity"], labels["phase"], labels["status"]).Add(delta)

	case metrics.RowsTotal:
		if b.rowCounter == nil {
			return
		}
		b.rowCounter.WithLabelValues(labels["entity"], labels["table"]).Add(delta)

	case metrics.BatchesTotal:
		if b.batchCounter == nil {
			return
		}
		b.batchCounter.WithLabelValues(labels["entity"]).Add(delta)

	case metrics.FindingsTotal:
		if b.findingCounter == nil {
			return
		}
		b.findingCounter.WithLabelValues(labels["entity"], labels["phase"]).Add(delta)

	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.PhaseDuration || b.phaseDuration == nil {
		return
	}
	b.phaseDuration.WithLabelValues(labels["entity"], labels["phase"], labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
