// Package datadog implements a DogStatsD backend for the metrics package.
//
// Metric names are translated to dotted Datadog names and labels become
// "key:value" tags. Every phase outcome is also sent as a service check
// ("migrate.phase") so a monitor can alert on the latest entity/phase state
// without a metric query.
package datadog

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"

	"dbmigrate/internal/metrics"
)

// PhaseCheck is the service check name reported for each phase outcome.
const PhaseCheck = "migrate.phase"

// names maps metric names to Datadog names. Unlisted names have their
// underscores replaced by dots.
var names = map[string]string{
	metrics.PhaseTotal:    "migrate.phase.runs",
	metrics.PhaseDuration: "migrate.phase.duration",
	metrics.RowsTotal:     "migrate.rows.written",
	metrics.BatchesTotal:  "migrate.batches.written",
	metrics.FindingsTotal: "migrate.findings",
}

// checkStatus maps the phase status label to a service check status.
var checkStatus = map[string]statsd.ServiceCheckStatus{
	"success": statsd.Ok,
	"failure": statsd.Warn,
	"error":   statsd.Critical,
}

// Config holds DogStatsD settings.
type Config struct {
	// Addr is the agent address, e.g. "127.0.0.1:8125" or "unix:///var/run/datadog/dsd.socket".
	// When empty the client falls back to DD_AGENT_HOST / DD_DOGSTATSD_URL.
	Addr string

	// Namespace prefixes every metric name, e.g. "dbmigrate.".
	Namespace string

	// Tags are added to every metric and service check.
	Tags []string
}

// Backend sends migration metrics to a Datadog agent.
type Backend struct {
	client statsd.ClientInterface
}

// NewBackend connects a DogStatsD client.
func NewBackend(cfg Config) (*Backend, error) {
	if cfg.Addr == "" && os.Getenv("DD_AGENT_HOST") == "" && os.Getenv("DD_DOGSTATSD_URL") == "" {
		return nil, fmt.Errorf("datadog: statsd address is required (statsd_addr or DD_AGENT_HOST)")
	}
	opts := []statsd.Option{}
	if cfg.Namespace != "" {
		opts = append(opts, statsd.WithNamespace(cfg.Namespace))
	}
	if len(cfg.Tags) > 0 {
		opts = append(opts, statsd.WithTags(cfg.Tags))
	}
	c, err := statsd.New(cfg.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("datadog: create client: %w", err)
	}
	return &Backend{client: c}, nil
}

// IncCounter implements metrics.Backend. Phase counters also emit the
// phase service check.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if b.client == nil {
		return
	}
	tags := tagsOf(labels)
	_ = b.client.Count(datadogName(name), int64(delta), tags, 1)
	if name == metrics.PhaseTotal {
		b.phaseCheck(labels, tags)
	}
}

// ObserveHistogram implements metrics.Backend. Phase durations are sent as
// timings in milliseconds.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if b.client == nil {
		return
	}
	tags := tagsOf(labels)
	if name == metrics.PhaseDuration {
		_ = b.client.Timing(datadogName(name), time.Duration(value*float64(time.Second)), tags, 1)
		return
	}
	_ = b.client.Histogram(datadogName(name), value, tags, 1)
}

// Flush sends buffered datagrams.
func (b *Backend) Flush() error {
	if b.client == nil {
		return nil
	}
	return b.client.Flush()
}

func (b *Backend) phaseCheck(labels metrics.Labels, tags []string) {
	status, ok := checkStatus[labels["status"]]
	if !ok {
		status = statsd.Unknown
	}
	_ = b.client.ServiceCheck(&statsd.ServiceCheck{
		Name:      PhaseCheck,
		Status:    status,
		Timestamp: time.Now(),
		Message:   fmt.Sprintf("%s %s: %s", labels["entity"], labels["phase"], labels["status"]),
		Tags:      tags,
	})
}

func datadogName(name string) string {
	if n, ok := names[name]; ok {
		return n
	}
	return strings.ReplaceAll(name, "_", ".")
}

// tagsOf converts labels into sorted "key:value" tags.
func tagsOf(lbls metrics.Labels) []string {
	if len(lbls) == 0 {
		return nil
	}
	out := make([]string, 0, len(lbls))
	for k, v := range lbls {
		out = append(out, k+":"+v)
	}
	sort.Strings(out)
	return out
}
