// Package check holds the accumulate-and-continue machinery shared by the
// integrity and volume phases.
//
// A Result carries a pass/fail flag plus ordered findings. Results from
// independent sub-checks are folded with Combine; the combined result passes
// only when every part passed. Nothing here logs: steps append results to a
// Collector, which is flushed once at the end of the phase.
package check

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"dbmigrate/internal/logging"
)

// Finding is one diagnostic produced by a check.
type Finding struct {
	Document string
	Fields   []string
	Message  string
}

// Result is the outcome of one or more checks.
type Result struct {
	failed   bool
	findings []Finding
}

// OK returns a passing result with no findings.
func OK() Result { return Result{} }

// Fail returns a failing result carrying the given findings.
func Fail(findings ...Finding) Result {
	return Result{failed: true, findings: findings}
}

// Failf is Fail with a single formatted message.
func Failf(document, format string, args ...any) Result {
	return Fail(Finding{Document: document, Message: fmt.Sprintf(format, args...)})
}

// Passed reports whether every combined check passed.
func (r Result) Passed() bool { return !r.failed }

// Findings returns the findings in the order they were produced.
func (r Result) Findings() []Finding {
	return append([]Finding(nil), r.findings...)
}

// Combine returns the conjunction of r and o with findings concatenated.
func (r Result) Combine(o Result) Result {
	out := Result{failed: r.failed || o.failed}
	if len(r.findings)+len(o.findings) > 0 {
		out.findings = make([]Finding, 0, len(r.findings)+len(o.findings))
		out.findings = append(out.findings, r.findings...)
		out.findings = append(out.findings, o.findings...)
	}
	return out
}

// All combines results left to right.
func All(results ...Result) Result {
	out := OK()
	for _, r := range results {
		out = out.Combine(r)
	}
	return out
}

// Collector is the ordered error list of one step run.
type Collector struct {
	messages []string
}

// Add appends every finding of r.
func (c *Collector) Add(r Result) {
	for _, f := range r.findings {
		c.messages = append(c.messages, f.Message)
	}
}

// Addf appends a single formatted message.
func (c *Collector) Addf(format string, args ...any) {
	c.messages = append(c.messages, fmt.Sprintf(format, args...))
}

// Len returns the number of collected messages.
func (c *Collector) Len() int { return len(c.messages) }

// Messages returns a copy of the collected messages.
func (c *Collector) Messages() []string {
	return append([]string(nil), c.messages...)
}

// Flush writes each message on its own line at error level. The collector
// keeps its messages so callers can still report them afterwards.
func (c *Collector) Flush(sink logging.Sink) {
	for _, m := range c.messages {
		sink.Log(logrus.ErrorLevel, m)
	}
}

// String joins the messages with newlines.
func (c *Collector) String() string { return strings.Join(c.messages, "\n") }
