// This file adds a lightweight linter for Config values. It performs static
// checks and returns a list of issues (errors and warnings) that callers can
// surface in a CLI or tests.

package config

import (
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a finding that is surfaced but does not block.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding.
//
// Path is a dotted path into the config (e.g. "source.kind",
// "entities[1].documents").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has error severity.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

var knownStorage = map[string]struct{}{
	"mysql":    {},
	"postgres": {},
	"mssql":    {},
	"sqlite":   {},
}

var knownMetrics = map[string]struct{}{
	"":            {},
	"none":        {},
	"pushgateway": {},
	"datadog":     {},
}

// ValidateConfig performs static validation of c. It does not know which
// step kinds are registered; the runner checks that.
func ValidateConfig(c Config) []Issue {
	var issues []Issue
	issues = append(issues, validateDatabase("source", c.Source)...)
	issues = append(issues, validateDatabase("destination", c.Destination)...)
	issues = append(issues, validateRuntime(c.Runtime)...)
	issues = append(issues, validateMetrics(c.Metrics)...)
	issues = append(issues, validateEntities(c.Entities)...)
	return issues
}

func validateDatabase(path string, d Database) []Issue {
	var issues []Issue

	if strings.TrimSpace(d.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     path + ".kind",
			Message:  path + ".kind must not be empty",
		})
	} else if _, ok := knownStorage[d.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     path + ".kind",
			Message:  fmt.Sprintf("unknown storage kind %q", d.Kind),
		})
	}
	if strings.TrimSpace(d.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     path + ".dsn",
			Message:  path + ".dsn must not be empty",
		})
	}
	if d.PageSize < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     path + ".page_size",
			Message:  "page_size must not be negative",
		})
	}
	for table, n := range d.PageSizes {
		if n <= 0 {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     fmt.Sprintf("%s.page_sizes.%s", path, table),
				Message:  fmt.Sprintf("page size %d is ignored", n),
			})
		}
	}
	return issues
}

func validateRuntime(r RuntimeConfig) []Issue {
	if r.Parallel < 0 {
		return []Issue{{
			Severity: SeverityError,
			Path:     "runtime.parallel",
			Message:  "parallel must not be negative",
		}}
	}
	return nil
}

func validateMetrics(m MetricsConfig) []Issue {
	var issues []Issue
	if _, ok := knownMetrics[m.Backend]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q; metrics will be disabled", m.Backend),
		})
	}
	if m.Backend == "pushgateway" && strings.TrimSpace(m.PushgatewayURL) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "metrics.pushgateway_url",
			Message:  "pushgateway backend requires pushgateway_url",
		})
	}
	return issues
}

func validateEntities(es []Entity) []Issue {
	var issues []Issue

	if len(es) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "entities",
			Message:  "no entities configured; nothing will be migrated",
		})
		return issues
	}

	seen := make(map[string]int, len(es))
	for i, e := range es {
		p := fmt.Sprintf("entities[%d]", i)
		if strings.TrimSpace(e.Name) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     p + ".name",
				Message:  "entity name must not be empty",
			})
		} else if j, dup := seen[e.Name]; dup {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     p + ".name",
				Message:  fmt.Sprintf("duplicate entity %q (first defined at entities[%d])", e.Name, j),
			})
		} else {
			seen[e.Name] = i
		}
		if strings.TrimSpace(e.Kind) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     p + ".kind",
				Message:  "entity kind must not be empty",
			})
		}
		if e.JustCopy && len(e.Documents) == 0 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     p + ".documents",
				Message:  "just_copy entity needs at least one document",
			})
		}
		if e.PageSize < 0 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     p + ".page_size",
				Message:  "page_size must not be negative",
			})
		}
		for k, col := range e.UpsertKey {
			if strings.TrimSpace(col) == "" {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     fmt.Sprintf("%s.upsert_key[%d]", p, k),
					Message:  "upsert key column must not be empty",
				})
			}
		}
	}
	return issues
}
