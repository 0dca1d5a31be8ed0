// Package step defines the migration step contract and the registry of step
// kinds.
package step

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"dbmigrate/internal/check"
	"dbmigrate/internal/logging"
	"dbmigrate/internal/mapping"
	"dbmigrate/internal/metrics"
	"dbmigrate/internal/progress"
	"dbmigrate/internal/registry"
	"dbmigrate/internal/storage"
)

var (
	// ErrInvalidPhase is returned when a step is asked for a phase it does
	// not declare.
	ErrInvalidPhase = errors.New("invalid step configuration")
	// ErrUnknownKind is returned for step kinds nobody registered.
	ErrUnknownKind = errors.New("step: unknown kind")
)

// Phase is one stage of an entity migration.
type Phase int

const (
	Integrity Phase = iota + 1
	Data
	Volume
)

var phaseNames = map[Phase]string{
	Integrity: "integrity",
	Data:      "data",
	Volume:    "volume",
}

func (p Phase) String() string {
	if s, ok := phaseNames[p]; ok {
		return s
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Phases lists every phase in run order.
func Phases() []Phase { return []Phase{Integrity, Data, Volume} }

// ParsePhase maps a phase name to a Phase.
func ParsePhase(s string) (Phase, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for p, n := range phaseNames {
		if n == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown phase %q", ErrInvalidPhase, s)
}

// Step runs one phase of one entity. The boolean reports whether every
// check passed; the error is reserved for fatal failures.
type Step interface {
	Name() string
	Perform(ctx context.Context) (bool, error)
}

// Rollbacker is implemented by steps that can undo their data phase.
type Rollbacker interface {
	Rollback(ctx context.Context) (bool, error)
}

// Snapshotter captures destination state that later volume checks compare
// against. It runs before the data phase.
type Snapshotter interface {
	Snapshot(ctx context.Context) (map[string][]string, error)
}

// SnapshotStore persists snapshots between invocations.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, entity, key string, values []string) error
	Snapshot(ctx context.Context, entity, key string) ([]string, error)
}

// Deps are the collaborators shared by every step of a run.
type Deps struct {
	Source      storage.Repository
	Destination storage.Repository
	Map         *mapping.Map
	Registry    *registry.Registry
	State       SnapshotStore
	Progress    func(entity string, phase Phase) progress.Reporter
	Logger      *logrus.Entry
}

// ProgressFor returns the reporter for entity and phase, or a no-op one.
func (d Deps) ProgressFor(entity string, phase Phase) progress.Reporter {
	if d.Progress == nil {
		return progress.Nop{}
	}
	return d.Progress(entity, phase)
}

// LoggerFor returns a logger tagged with entity and phase.
func (d Deps) LoggerFor(entity string, phase Phase) *logrus.Entry {
	base := d.Logger
	if base == nil {
		base = logrus.NewEntry(logrus.StandardLogger())
	}
	return base.WithFields(logrus.Fields{"step": entity, "phase": phase.String()})
}

// Stage is a validated phase selection for one step.
type Stage struct {
	phase Phase
}

// NewStage accepts phase only if declared lists it.
func NewStage(phase Phase, declared []Phase) (Stage, error) {
	for _, d := range declared {
		if d == phase {
			return Stage{phase: phase}, nil
		}
	}
	return Stage{}, fmt.Errorf("%w: phase %s is not declared", ErrInvalidPhase, phase)
}

// Phase returns the selected phase.
func (s Stage) Phase() Phase { return s.phase }

// Handlers holds one function per phase.
type Handlers struct {
	Integrity func(ctx context.Context) (bool, error)
	Data      func(ctx context.Context) (bool, error)
	Volume    func(ctx context.Context) (bool, error)
}

// Dispatch runs the handler for the selected phase.
func (s Stage) Dispatch(ctx context.Context, h Handlers) (bool, error) {
	var fn func(context.Context) (bool, error)
	switch s.phase {
	case Integrity:
		fn = h.Integrity
	case Data:
		fn = h.Data
	case Volume:
		fn = h.Volume
	}
	if fn == nil {
		return false, fmt.Errorf("%w: no handler for phase %s", ErrInvalidPhase, s.phase)
	}
	return fn(ctx)
}

// Conclude flushes the collected findings of a phase to log, one message
// per line at error level, and reports whether none were collected.
func Conclude(entity string, phase Phase, c *check.Collector, log *logrus.Entry) bool {
	if c.Len() == 0 {
		return true
	}
	metrics.RecordFindings(entity, phase.String(), c.Len())
	c.Flush(logging.EntrySink{Entry: log})
	return false
}
