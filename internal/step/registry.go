package step

import (
	"fmt"
	"sort"
	"sync"

	"dbmigrate/internal/config"
)

// Constructor builds a step for one entity and a validated stage.
type Constructor func(deps Deps, entity config.Entity, stage Stage) (Step, error)

// SnapshotConstructor builds the snapshotter of a kind, if it has one.
type SnapshotConstructor func(deps Deps, entity config.Entity) (Snapshotter, error)

// Registration describes one step kind.
type Registration struct {
	Phases   []Phase
	New      Constructor
	Snapshot SnapshotConstructor
}

var (
	mu    sync.RWMutex
	kinds = map[string]Registration{}
)

// Register makes a step kind available. It panics on duplicates.
func Register(kind string, r Registration) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := kinds[kind]; dup {
		panic(fmt.Sprintf("step: kind %q already registered", kind))
	}
	if r.New == nil {
		panic(fmt.Sprintf("step: kind %q has no constructor", kind))
	}
	kinds[kind] = r
}

func lookup(kind string) (Registration, error) {
	mu.RLock()
	defer mu.RUnlock()
	r, ok := kinds[kind]
	if !ok {
		return Registration{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return r, nil
}

// New builds the step of entity for phase. Undeclared phases fail with
// ErrInvalidPhase before any collaborator is touched.
func New(deps Deps, entity config.Entity, phase Phase) (Step, error) {
	r, err := lookup(entity.Kind)
	if err != nil {
		return nil, err
	}
	stage, err := NewStage(phase, r.Phases)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", entity.Name, err)
	}
	return r.New(deps, entity, stage)
}

// NewSnapshotter returns the snapshotter of entity, or nil when its kind
// does not take snapshots.
func NewSnapshotter(deps Deps, entity config.Entity) (Snapshotter, error) {
	r, err := lookup(entity.Kind)
	if err != nil {
		return nil, err
	}
	if r.Snapshot == nil {
		return nil, nil
	}
	return r.Snapshot(deps, entity)
}

// Declares reports whether kind supports phase.
func Declares(kind string, phase Phase) bool {
	r, err := lookup(kind)
	if err != nil {
		return false
	}
	for _, p := range r.Phases {
		if p == phase {
			return true
		}
	}
	return false
}

// Snapshots reports whether kind has a snapshotter.
func Snapshots(kind string) bool {
	r, err := lookup(kind)
	return err == nil && r.Snapshot != nil
}

// Registered reports whether kind exists.
func Registered(kind string) bool {
	_, err := lookup(kind)
	return err == nil
}

// Kinds lists registered kinds in sorted order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// PhasesOf returns the declared phases of kind.
func PhasesOf(kind string) []Phase {
	r, err := lookup(kind)
	if err != nil {
		return nil
	}
	return append([]Phase(nil), r.Phases...)
}
