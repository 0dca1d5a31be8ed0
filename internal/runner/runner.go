// Package runner sequences entity steps for one phase, fanning out across
// entities and recording each outcome.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"dbmigrate/internal/config"
	"dbmigrate/internal/logging"
	"dbmigrate/internal/mapping"
	"dbmigrate/internal/metrics"
	"dbmigrate/internal/state"
	"dbmigrate/internal/step"
)

// State is the subset of the state store the runner needs.
type State interface {
	step.SnapshotStore
	HasSnapshot(ctx context.Context, entity string) (bool, error)
	RecordPhase(ctx context.Context, rec state.PhaseRecord) error
}

// Runner runs steps for the entities of a map.
type Runner struct {
	Map      *mapping.Map
	Deps     step.Deps
	State    State
	Parallel int
	Logger   *logrus.Entry
}

// Outcome is the result of one entity.
type Outcome struct {
	Entity   string
	Phase    step.Phase
	OK       bool
	Skipped  bool
	Findings []string
	Duration time.Duration
	Err      error
}

// Report collects the outcomes of one invocation in entity order.
type Report struct {
	RunID    string
	Phase    step.Phase
	Outcomes []Outcome
}

// OK reports whether every entity that ran passed.
func (r Report) OK() bool {
	for _, o := range r.Outcomes {
		if !o.Skipped && (!o.OK || o.Err != nil) {
			return false
		}
	}
	return true
}

type findingsReporter interface {
	Errors() []string
}

func (r *Runner) log() *logrus.Entry {
	if r.Logger != nil {
		return r.Logger
	}
	return logging.Component("runner")
}

func (r *Runner) deps() step.Deps {
	d := r.Deps
	if d.State == nil && r.State != nil {
		d.State = r.State
	}
	return d
}

// entities resolves names against the map; no names means every entity.
func (r *Runner) entities(names []string) ([]config.Entity, error) {
	if len(names) == 0 {
		return r.Map.Entities(), nil
	}
	out := make([]config.Entity, 0, len(names))
	for _, n := range names {
		e, err := r.Map.Entity(n)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Run performs phase for the named entities. Kinds that do not declare the
// phase are skipped. Before data, every mapped entity with a snapshotter
// that has no snapshot yet gets one, whether or not it was named.
// Fatal step errors cancel the remaining work and are returned.
func (r *Runner) Run(ctx context.Context, phase step.Phase, names ...string) (Report, error) {
	report := Report{RunID: uuid.NewString(), Phase: phase}
	entities, err := r.entities(names)
	if err != nil {
		return report, err
	}
	for _, e := range entities {
		if !step.Registered(e.Kind) {
			return report, fmt.Errorf("%s: %w: %q", e.Name, step.ErrUnknownKind, e.Kind)
		}
	}

	log := r.log().WithFields(logrus.Fields{"run_id": report.RunID, "phase": phase.String()})
	deps := r.deps()
	deps.Logger = log

	if phase == step.Data {
		if err := r.ensureSnapshots(ctx, deps); err != nil {
			return report, err
		}
	}

	report.Outcomes = make([]Outcome, len(entities))
	steps := make([]step.Step, len(entities))
	for i, e := range entities {
		report.Outcomes[i] = Outcome{Entity: e.Name, Phase: phase}
		if !step.Declares(e.Kind, phase) {
			report.Outcomes[i].Skipped = true
			log.WithField("step", e.Name).Debugf("kind %s has no %s phase", e.Kind, phase)
			continue
		}
		s, err := step.New(deps, e, phase)
		if err != nil {
			return report, err
		}
		steps[i] = s
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.Parallel, 1))
	for i := range steps {
		if steps[i] == nil {
			continue
		}
		s, out := steps[i], &report.Outcomes[i]
		g.Go(func() error {
			started := time.Now()
			ok, err := s.Perform(gctx)
			out.OK, out.Err, out.Duration = ok, err, time.Since(started)
			if f, has := s.(findingsReporter); has {
				out.Findings = f.Errors()
			}
			metrics.RecordPhase(out.Entity, phase.String(), ok, err, out.Duration)
			r.record(ctx, report.RunID, started, out)

			entry := log.WithFields(logrus.Fields{"step": out.Entity, "elapsed": out.Duration.Truncate(time.Millisecond)})
			switch {
			case err != nil:
				entry.WithError(err).Error("step failed")
				return fmt.Errorf("%s: %w", out.Entity, err)
			case !ok:
				entry.Warnf("%s completed with %d error(s)", phase, len(out.Findings))
			default:
				entry.Infof("%s completed", phase)
			}
			return nil
		})
	}
	err = g.Wait()
	if ferr := metrics.Flush(); ferr != nil {
		log.WithError(ferr).Warn("metrics flush failed")
	}
	return report, err
}

func (r *Runner) record(ctx context.Context, runID string, started time.Time, o *Outcome) {
	if r.State == nil {
		return
	}
	rec := state.PhaseRecord{
		RunID:    runID,
		Entity:   o.Entity,
		Phase:    o.Phase.String(),
		OK:       o.OK && o.Err == nil,
		Findings: len(o.Findings),
		Started:  started,
		Duration: o.Duration,
	}
	if o.Err != nil {
		rec.Error = o.Err.Error()
	}
	if err := r.State.RecordPhase(ctx, rec); err != nil {
		r.log().WithError(err).Warn("could not record phase outcome")
	}
}

// ensureSnapshots captures the initial destination state of every entity in
// the map. Any data phase may change tables another entity reconciles
// against, so selection on the command line does not narrow it.
func (r *Runner) ensureSnapshots(ctx context.Context, deps step.Deps) error {
	if r.State == nil {
		return nil
	}
	for _, e := range r.Map.Entities() {
		if !step.Snapshots(e.Kind) {
			continue
		}
		has, err := r.State.HasSnapshot(ctx, e.Name)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if err := r.snapshot(ctx, deps, e); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot (re)captures the snapshots of the named entities.
func (r *Runner) Snapshot(ctx context.Context, names ...string) error {
	if r.State == nil {
		return errors.New("runner: snapshots need a state store")
	}
	entities, err := r.entities(names)
	if err != nil {
		return err
	}
	deps := r.deps()
	for _, e := range entities {
		if err := r.snapshot(ctx, deps, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) snapshot(ctx context.Context, deps step.Deps, e config.Entity) error {
	snap, err := step.NewSnapshotter(deps, e)
	if err != nil || snap == nil {
		return err
	}
	values, err := snap.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("%s: snapshot: %w", e.Name, err)
	}
	for key, v := range values {
		if err := r.State.SaveSnapshot(ctx, e.Name, key, v); err != nil {
			return err
		}
	}
	r.log().WithField("step", e.Name).Infof("captured %d snapshot(s)", len(values))
	return nil
}

// Rollback calls Rollback on every named entity whose step supports it.
func (r *Runner) Rollback(ctx context.Context, names ...string) (Report, error) {
	report := Report{RunID: uuid.NewString(), Phase: step.Data}
	entities, err := r.entities(names)
	if err != nil {
		return report, err
	}
	deps := r.deps()
	for _, e := range entities {
		out := Outcome{Entity: e.Name, Phase: step.Data}
		if !step.Declares(e.Kind, step.Data) {
			out.Skipped = true
			report.Outcomes = append(report.Outcomes, out)
			continue
		}
		s, err := step.New(deps, e, step.Data)
		if err != nil {
			return report, err
		}
		rb, ok := s.(step.Rollbacker)
		if !ok {
			out.Skipped = true
			report.Outcomes = append(report.Outcomes, out)
			continue
		}
		started := time.Now()
		out.OK, out.Err = rb.Rollback(ctx)
		out.Duration = time.Since(started)
		report.Outcomes = append(report.Outcomes, out)
		if out.Err != nil {
			return report, fmt.Errorf("%s: rollback: %w", e.Name, out.Err)
		}
	}
	return report, nil
}
