package runner

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbmigrate/internal/config"
	"dbmigrate/internal/mapping"
	"dbmigrate/internal/state"
	"dbmigrate/internal/step"
)

var (
	performed  atomic.Int32
	rolledBack atomic.Int32
	errFatal   = errors.New("connection lost")
)

type testStep struct {
	name  string
	stage step.Stage
	ok    bool
	err   error
}

func (s *testStep) Name() string { return s.name }
func (s *testStep) Perform(context.Context) (bool, error) {
	performed.Add(1)
	return s.ok, s.err
}
func (s *testStep) Errors() []string {
	if s.ok {
		return nil
	}
	return []string{"Incorrect number of entities in document: " + s.name}
}
func (s *testStep) Rollback(context.Context) (bool, error) {
	rolledBack.Add(1)
	return true, nil
}

type snap struct{}

func (snap) Snapshot(context.Context) (map[string][]string, error) {
	return map[string][]string{"ids": {"1", "2"}}, nil
}

func init() {
	register := func(kind string, phases []step.Phase, ok bool, err error) {
		step.Register(kind, step.Registration{
			Phases: phases,
			New: func(_ step.Deps, e config.Entity, st step.Stage) (step.Step, error) {
				return &testStep{name: e.Name, stage: st, ok: ok, err: err}, nil
			},
			Snapshot: func(step.Deps, config.Entity) (step.Snapshotter, error) { return snap{}, nil },
		})
	}
	all := step.Phases()
	register("runner-ok", all, true, nil)
	register("runner-fail", all, false, nil)
	register("runner-fatal", all, false, errFatal)
	register("runner-check", []step.Phase{step.Integrity, step.Volume}, true, nil)
	step.Register("runner-plain", step.Registration{
		Phases: all,
		New: func(_ step.Deps, e config.Entity, st step.Stage) (step.Step, error) {
			return &testStep{name: e.Name, stage: st, ok: true}, nil
		},
	})
}

func newRunner(t *testing.T, entities ...config.Entity) (*Runner, *state.Store) {
	t.Helper()
	m, err := mapping.New(entities)
	require.NoError(t, err)
	st, err := state.Open(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return &Runner{Map: m, State: st, Parallel: 2}, st
}

func TestRun_CollectsOutcomesAndSkipsUndeclared(t *testing.T) {
	ctx := context.Background()
	r, st := newRunner(t,
		config.Entity{Name: "a", Kind: "runner-ok"},
		config.Entity{Name: "b", Kind: "runner-fail"},
		config.Entity{Name: "c", Kind: "runner-check"},
	)

	rep, err := r.Run(ctx, step.Data)
	require.NoError(t, err)
	require.Len(t, rep.Outcomes, 3)
	assert.NotEmpty(t, rep.RunID)
	assert.False(t, rep.OK())

	assert.True(t, rep.Outcomes[0].OK)
	assert.False(t, rep.Outcomes[1].OK)
	assert.Equal(t, []string{"Incorrect number of entities in document: b"}, rep.Outcomes[1].Findings)
	assert.True(t, rep.Outcomes[2].Skipped)

	last, err := st.LastPhases(ctx)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "a", last[0].Entity)
	assert.Equal(t, "data", last[0].Phase)
	assert.Equal(t, rep.RunID, last[0].RunID)
	assert.Equal(t, 1, last[1].Findings)
}

func TestRun_DataTakesMissingSnapshots(t *testing.T) {
	ctx := context.Background()
	r, st := newRunner(t, config.Entity{Name: "a", Kind: "runner-ok"})

	_, err := r.Run(ctx, step.Volume)
	require.NoError(t, err)
	has, err := st.HasSnapshot(ctx, "a")
	require.NoError(t, err)
	assert.False(t, has)

	_, err = r.Run(ctx, step.Data)
	require.NoError(t, err)
	got, err := st.Snapshot(ctx, "a", "ids")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, got)
}

func TestRun_DataSnapshotsEntitiesOutsideSelection(t *testing.T) {
	ctx := context.Background()
	r, st := newRunner(t,
		config.Entity{Name: "attributes", Kind: "runner-plain"},
		config.Entity{Name: "eav", Kind: "runner-check"},
	)

	rep, err := r.Run(ctx, step.Data, "attributes")
	require.NoError(t, err)
	require.Len(t, rep.Outcomes, 1)

	got, err := st.Snapshot(ctx, "eav", "ids")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, got)

	has, err := st.HasSnapshot(ctx, "attributes")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestRun_DataKeepsExistingSnapshots(t *testing.T) {
	ctx := context.Background()
	r, st := newRunner(t,
		config.Entity{Name: "attributes", Kind: "runner-plain"},
		config.Entity{Name: "eav", Kind: "runner-check"},
	)
	require.NoError(t, st.SaveSnapshot(ctx, "eav", "ids", []string{"9"}))

	_, err := r.Run(ctx, step.Data, "attributes")
	require.NoError(t, err)

	got, err := st.Snapshot(ctx, "eav", "ids")
	require.NoError(t, err)
	assert.Equal(t, []string{"9"}, got)
}

func TestRun_FatalErrorIsReturned(t *testing.T) {
	r, _ := newRunner(t,
		config.Entity{Name: "bad", Kind: "runner-fatal"},
	)
	rep, err := r.Run(context.Background(), step.Integrity)
	require.ErrorIs(t, err, errFatal)
	assert.ErrorIs(t, rep.Outcomes[0].Err, errFatal)
	assert.False(t, rep.OK())
}

func TestRun_UnknownEntityAndKind(t *testing.T) {
	r, _ := newRunner(t, config.Entity{Name: "a", Kind: "runner-ok"}, config.Entity{Name: "z", Kind: "missing-kind"})

	_, err := r.Run(context.Background(), step.Integrity, "nope")
	assert.ErrorIs(t, err, mapping.ErrUnknownEntity)

	before := performed.Load()
	_, err = r.Run(context.Background(), step.Integrity)
	assert.ErrorIs(t, err, step.ErrUnknownKind)
	assert.Equal(t, before, performed.Load())
}

func TestRun_SelectedEntitiesOnly(t *testing.T) {
	r, _ := newRunner(t, config.Entity{Name: "a", Kind: "runner-ok"}, config.Entity{Name: "b", Kind: "runner-fail"})
	rep, err := r.Run(context.Background(), step.Volume, "a")
	require.NoError(t, err)
	require.Len(t, rep.Outcomes, 1)
	assert.True(t, rep.OK())
}

func TestRollback(t *testing.T) {
	r, _ := newRunner(t, config.Entity{Name: "a", Kind: "runner-ok"}, config.Entity{Name: "c", Kind: "runner-check"})
	before := rolledBack.Load()
	rep, err := r.Rollback(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Outcomes, 2)
	assert.True(t, rep.Outcomes[0].OK)
	assert.True(t, rep.Outcomes[1].Skipped)
	assert.Equal(t, before+1, rolledBack.Load())
}

func TestSnapshot_RequiresState(t *testing.T) {
	r, _ := newRunner(t, config.Entity{Name: "a", Kind: "runner-ok"})
	r.State = nil
	assert.Error(t, r.Snapshot(context.Background()))
}
