package step

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbmigrate/internal/check"
	"dbmigrate/internal/config"
)

type fakeStep struct {
	name  string
	stage Stage
}

func (f *fakeStep) Name() string { return f.name }
func (f *fakeStep) Perform(ctx context.Context) (bool, error) {
	return f.stage.Dispatch(ctx, Handlers{
		Integrity: func(context.Context) (bool, error) { return true, nil },
		Volume:    func(context.Context) (bool, error) { return false, nil },
	})
}

func init() {
	Register("fake", Registration{
		Phases: []Phase{Integrity, Volume},
		New: func(_ Deps, e config.Entity, s Stage) (Step, error) {
			return &fakeStep{name: e.Name, stage: s}, nil
		},
	})
}

func TestParsePhase(t *testing.T) {
	for _, p := range Phases() {
		got, err := ParsePhase(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	got, err := ParsePhase(" Data ")
	require.NoError(t, err)
	assert.Equal(t, Data, got)

	_, err = ParsePhase("delta")
	assert.ErrorIs(t, err, ErrInvalidPhase)
}

func TestNew_DispatchesDeclaredPhases(t *testing.T) {
	e := config.Entity{Name: "fx", Kind: "fake"}

	s, err := New(Deps{}, e, Integrity)
	require.NoError(t, err)
	ok, err := s.Perform(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	s, err = New(Deps{}, e, Volume)
	require.NoError(t, err)
	ok, err = s.Perform(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNew_RejectsUndeclaredPhase(t *testing.T) {
	_, err := New(Deps{}, config.Entity{Name: "fx", Kind: "fake"}, Data)
	assert.ErrorIs(t, err, ErrInvalidPhase)
	assert.False(t, Declares("fake", Data))
	assert.True(t, Declares("fake", Volume))
}

func TestNew_UnknownKind(t *testing.T) {
	_, err := New(Deps{}, config.Entity{Name: "x", Kind: "nope"}, Data)
	assert.True(t, errors.Is(err, ErrUnknownKind))
	assert.False(t, Registered("nope"))
	assert.Contains(t, Kinds(), "fake")
	assert.False(t, Snapshots("nope"))
	assert.False(t, Snapshots("fake"))
}

func TestRegister_PanicsOnDuplicate(t *testing.T) {
	assert.Panics(t, func() {
		Register("fake", Registration{New: func(Deps, config.Entity, Stage) (Step, error) { return nil, nil }})
	})
}

func TestStage_DispatchWithoutHandler(t *testing.T) {
	s, err := NewStage(Data, []Phase{Data})
	require.NoError(t, err)
	_, err = s.Dispatch(context.Background(), Handlers{})
	assert.ErrorIs(t, err, ErrInvalidPhase)
}

func TestConclude_FlushesAtErrorLevel(t *testing.T) {
	logger, hook := test.NewNullLogger()
	c := &check.Collector{}
	assert.True(t, Conclude("e", Volume, c, logrus.NewEntry(logger)))

	c.Add(check.Count("url_rewrite", 3, 2))
	c.Addf("second")
	assert.False(t, Conclude("e", Volume, c, logrus.NewEntry(logger)))

	entries := hook.AllEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, logrus.ErrorLevel, entries[0].Level)
	assert.Equal(t, "Incorrect number of entities in document: url_rewrite", entries[0].Message)
	assert.Equal(t, "second", entries[1].Message)
}
