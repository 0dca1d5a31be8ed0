package justcopy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbmigrate/internal/config"
	"dbmigrate/internal/progress"
	"dbmigrate/internal/step"
	"dbmigrate/internal/storage/sqlstore"
	"dbmigrate/internal/storage/storagetest"
)

type recorder struct{ total, advanced, finished int }

func (r *recorder) Start(n int) { r.total = n }
func (r *recorder) Advance()    { r.advanced++ }
func (r *recorder) Finish()     { r.finished++ }

func setup(t *testing.T) (src, dst *sqlstore.Store, e config.Entity) {
	t.Helper()
	src = storagetest.SQLite(t, "", 2)
	dst = storagetest.SQLite(t, "m2_", 2)
	storagetest.Exec(t, src,
		`CREATE TABLE tax_class (class_id INTEGER PRIMARY KEY, class_name TEXT)`,
		`CREATE TABLE core_website (website_id INTEGER PRIMARY KEY, code TEXT)`,
		`INSERT INTO tax_class VALUES (1,'Retail'),(2,'Wholesale'),(3,'Taxable Goods')`,
		`INSERT INTO core_website VALUES (0,'admin')`,
	)
	storagetest.Exec(t, dst,
		`CREATE TABLE m2_tax_class (class_id INTEGER PRIMARY KEY, class_name TEXT)`,
		`CREATE TABLE m2_core_website (website_id INTEGER PRIMARY KEY, code TEXT)`,
		`INSERT INTO m2_tax_class VALUES (9,'Leftover')`,
	)
	return src, dst, config.Entity{Name: "simple", Kind: Kind, Documents: []string{"tax_class", "core_website"}}
}

func perform(t *testing.T, deps step.Deps, e config.Entity, phase step.Phase) (bool, *Step) {
	t.Helper()
	s, err := step.New(deps, e, phase)
	require.NoError(t, err)
	ok, err := s.Perform(context.Background())
	require.NoError(t, err)
	return ok, s.(*Step)
}

func TestPhases(t *testing.T) {
	src, dst, e := setup(t)
	rec := &recorder{}
	deps := step.Deps{
		Source:      src,
		Destination: dst,
		Progress:    func(string, step.Phase) progress.Reporter { return rec },
	}

	ok, _ := perform(t, deps, e, step.Integrity)
	assert.True(t, ok)

	ok, s := perform(t, deps, e, step.Volume)
	assert.False(t, ok)
	assert.Equal(t, []string{
		"Incorrect number of entities in document: tax_class",
		"Incorrect number of entities in document: core_website",
	}, s.Errors())

	*rec = recorder{}
	ok, _ = perform(t, deps, e, step.Data)
	assert.True(t, ok)
	assert.Equal(t, 3, rec.total)
	assert.Equal(t, 3, rec.advanced)
	assert.Equal(t, 1, rec.finished)

	rows := storagetest.Rows(t, dst, "tax_class")
	require.Len(t, rows, 3)
	assert.Equal(t, "Taxable Goods", rows[2]["class_name"])

	ok, s = perform(t, deps, e, step.Volume)
	assert.True(t, ok)
	assert.Empty(t, s.Errors())
}

func TestIntegrity_ReportsBothDirections(t *testing.T) {
	src, dst, e := setup(t)
	storagetest.Exec(t, src, `CREATE TABLE extra (id INTEGER, legacy TEXT)`)
	storagetest.Exec(t, dst, `CREATE TABLE m2_extra (id INTEGER, modern TEXT)`)
	e.Documents = []string{"extra"}

	ok, s := perform(t, step.Deps{Source: src, Destination: dst}, e, step.Integrity)
	assert.False(t, ok)
	assert.Equal(t, []string{
		"Source fields are missing. Document: extra. Fields: modern",
		"Destination fields are missing. Document: extra. Fields: legacy",
	}, s.Errors())
}

func TestNew_RequiresDocuments(t *testing.T) {
	src, dst, _ := setup(t)
	_, err := step.New(step.Deps{Source: src, Destination: dst}, config.Entity{Name: "x", Kind: Kind}, step.Data)
	assert.Error(t, err)
}
