package digest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbmigrate/internal/storage/storagetest"
)

func TestTable_StableAcrossPageSizes(t *testing.T) {
	ctx := context.Background()
	a := storagetest.SQLite(t, "", 2)
	b := storagetest.SQLite(t, "", 100)
	ddl := `CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT)`
	ins := `INSERT INTO t VALUES (3,'c'),(1,'a'),(2,NULL)`
	storagetest.Exec(t, a, ddl, ins)
	storagetest.Exec(t, b, ddl, ins)

	sa, na, err := Table(ctx, a, "t")
	require.NoError(t, err)
	sb, nb, err := Table(ctx, b, "t")
	require.NoError(t, err)
	assert.Equal(t, int64(3), na)
	assert.Equal(t, na, nb)
	assert.Equal(t, sa, sb)
	assert.Len(t, Format(sa), 16)
}

func TestTable_ChangesWithContent(t *testing.T) {
	ctx := context.Background()
	s := storagetest.SQLite(t, "", 10)
	storagetest.Exec(t, s, `CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT)`, `INSERT INTO t VALUES (1,'a')`)
	before, _, err := Table(ctx, s, "t")
	require.NoError(t, err)

	storagetest.Exec(t, s, `UPDATE t SET v = 'b'`)
	after, _, err := Table(ctx, s, "t")
	require.NoError(t, err)
	assert.NotEqual(t, before, after)

	storagetest.Exec(t, s, `UPDATE t SET v = NULL`)
	null, _, err := Table(ctx, s, "t")
	require.NoError(t, err)
	assert.NotEqual(t, after, null)
}

func TestTable_MissingTable(t *testing.T) {
	s := storagetest.SQLite(t, "", 10)
	_, _, err := Table(context.Background(), s, "missing")
	assert.Error(t, err)
}
