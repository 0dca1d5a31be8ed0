// Package storagetest provides temp-file SQLite repositories for tests.
package storagetest

import (
	"context"
	"path/filepath"
	"testing"

	"dbmigrate/internal/storage"
	_ "dbmigrate/internal/storage/sqlite"
	"dbmigrate/internal/storage/sqlstore"
)

// SQLite opens a fresh SQLite repository in t.TempDir and closes it on cleanup.
func SQLite(t testing.TB, prefix string, pageSize int) *sqlstore.Store {
	t.Helper()
	repo, err := storage.New(context.Background(), Config(t, prefix, pageSize))
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	t.Cleanup(repo.Close)
	return repo.(*sqlstore.Store)
}

// Config returns a sqlite storage config pointing at a new temp file.
func Config(t testing.TB, prefix string, pageSize int) storage.Config {
	t.Helper()
	return storage.Config{
		Kind:     "sqlite",
		DSN:      filepath.Join(t.TempDir(), "db.sqlite"),
		Prefix:   prefix,
		PageSize: pageSize,
	}
}

// Exec runs each statement or fails the test.
func Exec(t testing.TB, s *sqlstore.Store, stmts ...string) {
	t.Helper()
	for _, q := range stmts {
		if _, err := s.DB().Exec(q); err != nil {
			t.Fatalf("exec %q: %v", q, err)
		}
	}
}

// Rows returns every row of table ordered by its primary key.
func Rows(t testing.TB, r storage.Reader, table string) []storage.Row {
	t.Helper()
	ctx := context.Background()
	var out []storage.Row
	for i := 0; ; i++ {
		page, err := r.Page(ctx, table, i)
		if err != nil {
			t.Fatalf("page %d of %s: %v", i, table, err)
		}
		if len(page) == 0 {
			return out
		}
		out = append(out, page...)
	}
}

// Count returns the row count of table.
func Count(t testing.TB, r storage.Reader, table string) int64 {
	t.Helper()
	n, err := r.RecordCount(context.Background(), table)
	if err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
