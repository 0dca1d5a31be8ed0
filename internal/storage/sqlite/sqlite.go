// Package sqlite registers the "sqlite" storage backend. It is used for local
// rehearsals of a migration and by the test suites.
package sqlite

import (
	"context"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"dbmigrate/internal/storage"
	"dbmigrate/internal/storage/sqlstore"
)

// Dialect is the SQLite flavor of SQL.
type Dialect struct{}

var _ sqlstore.Dialect = Dialect{}

func (Dialect) Name() string   { return "sqlite" }
func (Dialect) Driver() string { return "sqlite" }

func (Dialect) Quote(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

func (Dialect) Placeholder(int) string { return "?" }

func (Dialect) FieldsQuery(table string) (string, []any) {
	return "SELECT name FROM pragma_table_info(?) ORDER BY cid", []any{table}
}

func (Dialect) PrimaryKeyQuery(table string) (string, []any) {
	return "SELECT name FROM pragma_table_info(?) WHERE pk > 0 ORDER BY pk", []any{table}
}

func (d Dialect) Paginate(query string, orderBy []string, limit, offset int) string {
	return sqlstore.LimitOffset(d, query, orderBy, limit, offset)
}

// InsertStatement uses ON CONFLICT, which needs a unique index over the
// conflict key.
func (d Dialect) InsertStatement(table string, columns []string, opts storage.SaveOptions) (string, error) {
	stmt := sqlstore.PlainInsert(d, table, columns)
	if !opts.Upsert() {
		return stmt, nil
	}
	target := strings.Join(sqlstore.QuoteAll(d, opts.ConflictKey), ", ")
	if len(opts.UpdateColumns) == 0 {
		return fmt.Sprintf("%s ON CONFLICT (%s) DO NOTHING", stmt, target), nil
	}
	sets := make([]string, len(opts.UpdateColumns))
	for i, c := range opts.UpdateColumns {
		sets[i] = fmt.Sprintf("%s = excluded.%s", d.Quote(c), d.Quote(c))
	}
	return fmt.Sprintf("%s ON CONFLICT (%s) DO UPDATE SET %s", stmt, target, strings.Join(sets, ", ")), nil
}

// newRepository is a test hook that points to open by default.
var newRepository = open

func open(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	s, err := sqlstore.Open(ctx, Dialect{}, cfg)
	if err != nil {
		return nil, err
	}
	// Ignore the error if the driver doesn't support it.
	_, _ = s.DB().ExecContext(ctx, "PRAGMA foreign_keys = ON;")
	return s, nil
}

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return newRepository(ctx, cfg)
	})
}
