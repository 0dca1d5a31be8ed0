// Package mysql registers the "mysql" storage backend. Both sides of a
// typical store migration live in MySQL.
package mysql

import (
	"context"
	"fmt"
	"strings"

	driver "github.com/go-sql-driver/mysql"

	"dbmigrate/internal/storage"
	"dbmigrate/internal/storage/sqlstore"
)

// Dialect is the MySQL flavor of SQL.
type Dialect struct{}

var _ sqlstore.Dialect = Dialect{}

func (Dialect) Name() string   { return "mysql" }
func (Dialect) Driver() string { return "mysql" }

func (Dialect) Quote(id string) string { return "`" + strings.ReplaceAll(id, "`", "``") + "`" }

func (Dialect) Placeholder(int) string { return "?" }

func (Dialect) FieldsQuery(table string) (string, []any) {
	return `SELECT COLUMN_NAME FROM INFORMATION_SCHEMA.COLUMNS
WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? ORDER BY ORDINAL_POSITION`, []any{table}
}

func (Dialect) PrimaryKeyQuery(table string) (string, []any) {
	return `SELECT COLUMN_NAME FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND CONSTRAINT_NAME = 'PRIMARY'
ORDER BY ORDINAL_POSITION`, []any{table}
}

func (d Dialect) Paginate(query string, orderBy []string, limit, offset int) string {
	return sqlstore.LimitOffset(d, query, orderBy, limit, offset)
}

// InsertStatement uses ON DUPLICATE KEY UPDATE, which fires on any unique
// index; the conflict key documents which one is expected to collide.
func (d Dialect) InsertStatement(table string, columns []string, opts storage.SaveOptions) (string, error) {
	stmt := sqlstore.PlainInsert(d, table, columns)
	if !opts.Upsert() {
		return stmt, nil
	}
	update := opts.UpdateColumns
	if len(update) == 0 {
		// No-op assignment keeps the existing row.
		update = opts.ConflictKey[:1]
	}
	sets := make([]string, len(update))
	for i, c := range update {
		sets[i] = fmt.Sprintf("%s = VALUES(%s)", d.Quote(c), d.Quote(c))
	}
	return stmt + " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", "), nil
}

// newRepository is a test hook that points to open by default.
var newRepository = open

func open(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	if _, err := driver.ParseDSN(cfg.DSN); err != nil {
		return nil, fmt.Errorf("mysql dsn: %w", err)
	}
	return sqlstore.Open(ctx, Dialect{}, cfg)
}

func init() {
	storage.Register("mysql", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return newRepository(ctx, cfg)
	})
}
