// Package mssql registers the "mssql" storage backend for Microsoft SQL
// Server. Plain batches go through the driver's bulk copy API; upserts use a
// per-row MERGE.
package mssql

import (
	"context"
	"fmt"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"dbmigrate/internal/storage"
	"dbmigrate/internal/storage/sqlstore"
)

// Dialect is the T-SQL flavor of SQL.
type Dialect struct{}

var _ sqlstore.Dialect = Dialect{}

func (Dialect) Name() string   { return "mssql" }
func (Dialect) Driver() string { return "sqlserver" }

// Quote quotes a SQL Server identifier using [brackets], escaping ].
func (Dialect) Quote(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

func (Dialect) Placeholder(i int) string { return fmt.Sprintf("@p%d", i) }

func (Dialect) FieldsQuery(table string) (string, []any) {
	return `SELECT COLUMN_NAME FROM INFORMATION_SCHEMA.COLUMNS
WHERE TABLE_NAME = @p1 ORDER BY ORDINAL_POSITION`, []any{table}
}

func (Dialect) PrimaryKeyQuery(table string) (string, []any) {
	return `SELECT k.COLUMN_NAME
FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS c
JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE k
  ON k.CONSTRAINT_NAME = c.CONSTRAINT_NAME AND k.TABLE_NAME = c.TABLE_NAME
WHERE c.TABLE_NAME = @p1 AND c.CONSTRAINT_TYPE = 'PRIMARY KEY'
ORDER BY k.ORDINAL_POSITION`, []any{table}
}

// Paginate uses OFFSET/FETCH, which requires an ORDER BY.
func (d Dialect) Paginate(query string, orderBy []string, limit, offset int) string {
	order := "(SELECT NULL)"
	if len(orderBy) > 0 {
		order = strings.Join(sqlstore.QuoteAll(d, orderBy), ", ")
	}
	return fmt.Sprintf("%s ORDER BY %s OFFSET %d ROWS FETCH NEXT %d ROWS ONLY", query, order, offset, limit)
}

// InsertStatement returns a MERGE keyed on the conflict columns when
// upserting.
func (d Dialect) InsertStatement(table string, columns []string, opts storage.SaveOptions) (string, error) {
	if !opts.Upsert() {
		return sqlstore.PlainInsert(d, table, columns), nil
	}
	src := make([]string, len(columns))
	for i, c := range columns {
		src[i] = fmt.Sprintf("%s AS %s", d.Placeholder(i+1), d.Quote(c))
	}
	on := make([]string, len(opts.ConflictKey))
	for i, k := range opts.ConflictKey {
		on[i] = fmt.Sprintf("T.%s = S.%s", d.Quote(k), d.Quote(k))
	}
	vals := make([]string, len(columns))
	for i, c := range columns {
		vals[i] = "S." + d.Quote(c)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "MERGE INTO %s AS T USING (SELECT %s) AS S ON %s",
		table, strings.Join(src, ", "), strings.Join(on, " AND "))
	if len(opts.UpdateColumns) > 0 {
		sets := make([]string, len(opts.UpdateColumns))
		for i, c := range opts.UpdateColumns {
			sets[i] = fmt.Sprintf("T.%s = S.%s", d.Quote(c), d.Quote(c))
		}
		fmt.Fprintf(&b, " WHEN MATCHED THEN UPDATE SET %s", strings.Join(sets, ", "))
	}
	fmt.Fprintf(&b, " WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s);",
		strings.Join(sqlstore.QuoteAll(d, columns), ", "), strings.Join(vals, ", "))
	return b.String(), nil
}

// repo overrides plain batch writes with bulk copy.
type repo struct {
	*sqlstore.Store
}

// SaveBatch implements storage.Writer.
func (r *repo) SaveBatch(ctx context.Context, table string, columns []string, rows [][]any, opts storage.SaveOptions) (int64, error) {
	if opts.Upsert() {
		return r.Store.SaveBatch(ctx, table, columns, rows, opts)
	}
	return r.copyIn(ctx, r.Physical(table), columns, rows)
}

func (r *repo) copyIn(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := r.DB().BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("mssql: begin tx: %w", err)
	}
	rollback := func() { _ = tx.Rollback() }

	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(table, mssql.BulkOptions{}, columns...))
	if err != nil {
		rollback()
		return 0, fmt.Errorf("mssql: prepare bulk: %w", err)
	}
	for i := range rows {
		if _, err := stmt.ExecContext(ctx, rows[i]...); err != nil {
			_ = stmt.Close()
			rollback()
			return 0, fmt.Errorf("mssql: bulk row %d: %w", i, err)
		}
	}
	res, err := stmt.ExecContext(ctx)
	if cerr := stmt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		rollback()
		return 0, fmt.Errorf("mssql: bulk finalize: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		rollback()
		return 0, fmt.Errorf("mssql: rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("mssql: commit: %w", err)
	}
	return n, nil
}

// newRepository is a test hook that points to open by default.
var newRepository = open

func open(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	// Validate DSN early to fail fast on obvious mistakes.
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, fmt.Errorf("mssql dsn: %w", err)
	}
	s, err := sqlstore.Open(ctx, Dialect{}, cfg)
	if err != nil {
		return nil, err
	}
	return &repo{Store: s}, nil
}

func init() {
	storage.Register("mssql", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return newRepository(ctx, cfg)
	})
}
