// Package postgres implements the "postgres" storage backend using pgx v5.
// Plain batches are written with COPY; upserts are sent as one pgx.Batch of
// INSERT ... ON CONFLICT statements.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"dbmigrate/internal/storage"
)

// Repository is a Postgres-backed implementation of storage.Repository.
type Repository struct {
	pool   *pgxpool.Pool
	cfg    storage.Config
	tables *storage.FieldCache
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg storage.Config) (*Repository, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	r := &Repository{pool: pool, cfg: cfg}
	r.tables = storage.NewFieldCache(512, r.introspect)
	return r, func() { pool.Close() }, nil
}

// Kind implements storage.Repository.
func (r *Repository) Kind() string { return "postgres" }

// physical applies the prefix to the table part of a possibly
// schema-qualified name.
func (r *Repository) physical(table string) string {
	if i := strings.LastIndex(table, "."); i >= 0 {
		return table[:i+1] + r.cfg.Prefix + table[i+1:]
	}
	return r.cfg.Prefix + table
}

// Table implements storage.Reader.
func (r *Repository) Table(name string) string { return pgFQN(r.physical(name)) }

// PageSize implements storage.Reader.
func (r *Repository) PageSize(table string) int { return r.cfg.PageSizeFor(table) }

const fieldsSQL = `SELECT column_name FROM information_schema.columns
WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema()) AND table_name = $2
ORDER BY ordinal_position`

const primaryKeySQL = `SELECT a.attname
FROM pg_index i
JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
WHERE i.indrelid = to_regclass($1) AND i.indisprimary
ORDER BY array_position(i.indkey::int2[], a.attnum)`

func (r *Repository) introspect(ctx context.Context, table string) (storage.TableInfo, error) {
	schema, name := "", table
	if i := strings.LastIndex(table, "."); i >= 0 {
		schema, name = table[:i], table[i+1:]
	}
	fields, err := r.scanStrings(ctx, fieldsSQL, schema, name)
	if err != nil {
		return storage.TableInfo{}, fmt.Errorf("postgres: fields of %s: %w", table, err)
	}
	if len(fields) == 0 {
		return storage.TableInfo{}, nil
	}
	pk, err := r.scanStrings(ctx, primaryKeySQL, pgFQN(table))
	if err != nil {
		return storage.TableInfo{}, fmt.Errorf("postgres: primary key of %s: %w", table, err)
	}
	return storage.TableInfo{Fields: fields, PrimaryKey: pk}, nil
}

func (r *Repository) scanStrings(ctx context.Context, q string, args ...any) ([]string, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Fields implements storage.Reader.
func (r *Repository) Fields(ctx context.Context, table string) ([]string, error) {
	info, err := r.tables.Get(ctx, r.physical(table))
	if err != nil {
		return nil, err
	}
	return append([]string(nil), info.Fields...), nil
}

// RecordCount implements storage.Reader.
func (r *Repository) RecordCount(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+r.Table(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count %s: %w", table, err)
	}
	return n, nil
}

// Page implements storage.Reader.
func (r *Repository) Page(ctx context.Context, table string, index int) ([]storage.Row, error) {
	if index < 0 {
		return nil, fmt.Errorf("postgres: negative page index %d", index)
	}
	info, err := r.tables.Get(ctx, r.physical(table))
	if err != nil {
		return nil, err
	}
	size := r.PageSize(table)
	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(r.Table(table))
	if order := info.OrderBy(); len(order) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(mapIdent(order), ", "))
	}
	b.WriteString(" LIMIT $1 OFFSET $2")
	return r.Query(ctx, b.String(), size, index*size)
}

// Query implements storage.Reader. Arguments use $n placeholders.
func (r *Repository) Query(ctx context.Context, query string, args ...any) ([]storage.Row, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query: %w", err)
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	var out []storage.Row
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("postgres: scan: %w", err)
		}
		row := make(storage.Row, len(fds))
		for i, fd := range fds {
			row[fd.Name] = storage.Normalize(vals[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: query: %w", err)
	}
	return out, nil
}

// Clear implements storage.Writer.
func (r *Repository) Clear(ctx context.Context, table string) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM "+r.Table(table)); err != nil {
		return fmt.Errorf("postgres: clear %s: %w", table, err)
	}
	return nil
}

// SaveBatch implements storage.Writer.
func (r *Repository) SaveBatch(ctx context.Context, table string, columns []string, rows [][]any, opts storage.SaveOptions) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(columns) == 0 {
		return 0, fmt.Errorf("postgres: SaveBatch %s: columns must not be empty", table)
	}
	if !opts.Upsert() {
		n, err := r.pool.CopyFrom(ctx, splitFQN(r.physical(table)), columns, pgx.CopyFromRows(rows))
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Detail != "" {
				return n, fmt.Errorf("postgres: copy into %s: %s (%s)", table, pgErr.Detail, pgErr.SQLState())
			}
			return n, fmt.Errorf("postgres: copy into %s: %w", table, err)
		}
		return n, nil
	}

	stmt := upsertSQL(r.Table(table), columns, opts)
	batch := &pgx.Batch{}
	for _, row := range rows {
		if len(row) != len(columns) {
			return 0, fmt.Errorf("postgres: SaveBatch: row length %d != columns length %d", len(row), len(columns))
		}
		batch.Queue(stmt, row...)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	br := tx.SendBatch(ctx, batch)
	var n int64
	for range rows {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("postgres: upsert into %s: %w", table, err)
		}
		n += tag.RowsAffected()
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("postgres: upsert into %s: %w", table, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit: %w", err)
	}
	return n, nil
}

// upsertSQL builds a single-row INSERT ... ON CONFLICT statement.
func upsertSQL(table string, columns []string, opts storage.SaveOptions) string {
	ph := make([]string, len(columns))
	for i := range columns {
		ph[i] = fmt.Sprintf("$%d", i+1)
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s)",
		table,
		strings.Join(mapIdent(columns), ", "),
		strings.Join(ph, ", "),
		strings.Join(mapIdent(opts.ConflictKey), ", "),
	)
	if len(opts.UpdateColumns) == 0 {
		return stmt + " DO NOTHING"
	}
	return stmt + " DO UPDATE SET " + strings.Join(updateColumns(opts.UpdateColumns), ", ")
}

// updateColumns generates a list of column updates in the format: "col = EXCLUDED.col"
func updateColumns(cols []string) []string {
	updates := make([]string, 0, len(cols))
	for _, col := range cols {
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", pgIdent(col), pgIdent(col)))
	}
	return updates
}

// pgIdent safely quotes a single identifier segment for Postgres.
func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// pgFQN quotes a possibly schema-qualified name like "public.url_rewrite" to
// "public"."url_rewrite". If no dot is present, returns a single quoted ident.
func pgFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pgIdent(p)
	}
	return strings.Join(parts, ".")
}

// mapIdent maps a list of column names to their quoted forms.
func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgIdent(c)
	}
	return out
}

// splitFQN converts "schema.table" into a pgx.Identifier {"schema","table"}.
// If no dot is present, returns {"table"}.
func splitFQN(fqn string) pgx.Identifier {
	parts := strings.Split(fqn, ".")
	id := make(pgx.Identifier, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			id = append(id, p)
		}
	}
	return id
}
