package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"dbmigrate/internal/storage"
)

// Store is a storage.Repository backed by *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
	cfg     storage.Config
	tables  *storage.FieldCache
}

var _ storage.Repository = (*Store)(nil)

// New wraps an open database.
func New(db *sql.DB, d Dialect, cfg storage.Config) *Store {
	s := &Store{db: db, dialect: d, cfg: cfg}
	s.tables = storage.NewFieldCache(512, s.introspect)
	return s
}

// Open opens dsn with the dialect's driver and verifies the connection.
func Open(ctx context.Context, d Dialect, cfg storage.Config) (*Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("%s: DSN must not be empty", d.Name())
	}
	db, err := sql.Open(d.Driver(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", d.Name(), err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: ping: %w", d.Name(), err)
	}
	return New(db, d, cfg), nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Kind implements storage.Repository.
func (s *Store) Kind() string { return s.dialect.Name() }

// Close implements storage.Repository.
func (s *Store) Close() { s.db.Close() }

// Physical returns the prefixed table name.
func (s *Store) Physical(table string) string { return s.cfg.Prefix + table }

// Table implements storage.Reader.
func (s *Store) Table(name string) string { return s.dialect.Quote(s.Physical(name)) }

// PageSize implements storage.Reader.
func (s *Store) PageSize(table string) int { return s.cfg.PageSizeFor(table) }

func (s *Store) introspect(ctx context.Context, table string) (storage.TableInfo, error) {
	q, args := s.dialect.FieldsQuery(table)
	fields, err := s.scanStrings(ctx, q, args...)
	if err != nil {
		return storage.TableInfo{}, fmt.Errorf("%s: fields of %s: %w", s.dialect.Name(), table, err)
	}
	q, args = s.dialect.PrimaryKeyQuery(table)
	pk, err := s.scanStrings(ctx, q, args...)
	if err != nil {
		return storage.TableInfo{}, fmt.Errorf("%s: primary key of %s: %w", s.dialect.Name(), table, err)
	}
	return storage.TableInfo{Fields: fields, PrimaryKey: pk}, nil
}

func (s *Store) scanStrings(ctx context.Context, q string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Fields implements storage.Reader.
func (s *Store) Fields(ctx context.Context, table string) ([]string, error) {
	info, err := s.tables.Get(ctx, s.Physical(table))
	if err != nil {
		return nil, err
	}
	return append([]string(nil), info.Fields...), nil
}

// RecordCount implements storage.Reader.
func (s *Store) RecordCount(ctx context.Context, table string) (int64, error) {
	var n int64
	q := "SELECT COUNT(*) FROM " + s.Table(table)
	if err := s.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: count %s: %w", s.dialect.Name(), table, err)
	}
	return n, nil
}

// Page implements storage.Reader.
func (s *Store) Page(ctx context.Context, table string, index int) ([]storage.Row, error) {
	if index < 0 {
		return nil, fmt.Errorf("%s: negative page index %d", s.dialect.Name(), index)
	}
	info, err := s.tables.Get(ctx, s.Physical(table))
	if err != nil {
		return nil, err
	}
	size := s.PageSize(table)
	q := s.dialect.Paginate("SELECT * FROM "+s.Table(table), info.OrderBy(), size, index*size)
	return s.Query(ctx, q)
}

// Query implements storage.Reader.
func (s *Store) Query(ctx context.Context, query string, args ...any) ([]storage.Row, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", s.dialect.Name(), err)
	}
	defer rows.Close()
	return ScanRows(rows)
}

// ScanRows drains rows into storage.Row values.
func ScanRows(rows *sql.Rows) ([]storage.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []storage.Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		r := make(storage.Row, len(cols))
		for i, c := range cols {
			r[c] = storage.Normalize(vals[i])
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Clear implements storage.Writer.
func (s *Store) Clear(ctx context.Context, table string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+s.Table(table)); err != nil {
		return fmt.Errorf("%s: clear %s: %w", s.dialect.Name(), table, err)
	}
	return nil
}

// SaveBatch implements storage.Writer. Rows are written inside one
// transaction with a prepared single-row statement.
func (s *Store) SaveBatch(ctx context.Context, table string, columns []string, rows [][]any, opts storage.SaveOptions) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(columns) == 0 {
		return 0, fmt.Errorf("%s: SaveBatch %s: columns must not be empty", s.dialect.Name(), table)
	}
	stmtSQL, err := s.dialect.InsertStatement(s.Table(table), columns, opts)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: begin tx: %w", s.dialect.Name(), err)
	}
	stmt, err := tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("%s: prepare insert: %w", s.dialect.Name(), err)
	}
	defer stmt.Close()

	var inserted int64
	for _, row := range rows {
		if len(row) != len(columns) {
			_ = tx.Rollback()
			return 0, fmt.Errorf("%s: SaveBatch: row length %d != columns length %d", s.dialect.Name(), len(row), len(columns))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("%s: insert into %s: %w", s.dialect.Name(), table, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%s: commit: %w", s.dialect.Name(), err)
	}
	return inserted, nil
}
