// Package storage contains the storage-agnostic contracts used by migration
// steps, the backend factory and a few shared utilities.
//
// Backends register a Factory under a kind name from their init function;
// importing internal/storage/all enables every built-in backend.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// DefaultPageSize is used when neither the table nor the side configures one.
const DefaultPageSize = 1000

// ErrUnknownKind is returned by New for an unregistered backend kind.
var ErrUnknownKind = errors.New("storage: unknown kind")

// Row is one row keyed by column name. Values read as []byte are normalized
// to string.
type Row map[string]any

// SaveOptions controls how SaveBatch treats key collisions.
type SaveOptions struct {
	// ConflictKey names the natural key. Empty means plain insert.
	ConflictKey []string
	// UpdateColumns are overwritten on a key collision. Empty means the
	// colliding row is left untouched.
	UpdateColumns []string
}

// Upsert reports whether a conflict key is configured.
func (o SaveOptions) Upsert() bool { return len(o.ConflictKey) > 0 }

// Reader is the read side of a database. Table names are logical: the
// configured prefix is applied by the implementation.
type Reader interface {
	// Fields returns the table's column names in ordinal order. A missing
	// table yields an empty list.
	Fields(ctx context.Context, table string) ([]string, error)
	// RecordCount returns the number of rows in table.
	RecordCount(ctx context.Context, table string) (int64, error)
	// PageSize returns the number of rows Page returns for table.
	PageSize(table string) int
	// Page returns the rows of page index (0-based) ordered by primary key.
	// An empty result marks the end of the table.
	Page(ctx context.Context, table string, index int) ([]Row, error)
	// Query runs a raw SELECT. Arguments use the backend's native
	// placeholder syntax.
	Query(ctx context.Context, query string, args ...any) ([]Row, error)
	// Table returns the prefixed, quoted identifier for use in raw queries.
	Table(name string) string
}

// Writer is the write side of a database.
type Writer interface {
	// Clear deletes every row of table.
	Clear(ctx context.Context, table string) error
	// SaveBatch persists rows aligned to columns as one batch and returns the
	// number of rows written.
	SaveBatch(ctx context.Context, table string, columns []string, rows [][]any, opts SaveOptions) (int64, error)
}

// Repository is one opened database.
type Repository interface {
	Reader
	Writer
	// Kind returns the backend name.
	Kind() string
	Close()
}

// Config selects and configures a backend.
type Config struct {
	Kind      string
	DSN       string
	Prefix    string
	PageSize  int
	PageSizes map[string]int
}

// PageSizeFor resolves the page size of table.
func (c Config) PageSizeFor(table string) int {
	if n, ok := c.PageSizes[table]; ok && n > 0 {
		return n
	}
	if c.PageSize > 0 {
		return c.PageSize
	}
	return DefaultPageSize
}

// Factory opens a Repository.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind. It panics on duplicates.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := factories[kind]; dup {
		panic("storage: duplicate registration for " + kind)
	}
	factories[kind] = f
}

// New opens a Repository of cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownKind, cfg.Kind)
	}
	return f(ctx, cfg)
}

// Kinds returns the registered backend names.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// PageCount returns how many pages of size hold count rows.
func PageCount(count int64, size int) int {
	if count <= 0 || size <= 0 {
		return 0
	}
	return int((count + int64(size) - 1) / int64(size))
}

// Normalize converts driver-specific scan values into plain Go values.
func Normalize(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	default:
		return v
	}
}
