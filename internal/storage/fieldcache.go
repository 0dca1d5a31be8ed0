package storage

import (
	"context"
	"errors"

	"github.com/bluele/gcache"
)

// TableInfo is the cached shape of one physical table.
type TableInfo struct {
	Fields     []string
	PrimaryKey []string
}

// OrderBy returns the columns pages are ordered by: the primary key, or the
// first field when the table has none.
func (t TableInfo) OrderBy() []string {
	if len(t.PrimaryKey) > 0 {
		return t.PrimaryKey
	}
	if len(t.Fields) > 0 {
		return t.Fields[:1]
	}
	return nil
}

// FieldCache memoizes table introspection per repository. Entries live until
// Invalidate is called for the table.
type FieldCache struct {
	cache gcache.Cache
	load  func(ctx context.Context, table string) (TableInfo, error)
}

// NewFieldCache returns an LRU cache of size entries backed by load.
func NewFieldCache(size int, load func(ctx context.Context, table string) (TableInfo, error)) *FieldCache {
	if size <= 0 {
		size = 256
	}
	return &FieldCache{cache: gcache.New(size).LRU().Build(), load: load}
}

// Get returns the cached info for table, loading it on a miss. Empty results
// (missing tables) are not cached.
func (c *FieldCache) Get(ctx context.Context, table string) (TableInfo, error) {
	v, err := c.cache.Get(table)
	if err == nil {
		return v.(TableInfo), nil
	}
	if !errors.Is(err, gcache.KeyNotFoundError) {
		return TableInfo{}, err
	}
	info, err := c.load(ctx, table)
	if err != nil {
		return TableInfo{}, err
	}
	if len(info.Fields) > 0 {
		_ = c.cache.Set(table, info)
	}
	return info, nil
}

// Invalidate drops table from the cache.
func (c *FieldCache) Invalidate(table string) {
	c.cache.Remove(table)
}
