package etl

import (
	"context"
	"fmt"
	"sort"

	"dbmigrate/internal/check"
	"dbmigrate/internal/document"
	"dbmigrate/internal/storage"
)

// Describe builds a document from the live field list of table.
func Describe(ctx context.Context, r storage.Reader, table string) (*document.Document, error) {
	fields, err := r.Fields(ctx, table)
	if err != nil {
		return nil, err
	}
	return document.New(table, fields), nil
}

// Integrity compares the expected fields of each table against what r
// reports. Tables are checked in name order.
func Integrity(ctx context.Context, side check.Side, r storage.Reader, expected map[string][]string) (check.Result, error) {
	tables := make([]string, 0, len(expected))
	for t := range expected {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	res := check.OK()
	for _, t := range tables {
		actual, err := r.Fields(ctx, t)
		if err != nil {
			return check.Result{}, err
		}
		res = res.Combine(check.Structure(side, t, expected[t], actual))
	}
	return res, nil
}

// Counts returns the record count of each table, in the order given.
func Counts(ctx context.Context, r storage.Reader, tables ...string) ([]int64, error) {
	out := make([]int64, len(tables))
	for i, t := range tables {
		n, err := r.RecordCount(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

// Mirror fails when table does not expose the same fields on both sides.
func Mirror(ctx context.Context, src, dst storage.Reader, table string) (check.Result, error) {
	sf, err := src.Fields(ctx, table)
	if err != nil {
		return check.Result{}, err
	}
	df, err := dst.Fields(ctx, table)
	if err != nil {
		return check.Result{}, err
	}
	return check.All(
		check.Structure(check.SideSource, table, df, sf),
		check.Structure(check.SideDestination, table, sf, df),
	), nil
}

// Each calls fn for every row of table in page order.
func Each(ctx context.Context, r storage.Reader, table string, fn func(storage.Row) error) error {
	for index := 0; ; index++ {
		page, err := r.Page(ctx, table, index)
		if err != nil {
			return fmt.Errorf("etl: read %s page %d: %w", table, index, err)
		}
		if len(page) == 0 {
			return nil
		}
		for _, row := range page {
			if err := fn(row); err != nil {
				return err
			}
		}
	}
}
