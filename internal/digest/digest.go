// Package digest fingerprints table contents so two runs can be compared.
package digest

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/zeebo/xxh3"

	"dbmigrate/internal/etl"
	"dbmigrate/internal/storage"
)

// Table hashes every row of table in page order and returns the digest and
// the number of rows seen. Rows are encoded with sorted column names, so the
// digest only depends on row contents and key order.
func Table(ctx context.Context, r storage.Reader, table string) (uint64, int64, error) {
	h := xxh3.New()
	var rows int64
	var buf []byte
	err := etl.Each(ctx, r, table, func(row storage.Row) error {
		buf = appendRow(buf[:0], row)
		_, _ = h.Write(buf)
		rows++
		return nil
	})
	if err != nil {
		return 0, rows, fmt.Errorf("digest: %w", err)
	}
	return h.Sum64(), rows, nil
}

// appendRow writes a length-prefixed encoding of row terminated by '\n'.
func appendRow(buf []byte, row storage.Row) []byte {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf = appendField(buf, k)
		buf = appendField(buf, encode(row[k]))
	}
	return append(buf, '\n')
}

func appendField(buf []byte, s string) []byte {
	buf = strconv.AppendInt(buf, int64(len(s)), 10)
	buf = append(buf, ':')
	return append(buf, s...)
}

func encode(v any) string {
	if v == nil {
		return "\x00null"
	}
	return fmt.Sprintf("%T=%v", v, v)
}

// Format renders a digest the way the CLI prints it.
func Format(sum uint64) string { return fmt.Sprintf("%016x", sum) }
