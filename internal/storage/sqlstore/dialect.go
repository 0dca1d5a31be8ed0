// Package sqlstore implements storage.Repository on top of database/sql. SQL
// differences between backends are isolated behind Dialect so the mysql,
// sqlite and mssql packages only describe their syntax.
package sqlstore

import (
	"fmt"
	"strings"

	"dbmigrate/internal/storage"
)

// Dialect describes the SQL flavor of one backend.
type Dialect interface {
	// Name is the storage kind, e.g. "mysql".
	Name() string
	// Driver is the database/sql driver name.
	Driver() string
	// Quote quotes a single identifier.
	Quote(ident string) string
	// Placeholder returns the i-th (1-based) bind parameter.
	Placeholder(i int) string
	// FieldsQuery lists the column names of a physical table in ordinal order.
	FieldsQuery(table string) (string, []any)
	// PrimaryKeyQuery lists the primary key columns of a physical table.
	PrimaryKeyQuery(table string) (string, []any)
	// Paginate appends ordering and a row window to a SELECT.
	Paginate(query string, orderBy []string, limit, offset int) string
	// InsertStatement returns a single-row statement for columns, honoring
	// the conflict options.
	InsertStatement(table string, columns []string, opts storage.SaveOptions) (string, error)
}

// QuoteAll quotes every identifier with d.
func QuoteAll(d Dialect, idents []string) []string {
	out := make([]string, len(idents))
	for i, id := range idents {
		out[i] = d.Quote(id)
	}
	return out
}

// Placeholders returns n placeholders of d joined with ", ".
func Placeholders(d Dialect, n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = d.Placeholder(i + 1)
	}
	return strings.Join(ps, ", ")
}

// PlainInsert is the INSERT shared by every dialect.
func PlainInsert(d Dialect, table string, columns []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(QuoteAll(d, columns), ", "), Placeholders(d, len(columns)))
}

// LimitOffset is the "ORDER BY ... LIMIT n OFFSET m" window used by MySQL,
// SQLite and Postgres.
func LimitOffset(d Dialect, query string, orderBy []string, limit, offset int) string {
	var b strings.Builder
	b.WriteString(query)
	if len(orderBy) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(QuoteAll(d, orderBy), ", "))
	}
	fmt.Fprintf(&b, " LIMIT %d OFFSET %d", limit, offset)
	return b.String()
}
