// Package document models one side's view of a table: the Document (schema
// descriptor), a Record bound to it, and a RecordSet holding one page of
// records for a single table.
//
// Every read or write through a Record is checked against the owning
// Document. Touching a field the Document does not declare is a programming
// error in the transformer, so it panics with *FieldError instead of
// silently growing the row. The data-phase engine recovers that panic and
// turns it into a fatal error for the step.
package document

import (
	"fmt"
	"sort"
	"strings"
)

// FieldError reports access to a field the document does not declare.
type FieldError struct {
	Document string
	Field    string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("document %s has no field %q", e.Document, e.Field)
}

// Document describes a table's name and ordered field set.
type Document struct {
	name   string
	fields []string
	index  map[string]int
}

// New returns a Document with the given name and ordered fields. Duplicate
// field names are collapsed, keeping the first position.
func New(name string, fields []string) *Document {
	d := &Document{
		name:   name,
		fields: make([]string, 0, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		if _, dup := d.index[f]; dup {
			continue
		}
		d.index[f] = len(d.fields)
		d.fields = append(d.fields, f)
	}
	return d
}

// Name returns the table name.
func (d *Document) Name() string { return d.name }

// Fields returns a copy of the ordered field names.
func (d *Document) Fields() []string {
	return append([]string(nil), d.fields...)
}

// Has reports whether field is declared.
func (d *Document) Has(field string) bool {
	_, ok := d.index[field]
	return ok
}

// Missing returns the names in want that the document does not declare,
// preserving the order of want.
func (d *Document) Missing(want []string) []string {
	var out []string
	for _, f := range want {
		if !d.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

func (d *Document) mustHave(field string) {
	if !d.Has(field) {
		panic(&FieldError{Document: d.name, Field: field})
	}
}

// String implements fmt.Stringer.
func (d *Document) String() string {
	return fmt.Sprintf("%s(%s)", d.name, strings.Join(d.fields, ","))
}

// SortedFields returns the field names in lexical order; handy for stable
// diagnostics.
func (d *Document) SortedFields() []string {
	out := d.Fields()
	sort.Strings(out)
	return out
}
