package document

import "fmt"

// Record is one row bound to a Document.
type Record struct {
	doc  *Document
	data map[string]any
}

// NewRecord returns an empty record bound to doc.
func NewRecord(doc *Document) *Record {
	return &Record{doc: doc, data: make(map[string]any, len(doc.fields))}
}

// NewRecordFrom binds row to doc. Every key in row must be declared by doc.
func NewRecordFrom(doc *Document, row map[string]any) (*Record, error) {
	r := NewRecord(doc)
	for k, v := range row {
		if !doc.Has(k) {
			return nil, &FieldError{Document: doc.name, Field: k}
		}
		r.data[k] = v
	}
	return r, nil
}

// Document returns the owning document.
func (r *Record) Document() *Document { return r.doc }

// Value returns the value stored under field, or nil when it was never set.
// It panics with *FieldError when the document does not declare field.
func (r *Record) Value(field string) any {
	r.doc.mustHave(field)
	return r.data[field]
}

// SetValue stores v under field. It panics with *FieldError when the
// document does not declare field.
func (r *Record) SetValue(field string, v any) {
	r.doc.mustHave(field)
	r.data[field] = v
}

// IsSet reports whether field has been written, even with a nil value.
func (r *Record) IsSet(field string) bool {
	_, ok := r.data[field]
	return ok
}

// Data returns a copy of the stored values.
func (r *Record) Data() map[string]any {
	out := make(map[string]any, len(r.data))
	for k, v := range r.data {
		out[k] = v
	}
	return out
}

// RecordSet is an append-only page of records for one document.
type RecordSet struct {
	doc     *Document
	records []*Record
}

// NewRecordSet returns an empty set owned by doc.
func NewRecordSet(doc *Document) *RecordSet {
	return &RecordSet{doc: doc}
}

// Document returns the owning document.
func (s *RecordSet) Document() *Document { return s.doc }

// Add appends rec. Records bound to another document are rejected.
func (s *RecordSet) Add(rec *Record) error {
	if rec.doc != s.doc && rec.doc.name != s.doc.name {
		return fmt.Errorf("record set %s: cannot add record of document %s", s.doc.name, rec.doc.name)
	}
	s.records = append(s.records, rec)
	return nil
}

// Len returns the number of records.
func (s *RecordSet) Len() int { return len(s.records) }

// Records returns the records in insertion order.
func (s *RecordSet) Records() []*Record { return s.records }

// Columns returns the document fields written by at least one record, in
// document order.
func (s *RecordSet) Columns() []string {
	used := make(map[string]struct{}, len(s.doc.fields))
	for _, r := range s.records {
		for k := range r.data {
			used[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(used))
	for _, f := range s.doc.fields {
		if _, ok := used[f]; ok {
			cols = append(cols, f)
		}
	}
	return cols
}

// Rows returns the records as positional rows aligned to Columns. Fields a
// record never set are nil.
func (s *RecordSet) Rows() (columns []string, rows [][]any) {
	columns = s.Columns()
	rows = make([][]any, 0, len(s.records))
	for _, r := range s.records {
		row := make([]any, len(columns))
		for i, c := range columns {
			row[i] = r.data[c]
		}
		rows = append(rows, row)
	}
	return columns, rows
}
