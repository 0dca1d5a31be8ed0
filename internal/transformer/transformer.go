// Package transformer defines how one source record becomes one destination
// record plus zero or more side records.
//
// Transformers are deterministic: the output depends only on the source
// record and static lookups captured at construction.
package transformer

import (
	"fmt"

	"dbmigrate/internal/document"
)

// Transformer fills dst (an empty record bound to the destination document)
// from src and may emit records for secondary documents through side.
type Transformer interface {
	Transform(src, dst *document.Record, side *Side) error
}

// Func adapts a function to Transformer.
type Func func(src, dst *document.Record, side *Side) error

// Transform implements Transformer.
func (f Func) Transform(src, dst *document.Record, side *Side) error { return f(src, dst, side) }

// Chain is an ordered list of transformers applied to the same record.
type Chain []Transformer

// Transform implements Transformer. It stops at the first error.
func (c Chain) Transform(src, dst *document.Record, side *Side) error {
	for _, t := range c {
		if err := t.Transform(src, dst, side); err != nil {
			return err
		}
	}
	return nil
}

// Identity copies every field declared by both documents.
var Identity Transformer = Func(func(src, dst *document.Record, _ *Side) error {
	sd := src.Document()
	for _, f := range dst.Document().Fields() {
		if sd.Has(f) && src.IsSet(f) {
			dst.SetValue(f, src.Value(f))
		}
	}
	return nil
})

// Side collects records emitted for secondary documents during one page.
type Side struct {
	order []string
	docs  map[string]*document.Document
	sets  map[string]*document.RecordSet
}

// NewSide returns a collector for docs.
func NewSide(docs ...*document.Document) *Side {
	s := &Side{
		docs: make(map[string]*document.Document, len(docs)),
		sets: make(map[string]*document.RecordSet, len(docs)),
	}
	for _, d := range docs {
		if _, dup := s.docs[d.Name()]; dup {
			continue
		}
		s.order = append(s.order, d.Name())
		s.docs[d.Name()] = d
		s.sets[d.Name()] = document.NewRecordSet(d)
	}
	return s
}

// New appends and returns an empty record for the named document.
func (s *Side) New(name string) (*document.Record, error) {
	d, ok := s.docs[name]
	if !ok {
		return nil, fmt.Errorf("transformer: side document %q is not declared", name)
	}
	r := document.NewRecord(d)
	if err := s.sets[name].Add(r); err != nil {
		return nil, err
	}
	return r, nil
}

// Documents returns the declared side documents in declaration order.
func (s *Side) Documents() []*document.Document {
	out := make([]*document.Document, 0, len(s.order))
	for _, n := range s.order {
		out = append(out, s.docs[n])
	}
	return out
}

// Sets returns the collected record sets in declaration order.
func (s *Side) Sets() []*document.RecordSet {
	out := make([]*document.RecordSet, 0, len(s.order))
	for _, n := range s.order {
		out = append(out, s.sets[n])
	}
	return out
}

// Reset discards the collected records, keeping the declared documents.
func (s *Side) Reset() {
	for _, n := range s.order {
		s.sets[n] = document.NewRecordSet(s.docs[n])
	}
}
