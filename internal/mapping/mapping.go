// Package mapping holds the Entity Map: the per-entity migration policy
// loaded once from configuration and read-only for the rest of the run.
package mapping

import (
	"errors"
	"fmt"
	"sort"

	"dbmigrate/internal/config"
)

// ErrUnknownEntity is returned when a name is not in the map.
var ErrUnknownEntity = errors.New("mapping: unknown entity")

// Map is an immutable, ordered set of entity policies keyed by name.
type Map struct {
	order    []string
	entities map[string]config.Entity
	justCopy []string
}

// New builds a Map. Duplicate or empty names are rejected.
func New(entities []config.Entity) (*Map, error) {
	m := &Map{entities: make(map[string]config.Entity, len(entities))}
	docs := map[string]struct{}{}
	for _, e := range entities {
		if e.Name == "" {
			return nil, errors.New("mapping: entity with empty name")
		}
		if _, dup := m.entities[e.Name]; dup {
			return nil, fmt.Errorf("mapping: duplicate entity %q", e.Name)
		}
		m.entities[e.Name] = clone(e)
		m.order = append(m.order, e.Name)
		if e.JustCopy {
			for _, d := range e.Documents {
				docs[d] = struct{}{}
			}
		}
	}
	for d := range docs {
		m.justCopy = append(m.justCopy, d)
	}
	sort.Strings(m.justCopy)
	return m, nil
}

// Entity returns a copy of the named entity.
func (m *Map) Entity(name string) (config.Entity, error) {
	e, ok := m.entities[name]
	if !ok {
		return config.Entity{}, fmt.Errorf("%w: %q", ErrUnknownEntity, name)
	}
	return clone(e), nil
}

// Names returns entity names in configuration order.
func (m *Map) Names() []string { return append([]string(nil), m.order...) }

// Entities returns copies of all entities in configuration order.
func (m *Map) Entities() []config.Entity {
	out := make([]config.Entity, 0, len(m.order))
	for _, n := range m.order {
		out = append(out, clone(m.entities[n]))
	}
	return out
}

// JustCopyDocuments returns the sorted, de-duplicated documents of every
// just-copy entity.
func (m *Map) JustCopyDocuments() []string {
	return append([]string(nil), m.justCopy...)
}

func clone(e config.Entity) config.Entity {
	e.Destinations = append([]string(nil), e.Destinations...)
	e.Documents = append([]string(nil), e.Documents...)
	e.UpsertKey = append([]string(nil), e.UpsertKey...)
	if e.Options != nil {
		o := make(config.Options, len(e.Options))
		for k, v := range e.Options {
			o[k] = v
		}
		e.Options = o
	}
	return e
}
