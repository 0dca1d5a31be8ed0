// Package registry holds the load-time set of model implementations that
// destination attribute rows may reference by class name.
package registry

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// UnresolvedReferenceError reports a model name with no registered
// implementation.
type UnresolvedReferenceError struct {
	Name string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("unresolved model reference %q", e.Name)
}

// Registry is a concurrency-safe set of known model names.
type Registry struct {
	mu    sync.RWMutex
	names map[string]string
}

// New returns a registry seeded with names.
func New(names ...string) *Registry {
	r := &Registry{names: make(map[string]string, len(names))}
	for _, n := range names {
		r.Register(n)
	}
	return r
}

// Load reads one name per line from rd. Blank lines and lines starting with
// '#' are skipped.
func Load(rd io.Reader) (*Registry, error) {
	r := New()
	sc := bufio.NewScanner(rd)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		r.Register(line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("registry: read: %w", err)
	}
	return r, nil
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), `\`))
}

// Register adds name. Empty names are ignored.
func (r *Registry) Register(name string) {
	key := normalize(name)
	if key == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.names[key]; !ok {
		r.names[key] = strings.TrimPrefix(strings.TrimSpace(name), `\`)
	}
}

// Resolve returns nil when name is registered and *UnresolvedReferenceError
// otherwise.
func (r *Registry) Resolve(name string) error {
	r.mu.RLock()
	_, ok := r.names[normalize(name)]
	r.mu.RUnlock()
	if !ok {
		return &UnresolvedReferenceError{Name: name}
	}
	return nil
}

// Len returns the number of registered names.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}

// Names returns the registered names as first spelled, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, n)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}
