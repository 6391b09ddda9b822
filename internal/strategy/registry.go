package strategy

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages the named pairing strategies selectable from
// configuration. It is safe for concurrent use.
type Registry struct {
	pairings map[string]Pairing
	mu       sync.RWMutex
}

// NewRegistry returns a Registry holding the built-in pairings.
func NewRegistry() *Registry {
	r := &Registry{pairings: make(map[string]Pairing)}
	r.Register(LargestPairing{})
	r.Register(SameAssetAvoidingPairing{})
	return r
}

// Register adds p under p.Name(), replacing any existing entry.
func (r *Registry) Register(p Pairing) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pairings[p.Name()] = p
}

// Get retrieves a pairing by name. An empty name selects "largest".
func (r *Registry) Get(name string) (Pairing, error) {
	if name == "" {
		name = LargestPairing{}.Name()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.pairings[name]
	if !ok {
		return nil, fmt.Errorf("strategy: pairing %q: not registered", name)
	}
	return p, nil
}

// List returns the names of all registered pairings in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.pairings))
	for n := range r.pairings {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
