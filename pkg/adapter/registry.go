package adapter

import (
	"github.com/dyluth/roost/pkg/faults"
	"github.com/dyluth/roost/pkg/store"
)

// Registry resolves runtime kinds to adapters. The supervisor holds one
// registry and never branches on kind itself.
type Registry struct {
	adapters map[store.RuntimeKind]Adapter
}

// NewRegistry builds a registry from the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[store.RuntimeKind]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Kind()] = a
	}
	return &Registry{adapters: m}
}

// Get returns the adapter for a runtime kind.
func (r *Registry) Get(kind store.RuntimeKind) (Adapter, error) {
	a, ok := r.adapters[kind]
	if !ok {
		return nil, faults.Validation("no adapter registered for runtime %q", kind)
	}
	return a, nil
}

// Kinds returns the registered runtime kinds.
func (r *Registry) Kinds() []store.RuntimeKind {
	kinds := make([]store.RuntimeKind, 0, len(r.adapters))
	for k := range r.adapters {
		kinds = append(kinds, k)
	}
	return kinds
}
