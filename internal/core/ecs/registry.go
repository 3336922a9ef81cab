package ecs

import "slices"

// Store is the type-erased view of a component store held by the Registry.
type Store interface {
	Remove(id EntityID)
	Has(id EntityID) bool
	Len() int
}

type namedStore struct {
	name  string
	store Store
}

// Registry names every component store so destroyed entities can be wiped
// from all of them and diagnostics can report what an entity carries.
type Registry struct {
	stores []namedStore
}

func NewRegistry() *Registry {
	return &Registry{stores: make([]namedStore, 0, 8)}
}

// Register adds store under name. Registering a name twice replaces the
// earlier store.
func (r *Registry) Register(name string, store Store) {
	for i := range r.stores {
		if r.stores[i].name == name {
			r.stores[i].store = store
			return
		}
	}
	r.stores = append(r.stores, namedStore{name: name, store: store})
}

// RemoveAll clears id from every registered store.
func (r *Registry) RemoveAll(id EntityID) {
	for _, s := range r.stores {
		s.store.Remove(id)
	}
}

// Components returns the sorted names of the stores holding id.
func (r *Registry) Components(id EntityID) []string {
	var names []string
	for _, s := range r.stores {
		if s.store.Has(id) {
			names = append(names, s.name)
		}
	}
	slices.Sort(names)
	return names
}

// Sizes reports the entry count of every store by name.
func (r *Registry) Sizes() map[string]int {
	out := make(map[string]int, len(r.stores))
	for _, s := range r.stores {
		out[s.name] = s.store.Len()
	}
	return out
}
