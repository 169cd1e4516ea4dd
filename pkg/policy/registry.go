// Package policy stores declared roles and policies as data. A Registry
// is built once from already-parsed configuration, is immutable for its
// lifetime, and is swapped atomically on reload so an in-flight
// permission resolution always observes a fully-consistent snapshot.
package policy

import (
	"sync/atomic"
)

var generation atomic.Uint64

// Registry holds the roles and policies of one configuration snapshot.
// It is read-only after construction and safe for concurrent use without
// coordination.
type Registry struct {
	roles    map[string]*Role
	policies map[string]*Policy
	gen      uint64
}

// NewRegistry builds a registry from declared roles and policies. Later
// entries with a duplicate name replace earlier ones.
func NewRegistry(roles []*Role, policies []*Policy) *Registry {
	r := &Registry{
		roles:    make(map[string]*Role, len(roles)),
		policies: make(map[string]*Policy, len(policies)),
		gen:      generation.Add(1),
	}
	for _, role := range roles {
		r.roles[role.Name] = role
	}
	for _, p := range policies {
		r.policies[p.Name] = p
	}
	return r
}

// Role looks up a role by name.
func (r *Registry) Role(name string) (*Role, bool) {
	role, ok := r.roles[name]
	return role, ok
}

// Policy looks up a policy by name.
func (r *Registry) Policy(name string) (*Policy, bool) {
	p, ok := r.policies[name]
	return p, ok
}

// RoleNames returns the registered role names, in no particular order.
func (r *Registry) RoleNames() []string {
	names := make([]string, 0, len(r.roles))
	for name := range r.roles {
		names = append(names, name)
	}
	return names
}

// Generation identifies this snapshot; every NewRegistry call produces a
// distinct value, so caches keyed on it never mix snapshots.
func (r *Registry) Generation() uint64 {
	return r.gen
}

// Store publishes the current registry to concurrent readers. Swapping
// in a new registry is a single pointer update; entries are never
// mutated in place.
type Store struct {
	current atomic.Pointer[Registry]
}

// NewStore creates a store publishing the given registry. A nil registry
// is replaced with an empty one.
func NewStore(reg *Registry) *Store {
	if reg == nil {
		reg = NewRegistry(nil, nil)
	}
	s := &Store{}
	s.current.Store(reg)
	return s
}

// Load returns the current registry snapshot.
func (s *Store) Load() *Registry {
	return s.current.Load()
}

// Swap atomically replaces the published registry.
func (s *Store) Swap(reg *Registry) {
	if reg == nil {
		return
	}
	s.current.Store(reg)
}
