// Package vars provides the global variable store consumed by credential
// resolution. Plain variables carry their value inline; variables marked
// secret keep only a name here, with the value delegated to the secret
// backend chain under a variable-scoped lookup key.
package vars

import (
	"sync"
)

// Variable is a named global value, optionally secret.
type Variable struct {
	Name  string
	Value string
	// IsSecret marks the value as sensitive. Secret variables are stored
	// in the vault, not in this store, and display masked.
	IsSecret    bool
	Description string
}

// DisplayValue returns the value for UI rendering, masking secrets.
func (v Variable) DisplayValue() string {
	if v.IsSecret {
		return "********"
	}
	return v.Value
}

// Store is the lookup contract the resolver consumes.
type Store interface {
	// Get returns the variable with the given name.
	Get(name string) (Variable, bool)
}

// MemoryStore is a thread-safe in-memory Store.
type MemoryStore struct {
	mu   sync.RWMutex
	vars map[string]Variable
}

// NewMemoryStore creates an empty variable store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{vars: make(map[string]Variable)}
}

// Get implements Store.
func (s *MemoryStore) Get(name string) (Variable, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[name]
	return v, ok
}

// Set inserts or replaces a variable.
func (s *MemoryStore) Set(v Variable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[v.Name] = v
}

// Delete removes a variable.
func (s *MemoryStore) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vars, name)
}

// Names returns the defined variable names.
func (s *MemoryStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.vars))
	for name := range s.vars {
		names = append(names, name)
	}
	return names
}
