// Package backends holds the concrete secret store implementations: the
// in-memory store, the Secret Service keyring, the secret-tool CLI bridge,
// the encrypted local file, and AWS Secrets Manager. Each one satisfies
// backend.Backend and keeps its own wire format private.
package backends

import (
	"context"
	"sync"

	"github.com/connkeep/connkeep/pkg/backend"
)

// Memory is a volatile in-process store. It backs the "memory" chain entry
// and doubles as the test double for manager and resolver tests; the call
// counters exist so tests can assert how often the chain actually reached
// a backend.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*backend.Credential

	available bool

	// Call counters, read by tests.
	StoreCalls    int
	RetrieveCalls int
	DeleteCalls   int
}

// NewMemory creates an available in-memory backend.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*backend.Credential), available: true}
}

// ID implements backend.Backend.
func (m *Memory) ID() string { return "memory" }

// Descriptor implements backend.Describer.
func (m *Memory) Descriptor() backend.Descriptor {
	return backend.Descriptor{ID: m.ID()}
}

// SetAvailable toggles the availability probe result.
func (m *Memory) SetAvailable(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = v
}

// IsAvailable implements backend.Backend.
func (m *Memory) IsAvailable(_ context.Context) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.available
}

// Store implements backend.Backend.
func (m *Memory) Store(_ context.Context, key string, cred *backend.Credential) error {
	clone, err := cred.Clone()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StoreCalls++
	if old, ok := m.entries[key]; ok {
		old.Zeroize()
	}
	m.entries[key] = clone
	return nil
}

// Retrieve implements backend.Backend.
func (m *Memory) Retrieve(_ context.Context, key string) (*backend.Credential, error) {
	m.mu.Lock()
	m.RetrieveCalls++
	cred, ok := m.entries[key]
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return cred.Clone()
}

// Delete implements backend.Backend.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls++
	if cred, ok := m.entries[key]; ok {
		cred.Zeroize()
		delete(m.entries, key)
	}
	return nil
}

// Len reports the number of stored entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Keys returns the stored lookup keys, for tests.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.entries))
	for k := range m.entries {
		out = append(out, k)
	}
	return out
}
