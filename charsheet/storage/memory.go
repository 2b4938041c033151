package storage

import (
	"context"
	"sync"
)

// Memory keeps values in process memory. It is used by tests and by the
// "memory" backend.
type Memory struct {
	mu     sync.Mutex
	values map[string]string

	// Saves and Loads count calls, for tests
	Saves int
	Loads int

	// Optional errors to inject
	LoadError error
	SaveError error
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

// Load implements Store.Load
func (m *Memory) Load(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Loads++
	if m.LoadError != nil {
		return "", m.LoadError
	}
	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Save implements Store.Save
func (m *Memory) Save(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Saves++
	if m.SaveError != nil {
		return m.SaveError
	}
	m.values[key] = value
	return nil
}

// Close implements Store.Close
func (m *Memory) Close() error {
	return nil
}

// Value returns the raw value under key, for tests.
func (m *Memory) Value(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

// SaveCount returns the number of Save calls.
func (m *Memory) SaveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Saves
}
