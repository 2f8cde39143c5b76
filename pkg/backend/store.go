package backend

import (
	"sync"
)

// Store persists the recorded state.
type Store interface {
	Load() (*State, error)
	// Commit durably applies c before returning.
	Commit(c Change) error
	Close() error
}

// MemoryStore keeps the state in memory only.
type MemoryStore struct {
	mu    sync.Mutex
	state *State
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns a store seeded with initial, or empty when nil.
func NewMemoryStore(initial *State) *MemoryStore {
	if initial == nil {
		initial = NewState()
	}
	return &MemoryStore{state: initial.Clone()}
}

func (m *MemoryStore) Load() (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone(), nil
}

func (m *MemoryStore) Commit(c Change) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Apply(c)
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
