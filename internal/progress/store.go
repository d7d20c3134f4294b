// Package progress keeps the per-workout exercise state mapping and persists
// it to a local key-value store.
package progress

import (
	"errors"
	"strings"
	"sync"
)

// ErrNotFound is returned by Store.Get for a missing key.
var ErrNotFound = errors.New("key not found")

// Key prefixes used in the local store.
const (
	StatePrefix = "workout-states-"
	TimerPrefix = "timer-"
)

// Store is the local key-value store progress is persisted to.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
	DeletePrefix(prefix string) error
}

// ClosableStore is a Store holding resources that must be released.
type ClosableStore interface {
	Store
	Close() error
}

// StateKey returns the store key for a workout's exercise states.
func StateKey(workoutID string) string {
	return StatePrefix + workoutID
}

// ClearAll removes every persisted workout state and timer entry.
func ClearAll(s Store) error {
	if err := s.DeletePrefix(StatePrefix); err != nil {
		return err
	}
	return s.DeletePrefix(TimerPrefix)
}

// MemoryStore is a Store backed by a map.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStore) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryStore) DeletePrefix(prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
		}
	}
	return nil
}

// Close is a no-op; it lets a MemoryStore stand in for a SQLiteStore.
func (m *MemoryStore) Close() error { return nil }
