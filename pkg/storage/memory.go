package storage

import (
	"bytes"
	"sort"
	"sync"
)

// MemoryStore is a thread-safe in-memory implementation of Store.
// It's useful for:
//   - Unit testing (no disk I/O)
//   - Small datasets that fit in RAM
//
// Keys are kept sorted so Scan has the same ascending-order semantics as
// BadgerStore.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
	keys   []string // sorted
	closed bool
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string][]byte),
	}
}

// Get retrieves the value for key.
func (m *MemoryStore) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}

	v, ok := m.values[string(key)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set upserts a key/value pair.
func (m *MemoryStore) Set(key, value []byte) error {
	if len(key) == 0 {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}

	k := string(key)
	if _, exists := m.values[k]; !exists {
		i := sort.SearchStrings(m.keys, k)
		m.keys = append(m.keys, "")
		copy(m.keys[i+1:], m.keys[i:])
		m.keys[i] = k
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	m.values[k] = stored
	return nil
}

// Delete removes a key. Missing keys are ignored.
func (m *MemoryStore) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}

	k := string(key)
	if _, exists := m.values[k]; !exists {
		return nil
	}
	delete(m.values, k)
	i := sort.SearchStrings(m.keys, k)
	m.keys = append(m.keys[:i], m.keys[i+1:]...)
	return nil
}

// Scan visits keys in [start, end] inclusive, ascending.
func (m *MemoryStore) Scan(start, end []byte, limit int, fn func(key, value []byte) bool) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrStorageClosed
	}

	i := sort.SearchStrings(m.keys, string(start))
	visited := 0
	for ; i < len(m.keys); i++ {
		k := m.keys[i]
		if len(end) > 0 && bytes.Compare([]byte(k), end) > 0 {
			break
		}
		if limit > 0 && visited >= limit {
			break
		}
		visited++
		if !fn([]byte(k), m.values[k]) {
			break
		}
	}
	return nil
}

// Close marks the store closed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.values = nil
	m.keys = nil
	return nil
}

// Len returns the number of stored keys (testing helper).
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keys)
}

// Verify MemoryStore implements Store interface
var _ Store = (*MemoryStore)(nil)
