package vault

import (
	"fmt"
	"sync"
)

// MemoryStore keeps records in a map. It backs the REPL mode and unit
// tests; MaxBytes, when non-zero, caps the total stored bytes so
// capacity degradation can be exercised deterministically.
type MemoryStore struct {
	mu       sync.RWMutex
	values   map[string]string
	maxBytes int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// NewMemoryStoreWithLimit caps total stored bytes across all keys.
func NewMemoryStoreWithLimit(maxBytes int) *MemoryStore {
	return &MemoryStore{values: make(map[string]string), maxBytes: maxBytes}
}

func (s *MemoryStore) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxBytes > 0 {
		total := len(value)
		for k, v := range s.values {
			if k == key {
				continue
			}
			total += len(v)
		}
		if total > s.maxBytes {
			return fmt.Errorf("memory store %d bytes over %d budget: %w", total, s.maxBytes, ErrCapacity)
		}
	}

	s.values[key] = value
	return nil
}

func (s *MemoryStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}
