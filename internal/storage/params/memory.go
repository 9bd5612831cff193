// internal/storage/params/memory.go
package params

import (
	"context"
	"maps"
	"sync"
)

// MemoryStore is an in-memory params store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Get returns a copy of the stored record.
func (m *MemoryStore) Get(ctx context.Context, key Key) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[key.String()]
	if !ok {
		return Record{}, false, nil
	}
	rec.Params = maps.Clone(rec.Params)
	return rec, true, nil
}

// Put stores a copy of rec.
func (m *MemoryStore) Put(ctx context.Context, key Key, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec.Params = maps.Clone(rec.Params)
	m.records[key.String()] = rec
	return nil
}
