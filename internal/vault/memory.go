package vault

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository is an in-memory Repository for tests and development.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]Record

	// FailWrites makes Upsert return the error, simulating a persistence outage.
	FailWrites error
}

// NewMemoryRepository constructs an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]Record)}
}

// Upsert stores rec for address, replacing any prior record.
func (m *MemoryRepository) Upsert(_ context.Context, address string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	m.records[address] = rec
	return nil
}

// Get returns the record for address or ErrNotFound.
func (m *MemoryRepository) Get(_ context.Context, address string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[address]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Delete removes the record for address if present.
func (m *MemoryRepository) Delete(_ context.Context, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, address)
	return nil
}

// Addresses lists stored addresses in sorted order.
func (m *MemoryRepository) Addresses(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.records))
	for addr := range m.records {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out, nil
}

// Put replaces the raw record for address; used to simulate tampering.
func (m *MemoryRepository) Put(address string, rec Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[address] = rec
}
