package storage

import (
	"context"
	"sort"
	"sync"

	"kopilka/internal/core"
)

// MemoryStore is an in-process RecordStore and KeyValueStore. It backs
// the "memory" data backend and the package tests.
type MemoryStore struct {
	mu       sync.Mutex
	records  map[int64]core.Record
	settings map[string]string
	nextID   int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[int64]core.Record),
		settings: make(map[string]string),
		nextID:   1,
	}
}

// GetAll implements RecordStore. Records come back in identity order.
func (m *MemoryStore) GetAll(_ context.Context) ([]core.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]core.Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get implements RecordStore.
func (m *MemoryStore) Get(_ context.Context, id int64) (core.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[id]
	if !ok {
		return core.Record{}, ErrNotFound
	}
	return r, nil
}

// Add implements RecordStore.
func (m *MemoryStore) Add(_ context.Context, r core.Record) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r.Normalize()
	r.ID = m.nextID
	m.nextID++
	m.records[r.ID] = r
	return r.ID, nil
}

// Put implements RecordStore.
func (m *MemoryStore) Put(_ context.Context, r core.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[r.ID]; !ok {
		return ErrNotFound
	}
	r.Normalize()
	m.records[r.ID] = r
	return nil
}

// Delete implements RecordStore. Unknown identities are a no-op.
func (m *MemoryStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, id)
	return nil
}

// GetValue implements KeyValueStore.
func (m *MemoryStore) GetValue(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.settings[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// SetValue implements KeyValueStore.
func (m *MemoryStore) SetValue(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.settings[key] = value
	return nil
}
