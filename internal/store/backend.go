package store

import (
	"context"
	"sort"
	"sync"
)

// Backend persists records keyed by server id. Implementations store what
// they are given; locking, validation and encryption happen in Store.
type Backend interface {
	// Get returns the record or a *NotFoundError.
	Get(ctx context.Context, id string) (*Record, error)
	Put(ctx context.Context, rec *Record) error
	List(ctx context.Context) ([]*Record, error)
	// Delete returns a *NotFoundError when the id is unknown.
	Delete(ctx context.Context, id string) error
	Close() error
}

// MemoryBackend keeps records in a map. Used for tests and for
// short-lived CLI runs.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[string]*Record
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[string]*Record)}
}

func (m *MemoryBackend) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return rec.Clone(), nil
}

func (m *MemoryBackend) Put(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[rec.ID] = rec.Clone()
	return nil
}

func (m *MemoryBackend) List(_ context.Context) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec.Clone())
	}
	sortRecords(out)
	return out, nil
}

func (m *MemoryBackend) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[id]; !ok {
		return &NotFoundError{ID: id}
	}
	delete(m.records, id)
	return nil
}

func (m *MemoryBackend) Close() error { return nil }

func sortRecords(recs []*Record) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
}
