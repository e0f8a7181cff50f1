package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/ksaito/jobharvest/internal/harvest"
)

// Memory is an in-process store for dry runs and tests.
type Memory struct {
	mu      sync.Mutex
	records map[string]harvest.JobRecord
}

var _ harvest.RecordStore = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]harvest.JobRecord)}
}

func memoryKey(source, dedupKey string) string {
	return source + "\x00" + dedupKey
}

// Exists reports whether the key was saved for the source.
func (m *Memory) Exists(_ context.Context, source, dedupKey string) (bool, error) {
	if dedupKey == "" {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[memoryKey(source, dedupKey)]
	return ok, nil
}

// Save upserts the record.
func (m *Memory) Save(_ context.Context, rec harvest.JobRecord) error {
	key := rec.DedupKey()
	if key == "" {
		return fmt.Errorf("record has no dedup key: %s", rec.PageURL)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[memoryKey(rec.Source, key)] = rec
	return nil
}

// All returns the saved records in unspecified order.
func (m *Memory) All() []harvest.JobRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]harvest.JobRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	return out
}

// Len returns the number of saved records.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
