package storage

import (
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps topics in process memory. Useful for dry runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]TopicRecord
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]TopicRecord)}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) HasTopic(key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.records[key]
	return ok, nil
}

func (m *MemoryStore) PutTopic(rec TopicRecord) error {
	if rec.Key == "" {
		return fmt.Errorf("topic key is empty")
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	m.mu.Lock()
	m.records[rec.Key] = rec
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) RecentTopics(limit int) ([]TopicRecord, error) {
	m.mu.RLock()
	out := make([]TopicRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	m.mu.RUnlock()

	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
