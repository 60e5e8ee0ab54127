package storage

import (
	"context"
	"sync"

	"github.com/islamelhosary/HistoFlow/pkg/models"
)

// mockStore implements Store with in-memory storage
type mockStore struct {
	mu      sync.RWMutex
	records map[string]models.TaskRecord
}

func NewMockStore() Store {
	return &mockStore{records: make(map[string]models.TaskRecord)}
}

func (m *mockStore) PutTask(_ context.Context, record models.TaskRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.TaskID] = record
	return nil
}

func (m *mockStore) GetTask(_ context.Context, taskID string) (models.TaskRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[taskID]
	if !ok {
		return models.TaskRecord{}, ErrNotFound
	}
	return record, nil
}

func (m *mockStore) ListTaskIDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *mockStore) Ping(_ context.Context) error { return nil }

func (m *mockStore) Close() error { return nil }
