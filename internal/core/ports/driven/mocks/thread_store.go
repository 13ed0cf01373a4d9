package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/marginalia/internal/core/domain"
	"github.com/custodia-labs/marginalia/internal/core/ports/driven"
)

var _ driven.ThreadStore = (*MockThreadStore)(nil)

// MockThreadStore is an in-memory ThreadStore for testing
type MockThreadStore struct {
	mu      sync.RWMutex
	threads map[string][]*domain.CommentThread
	saves   int

	// SaveErr and LoadErr are returned when set
	SaveErr error
	LoadErr error
}

// NewMockThreadStore creates a new MockThreadStore
func NewMockThreadStore() *MockThreadStore {
	return &MockThreadStore{
		threads: make(map[string][]*domain.CommentThread),
	}
}

func (m *MockThreadStore) Load(ctx context.Context, documentID string) ([]*domain.CommentThread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	return domain.CloneThreads(m.threads[documentID]), nil
}

func (m *MockThreadStore) Save(ctx context.Context, documentID string, threads []*domain.CommentThread) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.threads[documentID] = domain.CloneThreads(threads)
	m.saves++
	return nil
}

// Helper methods for testing

// Seed stores threads for a document without counting a save
func (m *MockThreadStore) Seed(documentID string, threads []*domain.CommentThread) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads[documentID] = domain.CloneThreads(threads)
}

// Saves returns the number of successful Save calls
func (m *MockThreadStore) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// SetSaveErr sets the error returned by Save
func (m *MockThreadStore) SetSaveErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveErr = err
}
