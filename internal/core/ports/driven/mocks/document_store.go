package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/marginalia/internal/core/domain"
	"github.com/custodia-labs/marginalia/internal/core/ports/driven"
)

var _ driven.DocumentStore = (*MockDocumentStore)(nil)

// MockDocumentStore is an in-memory DocumentStore for testing
type MockDocumentStore struct {
	mu     sync.RWMutex
	docs   map[string]string
	writes int

	ReadErr  error
	WriteErr error
}

// NewMockDocumentStore creates a new MockDocumentStore
func NewMockDocumentStore() *MockDocumentStore {
	return &MockDocumentStore{
		docs: make(map[string]string),
	}
}

func (m *MockDocumentStore) Read(ctx context.Context, documentID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ReadErr != nil {
		return "", m.ReadErr
	}
	text, ok := m.docs[documentID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return text, nil
}

func (m *MockDocumentStore) Write(ctx context.Context, documentID string, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.docs[documentID] = text
	m.writes++
	return nil
}

// Helper methods for testing

// Set stores document text without counting a write
func (m *MockDocumentStore) Set(documentID, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[documentID] = text
}

// Text returns the stored text of a document
func (m *MockDocumentStore) Text(documentID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.docs[documentID]
}

// Writes returns the number of successful Write calls
func (m *MockDocumentStore) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}
