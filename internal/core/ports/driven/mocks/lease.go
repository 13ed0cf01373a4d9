package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/custodia-labs/marginalia/internal/core/ports/driven"
)

var _ driven.DocumentLease = (*MockLease)(nil)

// MockLease is an in-memory DocumentLease that ignores expiry
type MockLease struct {
	mu      sync.Mutex
	holder  string
	owners  map[string]string
	extends int
	// ExtendErr is returned by Extend while set
	ExtendErr error
}

// NewMockLease creates a MockLease holding nothing
func NewMockLease(holder string) *MockLease {
	return &MockLease{holder: holder, owners: make(map[string]string)}
}

func (m *MockLease) Acquire(ctx context.Context, documentID string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if owner, ok := m.owners[documentID]; ok && owner != m.holder {
		return false, nil
	}
	m.owners[documentID] = m.holder
	return true, nil
}

func (m *MockLease) Extend(ctx context.Context, documentID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ExtendErr != nil {
		return m.ExtendErr
	}
	if m.owners[documentID] != m.holder {
		return errors.New("lease not held")
	}
	m.extends++
	return nil
}

func (m *MockLease) Release(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owners[documentID] == m.holder {
		delete(m.owners, documentID)
	}
	return nil
}

func (m *MockLease) HolderID() string {
	return m.holder
}

// Helper methods for testing

// Hold makes another holder own documentID
func (m *MockLease) Hold(documentID, other string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners[documentID] = other
}

// Owner returns the current holder of documentID, or ""
func (m *MockLease) Owner(documentID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owners[documentID]
}

// Extends returns how many successful extensions were made
func (m *MockLease) Extends() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.extends
}
