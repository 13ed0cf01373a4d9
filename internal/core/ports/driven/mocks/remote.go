package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/marginalia/internal/core/domain"
	"github.com/custodia-labs/marginalia/internal/core/ports/driven"
)

var _ driven.RemoteCollaborator = (*MockRemote)(nil)

// RemoteCall records one forwarded operation
type RemoteCall struct {
	Operation  domain.OperationType
	DocumentID string
	ThreadID   string
	MessageID  string
}

// MockRemote is a scriptable RemoteCollaborator for testing
type MockRemote struct {
	mu       sync.RWMutex
	status   domain.ConnectionStatus
	calls    []RemoteCall
	failNext int
	// Err is returned by every call while set
	Err error

	onThread     driven.ThreadHandler
	onMessage    driven.MessageHandler
	onSuggestion driven.MessageHandler
	onStatus     driven.StatusChangeHandler
}

// NewMockRemote creates a disconnected MockRemote
func NewMockRemote() *MockRemote {
	return &MockRemote{status: domain.ConnectionDisconnected}
}

func (m *MockRemote) record(call RemoteCall) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != domain.ConnectionConnected {
		return domain.ErrNotConnected
	}
	if m.Err != nil {
		return m.Err
	}
	if m.failNext > 0 {
		m.failNext--
		return domain.ErrRemoteForwarding
	}
	m.calls = append(m.calls, call)
	return nil
}

func (m *MockRemote) CreateThread(ctx context.Context, documentID string, thread *domain.CommentThread) error {
	return m.record(RemoteCall{Operation: domain.OpCreateThread, DocumentID: documentID, ThreadID: thread.ID})
}

func (m *MockRemote) AddMessage(ctx context.Context, documentID, threadID string, msg *domain.ThreadMessage) error {
	return m.record(RemoteCall{Operation: domain.OpAddMessage, DocumentID: documentID, ThreadID: threadID, MessageID: msg.ID})
}

func (m *MockRemote) ResolveThread(ctx context.Context, documentID, threadID string) error {
	return m.record(RemoteCall{Operation: domain.OpResolveThread, DocumentID: documentID, ThreadID: threadID})
}

func (m *MockRemote) ReopenThread(ctx context.Context, documentID, threadID string) error {
	return m.record(RemoteCall{Operation: domain.OpReopenThread, DocumentID: documentID, ThreadID: threadID})
}

func (m *MockRemote) AcceptSuggestion(ctx context.Context, documentID, threadID, messageID string) error {
	return m.record(RemoteCall{Operation: domain.OpAcceptSuggestion, DocumentID: documentID, ThreadID: threadID, MessageID: messageID})
}

func (m *MockRemote) RejectSuggestion(ctx context.Context, documentID, threadID, messageID string) error {
	return m.record(RemoteCall{Operation: domain.OpRejectSuggestion, DocumentID: documentID, ThreadID: threadID, MessageID: messageID})
}

func (m *MockRemote) Status() domain.ConnectionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *MockRemote) OnNewThread(h driven.ThreadHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onThread = h
}

func (m *MockRemote) OnNewMessage(h driven.MessageHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onMessage = h
}

func (m *MockRemote) OnSuggestion(h driven.MessageHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSuggestion = h
}

func (m *MockRemote) OnStatusChange(h driven.StatusChangeHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStatus = h
}

func (m *MockRemote) Close() error {
	return nil
}

// Helper methods for testing

// SetStatus changes the connection status and fires the status hook
func (m *MockRemote) SetStatus(status domain.ConnectionStatus) {
	m.mu.Lock()
	m.status = status
	h := m.onStatus
	m.mu.Unlock()
	if h != nil {
		h(status)
	}
}

// FailNext makes the next n calls fail while connected
func (m *MockRemote) FailNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
}

// Calls returns the successfully forwarded calls in order
func (m *MockRemote) Calls() []RemoteCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RemoteCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// PushThread invokes the registered thread handler
func (m *MockRemote) PushThread(documentID string, thread *domain.CommentThread) {
	m.mu.RLock()
	h := m.onThread
	m.mu.RUnlock()
	if h != nil {
		h(documentID, thread)
	}
}

// PushMessage invokes the registered message handler
func (m *MockRemote) PushMessage(documentID, threadID string, msg *domain.ThreadMessage) {
	m.mu.RLock()
	h := m.onMessage
	m.mu.RUnlock()
	if h != nil {
		h(documentID, threadID, msg)
	}
}

// PushSuggestion invokes the registered suggestion handler
func (m *MockRemote) PushSuggestion(documentID, threadID string, msg *domain.ThreadMessage) {
	m.mu.RLock()
	h := m.onSuggestion
	m.mu.RUnlock()
	if h != nil {
		h(documentID, threadID, msg)
	}
}
