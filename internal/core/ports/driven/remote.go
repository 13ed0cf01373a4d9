package driven

import (
	"context"

	"github.com/custodia-labs/marginalia/internal/core/domain"
)

// Push event handlers registered on a RemoteCollaborator.
type (
	ThreadHandler       func(documentID string, thread *domain.CommentThread)
	MessageHandler      func(documentID, threadID string, msg *domain.ThreadMessage)
	StatusChangeHandler func(status domain.ConnectionStatus)
)

// RemoteCollaborator is a pluggable connection to a remote party that mirrors
// thread mutations. Calls may fail or time out; implementations own their
// wire format, request correlation and reconnection.
type RemoteCollaborator interface {
	// CreateThread forwards a newly created thread
	CreateThread(ctx context.Context, documentID string, thread *domain.CommentThread) error

	// AddMessage forwards a message appended to a thread
	AddMessage(ctx context.Context, documentID, threadID string, msg *domain.ThreadMessage) error

	// ResolveThread forwards a status change to resolved
	ResolveThread(ctx context.Context, documentID, threadID string) error

	// ReopenThread forwards a status change to open
	ReopenThread(ctx context.Context, documentID, threadID string) error

	// AcceptSuggestion forwards an accepted suggestion
	AcceptSuggestion(ctx context.Context, documentID, threadID, messageID string) error

	// RejectSuggestion forwards a rejected suggestion
	RejectSuggestion(ctx context.Context, documentID, threadID, messageID string) error

	// Status returns the current connection status
	Status() domain.ConnectionStatus

	// OnNewThread registers the handler for threads pushed by the remote
	OnNewThread(h ThreadHandler)

	// OnNewMessage registers the handler for messages pushed by the remote
	OnNewMessage(h MessageHandler)

	// OnSuggestion registers the handler for suggestion messages pushed by the remote
	OnSuggestion(h MessageHandler)

	// OnStatusChange registers the handler for connection status transitions
	OnStatusChange(h StatusChangeHandler)

	// Close releases the connection
	Close() error
}
