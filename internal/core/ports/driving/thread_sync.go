package driving

import (
	"context"

	"github.com/custodia-labs/marginalia/internal/core/domain"
)

// Local notification callbacks fired after a mutation or merge is persisted.
type (
	ThreadCallback  func(thread *domain.CommentThread)
	MessageCallback func(thread *domain.CommentThread, msg *domain.ThreadMessage)
)

// ThreadSync is the single authority for thread mutations on the active
// document: local write first, remote notification best-effort.
type ThreadSync interface {
	// SetActiveDocument loads the threads of a document and makes it the
	// target of all mutating calls
	SetActiveDocument(ctx context.Context, documentID string) error

	// ActiveDocument returns the active document id, empty if none
	ActiveDocument() string

	// CreateThread creates a thread with an optional first message
	CreateThread(ctx context.Context, anchor domain.TextAnchor, first *domain.ThreadMessage) (*domain.CommentThread, error)

	// AddMessage appends a message to a thread
	AddMessage(ctx context.Context, threadID string, msg *domain.ThreadMessage) (*domain.ThreadMessage, error)

	// ResolveThread marks a thread resolved
	ResolveThread(ctx context.Context, threadID string) (*domain.CommentThread, error)

	// ReopenThread marks a thread open
	ReopenThread(ctx context.Context, threadID string) (*domain.CommentThread, error)

	// AcceptSuggestion applies a pending suggestion to the document text
	AcceptSuggestion(ctx context.Context, threadID, messageID string) (*domain.CommentThread, error)

	// RejectSuggestion declines a pending suggestion without touching the document
	RejectSuggestion(ctx context.Context, threadID, messageID string) (*domain.CommentThread, error)

	// DismissThread deletes an orphaned thread
	DismissThread(ctx context.Context, threadID string) error

	// ApplyEdit shifts anchors after an edit and re-resolves the ones it touched
	ApplyEdit(ctx context.Context, edit domain.TextEdit, text string) error

	// Reanchor re-resolves every thread against the current document text
	Reanchor(ctx context.Context) error

	// GetThreads returns copies of the active document's threads in creation order
	GetThreads() []*domain.CommentThread

	// ThreadsAt returns copies of the threads whose anchor covers offset
	ThreadsAt(offset int) []*domain.CommentThread

	// DrainOutbox forwards queued operations in FIFO order
	DrainOutbox(ctx context.Context) domain.DrainResult

	// Status returns a snapshot of the sync state
	Status() domain.SyncStatus

	// OnNewThread registers a local callback for new threads
	OnNewThread(cb ThreadCallback)

	// OnNewMessage registers a local callback for new messages
	OnNewMessage(cb MessageCallback)

	// OnSuggestion registers a local callback for messages carrying a suggestion
	OnSuggestion(cb MessageCallback)
}
