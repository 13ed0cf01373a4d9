package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoActiveDocument indicates a mutation was attempted before a document was activated
	ErrNoActiveDocument = errors.New("no active document")

	// ErrThreadNotFound indicates the referenced thread id is unknown
	ErrThreadNotFound = errors.New("thread not found")

	// ErrMessageNotFound indicates the referenced message id is unknown within its thread
	ErrMessageNotFound = errors.New("message not found")

	// ErrNoSuggestion indicates the message carries no suggestion
	ErrNoSuggestion = errors.New("message has no suggestion")

	// ErrAlreadyDecided indicates the suggestion already left the pending state
	ErrAlreadyDecided = errors.New("suggestion already decided")

	// ErrStaleSuggestion indicates the suggestion's original text is no longer inside the anchor range
	ErrStaleSuggestion = errors.New("suggestion is stale")

	// ErrThreadNotOrphaned indicates a dismissal was attempted on a thread that is still anchored
	ErrThreadNotOrphaned = errors.New("thread is not orphaned")

	// ErrRemoteForwarding wraps any failure to notify the remote collaborator
	ErrRemoteForwarding = errors.New("remote forwarding failed")

	// ErrRetryExhausted indicates an outbox entry was discarded after too many failed attempts
	ErrRetryExhausted = errors.New("outbox retries exhausted")

	// ErrNotConnected indicates the remote collaborator is not reachable
	ErrNotConnected = errors.New("remote collaborator not connected")

	// ErrDocumentChanged indicates the document was modified externally since it was read
	ErrDocumentChanged = errors.New("document changed since last read")

	// ErrDocumentLeased indicates another process holds the document's lease
	ErrDocumentLeased = errors.New("document leased by another process")
)
