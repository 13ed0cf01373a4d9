package driven

import (
	"context"

	"github.com/custodia-labs/marginalia/internal/core/domain"
)

// ThreadStore persists the full thread set of one document.
// It is the durability boundary of the sync core.
type ThreadStore interface {
	// Load returns the threads stored for a document.
	// An absent or malformed record loads as an empty list with a nil error;
	// only genuine I/O failures are returned.
	Load(ctx context.Context, documentID string) ([]*domain.CommentThread, error)

	// Save overwrites the stored thread set for a document. Idempotent.
	Save(ctx context.Context, documentID string, threads []*domain.CommentThread) error
}
