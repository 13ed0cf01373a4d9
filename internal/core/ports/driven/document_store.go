package driven

import "context"

// DocumentStore reads and writes document text.
// The sync core only writes through it when accepting a suggestion.
type DocumentStore interface {
	// Read returns the current text of a document
	Read(ctx context.Context, documentID string) (string, error)

	// Write replaces the text of a document
	Write(ctx context.Context, documentID string, text string) error
}
