package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/custodia-labs/marginalia/internal/core/domain"
	"github.com/custodia-labs/marginalia/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DocumentStore = (*DocumentStore)(nil)

// DocumentStore implements driven.DocumentStore over files under a root
// directory. Document ids are paths relative to the root.
//
// Writes are optimistic: a file that changed on disk since it was last read
// through the store is not overwritten.
type DocumentStore struct {
	root string

	mu           sync.Mutex
	fingerprints map[string][blake2b.Size256]byte
}

// NewDocumentStore creates a store rooted at root.
func NewDocumentStore(root string) *DocumentStore {
	return &DocumentStore{
		root:         root,
		fingerprints: make(map[string][blake2b.Size256]byte),
	}
}

// Path resolves a document id to a file path inside the root. Rooting the
// id before cleaning it strips any leading "..".
func (s *DocumentStore) Path(documentID string) (string, error) {
	clean := filepath.Clean(string(filepath.Separator) + filepath.FromSlash(documentID))
	if clean == string(filepath.Separator) {
		return "", fmt.Errorf("%w: empty document id", domain.ErrInvalidInput)
	}
	return filepath.Join(s.root, clean), nil
}

// Read returns a document's text and remembers its fingerprint.
func (s *DocumentStore) Read(ctx context.Context, documentID string) (string, error) {
	path, err := s.Path(documentID)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: document %s", domain.ErrNotFound, documentID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read document: %w", err)
	}

	s.mu.Lock()
	s.fingerprints[documentID] = blake2b.Sum256(data)
	s.mu.Unlock()
	return string(data), nil
}

// Write replaces a document's text atomically. It fails with
// ErrDocumentChanged when the file no longer matches what was last read.
func (s *DocumentStore) Write(ctx context.Context, documentID string, text string) error {
	path, err := s.Path(documentID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	perm := os.FileMode(0o644)
	if want, ok := s.fingerprints[documentID]; ok {
		current, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to read document: %w", err)
		}
		if blake2b.Sum256(current) != want {
			return fmt.Errorf("%w: %s", domain.ErrDocumentChanged, documentID)
		}
	}
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create document directory: %w", err)
	}
	data := []byte(text)
	if err := writeAtomic(path, data, perm); err != nil {
		return err
	}
	s.fingerprints[documentID] = blake2b.Sum256(data)
	return nil
}
