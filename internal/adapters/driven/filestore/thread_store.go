// Package filestore keeps threads in JSON sidecar files next to the
// documents they annotate, and reads and writes plain document files.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/custodia-labs/marginalia/internal/core/domain"
	"github.com/custodia-labs/marginalia/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ThreadStore = (*ThreadStore)(nil)

const sidecarSuffix = ".threads.json"

// sidecar is the on-disk record of one document's threads.
type sidecar struct {
	Version    int                     `json:"version"`
	DocumentID string                  `json:"document_id"`
	Threads    []*domain.CommentThread `json:"threads"`
}

// ThreadStore implements driven.ThreadStore with one JSON file per document
// under a directory.
type ThreadStore struct {
	dir    string
	logger *zap.Logger
}

// NewThreadStore creates a store rooted at dir. The directory is created on
// first save.
func NewThreadStore(dir string, logger *zap.Logger) *ThreadStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ThreadStore{dir: dir, logger: logger}
}

// Path returns the sidecar file for a document.
func (s *ThreadStore) Path(documentID string) string {
	return filepath.Join(s.dir, sidecarName(documentID))
}

// Load reads a document's threads. A missing or unparsable sidecar loads as
// an empty list.
func (s *ThreadStore) Load(ctx context.Context, documentID string) ([]*domain.CommentThread, error) {
	data, err := os.ReadFile(s.Path(documentID))
	if errors.Is(err, fs.ErrNotExist) {
		return []*domain.CommentThread{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read threads: %w", err)
	}

	var rec sidecar
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Warn("malformed thread record ignored",
			zap.String("document_id", documentID),
			zap.Error(err),
		)
		return []*domain.CommentThread{}, nil
	}
	if rec.Threads == nil {
		rec.Threads = []*domain.CommentThread{}
	}
	return rec.Threads, nil
}

// Save atomically replaces a document's sidecar.
func (s *ThreadStore) Save(ctx context.Context, documentID string, threads []*domain.CommentThread) error {
	if threads == nil {
		threads = []*domain.CommentThread{}
	}
	data, err := json.MarshalIndent(sidecar{Version: 1, DocumentID: documentID, Threads: threads}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal threads: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create thread directory: %w", err)
	}
	return writeAtomic(s.Path(documentID), data, 0o644)
}

// sidecarName escapes a cleaned document id into a single file name. Path
// separators are escaped too, so distinct ids never share a sidecar and no
// id can leave the directory.
func sidecarName(documentID string) string {
	clean := filepath.ToSlash(filepath.Clean(documentID))
	return url.PathEscape(clean) + sidecarSuffix
}

// writeAtomic writes data to a temp file in the target directory and renames
// it over path.
func writeAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
