package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/custodia-labs/marginalia/internal/core/domain"
	"github.com/custodia-labs/marginalia/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ThreadStore = (*ThreadStore)(nil)

// ThreadStore implements driven.ThreadStore with one row per thread.
type ThreadStore struct {
	db     *DB
	logger *zap.Logger
}

// NewThreadStore creates a new ThreadStore
func NewThreadStore(db *DB, logger *zap.Logger) *ThreadStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ThreadStore{db: db, logger: logger}
}

// Load returns a document's threads in their saved order. Rows that fail to
// decode are skipped.
func (s *ThreadStore) Load(ctx context.Context, documentID string) ([]*domain.CommentThread, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT thread_id, payload FROM comment_threads WHERE document_id = ? ORDER BY position`,
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query threads: %w", err)
	}
	defer rows.Close()

	threads := make([]*domain.CommentThread, 0)
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		var thread domain.CommentThread
		if err := json.Unmarshal([]byte(payload), &thread); err != nil {
			s.logger.Warn("malformed thread row skipped",
				zap.String("document_id", documentID),
				zap.String("thread_id", id),
				zap.Error(err),
			)
			continue
		}
		threads = append(threads, &thread)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate threads: %w", err)
	}
	return threads, nil
}

// Save replaces a document's thread set in one transaction.
func (s *ThreadStore) Save(ctx context.Context, documentID string, threads []*domain.CommentThread) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM comment_threads WHERE document_id = ?`, documentID); err != nil {
			return fmt.Errorf("failed to clear threads: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO comment_threads (document_id, thread_id, position, payload, updated_at) VALUES (?, ?, ?, ?, ?)`,
		)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for i, t := range threads {
			payload, err := json.Marshal(t)
			if err != nil {
				return fmt.Errorf("failed to marshal thread %s: %w", t.ID, err)
			}
			if _, err := stmt.ExecContext(ctx, documentID, t.ID, i, string(payload), now); err != nil {
				return fmt.Errorf("failed to insert thread %s: %w", t.ID, err)
			}
		}
		return nil
	})
}

// Documents lists the ids of documents that have stored threads.
func (s *ThreadStore) Documents(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT document_id FROM comment_threads ORDER BY document_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
