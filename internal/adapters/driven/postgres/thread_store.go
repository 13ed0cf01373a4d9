package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/custodia-labs/marginalia/internal/core/domain"
	"github.com/custodia-labs/marginalia/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ThreadStore = (*ThreadStore)(nil)

// ThreadStore implements driven.ThreadStore using PostgreSQL
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

// Load returns a document's threads in their saved order.
func (s *ThreadStore) Load(ctx context.Context, documentID string) ([]*domain.CommentThread, error) {
	query := `
		SELECT thread_id, payload
		FROM comment_threads
		WHERE document_id = $1
		ORDER BY position
	`
	rows, err := s.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	threads := make([]*domain.CommentThread, 0)
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		var thread domain.CommentThread
		if err := json.Unmarshal(payload, &thread); err != nil {
			s.logger.Warn("malformed thread row skipped",
				zap.String("document_id", documentID),
				zap.String("thread_id", id),
				zap.Error(err),
			)
			continue
		}
		threads = append(threads, &thread)
	}
	return threads, rows.Err()
}

// Save replaces a document's thread set in a transaction
func (s *ThreadStore) Save(ctx context.Context, documentID string, threads []*domain.CommentThread) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM comment_threads WHERE document_id = $1`, documentID); err != nil {
			return fmt.Errorf("failed to clear threads: %w", err)
		}

		query := `
			INSERT INTO comment_threads (document_id, thread_id, position, status, orphaned, payload, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW())
		`
		for i, t := range threads {
			payload, err := json.Marshal(t)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, query,
				documentID,
				t.ID,
				i,
				string(t.Status),
				t.Orphaned,
				payload,
			); err != nil {
				return fmt.Errorf("failed to insert thread %s: %w", t.ID, err)
			}
		}
		return nil
	})
}
