package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/custodia-labs/marginalia/internal/core/domain"
	"github.com/custodia-labs/marginalia/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ThreadStore = (*ThreadStore)(nil)

const (
	threadsPrefix   = "marginalia:threads:"
	documentsSetKey = "marginalia:documents"
)

// ThreadStore implements driven.ThreadStore with one Redis string per
// document holding the JSON thread list.
type ThreadStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewThreadStore creates a new Redis-backed ThreadStore
func NewThreadStore(client *redis.Client, logger *zap.Logger) *ThreadStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ThreadStore{client: client, logger: logger}
}

// Load returns the stored threads, or an empty list when nothing is stored
// or the value cannot be decoded.
func (s *ThreadStore) Load(ctx context.Context, documentID string) ([]*domain.CommentThread, error) {
	data, err := s.client.Get(ctx, threadsPrefix+documentID).Bytes()
	if err == redis.Nil {
		return make([]*domain.CommentThread, 0), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get threads: %w", err)
	}

	var threads []*domain.CommentThread
	if err := json.Unmarshal(data, &threads); err != nil {
		s.logger.Warn("malformed thread set ignored",
			zap.String("document_id", documentID),
			zap.Error(err),
		)
		return make([]*domain.CommentThread, 0), nil
	}
	if threads == nil {
		threads = make([]*domain.CommentThread, 0)
	}
	return threads, nil
}

// Save replaces the stored thread set and records the document id.
func (s *ThreadStore) Save(ctx context.Context, documentID string, threads []*domain.CommentThread) error {
	if threads == nil {
		threads = make([]*domain.CommentThread, 0)
	}
	data, err := json.Marshal(threads)
	if err != nil {
		return fmt.Errorf("failed to marshal threads: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, threadsPrefix+documentID, data, 0)
	pipe.SAdd(ctx, documentsSetKey, documentID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save threads: %w", err)
	}
	return nil
}

// Documents lists every document id that has been saved.
func (s *ThreadStore) Documents(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, documentsSetKey).Result()
}
