// Package objectstore keeps documents in an S3-compatible bucket.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/custodia-labs/marginalia/internal/core/domain"
	"github.com/custodia-labs/marginalia/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DocumentStore = (*DocumentStore)(nil)

// Config holds the bucket connection settings
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	// Prefix is prepended to every object key.
	Prefix string
	UseSSL bool
	// ContentType is stored on written objects.
	ContentType string
}

// DocumentStore implements driven.DocumentStore on top of a bucket.
// Like the file store it refuses to overwrite an object whose ETag moved
// since the last read.
type DocumentStore struct {
	client *minio.Client
	cfg    Config

	mu    sync.Mutex
	etags map[string]string
}

// NewDocumentStore connects to the endpoint and checks the bucket exists.
func NewDocumentStore(ctx context.Context, cfg Config) (*DocumentStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: bucket %s", domain.ErrNotFound, cfg.Bucket)
	}

	if cfg.ContentType == "" {
		cfg.ContentType = "text/markdown; charset=utf-8"
	}
	return &DocumentStore{
		client: client,
		cfg:    cfg,
		etags:  make(map[string]string),
	}, nil
}

// Key maps a document id to its object key.
func (s *DocumentStore) Key(documentID string) string {
	return objectKey(s.cfg.Prefix, documentID)
}

func objectKey(prefix, documentID string) string {
	id := strings.TrimLeft(documentID, "/")
	if prefix == "" {
		return id
	}
	return strings.TrimRight(prefix, "/") + "/" + id
}

// Read downloads a document and remembers its ETag.
func (s *DocumentStore) Read(ctx context.Context, documentID string) (string, error) {
	obj, err := s.client.GetObject(ctx, s.cfg.Bucket, s.Key(documentID), minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to get document: %w", err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("%w: document %s", domain.ErrNotFound, documentID)
		}
		return "", fmt.Errorf("failed to stat document: %w", err)
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return "", fmt.Errorf("failed to read document: %w", err)
	}

	s.mu.Lock()
	s.etags[documentID] = info.ETag
	s.mu.Unlock()
	return string(data), nil
}

// Write uploads new text after checking the stored ETag still matches.
func (s *DocumentStore) Write(ctx context.Context, documentID string, text string) error {
	key := s.Key(documentID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if want, ok := s.etags[documentID]; ok {
		info, err := s.client.StatObject(ctx, s.cfg.Bucket, key, minio.StatObjectOptions{})
		if err != nil && !isNotFound(err) {
			return fmt.Errorf("failed to stat document: %w", err)
		}
		if info.ETag != want {
			return fmt.Errorf("%w: %s", domain.ErrDocumentChanged, documentID)
		}
	}

	data := []byte(text)
	info, err := s.client.PutObject(ctx, s.cfg.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: s.cfg.ContentType,
	})
	if err != nil {
		return fmt.Errorf("failed to put document: %w", err)
	}
	s.etags[documentID] = info.ETag
	return nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == 404
}
