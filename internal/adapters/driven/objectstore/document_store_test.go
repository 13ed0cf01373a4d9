package objectstore

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/marginalia/internal/core/domain"
)

func TestObjectKey(t *testing.T) {
	tests := []struct {
		prefix, id, want string
	}{
		{"", "notes.md", "notes.md"},
		{"", "/notes.md", "notes.md"},
		{"docs", "a/b.md", "docs/a/b.md"},
		{"docs/", "/a.md", "docs/a.md"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, objectKey(tt.prefix, tt.id))
	}
}

// setupTestStore connects to the bucket named by MARGINALIA_TEST_S3_* variables.
func setupTestStore(t *testing.T) *DocumentStore {
	t.Helper()
	endpoint := os.Getenv("MARGINALIA_TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("MARGINALIA_TEST_S3_ENDPOINT not set")
	}
	store, err := NewDocumentStore(context.Background(), Config{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("MARGINALIA_TEST_S3_ACCESS_KEY"),
		SecretKey: os.Getenv("MARGINALIA_TEST_S3_SECRET_KEY"),
		Bucket:    os.Getenv("MARGINALIA_TEST_S3_BUCKET"),
		Prefix:    "test-" + uuid.NewString(),
	})
	require.NoError(t, err)
	return store
}

func TestDocumentStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	_, err := store.Read(ctx, "missing.md")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	require.NoError(t, store.Write(ctx, "notes.md", "# Notes\n"))
	text, err := store.Read(ctx, "notes.md")
	require.NoError(t, err)
	assert.Equal(t, "# Notes\n", text)

	// A second store changes the object behind the first one's back.
	other := &DocumentStore{client: store.client, cfg: store.cfg, etags: map[string]string{}}
	require.NoError(t, other.Write(ctx, "notes.md", "# Changed\n"))

	err = store.Write(ctx, "notes.md", "# Mine\n")
	assert.True(t, errors.Is(err, domain.ErrDocumentChanged))
}
