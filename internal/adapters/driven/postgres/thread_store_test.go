package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/marginalia/internal/core/domain"
)

// setupTestDB connects to the database named by MARGINALIA_TEST_POSTGRES_URL.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("MARGINALIA_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("MARGINALIA_TEST_POSTGRES_URL not set")
	}

	ctx := context.Background()
	db, err := Connect(ctx, DefaultConfig(url))
	require.NoError(t, err)
	require.NoError(t, db.InitSchema(ctx))
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDB_Ping(t *testing.T) {
	db := setupTestDB(t)
	assert.NoError(t, db.Ping(context.Background()))
}

func TestThreadStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewThreadStore(setupTestDB(t), nil)
	docID := "doc-" + uuid.NewString()
	now := time.Now().UTC().Truncate(time.Millisecond)

	orphan := domain.NewCommentThread(docID, domain.TextAnchor{AnchorText: "gone"}, now)
	orphan.Orphaned = true
	threads := []*domain.CommentThread{
		domain.NewCommentThread(docID, domain.TextAnchor{AnchorText: "b", StartOffset: 4, EndOffset: 5}, now),
		orphan,
	}

	require.NoError(t, store.Save(ctx, docID, threads))

	loaded, err := store.Load(ctx, docID)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, threads[0].ID, loaded[0].ID)
	assert.Equal(t, threads[1].ID, loaded[1].ID)
	assert.True(t, loaded[1].Orphaned)

	require.NoError(t, store.Save(ctx, docID, nil))
	loaded, err = store.Load(ctx, docID)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}
