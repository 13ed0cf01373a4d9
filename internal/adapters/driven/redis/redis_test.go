package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/marginalia/internal/core/domain"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestConnect(t *testing.T) {
	_, mr := setupTestRedis(t)

	client, err := Connect(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	client.Close()

	_, err = Connect(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestThreadStore_LoadMissing(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewThreadStore(client, nil)

	threads, err := store.Load(context.Background(), "doc.md")
	require.NoError(t, err)
	assert.NotNil(t, threads)
	assert.Empty(t, threads)
}

func TestThreadStore_SaveLoad(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewThreadStore(client, nil)
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	thread := domain.NewCommentThread("doc.md", domain.TextAnchor{AnchorText: "fox", StartOffset: 4, EndOffset: 7}, now)
	thread.Messages = append(thread.Messages, &domain.ThreadMessage{
		ID:         "m1",
		Author:     "ana",
		AuthorKind: domain.AuthorKindHuman,
		Content:    "quick?",
		Timestamp:  now,
	})

	require.NoError(t, store.Save(ctx, "doc.md", []*domain.CommentThread{thread}))

	loaded, err := store.Load(ctx, "doc.md")
	require.NoError(t, err)
	assert.Equal(t, []*domain.CommentThread{thread}, loaded)

	docs, err := store.Documents(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc.md"}, docs)
}

func TestThreadStore_SaveEmpty(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewThreadStore(client, nil)

	require.NoError(t, store.Save(context.Background(), "doc.md", nil))

	raw, err := mr.Get(threadsPrefix + "doc.md")
	require.NoError(t, err)
	assert.Equal(t, "[]", raw)
}

func TestThreadStore_MalformedValue(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewThreadStore(client, nil)
	require.NoError(t, mr.Set(threadsPrefix+"doc.md", "{not json"))

	threads, err := store.Load(context.Background(), "doc.md")
	require.NoError(t, err)
	assert.Empty(t, threads)
}

func TestThreadStore_ServerDown(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewThreadStore(client, nil)
	mr.Close()

	_, err := store.Load(context.Background(), "doc.md")
	assert.Error(t, err)
	assert.Error(t, store.Save(context.Background(), "doc.md", nil))
}

func TestLease_HolderIDUnique(t *testing.T) {
	client, _ := setupTestRedis(t)

	a, b := NewLease(client), NewLease(client)
	assert.NotEmpty(t, a.HolderID())
	assert.NotEqual(t, a.HolderID(), b.HolderID())
}

func TestLease_Acquire(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()
	a, b := NewLease(client), NewLease(client)

	ok, err := a.Acquire(ctx, "doc.md", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	// Renewal by the same holder succeeds.
	ok, err = a.Acquire(ctx, "doc.md", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx, "doc.md", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = b.Acquire(ctx, "other.md", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLease_Expires(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()
	a, b := NewLease(client), NewLease(client)

	ok, err := a.Acquire(ctx, "doc.md", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	ok, err = b.Acquire(ctx, "doc.md", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Error(t, a.Extend(ctx, "doc.md", time.Second))
}

func TestLease_Release(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()
	a, b := NewLease(client), NewLease(client)

	ok, err := a.Acquire(ctx, "doc.md", 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// Release by a non-holder is a no-op.
	require.NoError(t, b.Release(ctx, "doc.md"))
	ok, err = b.Acquire(ctx, "doc.md", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Release(ctx, "doc.md"))
	ok, err = b.Acquire(ctx, "doc.md", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	// Releasing an unheld lease is fine.
	require.NoError(t, a.Release(ctx, "nothing.md"))
}

func TestLease_Extend(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()
	a, b := NewLease(client), NewLease(client)

	ok, err := a.Acquire(ctx, "doc.md", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, a.Extend(ctx, "doc.md", 10*time.Second))
	assert.Error(t, b.Extend(ctx, "doc.md", 10*time.Second))

	mr.FastForward(5 * time.Second)
	assert.True(t, mr.Exists(leasePrefix+"doc.md"))
}
