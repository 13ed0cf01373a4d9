package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/marginalia/internal/core/domain"
)

func TestApplyEdit_ShiftsAnchorsAfterEdit(t *testing.T) {
	ctx := context.Background()
	text := "Hello, this is a test document."
	env := createTestThreadSync(t, text)
	thread, err := env.svc.CreateThread(ctx, domain.TextAnchor{AnchorText: "test", StartOffset: 17, EndOffset: 21}, nil)
	require.NoError(t, err)

	// Insert " world" after "Hello"
	edited := "Hello world, this is a test document."
	require.NoError(t, env.svc.ApplyEdit(ctx, domain.TextEdit{From: 5, To: 5, InsertedLength: 6}, edited))

	got := env.svc.GetThreads()[0]
	assert.Equal(t, thread.ID, got.ID)
	assert.Equal(t, 23, got.Anchor.StartOffset)
	assert.Equal(t, 27, got.Anchor.EndOffset)
	assert.Equal(t, "test", edited[got.Anchor.StartOffset:got.Anchor.EndOffset])
}

func TestApplyEdit_ContainedEditRefreshesAnchorText(t *testing.T) {
	ctx := context.Background()
	env := createTestThreadSync(t, sample)
	_, err := env.svc.CreateThread(ctx, anchorFor(sample, "this is a test document", 0), nil)
	require.NoError(t, err)

	at := indexFrom(sample, "a test", 0)
	edited := sample[:at] + "a small test" + sample[at+len("a test"):]
	require.NoError(t, env.svc.ApplyEdit(ctx, domain.TextEdit{From: at, To: at + len("a test"), InsertedLength: len("a small test")}, edited))

	got := env.svc.GetThreads()[0]
	assert.Equal(t, "this is a small test document", got.Anchor.AnchorText)
	assert.False(t, got.Orphaned)
}

func TestApplyEdit_StraddlingEditReresolves(t *testing.T) {
	ctx := context.Background()
	env := createTestThreadSync(t, sample)
	_, err := env.svc.CreateThread(ctx, anchorFor(sample, "test document", 0), nil)
	require.NoError(t, err)

	// Delete "a test" which cuts the front of the anchor
	at := indexFrom(sample, "a test", 0)
	edited := sample[:at] + sample[at+len("a test"):]
	require.NoError(t, env.svc.ApplyEdit(ctx, domain.TextEdit{From: at, To: at + len("a test")}, edited))

	got := env.svc.GetThreads()[0]
	assert.True(t, got.Orphaned)
	assert.Equal(t, 1, env.svc.Status().Orphaned)
}

func TestApplyEdit_InvalidEdit(t *testing.T) {
	env := createTestThreadSync(t, sample)
	err := env.svc.ApplyEdit(context.Background(), domain.TextEdit{From: 4, To: 2}, sample)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestApplyEdit_PersistFailureRestoresAnchors(t *testing.T) {
	ctx := context.Background()
	env := createTestThreadSync(t, sample)
	thread, err := env.svc.CreateThread(ctx, anchorFor(sample, "More text", 0), nil)
	require.NoError(t, err)

	env.threads.SetSaveErr(errors.New("disk full"))
	err = env.svc.ApplyEdit(ctx, domain.TextEdit{From: 0, To: 0, InsertedLength: 3}, "xyz"+sample)
	require.Error(t, err)

	assert.Equal(t, thread.Anchor, env.svc.GetThreads()[0].Anchor)
	assert.Len(t, env.svc.ThreadsAt(thread.Anchor.StartOffset), 1)
}

func TestReanchor(t *testing.T) {
	ctx := context.Background()
	env := createTestThreadSync(t, sample)
	thread, err := env.svc.CreateThread(ctx, anchorFor(sample, "More text", 0), nil)
	require.NoError(t, err)
	saves := env.threads.Saves()

	// Unchanged text: nothing to persist
	require.NoError(t, env.svc.Reanchor(ctx))
	assert.Equal(t, saves, env.threads.Saves())

	env.docs.Set(testDoc, "Prefix added.\n"+sample)
	require.NoError(t, env.svc.Reanchor(ctx))
	got := env.svc.GetThreads()[0]
	assert.Equal(t, thread.Anchor.StartOffset+len("Prefix added.\n"), got.Anchor.StartOffset)
	assert.Equal(t, saves+1, env.threads.Saves())
}

func TestReanchor_HeadingFallback(t *testing.T) {
	ctx := context.Background()
	text := "# Intro\n\nrun the tool\n\n## Usage\n\nrun the tool with care\n"
	env := createTestThreadSync(t, text)
	thread, err := env.svc.CreateThread(ctx, anchorFor(text, "run the tool with care", 0), nil)
	require.NoError(t, err)
	assert.Equal(t, "## Usage", thread.Anchor.SectionHeading)

	rewrapped := "# Intro\n\nrun the tool\n\n## Usage\n\nrun the\ntool with care\n"
	env.docs.Set(testDoc, rewrapped)
	require.NoError(t, env.svc.Reanchor(ctx))

	got := env.svc.GetThreads()[0]
	assert.False(t, got.Orphaned)
	assert.Equal(t, "run the\ntool with care", got.Anchor.AnchorText)
}
