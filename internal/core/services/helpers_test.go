package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/marginalia/internal/core/domain"
	"github.com/custodia-labs/marginalia/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/marginalia/internal/headings"
)

const testDoc = "notes.md"

type testEnv struct {
	svc     *ThreadSyncService
	threads *mocks.MockThreadStore
	docs    *mocks.MockDocumentStore
	remote  *mocks.MockRemote
	clock   *fakeClock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// createTestThreadSync builds a service over in-memory mocks with an active
// document holding text.
func createTestThreadSync(t *testing.T, text string) *testEnv {
	t.Helper()
	env := &testEnv{
		threads: mocks.NewMockThreadStore(),
		docs:    mocks.NewMockDocumentStore(),
		remote:  mocks.NewMockRemote(),
		clock:   &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
	}
	env.docs.Set(testDoc, text)
	env.svc = NewThreadSyncService(ThreadSyncConfig{
		ThreadStore:    env.threads,
		Documents:      env.docs,
		Remote:         env.remote,
		HeadingParsers: headings.DefaultRegistry(),
		Now:            env.clock.Now,
	})
	require.NoError(t, env.svc.SetActiveDocument(context.Background(), testDoc))
	return env
}

func anchorFor(text, sub string, from int) domain.TextAnchor {
	idx := indexFrom(text, sub, from)
	return domain.TextAnchor{AnchorText: sub, StartOffset: idx, EndOffset: idx + len(sub)}
}

func indexFrom(text, sub string, from int) int {
	for i := from; i+len(sub) <= len(text); i++ {
		if text[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func suggestionMsg(original, replacement string) *domain.ThreadMessage {
	return &domain.ThreadMessage{
		Author:     "reviewer",
		AuthorKind: domain.AuthorKindAgent,
		Content:    "suggest",
		Suggestion: &domain.Suggestion{OriginalText: original, ReplacementText: replacement},
	}
}

var fixedTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
