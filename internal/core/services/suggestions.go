package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/custodia-labs/marginalia/internal/anchors"
	"github.com/custodia-labs/marginalia/internal/core/domain"
)

// AcceptSuggestion applies a pending suggestion to the document. The
// original text must still sit inside the thread's current anchor range; a
// match elsewhere in the document does not count. A failed document write
// leaves document and suggestion untouched, and a failed persist after the
// write restores both.
func (s *ThreadSyncService) AcceptSuggestion(ctx context.Context, threadID, messageID string) (*domain.CommentThread, error) {
	s.mu.Lock()
	i, msg, err := s.pendingSuggestionLocked(threadID, messageID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	thread := s.threads[i]
	suggestion := msg.Suggestion

	// An empty original would match at the anchor start regardless of text.
	if suggestion.OriginalText == "" {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: suggestion in thread %s has no original text", domain.ErrStaleSuggestion, threadID)
	}

	if s.documents == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("no document store configured")
	}
	text, err := s.documents.Read(ctx, s.docID)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to read document %s: %w", s.docID, err)
	}

	// Step 1: locate the anchor in the current text
	res, ok := anchors.Resolve(thread.Anchor, text, s.parser)
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: anchor of thread %s not found", domain.ErrStaleSuggestion, threadID)
	}

	// Step 2: find the original text inside the anchor range only
	rel := strings.Index(text[res.Start:res.End], suggestion.OriginalText)
	if rel < 0 {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: original text not within anchor of thread %s", domain.ErrStaleSuggestion, threadID)
	}
	from := res.Start + rel
	to := from + len(suggestion.OriginalText)
	updated := text[:from] + suggestion.ReplacementText + text[to:]

	// Step 3: write the document; nothing has changed in memory yet
	snapshot := domain.CloneThreads(s.threads)
	if err := s.documents.Write(ctx, s.docID, updated); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to write document %s: %w", s.docID, err)
	}

	// Step 4: move every anchor to match the new text
	thread.Anchor = res.Apply(thread.Anchor, text)
	s.index.Build(s.threads)
	shift := s.index.ApplyOffsetShift(from, to, len(suggestion.ReplacementText))
	s.reconcileShiftLocked(updated, shift)

	// Step 5: record the decision and persist
	now := s.now()
	if err := suggestion.Decide(domain.SuggestionAccepted); err != nil {
		s.rollbackAcceptLocked(ctx, text, snapshot)
		s.mu.Unlock()
		return nil, err
	}
	thread.UpdatedAt = now

	if err := s.persistLocked(ctx); err != nil {
		s.rollbackAcceptLocked(ctx, text, snapshot)
		s.mu.Unlock()
		return nil, err
	}

	direct := s.enqueueLocked(domain.OpAcceptSuggestion, domain.OutboxPayload{
		DocumentID: s.docID,
		ThreadID:   thread.ID,
		MessageID:  messageID,
	})
	out := thread.Clone()
	s.mu.Unlock()

	s.logger.Info("suggestion accepted",
		zap.String("thread_id", threadID),
		zap.String("message_id", messageID),
		zap.Int("delta", len(suggestion.ReplacementText)-len(suggestion.OriginalText)),
	)
	s.kick(ctx, direct)
	return out, nil
}

// RejectSuggestion declines a pending suggestion. The document is never touched.
func (s *ThreadSyncService) RejectSuggestion(ctx context.Context, threadID, messageID string) (*domain.CommentThread, error) {
	s.mu.Lock()
	i, msg, err := s.pendingSuggestionLocked(threadID, messageID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	thread := s.threads[i]
	snapshot := thread.Clone()

	if err := msg.Suggestion.Decide(domain.SuggestionRejected); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	thread.UpdatedAt = s.now()

	if err := s.persistLocked(ctx); err != nil {
		s.restoreLocked(i, snapshot)
		s.mu.Unlock()
		return nil, err
	}

	direct := s.enqueueLocked(domain.OpRejectSuggestion, domain.OutboxPayload{
		DocumentID: s.docID,
		ThreadID:   thread.ID,
		MessageID:  messageID,
	})
	out := thread.Clone()
	s.mu.Unlock()

	s.kick(ctx, direct)
	return out, nil
}

// pendingSuggestionLocked checks the suggestion workflow preconditions.
func (s *ThreadSyncService) pendingSuggestionLocked(threadID, messageID string) (int, *domain.ThreadMessage, error) {
	i, err := s.lookupLocked(threadID)
	if err != nil {
		return -1, nil, err
	}
	msg := s.threads[i].FindMessage(messageID)
	if msg == nil {
		return -1, nil, fmt.Errorf("%w: %s", domain.ErrMessageNotFound, messageID)
	}
	if msg.Suggestion == nil {
		return -1, nil, domain.ErrNoSuggestion
	}
	if !msg.Suggestion.IsPending() {
		return -1, nil, domain.ErrAlreadyDecided
	}
	return i, msg, nil
}

// rollbackAcceptLocked restores the pre-accept document text and thread set.
func (s *ThreadSyncService) rollbackAcceptLocked(ctx context.Context, original string, snapshot []*domain.CommentThread) {
	if err := s.documents.Write(ctx, s.docID, original); err != nil {
		s.logger.Error("failed to restore document after failed accept",
			zap.String("document_id", s.docID),
			zap.Error(err),
		)
	}
	s.threads = snapshot
	s.index.Build(s.threads)
}
