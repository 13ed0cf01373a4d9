package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/custodia-labs/marginalia/internal/anchors"
	"github.com/custodia-labs/marginalia/internal/core/domain"
)

// ApplyEdit moves anchors after a document edit. text is the document after
// the edit. Anchors that contained the edit take their new text from it;
// anchors the edit cut through are re-resolved and may become orphaned.
func (s *ThreadSyncService) ApplyEdit(ctx context.Context, edit domain.TextEdit, text string) error {
	if err := edit.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.docID == "" {
		return domain.ErrNoActiveDocument
	}

	snapshot := domain.CloneThreads(s.threads)
	shift := s.index.ApplyOffsetShift(edit.From, edit.To, edit.InsertedLength)
	s.reconcileShiftLocked(text, shift)

	if len(shift.Shifted)+len(shift.Adjusted)+len(shift.Stale) == 0 {
		return nil
	}
	if err := s.persistLocked(ctx); err != nil {
		s.threads = snapshot
		s.index.Build(s.threads)
		return err
	}

	s.logger.Debug("anchors shifted",
		zap.Int("shifted", len(shift.Shifted)),
		zap.Int("adjusted", len(shift.Adjusted)),
		zap.Int("stale", len(shift.Stale)),
	)
	return nil
}

// Reanchor re-resolves every thread of the active document against its
// current text and persists the result when anything moved.
func (s *ThreadSyncService) Reanchor(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.docID == "" {
		return domain.ErrNoActiveDocument
	}
	if s.documents == nil {
		return fmt.Errorf("no document store configured")
	}

	text, err := s.documents.Read(ctx, s.docID)
	if err != nil {
		return fmt.Errorf("failed to read document %s: %w", s.docID, err)
	}

	return s.reanchorLocked(ctx, text)
}

// reanchorLocked resolves every thread against text and persists when an
// anchor moved or its orphan state flipped. A failed persist restores the
// previous thread set.
func (s *ThreadSyncService) reanchorLocked(ctx context.Context, text string) error {
	snapshot := domain.CloneThreads(s.threads)
	moved := 0
	for _, t := range s.threads {
		before := t.Anchor
		wasOrphaned := t.Orphaned
		s.resolveThreadLocked(t, text)
		if t.Anchor != before || t.Orphaned != wasOrphaned {
			moved++
		}
	}
	s.index.Build(s.threads)
	if moved == 0 {
		return nil
	}

	if err := s.persistLocked(ctx); err != nil {
		s.threads = snapshot
		s.index.Build(s.threads)
		return err
	}
	s.logger.Debug("threads re-anchored", zap.String("document_id", s.docID), zap.Int("moved", moved))
	return nil
}

// reconcileShiftLocked finishes an offset shift: adjusted anchors take their
// new text, stale anchors are re-resolved against text.
func (s *ThreadSyncService) reconcileShiftLocked(text string, shift anchors.ShiftResult) {
	for _, id := range shift.Adjusted {
		t, ok := s.index.Get(id)
		if !ok {
			continue
		}
		a := &t.Anchor
		if a.StartOffset < 0 || a.EndOffset > len(text) || a.StartOffset >= a.EndOffset {
			t.Orphaned = true
			continue
		}
		a.AnchorText = text[a.StartOffset:a.EndOffset]
		t.Orphaned = false
	}
	for _, id := range shift.Stale {
		if t, ok := s.index.Get(id); ok {
			s.resolveThreadLocked(t, text)
		}
	}
	if len(shift.Adjusted)+len(shift.Stale) > 0 {
		s.index.Build(s.threads)
	}
}

// resolveThreadLocked places a thread's anchor in text or marks it orphaned.
// An orphaned thread keeps its last known anchor.
func (s *ThreadSyncService) resolveThreadLocked(t *domain.CommentThread, text string) {
	res, ok := anchors.Resolve(t.Anchor, text, s.parser)
	if !ok {
		if !t.Orphaned {
			s.logger.Info("thread orphaned", zap.String("thread_id", t.ID))
		}
		t.Orphaned = true
		return
	}
	t.Anchor = res.Apply(t.Anchor, text)
	t.Orphaned = false
}
