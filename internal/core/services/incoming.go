package services

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/custodia-labs/marginalia/internal/anchors"
	"github.com/custodia-labs/marginalia/internal/core/domain"
	"github.com/custodia-labs/marginalia/internal/core/ports/driven"
)

type eventKind int

const (
	eventThread eventKind = iota
	eventMessage
	eventSuggestion
	eventConnected
)

type incomingEvent struct {
	kind       eventKind
	documentID string
	threadID   string
	thread     *domain.CommentThread
	message    *domain.ThreadMessage
}

// inbox buffers push events from the remote until the event loop picks them
// up, so adapters never call into the core from their own goroutines.
type inbox struct {
	mu     sync.Mutex
	events []incomingEvent
	signal chan struct{}
}

func newInbox() *inbox {
	return &inbox{signal: make(chan struct{}, 1)}
}

func (b *inbox) push(ev incomingEvent) {
	b.mu.Lock()
	b.events = append(b.events, ev)
	b.mu.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
	}
}

func (b *inbox) take() []incomingEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	events := b.events
	b.events = nil
	return events
}

// subscribe registers the remote's push hooks. Called once from the constructor.
func (s *ThreadSyncService) subscribe() {
	if s.remote == nil {
		return
	}
	s.remote.OnNewThread(func(documentID string, thread *domain.CommentThread) {
		s.inbox.push(incomingEvent{kind: eventThread, documentID: documentID, thread: thread.Clone()})
	})
	s.remote.OnNewMessage(func(documentID, threadID string, msg *domain.ThreadMessage) {
		s.inbox.push(incomingEvent{kind: eventMessage, documentID: documentID, threadID: threadID, message: msg.Clone()})
	})
	s.remote.OnSuggestion(func(documentID, threadID string, msg *domain.ThreadMessage) {
		s.inbox.push(incomingEvent{kind: eventSuggestion, documentID: documentID, threadID: threadID, message: msg.Clone()})
	})
	s.remote.OnStatusChange(func(status domain.ConnectionStatus) {
		s.logger.Info("remote connection status changed", zap.String("status", string(status)))
		if status == domain.ConnectionConnected {
			s.inbox.push(incomingEvent{kind: eventConnected})
		}
	})
}

// Events signals that ProcessIncoming has work.
func (s *ThreadSyncService) Events() <-chan struct{} {
	return s.inbox.signal
}

// ProcessIncoming merges every buffered push event and drains the outbox for
// each reconnection seen. It returns the number of events handled.
func (s *ThreadSyncService) ProcessIncoming(ctx context.Context) int {
	events := s.inbox.take()
	for _, ev := range events {
		var err error
		switch ev.kind {
		case eventThread:
			err = s.OnIncomingThread(ctx, ev.documentID, ev.thread)
		case eventMessage:
			err = s.OnIncomingMessage(ctx, ev.documentID, ev.threadID, ev.message)
		case eventSuggestion:
			err = s.OnIncomingSuggestion(ctx, ev.documentID, ev.threadID, ev.message)
		case eventConnected:
			res := s.DrainOutbox(ctx)
			s.logger.Info("outbox drained after reconnect",
				zap.Int("forwarded", res.Forwarded),
				zap.Int("discarded", res.Discarded),
				zap.Int("remaining", res.Remaining),
			)
		}
		if err != nil {
			s.logger.Warn("failed to merge incoming event",
				zap.String("document_id", ev.documentID),
				zap.String("thread_id", ev.threadID),
				zap.Error(err),
			)
		}
	}
	return len(events)
}

// OnIncomingThread merges a thread pushed by the remote. Known ids are
// dropped silently. A new thread is re-anchored against the current document
// text and kept even when that fails, as an orphan.
func (s *ThreadSyncService) OnIncomingThread(ctx context.Context, documentID string, thread *domain.CommentThread) error {
	if thread == nil || thread.ID == "" {
		return fmt.Errorf("%w: incoming thread without id", domain.ErrInvalidInput)
	}
	for _, m := range thread.Messages {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("incoming thread %s: %w", thread.ID, err)
		}
	}

	s.mu.Lock()
	if documentID == "" {
		documentID = s.docID
	}
	if documentID == "" {
		s.mu.Unlock()
		return domain.ErrNoActiveDocument
	}
	if documentID != s.docID {
		s.mu.Unlock()
		return s.mergeInactive(ctx, documentID, func(threads []*domain.CommentThread, place func(*domain.CommentThread)) ([]*domain.CommentThread, bool) {
			for _, t := range threads {
				if t.ID == thread.ID {
					return threads, false
				}
			}
			merged := normaliseIncoming(thread, documentID)
			place(merged)
			return append(threads, merged), true
		})
	}

	if _, ok := s.index.Get(thread.ID); ok {
		s.mu.Unlock()
		s.logger.Debug("duplicate incoming thread dropped", zap.String("thread_id", thread.ID))
		return nil
	}

	merged := normaliseIncoming(thread, documentID)
	if text, err := s.readActiveLocked(ctx); err == nil {
		placeIncoming(merged, text, s.parser)
	} else {
		s.logger.Warn("incoming thread kept unresolved", zap.String("thread_id", thread.ID), zap.Error(err))
	}

	s.threads = append(s.threads, merged)
	s.index.Build(s.threads)
	if err := s.persistLocked(ctx); err != nil {
		s.threads = s.threads[:len(s.threads)-1]
		s.index.Build(s.threads)
		s.mu.Unlock()
		return err
	}
	out := merged.Clone()
	s.mu.Unlock()

	s.notifyThread(out)
	return nil
}

// OnIncomingMessage merges a message pushed by the remote. Known message ids
// are dropped silently.
func (s *ThreadSyncService) OnIncomingMessage(ctx context.Context, documentID, threadID string, msg *domain.ThreadMessage) error {
	return s.mergeMessage(ctx, documentID, threadID, msg)
}

// OnIncomingSuggestion merges a message carrying a suggestion.
func (s *ThreadSyncService) OnIncomingSuggestion(ctx context.Context, documentID, threadID string, msg *domain.ThreadMessage) error {
	if msg != nil && msg.Suggestion == nil {
		return domain.ErrNoSuggestion
	}
	return s.mergeMessage(ctx, documentID, threadID, msg)
}

func (s *ThreadSyncService) mergeMessage(ctx context.Context, documentID, threadID string, msg *domain.ThreadMessage) error {
	if msg == nil || msg.ID == "" {
		return fmt.Errorf("%w: incoming message without id", domain.ErrInvalidInput)
	}
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("incoming message %s: %w", msg.ID, err)
	}

	s.mu.Lock()
	if documentID == "" {
		documentID = s.docID
	}
	if documentID == "" {
		s.mu.Unlock()
		return domain.ErrNoActiveDocument
	}
	if documentID != s.docID {
		s.mu.Unlock()
		return s.mergeInactive(ctx, documentID, func(threads []*domain.CommentThread, _ func(*domain.CommentThread)) ([]*domain.CommentThread, bool) {
			for _, t := range threads {
				if t.ID != threadID {
					continue
				}
				if t.FindMessage(msg.ID) != nil {
					return threads, false
				}
				t.Messages = append(t.Messages, normaliseMessage(msg))
				t.UpdatedAt = s.now()
				return threads, true
			}
			return threads, false
		})
	}

	i, err := s.lookupLocked(threadID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	thread := s.threads[i]
	if thread.FindMessage(msg.ID) != nil {
		s.mu.Unlock()
		s.logger.Debug("duplicate incoming message dropped",
			zap.String("thread_id", threadID),
			zap.String("message_id", msg.ID),
		)
		return nil
	}

	snapshot := thread.Clone()
	added := normaliseMessage(msg)
	thread.Messages = append(thread.Messages, added)
	thread.UpdatedAt = s.now()
	if err := s.persistLocked(ctx); err != nil {
		s.restoreLocked(i, snapshot)
		s.mu.Unlock()
		return err
	}
	out := thread.Clone()
	s.mu.Unlock()

	outMsg := out.FindMessage(added.ID)
	s.notifyMessage(out, outMsg)
	if outMsg.Suggestion != nil {
		s.notifySuggestion(out, outMsg)
	}
	return nil
}

// mergeInactive applies an incoming event to a document that is not active:
// load its record, merge, save. place re-anchors a new thread against the
// document's text when that text can be read.
func (s *ThreadSyncService) mergeInactive(ctx context.Context, documentID string, merge func(threads []*domain.CommentThread, place func(*domain.CommentThread)) ([]*domain.CommentThread, bool)) error {
	threads, err := s.threadStore.Load(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to load threads for %s: %w", documentID, err)
	}

	var parser driven.HeadingParser
	if s.parsers != nil {
		parser = s.parsers.Get(s.mimeTypeFor(documentID))
	}
	place := func(t *domain.CommentThread) {
		if s.documents == nil {
			return
		}
		text, err := s.documents.Read(ctx, documentID)
		if err != nil {
			s.logger.Warn("incoming thread kept unresolved", zap.String("thread_id", t.ID), zap.Error(err))
			return
		}
		placeIncoming(t, text, parser)
	}

	threads, changed := merge(threads, place)
	if !changed {
		return nil
	}
	if err := s.threadStore.Save(ctx, documentID, threads); err != nil {
		return fmt.Errorf("failed to persist threads for %s: %w", documentID, err)
	}
	s.logger.Debug("incoming event merged into inactive document", zap.String("document_id", documentID))
	return nil
}

func (s *ThreadSyncService) readActiveLocked(ctx context.Context) (string, error) {
	if s.documents == nil {
		return "", fmt.Errorf("no document store configured")
	}
	return s.documents.Read(ctx, s.docID)
}

// placeIncoming re-resolves an incoming anchor against text, marking the
// thread orphaned when no tier matches.
func placeIncoming(t *domain.CommentThread, text string, parser driven.HeadingParser) {
	if res, ok := anchors.Resolve(t.Anchor, text, parser); ok {
		t.Anchor = res.Apply(t.Anchor, text)
		t.Orphaned = false
		return
	}
	t.Orphaned = true
}

func normaliseIncoming(thread *domain.CommentThread, documentID string) *domain.CommentThread {
	t := thread.Clone()
	t.DocumentID = documentID
	if t.Status == "" {
		t.Status = domain.ThreadStatusOpen
	}
	if t.Messages == nil {
		t.Messages = make([]*domain.ThreadMessage, 0)
	}
	for _, m := range t.Messages {
		if m.Suggestion != nil && m.Suggestion.Status == "" {
			m.Suggestion.Status = domain.SuggestionPending
		}
	}
	return t
}

func normaliseMessage(msg *domain.ThreadMessage) *domain.ThreadMessage {
	m := msg.Clone()
	if m.AuthorKind == "" {
		m.AuthorKind = domain.AuthorKindAgent
	}
	if m.Suggestion != nil && m.Suggestion.Status == "" {
		m.Suggestion.Status = domain.SuggestionPending
	}
	return m
}
