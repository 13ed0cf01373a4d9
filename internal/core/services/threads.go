package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/custodia-labs/marginalia/internal/anchors"
	"github.com/custodia-labs/marginalia/internal/core/domain"
	"github.com/custodia-labs/marginalia/internal/core/ports/driven"
	"github.com/custodia-labs/marginalia/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.ThreadSync = (*ThreadSyncService)(nil)

const (
	// DefaultMaxRetry is how many failed drain attempts an outbox entry survives
	DefaultMaxRetry = 3

	// DefaultForwardTimeout bounds a single remote call
	DefaultForwardTimeout = 10 * time.Second

	defaultMIMEType = "text/markdown"
)

// ThreadSyncService owns the threads of the active document. Every mutation
// is persisted before anything else happens; remote notification goes
// through an in-memory FIFO outbox and never fails the caller.
//
// Lock order: forwardMu before mu. mu guards thread state and the outbox;
// forwardMu serialises remote forwarding so entries leave in order.
type ThreadSyncService struct {
	threadStore    driven.ThreadStore
	documents      driven.DocumentStore
	remote         driven.RemoteCollaborator
	parsers        driven.HeadingParserRegistry
	mimeTypeFor    func(documentID string) string
	maxRetry       int
	forwardTimeout time.Duration
	now            func() time.Time
	logger         *zap.Logger

	mu      sync.Mutex
	docID   string
	threads []*domain.CommentThread
	index   *anchors.Index
	parser  driven.HeadingParser
	outbox  []*domain.OutboxEntry

	forwardMu sync.Mutex

	cbMu         sync.RWMutex
	onNewThread  []driving.ThreadCallback
	onNewMessage []driving.MessageCallback
	onSuggestion []driving.MessageCallback

	inbox *inbox
}

// ThreadSyncConfig holds dependencies for ThreadSyncService.
type ThreadSyncConfig struct {
	ThreadStore driven.ThreadStore
	Documents   driven.DocumentStore
	// Remote is optional; without one every operation stays queued
	Remote         driven.RemoteCollaborator
	HeadingParsers driven.HeadingParserRegistry
	// MIMETypeFor picks the heading syntax of a document. Defaults to markdown.
	MIMETypeFor    func(documentID string) string
	MaxRetry       int
	ForwardTimeout time.Duration
	Now            func() time.Time
	Logger         *zap.Logger
}

// NewThreadSyncService creates the sync core and subscribes to the remote's
// push events exactly once.
func NewThreadSyncService(cfg ThreadSyncConfig) *ThreadSyncService {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxRetry := cfg.MaxRetry
	if maxRetry <= 0 {
		maxRetry = DefaultMaxRetry
	}
	timeout := cfg.ForwardTimeout
	if timeout <= 0 {
		timeout = DefaultForwardTimeout
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	mimeTypeFor := cfg.MIMETypeFor
	if mimeTypeFor == nil {
		mimeTypeFor = func(string) string { return defaultMIMEType }
	}

	s := &ThreadSyncService{
		threadStore:    cfg.ThreadStore,
		documents:      cfg.Documents,
		remote:         cfg.Remote,
		parsers:        cfg.HeadingParsers,
		mimeTypeFor:    mimeTypeFor,
		maxRetry:       maxRetry,
		forwardTimeout: timeout,
		now:            now,
		logger:         logger.Named("sync"),
		index:          anchors.NewIndex(),
		inbox:          newInbox(),
	}
	s.subscribe()
	return s
}

// SetActiveDocument loads a document's threads and makes it the target of
// mutating calls. Absent or malformed records load as empty; I/O errors are
// returned and leave the previous document active. When the document text
// is readable the loaded threads are re-anchored against it; failing that
// they keep their stored anchors.
func (s *ThreadSyncService) SetActiveDocument(ctx context.Context, documentID string) error {
	if documentID == "" {
		return fmt.Errorf("%w: document id is required", domain.ErrInvalidInput)
	}

	threads, err := s.threadStore.Load(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to load threads for %s: %w", documentID, err)
	}
	if threads == nil {
		threads = make([]*domain.CommentThread, 0)
	}

	var parser driven.HeadingParser
	if s.parsers != nil {
		parser = s.parsers.Get(s.mimeTypeFor(documentID))
	}

	s.mu.Lock()
	s.docID = documentID
	s.threads = threads
	s.parser = parser
	s.index.Build(s.threads)
	s.reanchorOnActivateLocked(ctx)
	s.mu.Unlock()

	s.logger.Info("active document set",
		zap.String("document_id", documentID),
		zap.Int("threads", len(threads)),
	)
	return nil
}

func (s *ThreadSyncService) reanchorOnActivateLocked(ctx context.Context) {
	if s.documents == nil || len(s.threads) == 0 {
		return
	}
	text, err := s.documents.Read(ctx, s.docID)
	if err != nil {
		s.logger.Debug("threads not re-anchored on activation",
			zap.String("document_id", s.docID),
			zap.Error(err),
		)
		return
	}
	if err := s.reanchorLocked(ctx, text); err != nil {
		s.logger.Warn("failed to persist re-anchored threads",
			zap.String("document_id", s.docID),
			zap.Error(err),
		)
	}
}

// ActiveDocument returns the active document id.
func (s *ThreadSyncService) ActiveDocument() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docID
}

// CreateThread creates a thread on the active document. The section heading
// is captured from the document when the anchor does not carry one.
func (s *ThreadSyncService) CreateThread(ctx context.Context, anchor domain.TextAnchor, first *domain.ThreadMessage) (*domain.CommentThread, error) {
	if err := anchor.Validate(); err != nil {
		return nil, err
	}
	if anchor.AnchorText == "" {
		return nil, fmt.Errorf("%w: anchor text is required", domain.ErrInvalidInput)
	}
	if first != nil {
		if err := first.Validate(); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	if s.docID == "" {
		s.mu.Unlock()
		return nil, domain.ErrNoActiveDocument
	}

	if anchor.SectionHeading == "" && s.parser != nil && s.documents != nil {
		if text, err := s.documents.Read(ctx, s.docID); err == nil {
			anchor.SectionHeading, _ = anchors.ExtractSectionHeading(text, anchor.StartOffset, s.parser)
		} else {
			s.logger.Debug("section heading not captured", zap.String("document_id", s.docID), zap.Error(err))
		}
	}

	now := s.now()
	thread := domain.NewCommentThread(s.docID, anchor, now)
	if first != nil {
		thread.Messages = append(thread.Messages, s.prepareMessage(first, now))
	}

	s.threads = append(s.threads, thread)
	s.index.Build(s.threads)
	if err := s.persistLocked(ctx); err != nil {
		s.threads = s.threads[:len(s.threads)-1]
		s.index.Build(s.threads)
		s.mu.Unlock()
		return nil, err
	}

	direct := s.enqueueLocked(domain.OpCreateThread, domain.OutboxPayload{
		DocumentID: s.docID,
		ThreadID:   thread.ID,
		Thread:     thread.Clone(),
	})
	out := thread.Clone()
	s.mu.Unlock()

	s.notifyThread(out)
	if len(out.Messages) > 0 && out.Messages[0].Suggestion != nil {
		s.notifySuggestion(out, out.Messages[0])
	}
	s.kick(ctx, direct)
	return out, nil
}

// AddMessage appends a message to a thread of the active document.
func (s *ThreadSyncService) AddMessage(ctx context.Context, threadID string, msg *domain.ThreadMessage) (*domain.ThreadMessage, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: message is required", domain.ErrInvalidInput)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	i, err := s.lookupLocked(threadID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	thread := s.threads[i]
	if msg.ID != "" && thread.FindMessage(msg.ID) != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: message %s already exists", domain.ErrInvalidInput, msg.ID)
	}

	snapshot := thread.Clone()
	now := s.now()
	added := s.prepareMessage(msg, now)
	thread.Messages = append(thread.Messages, added)
	thread.UpdatedAt = now

	if err := s.persistLocked(ctx); err != nil {
		s.restoreLocked(i, snapshot)
		s.mu.Unlock()
		return nil, err
	}

	direct := s.enqueueLocked(domain.OpAddMessage, domain.OutboxPayload{
		DocumentID: s.docID,
		ThreadID:   thread.ID,
		MessageID:  added.ID,
		Message:    added.Clone(),
	})
	out := thread.Clone()
	s.mu.Unlock()

	outMsg := out.FindMessage(added.ID)
	s.notifyMessage(out, outMsg)
	if outMsg.Suggestion != nil {
		s.notifySuggestion(out, outMsg)
	}
	s.kick(ctx, direct)
	return outMsg.Clone(), nil
}

// ResolveThread marks a thread resolved.
func (s *ThreadSyncService) ResolveThread(ctx context.Context, threadID string) (*domain.CommentThread, error) {
	return s.setStatus(ctx, threadID, domain.ThreadStatusResolved, domain.OpResolveThread)
}

// ReopenThread marks a thread open.
func (s *ThreadSyncService) ReopenThread(ctx context.Context, threadID string) (*domain.CommentThread, error) {
	return s.setStatus(ctx, threadID, domain.ThreadStatusOpen, domain.OpReopenThread)
}

func (s *ThreadSyncService) setStatus(ctx context.Context, threadID string, status domain.ThreadStatus, op domain.OperationType) (*domain.CommentThread, error) {
	s.mu.Lock()
	i, err := s.lookupLocked(threadID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	thread := s.threads[i]
	snapshot := thread.Clone()
	thread.Status = status
	thread.UpdatedAt = s.now()

	if err := s.persistLocked(ctx); err != nil {
		s.restoreLocked(i, snapshot)
		s.mu.Unlock()
		return nil, err
	}

	direct := s.enqueueLocked(op, domain.OutboxPayload{DocumentID: s.docID, ThreadID: thread.ID})
	out := thread.Clone()
	s.mu.Unlock()

	s.kick(ctx, direct)
	return out, nil
}

// DismissThread deletes an orphaned thread. It is the only hard delete and
// stays local.
func (s *ThreadSyncService) DismissThread(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := s.lookupLocked(threadID)
	if err != nil {
		return err
	}
	if !s.threads[i].Orphaned {
		return domain.ErrThreadNotOrphaned
	}

	previous := s.threads
	remaining := make([]*domain.CommentThread, 0, len(s.threads)-1)
	remaining = append(remaining, s.threads[:i]...)
	remaining = append(remaining, s.threads[i+1:]...)
	s.threads = remaining
	s.index.Build(s.threads)

	if err := s.persistLocked(ctx); err != nil {
		s.threads = previous
		s.index.Build(s.threads)
		return err
	}

	s.logger.Info("orphaned thread dismissed", zap.String("thread_id", threadID))
	return nil
}

// GetThreads returns copies of the active document's threads in creation order.
func (s *ThreadSyncService) GetThreads() []*domain.CommentThread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneThreads(s.threads)
}

// ThreadsAt returns copies of the threads whose anchor covers offset.
func (s *ThreadSyncService) ThreadsAt(offset int) []*domain.CommentThread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneThreads(s.index.Query(offset))
}

// Status returns a snapshot of the sync state.
func (s *ThreadSyncService) Status() domain.SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	orphaned := 0
	for _, t := range s.threads {
		if t.Orphaned {
			orphaned++
		}
	}
	return domain.SyncStatus{
		DocumentID: s.docID,
		Connection: s.ConnectionStatus(),
		Outbox:     len(s.outbox),
		Threads:    len(s.threads),
		Orphaned:   orphaned,
	}
}

// ConnectionStatus returns the remote collaborator's status.
func (s *ThreadSyncService) ConnectionStatus() domain.ConnectionStatus {
	if s.remote == nil {
		return domain.ConnectionDisconnected
	}
	return s.remote.Status()
}

// Connected reports whether the remote collaborator is reachable.
func (s *ThreadSyncService) Connected() bool {
	return s.ConnectionStatus() == domain.ConnectionConnected
}

// OnNewThread registers a callback fired after a thread is created or merged.
func (s *ThreadSyncService) OnNewThread(cb driving.ThreadCallback) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.onNewThread = append(s.onNewThread, cb)
}

// OnNewMessage registers a callback fired after a message is added or merged.
func (s *ThreadSyncService) OnNewMessage(cb driving.MessageCallback) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.onNewMessage = append(s.onNewMessage, cb)
}

// OnSuggestion registers a callback fired for messages carrying a suggestion.
func (s *ThreadSyncService) OnSuggestion(cb driving.MessageCallback) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.onSuggestion = append(s.onSuggestion, cb)
}

func (s *ThreadSyncService) notifyThread(t *domain.CommentThread) {
	s.cbMu.RLock()
	cbs := s.onNewThread
	s.cbMu.RUnlock()
	for _, cb := range cbs {
		cb(t.Clone())
	}
}

func (s *ThreadSyncService) notifyMessage(t *domain.CommentThread, m *domain.ThreadMessage) {
	s.cbMu.RLock()
	cbs := s.onNewMessage
	s.cbMu.RUnlock()
	for _, cb := range cbs {
		cb(t.Clone(), m.Clone())
	}
}

func (s *ThreadSyncService) notifySuggestion(t *domain.CommentThread, m *domain.ThreadMessage) {
	s.cbMu.RLock()
	cbs := s.onSuggestion
	s.cbMu.RUnlock()
	for _, cb := range cbs {
		cb(t.Clone(), m.Clone())
	}
}

// lookupLocked returns the position of a thread in the active set.
func (s *ThreadSyncService) lookupLocked(threadID string) (int, error) {
	if s.docID == "" {
		return -1, domain.ErrNoActiveDocument
	}
	for i, t := range s.threads {
		if t.ID == threadID {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %s", domain.ErrThreadNotFound, threadID)
}

func (s *ThreadSyncService) persistLocked(ctx context.Context) error {
	if err := s.threadStore.Save(ctx, s.docID, s.threads); err != nil {
		return fmt.Errorf("failed to persist threads for %s: %w", s.docID, err)
	}
	return nil
}

// restoreLocked puts a thread snapshot back after a failed persist.
func (s *ThreadSyncService) restoreLocked(i int, snapshot *domain.CommentThread) {
	s.threads[i] = snapshot
	s.index.Build(s.threads)
}

// prepareMessage copies a caller-supplied message and fills its defaults.
func (s *ThreadSyncService) prepareMessage(msg *domain.ThreadMessage, now time.Time) *domain.ThreadMessage {
	m := msg.Clone()
	if m.ID == "" {
		m.ID = domain.NewID()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = now
	}
	if m.AuthorKind == "" {
		m.AuthorKind = domain.AuthorKindHuman
	}
	if m.Suggestion != nil && m.Suggestion.Status == "" {
		m.Suggestion.Status = domain.SuggestionPending
	}
	return m
}
