// Package inprocess connects the sync core to a collaborator living in the
// same process, such as an embedded agent or a loopback used in development.
package inprocess

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/custodia-labs/marginalia/internal/adapters/driven/remote/wire"
	"github.com/custodia-labs/marginalia/internal/core/domain"
	"github.com/custodia-labs/marginalia/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.RemoteCollaborator = (*Collaborator)(nil)

// Handler receives forwarded requests. A returned error fails the call.
type Handler func(ctx context.Context, req *wire.Request) error

// Collaborator implements driven.RemoteCollaborator by calling a Handler
// directly. It starts connected.
type Collaborator struct {
	wire.Hooks

	mu      sync.Mutex
	handler Handler
	logger  *zap.Logger
}

// New creates a connected collaborator. A nil handler accepts everything.
func New(handler Handler, logger *zap.Logger) *Collaborator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collaborator{handler: handler, logger: logger}
	c.SetStatus(domain.ConnectionConnected)
	return c
}

// NewLoopback creates a collaborator that logs every request and accepts it.
func NewLoopback(logger *zap.Logger) *Collaborator {
	c := New(nil, logger)
	c.handler = func(ctx context.Context, req *wire.Request) error {
		c.logger.Info("remote request",
			zap.String("operation", string(req.Operation)),
			zap.String("document_id", req.DocumentID),
			zap.String("thread_id", req.ThreadID),
			zap.String("message_id", req.MessageID),
		)
		return nil
	}
	return c
}

func (c *Collaborator) call(ctx context.Context, req *wire.Request) error {
	if c.Status() != domain.ConnectionConnected {
		return domain.ErrNotConnected
	}
	if err := req.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h == nil {
		return nil
	}
	return h(ctx, req)
}

func (c *Collaborator) CreateThread(ctx context.Context, documentID string, thread *domain.CommentThread) error {
	var id string
	if thread != nil {
		id = thread.ID
	}
	return c.call(ctx, &wire.Request{Operation: domain.OpCreateThread, DocumentID: documentID, ThreadID: id, Thread: thread})
}

func (c *Collaborator) AddMessage(ctx context.Context, documentID, threadID string, msg *domain.ThreadMessage) error {
	var id string
	if msg != nil {
		id = msg.ID
	}
	return c.call(ctx, &wire.Request{Operation: domain.OpAddMessage, DocumentID: documentID, ThreadID: threadID, MessageID: id, Message: msg})
}

func (c *Collaborator) ResolveThread(ctx context.Context, documentID, threadID string) error {
	return c.call(ctx, &wire.Request{Operation: domain.OpResolveThread, DocumentID: documentID, ThreadID: threadID})
}

func (c *Collaborator) ReopenThread(ctx context.Context, documentID, threadID string) error {
	return c.call(ctx, &wire.Request{Operation: domain.OpReopenThread, DocumentID: documentID, ThreadID: threadID})
}

func (c *Collaborator) AcceptSuggestion(ctx context.Context, documentID, threadID, messageID string) error {
	return c.call(ctx, &wire.Request{Operation: domain.OpAcceptSuggestion, DocumentID: documentID, ThreadID: threadID, MessageID: messageID})
}

func (c *Collaborator) RejectSuggestion(ctx context.Context, documentID, threadID, messageID string) error {
	return c.call(ctx, &wire.Request{Operation: domain.OpRejectSuggestion, DocumentID: documentID, ThreadID: threadID, MessageID: messageID})
}

// Close disconnects the collaborator.
func (c *Collaborator) Close() error {
	c.SetStatus(domain.ConnectionDisconnected)
	return nil
}

// Connect marks the collaborator reachable again.
func (c *Collaborator) Connect() {
	c.SetStatus(domain.ConnectionConnected)
}

// Disconnect simulates losing the collaborator.
func (c *Collaborator) Disconnect() {
	c.SetStatus(domain.ConnectionDisconnected)
}

// Push delivers an event from the collaborator side. Events are dropped
// while disconnected.
func (c *Collaborator) Push(evt *wire.Event) {
	if c.Status() != domain.ConnectionConnected {
		return
	}
	c.Dispatch(evt)
}
