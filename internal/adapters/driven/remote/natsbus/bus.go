// Package natsbus reaches a remote collaborator over NATS. Mutations are
// request/reply on <prefix>.rpc.<operation>; the collaborator pushes events
// on <prefix>.events.<document>.
package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/custodia-labs/marginalia/internal/adapters/driven/remote/wire"
	"github.com/custodia-labs/marginalia/internal/core/domain"
	"github.com/custodia-labs/marginalia/internal/core/ports/driven"
	"github.com/custodia-labs/marginalia/internal/retry"
)

// Verify interface compliance
var _ driven.RemoteCollaborator = (*Bus)(nil)

// Config holds the NATS connection settings
type Config struct {
	URL string
	// Subject prefix shared with the collaborator
	Prefix string
	// Token authenticates the connection. Typically a JWT issued by the
	// auth adapter.
	Token string
	Name  string
	// Backoff shapes reconnect delays
	Backoff retry.Config
}

// Bus implements driven.RemoteCollaborator over a NATS connection.
type Bus struct {
	wire.Hooks

	cfg    Config
	nc     *nats.Conn
	sub    *nats.Subscription
	logger *zap.Logger
}

// Connect dials NATS and subscribes to the event subjects. The connection
// retries in the background, so Connect succeeds while the server is down
// and the status starts as connecting.
func Connect(cfg Config, logger *zap.Logger) (*Bus, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "marginalia"
	}
	if cfg.Name == "" {
		cfg.Name = "marginalia"
	}
	if cfg.Backoff.BaseDelay == 0 {
		cfg.Backoff = retry.ReconnectConfig()
	}

	b := &Bus{cfg: cfg, logger: logger}
	b.SetStatus(domain.ConnectionConnecting)

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.CustomReconnectDelay(func(attempts int) time.Duration {
			return cfg.Backoff.Delay(attempts - 1)
		}),
		nats.ConnectHandler(func(*nats.Conn) {
			b.logger.Info("nats connected", zap.String("url", cfg.URL))
			b.SetStatus(domain.ConnectionConnected)
		}),
		nats.ReconnectHandler(func(*nats.Conn) {
			b.logger.Info("nats reconnected", zap.String("url", cfg.URL))
			b.SetStatus(domain.ConnectionConnected)
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			b.logger.Warn("nats disconnected", zap.Error(err))
			b.SetStatus(domain.ConnectionConnecting)
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			b.SetStatus(domain.ConnectionDisconnected)
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	b.nc = nc

	sub, err := nc.Subscribe(b.eventSubject(">"), b.handleEvent)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to subscribe to events: %w", err)
	}
	b.sub = sub

	if nc.IsConnected() {
		b.SetStatus(domain.ConnectionConnected)
	}
	return b, nil
}

func (b *Bus) rpcSubject(op domain.OperationType) string {
	return b.cfg.Prefix + ".rpc." + string(op)
}

func (b *Bus) eventSubject(token string) string {
	return b.cfg.Prefix + ".events." + token
}

// EventSubject is the subject the collaborator publishes a document's
// events on. Dots in the id would split the subject, so they are escaped.
func (b *Bus) EventSubject(documentID string) string {
	return b.eventSubject(subjectToken(documentID))
}

func subjectToken(s string) string {
	r := strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")
	return r.Replace(s)
}

func (b *Bus) handleEvent(msg *nats.Msg) {
	evt, err := wire.DecodeEvent(msg.Data)
	if err != nil {
		b.logger.Warn("dropping malformed event",
			zap.String("subject", msg.Subject),
			zap.Error(err),
		)
		return
	}
	b.Dispatch(evt)
}

func (b *Bus) request(ctx context.Context, req *wire.Request) error {
	if b.Status() != domain.ConnectionConnected {
		return domain.ErrNotConnected
	}
	if err := req.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	msg, err := b.nc.RequestWithContext(ctx, b.rpcSubject(req.Operation), data)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return fmt.Errorf("%w: no collaborator listening", domain.ErrRemoteForwarding)
		}
		return fmt.Errorf("%w: %v", domain.ErrRemoteForwarding, err)
	}

	var reply wire.Reply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return fmt.Errorf("%w: malformed reply: %v", domain.ErrRemoteForwarding, err)
	}
	return reply.Err()
}

func (b *Bus) CreateThread(ctx context.Context, documentID string, thread *domain.CommentThread) error {
	req := &wire.Request{Operation: domain.OpCreateThread, DocumentID: documentID, Thread: thread}
	if thread != nil {
		req.ThreadID = thread.ID
	}
	return b.request(ctx, req)
}

func (b *Bus) AddMessage(ctx context.Context, documentID, threadID string, msg *domain.ThreadMessage) error {
	req := &wire.Request{Operation: domain.OpAddMessage, DocumentID: documentID, ThreadID: threadID, Message: msg}
	if msg != nil {
		req.MessageID = msg.ID
	}
	return b.request(ctx, req)
}

func (b *Bus) ResolveThread(ctx context.Context, documentID, threadID string) error {
	return b.request(ctx, &wire.Request{Operation: domain.OpResolveThread, DocumentID: documentID, ThreadID: threadID})
}

func (b *Bus) ReopenThread(ctx context.Context, documentID, threadID string) error {
	return b.request(ctx, &wire.Request{Operation: domain.OpReopenThread, DocumentID: documentID, ThreadID: threadID})
}

func (b *Bus) AcceptSuggestion(ctx context.Context, documentID, threadID, messageID string) error {
	return b.request(ctx, &wire.Request{Operation: domain.OpAcceptSuggestion, DocumentID: documentID, ThreadID: threadID, MessageID: messageID})
}

func (b *Bus) RejectSuggestion(ctx context.Context, documentID, threadID, messageID string) error {
	return b.request(ctx, &wire.Request{Operation: domain.OpRejectSuggestion, DocumentID: documentID, ThreadID: threadID, MessageID: messageID})
}

// Close unsubscribes and drains the connection.
func (b *Bus) Close() error {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	if b.nc != nil {
		b.nc.Close()
	}
	b.SetStatus(domain.ConnectionDisconnected)
	return nil
}
