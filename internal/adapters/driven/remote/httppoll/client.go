// Package httppoll reaches a remote collaborator over plain HTTP. Mutations
// are POSTed one per request; pushed events are fetched by polling.
package httppoll

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/marginalia/internal/adapters/driven/remote/wire"
	"github.com/custodia-labs/marginalia/internal/core/domain"
	"github.com/custodia-labs/marginalia/internal/core/ports/driven"
	"github.com/custodia-labs/marginalia/internal/retry"
)

// Verify interface compliance
var _ driven.RemoteCollaborator = (*Client)(nil)

const (
	requestsPath = "/v1/requests"
	eventsPath   = "/v1/events"
)

// Config holds the collaborator endpoint settings
type Config struct {
	BaseURL string
	// Token is sent as a bearer token on every request
	Token string
	// PollInterval is the pause between event polls that returned nothing
	PollInterval time.Duration
	// RequestsPerSecond limits outgoing requests; zero means unlimited
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	Backoff           retry.Config
}

// Client implements driven.RemoteCollaborator against an HTTP endpoint.
type Client struct {
	wire.Hooks

	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger

	mu     sync.Mutex
	after  int64
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a client. Call Start to begin polling for events.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Backoff.BaseDelay == 0 {
		cfg.Backoff = retry.ReconnectConfig()
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
	c.SetStatus(domain.ConnectionConnecting)
	return c
}

// Start launches the event poll loop. It returns immediately.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.run(ctx, c.done)
}

func (c *Client) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for ctx.Err() == nil {
		var got int
		result := retry.Do(ctx, c.cfg.Backoff, func(ctx context.Context) error {
			n, err := c.pollOnce(ctx)
			if err != nil {
				if ctx.Err() == nil {
					c.SetStatus(domain.ConnectionDisconnected)
				}
				return err
			}
			got = n
			return nil
		}, c.logger)
		if !result.Success {
			continue
		}
		c.SetStatus(domain.ConnectionConnected)

		if got > 0 {
			continue
		}
		timer := time.NewTimer(c.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
}

// pollOnce fetches and dispatches the events after the last seen sequence.
func (c *Client) pollOnce(ctx context.Context) (int, error) {
	c.mu.Lock()
	after := c.after
	c.mu.Unlock()

	q := url.Values{}
	q.Set("after", strconv.FormatInt(after, 10))
	resp, err := c.do(ctx, http.MethodGet, eventsPath+"?"+q.Encode(), nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var raw []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return 0, fmt.Errorf("decode events: %w", err)
	}

	for _, r := range raw {
		evt, err := wire.DecodeEvent(r)
		if err != nil {
			c.logger.Warn("dropping malformed event", zap.Error(err))
			continue
		}
		c.mu.Lock()
		if evt.Sequence > c.after {
			c.after = evt.Sequence
		}
		c.mu.Unlock()
		c.Dispatch(evt)
	}
	return len(raw), nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.BaseURL, "/")+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, r *wire.Request) error {
	if c.Status() != domain.ConnectionConnected {
		return domain.ErrNotConnected
	}
	if err := r.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, requestsPath, body)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRemoteForwarding, err)
	}
	defer resp.Body.Close()

	var reply wire.Reply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return fmt.Errorf("%w: malformed reply: %v", domain.ErrRemoteForwarding, err)
	}
	return reply.Err()
}

func (c *Client) CreateThread(ctx context.Context, documentID string, thread *domain.CommentThread) error {
	r := &wire.Request{Operation: domain.OpCreateThread, DocumentID: documentID, Thread: thread}
	if thread != nil {
		r.ThreadID = thread.ID
	}
	return c.send(ctx, r)
}

func (c *Client) AddMessage(ctx context.Context, documentID, threadID string, msg *domain.ThreadMessage) error {
	r := &wire.Request{Operation: domain.OpAddMessage, DocumentID: documentID, ThreadID: threadID, Message: msg}
	if msg != nil {
		r.MessageID = msg.ID
	}
	return c.send(ctx, r)
}

func (c *Client) ResolveThread(ctx context.Context, documentID, threadID string) error {
	return c.send(ctx, &wire.Request{Operation: domain.OpResolveThread, DocumentID: documentID, ThreadID: threadID})
}

func (c *Client) ReopenThread(ctx context.Context, documentID, threadID string) error {
	return c.send(ctx, &wire.Request{Operation: domain.OpReopenThread, DocumentID: documentID, ThreadID: threadID})
}

func (c *Client) AcceptSuggestion(ctx context.Context, documentID, threadID, messageID string) error {
	return c.send(ctx, &wire.Request{Operation: domain.OpAcceptSuggestion, DocumentID: documentID, ThreadID: threadID, MessageID: messageID})
}

func (c *Client) RejectSuggestion(ctx context.Context, documentID, threadID, messageID string) error {
	return c.send(ctx, &wire.Request{Operation: domain.OpRejectSuggestion, DocumentID: documentID, ThreadID: threadID, MessageID: messageID})
}

// Close stops the poll loop and waits for it to exit.
func (c *Client) Close() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	c.SetStatus(domain.ConnectionDisconnected)
	return nil
}
