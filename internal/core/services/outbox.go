package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/custodia-labs/marginalia/internal/core/domain"
)

// enqueueLocked appends an operation to the outbox. It reports whether the
// caller should forward right away: only when the outbox was empty and the
// remote is connected, so a live operation never overtakes queued ones.
func (s *ThreadSyncService) enqueueLocked(op domain.OperationType, payload domain.OutboxPayload) bool {
	wasEmpty := len(s.outbox) == 0
	s.outbox = append(s.outbox, &domain.OutboxEntry{
		Operation:  op,
		Payload:    payload,
		EnqueuedAt: s.now(),
	})
	return wasEmpty && s.Connected()
}

// kick forwards freshly queued operations. A failure here leaves the entry
// queued without consuming a retry.
func (s *ThreadSyncService) kick(ctx context.Context, direct bool) {
	if direct {
		s.flush(ctx, false)
	}
}

// DrainOutbox forwards queued operations in FIFO order. The cycle stops at
// the first failure; the failed entry's retry count goes up and it is
// discarded once it reaches the retry limit.
func (s *ThreadSyncService) DrainOutbox(ctx context.Context) domain.DrainResult {
	return s.flush(ctx, true)
}

// flush runs drain cycles until the outbox is empty, a cycle stops, or
// another goroutine holds the forwarding lock. The emptiness check after
// releasing the lock picks up entries queued by callers that lost the race
// for it.
func (s *ThreadSyncService) flush(ctx context.Context, counting bool) domain.DrainResult {
	var total domain.DrainResult
	for {
		if !s.forwardMu.TryLock() {
			break
		}
		res := s.drainLocked(ctx, counting)
		s.forwardMu.Unlock()

		total.Forwarded += res.Forwarded
		total.Discarded += res.Discarded
		if res.Stopped {
			total.Stopped = true
			break
		}
		if s.OutboxLen() == 0 {
			break
		}
	}
	total.Remaining = s.OutboxLen()
	return total
}

// drainLocked runs one cycle. The caller holds forwardMu; mu is taken only
// around outbox access so mutations can keep queueing during remote calls.
func (s *ThreadSyncService) drainLocked(ctx context.Context, counting bool) domain.DrainResult {
	var res domain.DrainResult
	for {
		if err := ctx.Err(); err != nil {
			res.Stopped = true
			return res
		}

		s.mu.Lock()
		if len(s.outbox) == 0 {
			s.mu.Unlock()
			return res
		}
		entry := s.outbox[0]
		s.mu.Unlock()

		if !s.Connected() {
			res.Stopped = true
			return res
		}

		err := s.replay(ctx, entry)

		s.mu.Lock()
		head := len(s.outbox) > 0 && s.outbox[0] == entry
		if err == nil {
			if head {
				s.outbox = s.outbox[1:]
			}
			s.mu.Unlock()
			res.Forwarded++
			continue
		}

		fields := []zap.Field{
			zap.String("operation", string(entry.Operation)),
			zap.String("thread_id", entry.Payload.ThreadID),
			zap.Error(fmt.Errorf("%w: %v", domain.ErrRemoteForwarding, err)),
		}
		if counting && head {
			entry.RetryCount++
			fields = append(fields, zap.Int("retry_count", entry.RetryCount))
			if entry.RetryCount >= s.maxRetry {
				s.outbox = s.outbox[1:]
				res.Discarded++
				s.mu.Unlock()
				s.logger.Warn("outbox entry discarded", append(fields, zap.NamedError("reason", domain.ErrRetryExhausted))...)
				res.Stopped = true
				return res
			}
		}
		s.mu.Unlock()
		s.logger.Warn("remote forwarding failed, operation stays queued", fields...)
		res.Stopped = true
		return res
	}
}

// replay performs the remote call an outbox entry stands for.
func (s *ThreadSyncService) replay(ctx context.Context, entry *domain.OutboxEntry) error {
	ctx, cancel := context.WithTimeout(ctx, s.forwardTimeout)
	defer cancel()

	p := entry.Payload
	switch entry.Operation {
	case domain.OpCreateThread:
		return s.remote.CreateThread(ctx, p.DocumentID, p.Thread)
	case domain.OpAddMessage:
		return s.remote.AddMessage(ctx, p.DocumentID, p.ThreadID, p.Message)
	case domain.OpResolveThread:
		return s.remote.ResolveThread(ctx, p.DocumentID, p.ThreadID)
	case domain.OpReopenThread:
		return s.remote.ReopenThread(ctx, p.DocumentID, p.ThreadID)
	case domain.OpAcceptSuggestion:
		return s.remote.AcceptSuggestion(ctx, p.DocumentID, p.ThreadID, p.MessageID)
	case domain.OpRejectSuggestion:
		return s.remote.RejectSuggestion(ctx, p.DocumentID, p.ThreadID, p.MessageID)
	default:
		return fmt.Errorf("%w: unknown operation %q", domain.ErrInvalidInput, entry.Operation)
	}
}

// OutboxLen returns the number of queued operations.
func (s *ThreadSyncService) OutboxLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outbox)
}

// Outbox returns a copy of the queued operations in FIFO order.
func (s *ThreadSyncService) Outbox() []domain.OutboxEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.OutboxEntry, len(s.outbox))
	for i, e := range s.outbox {
		out[i] = *e
	}
	return out
}

// ClearOutbox drops every queued operation, e.g. on shutdown. Local state is
// unaffected.
func (s *ThreadSyncService) ClearOutbox() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.outbox)
	s.outbox = nil
	return n
}
