package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/custodia-labs/marginalia/internal/core/domain"
	"github.com/custodia-labs/marginalia/internal/core/ports/driven"
	"github.com/custodia-labs/marginalia/internal/core/services"
)

const (
	// DefaultDrainInterval is how often queued operations are retried
	DefaultDrainInterval = 5 * time.Second

	// DefaultLeaseTTL is how long a document lease lives between extensions
	DefaultLeaseTTL = 30 * time.Second

	releaseTimeout = 5 * time.Second
)

// Worker runs the event loop for one sync core. It is the only goroutine
// that merges remote push events, and it retries the outbox on a timer while
// the remote is reachable.
type Worker struct {
	sync          *services.ThreadSyncService
	lease         driven.DocumentLease
	leaseTTL      time.Duration
	drainInterval time.Duration
	logger        *zap.Logger

	mu        sync.RWMutex
	running   bool
	leasedDoc string
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// WorkerConfig holds configuration for the worker.
type WorkerConfig struct {
	Sync *services.ThreadSyncService
	// Lease is optional; without one the active document is not guarded
	// against other processes.
	Lease         driven.DocumentLease
	LeaseTTL      time.Duration
	DrainInterval time.Duration
	Logger        *zap.Logger
}

// NewWorker creates a new event loop worker.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	interval := cfg.DrainInterval
	if interval <= 0 {
		interval = DefaultDrainInterval
	}

	ttl := cfg.LeaseTTL
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	// The lease is extended once per tick, so it must outlive one.
	if ttl <= interval {
		ttl = 3 * interval
	}

	return &Worker{
		sync:          cfg.Sync,
		lease:         cfg.Lease,
		leaseTTL:      ttl,
		drainInterval: interval,
		logger:        logger,
	}
}

// Start takes the active document's lease and begins the event loop.
// It runs until Stop is called or context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	if err := w.acquire(ctx, w.sync.ActiveDocument()); err != nil {
		return err
	}

	w.mu.Lock()
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("worker starting",
		zap.Duration("drain_interval", w.drainInterval),
		zap.Bool("leased", w.lease != nil),
	)

	go w.loop(ctx)
	return nil
}

// Stop gracefully stops the worker and releases the lease.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	w.mu.Unlock()

	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("worker stopped")
}

// Wait blocks until the worker stops.
func (w *Worker) Wait() {
	w.mu.RLock()
	done := w.doneCh
	w.mu.RUnlock()
	if done != nil {
		<-done
	}
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.doneCh)
	defer w.release()

	ticker := time.NewTicker(w.drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker context cancelled")
			return
		case <-w.stopCh:
			w.logger.Info("worker stop signal received")
			return
		case <-w.sync.Events():
			if n := w.sync.ProcessIncoming(ctx); n > 0 {
				w.logger.Debug("processed incoming events", zap.Int("count", n))
			}
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// tick keeps the lease alive and retries the outbox.
func (w *Worker) tick(ctx context.Context) {
	w.renew(ctx)

	if !w.sync.Connected() || w.sync.OutboxLen() == 0 {
		return
	}
	res := w.sync.DrainOutbox(ctx)
	w.logger.Info("outbox drained",
		zap.Int("forwarded", res.Forwarded),
		zap.Int("discarded", res.Discarded),
		zap.Int("remaining", res.Remaining),
		zap.Bool("stopped", res.Stopped),
	)
}

func (w *Worker) acquire(ctx context.Context, documentID string) error {
	if w.lease == nil || documentID == "" {
		return nil
	}
	ok, err := w.lease.Acquire(ctx, documentID, w.leaseTTL)
	if err != nil {
		return fmt.Errorf("acquire lease for %s: %w", documentID, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrDocumentLeased, documentID)
	}

	w.mu.Lock()
	w.leasedDoc = documentID
	w.mu.Unlock()

	w.logger.Info("document lease acquired",
		zap.String("document_id", documentID),
		zap.String("holder", w.lease.HolderID()),
	)
	return nil
}

// renew extends the held lease and follows the active document when it
// changes. A lease that cannot be regained is logged, not fatal: local
// mutations keep working and only the guard is lost.
func (w *Worker) renew(ctx context.Context) {
	if w.lease == nil {
		return
	}

	w.mu.RLock()
	held := w.leasedDoc
	w.mu.RUnlock()
	active := w.sync.ActiveDocument()

	if held != "" && held != active {
		w.release()
		held = ""
	}
	if active == "" {
		return
	}
	if held == active {
		err := w.lease.Extend(ctx, held, w.leaseTTL)
		if err == nil {
			return
		}
		w.logger.Warn("failed to extend document lease",
			zap.String("document_id", held),
			zap.Error(err),
		)
	}
	if err := w.acquire(ctx, active); err != nil {
		w.mu.Lock()
		w.leasedDoc = ""
		w.mu.Unlock()
		w.logger.Error("document lease lost", zap.String("document_id", active), zap.Error(err))
	}
}

func (w *Worker) release() {
	if w.lease == nil {
		return
	}
	w.mu.Lock()
	doc := w.leasedDoc
	w.leasedDoc = ""
	w.mu.Unlock()
	if doc == "" {
		return
	}

	// The loop's context may already be cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := w.lease.Release(ctx, doc); err != nil {
		w.logger.Warn("failed to release document lease", zap.String("document_id", doc), zap.Error(err))
	}
}

// Health reports the state of the worker and the sync core it drives.
type Health struct {
	Running    bool                    `json:"running"`
	Connection domain.ConnectionStatus `json:"connection"`
	OutboxLen  int                     `json:"outbox_len"`
	LeasedDoc  string                  `json:"leased_document,omitempty"`
}

// Health returns the health status of the worker.
func (w *Worker) Health() Health {
	w.mu.RLock()
	running := w.running
	leased := w.leasedDoc
	w.mu.RUnlock()

	return Health{
		Running:    running,
		Connection: w.sync.ConnectionStatus(),
		OutboxLen:  w.sync.OutboxLen(),
		LeasedDoc:  leased,
	}
}
