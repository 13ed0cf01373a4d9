package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/custodia-labs/marginalia/internal/core/ports/driven"
	"github.com/custodia-labs/marginalia/internal/core/ports/driving"
)

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	handler    http.Handler
	version    string
	logger     *zap.Logger

	threadSync driving.ThreadSync

	// auth is nil when the API runs without authentication
	auth       driven.AuthAdapter
	apiKeyHash string
	tokenTTL   time.Duration

	readyChecks map[string]ReadyCheck
}

// Config holds server configuration
type Config struct {
	Host    string
	Port    int
	Version string
	// APIKeyHash is the bcrypt hash of the key exchanged for tokens
	APIKeyHash     string
	TokenTTL       time.Duration
	AllowedOrigins []string
	// ReadyChecks are run by /ready, keyed by the backend they probe
	ReadyChecks map[string]ReadyCheck
}

// ReadyCheck reports whether a backend can serve requests
type ReadyCheck func(ctx context.Context) error

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:     "127.0.0.1",
		Port:     8787,
		Version:  "dev",
		TokenTTL: 12 * time.Hour,
	}
}

// NewServer creates a new HTTP server. A nil auth adapter disables
// authentication, which is only sensible on a loopback address.
func NewServer(cfg Config, threadSync driving.ThreadSync, auth driven.AuthAdapter, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultConfig().TokenTTL
	}

	s := &Server{
		router:     http.NewServeMux(),
		version:    cfg.Version,
		logger:     logger.Named("http"),
		threadSync: threadSync,
		auth:       auth,
		apiKeyHash: cfg.APIKeyHash,
		tokenTTL:   cfg.TokenTTL,

		readyChecks: cfg.ReadyChecks,
	}
	s.setupRoutes()

	var h http.Handler = s.router
	h = NewLoggingMiddleware(s.logger).Handler(h)
	h = NewRecoveryMiddleware(s.logger).Handler(h)
	if len(cfg.AllowedOrigins) > 0 {
		h = NewCORSMiddleware(cfg.AllowedOrigins).Handler(h)
	}
	s.handler = h

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
		Handler:      h,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the fully wrapped handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	authMiddleware := NewAuthMiddleware(s.auth)
	protect := func(h http.HandlerFunc) http.Handler {
		return authMiddleware.Authenticate(h)
	}

	// Health endpoints (no auth)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)

	// Token exchange (public)
	s.router.HandleFunc("POST /api/v1/auth/token", s.handleIssueToken)

	// Sync state
	s.router.Handle("GET /api/v1/sync/status", protect(s.handleSyncStatus))
	s.router.Handle("POST /api/v1/sync/drain", protect(s.handleDrain))

	// Active document
	s.router.Handle("PUT /api/v1/document", protect(s.handleSetDocument))
	s.router.Handle("POST /api/v1/document/edits", protect(s.handleApplyEdit))
	s.router.Handle("POST /api/v1/document/reanchor", protect(s.handleReanchor))

	// Threads
	s.router.Handle("GET /api/v1/threads", protect(s.handleListThreads))
	s.router.Handle("GET /api/v1/threads/at/{offset}", protect(s.handleThreadsAt))
	s.router.Handle("POST /api/v1/threads", protect(s.handleCreateThread))
	s.router.Handle("DELETE /api/v1/threads/{id}", protect(s.handleDismissThread))
	s.router.Handle("POST /api/v1/threads/{id}/messages", protect(s.handleAddMessage))
	s.router.Handle("POST /api/v1/threads/{id}/resolve", protect(s.handleResolveThread))
	s.router.Handle("POST /api/v1/threads/{id}/reopen", protect(s.handleReopenThread))
	s.router.Handle("POST /api/v1/threads/{id}/messages/{messageID}/accept", protect(s.handleAcceptSuggestion))
	s.router.Handle("POST /api/v1/threads/{id}/messages/{messageID}/reject", protect(s.handleRejectSuggestion))
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
