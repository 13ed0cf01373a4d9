package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/custodia-labs/marginalia/internal/adapters/driving/http"
	"github.com/custodia-labs/marginalia/internal/config"
	"github.com/custodia-labs/marginalia/internal/core/ports/driven"
	"github.com/custodia-labs/marginalia/internal/core/services"
	"github.com/custodia-labs/marginalia/internal/headings"
	"github.com/custodia-labs/marginalia/internal/worker"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the sync core with its event loop and HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "document",
				Aliases: []string{"d"},
				Usage:   "Activate `ID` on start",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("marginalia starting", zap.String("version", version))

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	svc := services.NewThreadSyncService(services.ThreadSyncConfig{
		ThreadStore:    b.threads,
		Documents:      b.documents,
		Remote:         b.remote,
		HeadingParsers: headings.DefaultRegistry(),
		MIMETypeFor:    cfg.MIMETypeFor,
		MaxRetry:       cfg.Sync.MaxRetry,
		ForwardTimeout: cfg.Sync.ForwardTimeout,
		Logger:         logger.Named("sync"),
	})

	// The core is subscribed now, so polled events have somewhere to go.
	if b.poller != nil {
		b.poller.Start(ctx)
	}

	if doc := c.String("document"); doc != "" {
		if err := svc.SetActiveDocument(ctx, doc); err != nil {
			return fmt.Errorf("activate %s: %w", doc, err)
		}
	}

	// Runs after the worker stops. Local state is already durable.
	defer func() {
		if n := svc.ClearOutbox(); n > 0 {
			logger.Warn("discarding unsent operations on shutdown", zap.Int("count", n))
		}
	}()

	w := worker.NewWorker(worker.WorkerConfig{
		Sync:          svc,
		Lease:         b.lease,
		LeaseTTL:      cfg.Sync.LeaseTTL,
		DrainInterval: cfg.Sync.DrainInterval,
		Logger:        logger.Named("worker"),
	})
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	defer w.Stop()

	if !cfg.HTTP.Enabled {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		return nil
	}

	var authAdapter driven.AuthAdapter
	if b.auth != nil {
		authAdapter = b.auth
	} else {
		logger.Warn("auth.jwt_secret not set, HTTP API is unauthenticated")
	}
	server := http.NewServer(httpConfig(cfg, b.ready), svc, authAdapter, logger)
	return server.Run(ctx)
}

func httpConfig(cfg *config.Config, ready map[string]http.ReadyCheck) http.Config {
	hc := http.DefaultConfig()
	hc.Host = cfg.HTTP.Host
	hc.Port = cfg.HTTP.Port
	hc.Version = version
	hc.APIKeyHash = cfg.Auth.APIKeyHash
	hc.AllowedOrigins = cfg.HTTP.AllowedOrigins
	hc.ReadyChecks = ready
	if cfg.Auth.TokenTTL > 0 {
		hc.TokenTTL = cfg.Auth.TokenTTL
	}
	return hc
}
