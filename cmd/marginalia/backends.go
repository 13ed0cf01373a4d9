package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/custodia-labs/marginalia/internal/adapters/driven/auth"
	"github.com/custodia-labs/marginalia/internal/adapters/driven/filestore"
	"github.com/custodia-labs/marginalia/internal/adapters/driven/objectstore"
	"github.com/custodia-labs/marginalia/internal/adapters/driven/postgres"
	redisadapter "github.com/custodia-labs/marginalia/internal/adapters/driven/redis"
	"github.com/custodia-labs/marginalia/internal/adapters/driven/remote/httppoll"
	"github.com/custodia-labs/marginalia/internal/adapters/driven/remote/inprocess"
	"github.com/custodia-labs/marginalia/internal/adapters/driven/remote/natsbus"
	"github.com/custodia-labs/marginalia/internal/adapters/driven/sqlite"
	"github.com/custodia-labs/marginalia/internal/adapters/driving/http"
	"github.com/custodia-labs/marginalia/internal/config"
	"github.com/custodia-labs/marginalia/internal/core/domain"
	"github.com/custodia-labs/marginalia/internal/core/ports/driven"
)

// backends holds the driven adapters selected by configuration.
type backends struct {
	threads   driven.ThreadStore
	documents driven.DocumentStore
	remote    driven.RemoteCollaborator
	lease     driven.DocumentLease
	auth      *auth.Adapter

	// poller is set for the http remote; it starts once the core has
	// subscribed to its events.
	poller *httppoll.Client

	redis   *goredis.Client
	closers []func() error
	// ready probes the storage backends for the HTTP readiness endpoint
	ready   map[string]http.ReadyCheck
	logger  *zap.Logger
}

// openStorage opens the thread store and document store only. Commands
// that never talk to a collaborator use this.
func openStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*backends, error) {
	b := &backends{logger: logger, ready: make(map[string]http.ReadyCheck)}
	if err := b.openThreadStore(ctx, cfg); err != nil {
		b.Close()
		return nil, err
	}
	if err := b.openDocumentStore(ctx, cfg); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// openBackends opens every adapter the serve command needs.
func openBackends(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*backends, error) {
	b, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	if cfg.Auth.JWTSecret != "" {
		b.auth = auth.NewAdapter(cfg.Auth.JWTSecret)
	}

	if cfg.Sync.Lease {
		client, err := b.redisClient(ctx, cfg.Storage.RedisURL)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.lease = redisadapter.NewLease(client)
	}

	if err := b.openRemote(cfg); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *backends) redisClient(ctx context.Context, url string) (*goredis.Client, error) {
	if b.redis != nil {
		return b.redis, nil
	}
	client, err := redisadapter.Connect(ctx, url)
	if err != nil {
		return nil, err
	}
	b.redis = client
	b.closers = append(b.closers, client.Close)
	b.ready[config.BackendRedis] = func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
	return client, nil
}

func (b *backends) openThreadStore(ctx context.Context, cfg *config.Config) error {
	switch cfg.Storage.Backend {
	case config.BackendFile:
		b.threads = filestore.NewThreadStore(cfg.Storage.Dir, b.logger)

	case config.BackendSQLite:
		if dir := filepath.Dir(cfg.Storage.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		db, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return err
		}
		b.closers = append(b.closers, db.Close)
		b.ready[config.BackendSQLite] = db.PingContext
		b.threads = sqlite.NewThreadStore(db, b.logger)

	case config.BackendPostgres:
		db, err := postgres.Connect(ctx, postgres.DefaultConfig(cfg.Storage.PostgresURL))
		if err != nil {
			return err
		}
		b.closers = append(b.closers, db.Close)
		if err := db.InitSchema(ctx); err != nil {
			return err
		}
		b.ready[config.BackendPostgres] = db.Ping
		b.threads = postgres.NewThreadStore(db, b.logger)

	case config.BackendRedis:
		client, err := b.redisClient(ctx, cfg.Storage.RedisURL)
		if err != nil {
			return err
		}
		b.threads = redisadapter.NewThreadStore(client, b.logger)

	default:
		return fmt.Errorf("%w: storage backend %q", domain.ErrInvalidInput, cfg.Storage.Backend)
	}
	b.logger.Info("thread store ready", zap.String("backend", cfg.Storage.Backend))
	return nil
}

func (b *backends) openDocumentStore(ctx context.Context, cfg *config.Config) error {
	switch cfg.Documents.Backend {
	case config.BackendFile:
		b.documents = filestore.NewDocumentStore(cfg.Documents.Root)

	case config.BackendS3:
		s3 := cfg.Documents.S3
		store, err := objectstore.NewDocumentStore(ctx, objectstore.Config{
			Endpoint:  s3.Endpoint,
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
			Bucket:    s3.Bucket,
			Prefix:    s3.Prefix,
			UseSSL:    s3.UseSSL,
		})
		if err != nil {
			return err
		}
		b.documents = store

	default:
		return fmt.Errorf("%w: documents backend %q", domain.ErrInvalidInput, cfg.Documents.Backend)
	}
	b.logger.Info("document store ready", zap.String("backend", cfg.Documents.Backend))
	return nil
}

// remoteToken returns the configured collaborator token, or issues one when
// only the signing secret is configured.
func (b *backends) remoteToken(cfg *config.Config) (string, error) {
	if cfg.Remote.Token != "" || b.auth == nil {
		return cfg.Remote.Token, nil
	}
	token, _, err := b.auth.Issue(cfg.Remote.Subject, domain.AuthorKindHuman, cfg.Auth.TokenTTL)
	if err != nil {
		return "", fmt.Errorf("issue collaborator token: %w", err)
	}
	return token, nil
}

func (b *backends) openRemote(cfg *config.Config) error {
	if cfg.Remote.Backend == config.RemoteNone || cfg.Remote.Backend == "" {
		return nil
	}
	logger := b.logger.Named("remote")

	token, err := b.remoteToken(cfg)
	if err != nil {
		return err
	}

	switch cfg.Remote.Backend {
	case config.RemoteLoopback:
		b.remote = inprocess.NewLoopback(logger)

	case config.RemoteNATS:
		bus, err := natsbus.Connect(natsbus.Config{
			URL:     cfg.Remote.NATS.URL,
			Prefix:  cfg.Remote.NATS.Prefix,
			Token:   token,
			Backoff: cfg.Remote.Backoff,
		}, logger)
		if err != nil {
			return err
		}
		b.remote = bus

	case config.RemoteHTTP:
		poll := cfg.Remote.HTTP
		b.poller = httppoll.New(httppoll.Config{
			BaseURL:           poll.BaseURL,
			Token:             token,
			PollInterval:      poll.PollInterval,
			RequestsPerSecond: poll.RequestsPerSecond,
			Burst:             poll.Burst,
			Timeout:           poll.Timeout,
			Backoff:           cfg.Remote.Backoff,
		}, logger)
		b.remote = b.poller

	default:
		return fmt.Errorf("%w: remote backend %q", domain.ErrInvalidInput, cfg.Remote.Backend)
	}

	b.closers = append(b.closers, b.remote.Close)
	logger.Info("remote collaborator configured", zap.String("backend", cfg.Remote.Backend))
	return nil
}

// Close releases adapters in reverse order of opening.
func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			b.logger.Warn("failed to close backend", zap.Error(err))
		}
	}
	b.closers = nil
}
