package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "marginalia.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, BackendFile, cfg.Documents.Backend)
	assert.Equal(t, RemoteNone, cfg.Remote.Backend)
	assert.Equal(t, 3, cfg.Sync.MaxRetry)
	assert.Equal(t, 5*time.Second, cfg.Sync.DrainInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.Remote.Backoff.BaseDelay)
	assert.Equal(t, 12*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 8787, cfg.HTTP.Port)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[storage]
backend = "postgres"
postgres_url = "postgres://localhost/marginalia"

[remote]
backend = "nats"

[remote.nats]
url = "nats://bus:4222"
prefix = "team"

[sync]
drain_interval = "250ms"

[http]
allowed_origins = ["http://localhost:3000"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendPostgres, cfg.Storage.Backend)
	assert.Equal(t, "postgres://localhost/marginalia", cfg.Storage.PostgresURL)
	assert.Equal(t, "nats://bus:4222", cfg.Remote.NATS.URL)
	assert.Equal(t, "team", cfg.Remote.NATS.Prefix)
	assert.Equal(t, 250*time.Millisecond, cfg.Sync.DrainInterval)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.HTTP.AllowedOrigins)
	// Untouched keys keep their defaults
	assert.Equal(t, 3, cfg.Sync.MaxRetry)
}

func TestLoad_EnvironmentWins(t *testing.T) {
	path := writeConfig(t, `
[storage]
backend = "file"
`)
	t.Setenv("MARGINALIA_STORAGE__BACKEND", "redis")
	t.Setenv("MARGINALIA_STORAGE__REDIS_URL", "redis://cache:6379/1")
	t.Setenv("MARGINALIA_REMOTE__NATS__URL", "nats://env:4222")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendRedis, cfg.Storage.Backend)
	assert.Equal(t, "redis://cache:6379/1", cfg.Storage.RedisURL)
	assert.Equal(t, "nats://env:4222", cfg.Remote.NATS.URL)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "storage.backend", envKey("MARGINALIA_STORAGE__BACKEND"))
	assert.Equal(t, "auth.jwt_secret", envKey("MARGINALIA_AUTH__JWT_SECRET"))
	assert.Equal(t, "remote.http.base_url", envKey("MARGINALIA_REMOTE__HTTP__BASE_URL"))
}

func TestMIMETypeFor(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	tests := []struct {
		doc  string
		want string
	}{
		{"notes.md", "text/markdown"},
		{"TODO.ORG", "text/org"},
		{"guide.adoc", "text/asciidoc"},
		{"readme.txt", "text/plain"},
		{"no-extension", "text/markdown"},
		{"data.json", "text/markdown"},
	}
	for _, tt := range tests {
		t.Run(tt.doc, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.MIMETypeFor(tt.doc))
		})
	}
}

func TestValidate(t *testing.T) {
	base := func(t *testing.T) *Config {
		cfg, err := Load(writeConfig(t, ""))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown storage", func(c *Config) { c.Storage.Backend = "mongo" }},
		{"postgres without url", func(c *Config) { c.Storage.Backend = BackendPostgres }},
		{"redis without url", func(c *Config) { c.Storage.Backend = BackendRedis }},
		{"file without dir", func(c *Config) { c.Storage.Backend = BackendFile; c.Storage.Dir = "" }},
		{"unknown documents", func(c *Config) { c.Documents.Backend = "ftp" }},
		{"s3 without bucket", func(c *Config) { c.Documents.Backend = BackendS3; c.Documents.S3.Endpoint = "minio:9000" }},
		{"unknown remote", func(c *Config) { c.Remote.Backend = "carrier-pigeon" }},
		{"http remote without url", func(c *Config) { c.Remote.Backend = RemoteHTTP }},
		{"lease without redis", func(c *Config) { c.Sync.Lease = true }},
		{"api key without secret", func(c *Config) { c.Auth.APIKeyHash = "$2a$10$abc" }},
		{"bad port", func(c *Config) { c.HTTP.Port = 70000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base(t)
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "marginalia.toml")

	require.NoError(t, InitConfig(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())

	err = InitConfig(path)
	assert.Error(t, err, "existing file is not overwritten")
}
