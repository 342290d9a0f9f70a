package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dyntables/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(New(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, domain.BackendSQLite, cfg.Backend.Driver)
	assert.Equal(t, "dyntables.db", filepath.Base(cfg.Backend.Path))
	assert.Equal(t, 10, cfg.Waiter.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.Waiter.Interval)
	assert.Equal(t, 50, cfg.Rows.DefaultLimit)
	assert.Equal(t, 1000, cfg.Rows.MaxLimit)
	assert.Equal(t, 100, cfg.Import.ChunkSize)
	assert.Equal(t, 3, cfg.Import.DocumentRetries)
	assert.Equal(t, ListCacheMemory, cfg.ListCache.Backend)
	assert.Equal(t, 30*time.Second, cfg.ListCache.TTL)
	assert.Equal(t, DocumentsSQL, cfg.Documents.Backend)
	assert.True(t, cfg.Jobs.Enabled)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `owner_id: alice
backend:
  driver: postgres
  host: db.internal
  port: 5433
  database: tables
  user: svc
  password_ref: env:PGPASSWORD
  ssl_mode: require
waiter:
  interval: 50ms
rows:
  default_limit: 20
list_cache:
  backend: redis
  redis_addr: localhost:6379
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))
	t.Setenv("DYNTABLES_ROWS_DEFAULT_LIMIT", "25")
	t.Setenv("DYNTABLES_LOG_FORMAT", "json")

	cfg, err := Load(New(), dir)
	require.NoError(t, err)

	assert.Equal(t, "alice", cfg.OwnerID)
	assert.Equal(t, domain.BackendConfig{
		Driver:      domain.BackendPostgres,
		Path:        cfg.Backend.Path,
		Host:        "db.internal",
		Port:        5433,
		Database:    "tables",
		Username:    "svc",
		SSLMode:     "require",
		PasswordRef: "env:PGPASSWORD",
	}, cfg.Backend)
	assert.Equal(t, 50*time.Millisecond, cfg.Waiter.Interval)
	assert.Equal(t, 25, cfg.Rows.DefaultLimit, "environment beats the file")
	assert.Equal(t, LogFormatJSON, cfg.Log.Format)
	assert.Equal(t, ListCacheRedis, cfg.ListCache.Backend)
}

func TestLoad_BadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("backend: [\n"), 0o644))
	_, err := Load(New(), dir)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg, err := Load(New(), t.TempDir())
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"owner", func(c *Config) { c.OwnerID = " " }, ErrOwnerEmpty},
		{"driver", func(c *Config) { c.Backend.Driver = "oracle" }, ErrDriverUnknown},
		{"sqlite path", func(c *Config) { c.Backend.Path = "" }, ErrSQLitePathEmpty},
		{"mysql host", func(c *Config) { c.Backend.Driver = domain.BackendMySQL }, ErrHostEmpty},
		{"waiter", func(c *Config) { c.Waiter.MaxAttempts = 0 }, ErrWaiterInvalid},
		{"limits", func(c *Config) { c.Rows.MaxLimit = 10 }, ErrLimitInvalid},
		{"chunk", func(c *Config) { c.Import.ChunkSize = -1 }, ErrChunkSizeInvalid},
		{"list cache", func(c *Config) { c.ListCache.Backend = "memcached" }, ErrListCacheUnknown},
		{"redis addr", func(c *Config) { c.ListCache.Backend = ListCacheRedis }, ErrRedisAddrEmpty},
		{"documents", func(c *Config) { c.Documents.Backend = "s3" }, ErrDocumentsUnknown},
		{"mongo uri", func(c *Config) { c.Documents.Backend = DocumentsMongo }, ErrMongoURIEmpty},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, ErrLogFormatUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.want)
		})
	}
}
