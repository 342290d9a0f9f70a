// Package config loads dyntables settings from config.yaml, DYNTABLES_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"dyntables/internal/domain"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	envPrefix      = "DYNTABLES"
)

// Config is the full runtime configuration.
type Config struct {
	OwnerID     string               `mapstructure:"owner_id"`
	Backend     domain.BackendConfig `mapstructure:"backend"`
	SchemaCache SchemaCacheConfig    `mapstructure:"schema_cache"`
	Waiter      WaiterConfig         `mapstructure:"waiter"`
	Rows        RowsConfig           `mapstructure:"rows"`
	Import      ImportConfig         `mapstructure:"import"`
	ListCache   ListCacheConfig      `mapstructure:"list_cache"`
	Documents   DocumentsConfig      `mapstructure:"documents"`
	Jobs        JobsConfig           `mapstructure:"jobs"`
	Log         LogConfig            `mapstructure:"log"`
	Metrics     MetricsConfig        `mapstructure:"metrics"`
}

type SchemaCacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type WaiterConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Interval    time.Duration `mapstructure:"interval"`
}

type RowsConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"`
}

type ImportConfig struct {
	ChunkSize             int           `mapstructure:"chunk_size"`
	DocumentRetries       int           `mapstructure:"document_retries"`
	DocumentRetryInterval time.Duration `mapstructure:"document_retry_interval"`
}

// ListCacheConfig selects where database listings are cached.
type ListCacheConfig struct {
	Backend          string        `mapstructure:"backend"`
	TTL              time.Duration `mapstructure:"ttl"`
	RedisAddr        string        `mapstructure:"redis_addr"`
	RedisPasswordRef string        `mapstructure:"redis_password_ref"`
	RedisDB          int           `mapstructure:"redis_db"`
}

// DocumentsConfig selects where linked documents live.
type DocumentsConfig struct {
	Backend       string `mapstructure:"backend"`
	MongoURI      string `mapstructure:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database"`
}

// JobsConfig controls the scheduled and file-watch import jobs.
type JobsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

const (
	ListCacheMemory = "memory"
	ListCacheRedis  = "redis"

	DocumentsSQL   = "sql"
	DocumentsMongo = "mongodb"

	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// Validation errors returned by Config.Validate.
var (
	ErrOwnerEmpty       = errors.New("owner_id must not be empty")
	ErrDriverUnknown    = errors.New("unknown backend driver")
	ErrSQLitePathEmpty  = errors.New("backend.path must be set for sqlite")
	ErrHostEmpty        = errors.New("backend.host and backend.database must be set")
	ErrWaiterInvalid    = errors.New("waiter.max_attempts and waiter.interval must be positive")
	ErrLimitInvalid     = errors.New("rows.default_limit must be positive and not above rows.max_limit")
	ErrChunkSizeInvalid = errors.New("import.chunk_size must be positive")
	ErrListCacheUnknown = errors.New("unknown list_cache.backend")
	ErrRedisAddrEmpty   = errors.New("list_cache.redis_addr must be set for redis")
	ErrDocumentsUnknown = errors.New("unknown documents.backend")
	ErrMongoURIEmpty    = errors.New("documents.mongo_uri must be set for mongodb")
	ErrLogFormatUnknown = errors.New("unknown log.format")
)

// DefaultConfigDir is $HOME/.config/dyntables.
func DefaultConfigDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "dyntables")
}

func defaultDataPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "dyntables", "dyntables.db")
}

// New returns a viper instance with every key defaulted and the environment
// bound. Flags are bound by the caller before Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("owner_id", "default")

	v.SetDefault("backend.driver", string(domain.BackendSQLite))
	v.SetDefault("backend.path", defaultDataPath())
	v.SetDefault("backend.host", "")
	v.SetDefault("backend.port", 0)
	v.SetDefault("backend.database", "")
	v.SetDefault("backend.user", "")
	v.SetDefault("backend.password_ref", "")
	v.SetDefault("backend.ssl_mode", "")

	v.SetDefault("schema_cache.ttl", 5*time.Minute)
	v.SetDefault("waiter.max_attempts", 10)
	v.SetDefault("waiter.interval", 200*time.Millisecond)
	v.SetDefault("rows.default_limit", 50)
	v.SetDefault("rows.max_limit", 1000)
	v.SetDefault("import.chunk_size", 100)
	v.SetDefault("import.document_retries", 3)
	v.SetDefault("import.document_retry_interval", 100*time.Millisecond)

	v.SetDefault("list_cache.backend", ListCacheMemory)
	v.SetDefault("list_cache.ttl", 30*time.Second)
	v.SetDefault("list_cache.redis_addr", "")
	v.SetDefault("list_cache.redis_password_ref", "")
	v.SetDefault("list_cache.redis_db", 0)

	v.SetDefault("documents.backend", DocumentsSQL)
	v.SetDefault("documents.mongo_uri", "")
	v.SetDefault("documents.mongo_database", "dyntables")

	v.SetDefault("jobs.enabled", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", LogFormatConsole)
	v.SetDefault("metrics.addr", "")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads config.yaml from configDir into v and decodes the result.
// A missing config file is not an error.
func Load(v *viper.Viper, configDir string) (Config, error) {
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	if configDir != "" {
		v.AddConfigPath(configDir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if strings.TrimSpace(c.OwnerID) == "" {
		return ErrOwnerEmpty
	}
	switch c.Backend.Driver {
	case domain.BackendSQLite:
		if c.Backend.Path == "" {
			return ErrSQLitePathEmpty
		}
	case domain.BackendPostgres, domain.BackendMySQL:
		if c.Backend.Host == "" || c.Backend.Database == "" {
			return ErrHostEmpty
		}
	default:
		return fmt.Errorf("%w: %q", ErrDriverUnknown, c.Backend.Driver)
	}
	if c.Waiter.MaxAttempts <= 0 || c.Waiter.Interval <= 0 {
		return ErrWaiterInvalid
	}
	if c.Rows.DefaultLimit <= 0 || c.Rows.MaxLimit < c.Rows.DefaultLimit {
		return ErrLimitInvalid
	}
	if c.Import.ChunkSize <= 0 {
		return ErrChunkSizeInvalid
	}
	switch c.ListCache.Backend {
	case ListCacheMemory:
	case ListCacheRedis:
		if c.ListCache.RedisAddr == "" {
			return ErrRedisAddrEmpty
		}
	default:
		return fmt.Errorf("%w: %q", ErrListCacheUnknown, c.ListCache.Backend)
	}
	switch c.Documents.Backend {
	case DocumentsSQL:
	case DocumentsMongo:
		if c.Documents.MongoURI == "" {
			return ErrMongoURIEmpty
		}
	default:
		return fmt.Errorf("%w: %q", ErrDocumentsUnknown, c.Documents.Backend)
	}
	switch c.Log.Format {
	case LogFormatConsole, LogFormatJSON:
	default:
		return fmt.Errorf("%w: %q", ErrLogFormatUnknown, c.Log.Format)
	}
	return nil
}
