// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package config

import (
	"time"
)

// Config holds all process configuration.
//
// Loading order (see Load):
//  1. Defaults from defaultConfig
//  2. Optional YAML file (CONFIG_PATH or DefaultConfigPaths)
//  3. Mapped environment variables
//
// Example:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    logging.Fatal().Err(err).Msg("Failed to load config")
//	}
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Security   SecurityConfig   `koanf:"security"`
	Logging    LoggingConfig    `koanf:"logging"`
	Catalog    CatalogConfig    `koanf:"catalog"`
	TupleStore TupleStoreConfig `koanf:"tuplestore"`
	Authz      AuthzConfig      `koanf:"authz"`
	Events     EventsConfig     `koanf:"events"`
	NATS       NATSConfig       `koanf:"nats"`
}

// ServerConfig holds HTTP server and deployment identity settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"`

	// ServerID is the UUID of the server object in the authorization graph.
	// It must stay stable across restarts.
	ServerID string `koanf:"server_id"`

	// BootstrapAdmin, when set, is made server admin on first start.
	BootstrapAdmin string `koanf:"bootstrap_admin"`
}

// SecurityConfig holds authentication and request-limiting settings.
type SecurityConfig struct {
	JWTSecret      string        `koanf:"jwt_secret"`
	JWTIssuer      string        `koanf:"jwt_issuer"`
	JWTAudience    string        `koanf:"jwt_audience"`
	SessionTimeout time.Duration `koanf:"session_timeout"`

	// IDPrefix is prepended to token subjects to form user ids, e.g.
	// "oidc" turns subject "abc" into "oidc~abc".
	IDPrefix string `koanf:"id_prefix"`

	// AllowAnonymous lets requests without a bearer token through as the
	// anonymous actor. The authz anonymous policy still applies.
	AllowAnonymous bool `koanf:"allow_anonymous"`

	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// CatalogConfig holds metadata store and cache settings.
type CatalogConfig struct {
	// Path is the DuckDB file. Empty means in-memory.
	Path      string `koanf:"path"`
	Threads   int    `koanf:"threads"`
	MaxMemory string `koanf:"max_memory"`

	MaxNamespaceDepth int `koanf:"max_namespace_depth"`
	FetchChunkSize    int `koanf:"fetch_chunk_size"`

	CacheEnabled  bool          `koanf:"cache_enabled"`
	CacheTTL      time.Duration `koanf:"cache_ttl"`
	CacheCapacity int           `koanf:"cache_capacity"`
}

// TupleStoreConfig holds the embedded graph backend and client settings.
type TupleStoreConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`
	MaxDepth int    `koanf:"max_depth"`

	BatchCheckSize      int `koanf:"batch_check_size"`
	MaxTuplesPerWrite   int `koanf:"max_tuples_per_write"`
	MaxParallelRequests int `koanf:"max_parallel_requests"`
	ReadPageSize        int `koanf:"read_page_size"`

	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`

	BreakerFailureThreshold uint32        `koanf:"breaker_failure_threshold"`
	BreakerTimeout          time.Duration `koanf:"breaker_timeout"`
}

// AuthzConfig holds the anonymous policy, audit log and hook retry settings.
type AuthzConfig struct {
	AnonymousPolicyPath string   `koanf:"anonymous_policy_path"`
	AnonymousRules      []string `koanf:"anonymous_rules"`

	Audit     AuditConfig     `koanf:"audit"`
	HookRetry HookRetryConfig `koanf:"hook_retry"`
}

// HookRetryConfig mirrors authz.HookRetryConfig.
type HookRetryConfig struct {
	MaxRetries     int           `koanf:"max_retries"`
	MaxEntries     int           `koanf:"max_entries"`
	InitialBackoff time.Duration `koanf:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff"`
	Interval       time.Duration `koanf:"interval"`
}

// AuditConfig mirrors authz.AuditLoggerConfig.
type AuditConfig struct {
	Enabled    bool    `koanf:"enabled"`
	LogAllowed bool    `koanf:"log_allowed"`
	LogDenied  bool    `koanf:"log_denied"`
	SampleRate float64 `koanf:"sample_rate"`
	BufferSize int     `koanf:"buffer_size"`
}

// Event publisher backends.
const (
	PublisherNone    = "none"
	PublisherChannel = "channel"
	PublisherNATS    = "nats"
)

// EventsConfig selects and tunes the event publisher.
type EventsConfig struct {
	Publisher        string        `koanf:"publisher"`
	Topic            string        `koanf:"topic"`
	BufferSize       int64         `koanf:"buffer_size"`
	BreakerThreshold uint32        `koanf:"breaker_threshold"`
	BreakerTimeout   time.Duration `koanf:"breaker_timeout"`
}

// NATSConfig holds the NATS connection, embedded server and stream settings.
type NATSConfig struct {
	URL            string        `koanf:"url"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`

	EmbeddedServer bool   `koanf:"embedded_server"`
	Host           string `koanf:"host"`
	Port           int    `koanf:"port"`
	StoreDir       string `koanf:"store_dir"`
	MaxMemory      int64  `koanf:"max_memory"`
	MaxStore       int64  `koanf:"max_store"`

	Stream          string        `koanf:"stream"`
	MaxAge          time.Duration `koanf:"max_age"`
	DuplicateWindow time.Duration `koanf:"duplicate_window"`
	MemoryStorage   bool          `koanf:"memory_storage"`
}
