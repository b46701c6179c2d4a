// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists config file locations in priority order. The
// first existing file is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/lakekeeper/config.yaml",
	"/etc/lakekeeper/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultServerID is the server id used when none is configured.
const DefaultServerID = "00000000-0000-0000-0000-000000000000"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8181,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			Environment:     "development",
			ServerID:        DefaultServerID,
		},
		Security: SecurityConfig{
			SessionTimeout:    time.Hour,
			IDPrefix:          "oidc",
			RateLimitReqs:     600,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
			CORSOrigins:       []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Catalog: CatalogConfig{
			Path:              "/data/catalog.duckdb",
			MaxMemory:         "1GB",
			MaxNamespaceDepth: 16,
			FetchChunkSize:    100,
			CacheEnabled:      true,
			CacheTTL:          time.Minute,
			CacheCapacity:     10000,
		},
		TupleStore: TupleStoreConfig{
			Path:                    "/data/tuples",
			MaxDepth:                25,
			BatchCheckSize:          50,
			MaxTuplesPerWrite:       100,
			MaxParallelRequests:     10,
			ReadPageSize:            100,
			BreakerFailureThreshold: 5,
			BreakerTimeout:          30 * time.Second,
		},
		Authz: AuthzConfig{
			Audit: AuditConfig{
				Enabled:    true,
				LogAllowed: false,
				LogDenied:  true,
				SampleRate: 1.0,
				BufferSize: 1000,
			},
			HookRetry: HookRetryConfig{
				MaxRetries:     8,
				MaxEntries:     10000,
				InitialBackoff: time.Second,
				MaxBackoff:     5 * time.Minute,
				Interval:       time.Second,
			},
		},
		Events: EventsConfig{
			Publisher:        PublisherChannel,
			Topic:            "lakekeeper.authz",
			BufferSize:       256,
			BreakerThreshold: 5,
			BreakerTimeout:   30 * time.Second,
		},
		NATS: NATSConfig{
			URL:             "nats://127.0.0.1:4222",
			ConnectTimeout:  5 * time.Second,
			EmbeddedServer:  true,
			Host:            "127.0.0.1",
			Port:            4222,
			StoreDir:        "/data/nats/jetstream",
			MaxMemory:       256 << 20,
			MaxStore:        1 << 30,
			Stream:          "LAKEKEEPER_EVENTS",
			MaxAge:          7 * 24 * time.Hour,
			DuplicateWindow: 2 * time.Minute,
		},
	}
}

// Load reads configuration from defaults, the optional config file and the
// environment, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// HTTP_PORT -> server.port; unmapped variables are ignored.
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed from comma-separated env values.
var sliceConfigPaths = []string{
	"security.cors_origins",
	"authz.anonymous_rules",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		var trimmed []string
		for _, p := range strings.Split(strVal, ",") {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

var envMappings = map[string]string{
	// Server
	"http_host":                  "server.host",
	"http_port":                  "server.port",
	"http_timeout":               "server.timeout",
	"http_shutdown_timeout":      "server.shutdown_timeout",
	"environment":                "server.environment",
	"lakekeeper_server_id":       "server.server_id",
	"lakekeeper_bootstrap_admin": "server.bootstrap_admin",

	// Security
	"jwt_secret":          "security.jwt_secret",
	"jwt_issuer":          "security.jwt_issuer",
	"jwt_audience":        "security.jwt_audience",
	"session_timeout":     "security.session_timeout",
	"id_prefix":           "security.id_prefix",
	"allow_anonymous":     "security.allow_anonymous",
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",
	"cors_origins":        "security.cors_origins",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	// Catalog
	"duckdb_path":         "catalog.path",
	"duckdb_threads":      "catalog.threads",
	"duckdb_max_memory":   "catalog.max_memory",
	"max_namespace_depth": "catalog.max_namespace_depth",
	"fetch_chunk_size":    "catalog.fetch_chunk_size",
	"cache_enabled":       "catalog.cache_enabled",
	"cache_ttl":           "catalog.cache_ttl",
	"cache_capacity":      "catalog.cache_capacity",

	// Tuple store
	"tuplestore_path":                  "tuplestore.path",
	"tuplestore_in_memory":             "tuplestore.in_memory",
	"tuplestore_max_depth":             "tuplestore.max_depth",
	"tuplestore_batch_check_size":      "tuplestore.batch_check_size",
	"tuplestore_max_tuples_per_write":  "tuplestore.max_tuples_per_write",
	"tuplestore_max_parallel_requests": "tuplestore.max_parallel_requests",
	"tuplestore_read_page_size":        "tuplestore.read_page_size",
	"tuplestore_requests_per_second":   "tuplestore.requests_per_second",
	"tuplestore_burst":                 "tuplestore.burst",
	"tuplestore_breaker_threshold":     "tuplestore.breaker_failure_threshold",
	"tuplestore_breaker_timeout":       "tuplestore.breaker_timeout",

	// Authz
	"anonymous_policy_path": "authz.anonymous_policy_path",
	"anonymous_rules":       "authz.anonymous_rules",
	"audit_enabled":         "authz.audit.enabled",
	"audit_log_allowed":     "authz.audit.log_allowed",
	"audit_log_denied":      "authz.audit.log_denied",
	"audit_sample_rate":     "authz.audit.sample_rate",
	"audit_buffer_size":     "authz.audit.buffer_size",

	"hook_retry_max_retries":     "authz.hook_retry.max_retries",
	"hook_retry_max_entries":     "authz.hook_retry.max_entries",
	"hook_retry_initial_backoff": "authz.hook_retry.initial_backoff",
	"hook_retry_max_backoff":     "authz.hook_retry.max_backoff",
	"hook_retry_interval":        "authz.hook_retry.interval",

	// Events
	"events_publisher":         "events.publisher",
	"events_topic":             "events.topic",
	"events_buffer_size":       "events.buffer_size",
	"events_breaker_threshold": "events.breaker_threshold",
	"events_breaker_timeout":   "events.breaker_timeout",

	// NATS
	"nats_url":              "nats.url",
	"nats_connect_timeout":  "nats.connect_timeout",
	"nats_embedded":         "nats.embedded_server",
	"nats_host":             "nats.host",
	"nats_port":             "nats.port",
	"nats_store_dir":        "nats.store_dir",
	"nats_max_memory":       "nats.max_memory",
	"nats_max_store":        "nats.max_store",
	"nats_stream":           "nats.stream",
	"nats_max_age":          "nats.max_age",
	"nats_duplicate_window": "nats.duplicate_window",
	"nats_memory_storage":   "nats.memory_storage",
}

func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
