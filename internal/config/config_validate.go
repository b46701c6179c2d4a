// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateSecurity,
		c.validateLogging,
		c.validateCatalog,
		c.validateTupleStore,
		c.validateAudit,
		c.validateHookRetry,
		c.validateEvents,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if _, err := uuid.Parse(c.Server.ServerID); err != nil {
		return fmt.Errorf("LAKEKEEPER_SERVER_ID must be a UUID: %w", err)
	}
	if c.Server.BootstrapAdmin != "" && strings.TrimSpace(c.Server.BootstrapAdmin) == "" {
		return fmt.Errorf("LAKEKEEPER_BOOTSTRAP_ADMIN must not be blank")
	}
	return nil
}

const minJWTSecretLength = 32

// Rate limit bounds.
const (
	minRateLimitRequests = 1
	maxRateLimitRequests = 100000
	minRateLimitWindow   = time.Second
	maxRateLimitWindow   = time.Hour
)

func (c *Config) validateSecurity() error {
	s := c.Security
	if s.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(s.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", minJWTSecretLength)
	}
	if containsPlaceholder(s.JWTSecret) {
		return fmt.Errorf("JWT_SECRET contains a placeholder value - generate one with: openssl rand -base64 32")
	}
	if s.SessionTimeout <= 0 {
		return fmt.Errorf("SESSION_TIMEOUT must be positive")
	}
	if strings.ContainsAny(s.IDPrefix, "~:/") {
		return fmt.Errorf("ID_PREFIX must not contain '~', ':' or '/'")
	}
	if c.IsProduction() && s.AllowAnonymous && slices.Contains(s.CORSOrigins, "*") {
		return fmt.Errorf("CORS_ORIGINS=* is not allowed in production with ALLOW_ANONYMOUS=true")
	}
	if s.RateLimitDisabled {
		return nil
	}
	if s.RateLimitReqs < minRateLimitRequests || s.RateLimitReqs > maxRateLimitRequests {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be between %d and %d", minRateLimitRequests, maxRateLimitRequests)
	}
	if s.RateLimitWindow < minRateLimitWindow || s.RateLimitWindow > maxRateLimitWindow {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be between %v and %v", minRateLimitWindow, maxRateLimitWindow)
	}
	return nil
}

var placeholders = []string{"changeme", "change_me", "replace_me", "your_secret", "placeholder"}

func containsPlaceholder(v string) bool {
	lower := strings.ToLower(v)
	for _, p := range placeholders {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

var (
	validLogLevels  = []string{"trace", "debug", "info", "warn", "error", "fatal", "panic"}
	validLogFormats = []string{"json", "console"}
)

func (c *Config) validateLogging() error {
	if !slices.Contains(validLogLevels, strings.ToLower(c.Logging.Level)) {
		return fmt.Errorf("LOG_LEVEL must be one of: %s", strings.Join(validLogLevels, ", "))
	}
	if !slices.Contains(validLogFormats, strings.ToLower(c.Logging.Format)) {
		return fmt.Errorf("LOG_FORMAT must be one of: %s", strings.Join(validLogFormats, ", "))
	}
	return nil
}

func (c *Config) validateCatalog() error {
	if c.Catalog.MaxNamespaceDepth < 1 {
		return fmt.Errorf("MAX_NAMESPACE_DEPTH must be at least 1")
	}
	if c.Catalog.FetchChunkSize < 1 {
		return fmt.Errorf("FETCH_CHUNK_SIZE must be at least 1")
	}
	if c.Catalog.CacheEnabled && (c.Catalog.CacheTTL <= 0 || c.Catalog.CacheCapacity < 1) {
		return fmt.Errorf("CACHE_TTL and CACHE_CAPACITY must be positive when the cache is enabled")
	}
	return nil
}

func (c *Config) validateTupleStore() error {
	t := c.TupleStore
	if !t.InMemory && t.Path == "" {
		return fmt.Errorf("TUPLESTORE_PATH is required unless TUPLESTORE_IN_MEMORY=true")
	}
	if t.BatchCheckSize < 1 || t.MaxTuplesPerWrite < 1 || t.MaxParallelRequests < 1 || t.ReadPageSize < 1 {
		return fmt.Errorf("tuple store batch, write, parallelism and page sizes must be positive")
	}
	if t.RequestsPerSecond < 0 {
		return fmt.Errorf("TUPLESTORE_REQUESTS_PER_SECOND must not be negative")
	}
	return nil
}

func (c *Config) validateAudit() error {
	if r := c.Authz.Audit.SampleRate; r < 0 || r > 1 {
		return fmt.Errorf("AUDIT_SAMPLE_RATE must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateHookRetry() error {
	h := c.Authz.HookRetry
	if h.MaxRetries < 1 {
		return fmt.Errorf("HOOK_RETRY_MAX_RETRIES must be at least 1")
	}
	if h.MaxEntries < 1 {
		return fmt.Errorf("HOOK_RETRY_MAX_ENTRIES must be at least 1")
	}
	if h.InitialBackoff <= 0 || h.MaxBackoff < h.InitialBackoff {
		return fmt.Errorf("HOOK_RETRY_MAX_BACKOFF must be at least HOOK_RETRY_INITIAL_BACKOFF, which must be positive")
	}
	if h.Interval <= 0 {
		return fmt.Errorf("HOOK_RETRY_INTERVAL must be positive")
	}
	return nil
}

func (c *Config) validateEvents() error {
	switch c.Events.Publisher {
	case PublisherNone, PublisherChannel:
	case PublisherNATS:
		if c.NATS.URL == "" && !c.NATS.EmbeddedServer {
			return fmt.Errorf("NATS_URL is required when EVENTS_PUBLISHER=nats")
		}
		if c.NATS.Stream == "" || strings.ContainsAny(c.NATS.Stream, ". *>") {
			return fmt.Errorf("NATS_STREAM must be set and must not contain '.', '*', '>' or spaces")
		}
		if c.NATS.EmbeddedServer && (c.NATS.Port < 1 || c.NATS.Port > 65535) {
			return fmt.Errorf("NATS_PORT must be between 1 and 65535")
		}
	default:
		return fmt.Errorf("EVENTS_PUBLISHER must be one of: none, channel, nats")
	}
	if c.Events.Publisher != PublisherNone && c.Events.Topic == "" {
		return fmt.Errorf("EVENTS_TOPIC is required when events are published")
	}
	return nil
}

// IsProduction reports whether ENVIRONMENT is production.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Server.Environment)
	return env == "production" || env == "prod"
}

// ShouldWarnAboutCORS reports a wildcard CORS origin.
func (c *Config) ShouldWarnAboutCORS() bool {
	return slices.Contains(c.Security.CORSOrigins, "*")
}
