// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package authz

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/timoguin/lakekeeper-sub000/internal/logging"
)

// AuditEvent is one authorization decision or business event as written to
// the audit log.
type AuditEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`

	// Actor is the rendered entity.Actor, e.g. "principal:oidc~abc".
	Actor string `json:"actor"`

	// Action is the catalog action ("create_table") or introspection
	// descriptor ("get_allowed_actions").
	Action string `json:"action"`

	// Object is the tuple object of the target.
	Object string `json:"object"`

	// Outcome is allowed, denied, cannot_see, or error.
	Outcome string `json:"outcome"`

	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"duration_ns,omitempty"`
}

// Allowed reports whether the event records a permitted action.
func (e *AuditEvent) Allowed() bool { return e.Outcome == Allowed.String() }

// AuditLoggerConfig configures the audit logger.
type AuditLoggerConfig struct {
	Enabled bool

	// LogAllowed controls whether allowed decisions are written.
	LogAllowed bool

	// LogDenied controls whether denials and errors are written.
	LogDenied bool

	// SampleRate is the fraction of allowed decisions to log (0.0 to 1.0).
	// Denials are never sampled.
	SampleRate float64

	// BufferSize is the async queue length. Events are dropped when full.
	BufferSize int
}

// DefaultAuditLoggerConfig returns production defaults.
func DefaultAuditLoggerConfig() *AuditLoggerConfig {
	return &AuditLoggerConfig{
		Enabled:    true,
		LogAllowed: true,
		LogDenied:  true,
		SampleRate: 1.0,
		BufferSize: 1000,
	}
}

// AuditLogger writes audit events asynchronously through zerolog.
type AuditLogger struct {
	config   *AuditLoggerConfig
	events   chan *AuditEvent
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewAuditLogger starts the background writer when enabled.
func NewAuditLogger(config *AuditLoggerConfig) *AuditLogger {
	if config == nil {
		config = DefaultAuditLoggerConfig()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 1000
	}
	if config.SampleRate <= 0 || config.SampleRate > 1.0 {
		config.SampleRate = 1.0
	}

	al := &AuditLogger{
		config:   config,
		events:   make(chan *AuditEvent, config.BufferSize),
		stopChan: make(chan struct{}),
	}
	if config.Enabled {
		al.wg.Add(1)
		go al.processEvents()
	}
	return al
}

// LogDecision queues an event. It never blocks; a full buffer drops the event.
func (al *AuditLogger) LogDecision(event *AuditEvent) {
	if al == nil || !al.config.Enabled || event == nil {
		return
	}
	if !al.shouldLog(event) {
		return
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case al.events <- event:
		RecordAuditEvent(event.Outcome)
		UpdateAuditBufferUsage(float64(len(al.events)) * 100 / float64(cap(al.events)))
	default:
		RecordAuditDropped()
		logging.Warn().
			Str("actor", event.Actor).
			Str("object", event.Object).
			Msg("Audit log buffer full, event dropped")
	}
}

func (al *AuditLogger) shouldLog(event *AuditEvent) bool {
	if !event.Allowed() {
		return al.config.LogDenied
	}
	if !al.config.LogAllowed {
		return false
	}
	if al.config.SampleRate < 1.0 && event.ID != "" {
		// Deterministic on the event id so retries sample the same way.
		if int(event.ID[len(event.ID)-1])%100 >= int(al.config.SampleRate*100) {
			return false
		}
	}
	return true
}

func (al *AuditLogger) processEvents() {
	defer al.wg.Done()
	for {
		select {
		case <-al.stopChan:
			al.drainEvents()
			return
		case event := <-al.events:
			al.writeEvent(event)
		}
	}
}

func (al *AuditLogger) drainEvents() {
	for {
		select {
		case event := <-al.events:
			al.writeEvent(event)
		default:
			return
		}
	}
}

func (al *AuditLogger) writeEvent(event *AuditEvent) {
	logEvent := logging.Info()
	msg := "Authorization allowed"
	if !event.Allowed() {
		logEvent = logging.Warn()
		msg = "Authorization denied"
	}

	logEvent = logEvent.
		Str("event_type", "authz_decision").
		Str("audit_id", event.ID).
		Time("audit_timestamp", event.Timestamp).
		Str("actor", event.Actor).
		Str("action", event.Action).
		Str("object", event.Object).
		Str("outcome", event.Outcome)
	if event.RequestID != "" {
		logEvent = logEvent.Str("request_id", event.RequestID)
	}
	if event.Reason != "" {
		logEvent = logEvent.Str("reason", event.Reason)
	}
	if event.Duration > 0 {
		logEvent = logEvent.Dur("duration", event.Duration)
	}
	logEvent.Msg(msg)
}

// Close stops the writer after flushing queued events. Safe to call twice.
func (al *AuditLogger) Close() {
	if al == nil {
		return
	}
	al.stopOnce.Do(func() {
		close(al.stopChan)
	})
	al.wg.Wait()
}

// Stats returns current audit logger statistics.
func (al *AuditLogger) Stats() AuditLoggerStats {
	if al == nil {
		return AuditLoggerStats{}
	}
	return AuditLoggerStats{
		BufferSize: al.config.BufferSize,
		BufferUsed: len(al.events),
		Enabled:    al.config.Enabled,
		LogAllowed: al.config.LogAllowed,
		LogDenied:  al.config.LogDenied,
		SampleRate: al.config.SampleRate,
	}
}

// AuditLoggerStats provides statistics about the audit logger.
type AuditLoggerStats struct {
	BufferSize int     `json:"buffer_size"`
	BufferUsed int     `json:"buffer_used"`
	Enabled    bool    `json:"enabled"`
	LogAllowed bool    `json:"log_allowed"`
	LogDenied  bool    `json:"log_denied"`
	SampleRate float64 `json:"sample_rate"`
}
