// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package authz

import (
	"sync"
	"testing"
)

func TestNewAuditLogger(t *testing.T) {
	t.Run("nil config uses defaults", func(t *testing.T) {
		logger := NewAuditLogger(nil)
		defer logger.Close()

		if !logger.config.Enabled || !logger.config.LogAllowed || !logger.config.LogDenied {
			t.Errorf("unexpected defaults: %+v", logger.config)
		}
		if logger.config.SampleRate != 1.0 {
			t.Errorf("expected sample_rate=1.0, got %f", logger.config.SampleRate)
		}
	})

	t.Run("invalid values are clamped", func(t *testing.T) {
		logger := NewAuditLogger(&AuditLoggerConfig{Enabled: true, BufferSize: -1, SampleRate: 2.0})
		defer logger.Close()

		if logger.config.BufferSize != 1000 {
			t.Errorf("expected buffer_size=1000, got %d", logger.config.BufferSize)
		}
		if logger.config.SampleRate != 1.0 {
			t.Errorf("expected sample_rate=1.0, got %f", logger.config.SampleRate)
		}
	})
}

func TestAuditLoggerShouldLog(t *testing.T) {
	tests := []struct {
		name   string
		config AuditLoggerConfig
		event  AuditEvent
		want   bool
	}{
		{"allowed logged", AuditLoggerConfig{LogAllowed: true, SampleRate: 1}, AuditEvent{Outcome: "allowed"}, true},
		{"allowed suppressed", AuditLoggerConfig{LogDenied: true, SampleRate: 1}, AuditEvent{Outcome: "allowed"}, false},
		{"denied logged", AuditLoggerConfig{LogDenied: true, SampleRate: 1}, AuditEvent{Outcome: "denied"}, true},
		{"cannot see counts as denied", AuditLoggerConfig{LogDenied: true}, AuditEvent{Outcome: "cannot_see"}, true},
		{"denied suppressed", AuditLoggerConfig{LogAllowed: true, SampleRate: 1}, AuditEvent{Outcome: "denied"}, false},
		{"denials never sampled", AuditLoggerConfig{LogDenied: true, SampleRate: 0.01}, AuditEvent{ID: "zzzz", Outcome: "denied"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			al := &AuditLogger{config: &tt.config}
			if got := al.shouldLog(&tt.event); got != tt.want {
				t.Errorf("shouldLog = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAuditLoggerDisabled(t *testing.T) {
	logger := NewAuditLogger(&AuditLoggerConfig{Enabled: false, BufferSize: 4})
	defer logger.Close()

	logger.LogDecision(&AuditEvent{Outcome: "denied"})
	if got := logger.Stats().BufferUsed; got != 0 {
		t.Errorf("disabled logger queued %d events", got)
	}
}

func TestAuditLoggerNilSafe(t *testing.T) {
	var logger *AuditLogger
	logger.LogDecision(&AuditEvent{Outcome: "allowed"})
	logger.Close()
	if s := logger.Stats(); s.Enabled {
		t.Error("nil logger reports enabled")
	}
}

func TestAuditLoggerFillsIDAndTimestamp(t *testing.T) {
	logger := NewAuditLogger(&AuditLoggerConfig{Enabled: true, LogAllowed: true, LogDenied: true, BufferSize: 10})
	ev := &AuditEvent{Actor: "principal:u", Action: "get_metadata", Object: "warehouse:x", Outcome: "allowed"}
	logger.LogDecision(ev)
	logger.Close()

	if ev.ID == "" {
		t.Error("expected generated id")
	}
	if ev.Timestamp.IsZero() {
		t.Error("expected timestamp")
	}
}

func TestAuditLoggerDropsWhenFull(t *testing.T) {
	// Not started, so nothing drains the buffer.
	logger := NewAuditLogger(&AuditLoggerConfig{Enabled: false, LogAllowed: true, LogDenied: true, BufferSize: 2})
	logger.config.Enabled = true

	before := getCounterValue(AuthzAuditDroppedTotal)
	for i := 0; i < 5; i++ {
		logger.LogDecision(&AuditEvent{Outcome: "denied"})
	}
	if got := getCounterValue(AuthzAuditDroppedTotal) - before; got != 3 {
		t.Errorf("dropped = %v, want 3", got)
	}
	if got := logger.Stats().BufferUsed; got != 2 {
		t.Errorf("buffer used = %d, want 2", got)
	}
}

func TestAuditLoggerConcurrent(t *testing.T) {
	logger := NewAuditLogger(&AuditLoggerConfig{Enabled: true, LogAllowed: true, LogDenied: true, BufferSize: 100})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				logger.LogDecision(&AuditEvent{Outcome: "allowed"})
			}
		}()
	}
	wg.Wait()
	logger.Close()
	logger.Close()

	if got := logger.Stats().BufferUsed; got != 0 {
		t.Errorf("events left after close: %d", got)
	}
}
