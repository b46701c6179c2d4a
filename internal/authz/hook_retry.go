// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package authz

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/timoguin/lakekeeper-sub000/internal/logging"
	"github.com/timoguin/lakekeeper-sub000/internal/tuplestore"
)

// HookRetryConfig tunes the out-of-band retry of failed lifecycle hooks.
type HookRetryConfig struct {
	// MaxRetries is the number of background attempts before an entry is
	// dropped.
	MaxRetries int

	// MaxEntries bounds the queue. The oldest failure is evicted first.
	MaxEntries int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// Interval is how often the worker looks for due entries.
	Interval time.Duration

	// AttemptTimeout bounds a single retry.
	AttemptTimeout time.Duration

	// RandomSeed fixes the jitter for tests. Zero is time based.
	RandomSeed int64
}

// DefaultHookRetryConfig returns 8 retries, 1s to 5m backoff, checked every second.
func DefaultHookRetryConfig() HookRetryConfig {
	return HookRetryConfig{
		MaxRetries:     8,
		MaxEntries:     10000,
		InitialBackoff: time.Second,
		MaxBackoff:     5 * time.Minute,
		Interval:       time.Second,
		AttemptTimeout: 10 * time.Second,
	}
}

func (c HookRetryConfig) withDefaults() HookRetryConfig {
	d := DefaultHookRetryConfig()
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = d.MaxEntries
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = max(d.MaxBackoff, c.InitialBackoff)
	}
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = d.AttemptTimeout
	}
	return c
}

// PendingHook describes a queued graph mutation.
type PendingHook struct {
	Hook         string
	Object       string
	Attempts     int
	LastError    string
	FirstFailure time.Time
	NextRetry    time.Time
}

type hookEntry struct {
	PendingHook
	run func(ctx context.Context) error
}

// HookRetrier holds lifecycle hook mutations whose graph write failed after
// the metadata change committed, and re-drives them in the background. At
// most one entry exists per object; the latest hook for an object replaces
// an older one, and any successful hook on the object clears it.
type HookRetrier struct {
	cfg     HookRetryConfig
	backoff *tuplestore.RetryPolicy
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*hookEntry
}

// NewHookRetrier creates an empty queue.
func NewHookRetrier(cfg HookRetryConfig) *HookRetrier {
	cfg = cfg.withDefaults()
	backoff := tuplestore.NewRetryPolicyWithSeed(cfg.RandomSeed)
	backoff.MaxAttempts = cfg.MaxRetries
	backoff.InitialBackoff = cfg.InitialBackoff
	backoff.MaxBackoff = cfg.MaxBackoff
	backoff.JitterFraction = 0.1
	return &HookRetrier{
		cfg:     cfg,
		backoff: backoff,
		now:     time.Now,
		entries: make(map[string]*hookEntry),
	}
}

// retryable reports whether a failed hook can succeed later. A tuple the
// model rejects never will.
func retryable(err error) bool {
	return !errors.Is(err, tuplestore.ErrInvalidTuple)
}

func (r *HookRetrier) enqueue(hook, object string, run func(ctx context.Context) error, cause error) {
	now := r.now()
	entry := &hookEntry{
		PendingHook: PendingHook{
			Hook:         hook,
			Object:       object,
			LastError:    cause.Error(),
			FirstFailure: now,
			NextRetry:    now.Add(r.backoff.Backoff(0)),
		},
		run: run,
	}

	r.mu.Lock()
	if _, ok := r.entries[object]; !ok && len(r.entries) >= r.cfg.MaxEntries {
		r.evictOldestLocked()
	}
	r.entries[object] = entry
	pending := len(r.entries)
	r.mu.Unlock()

	RecordHookRetry(hook, "queued")
	SetHookRetryPending(pending)
}

func (r *HookRetrier) evictOldestLocked() {
	var oldest *hookEntry
	for _, e := range r.entries {
		if oldest == nil || e.FirstFailure.Before(oldest.FirstFailure) {
			oldest = e
		}
	}
	if oldest == nil {
		return
	}
	delete(r.entries, oldest.Object)
	RecordHookRetry(oldest.Hook, "evicted")
	logging.Error().
		Str("hook", oldest.Hook).
		Str("object", oldest.Object).
		Msg("Hook retry queue full; dropped oldest pending graph update")
}

// forget drops the pending entry for object, if any.
func (r *HookRetrier) forget(object string) {
	r.mu.Lock()
	delete(r.entries, object)
	pending := len(r.entries)
	r.mu.Unlock()
	SetHookRetryPending(pending)
}

// Pending returns a snapshot of the queue.
func (r *HookRetrier) Pending() []PendingHook {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PendingHook, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.PendingHook)
	}
	return out
}

// RetryDue runs every entry whose backoff has elapsed and returns how many
// succeeded.
func (r *HookRetrier) RetryDue(ctx context.Context) int {
	now := r.now()
	r.mu.Lock()
	var due []*hookEntry
	for _, e := range r.entries {
		if !e.NextRetry.After(now) {
			due = append(due, e)
		}
	}
	r.mu.Unlock()

	succeeded := 0
	for _, e := range due {
		if ctx.Err() != nil {
			break
		}
		if r.attempt(ctx, e) {
			succeeded++
		}
	}
	return succeeded
}

func (r *HookRetrier) attempt(ctx context.Context, e *hookEntry) bool {
	attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.AttemptTimeout)
	err := e.run(attemptCtx)
	cancel()

	r.mu.Lock()
	defer func() {
		pending := len(r.entries)
		r.mu.Unlock()
		SetHookRetryPending(pending)
	}()

	// A newer hook for the same object replaced this entry meanwhile.
	if r.entries[e.Object] != e {
		return err == nil
	}

	if err == nil {
		delete(r.entries, e.Object)
		RecordHookRetry(e.Hook, "recovered")
		logging.Info().
			Str("hook", e.Hook).
			Str("object", e.Object).
			Int("attempts", e.Attempts+1).
			Msg("Authorization graph update recovered")
		return true
	}

	e.Attempts++
	e.LastError = err.Error()
	if e.Attempts >= r.cfg.MaxRetries || !retryable(err) {
		delete(r.entries, e.Object)
		RecordHookRetry(e.Hook, "dropped")
		logging.Error().
			Err(err).
			Str("hook", e.Hook).
			Str("object", e.Object).
			Int("attempts", e.Attempts).
			Time("first_failure", e.FirstFailure).
			Msg("Giving up on authorization graph update; object needs manual repair")
		return false
	}
	e.NextRetry = r.now().Add(r.backoff.Backoff(e.Attempts))
	RecordHookRetry(e.Hook, "failed")
	logging.Warn().
		Err(err).
		Str("hook", e.Hook).
		Str("object", e.Object).
		Int("attempts", e.Attempts).
		Time("next_retry", e.NextRetry).
		Msg("Authorization graph update retry failed")
	return false
}

// Serve implements suture.Service. Entries still pending at shutdown are
// lost; the hooks are idempotent, so the caller may replay them.
func (r *HookRetrier) Serve(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if n := len(r.Pending()); n > 0 {
				logging.Warn().Int("pending", n).Msg("Hook retry worker stopping with pending graph updates")
			}
			return ctx.Err()
		case <-ticker.C:
			r.RetryDue(ctx)
		}
	}
}

func (r *HookRetrier) String() string { return "authz-hook-retry" }
