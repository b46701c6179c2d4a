// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package tuplestore

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// RetryPolicy is a jittered exponential backoff for ErrConcurrentUpdate.
type RetryPolicy struct {
	// MaxAttempts counts the first try.
	MaxAttempts int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// JitterFraction scales the random +/- jitter (0.0-1.0).
	JitterFraction float64

	rng   *rand.Rand
	rngMu sync.Mutex
}

// DefaultRetryPolicy returns 3 attempts, 50ms base, 3.2s cap, 50% jitter.
func DefaultRetryPolicy() *RetryPolicy {
	return NewRetryPolicyWithSeed(0)
}

// NewRetryPolicyWithSeed creates the default policy with a fixed jitter seed.
// A zero seed is time based.
func NewRetryPolicyWithSeed(seed int64) *RetryPolicy {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     3200 * time.Millisecond,
		JitterFraction: 0.5,
		//nolint:gosec // G404: jitter only
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Backoff returns the wait before retry number n (0-based).
func (p *RetryPolicy) Backoff(n int) time.Duration {
	backoff := float64(p.InitialBackoff) * math.Pow(2, float64(n))
	if backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}

	p.rngMu.Lock()
	var r float64
	if p.rng != nil {
		r = p.rng.Float64()
	} else {
		r = rand.Float64() //nolint:gosec // G404: jitter only
	}
	p.rngMu.Unlock()

	jitter := backoff * p.JitterFraction * (r*2 - 1)
	return time.Duration(backoff + jitter)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
