// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package tuplestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/timoguin/lakekeeper-sub000/internal/logging"
	"github.com/timoguin/lakekeeper-sub000/internal/metrics"
)

// Config holds client tuning.
type Config struct {
	BatchCheckSize      int
	MaxTuplesPerWrite   int
	MaxParallelRequests int
	ReadPageSize        int

	// RequestsPerSecond limits backend calls. Zero disables the limit.
	RequestsPerSecond float64
	Burst             int

	Breaker BreakerConfig
}

// BreakerConfig configures the circuit breaker around backend calls.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BatchCheckSize:      50,
		MaxTuplesPerWrite:   100,
		MaxParallelRequests: 10,
		ReadPageSize:        100,
		Breaker: BreakerConfig{
			Name:             "tuplestore",
			MaxRequests:      3,
			Interval:         time.Minute,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
		},
	}
}

// Client is the only path from the engine to a Backend.
type Client struct {
	backend Backend
	cfg     Config
	breaker *gobreaker.CircuitBreaker[any]
	limiter *rate.Limiter
	retry   *RetryPolicy
	sleep   func(context.Context, time.Duration) error
}

// NewClient wraps a backend. Zero config fields take DefaultConfig values.
func NewClient(backend Backend, cfg Config) *Client {
	def := DefaultConfig()
	if cfg.BatchCheckSize <= 0 {
		cfg.BatchCheckSize = def.BatchCheckSize
	}
	if cfg.MaxTuplesPerWrite <= 0 {
		cfg.MaxTuplesPerWrite = def.MaxTuplesPerWrite
	}
	if cfg.MaxParallelRequests <= 0 {
		cfg.MaxParallelRequests = def.MaxParallelRequests
	}
	if cfg.ReadPageSize <= 0 {
		cfg.ReadPageSize = def.ReadPageSize
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker = def.Breaker
	}

	c := &Client{
		backend: backend,
		cfg:     cfg,
		retry:   DefaultRetryPolicy(),
		sleep:   sleepCtx,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = int(cfg.RequestsPerSecond)
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	c.breaker = newBreaker(cfg.Breaker)
	return c
}

// WithRetryPolicy replaces the write retry policy.
func (c *Client) WithRetryPolicy(p *RetryPolicy) *Client {
	c.retry = p
	return c
}

func newBreaker(cfg BreakerConfig) *gobreaker.CircuitBreaker[any] {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Only transport failures count against the backend.
		IsSuccessful: func(err error) bool {
			return err == nil || !IsBackendError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetBreakerState(name, int(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Tuple store circuit breaker changed state")
		},
	}
	return gobreaker.NewCircuitBreaker[any](settings)
}

// call runs one backend operation through the limiter and breaker.
func (c *Client) call(ctx context.Context, op string, fn func() (any, error)) (any, error) {
	start := time.Now()
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			metrics.RecordTupleStoreRequest(op, "error", time.Since(start))
			return nil, err
		}
	}
	out, err := c.breaker.Execute(fn)
	outcome := "ok"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		outcome = "breaker_open"
		err = &BackendError{Op: op, Err: err}
	case err != nil:
		outcome = "error"
	}
	metrics.RecordTupleStoreRequest(op, outcome, time.Since(start))
	return out, err
}

// Check evaluates a single tuple.
func (c *Client) Check(ctx context.Context, tuple TupleKey) (bool, error) {
	out, err := c.call(ctx, "check", func() (any, error) {
		return c.backend.Check(ctx, tuple)
	})
	if err != nil {
		return false, fmt.Errorf("check %s: %w", tuple, err)
	}
	return out.(bool), nil
}

// BatchCheck evaluates tuples and returns decisions in input order. Chunks
// run in parallel; the first failing chunk cancels the rest.
func (c *Client) BatchCheck(ctx context.Context, tuples []TupleKey) ([]bool, error) {
	results := make([]bool, len(tuples))
	if len(tuples) == 0 {
		return results, nil
	}
	metrics.TupleStoreBatchItems.Observe(float64(len(tuples)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxParallelRequests)

	for start := 0; start < len(tuples); start += c.cfg.BatchCheckSize {
		end := min(start+c.cfg.BatchCheckSize, len(tuples))
		g.Go(func() error {
			return c.batchChunk(gctx, tuples[start:end], results[start:end])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Client) batchChunk(ctx context.Context, tuples []TupleKey, dst []bool) error {
	items := make([]CheckItem, len(tuples))
	for i, t := range tuples {
		items[i] = CheckItem{Tuple: t, CorrelationID: uuid.NewString()}
	}
	out, err := c.call(ctx, "batch_check", func() (any, error) {
		return c.backend.BatchCheck(ctx, items)
	})
	if err != nil {
		return fmt.Errorf("batch check: %w", err)
	}
	decisions := out.(map[string]bool)
	for i, item := range items {
		allowed, ok := decisions[item.CorrelationID]
		if !ok {
			return fmt.Errorf("%w: missing result for %s", ErrAssemble, item.Tuple)
		}
		dst[i] = allowed
	}
	return nil
}

// Read returns one page of tuples matching key.
func (c *Client) Read(ctx context.Context, key ReadKey, pageSize int, continuation string) (ReadPage, error) {
	if pageSize <= 0 {
		pageSize = c.cfg.ReadPageSize
	}
	out, err := c.call(ctx, "read", func() (any, error) {
		return c.backend.Read(ctx, key, pageSize, continuation)
	})
	if err != nil {
		return ReadPage{}, fmt.Errorf("read: %w", err)
	}
	return out.(ReadPage), nil
}

// ReadAll drains every page for key.
func (c *Client) ReadAll(ctx context.Context, key ReadKey) ([]TupleKey, error) {
	var (
		all   []TupleKey
		token string
	)
	for {
		page, err := c.Read(ctx, key, c.cfg.ReadPageSize, token)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Tuples...)
		if page.Continuation == "" {
			return all, nil
		}
		token = page.Continuation
	}
}

// Write applies writes and deletes in chunks of MaxTuplesPerWrite. Each
// chunk is its own backend transaction and is retried on
// ErrConcurrentUpdate. Deletes are placed before writes.
func (c *Client) Write(ctx context.Context, writes, deletes []TupleKey) error {
	if len(writes) == 0 && len(deletes) == 0 {
		return nil
	}
	size := c.cfg.MaxTuplesPerWrite
	total := len(writes) + len(deletes)
	for start := 0; start < total; start += size {
		end := min(start+size, total)
		var w, d []TupleKey
		for i := start; i < end; i++ {
			if i < len(deletes) {
				d = append(d, deletes[i])
			} else {
				w = append(w, writes[i-len(deletes)])
			}
		}
		if err := c.writeChunk(ctx, w, d); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) writeChunk(ctx context.Context, writes, deletes []TupleKey) error {
	var err error
	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			metrics.TupleStoreRetries.Inc()
			if serr := c.sleep(ctx, c.retry.Backoff(attempt-1)); serr != nil {
				return serr
			}
		}
		_, err = c.call(ctx, "write", func() (any, error) {
			return nil, c.backend.Write(ctx, writes, deletes)
		})
		if err == nil || !errors.Is(err, ErrConcurrentUpdate) {
			break
		}
		logging.Debug().
			Int("attempt", attempt+1).
			Int("writes", len(writes)).
			Int("deletes", len(deletes)).
			Msg("Tuple write lost a concurrent update")
	}
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}
