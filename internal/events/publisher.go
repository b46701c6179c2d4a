// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/timoguin/lakekeeper-sub000/internal/logging"
	"github.com/timoguin/lakekeeper-sub000/internal/metrics"
)

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("publisher is closed")

// PublisherConfig configures a PublisherSink.
type PublisherConfig struct {
	Topic string

	// BreakerThreshold is the number of consecutive failures that open the
	// breaker. Zero disables the breaker.
	BreakerThreshold uint32
	BreakerTimeout   time.Duration
}

// PublisherSink publishes events as JSON messages on one topic.
type PublisherSink struct {
	pub     message.Publisher
	topic   string
	breaker *gobreaker.CircuitBreaker[any]

	mu     sync.RWMutex
	closed bool
}

// NewPublisherSink takes ownership of pub; Close closes it.
func NewPublisherSink(pub message.Publisher, cfg PublisherConfig) *PublisherSink {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	s := &PublisherSink{pub: pub, topic: cfg.Topic}
	if cfg.BreakerThreshold > 0 {
		threshold := cfg.BreakerThreshold
		s.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
			Name:    "event-publisher",
			Timeout: cfg.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				metrics.SetBreakerState(name, int(to))
				logging.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("Event publisher circuit breaker changed state")
			},
		})
	}
	return s
}

func (s *PublisherSink) Name() string { return "publisher" }

// Topic returns the topic messages are published on.
func (s *PublisherSink) Topic() string { return s.topic }

func (s *PublisherSink) Authorization(ctx context.Context, e *AuthorizationEvent) error {
	return s.publish(ctx, KindAuthorization, e.EventID, e.RequestID, e)
}

func (s *PublisherSink) Business(ctx context.Context, e *BusinessEvent) error {
	return s.publish(ctx, KindBusiness, e.EventID, e.RequestID, e)
}

func (s *PublisherSink) publish(ctx context.Context, kind, id, requestID string, payload any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrPublisherClosed
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", kind, err)
	}
	msg := message.NewMessage(id, data)
	msg.SetContext(ctx)
	msg.Metadata.Set("event_type", kind)
	if requestID != "" {
		msg.Metadata.Set("request_id", requestID)
	}
	// JetStream drops duplicates of the same id within its window.
	msg.Metadata.Set(natsgo.MsgIdHdr, id)

	if s.breaker == nil {
		return s.pub.Publish(s.topic, msg)
	}
	_, err = s.breaker.Execute(func() (any, error) {
		return nil, s.pub.Publish(s.topic, msg)
	})
	return err
}

// Close stops publishing and closes the underlying publisher. Safe to call
// twice.
func (s *PublisherSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.pub.Close()
}

// NewChannelPublisher returns an in-process pubsub for single-node mode and
// tests. Messages published without a subscriber are discarded.
func NewChannelPublisher(bufferSize int64) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: bufferSize}, WatermillLogger())
}

// WatermillLogger routes watermill logs through the global logger.
func WatermillLogger() watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logging.NewComponentSlogLogger("watermill"))
}
