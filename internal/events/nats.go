// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSConfig configures the JetStream publisher and its stream.
type NATSConfig struct {
	URL             string
	Stream          string
	MaxAge          time.Duration
	DuplicateWindow time.Duration
	MemoryStorage   bool
	ConnectTimeout  time.Duration
}

// StreamManager is the subset of jetstream.JetStream used by EnsureStream.
type StreamManager interface {
	Stream(ctx context.Context, name string) (jetstream.Stream, error)
	CreateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
	UpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
}

// StreamConfig returns the stream definition that captures topic and its
// sub-subjects.
func (c NATSConfig) StreamConfig(topic string) jetstream.StreamConfig {
	storage := jetstream.FileStorage
	if c.MemoryStorage {
		storage = jetstream.MemoryStorage
	}
	return jetstream.StreamConfig{
		Name:       c.Stream,
		Subjects:   []string{topic, topic + ".>"},
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     c.MaxAge,
		Duplicates: c.DuplicateWindow,
		Storage:    storage,
		Discard:    jetstream.DiscardOld,
	}
}

// EnsureStream creates the stream or updates it in place. Idempotent.
func EnsureStream(ctx context.Context, js StreamManager, cfg jetstream.StreamConfig) error {
	_, err := js.Stream(ctx, cfg.Name)
	switch {
	case err == nil:
		if _, err := js.UpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("update stream %s: %w", cfg.Name, err)
		}
		return nil
	case errors.Is(err, jetstream.ErrStreamNotFound):
		if _, err := js.CreateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		return nil
	}
	return fmt.Errorf("check stream %s: %w", cfg.Name, err)
}

// NewNATSPublisher provisions the stream for topic and returns a JetStream
// publisher with message-id deduplication.
func NewNATSPublisher(ctx context.Context, cfg NATSConfig, topic string) (message.Publisher, error) {
	logger := WatermillLogger()
	natsOpts := []natsgo.Option{
		natsgo.Name("lakekeeper-events"),
		natsgo.Timeout(cfg.ConnectTimeout),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	nc, err := natsgo.Connect(cfg.URL, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("open JetStream: %w", err)
	}
	err = EnsureStream(ctx, js, cfg.StreamConfig(topic))
	nc.Close()
	if err != nil {
		return nil, err
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: false,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}
	return pub, nil
}
