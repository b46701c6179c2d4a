// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTreeConfigDefaults(t *testing.T) {
	tree, err := NewSupervisorTree(quietLogger(), TreeConfig{FailureBackoff: time.Second})
	if err != nil {
		t.Fatalf("NewSupervisorTree: %v", err)
	}
	if tree.Root() == nil {
		t.Fatal("root supervisor should not be nil")
	}

	def := DefaultTreeConfig()
	if tree.config.FailureThreshold != def.FailureThreshold || tree.config.FailureDecay != def.FailureDecay {
		t.Errorf("failure tuning = %v/%v", tree.config.FailureThreshold, tree.config.FailureDecay)
	}
	if tree.config.FailureBackoff != time.Second {
		t.Errorf("explicit FailureBackoff overwritten: %v", tree.config.FailureBackoff)
	}
	if tree.config.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v", tree.config.ShutdownTimeout)
	}
}

func TestTreeStartsEveryLayer(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})

	data := newMockService("data")
	messaging := newMockService("messaging")
	api := newMockService("api")
	tree.AddDataService(data)
	tree.AddMessagingService(messaging)
	tree.AddAPIService(api)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)
	time.Sleep(100 * time.Millisecond)

	for _, svc := range []*mockService{data, messaging, api} {
		if svc.starts() < 1 {
			t.Errorf("%s service was not started", svc)
		}
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tree did not shut down in time")
	}
	if report, err := tree.UnstoppedServiceReport(); err != nil || len(report) != 0 {
		t.Errorf("unstopped services: %v, %v", report, err)
	}
}

func TestTreeRestartsFailingService(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})

	failing := newMockService("failing")
	failing.setFailCount(2)
	stable := newMockService("stable")
	tree.AddMessagingService(failing)
	tree.AddAPIService(stable)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	go func() { _ = tree.Serve(ctx) }()
	time.Sleep(200 * time.Millisecond)

	if failing.starts() < 3 {
		t.Errorf("failing service started %d times, want at least 3", failing.starts())
	}
	if stable.starts() != 1 {
		t.Errorf("stable service started %d times, want 1", stable.starts())
	}
}
