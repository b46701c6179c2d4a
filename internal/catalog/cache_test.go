// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package catalog

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache(t *testing.T, ttl time.Duration, capacity int) (*versionedCache[string, string], *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := newVersionedCacheClock[string, string]("test", ttl, capacity, clock.Now)
	t.Cleanup(c.stop)
	return c, clock
}

func TestVersionedCacheKeepsNewest(t *testing.T) {
	c, _ := newTestCache(t, time.Hour, 0)

	if !c.set("k", "v2", 2) {
		t.Fatal("first set rejected")
	}
	if c.set("k", "v1", 1) {
		t.Error("older version replaced newer")
	}
	if !c.set("k", "v2b", 2) {
		t.Error("same version rejected")
	}
	v, version, ok := c.get("k")
	if !ok || v != "v2b" || version != 2 {
		t.Errorf("get = %q, %d, %v", v, version, ok)
	}

	c.put("k", "v0", 0)
	if v, _, _ := c.get("k"); v != "v0" {
		t.Errorf("put did not override: %q", v)
	}
}

func TestVersionedCacheExpiry(t *testing.T) {
	c, clock := newTestCache(t, time.Minute, 0)
	c.set("k", "new", 5)

	clock.Advance(2 * time.Minute)
	if _, _, ok := c.get("k"); ok {
		t.Error("expired entry returned")
	}
	if !c.set("k", "old", 1) {
		t.Error("expired newer entry blocked an older write")
	}
}

func TestVersionedCacheCapacity(t *testing.T) {
	c, clock := newTestCache(t, time.Minute, 2)
	c.set("a", "1", 1)
	c.set("b", "2", 1)
	clock.Advance(2 * time.Minute)
	c.set("c", "3", 1)

	if c.len() != 1 {
		t.Errorf("len = %d, want expired entries evicted", c.len())
	}

	c.set("d", "4", 1)
	c.set("e", "5", 1)
	if c.len() != 2 {
		t.Errorf("len = %d, want capacity 2", c.len())
	}
	if _, _, ok := c.get("e"); !ok {
		t.Error("newest entry evicted")
	}

	// Overwriting an existing key never evicts.
	c.set("e", "5b", 2)
	if c.len() != 2 {
		t.Errorf("len after overwrite = %d", c.len())
	}
}

func TestVersionedCacheInvalidate(t *testing.T) {
	c, _ := newTestCache(t, time.Hour, 0)
	c.set("a", "1", 1)
	c.set("b", "2", 1)

	c.invalidate("a")
	if _, _, ok := c.get("a"); ok {
		t.Error("invalidated entry returned")
	}
	c.clear()
	if c.len() != 0 {
		t.Errorf("len after clear = %d", c.len())
	}
}

func TestVersionedCacheStopIsIdempotent(t *testing.T) {
	c, _ := newTestCache(t, time.Hour, 0)
	c.stop()
	c.stop()
}

func TestCachePolicy(t *testing.T) {
	tests := []struct {
		name    string
		policy  CachePolicy
		version int64
		want    bool
		min     int64
		str     string
	}{
		{"use", Use, 1, true, 0, "use"},
		{"skip", Skip, 100, false, 0, "skip"},
		{"min below", RequireMinimumVersion(3), 2, false, 3, "min_version(3)"},
		{"min equal", RequireMinimumVersion(3), 3, true, 3, "min_version(3)"},
		{"min above", RequireMinimumVersion(3), 4, true, 3, "min_version(3)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.Accepts(tt.version); got != tt.want {
				t.Errorf("Accepts(%d) = %v, want %v", tt.version, got, tt.want)
			}
			if got := tt.policy.MinVersion(); got != tt.min {
				t.Errorf("MinVersion = %d, want %d", got, tt.min)
			}
			if got := tt.policy.String(); got != tt.str {
				t.Errorf("String = %q, want %q", got, tt.str)
			}
		})
	}
}
