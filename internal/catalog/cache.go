// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package catalog

import (
	"sync"
	"time"

	"github.com/timoguin/lakekeeper-sub000/internal/metrics"
)

// versionedCache is a TTL map whose entries carry a row version. A write
// never replaces an unexpired entry with an older version.
type versionedCache[K comparable, V any] struct {
	name     string
	ttl      time.Duration
	capacity int
	now      func() time.Time

	mu       sync.RWMutex
	items    map[K]*versionedItem[V]
	stopChan chan struct{}
	stopOnce sync.Once
}

type versionedItem[V any] struct {
	value     V
	version   int64
	expiresAt time.Time
}

func newVersionedCache[K comparable, V any](name string, ttl time.Duration, capacity int) *versionedCache[K, V] {
	return newVersionedCacheClock[K, V](name, ttl, capacity, time.Now)
}

func newVersionedCacheClock[K comparable, V any](name string, ttl time.Duration, capacity int, now func() time.Time) *versionedCache[K, V] {
	if ttl <= 0 {
		ttl = time.Minute
	}
	c := &versionedCache[K, V]{
		name:     name,
		ttl:      ttl,
		capacity: capacity,
		now:      now,
		items:    make(map[K]*versionedItem[V]),
		stopChan: make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// get returns the unexpired entry and its version.
func (c *versionedCache[K, V]) get(key K) (V, int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[key]
	if !ok || c.now().After(item.expiresAt) {
		var zero V
		return zero, 0, false
	}
	return item.value, item.version, true
}

// set stores value unless a newer unexpired version is cached. It reports
// whether the entry was written.
func (c *versionedCache[K, V]) set(key K, value V, version int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if item, ok := c.items[key]; ok && !now.After(item.expiresAt) && item.version > version {
		return false
	}
	c.storeLocked(key, value, version, now)
	return true
}

// put stores value regardless of the cached version.
func (c *versionedCache[K, V]) put(key K, value V, version int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.storeLocked(key, value, version, c.now())
}

func (c *versionedCache[K, V]) storeLocked(key K, value V, version int64, now time.Time) {
	if _, exists := c.items[key]; !exists && c.capacity > 0 && len(c.items) >= c.capacity {
		c.evictLocked(now)
	}
	c.items[key] = &versionedItem[V]{value: value, version: version, expiresAt: now.Add(c.ttl)}
	metrics.CatalogCacheSize.WithLabelValues(c.name).Set(float64(len(c.items)))
}

// evictLocked drops expired entries, or one arbitrary entry when none has
// expired.
func (c *versionedCache[K, V]) evictLocked(now time.Time) {
	for key, item := range c.items {
		if now.After(item.expiresAt) {
			delete(c.items, key)
		}
	}
	if len(c.items) < c.capacity {
		return
	}
	for key := range c.items {
		delete(c.items, key)
		return
	}
}

func (c *versionedCache[K, V]) invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	metrics.CatalogCacheSize.WithLabelValues(c.name).Set(float64(len(c.items)))
}

func (c *versionedCache[K, V]) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]*versionedItem[V])
	metrics.CatalogCacheSize.WithLabelValues(c.name).Set(0)
}

func (c *versionedCache[K, V]) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// cleanup periodically removes expired items.
func (c *versionedCache[K, V]) cleanup() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := c.now()
			for key, item := range c.items {
				if now.After(item.expiresAt) {
					delete(c.items, key)
				}
			}
			metrics.CatalogCacheSize.WithLabelValues(c.name).Set(float64(len(c.items)))
			c.mu.Unlock()
		}
	}
}

// stop ends the cleanup goroutine. Safe to call more than once.
func (c *versionedCache[K, V]) stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
}
