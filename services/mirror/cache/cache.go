// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache memoizes derived results with short, per-kind TTLs to
// bound recomputation cost under high read fan-out.
//
// The cache is purely an optimization. Every read path must treat a
// miss and an unavailable backend identically: recompute directly and
// repopulate as a side effect. No cache failure is ever surfaced to a
// connection.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AsmiBhaskar/mood-mirror/services/mirror/aggregate"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/emotion"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/observability"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/storage/badgerkv"
)

// Per-kind TTLs. Each result kind has its own freshness budget; these
// are contractual reference values, tunable via config.
const (
	ReadingTTL    = time.Hour
	AnalyticsTTL  = 30 * time.Minute
	CollectiveTTL = 5 * time.Minute
	HealthTTL     = time.Minute
	TrendsTTL     = 10 * time.Minute
)

// Cache is the result cache over the shared KV handle, with a small
// mutex-guarded in-process fallback map used only while the backend is
// unavailable.
//
// # Thread Safety
//
// Safe for concurrent use. The fallback map is the one piece of shared
// in-process mutable state in the system; its lock covers only the
// read-check-write of the map itself.
type Cache struct {
	kv      *badgerkv.KV
	metrics *observability.Metrics

	mu       sync.Mutex
	fallback map[string]fallbackEntry
}

type fallbackEntry struct {
	payload   []byte
	expiresAt time.Time
}

// New creates a Cache over the given handle. A nil handle yields a
// fallback-only cache, which tests use freely.
func New(kv *badgerkv.KV) *Cache {
	return &Cache{kv: kv, fallback: make(map[string]fallbackEntry)}
}

// WithMetrics attaches hit/miss instrumentation to the typed lookup
// helpers. Returns the cache for chaining at startup.
func (c *Cache) WithMetrics(m *observability.Metrics) *Cache {
	c.metrics = m
	return c
}

func (c *Cache) record(kind string, hit bool) {
	if c.metrics != nil {
		c.metrics.RecordCacheLookup(kind, hit)
	}
}

// Available reports whether the backing store can serve requests.
func (c *Cache) Available() bool {
	return c.kv.Available()
}

// Set stores v under key with the given TTL. Failures are logged and
// swallowed; the fallback map picks up the entry instead.
func (c *Cache) Set(ctx context.Context, key string, v any, ttl time.Duration) {
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Warn("cache: failed to marshal entry", "key", key, "error", err)
		return
	}

	if c.Available() && ctx.Err() == nil {
		err := c.kv.Update(func(txn *badger.Txn) error {
			return txn.SetEntry(badger.NewEntry([]byte("cache:"+key), payload).WithTTL(ttl))
		})
		if err == nil {
			return
		}
		slog.Warn("cache: backend write failed, using fallback", "key", key, "error", err)
	}

	c.mu.Lock()
	c.fallback[key] = fallbackEntry{payload: payload, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

// Get loads the entry under key into out, reporting whether a fresh
// value was found. Backend errors degrade to the fallback map, then to
// a plain miss.
func (c *Cache) Get(ctx context.Context, key string, out any) bool {
	if c.Available() && ctx.Err() == nil {
		var payload []byte
		err := c.kv.View(func(txn *badger.Txn) error {
			item, err := txn.Get([]byte("cache:" + key))
			if err != nil {
				return err
			}
			return item.Value(func(val []byte) error {
				payload = append([]byte{}, val...)
				return nil
			})
		})
		if err == nil {
			if err := json.Unmarshal(payload, out); err != nil {
				slog.Warn("cache: failed to unmarshal entry", "key", key, "error", err)
				return false
			}
			return true
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			slog.Warn("cache: backend read failed, using fallback", "key", key, "error", err)
		} else {
			return false
		}
	}

	c.mu.Lock()
	entry, ok := c.fallback[key]
	if ok && time.Now().After(entry.expiresAt) {
		delete(c.fallback, key)
		ok = false
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	if err := json.Unmarshal(entry.payload, out); err != nil {
		return false
	}
	return true
}

// Delete removes the entry under key from both tiers.
func (c *Cache) Delete(ctx context.Context, key string) {
	if c.Available() && ctx.Err() == nil {
		err := c.kv.Update(func(txn *badger.Txn) error {
			return txn.Delete([]byte("cache:" + key))
		})
		if err != nil {
			slog.Warn("cache: backend delete failed", "key", key, "error", err)
		}
	}
	c.mu.Lock()
	delete(c.fallback, key)
	c.mu.Unlock()
}

// One key shape per result kind.

func readingKey(sessionID string) string {
	return fmt.Sprintf("emotion_reading:%s:latest", sessionID)
}

func analyticsKey(sessionID string) string {
	return fmt.Sprintf("session_analytics:%s", sessionID)
}

func trendsKey(hours int) string {
	return fmt.Sprintf("emotion_trends:%dh", hours)
}

const (
	collectiveKey = "collective_emotions:current"
	healthKey     = "system_health:current"
)

// SetLatestReading caches a session's most recent reading.
func (c *Cache) SetLatestReading(ctx context.Context, r emotion.Reading) {
	c.Set(ctx, readingKey(r.SessionID), r, ReadingTTL)
}

// GetLatestReading returns the cached latest reading for a session.
func (c *Cache) GetLatestReading(ctx context.Context, sessionID string) (emotion.Reading, bool) {
	var r emotion.Reading
	ok := c.Get(ctx, readingKey(sessionID), &r)
	c.record("reading", ok)
	return r, ok
}

// SetCollective caches the current collective snapshot.
func (c *Cache) SetCollective(ctx context.Context, col aggregate.Collective) {
	c.Set(ctx, collectiveKey, col, CollectiveTTL)
}

// GetCollective returns the cached collective snapshot.
func (c *Cache) GetCollective(ctx context.Context) (aggregate.Collective, bool) {
	var col aggregate.Collective
	ok := c.Get(ctx, collectiveKey, &col)
	c.record("collective", ok)
	return col, ok
}

// SetSessionAnalytics caches a computed analytics payload for a session.
func (c *Cache) SetSessionAnalytics(ctx context.Context, sessionID string, v any) {
	c.Set(ctx, analyticsKey(sessionID), v, AnalyticsTTL)
}

// GetSessionAnalytics loads a cached analytics payload into out.
func (c *Cache) GetSessionAnalytics(ctx context.Context, sessionID string, out any) bool {
	ok := c.Get(ctx, analyticsKey(sessionID), out)
	c.record("analytics", ok)
	return ok
}

// InvalidateSessionAnalytics drops the cached analytics for a session.
func (c *Cache) InvalidateSessionAnalytics(ctx context.Context, sessionID string) {
	c.Delete(ctx, analyticsKey(sessionID))
}

// SetHealth caches the system health snapshot.
func (c *Cache) SetHealth(ctx context.Context, v any) {
	c.Set(ctx, healthKey, v, HealthTTL)
}

// GetHealth loads the cached health snapshot into out.
func (c *Cache) GetHealth(ctx context.Context, out any) bool {
	ok := c.Get(ctx, healthKey, out)
	c.record("health", ok)
	return ok
}

// SetTrends caches a trends payload for the given trailing period.
func (c *Cache) SetTrends(ctx context.Context, hours int, v any) {
	c.Set(ctx, trendsKey(hours), v, TrendsTTL)
}

// GetTrends loads a cached trends payload into out.
func (c *Cache) GetTrends(ctx context.Context, hours int, out any) bool {
	ok := c.Get(ctx, trendsKey(hours), out)
	c.record("trends", ok)
	return ok
}
