// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badgerkv provides factory functions and lifecycle management
// for the BadgerDB instance backing the mood mirror.
//
// BadgerDB serves three roles here, all through one handle:
//
//   - durable store for readings, environment parameters, and session
//     aggregates
//   - active-session registry (per-key TTL entries + membership keys)
//   - result cache with per-kind TTLs
//
// The handle is constructed once at process start and passed explicitly
// into every component that needs it. There is deliberately no package
// global.
package badgerkv

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Config holds configuration for the BadgerDB instance.
type Config struct {
	// Path is the directory for database files. Required unless
	// InMemory is set.
	Path string

	// InMemory enables in-memory mode (no disk persistence). Used by
	// tests and by the storage.in_memory config option.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal log output. Nil disables it.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Zero disables GC. Ignored for in-memory databases.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before a
	// GC pass rewrites the value log.
	GCDiscardRatio float64
}

// DefaultConfig returns production defaults: synchronous writes, GC
// every 5 minutes at a 0.5 discard ratio.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests: in-memory, async
// writes, GC disabled.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// KV wraps a BadgerDB instance with lifecycle management and an
// availability probe.
//
// # Thread Safety
//
// Safe for concurrent use; BadgerDB handles its own locking.
type KV struct {
	*badger.DB
	gcStop chan struct{}
	gcDone chan struct{}
}

// Open creates and opens the database described by cfg, creating the
// directory if needed, and starts the GC loop when configured.
//
// The caller owns the returned handle and must Close() it.
func Open(cfg Config) (*KV, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	kv := &KV{DB: db}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		kv.gcStop = make(chan struct{})
		kv.gcDone = make(chan struct{})
		go kv.runGC(cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
	}
	return kv, nil
}

// OpenInMemory opens an ephemeral database for tests.
func OpenInMemory() (*KV, error) {
	return Open(InMemoryConfig())
}

// Available reports whether the database can serve requests. Callers
// use this to transparently fall back to in-process computation when
// the store is gone; a nil receiver is safely unavailable.
func (kv *KV) Available() bool {
	return kv != nil && kv.DB != nil && !kv.DB.IsClosed()
}

// Close stops the GC loop and closes the database. Safe to call once.
func (kv *KV) Close() error {
	if kv.gcStop != nil {
		close(kv.gcStop)
		<-kv.gcDone
	}
	return kv.DB.Close()
}

func (kv *KV) runGC(interval time.Duration, ratio float64, logger *slog.Logger) {
	defer close(kv.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-kv.gcStop:
			return
		case <-ticker.C:
			err := kv.DB.RunValueLogGC(ratio)
			if err == nil {
				if logger != nil {
					logger.Debug("badgerkv: value log GC completed")
				}
			} else if !errors.Is(err, badger.ErrNoRewrite) {
				if logger != nil {
					logger.Warn("badgerkv: value log GC error", slog.String("error", err.Error()))
				}
			}
		}
	}
}
