// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package housekeeping runs the background maintenance cycle of the
// mood mirror: deactivating stale session aggregates, reconciling the
// liveness registry with its expired records, and keeping the
// collective snapshot warm.
package housekeeping

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// =============================================================================
// Maintenance Scheduler
// =============================================================================

// DeactivateStaleFunc marks sessions inactive past the given idle
// threshold and reports how many changed.
type DeactivateStaleFunc func(ctx context.Context, olderThan time.Duration) (int, error)

// ReconcileRegistryFunc removes registry membership entries whose
// keyed record has expired, reporting how many were removed.
type ReconcileRegistryFunc func(ctx context.Context) (int, error)

// RefreshCollectiveFunc recomputes and re-caches the collective
// snapshot. A "no active sessions" condition is not an error here.
type RefreshCollectiveFunc func(ctx context.Context) error

// SchedulerConfig holds configuration for the maintenance scheduler.
//
// # Fields
//
//   - Interval: How often to run a maintenance cycle. Default: 30 seconds.
//   - StaleAfter: Idle threshold past which a session aggregate is
//     deactivated. Default: 24 hours.
type SchedulerConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
}

// DefaultSchedulerConfig returns production defaults: a 30 second
// cycle and a 24 hour staleness threshold.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:   30 * time.Second,
		StaleAfter: 24 * time.Hour,
	}
}

// Scheduler periodically runs the three maintenance tasks. Uses the
// ticker + done channel pattern for graceful shutdown.
//
// # Thread Safety
//
// All public methods are thread-safe; a mutex protects the running
// state transition.
type Scheduler struct {
	deactivate DeactivateStaleFunc
	reconcile  ReconcileRegistryFunc
	refresh    RefreshCollectiveFunc
	config     SchedulerConfig

	done    chan struct{}
	mu      sync.Mutex
	running bool
}

// NewScheduler creates a scheduler over the three maintenance tasks.
// Any task may be nil and is then skipped.
func NewScheduler(deactivate DeactivateStaleFunc, reconcile ReconcileRegistryFunc,
	refresh RefreshCollectiveFunc, config SchedulerConfig) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultSchedulerConfig().Interval
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = DefaultSchedulerConfig().StaleAfter
	}
	return &Scheduler{
		deactivate: deactivate,
		reconcile:  reconcile,
		refresh:    refresh,
		config:     config,
		done:       make(chan struct{}),
	}
}

// Start begins the background maintenance loop. Returns an error if
// the scheduler is already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.done = make(chan struct{})
	s.mu.Unlock()

	slog.Info("housekeeping: maintenance scheduler starting",
		"interval", s.config.Interval.String(),
		"stale_after", s.config.StaleAfter.String(),
	)

	go s.runLoop(ctx)
	return nil
}

// Stop signals the scheduler to stop. Safe to call multiple times;
// does not interrupt a cycle already in progress.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	slog.Info("housekeeping: maintenance scheduler stopping")
	close(s.done)
	s.running = false
	return nil
}

// RunNow performs one maintenance cycle immediately, outside the
// schedule. Used by tests and manual invocation.
func (s *Scheduler) RunNow(ctx context.Context) {
	s.runCycle(ctx)
}

func (s *Scheduler) runLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runCycle(ctx)
		case <-s.done:
			return
		case <-ctx.Done():
			slog.Info("housekeeping: context cancelled, scheduler exiting")
			return
		}
	}
}

// runCycle executes the three tasks in order. Each task's failure is
// logged and does not block the others.
func (s *Scheduler) runCycle(ctx context.Context) {
	start := time.Now()

	if s.deactivate != nil {
		n, err := s.deactivate(ctx, s.config.StaleAfter)
		if err != nil {
			slog.Error("housekeeping: stale session deactivation failed", "error", err)
		} else if n > 0 {
			slog.Info("housekeeping: deactivated stale sessions", "count", n)
		}
	}

	if s.reconcile != nil {
		n, err := s.reconcile(ctx)
		if err != nil {
			slog.Error("housekeeping: registry reconciliation failed", "error", err)
		} else if n > 0 {
			slog.Info("housekeeping: reconciled expired registry entries", "count", n)
		}
	}

	if s.refresh != nil {
		if err := s.refresh(ctx); err != nil {
			slog.Error("housekeeping: collective refresh failed", "error", err)
		}
	}

	slog.Debug("housekeeping: maintenance cycle complete",
		"duration", time.Since(start).String())
}
