// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AsmiBhaskar/mood-mirror/services/mirror/aggregate"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/cache"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/housekeeping"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/registry"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/storage/badgerkv"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/store"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	housekeepingIntervalSecs int // Seconds between passes; 0 uses the config value
	housekeepingMaxRuns      int // Stop after this many passes; 0 runs until interrupted
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// housekeepingCmd runs the maintenance cycle standalone, without the
// server. The same three tasks run in-process under serve; this
// command exists for one-shot cleanup (--max-runs 1) and for
// maintaining a data directory while the server is down.
//
// BadgerDB holds an exclusive lock on its directory, so this cannot
// run against a directory a live server has open.
var housekeepingCmd = &cobra.Command{
	Use:   "housekeeping",
	Short: "Run the maintenance cycle against the stored data",
	Long: `Runs the periodic maintenance cycle standalone:
  - deactivate session aggregates idle past the staleness threshold
  - reconcile registry member keys whose TTL records expired
  - recompute and re-cache the collective snapshot

Examples:
  moodmirror housekeeping                 # Loop at the configured interval
  moodmirror housekeeping --max-runs 1    # Single pass, then exit
  moodmirror housekeeping --interval 300  # Loop every 5 minutes

The data directory cannot be shared with a running server; stop the
server first or point MOODMIRROR_DATA_DIR elsewhere.`,
	Run: runHousekeeping,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	rootCmd.AddCommand(housekeepingCmd)
	housekeepingCmd.Flags().IntVar(&housekeepingIntervalSecs, "interval", 0,
		"Seconds between passes (default: housekeeping.interval_seconds)")
	housekeepingCmd.Flags().IntVar(&housekeepingMaxRuns, "max-runs", 0,
		"Stop after this many passes (0 runs until interrupted)")
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runHousekeeping(cmd *cobra.Command, args []string) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	kv, err := openStorage()
	if err != nil {
		log.Fatalf("failed to open storage at %s: %v", config.Storage.Path, err)
	}
	defer kv.Close()

	st := store.NewBadgerStore(kv)
	reg := registry.New(kv, config.registryTTL())
	ca := cache.New(kv)
	collective := aggregate.NewAggregator(st.ListActiveSessionAggregates, config.collectiveWindow())

	interval := config.housekeepingInterval()
	if housekeepingIntervalSecs > 0 {
		interval = time.Duration(housekeepingIntervalSecs) * time.Second
	}

	scheduler := housekeeping.NewScheduler(
		st.DeactivateStaleSessions,
		reg.Reconcile,
		refreshCollective(collective, ca),
		housekeeping.SchedulerConfig{
			Interval:   interval,
			StaleAfter: config.staleAfter(),
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("housekeeping: starting maintenance passes",
		"interval", interval.String(), "max_runs", housekeepingMaxRuns)
	runs := runMaintenanceLoop(ctx, scheduler, interval, housekeepingMaxRuns)
	slog.Info("housekeeping: done", "runs", runs)
}

// =============================================================================
// SHARED MAINTENANCE HELPERS
// =============================================================================

// openStorage opens the configured BadgerDB backend, in-memory when
// storage.in_memory is set.
func openStorage() (*badgerkv.KV, error) {
	if config.Storage.InMemory {
		return badgerkv.OpenInMemory()
	}
	return badgerkv.Open(badgerkv.DefaultConfig(config.Storage.Path))
}

// refreshCollective returns the cache-warming maintenance task shared
// by serve and the standalone housekeeping loop. An empty window is
// not an error; the stale cached snapshot simply ages out.
func refreshCollective(collective *aggregate.Aggregator, ca *cache.Cache) housekeeping.RefreshCollectiveFunc {
	return func(ctx context.Context) error {
		col, err := collective.Compute(ctx, time.Now())
		if errors.Is(err, aggregate.ErrNoActiveSessions) {
			return nil
		}
		if err != nil {
			return err
		}
		ca.SetCollective(ctx, col)
		return nil
	}
}

// runMaintenanceLoop executes passes until the context is cancelled or
// maxRuns passes complete (maxRuns <= 0 means no limit). Returns the
// number of completed passes. The first pass runs immediately.
func runMaintenanceLoop(ctx context.Context, s *housekeeping.Scheduler, interval time.Duration, maxRuns int) int {
	runs := 0
	for {
		s.RunNow(ctx)
		runs++
		if maxRuns > 0 && runs >= maxRuns {
			return runs
		}
		select {
		case <-ctx.Done():
			return runs
		case <-time.After(interval):
		}
	}
}
