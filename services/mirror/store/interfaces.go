// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store defines the durable-store collaborator of the mood
// mirror and its BadgerDB implementation. All persistent mutation in
// the system goes through this narrow interface; nothing else shares
// mutable in-process state across connections.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/AsmiBhaskar/mood-mirror/services/mirror/aggregate"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/emotion"
)

// ErrSessionNotFound is returned when a session aggregate does not
// exist for the given id.
var ErrSessionNotFound = errors.New("session not found")

// ErrReadingNotFound is returned when a reading or its environment
// parameters cannot be located.
var ErrReadingNotFound = errors.New("reading not found")

// Store is the durable-store collaborator.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use from many connection
// tasks; each method is an independent transaction.
type Store interface {
	// CreateReading persists a validated emotion vector as a new
	// reading attributed to sessionID, deriving the dominant emotion
	// and intensity at write time.
	CreateReading(ctx context.Context, sessionID string, v emotion.Vector, now time.Time) (emotion.Reading, error)

	// CreateEnvironmentParameters stores the derived environment record
	// for a reading, keyed by the reading id.
	CreateEnvironmentParameters(ctx context.Context, readingID string, p emotion.Parameters) error

	// GetEnvironmentParameters loads the environment record for a
	// reading. Returns ErrReadingNotFound when absent.
	GetEnvironmentParameters(ctx context.Context, readingID string) (emotion.Parameters, error)

	// UpsertSessionAggregate writes the session aggregate, creating it
	// if absent.
	UpsertSessionAggregate(ctx context.Context, s aggregate.Session) error

	// GetSessionAggregate loads one session aggregate. Returns
	// ErrSessionNotFound when absent.
	GetSessionAggregate(ctx context.Context, sessionID string) (aggregate.Session, error)

	// ListActiveSessionAggregates returns every active session whose
	// last activity falls within the trailing window.
	ListActiveSessionAggregates(ctx context.Context, window time.Duration) ([]aggregate.Session, error)

	// ListSessionReadings returns all readings for a session in
	// timestamp order.
	ListSessionReadings(ctx context.Context, sessionID string) ([]emotion.Reading, error)

	// LatestSessionReading returns the most recent reading for a
	// session. Returns ErrReadingNotFound when the session has none.
	LatestSessionReading(ctx context.Context, sessionID string) (emotion.Reading, error)

	// ListRecentReadings returns up to limit readings across all
	// sessions, newest first.
	ListRecentReadings(ctx context.Context, limit int) ([]emotion.Reading, error)

	// ListReadingsSince returns all readings with timestamp >= since,
	// oldest first.
	ListReadingsSince(ctx context.Context, since time.Time) ([]emotion.Reading, error)

	// DominantDistribution counts readings by dominant emotion and
	// returns the total alongside.
	DominantDistribution(ctx context.Context) (map[emotion.Kind]int, int, error)

	// CountSessions returns the number of session aggregates.
	CountSessions(ctx context.Context) (int, error)

	// DeactivateStaleSessions marks sessions inactive when their last
	// activity is older than the threshold, returning how many changed.
	DeactivateStaleSessions(ctx context.Context, olderThan time.Duration) (int, error)
}
