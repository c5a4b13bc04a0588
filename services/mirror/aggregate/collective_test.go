// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package aggregate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AsmiBhaskar/mood-mirror/services/mirror/emotion"
)

func activeSession(id string, lastActivity time.Time, joy, calm, energy, melancholy float64, readings int) Session {
	return Session{
		SessionID:         id,
		LastActivity:      lastActivity,
		IsActive:          true,
		TotalReadings:     readings,
		AverageJoy:        joy,
		AverageCalm:       calm,
		AverageEnergy:     energy,
		AverageMelancholy: melancholy,
	}
}

func TestComputeCollective_UnweightedAverageOfAverages(t *testing.T) {
	now := time.Now()
	sessions := []Session{
		// A busy session must not outweigh a quiet one.
		activeSession("busy", now, 0.8, 0.2, 0.4, 0.0, 10),
		activeSession("quiet", now, 0.4, 0.6, 0.2, 0.0, 2),
	}

	c, err := ComputeCollective(now, DefaultWindow, sessions)
	require.NoError(t, err)

	assert.InDelta(t, 0.6, c.CollectiveJoy, 1e-9)
	assert.InDelta(t, 0.4, c.CollectiveCalm, 1e-9)
	assert.InDelta(t, 0.3, c.CollectiveEnergy, 1e-9)
	assert.InDelta(t, 0.0, c.CollectiveMelancholy, 1e-9)
	assert.Equal(t, 2, c.ActiveSessions)
	assert.Equal(t, 12, c.TotalReadingsProcessed)
	assert.Equal(t, emotion.Joy, c.DominantCollectiveEmotion)
	assert.Equal(t, now, c.Timestamp)

	// Breakdown values are the collective means as percentages, one
	// decimal place.
	assert.InDelta(t, 60.0, c.EmotionBreakdown["joy"], 1e-9)
	assert.InDelta(t, 40.0, c.EmotionBreakdown["calm"], 1e-9)
	assert.InDelta(t, 30.0, c.EmotionBreakdown["energy"], 1e-9)
	assert.InDelta(t, 0.0, c.EmotionBreakdown["melancholy"], 1e-9)
}

func TestComputeCollective_WindowFiltering(t *testing.T) {
	now := time.Now()
	sessions := []Session{
		activeSession("recent", now.Add(-9*time.Minute), 0.2, 0.8, 0.0, 0.0, 4),
		activeSession("stale", now.Add(-11*time.Minute), 0.9, 0.0, 0.9, 0.9, 100),
		func() Session {
			s := activeSession("ended", now, 0.9, 0.9, 0.9, 0.9, 50)
			s.IsActive = false
			return s
		}(),
	}

	c, err := ComputeCollective(now, DefaultWindow, sessions)
	require.NoError(t, err)

	// Only the in-window active session qualifies.
	assert.Equal(t, 1, c.ActiveSessions)
	assert.Equal(t, 4, c.TotalReadingsProcessed)
	assert.InDelta(t, 0.2, c.CollectiveJoy, 1e-9)
	assert.Equal(t, emotion.Calm, c.DominantCollectiveEmotion)
}

func TestComputeCollective_NoActiveSessions(t *testing.T) {
	now := time.Now()

	_, err := ComputeCollective(now, DefaultWindow, nil)
	assert.ErrorIs(t, err, ErrNoActiveSessions)

	stale := []Session{activeSession("old", now.Add(-time.Hour), 0.5, 0.5, 0.5, 0.5, 1)}
	_, err = ComputeCollective(now, DefaultWindow, stale)
	assert.ErrorIs(t, err, ErrNoActiveSessions)
}

func TestAggregator_Compute(t *testing.T) {
	now := time.Now()
	calls := 0
	lister := func(ctx context.Context, window time.Duration) ([]Session, error) {
		calls++
		assert.Equal(t, DefaultWindow, window)
		return []Session{activeSession("s1", now, 0.7, 0.1, 0.1, 0.1, 3)}, nil
	}

	agg := NewAggregator(lister, 0) // non-positive window falls back
	require.Equal(t, DefaultWindow, agg.Window())

	c, err := agg.Compute(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.InDelta(t, 0.7, c.CollectiveJoy, 1e-9)
	assert.Equal(t, 3, c.TotalReadingsProcessed)
}

func TestAggregator_ComputePropagatesNoActiveSessions(t *testing.T) {
	lister := func(ctx context.Context, window time.Duration) ([]Session, error) {
		return nil, nil
	}
	agg := NewAggregator(lister, DefaultWindow)

	_, err := agg.Compute(context.Background(), time.Now())
	assert.ErrorIs(t, err, ErrNoActiveSessions)
}
