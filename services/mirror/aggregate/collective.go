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
	"errors"
	"math"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AsmiBhaskar/mood-mirror/services/mirror/emotion"
)

// ErrNoActiveSessions signals that no session qualified for the
// collective window. Callers must treat this as "no data", never as an
// all-zero emotional state.
var ErrNoActiveSessions = errors.New("no active sessions in window")

// DefaultWindow is the trailing window a session's last activity must
// fall within to count toward the collective aggregate.
const DefaultWindow = 10 * time.Minute

// Collective is a point-in-time cross-session snapshot. Each
// computation yields a fresh value; snapshots are never mutated.
type Collective struct {
	Timestamp time.Time `json:"timestamp"`

	CollectiveJoy        float64 `json:"collective_joy"`
	CollectiveCalm       float64 `json:"collective_calm"`
	CollectiveEnergy     float64 `json:"collective_energy"`
	CollectiveMelancholy float64 `json:"collective_melancholy"`

	ActiveSessions            int                `json:"active_sessions"`
	TotalReadingsProcessed    int                `json:"total_readings_processed"`
	DominantCollectiveEmotion emotion.Kind       `json:"dominant_collective_emotion"`
	EmotionBreakdown          map[string]float64 `json:"emotion_breakdown"`
}

// Averages returns the collective means as an emotion vector.
func (c Collective) Averages() emotion.Vector {
	return emotion.Vector{
		Joy:        c.CollectiveJoy,
		Calm:       c.CollectiveCalm,
		Energy:     c.CollectiveEnergy,
		Melancholy: c.CollectiveMelancholy,
	}
}

// ComputeCollective derives a collective snapshot from the given
// session aggregates.
//
// # Description
//
// A session qualifies when it is active and its last activity falls
// within the trailing window ending at now. Component means are the
// unweighted average of each qualifying session's own running mean —
// an average of averages, NOT a reading-count-weighted global mean.
// High-volume sessions are deliberately not over-weighted; this
// matches the historical aggregation policy and must not be "fixed"
// silently.
//
// # Outputs
//
//   - Collective: Fresh snapshot stamped with now.
//   - error: ErrNoActiveSessions when nothing qualifies.
func ComputeCollective(now time.Time, window time.Duration, sessions []Session) (Collective, error) {
	cutoff := now.Add(-window)

	var qualifying []Session
	for _, s := range sessions {
		if s.IsActive && !s.LastActivity.Before(cutoff) {
			qualifying = append(qualifying, s)
		}
	}
	if len(qualifying) == 0 {
		return Collective{}, ErrNoActiveSessions
	}

	var joy, calm, energy, melancholy float64
	totalReadings := 0
	for _, s := range qualifying {
		joy += s.AverageJoy
		calm += s.AverageCalm
		energy += s.AverageEnergy
		melancholy += s.AverageMelancholy
		totalReadings += s.TotalReadings
	}

	n := float64(len(qualifying))
	c := Collective{
		Timestamp:              now,
		CollectiveJoy:          joy / n,
		CollectiveCalm:         calm / n,
		CollectiveEnergy:       energy / n,
		CollectiveMelancholy:   melancholy / n,
		ActiveSessions:         len(qualifying),
		TotalReadingsProcessed: totalReadings,
	}
	c.DominantCollectiveEmotion = c.Averages().Dominant()
	c.EmotionBreakdown = map[string]float64{
		string(emotion.Joy):        percent(c.CollectiveJoy),
		string(emotion.Calm):       percent(c.CollectiveCalm),
		string(emotion.Energy):     percent(c.CollectiveEnergy),
		string(emotion.Melancholy): percent(c.CollectiveMelancholy),
	}
	return c, nil
}

// percent converts a [0,1] mean to a percentage rounded to one decimal.
func percent(x float64) float64 {
	return math.Round(x*1000) / 10
}

// SessionLister loads the session aggregates that may qualify for the
// collective window. Injectable so the aggregator can be unit-tested
// without a real store.
type SessionLister func(ctx context.Context, window time.Duration) ([]Session, error)

// Aggregator computes collective snapshots on demand, coalescing
// concurrent recomputes from many connections into a single store read.
//
// # Thread Safety
//
// Safe for concurrent use; coalescing is handled by singleflight.
type Aggregator struct {
	list   SessionLister
	window time.Duration
	group  singleflight.Group
}

// NewAggregator creates an Aggregator over the given lister. A
// non-positive window falls back to DefaultWindow.
func NewAggregator(list SessionLister, window time.Duration) *Aggregator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Aggregator{list: list, window: window}
}

// Window returns the configured collective window.
func (a *Aggregator) Window() time.Duration {
	return a.window
}

// Compute derives a fresh collective snapshot as of now.
//
// Concurrent callers share one in-flight computation; each still
// receives a complete snapshot. The snapshot may interleave with
// concurrent session updates — that eventual-consistency window is
// accepted by contract.
func (a *Aggregator) Compute(ctx context.Context, now time.Time) (Collective, error) {
	v, err, _ := a.group.Do("collective", func() (any, error) {
		sessions, err := a.list(ctx, a.window)
		if err != nil {
			return Collective{}, err
		}
		return ComputeCollective(now, a.window, sessions)
	})
	if err != nil {
		return Collective{}, err
	}
	return v.(Collective), nil
}
