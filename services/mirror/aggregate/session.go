// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package aggregate maintains the rolling statistics of the mood
// mirror: per-session running averages over the full reading history,
// and the windowed cross-session collective snapshot.
package aggregate

import (
	"time"

	"github.com/AsmiBhaskar/mood-mirror/services/mirror/emotion"
)

// Session is the per-session aggregate, keyed by the opaque session id.
// Averages are arithmetic means over every reading attributed to the
// session, not a sliding window.
type Session struct {
	SessionID    string    `json:"session_id"`
	UserID       string    `json:"user_id,omitempty"`
	StartTime    time.Time `json:"start_time"`
	LastActivity time.Time `json:"last_activity"`
	IsActive     bool      `json:"is_active"`

	TotalReadings     int     `json:"total_readings"`
	AverageJoy        float64 `json:"average_joy"`
	AverageCalm       float64 `json:"average_calm"`
	AverageEnergy     float64 `json:"average_energy"`
	AverageMelancholy float64 `json:"average_melancholy"`
}

// NewSession creates an active aggregate for a previously unseen
// session id. Creation is idempotent at the store layer: recording a
// reading against an unknown id implicitly creates its aggregate.
func NewSession(sessionID string, now time.Time) Session {
	return Session{
		SessionID:    sessionID,
		StartTime:    now,
		LastActivity: now,
		IsActive:     true,
	}
}

// Averages returns the per-session means as an emotion vector.
func (s Session) Averages() emotion.Vector {
	return emotion.Vector{
		Joy:        s.AverageJoy,
		Calm:       s.AverageCalm,
		Energy:     s.AverageEnergy,
		Melancholy: s.AverageMelancholy,
	}
}

// DominantEmotion returns the dominant component of the session means,
// under the standard tie-break order.
func (s Session) DominantEmotion() emotion.Kind {
	return s.Averages().Dominant()
}

// DurationMinutes returns the span from first to most recent activity.
func (s Session) DurationMinutes() float64 {
	return s.LastActivity.Sub(s.StartTime).Minutes()
}

// Recompute recalculates all four running means as the arithmetic mean
// over the full reading history and stamps the activity time.
//
// This is a deliberate O(n) batch recompute rather than an incremental
// update; reading volume per session is small and the batch form is
// trivially correct. An incremental newMean + (x-newMean)/n update
// would produce identical results if volume ever becomes a problem.
func (s *Session) Recompute(readings []emotion.Reading, now time.Time) {
	s.LastActivity = now
	if len(readings) == 0 {
		return
	}

	var joy, calm, energy, melancholy float64
	for _, r := range readings {
		joy += r.Joy
		calm += r.Calm
		energy += r.Energy
		melancholy += r.Melancholy
	}

	n := float64(len(readings))
	s.TotalReadings = len(readings)
	s.AverageJoy = joy / n
	s.AverageCalm = calm / n
	s.AverageEnergy = energy / n
	s.AverageMelancholy = melancholy / n
}
