// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package emotion

import (
	"time"

	"github.com/google/uuid"
)

// Reading is one persisted emotion reading. The dominant emotion and
// intensity are derived once at creation time and stored with the
// reading so that historical rows stay stable even if derivation
// rules ever change.
type Reading struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Vector
	Timestamp        time.Time `json:"timestamp"`
	DominantEmotion  Kind      `json:"dominant_emotion"`
	EmotionIntensity float64   `json:"emotion_intensity"`
}

// NewReading builds a Reading with a fresh UUID and derived fields.
// The vector is assumed pre-validated.
func NewReading(sessionID string, v Vector, now time.Time) Reading {
	return Reading{
		ID:               uuid.New().String(),
		SessionID:        sessionID,
		Vector:           v,
		Timestamp:        now,
		DominantEmotion:  v.Dominant(),
		EmotionIntensity: v.Intensity(),
	}
}
