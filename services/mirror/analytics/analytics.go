// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analytics derives read-only reporting views over the stored
// readings: per-session analytics and insights, hourly trends,
// dominant-emotion distribution, and the system health snapshot.
// Everything here is computed on demand; callers layer the result
// cache on top.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/AsmiBhaskar/mood-mirror/services/mirror/emotion"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/store"
)

// ErrNoReadings signals a session that exists but has no readings, or
// a period with no data.
var ErrNoReadings = errors.New("no readings found")

// activeSessionWindow is the health snapshot's notion of "active":
// shorter than the aggregate staleness threshold, longer than the
// collective window.
const activeSessionWindow = 30 * time.Minute

// Analytics computes reporting views over the durable store.
type Analytics struct {
	store store.Store
	now   func() time.Time
}

// New creates an Analytics over the given store.
func New(st store.Store) *Analytics {
	return &Analytics{store: st, now: time.Now}
}

// JourneyPoint is one sampled point of a session's emotion timeline.
type JourneyPoint struct {
	Timestamp  time.Time    `json:"timestamp"`
	Joy        float64      `json:"joy"`
	Calm       float64      `json:"calm"`
	Energy     float64      `json:"energy"`
	Melancholy float64      `json:"melancholy"`
	Dominant   emotion.Kind `json:"dominant"`
}

// SessionAnalytics is the comprehensive per-session report.
type SessionAnalytics struct {
	SessionID              string             `json:"session_id"`
	TotalReadings          int                `json:"total_readings"`
	SessionDurationMinutes float64            `json:"session_duration_minutes"`
	DominantEmotion        emotion.Kind       `json:"dominant_emotion"`
	EmotionJourney         []JourneyPoint     `json:"emotion_journey"`
	PeakEmotions           map[string]float64 `json:"peak_emotions"`
	RecentReadings         []emotion.Reading  `json:"recent_readings"`
	Averages               map[string]float64 `json:"averages"`
}

// SessionAnalytics builds the per-session report: a journey sampled to
// at most 20 points, per-component peaks, the 10 most recent readings
// (newest first), and the running averages.
func (a *Analytics) SessionAnalytics(ctx context.Context, sessionID string) (SessionAnalytics, error) {
	sess, err := a.store.GetSessionAggregate(ctx, sessionID)
	if err != nil {
		return SessionAnalytics{}, err
	}
	readings, err := a.store.ListSessionReadings(ctx, sessionID)
	if err != nil {
		return SessionAnalytics{}, fmt.Errorf("list session readings: %w", err)
	}
	if len(readings) == 0 {
		return SessionAnalytics{}, ErrNoReadings
	}

	step := len(readings) / 20
	if step < 1 {
		step = 1
	}
	var journey []JourneyPoint
	for i := 0; i < len(readings); i += step {
		r := readings[i]
		journey = append(journey, JourneyPoint{
			Timestamp:  r.Timestamp,
			Joy:        r.Joy,
			Calm:       r.Calm,
			Energy:     r.Energy,
			Melancholy: r.Melancholy,
			Dominant:   r.DominantEmotion,
		})
	}

	peaks := make(map[string]float64, len(emotion.Kinds))
	for _, k := range emotion.Kinds {
		best := 0.0
		for _, r := range readings {
			if v := r.Component(k); v > best {
				best = v
			}
		}
		peaks[string(k)] = best
	}

	recent := make([]emotion.Reading, 0, 10)
	for i := len(readings) - 1; i >= 0 && len(recent) < 10; i-- {
		recent = append(recent, readings[i])
	}

	return SessionAnalytics{
		SessionID:              sessionID,
		TotalReadings:          sess.TotalReadings,
		SessionDurationMinutes: sess.DurationMinutes(),
		DominantEmotion:        sess.DominantEmotion(),
		EmotionJourney:         journey,
		PeakEmotions:           peaks,
		RecentReadings:         recent,
		Averages: map[string]float64{
			string(emotion.Joy):        sess.AverageJoy,
			string(emotion.Calm):       sess.AverageCalm,
			string(emotion.Energy):     sess.AverageEnergy,
			string(emotion.Melancholy): sess.AverageMelancholy,
		},
	}, nil
}

// Moment is a value paired with when it occurred.
type Moment struct {
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionInsights is the statistical deep-dive for one session.
type SessionInsights struct {
	SessionID       string             `json:"session_id"`
	DurationMinutes float64            `json:"duration_minutes"`
	TotalReadings   int                `json:"total_readings"`
	Volatility      map[string]float64 `json:"volatility"`
	Progression     map[string]float64 `json:"progression"`
	Peaks           map[string]Moment  `json:"peaks"`
	Lows            map[string]Moment  `json:"lows"`
}

// SessionInsights computes volatility (population standard deviation),
// progression (last minus first), and the peak and low moment of each
// component. Ties resolve to the earliest occurrence.
func (a *Analytics) SessionInsights(ctx context.Context, sessionID string) (SessionInsights, error) {
	sess, err := a.store.GetSessionAggregate(ctx, sessionID)
	if err != nil {
		return SessionInsights{}, err
	}
	readings, err := a.store.ListSessionReadings(ctx, sessionID)
	if err != nil {
		return SessionInsights{}, fmt.Errorf("list session readings: %w", err)
	}
	if len(readings) == 0 {
		return SessionInsights{}, ErrNoReadings
	}

	insights := SessionInsights{
		SessionID:       sessionID,
		DurationMinutes: sess.DurationMinutes(),
		TotalReadings:   len(readings),
		Volatility:      make(map[string]float64, len(emotion.Kinds)),
		Progression:     make(map[string]float64, len(emotion.Kinds)),
		Peaks:           make(map[string]Moment, len(emotion.Kinds)),
		Lows:            make(map[string]Moment, len(emotion.Kinds)),
	}

	first, last := readings[0], readings[len(readings)-1]
	n := float64(len(readings))

	for _, k := range emotion.Kinds {
		mean := 0.0
		for _, r := range readings {
			mean += r.Component(k)
		}
		mean /= n

		variance := 0.0
		for _, r := range readings {
			d := r.Component(k) - mean
			variance += d * d
		}
		variance /= n

		insights.Volatility[string(k)+"_volatility"] = math.Sqrt(variance)
		insights.Progression[string(k)+"_change"] = last.Component(k) - first.Component(k)

		peak, low := readings[0], readings[0]
		for _, r := range readings[1:] {
			if r.Component(k) > peak.Component(k) {
				peak = r
			}
			if r.Component(k) < low.Component(k) {
				low = r
			}
		}
		insights.Peaks[string(k)+"_peak"] = Moment{Value: peak.Component(k), Timestamp: peak.Timestamp}
		insights.Lows[string(k)+"_low"] = Moment{Value: low.Component(k), Timestamp: low.Timestamp}
	}
	return insights, nil
}

// HourlyTrend is one hour bucket of the trends report. Empty hours are
// omitted.
type HourlyTrend struct {
	Hour          time.Time `json:"hour"`
	ReadingsCount int       `json:"readings_count"`
	AvgJoy        float64   `json:"avg_joy"`
	AvgCalm       float64   `json:"avg_calm"`
	AvgEnergy     float64   `json:"avg_energy"`
	AvgMelancholy float64   `json:"avg_melancholy"`
}

// Trends is the trailing-period trends report.
type Trends struct {
	PeriodHours     int                `json:"period_hours"`
	TotalReadings   int                `json:"total_readings"`
	HourlyTrends    []HourlyTrend      `json:"hourly_trends"`
	OverallAverages map[string]float64 `json:"overall_averages"`
}

// Trends buckets all readings of the trailing period into hour slots
// anchored at the cutoff and averages each slot.
func (a *Analytics) Trends(ctx context.Context, hours int) (Trends, error) {
	if hours <= 0 {
		hours = 24
	}
	now := a.now()
	cutoff := now.Add(-time.Duration(hours) * time.Hour)

	readings, err := a.store.ListReadingsSince(ctx, cutoff)
	if err != nil {
		return Trends{}, fmt.Errorf("list readings: %w", err)
	}
	if len(readings) == 0 {
		return Trends{}, ErrNoReadings
	}

	var trends []HourlyTrend
	for hourStart := cutoff; hourStart.Before(now); hourStart = hourStart.Add(time.Hour) {
		hourEnd := hourStart.Add(time.Hour)
		bucket := HourlyTrend{Hour: hourStart}
		for _, r := range readings {
			if r.Timestamp.Before(hourStart) || !r.Timestamp.Before(hourEnd) {
				continue
			}
			bucket.ReadingsCount++
			bucket.AvgJoy += r.Joy
			bucket.AvgCalm += r.Calm
			bucket.AvgEnergy += r.Energy
			bucket.AvgMelancholy += r.Melancholy
		}
		if bucket.ReadingsCount == 0 {
			continue
		}
		n := float64(bucket.ReadingsCount)
		bucket.AvgJoy /= n
		bucket.AvgCalm /= n
		bucket.AvgEnergy /= n
		bucket.AvgMelancholy /= n
		trends = append(trends, bucket)
	}

	overall := map[string]float64{}
	for _, r := range readings {
		overall["avg_joy"] += r.Joy
		overall["avg_calm"] += r.Calm
		overall["avg_energy"] += r.Energy
		overall["avg_melancholy"] += r.Melancholy
	}
	n := float64(len(readings))
	for k := range overall {
		overall[k] /= n
	}

	return Trends{
		PeriodHours:     hours,
		TotalReadings:   len(readings),
		HourlyTrends:    trends,
		OverallAverages: overall,
	}, nil
}

// DistributionItem is one dominant emotion's share of all readings.
type DistributionItem struct {
	DominantEmotion emotion.Kind `json:"dominant_emotion"`
	Count           int          `json:"count"`
	Percentage      float64      `json:"percentage"`
}

// Distribution is the dominant-emotion breakdown over all readings.
type Distribution struct {
	TotalReadings int                `json:"total_readings"`
	Distribution  []DistributionItem `json:"distribution"`
}

// Distribution counts readings by dominant emotion, most common first.
func (a *Analytics) Distribution(ctx context.Context) (Distribution, error) {
	counts, total, err := a.store.DominantDistribution(ctx)
	if err != nil {
		return Distribution{}, fmt.Errorf("dominant distribution: %w", err)
	}
	if total == 0 {
		return Distribution{}, ErrNoReadings
	}

	items := make([]DistributionItem, 0, len(counts))
	for k, count := range counts {
		items = append(items, DistributionItem{
			DominantEmotion: k,
			Count:           count,
			Percentage:      math.Round(float64(count)/float64(total)*10000) / 100,
		})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Count != items[j].Count {
			return items[i].Count > items[j].Count
		}
		return items[i].DominantEmotion < items[j].DominantEmotion
	})

	return Distribution{TotalReadings: total, Distribution: items}, nil
}

// SystemHealth is the operational snapshot exposed on the system API.
type SystemHealth struct {
	Timestamp time.Time `json:"timestamp"`
	Activity  struct {
		RecentReadings1h  int     `json:"recent_readings_1h"`
		ActiveSessions    int     `json:"active_sessions"`
		ReadingsPerMinute float64 `json:"readings_per_minute_1h"`
	} `json:"activity"`
	Database struct {
		TotalEmotionReadings int `json:"total_emotion_readings"`
		TotalSessions        int `json:"total_sessions"`
	} `json:"database"`
	Status string `json:"status"`
}

// SystemHealth reports recent activity and store totals. The service
// is "healthy" when anything moved in the last hour or a session is
// active, and "idle" otherwise; neither is an error state.
func (a *Analytics) SystemHealth(ctx context.Context) (SystemHealth, error) {
	now := a.now()

	recent, err := a.store.ListReadingsSince(ctx, now.Add(-time.Hour))
	if err != nil {
		return SystemHealth{}, fmt.Errorf("list recent readings: %w", err)
	}
	active, err := a.store.ListActiveSessionAggregates(ctx, activeSessionWindow)
	if err != nil {
		return SystemHealth{}, fmt.Errorf("list active sessions: %w", err)
	}
	_, totalReadings, err := a.store.DominantDistribution(ctx)
	if err != nil {
		return SystemHealth{}, fmt.Errorf("count readings: %w", err)
	}
	totalSessions, err := a.store.CountSessions(ctx)
	if err != nil {
		return SystemHealth{}, fmt.Errorf("count sessions: %w", err)
	}

	var health SystemHealth
	health.Timestamp = now
	health.Activity.RecentReadings1h = len(recent)
	health.Activity.ActiveSessions = len(active)
	if len(recent) > 0 {
		health.Activity.ReadingsPerMinute = float64(len(recent)) / 60
	}
	health.Database.TotalEmotionReadings = totalReadings
	health.Database.TotalSessions = totalSessions
	if len(recent) > 0 || len(active) > 0 {
		health.Status = "healthy"
	} else {
		health.Status = "idle"
	}
	return health, nil
}
