// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers contains the gin handlers of the mood mirror REST
// API. Each constructor takes its collaborators explicitly and returns
// a gin.HandlerFunc, so tests can wire handlers against in-memory
// stores without the router.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AsmiBhaskar/mood-mirror/services/mirror/analytics"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/cache"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/emotion"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/hub"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/store"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 100
	defaultTrendHours  = 24
	maxTrendHours      = 168
)

// CreateReadingRequest is the POST /api/readings body. The emotion
// fields carry the same bounds as the websocket frames.
type CreateReadingRequest struct {
	SessionID  string  `json:"session_id"`
	UserID     string  `json:"user_id"`
	Joy        float64 `json:"joy" binding:"gte=0,lte=1"`
	Calm       float64 `json:"calm" binding:"gte=0,lte=1"`
	Energy     float64 `json:"energy" binding:"gte=0,lte=1"`
	Melancholy float64 `json:"melancholy" binding:"gte=0,lte=1"`
}

// CreateReading accepts an emotion reading over HTTP and runs it
// through the same pipeline as the websocket path, so REST-submitted
// readings also fan out to live subscribers.
func CreateReading(pipeline *hub.Pipeline, st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateReadingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sessionID := req.SessionID
		if sessionID == "" {
			sessionID = uuid.New().String()
		}

		v := emotion.Vector{
			Joy:        req.Joy,
			Calm:       req.Calm,
			Energy:     req.Energy,
			Melancholy: req.Melancholy,
		}
		reading, err := pipeline.Process(c.Request.Context(), sessionID, req.UserID, v, "rest")
		if err != nil {
			slog.Error("handlers: failed to create reading", "session_id", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create emotion reading"})
			return
		}

		params, err := st.GetEnvironmentParameters(c.Request.Context(), reading.ID)
		if err != nil {
			slog.Error("handlers: failed to load environment for new reading",
				"reading_id", reading.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load environment response"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"reading":     reading,
			"environment": params,
		})
	}
}

// RecentReadings returns the newest readings across all sessions.
func RecentReadings(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := intQuery(c, "limit", defaultRecentLimit, maxRecentLimit)
		readings, err := st.ListRecentReadings(c.Request.Context(), limit)
		if err != nil {
			slog.Error("handlers: failed to list recent readings", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list recent readings"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": len(readings), "readings": readings})
	}
}

// ReadingsBySession returns all readings for one session, newest first.
func ReadingsBySession(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Query("session_id")
		if sessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session_id parameter is required"})
			return
		}
		readings, err := st.ListSessionReadings(c.Request.Context(), sessionID)
		if err != nil {
			slog.Error("handlers: failed to list session readings",
				"session_id", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list session readings"})
			return
		}
		for i, j := 0, len(readings)-1; i < j; i, j = i+1, j-1 {
			readings[i], readings[j] = readings[j], readings[i]
		}
		c.JSON(http.StatusOK, gin.H{
			"session_id": sessionID,
			"count":      len(readings),
			"readings":   readings,
		})
	}
}

// ReadingTrends returns hourly-bucketed averages for the trailing
// period, served from the result cache when fresh.
func ReadingTrends(a *analytics.Analytics, ca *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		hours := intQuery(c, "hours", defaultTrendHours, maxTrendHours)

		var cached analytics.Trends
		if ca.GetTrends(c.Request.Context(), hours, &cached) {
			c.JSON(http.StatusOK, cached)
			return
		}

		trends, err := a.Trends(c.Request.Context(), hours)
		if errors.Is(err, analytics.ErrNoReadings) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no readings in the requested period"})
			return
		}
		if err != nil {
			slog.Error("handlers: failed to compute trends", "hours", hours, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute trends"})
			return
		}
		ca.SetTrends(c.Request.Context(), hours, trends)
		c.JSON(http.StatusOK, trends)
	}
}

// ReadingDistribution returns the dominant-emotion breakdown over all
// stored readings.
func ReadingDistribution(a *analytics.Analytics) gin.HandlerFunc {
	return func(c *gin.Context) {
		dist, err := a.Distribution(c.Request.Context())
		if errors.Is(err, analytics.ErrNoReadings) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no readings recorded yet"})
			return
		}
		if err != nil {
			slog.Error("handlers: failed to compute distribution", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute distribution"})
			return
		}
		c.JSON(http.StatusOK, dist)
	}
}

// intQuery parses a positive integer query parameter with a default
// and an upper bound.
func intQuery(c *gin.Context, name string, def, max int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
