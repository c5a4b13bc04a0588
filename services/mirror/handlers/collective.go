// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AsmiBhaskar/mood-mirror/services/mirror/aggregate"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/cache"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/store"
)

// CurrentCollective serves the collective snapshot: cached when fresh,
// otherwise recomputed and re-cached. An empty room is reported as an
// explicit "no active sessions" body, never as a zeroed aggregate.
func CurrentCollective(agg *aggregate.Aggregator, ca *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if cached, ok := ca.GetCollective(ctx); ok {
			c.JSON(http.StatusOK, cached)
			return
		}

		collective, err := agg.Compute(ctx, time.Now())
		if errors.Is(err, aggregate.ErrNoActiveSessions) {
			c.JSON(http.StatusOK, gin.H{
				"message":         "no active sessions",
				"active_sessions": 0,
			})
			return
		}
		if err != nil {
			slog.Error("handlers: failed to compute collective", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute collective emotions"})
			return
		}
		ca.SetCollective(ctx, collective)
		c.JSON(http.StatusOK, collective)
	}
}

// EnvironmentForSession returns the environment parameters derived
// from a session's most recent reading.
func EnvironmentForSession(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Query("session_id")
		if sessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session_id parameter is required"})
			return
		}
		ctx := c.Request.Context()

		reading, err := st.LatestSessionReading(ctx, sessionID)
		if errors.Is(err, store.ErrReadingNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no readings found for this session"})
			return
		}
		if err != nil {
			slog.Error("handlers: failed to load latest reading",
				"session_id", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load latest reading"})
			return
		}

		params, err := st.GetEnvironmentParameters(ctx, reading.ID)
		if errors.Is(err, store.ErrReadingNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no environment response for this session"})
			return
		}
		if err != nil {
			slog.Error("handlers: failed to load environment parameters",
				"reading_id", reading.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load environment response"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"session_id":  sessionID,
			"reading_id":  reading.ID,
			"timestamp":   reading.Timestamp,
			"environment": params,
		})
	}
}
