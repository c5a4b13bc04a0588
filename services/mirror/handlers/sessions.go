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

	"github.com/AsmiBhaskar/mood-mirror/services/mirror/analytics"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/cache"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/registry"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/store"
)

// activeSessionFallbackWindow bounds the store-side activity query
// used when the registry backend is unavailable.
const activeSessionFallbackWindow = 30 * time.Minute

// SessionAnalytics serves the comprehensive per-session report,
// cache-aside with a 30 minute freshness budget.
func SessionAnalytics(a *analytics.Analytics, ca *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")

		var cached analytics.SessionAnalytics
		if ca.GetSessionAnalytics(c.Request.Context(), sessionID, &cached) {
			c.JSON(http.StatusOK, cached)
			return
		}

		report, err := a.SessionAnalytics(c.Request.Context(), sessionID)
		if errors.Is(err, store.ErrSessionNotFound) || errors.Is(err, analytics.ErrNoReadings) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no readings found for this session"})
			return
		}
		if err != nil {
			slog.Error("handlers: failed to compute session analytics",
				"session_id", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute session analytics"})
			return
		}
		ca.SetSessionAnalytics(c.Request.Context(), sessionID, report)
		c.JSON(http.StatusOK, report)
	}
}

// SessionInsights serves the statistical deep-dive for one session:
// volatility, progression, and peak/low moments.
func SessionInsights(a *analytics.Analytics) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")

		insights, err := a.SessionInsights(c.Request.Context(), sessionID)
		if errors.Is(err, store.ErrSessionNotFound) || errors.Is(err, analytics.ErrNoReadings) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no readings found for this session"})
			return
		}
		if err != nil {
			slog.Error("handlers: failed to compute session insights",
				"session_id", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute session insights"})
			return
		}
		c.JSON(http.StatusOK, insights)
	}
}

// EndSession marks a session inactive, removes it from the liveness
// registry, and invalidates its cached analytics. The final aggregate
// is returned as the session summary.
func EndSession(st store.Store, reg *registry.Registry, ca *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		ctx := c.Request.Context()

		sess, err := st.GetSessionAggregate(ctx, sessionID)
		if errors.Is(err, store.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		if err != nil {
			slog.Error("handlers: failed to load session", "session_id", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
			return
		}

		sess.IsActive = false
		if err := st.UpsertSessionAggregate(ctx, sess); err != nil {
			slog.Error("handlers: failed to end session", "session_id", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to end session"})
			return
		}
		if err := reg.Remove(ctx, sessionID); err != nil {
			slog.Warn("handlers: registry remove on session end failed",
				"session_id", sessionID, "error", err)
		}
		ca.InvalidateSessionAnalytics(ctx, sessionID)

		slog.Info("handlers: session ended", "session_id", sessionID,
			"total_readings", sess.TotalReadings)
		c.JSON(http.StatusOK, gin.H{
			"message": "session ended",
			"session": sess,
		})
	}
}

// ActiveSessions lists sessions the registry currently considers live.
// When the registry backend is unavailable the handler degrades to the
// durable aggregates' activity window instead of failing.
func ActiveSessions(reg *registry.Registry, st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if reg.Available() {
			records, err := reg.ListActive(ctx)
			if err == nil {
				c.JSON(http.StatusOK, gin.H{
					"count":           len(records),
					"active_sessions": records,
				})
				return
			}
			slog.Warn("handlers: registry listing failed, falling back to store", "error", err)
		}

		sessions, err := st.ListActiveSessionAggregates(ctx, activeSessionFallbackWindow)
		if err != nil {
			slog.Error("handlers: failed to list active sessions", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list active sessions"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"count":           len(sessions),
			"active_sessions": sessions,
		})
	}
}
