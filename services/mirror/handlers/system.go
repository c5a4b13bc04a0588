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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AsmiBhaskar/mood-mirror/services/mirror/analytics"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/cache"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/hub"
)

// SystemHealth serves the activity/database snapshot, cached for one
// minute to keep the counting queries off the hot path.
func SystemHealth(a *analytics.Analytics, ca *cache.Cache, h *hub.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		var cached analytics.SystemHealth
		if ca.GetHealth(ctx, &cached) {
			c.JSON(http.StatusOK, gin.H{
				"health":      cached,
				"connections": h.Connections(),
			})
			return
		}

		health, err := a.SystemHealth(ctx)
		if err != nil {
			slog.Error("handlers: failed to compute system health", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute system health"})
			return
		}
		ca.SetHealth(ctx, health)
		c.JSON(http.StatusOK, gin.H{
			"health":      health,
			"connections": h.Connections(),
		})
	}
}

// Liveness is the unauthenticated probe endpoint.
func Liveness() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
