// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AsmiBhaskar/mood-mirror/services/mirror/aggregate"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/analytics"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/cache"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/handlers"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/hub"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/observability"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/registry"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/store"
)

// Deps bundles the collaborators the route table needs. Everything is
// constructed in the serve command and threaded through here.
type Deps struct {
	Store      store.Store
	Cache      *cache.Cache
	Registry   *registry.Registry
	Analytics  *analytics.Analytics
	Collective *aggregate.Aggregator
	Hub        *hub.Hub
	Pipeline   *hub.Pipeline
	Metrics    *observability.Metrics
	WSConfig   hub.ConnectionConfig
}

func SetupRoutes(router *gin.Engine, d Deps) {

	router.GET("/health", handlers.Liveness())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Realtime channel; the variant without a session id mints one and
	// replies with session_created.
	router.GET("/ws/emotions", hub.ServeWS(d.Hub, d.Pipeline, d.Registry, d.Metrics, d.WSConfig))
	router.GET("/ws/emotions/:sessionId", hub.ServeWS(d.Hub, d.Pipeline, d.Registry, d.Metrics, d.WSConfig))

	api := router.Group("/api")
	{
		readings := api.Group("/readings")
		{
			readings.POST("", handlers.CreateReading(d.Pipeline, d.Store))
			readings.GET("/recent", handlers.RecentReadings(d.Store))
			readings.GET("/by_session", handlers.ReadingsBySession(d.Store))
			readings.GET("/trends", handlers.ReadingTrends(d.Analytics, d.Cache))
			readings.GET("/distribution", handlers.ReadingDistribution(d.Analytics))
		}

		sessions := api.Group("/sessions")
		{
			sessions.GET("/active", handlers.ActiveSessions(d.Registry, d.Store))
			sessions.GET("/:sessionId/analytics", handlers.SessionAnalytics(d.Analytics, d.Cache))
			sessions.GET("/:sessionId/insights", handlers.SessionInsights(d.Analytics))
			sessions.POST("/:sessionId/end", handlers.EndSession(d.Store, d.Registry, d.Cache))
		}

		api.GET("/collective/current", handlers.CurrentCollective(d.Collective, d.Cache))
		api.GET("/environment/for_session", handlers.EnvironmentForSession(d.Store))
		api.GET("/system/health", handlers.SystemHealth(d.Analytics, d.Cache, d.Hub))
	}
}
