// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AsmiBhaskar/mood-mirror/services/mirror/aggregate"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/analytics"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/cache"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/hub"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/registry"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/routes"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/storage/badgerkv"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/store"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	kv, err := badgerkv.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	st := store.NewBadgerStore(kv)
	ca := cache.New(kv)
	reg := registry.New(kv, registry.DefaultTTL)
	collective := aggregate.NewAggregator(st.ListActiveSessionAggregates, aggregate.DefaultWindow)
	h := hub.New(nil)
	pipeline := hub.NewPipeline(st, ca, reg, collective, h, nil)

	router := gin.New()
	routes.SetupRoutes(router, routes.Deps{
		Store:      st,
		Cache:      ca,
		Registry:   reg,
		Analytics:  analytics.New(st),
		Collective: collective,
		Hub:        h,
		Pipeline:   pipeline,
		WSConfig:   hub.DefaultConnectionConfig(),
	})
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func postReading(t *testing.T, router *gin.Engine, sessionID string, joy, calm, energy, melancholy float64) {
	t.Helper()
	w, _ := doJSON(t, router, http.MethodPost, "/api/readings", map[string]any{
		"session_id": sessionID,
		"joy":        joy,
		"calm":       calm,
		"energy":     energy,
		"melancholy": melancholy,
	})
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestCreateReading(t *testing.T) {
	router := newTestRouter(t)

	w, body := doJSON(t, router, http.MethodPost, "/api/readings", map[string]any{
		"session_id": "sess-1",
		"joy":        0.2,
		"calm":       0.9,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	reading := body["reading"].(map[string]any)
	assert.Equal(t, "sess-1", reading["session_id"])
	assert.Equal(t, "calm", reading["dominant_emotion"])
	assert.NotEmpty(t, reading["id"])

	env := body["environment"].(map[string]any)
	assert.Equal(t, "#2E8B57", env["background_color"])
	assert.Equal(t, "peaceful", env["audio_tone"])
}

func TestCreateReading_Validation(t *testing.T) {
	router := newTestRouter(t)

	w, body := doJSON(t, router, http.MethodPost, "/api/readings", map[string]any{
		"session_id": "sess-1",
		"joy":        1.5,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["error"], "Joy")
}

func TestRecentAndBySessionReadings(t *testing.T) {
	router := newTestRouter(t)

	postReading(t, router, "sess-1", 0.9, 0, 0, 0)
	postReading(t, router, "sess-1", 0.1, 0.8, 0, 0)
	postReading(t, router, "sess-2", 0, 0, 0.7, 0)

	w, body := doJSON(t, router, http.MethodGet, "/api/readings/recent?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), body["count"])

	w, body = doJSON(t, router, http.MethodGet, "/api/readings/by_session?session_id=sess-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), body["count"])
	readings := body["readings"].([]any)
	// Newest first.
	first := readings[0].(map[string]any)
	assert.Equal(t, "calm", first["dominant_emotion"])

	w, _ = doJSON(t, router, http.MethodGet, "/api/readings/by_session", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReadingDistribution(t *testing.T) {
	router := newTestRouter(t)

	w, _ := doJSON(t, router, http.MethodGet, "/api/readings/distribution", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	postReading(t, router, "sess-1", 0.9, 0, 0, 0)
	postReading(t, router, "sess-1", 0, 0.9, 0, 0)

	w, body := doJSON(t, router, http.MethodGet, "/api/readings/distribution", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), body["total_readings"])
	assert.Len(t, body["distribution"].([]any), 2)
}

func TestReadingTrends(t *testing.T) {
	router := newTestRouter(t)

	w, _ := doJSON(t, router, http.MethodGet, "/api/readings/trends", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	postReading(t, router, "sess-1", 0.5, 0.5, 0, 0)

	w, body := doJSON(t, router, http.MethodGet, "/api/readings/trends?hours=6", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(6), body["period_hours"])
	assert.Equal(t, float64(1), body["total_readings"])
}

func TestSessionAnalyticsEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w, _ := doJSON(t, router, http.MethodGet, "/api/sessions/missing/analytics", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	postReading(t, router, "sess-1", 0.8, 0, 0, 0)
	postReading(t, router, "sess-1", 0.4, 0, 0, 0)

	w, body := doJSON(t, router, http.MethodGet, "/api/sessions/sess-1/analytics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sess-1", body["session_id"])
	assert.Equal(t, float64(2), body["total_readings"])
	assert.InDelta(t, 0.6, body["averages"].(map[string]any)["joy"].(float64), 1e-9)

	// Second request is served from the cache and must agree.
	w, cached := doJSON(t, router, http.MethodGet, "/api/sessions/sess-1/analytics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, body["total_readings"], cached["total_readings"])
}

func TestSessionInsightsEndpoint(t *testing.T) {
	router := newTestRouter(t)

	postReading(t, router, "sess-1", 0.2, 0, 0, 0)
	postReading(t, router, "sess-1", 0.8, 0, 0, 0)

	w, body := doJSON(t, router, http.MethodGet, "/api/sessions/sess-1/insights", nil)
	require.Equal(t, http.StatusOK, w.Code)

	progression := body["progression"].(map[string]any)
	assert.InDelta(t, 0.6, progression["joy_change"].(float64), 1e-9)
}

func TestEndSession(t *testing.T) {
	router := newTestRouter(t)

	w, _ := doJSON(t, router, http.MethodPost, "/api/sessions/missing/end", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	postReading(t, router, "sess-1", 0.5, 0, 0, 0)

	w, body := doJSON(t, router, http.MethodPost, "/api/sessions/sess-1/end", nil)
	require.Equal(t, http.StatusOK, w.Code)
	sess := body["session"].(map[string]any)
	assert.Equal(t, false, sess["is_active"])

	// An ended session no longer feeds the collective.
	w, body = doJSON(t, router, http.MethodGet, "/api/collective/current", nil)
	require.Equal(t, http.StatusOK, w.Code)
	if msg, ok := body["message"]; ok {
		assert.Equal(t, "no active sessions", msg)
	}
}

func TestActiveSessions(t *testing.T) {
	router := newTestRouter(t)

	w, body := doJSON(t, router, http.MethodGet, "/api/sessions/active", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), body["count"])

	postReading(t, router, "sess-1", 0.5, 0, 0, 0)

	w, body = doJSON(t, router, http.MethodGet, "/api/sessions/active", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["count"])
}

func TestCurrentCollective(t *testing.T) {
	router := newTestRouter(t)

	postReading(t, router, "sess-1", 0.8, 0, 0, 0)
	postReading(t, router, "sess-2", 0.2, 0, 0, 0)

	w, body := doJSON(t, router, http.MethodGet, "/api/collective/current", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), body["active_sessions"])
	assert.InDelta(t, 0.5, body["collective_joy"].(float64), 1e-9)
	assert.Equal(t, "joy", body["dominant_collective_emotion"])
}

func TestEnvironmentForSession(t *testing.T) {
	router := newTestRouter(t)

	w, _ := doJSON(t, router, http.MethodGet, "/api/environment/for_session", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(t, router, http.MethodGet, "/api/environment/for_session?session_id=missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	postReading(t, router, "sess-1", 0, 0, 0.9, 0)

	w, body := doJSON(t, router, http.MethodGet, "/api/environment/for_session?session_id=sess-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sess-1", body["session_id"])
	env := body["environment"].(map[string]any)
	assert.Equal(t, "dynamic_particles", env["visual_pattern"])
	assert.Equal(t, "energetic", env["audio_tone"])
}

func TestSystemHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	postReading(t, router, "sess-1", 0.5, 0, 0, 0)

	w, body := doJSON(t, router, http.MethodGet, "/api/system/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	health := body["health"].(map[string]any)
	activity := health["activity"].(map[string]any)
	assert.Equal(t, float64(1), activity["recent_readings_1h"])
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, float64(0), body["connections"])
}

func TestLiveness(t *testing.T) {
	router := newTestRouter(t)

	w, body := doJSON(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestRecentReadingsLimitBounds(t *testing.T) {
	router := newTestRouter(t)
	for i := 0; i < 3; i++ {
		postReading(t, router, fmt.Sprintf("sess-%d", i), 0.5, 0, 0, 0)
	}

	// A nonsense limit falls back to the default.
	w, body := doJSON(t, router, http.MethodGet, "/api/readings/recent?limit=oops", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), body["count"])
}
