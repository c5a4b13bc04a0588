// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hub

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsEvent struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Message   string         `json:"message"`
	SessionID string         `json:"session_id"`
}

func dialTestServer(t *testing.T, f *pipelineFixture, path string) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/ws/emotions", ServeWS(f.hub, f.pipeline, f.registry, nil, DefaultConnectionConfig()))
	router.GET("/ws/emotions/:sessionId", ServeWS(f.hub, f.pipeline, f.registry, nil, DefaultConnectionConfig()))

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) wsEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev wsEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestServeWS_SessionCreatedOnConnect(t *testing.T) {
	f := newPipelineFixture(t)
	conn := dialTestServer(t, f, "/ws/emotions")

	ev := readEvent(t, conn)
	assert.Equal(t, TypeSessionCreated, ev.Type)
	assert.NotEmpty(t, ev.SessionID)
}

func TestServeWS_ExplicitSessionID(t *testing.T) {
	f := newPipelineFixture(t)
	conn := dialTestServer(t, f, "/ws/emotions/sess-42")

	ev := readEvent(t, conn)
	assert.Equal(t, TypeSessionCreated, ev.Type)
	assert.Equal(t, "sess-42", ev.SessionID)

	// Connecting registers the session as active.
	_, found, err := f.registry.Get(context.Background(), "sess-42")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestServeWS_PingPong(t *testing.T) {
	f := newPipelineFixture(t)
	conn := dialTestServer(t, f, "/ws/emotions/sess-1")
	readEvent(t, conn) // session_created

	require.NoError(t, conn.WriteJSON(map[string]any{"type": TypePing}))
	ev := readEvent(t, conn)
	assert.Equal(t, TypePong, ev.Type)
}

func TestServeWS_EmotionDataRoundTrip(t *testing.T) {
	f := newPipelineFixture(t)
	conn := dialTestServer(t, f, "/ws/emotions/sess-1")
	readEvent(t, conn) // session_created

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":       TypeEmotionData,
		"joy":        0.8,
		"calm":       0.6,
		"energy":     0.9,
		"melancholy": 0.2,
	}))

	ev := readEvent(t, conn)
	require.Equal(t, TypeEmotionUpdate, ev.Type)
	assert.Equal(t, "energy", ev.Data["dominant_emotion"])
	assert.InDelta(t, 0.9, ev.Data["emotion_intensity"].(float64), 1e-9)

	ev = readEvent(t, conn)
	require.Equal(t, TypeCollectiveUpdate, ev.Type)
	assert.Equal(t, float64(1), ev.Data["active_sessions"])
	assert.InDelta(t, 0.9, ev.Data["collective_energy"].(float64), 1e-9)

	// The reading made it to durable storage.
	reading, err := f.store.LatestSessionReading(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.8, reading.Joy, 1e-9)
}

func TestServeWS_ErrorsKeepConnectionOpen(t *testing.T) {
	f := newPipelineFixture(t)
	conn := dialTestServer(t, f, "/ws/emotions/sess-1")
	readEvent(t, conn) // session_created

	// Malformed JSON.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	ev := readEvent(t, conn)
	assert.Equal(t, TypeError, ev.Type)
	assert.Equal(t, "Invalid JSON", ev.Message)

	// Unknown type tag.
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "mystery"}))
	ev = readEvent(t, conn)
	assert.Equal(t, TypeError, ev.Type)
	assert.Equal(t, "unknown message type", ev.Message)

	// Out-of-range component.
	require.NoError(t, conn.WriteJSON(map[string]any{"type": TypeEmotionData, "joy": 1.5}))
	ev = readEvent(t, conn)
	assert.Equal(t, TypeError, ev.Type)
	assert.Contains(t, ev.Message, "joy must be between 0 and 1")

	// The connection is still serviceable after all three errors.
	require.NoError(t, conn.WriteJSON(map[string]any{"type": TypePing}))
	ev = readEvent(t, conn)
	assert.Equal(t, TypePong, ev.Type)
}

func TestServeWS_DisconnectCleansUp(t *testing.T) {
	f := newPipelineFixture(t)
	conn := dialTestServer(t, f, "/ws/emotions/sess-1")
	readEvent(t, conn) // session_created
	require.Equal(t, 1, f.hub.Connections())

	require.NoError(t, conn.Close())

	// Cleanup runs when the read loop notices the closed peer.
	require.Eventually(t, func() bool {
		return f.hub.Connections() == 0
	}, 5*time.Second, 10*time.Millisecond)

	_, found, err := f.registry.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestEventJSONShape(t *testing.T) {
	payload, err := json.Marshal(ErrorEvent("boom"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","message":"boom"}`, string(payload))

	payload, err = json.Marshal(SessionCreatedEvent("sess-1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"session_created","session_id":"sess-1"}`, string(payload))
}
