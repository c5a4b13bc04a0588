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
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/AsmiBhaskar/mood-mirror/services/mirror/observability"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/registry"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// ConnectionConfig bounds a single connection's inbound traffic.
type ConnectionConfig struct {
	// MessageRate and MessageBurst limit emotion_data frames per
	// connection. Over-limit frames get an error reply; the connection
	// stays open.
	MessageRate  rate.Limit
	MessageBurst int

	// MaxFrameBytes caps a single inbound frame.
	MaxFrameBytes int64
}

// DefaultConnectionConfig allows 10 readings/second with a burst of 20
// and 4 KiB frames, generous for human-driven affect telemetry.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		MessageRate:   10,
		MessageBurst:  20,
		MaxFrameBytes: 4096,
	}
}

// ServeWS returns the gin handler that upgrades a connection and runs
// its lifecycle: Connecting (upgrade) → Open (subscribed, registered,
// dispatching frames) → Closed (unsubscribed, deregistered). Closed is
// terminal; cleanup runs synchronously before the handler returns,
// whoever initiated the close.
func ServeWS(h *Hub, pipeline *Pipeline, reg *registry.Registry, metrics *observability.Metrics, cfg ConnectionConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("hub: failed to upgrade websocket", "error", err)
			return
		}
		defer ws.Close()

		sessionID := c.Param("sessionId")
		if sessionID == "" {
			sessionID = c.Query("session_id")
		}
		if sessionID == "" {
			sessionID = uuid.New().String()
		}

		if cfg.MaxFrameBytes > 0 {
			ws.SetReadLimit(cfg.MaxFrameBytes)
		}

		sub := h.Subscribe(sessionID)
		if metrics != nil {
			metrics.ConnectionOpened()
		}
		userID := c.Query("user_id")
		ctx := c.Request.Context()
		if err := reg.Touch(ctx, sessionID, userID); err != nil {
			slog.Warn("hub: registry touch on connect failed", "session_id", sessionID, "error", err)
		}
		slog.Info("hub: websocket client connected", "session_id", sessionID)

		// Write loop: the subscriber channel serializes replies and
		// broadcasts onto this connection. Exits when Unsubscribe
		// closes the channel.
		writeDone := make(chan struct{})
		go func() {
			defer close(writeDone)
			for ev := range sub.Events() {
				if err := ws.WriteJSON(ev); err != nil {
					slog.Warn("hub: failed to write websocket frame",
						"session_id", sessionID, "error", err)
					return
				}
			}
		}()

		defer func() {
			// Entering Closed: leave both groups and release the
			// registry entry before the handler returns.
			h.Unsubscribe(sub)
			<-writeDone
			if err := reg.Remove(ctx, sessionID); err != nil {
				slog.Warn("hub: registry remove on disconnect failed",
					"session_id", sessionID, "error", err)
			}
			if metrics != nil {
				metrics.ConnectionClosed()
			}
			slog.Info("hub: websocket client disconnected", "session_id", sessionID)
		}()

		h.Send(sub, SessionCreatedEvent(sessionID))

		limiter := rate.NewLimiter(cfg.MessageRate, cfg.MessageBurst)

		for {
			_, frame, err := ws.ReadMessage()
			if err != nil {
				// Peer disconnect or transport loss terminates just
				// this connection.
				return
			}

			var msg Inbound
			if err := json.Unmarshal(frame, &msg); err != nil {
				if metrics != nil {
					metrics.RecordError("hub", observability.ErrorCodeProtocol)
				}
				h.Send(sub, ErrorEvent("Invalid JSON"))
				continue
			}

			switch msg.Type {
			case TypePing:
				h.Send(sub, PongEvent())

			case TypeEmotionData:
				if !limiter.Allow() {
					if metrics != nil {
						metrics.RecordError("hub", observability.ErrorCodeProtocol)
					}
					h.Send(sub, ErrorEvent("rate limit exceeded"))
					continue
				}
				v := msg.Vector()
				if err := v.Validate(); err != nil {
					if metrics != nil {
						metrics.RecordError("hub", observability.ErrorCodeValidation)
					}
					h.Send(sub, ErrorEvent(err.Error()))
					continue
				}
				if _, err := pipeline.Process(ctx, sessionID, userID, v, "websocket"); err != nil {
					slog.Error("hub: failed to process reading",
						"session_id", sessionID, "error", err)
					h.Send(sub, ErrorEvent("failed to process emotion data"))
				}

			default:
				if metrics != nil {
					metrics.RecordError("hub", observability.ErrorCodeProtocol)
				}
				h.Send(sub, ErrorEvent("unknown message type"))
			}
		}
	}
}
