// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package hub is the realtime heart of the mood mirror: it accepts
// websocket connections, runs each inbound reading through the
// synthesis/aggregation pipeline, and fans out update events to all
// subscribers of a session and of the global collective channel.
package hub

import (
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/aggregate"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/emotion"
)

// Wire message types. Client to server: emotion_data, ping. Server to
// client: the rest.
const (
	TypeEmotionData      = "emotion_data"
	TypePing             = "ping"
	TypePong             = "pong"
	TypeError            = "error"
	TypeEmotionUpdate    = "emotion_update"
	TypeCollectiveUpdate = "collective_update"
	TypeSessionCreated   = "session_created"
)

// Inbound is a client frame. Missing emotion fields default to zero,
// matching the historical wire behavior; out-of-range values are
// rejected by validation.
type Inbound struct {
	Type       string  `json:"type"`
	Joy        float64 `json:"joy"`
	Calm       float64 `json:"calm"`
	Energy     float64 `json:"energy"`
	Melancholy float64 `json:"melancholy"`
}

// Vector extracts the emotion payload of an emotion_data frame.
func (m Inbound) Vector() emotion.Vector {
	return emotion.Vector{
		Joy:        m.Joy,
		Calm:       m.Calm,
		Energy:     m.Energy,
		Melancholy: m.Melancholy,
	}
}

// Event is a server frame. Data carries the typed payload for update
// events; Message carries human-readable error text.
type Event struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Message   string `json:"message,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// PongEvent answers a ping. No state changes.
func PongEvent() Event {
	return Event{Type: TypePong}
}

// ErrorEvent reports a per-connection error; the connection stays open.
func ErrorEvent(message string) Event {
	return Event{Type: TypeError, Message: message}
}

// SessionCreatedEvent tells a fresh connection which session id it was
// assigned.
func SessionCreatedEvent(sessionID string) Event {
	return Event{Type: TypeSessionCreated, SessionID: sessionID}
}

// EmotionUpdateEvent carries a processed reading to the session group.
func EmotionUpdateEvent(r emotion.Reading) Event {
	return Event{Type: TypeEmotionUpdate, Data: r}
}

// CollectiveUpdateEvent carries a fresh collective snapshot to the
// global group.
func CollectiveUpdateEvent(c aggregate.Collective) Event {
	return Event{Type: TypeCollectiveUpdate, Data: c}
}
