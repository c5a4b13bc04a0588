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
	"log/slog"
	"sync"

	"github.com/AsmiBhaskar/mood-mirror/services/mirror/observability"
)

// sendBuffer is the per-subscriber event queue depth. A subscriber
// that cannot drain this many events has its oldest deliveries dropped;
// live updates are best-effort, not exactly-once.
const sendBuffer = 32

// Subscriber is one open connection's view of the hub: a session id
// and a buffered event channel drained by the connection's write loop.
type Subscriber struct {
	SessionID string
	send      chan Event
}

// Events returns the channel the connection's write loop drains. The
// hub closes it on Unsubscribe.
func (s *Subscriber) Events() <-chan Event {
	return s.send
}

// Hub maintains the per-session subscriber groups and the single
// global collective group.
//
// # Thread Safety
//
// Safe for concurrent use. Deliveries happen under the read lock and
// channel close under the write lock, so a send never races a close.
type Hub struct {
	mu         sync.RWMutex
	sessions   map[string]map[*Subscriber]struct{}
	collective map[*Subscriber]struct{}
	metrics    *observability.Metrics
}

// New creates an empty Hub. Metrics may be nil in tests.
func New(metrics *observability.Metrics) *Hub {
	return &Hub{
		sessions:   make(map[string]map[*Subscriber]struct{}),
		collective: make(map[*Subscriber]struct{}),
		metrics:    metrics,
	}
}

// Subscribe registers a new subscriber for the given session. Per the
// connection state machine, entering Open joins both the session group
// and the global collective group.
func (h *Hub) Subscribe(sessionID string) *Subscriber {
	sub := &Subscriber{
		SessionID: sessionID,
		send:      make(chan Event, sendBuffer),
	}

	h.mu.Lock()
	group, ok := h.sessions[sessionID]
	if !ok {
		group = make(map[*Subscriber]struct{})
		h.sessions[sessionID] = group
	}
	group[sub] = struct{}{}
	h.collective[sub] = struct{}{}
	h.mu.Unlock()

	return sub
}

// Unsubscribe removes the subscriber from both groups and closes its
// event channel. Idempotent; safe to call from a deferred cleanup.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.collective[sub]; !ok {
		return
	}
	delete(h.collective, sub)
	if group, ok := h.sessions[sub.SessionID]; ok {
		delete(group, sub)
		if len(group) == 0 {
			delete(h.sessions, sub.SessionID)
		}
	}
	close(sub.send)
}

// Send queues an event for a single subscriber (pong, error replies).
func (h *Hub) Send(sub *Subscriber, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.collective[sub]; !ok {
		return
	}
	h.deliver(sub, ev, "session")
}

// BroadcastSession delivers an event to every subscriber of a session.
func (h *Hub) BroadcastSession(sessionID string, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.sessions[sessionID] {
		h.deliver(sub, ev, "session")
	}
}

// BroadcastCollective delivers an event to every open connection.
func (h *Hub) BroadcastCollective(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.collective {
		h.deliver(sub, ev, "collective")
	}
}

// SessionSubscribers reports the current group size for a session.
func (h *Hub) SessionSubscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// Connections reports the total number of open subscribers.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.collective)
}

// deliver performs one non-blocking send. Callers hold at least the
// read lock.
func (h *Hub) deliver(sub *Subscriber, ev Event, group string) {
	select {
	case sub.send <- ev:
		if h.metrics != nil {
			h.metrics.RecordBroadcast(group, true)
		}
	default:
		if h.metrics != nil {
			h.metrics.RecordBroadcast(group, false)
		}
		slog.Warn("hub: subscriber queue full, dropping event",
			"session_id", sub.SessionID,
			"type", ev.Type,
		)
	}
}
