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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AsmiBhaskar/mood-mirror/services/mirror/aggregate"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/cache"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/emotion"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/observability"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/registry"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/store"
)

// Pipeline runs one validated reading through the full sequence:
// synthesize environment parameters, persist reading and parameters,
// recompute the session aggregate, refresh the registry, recompute the
// collective snapshot, then fan out both update events.
//
// Ordering guarantee: a connection processes one reading to completion
// before accepting the next, so updates to a single session from the
// same connection are strictly ordered. There is no ordering across
// sessions; the collective snapshot may interleave with concurrent
// session updates, which the contract accepts.
//
// # Thread Safety
//
// Safe for concurrent use from many connection tasks; all shared state
// lives behind the store/registry/cache interfaces.
type Pipeline struct {
	store      store.Store
	cache      *cache.Cache
	registry   *registry.Registry
	collective *aggregate.Aggregator
	hub        *Hub
	metrics    *observability.Metrics
	now        func() time.Time
}

// NewPipeline wires the pipeline. Metrics may be nil in tests; now
// defaults to time.Now.
func NewPipeline(
	st store.Store,
	c *cache.Cache,
	reg *registry.Registry,
	collective *aggregate.Aggregator,
	h *Hub,
	metrics *observability.Metrics,
) *Pipeline {
	return &Pipeline{
		store:      st,
		cache:      c,
		registry:   reg,
		collective: collective,
		hub:        h,
		metrics:    metrics,
		now:        time.Now,
	}
}

// Process handles one validated emotion vector for a session.
//
// # Description
//
// The durable-store writes are the failure boundary: if the reading
// cannot be persisted it is dropped and the error reported to the
// caller, with nothing broadcast. Cache writes never fail the pipeline.
// A collective recompute that finds no qualifying session (possible
// only if the session was concurrently deactivated) skips the
// collective event rather than broadcasting zeros.
//
// # Inputs
//
//   - ctx: Per-connection context.
//   - sessionID, userID: Session attribution; userID may be empty.
//   - v: Pre-validated emotion vector.
//   - source: Metrics label ("websocket" or "rest").
//
// # Outputs
//
//   - emotion.Reading: The persisted reading with derived fields.
//   - error: Non-nil when the reading was dropped.
func (p *Pipeline) Process(ctx context.Context, sessionID, userID string, v emotion.Vector, source string) (emotion.Reading, error) {
	start := p.now()

	reading, err := p.store.CreateReading(ctx, sessionID, v, start)
	if err != nil {
		p.fail(source, "store", observability.ErrorCodeUpstream)
		return emotion.Reading{}, fmt.Errorf("create reading: %w", err)
	}

	params := emotion.Synthesize(v)
	if err := p.store.CreateEnvironmentParameters(ctx, reading.ID, params); err != nil {
		p.fail(source, "store", observability.ErrorCodeUpstream)
		return emotion.Reading{}, fmt.Errorf("create environment parameters: %w", err)
	}

	if err := p.updateSessionAggregate(ctx, sessionID, userID, start); err != nil {
		p.fail(source, "store", observability.ErrorCodeUpstream)
		return emotion.Reading{}, err
	}

	if err := p.registry.Touch(ctx, sessionID, userID); err != nil {
		// The registry is ephemeral state; a failed refresh degrades
		// liveness tracking but must not drop the reading.
		slog.Warn("pipeline: registry touch failed", "session_id", sessionID, "error", err)
		if p.metrics != nil {
			p.metrics.RecordError("registry", observability.ErrorCodeUpstream)
		}
	}

	p.cache.SetLatestReading(ctx, reading)

	collective, collectiveErr := p.collective.Compute(ctx, p.now())
	if collectiveErr == nil {
		p.cache.SetCollective(ctx, collective)
		if p.metrics != nil {
			p.metrics.CollectiveRecomputesTotal.Inc()
		}
	} else if !errors.Is(collectiveErr, aggregate.ErrNoActiveSessions) {
		p.fail(source, "store", observability.ErrorCodeInternal)
		return emotion.Reading{}, fmt.Errorf("compute collective: %w", collectiveErr)
	}

	p.hub.BroadcastSession(sessionID, EmotionUpdateEvent(reading))
	if collectiveErr == nil {
		p.hub.BroadcastCollective(CollectiveUpdateEvent(collective))
	}

	if p.metrics != nil {
		p.metrics.RecordReading(source, true)
		p.metrics.PipelineDurationSeconds.WithLabelValues(source).Observe(time.Since(start).Seconds())
	}
	return reading, nil
}

// updateSessionAggregate recomputes the session's running means over
// its full reading history and persists the result. Recording against
// an unknown session id implicitly creates an active aggregate.
func (p *Pipeline) updateSessionAggregate(ctx context.Context, sessionID, userID string, now time.Time) error {
	sess, err := p.store.GetSessionAggregate(ctx, sessionID)
	if errors.Is(err, store.ErrSessionNotFound) {
		sess = aggregate.NewSession(sessionID, now)
		sess.UserID = userID
	} else if err != nil {
		return fmt.Errorf("load session aggregate: %w", err)
	}

	readings, err := p.store.ListSessionReadings(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("list session readings: %w", err)
	}
	sess.Recompute(readings, now)

	if err := p.store.UpsertSessionAggregate(ctx, sess); err != nil {
		return fmt.Errorf("upsert session aggregate: %w", err)
	}
	return nil
}

func (p *Pipeline) fail(source, component string, code observability.ErrorCode) {
	if p.metrics == nil {
		return
	}
	p.metrics.RecordReading(source, false)
	p.metrics.RecordError(component, code)
}
