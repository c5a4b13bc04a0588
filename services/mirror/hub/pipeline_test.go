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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AsmiBhaskar/mood-mirror/services/mirror/aggregate"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/cache"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/emotion"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/registry"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/storage/badgerkv"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/store"
)

type pipelineFixture struct {
	store    *store.BadgerStore
	cache    *cache.Cache
	registry *registry.Registry
	hub      *Hub
	pipeline *Pipeline
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	kv, err := badgerkv.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	st := store.NewBadgerStore(kv)
	ca := cache.New(kv)
	reg := registry.New(kv, registry.DefaultTTL)
	collective := aggregate.NewAggregator(st.ListActiveSessionAggregates, aggregate.DefaultWindow)
	h := New(nil)

	return &pipelineFixture{
		store:    st,
		cache:    ca,
		registry: reg,
		hub:      h,
		pipeline: NewPipeline(st, ca, reg, collective, h, nil),
	}
}

func TestPipeline_ProcessPersistsEverything(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	v := emotion.Vector{Joy: 0.8, Calm: 0.6, Energy: 0.9, Melancholy: 0.2}
	reading, err := f.pipeline.Process(ctx, "sess-1", "user-1", v, "websocket")
	require.NoError(t, err)

	assert.Equal(t, "sess-1", reading.SessionID)
	assert.Equal(t, emotion.Energy, reading.DominantEmotion)
	assert.Equal(t, 0.9, reading.EmotionIntensity)

	// Reading and environment parameters are durable.
	stored, err := f.store.LatestSessionReading(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, reading.ID, stored.ID)

	params, err := f.store.GetEnvironmentParameters(ctx, reading.ID)
	require.NoError(t, err)
	assert.Equal(t, emotion.Synthesize(v), params)

	// The session aggregate was implicitly created and recomputed.
	sess, err := f.store.GetSessionAggregate(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", sess.UserID)
	assert.Equal(t, 1, sess.TotalReadings)
	assert.InDelta(t, 0.8, sess.AverageJoy, 1e-9)
	assert.True(t, sess.IsActive)

	// The registry saw the activity.
	_, found, err := f.registry.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, found)

	// The latest reading and the collective snapshot are cached.
	cached, ok := f.cache.GetLatestReading(ctx, "sess-1")
	require.True(t, ok)
	assert.Equal(t, reading.ID, cached.ID)

	col, ok := f.cache.GetCollective(ctx)
	require.True(t, ok)
	assert.Equal(t, 1, col.ActiveSessions)
	assert.Equal(t, 1, col.TotalReadingsProcessed)
}

func TestPipeline_ProcessBroadcastsUpdates(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	sub := f.hub.Subscribe("sess-1")
	other := f.hub.Subscribe("sess-2")

	v := emotion.Vector{Joy: 0.8, Calm: 0.6, Energy: 0.9, Melancholy: 0.2}
	_, err := f.pipeline.Process(ctx, "sess-1", "", v, "websocket")
	require.NoError(t, err)

	ev := <-sub.Events()
	require.Equal(t, TypeEmotionUpdate, ev.Type)
	reading, ok := ev.Data.(emotion.Reading)
	require.True(t, ok)
	assert.Equal(t, emotion.Energy, reading.DominantEmotion)
	assert.Equal(t, 0.9, reading.EmotionIntensity)

	ev = <-sub.Events()
	require.Equal(t, TypeCollectiveUpdate, ev.Type)
	col, ok := ev.Data.(aggregate.Collective)
	require.True(t, ok)
	assert.Equal(t, 1, col.ActiveSessions)
	assert.InDelta(t, 0.9, col.CollectiveEnergy, 1e-9)

	// The other session only sees the collective update.
	ev = <-other.Events()
	assert.Equal(t, TypeCollectiveUpdate, ev.Type)
	select {
	case ev := <-other.Events():
		t.Fatalf("unexpected extra event for other session: %v", ev.Type)
	default:
	}
}

func TestPipeline_SessionAveragesAccumulate(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	_, err := f.pipeline.Process(ctx, "sess-1", "", emotion.Vector{Joy: 0.8}, "rest")
	require.NoError(t, err)
	_, err = f.pipeline.Process(ctx, "sess-1", "", emotion.Vector{Joy: 0.5}, "rest")
	require.NoError(t, err)

	sess, err := f.store.GetSessionAggregate(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 2, sess.TotalReadings)
	assert.InDelta(t, 0.65, sess.AverageJoy, 1e-9)
	assert.WithinDuration(t, time.Now(), sess.LastActivity, 5*time.Second)
}

func TestInbound_Vector(t *testing.T) {
	m := Inbound{Type: TypeEmotionData, Joy: 0.1, Calm: 0.2, Energy: 0.3, Melancholy: 0.4}
	assert.Equal(t, emotion.Vector{Joy: 0.1, Calm: 0.2, Energy: 0.3, Melancholy: 0.4}, m.Vector())
}
