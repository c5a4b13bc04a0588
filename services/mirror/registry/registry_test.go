// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AsmiBhaskar/mood-mirror/services/mirror/storage/badgerkv"
)

func newTestRegistry(t *testing.T, ttl time.Duration) *Registry {
	t.Helper()
	kv, err := badgerkv.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return New(kv, ttl)
}

func TestRegistry_TouchGetRemove(t *testing.T) {
	reg := newTestRegistry(t, DefaultTTL)
	ctx := context.Background()

	require.NoError(t, reg.Touch(ctx, "sess-1", "user-7"))

	rec, found, err := reg.Get(ctx, "sess-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "sess-1", rec.SessionID)
	assert.Equal(t, "user-7", rec.UserID)
	assert.True(t, rec.IsActive)
	assert.WithinDuration(t, time.Now(), rec.LastActivity, 5*time.Second)

	ids, err := reg.ListActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"sess-1"}, ids)

	count, err := reg.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, reg.Remove(ctx, "sess-1"))

	_, found, err = reg.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.False(t, found)

	count, err = reg.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRegistry_ExpiredRecordNeverListed(t *testing.T) {
	// BadgerDB TTL granularity is one second; use a short TTL and wait
	// past it.
	reg := newTestRegistry(t, time.Second)
	ctx := context.Background()

	require.NoError(t, reg.Touch(ctx, "sess-1", ""))
	time.Sleep(2 * time.Second)

	// The membership marker has no TTL and still exists, but the
	// expired record must keep the session out of the active listing.
	ids, err := reg.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, found, err := reg.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRegistry_Reconcile(t *testing.T) {
	reg := newTestRegistry(t, time.Second)
	ctx := context.Background()

	require.NoError(t, reg.Touch(ctx, "expired", ""))
	time.Sleep(2 * time.Second)
	require.NoError(t, reg.Touch(ctx, "live", ""))

	n, err := reg.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ids, err := reg.ListActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"live"}, ids)

	// Second pass finds nothing orphaned.
	n, err = reg.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRegistry_TouchRefreshesTTL(t *testing.T) {
	reg := newTestRegistry(t, 3*time.Second)
	ctx := context.Background()

	require.NoError(t, reg.Touch(ctx, "sess-1", ""))
	time.Sleep(2 * time.Second)
	require.NoError(t, reg.Touch(ctx, "sess-1", ""))
	time.Sleep(2 * time.Second)

	// Four seconds after the first touch, but refreshed in between.
	_, found, err := reg.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, found)
}
