// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry tracks which sessions are currently connected. It is
// the authoritative "connected right now" signal, finer grained than
// the is_active flag on a session aggregate.
//
// Each touched session gets two keys in the shared BadgerDB:
//
//	active_session:<sid>  JSON record, expires after the TTL
//	active_member:<sid>   membership marker, no TTL
//
// The marker lets ListActive enumerate candidates cheaply; the TTL
// record decides liveness. A record that has expired is never reported
// as active, even before the periodic Reconcile pass removes its
// orphaned marker.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AsmiBhaskar/mood-mirror/services/mirror/storage/badgerkv"
)

const (
	prefixRecord = "active_session:"
	prefixMember = "active_member:"
)

// DefaultTTL is how long a session stays active without a touch.
const DefaultTTL = 30 * time.Minute

// Record is the ephemeral per-session entry.
type Record struct {
	SessionID    string    `json:"session_id"`
	UserID       string    `json:"user_id,omitempty"`
	LastActivity time.Time `json:"last_activity"`
	IsActive     bool      `json:"is_active"`
}

// Registry is the active-session registry over the shared KV handle.
//
// # Thread Safety
//
// Safe for concurrent use; every method is one BadgerDB transaction.
type Registry struct {
	kv  *badgerkv.KV
	ttl time.Duration
}

// New creates a Registry with the given sliding TTL. A non-positive
// TTL falls back to DefaultTTL.
func New(kv *badgerkv.KV, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{kv: kv, ttl: ttl}
}

// Available reports whether the backing store can serve requests.
func (r *Registry) Available() bool {
	return r.kv.Available()
}

// Touch marks the session as active now, refreshing its TTL, and adds
// it to the membership set. Called on connect and on every reading.
func (r *Registry) Touch(ctx context.Context, sessionID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec := Record{
		SessionID:    sessionID,
		UserID:       userID,
		LastActivity: time.Now(),
		IsActive:     true,
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal active session record: %w", err)
	}

	err = r.kv.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(prefixRecord+sessionID), payload).WithTTL(r.ttl)
		if err := txn.SetEntry(entry); err != nil {
			return err
		}
		return txn.Set([]byte(prefixMember+sessionID), []byte{1})
	})
	if err != nil {
		return fmt.Errorf("touch active session: %w", err)
	}
	return nil
}

// Remove deletes both the TTL record and the membership marker.
// Called on disconnect and on explicit session end.
func (r *Registry) Remove(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := r.kv.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(prefixRecord + sessionID)); err != nil {
			return err
		}
		return txn.Delete([]byte(prefixMember + sessionID))
	})
	if err != nil {
		return fmt.Errorf("remove active session: %w", err)
	}
	return nil
}

// Get loads the registry record for one session, or false when the
// session is not active (absent or expired).
func (r *Registry) Get(ctx context.Context, sessionID string) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}
	var rec Record
	found := false
	err := r.kv.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixRecord + sessionID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	return rec, found, err
}

// ListActive returns the ids of every currently live session. Member
// markers whose TTL record has expired are skipped, so an expired
// session is never reported even before reconciliation.
func (r *Registry) ListActive(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []string
	err := r.kv.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixMember)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			sessionID := strings.TrimPrefix(string(it.Item().Key()), prefixMember)
			_, err := txn.Get([]byte(prefixRecord + sessionID))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			out = append(out, sessionID)
		}
		return nil
	})
	return out, err
}

// Count returns how many sessions are currently live.
func (r *Registry) Count(ctx context.Context) (int, error) {
	ids, err := r.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Reconcile removes membership markers whose TTL record has already
// expired. BadgerDB evicts the record on its own; the marker has no
// TTL, so a periodic pass keeps the two in step.
func (r *Registry) Reconcile(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var orphaned []string
	err := r.kv.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixMember)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			sessionID := strings.TrimPrefix(string(it.Item().Key()), prefixMember)
			_, err := txn.Get([]byte(prefixRecord + sessionID))
			if errors.Is(err, badger.ErrKeyNotFound) {
				orphaned = append(orphaned, sessionID)
			} else if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(orphaned) == 0 {
		return 0, nil
	}

	err = r.kv.Update(func(txn *badger.Txn) error {
		for _, sessionID := range orphaned {
			if err := txn.Delete([]byte(prefixMember + sessionID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("reconcile active sessions: %w", err)
	}

	slog.Info("registry: reconciled expired sessions", "count", len(orphaned))
	return len(orphaned), nil
}
