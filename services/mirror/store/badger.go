// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AsmiBhaskar/mood-mirror/services/mirror/aggregate"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/emotion"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/storage/badgerkv"
)

// Key layout. Timestamps in keys are zero-padded unix nanos so that
// lexicographic order equals chronological order.
//
//	reading_ts:<ts>:<id>           reading JSON, global time index
//	session_reading:<sid>:<ts>:<id> reading JSON, per-session index
//	environment:<reading id>       environment parameters JSON
//	session:<sid>                  session aggregate JSON
const (
	prefixReadingTS      = "reading_ts:"
	prefixSessionReading = "session_reading:"
	prefixEnvironment    = "environment:"
	prefixSession        = "session:"
)

// BadgerStore implements Store on the embedded BadgerDB handle.
type BadgerStore struct {
	kv *badgerkv.KV
}

// NewBadgerStore wraps the given database handle. The handle is shared
// with the registry and cache; the store does not own its lifecycle.
func NewBadgerStore(kv *badgerkv.KV) *BadgerStore {
	return &BadgerStore{kv: kv}
}

func tsKey(prefix string, ts time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", prefix, ts.UnixNano(), id))
}

func sessionReadingPrefix(sessionID string) []byte {
	return []byte(prefixSessionReading + sessionID + ":")
}

// CreateReading writes the reading under both the global and the
// per-session time index in one transaction.
func (s *BadgerStore) CreateReading(ctx context.Context, sessionID string, v emotion.Vector, now time.Time) (emotion.Reading, error) {
	if err := ctx.Err(); err != nil {
		return emotion.Reading{}, err
	}

	reading := emotion.NewReading(sessionID, v, now)
	payload, err := json.Marshal(reading)
	if err != nil {
		return emotion.Reading{}, fmt.Errorf("marshal reading: %w", err)
	}

	err = s.kv.Update(func(txn *badger.Txn) error {
		if err := txn.Set(tsKey(prefixReadingTS, now, reading.ID), payload); err != nil {
			return err
		}
		return txn.Set(tsKey(prefixSessionReading+sessionID+":", now, reading.ID), payload)
	})
	if err != nil {
		return emotion.Reading{}, fmt.Errorf("persist reading: %w", err)
	}
	return reading, nil
}

func (s *BadgerStore) CreateEnvironmentParameters(ctx context.Context, readingID string, p emotion.Parameters) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal environment parameters: %w", err)
	}
	err = s.kv.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixEnvironment+readingID), payload)
	})
	if err != nil {
		return fmt.Errorf("persist environment parameters: %w", err)
	}
	return nil
}

func (s *BadgerStore) GetEnvironmentParameters(ctx context.Context, readingID string) (emotion.Parameters, error) {
	if err := ctx.Err(); err != nil {
		return emotion.Parameters{}, err
	}
	var p emotion.Parameters
	err := s.kv.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixEnvironment + readingID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrReadingNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &p)
		})
	})
	return p, err
}

func (s *BadgerStore) UpsertSessionAggregate(ctx context.Context, agg aggregate.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("marshal session aggregate: %w", err)
	}
	err = s.kv.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixSession+agg.SessionID), payload)
	})
	if err != nil {
		return fmt.Errorf("persist session aggregate: %w", err)
	}
	return nil
}

func (s *BadgerStore) GetSessionAggregate(ctx context.Context, sessionID string) (aggregate.Session, error) {
	if err := ctx.Err(); err != nil {
		return aggregate.Session{}, err
	}
	var agg aggregate.Session
	err := s.kv.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixSession + sessionID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &agg)
		})
	})
	return agg, err
}

func (s *BadgerStore) ListActiveSessionAggregates(ctx context.Context, window time.Duration) ([]aggregate.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cutoff := time.Now().Add(-window)

	var out []aggregate.Session
	err := s.kv.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixSession)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var agg aggregate.Session
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &agg)
			})
			if err != nil {
				return err
			}
			if agg.IsActive && !agg.LastActivity.Before(cutoff) {
				out = append(out, agg)
			}
		}
		return nil
	})
	return out, err
}

func (s *BadgerStore) ListSessionReadings(ctx context.Context, sessionID string) ([]emotion.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []emotion.Reading
	err := s.kv.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = sessionReadingPrefix(sessionID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var r emotion.Reading
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			})
			if err != nil {
				return err
			}
			out = append(out, r)
		}
		return nil
	})
	return out, err
}

func (s *BadgerStore) LatestSessionReading(ctx context.Context, sessionID string) (emotion.Reading, error) {
	if err := ctx.Err(); err != nil {
		return emotion.Reading{}, err
	}
	prefix := sessionReadingPrefix(sessionID)

	var r emotion.Reading
	found := false
	err := s.kv.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration: seek just past the prefix range and take
		// the first key still inside it.
		seek := append(append([]byte{}, prefix...), 0xff)
		it.Seek(seek)
		if it.ValidForPrefix(prefix) {
			found = true
			return it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			})
		}
		return nil
	})
	if err != nil {
		return emotion.Reading{}, err
	}
	if !found {
		return emotion.Reading{}, ErrReadingNotFound
	}
	return r, nil
}

func (s *BadgerStore) ListRecentReadings(ctx context.Context, limit int) ([]emotion.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	prefix := []byte(prefixReadingTS)

	var out []emotion.Reading
	err := s.kv.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, prefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(out) < limit; it.Next() {
			var r emotion.Reading
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			})
			if err != nil {
				return err
			}
			out = append(out, r)
		}
		return nil
	})
	return out, err
}

func (s *BadgerStore) ListReadingsSince(ctx context.Context, since time.Time) ([]emotion.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := []byte(prefixReadingTS)
	start := []byte(fmt.Sprintf("%s%020d", prefixReadingTS, since.UnixNano()))

	var out []emotion.Reading
	err := s.kv.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			var r emotion.Reading
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			})
			if err != nil {
				return err
			}
			out = append(out, r)
		}
		return nil
	})
	return out, err
}

func (s *BadgerStore) DominantDistribution(ctx context.Context) (map[emotion.Kind]int, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	counts := make(map[emotion.Kind]int)
	total := 0
	err := s.kv.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixReadingTS)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var r emotion.Reading
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			})
			if err != nil {
				return err
			}
			counts[r.DominantEmotion]++
			total++
		}
		return nil
	})
	return counts, total, err
}

func (s *BadgerStore) CountSessions(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	count := 0
	err := s.kv.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixSession)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// DeactivateStaleSessions flips is_active off for sessions idle longer
// than the threshold. Collecting then writing keeps the iterator
// read-only; session counts are small enough for a single transaction.
func (s *BadgerStore) DeactivateStaleSessions(ctx context.Context, olderThan time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-olderThan)

	var stale []aggregate.Session
	err := s.kv.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixSession)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var agg aggregate.Session
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &agg)
			})
			if err != nil {
				return err
			}
			if agg.IsActive && agg.LastActivity.Before(cutoff) {
				stale = append(stale, agg)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	err = s.kv.Update(func(txn *badger.Txn) error {
		for i := range stale {
			stale[i].IsActive = false
			payload, err := json.Marshal(stale[i])
			if err != nil {
				return err
			}
			if err := txn.Set([]byte(prefixSession+stale[i].SessionID), payload); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("deactivate stale sessions: %w", err)
	}
	return len(stale), nil
}
