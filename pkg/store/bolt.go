// VN Tracker
// Copyright (c) 2025 The VN Tracker Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of VN Tracker.
//
// VN Tracker is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// VN Tracker is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with VN Tracker.  If not, see <http://www.gnu.org/licenses/>.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/vnclub/vntracker/pkg/helpers/syncutil"
	"github.com/vnclub/vntracker/pkg/tracker"
	bolt "go.etcd.io/bbolt"
)

// BucketRecords holds one nested bucket per title, keyed by date.
const BucketRecords = "records"

// boltLockTimeout bounds the wait for the file lock held by another
// process.
const boltLockTimeout = 2 * time.Second

type boltRecord struct {
	Millis    int64 `json:"millis"`
	UpdatedAt int64 `json:"updatedAt"`
}

// BoltStore keeps records in a bbolt file. A flush is one read-write
// transaction.
type BoltStore struct {
	bdb    *bolt.DB
	clock  clockwork.Clock
	staged *staging
	mu     syncutil.Mutex
}

// OpenBolt opens (creating if needed) the database at path.
func OpenBolt(path string, clock clockwork.Clock) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create directory for database: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: boltLockTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(BucketRecords))
		return err //nolint:wrapcheck // wrapped below
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create %q bucket: %w", BucketRecords, err)
	}
	return &BoltStore{bdb: db, clock: clock, staged: newStaging()}, nil
}

// Load reads every record. Entries that cannot be decoded are skipped and
// reported through an error wrapping ErrCorrupt.
func (s *BoltStore) Load(_ context.Context) (tracker.Records, error) {
	records := make(tracker.Records)
	skipped := 0

	err := s.bdb.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketRecords))
		if b == nil {
			return fmt.Errorf("bucket %q does not exist", BucketRecords)
		}
		return b.ForEachBucket(func(title []byte) error {
			tb := b.Bucket(title)
			return tb.ForEach(func(k, v []byte) error {
				date, err := tracker.ParseDate(string(k))
				if err != nil {
					skipped++
					return nil
				}
				var r boltRecord
				if err := json.Unmarshal(v, &r); err != nil || r.Millis < 0 {
					skipped++
					return nil
				}
				records[tracker.Key{Title: string(title), Date: date}] = time.Duration(r.Millis) * time.Millisecond
				return nil
			})
		})
	})
	if err != nil {
		return records, fmt.Errorf("failed to view bolt database: %w", err)
	}
	if skipped > 0 {
		return records, fmt.Errorf("%w: %d unreadable entries skipped", ErrCorrupt, skipped)
	}
	return records, nil
}

// Upsert stages records for the next flush.
func (s *BoltStore) Upsert(records tracker.Records) {
	s.staged.add(records)
}

// Flush writes every staged record in one transaction. On failure nothing
// is written and the records are staged again.
func (s *BoltStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.staged.take()
	if len(pending) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		s.staged.restore(pending)
		return fmt.Errorf("flush session store: %w", err)
	}

	updatedAt := s.clock.Now().Unix()
	err := s.bdb.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketRecords))
		if b == nil {
			return fmt.Errorf("bucket %q does not exist", BucketRecords)
		}
		for _, k := range sortedKeys(pending) {
			tb, err := b.CreateBucketIfNotExists([]byte(k.Title))
			if err != nil {
				return fmt.Errorf("failed to create title bucket: %w", err)
			}
			data, err := json.Marshal(boltRecord{Millis: pending[k].Milliseconds(), UpdatedAt: updatedAt})
			if err != nil {
				return fmt.Errorf("failed to marshal record: %w", err)
			}
			if err := tb.Put([]byte(k.Date.String()), data); err != nil {
				return fmt.Errorf("failed to put record: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		s.staged.restore(pending)
		return fmt.Errorf("failed to update bolt database: %w", err)
	}
	log.Debug().Int("records", len(pending)).Msg("store: flushed")
	return nil
}

// Close closes the database file and releases its lock.
func (s *BoltStore) Close() error {
	if n := s.staged.len(); n > 0 {
		log.Warn().Int("records", n).Msg("store: closing with unflushed records")
	}
	if err := s.bdb.Close(); err != nil {
		return fmt.Errorf("failed to close bolt database: %w", err)
	}
	return nil
}
