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

// Package store persists DailyRecords. Three backends are provided: a
// JSON document replaced atomically on every flush, and SQLite or bbolt
// databases written in one transaction per flush.
package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/vnclub/vntracker/pkg/helpers/syncutil"
	"github.com/vnclub/vntracker/pkg/tracker"
)

// ErrCorrupt is wrapped by Load when stored data could not be read. The
// records returned alongside it are still usable.
var ErrCorrupt = tracker.ErrStoreCorrupt

// ErrNotLoaded is returned by Flush when Load has not been called, which
// would otherwise overwrite existing data with a partial mapping.
var ErrNotLoaded = errors.New("session store flushed before load")

const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"

	JSONFile   = "timelog.json"
	SQLiteFile = "timelog.db"
	BoltFile   = "timelog.bolt"
)

// Store is a session store with a lifecycle.
type Store interface {
	tracker.Store
	Close() error
}

// Open creates the store for backend inside dir. When a new database store
// is empty and a JSON log exists in dir, the JSON records are imported.
func Open(ctx context.Context, backend, dir string, clock clockwork.Clock) (Store, error) {
	switch backend {
	case "", BackendJSON:
		return NewFileStore(afero.NewOsFs(), filepath.Join(dir, JSONFile), clock), nil
	case BackendSQLite:
		s, err := OpenSQLite(ctx, filepath.Join(dir, SQLiteFile), clock)
		if err != nil {
			return nil, err
		}
		importJSON(ctx, s, dir, clock)
		return s, nil
	case BackendBolt:
		s, err := OpenBolt(filepath.Join(dir, BoltFile), clock)
		if err != nil {
			return nil, err
		}
		importJSON(ctx, s, dir, clock)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

func importJSON(ctx context.Context, dst Store, dir string, clock clockwork.Clock) {
	src := NewFileStore(afero.NewOsFs(), filepath.Join(dir, JSONFile), clock)
	if err := copyRecords(ctx, dst, src); err != nil {
		log.Warn().Err(err).Msg("store: importing json log failed")
	}
}

func copyRecords(ctx context.Context, dst Store, src *FileStore) error {
	existing, err := dst.Load(ctx)
	if err != nil && !errors.Is(err, ErrCorrupt) {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	exists, err := afero.Exists(src.fs, src.path)
	if err != nil || !exists {
		return err
	}
	records, err := src.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("store: json log read with errors during import")
	}
	if len(records) == 0 {
		return nil
	}
	dst.Upsert(records)
	if err := dst.Flush(ctx); err != nil {
		return err
	}
	log.Info().Int("records", len(records)).Msg("store: imported json log")
	return nil
}

// staging holds records handed to a store but not yet known to be
// durable. Each Upsert is applied under the lock as one batch, so a flush
// never observes half of a tick.
type staging struct {
	pending tracker.Records
	mu      syncutil.Mutex
}

func newStaging() *staging {
	return &staging{pending: make(tracker.Records)}
}

func (s *staging) add(records tracker.Records) {
	if len(records) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range records {
		if v < 0 {
			v = 0
		}
		s.pending[k] = v
	}
}

// take removes and returns everything staged.
func (s *staging) take() tracker.Records {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending
	s.pending = make(tracker.Records)
	return out
}

// restore puts records back after a failed write. Values staged since the
// take are newer and win.
func (s *staging) restore(records tracker.Records) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range records {
		if _, ok := s.pending[k]; !ok {
			s.pending[k] = v
		}
	}
}

func (s *staging) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
