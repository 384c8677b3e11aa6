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
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/vnclub/vntracker/pkg/helpers/syncutil"
	"github.com/vnclub/vntracker/pkg/tracker"
)

// fileDocument is the on-disk layout: title -> date -> seconds. Seconds
// are written with millisecond precision; whole-second integers written by
// older versions load unchanged.
type fileDocument map[string]map[string]float64

// FileStore keeps every record in a single JSON document. Each flush
// writes a temporary file, syncs it and renames it over the previous one,
// so a crash leaves either the old or the new document in place.
type FileStore struct {
	fs      afero.Fs
	clock   clockwork.Clock
	staged  *staging
	durable tracker.Records
	path    string
	mu      syncutil.Mutex
	loaded  bool
}

// NewFileStore creates a store backed by path on fs.
func NewFileStore(fs afero.Fs, path string, clock clockwork.Clock) *FileStore {
	return &FileStore{
		fs:      fs,
		clock:   clock,
		path:    path,
		staged:  newStaging(),
		durable: make(tracker.Records),
	}
}

// Path returns the location of the primary document.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) backupPath() string {
	return s.path + ".bak"
}

// Load reads the document. A missing document is an empty store. A corrupt
// one is moved aside and the backup is tried; the returned error wraps
// ErrCorrupt and the returned records are always usable.
func (s *FileStore) Load(_ context.Context) (tracker.Records, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readDocument(s.path)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		records = make(tracker.Records)
		err = nil
	case errors.Is(err, ErrCorrupt):
		s.quarantine()
		backup, bakErr := s.readDocument(s.backupPath())
		if bakErr == nil {
			log.Warn().Err(err).Str("backup", s.backupPath()).Msg("store: recovered from backup")
			records = backup
			err = fmt.Errorf("%w: restored from backup", err)
		} else {
			records = make(tracker.Records)
		}
	default:
		return make(tracker.Records), fmt.Errorf("read session store: %w", err)
	}

	s.durable = records.Clone()
	s.loaded = true
	return records, err
}

func (s *FileStore) readDocument(path string) (tracker.Records, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers match fs.ErrNotExist
	}
	return DecodeDocument(data)
}

// DecodeDocument parses the JSON time log format: title to date to
// seconds. Invalid entries are skipped with a warning.
func DecodeDocument(data []byte) (tracker.Records, error) {
	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	records := make(tracker.Records)
	for title, days := range doc {
		title = tracker.NormalizeTitle(title)
		if title == "" {
			continue
		}
		for dateStr, seconds := range days {
			date, err := tracker.ParseDate(dateStr)
			if err != nil {
				log.Warn().Err(err).Str("title", title).Msg("store: skipping record with invalid date")
				continue
			}
			if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
				log.Warn().Str("title", title).Str("date", dateStr).Msg("store: skipping invalid duration")
				continue
			}
			records[tracker.Key{Title: title, Date: date}] += secondsToDuration(seconds)
		}
	}
	return records, nil
}

// EncodeDocument renders records in the JSON time log format.
func EncodeDocument(records tracker.Records) ([]byte, error) {
	doc := make(fileDocument)
	for k, v := range records {
		days, ok := doc[k.Title]
		if !ok {
			days = make(map[string]float64)
			doc[k.Title] = days
		}
		days[k.Date.String()] = durationToSeconds(v)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode session store: %w", err)
	}
	return data, nil
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(math.Round(seconds*1000)) * time.Millisecond
}

func durationToSeconds(d time.Duration) float64 {
	return float64(d.Milliseconds()) / 1000
}

// quarantine renames an unreadable document so it is not overwritten by
// the next flush. The caller must hold s.mu.
func (s *FileStore) quarantine() {
	dst := s.path + ".corrupt-" + strconv.FormatInt(s.clock.Now().Unix(), 10)
	if err := s.fs.Rename(s.path, dst); err != nil {
		log.Error().Err(err).Str("path", s.path).Msg("store: failed to move corrupt store aside")
		return
	}
	log.Warn().Str("path", dst).Msg("store: corrupt store moved aside")
}

// Upsert stages records for the next flush.
func (s *FileStore) Upsert(records tracker.Records) {
	s.staged.add(records)
}

// Flush writes the durable records merged with everything staged. On
// failure the staged records are kept for the next attempt.
func (s *FileStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return ErrNotLoaded
	}
	pending := s.staged.take()
	if len(pending) == 0 {
		return nil
	}

	merged := s.durable.Clone()
	for k, v := range pending {
		merged[k] = v
	}

	if err := ctx.Err(); err != nil {
		s.staged.restore(pending)
		return fmt.Errorf("flush session store: %w", err)
	}
	data, err := EncodeDocument(merged)
	if err == nil {
		err = s.writeAtomic(s.path, data)
	}
	if err != nil {
		s.staged.restore(pending)
		return err
	}

	s.durable = merged
	log.Debug().Int("records", len(pending)).Str("path", s.path).Msg("store: flushed")
	return nil
}

func (s *FileStore) writeAtomic(path string, data []byte) error {
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}

	tmp := path + ".tmp"
	f, err := s.fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create temp store: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("write temp store: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("sync temp store: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("close temp store: %w", err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}

// Backup copies the durable records to the backup document.
func (s *FileStore) Backup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backupLocked()
}

func (s *FileStore) backupLocked() error {
	if !s.loaded || len(s.durable) == 0 {
		return nil
	}
	data, err := EncodeDocument(s.durable)
	if err != nil {
		return err
	}
	if err := s.writeAtomic(s.backupPath(), data); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}
	return nil
}

// Close writes the backup document. Staged records are not flushed; the
// engine performs the final flush before the store is closed.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := s.staged.len(); n > 0 {
		log.Warn().Int("records", n).Msg("store: closing with unflushed records")
	}
	return s.backupLocked()
}
