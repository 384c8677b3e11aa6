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
	"cmp"
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
	"github.com/vnclub/vntracker/pkg/helpers/syncutil"
	"github.com/vnclub/vntracker/pkg/tracker"
)

const sqliteConnParams = "?_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000"

//go:embed migrations/*.sql
var migrationFiles embed.FS

var migrationMutex syncutil.Mutex

// gooseZerologAdapter implements goose.Logger interface to redirect
// goose output to zerolog instead of stdout.
type gooseZerologAdapter struct{}

func (*gooseZerologAdapter) Printf(format string, v ...any) {
	log.Info().Msgf(format, v...)
}

func (*gooseZerologAdapter) Fatalf(format string, v ...any) {
	log.Fatal().Msgf(format, v...)
}

// migrateUp runs the embedded migrations. goose keeps its settings in
// package globals, hence the lock.
func migrateUp(db *sql.DB) error {
	migrationMutex.Lock()
	defer migrationMutex.Unlock()

	goose.SetLogger(&gooseZerologAdapter{})
	goose.SetBaseFS(migrationFiles)
	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("error setting goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("error running migrations up: %w", err)
	}
	return nil
}

const (
	selectRecordsSQL = `select Title, Date, Millis from DailyRecords`
	upsertRecordSQL  = `insert into DailyRecords (Title, Date, Millis, UpdatedAt)
values (?, ?, ?, ?)
on conflict (Title, Date) do update set Millis = excluded.Millis, UpdatedAt = excluded.UpdatedAt`
)

// SQLiteStore keeps one row per (title, date). A flush writes every
// staged record in a single transaction.
type SQLiteStore struct {
	db     *sql.DB
	clock  clockwork.Clock
	staged *staging
	mu     syncutil.Mutex
}

// OpenSQLite opens (creating if needed) the database at path and applies
// migrations.
func OpenSQLite(ctx context.Context, path string, clock clockwork.Clock) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create directory for database: %w", err)
	}
	db, err := sql.Open("sqlite3", path+sqliteConnParams)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewSQLiteStore(db, clock), nil
}

// NewSQLiteStore wraps an already migrated database.
func NewSQLiteStore(db *sql.DB, clock clockwork.Clock) *SQLiteStore {
	return &SQLiteStore{db: db, clock: clock, staged: newStaging()}
}

// Load reads every row. Rows that cannot be interpreted are skipped and
// reported through an error wrapping ErrCorrupt.
func (s *SQLiteStore) Load(ctx context.Context) (tracker.Records, error) {
	rows, err := s.db.QueryContext(ctx, selectRecordsSQL)
	if err != nil {
		return make(tracker.Records), fmt.Errorf("failed to query records: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to close rows")
		}
	}()

	records := make(tracker.Records)
	skipped := 0
	for rows.Next() {
		var (
			title, dateStr string
			millis         int64
		)
		if err := rows.Scan(&title, &dateStr, &millis); err != nil {
			return records, fmt.Errorf("failed to scan record: %w", err)
		}
		date, err := tracker.ParseDate(dateStr)
		if err != nil || millis < 0 {
			skipped++
			continue
		}
		records[tracker.Key{Title: title, Date: date}] = time.Duration(millis) * time.Millisecond
	}
	if err := rows.Err(); err != nil {
		return records, fmt.Errorf("failed to iterate records: %w", err)
	}
	if skipped > 0 {
		return records, fmt.Errorf("%w: %d unreadable rows skipped", ErrCorrupt, skipped)
	}
	return records, nil
}

// Upsert stages records for the next flush.
func (s *SQLiteStore) Upsert(records tracker.Records) {
	s.staged.add(records)
}

// Flush writes every staged record in one transaction. On failure the
// transaction is rolled back and the records are staged again.
func (s *SQLiteStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.staged.take()
	if len(pending) == 0 {
		return nil
	}
	if err := s.write(ctx, pending); err != nil {
		s.staged.restore(pending)
		return err
	}
	log.Debug().Int("records", len(pending)).Msg("store: flushed")
	return nil
}

func (s *SQLiteStore) write(ctx context.Context, records tracker.Records) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				log.Warn().Err(rbErr).Msg("failed to rollback transaction")
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, upsertRecordSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare record upsert: %w", err)
	}
	defer func() {
		if closeErr := stmt.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to close sql statement")
		}
	}()

	updatedAt := s.clock.Now().Unix()
	for _, k := range sortedKeys(records) {
		_, err = stmt.ExecContext(ctx, k.Title, k.Date.String(), records[k].Milliseconds(), updatedAt)
		if err != nil {
			return fmt.Errorf("failed to execute record upsert: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit records: %w", err)
	}
	return nil
}

func sortedKeys(records tracker.Records) []tracker.Key {
	keys := make([]tracker.Key, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b tracker.Key) int {
		if c := cmp.Compare(a.Title, b.Title); c != 0 {
			return c
		}
		return a.Date.Compare(b.Date)
	})
	return keys
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if n := s.staged.len(); n > 0 {
		log.Warn().Int("records", n).Msg("store: closing with unflushed records")
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
