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
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testsqlmock "github.com/vnclub/vntracker/pkg/testing/sqlmock"
	"github.com/vnclub/vntracker/pkg/tracker"
)

var sqlNow = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*SQLiteStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := testsqlmock.NewSQLMock()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLiteStore(db, clockwork.NewFakeClockAt(sqlNow)), mock
}

func TestSQLiteStore_Load(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)

	mock.ExpectQuery(`select Title, Date, Millis from DailyRecords`).
		WillReturnRows(testsqlmock.NewRecordRows(
			[3]any{"Sakura no Uta", "2025-03-14", int64(61500)},
			[3]any{"Muramasa", "2025-03-01", int64(0)},
		))

	records, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tracker.Records{
		{Title: "Sakura no Uta", Date: day("2025-03-14")}: 61500 * time.Millisecond,
		{Title: "Muramasa", Date: day("2025-03-01")}:      0,
	}, records)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStore_LoadSkipsBadRows(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)

	mock.ExpectQuery(`select Title, Date, Millis from DailyRecords`).
		WillReturnRows(testsqlmock.NewRecordRows(
			[3]any{"A", "2025-13-40", int64(10)},
			[3]any{"B", "2025-03-14", int64(-5)},
			[3]any{"C", "2025-03-14", int64(1000)},
		))

	records, err := s.Load(context.Background())
	require.ErrorIs(t, err, ErrCorrupt)
	assert.Len(t, records, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStore_LoadQueryError(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)

	mock.ExpectQuery(`select Title, Date, Millis from DailyRecords`).
		WillReturnError(sql.ErrConnDone)

	records, err := s.Load(context.Background())
	require.ErrorIs(t, err, sql.ErrConnDone)
	assert.NotNil(t, records)
}

func TestSQLiteStore_FlushSingleTransaction(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)

	s.Upsert(tracker.Records{
		{Title: "B", Date: day("2025-03-14")}: 2 * time.Second,
		{Title: "A", Date: day("2025-03-14")}: time.Second,
	})

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`insert into DailyRecords .* on conflict \(Title, Date\) do update`)
	prep.ExpectExec().WithArgs("A", "2025-03-14", int64(1000), sqlNow.Unix()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WithArgs("B", "2025-03-14", int64(2000), sqlNow.Unix()).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Flush(context.Background()))
	assert.Zero(t, s.staged.len())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStore_FlushNothingStaged(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)

	require.NoError(t, s.Flush(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStore_FlushRollbackKeepsStaged(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)

	key := tracker.Key{Title: "A", Date: day("2025-03-14")}
	s.Upsert(tracker.Records{key: time.Second})

	mock.ExpectBegin()
	mock.ExpectPrepare(`insert into DailyRecords`).
		ExpectExec().
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err := s.Flush(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to execute record upsert")
	assert.Equal(t, 1, s.staged.len())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStore_Integration(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), SQLiteFile)
	clock := clockwork.NewFakeClockAt(sqlNow)

	s, err := OpenSQLite(ctx, path, clock)
	require.NoError(t, err)

	key := tracker.Key{Title: "Fate/stay night", Date: day("2025-03-14")}
	s.Upsert(tracker.Records{key: 5 * time.Second})
	require.NoError(t, s.Flush(ctx))
	s.Upsert(tracker.Records{key: 7 * time.Second})
	require.NoError(t, s.Flush(ctx))
	require.NoError(t, s.Close())

	reopened, err := OpenSQLite(ctx, path, clock)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	records, err := reopened.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, tracker.Records{key: 7 * time.Second}, records)
}

func TestOpen_ImportsJSONIntoSQLite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	clock := clockwork.NewFakeClockAt(sqlNow)

	jsonStore, err := Open(ctx, BackendJSON, dir, clock)
	require.NoError(t, err)
	_, err = jsonStore.Load(ctx)
	require.NoError(t, err)
	key := tracker.Key{Title: "Ever17", Date: day("2025-03-12")}
	jsonStore.Upsert(tracker.Records{key: 20 * time.Minute})
	require.NoError(t, jsonStore.Flush(ctx))
	require.NoError(t, jsonStore.Close())

	sqlStore, err := Open(ctx, BackendSQLite, dir, clock)
	require.NoError(t, err)
	defer func() { _ = sqlStore.Close() }()

	records, err := sqlStore.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20*time.Minute, records[key])
}

func TestOpen_UnknownBackend(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "redis", t.TempDir(), clockwork.NewRealClock())
	require.Error(t, err)
}
