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

package service

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vnclub/vntracker/pkg/api/models"
	"github.com/vnclub/vntracker/pkg/config"
	"github.com/vnclub/vntracker/pkg/helpers"
	"github.com/vnclub/vntracker/pkg/idle"
	"github.com/vnclub/vntracker/pkg/platforms"
	"github.com/vnclub/vntracker/pkg/procwatch"
	"github.com/vnclub/vntracker/pkg/store"
	"github.com/vnclub/vntracker/pkg/testing/mocks"
	"github.com/vnclub/vntracker/pkg/tracker"
)

var serviceStart = time.Date(2025, 3, 14, 21, 0, 0, 0, time.UTC)

func newPlatform(t *testing.T) (*mocks.MockPlatform, platforms.Settings) {
	t.Helper()
	root := t.TempDir()
	settings := platforms.Settings{
		DataDir:   filepath.Join(root, "data"),
		ConfigDir: filepath.Join(root, "config"),
		TempDir:   filepath.Join(root, "tmp"),
	}

	pl := mocks.NewMockPlatform()
	pl.On("ID").Return("mock-platform").Maybe()
	pl.On("Settings").Return(settings).Maybe()
	pl.On("StartPre", mock.AnythingOfType("*config.Instance")).Return(nil).Once()
	pl.On("Stop").Return(nil).Maybe()
	pl.On("ProcessLister").Return(procwatch.Lister(procwatch.ListerFunc(
		func(context.Context) ([]procwatch.ProcessInfo, error) {
			return []procwatch.ProcessInfo{{PID: 4242, Name: "Ever17.exe"}}, nil
		},
	))).Maybe()
	pl.On("IdleSource").Return(nil, idle.ErrUnsupported).Maybe()
	return pl, settings
}

func newConfig(t *testing.T, dir string) *config.Instance {
	t.Helper()
	cfg, err := config.NewConfig(dir, config.BaseDefaults)
	require.NoError(t, err)
	return cfg
}

func TestStart_AutoStartTracksAndFlushesOnStop(t *testing.T) {
	t.Parallel()

	pl, settings := newPlatform(t)
	cfg := newConfig(t, settings.ConfigDir)
	cfg.SetAutoStart(true)
	cfg.RememberTitle("Ever17", "ever17.exe")

	clock := clockwork.NewFakeClockAt(serviceStart)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	svc, err := Start(pl, cfg, WithClock(clock), WithListener(ln), WithLocation(time.UTC))
	require.NoError(t, err)

	snap := svc.Engine.Snapshot()
	assert.Equal(t, tracker.EngineTracking, snap.Engine)
	assert.Equal(t, "Ever17", snap.Title)

	_, err = os.Stat(filepath.Join(settings.TempDir, config.PidFile))
	require.NoError(t, err, "pid file written while running")

	for i := range 3 {
		clock.Advance(time.Second)
		require.Eventually(t, func() bool {
			return svc.Engine.Snapshot().Ticks > uint64(i)
		}, 2*time.Second, time.Millisecond)
	}

	var resp *http.Response
	require.Eventually(t, func() bool {
		req, reqErr := http.NewRequestWithContext(context.Background(), http.MethodGet,
			"http://"+ln.Addr().String()+"/api/snapshot", http.NoBody)
		if reqErr != nil {
			return false
		}
		resp, reqErr = http.DefaultClient.Do(req)
		return reqErr == nil
	}, 2*time.Second, 10*time.Millisecond)
	var body models.SnapshotResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	_ = resp.Body.Close()
	assert.InDelta(t, 3.0, body.Today, 1e-9)

	require.NoError(t, svc.Stop())
	<-svc.Done()

	_, err = os.Stat(filepath.Join(settings.TempDir, config.PidFile))
	assert.True(t, os.IsNotExist(err), "pid file removed on stop")

	records, err := store.NewFileStore(afero.NewOsFs(), filepath.Join(settings.DataDir, store.JSONFile), clock).
		Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, records[tracker.Key{Title: "Ever17", Date: tracker.DateOf(serviceStart)}])

	pl.AssertExpectations(t)
}

func TestStart_NoAutoStart(t *testing.T) {
	t.Parallel()

	pl, settings := newPlatform(t)
	cfg := newConfig(t, settings.ConfigDir)
	cfg.RememberTitle("Ever17", "ever17.exe")

	svc, err := Start(pl, cfg, WithClock(clockwork.NewFakeClockAt(serviceStart)), WithoutAPI())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, svc.Stop()) })

	assert.Equal(t, tracker.EngineStopped, svc.Engine.Snapshot().Engine)
	for _, dir := range []string{helpers.CoversDir(pl), helpers.ExportsDir(pl)} {
		info, statErr := os.Stat(dir)
		require.NoError(t, statErr)
		assert.True(t, info.IsDir())
	}
}

func TestStart_AlreadyRunning(t *testing.T) {
	t.Parallel()

	pl, settings := newPlatform(t)
	cfg := newConfig(t, settings.ConfigDir)

	require.NoError(t, os.MkdirAll(settings.TempDir, 0o750))
	pidPath := filepath.Join(settings.TempDir, config.PidFile)
	require.NoError(t, os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getppid())), 0o600))

	_, err := Start(pl, cfg, WithoutAPI())
	require.ErrorIs(t, err, helpers.ErrAlreadyRunning)

	data, err := os.ReadFile(pidPath)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getppid()), string(data), "foreign pid file left alone")
}

func TestStart_APIFailureStopsService(t *testing.T) {
	t.Parallel()

	pl, settings := newPlatform(t)
	cfg := newConfig(t, settings.ConfigDir)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	svc, err := Start(pl, cfg, WithClock(clockwork.NewFakeClockAt(serviceStart)), WithListener(ln))
	require.NoError(t, err)

	select {
	case <-svc.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("service kept running after the API failed")
	}
	require.Error(t, svc.Err())
	require.Error(t, svc.Stop())
}

type recordingSettings struct {
	goals chan time.Duration
	afks  chan time.Duration
	mu    sync.Mutex
}

func newRecordingSettings() *recordingSettings {
	return &recordingSettings{
		goals: make(chan time.Duration, 16),
		afks:  make(chan time.Duration, 16),
	}
}

func (r *recordingSettings) SetGoal(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.goals <- d
	return nil
}

func (r *recordingSettings) SetAfkThreshold(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.afks <- d
	return nil
}

func TestApplyConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := newConfig(t, dir)
	require.NoError(t, os.WriteFile(cfg.Path(), []byte(`config_schema = 1

[goal]
daily = "30m"

[tracking]
afk_threshold = "2m"
`), 0o600))

	rec := newRecordingSettings()
	require.NoError(t, applyConfig(context.Background(), cfg, rec))
	assert.Equal(t, 30*time.Minute, <-rec.goals)
	assert.Equal(t, 2*time.Minute, <-rec.afks)
}

func TestApplyConfig_InvalidFileKeepsSettings(t *testing.T) {
	t.Parallel()

	cfg := newConfig(t, t.TempDir())
	require.NoError(t, cfg.SetDailyGoal(time.Hour))
	require.NoError(t, os.WriteFile(cfg.Path(), []byte("[goal\n"), 0o600))

	rec := newRecordingSettings()
	require.Error(t, applyConfig(context.Background(), cfg, rec))
	assert.Equal(t, time.Hour, cfg.DailyGoal())
	assert.Empty(t, rec.goals)
}

func TestWatchConfig_AppliesEdits(t *testing.T) {
	t.Parallel()

	cfg := newConfig(t, t.TempDir())
	rec := newRecordingSettings()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watchConfig(ctx, cfg, rec, clockwork.NewRealClock()) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	edit := []byte("config_schema = 1\n\n[goal]\ndaily = \"2h\"\n")
	var got time.Duration
	require.Eventually(t, func() bool {
		// Rewrite until the watcher has registered and picks it up.
		if err := os.WriteFile(cfg.Path(), edit, 0o600); err != nil {
			return false
		}
		select {
		case got = <-rec.goals:
			return true
		case <-time.After(4 * reloadDelay):
			return false
		}
	}, 10*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2*time.Hour, got)
	assert.Equal(t, 2*time.Hour, cfg.DailyGoal())
}
