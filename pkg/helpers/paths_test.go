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

package helpers

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vnclub/vntracker/pkg/config"
	"github.com/vnclub/vntracker/pkg/platforms"
	"github.com/vnclub/vntracker/pkg/testing/mocks"
)

func TestFindUserDir(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	exe := filepath.Join(root, "vntracker")

	_, ok := findUserDir(exe)
	assert.False(t, ok, "no user dir yet")

	require.NoError(t, os.WriteFile(filepath.Join(root, UserDir), nil, 0o600))
	_, ok = findUserDir(exe)
	assert.False(t, ok, "a file named user is not a portable dir")

	require.NoError(t, os.Remove(filepath.Join(root, UserDir)))
	require.NoError(t, os.Mkdir(filepath.Join(root, UserDir), 0o750))
	dir, ok := findUserDir(exe)
	assert.True(t, ok)
	assert.Equal(t, filepath.Join(root, UserDir), dir)
}

func mockPlatform(t *testing.T, tempDir string) *mocks.MockPlatform {
	t.Helper()
	pl := mocks.NewMockPlatform()
	pl.On("Settings").Return(platforms.Settings{
		TempDir: tempDir,
		DataDir: filepath.Join(tempDir, "data"),
	})
	return pl
}

func TestPIDFile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pf := NewPIDFile(mockPlatform(t, t.TempDir()))

	pid, err := pf.Pid()
	require.NoError(t, err)
	assert.Zero(t, pid)

	require.NoError(t, pf.Acquire(ctx))
	pid, err = pf.Pid()
	require.NoError(t, err)
	assert.Equal(t, int32(os.Getpid()), pid)
	assert.False(t, pf.Running(ctx), "our own pid does not count as another instance")

	require.NoError(t, pf.Release())
	_, err = os.Stat(pf.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestPIDFile_StaleAndForeign(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pf := NewPIDFile(mockPlatform(t, t.TempDir()))

	// pid 1 is always alive on unix-like systems and never us
	require.NoError(t, os.WriteFile(pf.Path(), []byte("1"), 0o600))
	if pf.Running(ctx) {
		require.ErrorIs(t, pf.Acquire(ctx), ErrAlreadyRunning)
		require.NoError(t, pf.Release(), "release leaves a foreign pid file alone")
		_, err := os.Stat(pf.Path())
		require.NoError(t, err)
	}

	require.NoError(t, os.WriteFile(pf.Path(), []byte(strconv.Itoa(1<<30)), 0o600))
	require.NoError(t, pf.Acquire(ctx), "stale pid file is replaced")

	require.NoError(t, os.WriteFile(pf.Path(), []byte("garbage"), 0o600))
	_, err := pf.Pid()
	require.Error(t, err)
}

func TestDirsUseConfigNames(t *testing.T) {
	t.Parallel()

	pl := mockPlatform(t, "/tmp/vnt")
	if _, ok := HasUserDir(); ok {
		t.Skip("portable user dir present next to test binary")
	}
	assert.Equal(t, filepath.Join("/tmp/vnt", "data", config.CoversDir), CoversDir(pl))
	assert.Equal(t, filepath.Join("/tmp/vnt", "data", config.ExportsDir), ExportsDir(pl))
}
