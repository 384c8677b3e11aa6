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
	"os"
	"path/filepath"
	"sync"

	"github.com/vnclub/vntracker/pkg/config"
	"github.com/vnclub/vntracker/pkg/platforms"
)

// UserDir is a folder next to the executable that, when present, holds the
// config and data for a portable install.
const UserDir = "user"

var (
	userDirOnce        sync.Once
	userDirCache       string
	userDirCacheExists bool
)

func ExeDir() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}

	return filepath.Dir(exe)
}

// HasUserDir checks if a "user" directory exists next to the executable
// and returns true and the absolute path to it. The result is cached after
// the first call. This function is safe for concurrent use.
func HasUserDir() (string, bool) {
	userDirOnce.Do(func() {
		userDirCache, userDirCacheExists = findUserDir(os.Getenv(config.AppEnv))
	})
	return userDirCache, userDirCacheExists
}

func findUserDir(appPath string) (string, bool) {
	exePath := appPath
	if exePath == "" {
		var err error
		exePath, err = os.Executable()
		if err != nil {
			return "", false
		}
	}

	userDir := filepath.Join(filepath.Dir(exePath), UserDir)
	info, err := os.Stat(userDir)
	if err != nil || !info.IsDir() {
		return "", false
	}
	return userDir, true
}

func ConfigDir(pl platforms.Platform) string {
	if v, ok := HasUserDir(); ok {
		return v
	}
	return pl.Settings().ConfigDir
}

func DataDir(pl platforms.Platform) string {
	if v, ok := HasUserDir(); ok {
		return v
	}
	return pl.Settings().DataDir
}

func CoversDir(pl platforms.Platform) string {
	return filepath.Join(DataDir(pl), config.CoversDir)
}

func ExportsDir(pl platforms.Platform) string {
	return filepath.Join(DataDir(pl), config.ExportsDir)
}
