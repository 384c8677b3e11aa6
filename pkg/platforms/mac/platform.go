//go:build darwin

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

// Package mac implements the macOS platform. Idle time is read from the
// HID system through ioreg.
package mac

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/vnclub/vntracker/pkg/config"
	"github.com/vnclub/vntracker/pkg/idle"
	"github.com/vnclub/vntracker/pkg/platforms"
	"github.com/vnclub/vntracker/pkg/procwatch"
)

type Platform struct{}

func NewPlatform() *Platform {
	return &Platform{}
}

func (*Platform) ID() string {
	return platforms.PlatformIDMac
}

func (*Platform) StartPre(_ *config.Instance) error {
	return nil
}

func (*Platform) Stop() error {
	return nil
}

func (*Platform) Settings() platforms.Settings {
	return platforms.Settings{
		DataDir:   filepath.Join(xdg.DataHome, config.AppName),
		ConfigDir: filepath.Join(xdg.ConfigHome, config.AppName),
		TempDir:   filepath.Join(os.TempDir(), config.AppName),
	}
}

func (*Platform) ProcessLister() procwatch.Lister {
	return procwatch.GopsutilLister{}
}

func (*Platform) IdleSource() (idle.Source, error) {
	return idle.NewSystemSource()
}
