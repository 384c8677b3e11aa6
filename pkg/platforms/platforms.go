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

// Package platforms describes the operating system integrations the
// tracker needs: where files live, how processes are listed and where idle
// time comes from.
package platforms

import (
	"github.com/vnclub/vntracker/pkg/config"
	"github.com/vnclub/vntracker/pkg/idle"
	"github.com/vnclub/vntracker/pkg/procwatch"
)

const (
	PlatformIDLinux   = "linux"
	PlatformIDWindows = "windows"
	PlatformIDMac     = "mac"
)

type Settings struct {
	// DataDir is the root folder where the time log, exports and cached
	// covers are stored. WARNING: This value should be accessed using the
	// DataDir function in the helpers package.
	DataDir string
	// ConfigDir is the directory where the config file is stored.
	// WARNING: This value should be accessed using the ConfigDir function
	// in the helpers package.
	ConfigDir string
	// TempDir is where logs and the PID file are stored. Expect it to be
	// deleted.
	TempDir string
}

// Platform is implemented once per supported operating system.
type Platform interface {
	// ID returns the unique ID of this platform.
	ID() string
	// StartPre runs any necessary platform setup BEFORE the main service
	// has started running.
	StartPre(*config.Instance) error
	// Stop releases platform resources before the service exits.
	Stop() error
	// Settings returns simple platform-specific settings such as paths.
	Settings() Settings
	// ProcessLister returns the process enumerator for this platform.
	ProcessLister() procwatch.Lister
	// IdleSource returns the system idle time source. It returns
	// idle.ErrUnsupported when the session has no usable source.
	IdleSource() (idle.Source, error)
}
