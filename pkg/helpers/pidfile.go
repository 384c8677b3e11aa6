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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
	"github.com/vnclub/vntracker/pkg/config"
	"github.com/vnclub/vntracker/pkg/platforms"
)

// ErrAlreadyRunning is returned when another live process holds the PID
// file. Two trackers writing the same time log would lose updates.
var ErrAlreadyRunning = errors.New("service already running")

type PIDFile struct {
	path string
}

func NewPIDFile(pl platforms.Platform) *PIDFile {
	return &PIDFile{path: filepath.Join(pl.Settings().TempDir, config.PidFile)}
}

func (p *PIDFile) Path() string {
	return p.path
}

// Pid returns the PID recorded in the file, or 0 when there is none.
func (p *PIDFile) Pid() (int32, error) {
	//nolint:gosec // Safe: reads the service's own PID file
	data, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("error reading pid file: %w", err)
	}
	pid, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("error parsing pid: %w", err)
	}
	return int32(pid), nil
}

// Running reports whether the recorded PID belongs to a live process other
// than this one.
func (p *PIDFile) Running(ctx context.Context) bool {
	pid, err := p.Pid()
	if err != nil || pid == 0 || int(pid) == os.Getpid() {
		return false
	}
	exists, err := process.PidExistsWithContext(ctx, pid)
	return err == nil && exists
}

// Acquire writes the current PID, refusing when a live process already
// holds the file. A stale file left by a crash is replaced.
func (p *PIDFile) Acquire(ctx context.Context) error {
	if p.Running(ctx) {
		return ErrAlreadyRunning
	}
	err := os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())), 0o600)
	if err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

// Release removes the file if this process owns it.
func (p *PIDFile) Release() error {
	pid, err := p.Pid()
	if err != nil || int(pid) != os.Getpid() {
		return err
	}
	if err := os.Remove(p.path); err != nil {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}
