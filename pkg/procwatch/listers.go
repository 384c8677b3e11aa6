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

package procwatch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/spf13/afero"
)

// DefaultProcPath is where the Linux process filesystem is mounted.
const DefaultProcPath = "/proc"

// truncatedNameLen is the length at which Linux and macOS cut the kernel
// process name.
const truncatedNameLen = 15

var wineLoaders = []string{"wine", "wine64", "wine-preloader", "wine64-preloader", "start.exe"}

// needsDetails reports whether a kernel process name may hide the real
// executable, either because it was truncated or because it belongs to the
// Wine loader. Only then are the executable path and command line read.
func needsDetails(name string) bool {
	if len(name) >= truncatedNameLen {
		return true
	}
	return slices.Contains(wineLoaders, strings.ToLower(name))
}

// GopsutilLister enumerates processes through gopsutil and works on every
// desktop platform.
type GopsutilLister struct{}

// List implements Lister. Processes that exit while being inspected are
// skipped. The executable path and command line are only read for names
// that need them, which keeps a listing cheap enough for every tick.
func (GopsutilLister) List(ctx context.Context) ([]ProcessInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate processes: %w", err)
	}

	out := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			if !errors.Is(err, process.ErrorProcessNotRunning) {
				log.Trace().Err(err).Int32("pid", p.Pid).Msg("procwatch: skipping process")
			}
			continue
		}
		info := ProcessInfo{PID: p.Pid, Name: name}
		if needsDetails(name) {
			info.Exe, _ = p.ExeWithContext(ctx)
			info.Cmdline, _ = p.CmdlineWithContext(ctx)
		}
		out = append(out, info)
	}
	return out, nil
}

// ProcFSLister reads process names straight from a /proc style tree. It is
// cheaper than gopsutil on Linux and reads the full Wine command line.
type ProcFSLister struct {
	fs       afero.Fs
	procPath string
}

// ProcFSOption configures a ProcFSLister.
type ProcFSOption func(*ProcFSLister)

// WithProcPath sets a custom /proc path (for testing).
func WithProcPath(path string) ProcFSOption {
	return func(l *ProcFSLister) {
		l.procPath = path
	}
}

// WithFs sets the filesystem the lister reads from.
func WithFs(fs afero.Fs) ProcFSOption {
	return func(l *ProcFSLister) {
		l.fs = fs
	}
}

// NewProcFSLister creates a lister reading /proc on the OS filesystem.
func NewProcFSLister(opts ...ProcFSOption) *ProcFSLister {
	l := &ProcFSLister{
		fs:       afero.NewOsFs(),
		procPath: DefaultProcPath,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// List implements Lister.
func (l *ProcFSLister) List(ctx context.Context) ([]ProcessInfo, error) {
	entries, err := afero.ReadDir(l.fs, l.procPath)
	if err != nil {
		return nil, fmt.Errorf("read proc directory: %w", err)
	}

	processes := make([]ProcessInfo, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.ParseInt(entry.Name(), 10, 32)
		if err != nil {
			continue
		}
		proc, ok := l.readProcessInfo(int32(pid))
		if !ok {
			continue
		}
		processes = append(processes, proc)
	}
	return processes, nil
}

// readProcessInfo reads comm and cmdline for a process. A process whose
// comm cannot be read has exited and is skipped.
func (l *ProcFSLister) readProcessInfo(pid int32) (ProcessInfo, bool) {
	dir := filepath.Join(l.procPath, strconv.FormatInt(int64(pid), 10))

	comm, err := afero.ReadFile(l.fs, filepath.Join(dir, "comm"))
	if err != nil {
		return ProcessInfo{}, false
	}
	cmdline, _ := afero.ReadFile(l.fs, filepath.Join(dir, "cmdline"))

	return ProcessInfo{
		PID:     pid,
		Name:    strings.TrimSpace(string(comm)),
		Cmdline: strings.TrimRight(string(cmdline), "\x00"),
	}, true
}

// NewSystemLister returns the preferred lister for the running platform:
// the /proc reader on Linux when available, gopsutil elsewhere.
func NewSystemLister() Lister {
	if runtime.GOOS == "linux" {
		fs := afero.NewOsFs()
		if ok, _ := afero.DirExists(fs, DefaultProcPath); ok {
			return NewProcFSLister(WithFs(fs))
		}
	}
	return GopsutilLister{}
}
