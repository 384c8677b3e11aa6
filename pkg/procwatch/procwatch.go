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

// Package procwatch answers whether a given visual novel process is
// running, using a single process enumeration per query.
package procwatch

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ProcessInfo contains information about a running process.
type ProcessInfo struct {
	Name    string
	Exe     string
	Cmdline string
	PID     int32
}

// Lister enumerates running processes.
type Lister interface {
	List(ctx context.Context) ([]ProcessInfo, error)
}

// ListerFunc is a function adapter for the Lister interface.
type ListerFunc func(ctx context.Context) ([]ProcessInfo, error)

// List implements Lister.
func (f ListerFunc) List(ctx context.Context) ([]ProcessInfo, error) {
	return f(ctx)
}

// Target designates the process to watch, either by executable name or by
// PID. A PID takes precedence when both are set.
type Target struct {
	Name string `json:"name,omitempty"`
	PID  int32  `json:"pid,omitempty"`
}

// ParseTarget interprets s as a PID when it is all digits and as an
// executable name otherwise. Names keep their spelling; matching ignores
// case and a .exe suffix.
func ParseTarget(s string) Target {
	s = strings.TrimSpace(s)
	if s == "" {
		return Target{}
	}
	if pid, err := strconv.ParseInt(s, 10, 32); err == nil && pid > 0 {
		return Target{PID: int32(pid)}
	}
	return Target{Name: s}
}

// IsZero reports whether the target designates nothing.
func (t Target) IsZero() bool {
	return t.PID <= 0 && t.Name == ""
}

func (t Target) String() string {
	if t.PID > 0 {
		return "pid:" + strconv.FormatInt(int64(t.PID), 10)
	}
	return t.Name
}

// Matcher returns the process matcher for this target.
func (t Target) Matcher() Matcher {
	if t.PID > 0 {
		return PIDMatcher(t.PID)
	}
	return NewNameMatcher(t.Name)
}

// NormalizeName lowercases a process name and strips a trailing .exe so
// native and Wine processes compare equal.
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.TrimSuffix(name, ".exe")
}

// Watcher checks targets against a Lister.
type Watcher struct {
	lister Lister
}

// NewWatcher creates a Watcher backed by lister.
func NewWatcher(lister Lister) *Watcher {
	return &Watcher{lister: lister}
}

// IsRunning reports whether target is currently running. A process that
// vanishes during enumeration is simply not running; enumeration failures
// return false together with the error.
func (w *Watcher) IsRunning(ctx context.Context, target Target) (bool, error) {
	if target.IsZero() {
		return false, nil
	}
	procs, err := w.lister.List(ctx)
	if err != nil {
		return false, fmt.Errorf("listing processes: %w", err)
	}
	m := target.Matcher()
	for _, p := range procs {
		if m.Match(p) {
			return true, nil
		}
	}
	return false, nil
}

// Names returns the sorted, de-duplicated normalized names of running
// processes.
func (w *Watcher) Names(ctx context.Context) ([]string, error) {
	procs, err := w.lister.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}
	names := make([]string, 0, len(procs))
	for _, p := range procs {
		name := NormalizeName(displayName(p))
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}

// displayName prefers the argv0 basename when the kernel name is
// truncated, which is common for long Wine executable names.
func displayName(p ProcessInfo) string {
	if argv0 := argv0Base(p.Cmdline); argv0 != "" && strings.HasPrefix(strings.ToLower(argv0), strings.ToLower(p.Name)) {
		return argv0
	}
	return p.Name
}
