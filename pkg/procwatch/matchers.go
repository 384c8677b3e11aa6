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
	"strings"
)

// Matcher determines if a process is the one being watched.
type Matcher interface {
	Match(proc ProcessInfo) bool
}

// NameMatcher matches processes by executable name, case-insensitively
// and ignoring a .exe suffix. The kernel name, the executable path and the
// first command line argument are all checked, so Windows paths reported
// by Wine match too.
type NameMatcher struct {
	name string
}

// NewNameMatcher creates a matcher for the given executable name.
func NewNameMatcher(name string) *NameMatcher {
	return &NameMatcher{name: NormalizeName(name)}
}

// Match implements Matcher.
func (m *NameMatcher) Match(proc ProcessInfo) bool {
	if m.name == "" {
		return false
	}
	if NormalizeName(proc.Name) == m.name {
		return true
	}
	if proc.Exe != "" && NormalizeName(baseName(proc.Exe)) == m.name {
		return true
	}
	if argv0 := argv0Base(proc.Cmdline); argv0 != "" && NormalizeName(argv0) == m.name {
		return true
	}
	return false
}

// PIDMatcher matches a single process ID.
type PIDMatcher int32

// Match implements Matcher.
func (m PIDMatcher) Match(proc ProcessInfo) bool {
	return proc.PID == int32(m)
}

// baseName strips both forward and backslash separated directories.
func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

// argv0Base returns the basename of the first argument of a NUL or space
// separated command line.
func argv0Base(cmdline string) string {
	if cmdline == "" {
		return ""
	}
	argv0 := cmdline
	switch {
	case strings.IndexByte(argv0, 0) >= 0:
		argv0 = argv0[:strings.IndexByte(argv0, 0)]
	case strings.HasPrefix(argv0, `"`):
		if end := strings.IndexByte(argv0[1:], '"'); end >= 0 {
			argv0 = argv0[1 : end+1]
		}
	default:
		// Unquoted Windows paths may contain spaces; cut after the
		// executable when one is visible.
		if i := strings.Index(strings.ToLower(argv0), ".exe"); i >= 0 {
			argv0 = argv0[:i+len(".exe")]
		} else if i := strings.IndexByte(argv0, ' '); i >= 0 {
			argv0 = argv0[:i]
		}
	}
	return baseName(argv0)
}
