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

package idle

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

var errNoHIDIdleTime = errors.New("HIDIdleTime not found in ioreg output")

// parseHIDIdleTime extracts the HIDIdleTime property (nanoseconds) from
// `ioreg -c IOHIDSystem` output.
func parseHIDIdleTime(out []byte) (time.Duration, error) {
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		idx := strings.Index(line, `"HIDIdleTime"`)
		if idx < 0 {
			continue
		}
		_, value, ok := strings.Cut(line[idx:], "=")
		if !ok {
			continue
		}
		ns, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse HIDIdleTime: %w", err)
		}
		return time.Duration(ns), nil
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("scan ioreg output: %w", err)
	}
	return 0, errNoHIDIdleTime
}

// ioregSource queries the macOS IOHIDSystem registry entry. There is no
// public Go binding for IOKit without cgo, so the ioreg tool is used.
type ioregSource struct {
	run func(ctx context.Context) ([]byte, error)
}

func newIoregSource() *ioregSource {
	return &ioregSource{
		run: func(ctx context.Context) ([]byte, error) {
			//nolint:gosec // fixed command and arguments
			return exec.CommandContext(ctx, "ioreg", "-c", "IOHIDSystem", "-d", "4").Output()
		},
	}
}

func (s *ioregSource) IdleDuration(ctx context.Context) (time.Duration, error) {
	out, err := s.run(ctx)
	if err != nil {
		return 0, fmt.Errorf("run ioreg: %w", err)
	}
	return parseHIDIdleTime(out)
}
