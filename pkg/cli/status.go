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

package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/vnclub/vntracker/pkg/tracker"
)

// FormatClock renders d as h:mm:ss, truncated to whole seconds.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", secs/3600, secs/60%60, secs%60)
}

// StatusLine summarises a snapshot on one line.
func StatusLine(s tracker.Snapshot) string {
	if s.Engine != tracker.EngineTracking {
		return "stopped"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] today %s", s.Title, s.State, FormatClock(s.ElapsedToday))
	if s.Goal.HasGoal {
		fmt.Fprintf(&b, " / %s (%.0f%%)", FormatClock(s.Goal.Goal), s.Goal.Fraction*100)
		if s.Goal.Reached {
			b.WriteString(" goal reached")
		}
	}
	fmt.Fprintf(&b, " | week %s | month %s | total %s",
		FormatClock(s.ElapsedWeek), FormatClock(s.ElapsedMonth), FormatClock(s.ElapsedTotal))
	if s.LastSampleError != "" {
		fmt.Fprintf(&b, " | error: %s", s.LastSampleError)
	}
	return b.String()
}

// statusPrinter writes status lines for snapshots. On a terminal the line
// is redrawn in place every tick. Otherwise a line is only written when it
// changes in something other than the counters.
type statusPrinter struct {
	w        io.Writer
	last     string
	lastKey  string
	terminal bool
}

func newStatusPrinter(w io.Writer) *statusPrinter {
	p := &statusPrinter{w: w}
	if f, ok := w.(interface{ Fd() uintptr }); ok {
		p.terminal = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return p
}

func statusKey(s tracker.Snapshot) string {
	return fmt.Sprintf("%s|%s|%s|%t|%s", s.Engine, s.Title, s.State, s.Goal.Reached, s.LastSampleError)
}

func (p *statusPrinter) print(s tracker.Snapshot) {
	line := StatusLine(s)
	if p.terminal {
		if line != p.last {
			_, _ = fmt.Fprintf(p.w, "\r\033[K%s", line)
		}
		p.last = line
		return
	}

	key := statusKey(s)
	if key == p.lastKey {
		return
	}
	p.lastKey = key
	_, _ = fmt.Fprintln(p.w, line)
}

func (p *statusPrinter) finish() {
	if p.terminal && p.last != "" {
		_, _ = fmt.Fprintln(p.w)
	}
}

// printStatus writes a status line for every snapshot until snaps closes.
func printStatus(w io.Writer, snaps <-chan tracker.Snapshot) {
	p := newStatusPrinter(w)
	defer p.finish()
	for s := range snaps {
		p.print(s)
	}
}
