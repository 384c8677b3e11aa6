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

package tracker

import (
	"sync"
	"time"

	"github.com/vnclub/vntracker/pkg/helpers/syncutil"
	"github.com/vnclub/vntracker/pkg/procwatch"
)

// Snapshot is an immutable copy of the engine's observable state. A new
// value is published after every tick and every accepted command.
type Snapshot struct {
	UpdatedAt       time.Time
	Date            Date
	Target          procwatch.Target
	Title           string
	LastSampleError string
	Goal            GoalProgress
	ElapsedToday    time.Duration
	ElapsedWeek     time.Duration
	ElapsedMonth    time.Duration
	ElapsedTotal    time.Duration
	AfkThreshold    time.Duration
	TickInterval    time.Duration
	Ticks           uint64
	Engine          EngineState
	State           ActivityState
}

// broadcaster fans snapshots out to subscribers without ever blocking the
// worker. A slow subscriber misses intermediate snapshots.
type broadcaster struct {
	subs   map[chan Snapshot]struct{}
	mu     syncutil.Mutex
	closed bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[chan Snapshot]struct{})}
}

func (b *broadcaster) subscribe(buf int) (<-chan Snapshot, func()) {
	if buf < 1 {
		buf = 1
	}
	ch := make(chan Snapshot, buf)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
		})
	}
}

func (b *broadcaster) publish(s Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- s:
		default:
		}
	}
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}
