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
	"fmt"
	"time"
)

// ActivityState is the engine-wide classification of a single tick.
type ActivityState int

const (
	// StateInactive means the tracked process is not running (or could not
	// be sampled).
	StateInactive ActivityState = iota
	// StateAfk means the process is running but input has been idle for at
	// least the AFK threshold.
	StateAfk
	// StateActive means the process is running and the user is at the
	// keyboard. Only active ticks accumulate time.
	StateActive
)

func (s ActivityState) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateAfk:
		return "afk"
	case StateActive:
		return "active"
	default:
		return fmt.Sprintf("ActivityState(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s ActivityState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// EngineState reports whether the engine has a bound target and a running
// ticker.
type EngineState int

const (
	EngineStopped EngineState = iota
	EngineTracking
)

func (s EngineState) String() string {
	switch s {
	case EngineStopped:
		return "stopped"
	case EngineTracking:
		return "tracking"
	default:
		return fmt.Sprintf("EngineState(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s EngineState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Classify derives the activity state from one tick's inputs. It holds no
// memory of earlier ticks: process presence is checked first, then idle
// time against the threshold. A zero threshold classifies every running
// tick as AFK.
func Classify(processRunning bool, idle, afkThreshold time.Duration) ActivityState {
	if !processRunning {
		return StateInactive
	}
	if idle >= afkThreshold {
		return StateAfk
	}
	return StateActive
}

// Sample is the raw observation taken on a tick. It is consumed by the
// classifier and never persisted.
type Sample struct {
	Time           time.Time
	Err            error
	Idle           time.Duration
	ProcessRunning bool
}

// State classifies the sample. A failed sample is always inactive.
func (s Sample) State(afkThreshold time.Duration) ActivityState {
	if s.Err != nil {
		return StateInactive
	}
	return Classify(s.ProcessRunning, s.Idle, afkThreshold)
}
