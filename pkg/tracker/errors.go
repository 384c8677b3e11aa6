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

import "errors"

// Configuration error causes. They are always returned wrapped in a
// *ConfigError and can be matched with errors.Is.
var (
	ErrAlreadyTracking  = errors.New("already tracking")
	ErrNotTracking      = errors.New("not tracking")
	ErrInvalidTitle     = errors.New("title must not be empty")
	ErrInvalidTarget    = errors.New("process target must not be empty")
	ErrNegativeDuration = errors.New("duration must not be negative")
	ErrInvalidInterval  = errors.New("tick interval must be positive")
	ErrEngineClosed     = errors.New("engine is not running")
)

var (
	// ErrStoreCorrupt is wrapped by a Store's Load when some stored data
	// was unreadable. The records returned with it are still usable.
	ErrStoreCorrupt = errors.New("session store corrupt")

	// ErrStoreUnread is returned by a write while the store has not been
	// read successfully. The changes stay in memory.
	ErrStoreUnread = errors.New("session store not read yet")
)

// ConfigError is returned synchronously for a rejected command. The engine
// state is unchanged when it is returned.
type ConfigError struct {
	Err error
	Op  string
}

func (e *ConfigError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func configErr(op string, err error) error {
	return &ConfigError{Op: op, Err: err}
}

// SampleError reports that one tick's OS query failed. The tick is
// classified inactive and the loop continues.
type SampleError struct {
	Err    error
	Source string
}

func (e *SampleError) Error() string {
	return "sample " + e.Source + ": " + e.Err.Error()
}

func (e *SampleError) Unwrap() error {
	return e.Err
}
