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

// Package idle reports how long the desktop session has gone without
// keyboard or mouse input.
package idle

import (
	"context"
	"errors"
	"time"
)

// ErrUnsupported is returned when no idle time source exists for the
// running platform or desktop session.
var ErrUnsupported = errors.New("idle time not supported on this platform")

// Source reports the time since the last global input event.
type Source interface {
	IdleDuration(ctx context.Context) (time.Duration, error)
}

// SourceFunc is a function adapter for the Source interface.
type SourceFunc func(ctx context.Context) (time.Duration, error)

// IdleDuration implements Source.
func (f SourceFunc) IdleDuration(ctx context.Context) (time.Duration, error) {
	return f(ctx)
}

// Never is a Source that always reports zero idle time. It is used when
// the platform has no idle detection, so a running process always counts
// as active.
var Never Source = SourceFunc(func(context.Context) (time.Duration, error) {
	return 0, nil
})

// NewSystemSource returns the idle source for the current platform. The
// returned Source may also implement io.Closer.
func NewSystemSource() (Source, error) {
	return newSystemSource()
}
