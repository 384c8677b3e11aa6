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

package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultTickInterval = time.Second
	DefaultAfkThreshold = 60 * time.Second
	DefaultDailyGoal    = 90 * time.Minute
	DefaultFlushEvery   = 10
)

// Tracking configures the sampling loop.
type Tracking struct {
	FlushEvery   *int   `toml:"flush_every,omitempty"`
	TickInterval string `toml:"tick_interval,omitempty"`
	AfkThreshold string `toml:"afk_threshold,omitempty"`
	AutoStart    bool   `toml:"auto_start,omitempty"`
}

// Goal configures the daily reading target.
type Goal struct {
	Daily string `toml:"daily,omitempty"`
}

// parseDuration returns def for empty, invalid or negative values.
func parseDuration(key, s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		log.Warn().Str("key", key).Str("value", s).Msg("invalid duration in config, using default")
		return def
	}
	return d
}

var ErrNegativeDuration = errors.New("duration must not be negative")

// TickInterval is fixed for the lifetime of a tracking engine. Zero is
// not a valid interval and falls back to the default.
func (c *Instance) TickInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d := parseDuration("tracking.tick_interval", c.vals.Tracking.TickInterval, DefaultTickInterval)
	if d == 0 {
		return DefaultTickInterval
	}
	return d
}

// AfkThreshold returns the idle duration after which a running title
// counts as AFK. Zero is allowed and means any idle time is AFK.
func (c *Instance) AfkThreshold() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return parseDuration("tracking.afk_threshold", c.vals.Tracking.AfkThreshold, DefaultAfkThreshold)
}

func (c *Instance) SetAfkThreshold(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("invalid afk threshold %s: %w", d, ErrNegativeDuration)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Tracking.AfkThreshold = d.String()
	return nil
}

func (c *Instance) FlushEvery() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Tracking.FlushEvery == nil || *c.vals.Tracking.FlushEvery <= 0 {
		return DefaultFlushEvery
	}
	return *c.vals.Tracking.FlushEvery
}

func (c *Instance) AutoStart() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Tracking.AutoStart
}

func (c *Instance) SetAutoStart(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Tracking.AutoStart = enabled
}

// DailyGoal returns the daily target. Zero means no goal.
func (c *Instance) DailyGoal() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return parseDuration("goal.daily", c.vals.Goal.Daily, DefaultDailyGoal)
}

func (c *Instance) SetDailyGoal(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("invalid daily goal %s: %w", d, ErrNegativeDuration)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Goal.Daily = d.String()
	return nil
}
