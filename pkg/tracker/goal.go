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

import "time"

// GoalProgress is today's standing against the daily goal.
type GoalProgress struct {
	// Goal is the configured daily target. Zero means no goal is set.
	Goal time.Duration `json:"goal"`
	// Elapsed is the active time counted towards the goal.
	Elapsed time.Duration `json:"elapsed"`
	// Remaining is max(0, Goal-Elapsed).
	Remaining time.Duration `json:"remaining"`
	// Fraction is Elapsed/Goal clamped to [0, 1]. It is only meaningful
	// when HasGoal is true.
	Fraction float64 `json:"fraction"`
	HasGoal  bool    `json:"hasGoal"`
	Reached  bool    `json:"reached"`
}

// Progress evaluates elapsed against goal. A goal of zero (or less) yields
// "no goal" semantics instead of a division.
func Progress(goal, elapsed time.Duration) GoalProgress {
	if elapsed < 0 {
		elapsed = 0
	}
	if goal <= 0 {
		return GoalProgress{Elapsed: elapsed}
	}

	remaining := goal - elapsed
	if remaining < 0 {
		remaining = 0
	}

	fraction := float64(elapsed) / float64(goal)
	if fraction > 1 {
		fraction = 1
	}

	return GoalProgress{
		Goal:      goal,
		Elapsed:   elapsed,
		Remaining: remaining,
		Fraction:  fraction,
		HasGoal:   true,
		Reached:   elapsed >= goal,
	}
}
