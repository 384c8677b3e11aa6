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
	"testing"
	"time"

	"pgregory.net/rapid"
)

// ============================================================================
// Generators
// ============================================================================

// idleGen generates idle durations from 0 to 10 minutes.
func idleGen() *rapid.Generator[time.Duration] {
	return rapid.Custom(func(t *rapid.T) time.Duration {
		ms := rapid.Int64Range(0, 10*60*1000).Draw(t, "idleMs")
		return time.Duration(ms) * time.Millisecond
	})
}

// tickDeltaGen generates wall-clock deltas between ticks, including
// negative jumps and sleep-sized gaps.
func tickDeltaGen() *rapid.Generator[time.Duration] {
	return rapid.OneOf(
		rapid.Custom(func(t *rapid.T) time.Duration {
			ms := rapid.Int64Range(-5000, 5000).Draw(t, "deltaMs")
			return time.Duration(ms) * time.Millisecond
		}),
		rapid.Custom(func(t *rapid.T) time.Duration {
			s := rapid.Int64Range(3, 24*60*60).Draw(t, "gapSeconds")
			return time.Duration(s) * time.Second
		}),
	)
}

type tickInput struct {
	title   string
	day     Date
	elapsed time.Duration
	state   ActivityState
}

func tickInputGen() *rapid.Generator[tickInput] {
	return rapid.Custom(func(t *rapid.T) tickInput {
		base := Date{Year: 2025, Month: time.March, Day: 10}
		return tickInput{
			title:   rapid.SampledFrom([]string{"", "A", "B"}).Draw(t, "title"),
			day:     base.AddDays(rapid.IntRange(0, 20).Draw(t, "dayOffset")),
			elapsed: tickDeltaGen().Draw(t, "elapsed"),
			state:   ActivityState(rapid.IntRange(0, 2).Draw(t, "state")),
		}
	})
}

// ============================================================================
// Classifier Property Tests
// ============================================================================

// TestPropertyClassifyPure verifies the classifier depends only on its
// inputs: replaying the same inputs in any order gives the same outputs.
func TestPropertyClassifyPure(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		type input struct {
			idle, threshold time.Duration
			running         bool
		}
		inputs := rapid.SliceOfN(rapid.Custom(func(t *rapid.T) input {
			return input{
				running:   rapid.Bool().Draw(t, "running"),
				idle:      idleGen().Draw(t, "idle"),
				threshold: idleGen().Draw(t, "threshold"),
			}
		}), 1, 50).Draw(t, "inputs")

		first := make([]ActivityState, len(inputs))
		for i, in := range inputs {
			first[i] = Classify(in.running, in.idle, in.threshold)
		}
		for i := len(inputs) - 1; i >= 0; i-- {
			in := inputs[i]
			if got := Classify(in.running, in.idle, in.threshold); got != first[i] {
				t.Fatalf("replay %d: got %v, first run %v", i, got, first[i])
			}
		}
	})
}

// TestPropertyClassifyPriority verifies the documented priority order.
func TestPropertyClassifyPriority(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		running := rapid.Bool().Draw(t, "running")
		idle := idleGen().Draw(t, "idle")
		threshold := idleGen().Draw(t, "threshold")

		got := Classify(running, idle, threshold)
		switch {
		case !running:
			if got != StateInactive {
				t.Fatalf("not running must be inactive, got %v", got)
			}
		case idle >= threshold:
			if got != StateAfk {
				t.Fatalf("idle %v >= threshold %v must be afk, got %v", idle, threshold, got)
			}
		default:
			if got != StateActive {
				t.Fatalf("expected active, got %v", got)
			}
		}
	})
}

// ============================================================================
// Accumulator Property Tests
// ============================================================================

// TestPropertyAccumulatorSumsActiveTicks verifies each record equals the sum
// of clamped deltas over exactly the active ticks for its key.
func TestPropertyAccumulatorSumsActiveTicks(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		tick := time.Duration(rapid.Int64Range(100, 5000).Draw(t, "tickMs")) * time.Millisecond
		ticks := rapid.SliceOfN(tickInputGen(), 0, 200).Draw(t, "ticks")

		acc := NewAccumulator(tick)
		want := make(map[Key]time.Duration)
		for _, in := range ticks {
			credited := acc.OnTick(in.state, in.elapsed, in.title, in.day)

			var expected time.Duration
			if in.state == StateActive && in.title != "" {
				switch {
				case in.elapsed <= 0:
				case in.elapsed > GapFactor*tick:
					expected = tick
				default:
					expected = in.elapsed
				}
			}
			if credited != expected {
				t.Fatalf("credited %v, want %v for %+v", credited, expected, in)
			}
			if credited > 0 {
				want[Key{Title: in.title, Date: in.day}] += credited
			}
		}

		for k, v := range want {
			if got := acc.ElapsedToday(k.Title, k.Date); got != v {
				t.Fatalf("%v: got %v, want %v", k, got, v)
			}
		}
		for k, v := range acc.Records() {
			if v < 0 {
				t.Fatalf("%v: negative record %v", k, v)
			}
			if _, ok := want[k]; !ok {
				t.Fatalf("%v: record created without an active tick", k)
			}
		}
	})
}

// TestPropertyWindowsNest verifies today <= week <= month <= total.
func TestPropertyWindowsNest(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		acc := NewAccumulator(time.Second)
		for _, in := range rapid.SliceOfN(tickInputGen(), 0, 100).Draw(t, "ticks") {
			acc.OnTick(in.state, in.elapsed, in.title, in.day)
		}
		today := Date{Year: 2025, Month: time.March, Day: 10}.AddDays(rapid.IntRange(0, 20).Draw(t, "today"))

		for _, title := range []string{"A", "B"} {
			d := acc.ElapsedToday(title, today)
			w := acc.ElapsedWeek(title, today)
			m := acc.ElapsedMonth(title, today)
			total := acc.ElapsedTotal(title)
			if d > w || w > m || m > total {
				t.Fatalf("%s: today %v week %v month %v total %v", title, d, w, m, total)
			}
		}
	})
}

// ============================================================================
// Goal Property Tests
// ============================================================================

// TestPropertyGoalBounds verifies fraction stays in [0,1] and remaining is
// never negative.
func TestPropertyGoalBounds(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		goal := time.Duration(rapid.Int64Range(0, 24*60*60).Draw(t, "goalSeconds")) * time.Second
		elapsed := time.Duration(rapid.Int64Range(0, 24*60*60).Draw(t, "elapsedSeconds")) * time.Second

		p := Progress(goal, elapsed)
		if goal == 0 {
			if p.HasGoal || p.Fraction != 0 {
				t.Fatalf("zero goal must mean no goal: %+v", p)
			}
			return
		}
		if p.Fraction < 0 || p.Fraction > 1 {
			t.Fatalf("fraction out of range: %v", p.Fraction)
		}
		if p.Remaining < 0 {
			t.Fatalf("negative remaining: %v", p.Remaining)
		}
		if p.Reached != (elapsed >= goal) {
			t.Fatalf("reached mismatch: %+v", p)
		}
		if p.Remaining+min(elapsed, goal) != goal {
			t.Fatalf("remaining %v + elapsed %v != goal %v", p.Remaining, elapsed, goal)
		}
	})
}
