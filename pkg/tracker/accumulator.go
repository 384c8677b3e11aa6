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

// GapFactor is how many tick intervals a wall-clock delta may span before
// it is treated as a gap (system sleep, clock jump) rather than a slow tick.
const GapFactor = 3

// Accumulator owns the in-memory DailyRecord counters. It is not safe for
// concurrent use; the engine worker is its only caller.
type Accumulator struct {
	records      Records
	tickInterval time.Duration
}

// NewAccumulator creates an accumulator for the given tick interval.
func NewAccumulator(tickInterval time.Duration) *Accumulator {
	return &Accumulator{
		records:      make(Records),
		tickInterval: tickInterval,
	}
}

// Load replaces the counters with records read from the session store.
func (a *Accumulator) Load(records Records) {
	a.records = records.Clone()
}

// Merge adds stored records to counters that were accumulated before the
// store could be read. Keys in skip were reset in the meantime and keep
// their in-memory value.
func (a *Accumulator) Merge(records Records, skip map[Key]struct{}) {
	for k, v := range records {
		if _, ok := skip[k]; ok {
			continue
		}
		a.records[k] += v
	}
}

// Credit returns how much of a wall-clock delta may be attributed to a
// single tick. Deltas beyond GapFactor ticks credit one tick interval and
// the excess is dropped; negative deltas credit nothing.
func (a *Accumulator) Credit(elapsed time.Duration) time.Duration {
	if elapsed <= 0 {
		return 0
	}
	if elapsed > GapFactor*a.tickInterval {
		return a.tickInterval
	}
	return elapsed
}

// OnTick adds the clamped elapsed time to (title, day) when the tick was
// active and a title is bound. It returns the amount credited.
func (a *Accumulator) OnTick(state ActivityState, elapsed time.Duration, title string, day Date) time.Duration {
	if state != StateActive || title == "" {
		return 0
	}
	credit := a.Credit(elapsed)
	if credit == 0 {
		return 0
	}
	a.records[Key{Title: title, Date: day}] += credit
	return credit
}

// Record returns the stored duration for key.
func (a *Accumulator) Record(key Key) (time.Duration, bool) {
	d, ok := a.records[key]
	return d, ok
}

// ElapsedToday returns the active time for title on day.
func (a *Accumulator) ElapsedToday(title string, day Date) time.Duration {
	return a.records[Key{Title: title, Date: day}]
}

// ElapsedWeek sums title's records over the WeekDays days ending today.
func (a *Accumulator) ElapsedWeek(title string, today Date) time.Duration {
	return a.sumRange(title, today.WindowStart(WeekDays), today)
}

// ElapsedMonth sums title's records over the MonthDays days ending today.
func (a *Accumulator) ElapsedMonth(title string, today Date) time.Duration {
	return a.sumRange(title, today.WindowStart(MonthDays), today)
}

// ElapsedTotal sums every record for title.
func (a *Accumulator) ElapsedTotal(title string) time.Duration {
	var total time.Duration
	for k, v := range a.records {
		if k.Title == title {
			total += v
		}
	}
	return total
}

func (a *Accumulator) sumRange(title string, from, to Date) time.Duration {
	var total time.Duration
	for k, v := range a.records {
		if k.Title != title {
			continue
		}
		if k.Date.Before(from) || to.Before(k.Date) {
			continue
		}
		total += v
	}
	return total
}

// ResetToday zeroes the record for (title, day). It is the only operation
// that decreases a counter. The record is kept (at zero) so the reset is
// written through to the store.
func (a *Accumulator) ResetToday(title string, day Date) {
	a.records[Key{Title: title, Date: day}] = 0
}

// Records returns a copy of every counter.
func (a *Accumulator) Records() Records {
	return a.records.Clone()
}
