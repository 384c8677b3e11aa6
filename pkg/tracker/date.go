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
	"slices"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// DateLayout is the on-disk and wire format of a Date.
const DateLayout = "2006-01-02"

// Date is a calendar day in the user's local time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d == Date{}
}

// Time returns midnight of d in loc.
func (d Date) Time(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// AddDays returns d shifted by n days. Normalisation is done in UTC so DST
// transitions never skip or repeat a day.
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time(time.UTC).AddDate(0, 0, n))
}

// Compare returns -1, 0 or +1 depending on whether d is before, equal to or
// after o.
func (d Date) Compare(o Date) int {
	return d.Time(time.UTC).Compare(o.Time(time.UTC))
}

// Before reports whether d is strictly before o.
func (d Date) Before(o Date) bool {
	return d.Compare(o) < 0
}

// Rolling window lengths, in days including today, for the week and month
// totals.
const (
	WeekDays  = 7
	MonthDays = 30
)

// WindowStart returns the first day of the n-day window ending on d.
func (d Date) WindowStart(days int) Date {
	return d.AddDays(1 - days)
}

// MarshalText implements encoding.TextMarshaler. The zero Date is empty.
func (d Date) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return []byte{}, nil
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty text is the
// zero Date.
func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Key identifies one DailyRecord.
type Key struct {
	Title string
	Date  Date
}

// Records maps (title, date) to accumulated active time.
type Records map[Key]time.Duration

// Clone returns an independent copy of r.
func (r Records) Clone() Records {
	out := make(Records, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Titles returns every title with at least one record, sorted.
func (r Records) Titles() []string {
	seen := make(map[string]struct{})
	titles := make([]string, 0)
	for k := range r {
		if _, ok := seen[k.Title]; ok {
			continue
		}
		seen[k.Title] = struct{}{}
		titles = append(titles, k.Title)
	}
	slices.Sort(titles)
	return titles
}

// NormalizeTitle trims whitespace and applies Unicode NFC so that the same
// title typed on different input methods maps to the same key.
func NormalizeTitle(title string) string {
	return norm.NFC.String(strings.TrimSpace(title))
}
