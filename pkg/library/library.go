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

// Package library suggests which known title a running process belongs to.
package library

import (
	"slices"
	"strings"
	"unicode"

	"github.com/hbollon/go-edlib"
	"github.com/rs/zerolog/log"
	"github.com/vnclub/vntracker/pkg/config"
	"github.com/vnclub/vntracker/pkg/procwatch"
	"golang.org/x/text/unicode/norm"
)

// MinSimilarity is the lowest Jaro-Winkler score returned as a suggestion.
const MinSimilarity float32 = 0.6

// Candidate is a title the user might be reading, with the process it was
// last tracked with, if any.
type Candidate struct {
	Title   string
	Process string
}

type Suggestion struct {
	Title      string  `json:"title"`
	Score      float32 `json:"score"`
	Remembered bool    `json:"remembered"`
}

// Candidates merges library entries, remembered title processes and titles
// that already have recorded time into one list without duplicates.
func Candidates(entries []config.LibraryEntry, processes map[string]string, recorded []string) []Candidate {
	seen := make(map[string]int)
	var out []Candidate
	add := func(title, process string) {
		if title == "" {
			return
		}
		key := strings.ToLower(title)
		if i, ok := seen[key]; ok {
			if out[i].Process == "" {
				out[i].Process = process
			}
			return
		}
		seen[key] = len(out)
		out = append(out, Candidate{Title: title, Process: process})
	}

	for _, e := range entries {
		add(e.Title, e.Process)
	}
	titles := make([]string, 0, len(processes))
	for t := range processes {
		titles = append(titles, t)
	}
	slices.Sort(titles)
	for _, t := range titles {
		add(t, processes[t])
	}
	for _, t := range recorded {
		add(t, "")
	}
	return out
}

// slug reduces s to lowercase letters and digits so that "Sakura no Uta"
// and "SakuraNoUta.exe" compare on content only.
func slug(s string) string {
	s = norm.NFKC.String(s)
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Suggest ranks candidates for a process name. A candidate remembered with
// this exact process always ranks first, the rest are ordered by
// Jaro-Winkler similarity between the process and title slugs.
func Suggest(process string, candidates []Candidate, limit int) []Suggestion {
	name := procwatch.NormalizeName(process)
	query := slug(name)
	if query == "" {
		return nil
	}

	var out []Suggestion
	for _, c := range candidates {
		if c.Process != "" && procwatch.NormalizeName(c.Process) == name {
			out = append(out, Suggestion{Title: c.Title, Score: 1, Remembered: true})
			continue
		}

		candidate := slug(c.Title)
		if candidate == "" {
			continue
		}
		similarity := edlib.JaroWinklerSimilarity(query, candidate)
		if similarity > 0.7 {
			log.Debug().
				Str("process", name).
				Str("title", c.Title).
				Float32("similarity", similarity).
				Msg("library: suggestion candidate")
		}
		if similarity >= MinSimilarity {
			out = append(out, Suggestion{Title: c.Title, Score: similarity})
		}
	}

	slices.SortStableFunc(out, func(a, b Suggestion) int {
		if a.Remembered != b.Remembered {
			if a.Remembered {
				return -1
			}
			return 1
		}
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return strings.Compare(a.Title, b.Title)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
