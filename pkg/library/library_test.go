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

package library

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vnclub/vntracker/pkg/config"
	"pgregory.net/rapid"
)

func TestSuggest_RememberedProcessFirst(t *testing.T) {
	t.Parallel()

	got := Suggest("SAKURA.EXE", []Candidate{
		{Title: "Sakura no Uta"},
		{Title: "Ever17", Process: "sakura.exe"},
	}, 0)

	require.Len(t, got, 2)
	assert.Equal(t, Suggestion{Title: "Ever17", Score: 1, Remembered: true}, got[0])
	assert.Equal(t, "Sakura no Uta", got[1].Title)
	assert.Greater(t, got[1].Score, float32(0.85))
	assert.False(t, got[1].Remembered)
}

func TestSuggest_FiltersUnrelated(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Suggest("sakura.exe", []Candidate{{Title: "Ever17"}}, 0))
}

func TestSuggest_EmptyProcess(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Suggest("  .exe ", []Candidate{{Title: "Ever17"}}, 0))
}

func TestSuggest_Limit(t *testing.T) {
	t.Parallel()

	got := Suggest("sakura", []Candidate{
		{Title: "Sakura no Uta"},
		{Title: "Sakura Sakura"},
		{Title: "Sakura Taisen"},
	}, 2)
	assert.Len(t, got, 2)
}

func TestSlug(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "fatestaynight", slug("Fate/stay night"))
	assert.Equal(t, "ever17", slug("Ever 17"))
	assert.Equal(t, "サクラノ詩", slug("サクラノ詩"))
	// full width letters fold to ASCII
	assert.Equal(t, "ever17", slug("Ｅｖｅｒ１７"))
}

func TestCandidates_MergesAndDeduplicates(t *testing.T) {
	t.Parallel()

	got := Candidates(
		[]config.LibraryEntry{{Title: "Ever17"}, {Title: "Muramasa", Process: "muramasa.exe"}},
		map[string]string{"ever17": "ever17.exe", "Sakura no Uta": "sakura.exe"},
		[]string{"Muramasa", "Subahibi"},
	)

	assert.Equal(t, []Candidate{
		{Title: "Ever17", Process: "ever17.exe"},
		{Title: "Muramasa", Process: "muramasa.exe"},
		{Title: "Sakura no Uta", Process: "sakura.exe"},
		{Title: "Subahibi"},
	}, got)
}

// TestPropertySuggestOrdering verifies scores stay in range and results are
// ordered with remembered titles first, then by descending score.
func TestPropertySuggestOrdering(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		process := rapid.StringMatching(`[a-z]{1,8}(\.exe)?`).Draw(t, "process")
		candidates := rapid.SliceOfN(rapid.Custom(func(t *rapid.T) Candidate {
			return Candidate{
				Title:   rapid.StringMatching(`[A-Za-z ]{0,12}`).Draw(t, "title"),
				Process: rapid.SampledFrom([]string{"", process, "other.exe"}).Draw(t, "proc"),
			}
		}), 0, 20).Draw(t, "candidates")

		got := Suggest(process, candidates, 0)
		for i, s := range got {
			if s.Score < MinSimilarity || s.Score > 1 {
				t.Fatalf("score out of range: %+v", s)
			}
			if s.Remembered && s.Score != 1 {
				t.Fatalf("remembered suggestion must score 1: %+v", s)
			}
			if i == 0 {
				continue
			}
			prev := got[i-1]
			if s.Remembered && !prev.Remembered {
				t.Fatalf("remembered %q after similar %q", s.Title, prev.Title)
			}
			if s.Remembered == prev.Remembered && s.Score > prev.Score {
				t.Fatalf("not sorted: %+v before %+v", prev, s)
			}
		}
	})
}
