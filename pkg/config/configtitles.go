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
	"maps"
	"slices"
	"strings"
)

// Titles remembers what was tracked last and which process each title
// was tracked with.
type Titles struct {
	Process     map[string]string `toml:"process,omitempty"`
	Last        string            `toml:"last,omitempty"`
	LastProcess string            `toml:"last_process,omitempty"`
}

// LibraryEntry is a title the user keeps in their library. Removing an
// entry never touches recorded time.
type LibraryEntry struct {
	Title   string `toml:"title" json:"title"`
	VNDBID  string `toml:"vndb_id,omitempty" json:"vndbId,omitempty"`
	Process string `toml:"process,omitempty" json:"process,omitempty"`
}

// LastTitle returns the most recently tracked title and its process.
func (c *Instance) LastTitle() (title, process string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Titles.Last, c.vals.Titles.LastProcess
}

// RememberTitle records title as the last tracked one and binds process to
// it for future suggestions.
func (c *Instance) RememberTitle(title, process string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Titles.Last = title
	c.vals.Titles.LastProcess = process
	if title == "" || process == "" {
		return
	}
	if c.vals.Titles.Process == nil {
		c.vals.Titles.Process = make(map[string]string)
	}
	c.vals.Titles.Process[title] = process
}

// ProcessForTitle returns the process last used with title.
func (c *Instance) ProcessForTitle(title string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.vals.Titles.Process[title]
	return p, ok
}

// TitleProcesses returns a copy of the title to process map.
func (c *Instance) TitleProcesses() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.vals.Titles.Process)
}

func (c *Instance) Library() []LibraryEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.vals.Library)
}

// AddLibraryEntry inserts e, replacing an entry with the same title.
// It reports whether an existing entry was replaced.
func (c *Instance) AddLibraryEntry(e LibraryEntry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.vals.Library {
		if strings.EqualFold(c.vals.Library[i].Title, e.Title) {
			c.vals.Library[i] = e
			return true
		}
	}
	c.vals.Library = append(c.vals.Library, e)
	return false
}

// RemoveLibraryEntry removes the entry for title and reports whether one
// existed.
func (c *Instance) RemoveLibraryEntry(title string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	before := len(c.vals.Library)
	c.vals.Library = slices.DeleteFunc(c.vals.Library, func(e LibraryEntry) bool {
		return strings.EqualFold(e.Title, title)
	})
	return len(c.vals.Library) != before
}
