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

import "github.com/rs/zerolog/log"

const (
	StoreBackendJSON   = "json"
	StoreBackendSQLite = "sqlite"
	StoreBackendBolt   = "bolt"
)

type Store struct {
	Backend string `toml:"backend,omitempty"`
}

// StoreBackend returns the configured persistence backend, falling back to
// the JSON file store for unknown values.
func (c *Instance) StoreBackend() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch c.vals.Store.Backend {
	case StoreBackendSQLite, StoreBackendBolt:
		return c.vals.Store.Backend
	case "", StoreBackendJSON:
		return StoreBackendJSON
	default:
		log.Warn().Msgf("unknown store backend %q, using json", c.vals.Store.Backend)
		return StoreBackendJSON
	}
}
