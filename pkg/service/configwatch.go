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

package service

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vnclub/vntracker/pkg/config"
)

// reloadDelay collapses the burst of events editors produce on save.
const reloadDelay = 250 * time.Millisecond

// Settings is the part of the engine that follows config edits.
type Settings interface {
	SetGoal(ctx context.Context, goal time.Duration) error
	SetAfkThreshold(ctx context.Context, threshold time.Duration) error
}

// applyConfig reloads the file and pushes the live settings to the engine.
// Tick interval and store backend changes need a restart.
func applyConfig(ctx context.Context, cfg *config.Instance, engine Settings) error {
	if err := cfg.Load(); err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}

	if cfg.DebugLogging() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if err := engine.SetGoal(ctx, cfg.DailyGoal()); err != nil {
		return fmt.Errorf("applying daily goal: %w", err)
	}
	if err := engine.SetAfkThreshold(ctx, cfg.AfkThreshold()); err != nil {
		return fmt.Errorf("applying afk threshold: %w", err)
	}
	log.Info().
		Dur("goal", cfg.DailyGoal()).
		Dur("afk", cfg.AfkThreshold()).
		Msg("config reloaded")
	return nil
}

// watchConfig watches the config file's directory, since editors often
// replace the file instead of writing it, and re-applies settings after
// each change. A watcher that cannot start is logged and the service keeps
// running without live reload.
func watchConfig(ctx context.Context, cfg *config.Instance, engine Settings, clock clockwork.Clock) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn().Err(err).Msg("config watcher unavailable")
		return nil
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			log.Debug().Err(err).Msg("closing config watcher")
		}
	}()

	path := filepath.Clean(cfg.Path())
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("failed to watch config directory")
		return nil
	}
	log.Debug().Str("path", path).Msg("watching config file")

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			pending = clock.After(reloadDelay)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("config watcher error")
		case <-pending:
			pending = nil
			if err := applyConfig(ctx, cfg, engine); err != nil {
				log.Warn().Err(err).Msg("config change ignored")
			}
		}
	}
}
