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

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/vnclub/vntracker/pkg/config"
	"github.com/vnclub/vntracker/pkg/platforms"
	"github.com/vnclub/vntracker/pkg/procwatch"
	"github.com/vnclub/vntracker/pkg/service"
	"github.com/vnclub/vntracker/pkg/tracker"
)

// Starter is the part of the engine StartTitle needs.
type Starter interface {
	Start(ctx context.Context, title string, target procwatch.Target) error
}

// StartTitle begins tracking title. An empty process falls back to the one
// remembered for the title. On success the binding is remembered for the
// next run.
func StartTitle(ctx context.Context, cfg *config.Instance, engine Starter, title, process string) error {
	title = tracker.NormalizeTitle(title)
	if process == "" {
		var ok bool
		if process, ok = cfg.ProcessForTitle(title); !ok {
			return fmt.Errorf("%q: %w", title, ErrNoProcess)
		}
	}

	if err := engine.Start(ctx, title, procwatch.ParseTarget(process)); err != nil {
		return fmt.Errorf("failed to start tracking: %w", err)
	}

	cfg.RememberTitle(title, process)
	if err := cfg.Save(); err != nil {
		log.Warn().Err(err).Msg("failed to save last title")
	}
	log.Info().Str("title", title).Str("process", process).Msg("tracking started from command line")
	return nil
}

// Run starts the service and blocks until a signal arrives or the service
// stops on its own. Outside daemon mode a status line follows the engine
// on stdout.
func (f *Flags) Run(pl platforms.Platform, cfg *config.Instance) error {
	svc, err := service.Start(pl, cfg)
	if err != nil {
		log.Error().Msgf("error starting service: %s", err)
		return fmt.Errorf("error starting service: %w", err)
	}

	defer func() {
		if err := svc.Stop(); err != nil {
			log.Error().Msgf("error stopping service: %s", err)
		}
	}()

	if *f.Title != "" {
		if err := StartTitle(context.Background(), cfg, svc.Engine, *f.Title, *f.Process); err != nil {
			return err
		}
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	if *f.Daemon {
		log.Info().Msg("started in daemon mode")
	} else {
		snaps, unsubscribe := svc.Engine.Subscribe(1)
		defer unsubscribe()
		go printStatus(os.Stdout, snaps)
	}

	select {
	case sig := <-sigs:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-svc.Done():
		if err := svc.Err(); err != nil {
			return fmt.Errorf("service stopped: %w", err)
		}
	}
	return nil
}
