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
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/vnclub/vntracker/pkg/config"
	"github.com/vnclub/vntracker/pkg/export"
	"github.com/vnclub/vntracker/pkg/helpers"
	"github.com/vnclub/vntracker/pkg/platforms"
	"github.com/vnclub/vntracker/pkg/procwatch"
	"github.com/vnclub/vntracker/pkg/store"
)

// ErrNoProcess is returned when a title is given without a process and
// none has been remembered for it.
var ErrNoProcess = errors.New("no process known for title, pass -process")

const commandTimeout = 30 * time.Second

type Flags struct {
	Version       *bool
	Title         *string
	Process       *string
	Export        *string
	ListProcesses *bool
	Daemon        *bool
}

// SetupFlags defines all common CLI flags between platforms.
func SetupFlags() *Flags {
	return &Flags{
		Version: flag.Bool(
			"version",
			false,
			"print version and exit",
		),
		Title: flag.String(
			"title",
			"",
			"start tracking this title once the service is up",
		),
		Process: flag.String(
			"process",
			"",
			"process name or PID to watch for -title",
		),
		Export: flag.String(
			"export",
			"",
			"write CSV and JSON exports of the time log to this directory and exit",
		),
		ListProcesses: flag.Bool(
			"list-processes",
			false,
			"print running process names and exit",
		),
		Daemon: flag.Bool(
			"daemon",
			false,
			"run service in foreground, logging to stderr with no status line",
		),
	}
}

func isFlagPassed(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// Pre runs flag parsing and actions any immediate flags that don't
// require environment setup. Add any custom flags before running this.
func (f *Flags) Pre(pl platforms.Platform) {
	flag.Parse()

	if *f.Version {
		_, _ = fmt.Printf("VN Tracker v%s (%s)\n", config.AppVersion, pl.ID())
		os.Exit(0)
	}

	if *f.Process != "" && *f.Title == "" {
		_, _ = fmt.Fprint(os.Stderr, "Error: process flag requires -title\n")
		os.Exit(1)
	}
}

// Post actions all remaining one-shot flags that require the environment
// to be set up. Logging is allowed.
func (f *Flags) Post(cfg *config.Instance, pl platforms.Platform) {
	if code, handled := f.oneShot(cfg, pl); handled {
		os.Exit(code)
	}
}

func (f *Flags) oneShot(cfg *config.Instance, pl platforms.Platform) (code int, handled bool) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch {
	case *f.ListProcesses:
		if err := ListProcesses(ctx, os.Stdout, pl.ProcessLister()); err != nil {
			log.Error().Err(err).Msg("error listing processes")
			_, _ = fmt.Fprintf(os.Stderr, "Error listing processes: %v\n", err)
			return 1, true
		}
		return 0, true
	case isFlagPassed("export"):
		if *f.Export == "" {
			_, _ = fmt.Fprint(os.Stderr, "Error: export flag requires a value\n")
			return 1, true
		}
		err := Export(ctx, os.Stdout, afero.NewOsFs(), *f.Export, cfg.StoreBackend(), helpers.DataDir(pl))
		if err != nil {
			log.Error().Err(err).Msg("error exporting time log")
			_, _ = fmt.Fprintf(os.Stderr, "Error exporting: %v\n", err)
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// ListProcesses prints the normalized names of running processes, one per
// line, in the form accepted by -process.
func ListProcesses(ctx context.Context, w io.Writer, lister procwatch.Lister) error {
	names, err := procwatch.NewWatcher(lister).Names(ctx)
	if err != nil {
		return fmt.Errorf("failed to list processes: %w", err)
	}
	for _, name := range names {
		if _, err := fmt.Fprintln(w, name); err != nil {
			return fmt.Errorf("failed to write process name: %w", err)
		}
	}
	return nil
}

// Export reads the time log from dataDir and writes the per-title CSVs, the
// combined CSV and the JSON copy into dir. The written paths are printed
// to w.
func Export(ctx context.Context, w io.Writer, fs afero.Fs, dir, backend, dataDir string) error {
	st, err := store.Open(ctx, backend, dataDir, clockwork.NewRealClock())
	if err != nil {
		return fmt.Errorf("failed to open time log: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing time log")
		}
	}()

	records, err := st.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load time log: %w", err)
	}

	written, err := export.ToDir(fs, dir, records)
	if err != nil {
		return fmt.Errorf("failed to export time log: %w", err)
	}
	for _, path := range written {
		if _, err := fmt.Fprintln(w, path); err != nil {
			return fmt.Errorf("failed to write export path: %w", err)
		}
	}
	log.Info().Int("files", len(written)).Str("dir", dir).Msg("exported time log")
	return nil
}

// Setup initializes the user config and logging. Returns a user config object.
//
//nolint:gocritic // config struct copied for immutability
func Setup(
	pl platforms.Platform,
	defaultConfig config.Values,
	writers []io.Writer,
) *config.Instance {
	// Ensure directories exist before logging initialization
	err := helpers.EnsureDirectories(pl)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error creating directories: %v\n", err)
		os.Exit(1)
	}

	err = helpers.InitLogging(pl, writers)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.NewConfig(helpers.ConfigDir(pl), defaultConfig)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if cfg.DebugLogging() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	return cfg
}
