//go:build linux

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

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/vnclub/vntracker/pkg/cli"
	"github.com/vnclub/vntracker/pkg/config"
	"github.com/vnclub/vntracker/pkg/platforms/linux"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	pl := linux.NewPlatform()
	flags := cli.SetupFlags()

	flags.Pre(pl)

	if os.Geteuid() == 0 {
		return errors.New("vntracker cannot be run as root")
	}

	var logWriters []io.Writer
	if *flags.Daemon {
		logWriters = []io.Writer{os.Stderr}
	}

	cfg := cli.Setup(
		pl,
		config.BaseDefaults,
		logWriters,
	)

	defer func() {
		if err := recover(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Panic: %s\n", err)
			log.Fatal().Msgf("panic: %v", err)
		}
	}()

	flags.Post(cfg, pl)

	return flags.Run(pl, cfg)
}
