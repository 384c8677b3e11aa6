//go:build windows

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
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vnclub/vntracker/pkg/cli"
	"github.com/vnclub/vntracker/pkg/config"
	"github.com/vnclub/vntracker/pkg/platforms/windows"
)

func main() {
	pl := windows.NewPlatform()
	flags := cli.SetupFlags()

	flags.Pre(pl)

	var logWriters []io.Writer
	if *flags.Daemon {
		logWriters = []io.Writer{zerolog.ConsoleWriter{Out: os.Stderr}}
	}

	cfg := cli.Setup(
		pl,
		config.BaseDefaults,
		logWriters,
	)

	flags.Post(cfg, pl)

	if err := flags.Run(pl, cfg); err != nil {
		log.Error().Err(err).Msg("tracker exited with error")
		_, _ = fmt.Println("Error:", err)
		os.Exit(1)
	}
}
