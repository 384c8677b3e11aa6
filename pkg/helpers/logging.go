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

package helpers

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"github.com/vnclub/vntracker/pkg/config"
	"github.com/vnclub/vntracker/pkg/platforms"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

var logWriter io.Writer

// EnsureDirectories creates the platform directories the service writes
// to before anything tries to log or persist.
func EnsureDirectories(pl platforms.Platform) error {
	for _, dir := range []string{pl.Settings().TempDir, DataDir(pl)} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// InitLogging sends the global logger to a rotating file in the temp
// directory plus any extra writers, such as stderr in the foreground.
func InitLogging(pl platforms.Platform, writers []io.Writer) error {
	if err := EnsureDirectories(pl); err != nil {
		return err
	}

	logWriters := []io.Writer{&lumberjack.Logger{
		Filename:   filepath.Join(pl.Settings().TempDir, config.LogFile),
		MaxSize:    1,
		MaxBackups: 2,
	}}

	if len(writers) > 0 {
		logWriters = append(logWriters, writers...)
	}

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	logWriter = io.MultiWriter(logWriters...)
	log.Logger = log.Output(logWriter).
		With().Timestamp().Caller().Logger()

	return nil
}

// LogWriter returns the writer set up by InitLogging, or stderr before
// logging is initialised.
func LogWriter() io.Writer {
	if logWriter == nil {
		return os.Stderr
	}
	return logWriter
}

// LogPath is the current log file location.
func LogPath(pl platforms.Platform) string {
	return filepath.Join(pl.Settings().TempDir, config.LogFile)
}
