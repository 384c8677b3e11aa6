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

// Package linux implements the Linux desktop platform.
package linux

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/rs/zerolog/log"
	"github.com/vnclub/vntracker/pkg/config"
	"github.com/vnclub/vntracker/pkg/helpers/syncutil"
	"github.com/vnclub/vntracker/pkg/idle"
	"github.com/vnclub/vntracker/pkg/platforms"
	"github.com/vnclub/vntracker/pkg/procwatch"
)

type Platform struct {
	idleSrc idle.Source
	mu      syncutil.Mutex
}

func NewPlatform() *Platform {
	return &Platform{}
}

func (*Platform) ID() string {
	return platforms.PlatformIDLinux
}

func (*Platform) StartPre(_ *config.Instance) error {
	session := os.Getenv("XDG_SESSION_TYPE")
	desktop := os.Getenv("XDG_CURRENT_DESKTOP")
	log.Info().Str("session", session).Str("desktop", desktop).Msg("linux: desktop session")
	return nil
}

func (p *Platform) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.idleSrc.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("closing idle source: %w", err)
		}
	}
	p.idleSrc = nil
	return nil
}

func (*Platform) Settings() platforms.Settings {
	return platforms.Settings{
		DataDir:   filepath.Join(xdg.DataHome, config.AppName),
		ConfigDir: filepath.Join(xdg.ConfigHome, config.AppName),
		TempDir:   filepath.Join(os.TempDir(), config.AppName),
	}
}

// ProcessLister reads /proc directly so wine processes report their
// Windows executable name.
func (*Platform) ProcessLister() procwatch.Lister {
	return procwatch.NewProcFSLister()
}

// IdleSource connects to the session bus. Without one (a bare TTY or a
// compositor exposing neither idle interface) idle time is unsupported.
func (p *Platform) IdleSource() (idle.Source, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.idleSrc != nil {
		return p.idleSrc, nil
	}
	src, err := idle.NewSystemSource()
	if err != nil {
		if errors.Is(err, idle.ErrUnsupported) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", idle.ErrUnsupported, err)
	}
	p.idleSrc = src
	return src, nil
}
