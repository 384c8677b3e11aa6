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

package idle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"
	"github.com/vnclub/vntracker/pkg/helpers/syncutil"
)

// busMethod is one session bus method returning idle milliseconds.
type busMethod struct {
	dest   string
	path   dbus.ObjectPath
	method string
}

var busMethods = []busMethod{
	{
		dest:   "org.gnome.Mutter.IdleMonitor",
		path:   "/org/gnome/Mutter/IdleMonitor/Core",
		method: "org.gnome.Mutter.IdleMonitor.GetIdletime",
	},
	{
		dest:   "org.freedesktop.ScreenSaver",
		path:   "/org/freedesktop/ScreenSaver",
		method: "org.freedesktop.ScreenSaver.GetSessionIdleTime",
	},
}

// callFunc invokes a method without arguments and returns the first value
// of the reply body.
type callFunc func(ctx context.Context, dest string, path dbus.ObjectPath, method string) (any, error)

// DBusSource reads idle time from the desktop session bus. GNOME's Mutter
// idle monitor is tried first, then the freedesktop screensaver interface
// used by KDE and others. The first method that answers is remembered.
type DBusSource struct {
	conn      *dbus.Conn
	call      callFunc
	preferred int
	mu        syncutil.Mutex
}

// NewDBusSource connects to the session bus.
func NewDBusSource() (*DBusSource, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	s := newDBusSource(func(ctx context.Context, dest string, path dbus.ObjectPath, method string) (any, error) {
		c := conn.Object(dest, path).CallWithContext(ctx, method, 0)
		if c.Err != nil {
			return nil, c.Err
		}
		if len(c.Body) == 0 {
			return nil, errors.New("empty reply")
		}
		return c.Body[0], nil
	})
	s.conn = conn
	return s, nil
}

func newDBusSource(call callFunc) *DBusSource {
	return &DBusSource{call: call, preferred: -1}
}

// IdleDuration implements Source.
func (s *DBusSource) IdleDuration(ctx context.Context) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.preferred >= 0 {
		d, err := s.query(ctx, busMethods[s.preferred])
		if err == nil {
			return d, nil
		}
		log.Debug().Err(err).Str("method", busMethods[s.preferred].method).
			Msg("idle: preferred bus method failed, probing again")
		s.preferred = -1
	}

	var errs []error
	for i, m := range busMethods {
		d, err := s.query(ctx, m)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s.preferred = i
		log.Debug().Str("method", m.method).Msg("idle: using session bus method")
		return d, nil
	}
	return 0, fmt.Errorf("%w: %w", ErrUnsupported, errors.Join(errs...))
}

func (s *DBusSource) query(ctx context.Context, m busMethod) (time.Duration, error) {
	v, err := s.call(ctx, m.dest, m.path, m.method)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", m.method, err)
	}
	ms, err := toMillis(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", m.method, err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func toMillis(v any) (uint64, error) {
	switch n := v.(type) {
	case uint64:
		return n, nil
	case uint32:
		return uint64(n), nil
	case int64:
		if n < 0 {
			return 0, nil
		}
		return uint64(n), nil
	case int32:
		if n < 0 {
			return 0, nil
		}
		return uint64(n), nil
	case dbus.Variant:
		return toMillis(n.Value())
	default:
		return 0, fmt.Errorf("unexpected reply type %T", v)
	}
}

// Close releases the bus connection.
func (s *DBusSource) Close() error {
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("close session bus: %w", err)
	}
	return nil
}
