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

package discovery

import (
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSettings struct {
	name    string
	id      string
	port    int
	enabled bool
}

func (f fakeSettings) DiscoveryEnabled() bool { return f.enabled }
func (f fakeSettings) DiscoveryInstanceName() string { return f.name }
func (f fakeSettings) DeviceID() string { return f.id }
func (f fakeSettings) APIPort() int { return f.port }

type fakeServer struct {
	shutdowns atomic.Int32
}

func (f *fakeServer) Shutdown() { f.shutdowns.Add(1) }

var lan = net.Interface{Name: "eth0", Flags: net.FlagUp | net.FlagMulticast}

func TestFilterInterfaces(t *testing.T) {
	t.Parallel()

	ifaces := []net.Interface{
		lan,
		{Name: "lo", Flags: net.FlagUp | net.FlagLoopback | net.FlagMulticast},
		{Name: "eth1", Flags: net.FlagMulticast},
		{Name: "tun0", Flags: net.FlagUp},
		{Name: "docker0", Flags: net.FlagUp | net.FlagMulticast},
		{Name: "veth12ab", Flags: net.FlagUp | net.FlagMulticast},
		{Name: "wlan0", Flags: net.FlagUp | net.FlagMulticast},
	}

	got := filterInterfaces(ifaces)
	require.Len(t, got, 2)
	assert.Equal(t, "eth0", got[0].Name)
	assert.Equal(t, "wlan0", got[1].Name)
}

func TestStart_Disabled(t *testing.T) {
	t.Parallel()

	svc := New(fakeSettings{}, "linux", clockwork.NewFakeClock())
	svc.register = func(string, int, []string, []net.Interface) (shutdowner, error) {
		t.Fatal("register called while disabled")
		return nil, nil
	}

	require.NoError(t, svc.Start())
	assert.Empty(t, svc.InstanceName())
	svc.Stop()
}

func TestStart_RegistersAndStops(t *testing.T) {
	t.Parallel()

	server := &fakeServer{}
	var gotTxt []string
	var gotPort int
	svc := New(fakeSettings{enabled: true, name: "desk", id: "abcdef123456", port: 7498}, "linux",
		clockwork.NewFakeClock())
	svc.interfaces = func() ([]net.Interface, error) { return []net.Interface{lan}, nil }
	svc.register = func(instance string, port int, txt []string, _ []net.Interface) (shutdowner, error) {
		assert.Equal(t, "desk", instance)
		gotPort = port
		gotTxt = txt
		return server, nil
	}

	require.NoError(t, svc.Start())
	assert.Equal(t, "desk", svc.InstanceName())
	assert.Equal(t, 7498, gotPort)
	assert.Contains(t, gotTxt, "id=abcdef123456")
	assert.Contains(t, gotTxt, "platform=linux")

	svc.Stop()
	svc.Stop()
	assert.Equal(t, int32(1), server.shutdowns.Load())
}

func TestStart_RetriesUntilNetworkReady(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	server := &fakeServer{}
	var attempts atomic.Int32
	svc := New(fakeSettings{enabled: true, name: "desk"}, "linux", clock)
	svc.interfaces = func() ([]net.Interface, error) { return []net.Interface{lan}, nil }
	svc.register = func(string, int, []string, []net.Interface) (shutdowner, error) {
		if attempts.Add(1) < 3 {
			return nil, errors.New("network is unreachable")
		}
		return server, nil
	}

	require.NoError(t, svc.Start())
	assert.Equal(t, int32(1), attempts.Load())

	for range 2 {
		require.NoError(t, clock.BlockUntilContext(t.Context(), 2))
		clock.Advance(retryInterval)
		want := attempts.Load() + 1
		require.Eventually(t, func() bool { return attempts.Load() >= want }, time.Second, 5*time.Millisecond)
	}
	assert.Equal(t, int32(3), attempts.Load())

	svc.Stop()
	assert.Equal(t, int32(1), server.shutdowns.Load())
}

func TestStart_NoInterfaces(t *testing.T) {
	t.Parallel()

	svc := New(fakeSettings{enabled: true, id: "abcdef123456"}, "linux", clockwork.NewFakeClock())
	svc.interfaces = func() ([]net.Interface, error) {
		return []net.Interface{{Name: "lo", Flags: net.FlagUp | net.FlagLoopback}}, nil
	}
	svc.register = func(string, int, []string, []net.Interface) (shutdowner, error) {
		t.Fatal("register called without interfaces")
		return nil, nil
	}

	require.NoError(t, svc.Start())
	assert.NotEmpty(t, svc.InstanceName())
	svc.Stop()
}
