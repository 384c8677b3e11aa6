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

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int { return &i }

func TestAPIListen(t *testing.T) {
	t.Parallel()

	tests := []struct {
		port   *int
		name   string
		listen string
		want   string
	}{
		{name: "defaults", want: "127.0.0.1:7498"},
		{name: "custom port", port: intPtr(8080), want: "127.0.0.1:8080"},
		{name: "custom host", listen: "0.0.0.0", want: "0.0.0.0:7498"},
		{name: "ipv6 host", listen: "::1", port: intPtr(9000), want: "[::1]:9000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &Instance{}
			cfg.vals.API.Listen = tt.listen
			cfg.vals.API.Port = tt.port
			assert.Equal(t, tt.want, cfg.APIListen())
		})
	}
}

func TestDiscoveryEnabled(t *testing.T) {
	t.Parallel()

	on, off := true, false
	tests := []struct {
		enabled *bool
		name    string
		listen  string
		want    bool
	}{
		{name: "default loopback", want: false},
		{name: "localhost", listen: "localhost", want: false},
		{name: "ipv6 loopback", listen: "::1", want: false},
		{name: "all interfaces", listen: "0.0.0.0", want: true},
		{name: "lan address", listen: "192.168.1.20", want: true},
		{name: "forced on", enabled: &on, want: true},
		{name: "forced off", enabled: &off, listen: "0.0.0.0", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &Instance{}
			cfg.vals.API.Listen = tt.listen
			cfg.vals.Service.Discovery.Enabled = tt.enabled
			assert.Equal(t, tt.want, cfg.DiscoveryEnabled())
		})
	}
}

func TestMetadataDefaults(t *testing.T) {
	t.Parallel()

	cfg := &Instance{}
	assert.True(t, cfg.MetadataEnabled())
	assert.Equal(t, DefaultVNDBURL, cfg.MetadataURL())

	disabled := false
	cfg.vals.Metadata = Metadata{Enabled: &disabled, URL: "http://localhost:1234"}
	assert.False(t, cfg.MetadataEnabled())
	assert.Equal(t, "http://localhost:1234", cfg.MetadataURL())
}

func TestErrorReporting(t *testing.T) {
	t.Parallel()

	cfg := &Instance{}
	assert.False(t, cfg.ErrorReporting())
	cfg.SetErrorReporting(true)
	assert.True(t, cfg.ErrorReporting())
}

func TestMQTTPublishers(t *testing.T) {
	t.Parallel()

	disabled := false
	cfg := &Instance{}
	cfg.vals.Service.Publishers.MQTT = []MQTTPublisher{
		{Broker: "localhost:1883", Topic: "vntracker/snapshot"},
		{Broker: "nas:1883", Topic: "reading", Interval: "15s", Enabled: &disabled},
		{Broker: "bad:1883", Topic: "t", Interval: "soon"},
	}

	pubs := cfg.MQTTPublishers()
	require.Len(t, pubs, 3)
	assert.True(t, pubs[0].IsEnabled())
	assert.Equal(t, DefaultMQTTInterval, pubs[0].PublishInterval())
	assert.False(t, pubs[1].IsEnabled())
	assert.Equal(t, 15*time.Second, pubs[1].PublishInterval())
	assert.Equal(t, DefaultMQTTInterval, pubs[2].PublishInterval())

	pubs[0].Topic = "changed"
	assert.Equal(t, "vntracker/snapshot", cfg.MQTTPublishers()[0].Topic)
}
