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
	"net"
	"slices"
	"strconv"
	"time"
)

const (
	DefaultAPIPort   = 7498
	DefaultAPIListen = "127.0.0.1"
	DefaultVNDBURL   = "https://api.vndb.org/kana"

	DefaultMQTTInterval = time.Minute
)

type API struct {
	Port           *int     `toml:"port,omitempty"`
	Listen         string   `toml:"listen,omitempty"`
	AllowedOrigins []string `toml:"allowed_origins,omitempty"`
	AllowedIPs     []string `toml:"allowed_ips,omitempty"`
}

type Service struct {
	DeviceID       string     `toml:"device_id"`
	SentryDSN      string     `toml:"sentry_dsn,omitempty"`
	Publishers     Publishers `toml:"publishers,omitempty"`
	Discovery      Discovery  `toml:"discovery,omitempty"`
	ErrorReporting bool       `toml:"error_reporting"`
}

// Discovery controls mDNS advertising of the API on the local network.
type Discovery struct {
	Enabled      *bool  `toml:"enabled,omitempty"`
	InstanceName string `toml:"instance_name,omitempty"`
}

type Publishers struct {
	MQTT []MQTTPublisher `toml:"mqtt,omitempty"`
}

// MQTTPublisher sends tracking snapshots to a broker topic. Interval is
// how often a snapshot is republished while nothing but the counters
// change.
type MQTTPublisher struct {
	Enabled  *bool  `toml:"enabled,omitempty"`
	Broker   string `toml:"broker"`
	Topic    string `toml:"topic"`
	Interval string `toml:"interval,omitempty"`
}

// IsEnabled reports whether the publisher should run. Unset means enabled.
func (p MQTTPublisher) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// PublishInterval is the parsed Interval, DefaultMQTTInterval when unset
// or invalid.
func (p MQTTPublisher) PublishInterval() time.Duration {
	return parseDuration("service.publishers.mqtt.interval", p.Interval, DefaultMQTTInterval)
}

// Overlay holds presentation settings for clients that draw a progress
// overlay. The service only stores and serves them.
type Overlay struct {
	Show           *bool    `toml:"show,omitempty" json:"show"`
	Alpha          *float64 `toml:"alpha,omitempty" json:"alpha"`
	ShowPercentage bool     `toml:"show_percentage,omitempty" json:"showPercentage"`
}

type Metadata struct {
	Enabled *bool  `toml:"enabled,omitempty"`
	URL     string `toml:"url,omitempty"`
}

// MQTTPublishers returns the configured MQTT publishers.
func (c *Instance) MQTTPublishers() []MQTTPublisher {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.vals.Service.Publishers.MQTT)
}

func (c *Instance) APIPort() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiPortLocked()
}

// apiPortLocked returns the API port. Caller must hold mu (read or write).
func (c *Instance) apiPortLocked() int {
	if c.vals.API.Port == nil {
		return DefaultAPIPort
	}
	return *c.vals.API.Port
}

func (c *Instance) SetAPIPort(port int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.API.Port = &port
}

// APIListen returns the host:port the API binds to. The API only listens
// on loopback unless configured otherwise.
func (c *Instance) APIListen() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	host := c.vals.API.Listen
	if host == "" {
		host = DefaultAPIListen
	}
	return net.JoinHostPort(host, strconv.Itoa(c.apiPortLocked()))
}

// DiscoveryEnabled reports whether the API is advertised over mDNS. Unset
// means advertise only when the API listens beyond loopback.
func (c *Instance) DiscoveryEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Service.Discovery.Enabled != nil {
		return *c.vals.Service.Discovery.Enabled
	}
	host := c.vals.API.Listen
	if host == "" || host == "localhost" {
		return false
	}
	ip := net.ParseIP(host)
	return ip == nil || !ip.IsLoopback()
}

func (c *Instance) DiscoveryInstanceName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Service.Discovery.InstanceName
}

func (c *Instance) AllowedOrigins() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.API.AllowedOrigins
}

// AllowedIPs lists the addresses or CIDRs allowed to reach the API. Empty
// allows everyone who can reach the listen address.
func (c *Instance) AllowedIPs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.vals.API.AllowedIPs)
}

func (c *Instance) DeviceID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Service.DeviceID
}

func (c *Instance) ErrorReporting() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Service.ErrorReporting
}

func (c *Instance) SetErrorReporting(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Service.ErrorReporting = enabled
}

func (c *Instance) SentryDSN() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Service.SentryDSN
}

func (c *Instance) Overlay() Overlay {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o := c.vals.Overlay
	if o.Show == nil {
		show := true
		o.Show = &show
	}
	if o.Alpha == nil || *o.Alpha < 0 || *o.Alpha > 1 {
		alpha := 0.8
		o.Alpha = &alpha
	}
	return o
}

func (c *Instance) SetOverlay(o Overlay) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Overlay = o
}

func (c *Instance) MetadataEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Metadata.Enabled == nil {
		return true
	}
	return *c.vals.Metadata.Enabled
}

func (c *Instance) MetadataURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Metadata.URL == "" {
		return DefaultVNDBURL
	}
	return c.vals.Metadata.URL
}
