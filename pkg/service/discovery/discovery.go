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
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/vnclub/vntracker/pkg/config"
	"github.com/vnclub/vntracker/pkg/helpers/syncutil"
)

// ServiceType is the DNS-SD service type of the tracking API.
const ServiceType = "_vntracker._tcp"

const (
	retryInterval    = 30 * time.Second
	maxRetryDuration = 5 * time.Minute
)

var virtualInterfacePrefixes = []string{
	"docker", "br-", "veth", "virbr", "lxc", "lxd",
	"cni", "flannel", "cali", "tunl", "wg",
}

// Settings is the part of the configuration advertising reads.
type Settings interface {
	DiscoveryEnabled() bool
	DiscoveryInstanceName() string
	DeviceID() string
	APIPort() int
}

type registerFunc func(instance string, port int, txt []string, ifaces []net.Interface) (shutdowner, error)

type shutdowner interface {
	Shutdown()
}

func zeroconfRegister(instance string, port int, txt []string, ifaces []net.Interface) (shutdowner, error) {
	server, err := zeroconf.Register(instance, ServiceType, "local.", port, txt, ifaces)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	return server, nil
}

// filterInterfaces keeps interfaces that are up, multicast-capable and
// neither loopback nor virtual.
func filterInterfaces(ifaces []net.Interface) []net.Interface {
	var preferred []net.Interface
	for _, iface := range ifaces {
		switch {
		case iface.Flags&net.FlagUp == 0,
			iface.Flags&net.FlagLoopback != 0,
			iface.Flags&net.FlagMulticast == 0,
			isVirtualInterface(iface.Name):
			continue
		}
		preferred = append(preferred, iface)
	}
	return preferred
}

func isVirtualInterface(name string) bool {
	lower := strings.ToLower(name)
	for _, prefix := range virtualInterfacePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// Service advertises the API over mDNS so clients on the network can find
// the tracker without knowing its address.
type Service struct {
	server       shutdowner
	cfg          Settings
	clock        clockwork.Clock
	register     registerFunc
	interfaces   func() ([]net.Interface, error)
	cancel       context.CancelFunc
	platformID   string
	instanceName string
	mu           syncutil.Mutex
	stopped      bool
}

// New creates a discovery service for the given platform.
func New(cfg Settings, platformID string, clock clockwork.Clock) *Service {
	return &Service{
		cfg:        cfg,
		clock:      clock,
		platformID: platformID,
		register:   zeroconfRegister,
		interfaces: net.Interfaces,
	}
}

// Start begins advertising. When the network is not ready it keeps
// retrying in the background for a while. Only a failure to pick an
// instance name is returned.
func (s *Service) Start() error {
	if !s.cfg.DiscoveryEnabled() {
		log.Debug().Msg("mDNS discovery disabled")
		return nil
	}

	s.instanceName = s.resolveInstanceName()
	if s.tryRegister() {
		return nil
	}

	log.Info().
		Dur("retryInterval", retryInterval).
		Dur("maxDuration", maxRetryDuration).
		Msg("mDNS registration failed, retrying in background")

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	go s.retryLoop(ctx)
	return nil
}

func (s *Service) tryRegister() bool {
	all, err := s.interfaces()
	if err != nil {
		log.Debug().Err(err).Msg("failed to list network interfaces")
		return false
	}
	ifaces := filterInterfaces(all)
	if len(ifaces) == 0 {
		log.Debug().Msg("no suitable network interfaces for mDNS")
		return false
	}

	names := make([]string, len(ifaces))
	for i, iface := range ifaces {
		names[i] = iface.Name
	}

	txt := []string{
		"id=" + s.cfg.DeviceID(),
		"version=" + config.AppVersion,
		"platform=" + s.platformID,
	}
	server, err := s.register(s.instanceName, s.cfg.APIPort(), txt, ifaces)
	if err != nil {
		log.Debug().Err(err).Msg("mDNS registration attempt failed")
		return false
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		server.Shutdown()
		return false
	}
	s.server = server
	s.mu.Unlock()

	log.Info().
		Str("instance", s.instanceName).
		Int("port", s.cfg.APIPort()).
		Strs("interfaces", names).
		Msg("mDNS advertising started")
	return true
}

func (s *Service) retryLoop(ctx context.Context) {
	ticker := s.clock.NewTicker(retryInterval)
	defer ticker.Stop()
	deadline := s.clock.After(maxRetryDuration)

	for {
		select {
		case <-ticker.Chan():
			if s.tryRegister() {
				log.Info().Msg("mDNS registration succeeded after retry")
				return
			}
		case <-deadline:
			log.Warn().Msg("mDNS registration retries exhausted, discovery unavailable")
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop withdraws the advertisement. It is safe to call more than once.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.server != nil {
		log.Debug().Msg("stopping mDNS advertising")
		s.server.Shutdown()
		s.server = nil
	}
}

// InstanceName is the advertised name, empty before Start.
func (s *Service) InstanceName() string {
	return s.instanceName
}

// resolveInstanceName prefers the configured name, then the hostname.
func (s *Service) resolveInstanceName() string {
	if name := s.cfg.DiscoveryInstanceName(); name != "" {
		return name
	}
	hostname, err := os.Hostname()
	if err == nil && hostname != "" {
		return hostname
	}
	log.Warn().Err(err).Msg("failed to get hostname, using fallback")
	if id := s.cfg.DeviceID(); len(id) >= 8 {
		return config.AppName + "-" + id[:8]
	}
	return config.AppName
}
