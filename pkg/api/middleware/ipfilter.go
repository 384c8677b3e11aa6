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

package middleware

import (
	"net"
	"net/http"
	"net/netip"

	"github.com/rs/zerolog/log"
)

// ParseRemoteIP extracts the IP from a RemoteAddr with or without a port.
// It returns nil when the host is not an IP.
func ParseRemoteIP(remoteAddr string) net.IP {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	return net.ParseIP(host)
}

func IsLoopbackAddr(remoteAddr string) bool {
	ip := ParseRemoteIP(remoteAddr)
	return ip != nil && ip.IsLoopback()
}

// IPFilter is an allowlist of addresses and prefixes. Loopback clients are
// always allowed so the local overlay keeps working when the list only
// names LAN machines.
type IPFilter struct {
	prefixes []netip.Prefix
}

// NewIPFilter parses allowed entries. Plain addresses become single-host
// prefixes; entries with a port have it stripped. Invalid entries are
// logged and skipped. An empty list disables filtering.
func NewIPFilter(allowed []string) *IPFilter {
	f := &IPFilter{}
	for _, entry := range allowed {
		if host, _, err := net.SplitHostPort(entry); err == nil {
			entry = host
		}
		if p, err := netip.ParsePrefix(entry); err == nil {
			f.prefixes = append(f.prefixes, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(entry); err == nil {
			a = a.Unmap()
			f.prefixes = append(f.prefixes, netip.PrefixFrom(a, a.BitLen()))
			continue
		}
		log.Warn().Str("ip", entry).Msg("api: invalid IP or CIDR in allowed_ips, skipping")
	}
	return f
}

func (f *IPFilter) Enabled() bool {
	return len(f.prefixes) > 0
}

func (f *IPFilter) IsAllowed(remoteAddr string) bool {
	if !f.Enabled() {
		return true
	}
	ip := ParseRemoteIP(remoteAddr)
	if ip == nil {
		log.Warn().Str("addr", remoteAddr).Msg("api: failed to parse remote address")
		return false
	}
	if ip.IsLoopback() {
		return true
	}
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return false
	}
	addr = addr.Unmap()
	for _, p := range f.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// HTTPIPFilterMiddleware rejects requests, websocket upgrades included,
// from addresses outside the allowlist.
func HTTPIPFilterMiddleware(filter *IPFilter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !filter.IsAllowed(r.RemoteAddr) {
				log.Debug().
					Str("addr", r.RemoteAddr).
					Str("path", r.URL.Path).
					Msg("api: request from blocked IP")
				WriteError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
