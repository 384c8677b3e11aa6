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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIPFilter_IsAllowed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		remoteAddr string
		allowed    []string
		want       bool
	}{
		{name: "empty list allows all", allowed: nil, remoteAddr: "203.0.113.9:1234", want: true},
		{name: "exact address", allowed: []string{"192.168.1.20"}, remoteAddr: "192.168.1.20:5000", want: true},
		{name: "other address", allowed: []string{"192.168.1.20"}, remoteAddr: "192.168.1.21:5000", want: false},
		{name: "cidr", allowed: []string{"10.0.0.0/8"}, remoteAddr: "10.4.5.6:80", want: true},
		{name: "entry with port", allowed: []string{"192.168.1.20:7498"}, remoteAddr: "192.168.1.20:1", want: true},
		{name: "ipv6 prefix", allowed: []string{"2001:db8::/32"}, remoteAddr: "[2001:db8::5]:80", want: true},
		{name: "mapped ipv4", allowed: []string{"192.168.1.20"}, remoteAddr: "[::ffff:192.168.1.20]:80", want: true},
		{name: "loopback always allowed", allowed: []string{"10.0.0.1"}, remoteAddr: "127.0.0.1:9000", want: true},
		{name: "invalid entries skipped", allowed: []string{"nope", "10.0.0.1"}, remoteAddr: "10.0.0.2:80", want: false},
		{name: "unparseable remote", allowed: []string{"10.0.0.1"}, remoteAddr: "host.example:80", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, NewIPFilter(tt.allowed).IsAllowed(tt.remoteAddr))
		})
	}
}

func TestHTTPIPFilterMiddleware(t *testing.T) {
	t.Parallel()

	handler := HTTPIPFilterMiddleware(NewIPFilter([]string{"192.168.1.0/24"}))(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/snapshot", http.NoBody)
	req.RemoteAddr = "192.168.1.50:4000"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/snapshot", http.NoBody)
	req.RemoteAddr = "192.168.2.50:4000"
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error":"forbidden"}`, w.Body.String())
}

func TestParseRemoteIP(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "192.168.1.1", ParseRemoteIP("192.168.1.1:80").String())
	assert.Equal(t, "192.168.1.1", ParseRemoteIP("192.168.1.1").String())
	assert.Equal(t, "::1", ParseRemoteIP("[::1]:80").String())
	assert.Nil(t, ParseRemoteIP("localhost:80"))

	assert.True(t, IsLoopbackAddr("127.0.0.1:1"))
	assert.True(t, IsLoopbackAddr("[::1]:1"))
	assert.False(t, IsLoopbackAddr("10.0.0.1:1"))
	assert.False(t, IsLoopbackAddr("garbage"))
}
