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

package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vnclub/vntracker/pkg/api/models"
)

type wsSnapshot struct {
	Method string                  `json:"method"`
	Params models.SnapshotResponse `json:"params"`
}

func readMessage(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return data
}

func readSnapshot(t *testing.T, conn *websocket.Conn) wsSnapshot {
	t.Helper()
	var msg wsSnapshot
	require.NoError(t, json.Unmarshal(readMessage(t, conn), &msg))
	return msg
}

// readUntil reads snapshots until one satisfies ok. Broadcasts arrive in
// order, so earlier snapshots are skipped.
func readUntil(t *testing.T, conn *websocket.Conn, ok func(wsSnapshot) bool) wsSnapshot {
	t.Helper()
	for range 100 {
		if msg := readSnapshot(t, conn); ok(msg) {
			return msg
		}
	}
	t.Fatal("no matching snapshot received")
	return wsSnapshot{}
}

func TestWebSocket_PushesSnapshots(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- env.server.ServeListener(ctx, ln) }()

	wsURL := "ws://" + ln.Addr().String() + "/api/ws"
	var conn *websocket.Conn
	require.Eventually(t, func() bool {
		var resp *http.Response
		conn, resp, err = websocket.DefaultDialer.Dial(wsURL, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	defer func() { _ = conn.Close() }()

	first := readSnapshot(t, conn)
	assert.Equal(t, models.NotificationSnapshot, first.Method)
	assert.Equal(t, "stopped", first.Params.Engine)

	require.Equal(t, http.StatusOK,
		env.do(t, http.MethodPost, "/api/tracking/start", `{"title":"Ever17","process":"ever17.exe"}`).StatusCode)

	pushed := readUntil(t, conn, func(m wsSnapshot) bool { return m.Params.Engine == "tracking" })
	assert.Equal(t, "Ever17", pushed.Params.Title)

	env.tick(t)
	ticked := readUntil(t, conn, func(m wsSnapshot) bool { return m.Params.Ticks >= 1 })
	assert.InDelta(t, 1.0, ticked.Params.Today, 1e-9)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))
	for {
		if string(readMessage(t, conn)) == "pong" {
			break
		}
	}

	cancel()
	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("server did not shut down")
	}
}
