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

package publishers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vnclub/vntracker/pkg/api/models"
	"github.com/vnclub/vntracker/pkg/tracker"
)

var pubStart = time.Date(2025, 3, 14, 20, 0, 0, 0, time.UTC)

func tracking(at time.Duration, state tracker.ActivityState) tracker.Snapshot {
	return tracker.Snapshot{
		UpdatedAt:    pubStart.Add(at),
		Engine:       tracker.EngineTracking,
		State:        state,
		Title:        "Ever17",
		ElapsedToday: at,
	}
}

func newTestPublisher(client *mockMQTTClient) *MQTTPublisher {
	p := NewMQTTPublisher("localhost:1883", "vntracker/snapshot", time.Minute)
	p.client = client
	return p
}

func runSnapshots(p *MQTTPublisher, snaps ...tracker.Snapshot) {
	ch := make(chan tracker.Snapshot, len(snaps))
	for _, s := range snaps {
		ch <- s
	}
	close(ch)
	p.Run(context.Background(), ch)
}

func TestNewMQTTPublisher(t *testing.T) {
	t.Parallel()

	p := NewMQTTPublisher("broker.example.com:8883", "reading", 15*time.Second)
	assert.Equal(t, "broker.example.com:8883", p.broker)
	assert.Equal(t, "reading", p.topic)
	assert.Equal(t, 15*time.Second, p.interval)
	assert.Nil(t, p.client)
}

func TestRun_PublishesRetainedSnapshot(t *testing.T) {
	t.Parallel()

	client := newMockMQTTClient()
	runSnapshots(newTestPublisher(client), tracking(5*time.Second, tracker.StateActive))

	msgs := client.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "vntracker/snapshot", msgs[0].topic)
	assert.True(t, msgs[0].retained)
	assert.Equal(t, byte(0), msgs[0].qos)

	payload, ok := msgs[0].payload.([]byte)
	require.True(t, ok)
	var got models.SnapshotResponse
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, "Ever17", got.Title)
	assert.Equal(t, "tracking", got.Engine)
	assert.InDelta(t, 5.0, got.Today, 1e-9)
	assert.Equal(t, tracker.Date{}, got.Date, "an undated snapshot decodes")

	assert.Equal(t, 1, client.disconnectCall, "disconnects when the channel closes")
}

func TestRun_ThrottlesCounterOnlyChanges(t *testing.T) {
	t.Parallel()

	client := newMockMQTTClient()
	runSnapshots(newTestPublisher(client),
		tracking(1*time.Second, tracker.StateActive),
		tracking(2*time.Second, tracker.StateActive),
		tracking(30*time.Second, tracker.StateActive),
		tracking(31*time.Second, tracker.StateAfk),
		tracking(32*time.Second, tracker.StateAfk),
		tracking(91*time.Second, tracker.StateAfk),
	)

	var today []float64
	for _, m := range client.messages() {
		var got models.SnapshotResponse
		require.NoError(t, json.Unmarshal(m.payload.([]byte), &got))
		today = append(today, got.Today)
	}
	// First snapshot, the afk transition, then the interval elapsing.
	assert.Equal(t, []float64{1, 31, 91}, today)
}

func TestRun_StopTransitionAlwaysPublished(t *testing.T) {
	t.Parallel()

	client := newMockMQTTClient()
	stopped := tracking(3*time.Second, tracker.StateActive)
	stopped.Engine = tracker.EngineStopped
	runSnapshots(newTestPublisher(client),
		tracking(2*time.Second, tracker.StateActive),
		stopped,
	)
	assert.Len(t, client.messages(), 2)
}

func TestRun_PublishErrorRetriesNextSnapshot(t *testing.T) {
	t.Parallel()

	client := newMockMQTTClient()
	client.publishError = assert.AnError
	p := newTestPublisher(client)

	runSnapshots(p, tracking(time.Second, tracker.StateActive))
	assert.Empty(t, client.messages())
	assert.Empty(t, p.lastKey, "failed publish is not remembered")
	assert.True(t, p.due(tracking(2*time.Second, tracker.StateActive)))
}

func TestRun_StopsOnContext(t *testing.T) {
	t.Parallel()

	client := newMockMQTTClient()
	p := newTestPublisher(client)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx, make(chan tracker.Snapshot))
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher did not stop")
	}
	assert.False(t, client.IsConnected())
}
