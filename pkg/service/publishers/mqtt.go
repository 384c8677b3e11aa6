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
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vnclub/vntracker/pkg/api/models"
	"github.com/vnclub/vntracker/pkg/tracker"
)

const (
	connectTimeout    = 10 * time.Second
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 250
)

var errPublishTimeout = errors.New("mqtt publish timed out")

// MQTTPublisher sends tracking snapshots to a broker as retained messages.
// A snapshot is published when the engine, title, activity state or goal
// status changes, and otherwise at most once per interval.
type MQTTPublisher struct {
	client   mqtt.Client
	lastSent time.Time
	broker   string
	topic    string
	lastKey  string
	interval time.Duration
}

// NewMQTTPublisher creates a publisher for broker (host:port) and topic.
func NewMQTTPublisher(broker, topic string, interval time.Duration) *MQTTPublisher {
	return &MQTTPublisher{
		broker:   broker,
		topic:    topic,
		interval: interval,
	}
}

// Start connects to the broker. An unreachable broker is not an error:
// the client keeps retrying in the background and publishes fail until it
// connects.
func (p *MQTTPublisher) Start() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker("tcp://" + p.broker)
	opts.SetClientID("vntracker-" + uuid.New().String()[:8])
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(connectTimeout)

	opts.OnConnect = func(_ mqtt.Client) {
		log.Info().Msgf("mqtt publisher: connected to %s", p.broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt publisher: connection lost")
	}

	p.client = mqtt.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		log.Warn().Msgf("mqtt publisher: %s not reachable yet, retrying in background", p.broker)
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	return nil
}

// Run publishes snapshots until ctx is done or snaps is closed, then
// disconnects.
func (p *MQTTPublisher) Run(ctx context.Context, snaps <-chan tracker.Snapshot) {
	defer p.stop()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				log.Debug().Msg("mqtt publisher: snapshot channel closed")
				return
			}
			if !p.due(snap) {
				continue
			}
			if err := p.publish(snap); err != nil {
				log.Warn().Err(err).Str("topic", p.topic).Msg("mqtt publisher: failed to publish snapshot")
				continue
			}
			p.lastKey = changeKey(snap)
			p.lastSent = snap.UpdatedAt
		}
	}
}

func changeKey(s tracker.Snapshot) string {
	return fmt.Sprintf("%s|%s|%s|%t|%t", s.Engine, s.Title, s.State, s.Goal.Reached, s.LastSampleError != "")
}

// due reports whether snap should be sent.
func (p *MQTTPublisher) due(snap tracker.Snapshot) bool {
	if changeKey(snap) != p.lastKey || p.lastSent.IsZero() {
		return true
	}
	return snap.UpdatedAt.Sub(p.lastSent) >= p.interval
}

func (p *MQTTPublisher) publish(snap tracker.Snapshot) error {
	payload, err := json.Marshal(models.NewSnapshotResponse(snap))
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	token := p.client.Publish(p.topic, 0, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		return errPublishTimeout
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish: %w", err)
	}
	log.Debug().Str("topic", p.topic).Msg("mqtt publisher: published snapshot")
	return nil
}

func (p *MQTTPublisher) stop() {
	if p.client != nil && p.client.IsConnected() {
		log.Debug().Msg("mqtt publisher: disconnecting")
		p.client.Disconnect(disconnectQuiesce)
	}
}
