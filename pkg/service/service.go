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

// Package service assembles the tracker: it opens the time log, starts the
// engine and the API, and keeps them in step with the config file.
package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/vnclub/vntracker/internal/telemetry"
	"github.com/vnclub/vntracker/pkg/api"
	"github.com/vnclub/vntracker/pkg/config"
	"github.com/vnclub/vntracker/pkg/helpers"
	"github.com/vnclub/vntracker/pkg/idle"
	"github.com/vnclub/vntracker/pkg/metadata/vndb"
	"github.com/vnclub/vntracker/pkg/platforms"
	"github.com/vnclub/vntracker/pkg/procwatch"
	"github.com/vnclub/vntracker/pkg/service/discovery"
	"github.com/vnclub/vntracker/pkg/service/publishers"
	"github.com/vnclub/vntracker/pkg/store"
	"github.com/vnclub/vntracker/pkg/tracker"
	"golang.org/x/sync/errgroup"
)

type options struct {
	clock    clockwork.Clock
	listener net.Listener
	store    store.Store
	location *time.Location
	noAPI    bool
}

type Option func(*options)

// WithClock replaces the real clock.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithListener serves the API on ln instead of the configured address.
func WithListener(ln net.Listener) Option {
	return func(o *options) { o.listener = ln }
}

// WithStore uses s instead of opening the configured backend. The service
// still closes it on exit.
func WithStore(s store.Store) Option {
	return func(o *options) { o.store = s }
}

// WithLocation sets the time zone that decides where days start.
func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.location = loc }
}

// WithoutAPI skips the HTTP server.
func WithoutAPI() Option {
	return func(o *options) { o.noAPI = true }
}

// Service is a running tracker. Engine is exposed for in-process callers
// such as the CLI.
type Service struct {
	Engine *tracker.Engine
	cfg    *config.Instance
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func setupEnvironment(pl platforms.Platform) error {
	if _, ok := helpers.HasUserDir(); ok {
		log.Info().Msg("using 'user' directory for storage")
	}

	log.Info().Msg("creating platform directories")
	dirs := []string{
		helpers.ConfigDir(pl),
		pl.Settings().TempDir,
		helpers.DataDir(pl),
		helpers.CoversDir(pl),
		helpers.ExportsDir(pl),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// EngineOptions builds engine settings from the config.
func EngineOptions(cfg *config.Instance) tracker.Options {
	opts := tracker.NewOptions()
	opts.TickInterval = cfg.TickInterval()
	opts.AfkThreshold = cfg.AfkThreshold()
	opts.DailyGoal = cfg.DailyGoal()
	opts.FlushEvery = cfg.FlushEvery()
	return opts
}

func idleSource(pl platforms.Platform) idle.Source {
	src, err := pl.IdleSource()
	if err != nil || src == nil {
		log.Warn().Err(err).Msg("no idle source available, AFK detection disabled")
		return idle.Never
	}
	return src
}

// startPublishers connects the configured MQTT publishers and feeds each
// its own snapshot subscription. A publisher that fails to start is logged
// and skipped.
func startPublishers(ctx context.Context, g *errgroup.Group, cfg *config.Instance, engine *tracker.Engine) {
	started := 0
	for _, pc := range cfg.MQTTPublishers() {
		if !pc.IsEnabled() {
			continue
		}
		log.Info().Msgf("starting MQTT publisher: %s (topic: %s)", pc.Broker, pc.Topic)
		pub := publishers.NewMQTTPublisher(pc.Broker, pc.Topic, pc.PublishInterval())
		if err := pub.Start(); err != nil {
			log.Error().Err(err).Msgf("failed to start MQTT publisher for %s", pc.Broker)
			continue
		}
		snaps, unsubscribe := engine.Subscribe(4)
		g.Go(func() error {
			defer unsubscribe()
			pub.Run(ctx, snaps)
			return nil
		})
		started++
	}
	if started > 0 {
		log.Info().Msgf("started %d MQTT publisher(s)", started)
	}
}

// autoStart resumes the last tracked title when enabled in the config.
func autoStart(ctx context.Context, cfg *config.Instance, engine *tracker.Engine) {
	if !cfg.AutoStart() {
		return
	}
	title, process := cfg.LastTitle()
	if title == "" || process == "" {
		log.Debug().Msg("auto start enabled but no previous title recorded")
		return
	}
	if err := engine.Start(ctx, title, procwatch.ParseTarget(process)); err != nil {
		log.Warn().Err(err).Str("title", title).Msg("auto start failed")
		return
	}
	log.Info().Str("title", title).Str("process", process).Msg("resumed tracking last title")
}

// Start brings the service up and returns once everything is running. The
// returned Service runs until Stop is called or a component fails.
func Start(pl platforms.Platform, cfg *config.Instance, opts ...Option) (*Service, error) {
	o := options{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}

	log.Info().Msgf("version: %s", config.AppVersion)

	if err := setupEnvironment(pl); err != nil {
		log.Error().Err(err).Msg("error setting up environment")
		return nil, err
	}

	log.Info().Msg("running platform pre start")
	if err := pl.StartPre(cfg); err != nil {
		log.Error().Err(err).Msg("platform start pre error")
		return nil, fmt.Errorf("platform start pre failed: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	pid := helpers.NewPIDFile(pl)
	if err := pid.Acquire(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("acquiring %s: %w", pid.Path(), err)
	}

	err := telemetry.Init(telemetry.Options{
		Enabled:    cfg.ErrorReporting(),
		DSN:        cfg.SentryDSN(),
		DeviceID:   cfg.DeviceID(),
		AppVersion: config.AppVersion,
		PlatformID: pl.ID(),
		Backend:    cfg.StoreBackend(),
	})
	if err != nil {
		log.Warn().Err(err).Msg("error reporting not started")
	}

	cleanup := func() {
		if err := pid.Release(); err != nil {
			log.Warn().Err(err).Msg("failed to release PID file")
		}
		if err := pl.Stop(); err != nil {
			log.Warn().Err(err).Msg("error stopping platform")
		}
		telemetry.Close()
	}

	st := o.store
	if st == nil {
		log.Info().Str("backend", cfg.StoreBackend()).Msg("opening time log")
		st, err = store.Open(ctx, cfg.StoreBackend(), helpers.DataDir(pl), o.clock)
		if err != nil {
			cancel()
			cleanup()
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
	}

	engineOpts := EngineOptions(cfg)
	if o.location != nil {
		engineOpts.Location = o.location
	}
	watcher := procwatch.NewWatcher(pl.ProcessLister())
	engine, err := tracker.NewEngine(o.clock, watcher, idleSource(pl), st, engineOpts)
	if err != nil {
		cancel()
		_ = st.Close()
		cleanup()
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	var meta api.Metadata
	if cfg.MetadataEnabled() {
		meta = vndb.NewDefaultClient(cfg.MetadataURL(), helpers.CoversDir(pl))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return engine.Run(gctx)
	})
	var disc *discovery.Service
	if !o.noAPI {
		server := api.NewServer(cfg, engine, watcher, meta, o.clock)
		g.Go(func() error {
			if o.listener != nil {
				return server.ServeListener(gctx, o.listener)
			}
			return server.Serve(gctx)
		})
		disc = discovery.New(cfg, pl.ID(), o.clock)
		if err := disc.Start(); err != nil {
			log.Warn().Err(err).Msg("mDNS discovery not started")
		}
	}
	g.Go(func() error {
		return watchConfig(gctx, cfg, engine, o.clock)
	})
	startPublishers(gctx, g, cfg, engine)

	autoStart(gctx, cfg, engine)

	s := &Service{
		Engine: engine,
		cfg:    cfg,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		s.err = g.Wait()
		if disc != nil {
			disc.Stop()
		}
		if s.err != nil && !errors.Is(s.err, context.Canceled) {
			log.Error().Err(s.err).Msg("service stopped with error")
		}
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close store")
		}
		cleanup()
		log.Info().Msg("service cleanup completed")
		close(s.done)
	}()

	log.Info().Msg("service started")
	return s, nil
}

// Done is closed once the service has fully stopped.
func (s *Service) Done() <-chan struct{} {
	return s.done
}

// Stop shuts everything down, flushing the time log, and waits for it.
func (s *Service) Stop() error {
	s.cancel()
	<-s.done
	if s.err != nil && !errors.Is(s.err, context.Canceled) {
		return s.err
	}
	return nil
}

// Err reports why the service stopped. It is only valid after Done is
// closed.
func (s *Service) Err() error {
	return s.err
}
