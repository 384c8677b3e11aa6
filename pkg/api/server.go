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

// Package api serves the tracking engine over HTTP: a small REST surface
// for commands and queries, a websocket that pushes a snapshot on every
// change, and the Prometheus metrics endpoint.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jonboulle/clockwork"
	"github.com/olahol/melody"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	apimiddleware "github.com/vnclub/vntracker/pkg/api/middleware"
	"github.com/vnclub/vntracker/pkg/api/models"
	"github.com/vnclub/vntracker/pkg/config"
	"github.com/vnclub/vntracker/pkg/metadata/vndb"
	"github.com/vnclub/vntracker/pkg/procwatch"
	"github.com/vnclub/vntracker/pkg/tracker"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 5 * time.Second
	subscriberBuffer  = 4
)

// Engine is the part of *tracker.Engine the API drives.
type Engine interface {
	Snapshot() tracker.Snapshot
	Subscribe(buf int) (<-chan tracker.Snapshot, func())
	Start(ctx context.Context, title string, target procwatch.Target) error
	Stop(ctx context.Context) error
	ChangeTitle(ctx context.Context, title string, target procwatch.Target) error
	ResetToday(ctx context.Context) error
	SetGoal(ctx context.Context, goal time.Duration) error
	SetAfkThreshold(ctx context.Context, threshold time.Duration) error
	Stats(ctx context.Context) (tracker.Records, error)
}

// ProcessLister lists running process names for the title picker.
type ProcessLister interface {
	Names(ctx context.Context) ([]string, error)
}

// Metadata looks titles up in an external catalogue.
type Metadata interface {
	Search(ctx context.Context, text string, limit int) ([]vndb.VN, error)
	Get(ctx context.Context, id string) (vndb.VN, error)
	Cover(ctx context.Context, vn vndb.VN) ([]byte, error)
}

type Server struct {
	cfg     *config.Instance
	engine  Engine
	procs   ProcessLister
	meta    Metadata
	clock   clockwork.Clock
	ws      *melody.Melody
	limiter *apimiddleware.IPRateLimiter
}

// NewServer wires the API. meta may be nil when metadata lookups are
// disabled; those endpoints then answer 503.
func NewServer(
	cfg *config.Instance,
	engine Engine,
	procs ProcessLister,
	meta Metadata,
	clock clockwork.Clock,
) *Server {
	s := &Server{
		cfg:     cfg,
		engine:  engine,
		procs:   procs,
		meta:    meta,
		clock:   clock,
		ws:      melody.New(),
		limiter: apimiddleware.NewIPRateLimiter(clock),
	}
	s.ws.Upgrader.CheckOrigin = func(*http.Request) bool { return true }
	s.ws.HandleConnect(s.handleWSConnect)
	s.ws.HandleMessage(apimiddleware.WebSocketRateLimitHandler(s.limiter, s.handleWSMessage))
	return s
}

func (s *Server) allowedOrigins() []string {
	if origins := s.cfg.AllowedOrigins(); len(origins) > 0 {
		return origins
	}
	return []string{"http://localhost:*", "http://127.0.0.1:*", "app://*"}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(apimiddleware.HTTPIPFilterMiddleware(apimiddleware.NewIPFilter(s.cfg.AllowedIPs())))
	r.Use(apimiddleware.HTTPRateLimitMiddleware(s.limiter))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/api/ws", func(w http.ResponseWriter, r *http.Request) {
		if err := s.ws.HandleRequest(w, r); err != nil {
			log.Error().Err(err).Msg("api: handling websocket request")
		}
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.NoCache)
		r.Use(middleware.Timeout(config.APIRequestTimeout))

		r.Get("/api/snapshot", s.handleSnapshot)
		r.Post("/api/tracking/start", s.handleStart)
		r.Post("/api/tracking/stop", s.handleStop)
		r.Post("/api/tracking/title", s.handleChangeTitle)
		r.Post("/api/tracking/reset", s.handleReset)

		r.Get("/api/settings", s.handleSettings)
		r.Put("/api/settings/goal", s.handleSetGoal)
		r.Put("/api/settings/afk", s.handleSetAfk)
		r.Get("/api/settings/overlay", s.handleOverlay)
		r.Put("/api/settings/overlay", s.handleSetOverlay)

		r.Get("/api/stats", s.handleStats)
		r.Get("/api/processes", s.handleProcesses)
		r.Get("/api/export", s.handleExport)

		r.Get("/api/library", s.handleLibrary)
		r.Post("/api/library", s.handleAddLibrary)
		r.Delete("/api/library", s.handleRemoveLibrary)
		r.Get("/api/library/suggest", s.handleSuggest)

		r.Get("/api/metadata/search", s.handleSearch)
		r.Get("/api/metadata/vn/{id}", s.handleVN)
		r.Get("/api/metadata/cover/{id}", s.handleCover)
	})

	return r
}

// Serve listens on the configured address until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := s.cfg.APIListen()
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is cancelled, then shuts down
// gracefully. It closes ln.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.limiter.StartCleanup(ctx)
	go s.broadcast(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Msg("api: listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server failed: %w", err)
	case <-ctx.Done():
	}

	if err := s.ws.Close(); err != nil {
		log.Debug().Err(err).Msg("api: closing websocket sessions")
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	log.Info().Msg("api: stopped")
	return nil
}

func snapshotNotification(snap tracker.Snapshot) ([]byte, error) {
	data, err := json.Marshal(models.Notification{
		Method: models.NotificationSnapshot,
		Params: models.NewSnapshotResponse(snap),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot notification: %w", err)
	}
	return data, nil
}

// broadcast pushes every published snapshot to connected websocket
// clients. Slow clients are handled by melody's per-session buffer.
func (s *Server) broadcast(ctx context.Context) {
	updates, unsubscribe := s.engine.Subscribe(subscriberBuffer)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if s.ws.Len() == 0 {
				continue
			}
			data, err := snapshotNotification(snap)
			if err != nil {
				log.Error().Err(err).Send()
				continue
			}
			if err := s.ws.Broadcast(data); err != nil {
				log.Debug().Err(err).Msg("api: broadcasting snapshot")
			}
		}
	}
}

func (s *Server) writeSnapshot(session *melody.Session) {
	data, err := snapshotNotification(s.engine.Snapshot())
	if err != nil {
		log.Error().Err(err).Send()
		return
	}
	if err := session.Write(data); err != nil {
		log.Debug().Err(err).Msg("api: writing snapshot to session")
	}
}

func (s *Server) handleWSConnect(session *melody.Session) {
	log.Debug().Str("addr", session.Request.RemoteAddr).Msg("api: websocket client connected")
	s.writeSnapshot(session)
}

// handleWSMessage answers "ping" with "pong" and anything else with the
// current snapshot.
func (s *Server) handleWSMessage(session *melody.Session, msg []byte) {
	if string(msg) == "ping" {
		if err := session.Write([]byte("pong")); err != nil {
			log.Debug().Err(err).Msg("api: sending pong")
		}
		return
	}
	s.writeSnapshot(session)
}
