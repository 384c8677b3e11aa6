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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	apimiddleware "github.com/vnclub/vntracker/pkg/api/middleware"
	"github.com/vnclub/vntracker/pkg/api/models"
	"github.com/vnclub/vntracker/pkg/api/validation"
	"github.com/vnclub/vntracker/pkg/export"
	"github.com/vnclub/vntracker/pkg/library"
	"github.com/vnclub/vntracker/pkg/metadata/vndb"
	"github.com/vnclub/vntracker/pkg/procwatch"
	"github.com/vnclub/vntracker/pkg/tracker"
)

const (
	defaultSuggestions = 5
	maxSuggestions     = 50
	defaultSearchLimit = 10
)

var errMetadataDisabled = errors.New("metadata lookups are disabled")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("api: failed to write response")
	}
}

// writeError maps domain errors to status codes. Command conflicts are
// 409, rejected input is 400.
func writeError(w http.ResponseWriter, err error) {
	var vErr *validation.Error
	if errors.As(err, &vErr) {
		resp := models.ErrorResponse{Error: vErr.Error()}
		for _, f := range vErr.Fields {
			resp.Fields = append(resp.Fields, models.FieldError{Field: f.Field, Message: f.Message})
		}
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, validation.ErrMissingParams),
		errors.Is(err, validation.ErrInvalidParams),
		errors.Is(err, tracker.ErrInvalidTitle),
		errors.Is(err, tracker.ErrInvalidTarget),
		errors.Is(err, tracker.ErrNegativeDuration),
		errors.Is(err, vndb.ErrBadID):
		status = http.StatusBadRequest
	case errors.Is(err, tracker.ErrAlreadyTracking),
		errors.Is(err, tracker.ErrNotTracking):
		status = http.StatusConflict
	case errors.Is(err, export.ErrUnknownTitle),
		errors.Is(err, vndb.ErrNotFound),
		errors.Is(err, vndb.ErrNoCover):
		status = http.StatusNotFound
	case errors.Is(err, tracker.ErrEngineClosed),
		errors.Is(err, errMetadataDisabled),
		errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("api: request failed")
	}
	apimiddleware.WriteError(w, status, err.Error())
}

func (s *Server) saveConfig() {
	if err := s.cfg.Save(); err != nil {
		log.Error().Err(err).Msg("api: failed to save config")
	}
}

func (s *Server) writeCurrent(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, models.NewSnapshotResponse(s.engine.Snapshot()))
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	s.writeCurrent(w)
}

// binding resolves the process for a tracking request, falling back to
// the process last used with the title.
func (s *Server) binding(p models.TrackingParams) (title, process string) {
	title = tracker.NormalizeTitle(p.Title)
	process = strings.TrimSpace(p.Process)
	if process == "" {
		process, _ = s.cfg.ProcessForTitle(title)
	}
	return title, process
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var p models.TrackingParams
	if err := validation.DecodeAndValidate(r.Body, &p); err != nil {
		writeError(w, err)
		return
	}
	title, process := s.binding(p)
	if err := s.engine.Start(r.Context(), title, procwatch.ParseTarget(process)); err != nil {
		writeError(w, err)
		return
	}
	s.cfg.RememberTitle(title, process)
	s.saveConfig()
	s.writeCurrent(w)
}

func (s *Server) handleChangeTitle(w http.ResponseWriter, r *http.Request) {
	var p models.TrackingParams
	if err := validation.DecodeAndValidate(r.Body, &p); err != nil {
		writeError(w, err)
		return
	}
	title, process := s.binding(p)
	if err := s.engine.ChangeTitle(r.Context(), title, procwatch.ParseTarget(process)); err != nil {
		writeError(w, err)
		return
	}
	s.cfg.RememberTitle(title, process)
	s.saveConfig()
	s.writeCurrent(w)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Stop(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	s.writeCurrent(w)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ResetToday(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	s.writeCurrent(w)
}

func decodeDuration(r *http.Request) (time.Duration, error) {
	var p models.DurationParams
	if err := validation.DecodeAndValidate(r.Body, &p); err != nil {
		return 0, err
	}
	d, err := time.ParseDuration(p.Duration)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", validation.ErrInvalidParams, err)
	}
	return d, nil
}

func (s *Server) settings() models.SettingsResponse {
	return models.SettingsResponse{
		DailyGoal:    models.Seconds(s.cfg.DailyGoal()),
		AfkThreshold: models.Seconds(s.cfg.AfkThreshold()),
		TickInterval: models.Seconds(s.cfg.TickInterval()),
		AutoStart:    s.cfg.AutoStart(),
		Backend:      s.cfg.StoreBackend(),
		Overlay:      s.cfg.Overlay(),
	}
}

func (s *Server) handleSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.settings())
}

func (s *Server) handleSetGoal(w http.ResponseWriter, r *http.Request) {
	d, err := decodeDuration(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.engine.SetGoal(r.Context(), d); err != nil {
		writeError(w, err)
		return
	}
	if err := s.cfg.SetDailyGoal(d); err != nil {
		writeError(w, err)
		return
	}
	s.saveConfig()
	writeJSON(w, http.StatusOK, s.settings())
}

func (s *Server) handleSetAfk(w http.ResponseWriter, r *http.Request) {
	d, err := decodeDuration(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.engine.SetAfkThreshold(r.Context(), d); err != nil {
		writeError(w, err)
		return
	}
	if err := s.cfg.SetAfkThreshold(d); err != nil {
		writeError(w, err)
		return
	}
	s.saveConfig()
	writeJSON(w, http.StatusOK, s.settings())
}

func (s *Server) handleOverlay(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Overlay())
}

func (s *Server) handleSetOverlay(w http.ResponseWriter, r *http.Request) {
	var p models.OverlayParams
	if err := validation.DecodeAndValidate(r.Body, &p); err != nil {
		writeError(w, err)
		return
	}
	s.cfg.SetOverlay(p.Config())
	s.saveConfig()
	writeJSON(w, http.StatusOK, s.cfg.Overlay())
}

func (s *Server) today() tracker.Date {
	if d := s.engine.Snapshot().Date; !d.IsZero() {
		return d
	}
	return tracker.DateOf(s.clock.Now())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	records, err := s.engine.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	acc := tracker.NewAccumulator(s.cfg.TickInterval())
	acc.Load(records)
	today := s.today()

	resp := models.StatsResponse{Date: today, Titles: []models.TitleStats{}}
	for _, title := range records.Titles() {
		ts := models.TitleStats{
			Title: title,
			Today: models.Seconds(acc.ElapsedToday(title, today)),
			Week:  models.Seconds(acc.ElapsedWeek(title, today)),
			Month: models.Seconds(acc.ElapsedMonth(title, today)),
			Total: models.Seconds(acc.ElapsedTotal(title)),
		}
		for _, row := range export.TitleRows(records, title) {
			ts.Days = append(ts.Days, models.DayStats{Date: row.Date, Seconds: row.Seconds})
		}
		resp.Titles = append(resp.Titles, ts)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProcesses(w http.ResponseWriter, r *http.Request) {
	names, err := s.procs.Names(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, models.ProcessesResponse{Processes: names})
}

// handleExport streams a CSV or JSON export. The body is built in memory
// first so a failure still produces a proper error response.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	records, err := s.engine.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	q := r.URL.Query()
	format := q.Get("format")
	if format == "" {
		format = export.FormatCSV
	}
	title := tracker.NormalizeTitle(q.Get("title"))

	var (
		buf         bytes.Buffer
		filename    string
		contentType string
	)
	switch format {
	case export.FormatCSV:
		contentType = "text/csv; charset=utf-8"
		if title != "" {
			filename = export.TitleFileName(title)
			err = export.WriteTitleCSV(&buf, records, title)
		} else {
			filename = export.AllTitlesFile
			err = export.WriteAllCSV(&buf, records)
		}
	case export.FormatJSON:
		contentType = "application/json"
		filename = export.JSONFile
		err = export.WriteJSON(&buf, records)
	default:
		err = fmt.Errorf("%w: unknown export format %q", validation.ErrInvalidParams, format)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		log.Debug().Err(err).Msg("api: failed to write export")
	}
}

func (s *Server) handleLibrary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, models.LibraryResponse{Entries: s.cfg.Library()})
}

func (s *Server) handleAddLibrary(w http.ResponseWriter, r *http.Request) {
	var p models.LibraryEntryParams
	if err := validation.DecodeAndValidate(r.Body, &p); err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusCreated
	if s.cfg.AddLibraryEntry(p.Config()) {
		status = http.StatusOK
	}
	s.saveConfig()
	writeJSON(w, status, models.LibraryResponse{Entries: s.cfg.Library()})
}

// handleRemoveLibrary drops a library entry. Recorded time for the title
// is kept.
func (s *Server) handleRemoveLibrary(w http.ResponseWriter, r *http.Request) {
	title := tracker.NormalizeTitle(r.URL.Query().Get("title"))
	if title == "" {
		writeError(w, validation.ErrMissingParams)
		return
	}
	if !s.cfg.RemoveLibraryEntry(title) {
		apimiddleware.WriteError(w, http.StatusNotFound, "no library entry for title")
		return
	}
	s.saveConfig()
	writeJSON(w, http.StatusOK, models.LibraryResponse{Entries: s.cfg.Library()})
}

func queryInt(r *http.Request, key string, def, limit int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return def
	}
	return min(v, limit)
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	process := r.URL.Query().Get("process")
	if process == "" {
		writeError(w, validation.ErrMissingParams)
		return
	}
	records, err := s.engine.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	candidates := library.Candidates(s.cfg.Library(), s.cfg.TitleProcesses(), records.Titles())
	suggestions := library.Suggest(process, candidates, queryInt(r, "limit", defaultSuggestions, maxSuggestions))
	if suggestions == nil {
		suggestions = []library.Suggestion{}
	}
	writeJSON(w, http.StatusOK, models.SuggestResponse{Suggestions: suggestions})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.meta == nil {
		writeError(w, errMetadataDisabled)
		return
	}
	results, err := s.meta.Search(r.Context(), r.URL.Query().Get("q"), queryInt(r, "limit", defaultSearchLimit, vndb.MaxResults))
	if err != nil {
		writeError(w, err)
		return
	}
	if results == nil {
		results = []vndb.VN{}
	}
	writeJSON(w, http.StatusOK, models.SearchResponse{Results: results})
}

func (s *Server) handleVN(w http.ResponseWriter, r *http.Request) {
	if s.meta == nil {
		writeError(w, errMetadataDisabled)
		return
	}
	vn, err := s.meta.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vn)
}

// handleCover serves a cached cover, looking the entry up for its image
// URL only on a cache miss.
func (s *Server) handleCover(w http.ResponseWriter, r *http.Request) {
	if s.meta == nil {
		writeError(w, errMetadataDisabled)
		return
	}
	ctx := r.Context()
	vn := vndb.VN{ID: chi.URLParam(r, "id")}

	data, err := s.meta.Cover(ctx, vn)
	if errors.Is(err, vndb.ErrNoCover) {
		vn, err = s.meta.Get(ctx, vn.ID)
		if err == nil {
			data, err = s.meta.Cover(ctx, vn)
		}
	}
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.Debug().Err(err).Msg("api: failed to write cover")
	}
}
