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

// Package models holds the request and response bodies of the HTTP API.
// Durations on the wire are seconds as floats.
package models

import (
	"time"

	"github.com/vnclub/vntracker/pkg/config"
	"github.com/vnclub/vntracker/pkg/library"
	"github.com/vnclub/vntracker/pkg/metadata/vndb"
	"github.com/vnclub/vntracker/pkg/tracker"
)

// Notification names sent over the websocket.
const (
	NotificationSnapshot = "tracking.snapshot"
)

type ErrorResponse struct {
	Error  string       `json:"error"`
	Fields []FieldError `json:"fields,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func Seconds(d time.Duration) float64 {
	return d.Seconds()
}

type GoalResponse struct {
	Goal      float64 `json:"goal"`
	Elapsed   float64 `json:"elapsed"`
	Remaining float64 `json:"remaining"`
	Fraction  float64 `json:"fraction"`
	HasGoal   bool    `json:"hasGoal"`
	Reached   bool    `json:"reached"`
}

type SnapshotResponse struct {
	UpdatedAt       time.Time    `json:"updatedAt"`
	Date            tracker.Date `json:"date"`
	Engine          string       `json:"engine"`
	State           string       `json:"state"`
	Title           string       `json:"title,omitempty"`
	Process         string       `json:"process,omitempty"`
	LastSampleError string       `json:"lastSampleError,omitempty"`
	Goal            GoalResponse `json:"goal"`
	Today           float64      `json:"today"`
	Week            float64      `json:"week"`
	Month           float64      `json:"month"`
	Total           float64      `json:"total"`
	AfkThreshold    float64      `json:"afkThreshold"`
	TickInterval    float64      `json:"tickInterval"`
	Ticks           uint64       `json:"ticks"`
}

func NewSnapshotResponse(s tracker.Snapshot) SnapshotResponse {
	resp := SnapshotResponse{
		UpdatedAt:       s.UpdatedAt,
		Date:            s.Date,
		Engine:          s.Engine.String(),
		State:           s.State.String(),
		Title:           s.Title,
		LastSampleError: s.LastSampleError,
		Goal: GoalResponse{
			Goal:      Seconds(s.Goal.Goal),
			Elapsed:   Seconds(s.Goal.Elapsed),
			Remaining: Seconds(s.Goal.Remaining),
			Fraction:  s.Goal.Fraction,
			HasGoal:   s.Goal.HasGoal,
			Reached:   s.Goal.Reached,
		},
		Today:        Seconds(s.ElapsedToday),
		Week:         Seconds(s.ElapsedWeek),
		Month:        Seconds(s.ElapsedMonth),
		Total:        Seconds(s.ElapsedTotal),
		AfkThreshold: Seconds(s.AfkThreshold),
		TickInterval: Seconds(s.TickInterval),
		Ticks:        s.Ticks,
	}
	if !s.Target.IsZero() {
		resp.Process = s.Target.String()
	}
	return resp
}

// Notification is the websocket envelope for pushed updates.
type Notification struct {
	Params any    `json:"params"`
	Method string `json:"method"`
}

type TrackingParams struct {
	Title   string `json:"title" validate:"required,title,max=512"`
	Process string `json:"process" validate:"max=512"`
}

type DurationParams struct {
	Duration string `json:"duration" validate:"required,duration"`
}

type OverlayParams struct {
	Show           *bool    `json:"show"`
	Alpha          *float64 `json:"alpha" validate:"omitempty,gte=0,lte=1"`
	ShowPercentage bool     `json:"showPercentage"`
}

func (p OverlayParams) Config() config.Overlay {
	return config.Overlay{Show: p.Show, Alpha: p.Alpha, ShowPercentage: p.ShowPercentage}
}

type LibraryEntryParams struct {
	Title   string `json:"title" validate:"required,title,max=512"`
	VNDBID  string `json:"vndbId" validate:"omitempty,vndbid"`
	Process string `json:"process" validate:"max=512"`
}

func (p LibraryEntryParams) Config() config.LibraryEntry {
	return config.LibraryEntry{
		Title:   tracker.NormalizeTitle(p.Title),
		VNDBID:  p.VNDBID,
		Process: p.Process,
	}
}

type LibraryResponse struct {
	Entries []config.LibraryEntry `json:"entries"`
}

type SuggestResponse struct {
	Suggestions []library.Suggestion `json:"suggestions"`
}

type ProcessesResponse struct {
	Processes []string `json:"processes"`
}

type DayStats struct {
	Date    string  `json:"date"`
	Seconds float64 `json:"seconds"`
}

type TitleStats struct {
	Title string     `json:"title"`
	Days  []DayStats `json:"days"`
	Today float64    `json:"today"`
	Week  float64    `json:"week"`
	Month float64    `json:"month"`
	Total float64    `json:"total"`
}

type StatsResponse struct {
	Date   tracker.Date `json:"date"`
	Titles []TitleStats `json:"titles"`
}

type SettingsResponse struct {
	Overlay      config.Overlay `json:"overlay"`
	DailyGoal    float64        `json:"dailyGoal"`
	AfkThreshold float64        `json:"afkThreshold"`
	TickInterval float64        `json:"tickInterval"`
	AutoStart    bool           `json:"autoStart"`
	Backend      string         `json:"backend"`
}

type SearchResponse struct {
	Results []vndb.VN `json:"results"`
}
