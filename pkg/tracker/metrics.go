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

package tracker

import "github.com/prometheus/client_golang/prometheus"

var (
	ticksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vntracker_ticks_total",
			Help: "Engine ticks by classified activity state.",
		},
		[]string{"state"},
	)

	sampleErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vntracker_sample_errors_total",
			Help: "Failed OS samples by source.",
		},
		[]string{"source"},
	)

	flushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vntracker_store_flushes_total",
			Help: "Session store flushes by result.",
		},
		[]string{"result"},
	)

	flushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vntracker_store_flush_duration_seconds",
			Help:    "Time spent writing the session store.",
			Buckets: prometheus.DefBuckets,
		},
	)

	activeSecondsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vntracker_active_seconds_total",
			Help: "Active time credited to any title since start.",
		},
	)

	trackingGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vntracker_tracking",
			Help: "1 while the engine is tracking a title.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ticksTotal,
		sampleErrorsTotal,
		flushesTotal,
		flushDuration,
		activeSecondsTotal,
		trackingGauge,
	)
}
