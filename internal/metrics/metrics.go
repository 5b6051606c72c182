// Navaar - Telegram / YouTube Music / Spotify Playlist Synchronization
// Copyright 2026 Navaar Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/navaar/navaar

// Package metrics exposes Navaar's Prometheus instrumentation: sync cycle
// counters and durations, per-direction track gauges, search/download/upload
// outcome counters, and service liveness.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/navaar/navaar/internal/models"
)

var (
	// Cycle counters

	SyncCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "navaar_sync_cycles_total",
			Help: "Total sync cycles executed",
		},
		[]string{"direction"},
	)

	TracksDiscovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "navaar_tracks_discovered_total",
			Help: "Total tracks discovered",
		},
		[]string{"direction"},
	)

	TracksSynced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "navaar_tracks_synced_total",
			Help: "Total tracks successfully synced",
		},
		[]string{"direction"},
	)

	DuplicatesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "navaar_duplicates_skipped_total",
			Help: "Total duplicate tracks skipped",
		},
		[]string{"direction"},
	)

	SyncErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "navaar_sync_errors_total",
			Help: "Total sync errors",
		},
		[]string{"direction", "error_type"},
	)

	Retries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "navaar_retries_total",
			Help: "Total retry attempts",
		},
		[]string{"direction"},
	)

	Identifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "navaar_identification_total",
			Help: "Total track identifications by method",
		},
		[]string{"method"},
	)

	// External call outcome counters

	YTSearches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "navaar_yt_search_total",
			Help: "YouTube Music search results",
		},
		[]string{"result"},
	)

	SPSearches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "navaar_sp_search_total",
			Help: "Spotify search results",
		},
		[]string{"result"},
	)

	TGUploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "navaar_tg_upload_total",
			Help: "Telegram upload results",
		},
		[]string{"result"},
	)

	YTDownloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "navaar_yt_download_total",
			Help: "YouTube download results",
		},
		[]string{"result"},
	)

	TGDownloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "navaar_tg_download_total",
			Help: "Telegram download results",
		},
		[]string{"result"},
	)

	// Gauges

	TracksTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "navaar_tracks_total",
			Help: "Total tracks in database",
		},
	)

	TracksPending = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "navaar_tracks_pending",
			Help: "Currently pending tracks",
		},
		[]string{"direction"},
	)

	TracksFailed = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "navaar_tracks_failed",
			Help: "Currently failed tracks",
		},
		[]string{"direction"},
	)

	TracksSyncedCurrent = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "navaar_tracks_synced_current",
			Help: "Current synced tracks count",
		},
		[]string{"direction"},
	)

	TracksDuplicate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "navaar_tracks_duplicate",
			Help: "Current duplicate tracks count",
		},
		[]string{"direction"},
	)

	LastSyncTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "navaar_last_sync_timestamp_seconds",
			Help: "Timestamp of last successful sync cycle",
		},
		[]string{"direction"},
	)

	LastSyncDuration = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "navaar_last_sync_duration_seconds",
			Help: "Duration of the most recent sync cycle",
		},
		[]string{"direction"},
	)

	LastSyncProcessed = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "navaar_last_sync_processed_tracks",
			Help: "Number of tracks processed in last sync cycle",
		},
		[]string{"direction"},
	)

	Up = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "navaar_up",
			Help: "Whether the service is up",
		},
	)

	UptimeSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "navaar_uptime_seconds",
			Help: "Service uptime in seconds",
		},
	)

	SuccessRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "navaar_success_rate_percent",
			Help: "Overall sync success rate",
		},
	)

	// Histograms

	SyncCycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "navaar_sync_cycle_duration_seconds",
			Help:    "Duration of sync cycles",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"direction"},
	)

	TrackSyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "navaar_track_sync_duration_seconds",
			Help:    "Duration of individual track sync",
			Buckets: []float64{1, 5, 10, 30, 60, 120},
		},
		[]string{"direction"},
	)

	YTSearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "navaar_yt_search_duration_seconds",
			Help:    "Duration of YouTube Music searches",
			Buckets: []float64{0.5, 1, 2, 5, 10},
		},
	)

	SPSearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "navaar_sp_search_duration_seconds",
			Help:    "Duration of Spotify searches",
			Buckets: []float64{0.5, 1, 2, 5, 10},
		},
	)
)

// errorTypes is the closed set of error_type label values.
var errorTypes = []string{
	"no_yt_match", "no_sp_match", "no_yt_match_for_download", "unexpected",
	"cycle_crash", "sync_failed", "retry_failed", "download_failed",
	"upload_failed",
}

var startTime = time.Now()

// Init pre-initializes every label combination so all series appear in
// /metrics from the first scrape, and marks the service up.
func Init() {
	for _, d := range models.AllDirections {
		dir := d.String()
		SyncCycles.WithLabelValues(dir)
		TracksDiscovered.WithLabelValues(dir)
		TracksSynced.WithLabelValues(dir)
		DuplicatesSkipped.WithLabelValues(dir)
		Retries.WithLabelValues(dir)
		TracksPending.WithLabelValues(dir).Set(0)
		TracksFailed.WithLabelValues(dir).Set(0)
		TracksSyncedCurrent.WithLabelValues(dir).Set(0)
		TracksDuplicate.WithLabelValues(dir).Set(0)
		LastSyncTimestamp.WithLabelValues(dir).Set(0)
		LastSyncDuration.WithLabelValues(dir).Set(0)
		LastSyncProcessed.WithLabelValues(dir).Set(0)
		SyncCycleDuration.WithLabelValues(dir)
		TrackSyncDuration.WithLabelValues(dir)

		for _, et := range errorTypes {
			SyncErrors.WithLabelValues(dir, et)
		}
	}

	for _, m := range []models.Method{
		models.MethodID3, models.MethodTgMetadata, models.MethodYtMetadata,
		models.MethodSpMetadata, models.MethodFilename,
	} {
		Identifications.WithLabelValues(m.String())
	}

	for _, r := range []string{"found", "not_found"} {
		YTSearches.WithLabelValues(r)
		SPSearches.WithLabelValues(r)
	}
	for _, r := range []string{"success", "failure"} {
		TGUploads.WithLabelValues(r)
		YTDownloads.WithLabelValues(r)
		TGDownloads.WithLabelValues(r)
	}

	Up.Set(1)
	UptimeSeconds.Set(0)
}

// TickUptime refreshes the uptime gauge. Called from the engine loop.
func TickUptime() {
	UptimeSeconds.Set(time.Since(startTime).Seconds())
}
