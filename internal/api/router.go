// Navaar - Telegram / YouTube Music / Spotify Playlist Synchronization
// Copyright 2026 Navaar Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/navaar/navaar

// Package api serves Navaar's observability HTTP surface: health probes,
// Prometheus metrics, and read-only inspection of tracks, logs, and sync
// state. All mutation happens through the Telegram bot; this server never
// writes.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/navaar/navaar/internal/database"
)

const (
	rateLimitRequests = 300
	rateLimitWindow   = time.Minute
)

// NewRouter builds the chi router with the full middleware stack and all
// routes mounted.
func NewRouter(db *database.DB) http.Handler {
	handler := NewHandler(db)

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         86400,
	}))

	r.Get("/healthz", handler.HealthLive)
	r.Get("/readyz", handler.HealthReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(httprate.LimitByIP(rateLimitRequests, rateLimitWindow))

		r.Get("/stats", handler.Stats)
		r.Get("/counts", handler.Counts)
		r.Get("/tracks", handler.Tracks)
		r.Get("/tracks/{id}", handler.TrackByID)
		r.Get("/failed", handler.Failed)
		r.Get("/pending", handler.Pending)
		r.Get("/logs", handler.Logs)
		r.Get("/sync-state", handler.SyncState)
	})

	return r
}
