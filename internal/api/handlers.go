// Navaar - Telegram / YouTube Music / Spotify Playlist Synchronization
// Copyright 2026 Navaar Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/navaar/navaar

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/navaar/navaar/internal/database"
	"github.com/navaar/navaar/internal/models"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Handler serves the read-only inspection endpoints backed by the track
// store.
type Handler struct {
	db *database.DB
}

// NewHandler creates a handler over the given store.
func NewHandler(db *database.DB) *Handler {
	return &Handler{db: db}
}

// HealthLive reports process liveness. Always 200 once the server is up.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, map[string]string{"status": "ok"})
}

// HealthReady reports readiness by pinging the database.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		WriteError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "database not reachable")
		return
	}
	WriteSuccess(w, map[string]string{"status": "ready"})
}

// Stats returns the aggregate sync totals.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.GetStats(r.Context())
	if err != nil {
		WriteDatabaseError(w, err)
		return
	}
	WriteSuccess(w, stats)
}

// Counts returns track counts grouped by direction and status.
func (h *Handler) Counts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.db.GetCounts(r.Context())
	if err != nil {
		WriteDatabaseError(w, err)
		return
	}
	WriteSuccess(w, counts)
}

// Tracks lists tracks filtered by optional direction, status, and limit.
func (h *Handler) Tracks(w http.ResponseWriter, r *http.Request) {
	direction, ok := queryDirection(w, r)
	if !ok {
		return
	}
	status, ok := queryStatus(w, r)
	if !ok {
		return
	}

	tracks, err := h.db.ListTracks(r.Context(), direction, status, queryLimit(r))
	if err != nil {
		WriteDatabaseError(w, err)
		return
	}
	WriteSuccess(w, tracks)
}

// trackDetail is a track with its recent log entries.
type trackDetail struct {
	Track *models.Track      `json:"track"`
	Logs  []*models.LogEntry `json:"logs"`
}

// TrackByID returns a single track with its recent log entries.
func (h *Handler) TrackByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		WriteBadRequest(w, "invalid track id")
		return
	}

	track, err := h.db.GetTrack(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		WriteNotFound(w, "track not found")
		return
	}
	if err != nil {
		WriteDatabaseError(w, err)
		return
	}

	logs, err := h.db.GetLogsForTrack(r.Context(), id, 20)
	if err != nil {
		WriteDatabaseError(w, err)
		return
	}
	WriteSuccess(w, trackDetail{Track: track, Logs: logs})
}

// Failed lists failed tracks, optionally filtered by direction.
func (h *Handler) Failed(w http.ResponseWriter, r *http.Request) {
	direction, ok := queryDirection(w, r)
	if !ok {
		return
	}

	tracks, err := h.db.GetFailedTracks(r.Context(), direction)
	if err != nil {
		WriteDatabaseError(w, err)
		return
	}
	WriteSuccess(w, tracks)
}

// Pending lists pickup-state tracks per direction. With a direction filter
// only that direction's queue is returned.
func (h *Handler) Pending(w http.ResponseWriter, r *http.Request) {
	direction, ok := queryDirection(w, r)
	if !ok {
		return
	}

	directions := models.AllDirections
	if direction != "" {
		directions = []models.Direction{direction}
	}

	pending := make(map[models.Direction][]*models.Track, len(directions))
	for _, d := range directions {
		tracks, err := h.db.GetPendingTracks(r.Context(), d)
		if err != nil {
			WriteDatabaseError(w, err)
			return
		}
		pending[d] = tracks
	}
	WriteSuccess(w, pending)
}

// Logs returns recent sync log entries, optionally scoped to one track.
func (h *Handler) Logs(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r)

	if raw := r.URL.Query().Get("track_id"); raw != "" {
		trackID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			WriteBadRequest(w, "invalid track_id")
			return
		}
		logs, err := h.db.GetLogsForTrack(r.Context(), trackID, limit)
		if err != nil {
			WriteDatabaseError(w, err)
			return
		}
		WriteSuccess(w, logs)
		return
	}

	logs, err := h.db.GetRecentLogs(r.Context(), limit)
	if err != nil {
		WriteDatabaseError(w, err)
		return
	}
	WriteSuccess(w, logs)
}

// SyncState dumps the sync_state key-value table: playlist snapshots and
// per-direction last-sync timestamps.
func (h *Handler) SyncState(w http.ResponseWriter, r *http.Request) {
	entries, err := h.db.ListState(r.Context())
	if err != nil {
		WriteDatabaseError(w, err)
		return
	}
	WriteSuccess(w, entries)
}

// queryDirection reads the optional direction query parameter. On an unknown
// direction it writes a 400 and returns ok=false.
func queryDirection(w http.ResponseWriter, r *http.Request) (models.Direction, bool) {
	raw := r.URL.Query().Get("direction")
	if raw == "" {
		return "", true
	}
	d := models.Direction(raw)
	if !d.Valid() {
		WriteBadRequest(w, "unknown direction: "+raw)
		return "", false
	}
	return d, true
}

// queryStatus reads the optional status query parameter.
func queryStatus(w http.ResponseWriter, r *http.Request) (models.Status, bool) {
	raw := r.URL.Query().Get("status")
	if raw == "" {
		return "", true
	}
	s := models.Status(raw)
	if !s.Valid() {
		WriteBadRequest(w, "unknown status: "+raw)
		return "", false
	}
	return s, true
}

// queryLimit reads the limit query parameter, clamped to sane bounds.
func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}
