// Navaar - Telegram / YouTube Music / Spotify Playlist Synchronization
// Copyright 2026 Navaar Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/navaar/navaar

package database

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/navaar/navaar/internal/models"
)

// AppendLog records a sync_log entry. trackID and direction may be nil; the
// details map, when present, is stored as JSON.
func (db *DB) AppendLog(ctx context.Context, event models.Event, trackID *int64, direction *models.Direction, details map[string]any) (*models.LogEntry, error) {
	var detailsJSON *string
	if len(details) > 0 {
		raw, err := json.Marshal(details)
		if err != nil {
			return nil, fmt.Errorf("append log: encode details: %w", err)
		}
		s := string(raw)
		detailsJSON = &s
	}

	entry := &models.LogEntry{
		TrackID:   trackID,
		Event:     event,
		Direction: direction,
		Details:   detailsJSON,
	}

	row := db.conn.QueryRowContext(ctx, `
		INSERT INTO sync_log (track_id, event, direction, details)
		VALUES (?, ?, ?, ?)
		RETURNING id, created_at`,
		trackID, event, directionPtr(direction), detailsJSON)
	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return nil, fmt.Errorf("append log: %w", err)
	}
	return entry, nil
}

// GetLogsForTrack returns the track's newest log entries.
func (db *DB) GetLogsForTrack(ctx context.Context, trackID int64, limit int) ([]*models.LogEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	return db.queryLogs(ctx, `
		SELECT id, track_id, event, direction, details, created_at
		FROM sync_log WHERE track_id = ?
		ORDER BY id DESC LIMIT ?`, trackID, limit)
}

// GetRecentLogs returns the newest log entries across all tracks.
func (db *DB) GetRecentLogs(ctx context.Context, limit int) ([]*models.LogEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	return db.queryLogs(ctx, `
		SELECT id, track_id, event, direction, details, created_at
		FROM sync_log ORDER BY id DESC LIMIT ?`, limit)
}

func (db *DB) queryLogs(ctx context.Context, query string, args ...any) ([]*models.LogEntry, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	defer closeQuietly(rows)

	var entries []*models.LogEntry
	for rows.Next() {
		var (
			e         models.LogEntry
			trackID   *int64
			direction *string
			details   *string
		)
		if err := rows.Scan(&e.ID, &trackID, &e.Event, &direction, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		e.TrackID = trackID
		if direction != nil {
			d := models.Direction(*direction)
			e.Direction = &d
		}
		e.Details = details
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func directionPtr(d *models.Direction) any {
	if d == nil {
		return nil
	}
	return *d
}
