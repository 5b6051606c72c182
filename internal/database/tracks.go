// Navaar - Telegram / YouTube Music / Spotify Playlist Synchronization
// Copyright 2026 Navaar Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/navaar/navaar

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/navaar/navaar/internal/models"
)

// trackColumns is the canonical column list; scanTrack must match it.
const trackColumns = `id, direction, status, artist, title, identification_method,
	tg_message_id, tg_file_id, tg_file_unique_id, yt_video_id, yt_set_video_id,
	sp_track_id, duration_seconds, failure_reason, retry_count, max_retries,
	created_at, updated_at, synced_at`

// TrackUpdate carries optional field updates; nil fields are left unchanged.
type TrackUpdate struct {
	Status               *models.Status
	Artist               *string
	Title                *string
	IdentificationMethod *models.Method
	TGMessageID          *int64
	TGFileID             *string
	TGFileUniqueID       *string
	YTVideoID            *string
	YTSetVideoID         *string
	SPTrackID            *string
	DurationSeconds      *int64
	FailureReason        *string
	RetryCount           *int
}

// Stats is the aggregate view served by the API and the /stats bot command.
type Stats struct {
	Total       int64                      `json:"total"`
	Synced      int64                      `json:"synced"`
	Failed      int64                      `json:"failed"`
	Duplicates  int64                      `json:"duplicates"`
	Pending     int64                      `json:"pending"`
	ByDirection map[models.Direction]int64 `json:"synced_by_direction"`
	SuccessRate float64                    `json:"success_rate"`
}

// CreateTrack inserts a new track and fills its id and timestamps.
// Violating the tg_message_id or tg_file_unique_id uniqueness surfaces
// ErrConflict.
func (db *DB) CreateTrack(ctx context.Context, t *models.Track) error {
	if t.Status == "" {
		t.Status = models.StatusPending
	}
	if t.MaxRetries == 0 {
		t.MaxRetries = 3
	}

	row := db.conn.QueryRowContext(ctx, `
		INSERT INTO tracks (direction, status, artist, title, identification_method,
			tg_message_id, tg_file_id, tg_file_unique_id, yt_video_id, yt_set_video_id,
			sp_track_id, duration_seconds, retry_count, max_retries)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id, created_at, updated_at`,
		t.Direction, t.Status, t.Artist, t.Title, methodPtr(t.IdentificationMethod),
		t.TGMessageID, t.TGFileID, t.TGFileUniqueID, t.YTVideoID, t.YTSetVideoID,
		t.SPTrackID, t.DurationSeconds, t.RetryCount, t.MaxRetries)

	if err := row.Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create track: %w", ErrConflict)
		}
		return fmt.Errorf("create track: %w", err)
	}
	return nil
}

// GetTrack fetches a track by id, returning ErrNotFound when absent.
func (db *DB) GetTrack(ctx context.Context, id int64) (*models.Track, error) {
	return db.getTrackWhere(ctx, "id = ?", id)
}

// GetTrackByTGFileUniqueID fetches by the stable Telegram file identifier.
func (db *DB) GetTrackByTGFileUniqueID(ctx context.Context, fileUniqueID string) (*models.Track, error) {
	return db.getTrackWhere(ctx, "tg_file_unique_id = ?", fileUniqueID)
}

// GetTrackByTGMessageID fetches by Telegram message id.
func (db *DB) GetTrackByTGMessageID(ctx context.Context, messageID int64) (*models.Track, error) {
	return db.getTrackWhere(ctx, "tg_message_id = ?", messageID)
}

// GetTrackByYTVideoID fetches the most recent track carrying the video id.
func (db *DB) GetTrackByYTVideoID(ctx context.Context, videoID string) (*models.Track, error) {
	return db.getTrackWhere(ctx, "yt_video_id = ?", videoID)
}

// GetTrackBySPTrackID fetches the most recent track carrying the Spotify id.
func (db *DB) GetTrackBySPTrackID(ctx context.Context, spTrackID string) (*models.Track, error) {
	return db.getTrackWhere(ctx, "sp_track_id = ?", spTrackID)
}

func (db *DB) getTrackWhere(ctx context.Context, where string, arg any) (*models.Track, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+trackColumns+` FROM tracks WHERE `+where+` ORDER BY id DESC LIMIT 1`, arg)
	t, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get track: %w", err)
	}
	return t, nil
}

// GetPendingTracks returns the direction's pickupable tracks (pending or
// retry_scheduled) in ascending id order, so retries precede fresh work.
func (db *DB) GetPendingTracks(ctx context.Context, direction models.Direction) ([]*models.Track, error) {
	return db.queryTracks(ctx, `
		SELECT `+trackColumns+` FROM tracks
		WHERE direction = ? AND status IN ('pending', 'retry_scheduled')
		ORDER BY id ASC`, direction)
}

// GetFailedTracks returns failed tracks, optionally filtered by direction
// (empty direction means all).
func (db *DB) GetFailedTracks(ctx context.Context, direction models.Direction) ([]*models.Track, error) {
	if direction == "" {
		return db.queryTracks(ctx,
			`SELECT `+trackColumns+` FROM tracks WHERE status = 'failed' ORDER BY id ASC`)
	}
	return db.queryTracks(ctx, `
		SELECT `+trackColumns+` FROM tracks
		WHERE status = 'failed' AND direction = ?
		ORDER BY id ASC`, direction)
}

// GetRecentTracks returns the newest tracks, optionally filtered by
// direction.
func (db *DB) GetRecentTracks(ctx context.Context, limit int, direction models.Direction) ([]*models.Track, error) {
	if limit <= 0 {
		limit = 10
	}
	if direction == "" {
		return db.queryTracks(ctx,
			`SELECT `+trackColumns+` FROM tracks ORDER BY id DESC LIMIT ?`, limit)
	}
	return db.queryTracks(ctx, `
		SELECT `+trackColumns+` FROM tracks WHERE direction = ?
		ORDER BY id DESC LIMIT ?`, direction, limit)
}

// ListTracks returns tracks filtered by optional direction and status, newest
// first. Serves the inspection API.
func (db *DB) ListTracks(ctx context.Context, direction models.Direction, status models.Status, limit int) ([]*models.Track, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE 1=1`
	args := []any{}
	if direction != "" {
		query += ` AND direction = ?`
		args = append(args, direction)
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	return db.queryTracks(ctx, query, args...)
}

// UpdateTrack applies the non-nil fields of upd and returns the fresh row.
func (db *DB) UpdateTrack(ctx context.Context, id int64, upd TrackUpdate) (*models.Track, error) {
	set := "updated_at = CURRENT_TIMESTAMP"
	args := []any{}
	add := func(col string, val any) {
		set += ", " + col + " = ?"
		args = append(args, val)
	}

	if upd.Status != nil {
		add("status", *upd.Status)
	}
	if upd.Artist != nil {
		add("artist", *upd.Artist)
	}
	if upd.Title != nil {
		add("title", *upd.Title)
	}
	if upd.IdentificationMethod != nil {
		add("identification_method", *upd.IdentificationMethod)
	}
	if upd.TGMessageID != nil {
		add("tg_message_id", *upd.TGMessageID)
	}
	if upd.TGFileID != nil {
		add("tg_file_id", *upd.TGFileID)
	}
	if upd.TGFileUniqueID != nil {
		add("tg_file_unique_id", *upd.TGFileUniqueID)
	}
	if upd.YTVideoID != nil {
		add("yt_video_id", *upd.YTVideoID)
	}
	if upd.YTSetVideoID != nil {
		add("yt_set_video_id", *upd.YTSetVideoID)
	}
	if upd.SPTrackID != nil {
		add("sp_track_id", *upd.SPTrackID)
	}
	if upd.DurationSeconds != nil {
		add("duration_seconds", *upd.DurationSeconds)
	}
	if upd.FailureReason != nil {
		add("failure_reason", *upd.FailureReason)
	}
	if upd.RetryCount != nil {
		add("retry_count", *upd.RetryCount)
	}

	args = append(args, id)
	if _, err := db.conn.ExecContext(ctx,
		`UPDATE tracks SET `+set+` WHERE id = ?`, args...); err != nil {
		return nil, fmt.Errorf("update track %d: %w", id, err)
	}
	return db.GetTrack(ctx, id)
}

// MarkSynced transitions the track to synced, stamps synced_at, and applies
// any external id fields carried in upd, all in one statement.
func (db *DB) MarkSynced(ctx context.Context, id int64, upd TrackUpdate) (*models.Track, error) {
	set := "status = 'synced', synced_at = ?, updated_at = CURRENT_TIMESTAMP"
	args := []any{time.Now().UTC()}

	if upd.TGMessageID != nil {
		set += ", tg_message_id = ?"
		args = append(args, *upd.TGMessageID)
	}
	if upd.YTVideoID != nil {
		set += ", yt_video_id = ?"
		args = append(args, *upd.YTVideoID)
	}
	if upd.YTSetVideoID != nil {
		set += ", yt_set_video_id = ?"
		args = append(args, *upd.YTSetVideoID)
	}
	if upd.SPTrackID != nil {
		set += ", sp_track_id = ?"
		args = append(args, *upd.SPTrackID)
	}

	args = append(args, id)
	if _, err := db.conn.ExecContext(ctx,
		`UPDATE tracks SET `+set+` WHERE id = ?`, args...); err != nil {
		return nil, fmt.Errorf("mark synced %d: %w", id, err)
	}
	return db.GetTrack(ctx, id)
}

// MarkFailed transitions the track to failed, records the reason, and bumps
// retry_count. Every failed transition increments the counter.
func (db *DB) MarkFailed(ctx context.Context, id int64, reason string) (*models.Track, error) {
	if _, err := db.conn.ExecContext(ctx, `
		UPDATE tracks
		SET status = 'failed', failure_reason = ?, retry_count = retry_count + 1,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, reason, id); err != nil {
		return nil, fmt.Errorf("mark failed %d: %w", id, err)
	}
	return db.GetTrack(ctx, id)
}

// MarkDuplicate transitions the track to the terminal duplicate state.
func (db *DB) MarkDuplicate(ctx context.Context, id int64) (*models.Track, error) {
	status := models.StatusDuplicate
	return db.UpdateTrack(ctx, id, TrackUpdate{Status: &status})
}

// ResetForRetry puts a single track back into the pickup set and clears its
// failure reason. retry_count is preserved as a history of past failures.
func (db *DB) ResetForRetry(ctx context.Context, id int64) (*models.Track, error) {
	if _, err := db.conn.ExecContext(ctx, `
		UPDATE tracks
		SET status = 'retry_scheduled', failure_reason = NULL,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("reset for retry %d: %w", id, err)
	}
	return db.GetTrack(ctx, id)
}

// ResetAllFailed reschedules every failed track (optionally one direction)
// and returns how many were touched. Duplicate tracks are left alone; they
// record that the target playlist already has the item.
func (db *DB) ResetAllFailed(ctx context.Context, direction models.Direction) (int64, error) {
	query := `
		UPDATE tracks
		SET status = 'retry_scheduled', failure_reason = NULL,
			updated_at = CURRENT_TIMESTAMP
		WHERE status = 'failed'`
	args := []any{}
	if direction != "" {
		query += ` AND direction = ?`
		args = append(args, direction)
	}

	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("reset all failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset all failed: %w", err)
	}
	return n, nil
}

// GetCounts returns track counts grouped by direction and status.
func (db *DB) GetCounts(ctx context.Context) (map[models.Direction]map[models.Status]int64, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT direction, status, COUNT(id) FROM tracks GROUP BY direction, status`)
	if err != nil {
		return nil, fmt.Errorf("get counts: %w", err)
	}
	defer closeQuietly(rows)

	counts := make(map[models.Direction]map[models.Status]int64)
	for rows.Next() {
		var (
			direction models.Direction
			status    models.Status
			count     int64
		)
		if err := rows.Scan(&direction, &status, &count); err != nil {
			return nil, fmt.Errorf("get counts: %w", err)
		}
		if counts[direction] == nil {
			counts[direction] = make(map[models.Status]int64)
		}
		counts[direction][status] = count
	}
	return counts, rows.Err()
}

// GetStats aggregates totals across all tracks. Pending counts both pickup
// states; success rate is synced over total, one decimal place.
func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	counts, err := db.GetCounts(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{ByDirection: make(map[models.Direction]int64)}
	for _, d := range models.AllDirections {
		stats.ByDirection[d] = 0
	}
	for direction, byStatus := range counts {
		for status, n := range byStatus {
			stats.Total += n
			switch status {
			case models.StatusSynced:
				stats.Synced += n
				stats.ByDirection[direction] += n
			case models.StatusFailed:
				stats.Failed += n
			case models.StatusDuplicate:
				stats.Duplicates += n
			case models.StatusPending, models.StatusRetryScheduled:
				stats.Pending += n
			}
		}
	}
	if stats.Total > 0 {
		stats.SuccessRate = math.Round(float64(stats.Synced)/float64(stats.Total)*1000) / 10
	}
	return stats, nil
}

// DeleteTrack removes a track, reporting whether a row existed. Log entries
// keep their track_id reference; the log is append-only history.
func (db *DB) DeleteTrack(ctx context.Context, id int64) (bool, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM tracks WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete track %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete track %d: %w", id, err)
	}
	return n > 0, nil
}

func (db *DB) queryTracks(ctx context.Context, query string, args ...any) ([]*models.Track, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tracks: %w", err)
	}
	defer closeQuietly(rows)

	var tracks []*models.Track
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("scan track: %w", err)
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTrack(s scanner) (*models.Track, error) {
	var (
		t        models.Track
		artist   sql.NullString
		method   sql.NullString
		tgMsgID  sql.NullInt64
		tgFileID sql.NullString
		tgFileUq sql.NullString
		ytVideo  sql.NullString
		ytSetVid sql.NullString
		spTrack  sql.NullString
		duration sql.NullInt64
		failure  sql.NullString
		syncedAt sql.NullTime
	)

	err := s.Scan(&t.ID, &t.Direction, &t.Status, &artist, &t.Title, &method,
		&tgMsgID, &tgFileID, &tgFileUq, &ytVideo, &ytSetVid,
		&spTrack, &duration, &failure, &t.RetryCount, &t.MaxRetries,
		&t.CreatedAt, &t.UpdatedAt, &syncedAt)
	if err != nil {
		return nil, err
	}

	if artist.Valid {
		t.Artist = &artist.String
	}
	if method.Valid {
		m := models.Method(method.String)
		t.IdentificationMethod = &m
	}
	if tgMsgID.Valid {
		t.TGMessageID = &tgMsgID.Int64
	}
	if tgFileID.Valid {
		t.TGFileID = &tgFileID.String
	}
	if tgFileUq.Valid {
		t.TGFileUniqueID = &tgFileUq.String
	}
	if ytVideo.Valid {
		t.YTVideoID = &ytVideo.String
	}
	if ytSetVid.Valid {
		t.YTSetVideoID = &ytSetVid.String
	}
	if spTrack.Valid {
		t.SPTrackID = &spTrack.String
	}
	if duration.Valid {
		t.DurationSeconds = &duration.Int64
	}
	if failure.Valid {
		t.FailureReason = &failure.String
	}
	if syncedAt.Valid {
		ts := syncedAt.Time
		t.SyncedAt = &ts
	}
	return &t, nil
}

func methodPtr(m *models.Method) any {
	if m == nil {
		return nil
	}
	return *m
}
