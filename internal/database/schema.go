// Navaar - Telegram / YouTube Music / Spotify Playlist Synchronization
// Copyright 2026 Navaar Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/navaar/navaar

package database

import "context"

// Base schema. DuckDB does not support IDENTITY columns together with
// PRIMARY KEY constraints, so id allocation uses sequences. Sequences are
// atomic, which matters because the bot's discovery inserts run concurrently
// with worker cycles.
//
// Spotify columns are NOT part of the base schema; they arrive via versioned
// migrations so that databases created before Spotify support upgrade in
// place (see migrations.go).
var schemaStatements = []string{
	`CREATE SEQUENCE IF NOT EXISTS tracks_id_seq START 1`,
	`CREATE SEQUENCE IF NOT EXISTS sync_log_id_seq START 1`,

	`CREATE TABLE IF NOT EXISTS tracks (
		id BIGINT PRIMARY KEY DEFAULT nextval('tracks_id_seq'),
		direction VARCHAR NOT NULL,
		status VARCHAR NOT NULL DEFAULT 'pending',
		artist VARCHAR,
		title VARCHAR NOT NULL,
		identification_method VARCHAR,
		tg_message_id BIGINT,
		tg_file_id VARCHAR,
		tg_file_unique_id VARCHAR,
		yt_video_id VARCHAR,
		yt_set_video_id VARCHAR,
		duration_seconds BIGINT,
		failure_reason VARCHAR,
		retry_count INTEGER NOT NULL DEFAULT 0,
		max_retries INTEGER NOT NULL DEFAULT 3,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		synced_at TIMESTAMP
	)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS idx_tracks_tg_message_id
		ON tracks (tg_message_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_tracks_tg_file_unique_id
		ON tracks (tg_file_unique_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tracks_direction_status
		ON tracks (direction, status)`,
	`CREATE INDEX IF NOT EXISTS idx_tracks_yt_video_id
		ON tracks (yt_video_id)`,

	`CREATE TABLE IF NOT EXISTS sync_state (
		key VARCHAR PRIMARY KEY,
		value VARCHAR NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS sync_log (
		id BIGINT PRIMARY KEY DEFAULT nextval('sync_log_id_seq'),
		track_id BIGINT,
		event VARCHAR NOT NULL,
		direction VARCHAR,
		details VARCHAR,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE INDEX IF NOT EXISTS idx_sync_log_track_id
		ON sync_log (track_id)`,
}

// createSchema applies the base schema. All statements are idempotent.
func (db *DB) createSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
