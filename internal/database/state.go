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

	"github.com/goccy/go-json"

	"github.com/navaar/navaar/internal/models"
)

// GetState reads a sync_state value, returning ErrNotFound for absent keys.
func (db *DB) GetState(ctx context.Context, key string) (string, error) {
	var value string
	err := db.conn.QueryRowContext(ctx,
		`SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get state %q: %w", key, err)
	}
	return value, nil
}

// SetState writes a sync_state value, last writer wins.
func (db *DB) SetState(ctx context.Context, key, value string) error {
	// now() instead of CURRENT_TIMESTAMP: DuckDB's binder rejects the
	// latter inside a DO UPDATE set list.
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, ?, now())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = now()`,
		key, value)
	if err != nil {
		return fmt.Errorf("set state %q: %w", key, err)
	}
	return nil
}

// GetStateJSON unmarshals a sync_state value into dest. Absent keys surface
// ErrNotFound so callers can distinguish first runs.
func (db *DB) GetStateJSON(ctx context.Context, key string, dest any) error {
	raw, err := db.GetState(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return fmt.Errorf("decode state %q: %w", key, err)
	}
	return nil
}

// SetStateJSON marshals value and stores it under key.
func (db *DB) SetStateJSON(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode state %q: %w", key, err)
	}
	return db.SetState(ctx, key, string(raw))
}

// ListState returns all sync_state entries ordered by key, for the
// inspection API.
func (db *DB) ListState(ctx context.Context) ([]*models.StateEntry, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT key, value, updated_at FROM sync_state ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list state: %w", err)
	}
	defer closeQuietly(rows)

	var entries []*models.StateEntry
	for rows.Next() {
		var e models.StateEntry
		if err := rows.Scan(&e.Key, &e.Value, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
