// Navaar - Telegram / YouTube Music / Spotify Playlist Synchronization
// Copyright 2026 Navaar Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/navaar/navaar

package database

import (
	"errors"
	"io"
	"strings"
)

// Sentinel errors surfaced by the store. Callers match with errors.Is.
var (
	// ErrNotFound is returned when a lookup by id or unique key matches
	// no row.
	ErrNotFound = errors.New("database: not found")

	// ErrConflict is returned when an insert violates a uniqueness
	// constraint (tg_message_id or tg_file_unique_id).
	ErrConflict = errors.New("database: conflict")
)

// isUniqueViolation recognizes DuckDB constraint errors on insert. The driver
// does not expose typed errors for this, so the message is matched.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "UNIQUE constraint")
}

// closeQuietly closes a resource and explicitly ignores any error.
// Used in error paths where Close() errors are not actionable.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}
