// Navaar - Telegram / YouTube Music / Spotify Playlist Synchronization
// Copyright 2026 Navaar Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/navaar/navaar

package models

import (
	"strconv"
	"time"
)

// Snapshot keys and the last-sync key prefix used in sync_state.
const (
	StateKeyYTSnapshot = "yt_playlist_snapshot"
	StateKeySPSnapshot = "sp_playlist_snapshot"

	// StateKeyLastSyncPrefix + direction holds the wall-clock time of the
	// direction's last completed cycle, as decimal Unix seconds.
	StateKeyLastSyncPrefix = "last_"
	StateKeyLastSyncSuffix = "_sync"
)

// LastSyncKey returns the sync_state key recording a direction's last
// completed cycle.
func LastSyncKey(d Direction) string {
	return StateKeyLastSyncPrefix + string(d) + StateKeyLastSyncSuffix
}

// FormatLastSync renders a last-sync value: fractional Unix seconds.
func FormatLastSync(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixNano())/1e9, 'f', -1, 64)
}

// ParseLastSync reads a last-sync value back into a time.
func ParseLastSync(raw string) (time.Time, error) {
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, int64(secs*1e9)), nil
}

// StateEntry is one row of the sync_state key/value table.
type StateEntry struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LogEntry is one append-only row of the sync_log audit table. TrackID is a
// one-way nullable reference; log rows survive track deletion.
type LogEntry struct {
	ID        int64      `json:"id"`
	TrackID   *int64     `json:"track_id,omitempty"`
	Event     Event      `json:"event"`
	Direction *Direction `json:"direction,omitempty"`
	Details   *string    `json:"details,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
