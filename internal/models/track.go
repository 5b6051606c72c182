// Navaar - Telegram / YouTube Music / Spotify Playlist Synchronization
// Copyright 2026 Navaar Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/navaar/navaar

package models

import "time"

// Track is one unit of sync work: a single audio item flowing in a single
// direction. The same song appearing on two services is two tracks.
type Track struct {
	ID        int64     `json:"id"`
	Direction Direction `json:"direction"`
	Status    Status    `json:"status"`

	Artist *string `json:"artist,omitempty"`
	Title  string  `json:"title"`

	// IdentificationMethod is set once identification has run; nil for
	// tracks that never passed through the identifying state.
	IdentificationMethod *Method `json:"identification_method,omitempty"`

	// Telegram identifiers. TGFileUniqueID is stable across bots and is
	// the dedup key for channel discovery; TGFileID is the download handle.
	TGMessageID    *int64  `json:"tg_message_id,omitempty"`
	TGFileID       *string `json:"tg_file_id,omitempty"`
	TGFileUniqueID *string `json:"tg_file_unique_id,omitempty"`

	// YTVideoID is the YouTube video; YTSetVideoID is the playlist-item id
	// needed to remove the entry from the playlist later.
	YTVideoID    *string `json:"yt_video_id,omitempty"`
	YTSetVideoID *string `json:"yt_set_video_id,omitempty"`

	SPTrackID *string `json:"sp_track_id,omitempty"`

	DurationSeconds *int64 `json:"duration_seconds,omitempty"`

	FailureReason *string `json:"failure_reason,omitempty"`
	RetryCount    int     `json:"retry_count"`
	MaxRetries    int     `json:"max_retries"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	SyncedAt  *time.Time `json:"synced_at,omitempty"`
}

// Pickupable reports whether a worker may select this track for processing.
func (t *Track) Pickupable() bool {
	return t.Status == StatusPending || t.Status == StatusRetryScheduled
}

// Terminal reports whether the track has reached a state only an operator
// action can leave.
func (t *Track) Terminal() bool {
	return t.Status == StatusSynced || t.Status == StatusDuplicate
}
