// Navaar - Telegram / YouTube Music / Spotify Playlist Synchronization
// Copyright 2026 Navaar Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/navaar/navaar

package models

// Direction identifies a sync flow between two services. It is assigned when
// a track is discovered and never changes afterwards.
type Direction string

const (
	DirectionTgToYt Direction = "tg_to_yt"
	DirectionYtToTg Direction = "yt_to_tg"
	DirectionTgToSp Direction = "tg_to_sp"
	DirectionSpToTg Direction = "sp_to_tg"
	DirectionYtToSp Direction = "yt_to_sp"
	DirectionSpToYt Direction = "sp_to_yt"
)

// AllDirections lists every direction in a stable order, used for metric
// label pre-initialization and gauge refreshes.
var AllDirections = []Direction{
	DirectionTgToYt,
	DirectionYtToTg,
	DirectionTgToSp,
	DirectionSpToTg,
	DirectionYtToSp,
	DirectionSpToYt,
}

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	switch d {
	case DirectionTgToYt, DirectionYtToTg, DirectionTgToSp,
		DirectionSpToTg, DirectionYtToSp, DirectionSpToYt:
		return true
	}
	return false
}

func (d Direction) String() string { return string(d) }

// Status is a track's position in the sync lifecycle.
//
// pending and retry_scheduled are the pickup states; workers only select
// tracks in one of those two. synced and duplicate are terminal unless an
// operator resets the track.
type Status string

const (
	StatusPending        Status = "pending"
	StatusIdentifying    Status = "identifying"
	StatusSearching      Status = "searching"
	StatusSyncing        Status = "syncing"
	StatusSynced         Status = "synced"
	StatusDuplicate      Status = "duplicate"
	StatusFailed         Status = "failed"
	StatusRetryScheduled Status = "retry_scheduled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusIdentifying, StatusSearching, StatusSyncing,
		StatusSynced, StatusDuplicate, StatusFailed, StatusRetryScheduled:
		return true
	}
	return false
}

func (s Status) String() string { return string(s) }

// Method records how a track's (artist, title) pair was determined.
type Method string

const (
	MethodID3        Method = "id3"
	MethodTgMetadata Method = "tg_metadata"
	MethodYtMetadata Method = "yt_metadata"
	MethodSpMetadata Method = "sp_metadata"
	MethodFilename   Method = "filename"
)

func (m Method) String() string { return string(m) }

// Event is the closed vocabulary of sync_log entries.
type Event string

const (
	EventTrackDiscovered     Event = "track_discovered"
	EventTrackSynced         Event = "track_synced"
	EventDuplicateSkipped    Event = "duplicate_skipped"
	EventNoYtMatch           Event = "no_yt_match"
	EventNoSpMatch           Event = "no_sp_match"
	EventNoYtMatchForDL      Event = "no_yt_match_for_download"
	EventDownloadFailed      Event = "download_failed"
	EventUploadFailed        Event = "upload_failed"
	EventSyncFailed          Event = "sync_failed"
)

func (e Event) String() string { return string(e) }
