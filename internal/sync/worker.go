// Navaar - Telegram / YouTube Music / Spotify Playlist Synchronization
// Copyright 2026 Navaar Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/navaar/navaar

// Package sync implements the per-direction sync workers and the engine
// that schedules them. Push workers move pending tracks toward a target
// playlist; pull workers diff a source playlist against a stored snapshot
// and transfer new tracks into the Telegram channel.
package sync

import (
	"context"
	"fmt"

	"github.com/navaar/navaar/internal/database"
	"github.com/navaar/navaar/internal/identify"
	"github.com/navaar/navaar/internal/logging"
	"github.com/navaar/navaar/internal/metrics"
	"github.com/navaar/navaar/internal/models"
	"github.com/navaar/navaar/internal/spotify"
	"github.com/navaar/navaar/internal/telegram"
	"github.com/navaar/navaar/internal/ytmusic"
)

// Worker runs one sync cycle for its direction and reports how many tracks
// it processed. Per-track failures are absorbed into the track rows; a
// returned error means the cycle itself could not run.
type Worker interface {
	Direction() models.Direction
	RunCycle(ctx context.Context) (int, error)
}

// TelegramTransport is the slice of the Telegram client the workers need.
type TelegramTransport interface {
	DownloadFile(ctx context.Context, fileID string) (string, error)
	SendAudio(ctx context.Context, up telegram.AudioUpload) (int64, error)
	Cleanup(filePath string)
}

// YTService is the slice of the YouTube Music client the workers need.
type YTService interface {
	FindBestMatch(ctx context.Context, artist, title string) (*ytmusic.Match, error)
	PlaylistTracks(ctx context.Context) ([]ytmusic.PlaylistEntry, error)
	AddToPlaylist(ctx context.Context, videoID string) (string, error)
}

// SPService is the slice of the Spotify client the workers need.
type SPService interface {
	FindBestMatch(ctx context.Context, artist, title string) (*spotify.Match, error)
	PlaylistTracks(ctx context.Context) ([]spotify.PlaylistEntry, error)
	AddToPlaylist(ctx context.Context, trackID string) error
}

// AudioDownloader fetches a video's audio for re-upload to Telegram.
type AudioDownloader interface {
	Download(ctx context.Context, videoID string) (string, error)
	Cleanup(filePath string)
}

// sendRequest builds the channel upload for a transfer, including the
// provenance caption.
func sendRequest(path string, meta transferMeta, trackID int64) telegram.AudioUpload {
	return telegram.AudioUpload{
		Path:      path,
		Title:     meta.title,
		Performer: meta.artist,
		Duration:  meta.duration,
		Caption:   fmt.Sprintf("Synced by Navaar | #%d", trackID),
	}
}

func strVal(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func i64Val(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

func statusPtr(s models.Status) *models.Status { return &s }

// identifyTGTrack runs the identification phase for a Telegram-sourced
// track: download the file, refine (artist, title), persist, and return the
// reloaded track in the searching state. A download failure propagates so
// the caller records the track as an unexpected failure.
func identifyTGTrack(ctx context.Context, db *database.DB, tg TelegramTransport, track *models.Track) (*models.Track, error) {
	if _, err := db.UpdateTrack(ctx, track.ID, database.TrackUpdate{Status: statusPtr(models.StatusIdentifying)}); err != nil {
		return nil, err
	}

	var localPath string
	if track.TGFileID != nil {
		p, err := tg.DownloadFile(ctx, *track.TGFileID)
		if err != nil {
			return nil, err
		}
		localPath = p
		defer tg.Cleanup(localPath)
	}

	info := identify.Identify(identify.Input{
		FilePath: localPath,
		Artist:   strVal(track.Artist),
		Title:    track.Title,
		FileName: localPath,
	})

	upd := database.TrackUpdate{Status: statusPtr(models.StatusSearching)}
	if info != nil {
		metrics.Identifications.WithLabelValues(info.Method.String()).Inc()
		upd.Title = &info.Title
		upd.IdentificationMethod = &info.Method
		if info.Artist != nil {
			upd.Artist = info.Artist
		}
	}
	// With no identification the track keeps its discovery metadata.
	return db.UpdateTrack(ctx, track.ID, upd)
}

// failUnexpected records a per-track crash in a push worker.
func failUnexpected(ctx context.Context, db *database.DB, direction models.Direction, trackID int64, cause error) {
	logging.Error().Err(cause).Int64("track_id", trackID).Str("direction", direction.String()).Msg("Track sync error")

	if _, err := db.MarkFailed(ctx, trackID, "unexpected_error"); err != nil {
		logging.Error().Err(err).Int64("track_id", trackID).Msg("Could not mark track failed")
	}
	dir := direction
	_, _ = db.AppendLog(ctx, models.EventSyncFailed, &trackID, &dir, map[string]any{
		"reason": "unexpected_error",
		"error":  cause.Error(),
	})
	metrics.SyncErrors.WithLabelValues(direction.String(), "unexpected").Inc()
}
