// Navaar - Telegram / YouTube Music / Spotify Playlist Synchronization
// Copyright 2026 Navaar Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/navaar/navaar

package sync

import (
	"context"
	"time"

	"github.com/navaar/navaar/internal/database"
	"github.com/navaar/navaar/internal/logging"
	"github.com/navaar/navaar/internal/metrics"
	"github.com/navaar/navaar/internal/models"
)

// TgToYt pushes channel audio into the YouTube Music playlist.
type TgToYt struct {
	db *database.DB
	tg TelegramTransport
	yt YTService
}

func NewTgToYt(db *database.DB, tg TelegramTransport, yt YTService) *TgToYt {
	return &TgToYt{db: db, tg: tg, yt: yt}
}

func (w *TgToYt) Direction() models.Direction { return models.DirectionTgToYt }

// RunCycle processes all pickupable tg_to_yt tracks against one playlist
// snapshot taken at cycle start.
func (w *TgToYt) RunCycle(ctx context.Context) (int, error) {
	pending, err := w.db.GetPendingTracks(ctx, models.DirectionTgToYt)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	logging.Info().Int("count", len(pending)).Msg("Processing tg_to_yt tracks")

	playlist, err := w.yt.PlaylistTracks(ctx)
	if err != nil {
		return 0, err
	}
	inPlaylist := make(map[string]struct{}, len(playlist))
	for _, entry := range playlist {
		inPlaylist[entry.VideoID] = struct{}{}
	}

	processed := 0
	for _, track := range pending {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		if err := w.processTrack(ctx, track, inPlaylist); err != nil {
			failUnexpected(ctx, w.db, models.DirectionTgToYt, track.ID, err)
			continue
		}
		processed++
	}
	return processed, nil
}

func (w *TgToYt) processTrack(ctx context.Context, track *models.Track, inPlaylist map[string]struct{}) error {
	start := time.Now()
	direction := models.DirectionTgToYt

	track, err := identifyTGTrack(ctx, w.db, w.tg, track)
	if err != nil {
		return err
	}

	match, err := w.yt.FindBestMatch(ctx, strVal(track.Artist), track.Title)
	if err != nil {
		return err
	}
	if match == nil {
		if _, err := w.db.MarkFailed(ctx, track.ID, "no_yt_match"); err != nil {
			return err
		}
		_, _ = w.db.AppendLog(ctx, models.EventNoYtMatch, &track.ID, &direction, map[string]any{
			"artist": strVal(track.Artist),
			"title":  track.Title,
		})
		metrics.SyncErrors.WithLabelValues(direction.String(), "no_yt_match").Inc()
		return nil
	}

	if _, dup := inPlaylist[match.VideoID]; dup {
		if _, err := w.db.MarkDuplicate(ctx, track.ID); err != nil {
			return err
		}
		if _, err := w.db.UpdateTrack(ctx, track.ID, database.TrackUpdate{YTVideoID: &match.VideoID}); err != nil {
			return err
		}
		_, _ = w.db.AppendLog(ctx, models.EventDuplicateSkipped, &track.ID, &direction, map[string]any{
			"video_id": match.VideoID,
		})
		metrics.DuplicatesSkipped.WithLabelValues(direction.String()).Inc()
		logging.Info().Int64("track_id", track.ID).Str("video_id", match.VideoID).Msg("Duplicate skipped")
		return nil
	}

	if _, err := w.db.UpdateTrack(ctx, track.ID, database.TrackUpdate{Status: statusPtr(models.StatusSyncing)}); err != nil {
		return err
	}
	itemID, err := w.yt.AddToPlaylist(ctx, match.VideoID)
	if err != nil {
		return err
	}

	upd := database.TrackUpdate{YTVideoID: &match.VideoID}
	if itemID != "" {
		upd.YTSetVideoID = &itemID
	}
	if _, err := w.db.MarkSynced(ctx, track.ID, upd); err != nil {
		return err
	}
	_, _ = w.db.AppendLog(ctx, models.EventTrackSynced, &track.ID, &direction, map[string]any{
		"video_id": match.VideoID,
		"title":    match.Title,
	})

	metrics.TracksSynced.WithLabelValues(direction.String()).Inc()
	metrics.TrackSyncDuration.WithLabelValues(direction.String()).Observe(time.Since(start).Seconds())
	logging.Info().
		Int64("track_id", track.ID).
		Str("video_id", match.VideoID).
		Str("title", match.Title).
		Msg("Track synced to YouTube Music")
	return nil
}
