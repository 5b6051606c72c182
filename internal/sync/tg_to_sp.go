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

// TgToSp pushes channel audio into the Spotify playlist.
type TgToSp struct {
	db *database.DB
	tg TelegramTransport
	sp SPService
}

func NewTgToSp(db *database.DB, tg TelegramTransport, sp SPService) *TgToSp {
	return &TgToSp{db: db, tg: tg, sp: sp}
}

func (w *TgToSp) Direction() models.Direction { return models.DirectionTgToSp }

func (w *TgToSp) RunCycle(ctx context.Context) (int, error) {
	pending, err := w.db.GetPendingTracks(ctx, models.DirectionTgToSp)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	logging.Info().Int("count", len(pending)).Msg("Processing tg_to_sp tracks")

	playlist, err := w.sp.PlaylistTracks(ctx)
	if err != nil {
		return 0, err
	}
	inPlaylist := make(map[string]struct{}, len(playlist))
	for _, entry := range playlist {
		inPlaylist[entry.TrackID] = struct{}{}
	}

	processed := 0
	for _, track := range pending {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		if err := w.processTrack(ctx, track, inPlaylist); err != nil {
			failUnexpected(ctx, w.db, models.DirectionTgToSp, track.ID, err)
			continue
		}
		processed++
	}
	return processed, nil
}

func (w *TgToSp) processTrack(ctx context.Context, track *models.Track, inPlaylist map[string]struct{}) error {
	start := time.Now()
	direction := models.DirectionTgToSp

	track, err := identifyTGTrack(ctx, w.db, w.tg, track)
	if err != nil {
		return err
	}

	match, err := w.sp.FindBestMatch(ctx, strVal(track.Artist), track.Title)
	if err != nil {
		return err
	}
	if match == nil {
		if _, err := w.db.MarkFailed(ctx, track.ID, "no_sp_match"); err != nil {
			return err
		}
		_, _ = w.db.AppendLog(ctx, models.EventNoSpMatch, &track.ID, &direction, map[string]any{
			"artist": strVal(track.Artist),
			"title":  track.Title,
		})
		metrics.SyncErrors.WithLabelValues(direction.String(), "no_sp_match").Inc()
		return nil
	}

	if _, dup := inPlaylist[match.TrackID]; dup {
		if _, err := w.db.MarkDuplicate(ctx, track.ID); err != nil {
			return err
		}
		if _, err := w.db.UpdateTrack(ctx, track.ID, database.TrackUpdate{SPTrackID: &match.TrackID}); err != nil {
			return err
		}
		_, _ = w.db.AppendLog(ctx, models.EventDuplicateSkipped, &track.ID, &direction, map[string]any{
			"sp_track_id": match.TrackID,
		})
		metrics.DuplicatesSkipped.WithLabelValues(direction.String()).Inc()
		logging.Info().Int64("track_id", track.ID).Str("sp_track_id", match.TrackID).Msg("Duplicate skipped")
		return nil
	}

	if _, err := w.db.UpdateTrack(ctx, track.ID, database.TrackUpdate{Status: statusPtr(models.StatusSyncing)}); err != nil {
		return err
	}
	if err := w.sp.AddToPlaylist(ctx, match.TrackID); err != nil {
		return err
	}

	if _, err := w.db.MarkSynced(ctx, track.ID, database.TrackUpdate{SPTrackID: &match.TrackID}); err != nil {
		return err
	}
	_, _ = w.db.AppendLog(ctx, models.EventTrackSynced, &track.ID, &direction, map[string]any{
		"sp_track_id": match.TrackID,
		"name":        match.Title,
	})

	metrics.TracksSynced.WithLabelValues(direction.String()).Inc()
	metrics.TrackSyncDuration.WithLabelValues(direction.String()).Observe(time.Since(start).Seconds())
	logging.Info().
		Int64("track_id", track.ID).
		Str("sp_track_id", match.TrackID).
		Str("name", match.Title).
		Msg("Track synced to Spotify")
	return nil
}
