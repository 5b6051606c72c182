// Navaar - Telegram / YouTube Music / Spotify Playlist Synchronization
// Copyright 2026 Navaar Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/navaar/navaar

package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/navaar/navaar/internal/database"
	"github.com/navaar/navaar/internal/logging"
	"github.com/navaar/navaar/internal/metrics"
	"github.com/navaar/navaar/internal/models"
	"github.com/navaar/navaar/internal/spotify"
)

// SpToTg pulls new tracks from the Spotify playlist into the Telegram
// channel. Spotify has no direct audio download, so each track is resolved
// to its best YouTube match for the actual file. New rows fan out a
// companion sp_to_yt row so a single Spotify addition lands on both TG and
// the YouTube playlist.
type SpToTg struct {
	db *database.DB
	tg TelegramTransport
	sp SPService
	yt YTService
	dl AudioDownloader
}

func NewSpToTg(db *database.DB, tg TelegramTransport, sp SPService, yt YTService, dl AudioDownloader) *SpToTg {
	return &SpToTg{db: db, tg: tg, sp: sp, yt: yt, dl: dl}
}

func (w *SpToTg) Direction() models.Direction { return models.DirectionSpToTg }

func (w *SpToTg) RunCycle(ctx context.Context) (int, error) {
	synced := 0

	retries, err := w.db.GetPendingTracks(ctx, models.DirectionSpToTg)
	if err != nil {
		return 0, err
	}
	for _, track := range retries {
		if track.SPTrackID == nil {
			continue
		}
		if ctx.Err() != nil {
			return synced, ctx.Err()
		}
		if err := w.retryTrack(ctx, track); err != nil {
			logging.Error().Err(err).Int64("track_id", track.ID).Msg("sp_to_tg retry failed")
			metrics.SyncErrors.WithLabelValues(models.DirectionSpToTg.String(), "retry_failed").Inc()
			continue
		}
		synced++
	}

	playlist, err := w.sp.PlaylistTracks(ctx)
	if err != nil {
		return synced, err
	}

	currentIDs := make([]string, 0, len(playlist))
	lookup := make(map[string]spotify.PlaylistEntry, len(playlist))
	for _, entry := range playlist {
		if entry.TrackID == "" {
			continue
		}
		currentIDs = append(currentIDs, entry.TrackID)
		lookup[entry.TrackID] = entry
	}

	var prevIDs []string
	if err := w.db.GetStateJSON(ctx, models.StateKeySPSnapshot, &prevIDs); err != nil &&
		err != database.ErrNotFound {
		return synced, err
	}
	prev := make(map[string]struct{}, len(prevIDs))
	for _, id := range prevIDs {
		prev[id] = struct{}{}
	}

	var newIDs []string
	for _, id := range currentIDs {
		if _, seen := prev[id]; !seen {
			newIDs = append(newIDs, id)
		}
	}

	if len(newIDs) > 0 {
		logging.Info().Int("count", len(newIDs)).Msg("New Spotify playlist tracks")
		for _, spTrackID := range newIDs {
			if ctx.Err() != nil {
				return synced, ctx.Err()
			}
			if err := w.syncTrack(ctx, spTrackID, lookup[spTrackID]); err != nil {
				logging.Error().Err(err).Str("sp_track_id", spTrackID).Msg("sp_to_tg track failed")
				metrics.SyncErrors.WithLabelValues(models.DirectionSpToTg.String(), "sync_failed").Inc()
				continue
			}
			synced++
		}
	}

	if err := w.db.SetStateJSON(ctx, models.StateKeySPSnapshot, currentIDs); err != nil {
		return synced, err
	}
	return synced, nil
}

func (w *SpToTg) retryTrack(ctx context.Context, track *models.Track) error {
	start := time.Now()
	logging.Info().Int64("track_id", track.ID).Str("sp_track_id", *track.SPTrackID).Msg("Retrying sp_to_tg track")

	if _, err := w.db.UpdateTrack(ctx, track.ID, database.TrackUpdate{Status: statusPtr(models.StatusSyncing)}); err != nil {
		return err
	}

	match, err := w.yt.FindBestMatch(ctx, strVal(track.Artist), track.Title)
	if err != nil {
		return err
	}
	if match == nil {
		if _, err := w.db.MarkFailed(ctx, track.ID, "no_yt_match_for_download"); err != nil {
			return err
		}
		return fmt.Errorf("no youtube match for spotify track %s", *track.SPTrackID)
	}

	return w.transfer(ctx, track.ID, *track.SPTrackID, match.VideoID, transferMeta{
		title:    track.Title,
		artist:   strVal(track.Artist),
		duration: i64Val(track.DurationSeconds),
	}, start)
}

func (w *SpToTg) syncTrack(ctx context.Context, spTrackID string, meta spotify.PlaylistEntry) error {
	start := time.Now()
	direction := models.DirectionSpToTg

	existing, err := w.db.GetTrackBySPTrackID(ctx, spTrackID)
	if err != nil && err != database.ErrNotFound {
		return err
	}
	if existing != nil && existing.Terminal() {
		logging.Debug().Str("sp_track_id", spTrackID).Msg("Spotify track already synced")
		return nil
	}

	title := meta.Title
	if title == "" {
		title = spTrackID
	}
	method := models.MethodSpMetadata

	var durationSeconds *int64
	if meta.DurationMS > 0 {
		d := meta.DurationMS / 1000
		durationSeconds = &d
	}

	track := &models.Track{
		Direction:            direction,
		Status:               models.StatusPending,
		Title:                title,
		SPTrackID:            &spTrackID,
		DurationSeconds:      durationSeconds,
		IdentificationMethod: &method,
	}
	if meta.Artist != "" {
		a := meta.Artist
		track.Artist = &a
	}
	if err := w.db.CreateTrack(ctx, track); err != nil {
		return err
	}
	metrics.TracksDiscovered.WithLabelValues(direction.String()).Inc()

	// Fan-out: mirror the addition onto the YouTube playlist unless another
	// track already owns this source id.
	if existing == nil {
		companion := &models.Track{
			Direction:            models.DirectionSpToYt,
			Status:               models.StatusPending,
			Title:                title,
			SPTrackID:            &spTrackID,
			DurationSeconds:      durationSeconds,
			IdentificationMethod: &method,
			Artist:               track.Artist,
		}
		if err := w.db.CreateTrack(ctx, companion); err != nil {
			logging.Warn().Err(err).Str("sp_track_id", spTrackID).Msg("Fan-out row creation failed")
		} else {
			metrics.TracksDiscovered.WithLabelValues(models.DirectionSpToYt.String()).Inc()
		}
	}

	match, err := w.yt.FindBestMatch(ctx, meta.Artist, title)
	if err != nil {
		return err
	}
	if match == nil {
		if _, err := w.db.MarkFailed(ctx, track.ID, "no_yt_match_for_download"); err != nil {
			return err
		}
		_, _ = w.db.AppendLog(ctx, models.EventNoYtMatchForDL, &track.ID, &direction, map[string]any{
			"sp_track_id": spTrackID,
			"name":        title,
		})
		metrics.SyncErrors.WithLabelValues(direction.String(), "no_yt_match").Inc()
		return fmt.Errorf("no youtube match for spotify track %s", spTrackID)
	}

	if _, err := w.db.UpdateTrack(ctx, track.ID, database.TrackUpdate{
		Status:    statusPtr(models.StatusSyncing),
		YTVideoID: &match.VideoID,
	}); err != nil {
		return err
	}

	return w.transfer(ctx, track.ID, spTrackID, match.VideoID, transferMeta{
		title:    title,
		artist:   meta.Artist,
		duration: i64Val(durationSeconds),
	}, start)
}

func (w *SpToTg) transfer(ctx context.Context, trackID int64, spTrackID, videoID string, meta transferMeta, start time.Time) error {
	direction := models.DirectionSpToTg

	localPath, err := w.dl.Download(ctx, videoID)
	if err != nil {
		if _, merr := w.db.MarkFailed(ctx, trackID, fmt.Sprintf("download_failed: %v", err)); merr != nil {
			return merr
		}
		_, _ = w.db.AppendLog(ctx, models.EventDownloadFailed, &trackID, &direction, map[string]any{
			"video_id": videoID,
			"error":    err.Error(),
		})
		return err
	}
	defer w.dl.Cleanup(localPath)

	messageID, err := w.tg.SendAudio(ctx, sendRequest(localPath, meta, trackID))
	if err != nil {
		if _, merr := w.db.MarkFailed(ctx, trackID, fmt.Sprintf("upload_failed: %v", err)); merr != nil {
			return merr
		}
		_, _ = w.db.AppendLog(ctx, models.EventUploadFailed, &trackID, &direction, map[string]any{
			"sp_track_id": spTrackID,
			"error":       err.Error(),
		})
		return err
	}

	if _, err := w.db.MarkSynced(ctx, trackID, database.TrackUpdate{TGMessageID: &messageID}); err != nil {
		return err
	}
	_, _ = w.db.AppendLog(ctx, models.EventTrackSynced, &trackID, &direction, map[string]any{
		"sp_track_id": spTrackID,
		"message_id":  messageID,
		"name":        meta.title,
	})

	metrics.TracksSynced.WithLabelValues(direction.String()).Inc()
	metrics.TrackSyncDuration.WithLabelValues(direction.String()).Observe(time.Since(start).Seconds())
	logging.Info().
		Int64("track_id", trackID).
		Str("sp_track_id", spTrackID).
		Int64("message_id", messageID).
		Msg("Track synced to Telegram")
	return nil
}
