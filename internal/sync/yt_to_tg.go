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
	"github.com/navaar/navaar/internal/ytmusic"
)

// YtToTg pulls new tracks from the YouTube playlist into the Telegram
// channel: retry previously failed rows first, then diff the playlist
// against the stored snapshot and transfer whatever is new.
type YtToTg struct {
	db *database.DB
	tg TelegramTransport
	yt YTService
	dl AudioDownloader
}

func NewYtToTg(db *database.DB, tg TelegramTransport, yt YTService, dl AudioDownloader) *YtToTg {
	return &YtToTg{db: db, tg: tg, yt: yt, dl: dl}
}

func (w *YtToTg) Direction() models.Direction { return models.DirectionYtToTg }

func (w *YtToTg) RunCycle(ctx context.Context) (int, error) {
	synced := 0

	// Retry phase: rows reset for retry already hold a video id.
	retries, err := w.db.GetPendingTracks(ctx, models.DirectionYtToTg)
	if err != nil {
		return 0, err
	}
	for _, track := range retries {
		if track.YTVideoID == nil {
			continue
		}
		if ctx.Err() != nil {
			return synced, ctx.Err()
		}
		if err := w.retryTrack(ctx, track); err != nil {
			logging.Error().Err(err).Int64("track_id", track.ID).Msg("yt_to_tg retry failed")
			metrics.SyncErrors.WithLabelValues(models.DirectionYtToTg.String(), "retry_failed").Inc()
			continue
		}
		synced++
	}

	// Discovery phase: diff the playlist against the last snapshot.
	playlist, err := w.yt.PlaylistTracks(ctx)
	if err != nil {
		return synced, err
	}

	currentIDs := make([]string, 0, len(playlist))
	lookup := make(map[string]ytmusic.PlaylistEntry, len(playlist))
	for _, entry := range playlist {
		if entry.VideoID == "" {
			continue
		}
		currentIDs = append(currentIDs, entry.VideoID)
		lookup[entry.VideoID] = entry
	}

	var prevIDs []string
	if err := w.db.GetStateJSON(ctx, models.StateKeyYTSnapshot, &prevIDs); err != nil &&
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
		logging.Info().Int("count", len(newIDs)).Msg("New YouTube playlist tracks")
		for _, videoID := range newIDs {
			if ctx.Err() != nil {
				return synced, ctx.Err()
			}
			if err := w.syncTrack(ctx, videoID, lookup[videoID]); err != nil {
				logging.Error().Err(err).Str("video_id", videoID).Msg("yt_to_tg track failed")
				metrics.SyncErrors.WithLabelValues(models.DirectionYtToTg.String(), "sync_failed").Inc()
				continue
			}
			synced++
		}
	}

	// Snapshot is written after processing: a crash mid-cycle re-discovers
	// the unprocessed remainder next time.
	if err := w.db.SetStateJSON(ctx, models.StateKeyYTSnapshot, currentIDs); err != nil {
		return synced, err
	}
	return synced, nil
}

// retryTrack re-attempts download + upload for a previously failed row.
func (w *YtToTg) retryTrack(ctx context.Context, track *models.Track) error {
	start := time.Now()
	logging.Info().Int64("track_id", track.ID).Str("video_id", *track.YTVideoID).Msg("Retrying yt_to_tg track")

	if _, err := w.db.UpdateTrack(ctx, track.ID, database.TrackUpdate{Status: statusPtr(models.StatusSyncing)}); err != nil {
		return err
	}
	return w.transfer(ctx, track.ID, *track.YTVideoID, transferMeta{
		title:    track.Title,
		artist:   strVal(track.Artist),
		duration: i64Val(track.DurationSeconds),
	}, start)
}

// syncTrack creates a row for a newly discovered playlist entry and
// transfers it.
func (w *YtToTg) syncTrack(ctx context.Context, videoID string, meta ytmusic.PlaylistEntry) error {
	start := time.Now()
	direction := models.DirectionYtToTg

	// Cross-service dedup: the video may already be tracked via tg_to_yt.
	existing, err := w.db.GetTrackByYTVideoID(ctx, videoID)
	if err != nil && err != database.ErrNotFound {
		return err
	}
	if existing != nil && existing.Terminal() {
		logging.Debug().Str("video_id", videoID).Msg("Video already synced")
		return nil
	}

	title := meta.Title
	if title == "" {
		title = videoID
	}
	method := models.MethodYtMetadata

	track := &models.Track{
		Direction:            direction,
		Status:               models.StatusPending,
		Title:                title,
		YTVideoID:            &videoID,
		IdentificationMethod: &method,
	}
	if meta.Artist != "" {
		a := meta.Artist
		track.Artist = &a
	}
	if meta.ItemID != "" {
		item := meta.ItemID
		track.YTSetVideoID = &item
	}
	if err := w.db.CreateTrack(ctx, track); err != nil {
		return err
	}
	metrics.TracksDiscovered.WithLabelValues(direction.String()).Inc()

	if _, err := w.db.UpdateTrack(ctx, track.ID, database.TrackUpdate{Status: statusPtr(models.StatusSyncing)}); err != nil {
		return err
	}
	return w.transfer(ctx, track.ID, videoID, transferMeta{
		title:  title,
		artist: meta.Artist,
	}, start)
}

type transferMeta struct {
	title    string
	artist   string
	duration int64
}

// transfer downloads the video's audio and uploads it to the channel.
func (w *YtToTg) transfer(ctx context.Context, trackID int64, videoID string, meta transferMeta, start time.Time) error {
	direction := models.DirectionYtToTg

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
			"video_id": videoID,
			"error":    err.Error(),
		})
		return err
	}

	if _, err := w.db.MarkSynced(ctx, trackID, database.TrackUpdate{TGMessageID: &messageID}); err != nil {
		return err
	}
	_, _ = w.db.AppendLog(ctx, models.EventTrackSynced, &trackID, &direction, map[string]any{
		"video_id":   videoID,
		"message_id": messageID,
		"title":      meta.title,
	})

	metrics.TracksSynced.WithLabelValues(direction.String()).Inc()
	metrics.TrackSyncDuration.WithLabelValues(direction.String()).Observe(time.Since(start).Seconds())
	logging.Info().
		Int64("track_id", trackID).
		Str("video_id", videoID).
		Int64("message_id", messageID).
		Msg("Track synced to Telegram")
	return nil
}
