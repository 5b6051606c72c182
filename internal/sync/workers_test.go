// Navaar - Telegram / YouTube Music / Spotify Playlist Synchronization
// Copyright 2026 Navaar Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/navaar/navaar

package sync

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/navaar/navaar/internal/config"
	"github.com/navaar/navaar/internal/database"
	"github.com/navaar/navaar/internal/models"
	"github.com/navaar/navaar/internal/spotify"
	"github.com/navaar/navaar/internal/telegram"
	"github.com/navaar/navaar/internal/ytmusic"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	cfg := &config.DatabaseConfig{
		Path:      filepath.Join(t.TempDir(), "test.duckdb"),
		MaxMemory: "256MB",
		Threads:   2,
	}
	db, err := database.New(cfg)
	if err != nil {
		t.Fatalf("database.New() error: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	})
	return db
}

func strPtr(s string) *string { return &s }

// ── Fakes ──

type fakeTG struct {
	downloadErr   error
	uploadErr     error
	nextMessageID int64
	uploads       []telegram.AudioUpload
	tmp           string
}

func (f *fakeTG) DownloadFile(ctx context.Context, fileID string) (string, error) {
	if f.downloadErr != nil {
		return "", f.downloadErr
	}
	path := filepath.Join(f.tmp, fileID+".mp3")
	if err := os.WriteFile(path, []byte("not really audio"), 0o600); err != nil {
		return "", err
	}
	return path, nil
}

func (f *fakeTG) SendAudio(ctx context.Context, up telegram.AudioUpload) (int64, error) {
	if f.uploadErr != nil {
		return 0, f.uploadErr
	}
	f.uploads = append(f.uploads, up)
	f.nextMessageID++
	return f.nextMessageID, nil
}

func (f *fakeTG) Cleanup(path string) {
	if path != "" {
		_ = os.Remove(path)
	}
}

type fakeYT struct {
	match       *ytmusic.Match
	searchErr   error
	playlist    []ytmusic.PlaylistEntry
	playlistErr error
	added       []string
	addErr      error
}

func (f *fakeYT) FindBestMatch(ctx context.Context, artist, title string) (*ytmusic.Match, error) {
	return f.match, f.searchErr
}

func (f *fakeYT) PlaylistTracks(ctx context.Context) ([]ytmusic.PlaylistEntry, error) {
	return f.playlist, f.playlistErr
}

func (f *fakeYT) AddToPlaylist(ctx context.Context, videoID string) (string, error) {
	if f.addErr != nil {
		return "", f.addErr
	}
	f.added = append(f.added, videoID)
	return "item_" + videoID, nil
}

type fakeSP struct {
	match    *spotify.Match
	playlist []spotify.PlaylistEntry
	added    []string
	addErr   error
}

func (f *fakeSP) FindBestMatch(ctx context.Context, artist, title string) (*spotify.Match, error) {
	return f.match, nil
}

func (f *fakeSP) PlaylistTracks(ctx context.Context) ([]spotify.PlaylistEntry, error) {
	return f.playlist, nil
}

func (f *fakeSP) AddToPlaylist(ctx context.Context, trackID string) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, trackID)
	return nil
}

type fakeDL struct {
	err       error
	tmp       string
	downloads []string
}

func (f *fakeDL) Download(ctx context.Context, videoID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.downloads = append(f.downloads, videoID)
	path := filepath.Join(f.tmp, videoID+".mp3")
	if err := os.WriteFile(path, []byte("audio"), 0o600); err != nil {
		return "", err
	}
	return path, nil
}

func (f *fakeDL) Cleanup(path string) {
	if path != "" {
		_ = os.Remove(path)
	}
}

func createPending(t *testing.T, db *database.DB, direction models.Direction, artist, title string) *models.Track {
	t.Helper()
	track := &models.Track{
		Direction: direction,
		Status:    models.StatusPending,
		Title:     title,
	}
	if artist != "" {
		track.Artist = &artist
	}
	if err := db.CreateTrack(context.Background(), track); err != nil {
		t.Fatalf("create track: %v", err)
	}
	return track
}

// ── Push workers ──

func TestTgToYtSyncsPendingTrack(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	tg := &fakeTG{tmp: t.TempDir()}
	yt := &fakeYT{match: &ytmusic.Match{VideoID: "vid1", Title: "Song", Artist: "Artist"}}

	track := createPending(t, db, models.DirectionTgToYt, "Artist", "Song")

	processed, err := NewTgToYt(db, tg, yt).RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if processed != 1 {
		t.Errorf("processed = %d, want 1", processed)
	}
	if len(yt.added) != 1 || yt.added[0] != "vid1" {
		t.Errorf("added = %v", yt.added)
	}

	got, err := db.GetTrack(ctx, track.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusSynced {
		t.Errorf("status = %s, want synced", got.Status)
	}
	if got.YTVideoID == nil || *got.YTVideoID != "vid1" {
		t.Errorf("yt_video_id = %v", got.YTVideoID)
	}
	if got.SyncedAt == nil {
		t.Error("synced_at not set")
	}
	if got.IdentificationMethod == nil || *got.IdentificationMethod != models.MethodTgMetadata {
		t.Errorf("method = %v, want tg_metadata", got.IdentificationMethod)
	}
}

func TestTgToYtDuplicateSkipped(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	tg := &fakeTG{tmp: t.TempDir()}
	yt := &fakeYT{
		match:    &ytmusic.Match{VideoID: "vid1", Title: "Song"},
		playlist: []ytmusic.PlaylistEntry{{ItemID: "i1", VideoID: "vid1"}},
	}

	track := createPending(t, db, models.DirectionTgToYt, "Artist", "Song")

	processed, err := NewTgToYt(db, tg, yt).RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if processed != 1 {
		t.Errorf("processed = %d, want 1", processed)
	}
	if len(yt.added) != 0 {
		t.Errorf("added = %v, want none", yt.added)
	}

	got, _ := db.GetTrack(ctx, track.ID)
	if got.Status != models.StatusDuplicate {
		t.Errorf("status = %s, want duplicate", got.Status)
	}
	// The external id is recorded even for duplicates.
	if got.YTVideoID == nil || *got.YTVideoID != "vid1" {
		t.Errorf("yt_video_id = %v", got.YTVideoID)
	}
	if got.SyncedAt != nil {
		t.Error("synced_at set for duplicate")
	}
}

func TestTgToYtNoMatchFails(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	track := createPending(t, db, models.DirectionTgToYt, "Obscure", "Unknown")

	processed, err := NewTgToYt(db, &fakeTG{tmp: t.TempDir()}, &fakeYT{}).RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if processed != 1 {
		t.Errorf("processed = %d, want 1", processed)
	}

	got, _ := db.GetTrack(ctx, track.ID)
	if got.Status != models.StatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	if got.FailureReason == nil || *got.FailureReason != "no_yt_match" {
		t.Errorf("reason = %v", got.FailureReason)
	}
	if got.RetryCount != 1 {
		t.Errorf("retry_count = %d, want 1", got.RetryCount)
	}
}

func TestTgToYtAddFailureMarksUnexpected(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	track := createPending(t, db, models.DirectionTgToYt, "Artist", "Song")
	yt := &fakeYT{
		match:  &ytmusic.Match{VideoID: "vid1"},
		addErr: errors.New("quota exceeded"),
	}

	processed, err := NewTgToYt(db, &fakeTG{tmp: t.TempDir()}, yt).RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	// The failed track is not counted as processed.
	if processed != 0 {
		t.Errorf("processed = %d, want 0", processed)
	}

	got, _ := db.GetTrack(ctx, track.ID)
	if got.Status != models.StatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	if got.FailureReason == nil || *got.FailureReason != "unexpected_error" {
		t.Errorf("reason = %v", got.FailureReason)
	}

	logs, _ := db.GetLogsForTrack(ctx, track.ID, 10)
	found := false
	for _, entry := range logs {
		if entry.Event == models.EventSyncFailed {
			found = true
		}
	}
	if !found {
		t.Error("sync_failed log entry missing")
	}
}

func TestTgToSpSyncsPendingTrack(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	sp := &fakeSP{match: &spotify.Match{TrackID: "sp1", Title: "Song"}}

	track := createPending(t, db, models.DirectionTgToSp, "Artist", "Song")

	processed, err := NewTgToSp(db, &fakeTG{tmp: t.TempDir()}, sp).RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if processed != 1 {
		t.Errorf("processed = %d, want 1", processed)
	}
	if len(sp.added) != 1 || sp.added[0] != "sp1" {
		t.Errorf("added = %v", sp.added)
	}

	got, _ := db.GetTrack(ctx, track.ID)
	if got.Status != models.StatusSynced {
		t.Errorf("status = %s, want synced", got.Status)
	}
	if got.SPTrackID == nil || *got.SPTrackID != "sp1" {
		t.Errorf("sp_track_id = %v", got.SPTrackID)
	}
}

func TestYtToSpAndSpToYtPush(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	ytRow := createPending(t, db, models.DirectionYtToSp, "Artist", "From YouTube")
	spRow := createPending(t, db, models.DirectionSpToYt, "Artist", "From Spotify")

	sp := &fakeSP{match: &spotify.Match{TrackID: "sp9"}}
	if _, err := NewYtToSp(db, sp).RunCycle(ctx); err != nil {
		t.Fatalf("yt_to_sp: %v", err)
	}
	yt := &fakeYT{match: &ytmusic.Match{VideoID: "vid9"}}
	if _, err := NewSpToYt(db, yt).RunCycle(ctx); err != nil {
		t.Fatalf("sp_to_yt: %v", err)
	}

	gotYt, _ := db.GetTrack(ctx, ytRow.ID)
	if gotYt.Status != models.StatusSynced || gotYt.SPTrackID == nil {
		t.Errorf("yt_to_sp row = %s %v", gotYt.Status, gotYt.SPTrackID)
	}
	gotSp, _ := db.GetTrack(ctx, spRow.ID)
	if gotSp.Status != models.StatusSynced || gotSp.YTVideoID == nil {
		t.Errorf("sp_to_yt row = %s %v", gotSp.Status, gotSp.YTVideoID)
	}
}

// ── Pull workers ──

func TestYtToTgDiscoversAndTransfers(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	tg := &fakeTG{tmp: t.TempDir()}
	dl := &fakeDL{tmp: t.TempDir()}
	yt := &fakeYT{playlist: []ytmusic.PlaylistEntry{
		{ItemID: "i1", VideoID: "vid1", Title: "One", Artist: "A"},
		{ItemID: "i2", VideoID: "vid2", Title: "Two", Artist: "B"},
	}}

	w := NewYtToTg(db, tg, yt, dl)
	synced, err := w.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if synced != 2 {
		t.Errorf("synced = %d, want 2", synced)
	}
	if len(tg.uploads) != 2 {
		t.Fatalf("uploads = %d, want 2", len(tg.uploads))
	}
	if !strings.HasPrefix(tg.uploads[0].Caption, "Synced by Navaar | #") {
		t.Errorf("caption = %q", tg.uploads[0].Caption)
	}

	got, err := db.GetTrackByYTVideoID(ctx, "vid1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusSynced || got.TGMessageID == nil {
		t.Errorf("track = %s %v", got.Status, got.TGMessageID)
	}
	if got.IdentificationMethod == nil || *got.IdentificationMethod != models.MethodYtMetadata {
		t.Errorf("method = %v", got.IdentificationMethod)
	}

	// Second cycle: snapshot covers both videos, nothing new.
	synced, err = w.RunCycle(ctx)
	if err != nil {
		t.Fatalf("second RunCycle: %v", err)
	}
	if synced != 0 {
		t.Errorf("second cycle synced = %d, want 0", synced)
	}
	if len(tg.uploads) != 2 {
		t.Errorf("uploads after second cycle = %d, want 2", len(tg.uploads))
	}
}

func TestYtToTgDownloadFailure(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	yt := &fakeYT{playlist: []ytmusic.PlaylistEntry{{VideoID: "vid1", Title: "One"}}}
	dl := &fakeDL{err: errors.New("video unavailable")}

	synced, err := NewYtToTg(db, &fakeTG{tmp: t.TempDir()}, yt, dl).RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if synced != 0 {
		t.Errorf("synced = %d, want 0", synced)
	}

	got, err := db.GetTrackByYTVideoID(ctx, "vid1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	if got.FailureReason == nil || !strings.HasPrefix(*got.FailureReason, "download_failed:") {
		t.Errorf("reason = %v", got.FailureReason)
	}
	// The snapshot advances anyway; failed rows are retried explicitly, not
	// re-discovered.
	var snapshot []string
	if err := db.GetStateJSON(ctx, models.StateKeyYTSnapshot, &snapshot); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snapshot) != 1 || snapshot[0] != "vid1" {
		t.Errorf("snapshot = %v", snapshot)
	}
}

func TestYtToTgRetryPhase(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	tg := &fakeTG{tmp: t.TempDir()}
	dl := &fakeDL{tmp: t.TempDir()}

	track := &models.Track{
		Direction: models.DirectionYtToTg,
		Status:    models.StatusPending,
		Title:     "One",
		YTVideoID: strPtr("vid1"),
	}
	if err := db.CreateTrack(ctx, track); err != nil {
		t.Fatal(err)
	}
	if _, err := db.MarkFailed(ctx, track.ID, "upload_failed: timeout"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ResetForRetry(ctx, track.ID); err != nil {
		t.Fatal(err)
	}

	// Snapshot already contains the video, so only the retry phase acts.
	if err := db.SetStateJSON(ctx, models.StateKeyYTSnapshot, []string{"vid1"}); err != nil {
		t.Fatal(err)
	}

	yt := &fakeYT{playlist: []ytmusic.PlaylistEntry{{VideoID: "vid1", Title: "One"}}}
	synced, err := NewYtToTg(db, tg, yt, dl).RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if synced != 1 {
		t.Errorf("synced = %d, want 1", synced)
	}

	got, _ := db.GetTrack(ctx, track.ID)
	if got.Status != models.StatusSynced || got.TGMessageID == nil {
		t.Errorf("track = %s %v", got.Status, got.TGMessageID)
	}
	// Retry history is preserved.
	if got.RetryCount != 1 {
		t.Errorf("retry_count = %d, want 1", got.RetryCount)
	}
}

func TestSpToTgFanOut(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	tg := &fakeTG{tmp: t.TempDir()}
	dl := &fakeDL{tmp: t.TempDir()}
	sp := &fakeSP{playlist: []spotify.PlaylistEntry{{TrackID: "sp1", Title: "Song", Artist: "Artist"}}}
	yt := &fakeYT{match: &ytmusic.Match{VideoID: "vidX", Title: "Song"}}

	synced, err := NewSpToTg(db, tg, sp, yt, dl).RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if synced != 1 {
		t.Errorf("synced = %d, want 1", synced)
	}

	// The sp_to_tg row is synced to Telegram.
	main, err := db.GetTrackBySPTrackID(ctx, "sp1")
	if err != nil {
		t.Fatal(err)
	}
	// GetTrackBySPTrackID returns the newest row; both rows share the id, so
	// check both directions exist with the right states.
	tracks, err := db.GetRecentTracks(ctx, 10, "")
	if err != nil {
		t.Fatal(err)
	}
	var sawTg, sawYt bool
	for _, tr := range tracks {
		switch tr.Direction {
		case models.DirectionSpToTg:
			sawTg = true
			if tr.Status != models.StatusSynced || tr.TGMessageID == nil {
				t.Errorf("sp_to_tg row = %s %v", tr.Status, tr.TGMessageID)
			}
		case models.DirectionSpToYt:
			sawYt = true
			if tr.Status != models.StatusPending {
				t.Errorf("companion status = %s, want pending", tr.Status)
			}
		}
	}
	if !sawTg || !sawYt {
		t.Errorf("rows: sp_to_tg=%v sp_to_yt=%v (latest: %+v)", sawTg, sawYt, main)
	}
}

func TestSpToTgCarriesDuration(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	tg := &fakeTG{tmp: t.TempDir()}
	dl := &fakeDL{tmp: t.TempDir()}
	sp := &fakeSP{playlist: []spotify.PlaylistEntry{
		{TrackID: "sp1", Title: "Song", Artist: "Artist", DurationMS: 215000},
	}}
	yt := &fakeYT{match: &ytmusic.Match{VideoID: "vidX", Title: "Song"}}

	if _, err := NewSpToTg(db, tg, sp, yt, dl).RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if len(tg.uploads) != 1 {
		t.Fatalf("uploads = %d, want 1", len(tg.uploads))
	}
	if tg.uploads[0].Duration != 215 {
		t.Errorf("upload duration = %d, want 215", tg.uploads[0].Duration)
	}

	tracks, err := db.GetRecentTracks(ctx, 10, "")
	if err != nil {
		t.Fatal(err)
	}
	for _, tr := range tracks {
		// Both the sp_to_tg row and the fan-out companion keep the duration.
		if tr.DurationSeconds == nil || *tr.DurationSeconds != 215 {
			t.Errorf("%s duration_seconds = %v, want 215", tr.Direction, tr.DurationSeconds)
		}
	}
}

func TestSpToTgNoYtMatchForDownload(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	sp := &fakeSP{playlist: []spotify.PlaylistEntry{{TrackID: "sp1", Title: "Rare"}}}

	synced, err := NewSpToTg(db, &fakeTG{tmp: t.TempDir()}, sp, &fakeYT{}, &fakeDL{}).RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if synced != 0 {
		t.Errorf("synced = %d, want 0", synced)
	}

	tracks, _ := db.GetFailedTracks(ctx, models.DirectionSpToTg)
	if len(tracks) != 1 {
		t.Fatalf("failed tracks = %d, want 1", len(tracks))
	}
	if *tracks[0].FailureReason != "no_yt_match_for_download" {
		t.Errorf("reason = %q", *tracks[0].FailureReason)
	}
}

func TestSpToTgCrossServiceDedup(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// A previously synced row owns the Spotify id.
	prior := &models.Track{
		Direction: models.DirectionSpToTg,
		Status:    models.StatusPending,
		Title:     "Song",
		SPTrackID: strPtr("sp1"),
	}
	if err := db.CreateTrack(ctx, prior); err != nil {
		t.Fatal(err)
	}
	if _, err := db.MarkSynced(ctx, prior.ID, database.TrackUpdate{}); err != nil {
		t.Fatal(err)
	}

	tg := &fakeTG{tmp: t.TempDir()}
	sp := &fakeSP{playlist: []spotify.PlaylistEntry{{TrackID: "sp1", Title: "Song"}}}
	synced, err := NewSpToTg(db, tg, sp, &fakeYT{}, &fakeDL{}).RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	// The known id is skipped without creating rows or uploading.
	if synced != 1 {
		t.Errorf("synced = %d, want 1 (skip counts as processed)", synced)
	}
	if len(tg.uploads) != 0 {
		t.Errorf("uploads = %d, want 0", len(tg.uploads))
	}
	tracks, _ := db.GetRecentTracks(ctx, 10, "")
	if len(tracks) != 1 {
		t.Errorf("track rows = %d, want 1", len(tracks))
	}
}
