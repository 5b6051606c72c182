// Navaar - Telegram / YouTube Music / Spotify Playlist Synchronization
// Copyright 2026 Navaar Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/navaar/navaar

package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/navaar/navaar/internal/config"
	"github.com/navaar/navaar/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	cfg := &config.DatabaseConfig{
		Path:      filepath.Join(t.TempDir(), "test.duckdb"),
		MaxMemory: "256MB",
		Threads:   2,
	}
	db, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close() error: %v", err)
		}
	})
	return db
}

func strPtr(s string) *string { return &s }
func i64Ptr(i int64) *int64   { return &i }

func TestMigrationsIdempotent(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Path:      filepath.Join(t.TempDir(), "migrate.duckdb"),
		MaxMemory: "256MB",
	}

	db, err := New(cfg)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}

	ctx := context.Background()
	v1, err := db.MigrationVersion(ctx)
	if err != nil {
		t.Fatalf("MigrationVersion: %v", err)
	}
	if v1 != 1 {
		t.Errorf("migration version = %d, want 1", v1)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reopening must not re-apply migrations or lose data.
	db2, err := New(cfg)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer db2.Close()

	v2, err := db2.MigrationVersion(ctx)
	if err != nil {
		t.Fatalf("MigrationVersion after reopen: %v", err)
	}
	if v2 != 1 {
		t.Errorf("migration version after reopen = %d, want 1", v2)
	}
}

func TestMigrationPreservesRows(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Path:      filepath.Join(t.TempDir(), "preserve.duckdb"),
		MaxMemory: "256MB",
	}
	db, err := New(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	ctx := context.Background()
	track := &models.Track{
		Direction:      models.DirectionTgToYt,
		Title:          "Kept Across Restarts",
		TGFileUniqueID: strPtr("uq-preserve"),
	}
	if err := db.CreateTrack(ctx, track); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db2, err := New(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()

	got, err := db2.GetTrack(ctx, track.ID)
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if got.Title != "Kept Across Restarts" {
		t.Errorf("title = %q after reopen", got.Title)
	}
}

func TestCreateAndGetTrack(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	track := &models.Track{
		Direction:      models.DirectionTgToYt,
		Artist:         strPtr("Queen"),
		Title:          "Bohemian Rhapsody",
		TGMessageID:    i64Ptr(100),
		TGFileID:       strPtr("file-abc"),
		TGFileUniqueID: strPtr("uq-abc"),
	}
	if err := db.CreateTrack(ctx, track); err != nil {
		t.Fatalf("create: %v", err)
	}
	if track.ID == 0 {
		t.Fatal("id not assigned")
	}
	if track.Status != models.StatusPending {
		t.Errorf("status = %q, want pending", track.Status)
	}

	got, err := db.GetTrack(ctx, track.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Bohemian Rhapsody" || *got.Artist != "Queen" {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.SyncedAt != nil {
		t.Error("synced_at set on a pending track")
	}

	byUnique, err := db.GetTrackByTGFileUniqueID(ctx, "uq-abc")
	if err != nil || byUnique.ID != track.ID {
		t.Errorf("lookup by file unique id: %v, %+v", err, byUnique)
	}
	byMsg, err := db.GetTrackByTGMessageID(ctx, 100)
	if err != nil || byMsg.ID != track.ID {
		t.Errorf("lookup by message id: %v, %+v", err, byMsg)
	}
}

func TestGetTrackNotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetTrack(context.Background(), 99999)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUniqueConstraints(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := &models.Track{
		Direction:      models.DirectionTgToYt,
		Title:          "Original",
		TGMessageID:    i64Ptr(200),
		TGFileUniqueID: strPtr("uq-dup"),
	}
	if err := db.CreateTrack(ctx, first); err != nil {
		t.Fatalf("create first: %v", err)
	}

	dup := &models.Track{
		Direction:      models.DirectionTgToYt,
		Title:          "Duplicate Unique ID",
		TGFileUniqueID: strPtr("uq-dup"),
	}
	if err := db.CreateTrack(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate tg_file_unique_id: err = %v, want ErrConflict", err)
	}

	dupMsg := &models.Track{
		Direction:   models.DirectionTgToYt,
		Title:       "Duplicate Message ID",
		TGMessageID: i64Ptr(200),
	}
	if err := db.CreateTrack(ctx, dupMsg); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate tg_message_id: err = %v, want ErrConflict", err)
	}
}

func TestMarkFailedBumpsRetryCount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	track := &models.Track{Direction: models.DirectionTgToYt, Title: "Flaky"}
	if err := db.CreateTrack(ctx, track); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := db.MarkFailed(ctx, track.ID, "no_yt_match")
	if err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if got.Status != models.StatusFailed || got.RetryCount != 1 {
		t.Errorf("after first failure: status=%q retry_count=%d", got.Status, got.RetryCount)
	}
	if got.FailureReason == nil || *got.FailureReason != "no_yt_match" {
		t.Errorf("failure_reason = %v", got.FailureReason)
	}

	// A second failed transition bumps again.
	if _, err := db.ResetForRetry(ctx, track.ID); err != nil {
		t.Fatalf("reset: %v", err)
	}
	got, err = db.MarkFailed(ctx, track.ID, "download_failed: timeout")
	if err != nil {
		t.Fatalf("mark failed again: %v", err)
	}
	if got.RetryCount != 2 {
		t.Errorf("retry_count = %d after second failure, want 2", got.RetryCount)
	}
}

func TestMarkSyncedSetsSyncedAt(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	track := &models.Track{Direction: models.DirectionTgToYt, Title: "Winner"}
	if err := db.CreateTrack(ctx, track); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := db.MarkSynced(ctx, track.ID, TrackUpdate{YTVideoID: strPtr("vid123")})
	if err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	if got.Status != models.StatusSynced {
		t.Errorf("status = %q, want synced", got.Status)
	}
	if got.SyncedAt == nil {
		t.Error("synced_at not set")
	}
	if got.YTVideoID == nil || *got.YTVideoID != "vid123" {
		t.Errorf("yt_video_id = %v", got.YTVideoID)
	}
}

func TestResetForRetryClearsReason(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	track := &models.Track{Direction: models.DirectionYtToTg, Title: "Retry Me"}
	if err := db.CreateTrack(ctx, track); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := db.MarkFailed(ctx, track.ID, "upload_failed: 500"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	got, err := db.ResetForRetry(ctx, track.ID)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if got.Status != models.StatusRetryScheduled {
		t.Errorf("status = %q, want retry_scheduled", got.Status)
	}
	if got.FailureReason != nil {
		t.Errorf("failure_reason not cleared: %v", *got.FailureReason)
	}
	if got.RetryCount != 1 {
		t.Errorf("retry_count = %d, reset must preserve it", got.RetryCount)
	}
}

func TestResetAllFailedSkipsDuplicates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	failed := &models.Track{Direction: models.DirectionTgToYt, Title: "Failed"}
	dup := &models.Track{Direction: models.DirectionTgToYt, Title: "Dup"}
	otherDir := &models.Track{Direction: models.DirectionYtToTg, Title: "Other"}
	for _, tr := range []*models.Track{failed, dup, otherDir} {
		if err := db.CreateTrack(ctx, tr); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if _, err := db.MarkFailed(ctx, failed.ID, "no_yt_match"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.MarkDuplicate(ctx, dup.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := db.MarkFailed(ctx, otherDir.ID, "upload_failed: x"); err != nil {
		t.Fatal(err)
	}

	n, err := db.ResetAllFailed(ctx, models.DirectionTgToYt)
	if err != nil {
		t.Fatalf("reset all: %v", err)
	}
	if n != 1 {
		t.Errorf("reset count = %d, want 1", n)
	}

	gotDup, _ := db.GetTrack(ctx, dup.ID)
	if gotDup.Status != models.StatusDuplicate {
		t.Errorf("duplicate track touched by reset: %q", gotDup.Status)
	}
	gotOther, _ := db.GetTrack(ctx, otherDir.ID)
	if gotOther.Status != models.StatusFailed {
		t.Errorf("other-direction track touched: %q", gotOther.Status)
	}

	// No direction filter resets the remaining failed track.
	n, err = db.ResetAllFailed(ctx, "")
	if err != nil {
		t.Fatalf("reset all (no filter): %v", err)
	}
	if n != 1 {
		t.Errorf("second reset count = %d, want 1", n)
	}
}

func TestGetPendingTracksOrderAndPredicate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	a := &models.Track{Direction: models.DirectionTgToYt, Title: "A"}
	b := &models.Track{Direction: models.DirectionTgToYt, Title: "B"}
	c := &models.Track{Direction: models.DirectionTgToYt, Title: "C"}
	d := &models.Track{Direction: models.DirectionYtToTg, Title: "D"}
	for _, tr := range []*models.Track{a, b, c, d} {
		if err := db.CreateTrack(ctx, tr); err != nil {
			t.Fatal(err)
		}
	}

	// b becomes retry_scheduled, c drops out of the pickup set.
	if _, err := db.MarkFailed(ctx, b.ID, "x"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ResetForRetry(ctx, b.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := db.MarkSynced(ctx, c.ID, TrackUpdate{}); err != nil {
		t.Fatal(err)
	}

	pending, err := db.GetPendingTracks(ctx, models.DirectionTgToYt)
	if err != nil {
		t.Fatalf("get pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending count = %d, want 2", len(pending))
	}
	if pending[0].ID != a.ID || pending[1].ID != b.ID {
		t.Errorf("pickup order = [%d %d], want ascending [%d %d]",
			pending[0].ID, pending[1].ID, a.ID, b.ID)
	}
}

func TestGetStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	tracks := make([]*models.Track, 4)
	for i := range tracks {
		tracks[i] = &models.Track{Direction: models.DirectionTgToYt, Title: "T"}
		if err := db.CreateTrack(ctx, tracks[i]); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := db.MarkSynced(ctx, tracks[0].ID, TrackUpdate{}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.MarkSynced(ctx, tracks[1].ID, TrackUpdate{}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.MarkFailed(ctx, tracks[2].ID, "x"); err != nil {
		t.Fatal(err)
	}

	stats, err := db.GetStats(ctx)
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if stats.Total != 4 || stats.Synced != 2 || stats.Failed != 1 || stats.Pending != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.SuccessRate != 50.0 {
		t.Errorf("success rate = %v, want 50.0", stats.SuccessRate)
	}
	if stats.ByDirection[models.DirectionTgToYt] != 2 {
		t.Errorf("tg_to_yt synced = %d, want 2", stats.ByDirection[models.DirectionTgToYt])
	}
}

func TestDeleteTrack(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	track := &models.Track{Direction: models.DirectionTgToYt, Title: "Doomed"}
	if err := db.CreateTrack(ctx, track); err != nil {
		t.Fatal(err)
	}

	deleted, err := db.DeleteTrack(ctx, track.ID)
	if err != nil || !deleted {
		t.Fatalf("delete: %v, deleted=%v", err, deleted)
	}
	deleted, err = db.DeleteTrack(ctx, track.ID)
	if err != nil || deleted {
		t.Errorf("second delete: %v, deleted=%v, want false", err, deleted)
	}
}

func TestStateStoreRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := db.GetState(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing key: err = %v, want ErrNotFound", err)
	}

	if err := db.SetState(ctx, "k", "v1"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetState(ctx, "k", "v2"); err != nil {
		t.Fatal(err)
	}
	got, err := db.GetState(ctx, "k")
	if err != nil || got != "v2" {
		t.Errorf("GetState = %q, %v, want v2 (last writer wins)", got, err)
	}

	entries, err := db.ListState(ctx)
	if err != nil || len(entries) != 1 {
		t.Fatalf("ListState = %v, %v, want one entry", entries, err)
	}
	if entries[0].UpdatedAt.IsZero() {
		t.Error("updated_at not set by upsert")
	}
}

func TestStateStoreJSONSnapshot(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	snapshot := []string{"vid1", "vid2", "vid3"}
	if err := db.SetStateJSON(ctx, models.StateKeyYTSnapshot, snapshot); err != nil {
		t.Fatal(err)
	}

	var got []string
	if err := db.GetStateJSON(ctx, models.StateKeyYTSnapshot, &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0] != "vid1" || got[2] != "vid3" {
		t.Errorf("snapshot round trip = %v", got)
	}
}

func TestSyncLogAppendAndQuery(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	track := &models.Track{Direction: models.DirectionTgToYt, Title: "Logged"}
	if err := db.CreateTrack(ctx, track); err != nil {
		t.Fatal(err)
	}

	dir := models.DirectionTgToYt
	if _, err := db.AppendLog(ctx, models.EventTrackDiscovered, &track.ID, &dir, map[string]any{"title": "Logged"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := db.AppendLog(ctx, models.EventTrackSynced, &track.ID, &dir, nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := db.AppendLog(ctx, models.EventSyncFailed, nil, nil, nil); err != nil {
		t.Fatalf("append without track: %v", err)
	}

	forTrack, err := db.GetLogsForTrack(ctx, track.ID, 10)
	if err != nil {
		t.Fatalf("for track: %v", err)
	}
	if len(forTrack) != 2 {
		t.Fatalf("track logs = %d, want 2", len(forTrack))
	}
	// Newest first.
	if forTrack[0].Event != models.EventTrackSynced {
		t.Errorf("first log event = %q, want track_synced", forTrack[0].Event)
	}

	recent, err := db.GetRecentLogs(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 3 {
		t.Errorf("recent logs = %d, want 3", len(recent))
	}
}

func TestLogSurvivesTrackDeletion(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	track := &models.Track{Direction: models.DirectionTgToYt, Title: "Ephemeral"}
	if err := db.CreateTrack(ctx, track); err != nil {
		t.Fatal(err)
	}
	dir := models.DirectionTgToYt
	if _, err := db.AppendLog(ctx, models.EventTrackDiscovered, &track.ID, &dir, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := db.DeleteTrack(ctx, track.ID); err != nil {
		t.Fatal(err)
	}

	logs, err := db.GetLogsForTrack(ctx, track.ID, 10)
	if err != nil {
		t.Fatalf("logs after deletion: %v", err)
	}
	if len(logs) != 1 {
		t.Errorf("log count after track deletion = %d, want 1", len(logs))
	}
}
