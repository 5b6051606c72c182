// Navaar - Telegram / YouTube Music / Spotify Playlist Synchronization
// Copyright 2026 Navaar Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/navaar/navaar

package ytmusic

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := newClientWithHTTP(srv.Client(), "PLTEST")
	c.SetAPIBase(srv.URL)
	return c
}

func TestFindBestMatchReturnsTopHit(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if got := q.Get("videoCategoryId"); got != "10" {
			t.Errorf("videoCategoryId = %q, want 10", got)
		}
		if got := q.Get("q"); got != "Queen Bohemian Rhapsody" {
			t.Errorf("q = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{
					"id":      map[string]any{"videoId": "vid1"},
					"snippet": map[string]any{"title": "Bohemian Rhapsody", "channelTitle": "Queen"},
				},
				{
					"id":      map[string]any{"videoId": "vid2"},
					"snippet": map[string]any{"title": "Cover", "channelTitle": "Someone"},
				},
			},
		})
	}))

	match, err := c.FindBestMatch(context.Background(), "Queen", "Bohemian Rhapsody")
	if err != nil {
		t.Fatalf("FindBestMatch: %v", err)
	}
	if match == nil {
		t.Fatal("no match returned")
	}
	if match.VideoID != "vid1" || match.Artist != "Queen" {
		t.Errorf("match = %+v", match)
	}
}

func TestFindBestMatchNoResults(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"items": []any{}})
	}))

	match, err := c.FindBestMatch(context.Background(), "", "nothing matches this")
	if err != nil {
		t.Fatalf("FindBestMatch: %v", err)
	}
	if match != nil {
		t.Errorf("match = %+v, want nil", match)
	}
}

func TestPlaylistTracksPagination(t *testing.T) {
	page := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/playlistItems" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("playlistId"); got != "PLTEST" {
			t.Errorf("playlistId = %q", got)
		}

		page++
		switch page {
		case 1:
			if tok := r.URL.Query().Get("pageToken"); tok != "" {
				t.Errorf("first page token = %q, want empty", tok)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"nextPageToken": "page2",
				"items": []map[string]any{
					{
						"id": "item1",
						"snippet": map[string]any{
							"title":                  "Track One",
							"videoOwnerChannelTitle": "Artist One",
							"resourceId":             map[string]any{"videoId": "v1"},
						},
					},
				},
			})
		case 2:
			if tok := r.URL.Query().Get("pageToken"); tok != "page2" {
				t.Errorf("second page token = %q, want page2", tok)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"items": []map[string]any{
					{
						"id": "item2",
						"snippet": map[string]any{
							"title":                  "Track Two",
							"videoOwnerChannelTitle": "Artist Two",
							"resourceId":             map[string]any{"videoId": "v2"},
						},
					},
				},
			})
		default:
			t.Errorf("unexpected third page request")
		}
	}))

	entries, err := c.PlaylistTracks(context.Background())
	if err != nil {
		t.Fatalf("PlaylistTracks: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].VideoID != "v1" || entries[1].ItemID != "item2" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestAddToPlaylistSendsResource(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/playlistItems" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var body playlistInsertRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.Snippet.PlaylistID != "PLTEST" {
			t.Errorf("playlistId = %q", body.Snippet.PlaylistID)
		}
		if body.Snippet.ResourceID.VideoID != "vidX" || body.Snippet.ResourceID.Kind != "youtube#video" {
			t.Errorf("resource = %+v", body.Snippet.ResourceID)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "newitem"})
	}))

	itemID, err := c.AddToPlaylist(context.Background(), "vidX")
	if err != nil {
		t.Fatalf("AddToPlaylist: %v", err)
	}
	if itemID != "newitem" {
		t.Errorf("item id = %q, want newitem", itemID)
	}
}

func TestAPIErrorSurfacesMessage(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 403, "message": "quotaExceeded"},
		})
	}))

	_, err := c.SearchSongs(context.Background(), "anything", 5)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "quotaExceeded") {
		t.Errorf("error = %v, want quotaExceeded detail", err)
	}
}

func TestDownloaderBuildArgs(t *testing.T) {
	d := &Downloader{binary: "yt-dlp", cookiesFile: "/tmp/cookies.txt"}
	args := d.buildArgs("vid123", "/tmp/out/%(title)s.%(ext)s")

	joined := strings.Join(args, " ")
	for _, want := range []string{
		"--extract-audio",
		"--audio-format mp3",
		"--audio-quality 0",
		"--no-playlist",
		"--cookies /tmp/cookies.txt",
		"https://music.youtube.com/watch?v=vid123",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %s", want, joined)
		}
	}

	d.cookiesFile = ""
	if joined := strings.Join(d.buildArgs("v", "o"), " "); strings.Contains(joined, "--cookies") {
		t.Errorf("cookies flag present without cookies file: %s", joined)
	}
}

func TestFindAudioFile(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"cover.jpg", "Track Title.mp3"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	path, err := findAudioFile(dir)
	if err != nil {
		t.Fatalf("findAudioFile: %v", err)
	}
	if filepath.Base(path) != "Track Title.mp3" {
		t.Errorf("path = %s", path)
	}

	if _, err := findAudioFile(t.TempDir()); err == nil {
		t.Error("expected error for empty dir")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "oauth.json")
	if err := os.WriteFile(path, []byte(`{"access_token":"at","refresh_token":"rt","token_type":"Bearer"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	tok, err := loadToken(path)
	if err != nil {
		t.Fatalf("loadToken: %v", err)
	}
	if tok.RefreshToken != "rt" {
		t.Errorf("refresh token = %q", tok.RefreshToken)
	}

	tok.AccessToken = "rotated"
	if err := saveToken(path, tok); err != nil {
		t.Fatalf("saveToken: %v", err)
	}
	again, err := loadToken(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.AccessToken != "rotated" {
		t.Errorf("access token = %q, want rotated", again.AccessToken)
	}
}

func TestLoadTokenRejectsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oauth.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := loadToken(path); err == nil {
		t.Error("expected error for token file without tokens")
	}
}
