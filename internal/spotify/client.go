// Navaar - Telegram / YouTube Music / Spotify Playlist Synchronization
// Copyright 2026 Navaar Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/navaar/navaar

// Package spotify talks to the Spotify Web API for track search and
// playlist manipulation. The package is optional at runtime; the engine
// only builds a client when Spotify credentials are configured.
package spotify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/navaar/navaar/internal/config"
	"github.com/navaar/navaar/internal/logging"
	"github.com/navaar/navaar/internal/metrics"
	"github.com/navaar/navaar/internal/resilience"
)

const defaultAPIBase = "https://api.spotify.com/v1"

// Match is a track search hit.
type Match struct {
	TrackID    string
	Title      string
	Artist     string
	DurationMS int64
}

// PlaylistEntry is one item of the synced playlist.
type PlaylistEntry struct {
	TrackID    string
	Title      string
	Artist     string
	DurationMS int64
}

// Client is the Spotify Web API client scoped to one playlist.
type Client struct {
	http       *http.Client
	apiBase    string
	playlistID string
	cb         *gobreaker.CircuitBreaker[any]
	retry      resilience.Policy
}

// NewClient builds an authenticated client from the token cache file.
func NewClient(ctx context.Context, cfg *config.SpotifyConfig) (*Client, error) {
	hc, err := newHTTPClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newClientWithHTTP(hc, cfg.PlaylistID), nil
}

func newClientWithHTTP(hc *http.Client, playlistID string) *Client {
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "spotify-api",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("Circuit breaker state change")
		},
	})
	return &Client{
		http:       hc,
		apiBase:    defaultAPIBase,
		playlistID: playlistID,
		cb:         cb,
		retry:      resilience.DefaultPolicy(),
	}
}

// SetAPIBase overrides the API base URL. Used by tests.
func (c *Client) SetAPIBase(base string) {
	c.apiBase = strings.TrimRight(base, "/")
}

// PlaylistID returns the playlist this client is scoped to.
func (c *Client) PlaylistID() string {
	return c.playlistID
}

type apiError struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, dest any) error {
	_, err := c.cb.Execute(func() (any, error) {
		// Writes are not retried: a timed-out add may still have landed
		// and would duplicate the playlist entry.
		if method != http.MethodGet {
			return nil, c.doOnce(ctx, method, path, query, body, dest)
		}
		return nil, resilience.Retry(ctx, c.retry, "spotify "+path, func() error {
			return c.doOnce(ctx, method, path, query, body, dest)
		})
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("spotify api unavailable: %w", err)
	}
	return err
}

func (c *Client) doOnce(ctx context.Context, method, path string, query url.Values, body, dest any) error {
	endpoint := c.apiBase + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("spotify %s: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("spotify %s: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("spotify %s: %w", path, err)
	}
	defer resp.Body.Close()

	// 429 carries Retry-After; surface it so callers can log the backoff.
	// Rate limits wait for the next cycle rather than the in-call retry.
	if resp.StatusCode == http.StatusTooManyRequests {
		return resilience.Permanent(fmt.Errorf("spotify %s: rate limited, retry after %s", path, resp.Header.Get("Retry-After")))
	}
	if resp.StatusCode >= 400 {
		var apiErr error
		var ae apiError
		if derr := json.NewDecoder(resp.Body).Decode(&ae); derr == nil && ae.Error.Message != "" {
			apiErr = fmt.Errorf("spotify %s: api error %d: %s", path, ae.Error.Status, ae.Error.Message)
		} else {
			apiErr = fmt.Errorf("spotify %s: unexpected status %d", path, resp.StatusCode)
		}
		// Client errors will not succeed on an immediate second attempt.
		if resp.StatusCode < 500 {
			return resilience.Permanent(apiErr)
		}
		return apiErr
	}

	if dest != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return fmt.Errorf("spotify %s: decode response: %w", path, err)
		}
	}
	return nil
}

type trackObject struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
	DurationMS int64 `json:"duration_ms"`
}

func (t trackObject) artistName() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0].Name
}

type searchResponse struct {
	Tracks struct {
		Items []trackObject `json:"items"`
	} `json:"tracks"`
}

// SearchTracks searches tracks for a free-text query.
func (c *Client) SearchTracks(ctx context.Context, query string, limit int) ([]Match, error) {
	if limit <= 0 || limit > 50 {
		limit = 5
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("type", "track")
	params.Set("limit", strconv.Itoa(limit))

	start := time.Now()
	var resp searchResponse
	err := c.do(ctx, http.MethodGet, "/search", params, nil, &resp)
	metrics.SPSearchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(resp.Tracks.Items))
	for _, item := range resp.Tracks.Items {
		if item.ID == "" {
			continue
		}
		matches = append(matches, Match{
			TrackID:    item.ID,
			Title:      item.Name,
			Artist:     item.artistName(),
			DurationMS: item.DurationMS,
		})
	}
	return matches, nil
}

// FindBestMatch searches for a track and returns the top hit, or nil when
// nothing matches.
func (c *Client) FindBestMatch(ctx context.Context, artist, title string) (*Match, error) {
	query := title
	if artist != "" {
		query = artist + " " + title
	}

	matches, err := c.SearchTracks(ctx, query, 5)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		metrics.SPSearches.WithLabelValues("not_found").Inc()
		logging.Info().Str("query", query).Msg("No Spotify match")
		return nil, nil
	}

	metrics.SPSearches.WithLabelValues("found").Inc()
	best := matches[0]
	logging.Info().
		Str("query", query).
		Str("track_id", best.TrackID).
		Str("match_title", best.Title).
		Msg("Spotify match found")
	return &best, nil
}

type playlistItemsResponse struct {
	Items []struct {
		Track *trackObject `json:"track"`
	} `json:"items"`
	Next string `json:"next"`
}

// PlaylistTracks pages through the full playlist, 100 items per request.
func (c *Client) PlaylistTracks(ctx context.Context) ([]PlaylistEntry, error) {
	var entries []PlaylistEntry
	offset := 0
	for {
		params := url.Values{}
		params.Set("limit", "100")
		params.Set("offset", strconv.Itoa(offset))
		params.Set("fields", "next,items(track(id,name,artists(name),duration_ms))")

		var resp playlistItemsResponse
		path := "/playlists/" + c.playlistID + "/tracks"
		if err := c.do(ctx, http.MethodGet, path, params, nil, &resp); err != nil {
			return nil, err
		}

		for _, item := range resp.Items {
			// Local files and removed tracks come back with a null track.
			if item.Track == nil || item.Track.ID == "" {
				continue
			}
			entries = append(entries, PlaylistEntry{
				TrackID:    item.Track.ID,
				Title:      item.Track.Name,
				Artist:     item.Track.artistName(),
				DurationMS: item.Track.DurationMS,
			})
		}

		if resp.Next == "" || len(resp.Items) == 0 {
			return entries, nil
		}
		offset += len(resp.Items)
	}
}

type addTracksRequest struct {
	URIs []string `json:"uris"`
}

type addTracksResponse struct {
	SnapshotID string `json:"snapshot_id"`
}

// AddToPlaylist appends a track to the playlist.
func (c *Client) AddToPlaylist(ctx context.Context, trackID string) error {
	body := addTracksRequest{URIs: []string{"spotify:track:" + trackID}}

	var resp addTracksResponse
	path := "/playlists/" + c.playlistID + "/tracks"
	if err := c.do(ctx, http.MethodPost, path, nil, body, &resp); err != nil {
		return err
	}

	logging.Info().
		Str("track_id", trackID).
		Str("playlist_id", c.playlistID).
		Msg("Added to Spotify playlist")
	return nil
}
