// Navaar - Telegram / YouTube Music / Spotify Playlist Synchronization
// Copyright 2026 Navaar Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/navaar/navaar

// Package ytmusic talks to the YouTube Data API v3 for music search and
// playlist manipulation, and shells out to yt-dlp for audio downloads.
// API calls run behind a circuit breaker so a YouTube outage degrades a
// single sync direction instead of hammering the quota.
package ytmusic

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

const defaultAPIBase = "https://www.googleapis.com/youtube/v3"

// musicCategoryID is YouTube's category for music videos; search is
// restricted to it so covers and podcasts rank below actual tracks.
const musicCategoryID = "10"

// Match is a search hit.
type Match struct {
	VideoID string
	Title   string
	Artist  string
}

// PlaylistEntry is one item of the synced playlist. ItemID is the playlist
// item id (needed for removal), VideoID the underlying video.
type PlaylistEntry struct {
	ItemID  string
	VideoID string
	Title   string
	Artist  string
}

// Client is the YouTube Data API client scoped to one playlist.
type Client struct {
	http       *http.Client
	apiBase    string
	playlistID string
	cb         *gobreaker.CircuitBreaker[any]
	retry      resilience.Policy
}

// NewClient builds an authenticated client from the OAuth auth file.
func NewClient(ctx context.Context, cfg *config.YTMusicConfig) (*Client, error) {
	hc, err := newHTTPClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newClientWithHTTP(hc, cfg.PlaylistID), nil
}

func newClientWithHTTP(hc *http.Client, playlistID string) *Client {
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "youtube-api",
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
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, dest any) error {
	_, err := c.cb.Execute(func() (any, error) {
		// Writes are not retried: a timed-out insert may still have landed
		// and would duplicate the playlist entry.
		if method != http.MethodGet {
			return nil, c.doOnce(ctx, method, path, query, body, dest)
		}
		return nil, resilience.Retry(ctx, c.retry, "youtube "+path, func() error {
			return c.doOnce(ctx, method, path, query, body, dest)
		})
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("youtube api unavailable: %w", err)
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
			return fmt.Errorf("youtube %s: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("youtube %s: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("youtube %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr error
		var ae apiError
		if derr := json.NewDecoder(resp.Body).Decode(&ae); derr == nil && ae.Error.Message != "" {
			apiErr = fmt.Errorf("youtube %s: api error %d: %s", path, ae.Error.Code, ae.Error.Message)
		} else {
			apiErr = fmt.Errorf("youtube %s: unexpected status %d", path, resp.StatusCode)
		}
		// Client errors will not succeed on an immediate second attempt;
		// quota and rate-limit responses wait for the next cycle instead.
		if resp.StatusCode < 500 {
			return resilience.Permanent(apiErr)
		}
		return apiErr
	}

	if dest != nil {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return fmt.Errorf("youtube %s: decode response: %w", path, err)
		}
	}
	return nil
}

type searchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title        string `json:"title"`
			ChannelTitle string `json:"channelTitle"`
		} `json:"snippet"`
	} `json:"items"`
}

// SearchSongs searches music videos for a free-text query.
func (c *Client) SearchSongs(ctx context.Context, query string, limit int) ([]Match, error) {
	if limit <= 0 || limit > 25 {
		limit = 5
	}
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("q", query)
	params.Set("type", "video")
	params.Set("videoCategoryId", musicCategoryID)
	params.Set("maxResults", strconv.Itoa(limit))

	start := time.Now()
	var resp searchResponse
	err := c.do(ctx, http.MethodGet, "/search", params, nil, &resp)
	metrics.YTSearchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.ID.VideoID == "" {
			continue
		}
		matches = append(matches, Match{
			VideoID: item.ID.VideoID,
			Title:   item.Snippet.Title,
			Artist:  item.Snippet.ChannelTitle,
		})
	}
	return matches, nil
}

// FindBestMatch searches for a track and returns the top hit, or nil when
// nothing matches. Search outcome metrics are recorded here so every sync
// direction counts consistently.
func (c *Client) FindBestMatch(ctx context.Context, artist, title string) (*Match, error) {
	query := title
	if artist != "" {
		query = artist + " " + title
	}

	matches, err := c.SearchSongs(ctx, query, 5)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		metrics.YTSearches.WithLabelValues("not_found").Inc()
		logging.Info().Str("query", query).Msg("No YouTube Music match")
		return nil, nil
	}

	metrics.YTSearches.WithLabelValues("found").Inc()
	best := matches[0]
	logging.Info().
		Str("query", query).
		Str("video_id", best.VideoID).
		Str("match_title", best.Title).
		Msg("YouTube Music match found")
	return &best, nil
}

type playlistItemsResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title                  string `json:"title"`
			VideoOwnerChannelTitle string `json:"videoOwnerChannelTitle"`
			ResourceID             struct {
				VideoID string `json:"videoId"`
			} `json:"resourceId"`
		} `json:"snippet"`
	} `json:"items"`
}

// PlaylistTracks pages through the full playlist, 50 items per request.
func (c *Client) PlaylistTracks(ctx context.Context) ([]PlaylistEntry, error) {
	var entries []PlaylistEntry
	pageToken := ""
	for {
		params := url.Values{}
		params.Set("part", "snippet")
		params.Set("playlistId", c.playlistID)
		params.Set("maxResults", "50")
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var resp playlistItemsResponse
		if err := c.do(ctx, http.MethodGet, "/playlistItems", params, nil, &resp); err != nil {
			return nil, err
		}

		for _, item := range resp.Items {
			entries = append(entries, PlaylistEntry{
				ItemID:  item.ID,
				VideoID: item.Snippet.ResourceID.VideoID,
				Title:   item.Snippet.Title,
				Artist:  item.Snippet.VideoOwnerChannelTitle,
			})
		}

		if resp.NextPageToken == "" {
			return entries, nil
		}
		pageToken = resp.NextPageToken
	}
}

type playlistInsertRequest struct {
	Snippet struct {
		PlaylistID string `json:"playlistId"`
		ResourceID struct {
			Kind    string `json:"kind"`
			VideoID string `json:"videoId"`
		} `json:"resourceId"`
	} `json:"snippet"`
}

type playlistInsertResponse struct {
	ID string `json:"id"`
}

// AddToPlaylist appends a video and returns the new playlist item id.
func (c *Client) AddToPlaylist(ctx context.Context, videoID string) (string, error) {
	params := url.Values{}
	params.Set("part", "snippet")

	var body playlistInsertRequest
	body.Snippet.PlaylistID = c.playlistID
	body.Snippet.ResourceID.Kind = "youtube#video"
	body.Snippet.ResourceID.VideoID = videoID

	var resp playlistInsertResponse
	if err := c.do(ctx, http.MethodPost, "/playlistItems", params, body, &resp); err != nil {
		return "", err
	}

	logging.Info().
		Str("video_id", videoID).
		Str("item_id", resp.ID).
		Str("playlist_id", c.playlistID).
		Msg("Added to YouTube playlist")
	return resp.ID, nil
}
