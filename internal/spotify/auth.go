// Navaar - Telegram / YouTube Music / Spotify Playlist Synchronization
// Copyright 2026 Navaar Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/navaar/navaar

package spotify

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"

	"github.com/navaar/navaar/internal/config"
	"github.com/navaar/navaar/internal/logging"
)

var spotifyEndpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.spotify.com/authorize",
	TokenURL: "https://accounts.spotify.com/api/token",
}

// scopes covers playlist read and write; the initial authorization grant
// must have been issued with at least these.
var scopes = []string{
	"playlist-read-private",
	"playlist-modify-public",
	"playlist-modify-private",
}

// persistingTokenSource writes refreshed tokens back to the cache file so
// restarts keep the rotated access token.
type persistingTokenSource struct {
	mu   sync.Mutex
	src  oauth2.TokenSource
	path string
	last *oauth2.Token
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tok, err := p.src.Token()
	if err != nil {
		return nil, err
	}
	if p.last == nil || tok.AccessToken != p.last.AccessToken {
		if err := saveToken(p.path, tok); err != nil {
			logging.Warn().Err(err).Str("path", p.path).Msg("Could not persist refreshed token")
		}
		p.last = tok
	}
	return tok, nil
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("spotify auth: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("spotify auth: parse %s: %w", path, err)
	}
	if tok.RefreshToken == "" && tok.AccessToken == "" {
		return nil, fmt.Errorf("spotify auth: %s holds no usable token; run the authorization flow first", path)
	}
	return &tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// AuthURL returns the URL a user must visit to grant playlist access. The
// resulting code is exchanged with ExchangeCode.
func AuthURL(cfg *config.SpotifyConfig, state string) string {
	oc := oauthConfig(cfg)
	return oc.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// ExchangeCode trades an authorization code for a token set and writes it
// to the token cache.
func ExchangeCode(ctx context.Context, cfg *config.SpotifyConfig, code string) error {
	oc := oauthConfig(cfg)
	tok, err := oc.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("spotify auth: exchange: %w", err)
	}
	return saveToken(cfg.TokenCache, tok)
}

func oauthConfig(cfg *config.SpotifyConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Endpoint:     spotifyEndpoint,
		Scopes:       scopes,
	}
}

func newHTTPClient(ctx context.Context, cfg *config.SpotifyConfig) (*http.Client, error) {
	tok, err := loadToken(cfg.TokenCache)
	if err != nil {
		return nil, err
	}

	src := &persistingTokenSource{
		src:  oauthConfig(cfg).TokenSource(ctx, tok),
		path: cfg.TokenCache,
		last: tok,
	}
	client := oauth2.NewClient(ctx, src)
	client.Timeout = 30 * time.Second
	return client, nil
}
