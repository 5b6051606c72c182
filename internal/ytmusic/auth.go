// Navaar - Telegram / YouTube Music / Spotify Playlist Synchronization
// Copyright 2026 Navaar Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/navaar/navaar

package ytmusic

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

// googleEndpoint is the OAuth2 endpoint for Google APIs. Spelled out here
// to avoid pulling in the full google API client stack.
var googleEndpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.google.com/o/oauth2/auth",
	TokenURL: "https://oauth2.googleapis.com/token",
}

// persistingTokenSource wraps an oauth2.TokenSource and writes every
// refreshed token back to the auth file, so restarts do not lose the
// rotated access token.
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
		} else {
			logging.Debug().Str("path", p.path).Msg("Refreshed token persisted")
		}
		p.last = tok
	}
	return tok, nil
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ytmusic auth: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("ytmusic auth: parse %s: %w", path, err)
	}
	if tok.RefreshToken == "" && tok.AccessToken == "" {
		return nil, fmt.Errorf("ytmusic auth: %s holds no usable token", path)
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

// newHTTPClient builds an authenticated HTTP client from the auth file.
// Tokens are refreshed transparently and persisted on rotation.
func newHTTPClient(ctx context.Context, cfg *config.YTMusicConfig) (*http.Client, error) {
	tok, err := loadToken(cfg.AuthFile)
	if err != nil {
		return nil, err
	}

	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     googleEndpoint,
		Scopes:       []string{"https://www.googleapis.com/auth/youtube"},
	}

	src := &persistingTokenSource{
		src:  oc.TokenSource(ctx, tok),
		path: cfg.AuthFile,
		last: tok,
	}
	client := oauth2.NewClient(ctx, src)
	client.Timeout = 30 * time.Second
	return client, nil
}
