// Navaar - Telegram / YouTube Music / Spotify Playlist Synchronization
// Copyright 2026 Navaar Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/navaar/navaar

// Package config loads and validates Navaar's layered configuration:
// built-in defaults, an optional YAML file, and NAVAAR_-prefixed environment
// variables, in ascending precedence.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the Navaar service.
type Config struct {
	Telegram   TelegramConfig   `koanf:"telegram"`
	YTMusic    YTMusicConfig    `koanf:"ytmusic"`
	Spotify    SpotifyConfig    `koanf:"spotify"`
	Downloader DownloaderConfig `koanf:"downloader"`
	Sync       SyncConfig       `koanf:"sync"`
	Database   DatabaseConfig   `koanf:"database"`
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// TelegramConfig configures the Bot API client and channel discovery.
type TelegramConfig struct {
	BotToken string `koanf:"bot_token" validate:"required"`
	// ChannelID is the numeric id of the synced channel (negative for
	// channels and supergroups).
	ChannelID    int64   `koanf:"channel_id" validate:"required"`
	AdminUserIDs []int64 `koanf:"admin_user_ids"`
}

// YTMusicConfig configures the YouTube Data API client.
type YTMusicConfig struct {
	// AuthFile holds the OAuth token set; refreshed tokens are written
	// back to it.
	AuthFile     string `koanf:"auth_file" validate:"required"`
	PlaylistID   string `koanf:"playlist_id" validate:"required"`
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
}

// SpotifyConfig configures the optional Spotify Web API client.
// Spotify sync is enabled when both ClientID and PlaylistID are set.
type SpotifyConfig struct {
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
	RedirectURI  string `koanf:"redirect_uri"`
	PlaylistID   string `koanf:"playlist_id"`
	TokenCache   string `koanf:"token_cache"`
}

// Enabled reports whether the Spotify directions should run.
func (c SpotifyConfig) Enabled() bool {
	return c.ClientID != "" && c.PlaylistID != ""
}

// DownloaderConfig configures the yt-dlp audio downloader.
type DownloaderConfig struct {
	CookiesFile string `koanf:"cookies_file"`
	WorkDir     string `koanf:"work_dir"`
}

// SyncConfig holds per-direction cycle intervals and retry accounting.
type SyncConfig struct {
	IntervalTgToYt time.Duration `koanf:"interval_tg_to_yt" validate:"gt=0"`
	IntervalYtToTg time.Duration `koanf:"interval_yt_to_tg" validate:"gt=0"`
	IntervalTgToSp time.Duration `koanf:"interval_tg_to_sp" validate:"gt=0"`
	IntervalSpToTg time.Duration `koanf:"interval_sp_to_tg" validate:"gt=0"`
	IntervalYtToSp time.Duration `koanf:"interval_yt_to_sp" validate:"gt=0"`
	IntervalSpToYt time.Duration `koanf:"interval_sp_to_yt" validate:"gt=0"`
	MaxRetries     int           `koanf:"max_retries" validate:"gte=0"`
}

// DatabaseConfig configures the DuckDB store.
type DatabaseConfig struct {
	Path      string `koanf:"path" validate:"required"`
	MaxMemory string `koanf:"max_memory"`
	// Threads caps DuckDB worker threads; 0 means runtime.NumCPU().
	Threads int `koanf:"threads" validate:"gte=0"`
}

// ServerConfig configures the observability HTTP server.
type ServerConfig struct {
	Host    string        `koanf:"host" validate:"required"`
	Port    int           `koanf:"port" validate:"gt=0,lte=65535"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all defaults applied. Defaults are the
// lowest precedence layer; file and env values override them.
func defaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			BotToken:     "",
			ChannelID:    0,
			AdminUserIDs: []int64{},
		},
		YTMusic: YTMusicConfig{
			AuthFile:   "oauth.json",
			PlaylistID: "",
		},
		Spotify: SpotifyConfig{
			RedirectURI: "http://localhost:8888/callback",
			TokenCache:  "spotify_token.json",
		},
		Downloader: DownloaderConfig{
			CookiesFile: "",
			WorkDir:     "",
		},
		Sync: SyncConfig{
			IntervalTgToYt: 60 * time.Second,
			IntervalYtToTg: 120 * time.Second,
			IntervalTgToSp: 60 * time.Second,
			IntervalSpToTg: 120 * time.Second,
			IntervalYtToSp: 120 * time.Second,
			IntervalSpToYt: 120 * time.Second,
			MaxRetries:     3,
		},
		Database: DatabaseConfig{
			Path:      "navaar.duckdb",
			MaxMemory: "512MB",
			Threads:   0,
		},
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8080,
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks the configuration, combining struct-tag validation with
// cross-field rules that tags cannot express.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	// Spotify is all-or-nothing once enabled.
	if c.Spotify.Enabled() {
		if c.Spotify.ClientSecret == "" {
			return fmt.Errorf("config validation: spotify.client_secret required when spotify is enabled")
		}
		if c.Spotify.TokenCache == "" {
			return fmt.Errorf("config validation: spotify.token_cache required when spotify is enabled")
		}
	}

	return nil
}
