// Navaar - Telegram / YouTube Music / Spotify Playlist Synchronization
// Copyright 2026 Navaar Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/navaar/navaar

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/navaar/config.yaml",
	"/etc/navaar/config.yml",
}

// ConfigPathEnvVar overrides the config file search when set.
const ConfigPathEnvVar = "CONFIG_PATH"

// envPrefix is stripped from environment variables before path mapping:
// NAVAAR_TELEGRAM_BOT_TOKEN -> telegram.bot_token.
const envPrefix = "NAVAAR_"

// Load builds the configuration from layered sources:
//  1. built-in defaults
//  2. optional YAML config file
//  3. NAVAAR_-prefixed environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths lists config paths parsed as comma-separated slices when
// they arrive as env var strings.
var sliceConfigPaths = []string{
	"telegram.admin_user_ids",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields. Values that already arrived as slices (from YAML) are
// left alone.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps NAVAAR_-prefixed environment variable names to koanf
// config paths. Unmapped variables are skipped so unrelated environment
// noise cannot pollute the config.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))

	envMappings := map[string]string{
		"telegram_bot_token":      "telegram.bot_token",
		"telegram_channel_id":     "telegram.channel_id",
		"telegram_admin_user_ids": "telegram.admin_user_ids",

		"ytmusic_auth_file":     "ytmusic.auth_file",
		"ytmusic_playlist_id":   "ytmusic.playlist_id",
		"ytmusic_client_id":     "ytmusic.client_id",
		"ytmusic_client_secret": "ytmusic.client_secret",

		"spotify_client_id":     "spotify.client_id",
		"spotify_client_secret": "spotify.client_secret",
		"spotify_redirect_uri":  "spotify.redirect_uri",
		"spotify_playlist_id":   "spotify.playlist_id",
		"spotify_token_cache":   "spotify.token_cache",

		"ytdlp_cookies_file": "downloader.cookies_file",
		"ytdlp_work_dir":     "downloader.work_dir",

		"sync_interval_tg_to_yt": "sync.interval_tg_to_yt",
		"sync_interval_yt_to_tg": "sync.interval_yt_to_tg",
		"sync_interval_tg_to_sp": "sync.interval_tg_to_sp",
		"sync_interval_sp_to_tg": "sync.interval_sp_to_tg",
		"sync_interval_yt_to_sp": "sync.interval_yt_to_sp",
		"sync_interval_sp_to_yt": "sync.interval_sp_to_yt",
		"max_retries":            "sync.max_retries",

		"database_path":       "database.path",
		"database_max_memory": "database.max_memory",
		"database_threads":    "database.threads",

		"api_host":    "server.host",
		"api_port":    "server.port",
		"api_timeout": "server.timeout",

		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
