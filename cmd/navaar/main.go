// Navaar - Telegram / YouTube Music / Spotify Playlist Synchronization
// Copyright 2026 Navaar Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/navaar/navaar

// Package main is the entry point for the Navaar daemon.
//
// Navaar keeps a Telegram channel, a YouTube Music playlist, and optionally
// a Spotify playlist in sync. Audio posted to the channel is matched and
// added to the playlists; tracks added to a playlist are downloaded and
// posted back to the channel.
//
// Startup order:
//
//  1. Configuration: defaults, optional YAML file, NAVAAR_ env vars (Koanf v2)
//  2. Logging and Prometheus metric registration
//  3. Database: DuckDB with versioned migrations
//  4. Service clients: Telegram Bot API, YouTube Data API, optional Spotify
//  5. Sync engine: one scheduled loop per enabled direction
//  6. Supervisor tree: sync, telegram, and api layers under one root
//
// Spotify directions run only when spotify.client_id and spotify.playlist_id
// are both configured.
//
// The daemon handles SIGINT and SIGTERM: loops finish their in-flight cycle,
// the HTTP server drains, and the process exits 0 once the tree has stopped.
package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/navaar/navaar/internal/api"
	"github.com/navaar/navaar/internal/config"
	"github.com/navaar/navaar/internal/database"
	"github.com/navaar/navaar/internal/logging"
	"github.com/navaar/navaar/internal/metrics"
	"github.com/navaar/navaar/internal/spotify"
	"github.com/navaar/navaar/internal/supervisor"
	"github.com/navaar/navaar/internal/sync"
	"github.com/navaar/navaar/internal/telegram"
	"github.com/navaar/navaar/internal/ytmusic"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	metrics.Init()

	logging.Info().
		Int64("channel_id", cfg.Telegram.ChannelID).
		Str("db_path", cfg.Database.Path).
		Bool("spotify_enabled", cfg.Spotify.Enabled()).
		Msg("Starting Navaar")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tgClient := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChannelID)

	ytClient, err := ytmusic.NewClient(ctx, &cfg.YTMusic)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize YouTube client")
	}
	downloader := ytmusic.NewDownloader(&cfg.Downloader)

	engine := sync.NewEngine(db)
	engine.Register(sync.NewTgToYt(db, tgClient, ytClient), cfg.Sync.IntervalTgToYt)
	engine.Register(sync.NewYtToTg(db, tgClient, ytClient, downloader), cfg.Sync.IntervalYtToTg)

	if cfg.Spotify.Enabled() {
		spClient, err := spotify.NewClient(ctx, &cfg.Spotify)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize Spotify client")
		}
		engine.Register(sync.NewTgToSp(db, tgClient, spClient), cfg.Sync.IntervalTgToSp)
		engine.Register(sync.NewSpToTg(db, tgClient, spClient, ytClient, downloader), cfg.Sync.IntervalSpToTg)
		engine.Register(sync.NewYtToSp(db, spClient), cfg.Sync.IntervalYtToSp)
		engine.Register(sync.NewSpToYt(db, ytClient), cfg.Sync.IntervalSpToYt)
	}

	bot := telegram.NewBot(tgClient, db, cfg)
	bot.SetSyncer(engine)
	bot.SetSearcher(ytSearcher{client: ytClient})

	server := api.NewServer(&cfg.Server, api.NewRouter(db))

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddSyncService(engine)
	tree.AddTelegramService(bot)
	tree.AddAPIService(server)

	logging.Info().
		Int("directions", len(engine.Directions())).
		Str("http_addr", cfg.Server.Host).
		Int("http_port", cfg.Server.Port).
		Msg("Supervisor tree starting")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Fatal().Err(err).Msg("Supervisor tree failed")
	}

	logging.Info().Msg("Navaar stopped")
}

// ytSearcher adapts the YouTube client to the bot's search interface.
type ytSearcher struct {
	client *ytmusic.Client
}

func (s ytSearcher) SearchSongs(ctx context.Context, query string, limit int) ([]telegram.SearchResult, error) {
	matches, err := s.client.SearchSongs(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	results := make([]telegram.SearchResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, telegram.SearchResult{
			VideoID: m.VideoID,
			Title:   m.Title,
			Artist:  m.Artist,
		})
	}
	return results, nil
}
