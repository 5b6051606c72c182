// Navaar - Telegram / YouTube Music / Spotify Playlist Synchronization
// Copyright 2026 Navaar Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/navaar/navaar

// Package models defines the domain types shared across Navaar: sync
// directions, track lifecycle statuses, identification methods, event
// vocabulary, and the persisted record types.
package models
