// Navaar - Telegram / YouTube Music / Spotify Playlist Synchronization
// Copyright 2026 Navaar Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/navaar/navaar

// Package identify determines a track's (artist, title) pair from the best
// available evidence: embedded audio tags, caller-provided metadata, or the
// filename. The pipeline is pure; it never touches the store.
package identify

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dhowden/tag"

	"github.com/navaar/navaar/internal/logging"
	"github.com/navaar/navaar/internal/models"
)

// Info is the result of a successful identification. Artist may be nil;
// Title is always non-empty.
type Info struct {
	Artist *string
	Title  string
	Method models.Method
}

// Input carries the evidence available for one track. All fields are
// optional; the pipeline tries them in order.
type Input struct {
	// FilePath points at a local audio file whose embedded tags are read
	// first.
	FilePath string

	// Artist and Title are caller-provided metadata (Telegram audio
	// performer/title, or YT/SP playlist metadata). Method names their
	// origin and defaults to tg_metadata.
	Artist string
	Title  string
	Method models.Method

	// FileName feeds the filename fallback; typically the original
	// attachment name or the downloaded file path.
	FileName string
}

var (
	separators   = regexp.MustCompile(`\s*[-–—]\s*`)
	officialTag  = regexp.MustCompile(`(?i)\(Official.*?\)`)
	bracketedTag = regexp.MustCompile(`\[.*?\]`)
)

// Identify runs the pipeline: embedded tags, then provided metadata, then
// filename. Returns nil when nothing yields a title.
func Identify(in Input) *Info {
	if in.FilePath != "" {
		if info := fromTags(in.FilePath); info != nil {
			logInfo(info)
			return info
		}
	}

	if in.Title != "" {
		method := in.Method
		if method == "" {
			method = models.MethodTgMetadata
		}
		info := &Info{Title: in.Title, Method: method}
		if in.Artist != "" {
			a := in.Artist
			info.Artist = &a
		}
		logInfo(info)
		return info
	}

	if info := fromFilename(in.FileName); info != nil {
		logInfo(info)
		return info
	}

	logging.Warn().Str("file_name", in.FileName).Msg("Track identification failed")
	return nil
}

// fromTags reads embedded metadata (ID3, MP4, Vorbis) from a local file.
// Any parse failure falls through to the next pipeline stage.
func fromTags(path string) *Info {
	f, err := os.Open(path)
	if err != nil {
		logging.Debug().Err(err).Str("path", path).Msg("Tag read skipped")
		return nil
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		logging.Debug().Err(err).Str("path", path).Msg("Tag parse failed")
		return nil
	}

	title := strings.TrimSpace(m.Title())
	if title == "" {
		return nil
	}

	info := &Info{Title: title, Method: models.MethodID3}
	if artist := strings.TrimSpace(m.Artist()); artist != "" {
		info.Artist = &artist
	}
	return info
}

// fromFilename parses "Artist - Title" style names. The extension,
// "(Official ...)" parentheticals, and "[...]" segments are stripped before
// splitting once on a dash separator. A stem without a separator becomes a
// bare title.
func fromFilename(name string) *Info {
	if name == "" {
		return nil
	}

	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	stem = strings.TrimSpace(officialTag.ReplaceAllString(stem, ""))
	stem = strings.TrimSpace(bracketedTag.ReplaceAllString(stem, ""))

	parts := separators.Split(stem, 2)
	if len(parts) == 2 {
		artist := strings.TrimSpace(parts[0])
		title := strings.TrimSpace(parts[1])
		if artist != "" && title != "" {
			return &Info{Artist: &artist, Title: title, Method: models.MethodFilename}
		}
	}

	if stem != "" {
		return &Info{Title: stem, Method: models.MethodFilename}
	}
	return nil
}

func logInfo(info *Info) {
	evt := logging.Info().Str("method", info.Method.String()).Str("title", info.Title)
	if info.Artist != nil {
		evt = evt.Str("artist", *info.Artist)
	}
	evt.Msg("Track identified")
}
