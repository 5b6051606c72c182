// Navaar - Telegram / YouTube Music / Spotify Playlist Synchronization
// Copyright 2026 Navaar Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/navaar/navaar

package ytmusic

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/navaar/navaar/internal/config"
	"github.com/navaar/navaar/internal/logging"
	"github.com/navaar/navaar/internal/metrics"
)

// downloadTimeout bounds one yt-dlp run. Long tracks plus transcoding can
// legitimately take minutes.
const downloadTimeout = 10 * time.Minute

// Downloader shells out to yt-dlp to fetch a video's audio as mp3.
type Downloader struct {
	binary      string
	cookiesFile string
	workDir     string
}

// NewDownloader builds a Downloader from config. The yt-dlp binary must be
// on PATH.
func NewDownloader(cfg *config.DownloaderConfig) *Downloader {
	workDir := cfg.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &Downloader{
		binary:      "yt-dlp",
		cookiesFile: cfg.CookiesFile,
		workDir:     workDir,
	}
}

// Download fetches the audio of a video into a fresh per-download directory
// and returns the local mp3 path. The caller owns cleanup.
func (d *Downloader) Download(ctx context.Context, videoID string) (string, error) {
	destDir := filepath.Join(d.workDir, "navaar_dl_"+uuid.NewString())
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return "", fmt.Errorf("yt-dlp: %w", err)
	}

	outTmpl := filepath.Join(destDir, "%(title)s.%(ext)s")
	args := d.buildArgs(videoID, outTmpl)

	runCtx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(runCtx, d.binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		metrics.YTDownloads.WithLabelValues("failure").Inc()
		_ = os.RemoveAll(destDir)
		detail := strings.TrimSpace(string(output))
		if len(detail) > 300 {
			detail = detail[len(detail)-300:]
		}
		return "", fmt.Errorf("yt-dlp %s: %w: %s", videoID, err, detail)
	}

	path, err := findAudioFile(destDir)
	if err != nil {
		metrics.YTDownloads.WithLabelValues("failure").Inc()
		_ = os.RemoveAll(destDir)
		return "", err
	}

	metrics.YTDownloads.WithLabelValues("success").Inc()
	logging.Info().
		Str("video_id", videoID).
		Str("path", path).
		Dur("elapsed", time.Since(start)).
		Msg("Audio downloaded")
	return path, nil
}

func (d *Downloader) buildArgs(videoID, outTmpl string) []string {
	args := []string{
		"--extract-audio",
		"--audio-format", "mp3",
		"--audio-quality", "0",
		"--embed-thumbnail",
		"--add-metadata",
		"--no-playlist",
		"--quiet",
		"--output", outTmpl,
	}
	if d.cookiesFile != "" {
		args = append(args, "--cookies", d.cookiesFile)
	}
	return append(args, "https://music.youtube.com/watch?v="+videoID)
}

// findAudioFile locates the produced mp3. yt-dlp names the file after the
// video title, which is not known in advance.
func findAudioFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("yt-dlp: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".mp3") {
			return filepath.Join(dir, entry.Name()), nil
		}
	}
	return "", fmt.Errorf("yt-dlp: no audio file produced in %s", dir)
}

// Cleanup removes a downloaded file together with its per-download dir.
func (d *Downloader) Cleanup(filePath string) {
	if filePath == "" {
		return
	}
	dir := filepath.Dir(filePath)
	if strings.HasPrefix(filepath.Base(dir), "navaar_dl_") {
		if err := os.RemoveAll(dir); err != nil {
			logging.Debug().Err(err).Str("dir", dir).Msg("Download cleanup failed")
		}
		return
	}
	_ = os.Remove(filePath)
}
