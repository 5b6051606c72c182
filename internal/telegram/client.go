// Navaar - Telegram / YouTube Music / Spotify Playlist Synchronization
// Copyright 2026 Navaar Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/navaar/navaar

// Package telegram provides the Bot API client and the channel discovery
// bot. The client handles file transfer and messaging; the bot runs the
// getUpdates loop, discovers channel audio, and serves admin commands.
package telegram

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/navaar/navaar/internal/logging"
	"github.com/navaar/navaar/internal/metrics"
	"github.com/navaar/navaar/internal/resilience"
)

const defaultAPIBase = "https://api.telegram.org"

// uploadTimeout is generous because audio uploads of several minutes of
// content over slow links are normal.
const uploadTimeout = 5 * time.Minute

// Client is a Telegram Bot API client scoped to one bot token and one
// channel. All calls go through a client-side rate limiter; the Bot API
// allows roughly 30 messages per second overall.
type Client struct {
	token     string
	channelID int64
	apiBase   string
	http      *http.Client
	uploads   *http.Client
	limiter   *rate.Limiter
	retry     resilience.Policy
}

// NewClient creates a Bot API client for the given token and channel.
func NewClient(token string, channelID int64) *Client {
	return &Client{
		token:     token,
		channelID: channelID,
		apiBase:   defaultAPIBase,
		http:      &http.Client{Timeout: 2 * time.Minute},
		uploads:   &http.Client{Timeout: uploadTimeout},
		limiter:   rate.NewLimiter(rate.Limit(25), 5),
		retry:     resilience.DefaultPolicy(),
	}
}

// SetAPIBase overrides the Bot API base URL. Used by tests.
func (c *Client) SetAPIBase(base string) {
	c.apiBase = strings.TrimRight(base, "/")
}

// ChannelID returns the channel this client is scoped to.
func (c *Client) ChannelID() int64 {
	return c.channelID
}

// call performs one Bot API method with form-encoded parameters and decodes
// the result envelope into dest (which may be nil).
func (c *Client) call(ctx context.Context, method string, params url.Values, dest any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", c.apiBase, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	return decodeEnvelope(method, resp.Body, dest)
}

func decodeEnvelope(method string, body io.Reader, dest any) error {
	var envelope apiResponse
	if err := json.NewDecoder(body).Decode(&envelope); err != nil {
		return fmt.Errorf("telegram %s: decode response: %w", method, err)
	}
	if !envelope.OK {
		return fmt.Errorf("telegram %s: api error %d: %s", method, envelope.ErrorCode, envelope.Description)
	}
	if dest != nil {
		if err := json.Unmarshal(envelope.Result, dest); err != nil {
			return fmt.Errorf("telegram %s: decode result: %w", method, err)
		}
	}
	return nil
}

// GetMe returns the bot's own account, used to filter self-posts during
// channel discovery.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var user User
	if err := c.call(ctx, "getMe", url.Values{}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUpdates long-polls for updates after offset. timeout is the server-side
// hold in seconds.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	params := url.Values{}
	params.Set("offset", strconv.FormatInt(offset, 10))
	params.Set("timeout", strconv.Itoa(timeout))
	params.Set("allowed_updates", `["message","channel_post"]`)

	var updates []Update
	if err := c.call(ctx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// DownloadFile fetches a file by id into a fresh temp directory and returns
// the local path. Transient failures are retried with bounded backoff.
func (c *Client) DownloadFile(ctx context.Context, fileID string) (string, error) {
	destDir, err := os.MkdirTemp("", "navaar_tg_")
	if err != nil {
		return "", fmt.Errorf("telegram download: %w", err)
	}

	var localPath string
	err = resilience.Retry(ctx, c.retry, "telegram download", func() error {
		p, derr := c.downloadOnce(ctx, fileID, destDir)
		if derr != nil {
			return derr
		}
		localPath = p
		return nil
	})
	if err != nil {
		// Nothing useful survives a failed download; drop the dir too.
		if rerr := os.RemoveAll(destDir); rerr != nil {
			logging.Debug().Err(rerr).Str("dir", destDir).Msg("Cleanup failed")
		}
		metrics.TGDownloads.WithLabelValues("failure").Inc()
		return "", err
	}

	metrics.TGDownloads.WithLabelValues("success").Inc()
	logging.Info().Str("file_id", fileID).Str("path", localPath).Msg("Telegram file downloaded")
	return localPath, nil
}

func (c *Client) downloadOnce(ctx context.Context, fileID, destDir string) (string, error) {
	var file File
	params := url.Values{}
	params.Set("file_id", fileID)
	if err := c.call(ctx, "getFile", params, &file); err != nil {
		return "", err
	}

	fileName := fileID + ".mp3"
	if file.FilePath != "" {
		fileName = path.Base(file.FilePath)
	}
	localPath := filepath.Join(destDir, fileName)

	fileURL := fmt.Sprintf("%s/file/bot%s/%s", c.apiBase, c.token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return "", fmt.Errorf("telegram download: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("telegram download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("telegram download: unexpected status %d", resp.StatusCode)
	}

	out, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("telegram download: %w", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return "", fmt.Errorf("telegram download: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("telegram download: %w", err)
	}
	return localPath, nil
}

// AudioUpload describes one sendAudio call.
type AudioUpload struct {
	Path      string
	Title     string
	Performer string
	Duration  int64
	Caption   string
}

// SendAudio uploads an audio file to the channel and returns the new message
// id. Not retried: a timeout usually means the upload already landed, and a
// second attempt would post the track twice.
func (c *Client) SendAudio(ctx context.Context, up AudioUpload) (int64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	f, err := os.Open(up.Path)
	if err != nil {
		metrics.TGUploads.WithLabelValues("failure").Inc()
		return 0, fmt.Errorf("telegram sendAudio: %w", err)
	}
	defer f.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	fields := map[string]string{
		"chat_id": strconv.FormatInt(c.channelID, 10),
	}
	if up.Title != "" {
		fields["title"] = up.Title
	}
	if up.Performer != "" {
		fields["performer"] = up.Performer
	}
	if up.Duration > 0 {
		fields["duration"] = strconv.FormatInt(up.Duration, 10)
	}
	if up.Caption != "" {
		fields["caption"] = up.Caption
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			metrics.TGUploads.WithLabelValues("failure").Inc()
			return 0, fmt.Errorf("telegram sendAudio: %w", err)
		}
	}

	part, err := writer.CreateFormFile("audio", filepath.Base(up.Path))
	if err != nil {
		metrics.TGUploads.WithLabelValues("failure").Inc()
		return 0, fmt.Errorf("telegram sendAudio: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		metrics.TGUploads.WithLabelValues("failure").Inc()
		return 0, fmt.Errorf("telegram sendAudio: %w", err)
	}
	if err := writer.Close(); err != nil {
		metrics.TGUploads.WithLabelValues("failure").Inc()
		return 0, fmt.Errorf("telegram sendAudio: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendAudio", c.apiBase, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		metrics.TGUploads.WithLabelValues("failure").Inc()
		return 0, fmt.Errorf("telegram sendAudio: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.uploads.Do(req)
	if err != nil {
		metrics.TGUploads.WithLabelValues("failure").Inc()
		return 0, fmt.Errorf("telegram sendAudio: %w", err)
	}
	defer resp.Body.Close()

	var message Message
	if err := decodeEnvelope("sendAudio", resp.Body, &message); err != nil {
		metrics.TGUploads.WithLabelValues("failure").Inc()
		return 0, err
	}

	metrics.TGUploads.WithLabelValues("success").Inc()
	logging.Info().
		Int64("message_id", message.MessageID).
		Str("title", up.Title).
		Str("performer", up.Performer).
		Msg("Telegram audio sent")
	return message.MessageID, nil
}

// SendMessage posts an HTML-formatted message to a chat. Used for bot
// command replies.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	params.Set("text", text)
	params.Set("parse_mode", "HTML")
	params.Set("disable_web_page_preview", "true")
	return c.call(ctx, "sendMessage", params, nil)
}

// Cleanup removes a downloaded file and its temp directory.
func (c *Client) Cleanup(filePath string) {
	if filePath == "" {
		return
	}
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		logging.Debug().Err(err).Str("path", filePath).Msg("Cleanup failed")
		return
	}
	// Downloads get a dedicated temp dir; remove it when emptied.
	dir := filepath.Dir(filePath)
	if strings.Contains(filepath.Base(dir), "navaar_tg_") {
		_ = os.Remove(dir)
	}
}
