// Navaar - Telegram / YouTube Music / Spotify Playlist Synchronization
// Copyright 2026 Navaar Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/navaar/navaar

package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/navaar/navaar/internal/config"
	"github.com/navaar/navaar/internal/database"
	"github.com/navaar/navaar/internal/logging"
	"github.com/navaar/navaar/internal/metrics"
	"github.com/navaar/navaar/internal/models"
)

// longPollSeconds is the server-side getUpdates hold.
const longPollSeconds = 30

// Syncer triggers an immediate cycle for a direction. Implemented by the
// sync engine; declared here so the bot does not depend on it.
type Syncer interface {
	ForceSync(d models.Direction) bool
}

// SearchResult is one hit from the /search debugging command.
type SearchResult struct {
	VideoID string
	Title   string
	Artist  string
}

// SongSearcher serves the /search debugging command.
type SongSearcher interface {
	SearchSongs(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

var statusIcons = map[models.Status]string{
	models.StatusPending:        "⏳",
	models.StatusIdentifying:    "\U0001f50d",
	models.StatusSearching:      "\U0001f50e",
	models.StatusSyncing:        "⚙️",
	models.StatusSynced:         "✅",
	models.StatusFailed:         "❌",
	models.StatusDuplicate:      "\U0001f501",
	models.StatusRetryScheduled: "\U0001f504",
}

var directionLabels = map[models.Direction]string{
	models.DirectionTgToYt: "TG → YT",
	models.DirectionYtToTg: "YT → TG",
	models.DirectionTgToSp: "TG → SP",
	models.DirectionSpToTg: "SP → TG",
	models.DirectionYtToSp: "YT → SP",
	models.DirectionSpToYt: "SP → YT",
}

// Bot runs the getUpdates loop: channel-post discovery plus the admin
// command surface. Implements suture.Service via Serve.
type Bot struct {
	client    *Client
	db        *database.DB
	cfg       *config.Config
	admins    map[int64]struct{}
	spEnabled bool
	syncer    Syncer
	searcher  SongSearcher
	selfID    int64
	startTime time.Time
}

// NewBot wires the discovery bot. syncer and searcher may be nil until
// SetSyncer/SetSearcher are called during startup.
func NewBot(client *Client, db *database.DB, cfg *config.Config) *Bot {
	admins := make(map[int64]struct{}, len(cfg.Telegram.AdminUserIDs))
	for _, id := range cfg.Telegram.AdminUserIDs {
		admins[id] = struct{}{}
	}
	return &Bot{
		client:    client,
		db:        db,
		cfg:       cfg,
		admins:    admins,
		spEnabled: cfg.Spotify.Enabled(),
		startTime: time.Now(),
	}
}

// SetSyncer attaches the sync engine once it exists. The engine is built
// after the bot because workers need the Telegram client.
func (b *Bot) SetSyncer(s Syncer) { b.syncer = s }

// SetSearcher attaches the /search backend.
func (b *Bot) SetSearcher(s SongSearcher) { b.searcher = s }

// Serve runs the long-poll loop until the context is canceled.
func (b *Bot) Serve(ctx context.Context) error {
	me, err := b.client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram bot: %w", err)
	}
	b.selfID = me.ID
	logging.Info().Int64("bot_id", me.ID).Str("username", me.Username).Msg("Telegram bot started")

	var offset int64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		updates, err := b.client.GetUpdates(ctx, offset, longPollSeconds)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			logging.Warn().Err(err).Msg("getUpdates failed")
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		for i := range updates {
			u := &updates[i]
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			b.handleUpdate(ctx, u)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, u *Update) {
	switch {
	case u.ChannelPost != nil:
		b.handleChannelPost(ctx, u.ChannelPost)
	case u.Message != nil && strings.HasPrefix(u.Message.Text, "/"):
		b.handleCommand(ctx, u.Message)
	}
}

// handleChannelPost is the discovery path: every audio posted to the synced
// channel becomes a pending track.
func (b *Bot) handleChannelPost(ctx context.Context, msg *Message) {
	if msg.Audio == nil {
		return
	}
	if msg.Chat.ID != b.cfg.Telegram.ChannelID {
		return
	}
	// Skip the bot's own uploads (pull-side syncs post to the channel).
	if msg.From != nil && msg.From.ID == b.selfID {
		logging.Debug().Int64("message_id", msg.MessageID).Msg("Ignoring own channel post")
		return
	}

	audio := msg.Audio
	logging.Info().
		Int64("message_id", msg.MessageID).
		Str("file_id", audio.FileID).
		Str("title", audio.Title).
		Str("performer", audio.Performer).
		Msg("Channel audio received")

	// Dedup: same file (possibly forwarded) or same message seen before.
	if _, err := b.db.GetTrackByTGFileUniqueID(ctx, audio.FileUniqueID); err == nil {
		logging.Info().Str("file_unique_id", audio.FileUniqueID).Msg("Duplicate channel file ignored")
		return
	}
	if _, err := b.db.GetTrackByTGMessageID(ctx, msg.MessageID); err == nil {
		logging.Debug().Int64("message_id", msg.MessageID).Msg("Message already tracked")
		return
	}

	title := audio.Title
	if title == "" {
		title = audio.FileName
	}
	if title == "" {
		title = "Unknown"
	}

	b.createDiscovered(ctx, msg, audio, title, models.DirectionTgToYt)
	if b.spEnabled {
		// The companion row has no message/file uniqueness of its own;
		// uniqueness belongs to the tg_to_yt row.
		b.createCompanion(ctx, audio, title, models.DirectionTgToSp)
	}
}

func (b *Bot) createDiscovered(ctx context.Context, msg *Message, audio *Audio, title string, direction models.Direction) {
	track := &models.Track{
		Direction:      direction,
		Status:         models.StatusPending,
		Title:          title,
		TGMessageID:    &msg.MessageID,
		TGFileID:       &audio.FileID,
		TGFileUniqueID: &audio.FileUniqueID,
	}
	if audio.Performer != "" {
		p := audio.Performer
		track.Artist = &p
	}
	if audio.Duration > 0 {
		d := audio.Duration
		track.DurationSeconds = &d
	}

	if err := b.db.CreateTrack(ctx, track); err != nil {
		logging.Error().Err(err).Int64("message_id", msg.MessageID).Msg("Failed to create discovered track")
		return
	}

	metrics.TracksDiscovered.WithLabelValues(direction.String()).Inc()
	dir := direction
	_, _ = b.db.AppendLog(ctx, models.EventTrackDiscovered, &track.ID, &dir, map[string]any{
		"message_id": msg.MessageID,
		"title":      title,
		"performer":  audio.Performer,
	})
	logging.Info().Int64("track_id", track.ID).Str("title", title).Str("direction", direction.String()).Msg("Track created")
}

func (b *Bot) createCompanion(ctx context.Context, audio *Audio, title string, direction models.Direction) {
	track := &models.Track{
		Direction: direction,
		Status:    models.StatusPending,
		Title:     title,
		TGFileID:  &audio.FileID,
	}
	if audio.Performer != "" {
		p := audio.Performer
		track.Artist = &p
	}
	if audio.Duration > 0 {
		d := audio.Duration
		track.DurationSeconds = &d
	}

	if err := b.db.CreateTrack(ctx, track); err != nil {
		logging.Error().Err(err).Str("direction", direction.String()).Msg("Failed to create companion track")
		return
	}
	metrics.TracksDiscovered.WithLabelValues(direction.String()).Inc()
	dir := direction
	_, _ = b.db.AppendLog(ctx, models.EventTrackDiscovered, &track.ID, &dir, map[string]any{
		"title": title,
	})
}

// ── Admin commands ──

func (b *Bot) isAdmin(msg *Message) bool {
	if msg.From == nil {
		return false
	}
	_, ok := b.admins[msg.From.ID]
	return ok
}

func (b *Bot) reply(ctx context.Context, msg *Message, text string) {
	if err := b.client.SendMessage(ctx, msg.Chat.ID, text); err != nil {
		logging.Warn().Err(err).Msg("Command reply failed")
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *Message) {
	if !b.isAdmin(msg) {
		return
	}

	fields := strings.Fields(msg.Text)
	command := strings.TrimPrefix(fields[0], "/")
	// Commands in groups arrive as /command@botname.
	if at := strings.Index(command, "@"); at >= 0 {
		command = command[:at]
	}
	args := fields[1:]

	switch command {
	case "start", "help":
		b.cmdHelp(ctx, msg)
	case "ping":
		b.cmdPing(ctx, msg)
	case "config":
		b.cmdConfig(ctx, msg)
	case "status":
		b.cmdStatus(ctx, msg)
	case "stats":
		b.cmdStats(ctx, msg)
	case "queue":
		b.cmdQueue(ctx, msg)
	case "recent":
		b.cmdRecent(ctx, msg, args)
	case "track":
		b.cmdTrack(ctx, msg, args)
	case "logs":
		b.cmdLogs(ctx, msg, args)
	case "failed", "list_failed":
		b.cmdFailed(ctx, msg, args)
	case "sync", "force_sync":
		b.cmdSync(ctx, msg, args)
	case "retry":
		b.cmdRetry(ctx, msg, args)
	case "delete":
		b.cmdDelete(ctx, msg, args)
	case "search":
		b.cmdSearch(ctx, msg, args)
	}
}

func (b *Bot) cmdHelp(ctx context.Context, msg *Message) {
	text := "<b>\U0001f3b5 Navaar — Bot Commands</b>\n\n" +
		"<b>Monitoring</b>\n" +
		"/status — Live sync status dashboard\n" +
		"/stats — Aggregate statistics\n" +
		"/queue — Pending tracks waiting to sync\n" +
		"/recent [n] — Last n tracks (default 10)\n" +
		"/track &lt;id&gt; — Full details for a track\n" +
		"/logs [n] — Recent sync log entries\n\n" +
		"<b>Actions</b>\n" +
		"/sync [direction] — Force immediate sync\n" +
		"/retry &lt;id|all|direction&gt; — Retry failed tracks\n" +
		"/delete &lt;id&gt; — Remove a track from DB\n\n" +
		"<b>Debugging</b>\n" +
		"/search &lt;query&gt; — Search YouTube Music\n" +
		"/failed [direction] — List failed tracks\n" +
		"/config — Show current configuration\n" +
		"/ping — Check bot responsiveness\n" +
		"/help — This message"
	b.reply(ctx, msg, text)
}

func (b *Bot) uptime() string {
	secs := int(time.Since(b.startTime).Seconds())
	return fmt.Sprintf("%dh %dm %ds", secs/3600, (secs%3600)/60, secs%60)
}

func (b *Bot) cmdPing(ctx context.Context, msg *Message) {
	b.reply(ctx, msg, fmt.Sprintf("\U0001f3d3 Pong! Uptime: %s", b.uptime()))
}

func (b *Bot) cmdConfig(ctx context.Context, msg *Message) {
	spState := "disabled"
	if b.spEnabled {
		spState = "enabled"
	}
	text := fmt.Sprintf(
		"<b>⚙️ Configuration</b>\n\n"+
			"Channel: <code>%d</code>\n"+
			"YT playlist: <code>%s</code>\n"+
			"Spotify: %s\n"+
			"TG→YT interval: %s\n"+
			"YT→TG interval: %s\n"+
			"Max retries: %d\n"+
			"Log level: %s\n"+
			"API port: %d\n"+
			"Admins: %d",
		b.cfg.Telegram.ChannelID,
		html.EscapeString(b.cfg.YTMusic.PlaylistID),
		spState,
		b.cfg.Sync.IntervalTgToYt,
		b.cfg.Sync.IntervalYtToTg,
		b.cfg.Sync.MaxRetries,
		b.cfg.Logging.Level,
		b.cfg.Server.Port,
		len(b.admins),
	)
	b.reply(ctx, msg, text)
}

// enabledDirections lists the directions shown by /status and accepted as
// command arguments.
func (b *Bot) enabledDirections() []models.Direction {
	dirs := []models.Direction{models.DirectionTgToYt, models.DirectionYtToTg}
	if b.spEnabled {
		dirs = append(dirs,
			models.DirectionTgToSp, models.DirectionSpToTg,
			models.DirectionYtToSp, models.DirectionSpToYt)
	}
	return dirs
}

func (b *Bot) cmdStatus(ctx context.Context, msg *Message) {
	counts, err := b.db.GetCounts(ctx)
	if err != nil {
		b.reply(ctx, msg, "❌ Could not load status.")
		return
	}

	lines := []string{"<b>\U0001f4ca Sync Status</b>\n", "⏱ Uptime: " + b.uptime(), ""}
	for _, direction := range b.enabledDirections() {
		dc := counts[direction]
		synced := dc[models.StatusSynced]
		failed := dc[models.StatusFailed]
		pending := dc[models.StatusPending] + dc[models.StatusRetryScheduled]
		dupes := dc[models.StatusDuplicate]

		lastStr := "never"
		if raw, err := b.db.GetState(ctx, models.LastSyncKey(direction)); err == nil {
			if ts, perr := models.ParseLastSync(raw); perr == nil {
				lastStr = ago(&ts)
			}
		}

		lines = append(lines, fmt.Sprintf("<b>%s</b>  (last sync: %s)", directionLabels[direction], lastStr))
		var parts []string
		if synced > 0 {
			parts = append(parts, fmt.Sprintf("✅ %d", synced))
		}
		if pending > 0 {
			parts = append(parts, fmt.Sprintf("⏳ %d", pending))
		}
		if failed > 0 {
			parts = append(parts, fmt.Sprintf("❌ %d", failed))
		}
		if dupes > 0 {
			parts = append(parts, fmt.Sprintf("\U0001f501 %d", dupes))
		}
		if len(parts) == 0 {
			lines = append(lines, "  No tracks")
		} else {
			lines = append(lines, "  "+strings.Join(parts, "  |  "))
		}
		lines = append(lines, "")
	}
	b.reply(ctx, msg, strings.Join(lines, "\n"))
}

func (b *Bot) cmdStats(ctx context.Context, msg *Message) {
	stats, err := b.db.GetStats(ctx)
	if err != nil {
		b.reply(ctx, msg, "❌ Could not load stats.")
		return
	}

	const barLen = 12
	filled := 0
	if stats.Total > 0 {
		filled = int(float64(barLen)*stats.SuccessRate/100 + 0.5)
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barLen-filled)

	var byDir []string
	for _, d := range b.enabledDirections() {
		if n := stats.ByDirection[d]; n > 0 {
			byDir = append(byDir, fmt.Sprintf("%d %s", n, directionLabels[d]))
		}
	}
	dirSummary := ""
	if len(byDir) > 0 {
		dirSummary = "  (" + strings.Join(byDir, ", ") + ")"
	}

	text := fmt.Sprintf(
		"<b>\U0001f4c8 Statistics</b>\n\n"+
			"Total tracks: <b>%d</b>\n"+
			"✅ Synced: <b>%d</b>%s\n"+
			"❌ Failed: <b>%d</b>\n"+
			"\U0001f501 Duplicates: <b>%d</b>\n"+
			"⏳ Pending: <b>%d</b>\n\n"+
			"Success rate: <code>[%s]</code> %.1f%%",
		stats.Total, stats.Synced, dirSummary, stats.Failed,
		stats.Duplicates, stats.Pending, bar, stats.SuccessRate)
	b.reply(ctx, msg, text)
}

func (b *Bot) cmdQueue(ctx context.Context, msg *Message) {
	var all []*models.Track
	for _, d := range b.enabledDirections() {
		pending, err := b.db.GetPendingTracks(ctx, d)
		if err != nil {
			b.reply(ctx, msg, "❌ Could not load queue.")
			return
		}
		all = append(all, pending...)
	}

	if len(all) == 0 {
		b.reply(ctx, msg, "✅ Queue is empty — nothing pending.")
		return
	}

	lines := []string{fmt.Sprintf("<b>⏳ Queue (%d tracks)</b>\n", len(all))}
	for i, t := range all {
		if i >= 20 {
			lines = append(lines, fmt.Sprintf("\n<i>... and %d more</i>", len(all)-20))
			break
		}
		lines = append(lines, trackLine(t, true))
	}
	b.reply(ctx, msg, strings.Join(lines, "\n"))
}

func (b *Bot) cmdRecent(ctx context.Context, msg *Message, args []string) {
	limit := parseLimit(args, 10, 50)
	tracks, err := b.db.GetRecentTracks(ctx, limit, "")
	if err != nil {
		b.reply(ctx, msg, "❌ Could not load tracks.")
		return
	}
	if len(tracks) == 0 {
		b.reply(ctx, msg, "No tracks yet.")
		return
	}

	lines := []string{fmt.Sprintf("<b>\U0001f55b Recent Tracks (last %d)</b>\n", len(tracks))}
	for _, t := range tracks {
		line := trackLine(t, false)
		if t.SyncedAt != nil {
			line += "  <i>" + ago(t.SyncedAt) + "</i>"
		}
		lines = append(lines, line)
	}
	b.reply(ctx, msg, strings.Join(lines, "\n"))
}

func (b *Bot) cmdTrack(ctx context.Context, msg *Message, args []string) {
	if len(args) == 0 {
		b.reply(ctx, msg, "Usage: /track &lt;id&gt;")
		return
	}
	id, err := parseTrackID(args[0])
	if err != nil {
		b.reply(ctx, msg, "❌ Invalid track ID.")
		return
	}

	t, err := b.db.GetTrack(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		b.reply(ctx, msg, fmt.Sprintf("❌ Track #%d not found.", id))
		return
	}
	if err != nil {
		b.reply(ctx, msg, "❌ Could not load track.")
		return
	}

	artist := "Unknown"
	if t.Artist != nil {
		artist = *t.Artist
	}
	method := "n/a"
	if t.IdentificationMethod != nil {
		method = t.IdentificationMethod.String()
	}

	status := t.Status.String()
	if t.Pickupable() {
		status += " (queued for next cycle)"
	}

	lines := []string{
		fmt.Sprintf("<b>%s Track #%d</b>\n", statusIcons[t.Status], t.ID),
		"<b>Title:</b> " + html.EscapeString(t.Title),
		"<b>Artist:</b> " + html.EscapeString(artist),
		"<b>Direction:</b> " + directionLabels[t.Direction],
		"<b>Status:</b> " + status,
		"<b>Method:</b> " + method,
		"",
	}
	if t.YTVideoID != nil {
		lines = append(lines,
			fmt.Sprintf("<b>YT Video:</b> <code>%s</code>", *t.YTVideoID),
			"<b>YT Link:</b> https://music.youtube.com/watch?v="+*t.YTVideoID)
	}
	if t.SPTrackID != nil {
		lines = append(lines, fmt.Sprintf("<b>SP Track:</b> <code>%s</code>", *t.SPTrackID))
	}
	if t.TGMessageID != nil {
		lines = append(lines, fmt.Sprintf("<b>TG Message:</b> %d", *t.TGMessageID))
	}
	if t.TGFileUniqueID != nil {
		lines = append(lines, fmt.Sprintf("<b>TG File:</b> <code>%s</code>", *t.TGFileUniqueID))
	}
	if t.DurationSeconds != nil {
		lines = append(lines, fmt.Sprintf("<b>Duration:</b> %d:%02d", *t.DurationSeconds/60, *t.DurationSeconds%60))
	}
	lines = append(lines, "")
	if t.FailureReason != nil {
		lines = append(lines, fmt.Sprintf("❌ <b>Failure:</b> <i>%s</i>", html.EscapeString(*t.FailureReason)))
	}
	lines = append(lines,
		fmt.Sprintf("<b>Retries:</b> %d/%d", t.RetryCount, t.MaxRetries),
		"<b>Created:</b> "+ago(&t.CreatedAt))
	if t.SyncedAt != nil {
		lines = append(lines, "<b>Synced:</b> "+ago(t.SyncedAt))
	}

	if logs, err := b.db.GetLogsForTrack(ctx, t.ID, 5); err == nil && len(logs) > 0 {
		lines = append(lines, "\n<b>Log:</b>")
		for i := len(logs) - 1; i >= 0; i-- {
			entry := logs[i]
			lines = append(lines, fmt.Sprintf("  • %s (%s)", entry.Event, ago(&entry.CreatedAt)))
		}
	}

	b.reply(ctx, msg, strings.Join(lines, "\n"))
}

func (b *Bot) cmdLogs(ctx context.Context, msg *Message, args []string) {
	limit := parseLimit(args, 15, 50)
	logs, err := b.db.GetRecentLogs(ctx, limit)
	if err != nil {
		b.reply(ctx, msg, "❌ Could not load logs.")
		return
	}
	if len(logs) == 0 {
		b.reply(ctx, msg, "No log entries yet.")
		return
	}

	lines := []string{fmt.Sprintf("<b>\U0001f4dc Recent Logs (last %d)</b>\n", len(logs))}
	for _, entry := range logs {
		tid := "-"
		if entry.TrackID != nil {
			tid = fmt.Sprintf("#%d", *entry.TrackID)
		}
		direction := ""
		if entry.Direction != nil {
			direction = directionLabels[*entry.Direction]
		}
		lines = append(lines, fmt.Sprintf("<code>%5s</code> %s %s <i>%s</i>",
			tid, entry.Event, direction, ago(&entry.CreatedAt)))
	}
	b.reply(ctx, msg, strings.Join(lines, "\n"))
}

func (b *Bot) cmdFailed(ctx context.Context, msg *Message, args []string) {
	var direction models.Direction
	if len(args) > 0 {
		direction = parseDirectionArg(args[0])
	}

	failed, err := b.db.GetFailedTracks(ctx, direction)
	if err != nil {
		b.reply(ctx, msg, "❌ Could not load failed tracks.")
		return
	}
	if len(failed) == 0 {
		b.reply(ctx, msg, "✅ No failed tracks!")
		return
	}

	lines := []string{fmt.Sprintf("<b>❌ Failed Tracks (%d)</b>\n", len(failed))}
	for i, t := range failed {
		if i >= 20 {
			lines = append(lines, fmt.Sprintf("\n<i>... and %d more</i>", len(failed)-20))
			break
		}
		lines = append(lines, trackLine(t, true))
	}
	b.reply(ctx, msg, strings.Join(lines, "\n"))
}

func (b *Bot) cmdSync(ctx context.Context, msg *Message, args []string) {
	if b.syncer == nil {
		b.reply(ctx, msg, "❌ Sync engine not available.")
		return
	}

	var directions []models.Direction
	if len(args) > 0 {
		if d := parseDirectionArg(args[0]); d != "" {
			directions = []models.Direction{d}
		}
	}
	if len(directions) == 0 {
		directions = b.enabledDirections()
	}

	var labels []string
	for _, d := range directions {
		if b.syncer.ForceSync(d) {
			labels = append(labels, directionLabels[d])
		}
	}
	if len(labels) == 0 {
		b.reply(ctx, msg, "❌ No matching directions are running.")
		return
	}
	b.reply(ctx, msg, "\U0001f504 Sync triggered: "+strings.Join(labels, ", "))
}

func (b *Bot) cmdRetry(ctx context.Context, msg *Message, args []string) {
	if len(args) == 0 {
		b.reply(ctx, msg, "Usage: /retry &lt;id|all|direction&gt;")
		return
	}

	arg := strings.ToLower(args[0])
	if arg == "all" {
		count, err := b.db.ResetAllFailed(ctx, "")
		if err != nil {
			b.reply(ctx, msg, "❌ Retry reset failed.")
			return
		}
		b.reply(ctx, msg, fmt.Sprintf("\U0001f504 Reset %d failed tracks for retry.", count))
		return
	}

	if d := parseDirectionArg(arg); d != "" {
		count, err := b.db.ResetAllFailed(ctx, d)
		if err != nil {
			b.reply(ctx, msg, "❌ Retry reset failed.")
			return
		}
		metrics.Retries.WithLabelValues(d.String()).Add(float64(count))
		b.reply(ctx, msg, fmt.Sprintf("\U0001f504 Reset %d failed %s tracks.", count, directionLabels[d]))
		return
	}

	id, err := parseTrackID(arg)
	if err != nil {
		b.reply(ctx, msg, "❌ Invalid. Use: /retry &lt;id|all|direction&gt;")
		return
	}
	track, err := b.db.GetTrack(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		b.reply(ctx, msg, fmt.Sprintf("❌ Track #%d not found.", id))
		return
	}
	if err != nil {
		b.reply(ctx, msg, "❌ Could not load track.")
		return
	}
	if track.Status != models.StatusFailed {
		b.reply(ctx, msg, fmt.Sprintf("❌ Track #%d is <b>%s</b>, not failed.", id, track.Status))
		return
	}
	if _, err := b.db.ResetForRetry(ctx, id); err != nil {
		b.reply(ctx, msg, "❌ Retry reset failed.")
		return
	}
	metrics.Retries.WithLabelValues(track.Direction.String()).Inc()
	b.reply(ctx, msg, fmt.Sprintf("\U0001f504 Track #%d queued for retry.", id))
}

func (b *Bot) cmdDelete(ctx context.Context, msg *Message, args []string) {
	if len(args) == 0 {
		b.reply(ctx, msg, "Usage: /delete &lt;id&gt;")
		return
	}
	id, err := parseTrackID(args[0])
	if err != nil {
		b.reply(ctx, msg, "❌ Invalid track ID.")
		return
	}

	deleted, err := b.db.DeleteTrack(ctx, id)
	if err != nil {
		b.reply(ctx, msg, "❌ Delete failed.")
		return
	}
	if deleted {
		b.reply(ctx, msg, fmt.Sprintf("\U0001f5d1 Track #%d deleted.", id))
	} else {
		b.reply(ctx, msg, fmt.Sprintf("❌ Track #%d not found.", id))
	}
}

func (b *Bot) cmdSearch(ctx context.Context, msg *Message, args []string) {
	if len(args) == 0 {
		b.reply(ctx, msg, "Usage: /search &lt;query&gt;")
		return
	}
	if b.searcher == nil {
		b.reply(ctx, msg, "❌ YT Music client not available.")
		return
	}

	query := strings.Join(args, " ")
	results, err := b.searcher.SearchSongs(ctx, query, 5)
	if err != nil {
		reason := err.Error()
		if len(reason) > 100 {
			reason = reason[:100]
		}
		b.reply(ctx, msg, "❌ Search failed: "+html.EscapeString(reason))
		return
	}
	if len(results) == 0 {
		b.reply(ctx, msg, "No results found.")
		return
	}

	lines := []string{fmt.Sprintf("<b>\U0001f3b5 Results for: %s</b>\n", html.EscapeString(query))}
	for i, r := range results {
		lines = append(lines, fmt.Sprintf("%d. %s — %s\n   <code>%s</code>",
			i+1, html.EscapeString(r.Artist), html.EscapeString(r.Title), r.VideoID))
	}
	b.reply(ctx, msg, strings.Join(lines, "\n"))
}

// ── Formatting helpers ──

func trackLine(t *models.Track, verbose bool) string {
	artist := "Unknown"
	if t.Artist != nil {
		artist = *t.Artist
	}
	line := fmt.Sprintf("%s <code>#%d</code> %s — %s",
		statusIcons[t.Status], t.ID, html.EscapeString(artist), html.EscapeString(t.Title))
	if verbose {
		line += fmt.Sprintf("\n   %s | %s", directionLabels[t.Direction], t.Status)
		if t.YTVideoID != nil {
			line += fmt.Sprintf(" | <code>%s</code>", *t.YTVideoID)
		}
		if t.FailureReason != nil {
			reason := *t.FailureReason
			if len(reason) > 80 {
				reason = reason[:80]
			}
			line += "\n   Reason: <i>" + html.EscapeString(reason) + "</i>"
		}
	}
	return line
}

func ago(t *time.Time) string {
	if t == nil {
		return "never"
	}
	secs := int(time.Since(*t).Seconds())
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds ago", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm ago", secs/60)
	case secs < 86400:
		return fmt.Sprintf("%dh ago", secs/3600)
	default:
		return fmt.Sprintf("%dd ago", secs/86400)
	}
}

func parseLimit(args []string, def, max int) int {
	if len(args) == 0 {
		return def
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func parseTrackID(arg string) (int64, error) {
	return strconv.ParseInt(strings.TrimPrefix(arg, "#"), 10, 64)
}

// parseDirectionArg accepts both shorthand ("tg", "yt", "sp" map to the
// channel-outbound direction) and full direction names.
func parseDirectionArg(arg string) models.Direction {
	switch strings.ToLower(arg) {
	case "tg", "tg_to_yt":
		return models.DirectionTgToYt
	case "yt", "yt_to_tg":
		return models.DirectionYtToTg
	case "tg_to_sp":
		return models.DirectionTgToSp
	case "sp", "sp_to_tg":
		return models.DirectionSpToTg
	case "yt_to_sp":
		return models.DirectionYtToSp
	case "sp_to_yt":
		return models.DirectionSpToYt
	}
	return ""
}
