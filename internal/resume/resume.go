// Package resume rehydrates chat playback actors from persisted checkpoints
// after a process restart.
package resume

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/harmonium/harmonium/internal/engine"
	"github.com/harmonium/harmonium/internal/storage"
)

// Notice is a best-effort report of what Run did with a single checkpoint,
// for the caller to announce back into the chat it belongs to.
type Notice struct {
	ChatID         string
	VoiceChannelID string
	Track          string
	Resumed        bool
	Reason         string
}

// Controller scans the storage backend for leftover checkpoints at startup
// and replays each one into a fresh [engine.Actor], staggered so a restart
// with many active chats doesn't open every voice connection at once.
type Controller struct {
	store   storage.Store
	reg     *engine.Registry
	log     *slog.Logger
	stagger time.Duration
	now     func() time.Time
}

// New builds a Controller. logger defaults to slog.Default() when nil.
func New(store storage.Store, reg *engine.Registry, logger *slog.Logger, stagger time.Duration) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{store: store, reg: reg, log: logger, stagger: stagger, now: time.Now}
}

// Run scans every persisted checkpoint and rehydrates the chats it can. A
// checkpoint that no longer names a resumable track — no voice channel, no
// track ID or query, or local content that's disappeared from disk — is
// deleted rather
// than left to wedge that chat forever. Returns one Notice per checkpoint
// found, in the order they were processed.
func (c *Controller) Run(ctx context.Context) []Notice {
	entries, err := c.store.Scan(ctx, storage.ChatKeyPrefix)
	if err != nil {
		c.log.Error("resume: scan failed", "error", err)
		return nil
	}
	if len(entries) == 0 {
		return nil
	}

	c.log.Info("resume: rehydrating chats", "count", len(entries))

	notices := make([]Notice, 0, len(entries))
	for i, e := range entries {
		if i > 0 && c.stagger > 0 {
			timer := time.NewTimer(c.stagger)
			select {
			case <-ctx.Done():
				timer.Stop()
				return notices
			case <-timer.C:
			}
		}
		notices = append(notices, c.resumeOne(ctx, e.Value))
	}
	return notices
}

func (c *Controller) resumeOne(ctx context.Context, cp storage.Checkpoint) Notice {
	if reason, ok := c.unresumable(cp); ok {
		c.log.Warn("resume: dropping checkpoint", "chat_id", cp.ChatID, "reason", reason)
		if err := c.store.Delete(ctx, cp.Key()); err != nil {
			c.log.Warn("resume: failed to delete checkpoint", "chat_id", cp.ChatID, "error", err)
		}
		return Notice{ChatID: cp.ChatID, Track: cp.Track.Title, Resumed: false, Reason: reason}
	}

	query := cp.Track.SourceURL
	if query == "" {
		query = cp.Track.Title
	}

	a := c.reg.Get(cp.ChatID)
	a.Send(engine.Play{
		Query:            query,
		RequesterID:      cp.Track.RequesterID,
		RequesterDisplay: cp.Track.RequesterDisplay,
		VoiceChannelID:   cp.VoiceChannelID,
		SeekSeconds:      cp.PositionSeconds,
	})

	c.log.Info("resume: rehydrating chat",
		"chat_id", cp.ChatID,
		"voice_channel_id", cp.VoiceChannelID,
		"track", cp.Track.Title,
		"position_seconds", cp.PositionSeconds,
	)

	return Notice{
		ChatID:         cp.ChatID,
		VoiceChannelID: cp.VoiceChannelID,
		Track:          cp.Track.Title,
		Resumed:        true,
	}
}

// unresumable reports whether cp lacks what a fresh Play needs, or — for a
// track backed by local content — whether that content is gone.
func (c *Controller) unresumable(cp storage.Checkpoint) (reason string, drop bool) {
	if cp.VoiceChannelID == "" {
		return "missing voice channel", true
	}
	if cp.Track.ID == "" || (cp.Track.SourceURL == "" && cp.Track.Title == "") {
		return "incomplete track record", true
	}
	if cp.Track.FileRef != "" {
		if _, err := os.Stat(cp.Track.FileRef); err != nil {
			return "local file_ref no longer exists", true
		}
	}
	return "", false
}
