package commands

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/harmonium/harmonium/internal/discord"
	"github.com/harmonium/harmonium/internal/engine"
	"github.com/harmonium/harmonium/internal/facade"
)

// Compile-time interface assertion.
var _ facade.Notifier = (*Notifier)(nil)

// nowPlayingMessage is enough of a posted now-playing embed's state to
// rebuild it with an updated status line on a later Pause/Resume, without
// re-fetching the message from Discord.
type nowPlayingMessage struct {
	channelID string
	messageID string
	title     string
	thumbnail string
}

// Notifier implements [facade.Notifier] against the bot identity's text
// channel API. It posts a fresh now-playing message for each new track and
// edits that same message in place for Pause/Resume, rather than spamming a
// new message per event.
type Notifier struct {
	bot    *discord.Bot
	logger *slog.Logger

	mu       sync.Mutex
	channels map[string]string             // chat_id -> text channel to notify in
	nowPlay  map[string]*nowPlayingMessage // chat_id -> current now-playing message
}

// NewNotifier creates a Notifier bound to bot's session.
func NewNotifier(bot *discord.Bot, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		bot:      bot,
		logger:   logger,
		channels: make(map[string]string),
		nowPlay:  make(map[string]*nowPlayingMessage),
	}
}

// SetChannel records which text channel should receive notifications for
// chatID. The /play handler calls it with the channel the command was
// issued in, so the most recent /play for that chat decides the channel.
func (n *Notifier) SetChannel(chatID, channelID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.channels[chatID] = channelID
}

func (n *Notifier) channelFor(chatID string) (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch, ok := n.channels[chatID]
	return ch, ok
}

// Notify implements [facade.Notifier].
func (n *Notifier) Notify(_ context.Context, ev engine.Event) {
	channelID, ok := n.channelFor(ev.ChatID())
	if !ok {
		return
	}
	session := n.bot.Session()

	switch e := ev.(type) {
	case engine.NowPlaying:
		n.postNowPlaying(session, channelID, e.ChatID(), "Now playing", e.Track.Title, e.Track.ThumbnailURL)
	case engine.ResumeNotice:
		n.postNowPlaying(session, channelID, e.ChatID(), "Resuming", e.Track.Title, e.Track.ThumbnailURL)
	case engine.Queued:
		n.send(session, channelID, fmt.Sprintf("Queued **%s** at position %d.", e.Track.Title, e.Position))
	case engine.Paused:
		n.updateStatus(session, channelID, e.ChatID(), "⏸ Paused")
	case engine.Resumed:
		n.updateStatus(session, channelID, e.ChatID(), "▶ Playing")
	case engine.Stopped:
		n.send(session, channelID, "Playback stopped.")
		n.mu.Lock()
		delete(n.nowPlay, e.ChatID())
		n.mu.Unlock()
	case engine.ResolveFailed:
		n.send(session, channelID, fmt.Sprintf("Couldn't find anything for `%s`: %v", e.Query, e.Err))
	case engine.TransportFailed:
		n.send(session, channelID, fmt.Sprintf("Voice connection problem: %v", e.Err))
	case engine.AssistantBlocked:
		n.send(session, channelID, fmt.Sprintf("Can't join voice: %s", e.Reason))
	}
}

func (n *Notifier) postNowPlaying(s *discordgo.Session, channelID, chatID, verb, title, thumbnail string) {
	embed := nowPlayingEmbed(verb, title, thumbnail)
	msg, err := s.ChannelMessageSendEmbed(channelID, embed)
	if err != nil {
		n.logger.Warn("notifier: failed to post now-playing message", "chat_id", chatID, "error", err)
		return
	}
	n.mu.Lock()
	n.nowPlay[chatID] = &nowPlayingMessage{
		channelID: channelID,
		messageID: msg.ID,
		title:     title,
		thumbnail: thumbnail,
	}
	n.mu.Unlock()
}

// updateStatus edits the tracked now-playing message's status line in
// place. If no message is tracked for chatID (e.g. notified before any
// track ever played), it falls back to a plain status message.
func (n *Notifier) updateStatus(s *discordgo.Session, fallbackChannelID, chatID, status string) {
	n.mu.Lock()
	np, ok := n.nowPlay[chatID]
	n.mu.Unlock()
	if !ok {
		n.send(s, fallbackChannelID, status)
		return
	}

	embed := nowPlayingEmbed(status, np.title, np.thumbnail)
	if _, err := s.ChannelMessageEditEmbed(np.channelID, np.messageID, embed); err != nil {
		n.logger.Warn("notifier: failed to edit now-playing message", "chat_id", chatID, "error", err)
	}
}

func nowPlayingEmbed(verb, title, thumbnail string) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       verb,
		Description: title,
	}
	if thumbnail != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: thumbnail}
	}
	return embed
}

func (n *Notifier) send(s *discordgo.Session, channelID, content string) {
	if channelID == "" {
		return
	}
	if _, err := s.ChannelMessageSend(channelID, content); err != nil {
		n.logger.Warn("notifier: failed to send message", "channel_id", channelID, "error", err)
	}
}
