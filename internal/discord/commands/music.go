// Package commands implements the Discord slash command handlers that
// translate guild interactions into calls against the playback facade.
package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/harmonium/harmonium/internal/discord"
	"github.com/harmonium/harmonium/internal/engine"
	"github.com/harmonium/harmonium/internal/facade"
	"github.com/harmonium/harmonium/internal/queue"
)

// MusicCommands holds the dependencies for the playback slash commands.
type MusicCommands struct {
	facade   *facade.Facade
	bot      *discord.Bot
	notifier *Notifier
}

// NewMusicCommands creates a MusicCommands and registers its handlers with
// the bot's router. notifier is told which text channel to notify for a
// chat every time /play is issued in it, so Play's eventual NowPlaying
// event lands back where the user typed /play.
func NewMusicCommands(bot *discord.Bot, f *facade.Facade, notifier *Notifier) *MusicCommands {
	mc := &MusicCommands{facade: f, bot: bot, notifier: notifier}
	mc.Register(bot.Router())
	return mc
}

// Register registers every playback command definition and handler with
// router.
func (mc *MusicCommands) Register(router *discord.CommandRouter) {
	for _, def := range mc.definitions() {
		router.RegisterCommand(def)
	}
	router.RegisterHandler("play", mc.handlePlay)
	router.RegisterHandler("pause", mc.handlePause)
	router.RegisterHandler("resume", mc.handleResume)
	router.RegisterHandler("skip", mc.handleSkip)
	router.RegisterHandler("stop", mc.handleStop)
	router.RegisterHandler("queue", mc.handleQueue)
	router.RegisterHandler("loop", mc.handleLoop)
	router.RegisterHandler("shuffle", mc.handleShuffle)
	router.RegisterHandler("remove", mc.handleRemove)
	router.RegisterHandler("move", mc.handleMove)
}

func (mc *MusicCommands) definitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "play",
			Description: "Play a track by URL or search query, joining your voice channel",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "query",
					Description: "A URL or search text",
					Required:    true,
				},
			},
		},
		{Name: "pause", Description: "Pause the current track"},
		{Name: "resume", Description: "Resume the paused track"},
		{Name: "skip", Description: "Skip to the next track in the queue"},
		{Name: "stop", Description: "Stop playback, clear the queue, and leave voice"},
		{Name: "queue", Description: "Show the current queue"},
		{
			Name:        "loop",
			Description: "Change the loop mode",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "mode",
					Description: "off, track, or queue",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "off", Value: "off"},
						{Name: "track", Value: "track"},
						{Name: "queue", Value: "queue"},
					},
				},
			},
		},
		{Name: "shuffle", Description: "Shuffle the upcoming queue"},
		{
			Name:        "remove",
			Description: "Remove a track from the queue",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "index",
					Description: "1-based queue position to remove",
					Required:    true,
				},
			},
		},
		{
			Name:        "move",
			Description: "Move a track to a different queue position",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "from",
					Description: "1-based current position",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "to",
					Description: "1-based target position",
					Required:    true,
				},
			},
		},
	}
}

func (mc *MusicCommands) handlePlay(s *discordgo.Session, i *discordgo.InteractionCreate) {
	query := optionString(i, "query")
	userID := interactionUserID(i)

	vs, err := s.State.VoiceState(i.GuildID, userID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		_ = discord.RespondEphemeral(s, i, "You must be in a voice channel to play something.")
		return
	}

	if err := discord.DeferReply(s, i, false); err != nil {
		return
	}

	mc.notifier.SetChannel(i.GuildID, i.ChannelID)

	err = mc.facade.Play(i.GuildID, engine.Play{
		Query:            query,
		RequesterID:      userID,
		RequesterDisplay: interactionDisplayName(i),
		VoiceChannelID:   vs.ChannelID,
	})
	if err == facade.ErrRateLimited {
		_ = discord.FollowUp(s, i, "You're doing that too often, try again in a moment.")
		return
	}
	if err != nil {
		_ = discord.FollowUp(s, i, fmt.Sprintf("couldn't queue that: %v", err))
		return
	}
	_ = discord.FollowUp(s, i, fmt.Sprintf("Looking up `%s`...", query))
}

func (mc *MusicCommands) handlePause(s *discordgo.Session, i *discordgo.InteractionCreate) {
	mc.facade.Pause(i.GuildID)
	_ = discord.RespondEphemeral(s, i, "Paused.")
}

func (mc *MusicCommands) handleResume(s *discordgo.Session, i *discordgo.InteractionCreate) {
	mc.facade.Resume(i.GuildID)
	_ = discord.RespondEphemeral(s, i, "Resumed.")
}

func (mc *MusicCommands) handleSkip(s *discordgo.Session, i *discordgo.InteractionCreate) {
	mc.facade.Skip(i.GuildID)
	_ = discord.RespondEphemeral(s, i, "Skipped.")
}

func (mc *MusicCommands) handleStop(s *discordgo.Session, i *discordgo.InteractionCreate) {
	mc.facade.Stop(i.GuildID)
	_ = discord.RespondEphemeral(s, i, "Stopped and left voice.")
}

func (mc *MusicCommands) handleQueue(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	snap, err := mc.facade.Snapshot(ctx, i.GuildID)
	if err != nil {
		_ = discord.RespondError(s, i, err)
		return
	}
	if !snap.HasCurrent {
		_ = discord.RespondEphemeral(s, i, "Nothing is playing.")
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Now playing:** %s (%s)\n", snap.Current.Title, statusLabel(snap.Status))
	if len(snap.Queue) > snap.CurrentIndex+1 {
		b.WriteString("**Up next:**\n")
		for idx, t := range snap.Queue[snap.CurrentIndex+1:] {
			fmt.Fprintf(&b, "%d. %s\n", idx+1, t.Title)
		}
	}
	_ = discord.RespondEphemeral(s, i, b.String())
}

func (mc *MusicCommands) handleLoop(s *discordgo.Session, i *discordgo.InteractionCreate) {
	mode := optionString(i, "mode")
	var m queue.LoopMode
	switch mode {
	case "track":
		m = queue.LoopTrack
	case "queue":
		m = queue.LoopQueue
	default:
		m = queue.LoopOff
	}
	mc.facade.SetLoop(i.GuildID, engine.SetLoop{Mode: m})
	_ = discord.RespondEphemeral(s, i, fmt.Sprintf("Loop mode set to `%s`.", mode))
}

func (mc *MusicCommands) handleShuffle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	mc.facade.Shuffle(i.GuildID)
	_ = discord.RespondEphemeral(s, i, "Queue shuffled.")
}

func (mc *MusicCommands) handleRemove(s *discordgo.Session, i *discordgo.InteractionCreate) {
	idx := int(optionInt(i, "index"))
	mc.facade.Remove(i.GuildID, idx-1)
	_ = discord.RespondEphemeral(s, i, fmt.Sprintf("Removed track %d.", idx))
}

func (mc *MusicCommands) handleMove(s *discordgo.Session, i *discordgo.InteractionCreate) {
	from := int(optionInt(i, "from"))
	to := int(optionInt(i, "to"))
	mc.facade.Move(i.GuildID, from-1, to-1)
	_ = discord.RespondEphemeral(s, i, fmt.Sprintf("Moved track %d to position %d.", from, to))
}

func statusLabel(st engine.Status) string {
	switch st {
	case engine.Playing:
		return "playing"
	case engine.PausedState:
		return "paused"
	case engine.Resolving:
		return "resolving"
	default:
		return "idle"
	}
}

func optionString(i *discordgo.InteractionCreate, name string) string {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name {
			return opt.StringValue()
		}
	}
	return ""
}

func optionInt(i *discordgo.InteractionCreate, name string) int64 {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name {
			return opt.IntValue()
		}
	}
	return 0
}

// interactionUserID extracts the invoking user's ID, handling both guild
// (Member) and DM (User) contexts.
func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

// interactionDisplayName extracts a display name suitable for UI, falling
// back to the username or user ID.
func interactionDisplayName(i *discordgo.InteractionCreate) string {
	if i.Member != nil {
		if i.Member.Nick != "" {
			return i.Member.Nick
		}
		if i.Member.User != nil {
			return i.Member.User.Username
		}
	}
	if i.User != nil {
		return i.User.Username
	}
	return interactionUserID(i)
}
