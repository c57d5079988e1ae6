// Package discord implements [presence.Coordinator] against two
// *discordgo.Session values: the bot identity (text commands, embeds) and
// the assistant identity (the one that actually joins voice channels).
//
// EnsureReady checks guild membership, attempts to bring the assistant in
// when it's missing, then makes sure it holds the permissions it needs to
// connect and speak before the engine joins.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/harmonium/harmonium/internal/presence"
)

// Compile-time interface assertion.
var _ presence.Coordinator = (*Coordinator)(nil)

// sessionAPI is the narrow slice of *discordgo.Session's surface Coordinator
// needs. Extracted so tests can exercise EnsureReady's branches against a
// fake rather than a live Discord connection.
type sessionAPI interface {
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildVanityURL(guildID string, options ...discordgo.RequestOption) (*discordgo.Invite, error)
	ChannelInviteCreate(channelID string, invite discordgo.Invite, options ...discordgo.RequestOption) (*discordgo.Invite, error)
	InviteAccept(inviteID string, options ...discordgo.RequestOption) (*discordgo.Invite, error)
	InviteDelete(inviteID string, options ...discordgo.RequestOption) (*discordgo.Invite, error)
	UserID() string
}

// liveSession adapts a real *discordgo.Session to [sessionAPI], adding the
// one accessor (the session's own user ID) that discordgo exposes as a
// field rather than a method.
type liveSession struct {
	*discordgo.Session
}

func (s liveSession) UserID() string { return s.State.User.ID }

// Coordinator checks and, where possible, repairs the assistant identity's
// ability to join a guild's voice channels.
type Coordinator struct {
	bot       sessionAPI
	assistant sessionAPI

	// voiceRoleID is a guild role that grants Connect and Speak in every
	// voice channel. If the assistant lacks it, Coordinator tries to grant
	// it via the bot identity (which must itself have ManageRoles).
	voiceRoleID string

	logger *slog.Logger
}

// New creates a Coordinator. voiceRoleID is the role the assistant is
// granted when it lacks voice permissions; it must already exist in every
// guild the bot operates in and sit below the bot's highest role.
func New(bot, assistant *discordgo.Session, voiceRoleID string, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return newCoordinator(liveSession{bot}, liveSession{assistant}, voiceRoleID, logger)
}

func newCoordinator(bot, assistant sessionAPI, voiceRoleID string, logger *slog.Logger) *Coordinator {
	return &Coordinator{bot: bot, assistant: assistant, voiceRoleID: voiceRoleID, logger: logger}
}

// blockedErr pairs a presence.BlockReason with the underlying platform
// error, so the step-2 join helpers can classify their own failures and
// EnsureReady can surface them without re-deriving the reason.
type blockedErr struct {
	reason presence.BlockReason
	err    error
}

func (e *blockedErr) Error() string { return fmt.Sprintf("%s: %v", e.reason, e.err) }
func (e *blockedErr) Unwrap() error { return e.err }

// EnsureReady implements [presence.Coordinator], following the three-step
// protocol: check membership and rights (1); if not a member, join by the
// guild's public handle or a bot-issued invite (2); if a member but lacking
// rights, promote (3).
func (c *Coordinator) EnsureReady(ctx context.Context, chatID, voiceChannelID string) presence.Outcome {
	member, err := c.assistant.GuildMember(chatID, c.assistant.UserID(), discordgo.WithContext(ctx))
	if err != nil {
		if !isNotFound(err) {
			return presence.Outcome{Reason: presence.BlockPlatformError, Err: err}
		}
		member, err = c.joinAssistant(ctx, chatID, voiceChannelID)
		if err != nil {
			var be *blockedErr
			if errors.As(err, &be) {
				return presence.Outcome{Reason: be.reason, Err: be.err}
			}
			return presence.Outcome{Reason: presence.BlockPlatformError, Err: err}
		}
	}

	if hasRole(member, c.voiceRoleID) {
		return presence.Outcome{Ready: true}
	}

	c.logger.Info("granting assistant voice role", "chat_id", chatID, "role_id", c.voiceRoleID)
	if err := c.bot.GuildMemberRoleAdd(chatID, c.assistant.UserID(), c.voiceRoleID, discordgo.WithContext(ctx)); err != nil {
		if isForbidden(err) {
			return presence.Outcome{Reason: presence.BlockCannotPromote, Err: err}
		}
		return presence.Outcome{Reason: presence.BlockPlatformError, Err: err}
	}

	return presence.Outcome{Ready: true}
}

// joinAssistant implements step 2: the assistant is not yet a guild member.
// It first tries to join via the guild's public handle (vanity invite); if
// the guild has none, the bot issues a one-time invite for the assistant to
// use and revokes it immediately after. Returns the assistant's member
// record once the join succeeds.
func (c *Coordinator) joinAssistant(ctx context.Context, chatID, voiceChannelID string) (*discordgo.Member, error) {
	code, err := c.vanityInviteCode(ctx, chatID)
	if err != nil {
		c.logger.Info("no public handle, issuing bot invite", "chat_id", chatID)
		code, err = c.createBotInvite(ctx, voiceChannelID)
		if err != nil {
			return nil, err
		}
		defer func() {
			if _, delErr := c.bot.InviteDelete(code, discordgo.WithContext(ctx)); delErr != nil {
				c.logger.Warn("failed to revoke assistant invite", "chat_id", chatID, "error", delErr)
			}
		}()
	}

	c.logger.Info("assistant joining via invite", "chat_id", chatID)
	if _, err := c.assistant.InviteAccept(code, discordgo.WithContext(ctx)); err != nil {
		if isForbidden(err) {
			return nil, &blockedErr{reason: presence.BlockAssistantPrivacyRestricted, err: err}
		}
		return nil, &blockedErr{reason: presence.BlockPlatformError, err: err}
	}

	return c.assistant.GuildMember(chatID, c.assistant.UserID(), discordgo.WithContext(ctx))
}

// vanityInviteCode returns chatID's public-handle invite code, if the guild
// has one configured.
func (c *Coordinator) vanityInviteCode(ctx context.Context, chatID string) (string, error) {
	invite, err := c.bot.GuildVanityURL(chatID, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	if invite == nil || invite.Code == "" {
		return "", errors.New("guild has no vanity invite")
	}
	return invite.Code, nil
}

// createBotInvite has the bot identity mint a single-use invite the
// assistant can consume, since the guild has no public handle to join by.
func (c *Coordinator) createBotInvite(ctx context.Context, voiceChannelID string) (string, error) {
	invite, err := c.bot.ChannelInviteCreate(voiceChannelID, discordgo.Invite{
		MaxAge:  300,
		MaxUses: 1,
		Unique:  true,
	}, discordgo.WithContext(ctx))
	if err != nil {
		if isForbidden(err) {
			return "", &blockedErr{reason: presence.BlockCannotInvite, err: err}
		}
		return "", &blockedErr{reason: presence.BlockPlatformError, err: err}
	}
	return invite.Code, nil
}

func hasRole(m *discordgo.Member, roleID string) bool {
	for _, r := range m.Roles {
		if r == roleID {
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	var rerr *discordgo.RESTError
	if errors.As(err, &rerr) && rerr.Message != nil {
		return rerr.Message.Code == discordgo.ErrCodeUnknownMember || rerr.Message.Code == discordgo.ErrCodeUnknownUser
	}
	return false
}

func isForbidden(err error) bool {
	var rerr *discordgo.RESTError
	if errors.As(err, &rerr) {
		return rerr.Response != nil && rerr.Response.StatusCode == 403
	}
	return false
}
