// Package presence ensures the assistant identity is present and permitted
// to join a voice channel before playback starts. A "bot" identity owns
// text commands and cannot itself stream audio, while a second "assistant"
// identity (its own session, its own token) is the one that actually joins
// voice channels.
package presence

import "context"

// BlockReason enumerates why EnsureReady could not guarantee the assistant
// can join a voice channel.
type BlockReason int

const (
	// BlockNone is the zero value; never surfaced on a Blocked outcome.
	BlockNone BlockReason = iota

	// BlockAssistantNotMember means the assistant identity has not joined
	// the guild at all and has no self-service way to do so.
	BlockAssistantNotMember

	// BlockAssistantPrivacyRestricted means the assistant tried to join the
	// chat via an invite (vanity or bot-issued) and the platform rejected
	// the join itself.
	BlockAssistantPrivacyRestricted

	// BlockCannotInvite means the assistant was not already a member and
	// the bot identity lacked the rights to create an invite to bring it
	// in (the chat has no public handle to join by instead).
	BlockCannotInvite

	// BlockCannotPromote means the assistant lacks voice permissions and
	// the bot identity has no rights to grant them.
	BlockCannotPromote

	// BlockPlatformError means the platform call itself failed; callers
	// should treat this as transient and retriable.
	BlockPlatformError
)

// String implements fmt.Stringer.
func (r BlockReason) String() string {
	switch r {
	case BlockAssistantNotMember:
		return "assistant_not_member"
	case BlockAssistantPrivacyRestricted:
		return "assistant_privacy_restricted"
	case BlockCannotInvite:
		return "cannot_invite"
	case BlockCannotPromote:
		return "cannot_promote"
	case BlockPlatformError:
		return "platform_error"
	default:
		return "none"
	}
}

// Outcome is the result of [Coordinator.EnsureReady].
type Outcome struct {
	// Ready is true when the assistant identity is a guild member with
	// permission to connect and speak in the target voice channel.
	Ready bool

	// Reason explains a non-Ready outcome. Zero value when Ready is true.
	Reason BlockReason

	// Err carries the underlying platform error behind a non-Ready outcome,
	// when there is one.
	Err error
}

// Coordinator is the platform-agnostic contract the playback engine calls
// before joining voice. chatID identifies the guild, voiceChannelID the
// target channel within it.
type Coordinator interface {
	EnsureReady(ctx context.Context, chatID, voiceChannelID string) Outcome
}
