// Package transport defines the contract for joining a voice channel and
// streaming a track into it. Concrete implementations (see transport/discord)
// own the platform-specific voice connection and audio pipeline; the
// playback engine only ever talks to this interface.
package transport

import (
	"context"
	"errors"
)

// Sentinel transport errors. When Join reports ErrAlreadyJoined the engine
// treats the join as done and goes on to ChangeStream; it surfaces
// ErrNoActiveCall to the user unchanged.
var (
	// ErrNoActiveCall means the platform has no live voice-chat in this
	// chat to join.
	ErrNoActiveCall = errors.New("transport: no active voice chat")

	// ErrAlreadyJoined means the transport is already connected to this
	// chat's voice channel; callers should fall back to ChangeStream.
	ErrAlreadyJoined = errors.New("transport: already joined")
)

// Transport joins voice channels and streams audio into them. All methods
// are keyed by chatID (the guild/chat the playback engine is driving) and
// must be safe to call from the engine's single mailbox goroutine for that
// chat — implementations do not need internal per-chat locking beyond what
// concurrent chats require.
type Transport interface {
	// Join connects to voiceChannelID within chatID. Calling Join again for a
	// chat that is already joined moves the connection to the new channel.
	Join(ctx context.Context, chatID, voiceChannelID string) error

	// ChangeStream starts streaming streamURL from seekSeconds into chatID's
	// active voice connection, replacing whatever was playing. seekSeconds is
	// 0 for a fresh track and > 0 when resuming a checkpoint mid-track.
	ChangeStream(ctx context.Context, chatID, streamURL string, seekSeconds int) error

	// Pause suspends audio output without tearing down the stream.
	Pause(chatID string) error

	// Resume continues audio output after a Pause.
	Resume(chatID string) error

	// Leave disconnects from voice and releases all resources associated
	// with chatID. It is safe to call on a chat that was never joined.
	Leave(chatID string) error
}

// StreamEndedFunc is invoked asynchronously, on an internal goroutine, when
// the stream started by ChangeStream reaches end-of-file on its own (not as
// a result of Pause, ChangeStream, or Leave). The playback engine uses this
// to advance the queue.
type StreamEndedFunc func(chatID string)
