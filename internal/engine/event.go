package engine

import "github.com/harmonium/harmonium/internal/track"

// Event is an outbound, externally-visible effect an actor emits on its
// Events channel: an announcement, a keyboard update, or an error to show
// the user. The Command Facade is the sole consumer. Events for one chat
// are emitted in the same order as the messages that produced them.
type Event interface {
	isEvent()
	ChatID() string
}

type base struct{ chatID string }

func (b base) ChatID() string { return b.chatID }

// NowPlaying is emitted whenever playback starts or changes to a new track
// (initial Play, Skip, StreamEnded advance). A Play replayed from a
// checkpoint (non-zero SeekSeconds) emits [ResumeNotice] instead.
type NowPlaying struct {
	base
	Track    track.Track
	Position int
}

func (NowPlaying) isEvent() {}

// Queued is emitted when a track is appended to a queue that is already
// playing.
type Queued struct {
	base
	Track    track.Track
	Position int
}

func (Queued) isEvent() {}

// Stopped is emitted when the actor leaves voice, whether from an explicit
// Stop or a natural queue drain.
type Stopped struct{ base }

func (Stopped) isEvent() {}

// Paused and Resumed mirror the corresponding transitions for keyboard/UI
// state in the facade.
type Paused struct{ base }

func (Paused) isEvent() {}

type Resumed struct{ base }

func (Resumed) isEvent() {}

// ResolveFailed carries a resolver error (NotFound/Unavailable/Forbidden) to
// show the user. It never causes a state transition.
type ResolveFailed struct {
	base
	Query string
	Err   error
}

func (ResolveFailed) isEvent() {}

// TransportFailed surfaces a non-recoverable transport error.
type TransportFailed struct {
	base
	Err error
}

func (TransportFailed) isEvent() {}

// AssistantBlocked surfaces an assistant-presence failure with its reason.
type AssistantBlocked struct {
	base
	Reason string
}

func (AssistantBlocked) isEvent() {}

// ResumeNotice is emitted by a rehydrated actor announcing it is resuming a
// session from before a restart (best-effort; platform errors on sending it
// are ignored by the facade).
type ResumeNotice struct {
	base
	Track track.Track
}

func (ResumeNotice) isEvent() {}
