package engine

import "github.com/harmonium/harmonium/internal/queue"

// Msg is the tagged sum type every engine input funnels through: user
// commands, the transport's stream-ended signal, timer firings, and
// checkpoint ticks. Keeping them as one closed set is what makes the
// actor's FIFO ordering guarantee enforceable — everything that can happen
// to a chat is one value processed by one loop.
type Msg interface{ isMsg() }

// Play requests a track be resolved and queued, starting playback if the
// actor is Idle. VoiceChannelID is the platform voice channel to join;
// SeekSeconds is non-zero only for the Resume Controller's internal replay
// of a checkpoint.
type Play struct {
	Query            string
	RequesterID      string
	RequesterDisplay string
	VoiceChannelID   string
	SeekSeconds      int
}

// Pause suspends the currently playing track. A no-op if already Paused.
type Pause struct{}

// Resume continues a paused track. A no-op if not Paused.
type Resume struct{}

// Skip advances the queue past the current track.
type Skip struct{}

// Stop tears down the actor: leaves voice, clears the queue, deletes the
// checkpoint. Idempotent.
type Stop struct{}

// SetLoop changes the queue's loop mode.
type SetLoop struct{ Mode queue.LoopMode }

// Shuffle randomizes the queue tail.
type Shuffle struct{}

// Remove deletes the track at the given 0-based queue index.
type Remove struct{ Index int }

// Move relocates a queue entry.
type Move struct{ From, To int }

// StreamEnded signals that the transport (or a watchdog timer) believes the
// named track has finished. TrackID guards against a stale signal racing a
// fresh ChangeStream: the actor only advances if TrackID still matches what
// it believes is playing.
type StreamEnded struct{ TrackID string }

// checkpointTick is the internal timer message driving periodic Storage
// writes. Unexported: nothing outside the engine ever constructs one.
type checkpointTick struct{}

// Query asks the actor for a read-only snapshot of its state. Reply must be
// buffered (capacity 1) or the actor could block sending to it.
type Query struct{ Reply chan Snapshot }

func (Play) isMsg()           {}
func (Pause) isMsg()          {}
func (Resume) isMsg()         {}
func (Skip) isMsg()           {}
func (Stop) isMsg()           {}
func (SetLoop) isMsg()        {}
func (Shuffle) isMsg()        {}
func (Remove) isMsg()         {}
func (Move) isMsg()           {}
func (StreamEnded) isMsg()    {}
func (checkpointTick) isMsg() {}
func (Query) isMsg()          {}
