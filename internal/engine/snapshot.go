package engine

import (
	"github.com/harmonium/harmonium/internal/queue"
	"github.com/harmonium/harmonium/internal/track"
)

// Status is the playback engine's state machine position.
type Status int

const (
	Idle Status = iota
	// Resolving covers both the resolver lookup and, for a chat's first
	// track, the presence check and voice join — they share identical
	// failure handling, so they are one externally-visible phase.
	Resolving
	Playing
	PausedState
	Stopping
)

// String returns the lowercase name used in logs and diagnostics.
func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Resolving:
		return "resolving"
	case Playing:
		return "playing"
	case PausedState:
		return "paused"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Snapshot is a read-only view of an actor's state, returned in answer to a
// Query message. It is a copy — mutating it has no effect on the actor.
type Snapshot struct {
	ChatID          string
	Status          Status
	Current         track.Track
	HasCurrent      bool
	PositionSeconds int
	LoopMode        queue.LoopMode
	Queue           []track.Track
	CurrentIndex    int
}
