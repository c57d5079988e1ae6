// Package engine implements the per-chat playback state machine: exactly
// one actor per chat_id, consuming a sequential mailbox, owning that chat's
// Queue and PlaybackState exclusively.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/harmonium/harmonium/internal/observe"
	"github.com/harmonium/harmonium/internal/presence"
	"github.com/harmonium/harmonium/internal/queue"
	"github.com/harmonium/harmonium/internal/resolver"
	"github.com/harmonium/harmonium/internal/storage"
	"github.com/harmonium/harmonium/internal/transport"
)

// mailboxBuffer is generous enough that a burst of commands never blocks a
// caller on a slow chat; the actor still processes everything in order.
const mailboxBuffer = 64

// Config carries the tunables the engine itself reads. Per-requester rate
// limiting is enforced by the facade, not the engine.
type Config struct {
	// CheckpointInterval is how often a playing or paused actor rewrites
	// its checkpoint.
	CheckpointInterval time.Duration
	// ResolveTimeout bounds a single Resolver.Resolve call.
	ResolveTimeout time.Duration
	// StorageTimeout bounds a single checkpoint read or write.
	StorageTimeout time.Duration
	// MaxQueue is the maximum number of tracks a single chat's queue holds.
	MaxQueue int
	// WatchdogEpsilon is the slack added to a track's remaining duration
	// before the watchdog synthesizes StreamEnded.
	WatchdogEpsilon time.Duration
}

// DefaultConfig returns the engine's out-of-the-box tunables.
func DefaultConfig() Config {
	return Config{
		CheckpointInterval: 15 * time.Second,
		ResolveTimeout:     20 * time.Second,
		StorageTimeout:     5 * time.Second,
		MaxQueue:           50,
		WatchdogEpsilon:    2 * time.Second,
	}
}

// Deps bundles the external collaborators a chat actor depends on. All are
// shared across every actor in the process; Transport and Storage route and
// serialize per-chat work internally.
type Deps struct {
	Transport transport.Transport
	Resolver  resolver.Resolver
	Storage   storage.Store
	Presence  presence.Coordinator
	Logger    *slog.Logger
	Now       func() time.Time // overridable clock for tests; defaults to time.Now
	Metrics   *observe.Metrics // nil disables instrumentation (used in tests)
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Actor is one chat's playback state machine. Construct via [Registry.Get];
// do not build directly.
type Actor struct {
	chatID string
	deps   Deps
	cfg    Config
	events chan<- Event

	mailbox chan Msg
	done    chan struct{}

	status         Status
	q              *queue.Queue
	voiceChannelID string
	joined         bool // Transport.Join has succeeded and not yet been undone by Leave

	pos positionTracker

	watchdogTimer *time.Timer
	watchdogTrack string // track_id the armed watchdog is guarding
	ckptTicker    *time.Ticker

	resolveInFlight bool
	resolveCancel   context.CancelFunc
	pendingPlays    []Play
}

// newActor constructs an Actor and starts its mailbox loop. Callers must use
// [Registry] rather than calling this directly, so that exactly one actor
// exists per chat.
func newActor(chatID string, deps Deps, cfg Config, events chan<- Event) *Actor {
	a := &Actor{
		chatID:  chatID,
		deps:    deps,
		cfg:     cfg,
		events:  events,
		mailbox: make(chan Msg, mailboxBuffer),
		done:    make(chan struct{}),
		status:  Idle,
		q:       queue.New(cfg.MaxQueue),
	}
	go a.run()
	return a
}

// Send enqueues msg for processing. It never blocks indefinitely on a
// healthy actor (the mailbox is generously buffered) but will block if the
// mailbox is saturated, which is an overload condition the caller should
// propagate rather than silently drop.
func (a *Actor) Send(msg Msg) {
	select {
	case a.mailbox <- msg:
	case <-a.done:
	}
}

// run is the actor's single sequential loop. Every external effect this
// actor produces happens here, in mailbox order.
func (a *Actor) run() {
	var ckptC <-chan time.Time
	a.ckptTicker = time.NewTicker(a.cfg.CheckpointInterval)
	ckptC = a.ckptTicker.C
	defer a.ckptTicker.Stop()

	for {
		var watchdogC <-chan time.Time
		if a.watchdogTimer != nil {
			watchdogC = a.watchdogTimer.C
		}

		select {
		case msg, ok := <-a.mailbox:
			if !ok {
				return
			}
			a.handle(msg)
		case <-ckptC:
			a.handle(checkpointTick{})
		case <-watchdogC:
			a.handleWatchdogFire()
		}

		if a.status == Stopping {
			close(a.done)
			return
		}
	}
}

// handle dispatches one message. This is the single point every engine
// input passes through.
func (a *Actor) handle(msg Msg) {
	switch m := msg.(type) {
	case Play:
		a.handlePlay(m)
	case Pause:
		a.handlePause()
	case Resume:
		a.handleResume()
	case Skip:
		a.handleSkip()
	case Stop:
		a.handleStop()
	case SetLoop:
		a.q.SetLoopMode(m.Mode)
	case Shuffle:
		a.q.Shuffle()
		a.recordQueueOp("shuffle")
	case Remove:
		if a.q.Remove(m.Index) == nil {
			a.recordQueueOp("remove")
		}
	case Move:
		if a.q.Move(m.From, m.To) == nil {
			a.recordQueueOp("move")
		}
	case StreamEnded:
		a.handleStreamEnded(m.TrackID)
	case playAttemptResult:
		a.handlePlayAttempt(m)
	case checkpointTick:
		a.handleCheckpointTick()
	case Query:
		m.Reply <- a.snapshot()
	}
}

func (a *Actor) emit(ev Event) {
	select {
	case a.events <- ev:
	case <-a.done:
	}
}

func (a *Actor) snapshot() Snapshot {
	cur, ok := a.q.Current()
	return Snapshot{
		ChatID:          a.chatID,
		Status:          a.status,
		Current:         cur,
		HasCurrent:      ok,
		PositionSeconds: int(a.pos.elapsed(a.deps.now()).Seconds()),
		LoopMode:        a.q.LoopMode(),
		Queue:           a.q.All(),
		CurrentIndex:    a.q.CurrentIndex(),
	}
}
