// Package facade is the sole caller of the playback engine and the sole
// consumer of its Events channel. It adds the one piece of policy the
// engine itself does not enforce — per-requester rate limiting — and
// adapts outbound [engine.Event] values into chat notifications via a
// caller-supplied [Notifier].
package facade

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/harmonium/harmonium/internal/engine"
)

// ErrRateLimited is returned by [Facade.Play] when the requester had a Play
// accepted more recently than the configured rate limit allows.
var ErrRateLimited = errors.New("facade: rate limited")

// Notifier is the narrow outbound interface the facade drives with every
// event an actor emits. Implementations own however chat notifications are
// actually delivered (posting or editing a Discord message, for instance).
type Notifier interface {
	Notify(ctx context.Context, ev engine.Event)
}

// Facade wraps the engine registry with per-requester rate limiting and
// drains the shared Events channel into a Notifier.
type Facade struct {
	reg       *engine.Registry
	events    <-chan engine.Event
	notifier  Notifier
	rateLimit time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu   sync.Mutex
	last map[string]time.Time // requester_id -> last accepted command
}

// New creates a Facade. rateLimit is the minimum gap between two accepted
// Play commands from the same requester; zero disables rate limiting.
func New(reg *engine.Registry, events <-chan engine.Event, notifier Notifier, rateLimit time.Duration, logger *slog.Logger) *Facade {
	if logger == nil {
		logger = slog.Default()
	}
	return &Facade{
		reg:       reg,
		events:    events,
		notifier:  notifier,
		rateLimit: rateLimit,
		logger:    logger,
		now:       time.Now,
		last:      make(map[string]time.Time),
	}
}

// Run drains the Events channel into the Notifier until ctx is cancelled or
// the channel is closed. Intended to run on its own goroutine for the
// lifetime of the process.
func (f *Facade) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-f.events:
			if !ok {
				return
			}
			f.notifier.Notify(ctx, ev)
		}
	}
}

// Play forwards req to chatID's actor, rejecting it with ErrRateLimited if
// req.RequesterID issued an accepted Play more recently than the configured
// rate limit.
func (f *Facade) Play(chatID string, req engine.Play) error {
	if !f.allow(req.RequesterID) {
		return ErrRateLimited
	}
	f.reg.Get(chatID).Send(req)
	return nil
}

func (f *Facade) allow(requesterID string) bool {
	if f.rateLimit <= 0 {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	if last, ok := f.last[requesterID]; ok && now.Sub(last) < f.rateLimit {
		return false
	}
	f.last[requesterID] = now
	return true
}

// Pause, Resume, Skip, and Stop are not rate limited: they act on an
// already-playing chat rather than triggering a new resolve.

func (f *Facade) Pause(chatID string)  { f.reg.Get(chatID).Send(engine.Pause{}) }
func (f *Facade) Resume(chatID string) { f.reg.Get(chatID).Send(engine.Resume{}) }
func (f *Facade) Skip(chatID string)   { f.reg.Get(chatID).Send(engine.Skip{}) }
func (f *Facade) Stop(chatID string)   { f.reg.Stop(chatID) }

// SetLoop changes chatID's loop mode.
func (f *Facade) SetLoop(chatID string, mode engine.Msg) {
	f.reg.Get(chatID).Send(mode)
}

// Shuffle randomizes chatID's queue tail.
func (f *Facade) Shuffle(chatID string) { f.reg.Get(chatID).Send(engine.Shuffle{}) }

// Remove deletes the track at index from chatID's queue.
func (f *Facade) Remove(chatID string, index int) {
	f.reg.Get(chatID).Send(engine.Remove{Index: index})
}

// Move relocates a queue entry within chatID's queue.
func (f *Facade) Move(chatID string, from, to int) {
	f.reg.Get(chatID).Send(engine.Move{From: from, To: to})
}

// defaultQueryTimeout bounds how long Snapshot waits for an actor to reply;
// a healthy actor answers almost immediately since Query is just another
// mailbox message.
const defaultQueryTimeout = 2 * time.Second

// Snapshot returns a read-only view of chatID's current playback state.
func (f *Facade) Snapshot(ctx context.Context, chatID string) (engine.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	reply := make(chan engine.Snapshot, 1)
	f.reg.Get(chatID).Send(engine.Query{Reply: reply})

	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return engine.Snapshot{}, ctx.Err()
	}
}
