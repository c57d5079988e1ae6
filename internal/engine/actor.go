package engine

import (
	"context"
	"errors"
	"time"

	"github.com/harmonium/harmonium/internal/resolver"
	"github.com/harmonium/harmonium/internal/storage"
	"github.com/harmonium/harmonium/internal/track"
	"github.com/harmonium/harmonium/internal/transport"
)

// playAttemptResult is delivered back into the mailbox once a Play's
// background resolve (and, for the first track, presence check and voice
// join) finishes. It is never constructed outside beginResolve's goroutine.
type playAttemptResult struct {
	req         Play
	tr          track.Track
	didJoin     bool
	err         error
	phase       string // "resolve", "presence", or "transport"
	blockReason string
}

func (playAttemptResult) isMsg() {}

// handlePlay either starts resolving req immediately or, if a resolve for
// this chat is already in flight, queues it behind the one ahead of it so
// resolves stay strictly ordered and the mailbox never blocks waiting on
// one.
func (a *Actor) handlePlay(req Play) {
	if a.status == Stopping {
		return
	}
	if a.resolveInFlight {
		a.pendingPlays = append(a.pendingPlays, req)
		return
	}
	if a.status == Idle {
		a.status = Resolving
	}
	a.beginResolve(req)
}

// beginResolve runs req's resolve, and — if this chat hasn't joined voice
// yet — the presence check and voice join, entirely off the mailbox
// goroutine. The outcome comes back as a playAttemptResult message so every
// mutation of actor state still happens on the single mailbox loop.
func (a *Actor) beginResolve(req Play) {
	a.resolveInFlight = true
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ResolveTimeout)
	a.resolveCancel = cancel
	needsJoin := !a.joined

	go func() {
		defer cancel()

		resolveStart := a.deps.now()
		tr, err := a.deps.Resolver.Resolve(ctx, req.Query)
		if a.deps.Metrics != nil {
			a.deps.Metrics.ResolveDuration.Record(ctx, a.deps.now().Sub(resolveStart).Seconds())
		}
		if err != nil {
			if a.deps.Metrics != nil {
				a.deps.Metrics.RecordResolveError(ctx, resolveErrorKind(err))
			}
			a.Send(playAttemptResult{req: req, err: err, phase: "resolve"})
			return
		}

		if needsJoin {
			outcome := a.deps.Presence.EnsureReady(ctx, a.chatID, req.VoiceChannelID)
			if a.deps.Metrics != nil {
				a.deps.Metrics.RecordPresenceOutcome(ctx, outcome.Reason.String())
			}
			if !outcome.Ready {
				err := outcome.Err
				if err == nil {
					err = errors.New("assistant not ready")
				}
				a.Send(playAttemptResult{req: req, err: err, phase: "presence", blockReason: outcome.Reason.String()})
				return
			}

			joinErr := a.deps.Transport.Join(ctx, a.chatID, req.VoiceChannelID)
			if joinErr != nil && !errors.Is(joinErr, transport.ErrAlreadyJoined) {
				a.recordTransportError(ctx, "join")
				a.Send(playAttemptResult{req: req, err: joinErr, phase: "transport"})
				return
			}
			if err := a.deps.Transport.ChangeStream(ctx, a.chatID, tr.StreamURL, req.SeekSeconds); err != nil {
				a.recordTransportError(ctx, "change_stream")
				a.Send(playAttemptResult{req: req, err: err, phase: "transport"})
				return
			}
		}

		a.Send(playAttemptResult{req: req, tr: tr, didJoin: needsJoin})
	}()
}

// handlePlayAttempt applies the outcome of a finished beginResolve call.
func (a *Actor) handlePlayAttempt(m playAttemptResult) {
	a.resolveInFlight = false
	a.resolveCancel = nil

	// Stop tore everything down while this attempt was in flight; a
	// cancelled resolve must not cause a state transition.
	if a.status == Stopping {
		return
	}

	if m.err != nil {
		switch m.phase {
		case "resolve":
			a.emit(ResolveFailed{base: base{a.chatID}, Query: m.req.Query, Err: m.err})
		case "presence":
			a.emit(AssistantBlocked{base: base{a.chatID}, Reason: m.blockReason})
		case "transport":
			a.emit(TransportFailed{base: base{a.chatID}, Err: m.err})
		}
		if a.status == Resolving && !a.joined {
			a.status = Idle
		}
		a.processNextPending()
		return
	}

	pos, err := a.q.Add(m.tr)
	if err != nil {
		a.emit(TransportFailed{base: base{a.chatID}, Err: err})
		if a.status == Resolving && !a.joined {
			a.status = Idle
		}
		a.processNextPending()
		return
	}
	a.recordQueueOp("add")

	if m.didJoin {
		a.joined = true
		a.voiceChannelID = m.req.VoiceChannelID
		a.q.Advance()
		a.pos.start(a.deps.now(), time.Duration(m.req.SeekSeconds)*time.Second)
		a.status = Playing
		a.armWatchdog(m.tr)
		a.writeCheckpoint()
		if m.req.SeekSeconds > 0 {
			a.emit(ResumeNotice{base: base{a.chatID}, Track: m.tr})
		} else {
			a.emit(NowPlaying{base: base{a.chatID}, Track: m.tr, Position: pos})
		}
	} else {
		a.emit(Queued{base: base{a.chatID}, Track: m.tr, Position: pos})
	}

	a.processNextPending()
}

// processNextPending starts resolving the next queued Play, if any.
func (a *Actor) processNextPending() {
	if len(a.pendingPlays) == 0 {
		return
	}
	next := a.pendingPlays[0]
	a.pendingPlays = a.pendingPlays[1:]
	if a.status == Idle {
		a.status = Resolving
	}
	a.beginResolve(next)
}

func (a *Actor) handlePause() {
	if a.status != Playing {
		return
	}
	a.status = PausedState
	a.pos.pause(a.deps.now())
	a.disarmWatchdog()
	_ = a.deps.Transport.Pause(a.chatID)
	a.writeCheckpoint()
	a.emit(Paused{base{a.chatID}})
}

func (a *Actor) handleResume() {
	if a.status != PausedState {
		return
	}
	a.status = Playing
	a.pos.resume(a.deps.now())
	_ = a.deps.Transport.Resume(a.chatID)
	if cur, ok := a.q.Current(); ok {
		a.armWatchdog(cur)
	}
	a.writeCheckpoint()
	a.emit(Resumed{base{a.chatID}})
}

func (a *Actor) handleSkip() {
	if a.status != Playing && a.status != PausedState {
		return
	}
	a.disarmWatchdog()
	a.recordQueueOp("skip")
	a.advanceQueueOrStop()
}

// handleStreamEnded applies the transport's or the watchdog's belief that
// trackID finished. It is ignored unless trackID still matches what the
// actor believes is current, guarding against a signal racing a Skip or a
// fresh ChangeStream that already moved playback on.
func (a *Actor) handleStreamEnded(trackID string) {
	if a.status != Playing {
		return
	}
	cur, ok := a.q.Current()
	if !ok || cur.TrackID != trackID {
		return
	}
	a.disarmWatchdog()
	a.advanceQueueOrStop()
}

// advanceQueueOrStop moves the queue cursor forward and either starts
// streaming the next track or, once the queue is drained, leaves voice.
func (a *Actor) advanceQueueOrStop() {
	next, ok := a.q.Advance()
	if !ok {
		a.doLeaveAndCleanup()
		return
	}

	a.pos.start(a.deps.now(), 0)
	a.status = Playing
	if err := a.deps.Transport.ChangeStream(context.Background(), a.chatID, next.StreamURL, 0); err != nil {
		a.recordTransportError(context.Background(), "change_stream")
		a.emit(TransportFailed{base{a.chatID}, err})
	}
	a.armWatchdog(next)
	a.writeCheckpoint()
	a.emit(NowPlaying{base: base{a.chatID}, Track: next, Position: a.q.CurrentIndex() + 1})
}

// doLeaveAndCleanup leaves voice and returns the actor to Idle, ready to
// accept a fresh Play without being torn down the way Stop tears it down.
func (a *Actor) doLeaveAndCleanup() {
	a.disarmWatchdog()
	_ = a.deps.Transport.Leave(a.chatID)
	a.joined = false
	a.voiceChannelID = ""
	a.q.Clear()
	a.status = Idle
	a.deleteCheckpoint()
	a.emit(Stopped{base{a.chatID}})
}

// handleStop idempotently tears the actor down: a Stop that arrives after
// the actor already transitioned to Stopping is a no-op, since run() closes
// the mailbox loop right after the first one is handled.
func (a *Actor) handleStop() {
	if a.status == Stopping {
		return
	}
	if a.resolveCancel != nil {
		a.resolveCancel()
	}
	a.pendingPlays = nil
	a.disarmWatchdog()
	if a.joined {
		_ = a.deps.Transport.Leave(a.chatID)
	}
	a.q.Clear()
	a.deleteCheckpoint()
	a.status = Stopping
	a.emit(Stopped{base{a.chatID}})
}

// handleWatchdogFire re-injects a synthetic StreamEnded for the track the
// armed timer was guarding. Routing it back through handle (rather than
// calling advanceQueueOrStop directly) keeps the same staleness guard that
// a genuine transport signal gets.
func (a *Actor) handleWatchdogFire() {
	trackID := a.watchdogTrack
	a.watchdogTimer = nil
	a.watchdogTrack = ""
	a.handle(StreamEnded{TrackID: trackID})
}

// armWatchdog schedules a synthetic StreamEnded for tr.DurationSeconds from
// now (plus a small epsilon), so a transport that silently drops its
// end-of-stream signal doesn't stall the chat forever. Live tracks (zero
// duration) never get a watchdog — only the transport's own signal can
// advance those.
func (a *Actor) armWatchdog(tr track.Track) {
	a.disarmWatchdog()
	if tr.IsLive() {
		return
	}
	elapsed := a.pos.elapsed(a.deps.now())
	remaining := time.Duration(tr.DurationSeconds)*time.Second - elapsed + a.cfg.WatchdogEpsilon
	if remaining <= 0 {
		remaining = a.cfg.WatchdogEpsilon
	}
	a.watchdogTrack = tr.TrackID
	a.watchdogTimer = time.NewTimer(remaining)
}

func (a *Actor) disarmWatchdog() {
	if a.watchdogTimer != nil {
		a.watchdogTimer.Stop()
		a.watchdogTimer = nil
	}
	a.watchdogTrack = ""
}

func (a *Actor) handleCheckpointTick() {
	if a.status == Playing || a.status == PausedState {
		a.writeCheckpoint()
	}
}

func (a *Actor) writeCheckpoint() {
	cur, ok := a.q.Current()
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.StorageTimeout)
	defer cancel()

	writeStart := a.deps.now()
	cp := storage.Checkpoint{
		ChatID:         a.chatID,
		VoiceChannelID: a.voiceChannelID,
		Track: storage.CheckpointTrack{
			ID:               cur.TrackID,
			Title:            cur.Title,
			Duration:         cur.DurationSeconds,
			SourceURL:        cur.SourceURL,
			StreamURL:        cur.StreamURL,
			FileRef:          cur.FileRef,
			RequesterID:      cur.RequesterID,
			RequesterDisplay: cur.RequesterDisplay,
		},
		PositionSeconds: int(a.pos.elapsed(a.deps.now()).Seconds()),
		IsPaused:        a.status == PausedState,
		SavedAtUnix:     a.deps.now().Unix(),
	}
	if err := a.deps.Storage.Set(ctx, cp.Key(), cp); err != nil {
		a.deps.Logger.Warn("checkpoint write failed", "chat_id", a.chatID, "error", err)
	}
	if a.deps.Metrics != nil {
		a.deps.Metrics.CheckpointWriteDuration.Record(ctx, a.deps.now().Sub(writeStart).Seconds())
	}
}

func (a *Actor) deleteCheckpoint() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.StorageTimeout)
	defer cancel()
	if err := a.deps.Storage.Delete(ctx, storage.ChatKeyPrefix+a.chatID); err != nil {
		a.deps.Logger.Warn("checkpoint delete failed", "chat_id", a.chatID, "error", err)
	}
}

// recordTransportError increments the transport error counter for op, if
// metrics are configured.
func (a *Actor) recordTransportError(ctx context.Context, op string) {
	if a.deps.Metrics != nil {
		a.deps.Metrics.RecordTransportError(ctx, op)
	}
}

// recordQueueOp increments the queue operation counter for op, if metrics
// are configured.
func (a *Actor) recordQueueOp(op string) {
	if a.deps.Metrics != nil {
		a.deps.Metrics.RecordQueueOp(context.Background(), op)
	}
}

// resolveErrorKind maps a resolver error into the low-cardinality label
// used by [observe.Metrics.ResolveErrors].
func resolveErrorKind(err error) string {
	switch {
	case errors.Is(err, resolver.ErrNotFound):
		return "not_found"
	case errors.Is(err, resolver.ErrForbidden):
		return "forbidden"
	case errors.Is(err, resolver.ErrUnavailable):
		return "unavailable"
	default:
		return "other"
	}
}
