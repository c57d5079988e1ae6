package engine

import "time"

// positionTracker computes elapsed playback time: (is_paused ? paused_at :
// now) − started_at + initial offset. base accumulates all elapsed time
// from prior run segments, so a pause/resume cycle composes without drift.
type positionTracker struct {
	base      time.Duration
	startedAt time.Time
	paused    bool
	pausedAt  time.Time
}

// start begins a new run segment at offset `from` (0 for a fresh track,
// checkpoint position_seconds for a resumed one).
func (p *positionTracker) start(now time.Time, from time.Duration) {
	p.base = from
	p.startedAt = now
	p.paused = false
}

// pause freezes the tracker at now. Calling pause while already paused is a
// no-op (boundary behavior: Pause in Paused is a no-op).
func (p *positionTracker) pause(now time.Time) {
	if p.paused {
		return
	}
	p.paused = true
	p.pausedAt = now
}

// resume folds the frozen segment into base and starts a new one at now.
// Calling resume while not paused is a no-op.
func (p *positionTracker) resume(now time.Time) {
	if !p.paused {
		return
	}
	p.base += p.pausedAt.Sub(p.startedAt)
	p.startedAt = now
	p.paused = false
}

// elapsed returns the effective elapsed playback time as of now.
func (p *positionTracker) elapsed(now time.Time) time.Duration {
	if p.paused {
		return p.base + p.pausedAt.Sub(p.startedAt)
	}
	return p.base + now.Sub(p.startedAt)
}
