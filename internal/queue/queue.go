// Package queue implements the per-chat ordered track sequence owned
// exclusively by a single playback engine actor.
package queue

import (
	"errors"
	"math/rand/v2"

	"github.com/harmonium/harmonium/internal/track"
)

// LoopMode controls how [Queue.Advance] behaves once the current track ends.
type LoopMode int

const (
	// LoopOff advances normally and stops when the queue is exhausted.
	LoopOff LoopMode = iota
	// LoopTrack repeats the current track indefinitely.
	LoopTrack
	// LoopQueue wraps back to the first track once the queue is exhausted.
	LoopQueue
)

// String returns the config/UI spelling of the loop mode.
func (m LoopMode) String() string {
	switch m {
	case LoopTrack:
		return "track"
	case LoopQueue:
		return "queue"
	default:
		return "off"
	}
}

// ErrQueueFull is returned by [Queue.Add] once MaxSize tracks are queued.
var ErrQueueFull = errors.New("queue: at capacity")

// ErrIndexOutOfRange is returned by [Queue.Remove] and [Queue.Move] for an
// out-of-bounds index.
var ErrIndexOutOfRange = errors.New("queue: index out of range")

// Queue is the ordered sequence of tracks for one chat. It is not safe for
// concurrent use — callers (the playback engine actor) must serialize access.
type Queue struct {
	// MaxSize caps the number of tracks [Add] accepts. Zero means unbounded.
	MaxSize int

	tracks       []track.Track
	currentIndex int // -1 = none
	loopMode     LoopMode
}

// New creates an empty Queue with the given capacity (the configured max
// queue size; zero means unbounded).
func New(maxSize int) *Queue {
	return &Queue{MaxSize: maxSize, currentIndex: -1}
}

// Len returns the number of tracks currently queued.
func (q *Queue) Len() int {
	return len(q.tracks)
}

// CurrentIndex returns the cursor into the track sequence, or -1 if there is
// no current track (nothing has played yet, or the queue has drained).
func (q *Queue) CurrentIndex() int {
	return q.currentIndex
}

// LoopMode returns the active loop mode.
func (q *Queue) LoopMode() LoopMode {
	return q.loopMode
}

// SetLoopMode changes the loop mode.
func (q *Queue) SetLoopMode(mode LoopMode) {
	q.loopMode = mode
}

// Add appends track to the end of the queue and returns its 1-based display
// position. The cursor is untouched — callers use [Queue.Advance] to start
// playback from an empty queue.
func (q *Queue) Add(t track.Track) (int, error) {
	if q.MaxSize > 0 && len(q.tracks) >= q.MaxSize {
		return 0, ErrQueueFull
	}
	q.tracks = append(q.tracks, t)
	return len(q.tracks), nil
}

// Current returns the track at the cursor, or false if there is none.
func (q *Queue) Current() (track.Track, bool) {
	if q.currentIndex < 0 || q.currentIndex >= len(q.tracks) {
		return track.Track{}, false
	}
	return q.tracks[q.currentIndex], true
}

// Advance moves the cursor to the next track per the active loop mode and
// returns it, or returns false if playback should stop.
//
//   - LoopTrack with a current track repeats it.
//   - Otherwise the cursor increments; if it runs off the end, LoopQueue
//     wraps to zero, anything else reports no next track.
//
// When Advance reports no next track it only resets the cursor to -1; the
// tracks themselves are left in place. On an empty queue the cursor is
// already -1, so nothing changes.
func (q *Queue) Advance() (track.Track, bool) {
	if q.loopMode == LoopTrack {
		if cur, ok := q.Current(); ok {
			return cur, true
		}
	}

	if len(q.tracks) == 0 {
		q.currentIndex = -1
		return track.Track{}, false
	}

	next := q.currentIndex + 1
	if next >= len(q.tracks) {
		if q.loopMode == LoopQueue {
			q.currentIndex = 0
			return q.tracks[0], true
		}
		q.currentIndex = -1
		return track.Track{}, false
	}

	q.currentIndex = next
	return q.tracks[next], true
}

// Remove deletes the track at index. If index is before the current cursor,
// the cursor decrements to keep pointing at the same logical track; if index
// is the current track itself, the cursor also decrements, to the track
// before it (or -1).
func (q *Queue) Remove(index int) error {
	if index < 0 || index >= len(q.tracks) {
		return ErrIndexOutOfRange
	}
	q.tracks = append(q.tracks[:index], q.tracks[index+1:]...)
	if index <= q.currentIndex {
		q.currentIndex--
	}
	if q.currentIndex >= len(q.tracks) {
		q.currentIndex = len(q.tracks) - 1
	}
	return nil
}

// Move relocates the track at from to position to, shifting the cursor so it
// continues to point at the same logical track.
func (q *Queue) Move(from, to int) error {
	if from < 0 || from >= len(q.tracks) || to < 0 || to >= len(q.tracks) {
		return ErrIndexOutOfRange
	}
	if from == to {
		return nil
	}

	t := q.tracks[from]
	q.tracks = append(q.tracks[:from], q.tracks[from+1:]...)
	q.tracks = append(q.tracks[:to], append([]track.Track{t}, q.tracks[to:]...)...)

	switch {
	case q.currentIndex == from:
		q.currentIndex = to
	case from < q.currentIndex && q.currentIndex <= to:
		q.currentIndex--
	case to <= q.currentIndex && q.currentIndex < from:
		q.currentIndex++
	}
	return nil
}

// Shuffle randomizes the order of tracks strictly after the current cursor,
// leaving the currently playing track and everything before it untouched.
func (q *Queue) Shuffle() {
	start := q.currentIndex + 1
	if start < 0 {
		start = 0
	}
	tail := q.tracks[start:]
	rand.Shuffle(len(tail), func(i, j int) {
		tail[i], tail[j] = tail[j], tail[i]
	})
}

// Clear empties the queue and resets the cursor to -1.
func (q *Queue) Clear() {
	q.tracks = nil
	q.currentIndex = -1
}

// Page returns a size-bounded slice of the full queue (1-indexed page n) and
// the total number of pages.
func (q *Queue) Page(n, size int) ([]track.Track, int) {
	if size <= 0 {
		size = len(q.tracks)
		if size == 0 {
			return nil, 0
		}
	}
	total := (len(q.tracks) + size - 1) / size
	if total == 0 {
		return nil, 0
	}
	if n < 1 {
		n = 1
	}
	if n > total {
		n = total
	}
	start := (n - 1) * size
	end := start + size
	if end > len(q.tracks) {
		end = len(q.tracks)
	}
	out := make([]track.Track, end-start)
	copy(out, q.tracks[start:end])
	return out, total
}

// All returns a copy of the full track sequence, for checkpoint rehydration
// and diagnostics.
func (q *Queue) All() []track.Track {
	out := make([]track.Track, len(q.tracks))
	copy(out, q.tracks)
	return out
}
