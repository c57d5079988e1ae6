package queue

import (
	"testing"

	"github.com/harmonium/harmonium/internal/track"
)

func track1(id string) track.Track { return track.Track{TrackID: id, Title: id} }

func TestAddThenAdvanceStartsAtZero(t *testing.T) {
	q := New(0)
	if _, ok := q.Current(); ok {
		t.Fatal("expected no current track on empty queue")
	}
	if _, err := q.Add(track1("a")); err != nil {
		t.Fatal(err)
	}
	cur, ok := q.Advance()
	if !ok || cur.TrackID != "a" {
		t.Fatalf("got %+v, %v", cur, ok)
	}
	if q.CurrentIndex() != 0 {
		t.Fatalf("index = %d, want 0", q.CurrentIndex())
	}
}

func TestAdvanceEmptyQueueReturnsNoneWithoutMutating(t *testing.T) {
	q := New(0)
	before := q.CurrentIndex()
	_, ok := q.Advance()
	if ok {
		t.Fatal("expected no track from empty queue")
	}
	if q.CurrentIndex() != before {
		t.Fatalf("cursor mutated: %d -> %d", before, q.CurrentIndex())
	}
}

func TestAdvanceLoopTrackRepeats(t *testing.T) {
	q := New(0)
	q.Add(track1("a"))
	q.Advance()
	q.SetLoopMode(LoopTrack)
	cur, ok := q.Advance()
	if !ok || cur.TrackID != "a" {
		t.Fatalf("expected repeat of a, got %+v", cur)
	}
	if q.CurrentIndex() != 0 {
		t.Fatalf("index should stay 0, got %d", q.CurrentIndex())
	}
}

func TestAdvanceLoopQueueWraps(t *testing.T) {
	q := New(0)
	q.Add(track1("a"))
	q.Add(track1("b"))
	q.Advance() // -> a (index 0)
	q.Advance() // -> b (index 1)
	q.SetLoopMode(LoopQueue)
	cur, ok := q.Advance()
	if !ok || cur.TrackID != "a" || q.CurrentIndex() != 0 {
		t.Fatalf("expected wrap to a/0, got %+v idx=%d", cur, q.CurrentIndex())
	}
}

func TestAdvanceOffEndsAtDrain(t *testing.T) {
	q := New(0)
	q.Add(track1("a"))
	q.Advance()
	_, ok := q.Advance()
	if ok {
		t.Fatal("expected queue to drain")
	}
}

func TestRemoveBeforeCurrentDecrementsCursor(t *testing.T) {
	q := New(0)
	q.Add(track1("a"))
	q.Add(track1("b"))
	q.Add(track1("c"))
	q.Advance() // a
	q.Advance() // b, index 1
	if err := q.Remove(0); err != nil {
		t.Fatal(err)
	}
	if q.CurrentIndex() != 0 {
		t.Fatalf("index = %d, want 0", q.CurrentIndex())
	}
	cur, _ := q.Current()
	if cur.TrackID != "b" {
		t.Fatalf("current = %s, want b", cur.TrackID)
	}
}

func TestClearResetsCursor(t *testing.T) {
	q := New(0)
	q.Add(track1("a"))
	q.Advance()
	q.Clear()
	if q.CurrentIndex() != -1 || q.Len() != 0 {
		t.Fatalf("clear did not reset: idx=%d len=%d", q.CurrentIndex(), q.Len())
	}
}

func TestAddRespectsMaxSize(t *testing.T) {
	q := New(1)
	if _, err := q.Add(track1("a")); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Add(track1("b")); err != ErrQueueFull {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
}

func TestShuffleLeavesCurrentAndBeforeUntouched(t *testing.T) {
	q := New(0)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		q.Add(track1(id))
	}
	q.Advance() // current = a, index 0

	before := q.All()
	q.Shuffle()
	after := q.All()

	if after[0].TrackID != before[0].TrackID {
		t.Fatalf("current track moved: %s -> %s", before[0].TrackID, after[0].TrackID)
	}
}

func TestMoveTracksCursor(t *testing.T) {
	q := New(0)
	for _, id := range []string{"a", "b", "c"} {
		q.Add(track1(id))
	}
	q.Advance() // a, idx 0
	q.Advance() // b, idx 1
	if err := q.Move(0, 2); err != nil {
		t.Fatal(err)
	}
	if q.CurrentIndex() != 0 {
		t.Fatalf("index = %d, want 0 (b shifted left)", q.CurrentIndex())
	}
	cur, _ := q.Current()
	if cur.TrackID != "b" {
		t.Fatalf("current = %s, want b", cur.TrackID)
	}
}

func TestPage(t *testing.T) {
	q := New(0)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		q.Add(track1(id))
	}
	page, total := q.Page(2, 2)
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}
	if len(page) != 2 || page[0].TrackID != "c" {
		t.Fatalf("page = %+v", page)
	}
}

// TestCursorStaysInBoundsAcrossOperations exercises the current_index in
// [-1, len) invariant across a scripted sequence of operations.
func TestCursorStaysInBoundsAcrossOperations(t *testing.T) {
	q := New(0)
	ops := []func(){
		func() { q.Add(track1("a")) },
		func() { q.Add(track1("b")) },
		func() { q.Advance() },
		func() { q.Add(track1("c")) },
		func() { q.Advance() },
		func() { q.Remove(0) },
		func() { q.Shuffle() },
		func() { q.Advance() },
		func() { q.Clear() },
		func() { q.Advance() },
	}
	for i, op := range ops {
		op()
		if idx := q.CurrentIndex(); idx < -1 || idx >= q.Len() {
			t.Fatalf("step %d: cursor %d out of [-1,%d)", i, idx, q.Len())
		}
	}
}
