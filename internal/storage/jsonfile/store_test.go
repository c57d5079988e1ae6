package jsonfile

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/harmonium/harmonium/internal/storage"
)

func TestSetGetDelete(t *testing.T) {
	ctx := context.Background()
	s := New(filepath.Join(t.TempDir(), "state.json"))

	cp := storage.Checkpoint{
		ChatID:          "100",
		Track:           storage.CheckpointTrack{ID: "t1", Title: "sunrise", Duration: 180},
		PositionSeconds: 30,
		SavedAtUnix:     1000,
	}

	if err := s.Set(ctx, cp.Key(), cp); err != nil {
		t.Fatal(err)
	}

	got, ok, err := s.Get(ctx, cp.Key())
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Track.Title != "sunrise" || got.PositionSeconds != 30 {
		t.Fatalf("got %+v", got)
	}

	if err := s.Delete(ctx, cp.Key()); err != nil {
		t.Fatal(err)
	}
	_, ok, err = s.Get(ctx, cp.Key())
	if err != nil || ok {
		t.Fatalf("expected absent after delete, ok=%v err=%v", ok, err)
	}

	// Delete is idempotent.
	if err := s.Delete(ctx, cp.Key()); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
}

func TestScanPrefix(t *testing.T) {
	ctx := context.Background()
	s := New(filepath.Join(t.TempDir(), "state.json"))

	for _, id := range []string{"100", "200", "300"} {
		cp := storage.Checkpoint{ChatID: id, Track: storage.CheckpointTrack{ID: "t"}}
		if err := s.Set(ctx, cp.Key(), cp); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := s.Scan(ctx, storage.ChatKeyPrefix)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
}

func TestSetOverwritesExistingKey(t *testing.T) {
	ctx := context.Background()
	s := New(filepath.Join(t.TempDir(), "state.json"))
	cp := storage.Checkpoint{ChatID: "1", PositionSeconds: 5}
	s.Set(ctx, cp.Key(), cp)
	cp.PositionSeconds = 50
	s.Set(ctx, cp.Key(), cp)

	got, _, err := s.Get(ctx, cp.Key())
	if err != nil {
		t.Fatal(err)
	}
	if got.PositionSeconds != 50 {
		t.Fatalf("position = %d, want 50 (last writer wins)", got.PositionSeconds)
	}
}
