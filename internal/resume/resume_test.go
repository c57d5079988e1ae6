package resume

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harmonium/harmonium/internal/engine"
	"github.com/harmonium/harmonium/internal/presence"
	"github.com/harmonium/harmonium/internal/storage"
	"github.com/harmonium/harmonium/internal/storage/jsonfile"
	"github.com/harmonium/harmonium/internal/track"
)

// testResolver always succeeds, echoing the query back as the track's title.
type testResolver struct{}

func (testResolver) Resolve(ctx context.Context, query string) (track.Track, error) {
	return track.Track{TrackID: "t-" + query, Title: query, DurationSeconds: 120, StreamURL: "stream://" + query}, nil
}

type testPresence struct{}

func (testPresence) EnsureReady(ctx context.Context, chatID, voiceChannelID string) presence.Outcome {
	return presence.Outcome{Ready: true}
}

type testTransport struct{}

func (testTransport) Join(ctx context.Context, chatID, voiceChannelID string) error { return nil }
func (testTransport) ChangeStream(ctx context.Context, chatID, streamURL string, seekSeconds int) error {
	return nil
}
func (testTransport) Pause(chatID string) error  { return nil }
func (testTransport) Resume(chatID string) error { return nil }
func (testTransport) Leave(chatID string) error  { return nil }

func newTestRegistry(t *testing.T, store storage.Store) *engine.Registry {
	t.Helper()
	events := make(chan engine.Event, 64)
	deps := engine.Deps{
		Transport: testTransport{},
		Resolver:  testResolver{},
		Storage:   store,
		Presence:  testPresence{},
		Logger:    slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
	}
	cfg := engine.DefaultConfig()
	return engine.NewRegistry(deps, cfg, events)
}

func newStore(t *testing.T) storage.Store {
	t.Helper()
	return jsonfile.New(filepath.Join(t.TempDir(), "state.json"))
}

func TestRunRehydratesValidCheckpoints(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	cp := storage.Checkpoint{
		ChatID:          "chat-1",
		VoiceChannelID:  "vc-1",
		Track:           storage.CheckpointTrack{ID: "t1", Title: "sunrise", SourceURL: "https://example.com/sunrise"},
		PositionSeconds: 42,
	}
	if err := store.Set(ctx, cp.Key(), cp); err != nil {
		t.Fatal(err)
	}

	reg := newTestRegistry(t, store)
	c := New(store, reg, nil, 0)
	notices := c.Run(ctx)

	if len(notices) != 1 {
		t.Fatalf("notices = %d, want 1", len(notices))
	}
	if !notices[0].Resumed {
		t.Fatalf("expected resumed, got %+v", notices[0])
	}
	if notices[0].ChatID != "chat-1" || notices[0].VoiceChannelID != "vc-1" {
		t.Fatalf("unexpected notice: %+v", notices[0])
	}
}

func TestRunDropsCheckpointMissingVoiceChannel(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	cp := storage.Checkpoint{
		ChatID: "chat-2",
		Track:  storage.CheckpointTrack{ID: "t2", Title: "dusk"},
	}
	if err := store.Set(ctx, cp.Key(), cp); err != nil {
		t.Fatal(err)
	}

	reg := newTestRegistry(t, store)
	c := New(store, reg, nil, 0)
	notices := c.Run(ctx)

	if len(notices) != 1 || notices[0].Resumed {
		t.Fatalf("expected dropped notice, got %+v", notices)
	}

	if _, ok, _ := store.Get(ctx, cp.Key()); ok {
		t.Fatal("expected checkpoint to be deleted")
	}
}

func TestRunDropsCheckpointWithMissingFileRef(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	cp := storage.Checkpoint{
		ChatID:         "chat-3",
		VoiceChannelID: "vc-3",
		Track:          storage.CheckpointTrack{ID: "t3", Title: "upload", FileRef: filepath.Join(t.TempDir(), "gone.mp3")},
	}
	if err := store.Set(ctx, cp.Key(), cp); err != nil {
		t.Fatal(err)
	}

	reg := newTestRegistry(t, store)
	c := New(store, reg, nil, 0)
	notices := c.Run(ctx)

	if len(notices) != 1 || notices[0].Resumed {
		t.Fatalf("expected dropped notice, got %+v", notices)
	}
}

func TestRunEmptyStoreReturnsNoNotices(t *testing.T) {
	store := newStore(t)
	reg := newTestRegistry(t, store)
	c := New(store, reg, nil, 0)
	if notices := c.Run(context.Background()); len(notices) != 0 {
		t.Fatalf("notices = %+v, want none", notices)
	}
}

func TestRunStaggersBetweenCheckpoints(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	for _, id := range []string{"chat-a", "chat-b", "chat-c"} {
		cp := storage.Checkpoint{
			ChatID:         id,
			VoiceChannelID: "vc",
			Track:          storage.CheckpointTrack{ID: id, Title: id},
		}
		if err := store.Set(ctx, cp.Key(), cp); err != nil {
			t.Fatal(err)
		}
	}

	reg := newTestRegistry(t, store)
	c := New(store, reg, nil, 20*time.Millisecond)

	start := time.Now()
	notices := c.Run(ctx)
	elapsed := time.Since(start)

	if len(notices) != 3 {
		t.Fatalf("notices = %d, want 3", len(notices))
	}
	if elapsed < 40*time.Millisecond {
		t.Fatalf("elapsed %v, expected at least two stagger delays", elapsed)
	}
}

func TestRunStopsEarlyWhenContextCancelled(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	for _, id := range []string{"chat-x", "chat-y"} {
		cp := storage.Checkpoint{
			ChatID:         id,
			VoiceChannelID: "vc",
			Track:          storage.CheckpointTrack{ID: id, Title: id},
		}
		if err := store.Set(ctx, cp.Key(), cp); err != nil {
			t.Fatal(err)
		}
	}

	reg := newTestRegistry(t, store)
	c := New(store, reg, nil, time.Hour)

	cancelCtx, cancel := context.WithCancel(ctx)
	cancel()

	notices := c.Run(cancelCtx)
	if len(notices) != 1 {
		t.Fatalf("notices = %d, want 1 (only the first, un-staggered entry)", len(notices))
	}
}

// erroringStore.Scan always fails, to exercise Run's error path.
type erroringStore struct{ storage.Store }

func (erroringStore) Scan(ctx context.Context, prefix string) ([]storage.Entry, error) {
	return nil, errors.New("boom")
}

func TestRunReturnsNilOnScanError(t *testing.T) {
	c := New(erroringStore{}, nil, nil, 0)
	if notices := c.Run(context.Background()); notices != nil {
		t.Fatalf("notices = %+v, want nil", notices)
	}
}
