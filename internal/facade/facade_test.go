package facade

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/harmonium/harmonium/internal/engine"
	"github.com/harmonium/harmonium/internal/presence"
	"github.com/harmonium/harmonium/internal/storage"
	"github.com/harmonium/harmonium/internal/track"
)

// recordingNotifier collects every event it is handed, for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []engine.Event
}

func (n *recordingNotifier) Notify(_ context.Context, ev engine.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

// stubResolver resolves any query to a track named after the query.
type stubResolver struct{}

func (stubResolver) Resolve(_ context.Context, query string) (track.Track, error) {
	return track.Track{TrackID: query, Title: query, StreamURL: "stream://" + query}, nil
}

type stubPresence struct{}

func (stubPresence) EnsureReady(context.Context, string, string) presence.Outcome {
	return presence.Outcome{Ready: true}
}

type stubTransport struct{}

func (stubTransport) Join(context.Context, string, string) error                 { return nil }
func (stubTransport) ChangeStream(context.Context, string, string, int) error    { return nil }
func (stubTransport) Pause(string) error                                        { return nil }
func (stubTransport) Resume(string) error                                       { return nil }
func (stubTransport) Leave(string) error                                        { return nil }

type memStore struct {
	mu   sync.Mutex
	data map[string]storage.Checkpoint
}

func newMemStore() *memStore { return &memStore{data: make(map[string]storage.Checkpoint)} }

func (m *memStore) Get(_ context.Context, key string) (storage.Checkpoint, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.data[key]
	return cp, ok, nil
}
func (m *memStore) Set(_ context.Context, key string, value storage.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}
func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
func (m *memStore) Scan(context.Context, string) ([]storage.Entry, error) { return nil, nil }

func newTestFacade(t *testing.T, rateLimit time.Duration) (*Facade, *recordingNotifier) {
	t.Helper()
	events := make(chan engine.Event, 64)
	deps := engine.Deps{
		Transport: stubTransport{},
		Resolver:  stubResolver{},
		Storage:   newMemStore(),
		Presence:  stubPresence{},
		Logger:    slog.New(slog.DiscardHandler),
	}
	cfg := engine.DefaultConfig()
	cfg.CheckpointInterval = time.Hour
	reg := engine.NewRegistry(deps, cfg, events)
	notifier := &recordingNotifier{}
	f := New(reg, events, notifier, rateLimit, slog.New(slog.DiscardHandler))
	return f, notifier
}

func TestPlayForwardsToEngine(t *testing.T) {
	f, notifier := newTestFacade(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx)

	err := f.Play("chat-1", engine.Play{Query: "song", RequesterID: "u1", VoiceChannelID: "vc1"})
	if err != nil {
		t.Fatalf("Play: %v", err)
	}

	deadline := time.After(time.Second)
	for notifier.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for NowPlaying event")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestPlayRateLimited(t *testing.T) {
	f, _ := newTestFacade(t, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx)

	if err := f.Play("chat-1", engine.Play{Query: "song", RequesterID: "u1", VoiceChannelID: "vc1"}); err != nil {
		t.Fatalf("first Play: %v", err)
	}
	if err := f.Play("chat-1", engine.Play{Query: "song2", RequesterID: "u1", VoiceChannelID: "vc1"}); err != ErrRateLimited {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	// A different requester is unaffected.
	if err := f.Play("chat-1", engine.Play{Query: "song3", RequesterID: "u2", VoiceChannelID: "vc1"}); err != nil {
		t.Fatalf("second requester Play: %v", err)
	}
}

func TestSnapshotReflectsQueuedTrack(t *testing.T) {
	f, _ := newTestFacade(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx)

	if err := f.Play("chat-1", engine.Play{Query: "song", RequesterID: "u1", VoiceChannelID: "vc1"}); err != nil {
		t.Fatalf("Play: %v", err)
	}

	var snap engine.Snapshot
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		s, err := f.Snapshot(context.Background(), "chat-1")
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if s.HasCurrent {
			snap = s
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !snap.HasCurrent || snap.Current.Title != "song" {
		t.Fatalf("expected current track %q, got %+v", "song", snap)
	}
}

func TestStopRemovesActorFromRegistry(t *testing.T) {
	f, _ := newTestFacade(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx)

	if err := f.Play("chat-1", engine.Play{Query: "song", RequesterID: "u1", VoiceChannelID: "vc1"}); err != nil {
		t.Fatalf("Play: %v", err)
	}
	f.Stop("chat-1")

	deadline := time.After(time.Second)
	for {
		if _, ok := f.reg.Lookup("chat-1"); !ok {
			return
		}
		select {
		case <-deadline:
			t.Fatal("actor was not removed from registry")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
