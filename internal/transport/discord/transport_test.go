package discord

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/harmonium/harmonium/internal/transport"
)

// fakeReadCloser wraps a bytes.Reader so it satisfies io.ReadCloser for tests.
type fakeReadCloser struct {
	*bytes.Reader
	closed atomic.Bool
}

func (f *fakeReadCloser) Close() error {
	f.closed.Store(true)
	return nil
}

func newSilentPCM(frames int) []byte {
	return make([]byte, frames*pcmFrameBytes)
}

func newTestTransport(t *testing.T, pcm []byte) (*Transport, chan string) {
	t.Helper()
	ended := make(chan string, 1)
	tr := New(&discordgo.Session{}, func(chatID string) { ended <- chatID }, nil)
	tr.newPCMReader = func(ctx context.Context, streamURL string, seekSeconds int) (io.ReadCloser, func() error, error) {
		return &fakeReadCloser{Reader: bytes.NewReader(pcm)}, func() error { return nil }, nil
	}
	// Bypass discordgo.ChannelVoiceJoin (needs a live gateway connection) by
	// registering the stream state directly, mirroring what Join would do.
	tr.mu.Lock()
	tr.streams["chat1"] = &voiceStream{
		vc:         &discordgo.VoiceConnection{OpusSend: make(chan []byte, 64)},
		disconnect: func() error { return nil },
	}
	tr.mu.Unlock()
	return tr, ended
}

func TestChangeStreamSignalsStreamEndedOnEOF(t *testing.T) {
	tr, ended := newTestTransport(t, newSilentPCM(3))

	if err := tr.ChangeStream(context.Background(), "chat1", "https://stream/x", 0); err != nil {
		t.Fatalf("ChangeStream: %v", err)
	}

	select {
	case chatID := <-ended:
		if chatID != "chat1" {
			t.Fatalf("ended chat = %q, want chat1", chatID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stream-ended signal")
	}
}

func TestChangeStreamUnknownChatErrors(t *testing.T) {
	tr, _ := newTestTransport(t, nil)
	if err := tr.ChangeStream(context.Background(), "nope", "https://stream/x", 0); err == nil {
		t.Fatal("expected error for unjoined chat")
	}
}

func TestPauseStopsSendingUntilResume(t *testing.T) {
	tr, ended := newTestTransport(t, newSilentPCM(50))

	if err := tr.ChangeStream(context.Background(), "chat1", "https://stream/x", 0); err != nil {
		t.Fatalf("ChangeStream: %v", err)
	}
	if err := tr.Pause("chat1"); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	select {
	case <-ended:
		t.Fatal("stream should not end while paused")
	case <-time.After(300 * time.Millisecond):
	}

	if err := tr.Resume("chat1"); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	select {
	case chatID := <-ended:
		if chatID != "chat1" {
			t.Fatalf("ended chat = %q, want chat1", chatID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stream to finish after resume")
	}
}

func TestJoinSameChannelReturnsAlreadyJoined(t *testing.T) {
	tr, _ := newTestTransport(t, nil)
	tr.mu.Lock()
	tr.streams["chat1"].vc.ChannelID = "voice-1"
	tr.mu.Unlock()

	err := tr.Join(context.Background(), "chat1", "voice-1")
	if !errors.Is(err, transport.ErrAlreadyJoined) {
		t.Fatalf("err = %v, want ErrAlreadyJoined", err)
	}
}

func TestLeaveCancelsInFlightStream(t *testing.T) {
	// A PCM source that never ends — Leave must still terminate the send loop.
	neverEnds, w := io.Pipe()
	defer w.Close()

	tr := New(&discordgo.Session{}, nil, nil)
	tr.newPCMReader = func(ctx context.Context, streamURL string, seekSeconds int) (io.ReadCloser, func() error, error) {
		return neverEnds, func() error { return nil }, nil
	}
	tr.mu.Lock()
	tr.streams["chat1"] = &voiceStream{
		vc:         &discordgo.VoiceConnection{OpusSend: make(chan []byte, 64)},
		disconnect: func() error { return nil },
	}
	tr.mu.Unlock()

	if err := tr.ChangeStream(context.Background(), "chat1", "https://stream/x", 0); err != nil {
		t.Fatalf("ChangeStream: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := tr.Leave("chat1"); err != nil {
			t.Errorf("Leave: %v", err)
		}
	}()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Leave did not return promptly")
	}
}
