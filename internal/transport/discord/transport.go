// Package discord implements [transport.Transport] on top of discordgo voice
// connections: an Opus encode-and-send pipeline (encode → vc.OpusSend) built
// for a single-direction, single-stream-at-a-time use case. It decodes an
// HTTP stream URL to PCM via ffmpeg, encodes to Opus, and sends. There is no
// receive side — music playback never needs participant audio input.
package discord

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/harmonium/harmonium/internal/transport"
)

// Compile-time interface assertion.
var _ transport.Transport = (*Transport)(nil)

// pausePollInterval is how often a paused sendLoop checks whether it should
// resume.
const pausePollInterval = 100 * time.Millisecond

// pcmReaderFunc starts decoding streamURL into raw s16le 48kHz stereo PCM from
// seekSeconds, returning a reader and a cleanup/wait function. It is a field
// on Transport (not a free function call) so tests can substitute a fake
// decoder instead of shelling out to ffmpeg.
type pcmReaderFunc func(ctx context.Context, streamURL string, seekSeconds int) (io.ReadCloser, func() error, error)

// Transport implements [transport.Transport] for Discord voice channels.
type Transport struct {
	session *discordgo.Session
	onEnded transport.StreamEndedFunc
	logger  *slog.Logger

	newPCMReader pcmReaderFunc

	mu      sync.Mutex
	streams map[string]*voiceStream // keyed by chatID
}

// voiceStream holds the live state for one chat's voice connection.
type voiceStream struct {
	vc *discordgo.VoiceConnection

	// disconnect tears down vc. Defaults to vc.Disconnect; overridden in
	// tests to avoid depending on a live discordgo session.
	disconnect func() error

	mu     sync.Mutex
	cancel context.CancelFunc // cancels the in-flight decode/send goroutine
	paused atomic.Bool
}

// New creates a Transport bound to session. onEnded is invoked whenever a
// stream completes on its own (ffmpeg reaches EOF), never as a result of
// Pause, ChangeStream, or Leave.
func New(session *discordgo.Session, onEnded transport.StreamEndedFunc, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		session:      session,
		onEnded:      onEnded,
		logger:       logger,
		newPCMReader: ffmpegPCMReader,
		streams:      make(map[string]*voiceStream),
	}
}

// Join implements [transport.Transport]. If chatID is already connected to
// voiceChannelID it returns [transport.ErrAlreadyJoined]; callers should
// fall back to ChangeStream instead of leaving and rejoining.
func (t *Transport) Join(ctx context.Context, chatID, voiceChannelID string) error {
	t.mu.Lock()
	existing, ok := t.streams[chatID]
	t.mu.Unlock()
	if ok && existing.vc.ChannelID == voiceChannelID {
		return transport.ErrAlreadyJoined
	}

	vc, err := t.session.ChannelVoiceJoin(chatID, voiceChannelID, false, true)
	if err != nil {
		if isUnknownChannel(err) {
			return fmt.Errorf("%w: %v", transport.ErrNoActiveCall, err)
		}
		return fmt.Errorf("transport/discord: join voice channel %q: %w", voiceChannelID, err)
	}

	t.mu.Lock()
	t.streams[chatID] = &voiceStream{vc: vc, disconnect: vc.Disconnect}
	t.mu.Unlock()
	return nil
}

func isUnknownChannel(err error) bool {
	var rerr *discordgo.RESTError
	if errors.As(err, &rerr) && rerr.Message != nil {
		return rerr.Message.Code == discordgo.ErrCodeUnknownChannel
	}
	return false
}

// ChangeStream implements [transport.Transport].
func (t *Transport) ChangeStream(ctx context.Context, chatID, streamURL string, seekSeconds int) error {
	t.mu.Lock()
	vs, ok := t.streams[chatID]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("transport/discord: chat %q has no active voice connection", chatID)
	}

	vs.mu.Lock()
	if vs.cancel != nil {
		vs.cancel()
	}
	streamCtx, cancel := context.WithCancel(context.Background())
	vs.cancel = cancel
	vs.paused.Store(false)
	vs.mu.Unlock()

	reader, closeReader, err := t.newPCMReader(streamCtx, streamURL, seekSeconds)
	if err != nil {
		return fmt.Errorf("transport/discord: start decode for chat %q: %w", chatID, err)
	}

	go t.sendLoop(streamCtx, chatID, vs, reader, closeReader)
	return nil
}

// Pause implements [transport.Transport].
func (t *Transport) Pause(chatID string) error {
	vs, err := t.lookup(chatID)
	if err != nil {
		return err
	}
	vs.paused.Store(true)
	return nil
}

// Resume implements [transport.Transport].
func (t *Transport) Resume(chatID string) error {
	vs, err := t.lookup(chatID)
	if err != nil {
		return err
	}
	vs.paused.Store(false)
	return nil
}

// Leave implements [transport.Transport].
func (t *Transport) Leave(chatID string) error {
	t.mu.Lock()
	vs, ok := t.streams[chatID]
	delete(t.streams, chatID)
	t.mu.Unlock()
	if !ok {
		return nil
	}

	vs.mu.Lock()
	if vs.cancel != nil {
		vs.cancel()
	}
	vs.mu.Unlock()

	if vs.disconnect == nil {
		return nil
	}
	return vs.disconnect()
}

func (t *Transport) lookup(chatID string) (*voiceStream, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	vs, ok := t.streams[chatID]
	if !ok {
		return nil, fmt.Errorf("transport/discord: chat %q has no active voice connection", chatID)
	}
	return vs, nil
}

// sendLoop reads decoded PCM from reader, encodes it to Opus in
// pcmFrameBytes chunks, and writes to the voice connection. It honors pause
// by simply not consuming reader while paused — the upstream ffmpeg process
// blocks on its own stdout pipe, which is an acceptable pause mechanism for
// a single-listener stream.
func (t *Transport) sendLoop(ctx context.Context, chatID string, vs *voiceStream, reader io.ReadCloser, closeReader func() error) {
	defer func() {
		_ = closeReader()
	}()

	enc, err := newOpusEncoder()
	if err != nil {
		t.logger.Error("transport/discord: failed to create opus encoder", "chat_id", chatID, "error", err)
		return
	}

	br := bufio.NewReaderSize(reader, pcmFrameBytes*4)
	buf := make([]byte, pcmFrameBytes)
	speaking := false

	endSpeaking := func() {
		if speaking {
			if err := vs.vc.Speaking(false); err != nil {
				t.logger.Warn("transport/discord: speaking(false) failed", "chat_id", chatID, "error", err)
			}
			speaking = false
		}
	}
	defer endSpeaking()

	for {
		if ctx.Err() != nil {
			return
		}
		if vs.paused.Load() {
			endSpeaking()
			select {
			case <-ctx.Done():
				return
			case <-time.After(pausePollInterval):
			}
			continue
		}

		if _, err := io.ReadFull(br, buf); err != nil {
			endSpeaking()
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				if ctx.Err() == nil && t.onEnded != nil {
					t.onEnded(chatID)
				}
				return
			}
			if ctx.Err() == nil {
				t.logger.Warn("transport/discord: pcm read error", "chat_id", chatID, "error", err)
			}
			return
		}

		opus, err := enc.encode(buf)
		if err != nil {
			t.logger.Warn("transport/discord: opus encode error", "chat_id", chatID, "error", err)
			continue
		}

		if !speaking {
			if err := vs.vc.Speaking(true); err != nil {
				t.logger.Warn("transport/discord: speaking(true) failed", "chat_id", chatID, "error", err)
			}
			speaking = true
		}

		select {
		case vs.vc.OpusSend <- opus:
		case <-ctx.Done():
			return
		}
	}
}

// ffmpegPCMReader shells out to ffmpeg to decode streamURL into raw s16le
// 48kHz stereo PCM starting at seekSeconds, using "-ss" to seek on resume.
// The returned close function waits for the process to exit.
func ffmpegPCMReader(ctx context.Context, streamURL string, seekSeconds int) (io.ReadCloser, func() error, error) {
	args := []string{
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
	}
	if seekSeconds > 0 {
		args = append(args, "-ss", strconv.Itoa(seekSeconds))
	}
	args = append(args,
		"-i", streamURL,
		"-f", "s16le",
		"-ar", strconv.Itoa(opusSampleRate),
		"-ac", strconv.Itoa(opusChannels),
		"-loglevel", "warning",
		"pipe:1",
	)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("transport/discord: ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("transport/discord: start ffmpeg: %w", err)
	}

	closeFn := func() error {
		_ = stdout.Close()
		return cmd.Wait()
	}
	return stdout, closeFn, nil
}
