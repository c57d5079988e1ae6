// Package extractor implements [resolver.Resolver] by shelling out to an
// external media-extractor binary (yt-dlp by default). The binary is
// invoked once per query and expected to print one JSON object per
// candidate result to stdout.
package extractor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os/exec"
	"strings"
	"time"

	"github.com/antzucaro/matchr"
	"golang.org/x/sync/singleflight"

	"github.com/harmonium/harmonium/internal/resilience"
	"github.com/harmonium/harmonium/internal/resolver"
	"github.com/harmonium/harmonium/internal/track"
)

// Compile-time interface assertion.
var _ resolver.Resolver = (*Resolver)(nil)

// candidate is the JSON shape the extractor binary prints per result line.
type candidate struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Duration   int    `json:"duration"`
	URL        string `json:"url"`         // playable stream URL
	WebpageURL string `json:"webpage_url"` // stable, re-resolvable URL
	Uploader   string `json:"uploader"`
	Thumbnail  string `json:"thumbnail"`
	Err        string `json:"error"`
}

// Option configures a [Resolver].
type Option func(*Resolver)

// WithBinary overrides the extractor executable name/path. Default: "yt-dlp".
func WithBinary(path string) Option {
	return func(r *Resolver) { r.binary = path }
}

// WithMaxAttempts overrides the total number of attempts (the first
// included) for transient failures. Default: 3 (two retries).
func WithMaxAttempts(n int) Option {
	return func(r *Resolver) { r.maxAttempts = n }
}

// WithLogger overrides the resolver's logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// Resolver shells out to an extractor binary (by default "yt-dlp") to turn a
// URL or free-text query into a [track.Track]. It retries transient failures
// with backoff through a per-process [resilience.CircuitBreaker], and
// collapses concurrent identical queries with [singleflight.Group].
type Resolver struct {
	binary      string
	maxAttempts int
	logger      *slog.Logger
	breaker     *resilience.CircuitBreaker
	group       singleflight.Group

	// run executes the extractor and returns its raw stdout. Overridden in
	// tests to avoid depending on a real yt-dlp binary.
	run func(ctx context.Context, binary, query string) ([]byte, error)
}

// New creates a Resolver. opts may override the binary path, retry budget,
// and logger.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		binary:      "yt-dlp",
		maxAttempts: 3,
		logger:      slog.Default(),
	}
	r.run = runExtractor
	r.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "resolver"})
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve implements [resolver.Resolver].
func (r *Resolver) Resolve(ctx context.Context, query string) (track.Track, error) {
	result, err, _ := r.group.Do(query, func() (any, error) {
		return r.resolveOnce(ctx, query)
	})
	if err != nil {
		return track.Track{}, err
	}
	return result.(track.Track), nil
}

func (r *Resolver) resolveOnce(ctx context.Context, query string) (track.Track, error) {
	var candidates []candidate

	err := resilience.Retry(ctx, resilience.RetryConfig{
		MaxAttempts: r.maxAttempts,
		BaseDelay:   500 * time.Millisecond,
		Retryable:   isTransient,
	}, func(ctx context.Context) error {
		return r.breaker.Execute(func() error {
			out, err := r.run(ctx, r.binary, query)
			if err != nil {
				return classifyRunError(err)
			}
			candidates, err = parseCandidates(out)
			return err
		})
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return track.Track{}, fmt.Errorf("%w: %v", resolver.ErrUnavailable, err)
		}
		return track.Track{}, err
	}

	if len(candidates) == 0 {
		return track.Track{}, resolver.ErrNotFound
	}

	best := pickBest(query, candidates)
	return toTrack(best), nil
}

// pickBest returns the candidate whose title best matches query by
// Jaro-Winkler similarity. For a direct URL query this is moot (the
// extractor returns exactly one candidate); for a free-text search it picks
// "the best first hit" among several.
func pickBest(query string, candidates []candidate) candidate {
	if isURL(query) || len(candidates) == 1 {
		return candidates[0]
	}
	best := candidates[0]
	bestScore := matchr.JaroWinkler(strings.ToLower(query), strings.ToLower(best.Title))
	for _, c := range candidates[1:] {
		score := matchr.JaroWinkler(strings.ToLower(query), strings.ToLower(c.Title))
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	return best
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func toTrack(c candidate) track.Track {
	return track.Track{
		TrackID:         c.ID,
		Title:           c.Title,
		DurationSeconds: c.Duration,
		StreamURL:       c.URL,
		SourceURL:       c.WebpageURL,
		Uploader:        c.Uploader,
		ThumbnailURL:    c.Thumbnail,
	}
}

// parseCandidates decodes one JSON object per line from the extractor's
// stdout, per yt-dlp's --dump-json / -j convention.
func parseCandidates(out []byte) ([]candidate, error) {
	var candidates []candidate
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var c candidate
		if err := json.Unmarshal(line, &c); err != nil {
			return nil, fmt.Errorf("%w: decode extractor output: %v", resolver.ErrUnavailable, err)
		}
		if c.Err != "" {
			continue
		}
		candidates = append(candidates, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read extractor output: %v", resolver.ErrUnavailable, err)
	}
	return candidates, nil
}

// runExtractor is the default implementation of Resolver.run: it invokes the
// configured binary with -j (dump JSON per result) and the query itself.
func runExtractor(ctx context.Context, binary, query string) ([]byte, error) {
	args := []string{"-j", "--no-playlist"}
	if !isURL(query) {
		args = append(args, "--default-search", "ytsearch1")
	}
	args = append(args, query)

	cmd := exec.CommandContext(ctx, binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("run %s: %w: %s", binary, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// classifyRunError maps a subprocess failure into the resolver's error
// taxonomy. Forbidden-source messages are extractor-specific free text, so
// this is a best-effort classification rather than an exhaustive one.
func classifyRunError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "private") || strings.Contains(msg, "forbidden") || strings.Contains(msg, "sign in"):
		return fmt.Errorf("%w: %v", resolver.ErrForbidden, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", resolver.ErrUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", resolver.ErrUnavailable, err)
	}
}

// isTransient reports whether err is worth retrying: everything except an
// explicit Forbidden classification and context cancellation.
func isTransient(err error) bool {
	if errors.Is(err, resolver.ErrForbidden) {
		return false
	}
	return !resilience.IsContextErr(err)
}
