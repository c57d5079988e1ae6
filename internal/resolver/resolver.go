// Package resolver defines the contract for turning a user-supplied query
// (a URL or a free-text search phrase) into a playable [track.Track].
package resolver

import (
	"context"
	"errors"

	"github.com/harmonium/harmonium/internal/track"
)

// Sentinel errors distinguishing the resolver's failure kinds. Use
// errors.Is against these; concrete implementations may wrap them with
// additional context.
var (
	// ErrNotFound means a free-text search yielded no usable results.
	ErrNotFound = errors.New("resolver: not found")

	// ErrUnavailable means the extractor or network failed transiently
	// (including deadline exceeded).
	ErrUnavailable = errors.New("resolver: unavailable")

	// ErrForbidden means the source explicitly refused access.
	ErrForbidden = errors.New("resolver: forbidden")
)

// Resolver turns a query into a Track. Implementations must honor ctx
// cancellation and must be safe to call concurrently from multiple chat
// actors — the playback engine always calls Resolve off its own mailbox
// goroutine.
type Resolver interface {
	Resolve(ctx context.Context, query string) (track.Track, error)
}
