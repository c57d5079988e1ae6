// Package track defines the immutable playable-item type shared by the
// queue, resolver, transport, and storage layers.
package track

// Track is a single playable audio item. Once constructed, a Track is never
// mutated — the engine replaces a chat's current Track rather than editing
// one in place.
type Track struct {
	// TrackID is a source-stable identifier (e.g. the extractor's video ID,
	// or a generated ID for uploaded files).
	TrackID string

	// Title is the human-readable track title.
	Title string

	// DurationSeconds is the track length in seconds. Zero means live or
	// unknown duration; the watchdog timer is not armed for such tracks.
	DurationSeconds int

	// StreamURL is the resolver-returned URL the transport streams from.
	// It may expire; resume paths must re-resolve before re-using it.
	StreamURL string

	// SourceURL is a stable, human-visitable URL suitable for re-resolving.
	SourceURL string

	// Uploader is the display name of the track's original uploader, if known.
	Uploader string

	// ThumbnailURL is an optional preview image URL.
	ThumbnailURL string

	// RequesterID identifies the user who requested this track.
	RequesterID string

	// RequesterDisplay is the requester's display name, for UI purposes.
	RequesterDisplay string

	// FileRef optionally points at local content (an uploaded audio file)
	// instead of a resolver-backed stream. Empty for resolver-sourced tracks.
	FileRef string
}

// IsLive reports whether the track has no known duration, meaning only the
// transport's own end-of-stream signal — never the watchdog — can advance it.
func (t Track) IsLive() bool {
	return t.DurationSeconds <= 0
}
