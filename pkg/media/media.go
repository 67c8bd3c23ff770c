// Package media defines the media element abstraction that drives transcript
// playback.
//
// A [Player] owns the audio position and play state. The sync controller never
// computes time itself; it polls [Player.CurrentTime] once per frame and reacts
// to the [Event] values the player emits. Implementations must deliver events
// asynchronously (after the call that caused them has returned), mirroring a
// platform media element's event queue.
package media

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoSource is returned by [Player.Play] when no audio source is loaded.
var ErrNoSource = errors.New("media: no audio source loaded")

// EventType identifies a [Player] state change.
type EventType int

const (
	// EventPlay is emitted when playback starts or resumes.
	EventPlay EventType = iota

	// EventPause is emitted when playback pauses, including at the end of the
	// media.
	EventPause

	// EventSeeking is emitted when the position is moved by a seek.
	EventSeeking

	// EventLoadedMetadata is emitted once the duration of the current source
	// becomes known.
	EventLoadedMetadata

	// EventEnded is emitted after the final pause when playback reaches the end.
	EventEnded

	// EventRateChange is emitted when the playback rate changes.
	EventRateChange
)

// String returns the platform-style event name.
func (t EventType) String() string {
	switch t {
	case EventPlay:
		return "play"
	case EventPause:
		return "pause"
	case EventSeeking:
		return "seeking"
	case EventLoadedMetadata:
		return "loadedmetadata"
	case EventEnded:
		return "ended"
	case EventRateChange:
		return "ratechange"
	default:
		return "unknown"
	}
}

// Event is a notification from a [Player].
type Event struct {
	Type EventType
}

// Player is a media element. Implementations are driven from a single
// goroutine and need not be safe for concurrent use unless documented.
type Player interface {
	// Load replaces the current source. The position resets to 0, playback
	// pauses, and the duration becomes unknown until metadata arrives.
	Load(src string)

	// Source returns the current source, or "" when none is loaded.
	Source() string

	// HasSource reports whether a source is loaded.
	HasSource() bool

	// Play starts playback. It returns [ErrNoSource] when nothing is loaded.
	Play() error

	// Pause stops playback at the current position.
	Pause()

	// Paused reports whether playback is stopped.
	Paused() bool

	// Seek moves the position to t seconds, clamped to [0, duration].
	Seek(t float64)

	// CurrentTime returns the position in seconds.
	CurrentTime() float64

	// Duration returns the media length in seconds, or NaN when unknown.
	Duration() float64

	// SetRate changes the playback speed multiplier.
	SetRate(rate float64)

	// Rate returns the playback speed multiplier.
	Rate() float64

	// OnEvent registers fn to receive every subsequent event.
	OnEvent(fn func(Event))
}

// Prober discovers the duration of a source. It may block; players call it off
// the event loop.
type Prober interface {
	Probe(ctx context.Context, src string) (float64, error)
}

// StaticProber serves durations from a fixed table keyed by source.
type StaticProber map[string]float64

// Probe implements [Prober].
func (p StaticProber) Probe(_ context.Context, src string) (float64, error) {
	d, ok := p[src]
	if !ok {
		return 0, fmt.Errorf("media: no known duration for %q", src)
	}
	return d, nil
}

// ChainProber asks each prober in order and returns the first success.
type ChainProber []Prober

// Probe implements [Prober].
func (c ChainProber) Probe(ctx context.Context, src string) (float64, error) {
	var errs []error
	for _, p := range c {
		d, err := p.Probe(ctx, src)
		if err == nil {
			return d, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return 0, fmt.Errorf("media: no prober configured for %q", src)
	}
	return 0, errors.Join(errs...)
}
