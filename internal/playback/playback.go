// Package playback keeps a progressively revealed transcript in step with a
// media player.
//
// The [Controller] owns the token sequence and the reveal state of one viewing
// session. It polls the player once per display frame while playing, reveals
// tokens as the position advances, moves the current-token highlight, and
// keeps that token scrolled into view. Rendering is delegated to a [View] and
// a [Display]; timing is delegated to a [Scheduler].
//
// The controller is not safe for concurrent use. Every method, and every
// callback it registers, must run on the same goroutine; in the application
// that goroutine is the cooperative event loop of package loop.
package playback

import (
	"github.com/MrWong99/livescript/internal/loop"
	"github.com/MrWong99/livescript/pkg/transcript"
)

// Status is the user-visible playback state.
type Status int

const (
	// StatusIdle is the state before any source has been loaded.
	StatusIdle Status = iota

	// StatusPlaying means transcription is being simulated.
	StatusPlaying

	// StatusPaused means playback is stopped with a source loaded.
	StatusPaused
)

// String returns the status label shown to the user.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "Idle"
	case StatusPlaying:
		return "Transcribing…"
	case StatusPaused:
		return "Paused"
	default:
		return "Unknown"
	}
}

// Key returns a stable lowercase identifier for wire formats.
func (s Status) Key() string {
	switch s {
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	default:
		return "idle"
	}
}

// Rect is the vertical extent of a box in viewport coordinates.
type Rect struct {
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
}

// Scheduler runs callbacks on the controller's goroutine. [loop.Loop]
// implements it.
type Scheduler interface {
	// RequestFrame schedules fn for the next display frame.
	RequestFrame(fn func()) loop.FrameID

	// CancelFrame drops a pending frame callback.
	CancelFrame(id loop.FrameID)

	// Post runs fn after the current task has finished.
	Post(fn func())
}

// View renders tokens. Every token is addressed by its index; methods that
// return bool report false when no element exists for that index, and the
// controller treats that as a no-op.
type View interface {
	// Reset discards all elements and creates one hidden, unhighlighted
	// element per token.
	Reset(seq transcript.Sequence)

	// Reveal marks token i visible.
	Reveal(i int) bool

	// SetCurrent adds or removes the current-token highlight on token i.
	SetCurrent(i int, on bool) bool

	// TokenRect returns the on-screen extent of token i.
	TokenRect(i int) (Rect, bool)

	// ViewportRect returns the extent of the scrolling container.
	ViewportRect() Rect

	// OffsetTop returns the top of token i in content coordinates.
	OffsetTop(i int) (float64, bool)

	// ClientHeight returns the visible height of the scrolling container.
	ClientHeight() float64

	// SetScrollTop scrolls the container so content offset top is at its
	// top edge.
	SetScrollTop(top float64)
}

// Display shows the playback chrome: the elapsed/total time text, the status
// label, and whether the transport controls accept input.
type Display interface {
	SetTime(text string)
	SetStatus(s Status)
	SetControlsEnabled(enabled bool)
}

// State is a point-in-time summary of a controller, safe to hand to other
// goroutines.
type State struct {
	Source   string  `json:"source"`
	Status   string  `json:"status"`
	Label    string  `json:"label"`
	Mode     string  `json:"mode"`
	Elapsed  float64 `json:"elapsed"`
	Duration float64 `json:"duration,omitempty"`
	Rate     float64 `json:"rate"`
	Revealed int     `json:"revealed"`
	Current  int     `json:"current"`
	Total    int     `json:"total"`
	Time     string  `json:"time"`
}
