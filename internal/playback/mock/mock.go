// Package mock provides manual implementations of [playback.Scheduler],
// [playback.View] and [playback.Display] for unit tests.
//
// The scheduler never runs anything on its own: tests call
// [Scheduler.RunFrame] and [Scheduler.RunPosted] to advance it. The view and
// display record every call.
package mock

import (
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/livescript/internal/loop"
	"github.com/MrWong99/livescript/internal/playback"
	"github.com/MrWong99/livescript/pkg/transcript"
)

// ─── Scheduler ────────────────────────────────────────────────────────────────

// Scheduler is a manually stepped [playback.Scheduler].
type Scheduler struct {
	mu     sync.Mutex
	nextID loop.FrameID
	frames map[loop.FrameID]func()
	posted []func()

	// CallCountRequestFrame records how many frames were requested.
	CallCountRequestFrame int

	// CallCountCancelFrame records how many cancellations were made.
	CallCountCancelFrame int
}

var _ playback.Scheduler = (*Scheduler)(nil)

// RequestFrame implements [playback.Scheduler].
func (s *Scheduler) RequestFrame(fn func()) loop.FrameID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frames == nil {
		s.frames = make(map[loop.FrameID]func())
	}
	s.CallCountRequestFrame++
	s.nextID++
	s.frames[s.nextID] = fn
	return s.nextID
}

// CancelFrame implements [playback.Scheduler].
func (s *Scheduler) CancelFrame(id loop.FrameID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountCancelFrame++
	delete(s.frames, id)
}

// Post implements [playback.Scheduler].
func (s *Scheduler) Post(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posted = append(s.posted, fn)
}

// PendingFrames returns the number of scheduled frame callbacks.
func (s *Scheduler) PendingFrames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// PendingPosted returns the number of queued tasks.
func (s *Scheduler) PendingPosted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.posted)
}

// RunFrame fires every frame callback that is pending now, in request order,
// and returns how many ran.
func (s *Scheduler) RunFrame() int {
	s.mu.Lock()
	ids := slices.Sorted(maps.Keys(s.frames))
	s.mu.Unlock()

	ran := 0
	for _, id := range ids {
		s.mu.Lock()
		fn, ok := s.frames[id]
		delete(s.frames, id)
		s.mu.Unlock()
		if ok {
			fn()
			ran++
		}
	}
	return ran
}

// RunPosted drains the task queue, including tasks posted while draining, and
// returns how many ran.
func (s *Scheduler) RunPosted() int {
	ran := 0
	for {
		s.mu.Lock()
		if len(s.posted) == 0 {
			s.mu.Unlock()
			return ran
		}
		fn := s.posted[0]
		s.posted = s.posted[1:]
		s.mu.Unlock()
		fn()
		ran++
	}
}

// ─── View ─────────────────────────────────────────────────────────────────────

// View is a recording [playback.View]. Token geometry is a fixed-height
// column: token i spans [i*TokenHeight, (i+1)*TokenHeight) in content
// coordinates. The viewport is [0, ViewportHeight) and shifts with scroll.
type View struct {
	mu sync.Mutex

	// TokenHeight is the height of every token. Zero selects 10.
	TokenHeight float64

	// ViewportHeight is the visible height. Zero selects 100.
	ViewportHeight float64

	// Visible and Current mirror the flags of each element.
	Visible []bool
	Current []bool

	// ScrollTop is the clamped scroll position.
	ScrollTop float64

	// CallCountReset records Reset calls.
	CallCountReset int

	// RevealCalls records every Reveal index, including missing ones.
	RevealCalls []int

	// ScrollCalls records every requested SetScrollTop value.
	ScrollCalls []float64
}

var _ playback.View = (*View)(nil)

func (v *View) heights() (float64, float64) {
	th, vh := v.TokenHeight, v.ViewportHeight
	if th == 0 {
		th = 10
	}
	if vh == 0 {
		vh = 100
	}
	return th, vh
}

// Reset implements [playback.View].
func (v *View) Reset(seq transcript.Sequence) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.CallCountReset++
	v.Visible = make([]bool, seq.Len())
	v.Current = make([]bool, seq.Len())
}

// Reveal implements [playback.View].
func (v *View) Reveal(i int) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.RevealCalls = append(v.RevealCalls, i)
	if i < 0 || i >= len(v.Visible) {
		return false
	}
	v.Visible[i] = true
	return true
}

// SetCurrent implements [playback.View].
func (v *View) SetCurrent(i int, on bool) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if i < 0 || i >= len(v.Current) {
		return false
	}
	v.Current[i] = on
	return true
}

// TokenRect implements [playback.View].
func (v *View) TokenRect(i int) (playback.Rect, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if i < 0 || i >= len(v.Visible) {
		return playback.Rect{}, false
	}
	th, _ := v.heights()
	top := float64(i)*th - v.ScrollTop
	return playback.Rect{Top: top, Bottom: top + th}, true
}

// ViewportRect implements [playback.View].
func (v *View) ViewportRect() playback.Rect {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, vh := v.heights()
	return playback.Rect{Top: 0, Bottom: vh}
}

// OffsetTop implements [playback.View].
func (v *View) OffsetTop(i int) (float64, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if i < 0 || i >= len(v.Visible) {
		return 0, false
	}
	th, _ := v.heights()
	return float64(i) * th, true
}

// ClientHeight implements [playback.View].
func (v *View) ClientHeight() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, vh := v.heights()
	return vh
}

// SetScrollTop implements [playback.View]. The requested value is recorded
// as is; ScrollTop is clamped to the scrollable range like a real container.
func (v *View) SetScrollTop(top float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ScrollCalls = append(v.ScrollCalls, top)
	th, vh := v.heights()
	limit := max(float64(len(v.Visible))*th-vh, 0)
	v.ScrollTop = min(max(top, 0), limit)
}

// VisibleCount returns how many elements are flagged visible.
func (v *View) VisibleCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, b := range v.Visible {
		if b {
			n++
		}
	}
	return n
}

// CurrentIndices returns every index flagged current.
func (v *View) CurrentIndices() []int {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []int
	for i, b := range v.Current {
		if b {
			out = append(out, i)
		}
	}
	return out
}

// ─── Display ──────────────────────────────────────────────────────────────────

// Display is a recording [playback.Display].
type Display struct {
	mu sync.Mutex

	// Time is the last time text set.
	Time string

	// Status is the last status set.
	Status playback.Status

	// ControlsEnabled is the last controls state set.
	ControlsEnabled bool

	// StatusHistory records every status set, in order.
	StatusHistory []playback.Status
}

var _ playback.Display = (*Display)(nil)

// SetTime implements [playback.Display].
func (d *Display) SetTime(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Time = text
}

// SetStatus implements [playback.Display].
func (d *Display) SetStatus(s playback.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Status = s
	d.StatusHistory = append(d.StatusHistory, s)
}

// SetControlsEnabled implements [playback.Display].
func (d *Display) SetControlsEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ControlsEnabled = enabled
}
