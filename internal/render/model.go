package render

import (
	"encoding/json"
	"sync"

	"github.com/MrWong99/livescript/internal/playback"
	"github.com/MrWong99/livescript/pkg/transcript"
)

// EventType names a view-state change.
type EventType string

const (
	EventReset    EventType = "reset"
	EventReveal   EventType = "reveal"
	EventCurrent  EventType = "current"
	EventScroll   EventType = "scroll"
	EventTime     EventType = "time"
	EventStatus   EventType = "status"
	EventControls EventType = "controls"
	EventSnapshot EventType = "snapshot"
)

// Event is one view-state change. Only the fields relevant to Type are
// meaningful; MarshalJSON emits exactly those.
type Event struct {
	Type EventType

	// Index addresses the token for reveal and current events.
	Index int

	// On is the highlight state for current events and the enabled state for
	// controls events.
	On bool

	// Text is the rendered token for reveal events and the clock text for
	// time events.
	Text string

	// Top is the scroll position for scroll events.
	Top float64

	// Status is set for status events.
	Status playback.Status

	// Snapshot is set for reset and snapshot events.
	Snapshot *Snapshot
}

// MarshalJSON implements [json.Marshaler].
func (e Event) MarshalJSON() ([]byte, error) {
	m := map[string]any{"type": e.Type}
	switch e.Type {
	case EventReveal:
		m["index"] = e.Index
		m["text"] = e.Text
	case EventCurrent:
		m["index"] = e.Index
		m["on"] = e.On
	case EventScroll:
		m["top"] = e.Top
	case EventTime:
		m["text"] = e.Text
	case EventStatus:
		m["status"] = e.Status.Key()
		m["label"] = e.Status.String()
	case EventControls:
		m["enabled"] = e.On
	case EventReset, EventSnapshot:
		m["state"] = e.Snapshot
	}
	return json.Marshal(m)
}

// TokenState is the rendered state of one token.
type TokenState struct {
	Text    string `json:"text"`
	Line    int    `json:"line"`
	Visible bool   `json:"visible"`
	Current bool   `json:"current"`
}

// Snapshot is the complete view state.
type Snapshot struct {
	Tokens    []TokenState `json:"tokens"`
	Lines     int          `json:"lines"`
	ScrollTop float64      `json:"scroll_top"`
	Time      string       `json:"time"`
	Status    string       `json:"status"`
	Label     string       `json:"label"`
	Controls  bool         `json:"controls"`
}

// Sink receives view-state events. Handle is called with the model's lock
// held, in change order, and must not block or call back into the model.
type Sink interface {
	Handle(ev Event)
}

// SinkFunc adapts a function to [Sink].
type SinkFunc func(Event)

// Handle implements [Sink].
func (f SinkFunc) Handle(ev Event) { f(ev) }

// Model is the authoritative view state. Mutations come from the playback
// controller; reads and sink attachment may happen from any goroutine.
type Model struct {
	layout Layout

	mu        sync.RWMutex
	tokens    []TokenState
	lines     int
	scrollTop float64
	time      string
	status    playback.Status
	controls  bool
	sinks     []Sink
}

var (
	_ playback.View    = (*Model)(nil)
	_ playback.Display = (*Model)(nil)
)

// NewModel creates an empty model.
func NewModel(layout Layout, sinks ...Sink) *Model {
	return &Model{
		layout: layout.withDefaults(),
		time:   "00:00 / 00:00",
		sinks:  sinks,
	}
}

// Layout returns the effective layout.
func (m *Model) Layout() Layout { return m.layout }

// Attach adds a sink.
func (m *Model) Attach(s Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, s)
}

// WithSnapshot calls fn with the current state while holding off changes, so
// a sink that starts listening inside fn misses no event and sees none twice.
func (m *Model) WithSnapshot(fn func(Snapshot)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn(m.snapshotLocked())
}

// Snapshot returns a copy of the view state.
func (m *Model) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Model) snapshotLocked() Snapshot {
	tokens := make([]TokenState, len(m.tokens))
	copy(tokens, m.tokens)
	return Snapshot{
		Tokens:    tokens,
		Lines:     m.lines,
		ScrollTop: m.scrollTop,
		Time:      m.time,
		Status:    m.status.Key(),
		Label:     m.status.String(),
		Controls:  m.controls,
	}
}

func (m *Model) publishLocked(ev Event) {
	for _, s := range m.sinks {
		s.Handle(ev)
	}
}

// Reset implements [playback.View].
func (m *Model) Reset(seq transcript.Sequence) {
	m.mu.Lock()
	defer m.mu.Unlock()

	texts := make([]string, seq.Len())
	for i := range texts {
		texts[i] = TokenText(i, seq.At(i))
	}
	lines := m.layout.Flow(texts)

	m.tokens = make([]TokenState, len(texts))
	for i, text := range texts {
		m.tokens[i] = TokenState{Text: text, Line: lines[i]}
	}
	m.lines = 0
	if n := len(lines); n > 0 {
		m.lines = lines[n-1] + 1
	}
	m.scrollTop = min(m.scrollTop, m.maxScrollLocked())

	snap := m.snapshotLocked()
	m.publishLocked(Event{Type: EventReset, Snapshot: &snap})
}

// Reveal implements [playback.View].
func (m *Model) Reveal(i int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.tokens) {
		return false
	}
	if m.tokens[i].Visible {
		return true
	}
	m.tokens[i].Visible = true
	m.publishLocked(Event{Type: EventReveal, Index: i, Text: m.tokens[i].Text})
	return true
}

// SetCurrent implements [playback.View].
func (m *Model) SetCurrent(i int, on bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.tokens) {
		return false
	}
	if m.tokens[i].Current == on {
		return true
	}
	m.tokens[i].Current = on
	m.publishLocked(Event{Type: EventCurrent, Index: i, On: on})
	return true
}

// TokenRect implements [playback.View].
func (m *Model) TokenRect(i int) (playback.Rect, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i < 0 || i >= len(m.tokens) {
		return playback.Rect{}, false
	}
	return m.layout.rectFor(m.tokens[i].Line, m.scrollTop), true
}

// ViewportRect implements [playback.View].
func (m *Model) ViewportRect() playback.Rect {
	return playback.Rect{Top: 0, Bottom: m.layout.ViewportHeight}
}

// OffsetTop implements [playback.View].
func (m *Model) OffsetTop(i int) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i < 0 || i >= len(m.tokens) {
		return 0, false
	}
	return float64(m.tokens[i].Line) * m.layout.LineHeight, true
}

// ClientHeight implements [playback.View].
func (m *Model) ClientHeight() float64 {
	return m.layout.ViewportHeight
}

// SetScrollTop implements [playback.View]. The value is clamped to the
// scrollable range.
func (m *Model) SetScrollTop(top float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	top = min(max(top, 0), m.maxScrollLocked())
	if top == m.scrollTop {
		return
	}
	m.scrollTop = top
	m.publishLocked(Event{Type: EventScroll, Top: top})
}

func (m *Model) maxScrollLocked() float64 {
	return max(m.layout.ContentHeight(m.lines)-m.layout.ViewportHeight, 0)
}

// SetTime implements [playback.Display].
func (m *Model) SetTime(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if text == m.time {
		return
	}
	m.time = text
	m.publishLocked(Event{Type: EventTime, Text: text})
}

// SetStatus implements [playback.Display].
func (m *Model) SetStatus(s playback.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = s
	m.publishLocked(Event{Type: EventStatus, Status: s})
}

// SetControlsEnabled implements [playback.Display].
func (m *Model) SetControlsEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if enabled == m.controls {
		return
	}
	m.controls = enabled
	m.publishLocked(Event{Type: EventControls, On: enabled})
}
