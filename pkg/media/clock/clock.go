// Package clock provides a headless [media.Player] whose position is derived
// from wall time.
//
// The player does not decode audio. While playing, the position advances by
// rate × elapsed wall time and is clamped to the duration; the first position
// read at or past the end pauses the player and dispatches pause followed by
// ended. Durations are discovered through an optional [media.Prober].
//
// Events are handed to the dispatch function supplied to [New] rather than
// invoked inline, so the listener always runs after the call that caused the
// event. In the application the dispatch function is the event loop's Post.
//
// All methods are safe for concurrent use.
package clock

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/MrWong99/livescript/pkg/media"
)

const defaultProbeTimeout = 10 * time.Second

// Option configures a [Player].
type Option func(*Player)

// WithNow replaces the wall clock. Tests use it to drive the position.
func WithNow(now func() time.Time) Option {
	return func(p *Player) { p.now = now }
}

// WithProber sets the duration prober consulted on every [Player.Load].
func WithProber(pr media.Prober) Option {
	return func(p *Player) { p.prober = pr }
}

// WithProbeTimeout bounds each probe call.
func WithProbeTimeout(d time.Duration) Option {
	return func(p *Player) { p.probeTimeout = d }
}

// Player is a virtual-clock media element.
type Player struct {
	dispatch     func(func())
	now          func() time.Time
	prober       media.Prober
	probeTimeout time.Duration

	mu        sync.Mutex
	src       string
	gen       uint64
	duration  float64
	rate      float64
	paused    bool
	anchorPos float64
	anchorAt  time.Time
	listeners []func(media.Event)
}

var _ media.Player = (*Player)(nil)

// New creates a paused player with no source. dispatch schedules event
// delivery; a nil dispatch runs listeners in a new goroutine.
func New(dispatch func(func()), opts ...Option) *Player {
	p := &Player{
		dispatch:     dispatch,
		now:          time.Now,
		probeTimeout: defaultProbeTimeout,
		duration:     math.NaN(),
		rate:         1,
		paused:       true,
	}
	for _, o := range opts {
		o(p)
	}
	if p.dispatch == nil {
		p.dispatch = func(fn func()) { go fn() }
	}
	return p
}

// OnEvent implements [media.Player].
func (p *Player) OnEvent(fn func(media.Event)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// SetProber replaces the prober used by later loads.
func (p *Player) SetProber(pr media.Prober) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prober = pr
}

// Load implements [media.Player]. When a prober is configured it runs in a new
// goroutine; a result for a source that has since been replaced is discarded.
func (p *Player) Load(src string) {
	p.mu.Lock()
	p.src = src
	p.gen++
	gen := p.gen
	p.duration = math.NaN()
	p.paused = true
	p.anchorPos = 0
	p.anchorAt = p.now()
	prober := p.prober
	p.mu.Unlock()

	if prober == nil || src == "" {
		return
	}
	go p.probe(prober, src, gen)
}

func (p *Player) probe(prober media.Prober, src string, gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), p.probeTimeout)
	defer cancel()

	d, err := prober.Probe(ctx, src)
	if err != nil {
		slog.Debug("clock: duration probe failed", "src", src, "err", err)
		return
	}
	p.dispatch(func() {
		p.mu.Lock()
		stale := p.gen != gen
		p.mu.Unlock()
		if stale {
			return
		}
		p.SetDuration(d)
	})
}

// SetDuration records the media length and dispatches loadedmetadata.
// Non-positive or non-finite values mark the duration unknown without an
// event.
func (p *Player) SetDuration(d float64) {
	p.mu.Lock()
	if d <= 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		p.duration = math.NaN()
		p.mu.Unlock()
		return
	}
	p.duration = d
	p.mu.Unlock()
	p.emit(media.EventLoadedMetadata)
}

// Source implements [media.Player].
func (p *Player) Source() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.src
}

// HasSource implements [media.Player].
func (p *Player) HasSource() bool {
	return p.Source() != ""
}

// Play implements [media.Player]. Playing at the end rewinds to 0 and emits
// [media.EventSeeking] before [media.EventPlay].
func (p *Player) Play() error {
	p.mu.Lock()
	if p.src == "" {
		p.mu.Unlock()
		return media.ErrNoSource
	}
	if !p.paused {
		p.mu.Unlock()
		return nil
	}
	rewound := !math.IsNaN(p.duration) && p.anchorPos >= p.duration
	if rewound {
		p.anchorPos = 0
	}
	p.paused = false
	p.anchorAt = p.now()
	p.mu.Unlock()

	if rewound {
		p.emit(media.EventSeeking)
	}
	p.emit(media.EventPlay)
	return nil
}

// Pause implements [media.Player].
func (p *Player) Pause() {
	p.mu.Lock()
	if p.paused {
		p.mu.Unlock()
		return
	}
	p.anchorPos = p.positionLocked()
	p.anchorAt = p.now()
	p.paused = true
	p.mu.Unlock()

	p.emit(media.EventPause)
}

// Paused implements [media.Player].
func (p *Player) Paused() bool {
	p.CurrentTime() // observe the end of the media
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Seek implements [media.Player].
func (p *Player) Seek(t float64) {
	p.mu.Lock()
	if math.IsNaN(t) {
		p.mu.Unlock()
		return
	}
	t = max(t, 0)
	if !math.IsNaN(p.duration) {
		t = min(t, p.duration)
	}
	p.anchorPos = t
	p.anchorAt = p.now()
	p.mu.Unlock()

	p.emit(media.EventSeeking)
}

// CurrentTime implements [media.Player].
func (p *Player) CurrentTime() float64 {
	p.mu.Lock()
	pos := p.positionLocked()
	ended := !p.paused && !math.IsNaN(p.duration) && pos >= p.duration
	if ended {
		p.anchorPos = p.duration
		p.anchorAt = p.now()
		p.paused = true
	}
	p.mu.Unlock()

	if ended {
		p.emit(media.EventPause)
		p.emit(media.EventEnded)
	}
	return pos
}

// Duration implements [media.Player].
func (p *Player) Duration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}

// SetRate implements [media.Player]. Non-positive rates are ignored.
func (p *Player) SetRate(rate float64) {
	p.mu.Lock()
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) || rate == p.rate {
		p.mu.Unlock()
		return
	}
	p.anchorPos = p.positionLocked()
	p.anchorAt = p.now()
	p.rate = rate
	p.mu.Unlock()

	p.emit(media.EventRateChange)
}

// Rate implements [media.Player].
func (p *Player) Rate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate
}

// positionLocked must be called with p.mu held.
func (p *Player) positionLocked() float64 {
	pos := p.anchorPos
	if !p.paused {
		pos += p.rate * p.now().Sub(p.anchorAt).Seconds()
	}
	if !math.IsNaN(p.duration) {
		pos = min(pos, p.duration)
	}
	return pos
}

func (p *Player) emit(t media.EventType) {
	p.mu.Lock()
	listeners := make([]func(media.Event), len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.Unlock()

	ev := media.Event{Type: t}
	p.dispatch(func() {
		for _, fn := range listeners {
			fn(ev)
		}
	})
}
