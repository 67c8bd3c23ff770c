// Package mock provides an in-memory [media.Player] for unit tests.
//
// The mock holds its state in exported fields that tests set directly and
// records every mutating call. Events are never emitted on their own; call
// [Player.Emit] to simulate the platform firing one.
//
//	p := &mock.Player{SourceResult: "demo.mp3", DurationResult: 10, PausedResult: true}
//	ctrl := playback.New(p, sched, view, display)
//	p.CurrentTimeResult = 4
//	p.Emit(media.EventSeeking)
package mock

import (
	"math"
	"sync"

	"github.com/MrWong99/livescript/pkg/media"
)

// Player is a mock implementation of [media.Player]. It is safe for
// concurrent use.
type Player struct {
	mu sync.Mutex

	// SourceResult is the loaded source. Load overwrites it.
	SourceResult string

	// CurrentTimeResult is returned by CurrentTime. Seek overwrites it.
	CurrentTimeResult float64

	// DurationResult is returned by Duration. Zero is reported as NaN
	// (unknown) unless DurationKnown is set.
	DurationResult float64

	// DurationKnown forces DurationResult to be reported even when zero.
	DurationKnown bool

	// PausedResult is returned by Paused. Play and Pause toggle it.
	PausedResult bool

	// RateResult is returned by Rate. Zero is reported as 1.
	RateResult float64

	// PlayError is returned by Play when a source is loaded.
	PlayError error

	// Recorded calls.
	CallCountPlay  int
	CallCountPause int
	LoadCalls      []string
	SeekCalls      []float64
	RateCalls      []float64

	listeners []func(media.Event)
}

var _ media.Player = (*Player)(nil)

// Load implements [media.Player].
func (p *Player) Load(src string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.LoadCalls = append(p.LoadCalls, src)
	p.SourceResult = src
	p.CurrentTimeResult = 0
	p.PausedResult = true
}

// Source implements [media.Player].
func (p *Player) Source() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.SourceResult
}

// HasSource implements [media.Player].
func (p *Player) HasSource() bool { return p.Source() != "" }

// Play implements [media.Player]. It returns [media.ErrNoSource] without a
// source, otherwise PlayError; on success PausedResult becomes false.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountPlay++
	if p.SourceResult == "" {
		return media.ErrNoSource
	}
	if p.PlayError != nil {
		return p.PlayError
	}
	p.PausedResult = false
	return nil
}

// Pause implements [media.Player].
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountPause++
	p.PausedResult = true
}

// Paused implements [media.Player].
func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.PausedResult
}

// Seek implements [media.Player]. The position is set without clamping.
func (p *Player) Seek(t float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SeekCalls = append(p.SeekCalls, t)
	p.CurrentTimeResult = t
}

// CurrentTime implements [media.Player].
func (p *Player) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CurrentTimeResult
}

// SetCurrentTime moves the position without recording a seek.
func (p *Player) SetCurrentTime(t float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CurrentTimeResult = t
}

// Duration implements [media.Player].
func (p *Player) Duration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.DurationResult == 0 && !p.DurationKnown {
		return math.NaN()
	}
	return p.DurationResult
}

// SetRate implements [media.Player].
func (p *Player) SetRate(rate float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.RateCalls = append(p.RateCalls, rate)
	p.RateResult = rate
}

// Rate implements [media.Player].
func (p *Player) Rate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.RateResult == 0 {
		return 1
	}
	return p.RateResult
}

// OnEvent implements [media.Player].
func (p *Player) OnEvent(fn func(media.Event)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Emit synchronously delivers an event of type t to every listener.
func (p *Player) Emit(t media.EventType) {
	p.mu.Lock()
	listeners := make([]func(media.Event), len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.Unlock()
	for _, fn := range listeners {
		fn(media.Event{Type: t})
	}
}
