// Package loop implements the cooperative single-goroutine event loop that
// owns all playback state.
//
// Work reaches the loop in two ways. [Loop.Post] queues a task that runs after
// every previously queued task, and [Loop.RequestFrame] registers a callback
// for the next display frame. Frames fire at most once per frame interval and
// a timer is armed only while at least one frame is pending, so an idle loop
// does no work.
package loop

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"
)

// DefaultFrameInterval approximates a 60 Hz display refresh.
const DefaultFrameInterval = 16 * time.Millisecond

// ErrStopped is returned by [Loop.Do] once [Loop.Run] has returned.
var ErrStopped = errors.New("loop: stopped")

// FrameID identifies a pending frame callback. The zero value is never issued.
type FrameID uint64

// Loop is a cooperative scheduler. All of its methods are safe for concurrent
// use; tasks and frame callbacks always run on the goroutine that called
// [Loop.Run].
type Loop struct {
	interval time.Duration

	wake    chan struct{}
	stopped chan struct{}

	mu     sync.Mutex
	tasks  []func()
	frames map[FrameID]func()
	nextID FrameID
}

// New returns a loop that fires frames every interval. A non-positive interval
// selects [DefaultFrameInterval].
func New(interval time.Duration) *Loop {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &Loop{
		interval: interval,
		wake:     make(chan struct{}, 1),
		stopped:  make(chan struct{}),
		frames:   make(map[FrameID]func()),
	}
}

// Interval returns the frame interval.
func (l *Loop) Interval() time.Duration { return l.interval }

// Post queues fn to run on the loop after all tasks queued before it. It never
// blocks and may be called from inside a task.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()
	l.signal()
}

// Do queues fn and waits until it has run. It must not be called from the
// loop goroutine.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopped:
		return ErrStopped
	}
}

// RequestFrame registers fn for the next frame and returns its handle.
func (l *Loop) RequestFrame(fn func()) FrameID {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	l.frames[id] = fn
	l.mu.Unlock()
	l.signal()
	return id
}

// CancelFrame removes a pending frame callback. Unknown or already fired
// handles are ignored.
func (l *Loop) CancelFrame(id FrameID) {
	l.mu.Lock()
	delete(l.frames, id)
	l.mu.Unlock()
}

// Pending returns the number of frame callbacks waiting to fire.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.frames)
}

// Run processes tasks and frames until ctx is cancelled. It returns nil on
// cancellation. Run must be called at most once.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.stopped)

	var timer *time.Timer
	var tick <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		for l.runNextTask() {
			if ctx.Err() != nil {
				return nil
			}
		}

		pending := l.Pending() > 0
		switch {
		case pending && tick == nil:
			timer = time.NewTimer(l.interval)
			tick = timer.C
		case !pending && timer != nil:
			timer.Stop()
			timer, tick = nil, nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-l.wake:
		case <-tick:
			timer, tick = nil, nil
			l.fireFrames()
		}
	}
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) runNextTask() bool {
	l.mu.Lock()
	if len(l.tasks) == 0 {
		l.mu.Unlock()
		return false
	}
	fn := l.tasks[0]
	l.tasks[0] = nil
	l.tasks = l.tasks[1:]
	l.mu.Unlock()

	l.safely("task", fn)
	return true
}

// fireFrames runs every callback registered before the frame started, in
// request order. Callbacks requested during the frame wait for the next one.
func (l *Loop) fireFrames() {
	l.mu.Lock()
	ids := slices.Sorted(maps.Keys(l.frames))
	l.mu.Unlock()

	for _, id := range ids {
		l.mu.Lock()
		fn, ok := l.frames[id]
		delete(l.frames, id)
		l.mu.Unlock()
		if !ok {
			continue // cancelled by an earlier callback in this frame
		}
		l.safely("frame", fn)
	}
}

func (l *Loop) safely(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("loop: callback panicked", "kind", kind, "panic", r)
		}
	}()
	fn()
}
