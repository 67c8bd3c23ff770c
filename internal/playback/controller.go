package playback

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/MrWong99/livescript/internal/loop"
	"github.com/MrWong99/livescript/internal/observe"
	"github.com/MrWong99/livescript/pkg/media"
	"github.com/MrWong99/livescript/pkg/transcript"
)

// DefaultScrollMargin is the distance from either viewport edge at which the
// current token is re-centred.
const DefaultScrollMargin = 20

// Option configures a [Controller].
type Option func(*Controller)

// WithScrollMargin overrides [DefaultScrollMargin]. Negative values are
// ignored.
func WithScrollMargin(m float64) Option {
	return func(c *Controller) {
		if m >= 0 {
			c.scrollMargin = m
		}
	}
}

// WithMetrics records frame, reveal and seek metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithLogger replaces slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// Controller synchronises transcript reveal with a [media.Player].
type Controller struct {
	player  media.Player
	sched   Scheduler
	view    View
	display Display

	log          *slog.Logger
	metrics      *observe.Metrics
	scrollMargin float64

	seq      transcript.Sequence
	revealed int
	current  int
	frame    loop.FrameID
	status   Status
}

// New creates a controller in [StatusIdle] with an empty sequence and
// subscribes it to player events.
func New(player media.Player, sched Scheduler, view View, display Display, opts ...Option) *Controller {
	c := &Controller{
		player:       player,
		sched:        sched,
		view:         view,
		display:      display,
		log:          slog.Default(),
		scrollMargin: DefaultScrollMargin,
		current:      -1,
		status:       StatusIdle,
	}
	for _, o := range opts {
		o(c)
	}
	view.Reset(c.seq)
	display.SetStatus(StatusIdle)
	display.SetControlsEnabled(false)
	display.SetTime(clockText(0, math.NaN()))
	player.OnEvent(c.HandleEvent)
	return c
}

// HandleEvent dispatches a player event to its handler.
func (c *Controller) HandleEvent(ev media.Event) {
	switch ev.Type {
	case media.EventPlay:
		c.OnPlay()
	case media.EventPause:
		c.OnPause()
	case media.EventSeeking:
		c.OnSeek()
	case media.EventLoadedMetadata:
		c.OnMetadata()
	case media.EventEnded:
		c.OnEnded()
	case media.EventRateChange:
		c.log.Debug("playback: rate changed", "rate", c.player.Rate())
	}
}

// Sequence returns the loaded tokens.
func (c *Controller) Sequence() transcript.Sequence { return c.seq }

// Status returns the current playback status.
func (c *Controller) Status() Status { return c.status }

// Revealed returns how many tokens have been revealed so far. It only grows
// until the next [Controller.Load] or [Controller.Restart].
func (c *Controller) Revealed() int { return c.revealed }

// Current returns the highlighted token index, or -1 when none is.
func (c *Controller) Current() int { return c.current }

// FramePending reports whether a frame callback is scheduled.
func (c *Controller) FramePending() bool { return c.frame != 0 }

// LoadTranscript parses raw and loads the result. It never fails; input that
// is not structured word data becomes untimed tokens.
func (c *Controller) LoadTranscript(raw string) transcript.Sequence {
	seq, format := transcript.ParseResult(raw)
	c.log.Info("playback: transcript loaded",
		"tokens", seq.Len(),
		"mode", seq.Mode().String(),
		"format", format.String())
	if c.metrics != nil {
		c.metrics.RecordTranscriptLoad(context.Background(), seq.Mode().String(), format.String())
	}
	c.Load(seq)
	return seq
}

// Load replaces the sequence wholesale, rebuilds the view and recomputes
// visibility at position 0.
func (c *Controller) Load(seq transcript.Sequence) {
	c.seq = seq
	c.reset()
}

// LoadSource sets the audio source. Any pending frame is cancelled and the
// controls become available in [StatusPaused].
func (c *Controller) LoadSource(src string) {
	c.stopTick()
	c.player.Load(src)
	c.display.SetControlsEnabled(true)
	c.setStatus(StatusPaused)
	c.display.SetTime(clockText(0, c.player.Duration()))
	c.log.Info("playback: audio source loaded", "src", src)
}

// OnPlay handles the player starting. Exactly one frame is pending afterwards.
func (c *Controller) OnPlay() {
	c.display.SetControlsEnabled(true)
	c.setStatus(StatusPlaying)
	c.stopTick()
	c.frame = c.sched.RequestFrame(c.tick)
}

// OnPause handles the player stopping.
func (c *Controller) OnPause() {
	c.setStatus(StatusPaused)
	c.stopTick()
}

// OnSeek schedules one recompute after the current task, so it observes the
// position the seek settled on.
func (c *Controller) OnSeek() {
	c.sched.Post(func() {
		if c.metrics != nil {
			c.metrics.Seeks.Add(context.Background(), 1)
		}
		t := c.player.CurrentTime()
		c.display.SetTime(clockText(t, c.player.Duration()))
		c.update(t)
	})
}

// OnMetadata shows the now-known duration.
func (c *Controller) OnMetadata() {
	c.display.SetTime(clockText(0, c.player.Duration()))
}

// OnEnded handles the end of the media. The final position is evaluated once
// more so every token due by the end is revealed.
func (c *Controller) OnEnded() {
	c.setStatus(StatusPaused)
	c.stopTick()
	t := c.player.CurrentTime()
	c.display.SetTime(clockText(t, c.player.Duration()))
	c.update(t)
}

// TogglePlay plays when paused and pauses otherwise. Without a source it only
// logs a warning.
func (c *Controller) TogglePlay() {
	if c.player.Paused() {
		c.Play()
		return
	}
	c.player.Pause()
}

// Play starts the player. Without a source it only logs a warning.
func (c *Controller) Play() {
	if !c.player.HasSource() {
		c.log.Warn("playback: play requested with no audio source loaded")
		return
	}
	if err := c.player.Play(); err != nil {
		c.log.Warn("playback: play failed", "err", err)
	}
}

// Pause stops the player.
func (c *Controller) Pause() {
	c.player.Pause()
}

// Restart rewinds to 0, clears every reveal flag and resumes playback.
func (c *Controller) Restart() {
	if c.metrics != nil {
		c.metrics.Restarts.Add(context.Background(), 1)
	}
	c.player.Seek(0)
	c.view.SetScrollTop(0)
	c.reset()
	if c.player.Paused() {
		c.Play()
	}
}

// SeekTo moves the player to t seconds. The resulting seeking event triggers
// the recompute.
func (c *Controller) SeekTo(t float64) {
	c.player.Seek(t)
}

// SeekToToken moves the player to the earliest position at which token i is
// visible. It reports false when no such position exists.
func (c *Controller) SeekToToken(i int) bool {
	t, ok := transcript.SeekTime(c.seq, i, c.player.Duration())
	if !ok {
		return false
	}
	c.player.Seek(t)
	return true
}

// SetScrollMargin changes the re-centring margin. Negative values are
// ignored.
func (c *Controller) SetScrollMargin(m float64) {
	if m >= 0 {
		c.scrollMargin = m
	}
}

// SetRate changes the playback speed.
func (c *Controller) SetRate(rate float64) {
	c.player.SetRate(rate)
}

// Snapshot summarises the controller.
func (c *Controller) Snapshot() State {
	t := c.player.CurrentTime()
	d := c.player.Duration()
	st := State{
		Source:   c.player.Source(),
		Status:   c.status.Key(),
		Label:    c.status.String(),
		Mode:     c.seq.Mode().String(),
		Elapsed:  t,
		Rate:     c.player.Rate(),
		Revealed: c.revealed,
		Current:  c.current,
		Total:    c.seq.Len(),
		Time:     clockText(t, d),
	}
	if !math.IsNaN(d) && !math.IsInf(d, 0) {
		st.Duration = d
	}
	return st
}

func (c *Controller) reset() {
	c.view.Reset(c.seq)
	c.revealed = 0
	c.current = -1
	c.update(0)
}

func (c *Controller) tick() {
	c.frame = 0
	start := time.Now()

	t := c.player.CurrentTime()
	c.display.SetTime(clockText(t, c.player.Duration()))
	c.update(t)
	c.frame = c.sched.RequestFrame(c.tick)

	if c.metrics != nil {
		ctx := context.Background()
		c.metrics.Frames.Add(ctx, 1)
		c.metrics.FrameDuration.Record(ctx, time.Since(start).Seconds())
	}
}

func (c *Controller) stopTick() {
	if c.frame != 0 {
		c.sched.CancelFrame(c.frame)
		c.frame = 0
	}
}

// update reveals every token due at t and moves the highlight.
func (c *Controller) update(t float64) {
	n := c.seq.Len()
	if n == 0 {
		return
	}

	visible := transcript.VisibleCount(c.seq, t, c.player.Duration())
	for i := c.revealed; i < visible; i++ {
		c.view.Reveal(i)
	}
	if visible > c.revealed {
		if c.metrics != nil {
			c.metrics.TokensRevealed.Add(context.Background(), int64(visible-c.revealed))
		}
		c.revealed = visible
	}

	idx := min(visible, n-1)
	if idx == c.current {
		return
	}
	if c.current >= 0 {
		c.view.SetCurrent(c.current, false)
	}
	c.view.SetCurrent(idx, true)
	c.current = idx
	c.scrollIntoView(idx)
}

func (c *Controller) scrollIntoView(i int) {
	rect, ok := c.view.TokenRect(i)
	if !ok {
		return
	}
	vp := c.view.ViewportRect()
	if rect.Bottom > vp.Bottom-c.scrollMargin || rect.Top < vp.Top+c.scrollMargin {
		top, ok := c.view.OffsetTop(i)
		if !ok {
			return
		}
		c.view.SetScrollTop(top - c.view.ClientHeight()/2)
	}
}

func (c *Controller) setStatus(s Status) {
	if c.status == s {
		return
	}
	c.status = s
	c.display.SetStatus(s)
}

// clockText renders "elapsed / total" with unknown values as 00:00.
func clockText(t, d float64) string {
	return transcript.FormatClock(t) + " / " + transcript.FormatClock(d)
}
