package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/livescript/internal/assets"
	"github.com/MrWong99/livescript/internal/config"
	"github.com/MrWong99/livescript/internal/control"
	"github.com/MrWong99/livescript/internal/loop"
	"github.com/MrWong99/livescript/internal/observe"
	"github.com/MrWong99/livescript/internal/playback"
	"github.com/MrWong99/livescript/internal/render"
	"github.com/MrWong99/livescript/internal/search"
	"github.com/MrWong99/livescript/pkg/media"
	"github.com/MrWong99/livescript/pkg/media/clock"
	"github.com/MrWong99/livescript/pkg/transcript"
)

var (
	// ErrNoMatch is returned by [Session.SeekWord] when no later token
	// matches the query.
	ErrNoMatch = errors.New("app: no matching word")

	// ErrUnreachable is returned by [Session.SeekWord] when the matched token
	// has no playback position that reveals it.
	ErrUnreachable = errors.New("app: word has no reachable position")

	// ErrInvalidPosition is returned for negative or non-finite seek targets.
	ErrInvalidPosition = errors.New("app: invalid seek position")

	// ErrRateOutOfRange is returned for speeds outside
	// [config.MinRate]..[config.MaxRate].
	ErrRateOutOfRange = errors.New("app: playback rate out of range")

	// ErrUnknownIntent is returned by [Session.HandleIntent] for unsupported
	// actions.
	ErrUnknownIntent = errors.New("app: unknown intent")
)

// SessionConfig holds the dependencies and settings of a [Session].
type SessionConfig struct {
	// FrameInterval is the display frame period. Zero selects
	// [loop.DefaultFrameInterval].
	FrameInterval time.Duration

	// Layout is the transcript column geometry.
	Layout render.Layout

	// Resolver finds transcripts for audio sources. Nil means every lookup
	// returns the default placeholder.
	Resolver *assets.Resolver

	// Prober reports audio durations. Nil leaves durations unknown.
	Prober media.Prober

	// DefaultAudio is the source loaded by [Session.LoadDefaults].
	DefaultAudio string

	ScrollMargin float64
	DefaultRate  float64

	Metrics *observe.Metrics

	// Now replaces the wall clock of the audio player, for tests.
	Now func() time.Time
}

// Session is one transcript playback: an event loop, the audio clock, the
// controller and the view model it renders into. All controller access is
// serialised onto the loop; every exported method is safe for concurrent use.
type Session struct {
	id       string
	loop     *loop.Loop
	player   *clock.Player
	ctrl     *playback.Controller
	model    *render.Model
	finder   *search.Finder
	resolver *assets.Resolver
	log      *slog.Logger

	mu           sync.RWMutex
	defaultAudio string
}

var (
	_ control.Controls     = (*Session)(nil)
	_ render.IntentHandler = (*Session)(nil)
)

// NewSession builds a session. The loop does not run until [Session.Run].
func NewSession(cfg SessionConfig, sinks ...render.Sink) *Session {
	id := uuid.NewString()
	log := observe.Logger(observe.ContextWithSession(context.Background(), id))

	l := loop.New(cfg.FrameInterval)
	var popts []clock.Option
	if cfg.Now != nil {
		popts = append(popts, clock.WithNow(cfg.Now))
	}
	if cfg.Prober != nil {
		popts = append(popts, clock.WithProber(cfg.Prober))
	}
	player := clock.New(l.Post, popts...)

	resolver := cfg.Resolver
	if resolver == nil {
		resolver = assets.New(nil, assets.WithMetrics(cfg.Metrics))
	}

	model := render.NewModel(cfg.Layout, sinks...)
	copts := []playback.Option{playback.WithLogger(log)}
	if cfg.ScrollMargin > 0 {
		copts = append(copts, playback.WithScrollMargin(cfg.ScrollMargin))
	}
	if cfg.Metrics != nil {
		copts = append(copts, playback.WithMetrics(cfg.Metrics))
	}
	ctrl := playback.New(player, l, model, model, copts...)
	if cfg.DefaultRate > 0 {
		player.SetRate(cfg.DefaultRate)
	}

	return &Session{
		id:           id,
		loop:         l,
		player:       player,
		ctrl:         ctrl,
		model:        model,
		finder:       search.New(),
		resolver:     resolver,
		log:          log,
		defaultAudio: cfg.DefaultAudio,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Model returns the view model. Sinks may be attached at any time.
func (s *Session) Model() *render.Model { return s.model }

// Resolver returns the transcript resolver.
func (s *Session) Resolver() *assets.Resolver { return s.resolver }

// Run processes the session loop until ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	s.log.Debug("app: session loop started", "frame_interval", s.loop.Interval())
	return s.loop.Run(ctx)
}

func (s *Session) do(ctx context.Context, fn func()) error {
	if err := s.loop.Do(ctx, fn); err != nil {
		return fmt.Errorf("app: session: %w", err)
	}
	return nil
}

// Toggle plays when paused and pauses otherwise.
func (s *Session) Toggle(ctx context.Context) error { return s.do(ctx, s.ctrl.TogglePlay) }

// Play starts playback. Without an audio source it is a logged no-op.
func (s *Session) Play(ctx context.Context) error { return s.do(ctx, s.ctrl.Play) }

// Pause stops playback.
func (s *Session) Pause(ctx context.Context) error { return s.do(ctx, s.ctrl.Pause) }

// Restart rewinds, hides every token and plays.
func (s *Session) Restart(ctx context.Context) error { return s.do(ctx, s.ctrl.Restart) }

// Seek moves playback to t seconds.
func (s *Session) Seek(ctx context.Context, t float64) error {
	if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 {
		return fmt.Errorf("app: seek to %v: %w", t, ErrInvalidPosition)
	}
	return s.do(ctx, func() { s.ctrl.SeekTo(t) })
}

// SeekWord jumps to the first token after the highlighted one that matches
// query and returns its index. The search does not wrap around.
func (s *Session) SeekWord(ctx context.Context, query string) (int, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return -1, fmt.Errorf("app: seek word: empty query: %w", ErrNoMatch)
	}
	idx := -1
	var seekErr error
	err := s.do(ctx, func() {
		i, ok := s.finder.Find(s.ctrl.Sequence(), query, s.ctrl.Current()+1)
		if !ok {
			seekErr = ErrNoMatch
			return
		}
		idx = i
		if !s.ctrl.SeekToToken(i) {
			seekErr = ErrUnreachable
		}
	})
	if err != nil {
		return -1, err
	}
	if seekErr != nil {
		return idx, fmt.Errorf("app: seek word %q: %w", query, seekErr)
	}
	s.log.Debug("app: seek to word", "query", query, "index", idx)
	return idx, nil
}

// SetSpeed changes the playback rate.
func (s *Session) SetSpeed(ctx context.Context, rate float64) error {
	if math.IsNaN(rate) || rate < config.MinRate || rate > config.MaxRate {
		return fmt.Errorf("app: set speed %v: %w", rate, ErrRateOutOfRange)
	}
	return s.do(ctx, func() { s.ctrl.SetRate(rate) })
}

// LoadTranscript parses raw and replaces the transcript. Parsing never fails.
func (s *Session) LoadTranscript(ctx context.Context, raw string) (transcript.Sequence, error) {
	var seq transcript.Sequence
	err := s.do(ctx, func() { seq = s.ctrl.LoadTranscript(raw) })
	return seq, err
}

// LoadAudio sets the audio source. With autoMatch the resolver looks up a
// transcript named after the source before anything changes on the loop, and
// the result is loaded together with the audio. The returned result is zero
// when autoMatch is false.
func (s *Session) LoadAudio(ctx context.Context, src string, autoMatch bool) (assets.Result, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return assets.Result{}, fmt.Errorf("app: load audio: %w", media.ErrNoSource)
	}
	ctx = observe.ContextWithSession(ctx, s.id)
	ctx, span := observe.StartSpan(ctx, "session.load_audio", trace.WithAttributes(
		attribute.String("audio.source", src),
		attribute.Bool("transcript.auto_match", autoMatch),
	))
	defer span.End()

	var res assets.Result
	if autoMatch {
		res = s.resolver.Resolve(ctx, assets.BaseName(src))
		span.SetAttributes(
			attribute.String("transcript.name", res.Name),
			attribute.Bool("transcript.placeholder", res.Placeholder),
		)
	}
	err := s.do(ctx, func() {
		s.ctrl.LoadSource(src)
		if autoMatch {
			s.ctrl.LoadTranscript(res.Body)
		}
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return assets.Result{}, err
	}
	observe.Logger(ctx).Info("app: audio loaded", "src", src, "transcript", res.Name, "placeholder", res.Placeholder)
	return res, nil
}

// LoadDefaults loads the default audio and its matching transcript.
func (s *Session) LoadDefaults(ctx context.Context) (assets.Result, error) {
	return s.LoadAudio(ctx, s.DefaultAudio(), true)
}

// State summarises the session.
func (s *Session) State(ctx context.Context) (playback.State, error) {
	var st playback.State
	err := s.do(ctx, func() { st = s.ctrl.Snapshot() })
	return st, err
}

// HandleIntent applies an action sent by a viewer.
func (s *Session) HandleIntent(ctx context.Context, in render.Intent) error {
	switch in.Action {
	case render.ActionToggle:
		return s.Toggle(ctx)
	case render.ActionPlay:
		return s.Play(ctx)
	case render.ActionPause:
		return s.Pause(ctx)
	case render.ActionRestart:
		return s.Restart(ctx)
	case render.ActionSeek:
		return s.Seek(ctx, in.Value)
	case render.ActionSeekWord:
		_, err := s.SeekWord(ctx, in.Query)
		return err
	case render.ActionSpeed:
		return s.SetSpeed(ctx, in.Value)
	case render.ActionLoadDefaults:
		_, err := s.LoadDefaults(ctx)
		return err
	default:
		return fmt.Errorf("%w: %q", ErrUnknownIntent, in.Action)
	}
}

// DefaultAudio returns the source loaded by [Session.LoadDefaults].
func (s *Session) DefaultAudio() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaultAudio
}

// SetDefaultAudio changes the source used by later [Session.LoadDefaults]
// calls.
func (s *Session) SetDefaultAudio(src string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultAudio = src
}

// SetScrollMargin changes the re-centring margin from the next frame on.
func (s *Session) SetScrollMargin(m float64) {
	s.loop.Post(func() { s.ctrl.SetScrollMargin(m) })
}

// SetProber replaces the duration prober used by later audio loads.
func (s *Session) SetProber(pr media.Prober) {
	s.player.SetProber(pr)
}
