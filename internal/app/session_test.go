package app_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/livescript/internal/app"
	"github.com/MrWong99/livescript/internal/assets"
	"github.com/MrWong99/livescript/internal/assets/mock"
	"github.com/MrWong99/livescript/internal/loop"
	"github.com/MrWong99/livescript/internal/playback"
	"github.com/MrWong99/livescript/internal/render"
	"github.com/MrWong99/livescript/pkg/media"
)

const timedJSON = `[{"word":"hello","start":0},{"word":"brave","start":1},{"word":"world","start":2}]`

// fakeClock is a manually advanced wall clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// startSession runs s until the test ends.
func startSession(t *testing.T, s *app.Session) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func newSession(t *testing.T, cfg app.SessionConfig) *app.Session {
	t.Helper()
	if cfg.FrameInterval == 0 {
		cfg.FrameInterval = time.Millisecond
	}
	s := app.NewSession(cfg)
	startSession(t, s)
	return s
}

// waitState polls the session until cond holds.
func waitState(t *testing.T, s *app.Session, cond func(playback.State) bool) playback.State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		st, err := s.State(context.Background())
		if err != nil {
			t.Fatalf("State: %v", err)
		}
		if cond(st) {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not reached, last state %+v", st)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestSession_IDIsUnique(t *testing.T) {
	t.Parallel()
	a := app.NewSession(app.SessionConfig{})
	b := app.NewSession(app.SessionConfig{})
	if a.ID() == "" || a.ID() == b.ID() {
		t.Errorf("ids %q and %q", a.ID(), b.ID())
	}
}

func TestSession_LoadDefaultsResolvesTranscript(t *testing.T) {
	t.Parallel()

	src := &mock.Source{Bodies: map[string]string{"demo.json": timedJSON}}
	s := newSession(t, app.SessionConfig{
		Resolver:     assets.New([]assets.Source{src}),
		DefaultAudio: "assets/demo.mp3",
	})

	res, err := s.LoadDefaults(context.Background())
	if err != nil {
		t.Fatalf("LoadDefaults: %v", err)
	}
	if res.Name != "demo.json" || res.Source != "mock" || res.Placeholder {
		t.Errorf("result = %+v", res)
	}

	st, err := s.State(context.Background())
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if st.Source != "assets/demo.mp3" || st.Status != "paused" || st.Mode != "timestamp" || st.Total != 3 {
		t.Errorf("state = %+v", st)
	}
	if st.Revealed != 1 {
		t.Errorf("revealed = %d, want the token starting at 0", st.Revealed)
	}
}

func TestSession_LoadDefaultsPlaceholder(t *testing.T) {
	t.Parallel()

	s := newSession(t, app.SessionConfig{DefaultAudio: "assets/demo.mp3"})
	res, err := s.LoadDefaults(context.Background())
	if err != nil {
		t.Fatalf("LoadDefaults: %v", err)
	}
	if !res.Placeholder || res.Body != assets.DefaultPlaceholder {
		t.Errorf("result = %+v, want placeholder", res)
	}
	st, _ := s.State(context.Background())
	if want := len(strings.Fields(assets.DefaultPlaceholder)); st.Total != want || st.Mode != "uniform" {
		t.Errorf("state = %+v, want %d uniform tokens", st, want)
	}
}

func TestSession_SetDefaultAudio(t *testing.T) {
	t.Parallel()

	src := &mock.Source{Bodies: map[string]string{"other.txt": "just words"}}
	s := newSession(t, app.SessionConfig{
		Resolver:     assets.New([]assets.Source{src}),
		DefaultAudio: "assets/demo.mp3",
	})
	s.SetDefaultAudio("media/other.wav")

	res, err := s.LoadDefaults(context.Background())
	if err != nil {
		t.Fatalf("LoadDefaults: %v", err)
	}
	if res.Name != "other.txt" {
		t.Errorf("resolved %q, want other.txt", res.Name)
	}
}

func TestSession_LoadAudioWithoutMatch(t *testing.T) {
	t.Parallel()

	src := &mock.Source{}
	s := newSession(t, app.SessionConfig{Resolver: assets.New([]assets.Source{src})})
	if _, err := s.LoadTranscript(context.Background(), "one two"); err != nil {
		t.Fatalf("LoadTranscript: %v", err)
	}

	res, err := s.LoadAudio(context.Background(), "talk.wav", false)
	if err != nil {
		t.Fatalf("LoadAudio: %v", err)
	}
	if res != (assets.Result{}) || len(src.Calls()) != 0 {
		t.Errorf("resolver consulted without auto match: %+v, calls %v", res, src.Calls())
	}
	if st, _ := s.State(context.Background()); st.Total != 2 || st.Source != "talk.wav" {
		t.Errorf("state = %+v, transcript should be kept", st)
	}

	if _, err := s.LoadAudio(context.Background(), "  ", true); !errors.Is(err, media.ErrNoSource) {
		t.Errorf("empty source err = %v, want ErrNoSource", err)
	}
}

func TestSession_PlayRevealsOverTime(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	s := newSession(t, app.SessionConfig{
		Prober: media.StaticProber{"talk.wav": 10},
		Now:    clk.Now,
	})
	ctx := context.Background()
	if _, err := s.LoadTranscript(ctx, timedJSON); err != nil {
		t.Fatal(err)
	}
	if _, err := s.LoadAudio(ctx, "talk.wav", false); err != nil {
		t.Fatal(err)
	}
	waitState(t, s, func(st playback.State) bool { return st.Duration == 10 })

	if err := s.Play(ctx); err != nil {
		t.Fatalf("Play: %v", err)
	}
	waitState(t, s, func(st playback.State) bool { return st.Status == "playing" })

	clk.Advance(1500 * time.Millisecond)
	st := waitState(t, s, func(st playback.State) bool { return st.Revealed == 2 })
	// The current index follows the visible count, capped at the last token.
	if st.Current != 2 {
		t.Errorf("current = %d, want 2", st.Current)
	}

	if err := s.Toggle(ctx); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	waitState(t, s, func(st playback.State) bool { return st.Status == "paused" })

	if err := s.Restart(ctx); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	st = waitState(t, s, func(st playback.State) bool { return st.Status == "playing" })
	if st.Revealed != 1 || st.Elapsed != 0 {
		t.Errorf("after restart = %+v", st)
	}
}

func TestSession_SeekValidation(t *testing.T) {
	t.Parallel()

	s := newSession(t, app.SessionConfig{})
	for _, v := range []float64{-1, math.NaN(), math.Inf(1)} {
		if err := s.Seek(context.Background(), v); !errors.Is(err, app.ErrInvalidPosition) {
			t.Errorf("Seek(%v) = %v, want ErrInvalidPosition", v, err)
		}
	}
	if err := s.Seek(context.Background(), 3); err != nil {
		t.Errorf("Seek(3) = %v", err)
	}
}

func TestSession_SetSpeed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rate    float64
		wantErr bool
	}{
		{0.25, false},
		{2, false},
		{4, false},
		{0.1, true},
		{4.5, true},
		{math.NaN(), true},
	}
	s := newSession(t, app.SessionConfig{})
	for _, tc := range tests {
		err := s.SetSpeed(context.Background(), tc.rate)
		if tc.wantErr != errors.Is(err, app.ErrRateOutOfRange) {
			t.Errorf("SetSpeed(%v) = %v, wantErr %v", tc.rate, err, tc.wantErr)
		}
	}
	if st, _ := s.State(context.Background()); st.Rate != 4 {
		t.Errorf("rate = %v, want the last accepted rate 4", st.Rate)
	}
}

func TestSession_DefaultRate(t *testing.T) {
	t.Parallel()

	s := newSession(t, app.SessionConfig{DefaultRate: 1.5})
	if st, _ := s.State(context.Background()); st.Rate != 1.5 {
		t.Errorf("rate = %v, want 1.5", st.Rate)
	}
}

func TestSession_SeekWord(t *testing.T) {
	t.Parallel()

	s := newSession(t, app.SessionConfig{Prober: media.StaticProber{"talk.wav": 10}})
	ctx := context.Background()
	if _, err := s.LoadTranscript(ctx, timedJSON); err != nil {
		t.Fatal(err)
	}
	if _, err := s.LoadAudio(ctx, "talk.wav", false); err != nil {
		t.Fatal(err)
	}

	idx, err := s.SeekWord(ctx, "WORLD")
	if err != nil {
		t.Fatalf("SeekWord: %v", err)
	}
	if idx != 2 {
		t.Errorf("index = %d, want 2", idx)
	}
	st := waitState(t, s, func(st playback.State) bool { return st.Current == 2 })
	if st.Elapsed < 2 || st.Elapsed > 2.01 {
		t.Errorf("elapsed = %v, want the start of world", st.Elapsed)
	}

	if _, err := s.SeekWord(ctx, "hello"); !errors.Is(err, app.ErrNoMatch) {
		t.Errorf("search behind the current word = %v, want ErrNoMatch", err)
	}
	if _, err := s.SeekWord(ctx, "   "); !errors.Is(err, app.ErrNoMatch) {
		t.Errorf("empty query = %v, want ErrNoMatch", err)
	}
}

func TestSession_HandleIntent(t *testing.T) {
	t.Parallel()

	s := newSession(t, app.SessionConfig{})
	ctx := context.Background()

	if err := s.HandleIntent(ctx, render.Intent{Action: render.ActionSpeed, Value: 2}); err != nil {
		t.Fatalf("speed intent: %v", err)
	}
	if st, _ := s.State(ctx); st.Rate != 2 {
		t.Errorf("rate = %v, want 2", st.Rate)
	}
	if err := s.HandleIntent(ctx, render.Intent{Action: render.ActionSeek, Value: -4}); !errors.Is(err, app.ErrInvalidPosition) {
		t.Errorf("seek intent = %v", err)
	}
	if err := s.HandleIntent(ctx, render.Intent{Action: "rewind"}); !errors.Is(err, app.ErrUnknownIntent) {
		t.Errorf("unknown intent = %v", err)
	}
	if err := s.HandleIntent(ctx, render.Intent{Action: render.ActionToggle}); err != nil {
		t.Errorf("toggle without source = %v, want a no-op", err)
	}
}

func TestSession_StoppedLoop(t *testing.T) {
	t.Parallel()

	s := app.NewSession(app.SessionConfig{FrameInterval: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	cancel()
	<-done

	if err := s.Play(context.Background()); !errors.Is(err, loop.ErrStopped) {
		t.Errorf("Play after stop = %v, want ErrStopped", err)
	}
}
