package config_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/livescript/internal/assets"
	"github.com/MrWong99/livescript/internal/assets/mock"
	"github.com/MrWong99/livescript/internal/config"
)

const validYAML = `
server:
  listen_addr: ":9000"
  log_level: debug
  allowed_origins: ["localhost:*"]
playback:
  frame_interval: 33ms
  scroll_margin: 30
  default_rate: 1.5
layout:
  width: 60
  line_height: 20
  viewport_height: 200
assets:
  default_audio: assets/talk.wav
  placeholder: "no transcript"
  load_on_start: false
  sources:
    - name: dir
      dir: ./testdata
    - name: http
      base_url: https://cdn.example.com/assets/
      options:
        timeout: 2s
        max_bytes: 1024
    - name: redis
      dsn: redis://localhost:6379/0
      prefix: "ls:"
media:
  probe_dir: ./assets
  durations:
    assets/talk.wav: 12.5
terminal:
  enabled: true
mcp:
  enabled: true
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9000" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Playback.FrameInterval != 33*time.Millisecond {
		t.Errorf("frame_interval = %v, want 33ms", cfg.Playback.FrameInterval)
	}
	if cfg.Playback.DefaultRate != 1.5 || cfg.Playback.ScrollMargin != 30 {
		t.Errorf("playback = %+v", cfg.Playback)
	}
	if cfg.Layout != (config.LayoutConfig{Width: 60, LineHeight: 20, ViewportHeight: 200}) {
		t.Errorf("layout = %+v", cfg.Layout)
	}
	if cfg.Assets.LoadsOnStart() {
		t.Error("load_on_start: false was ignored")
	}
	if len(cfg.Assets.Sources) != 3 || cfg.Assets.Sources[2].Prefix != "ls:" {
		t.Errorf("sources = %+v", cfg.Assets.Sources)
	}
	if cfg.Media.Durations["assets/talk.wav"] != 12.5 {
		t.Errorf("durations = %v", cfg.Media.Durations)
	}
	if !cfg.Terminal.Enabled || !cfg.MCP.Enabled {
		t.Error("surfaces not enabled")
	}
}

func TestLoadFromReader_EmptyIsDefault(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != config.DefaultListenAddr {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Playback.FrameInterval != config.DefaultFrameInterval {
		t.Errorf("frame_interval = %v", cfg.Playback.FrameInterval)
	}
	if cfg.Assets.DefaultAudio != "assets/demo.mp3" {
		t.Errorf("default_audio = %q", cfg.Assets.DefaultAudio)
	}
	if !cfg.Assets.LoadsOnStart() {
		t.Error("load_on_start should default to true")
	}
	if len(cfg.Assets.Sources) != 1 || cfg.Assets.Sources[0].Name != "dir" || cfg.Assets.Sources[0].Dir != "assets" {
		t.Errorf("sources = %+v, want a single dir source at assets", cfg.Assets.Sources)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("playback:\n  frame_rate: 60\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"invalid log level", "server:\n  log_level: verbose\n", "server.log_level"},
		{"negative frame interval", "playback:\n  frame_interval: -1s\n", "playback.frame_interval"},
		{"negative scroll margin", "playback:\n  scroll_margin: -5\n", "playback.scroll_margin"},
		{"rate too fast", "playback:\n  default_rate: 8\n", "playback.default_rate"},
		{"rate too slow", "playback:\n  default_rate: 0.1\n", "playback.default_rate"},
		{"negative width", "layout:\n  width: -1\n", "layout.width"},
		{"source without name", "assets:\n  sources:\n    - dir: x\n", "assets.sources[0].name"},
		{"http without url", "assets:\n  sources:\n    - name: http\n", "base_url is required"},
		{"postgres without dsn", "assets:\n  sources:\n    - name: postgres\n", "dsn is required"},
		{"negative duration", "media:\n  durations:\n    a.mp3: -2\n", "media.durations"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Server.LogLevel = "loud"
	cfg.Playback.DefaultRate = 10
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected errors")
	}
	msg := err.Error()
	if !strings.Contains(msg, "log_level") || !strings.Contains(msg, "default_rate") {
		t.Errorf("joined error missing entries: %q", msg)
	}
}

func TestRegistry_UnknownSource(t *testing.T) {
	t.Parallel()

	_, err := config.NewRegistry().CreateSource(context.Background(), config.SourceEntry{Name: "s3"})
	if !errors.Is(err, config.ErrSourceNotRegistered) {
		t.Errorf("err = %v, want ErrSourceNotRegistered", err)
	}
}

func TestRegistry_RegisteredSource(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	want := &mock.Source{SourceName: "fake"}
	var gotEntry config.SourceEntry
	reg.RegisterSource("fake", func(_ context.Context, e config.SourceEntry) (assets.Source, error) {
		gotEntry = e
		return want, nil
	})

	src, err := reg.CreateSource(context.Background(), config.SourceEntry{Name: "fake", Prefix: "p"})
	if err != nil {
		t.Fatalf("CreateSource: %v", err)
	}
	if src != want || gotEntry.Prefix != "p" {
		t.Errorf("factory not invoked with entry: %+v", gotEntry)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	reg := config.NewRegistry()
	reg.RegisterSource("bad", func(context.Context, config.SourceEntry) (assets.Source, error) {
		return nil, boom
	})
	if _, err := reg.CreateSource(context.Background(), config.SourceEntry{Name: "bad"}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped boom", err)
	}
}

func TestDefaultRegistry(t *testing.T) {
	t.Parallel()

	reg := config.DefaultRegistry()
	if got := strings.Join(reg.Names(), ","); got != "dir,http,postgres,redis" {
		t.Errorf("Names = %s", got)
	}

	ctx := context.Background()
	src, err := reg.CreateSource(ctx, config.SourceEntry{Name: "dir", Dir: t.TempDir()})
	if err != nil || src.Name() != "dir" {
		t.Fatalf("dir source = %v, %v", src, err)
	}
	src, err = reg.CreateSource(ctx, config.SourceEntry{
		Name: "http", BaseURL: "https://cdn.example.com",
		Options: map[string]any{"timeout": "1s", "max_bytes": 2048},
	})
	if err != nil || src.Name() != "http" {
		t.Fatalf("http source = %v, %v", src, err)
	}
	if _, err := reg.CreateSource(ctx, config.SourceEntry{
		Name: "http", BaseURL: "https://cdn.example.com",
		Options: map[string]any{"timeout": true},
	}); err == nil {
		t.Error("expected error for malformed timeout option")
	}
}

func TestOptionHelpers(t *testing.T) {
	t.Parallel()

	e := config.SourceEntry{Name: "http", Options: map[string]any{
		"str": "1500ms", "int": 3, "float": 0.5, "bad": 1.5,
	}}
	if d, ok, err := config.OptionDuration(e, "str"); err != nil || !ok || d != 1500*time.Millisecond {
		t.Errorf("OptionDuration(str) = %v, %v, %v", d, ok, err)
	}
	if d, _, _ := config.OptionDuration(e, "int"); d != 3*time.Second {
		t.Errorf("OptionDuration(int) = %v", d)
	}
	if d, _, _ := config.OptionDuration(e, "float"); d != 500*time.Millisecond {
		t.Errorf("OptionDuration(float) = %v", d)
	}
	if _, ok, err := config.OptionDuration(e, "missing"); ok || err != nil {
		t.Error("missing option should report !ok without error")
	}
	if _, _, err := config.OptionInt(e, "bad"); err == nil {
		t.Error("OptionInt(1.5) should fail")
	}
}
