package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// KnownSourceNames lists the asset sources shipped with livescript.
// Used by [Validate] to warn about unrecognised names.
var KnownSourceNames = []string{"dir", "http", "redis", "postgres"}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr     = ":8080"
	DefaultFrameInterval  = 16 * time.Millisecond
	DefaultScrollMargin   = 20
	DefaultRate           = 1.0
	DefaultLayoutWidth    = 80
	DefaultLineHeight     = 24
	DefaultViewportHeight = 240
	DefaultAudio          = "assets/demo.mp3"
	DefaultAssetDir       = "assets"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills in defaults and
// validates the result. An empty document yields the default config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields of cfg in place.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Playback.FrameInterval == 0 {
		cfg.Playback.FrameInterval = DefaultFrameInterval
	}
	if cfg.Playback.ScrollMargin == 0 {
		cfg.Playback.ScrollMargin = DefaultScrollMargin
	}
	if cfg.Playback.DefaultRate == 0 {
		cfg.Playback.DefaultRate = DefaultRate
	}
	if cfg.Layout.Width == 0 {
		cfg.Layout.Width = DefaultLayoutWidth
	}
	if cfg.Layout.LineHeight == 0 {
		cfg.Layout.LineHeight = DefaultLineHeight
	}
	if cfg.Layout.ViewportHeight == 0 {
		cfg.Layout.ViewportHeight = DefaultViewportHeight
	}
	if cfg.Assets.DefaultAudio == "" {
		cfg.Assets.DefaultAudio = DefaultAudio
	}
	if len(cfg.Assets.Sources) == 0 {
		cfg.Assets.Sources = []SourceEntry{{Name: "dir", Dir: DefaultAssetDir}}
	}
	for i := range cfg.Assets.Sources {
		if cfg.Assets.Sources[i].Name == "dir" && cfg.Assets.Sources[i].Dir == "" {
			cfg.Assets.Sources[i].Dir = DefaultAssetDir
		}
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Playback
	if cfg.Playback.FrameInterval < 0 {
		errs = append(errs, fmt.Errorf("playback.frame_interval %v must not be negative", cfg.Playback.FrameInterval))
	}
	if cfg.Playback.ScrollMargin < 0 {
		errs = append(errs, fmt.Errorf("playback.scroll_margin %.2f must not be negative", cfg.Playback.ScrollMargin))
	}
	if r := cfg.Playback.DefaultRate; r != 0 && (r < MinRate || r > MaxRate) {
		errs = append(errs, fmt.Errorf("playback.default_rate %.2f is out of range [%.2f, %.2f]", r, MinRate, MaxRate))
	}

	// Layout
	if cfg.Layout.Width < 0 {
		errs = append(errs, fmt.Errorf("layout.width %d must not be negative", cfg.Layout.Width))
	}
	if cfg.Layout.LineHeight < 0 || cfg.Layout.ViewportHeight < 0 {
		errs = append(errs, errors.New("layout.line_height and layout.viewport_height must not be negative"))
	}

	// Asset sources
	for i, src := range cfg.Assets.Sources {
		prefix := fmt.Sprintf("assets.sources[%d]", i)
		if src.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		validateSourceName(src.Name)
		switch src.Name {
		case "http":
			if src.BaseURL == "" {
				errs = append(errs, fmt.Errorf("%s.base_url is required for the http source", prefix))
			}
		case "redis", "postgres":
			if src.DSN == "" {
				errs = append(errs, fmt.Errorf("%s.dsn is required for the %s source", prefix, src.Name))
			}
		}
	}

	// Media
	for src, d := range cfg.Media.Durations {
		if d < 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			errs = append(errs, fmt.Errorf("media.durations[%q] %v must be a finite, non-negative number of seconds", src, d))
		}
	}

	if cfg.MCP.Enabled && cfg.Server.ListenAddr == "" {
		slog.Warn("mcp.enabled is set but server.listen_addr is empty; the MCP surface will not be reachable")
	}

	return errors.Join(errs...)
}

// validateSourceName logs a warning if name is not one of [KnownSourceNames].
// Third-party sources may still be registered under other names.
func validateSourceName(name string) {
	if slices.Contains(KnownSourceNames, name) {
		return
	}
	slog.Warn("unknown asset source name, may be a typo or third-party source",
		"name", name,
		"known", KnownSourceNames,
	)
}
