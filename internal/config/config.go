// Package config provides the configuration schema, loader, hot-reload
// watcher, and asset source registry for the livescript server.
package config

import "time"

// LogLevel controls log verbosity for the livescript server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Playback rate bounds accepted for default_rate and speed changes.
const (
	MinRate = 0.25
	MaxRate = 4.0
)

// Config is the root configuration structure for livescript.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Playback PlaybackConfig `yaml:"playback"`
	Layout   LayoutConfig   `yaml:"layout"`
	Assets   AssetsConfig   `yaml:"assets"`
	Media    MediaConfig    `yaml:"media"`
	Terminal TerminalConfig `yaml:"terminal"`
	MCP      MCPConfig      `yaml:"mcp"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8080").
	// Empty disables the HTTP surface.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// AllowedOrigins lists extra host patterns allowed to open the viewer
	// WebSocket from another origin.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// PlaybackConfig tunes the sync controller.
type PlaybackConfig struct {
	// FrameInterval is the minimum spacing between reveal frames.
	// Default: 16ms.
	FrameInterval time.Duration `yaml:"frame_interval"`

	// ScrollMargin is the distance in layout units from the viewport edge at
	// which the highlighted token is scrolled back to the middle. Default: 20.
	ScrollMargin float64 `yaml:"scroll_margin"`

	// DefaultRate is the playback speed applied when a session starts.
	// Default: 1.
	DefaultRate float64 `yaml:"default_rate"`
}

// LayoutConfig sizes the flow layout used for scroll decisions.
type LayoutConfig struct {
	Width          int     `yaml:"width"`
	LineHeight     float64 `yaml:"line_height"`
	ViewportHeight float64 `yaml:"viewport_height"`
}

// AssetsConfig controls default asset resolution.
type AssetsConfig struct {
	// DefaultAudio is the audio source loaded by "load defaults".
	// Default: "assets/demo.mp3".
	DefaultAudio string `yaml:"default_audio"`

	// Placeholder replaces the built-in placeholder transcript.
	Placeholder string `yaml:"placeholder"`

	// LoadOnStart loads the defaults as soon as the session starts.
	// Default: true.
	LoadOnStart *bool `yaml:"load_on_start"`

	// Sources are consulted in order for each candidate name. Each entry
	// selects a factory registered in the [Registry]. Default: a single dir
	// source rooted at "assets".
	Sources []SourceEntry `yaml:"sources"`
}

// LoadsOnStart reports the effective load_on_start setting.
func (a AssetsConfig) LoadsOnStart() bool {
	return a.LoadOnStart == nil || *a.LoadOnStart
}

// SourceEntry configures one asset backend.
type SourceEntry struct {
	// Name selects the registered source implementation ("dir", "http",
	// "redis", "postgres").
	Name string `yaml:"name"`

	// Dir is the root directory for the dir source.
	Dir string `yaml:"dir"`

	// BaseURL is the root URL for the http source.
	BaseURL string `yaml:"base_url"`

	// DSN is the connection string for redis (redis://...) and postgres.
	DSN string `yaml:"dsn"`

	// Prefix namespaces redis keys.
	Prefix string `yaml:"prefix"`

	// Options holds source-specific values not covered above, such as
	// "timeout" or "max_bytes" for the http source.
	Options map[string]any `yaml:"options"`
}

// MediaConfig feeds duration metadata to the virtual-clock player.
type MediaConfig struct {
	// ProbeDir is scanned for .wav files whose header yields the duration.
	ProbeDir string `yaml:"probe_dir"`

	// Durations maps audio sources to their length in seconds. Consulted
	// before ProbeDir.
	Durations map[string]float64 `yaml:"durations"`
}

// TerminalConfig controls the console renderer.
type TerminalConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MCPConfig controls the MCP control surface served at /mcp.
type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}
