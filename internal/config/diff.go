package config

import (
	"maps"
	"slices"
)

// ConfigDiff describes what changed between two configs.
//
// Hot fields are applied to the running server by the reload callback.
// Restart fields are only reported; they take effect on the next start.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	PlaceholderChanged bool
	NewPlaceholder     string

	ScrollMarginChanged bool
	NewScrollMargin     float64

	DefaultAudioChanged bool
	NewDefaultAudio     string

	DurationsChanged bool

	// Restart-only changes.
	ListenAddrChanged bool
	SourcesChanged    bool
	LayoutChanged     bool
	SurfacesChanged   bool // terminal or mcp toggled
}

// RestartRequired reports whether any change needs a restart to apply.
func (d ConfigDiff) RestartRequired() bool {
	return d.ListenAddrChanged || d.SourcesChanged || d.LayoutChanged || d.SurfacesChanged
}

// Empty reports whether nothing tracked changed.
func (d ConfigDiff) Empty() bool {
	return d == ConfigDiff{}
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Assets.Placeholder != new.Assets.Placeholder {
		d.PlaceholderChanged = true
		d.NewPlaceholder = new.Assets.Placeholder
	}
	if old.Playback.ScrollMargin != new.Playback.ScrollMargin {
		d.ScrollMarginChanged = true
		d.NewScrollMargin = new.Playback.ScrollMargin
	}
	if old.Assets.DefaultAudio != new.Assets.DefaultAudio {
		d.DefaultAudioChanged = true
		d.NewDefaultAudio = new.Assets.DefaultAudio
	}
	d.DurationsChanged = !maps.Equal(old.Media.Durations, new.Media.Durations)

	d.ListenAddrChanged = old.Server.ListenAddr != new.Server.ListenAddr
	d.SourcesChanged = !slices.EqualFunc(old.Assets.Sources, new.Assets.Sources, sameSource)
	d.LayoutChanged = old.Layout != new.Layout
	d.SurfacesChanged = old.Terminal != new.Terminal || old.MCP != new.MCP

	return d
}

// sameSource compares two source entries, including their options.
func sameSource(a, b SourceEntry) bool {
	if a.Name != b.Name || a.Dir != b.Dir || a.BaseURL != b.BaseURL || a.DSN != b.DSN || a.Prefix != b.Prefix {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, v := range a.Options {
		w, ok := b.Options[k]
		if !ok || !sameOption(v, w) {
			return false
		}
	}
	return true
}

// sameOption compares YAML scalar values. Nested values are compared by
// their formatted form.
func sameOption(a, b any) bool {
	switch a.(type) {
	case map[string]any, []any:
		return formatAny(a) == formatAny(b)
	}
	switch b.(type) {
	case map[string]any, []any:
		return false
	}
	return a == b
}
