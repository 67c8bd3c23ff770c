// Package assets resolves the default transcript that accompanies an audio
// file.
//
// A [Resolver] walks a fixed list of candidate names (see [Candidates]) across
// one or more [Source] backends and returns the first body it can fetch. When
// every lookup fails it returns a placeholder text instead of an error, so
// playback always has something to reveal.
package assets

import (
	"context"
	"errors"
	"path"
	"strings"
)

// ErrNotFound is returned by a [Source] when the named asset does not exist.
var ErrNotFound = errors.New("assets: not found")

// DefaultPlaceholder is the transcript used when no candidate can be fetched.
const DefaultPlaceholder = "This is a sample transcript. Replace assets/transcript.txt or assets/transcript.json with your own content to drive the live transcription effect."

// Generic candidate names tried after the audio-specific ones.
const (
	GenericJSON = "transcript.json"
	GenericText = "transcript.txt"
)

// Source fetches raw transcript text by asset name.
//
// Implementations must return an error wrapping [ErrNotFound] for missing
// assets so the resolver can tell misses from failures. They must be safe for
// concurrent use.
type Source interface {
	// Name identifies the source in logs and metrics.
	Name() string

	// Fetch returns the asset body.
	Fetch(ctx context.Context, name string) (string, error)
}

// Candidates returns the lookup order for an audio base name: the base with a
// .json extension, then .txt, then the generic transcript.json and
// transcript.txt. An empty base yields only the generic names. Duplicates are
// dropped.
func Candidates(base string) []string {
	names := make([]string, 0, 4)
	if base != "" {
		names = append(names, base+".json", base+".txt")
	}
	names = append(names, GenericJSON, GenericText)

	seen := make(map[string]struct{}, len(names))
	out := names[:0]
	for _, n := range names {
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// BaseName strips the directory, query and final extension from an audio
// source, so "assets/talk.mp3?v=2" becomes "talk".
func BaseName(src string) string {
	if i := strings.IndexAny(src, "?#"); i >= 0 {
		src = src[:i]
	}
	src = strings.ReplaceAll(src, "\\", "/")
	b := path.Base(src)
	if b == "." || b == "/" {
		return ""
	}
	return strings.TrimSuffix(b, path.Ext(b))
}
