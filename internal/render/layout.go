// Package render turns controller calls into view state and delivers it to
// viewers.
//
// [Model] implements playback.View and playback.Display on top of a
// deterministic [Layout], so scroll decisions are made against real line
// geometry without a browser. Every change is published as an [Event] to the
// attached sinks: [Terminal] prints the transcript as it is revealed, and
// [Hub] streams events to browser viewers over WebSocket.
package render

import (
	"unicode/utf8"

	"github.com/MrWong99/livescript/internal/playback"
	"github.com/MrWong99/livescript/pkg/transcript"
)

// Layout describes a fixed-width text column. Tokens flow left to right and
// wrap to a new line when the next one would overflow Width columns.
type Layout struct {
	// Width is the column count per line. Zero selects 80.
	Width int

	// LineHeight is the height of one line in viewport units. Zero selects 24.
	LineHeight float64

	// ViewportHeight is the visible height of the container. Zero selects 240.
	ViewportHeight float64
}

func (l Layout) withDefaults() Layout {
	if l.Width <= 0 {
		l.Width = 80
	}
	if l.LineHeight <= 0 {
		l.LineHeight = 24
	}
	if l.ViewportHeight <= 0 {
		l.ViewportHeight = 240
	}
	return l
}

// TokenText is the rendered text of token i: every token after the first is
// preceded by a single space.
func TokenText(i int, tok transcript.Token) string {
	if i == 0 {
		return tok.Text
	}
	return " " + tok.Text
}

// Flow assigns each rendered token to a line. A token wider than a whole line
// gets a line to itself.
func (l Layout) Flow(texts []string) []int {
	l = l.withDefaults()
	lines := make([]int, len(texts))
	line, col := 0, 0
	for i, text := range texts {
		w := utf8.RuneCountInString(text)
		if col > 0 && col+w > l.Width {
			line++
			col = 0
			w = max(w-1, 0) // the separating space is swallowed by the break
		}
		lines[i] = line
		col += w
	}
	return lines
}

// ContentHeight is the total height of n lines.
func (l Layout) ContentHeight(lines int) float64 {
	return float64(lines) * l.withDefaults().LineHeight
}

// rectFor returns the viewport extent of a token on line, given scrollTop.
func (l Layout) rectFor(line int, scrollTop float64) playback.Rect {
	l = l.withDefaults()
	top := float64(line)*l.LineHeight - scrollTop
	return playback.Rect{Top: top, Bottom: top + l.LineHeight}
}
