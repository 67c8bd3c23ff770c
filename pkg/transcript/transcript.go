// Package transcript holds the token model behind the live-transcription
// effect: an immutable [Sequence] of [Token] values, a tolerant [Parse]
// function that never fails, and the reveal calculator [VisibleCount] that maps
// a playback position onto the number of tokens that should be on screen.
//
// Two timing regimes are supported. When the first token of a sequence carries
// a start time the sequence is in [ModeTimestamp] and tokens are revealed as
// playback crosses their start. Otherwise the sequence is in [ModeUniform] and
// tokens are spread evenly across the media duration.
//
// All types in this package are plain values and safe for concurrent reads.
package transcript

import (
	"fmt"
	"math"
)

// Token is a single displayable word-like unit.
//
// Start and End are in seconds from the beginning of the media. A nil pointer
// means the time is absent; absent is distinct from zero.
type Token struct {
	// Text is the non-empty display text.
	Text string `json:"text"`

	// Start is the moment the token should become visible.
	Start *float64 `json:"start,omitempty"`

	// End is parsed and carried but no reveal logic consumes it.
	End *float64 `json:"end,omitempty"`
}

// HasStart reports whether the token carries a start time.
func (t Token) HasStart() bool { return t.Start != nil }

// StartOr returns the start time, or def when the token has none.
func (t Token) StartOr(def float64) float64 {
	if t.Start == nil {
		return def
	}
	return *t.Start
}

// Seconds returns a pointer to v. It is a convenience for building timed
// tokens in code and tests.
func Seconds(v float64) *float64 { return &v }

// Mode selects the reveal regime of a [Sequence].
type Mode int

const (
	// ModeUniform spreads tokens evenly across the media duration.
	ModeUniform Mode = iota

	// ModeTimestamp reveals each token once playback reaches its start time.
	ModeTimestamp
)

// String returns the lowercase name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeUniform:
		return "uniform"
	case ModeTimestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Sequence is an ordered, immutable list of tokens. The zero value is an empty
// sequence in [ModeUniform].
type Sequence struct {
	tokens []Token
}

// NewSequence builds a sequence from tokens. Tokens with empty text are
// dropped. The slice is copied.
func NewSequence(tokens []Token) Sequence {
	out := make([]Token, 0, len(tokens))
	for _, t := range tokens {
		if t.Text == "" {
			continue
		}
		out = append(out, t)
	}
	return Sequence{tokens: out}
}

// Len returns the number of tokens.
func (s Sequence) Len() int { return len(s.tokens) }

// At returns the token at index i. It panics when i is out of range.
func (s Sequence) At(i int) Token { return s.tokens[i] }

// Tokens returns a copy of the underlying tokens.
func (s Sequence) Tokens() []Token {
	out := make([]Token, len(s.tokens))
	copy(out, s.tokens)
	return out
}

// Mode reports the reveal regime. It is decided by the first token alone.
func (s Sequence) Mode() Mode {
	if len(s.tokens) > 0 && s.tokens[0].HasStart() {
		return ModeTimestamp
	}
	return ModeUniform
}

// VisibleCount returns how many tokens should be visible at currentTime.
//
// In [ModeTimestamp] it counts the leading run of tokens whose start is at or
// before currentTime; a token without a start time ends the run. In
// [ModeUniform] it returns floor(n × currentTime / duration), or 0 when the
// duration is unknown, zero, negative or non-finite. The result is always in
// [0, n].
func VisibleCount(seq Sequence, currentTime, duration float64) int {
	n := seq.Len()
	if n == 0 {
		return 0
	}

	var count int
	if seq.Mode() == ModeTimestamp {
		for count < n && seq.tokens[count].StartOr(math.Inf(1)) <= currentTime {
			count++
		}
	} else {
		if duration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
			return 0
		}
		if math.IsNaN(currentTime) {
			return 0
		}
		f := math.Floor(float64(n) * currentTime / duration)
		switch {
		case f <= 0:
			count = 0
		case f >= float64(n):
			count = n
		default:
			count = int(f)
		}
	}
	return min(max(count, 0), n)
}

// SeekTime returns the earliest playback position at which the token at index
// is visible. The second result is false when no such position can be derived:
// index out of range, a missing start time in timestamp mode, or an unknown
// duration in uniform mode.
func SeekTime(seq Sequence, index int, duration float64) (float64, bool) {
	n := seq.Len()
	if index < 0 || index >= n {
		return 0, false
	}
	if seq.Mode() == ModeTimestamp {
		// The leading run reaches index only once every earlier start has
		// passed too.
		var at float64
		for i := 0; i <= index; i++ {
			tok := seq.tokens[i]
			if !tok.HasStart() {
				return 0, false
			}
			at = max(at, *tok.Start)
		}
		return at, true
	}
	if duration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return 0, false
	}
	t := float64(index+1) * duration / float64(n)
	if VisibleCount(seq, t, duration) <= index {
		// Rounding landed just short of the boundary.
		t = math.Nextafter(t, math.Inf(1))
	}
	return t, true
}

// FormatClock renders sec as zero-padded mm:ss. Non-finite input renders as
// 00:00. Minutes are not wrapped into hours.
func FormatClock(sec float64) string {
	if math.IsNaN(sec) || math.IsInf(sec, 0) {
		return "00:00"
	}
	if sec < 0 {
		sec = 0
	}
	total := int(math.Floor(sec))
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
