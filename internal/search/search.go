// Package search locates spoken words in a transcript so playback can jump to
// them.
//
// Matching is tolerant of spelling: a query word matches a token when the two
// share a Double Metaphone code and their Jaro-Winkler similarity clears the
// phonetic threshold, or, failing that, when similarity alone clears the
// stricter fuzzy threshold. Exact matches (case and surrounding punctuation
// ignored) always rank first. Multi-word queries match consecutive tokens.
package search

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/livescript/pkg/transcript"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option configures a [Finder].
type Option func(*Finder)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a phonetic
// candidate. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(f *Finder) { f.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score when the words share
// no phonetic code. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(f *Finder) { f.fuzzyThreshold = threshold }
}

// Finder matches queries against token sequences. It is read-only after
// construction and safe for concurrent use.
type Finder struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a finder with the given options.
func New(opts ...Option) *Finder {
	f := &Finder{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

type tier int

const (
	tierNone tier = iota
	tierFuzzy
	tierPhonetic
	tierExact
)

// Find returns the index of the first token of the best match for query that
// starts at or after from. Ties go to the earliest match.
func (f *Finder) Find(seq transcript.Sequence, query string, from int) (int, bool) {
	words := strings.Fields(normalize(query))
	if len(words) == 0 {
		return 0, false
	}
	from = max(from, 0)

	bestIdx := -1
	bestTier := tierNone
	bestScore := 0.0

	for i := from; i+len(words) <= seq.Len(); i++ {
		t, score := f.window(seq, i, words)
		if t == tierNone {
			continue
		}
		if t > bestTier || (t == bestTier && score > bestScore) {
			bestIdx, bestTier, bestScore = i, t, score
		}
	}
	if bestIdx < 0 {
		return 0, false
	}
	return bestIdx, true
}

// window scores the tokens starting at i against words. The window's tier is
// the weakest tier of any word and its score the mean similarity.
func (f *Finder) window(seq transcript.Sequence, i int, words []string) (tier, float64) {
	worst := tierExact
	var total float64
	for k, w := range words {
		t, score := f.word(normalize(seq.At(i+k).Text), w)
		if t == tierNone {
			return tierNone, 0
		}
		worst = min(worst, t)
		total += score
	}
	return worst, total / float64(len(words))
}

func (f *Finder) word(token, query string) (tier, float64) {
	if token == "" {
		return tierNone, 0
	}
	if token == query {
		return tierExact, 1
	}
	score := matchr.JaroWinkler(token, query, false)
	if codesOverlap(token, query) && score >= f.phoneticThreshold {
		return tierPhonetic, score
	}
	if score >= f.fuzzyThreshold {
		return tierFuzzy, score
	}
	return tierNone, 0
}

func codesOverlap(a, b string) bool {
	ap, as := matchr.DoubleMetaphone(a)
	bp, bs := matchr.DoubleMetaphone(b)
	for _, x := range []string{ap, as} {
		if x == "" {
			continue
		}
		if x == bp || x == bs {
			return true
		}
	}
	return false
}

// normalize lowercases s and trims punctuation from each word's edges.
func normalize(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	for i, f := range fields {
		fields[i] = strings.TrimFunc(f, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
	}
	return strings.Join(fields, " ")
}
