package transcript

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

// Format reports which input path [ParseResult] took.
type Format int

const (
	// FormatJSON means the input was structured word data.
	FormatJSON Format = iota

	// FormatPlain means the input was treated as whitespace-separated text.
	FormatPlain
)

// String returns the lowercase name of the format.
func (f Format) String() string {
	if f == FormatPlain {
		return "plain"
	}
	return "json"
}

// errShape signals structured input that parsed as JSON but cannot be read as
// a word list. It routes the input to the plain-text path.
var errShape = errors.New("transcript: unsupported word list shape")

// Parse converts raw transcript text into a [Sequence]. It never fails.
//
// Structured input is either a JSON array of entries or a JSON object whose
// "words" field holds that array. Each entry's text comes from "text", falling
// back to "word"; timing comes from "start"/"end", falling back to "t0"/"t1",
// and is only accepted when the value is a JSON number. Entries with empty
// text are dropped.
//
// Anything that cannot be read that way is split on whitespace instead, with
// no timing.
func Parse(raw string) Sequence {
	seq, _ := ParseResult(raw)
	return seq
}

// ParseResult is [Parse] that also reports which path produced the sequence.
func ParseResult(raw string) (Sequence, Format) {
	tokens, err := parseStructured(raw)
	if err != nil {
		return parsePlain(raw), FormatPlain
	}
	return NewSequence(tokens), FormatJSON
}

func parseStructured(raw string) ([]Token, error) {
	var data any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, err
	}

	var entries []any
	switch v := data.(type) {
	case []any:
		entries = v
	case map[string]any:
		words, ok := v["words"]
		if !ok || !truthy(words) {
			return nil, nil
		}
		arr, ok := words.([]any)
		if !ok {
			return nil, errShape
		}
		entries = arr
	case nil:
		return nil, errShape
	default:
		// Scalars have no words field.
		return nil, nil
	}

	tokens := make([]Token, 0, len(entries))
	for _, e := range entries {
		if e == nil {
			return nil, errShape
		}
		obj, ok := e.(map[string]any)
		if !ok {
			// Non-object entries have no text and are dropped.
			continue
		}
		text := entryText(obj)
		if text == "" {
			continue
		}
		tokens = append(tokens, Token{
			Text:  text,
			Start: firstNumber(obj, "start", "t0"),
			End:   firstNumber(obj, "end", "t1"),
		})
	}
	return tokens, nil
}

// entryText picks "text", then "word", skipping absent and null values only.
func entryText(obj map[string]any) string {
	for _, key := range []string{"text", "word"} {
		v, ok := obj[key]
		if !ok || v == nil {
			continue
		}
		return stringify(v)
	}
	return ""
}

func firstNumber(obj map[string]any, keys ...string) *float64 {
	for _, key := range keys {
		if f, ok := obj[key].(float64); ok {
			return Seconds(f)
		}
	}
	return nil
}

// stringify converts a decoded JSON value the way JavaScript's String does.
func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case float64:
		return jsNumber(x)
	case bool:
		return strconv.FormatBool(x)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			if e != nil {
				parts[i] = stringify(e)
			}
		}
		return strings.Join(parts, ",")
	default:
		return "[object Object]"
	}
}

// jsNumber formats f like Number.prototype.toString: plain digits between
// 1e-7 and 1e21, exponent notation without zero padding outside.
func jsNumber(f float64) string {
	if a := math.Abs(f); a != 0 && (a >= 1e21 || a < 1e-6) {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		mant, exp, _ := strings.Cut(s, "e")
		sign := exp[0]
		exp = strings.TrimLeft(exp[1:], "0")
		return mant + "e" + string(sign) + exp
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	default:
		return true
	}
}

func parsePlain(raw string) Sequence {
	fields := strings.Fields(raw)
	tokens := make([]Token, 0, len(fields))
	for _, f := range fields {
		tokens = append(tokens, Token{Text: f})
	}
	return Sequence{tokens: tokens}
}
