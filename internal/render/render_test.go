package render_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/livescript/internal/playback"
	"github.com/MrWong99/livescript/internal/render"
	"github.com/MrWong99/livescript/pkg/transcript"
)

type recorder struct {
	mu     sync.Mutex
	events []render.Event
}

func (r *recorder) Handle(ev render.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []render.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]render.EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func TestLayout_Flow(t *testing.T) {
	t.Parallel()

	l := render.Layout{Width: 10}
	texts := []string{"hello", " big", " wide", " world", " supercalifragilistic"}
	got := l.Flow(texts)
	want := []int{0, 0, 1, 1, 2}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Flow = %v, want %v", got, want)
		}
	}
}

func TestTokenText(t *testing.T) {
	t.Parallel()

	tok := transcript.Token{Text: "word"}
	if got := render.TokenText(0, tok); got != "word" {
		t.Errorf("TokenText(0) = %q", got)
	}
	if got := render.TokenText(3, tok); got != " word" {
		t.Errorf("TokenText(3) = %q", got)
	}
}

func TestModel_ImplementsViewContract(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	m := render.NewModel(render.Layout{Width: 5, LineHeight: 10, ViewportHeight: 30}, rec)
	m.Reset(transcript.Parse("aaaa bbbb cccc dddd eeee ffff"))

	snap := m.Snapshot()
	if len(snap.Tokens) != 6 || snap.Lines != 6 {
		t.Fatalf("tokens=%d lines=%d, want 6/6", len(snap.Tokens), snap.Lines)
	}

	if !m.Reveal(2) || m.Reveal(6) || m.Reveal(-1) {
		t.Error("Reveal bounds handling wrong")
	}
	if !m.SetCurrent(2, true) || m.SetCurrent(9, true) {
		t.Error("SetCurrent bounds handling wrong")
	}

	top, ok := m.OffsetTop(4)
	if !ok || top != 40 {
		t.Errorf("OffsetTop(4) = %v, %v; want 40", top, ok)
	}
	if _, ok := m.TokenRect(6); ok {
		t.Error("TokenRect out of range should fail")
	}

	// Max scroll is 60 - 30 = 30.
	m.SetScrollTop(100)
	if got := m.Snapshot().ScrollTop; got != 30 {
		t.Errorf("ScrollTop = %v, want clamp to 30", got)
	}
	rect, _ := m.TokenRect(4)
	if rect.Top != 10 || rect.Bottom != 20 {
		t.Errorf("TokenRect(4) = %+v, want {10 20}", rect)
	}
	m.SetScrollTop(-5)
	if got := m.Snapshot().ScrollTop; got != 0 {
		t.Errorf("ScrollTop = %v, want 0", got)
	}

	want := []render.EventType{render.EventReset, render.EventReveal, render.EventCurrent, render.EventScroll, render.EventScroll}
	got := rec.types()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}

func TestModel_RevealIsIdempotent(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	m := render.NewModel(render.Layout{}, rec)
	m.Reset(transcript.Parse("a b"))
	m.Reveal(0)
	m.Reveal(0)
	if n := len(rec.types()); n != 2 {
		t.Errorf("events = %d, want reset + one reveal", n)
	}
}

func TestModel_DisplayEvents(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	m := render.NewModel(render.Layout{}, rec)
	m.SetTime("00:01 / 00:10")
	m.SetTime("00:01 / 00:10")
	m.SetStatus(playback.StatusPlaying)
	m.SetControlsEnabled(true)

	snap := m.Snapshot()
	if snap.Time != "00:01 / 00:10" || snap.Status != "playing" || snap.Label != "Transcribing…" || !snap.Controls {
		t.Errorf("snapshot = %+v", snap)
	}
	if n := len(rec.types()); n != 3 {
		t.Errorf("events = %v, want 3 (duplicate time suppressed)", rec.types())
	}
}

func TestEvent_MarshalJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ev   render.Event
		want string
	}{
		{render.Event{Type: render.EventReveal, Index: 0, Text: "hi"}, `{"index":0,"text":"hi","type":"reveal"}`},
		{render.Event{Type: render.EventCurrent, Index: 3, On: true}, `{"index":3,"on":true,"type":"current"}`},
		{render.Event{Type: render.EventScroll, Top: 12.5}, `{"top":12.5,"type":"scroll"}`},
		{render.Event{Type: render.EventStatus, Status: playback.StatusPaused}, `{"label":"Paused","status":"paused","type":"status"}`},
		{render.Event{Type: render.EventControls, On: true}, `{"enabled":true,"type":"controls"}`},
	}
	for _, tc := range tests {
		b, err := json.Marshal(tc.ev)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if string(b) != tc.want {
			t.Errorf("Marshal(%s) = %s, want %s", tc.ev.Type, b, tc.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	term := render.NewTerminal(&buf)
	m := render.NewModel(render.Layout{}, term)

	m.SetStatus(playback.StatusPlaying)
	m.Reset(transcript.Parse("hello live world"))
	m.Reveal(0)
	m.Reveal(1)
	m.Reveal(2)
	m.SetStatus(playback.StatusPaused)

	want := "[Transcribing…]\n── transcript (3 tokens) ──\nhello live world\n[Paused]\n"
	if got := buf.String(); got != want {
		t.Errorf("terminal output:\n%q\nwant:\n%q", got, want)
	}
}

type intentRecorder struct {
	got chan render.Intent
}

func (r *intentRecorder) HandleIntent(_ context.Context, in render.Intent) error {
	r.got <- in
	return nil
}

func TestHub_SnapshotThenEvents(t *testing.T) {
	t.Parallel()

	m := render.NewModel(render.Layout{})
	m.Reset(transcript.Parse("one two"))
	intents := &intentRecorder{got: make(chan render.Intent, 1)}
	hub := render.NewHub(m, render.WithIntentHandler(intents))
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	t.Cleanup(func() { _ = hub.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.CloseNow()

	var first map[string]any
	if err := wsjson.Read(ctx, conn, &first); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if first["type"] != "snapshot" {
		t.Fatalf("first message type = %v, want snapshot", first["type"])
	}
	state := first["state"].(map[string]any)
	if toks := state["tokens"].([]any); len(toks) != 2 {
		t.Errorf("snapshot tokens = %d, want 2", len(toks))
	}

	// Wait for registration before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	m.Reveal(1)

	var next map[string]any
	if err := wsjson.Read(ctx, conn, &next); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if next["type"] != "reveal" || next["text"] != " two" {
		t.Errorf("event = %v, want reveal of \" two\"", next)
	}

	if err := wsjson.Write(ctx, conn, render.Intent{Action: "seek", Value: 4}); err != nil {
		t.Fatalf("write intent: %v", err)
	}
	select {
	case in := <-intents.got:
		if in.Action != "seek" || in.Value != 4 {
			t.Errorf("intent = %+v", in)
		}
	case <-ctx.Done():
		t.Fatal("intent never delivered")
	}
}

func TestHub_CloseRejectsViewers(t *testing.T) {
	t.Parallel()

	m := render.NewModel(render.Layout{})
	hub := render.NewHub(m)
	_ = hub.Close()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.CloseNow()

	_, _, err = conn.Read(ctx)
	if websocket.CloseStatus(err) != websocket.StatusGoingAway {
		t.Errorf("close status = %v, want GoingAway (err %v)", websocket.CloseStatus(err), err)
	}
	if hub.Clients() != 0 {
		t.Errorf("Clients = %d, want 0", hub.Clients())
	}
}
