package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/MrWong99/livescript/internal/assets"
	"github.com/MrWong99/livescript/internal/loop"
	"github.com/MrWong99/livescript/internal/observe"
	"github.com/MrWong99/livescript/internal/playback"
	"github.com/MrWong99/livescript/pkg/media"
)

// maxTranscriptBytes bounds transcript uploads.
const maxTranscriptBytes = 4 << 20

type seekRequest struct {
	Seconds float64 `json:"seconds"`
}

type seekWordRequest struct {
	Query string `json:"query"`
}

type speedRequest struct {
	Rate float64 `json:"rate"`
}

type audioRequest struct {
	Source    string `json:"source"`
	AutoMatch bool   `json:"auto_match"`
}

type transcriptInfo struct {
	Name        string `json:"name,omitempty"`
	Source      string `json:"source,omitempty"`
	Placeholder bool   `json:"placeholder"`
}

type loadResponse struct {
	State      playback.State  `json:"state"`
	Transcript *transcriptInfo `json:"transcript,omitempty"`
}

type seekWordResponse struct {
	Index int            `json:"index"`
	State playback.State `json:"state"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// api serves the JSON control endpoints of a session.
type api struct {
	sess *Session
}

func (a *api) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/state", a.state)
	mux.HandleFunc("GET /api/view", a.view)
	mux.HandleFunc("POST /api/toggle", a.action(a.sess.Toggle))
	mux.HandleFunc("POST /api/play", a.action(a.sess.Play))
	mux.HandleFunc("POST /api/pause", a.action(a.sess.Pause))
	mux.HandleFunc("POST /api/restart", a.action(a.sess.Restart))
	mux.HandleFunc("POST /api/seek", a.seek)
	mux.HandleFunc("POST /api/seek-word", a.seekWord)
	mux.HandleFunc("POST /api/speed", a.speed)
	mux.HandleFunc("POST /api/transcript", a.transcript)
	mux.HandleFunc("POST /api/audio", a.audio)
	mux.HandleFunc("POST /api/load-defaults", a.loadDefaults)
}

func (a *api) state(w http.ResponseWriter, r *http.Request) {
	st, err := a.sess.State(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *api) view(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.sess.Model().Snapshot())
}

func (a *api) action(fn func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(r.Context()); err != nil {
			writeError(w, r, err)
			return
		}
		a.state(w, r)
	}
}

func (a *api) seek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if !decode(w, r, &req) {
		return
	}
	if err := a.sess.Seek(r.Context(), req.Seconds); err != nil {
		writeError(w, r, err)
		return
	}
	a.state(w, r)
}

func (a *api) seekWord(w http.ResponseWriter, r *http.Request) {
	var req seekWordRequest
	if !decode(w, r, &req) {
		return
	}
	idx, err := a.sess.SeekWord(r.Context(), req.Query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	st, err := a.sess.State(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, seekWordResponse{Index: idx, State: st})
}

func (a *api) speed(w http.ResponseWriter, r *http.Request) {
	var req speedRequest
	if !decode(w, r, &req) {
		return
	}
	if err := a.sess.SetSpeed(r.Context(), req.Rate); err != nil {
		writeError(w, r, err)
		return
	}
	a.state(w, r)
}

func (a *api) transcript(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTranscriptBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: err.Error()})
		return
	}
	if _, err := a.sess.LoadTranscript(r.Context(), string(body)); err != nil {
		writeError(w, r, err)
		return
	}
	a.state(w, r)
}

func (a *api) audio(w http.ResponseWriter, r *http.Request) {
	var req audioRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := a.sess.LoadAudio(r.Context(), req.Source, req.AutoMatch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var info *transcriptInfo
	if req.AutoMatch {
		info = newTranscriptInfo(res)
	}
	a.loaded(w, r, info)
}

func (a *api) loadDefaults(w http.ResponseWriter, r *http.Request) {
	res, err := a.sess.LoadDefaults(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.loaded(w, r, newTranscriptInfo(res))
}

func (a *api) loaded(w http.ResponseWriter, r *http.Request, info *transcriptInfo) {
	st, err := a.sess.State(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loadResponse{State: st, Transcript: info})
}

func newTranscriptInfo(res assets.Result) *transcriptInfo {
	return &transcriptInfo{Name: res.Name, Source: res.Source, Placeholder: res.Placeholder}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// statusFor maps session errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidPosition), errors.Is(err, ErrRateOutOfRange),
		errors.Is(err, media.ErrNoSource), errors.Is(err, ErrUnknownIntent):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoMatch):
		return http.StatusNotFound
	case errors.Is(err, ErrUnreachable):
		return http.StatusConflict
	case errors.Is(err, loop.ErrStopped), errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		observe.Logger(r.Context()).Warn("app: request failed", "route", r.Pattern, "status", code, "err", err)
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("app: write response", "err", err)
	}
}
