package render

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/livescript/internal/observe"
)

const (
	defaultQueueSize = 256
	writeTimeout     = 5 * time.Second
)

// Intent is a user action sent by a viewer.
type Intent struct {
	// Action is one of "toggle", "play", "pause", "restart", "seek",
	// "seek_word", "speed", "load_defaults".
	Action string `json:"action"`

	// Value carries the seek position in seconds or the speed multiplier.
	Value float64 `json:"value,omitempty"`

	// Query carries the word for "seek_word".
	Query string `json:"query,omitempty"`
}

// Intent actions.
const (
	ActionToggle       = "toggle"
	ActionPlay         = "play"
	ActionPause        = "pause"
	ActionRestart      = "restart"
	ActionSeek         = "seek"
	ActionSeekWord     = "seek_word"
	ActionSpeed        = "speed"
	ActionLoadDefaults = "load_defaults"
)

// IntentHandler applies viewer intents.
type IntentHandler interface {
	HandleIntent(ctx context.Context, in Intent) error
}

// HubOption configures a [Hub].
type HubOption func(*Hub)

// WithIntentHandler accepts intents from viewers. Without one, inbound
// messages are read and discarded.
func WithIntentHandler(h IntentHandler) HubOption {
	return func(hub *Hub) { hub.intents = h }
}

// WithOriginPatterns allows cross-origin viewers matching the given host
// patterns.
func WithOriginPatterns(patterns ...string) HubOption {
	return func(hub *Hub) { hub.origins = patterns }
}

// WithQueueSize sets how many events may wait per viewer before it is
// dropped as too slow.
func WithQueueSize(n int) HubOption {
	return func(hub *Hub) {
		if n > 0 {
			hub.queueSize = n
		}
	}
}

// WithHubMetrics tracks connected viewers.
func WithHubMetrics(m *observe.Metrics) HubOption {
	return func(hub *Hub) { hub.metrics = m }
}

// Hub streams view state to WebSocket viewers. Each viewer first receives a
// snapshot event and then every change in order. Viewers that fall behind by
// more than the queue size are disconnected.
type Hub struct {
	model     *Model
	intents   IntentHandler
	origins   []string
	queueSize int
	metrics   *observe.Metrics

	mu      sync.Mutex
	clients map[*viewer]struct{}
	closed  bool
}

var (
	_ Sink         = (*Hub)(nil)
	_ http.Handler = (*Hub)(nil)
)

type viewer struct {
	send chan []byte
}

// NewHub creates a hub and attaches it to model.
func NewHub(model *Model, opts ...HubOption) *Hub {
	h := &Hub{
		model:     model,
		queueSize: defaultQueueSize,
		clients:   make(map[*viewer]struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	model.Attach(h)
	return h
}

// Clients returns the number of connected viewers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Handle implements [Sink]. The event is encoded once and queued to every
// viewer without blocking.
func (h *Hub) Handle(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("render: encode event", "type", string(ev.Type), "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for v := range h.clients {
		select {
		case v.send <- data:
		default:
			slog.Warn("render: dropping slow viewer", "queue", h.queueSize)
			h.removeLocked(v)
		}
	}
}

// ServeHTTP upgrades the request and serves one viewer until it disconnects
// or the hub closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		slog.Debug("render: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	v := &viewer{send: make(chan []byte, h.queueSize)}
	var registered bool
	h.model.WithSnapshot(func(snap Snapshot) {
		data, err := json.Marshal(Event{Type: EventSnapshot, Snapshot: &snap})
		if err != nil {
			return
		}
		v.send <- data
		registered = h.add(v)
	})
	if !registered {
		conn.Close(websocket.StatusGoingAway, "hub closed")
		return
	}
	defer h.remove(v)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go h.readLoop(ctx, cancel, conn)

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case data, ok := <-v.send:
			if !ok {
				conn.Close(websocket.StatusPolicyViolation, "viewer too slow or hub closed")
				return
			}
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, data)
			wcancel()
			if err != nil {
				slog.Debug("render: websocket write failed", "err", err)
				return
			}
		}
	}
}

func (h *Hub) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) {
	defer cancel()
	for {
		var in Intent
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			var ce websocket.CloseError
			if !errors.As(err, &ce) && ctx.Err() == nil {
				slog.Debug("render: websocket read ended", "err", err)
			}
			return
		}
		if h.intents == nil {
			continue
		}
		if err := h.intents.HandleIntent(ctx, in); err != nil {
			slog.Warn("render: viewer intent failed", "action", in.Action, "err", err)
		}
	}
}

func (h *Hub) add(v *viewer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[v] = struct{}{}
	if h.metrics != nil {
		h.metrics.ViewerClients.Add(context.Background(), 1)
	}
	return true
}

func (h *Hub) remove(v *viewer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(v)
}

func (h *Hub) removeLocked(v *viewer) {
	if _, ok := h.clients[v]; !ok {
		return
	}
	delete(h.clients, v)
	close(v.send)
	if h.metrics != nil {
		h.metrics.ViewerClients.Add(context.Background(), -1)
	}
}

// Close disconnects every viewer and rejects new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for v := range h.clients {
		h.removeLocked(v)
	}
	return nil
}
