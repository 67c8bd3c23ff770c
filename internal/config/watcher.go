package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultPollInterval is how often a [Watcher] stats its file.
const DefaultPollInterval = 5 * time.Second

// ChangeFunc receives the previous and the newly loaded config together with
// their [Diff].
type ChangeFunc func(old, new *Config, d ConfigDiff)

// fingerprint identifies one version of the file. mod and size are cheap to
// compare; sum decides whether the content really changed.
type fingerprint struct {
	mod  time.Time
	size int64
	sum  [sha256.Size]byte
}

// Watcher tracks a config file and reports valid changes, either by polling
// or on an explicit [Watcher.Reload]. Invalid edits are logged and the last
// good config is kept.
type Watcher struct {
	path     string
	interval time.Duration
	onChange ChangeFunc

	// reload serialises reads so a poll and a manual reload never race.
	reload  sync.Mutex
	mu      sync.Mutex
	current *Config
	seen    fingerprint

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval replaces [DefaultPollInterval].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads the config at path. Polling starts with [Watcher.Run].
func NewWatcher(path string, onChange ChangeFunc, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultPollInterval,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, fp, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.seen = cfg, fp
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls until ctx is cancelled or [Watcher.Stop] is called. It always
// returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	t := time.NewTicker(w.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.done:
			return nil
		case <-t.C:
			if w.statChanged() {
				if _, err := w.Reload(); err != nil {
					slog.Warn("config: rejected update, keeping previous config", "path", w.path, "err", err)
				}
			}
		}
	}
}

// Stop ends [Watcher.Run]. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

// Reload reads the file now. It reports whether the content differed from
// the current config; the change callback runs before it returns. On error
// the current config is kept.
func (w *Watcher) Reload() (bool, error) {
	w.reload.Lock()
	defer w.reload.Unlock()

	cfg, fp, err := w.read()
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	if fp.sum == w.seen.sum {
		w.seen = fp
		w.mu.Unlock()
		return false, nil
	}
	old := w.current
	w.current, w.seen = cfg, fp
	w.mu.Unlock()

	d := Diff(old, cfg)
	slog.Info("config: reloaded", "path", w.path, "restart_required", d.RestartRequired())
	if w.onChange != nil {
		w.onChange(old, cfg, d)
	}
	return true, nil
}

// statChanged reports whether the file's mtime or size moved since the last
// read. A failing stat counts as unchanged.
func (w *Watcher) statChanged() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config: cannot stat watched file", "path", w.path, "err", err)
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return !info.ModTime().Equal(w.seen.mod) || info.Size() != w.seen.size
}

func (w *Watcher) read() (*Config, fingerprint, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fingerprint{}, err
	}
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fingerprint{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fingerprint{}, err
	}
	return cfg, fingerprint{mod: info.ModTime(), size: info.Size(), sum: sha256.Sum256(data)}, nil
}
