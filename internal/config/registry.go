package config

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/livescript/internal/assets"
)

// ErrSourceNotRegistered is returned by [Registry.CreateSource] when no
// factory has been registered under the requested source name.
var ErrSourceNotRegistered = errors.New("config: source not registered")

// SourceFactory constructs an asset source from its config entry. The context
// bounds any connection setup.
type SourceFactory func(ctx context.Context, entry SourceEntry) (assets.Source, error)

// Registry maps source names to their constructor functions.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]SourceFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]SourceFactory)}
}

// DefaultRegistry returns a registry with the built-in dir, http, redis and
// postgres sources.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.RegisterSource("dir", func(_ context.Context, e SourceEntry) (assets.Source, error) {
		return assets.NewDirSource(e.Dir), nil
	})
	r.RegisterSource("http", func(_ context.Context, e SourceEntry) (assets.Source, error) {
		var opts []assets.HTTPOption
		if d, ok, err := OptionDuration(e, "timeout"); err != nil {
			return nil, err
		} else if ok {
			opts = append(opts, assets.WithTimeout(d))
		}
		if n, ok, err := OptionInt(e, "max_bytes"); err != nil {
			return nil, err
		} else if ok {
			opts = append(opts, assets.WithMaxBytes(int64(n)))
		}
		return assets.NewHTTPSource(e.BaseURL, opts...)
	})
	r.RegisterSource("redis", func(_ context.Context, e SourceEntry) (assets.Source, error) {
		return assets.DialRedis(e.DSN, e.Prefix)
	})
	r.RegisterSource("postgres", func(ctx context.Context, e SourceEntry) (assets.Source, error) {
		return assets.NewPostgresSource(ctx, e.DSN)
	})
	return r
}

// RegisterSource registers a factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSource(name string, factory SourceFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[name] = factory
}

// CreateSource instantiates the source registered under entry.Name.
// Returns [ErrSourceNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateSource(ctx context.Context, entry SourceEntry) (assets.Source, error) {
	r.mu.RLock()
	factory, ok := r.sources[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSourceNotRegistered, entry.Name)
	}
	src, err := factory(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("config: create source %q: %w", entry.Name, err)
	}
	return src, nil
}

// Names returns the registered source names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sources))
	for n := range r.sources {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// OptionDuration reads a duration option given as a Go duration string
// ("2s") or a number of seconds.
func OptionDuration(e SourceEntry, key string) (time.Duration, bool, error) {
	v, ok := e.Options[key]
	if !ok {
		return 0, false, nil
	}
	switch x := v.(type) {
	case string:
		d, err := time.ParseDuration(x)
		if err != nil {
			return 0, false, fmt.Errorf("config: option %s.%s: %w", e.Name, key, err)
		}
		return d, true, nil
	case int:
		return time.Duration(x) * time.Second, true, nil
	case float64:
		return time.Duration(x * float64(time.Second)), true, nil
	}
	return 0, false, fmt.Errorf("config: option %s.%s: want duration, got %s", e.Name, key, formatAny(v))
}

// OptionInt reads an integer option.
func OptionInt(e SourceEntry, key string) (int, bool, error) {
	v, ok := e.Options[key]
	if !ok {
		return 0, false, nil
	}
	switch x := v.(type) {
	case int:
		return x, true, nil
	case float64:
		if x == float64(int(x)) {
			return int(x), true, nil
		}
	}
	return 0, false, fmt.Errorf("config: option %s.%s: want integer, got %s", e.Name, key, formatAny(v))
}

func formatAny(v any) string {
	return fmt.Sprintf("%#v", v)
}
