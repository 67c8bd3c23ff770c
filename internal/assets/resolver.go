package assets

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/livescript/internal/observe"
	"github.com/MrWong99/livescript/internal/resilience"
)

// Fetch outcomes reported to metrics.
const (
	StatusOK          = "ok"
	StatusNotFound    = "not_found"
	StatusError       = "error"
	StatusCircuitOpen = "circuit_open"
)

// Result is the outcome of [Resolver.Resolve].
type Result struct {
	// Name is the candidate that was fetched. Empty for the placeholder.
	Name string

	// Source names the backend that served the body. Empty for the
	// placeholder.
	Source string

	// Body is the raw transcript text.
	Body string

	// Placeholder is true when every candidate failed.
	Placeholder bool
}

// Option configures a [Resolver].
type Option func(*Resolver)

// WithPlaceholder overrides [DefaultPlaceholder].
func WithPlaceholder(text string) Option {
	return func(r *Resolver) { r.placeholder = text }
}

// WithMetrics records fetch outcomes on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// WithBreakerConfig sets the template for per-source circuit breakers. The
// name and failure classifier are filled in per source.
func WithBreakerConfig(cfg resilience.Config) Option {
	return func(r *Resolver) { r.breakerCfg = cfg }
}

// Resolver finds the transcript for an audio base name.
// It is safe for concurrent use.
type Resolver struct {
	sources    []Source
	breakers   []*resilience.CircuitBreaker
	breakerCfg resilience.Config
	metrics    *observe.Metrics

	mu          sync.RWMutex
	placeholder string
}

// New returns a resolver that consults sources in the given order.
func New(sources []Source, opts ...Option) *Resolver {
	r := &Resolver{
		sources:     sources,
		placeholder: DefaultPlaceholder,
		breakerCfg:  resilience.Config{MaxFailures: 3, ResetTimeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(r)
	}
	r.breakers = make([]*resilience.CircuitBreaker, len(sources))
	for i, s := range sources {
		cfg := r.breakerCfg
		cfg.Name = "assets." + s.Name()
		cfg.IsFailure = isFailure
		r.breakers[i] = resilience.New(cfg)
	}
	return r
}

// isFailure counts only backend trouble against a breaker. Misses and
// cancellations say nothing about source health.
func isFailure(err error) bool {
	return err != nil &&
		!errors.Is(err, ErrNotFound) &&
		!errors.Is(err, context.Canceled)
}

// SetPlaceholder replaces the fallback text. An empty text restores
// [DefaultPlaceholder].
func (r *Resolver) SetPlaceholder(text string) {
	if text == "" {
		text = DefaultPlaceholder
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.placeholder = text
}

// Placeholder returns the current fallback text.
func (r *Resolver) Placeholder() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.placeholder
}

// Sources returns the configured backends in lookup order.
func (r *Resolver) Sources() []Source {
	out := make([]Source, len(r.sources))
	copy(out, r.sources)
	return out
}

// Resolve tries each of [Candidates](base) against each source in order and
// returns the first non-empty body. Later candidates are never consulted once
// one succeeds. When nothing is found the placeholder is returned. Resolve
// never fails; lookup errors are logged and counted.
func (r *Resolver) Resolve(ctx context.Context, base string) Result {
	for _, name := range Candidates(base) {
		for i, src := range r.sources {
			if ctx.Err() != nil {
				return r.fallback(ctx, base)
			}
			body, ok := r.try(ctx, i, src, name)
			if ok {
				slog.Info("assets: transcript resolved", "name", name, "source", src.Name(), "bytes", len(body))
				return Result{Name: name, Source: src.Name(), Body: body}
			}
		}
	}
	return r.fallback(ctx, base)
}

func (r *Resolver) try(ctx context.Context, i int, src Source, name string) (string, bool) {
	start := time.Now()
	var body string
	err := r.breakers[i].Execute(func() error {
		var err error
		body, err = src.Fetch(ctx, name)
		return err
	})
	if err == nil && body == "" {
		err = ErrNotFound
	}

	status := StatusOK
	switch {
	case err == nil:
	case errors.Is(err, resilience.ErrCircuitOpen):
		status = StatusCircuitOpen
		slog.Debug("assets: source skipped, circuit open", "source", src.Name(), "name", name)
	case errors.Is(err, ErrNotFound):
		status = StatusNotFound
		slog.Debug("assets: candidate not found", "source", src.Name(), "name", name)
	default:
		status = StatusError
		slog.Warn("assets: fetch failed", "source", src.Name(), "name", name, "err", err)
	}
	if r.metrics != nil {
		r.metrics.RecordAssetFetch(ctx, src.Name(), status, time.Since(start).Seconds())
	}
	return body, err == nil
}

func (r *Resolver) fallback(ctx context.Context, base string) Result {
	slog.Info("assets: no transcript found, using placeholder", "base", base)
	if r.metrics != nil {
		r.metrics.PlaceholderFallbacks.Add(ctx, 1)
	}
	return Result{Body: r.Placeholder(), Placeholder: true}
}
