// Package app wires the livescript subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the asset sources, the
// playback session and the HTTP surfaces, Run drives the session loop and the
// server, and Shutdown tears everything down in order.
//
// For testing, inject sources, metrics or a listener via functional options
// (WithSources, WithMetrics, WithListener, etc.). When an option is not
// provided, New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/livescript/internal/assets"
	"github.com/MrWong99/livescript/internal/config"
	"github.com/MrWong99/livescript/internal/control"
	"github.com/MrWong99/livescript/internal/health"
	"github.com/MrWong99/livescript/internal/observe"
	"github.com/MrWong99/livescript/internal/render"
	"github.com/MrWong99/livescript/pkg/media"
	"github.com/MrWong99/livescript/pkg/media/wav"
)

// serverShutdownTimeout bounds the graceful HTTP drain when Run's context ends.
const serverShutdownTimeout = 5 * time.Second

// pinger is implemented by sources that can report backend health.
type pinger interface {
	Ping(ctx context.Context) error
}

// App owns all subsystem lifetimes.
type App struct {
	cfg      *config.Config
	registry *config.Registry
	sources  []assets.Source
	metrics  *observe.Metrics
	scrape   http.Handler
	out      io.Writer
	listener net.Listener
	watcher  *config.Watcher
	version  string
	now      func() time.Time

	// Subsystems, initialised in New and torn down in Shutdown.
	session *Session
	hub     *render.Hub
	health  *health.Handler
	handler http.Handler
	server  *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSources uses the given asset sources instead of building them from
// config. Calling it without arguments disables transcript lookup.
func WithSources(sources ...assets.Source) Option {
	return func(a *App) { a.sources = append([]assets.Source{}, sources...) }
}

// WithRegistry builds asset sources through reg instead of
// [config.DefaultRegistry].
func WithRegistry(reg *config.Registry) Option {
	return func(a *App) { a.registry = reg }
}

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h on /metrics instead of the default Prometheus
// registry.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.scrape = h }
}

// WithOutput directs the terminal renderer to w instead of stdout.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// WithListener serves HTTP on ln instead of listening on the configured
// address.
func WithListener(ln net.Listener) Option {
	return func(a *App) { a.listener = ln }
}

// WithWatcher runs w alongside the application.
func WithWatcher(w *config.Watcher) Option {
	return func(a *App) { a.watcher = w }
}

// WithVersion sets the version reported by the control surface.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// WithClock replaces the wall clock of the audio player.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// New creates an App by wiring all subsystems together. Use Option functions
// to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:     cfg,
		out:     os.Stdout,
		version: "dev",
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.registry == nil {
		a.registry = config.DefaultRegistry()
	}
	if a.scrape == nil {
		a.scrape = promhttp.Handler()
	}

	a.health = health.New()

	if err := a.initSources(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init sources: %w", err)
	}

	resolverOpts := []assets.Option{assets.WithMetrics(a.metrics)}
	if cfg.Assets.Placeholder != "" {
		resolverOpts = append(resolverOpts, assets.WithPlaceholder(cfg.Assets.Placeholder))
	}
	resolver := assets.New(a.sources, resolverOpts...)

	a.session = NewSession(SessionConfig{
		FrameInterval: cfg.Playback.FrameInterval,
		Layout: render.Layout{
			Width:          cfg.Layout.Width,
			LineHeight:     cfg.Layout.LineHeight,
			ViewportHeight: cfg.Layout.ViewportHeight,
		},
		Resolver:     resolver,
		Prober:       buildProber(cfg.Media),
		DefaultAudio: cfg.Assets.DefaultAudio,
		ScrollMargin: cfg.Playback.ScrollMargin,
		DefaultRate:  cfg.Playback.DefaultRate,
		Metrics:      a.metrics,
		Now:          a.now,
	})
	model := a.session.Model()
	a.health.Add("session", func(ctx context.Context) error {
		_, err := a.session.State(ctx)
		return err
	})

	if cfg.Terminal.Enabled {
		model.Attach(render.NewTerminal(a.out))
	}

	a.hub = render.NewHub(model,
		render.WithIntentHandler(a.session),
		render.WithOriginPatterns(cfg.Server.AllowedOrigins...),
		render.WithHubMetrics(a.metrics),
	)
	a.closers = append(a.closers, a.hub.Close)

	mux := http.NewServeMux()
	(&api{sess: a.session}).register(mux)
	mux.Handle("GET /ws", a.hub)
	mux.Handle("GET /metrics", a.scrape)
	a.health.Register(mux)
	if cfg.MCP.Enabled {
		mux.Handle("/mcp", control.New(a.session, control.WithVersion(a.version)).Handler())
	}
	a.handler = observe.Middleware(a.metrics)(mux)

	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("app: initialised",
		"session", a.session.ID(),
		"sources", len(a.sources),
		"terminal", cfg.Terminal.Enabled,
		"mcp", cfg.MCP.Enabled,
	)
	return a, nil
}

// initSources creates the configured asset sources unless they were
// injected. Sources that hold connections are closed on shutdown; sources
// that can ping become readiness checks.
func (a *App) initSources(ctx context.Context) error {
	if a.sources != nil {
		for _, src := range a.sources {
			a.track(src)
		}
		return nil
	}
	for _, entry := range a.cfg.Assets.Sources {
		src, err := a.registry.CreateSource(ctx, entry)
		if err != nil {
			return err
		}
		a.track(src)
		a.sources = append(a.sources, src)
	}
	return nil
}

func (a *App) track(src assets.Source) {
	if c, ok := src.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}
	if p, ok := src.(pinger); ok {
		a.health.Add(src.Name(), p.Ping)
	}
}

// buildProber combines configured durations with WAV header probing.
func buildProber(cfg config.MediaConfig) media.Prober {
	var chain media.ChainProber
	if len(cfg.Durations) > 0 {
		chain = append(chain, media.StaticProber(cfg.Durations))
	}
	if cfg.ProbeDir != "" {
		chain = append(chain, wav.NewProber(cfg.ProbeDir))
	}
	if len(chain) == 0 {
		return nil
	}
	return chain
}

// Session returns the playback session.
func (a *App) Session() *Session { return a.session }

// Handler returns the root HTTP handler, including the middleware.
func (a *App) Handler() http.Handler { return a.handler }

// Run drives the session loop and serves HTTP until ctx is cancelled. When
// configured, the default audio and transcript are loaded once the loop is
// up. Run returns ctx.Err() after a clean stop.
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.cfg.Server.ListenAddr)
		if err != nil {
			return fmt.Errorf("app: listen on %s: %w", a.cfg.Server.ListenAddr, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.session.Run(gctx) })

	g.Go(func() error {
		slog.Info("app: http server listening", "addr", ln.Addr().String())
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(sctx); err != nil {
			slog.Warn("app: http server shutdown", "err", err)
		}
		return nil
	})

	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}

	if a.cfg.Assets.LoadsOnStart() {
		g.Go(func() error {
			if _, err := a.session.LoadDefaults(gctx); err != nil && gctx.Err() == nil {
				slog.Warn("app: load defaults failed", "err", err)
			}
			return nil
		})
	}

	slog.Info("app running", "session", a.session.ID())
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ApplyConfig applies the hot-reloadable part of a configuration change.
// Changes that need a restart are logged and otherwise ignored.
func (a *App) ApplyConfig(cfg *config.Config, d config.ConfigDiff) {
	if d.PlaceholderChanged {
		a.session.Resolver().SetPlaceholder(d.NewPlaceholder)
	}
	if d.ScrollMarginChanged {
		a.session.SetScrollMargin(d.NewScrollMargin)
	}
	if d.DefaultAudioChanged {
		a.session.SetDefaultAudio(d.NewDefaultAudio)
	}
	if d.DurationsChanged {
		a.session.SetProber(buildProber(cfg.Media))
	}
	if d.RestartRequired() {
		slog.Warn("app: configuration change requires a restart",
			"listen_addr", d.ListenAddrChanged,
			"sources", d.SourcesChanged,
			"layout", d.LayoutChanged,
			"surfaces", d.SurfacesChanged,
		)
	}
}

// Shutdown stops the HTTP server and runs the closers in order. It respects
// the context deadline: closers not reached before it expires are skipped.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.watcher != nil {
			a.watcher.Stop()
		}
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http server shutdown error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll releases whatever New acquired before failing.
func (a *App) closeAll() {
	for _, closer := range a.closers {
		if err := closer(); err != nil {
			slog.Warn("closer error", "err", err)
		}
	}
}
