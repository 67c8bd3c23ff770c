// Command livescript serves an audio transcript that reveals itself word by
// word in sync with playback.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MrWong99/livescript/internal/app"
	"github.com/MrWong99/livescript/internal/config"
	"github.com/MrWong99/livescript/internal/observe"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload the configuration file when it changes")
	flag.Parse()

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, fromFile, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "livescript: %v\n", err)
		return 1
	}
	level.Set(slogLevel(cfg.Server.LogLevel))

	slog.Info("livescript starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "livescript",
		ServiceVersion: version,
		Global:         true,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(tctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics, err := observe.NewMetrics(telemetry.MeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Config watcher ────────────────────────────────────────────────────────
	// application is assigned before Run starts the watcher's polling.
	var (
		application *app.App
		watcher     *config.Watcher
	)
	opts := []app.Option{
		app.WithVersion(version),
		app.WithMetrics(metrics),
		app.WithMetricsHandler(telemetry.MetricsHandler()),
	}
	if fromFile && *watch {
		w, err := config.NewWatcher(*configPath, func(_, newCfg *config.Config, d config.ConfigDiff) {
			if d.LogLevelChanged {
				level.Set(slogLevel(d.NewLogLevel))
				slog.Info("log level changed", "log_level", d.NewLogLevel)
			}
			application.ApplyConfig(newCfg, d)
		})
		if err != nil {
			slog.Error("failed to start config watcher", "err", err)
			return 1
		}
		opts = append(opts, app.WithWatcher(w))
		watcher = w
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err = app.New(ctx, cfg, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	if watcher != nil {
		go reloadOnHangup(ctx, watcher)
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// loadConfig reads path. A missing file falls back to the built-in defaults;
// fromFile reports whether the file was used.
func loadConfig(path string) (cfg *config.Config, fromFile bool, err error) {
	cfg, err = config.Load(path)
	switch {
	case err == nil:
		return cfg, true, nil
	case errors.Is(err, os.ErrNotExist):
		slog.Warn("config file not found, using defaults", "config", path)
		return config.Default(), false, nil
	default:
		return nil, false, err
	}
}

// reloadOnHangup rereads the config file on every SIGHUP until ctx ends.
func reloadOnHangup(ctx context.Context, w *config.Watcher) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			changed, err := w.Reload()
			if err != nil {
				slog.Warn("config reload rejected", "err", err)
				continue
			}
			slog.Info("config reload requested", "changed", changed)
		}
	}
}

func printStartupSummary(cfg *config.Config) {
	sources := make([]string, 0, len(cfg.Assets.Sources))
	for _, s := range cfg.Assets.Sources {
		sources = append(sources, s.Name)
	}
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       livescript - startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	fmt.Printf("║  Default audio   : %-19s ║\n", truncate(cfg.Assets.DefaultAudio, 19))
	fmt.Printf("║  Sources         : %-19s ║\n", truncate(strings.Join(sources, ","), 19))
	fmt.Printf("║  Frame interval  : %-19s ║\n", cfg.Playback.FrameInterval)
	fmt.Printf("║  Terminal        : %-19s ║\n", enabled(cfg.Terminal.Enabled))
	fmt.Printf("║  MCP control     : %-19s ║\n", enabled(cfg.MCP.Enabled))
	fmt.Println("╚═══════════════════════════════════════╝")
}

func enabled(on bool) string {
	if on {
		return "enabled"
	}
	return "(disabled)"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
