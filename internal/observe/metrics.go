// Package observe provides application-wide observability primitives for
// livescript: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all livescript metrics.
const meterName = "github.com/MrWong99/livescript"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Playback ---

	// FrameDuration tracks how long one per-frame reveal update takes.
	FrameDuration metric.Float64Histogram

	// Frames counts evaluated playback frames.
	Frames metric.Int64Counter

	// TokensRevealed counts tokens newly marked visible.
	TokensRevealed metric.Int64Counter

	// Seeks counts seek recomputes.
	Seeks metric.Int64Counter

	// Restarts counts restart intents.
	Restarts metric.Int64Counter

	// TranscriptLoads counts transcript loads. Use with attributes:
	//   attribute.String("mode", ...), attribute.String("format", ...)
	TranscriptLoads metric.Int64Counter

	// --- Assets ---

	// AssetFetches counts asset source attempts. Use with attributes:
	//   attribute.String("source", ...), attribute.String("status", ...)
	AssetFetches metric.Int64Counter

	// AssetFetchDuration tracks asset source latency. Use with attribute:
	//   attribute.String("source", ...)
	AssetFetchDuration metric.Float64Histogram

	// PlaceholderFallbacks counts resolutions that ended on the placeholder.
	PlaceholderFallbacks metric.Int64Counter

	// --- Gauges ---

	// ViewerClients tracks the number of connected WebSocket viewers.
	ViewerClients metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// frameBuckets covers sub-frame work; anything above 16ms misses a 60 Hz
// frame.
var frameBuckets = []float64{
	0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.016, 0.05,
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for network
// and HTTP latencies.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.FrameDuration, err = m.Float64Histogram("livescript.frame.duration",
		metric.WithDescription("Time spent in one per-frame reveal update."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(frameBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AssetFetchDuration, err = m.Float64Histogram("livescript.asset.fetch.duration",
		metric.WithDescription("Latency of a single asset source fetch."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("livescript.http.request.duration",
		metric.WithDescription("HTTP request processing time."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Frames, err = m.Int64Counter("livescript.frames",
		metric.WithDescription("Total evaluated playback frames."),
	); err != nil {
		return nil, err
	}
	if met.TokensRevealed, err = m.Int64Counter("livescript.tokens.revealed",
		metric.WithDescription("Total tokens newly marked visible."),
	); err != nil {
		return nil, err
	}
	if met.Seeks, err = m.Int64Counter("livescript.seeks",
		metric.WithDescription("Total seek recomputes."),
	); err != nil {
		return nil, err
	}
	if met.Restarts, err = m.Int64Counter("livescript.restarts",
		metric.WithDescription("Total restart intents."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptLoads, err = m.Int64Counter("livescript.transcript.loads",
		metric.WithDescription("Total transcript loads by reveal mode and input format."),
	); err != nil {
		return nil, err
	}
	if met.AssetFetches, err = m.Int64Counter("livescript.asset.fetches",
		metric.WithDescription("Total asset source attempts by source and status."),
	); err != nil {
		return nil, err
	}
	if met.PlaceholderFallbacks, err = m.Int64Counter("livescript.asset.placeholder_fallbacks",
		metric.WithDescription("Total resolutions that fell back to the placeholder transcript."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.ViewerClients, err = m.Int64UpDownCounter("livescript.viewer_clients",
		metric.WithDescription("Number of connected WebSocket viewers."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordTranscriptLoad records a transcript load with its reveal mode and
// input format.
func (m *Metrics) RecordTranscriptLoad(ctx context.Context, mode, format string) {
	m.TranscriptLoads.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("format", format),
		),
	)
}

// RecordAssetFetch records one asset source attempt and its latency.
// status is one of "ok", "not_found", "error" or "circuit_open".
func (m *Metrics) RecordAssetFetch(ctx context.Context, source, status string, seconds float64) {
	m.AssetFetches.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("source", source),
			attribute.String("status", status),
		),
	)
	m.AssetFetchDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("source", source)),
	)
}
