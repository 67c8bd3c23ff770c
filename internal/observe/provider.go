package observe

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

// ProviderConfig configures the telemetry pipeline.
type ProviderConfig struct {
	// ServiceName is reported as service.name. Default: "livescript".
	ServiceName string

	// ServiceVersion is reported as service.version.
	ServiceVersion string

	// Registry receives the bridged OTel metrics. When nil a fresh registry
	// with the Go runtime and process collectors is created.
	Registry *prometheus.Registry

	// TraceExporter receives finished spans in batches. When nil spans are
	// sampled and propagated but never leave the process.
	TraceExporter sdktrace.SpanExporter

	// Global registers the providers and the W3C propagator as the OTel
	// globals.
	Global bool
}

// Provider bundles the meter and tracer providers with the Prometheus
// registry that backs /metrics.
type Provider struct {
	mp  *sdkmetric.MeterProvider
	tp  *sdktrace.TracerProvider
	reg *prometheus.Registry
}

// InitProvider builds the metric and trace pipelines described by cfg.
// Call [Provider.Shutdown] before exiting to flush pending spans.
func InitProvider(ctx context.Context, cfg ProviderConfig) (*Provider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "livescript"
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("observe: build resource: %w", err)
	}

	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	exp, err := promexporter.New(promexporter.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}

	p := &Provider{
		mp: sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exp),
		),
		tp:  sdktrace.NewTracerProvider(tpOpts...),
		reg: reg,
	}

	if cfg.Global {
		otel.SetMeterProvider(p.mp)
		otel.SetTracerProvider(p.tp)
		otel.SetTextMapPropagator(propagation.TraceContext{})
	}
	return p, nil
}

// MeterProvider returns the provider that feeds the Prometheus registry.
func (p *Provider) MeterProvider() metric.MeterProvider { return p.mp }

// MetricsHandler serves the registry in the Prometheus exposition format.
func (p *Provider) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops both providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	return errors.Join(p.tp.Shutdown(ctx), p.mp.Shutdown(ctx))
}
