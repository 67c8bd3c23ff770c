package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns instruments backed by a ManualReader.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// total adds up every point of an int64 sum, or the sample counts of a
// float64 histogram.
func total(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not recorded", name)
	}
	var n int64
	switch data := met.Data.(type) {
	case metricdata.Sum[int64]:
		for _, dp := range data.DataPoints {
			n += dp.Value
		}
	case metricdata.Histogram[float64]:
		for _, dp := range data.DataPoints {
			n += int64(dp.Count)
		}
	default:
		t.Fatalf("metric %q has unexpected type %T", name, met.Data)
	}
	return n
}

func TestMetrics_Instruments(t *testing.T) {
	t.Parallel()

	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.FrameDuration.Record(ctx, 0.0002)
	m.FrameDuration.Record(ctx, 0.004)
	m.Frames.Add(ctx, 3)
	m.TokensRevealed.Add(ctx, 7)
	m.Seeks.Add(ctx, 1)
	m.Restarts.Add(ctx, 2)
	m.PlaceholderFallbacks.Add(ctx, 1)
	m.ViewerClients.Add(ctx, 2)
	m.ViewerClients.Add(ctx, -1)
	m.HTTPRequestDuration.Record(ctx, 0.05)

	rm := collect(t, reader)
	for name, want := range map[string]int64{
		"livescript.frame.duration":              2,
		"livescript.frames":                      3,
		"livescript.tokens.revealed":             7,
		"livescript.seeks":                       1,
		"livescript.restarts":                    2,
		"livescript.asset.placeholder_fallbacks": 1,
		"livescript.viewer_clients":              1,
		"livescript.http.request.duration":       1,
	} {
		if got := total(t, rm, name); got != want {
			t.Errorf("%s = %d, want %d", name, got, want)
		}
	}
}

func TestRecordTranscriptLoad(t *testing.T) {
	t.Parallel()

	m, reader := newTestMetrics(t)
	ctx := context.Background()
	m.RecordTranscriptLoad(ctx, "timestamp", "json")
	m.RecordTranscriptLoad(ctx, "uniform", "plain")
	m.RecordTranscriptLoad(ctx, "uniform", "plain")

	sum := findMetric(collect(t, reader), "livescript.transcript.loads").Data.(metricdata.Sum[int64])
	got := make(map[string]int64)
	for _, dp := range sum.DataPoints {
		mode, _ := dp.Attributes.Value("mode")
		format, _ := dp.Attributes.Value("format")
		got[mode.AsString()+"/"+format.AsString()] = dp.Value
	}
	if len(got) != 2 || got["timestamp/json"] != 1 || got["uniform/plain"] != 2 {
		t.Errorf("loads = %v", got)
	}
}

func TestRecordAssetFetch(t *testing.T) {
	t.Parallel()

	m, reader := newTestMetrics(t)
	ctx := context.Background()
	m.RecordAssetFetch(ctx, "http", "not_found", 0.02)
	m.RecordAssetFetch(ctx, "dir", "ok", 0.001)
	m.RecordAssetFetch(ctx, "dir", "ok", 0.003)

	rm := collect(t, reader)
	if got := total(t, rm, "livescript.asset.fetches"); got != 3 {
		t.Errorf("fetches = %d, want 3", got)
	}
	hist := findMetric(rm, "livescript.asset.fetch.duration").Data.(metricdata.Histogram[float64])
	for _, dp := range hist.DataPoints {
		if _, ok := dp.Attributes.Value("status"); ok {
			t.Error("latency histogram should only be split by source")
		}
		src, _ := dp.Attributes.Value(attribute.Key("source"))
		if src.AsString() == "dir" && dp.Count != 2 {
			t.Errorf("dir samples = %d, want 2", dp.Count)
		}
	}
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}
