package observe

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// instrumented wraps a mux carrying the routes the middleware tests hit. The
// global tracer provider is swapped for an in-memory one, so these tests do
// not run in parallel.
func instrumented(t *testing.T) (http.Handler, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()

	m, reader := newTestMetrics(t)

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /words/{index}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.PathValue("index")))
	})
	mux.HandleFunc("POST /api/seek", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/stream", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		w.(http.Flusher).Flush()
		if _, ok := w.(interface{ Unwrap() http.ResponseWriter }); !ok {
			w.Header().Set("X-Unwrap", "missing")
		}
	})
	return Middleware(m)(mux), reader, exp
}

func spanAttr(s tracetest.SpanStub, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range s.Attributes {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestMiddleware_SpanPerRoute(t *testing.T) {
	tests := []struct {
		method, target string
		wantName       string
		wantRoute      string
		wantStatus     int
	}{
		{"GET", "/words/7", "GET /words/{index}", "GET /words/{index}", 200},
		{"GET", "/words/12", "GET /words/{index}", "GET /words/{index}", 200},
		{"POST", "/api/seek", "POST /api/seek", "POST /api/seek", 400},
		{"GET", "/nowhere", "GET unmatched", "unmatched", 404},
	}

	for _, tc := range tests {
		t.Run(tc.target, func(t *testing.T) {
			h, _, exp := instrumented(t)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.target, nil))

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			spans := exp.GetSpans()
			if len(spans) != 1 {
				t.Fatalf("got %d spans, want 1", len(spans))
			}
			s := spans[0]
			if s.Name != tc.wantName {
				t.Errorf("span name = %q, want %q", s.Name, tc.wantName)
			}
			if v, ok := spanAttr(s, "http.route"); !ok || v.AsString() != tc.wantRoute {
				t.Errorf("http.route = %q, want %q", v.AsString(), tc.wantRoute)
			}
			if v, ok := spanAttr(s, "http.response.status_code"); !ok || v.AsInt64() != int64(tc.wantStatus) {
				t.Errorf("status attribute = %d, want %d", v.AsInt64(), tc.wantStatus)
			}
			if v, _ := spanAttr(s, "url.path"); v.AsString() != tc.target {
				t.Errorf("url.path = %q, want %q", v.AsString(), tc.target)
			}
		})
	}
}

func TestMiddleware_DurationUsesPattern(t *testing.T) {
	h, reader, _ := instrumented(t)
	for _, target := range []string{"/words/1", "/words/2", "/words/3"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", target, nil))
	}

	met := findMetric(collect(t, reader), "livescript.http.request.duration")
	if met == nil {
		t.Fatal("duration histogram not recorded")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	if len(hist.DataPoints) != 1 {
		t.Fatalf("got %d series, want one per route", len(hist.DataPoints))
	}
	dp := hist.DataPoints[0]
	if dp.Count != 3 {
		t.Errorf("count = %d, want 3", dp.Count)
	}
	if v, _ := dp.Attributes.Value("path"); v.AsString() != "GET /words/{index}" {
		t.Errorf("path = %q", v.AsString())
	}
	if v, _ := dp.Attributes.Value("method"); v.AsString() != "GET" {
		t.Errorf("method = %q", v.AsString())
	}
}

func TestMiddleware_CorrelationHeader(t *testing.T) {
	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"

	t.Run("fresh trace", func(t *testing.T) {
		h, _, exp := instrumented(t)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/words/0", nil))

		cid := rec.Header().Get("X-Correlation-ID")
		if len(cid) != 32 || cid == traceID {
			t.Errorf("X-Correlation-ID = %q, want a new trace id", cid)
		}
		if got := exp.GetSpans()[0].SpanContext.TraceID().String(); got != cid {
			t.Errorf("span trace id %q does not match header %q", got, cid)
		}
		if tp := rec.Header().Get("traceparent"); !strings.Contains(tp, cid) {
			t.Errorf("traceparent = %q, want it to carry %s", tp, cid)
		}
	})

	t.Run("continued trace", func(t *testing.T) {
		h, _, exp := instrumented(t)
		req := httptest.NewRequest("GET", "/words/0", nil)
		req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if got := rec.Header().Get("X-Correlation-ID"); got != traceID {
			t.Errorf("X-Correlation-ID = %q, want %q", got, traceID)
		}
		if got := exp.GetSpans()[0].Parent.SpanID().String(); got != "00f067aa0ba902b7" {
			t.Errorf("parent span = %q", got)
		}
	})
}

func TestMiddleware_QuietProbes(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	h, _, _ := instrumented(t)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/healthz", nil))
	if buf.Len() != 0 {
		t.Errorf("probe logged at info: %s", buf.String())
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/api/seek", nil))
	out := buf.String()
	if !strings.Contains(out, "request completed") || !strings.Contains(out, `route="POST /api/seek"`) || !strings.Contains(out, "status=400") {
		t.Errorf("log line = %q", out)
	}
}

func TestMiddleware_StreamingWriter(t *testing.T) {
	h, _, _ := instrumented(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/stream", nil))

	if !rec.Flushed {
		t.Error("Flush did not reach the underlying writer")
	}
	if rec.Header().Get("X-Unwrap") != "" {
		t.Error("recorder does not expose Unwrap")
	}
	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", rec.Code)
	}
}
