package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// testSetup creates both metrics and tracing infrastructure for middleware tests.
func testSetup(t *testing.T) (*Metrics, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()
	m, reader := newTestMetrics(t)

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	origTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(origTP) })

	return m, reader, exp
}

func serve(h http.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_SpanAndCorrelationID(t *testing.T) {
	m, _, exp := testSetup(t)

	var captured string
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = CorrelationID(r.Context())
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	rec := serve(h, "/readyz", nil)

	if len(captured) != 32 {
		t.Errorf("correlation ID = %q, want 32 hex chars", captured)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != captured {
		t.Errorf("X-Correlation-ID = %q, want %q", got, captured)
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if spans[0].Name != "health GET /readyz" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	attrs := map[string]string{}
	for _, a := range spans[0].Attributes {
		attrs[string(a.Key)] = a.Value.Emit()
	}
	for key, want := range map[string]string{
		"http.response.status_code": "503",
		"http.route":                "/readyz",
		"opusframe.telemetry.kind":  "health",
	} {
		if attrs[key] != want {
			t.Errorf("span attribute %s = %q, want %q", key, attrs[key], want)
		}
	}
}

func TestMiddleware_RecordsDuration(t *testing.T) {
	m, reader, _ := testSetup(t)
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# HELP\n"))
	}))
	serve(h, "/metrics", nil)
	serve(h, "/metrics", nil)

	met := findMetric(collect(t, reader), "opusframe.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 {
		t.Fatalf("unexpected data: %+v", met.Data)
	}
	dp := hist.DataPoints[0]
	if dp.Count != 2 {
		t.Errorf("sample count = %d, want 2", dp.Count)
	}
	if v, ok := dp.Attributes.Value("route"); !ok || v.AsString() != "/metrics" {
		t.Errorf("route attribute = %v", v)
	}
	if v, ok := dp.Attributes.Value("kind"); !ok || v.AsString() != "scrape" {
		t.Errorf("kind attribute = %v", v)
	}
}

func TestMiddleware_BoundsUnknownRoutes(t *testing.T) {
	m, reader, exp := testSetup(t)
	h := Middleware(m)(http.NotFoundHandler())
	for _, p := range []string{"/wp-login.php", "/.env", "/admin"} {
		serve(h, p, nil)
	}

	met := findMetric(collect(t, reader), "opusframe.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	if len(hist.DataPoints) != 1 {
		t.Fatalf("data points = %d, want 1 for all unknown paths", len(hist.DataPoints))
	}
	if v, _ := hist.DataPoints[0].Attributes.Value("route"); v.AsString() != "other" {
		t.Errorf("route attribute = %v, want other", v)
	}
	for _, span := range exp.GetSpans() {
		if span.Name != "other GET other" {
			t.Errorf("span name = %q", span.Name)
		}
	}
}

func TestMiddleware_RecordsBodySize(t *testing.T) {
	m, _, exp := testSetup(t)
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("0123456789"))
	}))
	serve(h, "/healthz", nil)

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	for _, a := range spans[0].Attributes {
		if string(a.Key) == "http.response.body.size" {
			if a.Value.AsInt64() != 10 {
				t.Errorf("body size = %d, want 10", a.Value.AsInt64())
			}
			return
		}
	}
	t.Error("span missing http.response.body.size")
}

func TestMiddleware_PropagatesW3CTraceContext(t *testing.T) {
	m, _, _ := testSetup(t)
	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"

	var captured string
	h := Middleware(m)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		captured = CorrelationID(r.Context())
	}))
	rec := serve(h, "/healthz", map[string]string{
		"traceparent": "00-" + traceID + "-00f067aa0ba902b7-01",
	})

	if captured != traceID {
		t.Errorf("correlation ID = %q, want %q", captured, traceID)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != traceID {
		t.Errorf("X-Correlation-ID = %q, want %q", got, traceID)
	}
}
