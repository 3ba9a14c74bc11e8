package observe

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

// telemetryRoutes maps the listener's routes to the kind of traffic they
// serve. Anything else is reported as "other" so scanners hitting random
// paths cannot inflate metric cardinality.
var telemetryRoutes = map[string]string{
	"/metrics": "scrape",
	"/healthz": "health",
	"/readyz":  "health",
}

// route returns the bounded route label and its traffic kind for path.
func route(path string) (string, string) {
	if kind, ok := telemetryRoutes[path]; ok {
		return path, kind
	}
	return "other", "other"
}

// responseRecorder captures the status code and body size written by the
// downstream handler.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	bytes      int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// Middleware wraps the telemetry listener's handlers. For every request it
// continues or starts a W3C trace, sets X-Correlation-ID from the trace ID,
// records [Metrics.HTTPRequestDuration] per route and traffic kind (scrape,
// health) and logs completion at debug level, since scrapes are frequent.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			path, kind := route(r.URL.Path)

			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, kind+" "+r.Method+" "+path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
					semconv.HTTPRoute(path),
					attribute.String("opusframe.telemetry.kind", kind),
				),
			)
			defer span.End()

			if cid := CorrelationID(ctx); cid != "" {
				w.Header().Set("X-Correlation-ID", cid)
			}

			rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))

			duration := time.Since(start)
			m.HTTPRequestDuration.Record(ctx, duration.Seconds(),
				metric.WithAttributes(
					attribute.String("route", path),
					attribute.String("kind", kind),
					attribute.Int("status", rec.statusCode),
				),
			)
			span.SetAttributes(
				semconv.HTTPResponseStatusCode(rec.statusCode),
				attribute.Int("http.response.body.size", rec.bytes),
			)

			Logger(ctx).LogAttrs(ctx, slog.LevelDebug, "observe: telemetry request",
				slog.String("kind", kind),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Int("bytes", rec.bytes),
				slog.Duration("duration", duration),
			)
		})
	}
}
