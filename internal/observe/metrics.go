// Package observe provides application-wide observability primitives for
// opusframe: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware for the telemetry listener.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported
// to Prometheus by [InitProvider]. A package-level default [Metrics]
// instance ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/opusframe/pkg/framer"
)

// meterName is the instrumentation scope name used for all opusframe metrics.
const meterName = "github.com/MrWong99/opusframe"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// CodecDuration tracks a single native encode or decode call. Use with
	// attribute.String("op", "encode"|"decode").
	CodecDuration metric.Float64Histogram

	// StreamDuration tracks the wall time of a whole stream job. Use with
	// attributes: attribute.String("mode", ...), attribute.String("status", ...)
	StreamDuration metric.Float64Histogram

	// --- Counters ---

	// FramesEncoded counts packets produced by encoders. Use with attributes:
	//   attribute.String("stream", ...), attribute.String("padded", "true"|"false")
	FramesEncoded metric.Int64Counter

	// PacketsDecoded counts packets decoded to PCM. Use with attribute:
	//   attribute.String("stream", ...)
	PacketsDecoded metric.Int64Counter

	// PCMBytes counts PCM bytes entering encoders or leaving decoders. Use
	// with attributes: attribute.String("stream", ...), attribute.String("mode", ...)
	PCMBytes metric.Int64Counter

	// --- Error counters ---

	// MalformedPackets counts packets rejected by TOC inspection.
	MalformedPackets metric.Int64Counter

	// DriftWarnings counts PTS drift findings. Use with attributes:
	//   attribute.String("stream", ...), attribute.String("kind", ...)
	DriftWarnings metric.Int64Counter

	// --- Gauges ---

	// ActiveStreams tracks the number of stream jobs currently running.
	ActiveStreams metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks telemetry endpoint request time. Use with
	// attributes: attribute.String("route", ...), attribute.String("kind", ...),
	//   attribute.Int("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// codecBuckets defines histogram bucket boundaries (in seconds) for single
// codec calls, which finish well below a millisecond on modern hardware.
var codecBuckets = []float64{
	0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025,
}

// streamBuckets defines histogram bucket boundaries (in seconds) for whole
// stream jobs.
var streamBuckets = []float64{
	0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.CodecDuration, err = m.Float64Histogram("opusframe.codec.duration",
		metric.WithDescription("Latency of a single native encode or decode call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(codecBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StreamDuration, err = m.Float64Histogram("opusframe.stream.duration",
		metric.WithDescription("Wall time of a stream job by mode and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(streamBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FramesEncoded, err = m.Int64Counter("opusframe.frames.encoded",
		metric.WithDescription("Total Opus packets produced by stream and padding."),
	); err != nil {
		return nil, err
	}
	if met.PacketsDecoded, err = m.Int64Counter("opusframe.packets.decoded",
		metric.WithDescription("Total Opus packets decoded by stream."),
	); err != nil {
		return nil, err
	}
	if met.PCMBytes, err = m.Int64Counter("opusframe.pcm.bytes",
		metric.WithDescription("PCM bytes processed by stream and mode."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.MalformedPackets, err = m.Int64Counter("opusframe.packets.malformed",
		metric.WithDescription("Total packets rejected before decoding by stream."),
	); err != nil {
		return nil, err
	}
	if met.DriftWarnings, err = m.Int64Counter("opusframe.pts.drift",
		metric.WithDescription("Total PTS drift warnings by stream and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveStreams, err = m.Int64UpDownCounter("opusframe.active_streams",
		metric.WithDescription("Number of stream jobs currently running."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("opusframe.http.request.duration",
		metric.WithDescription("Telemetry endpoint latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordFrameEncoded records one encoded packet. padded marks the
// zero-padded packet produced by a flush.
func (m *Metrics) RecordFrameEncoded(ctx context.Context, stream string, padded bool) {
	m.FramesEncoded.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("stream", stream),
			attribute.String("padded", strconv.FormatBool(padded)),
		),
	)
}

// RecordPacketDecoded records one decoded packet.
func (m *Metrics) RecordPacketDecoded(ctx context.Context, stream string) {
	m.PacketsDecoded.Add(ctx, 1, metric.WithAttributes(attribute.String("stream", stream)))
}

// RecordMalformedPacket records a packet rejected before decoding.
func (m *Metrics) RecordMalformedPacket(ctx context.Context, stream string) {
	m.MalformedPackets.Add(ctx, 1, metric.WithAttributes(attribute.String("stream", stream)))
}

// RecordCodecDuration records the latency of one native codec call.
func (m *Metrics) RecordCodecDuration(ctx context.Context, op string, d time.Duration) {
	m.CodecDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("op", op)))
}

// RecordPCMBytes adds n PCM bytes to the stream's counter.
func (m *Metrics) RecordPCMBytes(ctx context.Context, stream, mode string, n int) {
	m.PCMBytes.Add(ctx, int64(n),
		metric.WithAttributes(
			attribute.String("stream", stream),
			attribute.String("mode", mode),
		),
	)
}

// RecordStream records the completion of a stream job.
func (m *Metrics) RecordStream(ctx context.Context, mode, status string, d time.Duration) {
	m.StreamDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("status", status),
		),
	)
}

// RecordDrift records one PTS drift warning.
func (m *Metrics) RecordDrift(ctx context.Context, stream string, kind framer.DriftKind) {
	m.DriftWarnings.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("stream", stream),
			attribute.String("kind", kind.String()),
		),
	)
}

// DriftReporter returns a [framer.Reporter] that counts drift warnings for
// stream. Combine it with a [framer.LogReporter] via [framer.Reporters].
func (m *Metrics) DriftReporter(stream string) framer.Reporter {
	return framer.ReporterFunc(func(w *framer.DriftWarning) {
		m.RecordDrift(context.Background(), stream, w.Kind)
	})
}
