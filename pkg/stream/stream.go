// Package stream wires the frame accumulator, a native codec handle and the
// drift checker into per-stream encode and decode stages.
//
// A stage owns all of its state. Hosts that process several streams at once
// create one stage per stream; stages never share mutable state.
package stream

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrWong99/opusframe/pkg/audio"
	"github.com/MrWong99/opusframe/pkg/framer"
)

// Packet is one encoded Opus packet with its timing.
type Packet struct {
	Data     []byte
	PTS      audio.PTS
	Duration time.Duration
}

// Metrics receives stage counters. internal/observe.Metrics satisfies it.
type Metrics interface {
	RecordFrameEncoded(ctx context.Context, stream string, padded bool)
	RecordPacketDecoded(ctx context.Context, stream string)
	RecordMalformedPacket(ctx context.Context, stream string)
	RecordCodecDuration(ctx context.Context, op string, d time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) RecordFrameEncoded(context.Context, string, bool)           {}
func (nopMetrics) RecordPacketDecoded(context.Context, string)                {}
func (nopMetrics) RecordMalformedPacket(context.Context, string)              {}
func (nopMetrics) RecordCodecDuration(context.Context, string, time.Duration) {}

// Option configures an [Encoder] or [Decoder].
type Option func(*options)

type options struct {
	name         string
	metrics      Metrics
	reporter     framer.Reporter
	logger       *slog.Logger
	strictFormat bool
}

func buildOptions(opts []Option) options {
	o := options{name: "default", metrics: nopMetrics{}}
	for _, fn := range opts {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.reporter == nil {
		o.reporter = framer.LogReporter{Logger: o.logger, Stream: o.name}
	}
	return o
}

// WithStreamName sets the name used in logs and metric attributes.
func WithStreamName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithMetrics sets the metrics sink. Without it nothing is recorded.
func WithMetrics(m Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithReporter replaces the default [framer.LogReporter] for drift warnings.
func WithReporter(r framer.Reporter) Option {
	return func(o *options) { o.reporter = r }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithStrictFormat makes an encoder reject chunks whose format differs from
// the stage format with [framer.ErrUnsupportedReconfiguration] instead of
// converting them.
func WithStrictFormat() Option {
	return func(o *options) { o.strictFormat = true }
}
