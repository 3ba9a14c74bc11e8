// Package app wires configuration, codec backend and telemetry into running
// stream jobs.
//
// Each configured stream is an independent job: encode streams read PCM
// (WAV or raw s16le), frame and encode it and write an RTP packet file;
// decode streams read such a file back into a WAV file. New validates the
// wiring, Run executes every job concurrently and returns once all of them
// have finished.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/opusframe/internal/config"
	"github.com/MrWong99/opusframe/internal/observe"
	"github.com/MrWong99/opusframe/pkg/audio"
	"github.com/MrWong99/opusframe/pkg/framer"
	"github.com/MrWong99/opusframe/pkg/opus"
	"github.com/MrWong99/opusframe/pkg/stream"
)

// App owns the codec backend and runs the configured stream jobs.
type App struct {
	cfg     *config.Config
	codec   opus.Codec
	metrics *observe.Metrics

	// ssrc picks the RTP synchronisation source of each encode stream.
	ssrc func() uint32

	// maxParallel bounds the number of concurrently running jobs.
	maxParallel int

	running atomic.Int32
	failed  atomic.Int32
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetrics injects a metrics instance instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithSSRC replaces the random RTP SSRC source.
func WithSSRC(fn func() uint32) Option {
	return func(a *App) { a.ssrc = fn }
}

// WithMaxParallel bounds how many streams run at once. Values < 1 mean
// one per CPU.
func WithMaxParallel(n int) Option {
	return func(a *App) { a.maxParallel = n }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App for cfg using codec for every stream. It checks the
// codec settings once up front so a bad application or signal string fails
// before any file is touched.
func New(cfg *config.Config, codec opus.Codec, opts ...Option) (*App, error) {
	if codec == nil {
		return nil, errors.New("app: codec is nil")
	}
	a := &App{
		cfg:   cfg,
		codec: codec,
		ssrc:  rand.Uint32,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.maxParallel < 1 {
		a.maxParallel = runtime.NumCPU()
	}

	fullband := audio.Format{SampleRate: 48000, Channels: 2}
	if _, err := cfg.Codec.Params(fullband); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	return a, nil
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run executes every configured stream and blocks until all have finished
// or ctx is cancelled. A failing stream does not stop the others; the
// returned error joins the failures of all streams.
func (a *App) Run(ctx context.Context) error {
	errs := make([]error, len(a.cfg.Streams))

	var g errgroup.Group
	g.SetLimit(a.maxParallel)
	for i, sc := range a.cfg.Streams {
		g.Go(func() error {
			if err := a.runStream(ctx, sc); err != nil {
				errs[i] = fmt.Errorf("stream %q: %w", sc.Name, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// Status reports the number of running and failed streams. It backs the
// readiness check.
func (a *App) Status() (running, failed int) {
	return int(a.running.Load()), int(a.failed.Load())
}

func (a *App) runStream(ctx context.Context, sc config.StreamConfig) (err error) {
	ctx, span := observe.StartStreamSpan(ctx, sc.Name, string(sc.Mode))
	log := observe.Logger(ctx).With("stream", sc.Name, "mode", string(sc.Mode))

	a.running.Add(1)
	a.metrics.ActiveStreams.Add(ctx, 1)
	start := time.Now()
	defer func() {
		a.running.Add(-1)
		a.metrics.ActiveStreams.Add(ctx, -1)
		status := "ok"
		if err != nil {
			status = "error"
			a.failed.Add(1)
			log.Error("stream failed", "err", err, "elapsed", time.Since(start))
		}
		a.metrics.RecordStream(ctx, string(sc.Mode), status, time.Since(start))
		observe.EndSpan(span, err)
	}()

	log.Info("stream started", "input", sc.Input, "output", sc.Output)
	switch sc.Mode {
	case config.ModeEncode:
		return a.encodeFile(ctx, sc, log)
	case config.ModeDecode:
		return a.decodeFile(ctx, sc, log)
	}
	return fmt.Errorf("unknown mode %q", sc.Mode)
}

// stageOptions builds the stream stage options shared by both directions.
func (a *App) stageOptions(sc config.StreamConfig, log *slog.Logger) []stream.Option {
	return []stream.Option{
		stream.WithStreamName(sc.Name),
		stream.WithLogger(log),
		stream.WithMetrics(a.metrics),
		stream.WithReporter(framer.Reporters{
			framer.LogReporter{Logger: log},
			a.metrics.DriftReporter(sc.Name),
		}),
	}
}
