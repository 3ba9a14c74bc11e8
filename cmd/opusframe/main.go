// Command opusframe encodes PCM files to Opus RTP packet files and decodes
// them back, as configured in a YAML file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MrWong99/opusframe/internal/app"
	"github.com/MrWong99/opusframe/internal/config"
	"github.com/MrWong99/opusframe/internal/health"
	"github.com/MrWong99/opusframe/internal/observe"
	"github.com/MrWong99/opusframe/internal/resilience"
	"github.com/MrWong99/opusframe/pkg/audio"
	"github.com/MrWong99/opusframe/pkg/opus"
	"github.com/MrWong99/opusframe/pkg/opus/gopus"
	"github.com/MrWong99/opusframe/pkg/opus/hraban"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	checkOnly := flag.Bool("check", false, "validate the configuration and exit")
	inspectPath := flag.String("inspect", "", "print the packets of an RTP packet file and exit")
	flag.Parse()

	if *inspectPath != "" {
		if err := inspect(os.Stdout, *inspectPath); err != nil {
			fmt.Fprintf(os.Stderr, "opusframe: %v\n", err)
			return 1
		}
		return 0
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "opusframe: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "opusframe: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel))

	// ── Codec backend ─────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinCodecs(reg)
	codec, err := newCodec(reg, cfg.Codec)
	if err != nil {
		slog.Error("failed to create codec backend", "err", err)
		return 1
	}

	if *checkOnly {
		printSummary(cfg)
		return 0
	}

	slog.Info("opusframe starting",
		"version", version,
		"config", *configPath,
		"backend", cfg.Codec.Backend,
		"fallback", cfg.Codec.Fallback,
		"streams", len(cfg.Streams),
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	application, err := app.New(cfg, codec, app.WithMetrics(metrics))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Telemetry listener (optional) ─────────────────────────────────────────
	var srv *http.Server
	if cfg.Server.MetricsAddr != "" {
		readyParams, err := cfg.Codec.Params(audio.Format{SampleRate: 48000, Channels: 2})
		if err != nil {
			slog.Error("invalid codec settings", "err", err)
			return 1
		}
		checks := health.New(readinessCheckers(codec, readyParams, application.Status)...)
		mux := http.NewServeMux()
		checks.Register(mux)
		mux.Handle("GET /metrics", tel.Handler)

		srv = &http.Server{
			Addr:              cfg.Server.MetricsAddr,
			Handler:           observe.Middleware(metrics)(mux),
			ReadHeaderTimeout: 5 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return ctx },
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("telemetry listener error", "err", err)
			}
		}()
		slog.Info("telemetry listening", "addr", cfg.Server.MetricsAddr)
	}

	runErr := application.Run(ctx)

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry listener shutdown error", "err", err)
		}
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			slog.Warn("interrupted", "err", runErr)
		} else {
			slog.Error("streams failed", "err", runErr)
		}
		return 1
	}
	slog.Info("all streams finished")
	return 0
}

// ── Codec wiring ──────────────────────────────────────────────────────────────

// registerBuiltinCodecs wires the codec backends that ship with opusframe.
func registerBuiltinCodecs(reg *config.Registry) {
	reg.RegisterCodec(gopus.Name, func(config.CodecConfig) (opus.Codec, error) {
		return gopus.New(), nil
	})
	reg.RegisterCodec(hraban.Name, func(config.CodecConfig) (opus.Codec, error) {
		return hraban.New(), nil
	})
	slog.Debug("registered codec backends", "names", reg.Names())
}

// newCodec creates the configured backend. When fallbacks are listed, the
// result tries each of them in order whenever the primary cannot build a
// handle.
func newCodec(reg *config.Registry, cfg config.CodecConfig) (opus.Codec, error) {
	primary, err := reg.CreateCodec(cfg)
	if err != nil {
		return nil, err
	}
	if len(cfg.Fallback) == 0 {
		return primary, nil
	}
	fb := resilience.NewCodecFallback(cfg.Backend, primary, resilience.BreakerConfig{})
	for _, name := range cfg.Fallback {
		c := cfg
		c.Backend = name
		codec, err := reg.CreateCodec(c)
		if err != nil {
			return nil, fmt.Errorf("fallback %q: %w", name, err)
		}
		fb.Add(name, codec)
	}
	slog.Debug("codec fallback chain ready", "backends", fb.Backends())
	return fb, nil
}

// readinessCheckers returns the /readyz checks. A fallback chain adds a
// check that fails once every backend's breaker is open.
func readinessCheckers(codec opus.Codec, p opus.Params, status func() (int, int)) []health.Checker {
	checkers := []health.Checker{
		health.CodecChecker(codec, p),
		health.StreamsChecker(status),
	}
	if fb, ok := codec.(*resilience.CodecFallback); ok {
		checkers = append(checkers, health.Checker{Name: "codec_backends", Check: fb.Check})
	}
	return checkers
}

// ── Summary ───────────────────────────────────────────────────────────────────

func printSummary(cfg *config.Config) {
	fmt.Println("configuration ok")
	fmt.Printf("  backend     : %s\n", cfg.Codec.Backend)
	if len(cfg.Codec.Fallback) > 0 {
		fmt.Printf("  fallback    : %s\n", strings.Join(cfg.Codec.Fallback, ", "))
	}
	fmt.Printf("  application : %s\n", orDefault(cfg.Codec.Application, "audio"))
	if cfg.Codec.Bitrate > 0 {
		fmt.Printf("  bitrate     : %d bit/s\n", cfg.Codec.Bitrate)
	}
	for _, s := range cfg.Streams {
		format := "from wav header"
		if s.SampleRate != 0 {
			format = s.Format().String()
		}
		fmt.Printf("  %-6s %-16s %s -> %s (%s)\n", s.Mode, s.Name, s.Input, s.Output, format)
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
