package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/opusframe/pkg/opus"
)

// ValidBackendNames lists the codec backends shipped with opusframe.
// Used by [Validate] to warn about unrecognised backend names.
var ValidBackendNames = []string{"gopus", "hraban"}

// maxChunkDuration is the chunk length above which [Validate] warns.
const maxChunkDuration = time.Second

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset optional fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Codec.Backend == "" {
		cfg.Codec.Backend = "gopus"
	}
	for i := range cfg.Streams {
		if cfg.Streams[i].ChunkBytes == 0 {
			cfg.Streams[i].ChunkBytes = DefaultChunkBytes
		}
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Codec
	if cfg.Codec.Backend != "" && !slices.Contains(ValidBackendNames, cfg.Codec.Backend) {
		slog.Warn("unknown codec backend; may be a typo or a third-party backend",
			"name", cfg.Codec.Backend,
			"known", ValidBackendNames,
		)
	}
	for i, name := range cfg.Codec.Fallback {
		switch {
		case name == "":
			errs = append(errs, fmt.Errorf("codec.fallback[%d] is empty", i))
		case name == cfg.Codec.Backend || slices.Index(cfg.Codec.Fallback, name) < i:
			errs = append(errs, fmt.Errorf("codec.fallback[%d] %q is already listed", i, name))
		case !slices.Contains(ValidBackendNames, name):
			slog.Warn("unknown fallback codec backend", "name", name, "known", ValidBackendNames)
		}
	}
	if _, err := opus.ParseApplication(cfg.Codec.Application); err != nil {
		errs = append(errs, fmt.Errorf("codec.application: %w", err))
	}
	if _, err := opus.ParseSignal(cfg.Codec.Signal); err != nil {
		errs = append(errs, fmt.Errorf("codec.signal: %w", err))
	}
	if b := cfg.Codec.Bitrate; b != 0 && (b < opus.MinBitrate || b > opus.MaxBitrate) {
		errs = append(errs, fmt.Errorf("codec.bitrate %d is out of range [%d, %d]; use 0 for the codec default", b, opus.MinBitrate, opus.MaxBitrate))
	}

	if len(cfg.Streams) == 0 {
		slog.Warn("no streams configured; nothing to do")
	}

	namesSeen := make(map[string]int, len(cfg.Streams))
	outputsSeen := make(map[string]int, len(cfg.Streams))

	for i, s := range cfg.Streams {
		prefix := fmt.Sprintf("streams[%d]", i)
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := namesSeen[s.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of streams[%d]", prefix, s.Name, prev))
			}
			namesSeen[s.Name] = i
		}
		if !s.Mode.IsValid() {
			errs = append(errs, fmt.Errorf("%s.mode %q is invalid; valid values: encode, decode", prefix, s.Mode))
		}
		if s.Input == "" {
			errs = append(errs, fmt.Errorf("%s.input is required", prefix))
		}
		if s.Output == "" {
			errs = append(errs, fmt.Errorf("%s.output is required", prefix))
		} else {
			out := filepath.Clean(s.Output)
			if prev, ok := outputsSeen[out]; ok {
				errs = append(errs, fmt.Errorf("%s.output %q is also written by streams[%d]", prefix, s.Output, prev))
			}
			outputsSeen[out] = i
			if s.Input != "" && filepath.Clean(s.Input) == out {
				errs = append(errs, fmt.Errorf("%s.output must differ from input", prefix))
			}
		}
		if s.ChunkBytes < 0 {
			errs = append(errs, fmt.Errorf("%s.chunk_bytes %d must be positive", prefix, s.ChunkBytes))
		}

		// A format is required for raw input and for decode output; WAV input
		// carries its own. A partially set format is always an error.
		rawInput := s.Mode == ModeEncode && !isWAV(s.Input)
		needFormat := rawInput || s.Mode == ModeDecode
		setFormat := s.SampleRate != 0 || s.Channels != 0
		if needFormat || setFormat {
			if err := s.Format().Validate(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", prefix, err))
			}
		}
		if s.Mode == ModeDecode && !isWAV(s.Output) {
			slog.Warn("decode output does not end in .wav; writing WAV anyway", "stream", s.Name, "output", s.Output)
		}
		if s.ChunkBytes > 0 && s.Mode == ModeEncode && s.Format().Validate() == nil {
			if d := s.Format().Duration(s.ChunkBytes); d > maxChunkDuration {
				slog.Warn("large chunk_bytes; input timestamps will be coarse", "stream", s.Name, "chunk", d)
			}
		}
	}

	for _, s := range cfg.Streams {
		if s.Input == "" {
			continue
		}
		if prev, ok := outputsSeen[filepath.Clean(s.Input)]; ok && cfg.Streams[prev].Name != s.Name {
			slog.Warn("stream reads a file another stream writes; streams run concurrently",
				"stream", s.Name,
				"input", s.Input,
				"writer", cfg.Streams[prev].Name,
			)
		}
	}

	return errors.Join(errs...)
}

// isWAV reports whether path looks like a WAV file by extension.
func isWAV(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".wav")
}
