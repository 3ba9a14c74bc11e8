// Package config provides the configuration schema, loader and codec backend
// registry for opusframe.
package config

import (
	"fmt"

	"github.com/MrWong99/opusframe/pkg/audio"
	"github.com/MrWong99/opusframe/pkg/opus"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Mode selects the direction of a stream.
type Mode string

const (
	// ModeEncode reads PCM (WAV or raw s16le) and writes an RTP packet file.
	ModeEncode Mode = "encode"

	// ModeDecode reads an RTP packet file and writes a WAV file.
	ModeDecode Mode = "decode"
)

// IsValid reports whether m is a recognised stream mode.
func (m Mode) IsValid() bool {
	return m == ModeEncode || m == ModeDecode
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Codec   CodecConfig    `yaml:"codec"`
	Streams []StreamConfig `yaml:"streams"`
}

// ServerConfig holds logging and telemetry settings.
type ServerConfig struct {
	// LogLevel controls verbosity. Default: info.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address serving /metrics, /healthz and /readyz
	// while streams run (e.g., ":9464"). Empty disables the listener.
	MetricsAddr string `yaml:"metrics_addr"`
}

// CodecConfig selects the native codec backend and its encoder settings.
// The same settings apply to every stream.
type CodecConfig struct {
	// Backend selects the registered codec implementation ("gopus" or "hraban").
	Backend string `yaml:"backend"`

	// Fallback lists further backends tried in order when the primary cannot
	// create a codec handle. Each backend sits behind its own circuit breaker.
	Fallback []string `yaml:"fallback"`

	// Application is the encoder tuning: voip, audio or lowdelay. Default: audio.
	Application string `yaml:"application"`

	// Bitrate in bits per second. 0 keeps the codec default.
	Bitrate int `yaml:"bitrate"`

	// Signal is a content hint: auto, voice or music. Default: auto.
	Signal string `yaml:"signal"`
}

// StreamConfig describes one independent stream job.
type StreamConfig struct {
	// Name identifies the stream in logs and metrics. Must be unique.
	Name string `yaml:"name"`

	// Mode is encode or decode.
	Mode Mode `yaml:"mode"`

	// Input is the source file. Encode: a .wav file or raw s16le PCM.
	// Decode: an RTP packet file.
	Input string `yaml:"input"`

	// Output is the destination file. Encode: RTP packet file. Decode: .wav.
	Output string `yaml:"output"`

	// SampleRate is the PCM rate of raw encode input and of decode output.
	// WAV input takes its rate from the header; when both are set and differ,
	// the input is resampled.
	SampleRate int `yaml:"sample_rate"`

	// Channels is the channel count, with the same rules as SampleRate.
	Channels int `yaml:"channels"`

	// ChunkBytes is the read size feeding the encoder. It deliberately does
	// not have to match the codec frame size. Default: 3000.
	ChunkBytes int `yaml:"chunk_bytes"`
}

// DefaultChunkBytes is used when a stream does not set chunk_bytes.
const DefaultChunkBytes = 3000

// Format returns the stream's configured PCM format.
func (s StreamConfig) Format() audio.Format {
	return audio.Format{SampleRate: s.SampleRate, Channels: s.Channels}
}

// Params builds the codec parameters for a stream in format f.
func (c CodecConfig) Params(f audio.Format) (opus.Params, error) {
	app, err := opus.ParseApplication(c.Application)
	if err != nil {
		return opus.Params{}, fmt.Errorf("config: codec.application: %w", err)
	}
	sig, err := opus.ParseSignal(c.Signal)
	if err != nil {
		return opus.Params{}, fmt.Errorf("config: codec.signal: %w", err)
	}
	p := opus.Params{
		Format:      f,
		Application: app,
		Bitrate:     c.Bitrate,
		Signal:      sig,
	}
	if err := p.Validate(); err != nil {
		return opus.Params{}, fmt.Errorf("config: codec params: %w", err)
	}
	return p, nil
}
