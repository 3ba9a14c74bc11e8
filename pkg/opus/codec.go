package opus

import (
	"errors"
	"fmt"

	"github.com/MrWong99/opusframe/pkg/audio"
)

// ErrInvalidParameter is returned when a codec handle is requested with a
// sample rate, channel count, bitrate, application or signal type the codec
// does not support. It is fatal to stream setup.
var ErrInvalidParameter = errors.New("opus: invalid parameter")

// ErrClosed is returned by handle methods called after Close.
var ErrClosed = errors.New("opus: handle closed")

const (
	// MaxPacketBytes is the output buffer size handed to native encoders.
	MaxPacketBytes = 4000

	// MaxFrameSamples is the largest per-channel frame a decoder may emit
	// (120 ms at 48 kHz).
	MaxFrameSamples = 5760

	// MinBitrate and MaxBitrate bound explicit bitrates in bits per second.
	MinBitrate = 6000
	MaxBitrate = 510000
)

// Application selects the libopus encoder tuning.
type Application int

const (
	ApplicationVoIP Application = iota + 1
	ApplicationAudio
	ApplicationLowDelay
)

// String returns the config spelling of the application.
func (a Application) String() string {
	switch a {
	case ApplicationVoIP:
		return "voip"
	case ApplicationAudio:
		return "audio"
	case ApplicationLowDelay:
		return "lowdelay"
	}
	return fmt.Sprintf("Application(%d)", int(a))
}

// ParseApplication maps a config string to an [Application]. The empty
// string selects [ApplicationAudio].
func ParseApplication(s string) (Application, error) {
	switch s {
	case "", "audio":
		return ApplicationAudio, nil
	case "voip":
		return ApplicationVoIP, nil
	case "lowdelay":
		return ApplicationLowDelay, nil
	}
	return 0, fmt.Errorf("%w: application %q (valid: voip, audio, lowdelay)", ErrInvalidParameter, s)
}

// Signal is a hint about the content being encoded.
type Signal int

const (
	SignalAuto Signal = iota
	SignalVoice
	SignalMusic
)

// String returns the config spelling of the signal type.
func (s Signal) String() string {
	switch s {
	case SignalAuto:
		return "auto"
	case SignalVoice:
		return "voice"
	case SignalMusic:
		return "music"
	}
	return fmt.Sprintf("Signal(%d)", int(s))
}

// ParseSignal maps a config string to a [Signal]. The empty string selects
// [SignalAuto].
func ParseSignal(s string) (Signal, error) {
	switch s {
	case "", "auto":
		return SignalAuto, nil
	case "voice":
		return SignalVoice, nil
	case "music":
		return SignalMusic, nil
	}
	return 0, fmt.Errorf("%w: signal %q (valid: auto, voice, music)", ErrInvalidParameter, s)
}

// Params are the creation parameters of a codec handle.
type Params struct {
	Format      audio.Format
	Application Application

	// Bitrate in bits per second. Zero keeps the codec default.
	Bitrate int

	Signal Signal
}

// Validate checks every field and returns all problems joined, each
// wrapping [ErrInvalidParameter].
func (p Params) Validate() error {
	var errs []error
	if err := p.Format.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalidParameter, err))
	}
	switch p.Application {
	case ApplicationVoIP, ApplicationAudio, ApplicationLowDelay:
	default:
		errs = append(errs, fmt.Errorf("%w: application %s", ErrInvalidParameter, p.Application))
	}
	if p.Bitrate != 0 && (p.Bitrate < MinBitrate || p.Bitrate > MaxBitrate) {
		errs = append(errs, fmt.Errorf("%w: bitrate %d out of range [%d, %d]", ErrInvalidParameter, p.Bitrate, MinBitrate, MaxBitrate))
	}
	switch p.Signal {
	case SignalAuto, SignalVoice, SignalMusic:
	default:
		errs = append(errs, fmt.Errorf("%w: signal %s", ErrInvalidParameter, p.Signal))
	}
	return errors.Join(errs...)
}

// Encoder is a native encoder handle. Handles may keep state between calls
// and are owned by a single stream.
type Encoder interface {
	// Encode compresses exactly frameSamples samples per channel of
	// interleaved little-endian PCM into one Opus packet.
	Encode(frame []byte, frameSamples int) ([]byte, error)

	// Close releases the handle. Further calls fail.
	Close() error
}

// Decoder is a native decoder handle owned by a single stream.
type Decoder interface {
	// Decode expands one Opus packet into interleaved little-endian PCM.
	Decode(packet []byte) ([]byte, error)

	// Close releases the handle. Further calls fail.
	Close() error
}

// Codec creates native handles. Implementations must call [Params.Validate]
// before touching native code.
type Codec interface {
	NewEncoder(p Params) (Encoder, error)
	NewDecoder(p Params) (Decoder, error)
}
