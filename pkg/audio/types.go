// Package audio defines the raw PCM types shared by the codec adapter: the
// stream [Format], nullable presentation timestamps ([PTS]) and the
// [AudioFrame] chunks that arrive from a host pipeline.
//
// All PCM handled here is 16-bit little-endian signed, interleaved when the
// format has two channels.
package audio

import (
	"errors"
	"fmt"
	"time"
)

// BytesPerSample is the width of one 16-bit PCM sample.
const BytesPerSample = 2

// ErrUnsupportedFormat is returned by [Format.Validate] when the sample rate
// or channel count cannot be handled by the Opus codec.
var ErrUnsupportedFormat = errors.New("audio: unsupported format")

// SupportedSampleRates lists the input rates accepted by libopus.
var SupportedSampleRates = []int{8000, 12000, 16000, 24000, 48000}

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Validate reports whether f is usable as an Opus encode/decode format.
func (f Format) Validate() error {
	var errs []error
	if !isSupportedRate(f.SampleRate) {
		errs = append(errs, fmt.Errorf("%w: sample rate %d Hz (want one of %v)", ErrUnsupportedFormat, f.SampleRate, SupportedSampleRates))
	}
	if f.Channels != 1 && f.Channels != 2 {
		errs = append(errs, fmt.Errorf("%w: %d channels (want 1 or 2)", ErrUnsupportedFormat, f.Channels))
	}
	return errors.Join(errs...)
}

func isSupportedRate(rate int) bool {
	for _, r := range SupportedSampleRates {
		if r == rate {
			return true
		}
	}
	return false
}

// BlockAlign is the byte size of one sample across all channels.
func (f Format) BlockAlign() int {
	return f.Channels * BytesPerSample
}

// FrameBytes returns the number of bytes covering d of audio. The result is
// always a multiple of [Format.BlockAlign].
func (f Format) FrameBytes(d time.Duration) int {
	samples := int(int64(f.SampleRate) * int64(d) / int64(time.Second))
	return samples * f.BlockAlign()
}

// Samples returns the number of samples per channel contained in n bytes.
func (f Format) Samples(n int) int {
	if f.Channels <= 0 {
		return 0
	}
	return n / f.BlockAlign()
}

// Duration returns the playback duration of n bytes.
func (f Format) Duration(n int) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(f.Samples(n)) * int64(time.Second) / int64(f.SampleRate))
}

// String returns a human-readable form, e.g. "48000Hz stereo".
func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// PTS is a presentation timestamp in nanoseconds that may be unknown. The
// zero value is an unknown timestamp.
type PTS struct {
	Value time.Duration
	Valid bool
}

// At returns a known timestamp at d.
func At(d time.Duration) PTS {
	return PTS{Value: d, Valid: true}
}

// Add returns p advanced by d. Unknown timestamps stay unknown.
func (p PTS) Add(d time.Duration) PTS {
	if !p.Valid {
		return p
	}
	return PTS{Value: p.Value + d, Valid: true}
}

// Sub returns p - q. ok is false when either timestamp is unknown.
func (p PTS) Sub(q PTS) (d time.Duration, ok bool) {
	if !p.Valid || !q.Valid {
		return 0, false
	}
	return p.Value - q.Value, true
}

// After reports whether both timestamps are known and p is later than q.
func (p PTS) After(q PTS) bool {
	d, ok := p.Sub(q)
	return ok && d > 0
}

// String returns the timestamp as a duration, or "none".
func (p PTS) String() string {
	if !p.Valid {
		return "none"
	}
	return p.Value.String()
}

// AudioFrame is a chunk of raw PCM as delivered by the host pipeline. Chunks
// have no alignment guarantee relative to codec frame boundaries.
type AudioFrame struct {
	// Data holds interleaved 16-bit little-endian samples.
	Data []byte

	SampleRate int
	Channels   int

	// PTS is the presentation time of the first sample in Data, if known.
	PTS PTS
}

// Format returns the format carried by the frame.
func (f AudioFrame) Format() Format {
	return Format{SampleRate: f.SampleRate, Channels: f.Channels}
}
