// Package framer re-frames arbitrarily sized PCM chunks into the fixed-size
// frames a codec consumes, threading presentation timestamps through the
// process, and checks the resulting timestamps for drift.
//
// An [Accumulator] is owned by exactly one stream. It is not safe for
// concurrent use; streams processed in parallel each need their own.
package framer

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/MrWong99/opusframe/pkg/audio"
	"github.com/MrWong99/opusframe/pkg/opus"
)

// DefaultFrameDuration is the codec frame length used unless overridden.
const DefaultFrameDuration = 20 * time.Millisecond

// ErrUnsupportedReconfiguration is returned by [Accumulator.CheckFormat] when
// a chunk's format differs from the one the accumulator was built for. The
// caller decides whether to end the stream or build a new accumulator.
var ErrUnsupportedReconfiguration = errors.New("framer: unsupported reconfiguration")

// validFrameDurations are the frame lengths libopus accepts.
var validFrameDurations = []time.Duration{
	2500 * time.Microsecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	20 * time.Millisecond,
	40 * time.Millisecond,
	60 * time.Millisecond,
}

// Frame is one codec-sized slice of PCM.
type Frame struct {
	// Data is exactly FrameBytes long and owned by the receiver.
	Data []byte

	// PTS is the cursor value when the frame was cut; unknown if no input
	// timestamp has been seen yet.
	PTS audio.PTS

	// Duration is the playback duration of Data.
	Duration time.Duration

	// Padding is the number of trailing zero bytes added by Flush.
	Padding int
}

// Option configures an [Accumulator].
type Option func(*Accumulator)

// WithFrameDuration sets the frame length. It must be one of the Opus frame
// durations (2.5, 5, 10, 20, 40 or 60 ms).
func WithFrameDuration(d time.Duration) Option {
	return func(a *Accumulator) { a.frameDuration = d }
}

// WithReporter sets where timestamp gap warnings are sent. Without a reporter
// they are dropped.
func WithReporter(r Reporter) Option {
	return func(a *Accumulator) { a.reporter = r }
}

// Accumulator collects PCM chunks into fixed-size frames.
type Accumulator struct {
	format        audio.Format
	frameDuration time.Duration
	frameBytes    int
	reporter      Reporter

	pending []byte
	cursor  audio.PTS
}

// New returns an accumulator for the given format. The frame length in bytes
// is derived once here and stays fixed for the accumulator's lifetime.
func New(format audio.Format, opts ...Option) (*Accumulator, error) {
	a := &Accumulator{
		format:        format,
		frameDuration: DefaultFrameDuration,
	}
	for _, o := range opts {
		o(a)
	}

	var errs []error
	if err := format.Validate(); err != nil {
		errs = append(errs, err)
	}
	if !slices.Contains(validFrameDurations, a.frameDuration) {
		errs = append(errs, fmt.Errorf("frame duration %v is not an opus frame size", a.frameDuration))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("framer: new accumulator: %w: %w", opus.ErrInvalidParameter, err)
	}

	a.frameBytes = format.FrameBytes(a.frameDuration)
	a.pending = make([]byte, 0, a.frameBytes)
	return a, nil
}

// Submit appends chunk and returns every complete frame now available.
//
// When no bytes are pending and pts is known, pts reseeds the cursor. If the
// cursor was already running and pts lies ahead of it, a [DriftGap] warning
// is reported first. Timestamps submitted while bytes are pending are
// ignored; the cursor alone determines frame timestamps.
//
// Returned frames never alias chunk.
func (a *Accumulator) Submit(chunk []byte, pts audio.PTS) []Frame {
	if len(a.pending) == 0 && pts.Valid {
		if a.cursor.Valid && pts.After(a.cursor) && a.reporter != nil {
			diff, _ := pts.Sub(a.cursor)
			a.reporter.ReportDrift(&DriftWarning{
				Kind:   DriftGap,
				Output: a.cursor,
				Input:  pts,
				Diff:   -diff,
			})
		}
		a.cursor = pts
	}
	if len(chunk) == 0 {
		return nil
	}

	a.pending = append(a.pending, chunk...)

	var frames []Frame
	for len(a.pending) >= a.frameBytes {
		frames = append(frames, a.cut(a.pending[:a.frameBytes], 0))
		a.pending = a.pending[a.frameBytes:]
	}
	a.compact()
	return frames
}

// Flush zero-pads any pending bytes to a full frame and returns it. ok is
// false when nothing was pending.
func (a *Accumulator) Flush() (frame Frame, ok bool) {
	if len(a.pending) == 0 {
		return Frame{}, false
	}
	pad := a.frameBytes - len(a.pending)
	data := make([]byte, a.frameBytes)
	copy(data, a.pending)
	frame = a.cut(data, pad)
	a.pending = a.pending[:0]
	return frame, true
}

// cut emits data as a frame at the cursor and advances the cursor.
func (a *Accumulator) cut(data []byte, pad int) Frame {
	f := Frame{
		Data:     slices.Clone(data),
		PTS:      a.cursor,
		Duration: a.format.Duration(len(data)),
		Padding:  pad,
	}
	a.cursor = a.cursor.Add(f.Duration)
	return f
}

// compact moves the pending remainder to the front of its backing array so
// the buffer does not grow without bound across calls.
func (a *Accumulator) compact() {
	if cap(a.pending)-len(a.pending) >= a.frameBytes {
		return
	}
	buf := make([]byte, len(a.pending), 2*a.frameBytes)
	copy(buf, a.pending)
	a.pending = buf
}

// CheckFormat returns [ErrUnsupportedReconfiguration] if f differs from the
// accumulator's format.
func (a *Accumulator) CheckFormat(f audio.Format) error {
	if f != a.format {
		return fmt.Errorf("%w: accumulator is %s, chunk is %s", ErrUnsupportedReconfiguration, a.format, f)
	}
	return nil
}

// Pending returns the number of bytes waiting for a full frame.
func (a *Accumulator) Pending() int { return len(a.pending) }

// Cursor returns the timestamp the next frame will carry.
func (a *Accumulator) Cursor() audio.PTS { return a.cursor }

// Format returns the PCM format the accumulator was built for.
func (a *Accumulator) Format() audio.Format { return a.format }

// FrameBytes returns the fixed frame length in bytes.
func (a *Accumulator) FrameBytes() int { return a.frameBytes }

// FrameSamples returns the number of samples per channel in one frame.
func (a *Accumulator) FrameSamples() int { return a.format.Samples(a.frameBytes) }

// FrameDuration returns the playback duration of one frame.
func (a *Accumulator) FrameDuration() time.Duration { return a.frameDuration }
