package wavio

import (
	"encoding/binary"
	"errors"
	"io"
	"math"

	"github.com/faiface/beep"

	"github.com/MrWong99/opusframe/pkg/audio"
)

// resampleQuality is the number of neighbouring samples beep interpolates
// over on each side.
const resampleQuality = 6

// Resampler converts a whole s16le PCM stream to another sample rate with
// beep's windowed interpolation. It pulls input on demand and implements
// io.Reader; the channel count is kept.
//
// It is meant for complete inputs such as files: a short read from the
// underlying reader marks the end of the stream.
type Resampler struct {
	src    *pcmStreamer
	rs     *beep.Resampler
	format audio.Format

	samples [][2]float64
	out     []byte
	pending []byte
	done    bool
}

// NewResampler returns a reader that yields r, whose PCM is in format from,
// resampled to rate. from must have one or two channels and both rates must
// be positive.
func NewResampler(r io.Reader, from audio.Format, rate int) *Resampler {
	src := &pcmStreamer{r: r, channels: from.Channels}
	return &Resampler{
		src:     src,
		rs:      beep.Resample(resampleQuality, beep.SampleRate(from.SampleRate), beep.SampleRate(rate), src),
		format:  audio.Format{SampleRate: rate, Channels: from.Channels},
		samples: make([][2]float64, 1024),
	}
}

// Format returns the format of the PCM Read yields.
func (r *Resampler) Format() audio.Format { return r.format }

// Read implements io.Reader. It returns io.EOF once the input is drained, or
// the error that ended the input early.
func (r *Resampler) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		if r.done {
			if err := r.rs.Err(); err != nil {
				return 0, err
			}
			return 0, io.EOF
		}
		n, ok := r.rs.Stream(r.samples)
		if !ok {
			r.done = true
		}
		r.pending = r.encode(r.samples[:n])
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

// encode converts samples back to s16le with r's channel count.
func (r *Resampler) encode(samples [][2]float64) []byte {
	block := r.format.BlockAlign()
	if need := len(samples) * block; cap(r.out) < need {
		r.out = make([]byte, need)
	}
	out := r.out[:len(samples)*block]
	for i, s := range samples {
		for ch := range r.format.Channels {
			binary.LittleEndian.PutUint16(out[i*block+ch*audio.BytesPerSample:], uint16(toInt16(s[ch])))
		}
	}
	return out
}

// pcmStreamer adapts an s16le reader to a beep.Streamer. Mono input is
// copied to both beep channels.
type pcmStreamer struct {
	r        io.Reader
	channels int
	raw      []byte
	err      error
	done     bool
}

func (s *pcmStreamer) Stream(samples [][2]float64) (int, bool) {
	if s.done {
		return 0, false
	}
	block := s.channels * audio.BytesPerSample
	if need := len(samples) * block; cap(s.raw) < need {
		s.raw = make([]byte, need)
	}
	raw := s.raw[:len(samples)*block]

	n, err := io.ReadFull(s.r, raw)
	if err != nil {
		s.done = true
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			s.err = err
		}
	}
	frames := n / block
	for i := range frames {
		left := fromInt16(raw[i*block:])
		right := left
		if s.channels > 1 {
			right = fromInt16(raw[i*block+audio.BytesPerSample:])
		}
		samples[i] = [2]float64{left, right}
	}
	return frames, frames > 0
}

func (s *pcmStreamer) Err() error { return s.err }

func fromInt16(b []byte) float64 {
	return float64(int16(binary.LittleEndian.Uint16(b))) / 32768
}

func toInt16(v float64) int16 {
	return int16(math.Round(math.Max(-1, math.Min(1, v)) * 32767))
}
