package audio

import (
	"math"
	"time"
)

// Resampler converts interleaved 16-bit PCM between sample rates using
// linear interpolation. It keeps the output phase and the last input sample
// of every channel between calls, so feeding a signal in chunks yields the
// same samples as resampling it in one piece.
//
// Output sample m lies at input position m*srcRate/dstRate. It is emitted as
// soon as the input samples around that position have arrived, so a call
// never holds back more than one input sample period.
type Resampler struct {
	channels int
	src, dst int64

	in   int64 // input samples per channel consumed
	out  int64 // output samples per channel produced
	last []int16
}

// NewResampler returns a resampler for channels interleaved channels. Rates
// must be positive.
func NewResampler(channels, srcRate, dstRate int) *Resampler {
	return &Resampler{
		channels: channels,
		src:      int64(srcRate),
		dst:      int64(dstRate),
		last:     make([]int16, channels),
	}
}

// Resample consumes pcm and returns every output sample it completes. A
// trailing partial sample in pcm is ignored.
func (r *Resampler) Resample(pcm []byte) []byte {
	block := r.channels * BytesPerSample
	frames := int64(len(pcm) / block)
	if frames == 0 {
		return nil
	}

	lastIdx := r.in + frames - 1
	total := lastIdx*r.dst/r.src + 1
	n := int(total - r.out)

	at := func(idx int64, ch int) float64 {
		if idx < r.in {
			return float64(r.last[ch])
		}
		return float64(sampleAt(pcm, int(idx-r.in)*r.channels+ch))
	}

	out := make([]byte, n*block)
	for i := range n {
		pos := (r.out + int64(i)) * r.src
		idx := pos / r.dst
		frac := float64(pos%r.dst) / float64(r.dst)
		for ch := range r.channels {
			s := at(idx, ch)
			if frac > 0 {
				s += (at(idx+1, ch) - s) * frac
			}
			putSample(out, i*r.channels+ch, int16(math.Round(s)))
		}
	}

	for ch := range r.channels {
		r.last[ch] = sampleAt(pcm, int(frames-1)*r.channels+ch)
	}
	r.in += frames
	r.out = total
	return out
}

// Consumed returns the number of input samples per channel seen so far.
func (r *Resampler) Consumed() int64 { return r.in }

// Produced returns the number of output samples per channel emitted so far.
func (r *Resampler) Produced() int64 { return r.out }

// samplesDuration returns the duration of n samples at rate.
func samplesDuration(n int64, rate int) time.Duration {
	return time.Duration(n * int64(time.Second) / int64(rate))
}
