package audio

import (
	"log/slog"
	"sync"
)

// FormatConverter converts AudioFrames to a target format. It logs a warning
// on the first format mismatch and on the first misaligned chunk.
// Create one per stream; not designed for shared use across goroutines.
//
// Rate conversion is stateful: consecutive chunks are resampled as one
// continuous signal, and each converted chunk's PTS is the position of its
// first output sample on the converted timeline. A chunk whose PTS does not
// continue the previous one (by more than one input sample period) or whose
// format changed restarts the resampler at that PTS.
type FormatConverter struct {
	Target         Format
	warnedMismatch sync.Once
	warnedCorrupt  sync.Once

	resampler *Resampler
	from      Format
	origin    PTS
}

// Convert returns frame in the target format. Matching frames are returned
// unchanged. Chunks with a trailing partial sample are truncated to the last
// whole sample before conversion.
// Conversion order: resample first, then channel convert.
func (c *FormatConverter) Convert(frame AudioFrame) AudioFrame {
	src := frame.Format()
	if src.Channels > 0 {
		if rem := len(frame.Data) % src.BlockAlign(); rem != 0 {
			c.warnedCorrupt.Do(func() {
				slog.Warn("audio: chunk is not sample aligned, truncating",
					"bytes", len(frame.Data),
					"format", src.String(),
				)
			})
			frame.Data = frame.Data[:len(frame.Data)-rem]
		}
	}

	if src == c.Target {
		return frame
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("audio: format mismatch, converting",
			"from", src.String(),
			"to", c.Target.String(),
		)
	})

	pcm, pts := frame.Data, frame.PTS
	if src.SampleRate != c.Target.SampleRate && src.SampleRate > 0 && c.Target.SampleRate > 0 && src.Channels > 0 {
		pcm, pts = c.resample(frame)
	}
	switch {
	case src.Channels == 1 && c.Target.Channels == 2:
		pcm = MonoToStereo(pcm)
	case src.Channels == 2 && c.Target.Channels == 1:
		pcm = StereoToMono(pcm)
	}

	return AudioFrame{
		Data:       pcm,
		SampleRate: c.Target.SampleRate,
		Channels:   c.Target.Channels,
		PTS:        pts,
	}
}

// resample runs frame through the stream's resampler and returns the
// converted samples with their timestamp.
func (c *FormatConverter) resample(frame AudioFrame) ([]byte, PTS) {
	src := frame.Format()
	if c.resampler == nil || c.from != src || c.discontinuous(frame.PTS) {
		c.resampler = NewResampler(src.Channels, src.SampleRate, c.Target.SampleRate)
		c.from = src
		c.origin = frame.PTS
	}

	pts := PTS{}
	if frame.PTS.Valid && c.origin.Valid {
		pts = c.origin.Add(samplesDuration(c.resampler.Produced(), c.Target.SampleRate))
	}
	return c.resampler.Resample(frame.Data), pts
}

// discontinuous reports whether pts breaks the input timeline the resampler
// has followed so far. Unknown timestamps never do.
func (c *FormatConverter) discontinuous(pts PTS) bool {
	if !pts.Valid {
		return false
	}
	if !c.origin.Valid {
		return true
	}
	want := c.origin.Add(samplesDuration(c.resampler.Consumed(), c.from.SampleRate))
	d, _ := pts.Sub(want)
	return d.Abs() > samplesDuration(1, c.from.SampleRate)
}

// MonoToStereo duplicates each mono sample into an L+R pair.
func MonoToStereo(pcm []byte) []byte {
	n := len(pcm) / BytesPerSample
	out := make([]byte, n*2*BytesPerSample)
	for i := range n {
		lo, hi := pcm[i*2], pcm[i*2+1]
		out[i*4], out[i*4+1] = lo, hi
		out[i*4+2], out[i*4+3] = lo, hi
	}
	return out
}

// StereoToMono averages each L+R pair into one sample.
func StereoToMono(pcm []byte) []byte {
	n := len(pcm) / (2 * BytesPerSample)
	out := make([]byte, n*BytesPerSample)
	for i := range n {
		l := int32(sampleAt(pcm, i*2))
		r := int32(sampleAt(pcm, i*2+1))
		putSample(out, i, int16((l+r)/2))
	}
	return out
}

// Int16sToBytes converts samples to little-endian bytes.
func Int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*BytesPerSample)
	for i, s := range pcm {
		putSample(b, i, s)
	}
	return b
}

// BytesToInt16s converts little-endian bytes to samples. A trailing odd
// byte is ignored.
func BytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/BytesPerSample)
	for i := range pcm {
		pcm[i] = sampleAt(b, i)
	}
	return pcm
}

func sampleAt(b []byte, i int) int16 {
	return int16(b[i*2]) | int16(b[i*2+1])<<8
}

func putSample(b []byte, i int, s int16) {
	b[i*2] = byte(s)
	b[i*2+1] = byte(s >> 8)
}
