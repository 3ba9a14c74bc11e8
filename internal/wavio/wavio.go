// Package wavio reads and writes 16-bit PCM WAV files as little-endian byte
// streams, the representation the rest of opusframe works with.
package wavio

import (
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/MrWong99/opusframe/pkg/audio"
)

// bitDepth is the only sample width opusframe handles.
const bitDepth = 16

// ErrNotWAV is returned by [OpenReader] for files without a RIFF/WAVE header.
var ErrNotWAV = errors.New("wavio: not a wav file")

// Reader streams PCM out of a WAV file. It implements io.ReadCloser.
type Reader struct {
	f      *os.File
	dec    *wav.Decoder
	format audio.Format
	buf    *goaudio.IntBuffer
}

// OpenReader opens path and reads its header. Only 16-bit PCM is accepted.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wavio: open %q: %w", path, err)
	}
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("%w: %q", ErrNotWAV, path)
	}
	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		f.Close()
		return nil, fmt.Errorf("wavio: read header of %q: %w", path, err)
	}
	if dec.BitDepth != bitDepth {
		f.Close()
		return nil, fmt.Errorf("wavio: %q is %d-bit, only %d-bit pcm is supported", path, dec.BitDepth, bitDepth)
	}
	if err := dec.FwdToPCM(); err != nil {
		f.Close()
		return nil, fmt.Errorf("wavio: seek to pcm in %q: %w", path, err)
	}

	format := audio.Format{SampleRate: int(dec.SampleRate), Channels: int(dec.NumChans)}
	return &Reader{
		f:      f,
		dec:    dec,
		format: format,
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
			SourceBitDepth: bitDepth,
		},
	}, nil
}

// Format returns the sample rate and channel count from the header.
func (r *Reader) Format() audio.Format { return r.format }

// Read fills p with little-endian 16-bit samples. It returns io.EOF once the
// data chunk is exhausted.
func (r *Reader) Read(p []byte) (int, error) {
	want := len(p) / audio.BytesPerSample
	if want == 0 {
		return 0, nil
	}
	if cap(r.buf.Data) < want {
		r.buf.Data = make([]int, want)
	}
	r.buf.Data = r.buf.Data[:want]

	n, err := r.dec.PCMBuffer(r.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("wavio: read pcm: %w", err)
	}
	if n == 0 {
		return 0, io.EOF
	}
	for i, s := range r.buf.Data[:n] {
		v := int16(s)
		p[i*2] = byte(v)
		p[i*2+1] = byte(v >> 8)
	}
	return n * audio.BytesPerSample, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.f.Close()
}

// Writer writes PCM into a WAV file. The header sizes are finalised by Close.
type Writer struct {
	f      *os.File
	enc    *wav.Encoder
	format audio.Format
	buf    *goaudio.IntBuffer
}

// Create creates or truncates path and prepares a 16-bit PCM WAV in format.
func Create(path string, format audio.Format) (*Writer, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("wavio: create %q: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("wavio: create %q: %w", path, err)
	}
	return &Writer{
		f:      f,
		enc:    wav.NewEncoder(f, format.SampleRate, bitDepth, format.Channels, 1),
		format: format,
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
			SourceBitDepth: bitDepth,
		},
	}, nil
}

// Format returns the format of the file being written.
func (w *Writer) Format() audio.Format { return w.format }

// Write appends little-endian 16-bit PCM. A trailing odd byte is dropped.
func (w *Writer) Write(pcm []byte) error {
	n := len(pcm) / audio.BytesPerSample
	if n == 0 {
		return nil
	}
	if cap(w.buf.Data) < n {
		w.buf.Data = make([]int, n)
	}
	w.buf.Data = w.buf.Data[:n]
	for i, s := range audio.BytesToInt16s(pcm[:n*audio.BytesPerSample]) {
		w.buf.Data[i] = int(s)
	}
	if err := w.enc.Write(w.buf); err != nil {
		return fmt.Errorf("wavio: write pcm: %w", err)
	}
	return nil
}

// Close finalises the header and closes the file.
func (w *Writer) Close() error {
	return errors.Join(w.enc.Close(), w.f.Close())
}
