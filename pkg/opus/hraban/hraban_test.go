package hraban_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/MrWong99/opusframe/pkg/audio"
	"github.com/MrWong99/opusframe/pkg/opus"
	"github.com/MrWong99/opusframe/pkg/opus/hraban"
)

// sine returns samples of a 440 Hz tone as interleaved little-endian PCM.
func sine(f audio.Format, samples int) []byte {
	pcm := make([]int16, samples*f.Channels)
	for i := range samples {
		v := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(f.SampleRate)))
		for ch := range f.Channels {
			pcm[i*f.Channels+ch] = v
		}
	}
	return audio.Int16sToBytes(pcm)
}

func TestCodec_RoundTrip(t *testing.T) {
	t.Parallel()

	for _, f := range []audio.Format{
		{SampleRate: 48000, Channels: 1},
		{SampleRate: 48000, Channels: 2},
		{SampleRate: 16000, Channels: 1},
	} {
		t.Run(f.String(), func(t *testing.T) {
			t.Parallel()
			p := opus.Params{Format: f, Application: opus.ApplicationAudio, Bitrate: 64000}
			c := hraban.New()

			enc, err := c.NewEncoder(p)
			if err != nil {
				t.Fatalf("NewEncoder: %v", err)
			}
			defer enc.Close()
			dec, err := c.NewDecoder(p)
			if err != nil {
				t.Fatalf("NewDecoder: %v", err)
			}
			defer dec.Close()

			frameSamples := f.SampleRate / 50
			packet, err := enc.Encode(sine(f, frameSamples), frameSamples)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			toc, err := opus.ParseTOC(packet)
			if err != nil {
				t.Fatalf("ParseTOC: %v", err)
			}
			if toc.Channels() != f.Channels {
				t.Errorf("TOC channels = %d, want %d", toc.Channels(), f.Channels)
			}
			if d, err := opus.PacketDuration(packet); err != nil || d != 20*time.Millisecond {
				t.Errorf("PacketDuration = %v, %v; want 20ms", d, err)
			}

			pcm, err := dec.Decode(packet)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if len(pcm) != frameSamples*f.BlockAlign() {
				t.Errorf("decoded %d bytes, want %d", len(pcm), frameSamples*f.BlockAlign())
			}
		})
	}
}

func TestCodec_InvalidParams(t *testing.T) {
	t.Parallel()
	c := hraban.New()
	p := opus.Params{Format: audio.Format{SampleRate: 44100, Channels: 2}, Application: opus.ApplicationAudio}
	if _, err := c.NewEncoder(p); !errors.Is(err, opus.ErrInvalidParameter) {
		t.Errorf("NewEncoder err = %v, want ErrInvalidParameter", err)
	}
	if _, err := c.NewDecoder(p); !errors.Is(err, opus.ErrInvalidParameter) {
		t.Errorf("NewDecoder err = %v, want ErrInvalidParameter", err)
	}
}

func TestEncoder_WrongFrameSize(t *testing.T) {
	t.Parallel()
	p := opus.Params{Format: audio.Format{SampleRate: 48000, Channels: 1}, Application: opus.ApplicationVoIP}
	enc, err := hraban.New().NewEncoder(p)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	if _, err := enc.Encode(make([]byte, 100), 960); err == nil {
		t.Error("expected error for short frame")
	}
}

func TestEncoder_Closed(t *testing.T) {
	t.Parallel()
	p := opus.Params{Format: audio.Format{SampleRate: 48000, Channels: 1}, Application: opus.ApplicationLowDelay}
	enc, err := hraban.New().NewEncoder(p)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := enc.Encode(make([]byte, 1920), 960); !errors.Is(err, opus.ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}
