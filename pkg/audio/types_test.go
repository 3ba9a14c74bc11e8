package audio_test

import (
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/opusframe/pkg/audio"
)

func TestFormat_Validate(t *testing.T) {
	t.Parallel()

	for _, rate := range audio.SupportedSampleRates {
		for _, ch := range []int{1, 2} {
			f := audio.Format{SampleRate: rate, Channels: ch}
			if err := f.Validate(); err != nil {
				t.Errorf("%v: unexpected error %v", f, err)
			}
		}
	}

	bad := []audio.Format{
		{SampleRate: 44100, Channels: 1},
		{SampleRate: 48000, Channels: 0},
		{SampleRate: 48000, Channels: 3},
		{},
	}
	for _, f := range bad {
		if err := f.Validate(); !errors.Is(err, audio.ErrUnsupportedFormat) {
			t.Errorf("%v: err = %v, want ErrUnsupportedFormat", f, err)
		}
	}
}

func TestFormat_FrameMath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		f         audio.Format
		wantBytes int
	}{
		{audio.Format{SampleRate: 48000, Channels: 1}, 1920},
		{audio.Format{SampleRate: 48000, Channels: 2}, 3840},
		{audio.Format{SampleRate: 16000, Channels: 1}, 640},
		{audio.Format{SampleRate: 8000, Channels: 2}, 640},
		{audio.Format{SampleRate: 12000, Channels: 1}, 480},
	}
	for _, tt := range tests {
		t.Run(tt.f.String(), func(t *testing.T) {
			t.Parallel()
			n := tt.f.FrameBytes(20 * time.Millisecond)
			if n != tt.wantBytes {
				t.Fatalf("FrameBytes(20ms) = %d, want %d", n, tt.wantBytes)
			}
			if d := tt.f.Duration(n); d != 20*time.Millisecond {
				t.Errorf("Duration(%d) = %v, want 20ms", n, d)
			}
			if s := tt.f.Samples(n); s != tt.f.SampleRate/50 {
				t.Errorf("Samples(%d) = %d, want %d", n, s, tt.f.SampleRate/50)
			}
		})
	}
}

func TestPTS(t *testing.T) {
	t.Parallel()

	var none audio.PTS
	if none.Valid {
		t.Fatal("zero PTS should be unknown")
	}
	if got := none.Add(time.Second); got.Valid {
		t.Errorf("unknown.Add = %v, want unknown", got)
	}
	if _, ok := audio.At(1).Sub(none); ok {
		t.Error("Sub with unknown operand should not be ok")
	}
	if none.String() != "none" {
		t.Errorf("String() = %q, want none", none.String())
	}

	p := audio.At(10 * time.Millisecond)
	if got := p.Add(20 * time.Millisecond); got != audio.At(30*time.Millisecond) {
		t.Errorf("Add = %v, want 30ms", got)
	}
	if d, ok := p.Sub(audio.At(4 * time.Millisecond)); !ok || d != 6*time.Millisecond {
		t.Errorf("Sub = %v, %v; want 6ms, true", d, ok)
	}
	if !p.After(audio.At(0)) || p.After(p) || p.After(none) {
		t.Error("After returned unexpected result")
	}
}
