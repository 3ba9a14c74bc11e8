package audio_test

import (
	"encoding/binary"
	"slices"
	"testing"

	"github.com/MrWong99/opusframe/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts a little-endian byte slice to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestMonoToStereo(t *testing.T) {
	t.Parallel()
	got := bytesToSamples(audio.MonoToStereo(samplesToBytes([]int16{100, -200, 300})))
	want := []int16{100, 100, -200, -200, 300, 300}
	if !slices.Equal(got, want) {
		t.Errorf("MonoToStereo = %v, want %v", got, want)
	}
}

func TestMonoToStereo_TrailingByte(t *testing.T) {
	t.Parallel()
	pcm := []byte{0x64, 0x00, 0xC8, 0x00, 0xFF}
	stereo := audio.MonoToStereo(pcm)
	if len(stereo) != 8 {
		t.Fatalf("len = %d, want 8", len(stereo))
	}
}

func TestStereoToMono(t *testing.T) {
	t.Parallel()
	got := bytesToSamples(audio.StereoToMono(samplesToBytes([]int16{100, 200, -100, -200, 32767, 32767})))
	want := []int16{150, -150, 32767}
	if !slices.Equal(got, want) {
		t.Errorf("StereoToMono = %v, want %v", got, want)
	}
}

func TestFormatConverter_NoOp(t *testing.T) {
	t.Parallel()
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 48000, Channels: 2}}
	frame := audio.AudioFrame{
		Data:       samplesToBytes([]int16{100, 200}),
		SampleRate: 48000,
		Channels:   2,
		PTS:        audio.At(20),
	}
	result := conv.Convert(frame)
	if &result.Data[0] != &frame.Data[0] {
		t.Error("expected same slice for matching format")
	}
	if result.PTS != frame.PTS {
		t.Errorf("PTS = %v, want %v", result.PTS, frame.PTS)
	}
}

func TestFormatConverter_FullConversion(t *testing.T) {
	t.Parallel()
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 48000, Channels: 2}}
	result := conv.Convert(audio.AudioFrame{
		Data:       samplesToBytes([]int16{1000, 2000}),
		SampleRate: 16000,
		Channels:   1,
		PTS:        audio.At(5),
	})
	if result.Format() != conv.Target {
		t.Errorf("format = %v, want %v", result.Format(), conv.Target)
	}
	// Two 16 kHz samples span 1/16000 s: four 48 kHz samples, two channels.
	if got := len(bytesToSamples(result.Data)); got != 8 {
		t.Errorf("samples = %d, want 8", got)
	}
	if result.PTS != audio.At(5) {
		t.Errorf("PTS = %v, want 5ns", result.PTS)
	}
}

func TestFormatConverter_TruncatesPartialSample(t *testing.T) {
	t.Parallel()
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 48000, Channels: 2}}
	result := conv.Convert(audio.AudioFrame{
		Data:       []byte{1, 2, 3, 4, 5, 6},
		SampleRate: 48000,
		Channels:   2,
	})
	if len(result.Data) != 4 {
		t.Errorf("len = %d, want 4", len(result.Data))
	}
}

func TestInt16Bytes(t *testing.T) {
	t.Parallel()
	in := []int16{0, 1, -1, 32767, -32768}
	b := audio.Int16sToBytes(in)
	if !slices.Equal(b, samplesToBytes(in)) {
		t.Errorf("Int16sToBytes = %v, want %v", b, samplesToBytes(in))
	}
	if got := audio.BytesToInt16s(append(b, 0x7f)); !slices.Equal(got, in) {
		t.Errorf("BytesToInt16s = %v, want %v", got, in)
	}
}
