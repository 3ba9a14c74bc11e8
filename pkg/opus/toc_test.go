package opus_test

import (
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/opusframe/pkg/opus"
)

func TestParseTOC_Empty(t *testing.T) {
	t.Parallel()
	_, err := opus.ParseTOC(nil)
	if !errors.Is(err, opus.ErrMalformedPacket) {
		t.Fatalf("err = %v, want ErrMalformedPacket", err)
	}
	if _, err := opus.ParseTOC([]byte{}); !errors.Is(err, opus.ErrMalformedPacket) {
		t.Fatalf("err = %v, want ErrMalformedPacket", err)
	}
}

func TestParseTOC_Examples(t *testing.T) {
	t.Parallel()

	tests := []struct {
		b        byte
		config   uint8
		stereo   bool
		packing  opus.FramePacking
		mode     opus.Mode
		bw       opus.Bandwidth
		duration time.Duration
	}{
		{0xFC, 31, true, opus.OneFrame, opus.ModeCELT, opus.Fullband, 20 * time.Millisecond},
		{0x78, 15, false, opus.OneFrame, opus.ModeHybrid, opus.Fullband, 20 * time.Millisecond},
		{0x03, 0, false, opus.ArbitraryFrames, opus.ModeSILK, opus.Narrowband, 10 * time.Millisecond},
		{0x4B, 9, false, opus.ArbitraryFrames, opus.ModeSILK, opus.Wideband, 20 * time.Millisecond},
		{0x85, 16, true, opus.TwoEqualFrames, opus.ModeCELT, opus.Narrowband, 2500 * time.Microsecond},
	}
	for _, tt := range tests {
		toc, err := opus.ParseTOC([]byte{tt.b, 0x01, 0x02})
		if err != nil {
			t.Fatalf("0x%02X: unexpected error %v", tt.b, err)
		}
		if toc.Config != tt.config || toc.Stereo != tt.stereo || toc.FramePacking != tt.packing {
			t.Errorf("0x%02X: got %+v, want config=%d stereo=%v packing=%v", tt.b, toc, tt.config, tt.stereo, tt.packing)
		}
		info, err := opus.LookupConfig(int(toc.Config))
		if err != nil {
			t.Fatalf("0x%02X: LookupConfig: %v", tt.b, err)
		}
		if info.Mode != tt.mode || info.Bandwidth != tt.bw || info.FrameDuration != tt.duration {
			t.Errorf("0x%02X: info = %+v, want %v/%v/%v", tt.b, info, tt.mode, tt.bw, tt.duration)
		}
	}
}

func TestParseTOC_AllBytes(t *testing.T) {
	t.Parallel()
	for b := 0; b < 256; b++ {
		toc, err := opus.ParseTOC([]byte{byte(b)})
		if err != nil {
			t.Fatalf("0x%02X: unexpected error %v", b, err)
		}
		if int(toc.Config) != b>>3 {
			t.Errorf("0x%02X: config = %d, want %d", b, toc.Config, b>>3)
		}
		if toc.Stereo != ((b>>2)&1 == 1) {
			t.Errorf("0x%02X: stereo = %v", b, toc.Stereo)
		}
		if int(toc.FramePacking) != b&3 {
			t.Errorf("0x%02X: packing = %d, want %d", b, toc.FramePacking, b&3)
		}
		if toc.Byte() != byte(b) {
			t.Errorf("0x%02X: Byte() = 0x%02X", b, toc.Byte())
		}
		wantCh := 1
		if toc.Stereo {
			wantCh = 2
		}
		if toc.Channels() != wantCh {
			t.Errorf("0x%02X: channels = %d, want %d", b, toc.Channels(), wantCh)
		}
	}
}

func TestLookupConfig_Table(t *testing.T) {
	t.Parallel()

	for n := 0; n < 32; n++ {
		info, err := opus.LookupConfig(n)
		if err != nil {
			t.Fatalf("config %d: unexpected error %v", n, err)
		}
		var (
			wantMode opus.Mode
			wantBW   opus.Bandwidth
			wantDur  time.Duration
		)
		switch {
		case n < 12:
			wantMode = opus.ModeSILK
			wantBW = []opus.Bandwidth{opus.Narrowband, opus.Mediumband, opus.Wideband}[n/4]
			wantDur = []time.Duration{10, 20, 40, 60}[n%4] * time.Millisecond
		case n < 16:
			wantMode = opus.ModeHybrid
			wantBW = []opus.Bandwidth{opus.SuperWideband, opus.Fullband}[(n-12)/2]
			wantDur = []time.Duration{10, 20}[n%2] * time.Millisecond
		default:
			wantMode = opus.ModeCELT
			wantBW = []opus.Bandwidth{opus.Narrowband, opus.Wideband, opus.SuperWideband, opus.Fullband}[(n-16)/4]
			wantDur = []time.Duration{2500, 5000, 10000, 20000}[n%4] * time.Microsecond
		}
		if info.Mode != wantMode || info.Bandwidth != wantBW || info.FrameDuration != wantDur {
			t.Errorf("config %d = %+v, want %v/%v/%v", n, info, wantMode, wantBW, wantDur)
		}
	}

	for _, n := range []int{-1, 32, 255} {
		if _, err := opus.LookupConfig(n); !errors.Is(err, opus.ErrInvalidConfiguration) {
			t.Errorf("config %d: err = %v, want ErrInvalidConfiguration", n, err)
		}
	}
}

func TestBandwidth_SampleRate(t *testing.T) {
	t.Parallel()
	want := map[opus.Bandwidth]int{
		opus.Narrowband:    8000,
		opus.Mediumband:    12000,
		opus.Wideband:      16000,
		opus.SuperWideband: 24000,
		opus.Fullband:      48000,
		opus.Bandwidth(0):  0,
	}
	for bw, rate := range want {
		if got := bw.SampleRate(); got != rate {
			t.Errorf("%v.SampleRate() = %d, want %d", bw, got, rate)
		}
	}
}

func TestPacketDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		packet  []byte
		want    time.Duration
		wantErr error
	}{
		{"code 0 celt fb 20ms", []byte{0xF8, 0xAA}, 20 * time.Millisecond, nil},
		{"code 1 two equal", []byte{0xF9, 0xAA}, 40 * time.Millisecond, nil},
		{"code 2 two different", []byte{0xFA, 0x01, 0xAA}, 40 * time.Millisecond, nil},
		{"code 3 three frames", []byte{0xFB, 0x03, 0xAA}, 60 * time.Millisecond, nil},
		{"code 3 padding flags ignored", []byte{0x1B, 0xC2}, 120 * time.Millisecond, nil},
		{"code 3 missing count", []byte{0xFB}, 0, opus.ErrMalformedPacket},
		{"empty", nil, 0, opus.ErrMalformedPacket},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := opus.PacketDuration(tt.packet)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if got != tt.want {
				t.Errorf("duration = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDescribe(t *testing.T) {
	t.Parallel()
	pi, err := opus.Describe([]byte{0xFC, 0x00})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if pi.Mode != opus.ModeCELT || pi.Bandwidth != opus.Fullband || !pi.Stereo || pi.Frames != 1 {
		t.Errorf("Describe = %+v", pi)
	}
	if pi.TOC.String() == "" {
		t.Error("TOC.String() is empty")
	}
}
