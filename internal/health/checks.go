package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/opusframe/pkg/opus"
)

// CodecChecker returns a [Checker] that encodes one 20 ms frame of silence
// with codec and validates the packet's TOC byte. It confirms the native
// library is loaded and accepts p.
func CodecChecker(codec opus.Codec, p opus.Params) Checker {
	return Checker{
		Name: "codec",
		Check: func(ctx context.Context) error {
			enc, err := codec.NewEncoder(p)
			if err != nil {
				return err
			}
			defer enc.Close()

			samples := p.Format.SampleRate / 50
			frame := make([]byte, samples*p.Format.BlockAlign())
			pkt, err := enc.Encode(frame, samples)
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			info, err := opus.Describe(pkt)
			if err != nil {
				return err
			}
			if info.TOC.Channels() != p.Format.Channels {
				return fmt.Errorf("probe packet has %d channels, want %d", info.TOC.Channels(), p.Format.Channels)
			}
			return nil
		},
	}
}

// ErrStreamsFailed is reported by [StreamsChecker] once any stream failed.
var ErrStreamsFailed = errors.New("streams failed")

// StreamsChecker returns a [Checker] backed by status, which reports the
// number of failed stream jobs.
func StreamsChecker(status func() (running, failed int)) Checker {
	return Checker{
		Name: "streams",
		Check: func(context.Context) error {
			running, failed := status()
			if failed > 0 {
				return fmt.Errorf("%w: %d failed, %d running", ErrStreamsFailed, failed, running)
			}
			return nil
		},
	}
}
