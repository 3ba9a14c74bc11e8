package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MrWong99/opusframe/internal/config"
	"github.com/MrWong99/opusframe/internal/wavio"
	"github.com/MrWong99/opusframe/pkg/audio"
	"github.com/MrWong99/opusframe/pkg/framer"
	"github.com/MrWong99/opusframe/pkg/opus"
	"github.com/MrWong99/opusframe/pkg/rtpfile"
	"github.com/MrWong99/opusframe/pkg/stream"
)

// pcmSource is an encode input with a known format.
type pcmSource struct {
	io.ReadCloser
	format audio.Format
}

// openSource opens a WAV file by extension and raw s16le PCM otherwise.
func openSource(sc config.StreamConfig) (*pcmSource, error) {
	if strings.EqualFold(filepath.Ext(sc.Input), ".wav") {
		r, err := wavio.OpenReader(sc.Input)
		if err != nil {
			return nil, err
		}
		return &pcmSource{ReadCloser: r, format: r.Format()}, nil
	}
	f, err := os.Open(sc.Input)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return &pcmSource{ReadCloser: f, format: sc.Format()}, nil
}

// resample makes s yield PCM at rate. The whole input is available up
// front, so it goes through the windowed file resampler and the stage only
// has channels left to convert.
func (s *pcmSource) resample(rate int) {
	rs := wavio.NewResampler(s.ReadCloser, s.format, rate)
	s.ReadCloser = struct {
		io.Reader
		io.Closer
	}{rs, s.ReadCloser}
	s.format = rs.Format()
}

// ─── Encode ──────────────────────────────────────────────────────────────────

// encodeFile reads sc.Input in chunks of sc.ChunkBytes, feeds them through a
// stream encoder and writes every packet to sc.Output. Each chunk carries
// the PTS of its first byte relative to the start of the input.
func (a *App) encodeFile(ctx context.Context, sc config.StreamConfig, log *slog.Logger) (err error) {
	src, err := openSource(sc)
	if err != nil {
		return err
	}
	defer src.Close()

	target := src.format
	if sc.SampleRate != 0 || sc.Channels != 0 {
		target = sc.Format()
	}
	params, err := a.cfg.Codec.Params(target)
	if err != nil {
		return err
	}
	if target != src.format {
		log.Info("converting input", "from", src.format.String(), "to", target.String())
	}
	if target.SampleRate != src.format.SampleRate {
		src.resample(target.SampleRate)
	}

	enc, err := stream.NewEncoder(a.codec, params, a.stageOptions(sc, log)...)
	if err != nil {
		return err
	}
	defer enc.Close()

	out, err := os.Create(sc.Output)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close output: %w", cerr)
		}
	}()
	bw := bufio.NewWriter(out)
	w := rtpfile.NewWriter(bw, a.ssrc())

	var written int
	emit := func(packets []stream.Packet) error {
		for _, p := range packets {
			if err := w.WritePacket(p.Data, p.PTS, p.Duration); err != nil {
				return fmt.Errorf("write packet: %w", err)
			}
		}
		written += len(packets)
		return nil
	}

	// Chunks must hold whole samples; the frame size need not divide them.
	align := src.format.BlockAlign()
	chunkBytes := max(sc.ChunkBytes-sc.ChunkBytes%align, align)
	buf := make([]byte, chunkBytes)

	var read int
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, rerr := io.ReadFull(src, buf)
		n -= n % align
		if n > 0 {
			packets, werr := enc.Write(ctx, audio.AudioFrame{
				Data:       buf[:n],
				SampleRate: src.format.SampleRate,
				Channels:   src.format.Channels,
				PTS:        audio.At(src.format.Duration(read)),
			})
			if eerr := emit(packets); eerr != nil {
				return eerr
			}
			if werr != nil {
				return werr
			}
			a.metrics.RecordPCMBytes(ctx, sc.Name, string(sc.Mode), n)
			read += n
		}
		if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
			break
		}
		if rerr != nil {
			return fmt.Errorf("read input: %w", rerr)
		}
	}

	packets, err := enc.Flush(ctx)
	if eerr := emit(packets); eerr != nil {
		return eerr
	}
	if err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	log.Info("stream finished",
		"pcm_bytes", read,
		"input_duration", src.format.Duration(read),
		"packets", written,
	)
	return nil
}

// ─── Decode ──────────────────────────────────────────────────────────────────

// decodeFile reads RTP packets from sc.Input, decodes them and writes the
// PCM to a WAV file. Malformed packets are logged and skipped. Forward jumps
// in the packet timeline larger than [framer.DriftEpsilon] are filled with
// silence so the WAV keeps the original timing.
func (a *App) decodeFile(ctx context.Context, sc config.StreamConfig, log *slog.Logger) (err error) {
	params, err := a.cfg.Codec.Params(sc.Format())
	if err != nil {
		return err
	}
	format := params.Format

	in, err := os.Open(sc.Input)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer in.Close()
	r := rtpfile.NewReader(bufio.NewReader(in))

	dec, err := stream.NewDecoder(a.codec, params, a.stageOptions(sc, log)...)
	if err != nil {
		return err
	}
	defer dec.Close()

	w, err := wavio.Create(sc.Output, format)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close output: %w", cerr)
		}
	}()

	var (
		origin    audio.PTS
		pos       time.Duration // audio written so far
		decoded   int
		malformed int
		gaps      time.Duration
	)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, pts, rerr := r.ReadPacket()
		if errors.Is(rerr, io.EOF) {
			break
		}
		if errors.Is(rerr, rtpfile.ErrTruncated) {
			log.Warn("input ends inside a packet; stopping", "err", rerr)
			break
		}
		if rerr != nil {
			return fmt.Errorf("read packet: %w", rerr)
		}

		frame, derr := dec.Decode(ctx, payload, pts)
		if errors.Is(derr, opus.ErrMalformedPacket) {
			malformed++
			log.Warn("skipping malformed packet", "seq", r.LastSequence(), "err", derr)
			continue
		}
		if derr != nil {
			return derr
		}

		if !origin.Valid {
			origin = frame.PTS
		}
		if off, ok := frame.PTS.Sub(origin); ok && off-pos > framer.DriftEpsilon {
			gap := off - pos
			if err := w.Write(make([]byte, format.FrameBytes(gap))); err != nil {
				return err
			}
			log.Debug("filled timeline gap with silence", "at", pos, "gap", gap)
			pos += format.Duration(format.FrameBytes(gap))
			gaps += gap
		}

		if err := w.Write(frame.Data); err != nil {
			return err
		}
		pos += format.Duration(len(frame.Data))
		decoded++
		a.metrics.RecordPCMBytes(ctx, sc.Name, string(sc.Mode), len(frame.Data))
	}

	log.Info("stream finished",
		"packets", decoded,
		"malformed", malformed,
		"output_duration", pos,
		"silence_filled", gaps,
	)
	return nil
}
