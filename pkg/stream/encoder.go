package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/MrWong99/opusframe/pkg/audio"
	"github.com/MrWong99/opusframe/pkg/framer"
	"github.com/MrWong99/opusframe/pkg/opus"
)

// Encoder turns raw PCM chunks into Opus packets.
type Encoder struct {
	opts   options
	params opus.Params
	enc    opus.Encoder
	acc    *framer.Accumulator
	conv   audio.FormatConverter
	closed bool
}

// NewEncoder validates p, creates a native encoder handle from codec and a
// 20 ms accumulator for p.Format. Invalid parameters are fatal: no handle or
// accumulator is created.
func NewEncoder(codec opus.Codec, p opus.Params, opts ...Option) (*Encoder, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("stream: new encoder: %w", err)
	}
	o := buildOptions(opts)

	acc, err := framer.New(p.Format, framer.WithReporter(o.reporter))
	if err != nil {
		return nil, fmt.Errorf("stream: new encoder: %w", err)
	}
	enc, err := codec.NewEncoder(p)
	if err != nil {
		return nil, fmt.Errorf("stream: new encoder: %w", err)
	}

	o.logger.Debug("stream: encoder ready",
		"stream", o.name,
		"format", p.Format.String(),
		"application", p.Application.String(),
		"bitrate", p.Bitrate,
		"frame_bytes", acc.FrameBytes(),
	)
	return &Encoder{
		opts:   o,
		params: p,
		enc:    enc,
		acc:    acc,
		conv:   audio.FormatConverter{Target: p.Format},
	}, nil
}

// Write submits one chunk and returns the packets that became complete.
//
// Chunks in a different format are converted to the stage format unless the
// stage was built with [WithStrictFormat]. A chunk without format fields is
// taken to be in the stage format.
//
// When bytes were already pending and the chunk carries a timestamp, the
// position the running timeline assigns to the chunk's first byte is
// compared with that timestamp via [framer.CheckPTS]. Warnings go to the
// configured reporter and never change the output.
//
// The check is one-sided. A contiguous stream compares equal, a chunk
// stamped up to [framer.DriftEpsilon] earlier than that position passes, and
// a chunk stamped even 1ns later is reported as [framer.DriftOverlap]. Hosts
// with jittery clocks should stamp chunks from the byte count they have
// delivered rather than from wall-clock arrival time. Rate conversion keeps
// this exact: converted chunks carry the timestamp of their first output
// sample.
func (e *Encoder) Write(ctx context.Context, chunk audio.AudioFrame) ([]Packet, error) {
	if e.closed {
		return nil, fmt.Errorf("stream: write: %w", opus.ErrClosed)
	}
	if chunk.SampleRate == 0 && chunk.Channels == 0 {
		chunk.SampleRate, chunk.Channels = e.params.Format.SampleRate, e.params.Format.Channels
	}
	if e.opts.strictFormat {
		if err := e.acc.CheckFormat(chunk.Format()); err != nil {
			return nil, fmt.Errorf("stream: write: %w", err)
		}
	} else {
		chunk = e.conv.Convert(chunk)
	}

	pending := e.acc.Pending()
	expected := e.acc.Cursor().Add(e.acc.Format().Duration(pending))

	frames := e.acc.Submit(chunk.Data, chunk.PTS)
	if pending > 0 && len(frames) > 0 {
		if w := framer.CheckPTS(expected, chunk.PTS); w != nil {
			e.opts.reporter.ReportDrift(w)
		}
	}
	return e.encode(ctx, frames)
}

// Flush zero-pads and encodes any pending bytes. Call it once at end of
// stream.
func (e *Encoder) Flush(ctx context.Context) ([]Packet, error) {
	if e.closed {
		return nil, fmt.Errorf("stream: flush: %w", opus.ErrClosed)
	}
	frame, ok := e.acc.Flush()
	if !ok {
		return nil, nil
	}
	e.opts.logger.Debug("stream: flushing padded frame",
		"stream", e.opts.name,
		"pts", frame.PTS.String(),
		"padding", frame.Padding,
	)
	return e.encode(ctx, []framer.Frame{frame})
}

func (e *Encoder) encode(ctx context.Context, frames []framer.Frame) ([]Packet, error) {
	if len(frames) == 0 {
		return nil, nil
	}
	samples := e.acc.FrameSamples()
	packets := make([]Packet, 0, len(frames))
	for _, f := range frames {
		start := time.Now()
		data, err := e.enc.Encode(f.Data, samples)
		e.opts.metrics.RecordCodecDuration(ctx, "encode", time.Since(start))
		if err != nil {
			return packets, fmt.Errorf("stream: encode frame at %s: %w", f.PTS, err)
		}
		e.opts.metrics.RecordFrameEncoded(ctx, e.opts.name, f.Padding > 0)
		packets = append(packets, Packet{Data: data, PTS: f.PTS, Duration: f.Duration})
	}
	return packets, nil
}

// Pending returns the number of PCM bytes waiting for a full frame.
func (e *Encoder) Pending() int { return e.acc.Pending() }

// Params returns the parameters the stage was built with.
func (e *Encoder) Params() opus.Params { return e.params }

// Close releases the native handle. Pending bytes are discarded; call Flush
// first to keep them.
func (e *Encoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	if n := e.acc.Pending(); n > 0 {
		e.opts.logger.Warn("stream: closing encoder with unflushed bytes", "stream", e.opts.name, "pending", n)
	}
	if err := e.enc.Close(); err != nil {
		return fmt.Errorf("stream: close encoder: %w", err)
	}
	return nil
}
