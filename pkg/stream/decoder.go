package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/opusframe/pkg/audio"
	"github.com/MrWong99/opusframe/pkg/opus"
)

// Decoder turns Opus packets back into PCM.
type Decoder struct {
	opts   options
	params opus.Params
	dec    opus.Decoder
	cursor audio.PTS
	closed bool

	warnChannels sync.Once
}

// NewDecoder validates p and creates a native decoder handle producing PCM in
// p.Format.
func NewDecoder(codec opus.Codec, p opus.Params, opts ...Option) (*Decoder, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("stream: new decoder: %w", err)
	}
	o := buildOptions(opts)
	dec, err := codec.NewDecoder(p)
	if err != nil {
		return nil, fmt.Errorf("stream: new decoder: %w", err)
	}
	return &Decoder{opts: o, params: p, dec: dec}, nil
}

// Decode parses the packet header and decodes one packet.
//
// A packet whose header cannot be parsed returns an error wrapping
// [opus.ErrMalformedPacket]; the stage stays usable for the next packet.
// The returned frame carries pts when known, otherwise the running cursor
// advanced by the duration of previously decoded audio.
func (d *Decoder) Decode(ctx context.Context, packet []byte, pts audio.PTS) (audio.AudioFrame, error) {
	if d.closed {
		return audio.AudioFrame{}, fmt.Errorf("stream: decode: %w", opus.ErrClosed)
	}
	info, err := opus.Describe(packet)
	if err != nil {
		d.opts.metrics.RecordMalformedPacket(ctx, d.opts.name)
		return audio.AudioFrame{}, fmt.Errorf("stream: decode: %w", err)
	}
	if info.Channels() != d.params.Format.Channels {
		d.warnChannels.Do(func() {
			d.opts.logger.Warn("stream: packet channel count differs from output format",
				"stream", d.opts.name,
				"packet_channels", info.Channels(),
				"output_channels", d.params.Format.Channels,
			)
		})
	}
	if pts.Valid {
		d.cursor = pts
	}

	start := time.Now()
	pcm, err := d.dec.Decode(packet)
	d.opts.metrics.RecordCodecDuration(ctx, "decode", time.Since(start))
	if err != nil {
		return audio.AudioFrame{}, fmt.Errorf("stream: decode %s: %w", info.Mode, err)
	}

	frame := audio.AudioFrame{
		Data:       pcm,
		SampleRate: d.params.Format.SampleRate,
		Channels:   d.params.Format.Channels,
		PTS:        d.cursor,
	}
	d.cursor = d.cursor.Add(d.params.Format.Duration(len(pcm)))
	d.opts.metrics.RecordPacketDecoded(ctx, d.opts.name)
	return frame, nil
}

// Cursor returns the timestamp the next packet without its own will get.
func (d *Decoder) Cursor() audio.PTS { return d.cursor }

// Params returns the parameters the stage was built with.
func (d *Decoder) Params() opus.Params { return d.params }

// Close releases the native handle.
func (d *Decoder) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if err := d.dec.Close(); err != nil {
		return fmt.Errorf("stream: close decoder: %w", err)
	}
	return nil
}
