// Package hraban implements [opus.Codec] on top of gopkg.in/hraban/opus.v2.
//
// It is an alternative to the gopus backend for hosts that already link
// libopusfile or want the error-returning setter API of that binding.
package hraban

import (
	"fmt"
	"log/slog"
	"sync"

	hopus "gopkg.in/hraban/opus.v2"

	"github.com/MrWong99/opusframe/pkg/audio"
	"github.com/MrWong99/opusframe/pkg/opus"
)

// Name is the registry name of this backend.
const Name = "hraban"

var (
	_ opus.Codec   = (*Codec)(nil)
	_ opus.Encoder = (*encoder)(nil)
	_ opus.Decoder = (*decoder)(nil)
)

// Codec creates hraban/opus encoder and decoder handles.
type Codec struct {
	signalOnce sync.Once
}

// New returns a hraban-backed codec.
func New() *Codec {
	return &Codec{}
}

// NewEncoder implements [opus.Codec].
func (c *Codec) NewEncoder(p opus.Params) (opus.Encoder, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("hraban: create encoder: %w", err)
	}
	enc, err := hopus.NewEncoder(p.Format.SampleRate, p.Format.Channels, application(p.Application))
	if err != nil {
		return nil, fmt.Errorf("hraban: create encoder: %w", err)
	}
	if p.Bitrate != 0 {
		if err := enc.SetBitrate(p.Bitrate); err != nil {
			return nil, fmt.Errorf("hraban: set bitrate %d: %w", p.Bitrate, err)
		}
	}
	if p.Signal != opus.SignalAuto {
		c.signalOnce.Do(func() {
			slog.Debug("hraban: signal hint not supported by binding, ignoring", "signal", p.Signal.String())
		})
	}
	return &encoder{enc: enc, format: p.Format, buf: make([]byte, opus.MaxPacketBytes)}, nil
}

// NewDecoder implements [opus.Codec].
func (c *Codec) NewDecoder(p opus.Params) (opus.Decoder, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("hraban: create decoder: %w", err)
	}
	dec, err := hopus.NewDecoder(p.Format.SampleRate, p.Format.Channels)
	if err != nil {
		return nil, fmt.Errorf("hraban: create decoder: %w", err)
	}
	return &decoder{
		dec:    dec,
		format: p.Format,
		pcm:    make([]int16, opus.MaxFrameSamples*p.Format.Channels),
	}, nil
}

func application(a opus.Application) hopus.Application {
	switch a {
	case opus.ApplicationVoIP:
		return hopus.AppVoIP
	case opus.ApplicationLowDelay:
		return hopus.AppRestrictedLowdelay
	default:
		return hopus.AppAudio
	}
}

type encoder struct {
	enc    *hopus.Encoder
	format audio.Format
	buf    []byte
}

// Encode implements [opus.Encoder].
func (e *encoder) Encode(frame []byte, frameSamples int) ([]byte, error) {
	if e.enc == nil {
		return nil, fmt.Errorf("hraban: encode: %w", opus.ErrClosed)
	}
	if want := frameSamples * e.format.BlockAlign(); len(frame) != want {
		return nil, fmt.Errorf("hraban: encode: frame is %d bytes, want %d", len(frame), want)
	}
	n, err := e.enc.Encode(audio.BytesToInt16s(frame), e.buf)
	if err != nil {
		return nil, fmt.Errorf("hraban: encode: %w", err)
	}
	packet := make([]byte, n)
	copy(packet, e.buf[:n])
	return packet, nil
}

// Close implements [opus.Encoder].
func (e *encoder) Close() error {
	e.enc = nil
	return nil
}

type decoder struct {
	dec    *hopus.Decoder
	format audio.Format
	pcm    []int16
}

// Decode implements [opus.Decoder].
func (d *decoder) Decode(packet []byte) ([]byte, error) {
	if d.dec == nil {
		return nil, fmt.Errorf("hraban: decode: %w", opus.ErrClosed)
	}
	n, err := d.dec.Decode(packet, d.pcm)
	if err != nil {
		return nil, fmt.Errorf("hraban: decode: %w", err)
	}
	return audio.Int16sToBytes(d.pcm[:n*d.format.Channels]), nil
}

// Close implements [opus.Decoder].
func (d *decoder) Close() error {
	d.dec = nil
	return nil
}
