// Package gopus implements [opus.Codec] on top of layeh.com/gopus, a cgo
// binding to libopus.
package gopus

import (
	"fmt"
	"log/slog"
	"sync"

	"layeh.com/gopus"

	"github.com/MrWong99/opusframe/pkg/audio"
	"github.com/MrWong99/opusframe/pkg/opus"
)

// Name is the registry name of this backend.
const Name = "gopus"

// Compile-time interface assertions.
var (
	_ opus.Codec   = (*Codec)(nil)
	_ opus.Encoder = (*encoder)(nil)
	_ opus.Decoder = (*decoder)(nil)
)

// Codec creates gopus encoder and decoder handles. The zero value is ready
// to use.
type Codec struct {
	signalOnce sync.Once
}

// New returns a gopus-backed codec.
func New() *Codec {
	return &Codec{}
}

// NewEncoder implements [opus.Codec].
func (c *Codec) NewEncoder(p opus.Params) (opus.Encoder, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("gopus: create encoder: %w", err)
	}
	enc, err := gopus.NewEncoder(p.Format.SampleRate, p.Format.Channels, application(p.Application))
	if err != nil {
		return nil, fmt.Errorf("gopus: create encoder: %w", err)
	}
	if p.Bitrate != 0 {
		enc.SetBitrate(p.Bitrate)
	}
	if p.Signal != opus.SignalAuto {
		c.signalOnce.Do(func() {
			slog.Debug("gopus: signal hint not supported by binding, ignoring", "signal", p.Signal.String())
		})
	}
	return &encoder{enc: enc, format: p.Format}, nil
}

// NewDecoder implements [opus.Codec].
func (c *Codec) NewDecoder(p opus.Params) (opus.Decoder, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("gopus: create decoder: %w", err)
	}
	dec, err := gopus.NewDecoder(p.Format.SampleRate, p.Format.Channels)
	if err != nil {
		return nil, fmt.Errorf("gopus: create decoder: %w", err)
	}
	return &decoder{dec: dec, format: p.Format}, nil
}

func application(a opus.Application) gopus.Application {
	switch a {
	case opus.ApplicationVoIP:
		return gopus.Voip
	case opus.ApplicationLowDelay:
		return gopus.RestrictedLowDelay
	default:
		return gopus.Audio
	}
}

// encoder wraps a gopus encoder for a single stream. The binding frees the
// native state via a finalizer, so Close only invalidates the handle.
type encoder struct {
	enc    *gopus.Encoder
	format audio.Format
}

// Encode implements [opus.Encoder].
func (e *encoder) Encode(frame []byte, frameSamples int) ([]byte, error) {
	if e.enc == nil {
		return nil, fmt.Errorf("gopus: encode: %w", opus.ErrClosed)
	}
	if want := frameSamples * e.format.BlockAlign(); len(frame) != want {
		return nil, fmt.Errorf("gopus: encode: frame is %d bytes, want %d", len(frame), want)
	}
	packet, err := e.enc.Encode(audio.BytesToInt16s(frame), frameSamples, opus.MaxPacketBytes)
	if err != nil {
		return nil, fmt.Errorf("gopus: encode: %w", err)
	}
	return packet, nil
}

// Close implements [opus.Encoder].
func (e *encoder) Close() error {
	e.enc = nil
	return nil
}

// decoder wraps a gopus decoder. Each stream gets its own decoder to keep
// decoder state correct across consecutive packets.
type decoder struct {
	dec    *gopus.Decoder
	format audio.Format
}

// Decode implements [opus.Decoder].
func (d *decoder) Decode(packet []byte) ([]byte, error) {
	if d.dec == nil {
		return nil, fmt.Errorf("gopus: decode: %w", opus.ErrClosed)
	}
	pcm, err := d.dec.Decode(packet, opus.MaxFrameSamples, false)
	if err != nil {
		return nil, fmt.Errorf("gopus: decode: %w", err)
	}
	return audio.Int16sToBytes(pcm), nil
}

// Close implements [opus.Decoder].
func (d *decoder) Close() error {
	d.dec = nil
	return nil
}
