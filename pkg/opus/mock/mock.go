// Package mock provides in-memory implementations of [opus.Codec],
// [opus.Encoder] and [opus.Decoder] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every call so that tests
// can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	codec := &mock.Codec{
//	    Encoder: &mock.Encoder{TOC: 0xF8},
//	    Decoder: &mock.Decoder{},
//	}
//	st, err := stream.NewEncoder(codec, params)
package mock

import (
	"sync"

	"github.com/MrWong99/opusframe/pkg/opus"
)

// ─── Codec ───────────────────────────────────────────────────────────────────

// Codec is a mock implementation of [opus.Codec].
type Codec struct {
	mu sync.Mutex

	// Encoder is returned by NewEncoder. A fresh [Encoder] is created when nil.
	Encoder *Encoder

	// Decoder is returned by NewDecoder. A fresh [Decoder] is created when nil.
	Decoder *Decoder

	// NewEncoderErr is returned by NewEncoder instead of a handle.
	NewEncoderErr error

	// NewDecoderErr is returned by NewDecoder instead of a handle.
	NewDecoderErr error

	// SkipValidation disables the [opus.Params.Validate] call made by the
	// real backends.
	SkipValidation bool

	// EncoderParams records the Params of every NewEncoder call.
	EncoderParams []opus.Params

	// DecoderParams records the Params of every NewDecoder call.
	DecoderParams []opus.Params
}

// NewEncoder implements [opus.Codec].
func (c *Codec) NewEncoder(p opus.Params) (opus.Encoder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.EncoderParams = append(c.EncoderParams, p)
	if !c.SkipValidation {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	if c.NewEncoderErr != nil {
		return nil, c.NewEncoderErr
	}
	if c.Encoder == nil {
		c.Encoder = &Encoder{}
	}
	return c.Encoder, nil
}

// NewDecoder implements [opus.Codec].
func (c *Codec) NewDecoder(p opus.Params) (opus.Decoder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.DecoderParams = append(c.DecoderParams, p)
	if !c.SkipValidation {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	if c.NewDecoderErr != nil {
		return nil, c.NewDecoderErr
	}
	if c.Decoder == nil {
		c.Decoder = &Decoder{}
	}
	return c.Decoder, nil
}

// ─── Encoder ─────────────────────────────────────────────────────────────────

// EncodeCall records the arguments of a single [Encoder.Encode] invocation.
type EncodeCall struct {
	// Frame is a copy of the PCM frame passed to Encode.
	Frame []byte
	// FrameSamples is the per-channel sample count passed to Encode.
	FrameSamples int
}

// Encoder is a mock implementation of [opus.Encoder]. Each packet it returns
// is the TOC byte followed by the big-endian index of the call, so packets
// are distinct and parseable.
type Encoder struct {
	mu sync.Mutex

	// TOC is the first byte of every returned packet.
	TOC byte

	// EncodeErr is returned by Encode when non-nil.
	EncodeErr error

	// CloseErr is returned by Close.
	CloseErr error

	// EncodeCalls records all Encode invocations.
	EncodeCalls []EncodeCall

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Encode implements [opus.Encoder].
func (e *Encoder) Encode(frame []byte, frameSamples int) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.EncodeCalls = append(e.EncodeCalls, EncodeCall{
		Frame:        append([]byte(nil), frame...),
		FrameSamples: frameSamples,
	})
	if e.EncodeErr != nil {
		return nil, e.EncodeErr
	}
	n := len(e.EncodeCalls) - 1
	return []byte{e.TOC, byte(n >> 8), byte(n)}, nil
}

// Close implements [opus.Encoder].
func (e *Encoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CallCountClose++
	return e.CloseErr
}

// Frames returns copies of every frame passed to Encode, in order.
func (e *Encoder) Frames() [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([][]byte, len(e.EncodeCalls))
	for i, c := range e.EncodeCalls {
		out[i] = c.Frame
	}
	return out
}

// ─── Decoder ─────────────────────────────────────────────────────────────────

// Decoder is a mock implementation of [opus.Decoder].
type Decoder struct {
	mu sync.Mutex

	// PCM is returned by every successful Decode call.
	PCM []byte

	// DecodeErr is returned by Decode when non-nil.
	DecodeErr error

	// CloseErr is returned by Close.
	CloseErr error

	// DecodeCalls records a copy of every packet passed to Decode.
	DecodeCalls [][]byte

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Decode implements [opus.Decoder].
func (d *Decoder) Decode(packet []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.DecodeCalls = append(d.DecodeCalls, append([]byte(nil), packet...))
	if d.DecodeErr != nil {
		return nil, d.DecodeErr
	}
	return append([]byte(nil), d.PCM...), nil
}

// Close implements [opus.Decoder].
func (d *Decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountClose++
	return d.CloseErr
}
