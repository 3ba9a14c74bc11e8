package resilience

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/opusframe/pkg/opus"
)

// CodecFallback implements [opus.Codec] over a [Group] of backends. Each new
// encoder or decoder comes from the first backend that can build one; the
// handle then stays bound to that backend for its lifetime.
type CodecFallback struct {
	group *Group[opus.Codec]
}

var _ opus.Codec = (*CodecFallback)(nil)

// NewCodecFallback creates a fallback codec with primary as the preferred
// backend.
func NewCodecFallback(name string, primary opus.Codec, cfg BreakerConfig) *CodecFallback {
	return &CodecFallback{group: NewGroup(name, primary, cfg)}
}

// Add registers another backend, tried after those already added.
func (c *CodecFallback) Add(name string, codec opus.Codec) {
	c.group.Add(name, codec)
}

// Backends returns the backend names in order of preference.
func (c *CodecFallback) Backends() []string { return c.group.Names() }

// States reports each backend's breaker state.
func (c *CodecFallback) States() map[string]State { return c.group.States() }

// Check reports whether at least one backend can still be tried. It fails
// with [ErrCircuitOpen] only when every breaker is open, listing each backend
// with its state. Use it as a readiness checker.
func (c *CodecFallback) Check(context.Context) error {
	states := c.States()
	report := make([]string, 0, len(states))
	for _, name := range c.Backends() {
		if states[name] != StateOpen {
			return nil
		}
		report = append(report, name+"="+states[name].String())
	}
	return fmt.Errorf("codec backends unavailable (%s): %w", strings.Join(report, ", "), ErrCircuitOpen)
}

// NewEncoder implements [opus.Codec]. Invalid parameters fail fast without
// consulting other backends or tripping breakers.
func (c *CodecFallback) NewEncoder(p opus.Params) (opus.Encoder, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return Call(c.group, func(codec opus.Codec) (opus.Encoder, error) {
		return codec.NewEncoder(p)
	})
}

// NewDecoder implements [opus.Codec].
func (c *CodecFallback) NewDecoder(p opus.Params) (opus.Decoder, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return Call(c.group, func(codec opus.Codec) (opus.Decoder, error) {
		return codec.NewDecoder(p)
	})
}
