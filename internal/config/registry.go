package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/opusframe/pkg/opus"
)

// ErrCodecNotRegistered is returned by [Registry.CreateCodec] when no factory
// has been registered under the requested backend name.
var ErrCodecNotRegistered = errors.New("config: codec backend not registered")

// Registry maps codec backend names to their constructor functions.
// It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	codecs map[string]func(CodecConfig) (opus.Codec, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		codecs: make(map[string]func(CodecConfig) (opus.Codec, error)),
	}
}

// RegisterCodec registers a codec backend factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterCodec(name string, factory func(CodecConfig) (opus.Codec, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[name] = factory
}

// CreateCodec instantiates the backend registered under cfg.Backend.
// Returns [ErrCodecNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateCodec(cfg CodecConfig) (opus.Codec, error) {
	r.mu.RLock()
	factory, ok := r.codecs[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrCodecNotRegistered, cfg.Backend, r.Names())
	}
	return factory(cfg)
}

// Names returns the registered backend names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.codecs))
	for name := range r.codecs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
