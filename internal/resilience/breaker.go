// Package resilience provides a circuit breaker and ordered failover across
// interchangeable codec backends.
//
// [Breaker] is a three-state breaker (closed, open, half-open) guarding one
// backend. [Group] orders several backends with one breaker each and routes
// calls to the first healthy one. [CodecFallback] applies a Group to
// [opus.Codec] handle construction.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [Breaker.Do] while the breaker is open.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the cool-down
	// has elapsed.
	StateOpen

	// StateHalfOpen lets a single probe call through. Its outcome closes or
	// re-opens the breaker.
	StateHalfOpen
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// BreakerConfig tunes a [Breaker].
type BreakerConfig struct {
	// Name labels log lines.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 3.
	MaxFailures int

	// Cooldown is how long the breaker stays open before admitting a probe.
	// Default: 10s.
	Cooldown time.Duration

	// Now is the clock. Default: time.Now.
	Now func() time.Time
}

// Breaker is a circuit breaker around one backend.
type Breaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker returns a closed breaker. Zero config fields take defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{
		name:        cfg.Name,
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		now:         cfg.Now,
	}
}

// Do runs fn unless the breaker is open. While half-open only one caller at
// a time is admitted; concurrent callers get [ErrCircuitOpen].
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		b.state = StateHalfOpen
		slog.Info("resilience: breaker half-open", "name", b.name)
	}
	switch {
	case b.state == StateOpen, b.state == StateHalfOpen && b.probing:
		b.mu.Unlock()
		return ErrCircuitOpen
	case b.state == StateHalfOpen:
		b.probing = true
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
	if err == nil {
		if b.state != StateClosed {
			slog.Info("resilience: breaker closed", "name", b.name)
		}
		b.state = StateClosed
		b.failures = 0
		return nil
	}

	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.maxFailures {
		if b.state != StateOpen {
			slog.Warn("resilience: breaker opened", "name", b.name, "failures", b.failures, "err", err)
		}
		b.state = StateOpen
		b.openedAt = b.now()
	}
	return err
}

// State returns the breaker's current state. An open breaker whose
// cool-down has elapsed reports [StateHalfOpen].
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Name returns the label the breaker was configured with.
func (b *Breaker) Name() string { return b.name }
