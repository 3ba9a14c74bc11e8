package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every member of a [Group] failed or had an
// open breaker.
var ErrAllFailed = errors.New("resilience: all backends failed")

type member[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Group is an ordered list of interchangeable backends, each behind its own
// [Breaker]. The first member is the primary.
type Group[T any] struct {
	cfg     BreakerConfig
	members []member[T]
}

// NewGroup creates a group with primary as its first member. cfg is the
// template for every member's breaker; its Name is replaced by the member name.
func NewGroup[T any](name string, primary T, cfg BreakerConfig) *Group[T] {
	g := &Group[T]{cfg: cfg}
	g.Add(name, primary)
	return g
}

// Add appends a fallback member. Members are tried in the order added.
func (g *Group[T]) Add(name string, value T) {
	cfg := g.cfg
	cfg.Name = name
	g.members = append(g.members, member[T]{name: name, value: value, breaker: NewBreaker(cfg)})
}

// Names returns the member names in order.
func (g *Group[T]) Names() []string {
	names := make([]string, len(g.members))
	for i, m := range g.members {
		names[i] = m.name
	}
	return names
}

// States returns each member's breaker state keyed by member name.
func (g *Group[T]) States() map[string]State {
	states := make(map[string]State, len(g.members))
	for _, m := range g.members {
		states[m.name] = m.breaker.State()
	}
	return states
}

// Call runs fn against members in order until one succeeds and returns its
// result. Members with an open breaker are skipped. When all fail, the error
// wraps [ErrAllFailed] and every member's error.
func Call[T, R any](g *Group[T], fn func(T) (R, error)) (R, error) {
	var (
		zero R
		errs []error
	)
	for i := range g.members {
		m := &g.members[i]
		var res R
		err := m.breaker.Do(func() error {
			var err error
			res, err = fn(m.value)
			return err
		})
		if err == nil {
			if i > 0 {
				slog.Debug("resilience: served by fallback", "backend", m.name)
			}
			return res, nil
		}
		if !errors.Is(err, ErrCircuitOpen) {
			slog.Warn("resilience: backend failed, trying next", "backend", m.name, "err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", m.name, err))
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
