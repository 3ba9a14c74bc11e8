package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/opusframe/pkg/audio"
	"github.com/MrWong99/opusframe/pkg/opus"
	"github.com/MrWong99/opusframe/pkg/opus/mock"
)

var errTest = errors.New("test error")

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestBreaker(clock *fakeClock) *Breaker {
	return NewBreaker(BreakerConfig{Name: "test", MaxFailures: 2, Cooldown: time.Second, Now: clock.Now})
}

func fail() error { return errTest }
func ok() error   { return nil }

// ─── Breaker ─────────────────────────────────────────────────────────────────

func TestNewBreaker_Defaults(t *testing.T) {
	t.Parallel()
	b := NewBreaker(BreakerConfig{Name: "x"})
	if b.maxFailures != 3 || b.cooldown != 10*time.Second {
		t.Errorf("defaults = %d, %v", b.maxFailures, b.cooldown)
	}
	if b.State() != StateClosed || b.Name() != "x" {
		t.Errorf("state = %v, name = %q", b.State(), b.Name())
	}
}

func TestBreaker_Lifecycle(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{t: time.Unix(0, 0)}
	b := newTestBreaker(clock)

	// A success between failures resets the count.
	_ = b.Do(fail)
	_ = b.Do(ok)
	_ = b.Do(fail)
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed", b.State())
	}

	_ = b.Do(fail)
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
	called := false
	if err := b.Do(func() error { called = true; return nil }); !errors.Is(err, ErrCircuitOpen) || called {
		t.Fatalf("err = %v, called = %v; want ErrCircuitOpen without call", err, called)
	}

	// A failed trial call re-opens immediately.
	clock.Advance(time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open", b.State())
	}
	if err := b.Do(fail); !errors.Is(err, errTest) {
		t.Fatalf("trial call err = %v", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open after failed trial call", b.State())
	}

	// A successful trial call closes.
	clock.Advance(time.Second)
	if err := b.Do(ok); err != nil {
		t.Fatalf("trial call err = %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed", b.State())
	}
}

func TestBreaker_SingleTrialCall(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{t: time.Unix(0, 0)}
	b := newTestBreaker(clock)
	_ = b.Do(fail)
	_ = b.Do(fail)
	clock.Advance(time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- b.Do(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	if err := b.Do(ok); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("concurrent trial call err = %v, want ErrCircuitOpen", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("trial call err = %v", err)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	for s, want := range map[State]string{StateClosed: "closed", StateOpen: "open", StateHalfOpen: "half-open", State(9): "unknown"} {
		if got := s.String(); got != want {
			t.Errorf("State(%d) = %q, want %q", s, got, want)
		}
	}
}

// ─── Group ───────────────────────────────────────────────────────────────────

func TestCall(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		failing   map[string]bool
		want      string
		wantErr   bool
		wantTried []string
	}{
		{name: "primary", want: "a", wantTried: []string{"a"}},
		{name: "fallback", failing: map[string]bool{"a": true}, want: "b", wantTried: []string{"a", "b"}},
		{name: "all fail", failing: map[string]bool{"a": true, "b": true, "c": true}, wantErr: true, wantTried: []string{"a", "b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := NewGroup("a", "a", BreakerConfig{MaxFailures: 5})
			g.Add("b", "b")
			g.Add("c", "c")

			var tried []string
			got, err := Call(g, func(v string) (string, error) {
				tried = append(tried, v)
				if tt.failing[v] {
					return "", errTest
				}
				return v, nil
			})
			if tt.wantErr {
				if !errors.Is(err, ErrAllFailed) || !errors.Is(err, errTest) {
					t.Fatalf("err = %v, want ErrAllFailed wrapping errTest", err)
				}
			} else if err != nil || got != tt.want {
				t.Fatalf("got %q, %v; want %q", got, err, tt.want)
			}
			if len(tried) != len(tt.wantTried) {
				t.Errorf("tried = %v, want %v", tried, tt.wantTried)
			}
		})
	}
}

func TestCall_SkipsOpenBreaker(t *testing.T) {
	t.Parallel()
	g := NewGroup("a", "a", BreakerConfig{MaxFailures: 1, Cooldown: time.Hour})
	g.Add("b", "b")

	calls := map[string]int{}
	fn := func(v string) (string, error) {
		calls[v]++
		if v == "a" {
			return "", errTest
		}
		return v, nil
	}
	for range 3 {
		if got, err := Call(g, fn); err != nil || got != "b" {
			t.Fatalf("got %q, %v", got, err)
		}
	}
	if calls["a"] != 1 || calls["b"] != 3 {
		t.Errorf("calls = %v, want primary tried once", calls)
	}
	if s := g.States(); s["a"] != StateOpen || s["b"] != StateClosed {
		t.Errorf("states = %v", s)
	}
	if names := g.Names(); len(names) != 2 || names[0] != "a" {
		t.Errorf("names = %v", names)
	}
}

// ─── CodecFallback ───────────────────────────────────────────────────────────

func TestCodecFallback(t *testing.T) {
	t.Parallel()
	p := opus.Params{Format: audio.Format{SampleRate: 48000, Channels: 1}, Application: opus.ApplicationVoIP}

	primary := &mock.Codec{NewEncoderErr: errTest, Decoder: &mock.Decoder{}}
	secondary := &mock.Codec{Encoder: &mock.Encoder{TOC: 0xF8}}
	c := NewCodecFallback("hraban", primary, BreakerConfig{})
	c.Add("gopus", secondary)

	enc, err := c.NewEncoder(p)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	if enc != secondary.Encoder {
		t.Error("encoder not served by fallback")
	}
	dec, err := c.NewDecoder(p)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	if dec != primary.Decoder {
		t.Error("decoder not served by primary")
	}
	if b := c.Backends(); len(b) != 2 || b[1] != "gopus" {
		t.Errorf("backends = %v", b)
	}
	if s := c.States(); s["hraban"] != StateClosed {
		t.Errorf("one failure should not open the breaker: %v", s)
	}
}

func TestCodecFallback_InvalidParams(t *testing.T) {
	t.Parallel()
	primary := &mock.Codec{}
	c := NewCodecFallback("a", primary, BreakerConfig{})

	bad := opus.Params{Format: audio.Format{SampleRate: 44100, Channels: 1}}
	if _, err := c.NewEncoder(bad); !errors.Is(err, opus.ErrInvalidParameter) {
		t.Fatalf("err = %v, want ErrInvalidParameter", err)
	}
	if _, err := c.NewDecoder(bad); !errors.Is(err, opus.ErrInvalidParameter) {
		t.Fatalf("err = %v, want ErrInvalidParameter", err)
	}
	if len(primary.EncoderParams) != 0 || len(primary.DecoderParams) != 0 {
		t.Error("backend consulted for invalid params")
	}
}

func TestCodecFallback_Check(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{t: time.Unix(0, 0)}
	cfg := BreakerConfig{MaxFailures: 1, Cooldown: time.Second, Now: clock.Now}
	p := opus.Params{Format: audio.Format{SampleRate: 48000, Channels: 1}, Application: opus.ApplicationVoIP}

	c := NewCodecFallback("hraban", &mock.Codec{NewEncoderErr: errTest}, cfg)
	c.Add("gopus", &mock.Codec{NewEncoderErr: errTest})
	ctx := context.Background()

	if err := c.Check(ctx); err != nil {
		t.Fatalf("fresh fallback: %v", err)
	}
	if _, err := c.NewEncoder(p); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("NewEncoder err = %v, want ErrAllFailed", err)
	}

	err := c.Check(ctx)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("all open: err = %v, want ErrCircuitOpen", err)
	}
	for _, want := range []string{"hraban=open", "gopus=open"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should contain %q", err, want)
		}
	}

	clock.Advance(time.Second)
	if err := c.Check(ctx); err != nil {
		t.Errorf("after cool-down: %v", err)
	}
}
