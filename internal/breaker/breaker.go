// Package breaker implements the per-dependency circuit breaker (spec §4.6,
// C11), adapted from the teacher's infrastructure/resilience circuit
// breaker: same closed/open/half-open state machine, specialized to
// reject before the oracle gateway acquires a semaphore slot and to a
// named-provider registry since multiple external-tool providers each
// need independent state.
package breaker

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is one of the three circuit breaker states.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned by Allow when the breaker is open.
var ErrOpen = errors.New("circuit breaker is open")

// Config tunes one breaker instance.
type Config struct {
	FailureThreshold int           // consecutive failures before opening (default 3)
	ResetTime        time.Duration // time in open state before a probe is allowed (default 300s)
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.ResetTime <= 0 {
		c.ResetTime = 300 * time.Second
	}
	return c
}

// breakerState is one named dependency's state machine.
type breakerState struct {
	mu          sync.Mutex
	cfg         Config
	state       State
	failures    int
	lastFailure time.Time
}

// Registry holds one breaker per named external-tool provider. Unknown
// providers pass through with no breaker at all (forward-compatible, per
// spec §4.6).
type Registry struct {
	mu       sync.Mutex
	cfg      Config
	breakers map[string]*breakerState
	log      *zap.SugaredLogger
}

// NewRegistry creates a Registry applying cfg's defaults to every provider
// created on first use.
func NewRegistry(cfg Config, log *zap.SugaredLogger) *Registry {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Registry{
		cfg:      cfg.withDefaults(),
		breakers: make(map[string]*breakerState),
		log:      log,
	}
}

func (r *Registry) get(provider string) *breakerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[provider]
	if !ok {
		b = &breakerState{cfg: r.cfg, state: StateClosed}
		r.breakers[provider] = b
	}
	return b
}

// Allow checks whether a call to provider may proceed, transitioning
// open -> half-open when ResetTime has elapsed. It must be called before
// acquiring the oracle's concurrency semaphore so an open breaker never
// wastes a slot (spec §4.6, invariant 10).
func (r *Registry) Allow(provider string) error {
	b := r.get(provider)
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if time.Since(b.lastFailure) > b.cfg.ResetTime {
			r.transition(provider, b, StateHalfOpen)
			return nil
		}
		return ErrOpen
	default:
		return nil
	}
}

// RecordSuccess reports a successful call to provider.
func (r *Registry) RecordSuccess(provider string) {
	b := r.get(provider)
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		r.transition(provider, b, StateClosed)
	case StateClosed:
		b.failures = 0
	}
}

// RecordFailure reports a failed call to provider, potentially opening
// the breaker.
func (r *Registry) RecordFailure(provider string) {
	b := r.get(provider)
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = time.Now()

	switch b.state {
	case StateHalfOpen:
		r.transition(provider, b, StateOpen)
	case StateClosed:
		if b.failures >= b.cfg.FailureThreshold {
			r.transition(provider, b, StateOpen)
		}
	}
}

// State returns the current state of provider's breaker (closed if the
// provider has never been seen).
func (r *Registry) State(provider string) State {
	b := r.get(provider)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// transition must be called with b.mu held.
func (r *Registry) transition(provider string, b *breakerState, to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.failures = 0
	r.log.Infow("circuit breaker transition", "provider", provider, "from", from.String(), "to", to.String())
}
