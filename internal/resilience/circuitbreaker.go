// Package resilience keeps Jack responsive while its upstreams misbehave.
//
// The TinRed API and the LLM/STT providers are remote services that can hang
// or fail in bursts. [CircuitBreaker] cuts an upstream off after consecutive
// failures so conversations degrade to a polite error instead of a stalled
// turn. [FallbackGroup] chains alternate providers behind per-entry breakers
// so a dead primary is skipped instead of retried.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker is
// open and the cooldown has not yet elapsed.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call; the upstream is considered healthy.
	StateClosed State = iota

	// StateOpen fails every call fast with [ErrCircuitOpen] until the
	// cooldown elapses.
	StateOpen

	// StateHalfOpen admits a handful of probe calls after the cooldown; their
	// outcome decides between closing and re-opening.
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

// CircuitBreakerConfig tunes a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels the breaker in log lines ("tinred", "llm/openai").
	Name string

	// MaxFailures is how many consecutive failures open the breaker.
	// Default: 5.
	MaxFailures int

	// ResetTimeout is the cooldown before probing resumes. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is how many probe calls are admitted, and how many must
	// succeed to close again. Default: 3.
	HalfOpenMax int
}

// CircuitBreaker is a three-state breaker (closed → open → half-open)
// guarding one upstream.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int

	mu       sync.Mutex
	state    State
	failures int       // consecutive failures while closed
	openedAt time.Time // last failure; gates the open → half-open transition
	probes   int       // calls admitted while half-open
	probeOK  int       // probes that succeeded
}

// NewCircuitBreaker creates a breaker, filling zero config fields with the
// defaults documented on [CircuitBreakerConfig].
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		state:        StateClosed,
	}
}

// Execute runs fn unless the breaker rejects the call, and feeds the outcome
// back into the state machine. The returned error is fn's own error, or
// [ErrCircuitOpen] when fn never ran.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probing, err := cb.admit()
	if err != nil {
		return err
	}
	if err := fn(); err != nil {
		cb.onFailure(probing)
		return err
	}
	cb.onSuccess(probing)
	return nil
}

// admit decides whether the next call may proceed and whether it counts as a
// half-open probe.
func (cb *CircuitBreaker) admit() (probing bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.openedAt) < cb.resetTimeout {
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probes = 0
		cb.probeOK = 0
		slog.Info("resilience: breaker probing after cooldown", "name", cb.name)

	case StateHalfOpen:
		if cb.probes >= cb.halfOpenMax {
			// Probe quota spent; outcome still pending.
			return false, ErrCircuitOpen
		}
	}

	if cb.state == StateHalfOpen {
		cb.probes++
		return true, nil
	}
	return false, nil
}

func (cb *CircuitBreaker) onFailure(probing bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.openedAt = time.Now()

	if probing {
		// One failed probe is enough evidence the upstream is still down.
		cb.state = StateOpen
		cb.failures = cb.maxFailures
		slog.Warn("resilience: probe failed, breaker re-opened", "name", cb.name)
		return
	}

	cb.failures++
	if cb.failures >= cb.maxFailures {
		cb.state = StateOpen
		slog.Warn("resilience: breaker opened", "name", cb.name, "failures", cb.failures)
	}
}

func (cb *CircuitBreaker) onSuccess(probing bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probing {
		cb.probeOK++
		if cb.probeOK >= cb.halfOpenMax {
			cb.state = StateClosed
			cb.failures = 0
			slog.Info("resilience: breaker closed after healthy probes", "name", cb.name)
		}
		return
	}
	cb.failures = 0
}

// State reports the breaker's mode. An open breaker whose cooldown has
// elapsed reports [StateHalfOpen]; the stored state flips on the next
// [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to [StateClosed] and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	cb.probes = 0
	cb.probeOK = 0
	slog.Info("resilience: breaker reset", "name", cb.name)
}
