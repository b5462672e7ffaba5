// Package resilience provides fault tolerance patterns for external service calls.
package resilience

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitState mirrors gobreaker's state enum under the teacher's naming,
// so callers that already match on Closed/Open/HalfOpen don't change.
type CircuitState int32

const (
	StateClosed CircuitState = iota
	StateHalfOpen
	StateOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func fromGobreakerState(s gobreaker.State) CircuitState {
	switch s {
	case gobreaker.StateClosed:
		return StateClosed
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateClosed
	}
}

// ErrCircuitOpen is returned whenever gobreaker trips the circuit
// and refuses a call outright.
var ErrCircuitOpen = gobreaker.ErrOpenState

// ErrTooManyRequest is returned when the half-open probe quota is exhausted.
var ErrTooManyRequest = gobreaker.ErrTooManyRequests

// CircuitBreakerConfig holds configuration for a circuit breaker, kept in
// the teacher's field shape (Name/FailureThreshold/SuccessThreshold/Timeout)
// and translated into gobreaker.Settings underneath.
type CircuitBreakerConfig struct {
	Name               string        // Name for logging/metrics
	FailureThreshold   int           // consecutive failures before opening
	SuccessThreshold   uint32        // not applied: gobreaker closes after MaxHalfOpenRequest consecutive half-open successes
	Timeout            time.Duration // time open before probing half-open
	MaxHalfOpenRequest uint32        // max concurrent probes in half-open
}

func DefaultCircuitBreakerConfig(name string) *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:               name,
		FailureThreshold:   5,
		SuccessThreshold:   2,
		Timeout:            30 * time.Second,
		MaxHalfOpenRequest: 1,
	}
}

// CircuitBreaker wraps sony/gobreaker with the teacher's narrower
// Execute/State/Stats surface, so call sites written against the
// hand-rolled version port over unchanged.
type CircuitBreaker struct {
	name string
	cb   *gobreaker.CircuitBreaker

	onStateChange func(name string, from, to CircuitState)
}

func NewCircuitBreaker(cfg *CircuitBreakerConfig) *CircuitBreaker {
	if cfg == nil {
		cfg = DefaultCircuitBreakerConfig("default")
	}

	c := &CircuitBreaker{name: cfg.Name}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxHalfOpenRequest,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.FailureThreshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if c.onStateChange != nil {
				c.onStateChange(name, fromGobreakerState(from), fromGobreakerState(to))
			}
		},
	}
	c.cb = gobreaker.NewCircuitBreaker(settings)
	return c
}

// OnStateChange sets a callback invoked on every state transition.
func (cb *CircuitBreaker) OnStateChange(fn func(name string, from, to CircuitState)) {
	cb.onStateChange = fn
}

// Name returns the circuit breaker name.
func (cb *CircuitBreaker) Name() string { return cb.name }

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	return fromGobreakerState(cb.cb.State())
}

// Execute runs fn with circuit breaker protection, returning ErrCircuitOpen
// or ErrTooManyRequest without calling fn if the breaker refuses the call.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	_, err := cb.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return err
	}
	return err
}

// Stats returns current circuit breaker statistics.
type CircuitBreakerStats struct {
	Name      string
	State     string
	Failures  int
	Successes int
}

func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	counts := cb.cb.Counts()
	return CircuitBreakerStats{
		Name:      cb.name,
		State:     cb.State().String(),
		Failures:  int(counts.ConsecutiveFailures),
		Successes: int(counts.ConsecutiveSuccesses),
	}
}
