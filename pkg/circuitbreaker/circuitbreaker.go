// Package circuitbreaker implements the per-dependency circuit breaker
// (C2): CLOSED/OPEN/HALF_OPEN state machine with geometric timeout growth,
// plus a process-scoped Registry indexed by name.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/xksnk/selfology-core/pkg/shared/errors"
)

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Config controls one breaker's thresholds and timeout growth.
type Config struct {
	Name              string
	FailureThreshold  int           // consecutive failures in CLOSED before opening
	Timeout           time.Duration // base HALF_OPEN probation delay
	SuccessThreshold  int           // consecutive HALF_OPEN successes before closing
	TimeoutMultiplier float64       // geometric growth factor per OPEN transition
	MaxTimeout        time.Duration
	// IsFailure classifies a call error as counting against the breaker.
	// A nil func counts every non-nil error.
	IsFailure func(err error) bool
}

func DefaultConfig(name string) Config {
	return Config{
		Name:              name,
		FailureThreshold:  5,
		Timeout:           60 * time.Second,
		SuccessThreshold:  1,
		TimeoutMultiplier: 2.0,
		MaxTimeout:        300 * time.Second,
	}
}

// Stats are the cumulative counters exposed alongside state.
type Stats struct {
	TotalCalls       int64
	SuccessfulCalls  int64
	FailedCalls      int64
	RejectedCalls    int64
	StateChanges     int64
	LastStateChange  time.Time
}

// CircuitBreaker is a single named dependency's state machine. Safe for
// concurrent use.
type CircuitBreaker struct {
	config Config

	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	openedAt        time.Time
	currentTimeout  time.Duration
	stats           Stats
}

func New(config Config) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	if config.TimeoutMultiplier <= 1.0 {
		config.TimeoutMultiplier = 2.0
	}
	return &CircuitBreaker{
		config:         config,
		state:          StateClosed,
		currentTimeout: config.Timeout,
	}
}

func (cb *CircuitBreaker) Name() string { return cb.config.Name }

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stats
}

// Call executes fn if the breaker admits the call, records the outcome,
// and returns a capacity error (Kind=KindCapacity) without invoking fn when
// the breaker is OPEN and its timeout has not elapsed.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}

	err := fn()
	if err == nil {
		cb.onSuccess()
		return nil
	}

	cb.onFailure(err)
	return err
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.stats.TotalCalls++

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return nil
	case StateOpen:
		if time.Since(cb.openedAt) >= cb.currentTimeout {
			cb.transitionToHalfOpenLocked()
			return nil
		}
		cb.stats.RejectedCalls++
		remaining := cb.currentTimeout - time.Since(cb.openedAt)
		if remaining < 0 {
			remaining = 0
		}
		return errors.Capacity("circuit breaker '"+cb.config.Name+"' is OPEN", remaining.Seconds())
	}
	return nil
}

func (cb *CircuitBreaker) onSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.stats.SuccessfulCalls++

	switch cb.state {
	case StateClosed:
		cb.failureCount = 0
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.transitionToClosedLocked()
		}
	}
}

func (cb *CircuitBreaker) onFailure(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.config.IsFailure != nil && !cb.config.IsFailure(err) {
		return
	}

	cb.stats.FailedCalls++

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.transitionToOpenLocked()
		}
	case StateHalfOpen:
		cb.transitionToOpenLocked()
	}
}

// RetryAfter reports how long until an OPEN breaker allows a probe, zero
// for any other state.
func (cb *CircuitBreaker) RetryAfter() time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateOpen {
		return 0
	}
	remaining := cb.currentTimeout - time.Since(cb.openedAt)
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

func (cb *CircuitBreaker) transitionToClosedLocked() {
	cb.state = StateClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.openedAt = time.Time{}
	cb.currentTimeout = cb.config.Timeout
	cb.recordStateChangeLocked()
}

func (cb *CircuitBreaker) transitionToOpenLocked() {
	cb.state = StateOpen
	cb.failureCount = 0
	cb.openedAt = time.Now()
	grown := time.Duration(float64(cb.currentTimeout) * cb.config.TimeoutMultiplier)
	if cb.config.MaxTimeout > 0 && grown > cb.config.MaxTimeout {
		grown = cb.config.MaxTimeout
	}
	cb.currentTimeout = grown
	cb.recordStateChangeLocked()
}

func (cb *CircuitBreaker) transitionToHalfOpenLocked() {
	cb.state = StateHalfOpen
	cb.successCount = 0
	cb.recordStateChangeLocked()
}

func (cb *CircuitBreaker) recordStateChangeLocked() {
	cb.stats.StateChanges++
	cb.stats.LastStateChange = time.Now()
}

// Reset forces the breaker back to CLOSED with a clean slate. Used by ops
// tooling and tests.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionToClosedLocked()
}
