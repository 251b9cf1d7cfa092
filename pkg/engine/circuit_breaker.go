// Copyright 2025 DeFlow
//
// CircuitBreaker protects the engine from hammering a node type that is
// reliably failing (e.g. a chain RPC endpoint that's down). Standard
// closed/open/half-open state machine; no teacher or pack example implements
// one, so this is hand-built against the well-known pattern rather than
// ported from an example (see DESIGN.md).

package engine

import (
	"sync"
	"time"
)

// CircuitState is one of Closed, Open, HalfOpen.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// CircuitBreakerConfig tunes the breaker's trip and recovery behavior.
type CircuitBreakerConfig struct {
	FailureThreshold int           // consecutive failures before tripping open
	OpenDuration     time.Duration // how long to stay open before probing
	HalfOpenSuccess  int           // consecutive half-open successes required to close
}

// DefaultCircuitBreakerConfig matches the engine's default node-type breaker.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		OpenDuration:     30 * time.Second,
		HalfOpenSuccess:  2,
	}
}

// CircuitBreaker tracks failures for one node type and blocks execution
// while open.
type CircuitBreaker struct {
	mu sync.Mutex

	cfg CircuitBreakerConfig

	state            CircuitState
	consecutiveFails int
	halfOpenOK       int
	openedAt         time.Time
}

// NewCircuitBreaker creates a closed breaker with cfg.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg, state: CircuitClosed}
}

// Allow reports whether a call should be permitted right now, transitioning
// Open -> HalfOpen once OpenDuration has elapsed.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitClosed:
		return true
	case CircuitHalfOpen:
		return true
	case CircuitOpen:
		if time.Since(b.openedAt) >= b.cfg.OpenDuration {
			b.state = CircuitHalfOpen
			b.halfOpenOK = 0
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess registers a successful call.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitHalfOpen:
		b.halfOpenOK++
		if b.halfOpenOK >= b.cfg.HalfOpenSuccess {
			b.state = CircuitClosed
			b.consecutiveFails = 0
		}
	case CircuitClosed:
		b.consecutiveFails = 0
	}
}

// RecordFailure registers a failed call, tripping the breaker open if the
// consecutive-failure threshold is reached (or immediately on any half-open
// failure).
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitHalfOpen:
		b.state = CircuitOpen
		b.openedAt = time.Now()
	case CircuitClosed:
		b.consecutiveFails++
		if b.consecutiveFails >= b.cfg.FailureThreshold {
			b.state = CircuitOpen
			b.openedAt = time.Now()
		}
	}
}

// State returns the breaker's current state.
func (b *CircuitBreaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// CircuitBreakerRegistry hands out one CircuitBreaker per node type,
// creating it lazily with DefaultCircuitBreakerConfig on first use.
type CircuitBreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	cfg      CircuitBreakerConfig
}

// NewCircuitBreakerRegistry creates a registry using cfg for every breaker
// it lazily creates.
func NewCircuitBreakerRegistry(cfg CircuitBreakerConfig) *CircuitBreakerRegistry {
	return &CircuitBreakerRegistry{
		breakers: make(map[string]*CircuitBreaker),
		cfg:      cfg,
	}
}

// For returns the breaker for nodeType, creating one if this is the first
// time it's been seen.
func (r *CircuitBreakerRegistry) For(nodeType string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[nodeType]
	if !ok {
		b = NewCircuitBreaker(r.cfg)
		r.breakers[nodeType] = b
	}
	return b
}
