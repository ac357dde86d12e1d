package router

import (
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	// CircuitClosed means the backend is healthy and receives runs
	CircuitClosed CircuitState = iota
	// CircuitOpen means the backend is failing and auto mode routes around it
	CircuitOpen
	// CircuitHalfOpen means the backend gets one more chance after the reset timeout
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// Circuit breaker defaults
const (
	// FailureThreshold is the number of consecutive failures that opens the circuit
	FailureThreshold = 5
	// ResetTimeout is how long the circuit stays open before a retry
	ResetTimeout = 30 * time.Second
	// ErrorWindow bounds the failures counted by Health
	ErrorWindow = 60 * time.Second
)

// BackendHealth tracks whether the durable backend should receive runs
type BackendHealth struct {
	mu sync.Mutex

	state               CircuitState
	consecutiveFailures int
	lastStateChange     time.Time
	recentErrors        []time.Time

	failureThreshold int
	resetTimeout     time.Duration
	now              func() time.Time
}

// NewBackendHealth creates a closed circuit. Non-positive arguments use the defaults.
func NewBackendHealth(failureThreshold int, resetTimeout time.Duration) *BackendHealth {
	if failureThreshold <= 0 {
		failureThreshold = FailureThreshold
	}
	if resetTimeout <= 0 {
		resetTimeout = ResetTimeout
	}
	return &BackendHealth{
		state:            CircuitClosed,
		lastStateChange:  time.Now(),
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		now:              time.Now,
	}
}

// RecordSuccess closes a half-open circuit and resets the failure count
func (h *BackendHealth) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.consecutiveFailures = 0
	if h.state == CircuitHalfOpen {
		h.setState(CircuitClosed)
	}
}

// RecordFailure counts a failure, opening the circuit at the threshold. A failure
// while half-open reopens it immediately.
func (h *BackendHealth) RecordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.consecutiveFailures++

	now := h.now()
	h.recentErrors = append(h.recentErrors, now)
	kept := h.recentErrors[:0]
	for _, t := range h.recentErrors {
		if now.Sub(t) <= ErrorWindow {
			kept = append(kept, t)
		}
	}
	h.recentErrors = kept

	switch {
	case h.state == CircuitHalfOpen:
		h.setState(CircuitOpen)
	case h.state == CircuitClosed && h.consecutiveFailures >= h.failureThreshold:
		h.setState(CircuitOpen)
	}
}

// IsHealthy reports whether the backend should receive runs, moving an open
// circuit to half-open once the reset timeout has passed
func (h *BackendHealth) IsHealthy() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == CircuitOpen && h.now().Sub(h.lastStateChange) > h.resetTimeout {
		h.setState(CircuitHalfOpen)
	}
	return h.state == CircuitClosed || h.state == CircuitHalfOpen
}

// State returns the current circuit state
func (h *BackendHealth) State() CircuitState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Health returns a value between 0 and 1, falling with recent errors
func (h *BackendHealth) Health() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == CircuitOpen {
		return 0
	}
	if len(h.recentErrors) == 0 {
		return 1
	}

	// 10 errors in the window is zero health
	health := 1 - float64(len(h.recentErrors))/10
	if health < 0 {
		health = 0
	}
	return health
}

func (h *BackendHealth) setState(s CircuitState) {
	h.state = s
	h.lastStateChange = h.now()
}
