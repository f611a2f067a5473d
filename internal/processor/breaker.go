package processor

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"exchange-order-worker/internal/observability"
)

// ErrCircuitOpen is the synthetic failure of an attempt rejected by an open breaker.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerState is a snapshot of the circuit breaker.
type BreakerState struct {
	FailureCount    int       `json:"failure_count"`
	LastFailureTime time.Time `json:"last_failure_time,omitempty"`
	Open            bool      `json:"open"`
}

// CircuitBreaker guards settlement calls within one worker process.
// Half-open is implicit: once the reset window has elapsed the next call is
// let through and its outcome closes or re-opens the breaker.
// Thread-safe for concurrent use.
type CircuitBreaker struct {
	mu sync.Mutex

	failureCount int
	lastFailure  time.Time
	isOpen       bool

	threshold   int
	resetWindow time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

// BreakerOptions contains configuration for creating a CircuitBreaker.
type BreakerOptions struct {
	Threshold   int              // Default: 5 consecutive failures
	ResetWindow time.Duration    // Default: 60s
	Now         func() time.Time // Default: time.Now
	Logger      *slog.Logger
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(opts BreakerOptions) *CircuitBreaker {
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = 5
	}

	resetWindow := opts.ResetWindow
	if resetWindow <= 0 {
		resetWindow = 60 * time.Second
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &CircuitBreaker{
		threshold:   threshold,
		resetWindow: resetWindow,
		now:         now,
		logger:      logger,
	}
}

// Allow reports whether a call may proceed. An open breaker whose reset
// window has elapsed flips to closed and allows the call.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.isOpen {
		return true
	}
	if cb.now().Sub(cb.lastFailure) >= cb.resetWindow {
		cb.isOpen = false
		observability.RecordBreakerClosed()
		cb.logger.Info("circuit breaker half-open, allowing trial call",
			slog.Int("failures", cb.failureCount))
		return true
	}
	return false
}

// RecordSuccess closes the breaker and clears the failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	wasTripped := cb.isOpen || cb.failureCount >= cb.threshold
	cb.failureCount = 0
	cb.isOpen = false
	if wasTripped {
		observability.RecordBreakerClosed()
		cb.logger.Info("circuit breaker closed")
	}
}

// RecordFailure counts a failed call and opens the breaker at the threshold.
// The count is not cleared by the half-open transition, so a failed trial call
// re-opens immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.lastFailure = cb.now()

	if !cb.isOpen && cb.failureCount >= cb.threshold {
		cb.isOpen = true
		observability.RecordBreakerTrip()
		cb.logger.Warn("circuit breaker opened",
			slog.Int("failures", cb.failureCount),
			slog.Duration("reset_window", cb.resetWindow))
	}
}

// State returns a snapshot for monitoring.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return BreakerState{
		FailureCount:    cb.failureCount,
		LastFailureTime: cb.lastFailure,
		Open:            cb.isOpen,
	}
}
