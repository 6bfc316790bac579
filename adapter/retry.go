package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Engineer-s-Edge/enginedge-core-sub004/graph"
)

// RetryConfig configures retry behavior for invocations
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64

	// RetryableErrors determines if an error should trigger a retry
	RetryableErrors func(error) bool
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:     3,
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		BackoffFactor:   2.0,
		RetryableErrors: IsRetryable,
	}
}

// IsRetryable reports false for cancellation and user rejection.
func IsRetryable(err error) bool {
	return !errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded) &&
		!errors.Is(err, graph.ErrUserRejected)
}

// RetryInvoker wraps an invoker with retry logic
type RetryInvoker struct {
	next   graph.Invoker
	config *RetryConfig
}

var _ graph.Invoker = (*RetryInvoker)(nil)

// NewRetryInvoker creates a new retry invoker
func NewRetryInvoker(next graph.Invoker, config *RetryConfig) *RetryInvoker {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &RetryInvoker{next: next, config: config}
}

// Invoke implements graph.Invoker.
func (r *RetryInvoker) Invoke(ctx context.Context, req graph.InvokeRequest) (*graph.InvokeResult, error) {
	var lastErr error
	delay := r.config.InitialDelay

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("retry cancelled: %w", err)
		}

		res, err := r.next.Invoke(ctx, req)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if r.config.RetryableErrors != nil && !r.config.RetryableErrors(err) {
			return nil, fmt.Errorf("non-retryable error in %s: %w", req.Node.ID, err)
		}

		// Don't sleep after the last attempt
		if attempt < r.config.MaxAttempts {
			select {
			case <-time.After(delay):
				delay = time.Duration(float64(delay) * r.config.BackoffFactor)
				if r.config.MaxDelay > 0 {
					delay = min(delay, r.config.MaxDelay)
				}
			case <-ctx.Done():
				return nil, fmt.Errorf("retry cancelled during backoff: %w", ctx.Err())
			}
		}
	}

	return nil, fmt.Errorf("max retries (%d) exceeded for %s: %w",
		r.config.MaxAttempts, req.Node.ID, lastErr)
}

// TimeoutInvoker bounds each invocation of the wrapped invoker.
type TimeoutInvoker struct {
	next    graph.Invoker
	timeout time.Duration
}

var _ graph.Invoker = (*TimeoutInvoker)(nil)

// NewTimeoutInvoker creates a new timeout invoker
func NewTimeoutInvoker(next graph.Invoker, timeout time.Duration) *TimeoutInvoker {
	return &TimeoutInvoker{next: next, timeout: timeout}
}

// Invoke implements graph.Invoker.
func (t *TimeoutInvoker) Invoke(ctx context.Context, req graph.InvokeRequest) (*graph.InvokeResult, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	type result struct {
		value *graph.InvokeResult
		err   error
	}
	resultChan := make(chan result, 1)

	go func() {
		value, err := t.next.Invoke(timeoutCtx, req)
		resultChan <- result{value: value, err: err}
	}()

	select {
	case res := <-resultChan:
		return res.value, res.err
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("node %s timed out after %v: %w", req.Node.ID, t.timeout, context.DeadlineExceeded)
	}
}

// CircuitBreakerConfig configures circuit breaker behavior
type CircuitBreakerConfig struct {
	FailureThreshold int           // Number of failures before opening
	SuccessThreshold int           // Number of successes before closing
	Timeout          time.Duration // Time before attempting to close
	HalfOpenMaxCalls int           // Max calls in half-open state
}

// CircuitBreakerState represents the state of a circuit breaker
type CircuitBreakerState int

const (
	CircuitClosed CircuitBreakerState = iota
	CircuitOpen
	CircuitHalfOpen
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitBreaker stops calling a failing backend for a while. One breaker is
// shared by every node that uses the wrapped invoker.
type CircuitBreaker struct {
	next   graph.Invoker
	config CircuitBreakerConfig

	mu              sync.Mutex
	state           CircuitBreakerState
	failures        int
	successes       int
	lastFailureTime time.Time
	halfOpenCalls   int
}

var _ graph.Invoker = (*CircuitBreaker)(nil)

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(next graph.Invoker, config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{next: next, config: config, state: CircuitClosed}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Invoke implements graph.Invoker.
func (cb *CircuitBreaker) Invoke(ctx context.Context, req graph.InvokeRequest) (*graph.InvokeResult, error) {
	if err := cb.admit(); err != nil {
		return nil, fmt.Errorf("%s: %w", req.Node.ID, err)
	}

	res, err := cb.next.Invoke(ctx, req)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.failures++
		cb.successes = 0
		cb.lastFailureTime = time.Now()
		if cb.state == CircuitHalfOpen || cb.failures >= cb.config.FailureThreshold {
			cb.state = CircuitOpen
		}
		return nil, fmt.Errorf("circuit breaker error in %s: %w", req.Node.ID, err)
	}

	cb.successes++
	cb.failures = 0
	if cb.state == CircuitHalfOpen && cb.successes >= cb.config.SuccessThreshold {
		cb.state = CircuitClosed
	}
	return res, nil
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if time.Since(cb.lastFailureTime) <= cb.config.Timeout {
			return ErrCircuitOpen
		}
		cb.state = CircuitHalfOpen
		cb.halfOpenCalls = 0
		cb.successes = 0
		fallthrough
	case CircuitHalfOpen:
		if cb.halfOpenCalls >= cb.config.HalfOpenMaxCalls {
			return fmt.Errorf("half-open limit reached: %w", ErrCircuitOpen)
		}
		cb.halfOpenCalls++
	}
	return nil
}
