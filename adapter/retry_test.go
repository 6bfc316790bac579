package adapter

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Engineer-s-Edge/enginedge-core-sub004/graph"
)

// flakyInvoker fails the first failures calls.
type flakyInvoker struct {
	calls    atomic.Int32
	failures int32
	err      error
}

func (f *flakyInvoker) Invoke(ctx context.Context, req graph.InvokeRequest) (*graph.InvokeResult, error) {
	n := f.calls.Add(1)
	if n <= f.failures {
		return nil, f.err
	}
	return &graph.InvokeResult{Output: "ok"}, nil
}

func fastRetry(attempts int) *RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.MaxAttempts = attempts
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 2 * time.Millisecond
	return cfg
}

func TestRetryInvoker(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		failures  int32
		err       error
		attempts  int
		wantCalls int32
		wantErr   string
	}{
		{name: "succeeds after failures", failures: 2, err: errors.New("temporary"), attempts: 3, wantCalls: 3},
		{name: "gives up", failures: 5, err: errors.New("temporary"), attempts: 3, wantCalls: 3, wantErr: "max retries (3) exceeded for n"},
		{name: "user rejection is final", failures: 5, err: graph.ErrUserRejected, attempts: 3, wantCalls: 1, wantErr: "non-retryable error in n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			next := &flakyInvoker{failures: tt.failures, err: tt.err}
			res, err := NewRetryInvoker(next, fastRetry(tt.attempts)).Invoke(context.Background(), graph.InvokeRequest{Node: graph.Node{ID: "n"}})

			assert.Equal(t, tt.wantCalls, next.calls.Load())
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "ok", res.Output)
		})
	}
}

func TestRetryInvoker_CancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	cfg := DefaultRetryConfig()
	cfg.InitialDelay = time.Hour
	next := &flakyInvoker{failures: 10, err: errors.New("down")}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := NewRetryInvoker(next, cfg).Invoke(ctx, graph.InvokeRequest{Node: graph.Node{ID: "n"}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestTimeoutInvoker(t *testing.T) {
	t.Parallel()

	slow := graph.InvokerFunc(func(ctx context.Context, _ graph.InvokeRequest) (*graph.InvokeResult, error) {
		select {
		case <-time.After(time.Second):
			return &graph.InvokeResult{Output: "late"}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	_, err := NewTimeoutInvoker(slow, 10*time.Millisecond).Invoke(context.Background(), graph.InvokeRequest{Node: graph.Node{ID: "n"}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	fast := &flakyInvoker{}
	res, err := NewTimeoutInvoker(fast, time.Second).Invoke(context.Background(), graph.InvokeRequest{Node: graph.Node{ID: "n"}})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Output)
}

func TestCircuitBreaker(t *testing.T) {
	t.Parallel()

	next := &flakyInvoker{failures: 2, err: errors.New("down")}
	cb := NewCircuitBreaker(next, CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          20 * time.Millisecond,
		HalfOpenMaxCalls: 1,
	})
	req := graph.InvokeRequest{Node: graph.Node{ID: "n"}}

	for range 2 {
		_, err := cb.Invoke(context.Background(), req)
		require.Error(t, err)
	}
	assert.Equal(t, CircuitOpen, cb.State())

	_, err := cb.Invoke(context.Background(), req)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), next.calls.Load(), "open breaker does not call through")

	time.Sleep(30 * time.Millisecond)
	res, err := cb.Invoke(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Output)
	assert.Equal(t, CircuitClosed, cb.State())
}
