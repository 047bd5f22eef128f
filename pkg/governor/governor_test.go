package governor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"momentum/pkg/llm"
	"momentum/pkg/llmerrors"
)

// testPolicy returns a policy with intervals small enough for fast tests.
func testPolicy() Policy {
	return Policy{
		MinInterval:        30 * time.Millisecond,
		Window:             300 * time.Millisecond,
		MaxAttempts:        3,
		QuotaBaseDelay:     5 * time.Millisecond,
		TransientBaseDelay: 5 * time.Millisecond,
	}
}

func okCall(text string) Call {
	return func(context.Context) (llm.GenerateResponse, error) {
		return llm.GenerateResponse{Text: text}, nil
	}
}

func TestSubmitFIFOOrder(t *testing.T) {
	policy := testPolicy()
	policy.MinInterval = 1 * time.Millisecond
	g := New(policy, nil)

	var mu sync.Mutex
	var order []int
	inFlight := 0

	const n = 8
	results := make([]<-chan Outcome, n)
	for i := 0; i < n; i++ {
		i := i
		results[i] = g.Submit(context.Background(), "test-model", func(context.Context) (llm.GenerateResponse, error) {
			mu.Lock()
			inFlight++
			overlap := inFlight > 1
			order = append(order, i)
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()

			if overlap {
				return llm.GenerateResponse{}, errors.New("overlapping execution detected")
			}
			return llm.GenerateResponse{Text: fmt.Sprintf("call-%d", i)}, nil
		})
	}

	for i := 0; i < n; i++ {
		outcome := <-results[i]
		require.NoError(t, outcome.Err)
		assert.Equal(t, fmt.Sprintf("call-%d", i), outcome.Response.Text)
	}

	mu.Lock()
	defer mu.Unlock()
	for i, got := range order {
		assert.Equal(t, i, got, "calls executed out of submission order")
	}
}

func TestDispatchSpacing(t *testing.T) {
	policy := testPolicy()
	g := New(policy, nil)

	var mu sync.Mutex
	var starts []time.Time

	const n = 3
	results := make([]<-chan Outcome, n)
	for i := 0; i < n; i++ {
		results[i] = g.Submit(context.Background(), "test-model", func(context.Context) (llm.GenerateResponse, error) {
			mu.Lock()
			starts = append(starts, time.Now())
			mu.Unlock()
			return llm.GenerateResponse{Text: "ok"}, nil
		})
	}
	for i := 0; i < n; i++ {
		require.NoError(t, (<-results[i]).Err)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, starts, n)
	for i := 1; i < n; i++ {
		gap := starts[i].Sub(starts[i-1])
		// Allow a small tolerance for timer granularity.
		assert.GreaterOrEqual(t, gap, policy.MinInterval-2*time.Millisecond,
			"dispatch %d started %v after dispatch %d", i, gap, i-1)
	}
}

func TestQuotaRetriesThenExhausts(t *testing.T) {
	policy := testPolicy()
	policy.MinInterval = 0
	g := New(policy, nil)

	var mu sync.Mutex
	var attempts []time.Time

	_, err := g.Execute(context.Background(), "test-model", func(context.Context) (llm.GenerateResponse, error) {
		mu.Lock()
		attempts = append(attempts, time.Now())
		mu.Unlock()
		return llm.GenerateResponse{}, llmerrors.NewWithStatus(llmerrors.ErrorTypeQuota, 429, "quota exceeded")
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQuotaExhausted), "expected ErrQuotaExhausted, got %v", err)
	assert.Equal(t, llmerrors.ErrorTypeQuota, llmerrors.TypeOf(err))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, attempts, policy.MaxAttempts, "expected exactly MaxAttempts attempts")

	// Backoff delays must strictly increase: base*2^1, base*2^2, ...
	var gaps []time.Duration
	for i := 1; i < len(attempts); i++ {
		gaps = append(gaps, attempts[i].Sub(attempts[i-1]))
	}
	for i := 1; i < len(gaps); i++ {
		assert.Greater(t, gaps[i], gaps[i-1], "quota backoff delays should increase")
	}
	assert.GreaterOrEqual(t, gaps[0], policy.quotaDelay(1)-2*time.Millisecond)
}

func TestTransientFailureThenSuccess(t *testing.T) {
	policy := testPolicy()
	policy.MinInterval = 0
	g := New(policy, nil)

	calls := 0
	resp, err := g.Execute(context.Background(), "test-model", func(context.Context) (llm.GenerateResponse, error) {
		calls++
		if calls == 1 {
			return llm.GenerateResponse{}, llmerrors.NewWithStatus(llmerrors.ErrorTypeUnavailable, 503, "model overloaded")
		}
		return llm.GenerateResponse{Text: "recovered"}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Text)
	assert.Equal(t, 2, calls, "expected success after exactly one retry")
}

func TestNonRetryableFailsImmediately(t *testing.T) {
	policy := testPolicy()
	policy.MinInterval = 0
	g := New(policy, nil)

	calls := 0
	_, err := g.Execute(context.Background(), "test-model", func(context.Context) (llm.GenerateResponse, error) {
		calls++
		return llm.GenerateResponse{}, llmerrors.NewWithStatus(llmerrors.ErrorTypeAuth, 401, "API key not valid")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "auth errors must not be retried")
	assert.Equal(t, llmerrors.ErrorTypeAuth, llmerrors.TypeOf(err))
}

func TestUnclassifiedErrorsUseMarkerClassification(t *testing.T) {
	policy := testPolicy()
	policy.MinInterval = 0
	g := New(policy, nil)

	// A plain error carrying a transient marker is retried like a 503.
	calls := 0
	resp, err := g.Execute(context.Background(), "test-model", func(context.Context) (llm.GenerateResponse, error) {
		calls++
		if calls == 1 {
			return llm.GenerateResponse{}, errors.New("The model is overloaded. Please try again later.")
		}
		return llm.GenerateResponse{Text: "ok"}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, 2, calls)
}

func TestFailedCallDoesNotStopDrain(t *testing.T) {
	policy := testPolicy()
	policy.MinInterval = 1 * time.Millisecond
	g := New(policy, nil)

	bad := g.Submit(context.Background(), "test-model", func(context.Context) (llm.GenerateResponse, error) {
		return llm.GenerateResponse{}, llmerrors.New(llmerrors.ErrorTypeUnknown, "boom")
	})
	good := g.Submit(context.Background(), "test-model", okCall("still alive"))

	require.Error(t, (<-bad).Err)
	outcome := <-good
	require.NoError(t, outcome.Err)
	assert.Equal(t, "still alive", outcome.Response.Text)
}

func TestWindowCapGatesDispatchWhenEnabled(t *testing.T) {
	policy := testPolicy()
	policy.MinInterval = 1 * time.Millisecond
	policy.Window = 150 * time.Millisecond
	policy.MaxRequestsPerWindow = 2
	g := New(policy, nil)

	var mu sync.Mutex
	var starts []time.Time

	const n = 3
	results := make([]<-chan Outcome, n)
	for i := 0; i < n; i++ {
		results[i] = g.Submit(context.Background(), "test-model", func(context.Context) (llm.GenerateResponse, error) {
			mu.Lock()
			starts = append(starts, time.Now())
			mu.Unlock()
			return llm.GenerateResponse{}, nil
		})
	}
	for i := 0; i < n; i++ {
		require.NoError(t, (<-results[i]).Err)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, starts, n)
	// The third dispatch must wait for the first to age out of the window.
	gap := starts[2].Sub(starts[0])
	assert.GreaterOrEqual(t, gap, policy.Window-5*time.Millisecond,
		"third dispatch should be gated by the window cap")
}

func TestWindowAccountingWithoutCap(t *testing.T) {
	policy := testPolicy()
	policy.MinInterval = 1 * time.Millisecond
	g := New(policy, nil)

	for i := 0; i < 3; i++ {
		_, err := g.Execute(context.Background(), "test-model", okCall("ok"))
		require.NoError(t, err)
	}

	stats := g.Stats()
	assert.Equal(t, 3, stats.InWindow)
	assert.Equal(t, 0, stats.QueueDepth)
	assert.False(t, stats.LastDispatchAt.IsZero())

	// Counts age out of the window; they never go negative.
	time.Sleep(policy.Window + 20*time.Millisecond)
	assert.Equal(t, 0, g.Stats().InWindow)
}

func TestSubmitObservesCallerContext(t *testing.T) {
	policy := testPolicy()
	policy.MinInterval = 200 * time.Millisecond
	g := New(policy, nil)

	// First call dispatches immediately; the second waits out the spacing
	// interval and its context expires while waiting.
	first := g.Submit(context.Background(), "test-model", okCall("first"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	second := g.Submit(ctx, "test-model", okCall("second"))

	require.NoError(t, (<-first).Err)
	outcome := <-second
	require.Error(t, outcome.Err)
	assert.True(t, errors.Is(outcome.Err, context.DeadlineExceeded))
}
