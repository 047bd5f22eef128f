package governor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"momentum/pkg/llm"
	"momentum/pkg/llmerrors"
	"momentum/pkg/logx"
	"momentum/pkg/metrics"
)

// ErrQuotaExhausted marks a quota-classified failure that survived every
// retry attempt. Callers distinguish it from an ordinary quota error with
// errors.Is.
var ErrQuotaExhausted = errors.New("quota exhausted")

// Call is one governed operation against the generation API.
type Call func(ctx context.Context) (llm.GenerateResponse, error)

// Outcome is the terminal result of a governed call.
type Outcome struct {
	Response llm.GenerateResponse
	Err      error
}

// queuedCall pairs a pending operation with the channel its submitter is
// waiting on. Owned exclusively by the queue until drained.
type queuedCall struct {
	ctx        context.Context
	run        Call
	model      string
	result     chan Outcome
	enqueuedAt time.Time
}

// Governor owns the FIFO queue, the rate state, and the retry policy. One
// instance fronts one generation API; construct it once and share it.
type Governor struct {
	mu       sync.Mutex
	queue    []*queuedCall
	draining bool

	lastDispatch  time.Time
	dispatchTimes []time.Time // sliding window of dispatch moments, pruned lazily

	policy   Policy
	recorder metrics.Recorder
	logger   *logx.Logger
}

// Stats is a point-in-time snapshot of governor state.
type Stats struct {
	QueueDepth     int       `json:"queue_depth"`
	Draining       bool      `json:"draining"`
	InWindow       int       `json:"in_window"`
	LastDispatchAt time.Time `json:"last_dispatch_at"`
}

// New creates a governor with the given policy. A nil recorder disables
// metrics.
func New(policy Policy, recorder metrics.Recorder) *Governor {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &Governor{
		policy:   policy,
		recorder: recorder,
		logger:   logx.NewLogger("governor"),
	}
}

// Submit appends call to the FIFO queue and returns a channel that will
// receive exactly one Outcome: the governed result of the call after
// spacing, window, and retry policy have been applied. Submitted calls
// cannot be cancelled once queued, but the call itself still observes ctx.
func (g *Governor) Submit(ctx context.Context, model string, call Call) <-chan Outcome {
	qc := &queuedCall{
		ctx:        ctx,
		run:        call,
		model:      model,
		result:     make(chan Outcome, 1),
		enqueuedAt: time.Now(),
	}

	g.mu.Lock()
	g.queue = append(g.queue, qc)
	depth := len(g.queue)
	startDrain := !g.draining
	if startDrain {
		g.draining = true
	}
	g.mu.Unlock()

	g.recorder.SetQueueDepth(depth)
	if startDrain {
		go g.drain()
	}

	return qc.result
}

// Execute submits call and blocks until its outcome is available.
func (g *Governor) Execute(ctx context.Context, model string, call Call) (llm.GenerateResponse, error) {
	outcome := <-g.Submit(ctx, model, call)
	return outcome.Response, outcome.Err
}

// drain pops and services queue entries one at a time, strictly in
// submission order. Exactly one drain runs at any moment; the draining flag
// is cleared only when the queue is observed empty under the lock.
func (g *Governor) drain() {
	for {
		g.mu.Lock()
		if len(g.queue) == 0 {
			g.draining = false
			g.mu.Unlock()
			g.recorder.SetQueueDepth(0)
			return
		}
		qc := g.queue[0]
		g.queue = g.queue[1:]
		depth := len(g.queue)
		g.mu.Unlock()

		g.recorder.SetQueueDepth(depth)

		// A failure in one entry must not stop the loop; the outcome is
		// delivered to the one submitter waiting on it.
		qc.result <- g.service(qc)
	}
}

// service runs one queued call to completion: spacing wait, window gate,
// dispatch accounting, then the retry loop.
func (g *Governor) service(qc *queuedCall) Outcome {
	if err := g.awaitTurn(qc); err != nil {
		return Outcome{Err: err}
	}

	g.recorder.ObserveQueueWait(qc.model, time.Since(qc.enqueuedAt))

	resp, err := g.runWithRetry(qc)
	return Outcome{Response: resp, Err: err}
}

// awaitTurn blocks until the spacing and window policies admit a dispatch,
// then records the dispatch in the rate state.
func (g *Governor) awaitTurn(qc *queuedCall) error {
	for {
		g.mu.Lock()
		now := time.Now()

		var wait time.Duration
		var reason string

		if !g.lastDispatch.IsZero() {
			if gap := now.Sub(g.lastDispatch); gap < g.policy.MinInterval {
				wait = g.policy.MinInterval - gap
				reason = "spacing"
			}
		}

		g.pruneWindowLocked(now)
		if wait == 0 && g.policy.MaxRequestsPerWindow > 0 && len(g.dispatchTimes) >= g.policy.MaxRequestsPerWindow {
			// Admit once the oldest in-window dispatch ages out.
			wait = g.dispatchTimes[0].Add(g.policy.Window).Sub(now)
			reason = "window"
		}

		if wait <= 0 {
			g.lastDispatch = now
			g.dispatchTimes = append(g.dispatchTimes, now)
			g.mu.Unlock()
			return nil
		}
		g.mu.Unlock()

		g.recorder.IncThrottle(qc.model, reason)
		g.logger.Debug("dispatch delayed %v (%s)", wait, reason)
		if err := sleep(qc.ctx, wait); err != nil {
			return err
		}
	}
}

// pruneWindowLocked drops dispatch timestamps older than the rolling window.
// Must be called with g.mu held.
func (g *Governor) pruneWindowLocked(now time.Time) {
	cutoff := now.Add(-g.policy.Window)
	i := 0
	for i < len(g.dispatchTimes) && !g.dispatchTimes[i].After(cutoff) {
		i++
	}
	if i > 0 {
		g.dispatchTimes = g.dispatchTimes[i:]
	}
}

// runWithRetry executes the call under the classified retry policy:
// quota failures back off at base*2^attempt, transient failures at
// base*1.5^(attempt-1), both capped at MaxAttempts; everything else fails
// on first occurrence.
func (g *Governor) runWithRetry(qc *queuedCall) (llm.GenerateResponse, error) {
	var lastErr error

	for attempt := 1; attempt <= g.policy.MaxAttempts; attempt++ {
		resp, err := qc.run(qc.ctx)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		errType := llmerrors.TypeOf(err)
		var delay time.Duration
		switch errType {
		case llmerrors.ErrorTypeQuota:
			if attempt >= g.policy.MaxAttempts {
				return llm.GenerateResponse{}, fmt.Errorf("%w after %d attempts: %w", ErrQuotaExhausted, attempt, lastErr)
			}
			delay = g.policy.quotaDelay(attempt)
		case llmerrors.ErrorTypeUnavailable:
			if attempt >= g.policy.MaxAttempts {
				return llm.GenerateResponse{}, lastErr
			}
			delay = g.policy.transientDelay(attempt)
		default:
			// Auth, validation, malformed, unknown: retrying cannot help.
			return llm.GenerateResponse{}, lastErr
		}

		g.recorder.IncRetry(qc.model, errType.String())
		g.logger.Warn("attempt %d/%d failed (%s), retrying in %v", attempt, g.policy.MaxAttempts, errType, delay)
		if sleepErr := sleep(qc.ctx, delay); sleepErr != nil {
			return llm.GenerateResponse{}, sleepErr
		}
	}

	return llm.GenerateResponse{}, lastErr
}

// Stats returns a snapshot of queue and rate state.
func (g *Governor) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.pruneWindowLocked(time.Now())
	return Stats{
		QueueDepth:     len(g.queue),
		Draining:       g.draining,
		InWindow:       len(g.dispatchTimes),
		LastDispatchAt: g.lastDispatch,
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err() //nolint:wrapcheck // Context error propagated as-is
	case <-timer.C:
		return nil
	}
}
