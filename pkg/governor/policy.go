// Package governor serializes calls to the generation API behind a FIFO
// queue, enforces minimum inter-request spacing and rolling-window
// accounting, and retries failures according to their classified type.
// Callers submit a closure and receive exactly the governed outcome; they
// never see the queueing, spacing, or retries.
package governor

import (
	"math"
	"time"
)

// Policy configures the governor's rate and retry behavior.
type Policy struct {
	// MinInterval is the minimum wall-clock gap between any two dispatches.
	MinInterval time.Duration

	// Window is the rolling window over which dispatches are counted.
	Window time.Duration

	// MaxRequestsPerWindow, when positive, blocks dispatch once the count of
	// dispatches inside Window reaches it. Zero keeps the count as
	// accounting only, which matches the historical behavior of this app.
	MaxRequestsPerWindow int

	// MaxAttempts caps attempts per call, including the first.
	MaxAttempts int

	// QuotaBaseDelay seeds the quota backoff curve: delay = base * 2^attempt.
	QuotaBaseDelay time.Duration

	// TransientBaseDelay seeds the transient backoff curve:
	// delay = base * 1.5^(attempt-1).
	TransientBaseDelay time.Duration
}

// DefaultPolicy returns the production policy.
func DefaultPolicy() Policy {
	return Policy{
		MinInterval:          5 * time.Second,
		Window:               60 * time.Second,
		MaxRequestsPerWindow: 0,
		MaxAttempts:          3,
		QuotaBaseDelay:       6 * time.Second,
		TransientBaseDelay:   6 * time.Second,
	}
}

// quotaDelay computes the backoff before retrying a quota failure.
// attempt is the 1-based number of the attempt that just failed.
func (p Policy) quotaDelay(attempt int) time.Duration {
	return time.Duration(float64(p.QuotaBaseDelay) * math.Pow(2, float64(attempt)))
}

// transientDelay computes the backoff before retrying a transient failure.
func (p Policy) transientDelay(attempt int) time.Duration {
	return time.Duration(float64(p.TransientBaseDelay) * math.Pow(1.5, float64(attempt-1)))
}
