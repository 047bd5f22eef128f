// Package metrics provides metrics recording for governed generation calls.
package metrics

import (
	"time"
)

// Recorder defines the interface for recording governor and generation
// metrics. A Noop implementation is used when metrics are disabled.
type Recorder interface {
	// ObserveRequest records one completed generation attempt chain.
	ObserveRequest(model, operation string, promptTokens int, success bool, errorType string, duration time.Duration)

	// IncRetry counts a retry of a governed call, labeled by error type.
	IncRetry(model, errorType string)

	// ObserveQueueWait records time a call spent queued before dispatch.
	ObserveQueueWait(model string, duration time.Duration)

	// IncThrottle counts a dispatch delayed by the spacing or window policy.
	IncThrottle(model, reason string)

	// SetQueueDepth reports the current governor queue depth.
	SetQueueDepth(depth int)
}

// NoopRecorder implements Recorder with no-op behavior.
type NoopRecorder struct{}

// Nop returns a recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) ObserveRequest(_, _ string, _ int, _ bool, _ string, _ time.Duration) {}

func (n *NoopRecorder) IncRetry(_, _ string) {}

func (n *NoopRecorder) ObserveQueueWait(_ string, _ time.Duration) {}

func (n *NoopRecorder) IncThrottle(_, _ string) {}

func (n *NoopRecorder) SetQueueDepth(_ int) {}
