// Package metrics provides Prometheus-based metrics recording.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	requestsTotal   *prometheus.CounterVec
	promptTokens    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	retriesTotal    *prometheus.CounterVec
	throttleTotal   *prometheus.CounterVec
	queueWaitTime   *prometheus.HistogramVec
	queueDepth      prometheus.Gauge
}

// NewPrometheusRecorder creates a new Prometheus-based metrics recorder.
func NewPrometheusRecorder() *PrometheusRecorder {
	return &PrometheusRecorder{
		requestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "generation_requests_total",
				Help: "Total number of generation requests by model, operation, and status",
			},
			[]string{"model", "operation", "status", "error_type"},
		),
		promptTokens: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "generation_prompt_tokens_total",
				Help: "Estimated prompt tokens submitted to the generation API",
			},
			[]string{"model", "operation"},
		),
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "generation_request_duration_seconds",
				Help:    "Duration of governed generation requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model", "operation"},
		),
		retriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governor_retries_total",
				Help: "Total number of governed call retries by error type",
			},
			[]string{"model", "error_type"},
		),
		throttleTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governor_throttle_total",
				Help: "Dispatches delayed by the spacing or window policy",
			},
			[]string{"model", "reason"},
		),
		queueWaitTime: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "governor_queue_wait_duration_seconds",
				Help:    "Time calls spent queued before dispatch",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model"},
		),
		queueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "governor_queue_depth",
				Help: "Current number of calls waiting in the governor queue",
			},
		),
	}
}

// ObserveRequest records one completed generation attempt chain.
func (p *PrometheusRecorder) ObserveRequest(model, operation string, promptTokens int, success bool, errorType string, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}

	p.requestsTotal.WithLabelValues(model, operation, status, errorType).Inc()
	if promptTokens > 0 {
		p.promptTokens.WithLabelValues(model, operation).Add(float64(promptTokens))
	}
	p.requestDuration.WithLabelValues(model, operation).Observe(duration.Seconds())
}

// IncRetry counts a retry of a governed call.
func (p *PrometheusRecorder) IncRetry(model, errorType string) {
	p.retriesTotal.WithLabelValues(model, errorType).Inc()
}

// ObserveQueueWait records time spent queued before dispatch.
func (p *PrometheusRecorder) ObserveQueueWait(model string, duration time.Duration) {
	p.queueWaitTime.WithLabelValues(model).Observe(duration.Seconds())
}

// IncThrottle counts a delayed dispatch.
func (p *PrometheusRecorder) IncThrottle(model, reason string) {
	p.throttleTotal.WithLabelValues(model, reason).Inc()
}

// SetQueueDepth reports the current queue depth.
func (p *PrometheusRecorder) SetQueueDepth(depth int) {
	p.queueDepth.Set(float64(depth))
}
