// internal/metrics/prometheus.go
// Package metrics exposes Prometheus instrumentation for calibration runs.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mwiater/aibff/internal/logging"
)

var (
	// samplesCompleted counts samples graded successfully.
	// Labels: grader, model
	samplesCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aibff",
		Subsystem: "calibrate",
		Name:      "samples_completed_total",
		Help:      "Samples graded successfully",
	}, []string{"grader", "model"})

	// samplesFailed counts samples that exhausted their attempts.
	// Labels: grader, model
	samplesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aibff",
		Subsystem: "calibrate",
		Name:      "samples_failed_total",
		Help:      "Samples that failed after all attempts",
	}, []string{"grader", "model"})

	// retries counts scheduled retries.
	// Labels: model, reason (rate_limit, error)
	retries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aibff",
		Subsystem: "calibrate",
		Name:      "retries_total",
		Help:      "Grading retries by reason",
	}, []string{"model", "reason"})

	// gradingLatency measures one grading attempt.
	// Labels: model, status (success, error)
	gradingLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "aibff",
		Subsystem: "calibrate",
		Name:      "grading_latency_seconds",
		Help:      "Latency of a single grading attempt in seconds",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"model", "status"})

	inFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "aibff",
		Subsystem: "calibrate",
		Name:      "in_flight",
		Help:      "Grading attempts currently holding a concurrency slot",
	})

	// checkpoints counts checkpoint writes.
	// Labels: status (success, error)
	checkpoints = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aibff",
		Subsystem: "calibrate",
		Name:      "checkpoints_total",
		Help:      "Checkpoint writes by status",
	}, []string{"status"})
)

// RecordCompleted records a successfully graded sample.
func RecordCompleted(grader, model string) {
	samplesCompleted.WithLabelValues(grader, model).Inc()
}

// RecordFailed records a sample that will not be retried again.
func RecordFailed(grader, model string) {
	samplesFailed.WithLabelValues(grader, model).Inc()
}

// RecordRetry records a scheduled retry.
//
// Inputs:
//
//	model - The grading model.
//	rateLimited - Whether the failed attempt was rate limited.
func RecordRetry(model string, rateLimited bool) {
	reason := "error"
	if rateLimited {
		reason = "rate_limit"
	}
	retries.WithLabelValues(model, reason).Inc()
}

// RecordLatency records the duration of one grading attempt.
func RecordLatency(model string, success bool, d time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	gradingLatency.WithLabelValues(model, status).Observe(d.Seconds())
}

// InFlightAdd adjusts the in-flight gauge by delta.
func InFlightAdd(delta float64) {
	inFlight.Add(delta)
}

// RecordCheckpoint records the outcome of a checkpoint write.
func RecordCheckpoint(err error) {
	if err != nil {
		checkpoints.WithLabelValues("error").Inc()
		return
	}
	checkpoints.WithLabelValues("success").Inc()
}

// Serve exposes /metrics on addr in the background. The returned function
// shuts the server down.
func Serve(addr string) func(context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logging.LogEvent("[METRICS] serving Prometheus metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.LogWarning("metrics server stopped: %v", err)
		}
	}()

	return srv.Shutdown
}
