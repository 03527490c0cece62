package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "listify",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"method", "route", "code"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "listify",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	pipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "listify",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Asset pipeline runs by terminal status.",
		},
		[]string{"status"},
	)
	pipelineStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "listify",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual pipeline stages.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"stage"},
	)

	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "listify",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Asset cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	workerJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "listify",
			Subsystem: "worker",
			Name:      "jobs_total",
			Help:      "Listing jobs processed by the worker.",
		},
		[]string{"result"},
	)
	workerJobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "listify",
			Subsystem: "worker",
			Name:      "job_duration_seconds",
			Help:      "End-to-end listing job duration.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		pipelineRunsTotal,
		pipelineStageDuration,
		cacheLookupsTotal,
		workerJobsTotal,
		workerJobDuration,
	)
}

// MetricsMiddleware records request count and latency. The route label uses
// the chi pattern so path parameters never blow up cardinality.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		code := strconv.Itoa(rec.code)
		httpRequestsTotal.WithLabelValues(r.Method, route, code).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.code = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// RecordPipelineRun counts one finished pipeline invocation.
func RecordPipelineRun(status string) {
	pipelineRunsTotal.WithLabelValues(status).Inc()
}

// ObserveStage times one pipeline stage from start to now.
func ObserveStage(stage string, start time.Time) {
	pipelineStageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// RecordCacheLookup counts a cache hit or miss.
func RecordCacheLookup(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	cacheLookupsTotal.WithLabelValues(outcome).Inc()
}

// RecordWorkerJob counts one claimed job and its duration.
func RecordWorkerJob(start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	workerJobsTotal.WithLabelValues(result).Inc()
	workerJobDuration.Observe(time.Since(start).Seconds())
}
