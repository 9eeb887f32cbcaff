package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/lesson-scheduler-api/pkg/jobs"
)

const metricsNamespace = "lesson_scheduler"

// MetricsSnapshot is the JSON digest served by /metrics/summary.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	CacheHits                uint64    `json:"cacheHits"`
	CacheMisses              uint64    `json:"cacheMisses"`
	CacheHitRatio            float64   `json:"cacheHitRatio"`
	ScheduleRuns             uint64    `json:"scheduleRuns"`
	CompleteRuns             uint64    `json:"completeRuns"`
	SolvePhases              uint64    `json:"solvePhases"`
	AverageSolveMs           float64   `json:"averageSolveMs"`
	JobsSucceeded            uint64    `json:"jobsSucceeded"`
	JobsFailed               uint64    `json:"jobsFailed"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}

type httpCollectors struct {
	duration *prometheus.HistogramVec
	total    *prometheus.CounterVec
}

type cacheCollectors struct {
	lookups *prometheus.CounterVec
	latency *prometheus.HistogramVec
	ratio   prometheus.Gauge
}

type solverCollectors struct {
	phaseDuration *prometheus.HistogramVec
	runs          *prometheus.CounterVec
	placementRate prometheus.Histogram
	jobs          *prometheus.HistogramVec
}

// running totals behind Snapshot
type metricTotals struct {
	requests      atomic.Uint64
	requestNanos  atomic.Uint64
	cacheHits     atomic.Uint64
	cacheMisses   atomic.Uint64
	runs          atomic.Uint64
	completeRuns  atomic.Uint64
	phases        atomic.Uint64
	phaseNanos    atomic.Uint64
	jobsSucceeded atomic.Uint64
	jobsFailed    atomic.Uint64
}

// MetricsService owns the Prometheus registry for HTTP, cache, solver and job instrumentation.
// A nil *MetricsService is a valid no-op observer.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler
	http     httpCollectors
	cache    cacheCollectors
	solver   solverCollectors
	totals   metricTotals
}

// NewMetricsService builds a private registry with every collector registered.
func NewMetricsService() *MetricsService {
	m := &MetricsService{registry: prometheus.NewRegistry()}

	m.http = httpCollectors{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
	}

	m.cache = cacheCollectors{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "result_cache",
			Name:      "lookups_total",
			Help:      "Result cache lookups by outcome.",
		}, []string{"outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "result_cache",
			Name:      "operation_seconds",
			Help:      "Result cache round trips.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"operation"}),
		ratio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "result_cache",
			Name:      "hit_ratio",
			Help:      "Hits over all lookups since start.",
		}),
	}

	m.solver = solverCollectors{
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "solver",
			Name:      "phase_duration_seconds",
			Help:      "Wall time of each solver phase.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 15},
		}, []string{"phase", "status"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "solver",
			Name:      "runs_total",
			Help:      "Engine runs by final phase and completeness.",
		}, []string{"phase", "complete"}),
		placementRate: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "solver",
			Name:      "placement_rate_percent",
			Help:      "Share of requested sessions placed per run.",
			Buckets:   []float64{50, 75, 90, 95, 99, 100},
		}),
		jobs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "jobs",
			Name:      "turnaround_seconds",
			Help:      "Time from enqueue to final status of background jobs.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 15, 30, 60},
		}, []string{"queue", "status"}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "goroutines",
		Help:      "Live goroutines.",
	}, func() float64 { return float64(runtime.NumGoroutine()) })

	m.registry.MustRegister(
		m.http.duration, m.http.total,
		m.cache.lookups, m.cache.latency, m.cache.ratio,
		m.solver.phaseDuration, m.solver.runs, m.solver.placementRate, m.solver.jobs,
		goroutines,
	)
	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest is called by the request middleware with the matched route.
func (m *MetricsService) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.http.duration.WithLabelValues(method, route, code).Observe(duration.Seconds())
	m.http.total.WithLabelValues(method, route, code).Inc()
	m.totals.requests.Add(1)
	m.totals.requestNanos.Add(uint64(duration.Nanoseconds()))
}

// RecordCacheOperation counts a result cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
		m.totals.cacheHits.Add(1)
	} else {
		m.totals.cacheMisses.Add(1)
	}
	m.cache.lookups.WithLabelValues(outcome).Inc()
	m.cache.latency.WithLabelValues("get").Observe(duration.Seconds())

	hits, misses := m.totals.cacheHits.Load(), m.totals.cacheMisses.Load()
	m.cache.ratio.Set(float64(hits) / float64(hits+misses))
}

// ObserveCacheWrite times a result cache write.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cache.latency.WithLabelValues("set").Observe(duration.Seconds())
}

// ObserveSolvePhase records one solver phase.
func (m *MetricsService) ObserveSolvePhase(phase, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.solver.phaseDuration.WithLabelValues(phase, status).Observe(duration.Seconds())
	m.totals.phases.Add(1)
	m.totals.phaseNanos.Add(uint64(duration.Nanoseconds()))
}

// ObserveScheduleRun records the outcome of a finished engine run.
func (m *MetricsService) ObserveScheduleRun(phase string, complete bool, placementRate float64) {
	if m == nil {
		return
	}
	m.solver.runs.WithLabelValues(phase, strconv.FormatBool(complete)).Inc()
	m.solver.placementRate.Observe(placementRate)
	m.totals.runs.Add(1)
	if complete {
		m.totals.completeRuns.Add(1)
	}
}

// ObserveJob records a background job reaching a final status.
func (m *MetricsService) ObserveJob(queue string, status jobs.Status, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.solver.jobs.WithLabelValues(queue, string(status)).Observe(elapsed.Seconds())
	switch status {
	case jobs.StatusSucceeded:
		m.totals.jobsSucceeded.Add(1)
	case jobs.StatusFailed:
		m.totals.jobsFailed.Add(1)
	}
}

// Snapshot aggregates the running totals.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	snap := MetricsSnapshot{
		RequestsTotal: m.totals.requests.Load(),
		CacheHits:     m.totals.cacheHits.Load(),
		CacheMisses:   m.totals.cacheMisses.Load(),
		ScheduleRuns:  m.totals.runs.Load(),
		CompleteRuns:  m.totals.completeRuns.Load(),
		SolvePhases:   m.totals.phases.Load(),
		JobsSucceeded: m.totals.jobsSucceeded.Load(),
		JobsFailed:    m.totals.jobsFailed.Load(),
		Goroutines:    runtime.NumGoroutine(),
		GeneratedAt:   time.Now().UTC(),
	}
	if lookups := snap.CacheHits + snap.CacheMisses; lookups > 0 {
		snap.CacheHitRatio = float64(snap.CacheHits) / float64(lookups)
	}
	snap.AverageRequestDurationMs = averageMillis(m.totals.requestNanos.Load(), snap.RequestsTotal)
	snap.AverageSolveMs = averageMillis(m.totals.phaseNanos.Load(), snap.SolvePhases)
	return snap
}

func averageMillis(totalNanos, count uint64) float64 {
	if count == 0 {
		return 0
	}
	return float64(totalNanos) / float64(count) / float64(time.Millisecond)
}
