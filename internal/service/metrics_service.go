package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/convalidation-api/pkg/convalidation"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the impact engine.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	dbQueryDuration *prometheus.HistogramVec

	runDuration       *prometheus.HistogramVec
	studentsEvaluated *prometheus.CounterVec
	excessCredits     prometheus.Counter
	allocationWarns   *prometheus.CounterVec
	autoAccepted      prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	runDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "impact_run_duration_seconds",
		Help:    "Duration of impact runs by final status",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"status"})

	studentsEvaluated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "impact_students_evaluated_total",
		Help: "Students evaluated by projected progress status",
	}, []string{"status"})

	excessCredits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "impact_excess_credits_total",
		Help: "Convalidated credits that fit in no component",
	})

	allocationWarns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "impact_allocation_warnings_total",
		Help: "Equivalences skipped during allocation by warning kind",
	}, []string{"kind"})

	autoAccepted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "matcher_auto_accepted_total",
		Help: "Equivalences persisted by bulk auto-match",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHits, cacheMisses, dbQueryDuration,
		runDuration, studentsEvaluated, excessCredits, allocationWarns, autoAccepted, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:          registry,
		handler:           handler,
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		cacheLatency:      cacheLatency,
		cacheWrite:        cacheWrite,
		cacheHits:         cacheHits,
		cacheMisses:       cacheMisses,
		dbQueryDuration:   dbQueryDuration,
		runDuration:       runDuration,
		studentsEvaluated: studentsEvaluated,
		excessCredits:     excessCredits,
		allocationWarns:   allocationWarns,
		autoAccepted:      autoAccepted,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// ObserveImpactBatch records per-student outcomes of a batch.
func (m *MetricsService) ObserveImpactBatch(batch *convalidation.BatchResult) {
	if m == nil || batch == nil {
		return
	}
	for _, impact := range batch.Impacts {
		m.studentsEvaluated.WithLabelValues(string(impact.Report.Status)).Inc()
		if excess := impact.Allocation.TotalExcess(); excess > 0 {
			m.excessCredits.Add(float64(excess))
		}
		for _, w := range impact.Allocation.Warnings {
			m.allocationWarns.WithLabelValues(w.Kind).Inc()
		}
	}
}

// ObserveImpactRun records how long a run took to reach status.
func (m *MetricsService) ObserveImpactRun(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// AddAutoAccepted counts equivalences created by auto-match.
func (m *MetricsService) AddAutoAccepted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.autoAccepted.Add(float64(n))
}
