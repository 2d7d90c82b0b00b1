// Package metrics provides Prometheus metrics for the points ledger service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Fetch and parse
	fetchRequests  *prometheus.CounterVec
	fetchLatency   prometheus.Histogram
	fetchRetries   prometheus.Counter
	strategyHits   *prometheus.CounterVec
	resolutions    *prometheus.CounterVec
	taskTimeouts   prometheus.Counter
	invalidSkipped prometheus.Counter

	// Batches and jobs
	batchDuration prometheus.Histogram
	batches       *prometheus.CounterVec
	batchInflight prometheus.Gauge
	jobs          *prometheus.CounterVec
	jobsActive    prometheus.Gauge
	jobsExpired   prometheus.Counter

	// Ledger
	ledgerWrites     *prometheus.CounterVec
	ledgerWriteError *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "points",
		subsystem:        "ledger",
		histogramBuckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	m.fetchRequests = m.counterVec("fetch_requests_total",
		"Profile page fetches by outcome (ok, timeout, network, status, skipped)", "outcome")
	m.fetchLatency = m.histogram("fetch_latency_milliseconds",
		"Profile page fetch latency in milliseconds, jitter delay excluded", m.histogramBuckets)
	m.fetchRetries = m.counter("fetch_retries_total",
		"Number of fetch attempts that were retries")
	m.strategyHits = m.counterVec("extraction_strategy_total",
		"Successful extractions by parsing strategy", "strategy")
	m.resolutions = m.counterVec("resolutions_total",
		"Per-participant resolutions by status and fallback reason", "status", "reason")
	m.taskTimeouts = m.counter("task_timeouts_total",
		"Resolution tasks abandoned by the per-task or batch deadline")
	m.invalidSkipped = m.counter("invalid_profiles_total",
		"Participants skipped because their profile reference is a placeholder")

	m.batchDuration = m.histogram("batch_duration_milliseconds",
		"Wall-clock duration of one batch in milliseconds", m.histogramBuckets)
	m.batches = m.counterVec("batches_total", "Batches by terminal status", "status")
	m.batchInflight = m.gauge("batch_inflight_tasks", "Resolution tasks currently running")
	m.jobs = m.counterVec("jobs_total", "Processing jobs by kind and terminal status", "kind", "status")
	m.jobsActive = m.gauge("jobs_active", "Processing jobs that are not yet terminal")
	m.jobsExpired = m.counter("jobs_expired_total", "Processing jobs evicted after inactivity")

	m.ledgerWrites = m.counterVec("ledger_writes_total", "Ledger write transactions by operation", "op")
	m.ledgerWriteError = m.counterVec("ledger_write_errors_total", "Failed ledger write transactions by operation", "op")

	auto := promauto.With(m.registry)
	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_requests_total",
		Help:        "Total number of HTTP requests by endpoint and method",
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordFetch counts one fetch by outcome and observes its latency.
func RecordFetch(outcome string, latencyMs float64) {
	globalManager.fetchRequests.WithLabelValues(outcome).Inc()
	if outcome != "skipped" {
		globalManager.fetchLatency.Observe(latencyMs)
	}
}

// RecordFetchRetry increments the retry counter.
func RecordFetchRetry() {
	globalManager.fetchRetries.Inc()
}

// RecordStrategyHit counts a successful extraction by strategy name.
func RecordStrategyHit(strategy string) {
	globalManager.strategyHits.WithLabelValues(strategy).Inc()
}

// RecordResolution counts a terminal resolution.
func RecordResolution(status, reason string) {
	globalManager.resolutions.WithLabelValues(status, reason).Inc()
}

// RecordTaskTimeout counts a task abandoned by a deadline.
func RecordTaskTimeout() {
	globalManager.taskTimeouts.Inc()
}

// RecordInvalidProfile counts a placeholder profile that was skipped.
func RecordInvalidProfile() {
	globalManager.invalidSkipped.Inc()
}

// RecordBatch observes one finished batch.
func RecordBatch(status string, durationMs float64) {
	globalManager.batches.WithLabelValues(status).Inc()
	globalManager.batchDuration.Observe(durationMs)
}

// AddBatchInflight moves the in-flight task gauge by delta.
func AddBatchInflight(delta int) {
	globalManager.batchInflight.Add(float64(delta))
}

// RecordJob counts a job reaching a terminal status.
func RecordJob(kind, status string) {
	globalManager.jobs.WithLabelValues(kind, status).Inc()
}

// UpdateJobsActive sets the number of non-terminal jobs.
func UpdateJobsActive(count int) {
	globalManager.jobsActive.Set(float64(count))
}

// RecordJobsExpired adds n evicted jobs.
func RecordJobsExpired(n int) {
	globalManager.jobsExpired.Add(float64(n))
}

// RecordLedgerWrite counts a write transaction; failed marks the error counter as well.
func RecordLedgerWrite(op string, failed bool) {
	globalManager.ledgerWrites.WithLabelValues(op).Inc()
	if failed {
		globalManager.ledgerWriteError.WithLabelValues(op).Inc()
	}
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
