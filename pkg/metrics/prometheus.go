// Package metrics provides Prometheus metrics for the biotica IBR service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Index computation
	ibrComputations    *prometheus.CounterVec
	computeLatency     prometheus.Histogram
	validationFailures prometheus.Counter
	diagnostics        *prometheus.CounterVec
	diagnosticsLatency *prometheus.HistogramVec

	// Measurement ingestion
	measurementsProcessed prometheus.Counter
	measurementsDuplicate prometheus.Counter

	// Queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueued          prometheus.Counter
	queueDequeued          prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Workers
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Store
	storeRecordsTotal  prometheus.Gauge
	storeUpdateLatency prometheus.Histogram
	storeQueryLatency  prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec

	// Live feed and config
	wsClients     prometheus.Gauge
	wsBroadcasts  prometheus.Counter
	configReloads prometheus.Counter

	// Runtime
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton used by the package-level recorders

// customRegistry keeps the default Go collectors out of /metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // exported through GetRegistry

func init() { //nolint:gochecknoinits // global manager bootstrap
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "biotica",
		subsystem:        "ibr",
		histogramBuckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.ibrComputations = m.counterVec("computations_total", "IBR computations by classification", "classification")
	m.computeLatency = m.histogram("compute_latency_ms", "IBR computation latency in milliseconds")
	m.validationFailures = m.counter("validation_failures_total", "Parameter sets rejected by validation")
	m.diagnostics = m.counterVec("diagnostics_total", "Statistical diagnostics executed by kind", "kind")
	m.diagnosticsLatency = m.histogramVec("diagnostics_latency_ms", "Statistical diagnostic latency in milliseconds", "kind")

	m.measurementsProcessed = m.counter("measurements_processed_total", "Measurements scored and stored")
	m.measurementsDuplicate = m.counter("measurements_duplicate_total", "Measurements dropped as duplicates")

	m.queueSize = m.gauge("queue_size", "Measurements waiting in the queue")
	m.queueCapacity = m.gauge("queue_capacity", "Queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue fill ratio (0.0-1.0)")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Measurements enqueued")
	m.queueDequeued = m.counter("queue_dequeued_total", "Measurements dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Enqueue attempts rejected")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_ms", "Time from enqueue to processing in milliseconds")

	m.workerCount = m.gauge("workers", "Configured worker count")
	m.workerActiveCount = m.gauge("workers_active", "Workers currently processing a measurement")
	m.workerIdleCount = m.gauge("workers_idle", "Workers waiting for work")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_ms", "Per-measurement processing latency in milliseconds")
	m.workerErrors = m.counter("worker_errors_total", "Measurements that failed processing")

	m.storeRecordsTotal = m.gauge("store_records", "Sites held by the store")
	m.storeUpdateLatency = m.histogram("store_update_latency_ms", "Store write latency in milliseconds")
	m.storeQueryLatency = m.histogram("store_query_latency_ms", "Store read latency in milliseconds")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_ms", "HTTP request latency in milliseconds",
		"endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_total", "Errors by component and type", "component", "error_type")

	m.wsClients = m.gauge("ws_clients", "Connected live-feed clients")
	m.wsBroadcasts = m.counter("ws_broadcasts_total", "Results pushed to live-feed clients")
	m.configReloads = m.counter("config_reloads_total", "Configuration file reloads applied")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap memory in use")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Running goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_ms", "Most recent GC pause in milliseconds")
}

// RecordIBRComputation counts a computation by its classification label.
func RecordIBRComputation(classification string) {
	globalManager.ibrComputations.WithLabelValues(classification).Inc()
}

// RecordComputeLatency records IBR computation latency.
func RecordComputeLatency(latencyMs float64) { globalManager.computeLatency.Observe(latencyMs) }

// RecordValidationFailure counts a rejected parameter set.
func RecordValidationFailure() { globalManager.validationFailures.Inc() }

// RecordDiagnostic counts a diagnostic run and its latency.
func RecordDiagnostic(kind string, latencyMs float64) {
	globalManager.diagnostics.WithLabelValues(kind).Inc()
	globalManager.diagnosticsLatency.WithLabelValues(kind).Observe(latencyMs)
}

// RecordMeasurementProcessed counts a stored measurement.
func RecordMeasurementProcessed() { globalManager.measurementsProcessed.Inc() }

// RecordMeasurementDuplicate counts a dropped duplicate.
func RecordMeasurementDuplicate() { globalManager.measurementsDuplicate.Inc() }

// UpdateQueueSize sets the current queue depth.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) { globalManager.queueUtilization.Set(utilization) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.queueDequeued.Inc() }

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }

// RecordQueueProcessingLatency records queue wait time.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) { globalManager.workerActiveCount.Set(float64(count)) }

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) { globalManager.workerIdleCount.Set(float64(count)) }

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// UpdateStoreRecordsTotal sets the number of sites in the store.
func UpdateStoreRecordsTotal(count int) { globalManager.storeRecordsTotal.Set(float64(count)) }

// RecordStoreUpdateLatency records a store write.
func RecordStoreUpdateLatency(latencyMs float64) { globalManager.storeUpdateLatency.Observe(latencyMs) }

// RecordStoreQueryLatency records a store read.
func RecordStoreQueryLatency(latencyMs float64) { globalManager.storeQueryLatency.Observe(latencyMs) }

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request latency.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateWSClients sets the number of connected live-feed clients.
func UpdateWSClients(count int) { globalManager.wsClients.Set(float64(count)) }

// RecordWSBroadcast counts a broadcast message.
func RecordWSBroadcast() { globalManager.wsBroadcasts.Inc() }

// RecordConfigReload counts an applied configuration reload.
func RecordConfigReload() { globalManager.configReloads.Inc() }

// UpdateSystemMemoryUsage sets the heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// GetRegistry returns the registry backing the package-level recorders.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
