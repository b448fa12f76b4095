// Package metrics exposes the Neural Engine's Prometheus metrics surface:
// ingestion/ledger/device/pipeline counters and gauges served over the HTTP
// server in server.go (spec.md §5's observability expectations).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AlertsProcessedTotal counts device-manager health alerts processed
	// (spec.md §4.4's HealthAlert, emitted after N consecutive degraded
	// health-check intervals).
	AlertsProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alerts_processed_total",
		Help: "Total number of health alerts processed by the device manager.",
	})

	// ActionsExecutedTotal counts named control-plane/session actions
	// (connect_device, start_session, end_session, ...) by name.
	ActionsExecutedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "actions_executed_total",
		Help: "Total number of named actions executed, by action name.",
	}, []string{"action"})

	// ActionProcessingDuration observes the latency of each named action.
	ActionProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "action_processing_duration_seconds",
		Help:    "Duration of named action execution in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"action"})

	// FeatureExtractionDuration observes the latency of a single feature
	// extraction pass over a window (spec.md §4.7).
	FeatureExtractionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feature_extraction_duration_seconds",
		Help:    "Duration of feature extraction over a processing window, in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	// SamplesShedTotal counts samples dropped by ingestion backpressure
	// shedding (spec.md §4.5), labeled by the sanitized shed reason.
	SamplesShedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "samples_shed_total",
		Help: "Total number of samples shed by ingestion backpressure, by reason.",
	}, []string{"reason"})

	// LedgerWriteErrorsTotal counts failed writes to a ledger-backing
	// store (spec.md §4.8), labeled by store name and error type.
	LedgerWriteErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_write_errors_total",
		Help: "Total number of failed ledger store writes, by store and error type.",
	}, []string{"store", "error_type"})

	// DeviceConnectAttemptsTotal counts device connection attempts by
	// driver (spec.md §4.2).
	DeviceConnectAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "device_connect_attempts_total",
		Help: "Total number of device connection attempts, by driver.",
	}, []string{"driver"})

	// DeviceConnectErrorsTotal counts failed device connection attempts
	// by driver and error type.
	DeviceConnectErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "device_connect_errors_total",
		Help: "Total number of failed device connection attempts, by driver and error type.",
	}, []string{"driver", "error_type"})

	// StoreCallsTotal counts calls made to the ledger's backing stores,
	// labeled by operation (append, verify, reconstruct, ...).
	StoreCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_calls_total",
		Help: "Total number of ledger store operations, by operation.",
	}, []string{"operation"})

	// DevicesInBackoffTotal gauges how many devices are currently in the
	// FSM's reconnect-backoff state.
	DevicesInBackoffTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "devices_in_backoff_total",
		Help: "Current number of devices in reconnect backoff.",
	})

	// ActiveStreamingSessions gauges sessions currently streaming
	// (spec.md §4.4).
	ActiveStreamingSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "active_streaming_sessions",
		Help: "Current number of active streaming sessions.",
	})

	// APIRequestsTotal counts control-plane API requests by outcome.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "api_requests_total",
		Help: "Total number of control-plane API requests, by outcome.",
	}, []string{"outcome"})

	// ChunksDroppedTotal counts chunks rejected before they ever reach the
	// backpressure buffer (spec.md §4.5), labeled by the reason they were
	// rejected (checksum, malformed, ...). Distinct from SamplesShedTotal,
	// which counts backpressure shedding of otherwise-valid chunks.
	ChunksDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chunks_dropped_total",
		Help: "Total number of chunks dropped before buffering, by reason.",
	}, []string{"reason"})
)

func RecordAlert() {
	AlertsProcessedTotal.Inc()
}

func RecordAction(action string, duration time.Duration) {
	ActionsExecutedTotal.WithLabelValues(action).Inc()
	ActionProcessingDuration.WithLabelValues(action).Observe(duration.Seconds())
}

func RecordFeatureExtraction(duration time.Duration) {
	FeatureExtractionDuration.Observe(duration.Seconds())
}

func RecordSampleShed(reason string) {
	SamplesShedTotal.WithLabelValues(reason).Inc()
}

func RecordLedgerWriteError(store, errorType string) {
	LedgerWriteErrorsTotal.WithLabelValues(store, errorType).Inc()
}

func RecordDeviceConnectAttempt(driver string) {
	DeviceConnectAttemptsTotal.WithLabelValues(driver).Inc()
}

func RecordDeviceConnectError(driver, errorType string) {
	DeviceConnectErrorsTotal.WithLabelValues(driver, errorType).Inc()
}

func RecordStoreCall(operation string) {
	StoreCallsTotal.WithLabelValues(operation).Inc()
}

func SetDevicesInBackoff(count float64) {
	DevicesInBackoffTotal.Set(count)
}

func IncrementActiveSessions() {
	ActiveStreamingSessions.Inc()
}

func DecrementActiveSessions() {
	ActiveStreamingSessions.Dec()
}

func RecordAPIRequest(outcome string) {
	APIRequestsTotal.WithLabelValues(outcome).Inc()
}

func RecordChunkDropped(reason string) {
	ChunksDroppedTotal.WithLabelValues(reason).Inc()
}

// Timer measures elapsed wall time for a single operation and records it
// against the relevant metric when the caller is done.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

func (t *Timer) RecordAction(action string) {
	RecordAction(action, t.Elapsed())
}

func (t *Timer) RecordFeatureExtraction() {
	RecordFeatureExtraction(t.Elapsed())
}
