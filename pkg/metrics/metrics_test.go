package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
)

func TestRecordAlert(t *testing.T) {
	initial := testutil.ToFloat64(AlertsProcessedTotal)

	RecordAlert()

	after := testutil.ToFloat64(AlertsProcessedTotal)
	assert.Equal(t, initial+1.0, after)

	RecordAlert()

	final := testutil.ToFloat64(AlertsProcessedTotal)
	assert.Equal(t, initial+2.0, final)
}

func TestRecordAction(t *testing.T) {
	action := "test_start_session"
	duration := 500 * time.Millisecond

	initialCounter := testutil.ToFloat64(ActionsExecutedTotal.WithLabelValues(action))

	RecordAction(action, duration)

	finalCounter := testutil.ToFloat64(ActionsExecutedTotal.WithLabelValues(action))
	assert.Equal(t, initialCounter+1.0, finalCounter)
}

func TestRecordFeatureExtraction(t *testing.T) {
	duration := 2 * time.Second

	RecordFeatureExtraction(duration)

	metric := &dto.Metric{}
	FeatureExtractionDuration.Write(metric)

	assert.True(t, metric.GetHistogram().GetSampleCount() > 0, "Histogram should have recorded samples")
}

func TestRecordSampleShed(t *testing.T) {
	reason := "test_buffer_high_watermark"

	initial := testutil.ToFloat64(SamplesShedTotal.WithLabelValues(reason))

	RecordSampleShed(reason)

	final := testutil.ToFloat64(SamplesShedTotal.WithLabelValues(reason))
	assert.Equal(t, initial+1.0, final)
}

func TestRecordLedgerWriteError(t *testing.T) {
	store := "test_timeseries"
	errorType := "connection_refused"

	initial := testutil.ToFloat64(LedgerWriteErrorsTotal.WithLabelValues(store, errorType))

	RecordLedgerWriteError(store, errorType)

	final := testutil.ToFloat64(LedgerWriteErrorsTotal.WithLabelValues(store, errorType))
	assert.Equal(t, initial+1.0, final)
}

func TestRecordDeviceConnectAttempt(t *testing.T) {
	driver := "test_synthetic"

	initial := testutil.ToFloat64(DeviceConnectAttemptsTotal.WithLabelValues(driver))

	RecordDeviceConnectAttempt(driver)

	final := testutil.ToFloat64(DeviceConnectAttemptsTotal.WithLabelValues(driver))
	assert.Equal(t, initial+1.0, final)
}

func TestRecordDeviceConnectError(t *testing.T) {
	driver := "test_serial"
	errorType := "timeout"

	initial := testutil.ToFloat64(DeviceConnectErrorsTotal.WithLabelValues(driver, errorType))

	RecordDeviceConnectError(driver, errorType)

	final := testutil.ToFloat64(DeviceConnectErrorsTotal.WithLabelValues(driver, errorType))
	assert.Equal(t, initial+1.0, final)
}

func TestRecordStoreCall(t *testing.T) {
	operation := "test_append"

	initial := testutil.ToFloat64(StoreCallsTotal.WithLabelValues(operation))

	RecordStoreCall(operation)

	final := testutil.ToFloat64(StoreCallsTotal.WithLabelValues(operation))
	assert.Equal(t, initial+1.0, final)
}

func TestSetDevicesInBackoff(t *testing.T) {
	SetDevicesInBackoff(5.0)

	value := testutil.ToFloat64(DevicesInBackoffTotal)
	assert.Equal(t, 5.0, value)

	SetDevicesInBackoff(3.0)

	value = testutil.ToFloat64(DevicesInBackoffTotal)
	assert.Equal(t, 3.0, value)
}

func TestActiveSessionsGauge(t *testing.T) {
	initial := testutil.ToFloat64(ActiveStreamingSessions)

	IncrementActiveSessions()
	value := testutil.ToFloat64(ActiveStreamingSessions)
	assert.Equal(t, initial+1.0, value)

	IncrementActiveSessions()
	value = testutil.ToFloat64(ActiveStreamingSessions)
	assert.Equal(t, initial+2.0, value)

	DecrementActiveSessions()
	value = testutil.ToFloat64(ActiveStreamingSessions)
	assert.Equal(t, initial+1.0, value)

	DecrementActiveSessions()
	value = testutil.ToFloat64(ActiveStreamingSessions)
	assert.Equal(t, initial, value)
}

func TestRecordAPIRequest(t *testing.T) {
	initialSuccess := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("success"))
	initialError := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("error"))

	RecordAPIRequest("success")

	finalSuccess := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("success"))
	assert.Equal(t, initialSuccess+1.0, finalSuccess)

	RecordAPIRequest("error")

	finalError := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("error"))
	assert.Equal(t, initialError+1.0, finalError)
}

func TestTimer(t *testing.T) {
	timer := NewTimer()

	assert.NotNil(t, timer)
	assert.False(t, timer.start.IsZero())

	time.Sleep(10 * time.Millisecond)

	elapsed := timer.Elapsed()
	assert.True(t, elapsed >= 10*time.Millisecond, "Elapsed time should be at least 10ms")
	assert.True(t, elapsed < 100*time.Millisecond, "Elapsed time should be less than 100ms")
}

func TestTimerRecordAction(t *testing.T) {
	timer := NewTimer()
	action := "test_timer_action"

	initialCounter := testutil.ToFloat64(ActionsExecutedTotal.WithLabelValues(action))

	time.Sleep(10 * time.Millisecond)

	timer.RecordAction(action)

	finalCounter := testutil.ToFloat64(ActionsExecutedTotal.WithLabelValues(action))
	assert.Equal(t, initialCounter+1.0, finalCounter)
}

func TestTimerRecordFeatureExtraction(t *testing.T) {
	timer := NewTimer()

	time.Sleep(10 * time.Millisecond)

	timer.RecordFeatureExtraction()

	metric := &dto.Metric{}
	FeatureExtractionDuration.Write(metric)

	assert.True(t, metric.GetHistogram().GetSampleCount() > 0, "Histogram should have recorded samples")
}

func TestMultipleActions(t *testing.T) {
	actions := []string{"test_start_session", "test_end_session", "test_check_impedance"}

	initialValues := make(map[string]float64)
	for _, action := range actions {
		initialValues[action] = testutil.ToFloat64(ActionsExecutedTotal.WithLabelValues(action))
	}

	for _, action := range actions {
		RecordAction(action, 100*time.Millisecond)
	}

	for _, action := range actions {
		finalValue := testutil.ToFloat64(ActionsExecutedTotal.WithLabelValues(action))
		assert.Equal(t, initialValues[action]+1.0, finalValue, "Action %s should have increased by 1", action)
	}
}

func TestMetricsIntegration(t *testing.T) {
	uniqueAction := "test_integration_start_session"
	driver := "test_integration_synthetic"

	initialAlerts := testutil.ToFloat64(AlertsProcessedTotal)
	initialActions := testutil.ToFloat64(ActionsExecutedTotal.WithLabelValues(uniqueAction))
	initialConnects := testutil.ToFloat64(DeviceConnectAttemptsTotal.WithLabelValues(driver))
	initialAPI := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("success"))
	initialActive := testutil.ToFloat64(ActiveStreamingSessions)

	RecordAPIRequest("success")

	numAlerts := 3
	for i := 0; i < numAlerts; i++ {
		RecordAlert()

		RecordDeviceConnectAttempt(driver)
		RecordFeatureExtraction(500 * time.Millisecond)

		IncrementActiveSessions()
		RecordAction(uniqueAction, 200*time.Millisecond)
		DecrementActiveSessions()
	}

	finalAlerts := testutil.ToFloat64(AlertsProcessedTotal)
	assert.Equal(t, initialAlerts+float64(numAlerts), finalAlerts)

	finalActions := testutil.ToFloat64(ActionsExecutedTotal.WithLabelValues(uniqueAction))
	assert.Equal(t, initialActions+float64(numAlerts), finalActions)

	finalConnects := testutil.ToFloat64(DeviceConnectAttemptsTotal.WithLabelValues(driver))
	assert.Equal(t, initialConnects+float64(numAlerts), finalConnects)

	finalAPI := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("success"))
	assert.Equal(t, initialAPI+1.0, finalAPI)

	finalActive := testutil.ToFloat64(ActiveStreamingSessions)
	assert.Equal(t, initialActive, finalActive)
}

func TestMetricsNaming(t *testing.T) {
	metricNames := []string{
		"alerts_processed_total",
		"actions_executed_total",
		"action_processing_duration_seconds",
		"feature_extraction_duration_seconds",
		"samples_shed_total",
		"ledger_write_errors_total",
		"device_connect_attempts_total",
		"device_connect_errors_total",
		"store_calls_total",
		"devices_in_backoff_total",
		"active_streaming_sessions",
		"api_requests_total",
	}

	for _, name := range metricNames {
		assert.False(t, strings.Contains(name, "-"), "Metric name %s should not contain hyphens", name)
		assert.False(t, strings.Contains(name, " "), "Metric name %s should not contain spaces", name)

		if strings.Contains(name, "duration") {
			assert.True(t, strings.HasSuffix(name, "_seconds"), "Duration metric %s should end with _seconds", name)
		}

		if strings.Contains(name, "processed") || strings.Contains(name, "executed") ||
			strings.Contains(name, "shed") || strings.Contains(name, "errors") ||
			strings.Contains(name, "attempts") || strings.Contains(name, "calls") ||
			strings.Contains(name, "requests") {
			assert.True(t, strings.HasSuffix(name, "_total"), "Counter metric %s should end with _total", name)
		}
	}
}
