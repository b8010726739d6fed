package metrics

import (
	"time"

	"github.com/ledgersweep/ledgersweep/internal/observability"
)

// Application-level metrics following Prometheus conventions
var (
	// External accounting calls
	AccountingCallsTotal    = "accounting_calls_total"
	AccountingCallDuration  = "accounting_call_duration_ms"
	AccountingThrottleTotal = "accounting_throttled_total"

	// Batch outcomes
	RecordOutcomesTotal = "record_outcomes_total"
	BatchDuration       = "batch_duration_ms"
	BatchRecords        = "batch_records"

	// Health check metrics
	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"

	// Server lifecycle metrics
	ServerStartTime = "app_server_start_time_seconds"
)

// RecordAccountingCall records one external call with its logged status.
func RecordAccountingCall(operation, entity, status string, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}

	_ = observability.TelemetrySystem.Counter(
		AccountingCallsTotal,
		1,
		map[string]string{
			"operation": operation,
			"entity":    entity,
			"status":    status,
		},
	)
	_ = observability.TelemetrySystem.Histogram(
		AccountingCallDuration,
		duration,
		map[string]string{
			"operation": operation,
			"entity":    entity,
		},
	)
	if status == "THROTTLED" {
		_ = observability.TelemetrySystem.Counter(AccountingThrottleTotal, 1, map[string]string{"entity": entity})
	}
}

// RecordRecordOutcome counts a classified record.
func RecordRecordOutcome(status string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			RecordOutcomesTotal,
			1,
			map[string]string{"status": status},
		)
	}
}

// RecordBatch records a finished batch.
func RecordBatch(source string, records int, duration time.Duration) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Histogram(
			BatchDuration,
			duration,
			map[string]string{"source": source},
		)
		_ = observability.TelemetrySystem.Gauge(
			BatchRecords,
			float64(records),
			map[string]string{"source": source},
		)
	}
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			HealthCheckTotal,
			1,
			map[string]string{
				"check":  checkName,
				"status": status,
			},
		)

		_ = observability.TelemetrySystem.Histogram(
			HealthCheckDuration,
			duration,
			map[string]string{
				"check": checkName,
			},
		)
	}
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerStartTime,
			float64(timestamp),
			nil,
		)
	}
}
