package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/shiftwatch/shiftwatch"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Evaluation metrics
	EvaluationsTotal      metric.Int64Counter
	EvaluationDuration    metric.Float64Histogram
	EvaluationErrorsTotal metric.Int64Counter
	FlagsRaisedTotal      metric.Int64Counter

	// Alert metrics
	AlertsRecordedTotal      metric.Int64Counter
	AlertRecordFailuresTotal metric.Int64Counter
	AlertsResolvedTotal      metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.EvaluationsTotal, _ = meter.Int64Counter(
		"shiftwatch.fraud.evaluations.total",
		metric.WithDescription("Total number of fraud evaluation passes"),
		metric.WithUnit("{evaluation}"),
	)

	m.EvaluationDuration, _ = meter.Float64Histogram(
		"shiftwatch.fraud.evaluation.duration",
		metric.WithDescription("Duration of fraud evaluation passes"),
		metric.WithUnit("ms"),
	)

	m.EvaluationErrorsTotal, _ = meter.Int64Counter(
		"shiftwatch.fraud.evaluation.errors.total",
		metric.WithDescription("Total number of storage errors swallowed during evaluation"),
		metric.WithUnit("{error}"),
	)

	m.FlagsRaisedTotal, _ = meter.Int64Counter(
		"shiftwatch.fraud.flags.total",
		metric.WithDescription("Total number of fraud flags raised"),
		metric.WithUnit("{flag}"),
	)

	m.AlertsRecordedTotal, _ = meter.Int64Counter(
		"shiftwatch.fraud.alerts.recorded.total",
		metric.WithDescription("Total number of fraud alerts persisted"),
		metric.WithUnit("{alert}"),
	)

	m.AlertRecordFailuresTotal, _ = meter.Int64Counter(
		"shiftwatch.fraud.alerts.record_failures.total",
		metric.WithDescription("Total number of fraud alerts lost to insert failures"),
		metric.WithUnit("{alert}"),
	)

	m.AlertsResolvedTotal, _ = meter.Int64Counter(
		"shiftwatch.fraud.alerts.resolved.total",
		metric.WithDescription("Total number of fraud alerts resolved"),
		metric.WithUnit("{alert}"),
	)

	return m
}
