package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricPrefix = "equipment_analytics_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	tickTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "pipeline_phase_total",
			Help: "Pipeline phase executions by phase and result",
		},
		[]string{"phase", "result"},
	)

	tickDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    metricPrefix + "pipeline_phase_duration_seconds",
			Help:    "Pipeline phase duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"},
	)

	healthRecordsWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: metricPrefix + "health_records_written_total",
			Help: "Derived health records written",
		},
	)

	alertsOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "alerts_opened_total",
			Help: "Alerts opened by severity",
		},
		[]string{"severity"},
	)

	alertsCleared = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: metricPrefix + "alerts_cleared_total",
			Help: "Alerts transitioned to PENDING",
		},
	)

	alertsAcknowledged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: metricPrefix + "alerts_acknowledged_total",
			Help: "Alerts reconciled to ACKNOWLEDGED",
		},
	)

	ingestMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "ingest_messages_total",
			Help: "Ingest messages by result",
		},
		[]string{"result"},
	)
)

// Init registers all collectors with the default registry. Safe to call more
// than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			tickTotal,
			tickDuration,
			healthRecordsWritten,
			alertsOpened,
			alertsCleared,
			alertsAcknowledged,
			ingestMessages,
		)
	})
}

// Handler serves the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePhase records one pipeline phase execution.
func ObservePhase(phase string, err error, elapsed time.Duration) {
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	tickTotal.WithLabelValues(phase, result).Inc()
	tickDuration.WithLabelValues(phase).Observe(elapsed.Seconds())
}

// AddHealthRecords records derived health records written in a tick.
func AddHealthRecords(n int) {
	if n > 0 {
		healthRecordsWritten.Add(float64(n))
	}
}

// AlertOpened records one newly created alert.
func AlertOpened(severity string) {
	alertsOpened.WithLabelValues(severity).Inc()
}

// AlertsCleared records alerts moved to PENDING in a tick.
func AlertsCleared(n int) {
	if n > 0 {
		alertsCleared.Add(float64(n))
	}
}

// AlertsAcknowledged records alerts reconciled to ACKNOWLEDGED in a tick.
func AlertsAcknowledged(n int) {
	if n > 0 {
		alertsAcknowledged.Add(float64(n))
	}
}

// IngestMessage records one consumed ingest message by outcome
// ("accepted", "duplicate", "rejected", "error").
func IngestMessage(result string) {
	ingestMessages.WithLabelValues(result).Inc()
}
