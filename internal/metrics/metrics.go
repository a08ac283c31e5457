// Package metrics exposes Prometheus instruments for the detection pipeline,
// the notification gate and the dispatcher.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Gate metrics
	GateDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "econoracle_gate_decisions_total",
			Help: "Notification gate decisions",
		},
		[]string{"kind", "reason"}, // reason: approved|rule_rejected|cooldown_active
	)

	GateStoreErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "econoracle_gate_store_errors_total",
			Help: "Cooldown store operation failures",
		},
		[]string{"operation"},
	)

	CooldownSwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "econoracle_cooldown_swept_total",
			Help: "Cooldown entries removed by the retention sweep",
		},
	)

	CooldownEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "econoracle_cooldown_entries",
			Help: "Cooldown entries remaining after the last sweep",
		},
	)

	// Pipeline metrics
	CycleRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "econoracle_cycle_runs_total",
			Help: "Detection cycles run",
		},
		[]string{"job", "status"}, // status: success|error
	)

	CycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "econoracle_cycle_duration_seconds",
			Help:    "Detection cycle duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"job"},
	)

	CycleLastRun = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "econoracle_cycle_last_run_timestamp",
			Help: "Unix timestamp of the last detection cycle",
		},
		[]string{"job"},
	)

	Detections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "econoracle_detections_total",
			Help: "Significant changes detected, by notification kind",
		},
		[]string{"job", "kind"},
	)

	SurpriseMagnitudes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "econoracle_surprise_magnitude_total",
			Help: "Calculated surprises by magnitude bucket",
		},
		[]string{"magnitude"},
	)

	// Dispatch metrics
	NotificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "econoracle_notifications_total",
			Help: "Outbound notification attempts",
		},
		[]string{"kind", "channel", "status"}, // status: success|error
	)
)

var registerOnce sync.Once

// Init registers all metrics with the default Prometheus registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(GateDecisions)
		prometheus.MustRegister(GateStoreErrors)
		prometheus.MustRegister(CooldownSwept)
		prometheus.MustRegister(CooldownEntries)

		prometheus.MustRegister(CycleRuns)
		prometheus.MustRegister(CycleDuration)
		prometheus.MustRegister(CycleLastRun)
		prometheus.MustRegister(Detections)
		prometheus.MustRegister(SurpriseMagnitudes)

		prometheus.MustRegister(NotificationsSent)
	})
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordDecision counts one gate decision
func RecordDecision(kind, reason string) {
	GateDecisions.WithLabelValues(kind, reason).Inc()
}

// RecordStoreError counts a failed cooldown store call
func RecordStoreError(operation string) {
	GateStoreErrors.WithLabelValues(operation).Inc()
}

// RecordSweep records the outcome of a cooldown sweep
func RecordSweep(removed, remaining int) {
	CooldownSwept.Add(float64(removed))
	if remaining >= 0 {
		CooldownEntries.Set(float64(remaining))
	}
}

// RecordCycle records a detection cycle
func RecordCycle(job string, duration time.Duration, err error) {
	CycleRuns.WithLabelValues(job, status(err)).Inc()
	CycleDuration.WithLabelValues(job).Observe(duration.Seconds())
	CycleLastRun.WithLabelValues(job).SetToCurrentTime()
}

// RecordDetections adds n detections of kind for job
func RecordDetections(job, kind string, n int) {
	if n > 0 {
		Detections.WithLabelValues(job, kind).Add(float64(n))
	}
}

// RecordSurprise counts a surprise by magnitude
func RecordSurprise(magnitude string) {
	SurpriseMagnitudes.WithLabelValues(magnitude).Inc()
}

// RecordNotification records an outbound send attempt
func RecordNotification(kind, channel string, err error) {
	NotificationsSent.WithLabelValues(kind, channel, status(err)).Inc()
}
