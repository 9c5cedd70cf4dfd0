// Package metrics exposes Prometheus collectors for rate resolution and backfills.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
	OutcomeNoRate  = "no_rate"
	OutcomeTimeout = "timeout"
)

// Metrics holds all collectors.
type Metrics struct {
	ProviderRequestsTotal   *prometheus.CounterVec
	ProviderRequestDuration *prometheus.HistogramVec
	ResolutionsTotal        *prometheus.CounterVec
	BackfillTasksTotal      *prometheus.CounterVec
	BackfillInFlight        prometheus.Gauge
	BackfillRatesSaved      prometheus.Counter
}

// New registers all collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ProviderRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxrates_provider_requests_total",
				Help: "Provider adapter calls by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		),
		ProviderRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fxrates_provider_request_duration_seconds",
				Help:    "Provider adapter call latency.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		ResolutionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxrates_resolutions_total",
				Help: "Single rate resolutions by outcome.",
			},
			[]string{"outcome"},
		),
		BackfillTasksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxrates_backfill_tasks_total",
				Help: "Backfill fetch tasks by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		),
		BackfillInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "fxrates_backfill_in_flight",
				Help: "Backfill fetches currently executing.",
			},
		),
		BackfillRatesSaved: f.NewCounter(
			prometheus.CounterOpts{
				Name: "fxrates_backfill_rates_saved_total",
				Help: "Exchange rates newly inserted by backfills.",
			},
		),
	}
}

// ObserveProviderCall records one adapter call.
func (m *Metrics) ObserveProviderCall(provider, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ProviderRequestsTotal.WithLabelValues(provider, outcome).Inc()
	m.ProviderRequestDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// ObserveResolution records the terminal outcome of one resolution.
func (m *Metrics) ObserveResolution(outcome string) {
	if m == nil {
		return
	}
	m.ResolutionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveBackfillTask records one finished backfill task.
func (m *Metrics) ObserveBackfillTask(provider, outcome string) {
	if m == nil {
		return
	}
	m.BackfillTasksTotal.WithLabelValues(provider, outcome).Inc()
}

// TaskStarted increments the in-flight gauge.
func (m *Metrics) TaskStarted() {
	if m == nil {
		return
	}
	m.BackfillInFlight.Inc()
}

// TaskFinished decrements the in-flight gauge.
func (m *Metrics) TaskFinished() {
	if m == nil {
		return
	}
	m.BackfillInFlight.Dec()
}

// AddSaved counts newly inserted backfill rows.
func (m *Metrics) AddSaved(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.BackfillRatesSaved.Add(float64(n))
}
