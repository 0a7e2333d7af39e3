// Package metrics exposes Prometheus instrumentation for summarization
// requests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bimmerbailey/evident/internal/evidence"
	"github.com/bimmerbailey/evident/internal/rejection"
)

const namespace = "evident"

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeCanceled = "canceled"
	OutcomeError    = "error"
)

// Metrics holds the collectors for one registry.
type Metrics struct {
	// RequestsTotal counts requests by transport and outcome.
	RequestsTotal *prometheus.CounterVec

	// RejectionsTotal counts structured rejections by code.
	RejectionsTotal *prometheus.CounterVec

	// BulletsTotal counts emitted bullets by evidence kind.
	BulletsTotal *prometheus.CounterVec

	// RedactionsTotal counts requests where at least one value was masked.
	RedactionsTotal prometheus.Counter

	// BytesExamined observes document plus baseline size.
	BytesExamined prometheus.Histogram

	// DurationSeconds observes pipeline wall time by transport.
	DurationSeconds *prometheus.HistogramVec

	// RephraseTotal counts rephrase attempts by outcome.
	RephraseTotal *prometheus.CounterVec

	// ActiveStreams tracks open SSE and WebSocket streams.
	ActiveStreams prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New registers the collectors with reg. Pass prometheus.NewRegistry() in
// tests so each instance is isolated.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Summarization requests by transport and outcome.",
		}, []string{"transport", "outcome"}),
		RejectionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Rejected requests by error code.",
		}, []string{"code"}),
		BulletsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bullets_total",
			Help:      "Emitted bullets by evidence kind.",
		}, []string{"kind"}),
		RedactionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redacted_requests_total",
			Help:      "Requests in which at least one value was redacted.",
		}),
		BytesExamined: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bytes_examined",
			Help:      "Document plus baseline bytes per request.",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 10),
		}),
		DurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "duration_seconds",
			Help:      "Summarization wall time in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"transport"}),
		RephraseTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rephrase_total",
			Help:      "Rephrase attempts by outcome.",
		}, []string{"outcome"}),
		ActiveStreams: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Currently open streaming responses.",
		}),
		gatherer: reg,
	}
}

// ObserveBundle records a successful summarization.
func (m *Metrics) ObserveBundle(transport string, b *evidence.Bundle, elapsed time.Duration) {
	m.RequestsTotal.WithLabelValues(transport, OutcomeOK).Inc()
	m.DurationSeconds.WithLabelValues(transport).Observe(elapsed.Seconds())
	m.BytesExamined.Observe(float64(b.Stats.BytesExamined))
	for _, bullet := range b.Bullets {
		kind := "unknown"
		if bullet.Evidence != nil {
			kind = string(bullet.Evidence.Kind())
		}
		m.BulletsTotal.WithLabelValues(kind).Inc()
	}
	if b.RedactionsApplied {
		m.RedactionsTotal.Inc()
	}
}

// ObserveRejection records a structured rejection.
func (m *Metrics) ObserveRejection(transport string, rej *rejection.Error) {
	m.RequestsTotal.WithLabelValues(transport, OutcomeRejected).Inc()
	m.RejectionsTotal.WithLabelValues(string(rej.Code)).Inc()
}

// ObserveFailure records a request that ended without a bundle or a
// rejection.
func (m *Metrics) ObserveFailure(transport, outcome string) {
	m.RequestsTotal.WithLabelValues(transport, outcome).Inc()
}

// ObserveRephrase records a rephrase attempt.
func (m *Metrics) ObserveRephrase(err error) {
	if err != nil {
		m.RephraseTotal.WithLabelValues(OutcomeError).Inc()
		return
	}
	m.RephraseTotal.WithLabelValues(OutcomeOK).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
