package infra

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Settlement outcomes.
const (
	OutcomeSettled  = "settled"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// SettlementMetrics holds the settlement and reconciliation collectors.
// A nil *SettlementMetrics records nothing.
type SettlementMetrics struct {
	settlements       *prometheus.CounterVec
	duration          prometheus.Histogram
	credited          prometheus.Counter
	winners           prometheus.Counter
	skipped           *prometheus.CounterVec
	reconcileFailures prometheus.Gauge
}

// NewSettlementMetrics registers the collectors on reg.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	f := promauto.With(reg)
	return &SettlementMetrics{
		settlements: f.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_settlements_total",
			Help: "Prize distribution attempts by outcome.",
		}, []string{"outcome"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "arena_settlement_duration_seconds",
			Help:    "Wall time of committed prize distributions.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		credited: f.NewCounter(prometheus.CounterOpts{
			Name: "arena_prize_credited_minor_units_total",
			Help: "Sum of prizes credited to wallets, in minor units.",
		}),
		winners: f.NewCounter(prometheus.CounterOpts{
			Name: "arena_prize_winners_total",
			Help: "Number of wallet credits made by prize distributions.",
		}),
		skipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_prize_skipped_total",
			Help: "Winners skipped during distribution by reason.",
		}, []string{"reason"}),
		reconcileFailures: f.NewGauge(prometheus.GaugeOpts{
			Name: "arena_reconcile_failures",
			Help: "Invariant failures found by the last reconciliation run.",
		}),
	}
}

// ObserveSettlement counts one distribution attempt.
func (m *SettlementMetrics) ObserveSettlement(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(outcome).Inc()
	if outcome == OutcomeSettled {
		m.duration.Observe(elapsed.Seconds())
	}
}

// AddCredited records credited winners and their total.
func (m *SettlementMetrics) AddCredited(winners int, total int64) {
	if m == nil {
		return
	}
	m.winners.Add(float64(winners))
	m.credited.Add(float64(total))
}

// AddSkipped records one skipped winner.
func (m *SettlementMetrics) AddSkipped(reason string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(reason).Inc()
}

// SetReconcileFailures publishes the failure count of the last reconciliation.
func (m *SettlementMetrics) SetReconcileFailures(n int) {
	if m == nil {
		return
	}
	m.reconcileFailures.Set(float64(n))
}

// NewMetricsRegistry returns a registry with the Go and process collectors.
func NewMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// MetricsHandler serves reg in the Prometheus text format.
func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
