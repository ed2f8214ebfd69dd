package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds the Prometheus metrics for the banking client.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can serve it.
	Registry *prometheus.Registry

	callDuration   *prometheus.HistogramVec
	callsTotal     *prometheus.CounterVec
	remoteFailures *prometheus.CounterVec
	reloads        *prometheus.CounterVec
}

// CallStats is a snapshot of cumulative call counters, served by the
// local /statusz endpoint.
type CallStats struct {
	Succeeded float64 `json:"succeeded"`
	Failed    float64 `json:"failed"`
	ErrorRate float64 `json:"error_rate"`
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// client metrics in it. A private registry avoids "duplicate collector"
// panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		callDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bankctl_call_duration_seconds",
				Help:    "Duration of remote ledger calls by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		callsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bankctl_calls_total",
				Help: "Total remote calls by outcome.",
			},
			[]string{"status"},
		),
		remoteFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bankctl_remote_failures_total",
				Help: "Remote-call failures by kind (transport, format, application, ...).",
			},
			[]string{"kind"},
		),
		reloads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bankctl_sync_reloads_total",
				Help: "Wholesale collection reloads by collection.",
			},
			[]string{"collection"},
		),
	}
}

// RecordCallDuration records the duration of one remote call.
func (m *Metrics) RecordCallDuration(operation string, d time.Duration) {
	m.callDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrCall increments the call counter with a status label
// ("success" or "error").
func (m *Metrics) IncrCall(status string) {
	m.callsTotal.WithLabelValues(status).Inc()
}

// IncrRemoteFailure increments the failure counter for a failure kind.
func (m *Metrics) IncrRemoteFailure(kind string) {
	m.remoteFailures.WithLabelValues(kind).Inc()
}

// IncrReload increments the reload counter for a collection
// ("accounts" or "transactions").
func (m *Metrics) IncrReload(collection string) {
	m.reloads.WithLabelValues(collection).Inc()
}

// Snapshot returns the cumulative call counters.
func (m *Metrics) Snapshot() CallStats {
	succeeded := getCounterValue(m.callsTotal, "success")
	failed := getCounterValue(m.callsTotal, "error")

	stats := CallStats{Succeeded: succeeded, Failed: failed}
	if total := succeeded + failed; total > 0 {
		stats.ErrorRate = failed / total
	}
	return stats
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
