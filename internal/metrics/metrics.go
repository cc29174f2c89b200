// Package metrics exposes the coordinator's counters to Prometheus. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	operations   *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	tickDuration prometheus.Histogram
	pathError    prometheus.Gauge
	state        *prometheus.GaugeVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fluid_operations_total",
			Help: "Operations by identifier and outcome",
		}, []string{"operation", "outcome"}),

		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fluid_state_transitions_total",
			Help: "State transitions by source and destination",
		}, []string{"from", "to"}),

		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fluid_tick_duration_seconds",
			Help:    "Time spent in one control cycle",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 12), // 50us to ~100ms
		}),

		pathError: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fluid_path_error_meters",
			Help: "Distance to the nearest path point of the active path",
		}),

		state: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fluid_state",
			Help: "1 for the active state",
		}, []string{"state"}),
	}
}

func (m *Metrics) ObserveOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
	m.state.Reset()
	m.state.WithLabelValues(to).Set(1)
}

func (m *Metrics) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(d.Seconds())
}

func (m *Metrics) SetPathError(meters float64) {
	if m == nil {
		return
	}
	m.pathError.Set(meters)
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
