// Package metrics exposes Prometheus collectors for the cart store and its
// storage backend.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"

	"github.com/utafrali/gomarketplace/internal/domain"
)

// Metrics holds the cart collectors.
type Metrics struct {
	mutations       *prometheus.CounterVec
	persistFailures *prometheus.CounterVec
	lines           prometheus.Gauge
	units           prometheus.Gauge
	dirty           prometheus.Gauge
	breakerState    *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		mutations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cart_mutations_total",
				Help: "Total number of applied cart mutations",
			},
			[]string{"op"},
		),
		persistFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cart_persist_failures_total",
				Help: "Total number of cart snapshot writes that failed",
			},
			[]string{"op"},
		),
		lines: f.NewGauge(prometheus.GaugeOpts{
			Name: "cart_lines",
			Help: "Number of distinct line items in the cart",
		}),
		units: f.NewGauge(prometheus.GaugeOpts{
			Name: "cart_items",
			Help: "Total quantity across all line items",
		}),
		dirty: f.NewGauge(prometheus.GaugeOpts{
			Name: "cart_dirty",
			Help: "1 when the in-memory cart is ahead of the persisted snapshot",
		}),
		breakerState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Current state of the circuit breaker (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
	}
}

// Mutation records an applied mutation and the resulting cart size.
func (m *Metrics) Mutation(op string, c domain.Cart) {
	m.mutations.WithLabelValues(op).Inc()
	m.lines.Set(float64(c.Len()))
	m.units.Set(float64(c.ItemCount()))
}

// Loaded records the cart size after the initial load.
func (m *Metrics) Loaded(c domain.Cart) {
	m.lines.Set(float64(c.Len()))
	m.units.Set(float64(c.ItemCount()))
}

// Persisted records the outcome of a snapshot write.
func (m *Metrics) Persisted(op string, err error) {
	if err != nil {
		m.persistFailures.WithLabelValues(op).Inc()
		m.dirty.Set(1)
		return
	}
	m.dirty.Set(0)
}

// SetBreakerState implements breaker.StateObserver.
func (m *Metrics) SetBreakerState(name string, state gobreaker.State) {
	m.breakerState.WithLabelValues(name).Set(stateToFloat(state))
}

// stateToFloat maps gobreaker states to prometheus gauge values.
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
