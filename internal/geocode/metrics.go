package geocode

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	gobreaker "github.com/sony/gobreaker/v2"
)

// Metrics tracks geocoding requests and the breaker state. A nil *Metrics
// records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	state    prometheus.Gauge
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warehouse",
			Subsystem: "geocode",
			Name:      "requests_total",
			Help:      "Geocoding lookups by outcome (success, no_results, failure, rejected).",
		}, []string{"outcome"}),
		state: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "warehouse",
			Subsystem: "geocode",
			Name:      "circuit_breaker_state",
			Help:      "Breaker state: 0 closed, 1 half-open, 2 open.",
		}),
	}
}

func (m *Metrics) observe(outcome string) {
	if m != nil {
		m.requests.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) setState(s gobreaker.State) {
	if m == nil {
		return
	}
	switch s {
	case gobreaker.StateClosed:
		m.state.Set(0)
	case gobreaker.StateHalfOpen:
		m.state.Set(1)
	case gobreaker.StateOpen:
		m.state.Set(2)
	}
}
