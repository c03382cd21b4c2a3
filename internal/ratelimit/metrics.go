package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for rate limiting.
type Metrics struct {
	decisionsTotal *prometheus.CounterVec
	storeErrors    prometheus.Counter
	forgottenTotal prometheus.Counter
}

// NewMetrics creates a new Metrics instance registered with the default
// registerer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates a new Metrics instance with a custom registerer.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "avagate"
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ratelimit",
				Name:      "decisions_total",
				Help:      "Total number of rate limit decisions by outcome",
			},
			[]string{"outcome"},
		),
		storeErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ratelimit",
				Name:      "store_errors_total",
				Help:      "Total number of failed store operations",
			},
		),
		forgottenTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ratelimit",
				Name:      "forgotten_total",
				Help:      "Total number of recorded requests removed by skip rules",
			},
		),
	}

	for _, c := range []prometheus.Collector{m.decisionsTotal, m.storeErrors, m.forgottenTotal} {
		_ = registerer.Register(c)
	}

	return m
}

func (m *Metrics) recordDecision(allowed bool) {
	outcome := "rejected"
	if allowed {
		outcome = "allowed"
	}
	m.decisionsTotal.WithLabelValues(outcome).Inc()
}
