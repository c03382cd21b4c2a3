package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for authentication.
type Metrics struct {
	attemptsTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	rejectedTotal    prometheus.Counter
	registerer       prometheus.Registerer
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

	m := &Metrics{registerer: registerer}

	m.attemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "attempts_total",
			Help:      "Total number of strategy attempts by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	m.dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent running authentication strategies",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"outcome"},
	)

	m.rejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "rejected_total",
			Help:      "Total number of requests rejected with 401",
		},
	)

	for _, c := range []prometheus.Collector{m.attemptsTotal, m.dispatchDuration, m.rejectedTotal} {
		// Duplicate registration keeps the first collector.
		_ = m.registerer.Register(c)
	}

	return m
}

// RecordAttempt records one strategy attempt.
func (m *Metrics) RecordAttempt(method Method, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.attemptsTotal.WithLabelValues(string(method), outcome).Inc()
}

// RecordDispatch records a completed dispatch.
func (m *Metrics) RecordDispatch(status Status, duration time.Duration) {
	m.dispatchDuration.WithLabelValues(status.String()).Observe(duration.Seconds())
	if status == StatusRejected {
		m.rejectedTotal.Inc()
	}
}
