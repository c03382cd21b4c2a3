package store

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for remote store operations. A nil
// *Metrics records nothing.
type Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	txRetries         prometheus.Counter
	connectionRetries prometheus.Counter
}

// NewMetrics creates a new Metrics instance registered with the default
// registerer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates a new Metrics instance with a custom
// registerer. Collectors already registered under the same names are reused.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "avagate"
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		operationsTotal: register(registerer, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ratelimit_store",
				Name:      "redis_operations_total",
				Help:      "Total number of Redis store operations",
			},
			[]string{"operation", "status"},
		)),
		operationDuration: register(registerer, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ratelimit_store",
				Name:      "redis_operation_duration_seconds",
				Help:      "Duration of Redis store operations in seconds",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"operation"},
		)),
		txRetries: register(registerer, prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ratelimit_store",
				Name:      "redis_tx_retries_total",
				Help:      "Total number of optimistic transaction retries",
			},
		)),
		connectionRetries: register(registerer, prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ratelimit_store",
				Name:      "redis_connection_retries_total",
				Help:      "Total number of Redis connection retry attempts",
			},
		)),
	}

	return m
}

func register[C prometheus.Collector](registerer prometheus.Registerer, c C) C {
	if err := registerer.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func (m *Metrics) observe(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	status := "success"
	if err != nil {
		status = "error"
	}
	m.operationsTotal.WithLabelValues(op, status).Inc()
}

func (m *Metrics) txRetry() {
	if m != nil {
		m.txRetries.Inc()
	}
}

func (m *Metrics) connectionRetry() {
	if m != nil {
		m.connectionRetries.Inc()
	}
}
