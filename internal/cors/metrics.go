package cors

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the compiled header cache.
type Metrics struct {
	hits    prometheus.Counter
	misses  prometheus.Counter
	entries prometheus.Gauge
	clears  prometheus.Counter
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
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cors",
			Name:      "cache_hits_total",
			Help:      "Total number of compiled header lookups served from cache",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cors",
			Name:      "cache_misses_total",
			Help:      "Total number of compiled header lookups that compiled a policy",
		}),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cors",
			Name:      "cache_entries",
			Help:      "Number of compiled header sets in the cache",
		}),
		clears: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cors",
			Name:      "cache_clears_total",
			Help:      "Total number of cache clears",
		}),
	}

	for _, c := range []prometheus.Collector{m.hits, m.misses, m.entries, m.clears} {
		_ = registerer.Register(c)
	}

	return m
}
