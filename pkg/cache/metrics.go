package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus counters shared by every cache, labeled by cache name.
// A nil *Metrics records nothing.
type Metrics struct {
	hits       *prometheus.CounterVec
	misses     *prometheus.CounterVec
	loads      *prometheus.CounterVec
	loadErrors *prometheus.CounterVec
}

// NewMetrics creates the cache counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "catalog",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of cache lookups served from a live entry.",
		}, []string{"cache"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "catalog",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of cache lookups that required a load.",
		}, []string{"cache"}),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "catalog",
			Subsystem: "cache",
			Name:      "loads_total",
			Help:      "Total number of successful loader invocations.",
		}, []string{"cache"}),
		loadErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "catalog",
			Subsystem: "cache",
			Name:      "load_errors_total",
			Help:      "Total number of failed loader invocations.",
		}, []string{"cache"}),
	}

	for _, c := range []prometheus.Collector{m.hits, m.misses, m.loads, m.loadErrors} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) hit(name string) {
	if m != nil {
		m.hits.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) miss(name string) {
	if m != nil {
		m.misses.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) load(name string) {
	if m != nil {
		m.loads.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) loadError(name string) {
	if m != nil {
		m.loadErrors.WithLabelValues(name).Inc()
	}
}
