package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ExtractionMetrics counts extraction runs per datasource. A nil *ExtractionMetrics
// records nothing.
type ExtractionMetrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewExtractionMetrics creates the extraction collectors and registers them with reg.
func NewExtractionMetrics(reg prometheus.Registerer) (*ExtractionMetrics, error) {
	m := &ExtractionMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "catalog",
			Subsystem: "extraction",
			Name:      "runs_total",
			Help:      "Total number of source extractions by outcome.",
		}, []string{"datasource", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "catalog",
			Subsystem: "extraction",
			Name:      "duration_seconds",
			Help:      "Time to sample, profile and persist one source.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"datasource"}),
	}

	for _, c := range []prometheus.Collector{m.runs, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *ExtractionMetrics) observe(datasource string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.runs.WithLabelValues(datasource, status).Inc()
	m.duration.WithLabelValues(datasource).Observe(elapsed.Seconds())
}
