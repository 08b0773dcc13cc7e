// Package metrics provides the Prometheus counters and histograms
// exposed at GET /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors the pipeline updates at well-defined
// points in a request's lifecycle.
type Metrics struct {
	RequestsTotal        prometheus.Counter
	ExecutionsTotal      *prometheus.CounterVec
	ExecutionTimeMs      prometheus.Histogram
	ExecutionMemoryKB    prometheus.Histogram
	ExecutionWallTimeMs  prometheus.Histogram
}

// New registers and returns a fresh Metrics instance against reg. Tests
// pass a private prometheus.NewRegistry() to avoid collisions with the
// process-wide default registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pentagon",
			Name:      "requests_total",
			Help:      "Total number of /execute requests run by the pipeline engine; requests rejected for content type or malformed JSON are not counted.",
		}),
		ExecutionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pentagon",
			Name:      "executions_total",
			Help:      "Total number of completed stages by outcome.",
		}, []string{"outcome"}),
		ExecutionTimeMs: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pentagon",
			Name:      "execution_time_ms",
			Help:      "CPU time used by a successful stage, in milliseconds.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 16),
		}),
		ExecutionMemoryKB: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pentagon",
			Name:      "execution_memory_kb",
			Help:      "Peak resident set size of a successful stage, in kilobytes.",
			Buckets:   prometheus.ExponentialBuckets(1024, 2, 16),
		}),
		ExecutionWallTimeMs: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pentagon",
			Name:      "execution_wall_time_ms",
			Help:      "Wall-clock duration of every spawn attempt, in milliseconds.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 20),
		}),
	}
}
