// Package metrics exports fork/join pool counters and sort timings to
// Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/king54346/timsort/forkjoin"
)

// PoolCollector reads a pool's Stats on every scrape.
type PoolCollector struct {
	pool *forkjoin.ForkJoinPool

	parallelism *prometheus.Desc
	submitted   *prometheus.Desc
	forked      *prometheus.Desc
	stolen      *prometheus.Desc
	completed   *prometheus.Desc
	panics      *prometheus.Desc
	queued      *prometheus.Desc
}

// NewPoolCollector returns a collector for pool. Register it with a
// prometheus.Registerer of your choice.
func NewPoolCollector(namespace string, pool *forkjoin.ForkJoinPool) *PoolCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "forkjoin", name), help, nil, nil)
	}
	return &PoolCollector{
		pool:        pool,
		parallelism: desc("parallelism", "Number of pool workers."),
		submitted:   desc("submitted_total", "Tasks submitted from outside the pool."),
		forked:      desc("forked_total", "Tasks forked by pool workers."),
		stolen:      desc("stolen_total", "Tasks stolen from another worker's deque."),
		completed:   desc("completed_total", "Tasks that finished running."),
		panics:      desc("panics_total", "Tasks that panicked."),
		queued:      desc("queued", "Tasks waiting in worker deques."),
	}
}

// Describe implements prometheus.Collector.
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.parallelism
	ch <- c.submitted
	ch <- c.forked
	ch <- c.stolen
	ch <- c.completed
	ch <- c.panics
	ch <- c.queued
}

// Collect implements prometheus.Collector.
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.pool.Stats()
	ch <- prometheus.MustNewConstMetric(c.parallelism, prometheus.GaugeValue, float64(s.Parallelism))
	ch <- prometheus.MustNewConstMetric(c.submitted, prometheus.CounterValue, float64(s.Submitted))
	ch <- prometheus.MustNewConstMetric(c.forked, prometheus.CounterValue, float64(s.Forked))
	ch <- prometheus.MustNewConstMetric(c.stolen, prometheus.CounterValue, float64(s.Stolen))
	ch <- prometheus.MustNewConstMetric(c.completed, prometheus.CounterValue, float64(s.Completed))
	ch <- prometheus.MustNewConstMetric(c.panics, prometheus.CounterValue, float64(s.Panics))
	ch <- prometheus.MustNewConstMetric(c.queued, prometheus.GaugeValue, float64(s.Queued))
}

// SortMetrics records how long sorts take, per algorithm.
type SortMetrics struct {
	duration *prometheus.HistogramVec
	elements *prometheus.CounterVec
}

// NewSortMetrics creates and registers the sort instruments on reg.
func NewSortMetrics(namespace string, reg prometheus.Registerer) (*SortMetrics, error) {
	m := &SortMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sort_duration_seconds",
			Help:      "Wall time of a sort call.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"algorithm"}),
		elements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sorted_elements_total",
			Help:      "Elements passed to sort calls.",
		}, []string{"algorithm"}),
	}
	for _, col := range []prometheus.Collector{m.duration, m.elements} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Observe records one sort of n elements.
func (m *SortMetrics) Observe(algorithm string, n int, d time.Duration) {
	m.duration.WithLabelValues(algorithm).Observe(d.Seconds())
	m.elements.WithLabelValues(algorithm).Add(float64(n))
}
