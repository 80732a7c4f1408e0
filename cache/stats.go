package cache

import "github.com/rcrowley/go-metrics"

const (
	MetricHits        = "cache.hits"
	MetricMisses      = "cache.misses"
	MetricEvictions   = "cache.evictions"
	MetricExpirations = "cache.expirations"
	MetricMutations   = "cache.mutations"
	MetricUsed        = "cache.used"
	MetricItems       = "cache.items"
)

type stats struct {
	registry    metrics.Registry
	hits        metrics.Counter
	misses      metrics.Counter
	evictions   metrics.Counter
	expirations metrics.Counter
	mutations   metrics.Meter
}

func newStats(s *Store) *stats {
	r := metrics.NewRegistry()
	st := &stats{
		registry:    r,
		hits:        metrics.NewRegisteredCounter(MetricHits, r),
		misses:      metrics.NewRegisteredCounter(MetricMisses, r),
		evictions:   metrics.NewRegisteredCounter(MetricEvictions, r),
		expirations: metrics.NewRegisteredCounter(MetricExpirations, r),
		mutations:   metrics.NewRegisteredMeter(MetricMutations, r),
	}
	metrics.NewRegisteredFunctionalGauge(MetricUsed, r, s.Used)
	metrics.NewRegisteredFunctionalGauge(MetricItems, r, func() int64 { return int64(s.Len()) })
	return st
}

func (st *stats) close() { st.mutations.Stop() }

// Metrics returns store metrics registry.
func (s *Store) Metrics() metrics.Registry { return s.stats.registry }
