// Package observability exposes Prometheus instrumentation for the
// partition cache tiers.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CacheMetrics counts tier outcomes for partition loads.
type CacheMetrics struct {
	MemoryHits   prometheus.Counter
	DurableHits  prometheus.Counter
	Misses       prometheus.Counter
	Fetches      prometheus.Counter
	FetchedBytes prometheus.Counter
	Evictions    prometheus.Counter
	LoadFailures prometheus.Counter
	InFlight     prometheus.Gauge
	Resident     prometheus.Gauge
}

// NewCacheMetrics builds the metric set and registers it with reg.
// A nil registerer leaves the metrics unregistered, which is what
// tests want.
func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	m := &CacheMetrics{
		MemoryHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tok_partition_memory_hits_total",
			Help: "Partition loads served from the memory tier.",
		}),
		DurableHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tok_partition_durable_hits_total",
			Help: "Partition loads served from the durable tier.",
		}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tok_partition_misses_total",
			Help: "Partition loads that fell through to the network.",
		}),
		Fetches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tok_partition_fetches_total",
			Help: "Network fetches of partition blobs.",
		}),
		FetchedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tok_partition_fetched_bytes_total",
			Help: "Bytes of partition blobs delivered by the network tier.",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tok_partition_evictions_total",
			Help: "Partitions evicted from the memory tier.",
		}),
		LoadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tok_partition_load_failures_total",
			Help: "Partition load attempts that ended in error.",
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tok_partition_loads_in_flight",
			Help: "Partition loads currently in flight.",
		}),
		Resident: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tok_partition_resident",
			Help: "Partitions currently resident in memory.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.MemoryHits, m.DurableHits, m.Misses,
			m.Fetches, m.FetchedBytes, m.Evictions,
			m.LoadFailures, m.InFlight, m.Resident,
		)
	}
	return m
}
