package notifications

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters exported by the notification pipeline.
type Metrics struct {
	CacheHits           prometheus.Counter
	CacheMisses         prometheus.Counter
	CacheRejectedWrites prometheus.Counter
	Invalidations       prometheus.Counter
	Created             prometheus.Counter
	CreateFailures      prometheus.Counter
}

// NewMetrics creates the counters and registers them with reg. A nil reg
// creates unregistered counters.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: "notifications",
			Name:      name,
			Help:      help,
		})
	}
	return &Metrics{
		CacheHits:           counter("cache_hits_total", "Reads served from the delivery cache."),
		CacheMisses:         counter("cache_misses_total", "Reads that went to the store."),
		CacheRejectedWrites: counter("cache_rejected_writes_total", "Store reads discarded because an invalidation overtook them."),
		Invalidations:       counter("cache_invalidations_total", "Delivery cache invalidations."),
		Created:             counter("created_total", "Notifications written to the store."),
		CreateFailures:      counter("create_failures_total", "Notifications that could not be created."),
	}
}
