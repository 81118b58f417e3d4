package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/s3block/blockcache"
	"github.com/marmos91/s3block/pkg/metrics"
)

func init() {
	metrics.RegisterBlockCacheMetricsConstructor(newBlockCacheMetrics)
}

type blockCacheMetrics struct {
	hits       prometheus.Counter
	misses     prometheus.Counter
	evictions  prometheus.Counter
	dirtyCount prometheus.Gauge
}

func newBlockCacheMetrics() blockcache.Metrics {
	reg := metrics.GetRegistry()
	return &blockCacheMetrics{
		hits: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "s3block_blockcache_hits_total",
			Help: "Total number of block cache reads served without a downstream fetch.",
		}),
		misses: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "s3block_blockcache_misses_total",
			Help: "Total number of block cache reads that required a downstream fetch.",
		}),
		evictions: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "s3block_blockcache_evictions_total",
			Help: "Total number of clean entries evicted to respect cache_size.",
		}),
		dirtyCount: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "s3block_blockcache_dirty_blocks",
			Help: "Current number of blocks awaiting write-back.",
		}),
	}
}

func (m *blockCacheMetrics) RecordHit()      { m.hits.Inc() }
func (m *blockCacheMetrics) RecordMiss()     { m.misses.Inc() }
func (m *blockCacheMetrics) RecordEviction() { m.evictions.Inc() }
func (m *blockCacheMetrics) RecordDirtyCount(n int) {
	m.dirtyCount.Set(float64(n))
}
