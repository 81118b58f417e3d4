package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/s3block/pkg/metrics"
	"github.com/marmos91/s3block/zerocache"
)

func init() {
	metrics.RegisterZeroCacheMetricsConstructor(newZeroCacheMetrics)
}

type zeroCacheMetrics struct {
	elidedReads  prometheus.Counter
	elidedWrites prometheus.Counter
}

func newZeroCacheMetrics() zerocache.Metrics {
	reg := metrics.GetRegistry()
	return &zeroCacheMetrics{
		elidedReads: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "s3block_zerocache_elided_reads_total",
			Help: "Total number of reads served from the bitmap without a downstream fetch.",
		}),
		elidedWrites: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "s3block_zerocache_elided_writes_total",
			Help: "Total number of all-zero writes that deleted the downstream object instead of storing it.",
		}),
	}
}

func (m *zeroCacheMetrics) RecordElidedRead()  { m.elidedReads.Inc() }
func (m *zeroCacheMetrics) RecordElidedWrite() { m.elidedWrites.Inc() }
