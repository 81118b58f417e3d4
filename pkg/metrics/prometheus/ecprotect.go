package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/s3block/ecprotect"
	"github.com/marmos91/s3block/pkg/metrics"
)

func init() {
	metrics.RegisterECProtectMetricsConstructor(newECProtectMetrics)
}

type ecProtectMetrics struct {
	servedFromWindow   prometheus.Counter
	coalescedWrites    prometheus.Counter
	outstandingEntries prometheus.Gauge
}

func newECProtectMetrics() ecprotect.Metrics {
	reg := metrics.GetRegistry()
	return &ecProtectMetrics{
		servedFromWindow: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "s3block_ecprotect_served_from_window_total",
			Help: "Total number of reads answered from remembered bytes during the consistency window.",
		}),
		coalescedWrites: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "s3block_ecprotect_coalesced_writes_total",
			Help: "Total number of writes that queued behind an in-flight downstream write instead of starting a new one.",
		}),
		outstandingEntries: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "s3block_ecprotect_outstanding_entries",
			Help: "Current number of indices being tracked for the consistency window.",
		}),
	}
}

func (m *ecProtectMetrics) RecordServedFromWindow() { m.servedFromWindow.Inc() }
func (m *ecProtectMetrics) RecordCoalescedWrite()   { m.coalescedWrites.Inc() }
func (m *ecProtectMetrics) RecordOutstandingEntries(n int) {
	m.outstandingEntries.Set(float64(n))
}
