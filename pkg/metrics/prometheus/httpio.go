package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/s3block/httpio"
	"github.com/marmos91/s3block/pkg/metrics"
)

func init() {
	metrics.RegisterHTTPIOMetricsConstructor(newHTTPIOMetrics)
}

type httpioMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
}

func newHTTPIOMetrics() httpio.Metrics {
	reg := metrics.GetRegistry()
	return &httpioMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "s3block_httpio_operations_total",
				Help: "Total number of object store operations by operation and status.",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "s3block_httpio_operation_duration_milliseconds",
				Help:    "Duration of object store operations in milliseconds.",
				Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 5000, 30000},
			},
			[]string{"operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "s3block_httpio_bytes_total",
				Help: "Total bytes transferred by the HTTP I/O layer.",
			},
			[]string{"operation"},
		),
	}
}

func (m *httpioMetrics) ObserveOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(float64(duration.Milliseconds()))
}

func (m *httpioMetrics) RecordBytes(operation string, bytes int64) {
	m.bytesTransferred.WithLabelValues(operation).Add(float64(bytes))
}
