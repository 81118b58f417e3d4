package metrics

import "github.com/marmos91/s3block/zerocache"

// NewZeroCacheMetrics creates a new Prometheus-backed zerocache.Metrics
// instance. Returns nil if metrics are not enabled.
func NewZeroCacheMetrics() zerocache.Metrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusZeroCacheMetrics()
}

var newPrometheusZeroCacheMetrics func() zerocache.Metrics

// RegisterZeroCacheMetricsConstructor is called by
// pkg/metrics/prometheus/zerocache.go during package initialization.
func RegisterZeroCacheMetricsConstructor(constructor func() zerocache.Metrics) {
	newPrometheusZeroCacheMetrics = constructor
}
