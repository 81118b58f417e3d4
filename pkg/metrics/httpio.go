package metrics

import "github.com/marmos91/s3block/httpio"

// NewHTTPIOMetrics creates a new Prometheus-backed httpio.Metrics instance.
// Returns nil if metrics are not enabled.
func NewHTTPIOMetrics() httpio.Metrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusHTTPIOMetrics()
}

var newPrometheusHTTPIOMetrics func() httpio.Metrics

// RegisterHTTPIOMetricsConstructor is called by
// pkg/metrics/prometheus/httpio.go during package initialization.
func RegisterHTTPIOMetricsConstructor(constructor func() httpio.Metrics) {
	newPrometheusHTTPIOMetrics = constructor
}
