package metrics

import "github.com/marmos91/s3block/ecprotect"

// NewECProtectMetrics creates a new Prometheus-backed ecprotect.Metrics
// instance. Returns nil if metrics are not enabled.
func NewECProtectMetrics() ecprotect.Metrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusECProtectMetrics()
}

var newPrometheusECProtectMetrics func() ecprotect.Metrics

// RegisterECProtectMetricsConstructor is called by
// pkg/metrics/prometheus/ecprotect.go during package initialization.
func RegisterECProtectMetricsConstructor(constructor func() ecprotect.Metrics) {
	newPrometheusECProtectMetrics = constructor
}
