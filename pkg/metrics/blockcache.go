package metrics

import "github.com/marmos91/s3block/blockcache"

// NewBlockCacheMetrics creates a new Prometheus-backed blockcache.Metrics
// instance. Returns nil if metrics are not enabled, which callers pass
// straight through to blockcache.New for zero overhead.
func NewBlockCacheMetrics() blockcache.Metrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusBlockCacheMetrics()
}

// newPrometheusBlockCacheMetrics is registered by
// pkg/metrics/prometheus/blockcache.go to avoid an import cycle.
var newPrometheusBlockCacheMetrics func() blockcache.Metrics

// RegisterBlockCacheMetricsConstructor is called by
// pkg/metrics/prometheus/blockcache.go during package initialization.
func RegisterBlockCacheMetricsConstructor(constructor func() blockcache.Metrics) {
	newPrometheusBlockCacheMetrics = constructor
}
