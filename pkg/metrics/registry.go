// Package metrics provides the zero-overhead-when-disabled metrics seam
// used by every storage layer: each layer depends on a small interface it
// owns, and the Prometheus implementation registers itself here to avoid
// an import cycle between this package and pkg/metrics/prometheus.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu       sync.RWMutex
	registry *prometheus.Registry
)

// InitRegistry enables metrics collection and creates the Prometheus
// registry every New*Metrics constructor registers against. Calling it
// more than once is a no-op after the first call.
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return registry != nil
}

// GetRegistry returns the active registry, or nil if metrics are disabled.
func GetRegistry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}
