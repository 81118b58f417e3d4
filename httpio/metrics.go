package httpio

import "time"

// Metrics is the nil-safe metrics seam for the HTTP I/O layer: an
// interface owned by this package, with a Prometheus implementation
// registered from pkg/metrics/prometheus to avoid an import cycle.
type Metrics interface {
	ObserveOperation(operation string, duration time.Duration, err error)
	RecordBytes(operation string, bytes int64)
}

func observeOperation(m Metrics, operation string, start time.Time, err error) {
	if m != nil {
		m.ObserveOperation(operation, time.Since(start), err)
	}
}

func recordBytes(m Metrics, operation string, n int) {
	if m != nil && n > 0 {
		m.RecordBytes(operation, int64(n))
	}
}
