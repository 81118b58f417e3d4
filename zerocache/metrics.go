package zerocache

// Metrics is the nil-safe metrics seam for the zero cache layer.
type Metrics interface {
	RecordElidedRead()
	RecordElidedWrite()
}

func recordElidedRead(m Metrics) {
	if m != nil {
		m.RecordElidedRead()
	}
}

func recordElidedWrite(m Metrics) {
	if m != nil {
		m.RecordElidedWrite()
	}
}
