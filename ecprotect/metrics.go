package ecprotect

// Metrics is the nil-safe metrics seam for the EC protect layer.
type Metrics interface {
	RecordServedFromWindow()
	RecordCoalescedWrite()
	RecordOutstandingEntries(n int)
}

func recordServedFromWindow(m Metrics) {
	if m != nil {
		m.RecordServedFromWindow()
	}
}

func recordCoalescedWrite(m Metrics) {
	if m != nil {
		m.RecordCoalescedWrite()
	}
}

func recordOutstandingEntries(m Metrics, n int) {
	if m != nil {
		m.RecordOutstandingEntries(n)
	}
}
